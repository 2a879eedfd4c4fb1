package tokens

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/ppiankov/tokenatlas/internal/model"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Render serializes a whole tree in single-file form
func Render(categories []*model.Category, format Format) ([]byte, error) {
	root := mappingNode()
	for _, cat := range categories {
		root.Content = append(root.Content, keyNode(cat.Key), categoryNode(cat))
	}
	return encode(root, format)
}

// RenderCategory serializes the body of one top-level category, as stored in
// directory mode
func RenderCategory(cat *model.Category, format Format) ([]byte, error) {
	return encode(categoryNode(cat), format)
}

func encode(node *yaml.Node, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return nil, errors.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		var buf bytes.Buffer
		if err := writeJSON(&buf, node, ""); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}
	return nil, errors.Errorf("unsupported format %q", format)
}

func categoryNode(cat *model.Category) *yaml.Node {
	node := mappingNode()
	for _, nt := range cat.Tokens {
		node.Content = append(node.Content, keyNode(nt.Name), tokenNode(nt.Token))
	}
	for _, sub := range cat.Subcategories {
		node.Content = append(node.Content, keyNode(sub.Key), categoryNode(sub))
	}
	return node
}

func tokenNode(tok model.Token) *yaml.Node {
	node := mappingNode()
	node.Content = append(node.Content, keyNode("value"), valueNode(tok.Value))
	if tok.Type != "" {
		node.Content = append(node.Content, keyNode("type"), stringNode(tok.Type))
	}
	if tok.Description != "" {
		node.Content = append(node.Content, keyNode("description"), stringNode(tok.Description))
	}
	switch {
	case tok.IsSemantic():
		node.Content = append(node.Content, keyNode("tier"), stringNode(string(tok.Tier)))
		if tok.Reference != "" {
			node.Content = append(node.Content, keyNode("reference"), stringNode(tok.Reference))
		}
	case tok.DroppedReference != "":
		node.Content = append(node.Content,
			keyNode("tier"), stringNode(string(model.TierPrimitive)),
			keyNode("reference"), stringNode(tok.DroppedReference))
	default:
		// An alias-shaped value would be inferred as semantic on the next parse
		if _, ok := AliasTarget(tok.Value); ok {
			node.Content = append(node.Content, keyNode("tier"), stringNode(string(model.TierPrimitive)))
		}
	}
	return node
}

func valueNode(v model.Value) *yaml.Node {
	if n, ok := v.Number(); ok {
		tag := "!!float"
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.String()}
	}
	return stringNode(v.String())
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func keyNode(s string) *yaml.Node {
	return stringNode(s)
}

func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// writeJSON writes the mapping/scalar node tree produced above as indented JSON
func writeJSON(buf *bytes.Buffer, node *yaml.Node, indent string) error {
	switch node.Kind {
	case yaml.MappingNode:
		if len(node.Content) == 0 {
			buf.WriteString("{}")
			return nil
		}
		inner := indent + "  "
		buf.WriteString("{\n")
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteString(",\n")
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return errors.Errorf("encode json key: %w", err)
			}
			buf.WriteString(inner)
			buf.Write(key)
			buf.WriteString(": ")
			if err := writeJSON(buf, node.Content[i+1], inner); err != nil {
				return err
			}
		}
		buf.WriteString("\n" + indent + "}")
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!int" || node.Tag == "!!float" {
			if _, err := strconv.ParseFloat(node.Value, 64); err == nil {
				buf.WriteString(node.Value)
				return nil
			}
		}
		s, err := json.Marshal(node.Value)
		if err != nil {
			return errors.Errorf("encode json string: %w", err)
		}
		buf.Write(s)
		return nil
	}
	return errors.Errorf("unsupported node kind %d", node.Kind)
}
