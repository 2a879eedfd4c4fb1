package tokens

import (
	"context"
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Result is the outcome of parsing a token source
type Result struct {
	Categories []*model.Category
	Tokens     model.TokenMap
	Warnings   []*ParseError // Skipped files and surfaced inconsistencies
}

// Err returns the warnings folded into one error, or nil
func (r *Result) Err() error {
	return joinWarnings(r.Warnings)
}

// Parser reads token sources from a filesystem
type Parser struct {
	fs afero.Fs
}

// NewParser creates a parser reading from fs
func NewParser(fs afero.Fs) *Parser {
	return &Parser{fs: fs}
}

// Parse loads a directory (one file per top-level category) or a single nested file.
// In directory mode a malformed file is skipped and recorded as a warning;
// in single-file mode it fails the parse.
func (p *Parser) Parse(ctx context.Context, path string) (*Result, error) {
	layout, err := DetectLayout(p.fs, path)
	if err != nil {
		return nil, err
	}
	if layout.Dir {
		return p.parseDir(ctx, path)
	}

	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, errors.Errorf("read token file: %w", err)
	}
	return ParseFile(path, data)
}

func (p *Parser) parseDir(ctx context.Context, dir string) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	files, err := CategoryFiles(p.fs, dir)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	seen := make(map[string]string)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := CategoryKey(file)
		if prev, dup := seen[key]; dup {
			result.Warnings = append(result.Warnings, &ParseError{File: file, Path: key, Err: errors.Errorf("%w: also defined by %s", ErrDuplicateGroup, prev), Skipped: true})
			logger.Warn().Str("file", file).Str("category", key).Msg("skipping token file with duplicate category")
			continue
		}

		data, err := afero.ReadFile(p.fs, file)
		if err != nil {
			result.Warnings = append(result.Warnings, &ParseError{File: file, Err: err, Skipped: true})
			logger.Warn().Err(err).Str("file", file).Msg("skipping unreadable token file")
			continue
		}

		fp := &fileParser{file: file}
		cat, err := fp.parseCategoryFile(key, data)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{File: file, Err: err}
			}
			pe.Skipped = true
			result.Warnings = append(result.Warnings, pe)
			logger.Warn().Err(err).Str("file", file).Msg("skipping malformed token file")
			continue
		}

		seen[key] = file
		result.Warnings = append(result.Warnings, fp.warnings...)
		if cat != nil {
			result.Categories = append(result.Categories, cat)
		}
	}

	result.Tokens = Flatten(result.Categories)
	logger.Debug().Int("files", len(files)).Int("tokens", len(result.Tokens)).Int("warnings", len(result.Warnings)).Msg("parsed token directory")
	return result, nil
}

// ParseFile parses a single nested token file whose root keys are top-level categories
func ParseFile(name string, data []byte) (*Result, error) {
	fp := &fileParser{file: name}

	root, err := fp.decode(data)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if root != nil {
		if root.Kind != yaml.MappingNode {
			return nil, fp.errorf(root, "", "%w: root must be a mapping", ErrMalformed)
		}

		seen := make(map[string]bool)
		for i := 0; i+1 < len(root.Content); i += 2 {
			keyNode, valNode := root.Content[i], deref(root.Content[i+1])
			key := keyNode.Value
			if err := fp.checkKey(keyNode, "", seen); err != nil {
				return nil, err
			}
			if valNode.Kind != yaml.MappingNode {
				continue
			}
			if isLeaf(valNode) {
				fp.warn(keyNode, key, ErrOrphanToken)
				continue
			}

			cat, err := fp.category(key, key, valNode)
			if err != nil {
				return nil, err
			}
			if cat != nil {
				result.Categories = append(result.Categories, cat)
			}
		}
	}

	result.Tokens = Flatten(result.Categories)
	result.Warnings = fp.warnings
	return result, nil
}

// fileParser walks one decoded file, collecting non-fatal warnings
type fileParser struct {
	file     string
	warnings []*ParseError
}

func (fp *fileParser) decode(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: fp.file, Err: errors.Errorf("%w: %s", ErrMalformed, err.Error())}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	return deref(doc.Content[0]), nil
}

// parseCategoryFile parses a file whose root is the body of one top-level category
func (fp *fileParser) parseCategoryFile(key string, data []byte) (*model.Category, error) {
	if strings.Contains(key, model.PathSeparator) {
		return nil, &ParseError{File: fp.file, Path: key, Err: errors.Errorf("%w: file name contains %q", ErrInvalidKey, model.PathSeparator)}
	}

	root, err := fp.decode(data)
	if err != nil || root == nil {
		return nil, err
	}
	if root.Kind != yaml.MappingNode {
		return nil, fp.errorf(root, key, "%w: root must be a mapping", ErrMalformed)
	}
	if isLeaf(root) {
		return nil, fp.errorf(root, key, "%w", ErrOrphanToken)
	}
	return fp.category(key, key, root)
}

// category builds a category from a container node. It returns nil when
// neither the node nor its descendants define a token.
func (fp *fileParser) category(key, path string, node *yaml.Node) (*model.Category, error) {
	cat := &model.Category{
		Key:  key,
		Name: DisplayName(key),
		Path: path,
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], deref(node.Content[i+1])
		name := keyNode.Value
		if err := fp.checkKey(keyNode, path, seen); err != nil {
			return nil, err
		}
		if valNode.Kind != yaml.MappingNode {
			continue
		}

		childPath := model.JoinPath(path, name)
		if isLeaf(valNode) {
			tok, err := fp.token(childPath, valNode)
			if err != nil {
				return nil, err
			}
			cat.Tokens = append(cat.Tokens, model.NamedToken{Name: name, Token: tok})
			continue
		}

		sub, err := fp.category(name, childPath, valNode)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			cat.Subcategories = append(cat.Subcategories, sub)
		}
	}

	if len(cat.Tokens) == 0 && len(cat.Subcategories) == 0 {
		return nil, nil
	}
	return cat, nil
}

func (fp *fileParser) checkKey(keyNode *yaml.Node, parent string, seen map[string]bool) error {
	name := keyNode.Value
	if name == "" || strings.Contains(name, model.PathSeparator) {
		return fp.errorf(keyNode, model.JoinPath(parent, name), "%w: %q", ErrInvalidKey, name)
	}
	if seen[name] {
		return fp.errorf(keyNode, model.JoinPath(parent, name), "%w: %q", ErrDuplicateKey, name)
	}
	seen[name] = true
	return nil
}

// token decodes a leaf node
func (fp *fileParser) token(path string, node *yaml.Node) (model.Token, error) {
	var tok model.Token
	var tier string
	explicitTier := false

	for i := 0; i+1 < len(node.Content); i += 2 {
		field := node.Content[i].Value
		val := deref(node.Content[i+1])

		switch field {
		case "value":
			v, err := scalarValue(val)
			if err != nil {
				return tok, fp.errorf(val, path, "%w: %s", ErrInvalidLeaf, err.Error())
			}
			tok.Value = v
		case "type", "description", "tier", "reference":
			if val.Kind != yaml.ScalarNode {
				return tok, fp.errorf(val, path, "%w: %s must be a scalar", ErrInvalidLeaf, field)
			}
			switch field {
			case "type":
				tok.Type = val.Value
			case "description":
				tok.Description = val.Value
			case "tier":
				tier, explicitTier = val.Value, true
			case "reference":
				tok.Reference = strings.TrimSpace(val.Value)
			}
		}
	}

	if tok.Reference == "" {
		if ref, ok := AliasTarget(tok.Value); ok && (!explicitTier || !strings.EqualFold(tier, string(model.TierPrimitive))) {
			tok.Reference = ref
		}
	}

	switch {
	case explicitTier:
		t, err := model.ParseTier(tier)
		if err != nil {
			return tok, fp.errorf(node, path, "%w: %s", ErrInvalidLeaf, err.Error())
		}
		tok.Tier = t
	case tok.Reference != "":
		tok.Tier = model.TierSemantic
	default:
		tok.Tier = model.TierPrimitive
	}

	if tok.Tier == model.TierPrimitive && tok.Reference != "" {
		fp.warn(node, path, errors.Errorf("%w: ignoring reference %q", ErrTierConflict, tok.Reference))
		tok.DroppedReference = tok.Reference
		tok.Reference = ""
	}
	return tok, nil
}

func (fp *fileParser) errorf(node *yaml.Node, path, format string, args ...any) *ParseError {
	return &ParseError{File: fp.file, Path: path, Line: node.Line, Err: errors.Errorf(format, args...)}
}

func (fp *fileParser) warn(node *yaml.Node, path string, err error) {
	fp.warnings = append(fp.warnings, &ParseError{File: fp.file, Path: path, Line: node.Line, Err: err})
}

// isLeaf reports whether a mapping node is a token: it has a "value" key
// holding a string or number
func isLeaf(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "value" {
			continue
		}
		_, err := scalarValue(deref(node.Content[i+1]))
		return err == nil
	}
	return false
}

func scalarValue(node *yaml.Node) (model.Value, error) {
	if node.Kind != yaml.ScalarNode {
		return model.Value{}, errors.New("value must be a string or number")
	}
	switch node.Tag {
	case "!!str":
		return model.StringValue(node.Value), nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return model.Value{}, errors.Errorf("decode number: %w", err)
		}
		return model.NumberValue(f), nil
	}
	return model.Value{}, errors.Errorf("value must be a string or number, got %s", node.Tag)
}

// deref follows YAML aliases to their anchored node
func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// AliasTarget extracts the path from a "{colors.blue.500}" alias value
func AliasTarget(v model.Value) (string, bool) {
	if v.Kind() != model.ValueString {
		return "", false
	}
	s := strings.TrimSpace(v.String())
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	if inner == "" || strings.ContainsAny(inner, "{} \t") {
		return "", false
	}
	return inner, true
}
