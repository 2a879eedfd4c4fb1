package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PathSeparator separates segments of a token path
const PathSeparator = "."

// SplitPath splits a dotted token path into its segments
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// JoinPath joins path segments, skipping empty parents
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// NamedToken is a token together with its local name
type NamedToken struct {
	Name  string
	Token Token
}

// TokenSet is an ordered set of uniquely named tokens
type TokenSet []NamedToken

// Get returns the token with the given local name
func (s TokenSet) Get(name string) (Token, bool) {
	for _, nt := range s {
		if nt.Name == name {
			return nt.Token, true
		}
	}
	return Token{}, false
}

// MarshalJSON encodes the set as a JSON object, preserving order
func (s TokenSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nt := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nt.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(nt.Token)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Category is a node of the token tree
type Category struct {
	Key           string      `json:"key"`                     // Source key
	Name          string      `json:"name"`                    // Display name derived from Key
	Path          string      `json:"path"`                    // Dotted key path from the root
	Tokens        TokenSet    `json:"tokens"`                  // Tokens defined directly in this category
	Subcategories []*Category `json:"subcategories,omitempty"` // Nested categories in source order
}

// Subcategory returns the direct child with the given key
func (c *Category) Subcategory(key string) *Category {
	for _, sub := range c.Subcategories {
		if sub.Key == key {
			return sub
		}
	}
	return nil
}
