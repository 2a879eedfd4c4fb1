package usage

import (
	"sort"
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
)

// Options controls which textual signatures identify a token
type Options struct {
	PropertyPrefix string // Inserted after "--" in custom property names
	MatchPaths     bool   // Match the dotted path itself, e.g. token('colors.blue.500')
	MatchValues    bool   // Match literal primitive values, e.g. #3b82f6
}

// OptionsFromConfig maps corpus settings to scan options
func OptionsFromConfig(cfg model.CorpusConfig) Options {
	return Options{
		PropertyPrefix: cfg.PropertyPrefix,
		MatchPaths:     cfg.MatchPaths,
		MatchValues:    cfg.MatchValues,
	}
}

// Signatures is the finite set of literal words that reference tokens.
// Lookups are exact, so a line is scanned once regardless of token count.
type Signatures struct {
	exact  map[string][]string // word -> token paths
	values map[string][]string // lower-cased literal value -> token paths
	opts   Options
}

// CustomProperty returns the CSS custom property name for a token path
func CustomProperty(prefix, path string) string {
	return "--" + prefix + strings.ReplaceAll(path, model.PathSeparator, "-")
}

// BuildSignatures derives the signature set for every token
func BuildSignatures(tokens model.TokenMap, opts Options) *Signatures {
	s := &Signatures{
		exact:  make(map[string][]string),
		values: make(map[string][]string),
		opts:   opts,
	}

	paths := make([]string, 0, len(tokens))
	for p := range tokens {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		prop := CustomProperty(opts.PropertyPrefix, p)
		s.exact[prop] = append(s.exact[prop], p)
		if opts.MatchPaths {
			s.exact[p] = append(s.exact[p], p)
		}
		if opts.MatchValues {
			if v, ok := literalValue(tokens[p]); ok {
				s.values[v] = append(s.values[v], p)
			}
		}
	}
	return s
}

// literalValue returns the value used as a signature. Bare numbers and very
// short strings are skipped because they occur everywhere.
func literalValue(tok model.Token) (string, bool) {
	if tok.IsSemantic() || tok.Value.Kind() != model.ValueString {
		return "", false
	}
	v := strings.ToLower(strings.TrimSpace(tok.Value.String()))
	if len(v) < 3 || strings.ContainsAny(v, " \t") || isNumeric(v) {
		return "", false
	}
	return v, true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// Lookup returns the token paths a word references
func (s *Signatures) Lookup(word string) []string {
	paths := s.exact[word]
	if len(s.values) > 0 {
		if vp, ok := s.values[strings.ToLower(word)]; ok {
			if len(paths) == 0 {
				return vp
			}
			merged := make([]string, 0, len(paths)+len(vp))
			merged = append(merged, paths...)
			merged = append(merged, vp...)
			return merged
		}
	}
	return paths
}

// Len returns the number of distinct signature words
func (s *Signatures) Len() int {
	return len(s.exact) + len(s.values)
}

// Fingerprint lists the signature words and options in a stable order,
// suitable for deriving a cache key
func (s *Signatures) Fingerprint() []string {
	out := make([]string, 0, s.Len()+1)
	for w, paths := range s.exact {
		out = append(out, "e:"+w+"="+strings.Join(paths, ","))
	}
	for w, paths := range s.values {
		out = append(out, "v:"+w+"="+strings.Join(paths, ","))
	}
	sort.Strings(out)
	return append(out, "prefix="+s.opts.PropertyPrefix)
}
