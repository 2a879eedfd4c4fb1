package tokens

import (
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
)

// FilterByTier keeps only tokens of the given tier
func FilterByTier(categories []*model.Category, tier model.Tier) []*model.Category {
	return filterTree(categories, func(_ string, tok model.Token) (model.Token, bool) {
		return tok, tok.Tier == tier
	})
}

// FilterByQuery keeps tokens whose local name, value, description or
// reference contains the query, case-insensitively. An empty query keeps
// every token.
func FilterByQuery(categories []*model.Category, query string) []*model.Category {
	q := strings.ToLower(strings.TrimSpace(query))
	return filterTree(categories, func(path string, tok model.Token) (model.Token, bool) {
		return tok, q == "" || MatchesQuery(localName(path), tok, q)
	})
}

// MatchesQuery reports whether a token matches an already lower-cased query
func MatchesQuery(name string, tok model.Token, q string) bool {
	if strings.Contains(strings.ToLower(name), q) ||
		strings.Contains(strings.ToLower(tok.Value.String()), q) ||
		strings.Contains(strings.ToLower(tok.Description), q) {
		return true
	}
	return tok.IsSemantic() && strings.Contains(strings.ToLower(tok.Reference), q)
}

func localName(path string) string {
	if i := strings.LastIndex(path, model.PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}
