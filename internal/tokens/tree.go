package tokens

import (
	"github.com/ppiankov/tokenatlas/internal/model"
	"gitlab.com/tozd/go/errors"
)

// Tree construction errors.
var (
	ErrPathTooShort  = errors.Base("token path needs a category and a name")
	ErrPathCollision = errors.Base("path collides with an existing token or category")
)

// Walk visits every token in tree order
func Walk(categories []*model.Category, fn func(path string, tok model.Token)) {
	for _, cat := range categories {
		for _, nt := range cat.Tokens {
			fn(model.JoinPath(cat.Path, nt.Name), nt.Token)
		}
		Walk(cat.Subcategories, fn)
	}
}

// Flatten builds the path -> token map for a tree
func Flatten(categories []*model.Category) model.TokenMap {
	out := make(model.TokenMap)
	Walk(categories, func(path string, tok model.Token) {
		out[path] = tok
	})
	return out
}

// Paths lists token paths in tree order
func Paths(categories []*model.Category) []string {
	var out []string
	Walk(categories, func(path string, _ model.Token) {
		out = append(out, path)
	})
	return out
}

// Rebuild returns a new tree whose tokens are taken from the map by path.
// Tokens missing from the map are dropped, and so are categories left empty.
func Rebuild(categories []*model.Category, tokens model.TokenMap) []*model.Category {
	return filterTree(categories, func(path string, _ model.Token) (model.Token, bool) {
		tok, ok := tokens[path]
		return tok, ok
	})
}

// Insert returns a new tree with the token placed at path, creating missing
// categories along the way. Untouched subtrees are shared with the input.
func Insert(categories []*model.Category, path string, tok model.Token) ([]*model.Category, error) {
	segments := model.SplitPath(path)
	if len(segments) < 2 {
		return nil, errors.Errorf("%w: %q", ErrPathTooShort, path)
	}
	for _, s := range segments {
		if s == "" {
			return nil, errors.Errorf("%w: empty segment in %q", ErrPathTooShort, path)
		}
	}
	return insertAt(categories, "", segments, tok)
}

func insertAt(categories []*model.Category, parent string, segments []string, tok model.Token) ([]*model.Category, error) {
	key := segments[0]
	out := make([]*model.Category, len(categories), len(categories)+1)
	copy(out, categories)

	idx := -1
	for i, c := range out {
		if c.Key == key {
			idx = i
			break
		}
	}

	var cat model.Category
	if idx >= 0 {
		cat = *out[idx]
	} else {
		cat = model.Category{Key: key, Name: DisplayName(key), Path: model.JoinPath(parent, key)}
	}

	rest := segments[1:]
	if len(rest) == 1 {
		name := rest[0]
		if _, exists := cat.Tokens.Get(name); exists {
			return nil, errors.Errorf("%w: token %q", ErrPathCollision, model.JoinPath(cat.Path, name))
		}
		if cat.Subcategory(name) != nil {
			return nil, errors.Errorf("%w: category %q", ErrPathCollision, model.JoinPath(cat.Path, name))
		}
		tokens := make(model.TokenSet, len(cat.Tokens), len(cat.Tokens)+1)
		copy(tokens, cat.Tokens)
		cat.Tokens = append(tokens, model.NamedToken{Name: name, Token: tok})
	} else {
		if _, exists := cat.Tokens.Get(rest[0]); exists {
			return nil, errors.Errorf("%w: token %q", ErrPathCollision, model.JoinPath(cat.Path, rest[0]))
		}
		subs, err := insertAt(cat.Subcategories, cat.Path, rest, tok)
		if err != nil {
			return nil, err
		}
		cat.Subcategories = subs
	}

	if idx >= 0 {
		out[idx] = &cat
	} else {
		out = append(out, &cat)
	}
	return out, nil
}

// filterTree maps every token through keep, producing a new tree that
// retains a category only while it or a descendant still holds a token.
func filterTree(categories []*model.Category, keep func(path string, tok model.Token) (model.Token, bool)) []*model.Category {
	var out []*model.Category
	for _, cat := range categories {
		next := &model.Category{
			Key:  cat.Key,
			Name: cat.Name,
			Path: cat.Path,
		}
		for _, nt := range cat.Tokens {
			if tok, ok := keep(model.JoinPath(cat.Path, nt.Name), nt.Token); ok {
				next.Tokens = append(next.Tokens, model.NamedToken{Name: nt.Name, Token: tok})
			}
		}
		next.Subcategories = filterTree(cat.Subcategories, keep)

		if len(next.Tokens) > 0 || len(next.Subcategories) > 0 {
			out = append(out, next)
		}
	}
	return out
}
