package usage

import (
	"path"
	"strings"

	"github.com/ppiankov/tokenatlas/internal/tokens"
)

// Component derives the display title and category of a corpus file from
// its slash-separated path relative to the corpus root. Index files take
// their title from the directory they live in.
func Component(relPath string) (title, category string) {
	dir, base := path.Split(path.Clean(relPath))
	dir = strings.TrimSuffix(dir, "/")

	stem := base
	if i := strings.IndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}

	if stem == "index" && dir != "" {
		stem = path.Base(dir)
		dir = path.Dir(dir)
		if dir == "." {
			dir = ""
		}
	}

	title = tokens.DisplayName(stem)
	if dir != "" {
		category = tokens.DisplayName(path.Base(dir))
	}
	return title, category
}
