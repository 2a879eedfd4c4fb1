package tokens

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// Format is the serialization of a token source file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor returns the format implied by a file extension
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Layout describes where tokens live on disk
type Layout struct {
	Path string // Directory or file
	Dir  bool   // One file per top-level category
}

// DetectLayout stats the source path to decide between directory and single-file mode
func DetectLayout(fs afero.Fs, path string) (Layout, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return Layout{}, errors.Errorf("stat token source: %w", err)
	}
	return Layout{Path: path, Dir: info.IsDir()}, nil
}

// CategoryFiles lists token files in a directory, lexically ordered
func CategoryFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Errorf("read token directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatFor(e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// CategoryKey derives a top-level category key from a file name
func CategoryKey(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
