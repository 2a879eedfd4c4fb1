package store

import (
	"context"
	"path/filepath"

	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// ErrUnparsedFile is returned when a write would replace a source file that
// failed to parse
var ErrUnparsedFile = errors.Base("token file failed to parse")

// Persister writes a new catalog version back to durable storage. It runs
// under the store's write lock; an error aborts the mutation.
type Persister interface {
	Persist(ctx context.Context, prev, next *Snapshot) error
}

// FilePersister renders the tree into the token source it was loaded from,
// keeping that source's layout and format
type FilePersister struct {
	fs     afero.Fs
	layout tokens.Layout
	format tokens.Format
}

// NewFilePersister inspects the source at path. A directory source keeps one
// file per top-level category; new categories use the format of the
// directory's existing files, YAML when it has none.
func NewFilePersister(fs afero.Fs, path string) (*FilePersister, error) {
	layout, err := tokens.DetectLayout(fs, path)
	if err != nil {
		return nil, err
	}

	p := &FilePersister{fs: fs, layout: layout, format: tokens.FormatYAML}
	if !layout.Dir {
		format, ok := tokens.FormatFor(path)
		if !ok {
			return nil, errors.Errorf("unsupported token file extension: %s", path)
		}
		p.format = format
		return p, nil
	}

	files, err := tokens.CategoryFiles(fs, path)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		p.format, _ = tokens.FormatFor(files[0])
	}
	return p, nil
}

// Persist writes the changed source files atomically. Files that were
// skipped while loading prev are never written or removed.
func (p *FilePersister) Persist(ctx context.Context, prev, next *Snapshot) error {
	if !p.layout.Dir {
		data, err := tokens.Render(next.Categories, p.format)
		if err != nil {
			return err
		}
		return writeAtomic(p.fs, p.layout.Path, data)
	}

	skipped := make(map[string]bool)
	skippedKeys := make(map[string]string)
	for _, w := range prev.ParseWarnings {
		if w.Skipped {
			skipped[w.File] = true
			skippedKeys[tokens.CategoryKey(w.File)] = w.File
		}
	}
	existing, err := p.existingFiles(skipped)
	if err != nil {
		return err
	}

	// Resolve every target before writing so a clash leaves the source untouched
	targets := make([]string, len(next.Categories))
	keep := make(map[string]bool, len(next.Categories))
	for i, cat := range next.Categories {
		keep[cat.Key] = true
		file, ok := existing[cat.Key]
		if !ok {
			if broken, clash := skippedKeys[cat.Key]; clash {
				return errors.Errorf("%w: %s also defines category %q", ErrUnparsedFile, broken, cat.Key)
			}
			file = filepath.Join(p.layout.Path, cat.Key+"."+string(p.format))
		}
		targets[i] = file
	}

	for i, cat := range next.Categories {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		format, _ := tokens.FormatFor(targets[i])
		data, err := tokens.RenderCategory(cat, format)
		if err != nil {
			return err
		}
		if err := writeAtomic(p.fs, targets[i], data); err != nil {
			return err
		}
	}

	// Only files backing a category we served are removed
	for _, cat := range prev.Categories {
		if keep[cat.Key] {
			continue
		}
		if file, ok := existing[cat.Key]; ok {
			if err := p.fs.Remove(file); err != nil {
				return errors.Errorf("remove %s: %w", file, err)
			}
			zerolog.Ctx(ctx).Debug().Str("file", file).Msg("removed emptied category file")
		}
	}
	return nil
}

// existingFiles maps category keys to the files that loaded them
func (p *FilePersister) existingFiles(skipped map[string]bool) (map[string]string, error) {
	files, err := tokens.CategoryFiles(p.fs, p.layout.Path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		if skipped[f] {
			continue
		}
		key := tokens.CategoryKey(f)
		if _, dup := out[key]; !dup {
			out[key] = f
		}
	}
	return out, nil
}

// writeAtomic replaces target via a temporary file in the same directory
func writeAtomic(fs afero.Fs, target string, data []byte) error {
	dir, base := filepath.Split(target)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+base+".tmp-*")
	if err != nil {
		return errors.Errorf("create temp file for %s: %w", target, err)
	}
	name := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = fs.Rename(name, target)
	}
	if err != nil {
		_ = fs.Remove(name)
		return errors.Errorf("write %s: %w", target, err)
	}
	return nil
}
