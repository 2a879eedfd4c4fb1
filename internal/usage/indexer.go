package usage

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ppiankov/tokenatlas/internal/cache"
	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/worker"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/tozd/go/errors"
)

// ErrBadPattern is returned for include or exclude globs doublestar rejects
var ErrBadPattern = errors.Base("invalid corpus pattern")

// Indexer scans a source corpus for token references
type Indexer struct {
	fs      afero.Fs
	cfg     model.CorpusConfig
	workers int
	cache   cache.Cache
	ttl     time.Duration
}

// NewIndexer creates an indexer. A nil cache disables result caching.
func NewIndexer(fs afero.Fs, cfg model.CorpusConfig, workers int, c cache.Cache, ttl time.Duration) *Indexer {
	if workers <= 0 {
		workers = 1
	}
	return &Indexer{
		fs:      fs,
		cfg:     cfg,
		workers: workers,
		cache:   c,
		ttl:     ttl,
	}
}

// ClearCache drops every cached usage index
func (ix *Indexer) ClearCache() error {
	if ix.cache == nil {
		return nil
	}
	return ix.cache.Clear()
}

// Files lists the corpus files under root, relative to root and sorted
func (ix *Indexer) Files(ctx context.Context, root string) ([]string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fsys := afero.NewIOFS(afero.NewBasePathFs(ix.fs, base))

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range ix.cfg.Include {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("%w: %s", ErrBadPattern, pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			excluded, err := ix.excluded(m)
			if err != nil {
				return nil, err
			}
			if !excluded {
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func (ix *Indexer) excluded(name string) (bool, error) {
	for _, pattern := range ix.cfg.Exclude {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, errors.Errorf("%w: %s", ErrBadPattern, pattern)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Scan builds the usage index for tokens, serving a cached index when the
// corpus and signature set are unchanged
func (ix *Indexer) Scan(ctx context.Context, root string, tokens model.TokenMap) (model.UsageIndex, error) {
	return ix.scan(ctx, root, tokens, true)
}

// Refresh rescans the corpus unconditionally and replaces the cached index
func (ix *Indexer) Refresh(ctx context.Context, root string, tokens model.TokenMap) (model.UsageIndex, error) {
	return ix.scan(ctx, root, tokens, false)
}

func (ix *Indexer) scan(ctx context.Context, root string, tokens model.TokenMap, useCache bool) (model.UsageIndex, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	base, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	files, err := ix.Files(ctx, base)
	if err != nil {
		return nil, err
	}
	sigs := BuildSignatures(tokens, OptionsFromConfig(ix.cfg))

	var key string
	if ix.cache != nil {
		key = cache.Key(append(append([]string{"usage", base}, ix.corpusFingerprint(base, files)...), sigs.Fingerprint()...)...)
		if useCache {
			if data, ok := ix.cache.Get(key); ok {
				var index model.UsageIndex
				if err := msgpack.Unmarshal(data, &index); err == nil {
					logger.Debug().Str("root", base).Int("files", len(files)).Msg("usage index served from cache")
					return index, nil
				}
				logger.Warn().Str("key", key).Msg("discarding unreadable cached usage index")
				if err := ix.cache.Delete(key); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("failed to evict cached usage index")
				}
			}
		}
	}

	scan := func(ctx context.Context, rel string) (FileHits, error) {
		data, err := afero.ReadFile(ix.fs, filepath.Join(base, filepath.FromSlash(rel)))
		if err != nil {
			return nil, errors.Errorf("read %s: %w", rel, err)
		}
		return ScanContent(string(data), sigs), nil
	}
	results := worker.NewBatchProcessor(scan, ix.workers).ProcessFiles(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	index := make(model.UsageIndex, len(tokens))
	for p := range tokens {
		index[p] = []model.UsageEntry{}
	}
	matched := 0
	for _, r := range results {
		if r.Error != nil {
			logger.Warn().Err(r.Error).Str("file", r.Path).Msg("skipping unreadable corpus file")
			continue
		}
		if len(r.Value) == 0 {
			continue
		}
		title, category := Component(r.Path)
		for p, matches := range r.Value {
			index[p] = append(index[p], model.UsageEntry{
				ComponentPath:     r.Path,
				ComponentTitle:    title,
				ComponentCategory: category,
				Matches:           matches,
			})
			matched += len(matches)
		}
	}

	logger.Info().
		Str("root", base).
		Int("files", len(files)).
		Int("signatures", sigs.Len()).
		Int("matches", matched).
		Dur("elapsed", time.Since(start)).
		Msg("usage scan complete")

	if ix.cache != nil {
		data, err := msgpack.Marshal(index)
		if err == nil {
			err = ix.cache.Set(key, data, ix.ttl)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("failed to cache usage index")
		}
	}
	return index, nil
}

// corpusFingerprint identifies the current state of the corpus by file name,
// size and modification time
func (ix *Indexer) corpusFingerprint(base string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, rel := range files {
		entry := "f:" + rel
		if info, err := ix.fs.Stat(filepath.Join(base, filepath.FromSlash(rel))); err == nil {
			entry += ":" + strconv.FormatInt(info.Size(), 10) + ":" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
		}
		out = append(out, entry)
	}
	return out
}
