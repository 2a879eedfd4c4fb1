package pipeline

import (
	"context"
	"time"

	"github.com/ppiankov/tokenatlas/internal/cache"
	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/store"
	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/ppiankov/tokenatlas/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// maxUsageAttempts bounds rescans when mutations keep superseding the scanned snapshot
const maxUsageAttempts = 3

var (
	ErrNotOpen    = errors.Base("catalog is not open")
	ErrSuperseded = errors.Base("catalog changed during usage scan")
)

// Pipeline wires the token source, the catalog store and the usage indexer
type Pipeline struct {
	config  *model.Config
	fs      afero.Fs
	parser  *tokens.Parser
	indexer *usage.Indexer
	store   *store.Store
}

// New creates a pipeline reading the source and corpus through fs
func New(cfg *model.Config, fs afero.Fs) *Pipeline {
	return &Pipeline{
		config:  cfg,
		fs:      fs,
		parser:  tokens.NewParser(fs),
		indexer: usage.NewIndexer(fs, cfg.Corpus, cfg.Concurrency.Workers, cache.New(cfg.Cache, fs), cfg.Cache.TTL),
	}
}

// Load parses and resolves the token source into a fresh snapshot
func (p *Pipeline) Load(ctx context.Context) (*store.Snapshot, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	result, err := p.parser.Parse(ctx, p.config.Source.Path)
	if err != nil {
		return nil, errors.Errorf("load %s: %w", p.config.Source.Path, err)
	}
	snap := store.NewSnapshot(result.Categories, result.Warnings, p.config.Resolver.MaxDepth)

	for _, w := range snap.ParseWarnings {
		logger.Warn().Err(w).Msg("token source warning")
	}
	for _, w := range snap.Warnings {
		logger.Warn().Str("path", w.Path).Str("kind", string(w.Kind)).Msg(w.String())
	}

	meta := snap.Meta()
	logger.Info().
		Str("source", p.config.Source.Path).
		Str("generation", snap.Generation).
		Int("tokens", meta.TokenCount).
		Int("primitives", meta.PrimitiveCount).
		Int("semantics", meta.SemanticCount).
		Int("warnings", len(snap.ParseWarnings)+len(snap.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("token catalog loaded")
	return snap, nil
}

// Open loads the source and builds the store that serves it. With
// source.persist enabled, mutations are written back to the source.
func (p *Pipeline) Open(ctx context.Context) (*store.Store, error) {
	snap, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{store.WithMaxDepth(p.config.Resolver.MaxDepth)}
	if p.config.Source.Persist {
		persister, err := store.NewFilePersister(p.fs, p.config.Source.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithPersister(persister))
	}

	p.store = store.New(snap, opts...)
	return p.store, nil
}

// Store returns the store built by Open, or nil
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Reload re-reads the source and replaces the store's catalog. Mutations
// arriving meanwhile wait and apply to the reloaded catalog.
func (p *Pipeline) Reload(ctx context.Context) (*store.Snapshot, error) {
	if p.store == nil {
		return nil, errors.WithStack(ErrNotOpen)
	}
	return p.store.Reload(ctx, p.Load)
}

// ClearUsageCache drops cached usage indexes, including those computed for
// earlier states of the corpus
func (p *Pipeline) ClearUsageCache(ctx context.Context) error {
	if err := p.indexer.ClearCache(); err != nil {
		return errors.Errorf("clear usage cache: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Msg("usage cache cleared")
	return nil
}

// Usage scans the corpus for the current catalog. A result computed for a
// snapshot that was replaced mid-scan is discarded and the scan repeated.
func (p *Pipeline) Usage(ctx context.Context, refresh bool) (model.UsageIndex, error) {
	if p.store == nil {
		return nil, errors.WithStack(ErrNotOpen)
	}
	logger := zerolog.Ctx(ctx)

	for attempt := 1; attempt <= maxUsageAttempts; attempt++ {
		snap := p.store.Snapshot()

		var index model.UsageIndex
		var err error
		if refresh {
			index, err = p.indexer.Refresh(ctx, p.config.Corpus.Root, snap.Tokens)
		} else {
			index, err = p.indexer.Scan(ctx, p.config.Corpus.Root, snap.Tokens)
		}
		if err != nil {
			return nil, errors.Errorf("usage scan: %w", err)
		}

		if current := p.store.Snapshot(); current.Generation == snap.Generation {
			return index, nil
		}
		logger.Debug().Str("generation", snap.Generation).Int("attempt", attempt).Msg("discarding usage index for superseded catalog")
	}
	return nil, errors.WithStack(ErrSuperseded)
}
