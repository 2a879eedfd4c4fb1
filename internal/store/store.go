package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Mutation errors.
var (
	ErrDuplicatePath = errors.Base("token path already exists")
	ErrNotFound      = errors.Base("token not found")
	ErrInvalidToken  = errors.Base("invalid token")
	ErrPersist       = errors.Base("persist token source")
)

// Snapshot is one immutable, fully resolved version of the catalog.
// Readers may hold a snapshot indefinitely; mutations publish a new one.
type Snapshot struct {
	Generation    string
	LoadedAt      time.Time
	Categories    []*model.Category
	Tokens        model.TokenMap
	ParseWarnings []*tokens.ParseError
	Warnings      []tokens.ResolutionWarning
}

// NewSnapshot resolves the tree and stamps a fresh generation
func NewSnapshot(categories []*model.Category, parseWarnings []*tokens.ParseError, maxDepth int) *Snapshot {
	resolved, warnings := tokens.Resolve(tokens.Flatten(categories), maxDepth)
	return &Snapshot{
		Generation:    uuid.NewString(),
		LoadedAt:      time.Now().UTC(),
		Categories:    tokens.Rebuild(categories, resolved),
		Tokens:        resolved,
		ParseWarnings: parseWarnings,
		Warnings:      warnings,
	}
}

// Messages lists parse and resolution warnings as display strings
func (s *Snapshot) Messages() []string {
	out := make([]string, 0, len(s.ParseWarnings)+len(s.Warnings))
	for _, w := range s.ParseWarnings {
		out = append(out, w.Error())
	}
	for _, w := range s.Warnings {
		out = append(out, w.String())
	}
	return out
}

// Meta counts the snapshot's tokens per tier
func (s *Snapshot) Meta() model.Meta {
	return s.Tokens.Meta()
}

// DeleteResult reports a completed deletion. Dependents lists the semantic
// tokens that referenced the deleted path and are now unresolved.
type DeleteResult struct {
	Snapshot   *Snapshot
	Dependents []string
}

// Store serializes catalog mutations and publishes snapshots to readers
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
	maxDepth  int
	persister Persister
}

// Option configures a Store
type Option func(*Store)

// WithPersister writes every mutation back to the token source before it is published
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithMaxDepth bounds reference chains during re-resolution
func WithMaxDepth(depth int) Option {
	return func(s *Store) {
		s.maxDepth = depth
	}
}

// New creates a store serving the initial snapshot
func New(initial *Snapshot, opts ...Option) *Store {
	s := &Store{maxDepth: model.DefaultMaxDepth}
	for _, opt := range opts {
		opt(s)
	}
	if initial == nil {
		initial = NewSnapshot(nil, nil, s.maxDepth)
	}
	s.current.Store(initial)
	return s
}

// Snapshot returns the current catalog version without blocking
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Create adds a new token, creating missing categories
func (s *Store) Create(ctx context.Context, path string, tok model.Token) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, exists := snap.Tokens[path]; exists {
		return nil, errors.Errorf("%w: %s", ErrDuplicatePath, path)
	}
	tok, err := normalize(path, tok)
	if err != nil {
		return nil, err
	}

	categories, err := tokens.Insert(snap.Categories, path, tok)
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}
	next := snap.Tokens.Clone()
	next[path] = tok

	published, err := s.commit(ctx, snap, categories, next)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("path", path).Str("tier", string(tok.Tier)).Str("generation", published.Generation).Msg("token created")
	return published, nil
}

// Update replaces an existing token in place. The tier may change.
func (s *Store) Update(ctx context.Context, path string, tok model.Token) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, exists := snap.Tokens[path]; !exists {
		return nil, errors.Errorf("%w: %s", ErrNotFound, path)
	}
	tok, err := normalize(path, tok)
	if err != nil {
		return nil, err
	}

	next := snap.Tokens.Clone()
	next[path] = tok

	published, err := s.commit(ctx, snap, snap.Categories, next)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("path", path).Str("tier", string(tok.Tier)).Str("generation", published.Generation).Msg("token updated")
	return published, nil
}

// Delete removes a token. Tokens that referenced it are reported but the
// deletion still proceeds; they become unresolved.
func (s *Store) Delete(ctx context.Context, path string) (*DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, exists := snap.Tokens[path]; !exists {
		return nil, errors.Errorf("%w: %s", ErrNotFound, path)
	}
	dependents := tokens.Dependents(snap.Tokens, path)

	next := snap.Tokens.Clone()
	delete(next, path)

	published, err := s.commit(ctx, snap, snap.Categories, next)
	if err != nil {
		return nil, err
	}

	event := zerolog.Ctx(ctx).Info()
	if len(dependents) > 0 {
		event = zerolog.Ctx(ctx).Warn().Strs("dependents", dependents)
	}
	event.Str("path", path).Str("generation", published.Generation).Msg("token deleted")
	return &DeleteResult{Snapshot: published, Dependents: dependents}, nil
}

// Dependents lists the semantic tokens directly referencing path
func (s *Store) Dependents(path string) ([]string, error) {
	snap := s.current.Load()
	if _, exists := snap.Tokens[path]; !exists {
		return nil, errors.Errorf("%w: %s", ErrNotFound, path)
	}
	return tokens.Dependents(snap.Tokens, path), nil
}

// Reload publishes the snapshot returned by load, discarding in-memory
// state. load runs under the writer lock, so no mutation can commit between
// reading the source and publishing its snapshot. Nothing is persisted.
func (s *Store) Reload(ctx context.Context, load func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := load(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	zerolog.Ctx(ctx).Info().Str("generation", snap.Generation).Int("tokens", len(snap.Tokens)).Msg("catalog reloaded")
	return snap, nil
}

// commit re-resolves the whole map, persists, and only then publishes
func (s *Store) commit(ctx context.Context, prev *Snapshot, categories []*model.Category, next model.TokenMap) (*Snapshot, error) {
	resolved, warnings := tokens.Resolve(next, s.maxDepth)
	snap := &Snapshot{
		Generation:    uuid.NewString(),
		LoadedAt:      prev.LoadedAt,
		Categories:    tokens.Rebuild(categories, resolved),
		Tokens:        resolved,
		ParseWarnings: prev.ParseWarnings,
		Warnings:      warnings,
	}

	if s.persister != nil {
		if err := s.persister.Persist(ctx, prev, snap); err != nil {
			return nil, errors.Errorf("%w: %s", ErrPersist, err.Error())
		}
	}

	for _, w := range warnings {
		zerolog.Ctx(ctx).Debug().Str("path", w.Path).Str("kind", string(w.Kind)).Msg(w.String())
	}
	s.current.Store(snap)
	return snap, nil
}

// normalize validates a token payload and fills in what can be derived:
// the tier when omitted, and the alias value of a semantic token.
func normalize(path string, tok model.Token) (model.Token, error) {
	segments := model.SplitPath(path)
	if len(segments) < 2 {
		return tok, errors.Errorf("%w: path %q needs a category and a name", ErrInvalidToken, path)
	}
	for _, seg := range segments {
		if seg == "" {
			return tok, errors.Errorf("%w: path %q has an empty segment", ErrInvalidToken, path)
		}
	}

	target, isAlias := tokens.AliasTarget(tok.Value)
	if tok.Tier == "" {
		tok.Tier = model.TierPrimitive
		if tok.Reference != "" || isAlias {
			tok.Tier = model.TierSemantic
		}
	} else {
		tier, err := model.ParseTier(string(tok.Tier))
		if err != nil {
			return tok, errors.Errorf("%w: %s", ErrInvalidToken, err.Error())
		}
		tok.Tier = tier
	}

	switch tok.Tier {
	case model.TierSemantic:
		if tok.Reference == "" && isAlias {
			tok.Reference = target
		}
		if tok.Reference == "" {
			return tok, errors.Errorf("%w: semantic token %s needs a reference", ErrInvalidToken, path)
		}
		if isAlias && target != tok.Reference {
			return tok, errors.Errorf("%w: value {%s} disagrees with reference %s", ErrInvalidToken, target, tok.Reference)
		}
		if tok.Value.IsZero() {
			tok.Value = model.StringValue("{" + tok.Reference + "}")
		}
	default:
		if tok.Value.IsZero() {
			return tok, errors.Errorf("%w: primitive token %s needs a value", ErrInvalidToken, path)
		}
		if tok.Reference != "" {
			return tok, errors.Errorf("%w: primitive token %s cannot carry a reference", ErrInvalidToken, path)
		}
	}

	tok.ResolvedValue = nil
	return tok, nil
}
