package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/tokens"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

const catalog = `
color:
  blue:
    500: { value: "#3b82f6" }
  primary: { value: "{color.blue.500}" }
spacing:
  md: { value: 8 }
`

func testContext(t *testing.T) context.Context {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	result, err := tokens.ParseFile("catalog.yaml", []byte(catalog))
	require.NoError(t, err)
	return New(NewSnapshot(result.Categories, result.Warnings, 0), opts...)
}

func primitive(v string) model.Token {
	return model.Token{Value: model.StringValue(v), Tier: model.TierPrimitive}
}

func TestNewSnapshot_Resolves(t *testing.T) {
	s := newStore(t)
	snap := s.Snapshot()
	assert.NotEmpty(t, snap.Generation)
	require.NotNil(t, snap.Tokens["color.primary"].ResolvedValue)
	assert.Equal(t, "#3b82f6", snap.Tokens["color.primary"].ResolvedValue.String())

	primary, ok := snap.Categories[0].Tokens.Get("primary")
	require.True(t, ok)
	assert.NotNil(t, primary.ResolvedValue, "tree carries resolved values")
	assert.Equal(t, model.Meta{TokenCount: 3, PrimitiveCount: 2, SemanticCount: 1}, snap.Meta())
}

func TestDelete_ReportsDependents(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)

	result, err := s.Delete(ctx, "color.blue.500")
	require.NoError(t, err)
	assert.Equal(t, []string{"color.primary"}, result.Dependents)

	snap := s.Snapshot()
	assert.Same(t, result.Snapshot, snap)
	assert.NotContains(t, snap.Tokens, "color.blue.500")
	assert.Nil(t, snap.Tokens["color.primary"].ResolvedValue)
	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, tokens.WarningMissing, snap.Warnings[0].Kind)

	assert.Nil(t, snap.Categories[0].Subcategory("blue"), "emptied category pruned")

	_, err = s.Delete(ctx, "color.blue.500")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreate(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)

	snap, err := s.Create(ctx, "color.link", model.Token{Reference: "color.blue.500"})
	require.NoError(t, err)
	link := snap.Tokens["color.link"]
	assert.Equal(t, model.TierSemantic, link.Tier, "tier inferred from reference")
	assert.Equal(t, "{color.blue.500}", link.Value.String())
	require.NotNil(t, link.ResolvedValue)
	assert.Equal(t, "#3b82f6", link.ResolvedValue.String())

	snap, err = s.Create(ctx, "motion.duration.fast", primitive("100ms"))
	require.NoError(t, err)
	require.Len(t, snap.Categories, 3)
	assert.Equal(t, "Motion", snap.Categories[2].Name)

	_, err = s.Create(ctx, "color.link", primitive("#000"))
	assert.True(t, errors.Is(err, ErrDuplicatePath))
}

func TestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		path string
		tok  model.Token
	}{
		{"semantic without reference", "color.x", model.Token{Tier: model.TierSemantic}},
		{"primitive without value", "color.x", model.Token{Tier: model.TierPrimitive}},
		{"primitive with reference", "color.x", model.Token{Value: model.StringValue("#fff"), Tier: model.TierPrimitive, Reference: "color.blue.500"}},
		{"unknown tier", "color.x", model.Token{Value: model.StringValue("#fff"), Tier: model.Tier("alias")}},
		{"single segment", "orphan", primitive("#fff")},
		{"empty segment", "color..x", primitive("#fff")},
		{"collides with category", "color.blue", primitive("#fff")},
		{"nested under token", "color.primary.dark", primitive("#fff")},
		{"alias disagrees with reference", "color.x", model.Token{Value: model.StringValue("{spacing.md}"), Reference: "color.blue.500"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			before := s.Snapshot()

			_, err := s.Create(testContext(t), tt.path, tt.tok)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
			assert.Same(t, before, s.Snapshot(), "nothing published")
		})
	}
}

func TestUpdate(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)

	_, err := s.Update(ctx, "color.missing", primitive("#000"))
	assert.True(t, errors.Is(err, ErrNotFound))

	snap, err := s.Update(ctx, "color.blue.500", primitive("#2563eb"))
	require.NoError(t, err)
	assert.Equal(t, "#2563eb", snap.Tokens["color.primary"].ResolvedValue.String(), "dependents re-resolved")

	snap, err = s.Update(ctx, "color.primary", primitive("#111"))
	require.NoError(t, err)
	assert.Equal(t, model.TierPrimitive, snap.Tokens["color.primary"].Tier, "tier may change")
	assert.Nil(t, snap.Tokens["color.primary"].ResolvedValue)
	assert.Equal(t, []string{"color.primary", "color.blue.500", "spacing.md"}, tokens.Paths(snap.Categories), "position kept")
}

func TestUpdate_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)
	tok := model.Token{Value: model.StringValue("{spacing.md}"), Description: "Gap"}

	first, err := s.Update(ctx, "color.primary", tok)
	require.NoError(t, err)
	second, err := s.Update(ctx, "color.primary", tok)
	require.NoError(t, err)

	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Equal(t, first.Categories, second.Categories)
}

func TestDependents(t *testing.T) {
	s := newStore(t)
	deps, err := s.Dependents("color.blue.500")
	require.NoError(t, err)
	assert.Equal(t, []string{"color.primary"}, deps)

	_, err = s.Dependents("nope.nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReload(t *testing.T) {
	s := newStore(t)
	fresh := NewSnapshot(nil, nil, 0)
	snap, err := s.Reload(testContext(t), func(context.Context) (*Snapshot, error) { return fresh, nil })
	require.NoError(t, err)
	assert.Same(t, fresh, snap)
	assert.Same(t, fresh, s.Snapshot())
	assert.Empty(t, s.Snapshot().Tokens)

	before := s.Snapshot()
	_, err = s.Reload(testContext(t), func(context.Context) (*Snapshot, error) { return nil, errors.New("source gone") })
	assert.Error(t, err)
	assert.Same(t, before, s.Snapshot(), "failed reload keeps the current catalog")
}

func TestReload_MutationWaitsForLoad(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)
	fresh := NewSnapshot(nil, nil, 0)

	loading := make(chan struct{})
	release := make(chan struct{})
	reloaded := make(chan error, 1)
	go func() {
		_, err := s.Reload(ctx, func(context.Context) (*Snapshot, error) {
			close(loading)
			<-release
			return fresh, nil
		})
		reloaded <- err
	}()
	<-loading

	created := make(chan error, 1)
	go func() {
		_, err := s.Create(ctx, "size.lg", primitive("24px"))
		created <- err
	}()

	select {
	case err := <-created:
		close(release)
		t.Fatalf("create committed while the source was being read: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-reloaded)
	require.NoError(t, <-created)

	snap := s.Snapshot()
	assert.Contains(t, snap.Tokens, "size.lg", "mutation applied on top of the reloaded catalog")
	assert.NotContains(t, snap.Tokens, "color.primary")
}

type failingPersister struct{}

func (failingPersister) Persist(context.Context, *Snapshot, *Snapshot) error {
	return errors.New("disk full")
}

func TestMutation_PersistFailureCommitsNothing(t *testing.T) {
	s := newStore(t, WithPersister(failingPersister{}))
	ctx := testContext(t)
	before := s.Snapshot()

	_, err := s.Create(ctx, "color.link", model.Token{Reference: "color.blue.500"})
	assert.True(t, errors.Is(err, ErrPersist))
	_, err = s.Update(ctx, "spacing.md", primitive("12px"))
	assert.True(t, errors.Is(err, ErrPersist))
	_, err = s.Delete(ctx, "spacing.md")
	assert.True(t, errors.Is(err, ErrPersist))

	assert.Same(t, before, s.Snapshot())
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := newStore(t)
	ctx := testContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, fmt.Sprintf("size.s%d", i), primitive(fmt.Sprintf("%dpx", i)))
			assert.NoError(t, err)
			snap := s.Snapshot()
			assert.Equal(t, len(snap.Tokens), len(tokens.Paths(snap.Categories)), "reader sees a consistent snapshot")
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Tokens, 3+32)
	require.Len(t, snap.Categories, 3)
	assert.Equal(t, "size", snap.Categories[2].Key)
	assert.Len(t, snap.Categories[2].Tokens, 32)
}

func TestFilePersister_Directory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tokens/color.yaml", []byte("blue:\n  500: { value: \"#3b82f6\" }\nprimary: { value: \"{color.blue.500}\" }\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "tokens/spacing.json", []byte(`{"md": {"value": 8}}`), 0o644))
	ctx := testContext(t)

	result, err := tokens.NewParser(fs).Parse(ctx, "tokens")
	require.NoError(t, err)
	persister, err := NewFilePersister(fs, "tokens")
	require.NoError(t, err)
	s := New(NewSnapshot(result.Categories, result.Warnings, 0), WithPersister(persister))

	_, err = s.Create(ctx, "spacing.lg", model.Token{Value: model.NumberValue(24)})
	require.NoError(t, err)
	_, err = s.Create(ctx, "radius.sm", primitive("2px"))
	require.NoError(t, err)

	reloaded, err := tokens.NewParser(fs).Parse(ctx, "tokens")
	require.NoError(t, err)
	assert.Empty(t, reloaded.Warnings)
	assert.Equal(t, []string{"color.primary", "color.blue.500", "radius.sm", "spacing.md", "spacing.lg"}, tokens.Paths(reloaded.Categories))
	n, ok := reloaded.Tokens["spacing.lg"].Value.Number()
	require.True(t, ok)
	assert.Equal(t, float64(24), n)
	assert.Equal(t, "color.blue.500", reloaded.Tokens["color.primary"].Reference)

	data, err := afero.ReadFile(fs, "tokens/spacing.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"md": {"value": 8}, "lg": {"value": 24}}`, string(data), "existing file keeps its format")
	exists, err := afero.Exists(fs, "tokens/radius.yaml")
	require.NoError(t, err)
	assert.True(t, exists, "new category uses the directory format")

	_, err = s.Delete(ctx, "radius.sm")
	require.NoError(t, err)
	exists, err = afero.Exists(fs, "tokens/radius.yaml")
	require.NoError(t, err)
	assert.False(t, exists, "emptied category file removed")

	entries, err := afero.ReadDir(fs, "tokens")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestFilePersister_SingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tokens.json", []byte(`{"color": {"red": {"value": "#f00"}}}`), 0o644))
	ctx := testContext(t)

	result, err := tokens.NewParser(fs).Parse(ctx, "tokens.json")
	require.NoError(t, err)
	persister, err := NewFilePersister(fs, "tokens.json")
	require.NoError(t, err)
	s := New(NewSnapshot(result.Categories, nil, 0), WithPersister(persister))

	_, err = s.Update(ctx, "color.red", model.Token{Value: model.StringValue("#ef4444"), Description: "Danger"})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "tokens.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"color": {"red": {"value": "#ef4444", "description": "Danger"}}}`, string(data))
}

func TestFilePersister_LeavesUnparsedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	brokenColors := `{"red": `
	brokenRadius := "sm: { value: 2px\n"
	require.NoError(t, afero.WriteFile(fs, "tokens/colors.json", []byte(brokenColors), 0o644))
	require.NoError(t, afero.WriteFile(fs, "tokens/colors.yaml", []byte("blue: { value: \"#00f\" }\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "tokens/radius.yaml", []byte(brokenRadius), 0o644))
	ctx := testContext(t)

	result, err := tokens.NewParser(fs).Parse(ctx, "tokens")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 2)
	persister, err := NewFilePersister(fs, "tokens")
	require.NoError(t, err)
	s := New(NewSnapshot(result.Categories, result.Warnings, 0), WithPersister(persister))

	_, err = s.Create(ctx, "colors.red", primitive("#f00"))
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "tokens/colors.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "red", "written to the file that loaded the category")

	before := s.Snapshot()
	_, err = s.Create(ctx, "radius.sm", primitive("4px"))
	assert.True(t, errors.Is(err, ErrPersist))
	assert.ErrorContains(t, err, "radius.yaml")
	assert.Same(t, before, s.Snapshot())

	for file, want := range map[string]string{"tokens/colors.json": brokenColors, "tokens/radius.yaml": brokenRadius} {
		data, err := afero.ReadFile(fs, file)
		require.NoError(t, err)
		assert.Equal(t, want, string(data), file)
	}
	exists, err := afero.Exists(fs, "tokens/radius.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilePersister_KeepsIgnoredReference(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := "odd: { value: \"#111\", tier: primitive, reference: color.blue }\n"
	require.NoError(t, afero.WriteFile(fs, "tokens.yaml", []byte("color:\n  blue: { value: \"#00f\" }\n  "+src), 0o644))
	ctx := testContext(t)

	result, err := tokens.NewParser(fs).Parse(ctx, "tokens.yaml")
	require.NoError(t, err)
	persister, err := NewFilePersister(fs, "tokens.yaml")
	require.NoError(t, err)
	s := New(NewSnapshot(result.Categories, result.Warnings, 0), WithPersister(persister))

	_, err = s.Create(ctx, "spacing.md", model.Token{Value: model.NumberValue(8)})
	require.NoError(t, err)

	reloaded, err := tokens.NewParser(fs).Parse(ctx, "tokens.yaml")
	require.NoError(t, err)
	odd := reloaded.Tokens["color.odd"]
	assert.Equal(t, model.TierPrimitive, odd.Tier)
	assert.Equal(t, "color.blue", odd.DroppedReference, "authored reference survives an unrelated write")
	require.Len(t, reloaded.Warnings, 1)
	assert.True(t, errors.Is(reloaded.Warnings[0], tokens.ErrTierConflict))
}

func TestCreate_AliasShapedPrimitiveSurvivesPersist(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tokens.yaml", []byte(catalog), 0o644))
	ctx := testContext(t)

	result, err := tokens.NewParser(fs).Parse(ctx, "tokens.yaml")
	require.NoError(t, err)
	persister, err := NewFilePersister(fs, "tokens.yaml")
	require.NoError(t, err)
	s := New(NewSnapshot(result.Categories, result.Warnings, 0), WithPersister(persister))

	snap, err := s.Create(ctx, "color.literal", model.Token{Value: model.StringValue("{color.blue.500}"), Tier: model.TierPrimitive})
	require.NoError(t, err)
	assert.Equal(t, model.TierPrimitive, snap.Tokens["color.literal"].Tier)

	reloaded, err := tokens.NewParser(fs).Parse(ctx, "tokens.yaml")
	require.NoError(t, err)
	assert.Equal(t, model.TierPrimitive, reloaded.Tokens["color.literal"].Tier)
	assert.Empty(t, reloaded.Tokens["color.literal"].Reference)
}

func TestNewFilePersister_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewFilePersister(fs, "missing")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "tokens.toml", []byte(""), 0o644))
	_, err = NewFilePersister(fs, "tokens.toml")
	assert.Error(t, err)
}
