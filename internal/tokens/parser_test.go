package tokens

import (
	"context"
	"testing"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	return logger.WithContext(context.Background())
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestParser_DirectoryEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "tokens/colors.json", `{"blue": {"500": {"value": "#3b82f6"}}}`)
	writeFile(t, fs, "tokens/semantic.json", `{"primary": {"value": "{colors.blue.500}", "tier": "semantic", "reference": "colors.blue.500"}}`)

	result, err := NewParser(fs).Parse(testContext(t), "tokens")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	resolved, warnings := Resolve(result.Tokens, 0)
	assert.Empty(t, warnings)

	primary, ok := resolved["semantic.primary"]
	require.True(t, ok)
	require.NotNil(t, primary.ResolvedValue)
	assert.Equal(t, "#3b82f6", primary.ResolvedValue.String())

	require.Len(t, result.Categories, 2)
	assert.Equal(t, "Colors", result.Categories[0].Name)
	assert.Equal(t, "Semantic", result.Categories[1].Name)
	assert.Equal(t, "colors.blue", result.Categories[0].Subcategories[0].Path)
}

func TestParser_DirectorySkipsMalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "tokens/colors.yaml", "blue:\n  500:\n    value: \"#3b82f6\"\n")
	writeFile(t, fs, "tokens/broken.json", `{"a": {"value": `)
	writeFile(t, fs, "tokens/README.md", "not tokens")

	result, err := NewParser(fs).Parse(testContext(t), "tokens")
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "tokens/broken.json", result.Warnings[0].File)
	assert.True(t, errors.Is(result.Warnings[0], ErrMalformed))
	assert.True(t, result.Warnings[0].Skipped)
	assert.Error(t, result.Err())

	assert.Contains(t, result.Tokens, "colors.blue.500")
	assert.Len(t, result.Tokens, 1)
}

func TestParser_DirectoryDuplicateCategory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "tokens/colors.json", `{"red": {"value": "#f00"}}`)
	writeFile(t, fs, "tokens/colors.yaml", "green:\n  value: \"#0f0\"\n")

	result, err := NewParser(fs).Parse(testContext(t), "tokens")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.True(t, errors.Is(result.Warnings[0], ErrDuplicateGroup))
	assert.True(t, result.Warnings[0].Skipped)
	assert.Contains(t, result.Tokens, "colors.red")
	assert.NotContains(t, result.Tokens, "colors.green")
}

func TestParseFile_NestedSingleFile(t *testing.T) {
	src := `
spacing:
  small: { value: 4, type: dimension }
  large: { value: 16.5 }
typography:
  fontSize:
    body: { value: 1rem, description: Body copy }
  empty-group:
    nothing: { note: no value here }
`
	result, err := ParseFile("tokens.yaml", []byte(src))
	require.NoError(t, err)

	small := result.Tokens["spacing.small"]
	n, ok := small.Value.Number()
	require.True(t, ok)
	assert.Equal(t, float64(4), n)
	assert.Equal(t, "dimension", small.Type)
	assert.Equal(t, model.TierPrimitive, small.Tier)

	large := result.Tokens["spacing.large"]
	n, _ = large.Value.Number()
	assert.Equal(t, 16.5, n)

	body := result.Tokens["typography.fontSize.body"]
	assert.Equal(t, "1rem", body.Value.String())
	assert.Equal(t, "Body copy", body.Description)

	require.Len(t, result.Categories, 2)
	typo := result.Categories[1]
	require.Len(t, typo.Subcategories, 1, "empty containers are dropped")
	assert.Equal(t, "Font Size", typo.Subcategories[0].Name)
}

func TestParseFile_LeafRule(t *testing.T) {
	src := `{
  "colors": {
    "flag": {"value": true},
    "nested": {"value": {"value": "#fff"}},
    "quoted": {"value": "500"}
  }
}`
	result, err := ParseFile("tokens.json", []byte(src))
	require.NoError(t, err)

	assert.NotContains(t, result.Tokens, "colors.flag", "boolean value is not a leaf")
	assert.Contains(t, result.Tokens, "colors.nested.value", "object value makes a container")
	assert.Equal(t, model.ValueString, result.Tokens["colors.quoted"].Value.Kind())
}

func TestParseFile_TierInference(t *testing.T) {
	src := `{
  "colors": {"blue": {"value": "#00f"}},
  "semantic": {
    "alias": {"value": "{colors.blue}"},
    "explicit": {"value": "#00f", "reference": "colors.blue"},
    "mistagged": {"value": "#00f", "tier": "primitive", "reference": "colors.blue"}
  }
}`
	result, err := ParseFile("tokens.json", []byte(src))
	require.NoError(t, err)

	alias := result.Tokens["semantic.alias"]
	assert.Equal(t, model.TierSemantic, alias.Tier)
	assert.Equal(t, "colors.blue", alias.Reference)

	explicit := result.Tokens["semantic.explicit"]
	assert.Equal(t, model.TierSemantic, explicit.Tier)

	mistagged := result.Tokens["semantic.mistagged"]
	assert.Equal(t, model.TierPrimitive, mistagged.Tier)
	assert.Empty(t, mistagged.Reference)
	assert.Equal(t, "colors.blue", mistagged.DroppedReference, "kept for write-back")

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "semantic.mistagged", result.Warnings[0].Path)
	assert.True(t, errors.Is(result.Warnings[0], ErrTierConflict))
	assert.False(t, result.Warnings[0].Skipped)
}

func TestParseFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
		path string
	}{
		{"syntax", `{"colors": `, ErrMalformed, ""},
		{"root not mapping", `[1, 2]`, ErrMalformed, ""},
		{"unknown tier", `{"colors": {"red": {"value": "#f00", "tier": "derived"}}}`, ErrInvalidLeaf, "colors.red"},
		{"duplicate key", "colors:\n  red: {value: a}\n  red: {value: b}\n", ErrDuplicateKey, "colors.red"},
		{"dotted key", `{"colors": {"a.b": {"value": "x"}}}`, ErrInvalidKey, "colors.a.b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile("tokens.json", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "tokens.json", pe.File)
			assert.Equal(t, tt.path, pe.Path)
		})
	}
}

func TestParseFile_RootLevelLeafSkipped(t *testing.T) {
	result, err := ParseFile("tokens.json", []byte(`{"orphan": {"value": 1}, "size": {"sm": {"value": 2}}}`))
	require.NoError(t, err)
	assert.Len(t, result.Tokens, 1)
	require.Len(t, result.Warnings, 1)
	assert.True(t, errors.Is(result.Warnings[0], ErrOrphanToken))
}

func TestParseFile_Empty(t *testing.T) {
	result, err := ParseFile("tokens.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Categories)
	assert.Empty(t, result.Tokens)
}

func TestParser_MissingSource(t *testing.T) {
	_, err := NewParser(afero.NewMemMapFs()).Parse(testContext(t), "nope")
	assert.Error(t, err)
}

func TestAliasTarget(t *testing.T) {
	ref, ok := AliasTarget(model.StringValue("{colors.blue.500}"))
	assert.True(t, ok)
	assert.Equal(t, "colors.blue.500", ref)

	for _, v := range []model.Value{
		model.StringValue("#fff"),
		model.StringValue("{}"),
		model.StringValue("{a} {b}"),
		model.NumberValue(3),
	} {
		_, ok := AliasTarget(v)
		assert.False(t, ok, v.String())
	}
}
