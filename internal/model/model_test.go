package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestValue_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
		out  string
	}{
		{"string", `"#3b82f6"`, StringValue("#3b82f6"), `"#3b82f6"`},
		{"integer", `16`, NumberValue(16), `16`},
		{"float", `1.5`, NumberValue(1.5), `1.5`},
		{"null", `null`, Value{}, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.True(t, tt.want.Equal(v), "got %#v", v)

			data, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.out, string(data))
		})
	}
}

func TestValue_RejectsObjects(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"a":1}`), &v)
	assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "500", NumberValue(500).String())
	assert.Equal(t, "0.25", NumberValue(0.25).String())
	assert.Equal(t, "1rem", StringValue("1rem").String())
	assert.Equal(t, "", Value{}.String())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("Semantic")
	require.NoError(t, err)
	assert.Equal(t, TierSemantic, tier)

	tier, err = ParseTier(" primitive ")
	require.NoError(t, err)
	assert.Equal(t, TierPrimitive, tier)

	_, err = ParseTier("derived")
	assert.True(t, errors.Is(err, ErrUnknownTier))
}

func TestTokenMap_Meta(t *testing.T) {
	m := TokenMap{
		"colors.blue.500": {Value: StringValue("#3b82f6"), Tier: TierPrimitive},
		"colors.red.500":  {Value: StringValue("#ef4444"), Tier: TierPrimitive},
		"semantic.danger": {Value: StringValue("{colors.red.500}"), Tier: TierSemantic, Reference: "colors.red.500"},
	}

	assert.Equal(t, Meta{TokenCount: 3, PrimitiveCount: 2, SemanticCount: 1}, m.Meta())

	clone := m.Clone()
	delete(clone, "colors.red.500")
	assert.Len(t, m, 3)
}

func TestTokenSet_MarshalJSON_PreservesOrder(t *testing.T) {
	set := TokenSet{
		{Name: "900", Token: Token{Value: StringValue("#1e3a8a"), Tier: TierPrimitive}},
		{Name: "100", Token: Token{Value: StringValue("#dbeafe"), Tier: TierPrimitive}},
	}

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.Equal(t, `{"900":{"value":"#1e3a8a","tier":"primitive"},"100":{"value":"#dbeafe","tier":"primitive"}}`, string(data))

	tok, ok := set.Get("100")
	require.True(t, ok)
	assert.Equal(t, "#dbeafe", tok.Value.String())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Source.Path = ""
	assert.True(t, errors.Is(cfg.Validate(), ErrSourceEmpty))

	cfg = DefaultConfig()
	cfg.Resolver.MaxDepth = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrMaxDepthInvalid))

	cfg = DefaultConfig()
	cfg.Concurrency.Workers = -1
	assert.True(t, errors.Is(cfg.Validate(), ErrWorkersInvalid))
}

func TestUsageIndex_Count(t *testing.T) {
	idx := UsageIndex{
		"colors.blue.500": {
			{ComponentPath: "Button.tsx", Matches: []UsageMatch{{Line: 1}, {Line: 4}}},
			{ComponentPath: "Card.tsx", Matches: []UsageMatch{{Line: 2}}},
		},
	}
	assert.Equal(t, 3, idx.Count("colors.blue.500"))
	assert.Equal(t, 0, idx.Count("missing"))
}
