package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopclerk/shopclerk/internal/domain"
)

func mustDef(t *testing.T, id string) Definition {
	t.Helper()
	r := newCatalogRegistry(t)
	def, err := r.Resolve(id)
	require.NoError(t, err)
	return def
}

func TestValidateParamsAccepts(t *testing.T) {
	def := mustDef(t, "searchProducts")

	got, err := ValidateParams(def, map[string]any{
		"query":    "widget",
		"maxPrice": 30.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "widget", got.String("query"))
	assert.Equal(t, 30.0, got.Float("maxPrice"))
	assert.Equal(t, 5, got.Int("limit")) // default filled in
	assert.False(t, got.Has("category"))
}

func TestValidateParamsWholeFloatBecomesInt(t *testing.T) {
	def := mustDef(t, "addToCart")

	// JSON decoding hands over float64 for every number
	got, err := ValidateParams(def, map[string]any{"sku": "WID-100", "quantity": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Int("quantity"))
}

func TestValidateParamsRejects(t *testing.T) {
	addToCart := mustDef(t, "addToCart")
	search := mustDef(t, "searchProducts")
	bulkOrder := mustDef(t, "bulkOrder")

	tests := []struct {
		name  string
		def   Definition
		raw   map[string]any
		field string
	}{
		{"missing required", addToCart, map[string]any{"quantity": 1}, "sku"},
		{"unknown field", addToCart, map[string]any{"sku": "WID-100", "quantity": 1, "giftWrap": true}, "giftWrap"},
		{"fractional int", addToCart, map[string]any{"sku": "WID-100", "quantity": 1.5}, "quantity"},
		{"string for int", addToCart, map[string]any{"sku": "WID-100", "quantity": "2"}, "quantity"},
		{"below min", addToCart, map[string]any{"sku": "WID-100", "quantity": 0}, "quantity"},
		{"pattern mismatch", addToCart, map[string]any{"sku": "../../etc", "quantity": 1}, "sku"},
		{"above max", search, map[string]any{"query": "w", "limit": 26}, "limit"},
		{"enum mismatch", bulkOrder, map[string]any{"csv": "a,1", "priority": "urgent"}, "priority"},
		{"bad object list", bulkOrder, map[string]any{"items": []any{"WID-100"}}, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(tt.def, tt.raw)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateParamsObjectListCoercion(t *testing.T) {
	def := mustDef(t, "bulkOrder")

	got, err := ValidateParams(def, map[string]any{
		"items": []any{
			map[string]any{"sku": "WID-100", "quantity": 5.0},
			map[string]any{"sku": "GAD-010", "quantity": 2.0},
		},
	})
	require.NoError(t, err)
	objs := got.Objects("items")
	require.Len(t, objs, 2)
	assert.Equal(t, "WID-100", objs[0]["sku"])
	assert.Equal(t, "normal", got.String("priority"))
}

func TestValidateParamsNilValueTreatedAsAbsent(t *testing.T) {
	def := mustDef(t, "addToCart")
	_, err := ValidateParams(def, map[string]any{"sku": nil, "quantity": 1})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sku", ve.Field)
}
