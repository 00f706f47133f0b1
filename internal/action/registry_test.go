package action

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func newCatalogRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(testLogger())
	r.MustRegister(Catalog()...)
	return r
}

func TestCatalogRegistersCleanly(t *testing.T) {
	r := newCatalogRegistry(t)
	assert.Equal(t, len(Catalog()), r.Len())
}

func TestResolveReturnsRegisteredDefinition(t *testing.T) {
	r := newCatalogRegistry(t)
	def, err := r.Resolve("addToCart")
	require.NoError(t, err)
	assert.Equal(t, "addToCart", def.ID)
	assert.Equal(t, "cart", def.Category)
	assert.True(t, def.Mutating)
}

func TestResolveUnknownIDIsNotFound(t *testing.T) {
	r := newCatalogRegistry(t)
	_, err := r.Resolve("teleportInventory")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "action", nf.Kind)
}

func TestRegisterRejectsMalformedDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty id", Definition{Mode: domain.ModeBoth}},
		{"invalid mode", Definition{ID: "x", Mode: domain.Mode("wholesale")}},
		{"empty param name", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{{Type: ParamString}}}},
		{"duplicate param", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamString}, {Name: "a", Type: ParamString},
		}}},
		{"unknown param type", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamType("decimal")},
		}}},
		{"bad pattern", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamString, Pattern: "("},
		}}},
		{"enum on int", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamInt, Enum: []string{"1"}},
		}}},
		{"required with default", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamInt, Required: true, Default: 1},
		}}},
		{"default of wrong type", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamInt, Default: "five"},
		}}},
		{"unknown suggestion target", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamString, Suggests: "ghost"},
		}}},
		{"circular suggestions", Definition{ID: "x", Mode: domain.ModeBoth, Params: []ParamSpec{
			{Name: "a", Type: ParamString, Suggests: "b"},
			{Name: "b", Type: ParamString, Suggests: "a"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(testLogger())
			err := r.Register(tt.def)
			var ce *domain.ConfigurationError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := NewRegistry(testLogger())
	def := Definition{ID: "dup", Mode: domain.ModeBoth}
	require.NoError(t, r.Register(def))
	err := r.Register(def)
	var ce *domain.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "dup")
}

func TestListForModeFilters(t *testing.T) {
	r := newCatalogRegistry(t)

	b2cIDs := map[string]bool{}
	for def := range r.ListForMode(domain.ModeB2C) {
		b2cIDs[def.ID] = true
	}
	assert.True(t, b2cIDs["searchProducts"])
	assert.True(t, b2cIDs["addToCart"])
	assert.False(t, b2cIDs["applyDiscount"])
	assert.False(t, b2cIDs["requestQuote"])
	assert.False(t, b2cIDs["bulkOrder"])

	b2bCount := 0
	for range r.ListForMode(domain.ModeB2B) {
		b2bCount++
	}
	assert.Equal(t, len(Catalog()), b2bCount)
}

func TestListForModeIsRestartable(t *testing.T) {
	r := newCatalogRegistry(t)
	seq := r.ListForMode(domain.ModeB2B)

	// partial consumption must not poison a later full pass
	for def := range seq {
		if def.ID == "addToCart" {
			break
		}
	}

	var first, second []string
	for def := range seq {
		first = append(first, def.ID)
	}
	for def := range seq {
		second = append(second, def.ID)
	}
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}
