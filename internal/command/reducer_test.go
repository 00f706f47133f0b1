package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopclerk/shopclerk/internal/domain"
)

func newState() *domain.SessionState {
	return domain.NewSession(domain.ModeB2C, domain.SessionContext{CustomerID: "CUST-1"})
}

func TestApply_CartLifecycle(t *testing.T) {
	state := newState()

	cmds := []Command{
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "WID-100", Name: "Widget Classic", Quantity: 2, UnitPrice: 9.99}},
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "GAD-010", Name: "Gadget Mini", Quantity: 1, UnitPrice: 14.50}},
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "WID-100", Name: "Widget Classic", Quantity: 3, UnitPrice: 9.99}},
	}
	next, err := Apply(state, cmds)
	require.NoError(t, err)

	require.Len(t, next.Cart.Items, 2)
	assert.Equal(t, 5, next.Cart.Items[0].Quantity) // merged into one line
	assert.InDelta(t, 49.95, next.Cart.Items[0].LineTotal, 0.001)
	assert.InDelta(t, 64.45, next.Cart.Subtotal, 0.001)
	assert.InDelta(t, 64.45, next.Cart.Total, 0.001)

	// original untouched
	assert.Empty(t, state.Cart.Items)

	next, err = Apply(next, []Command{
		{Type: TypeApplyDiscount, ApplyDiscount: &ApplyDiscountPayload{Percent: 10}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 58.01, next.Cart.Total, 0.001)

	next, err = Apply(next, []Command{
		{Type: TypeRemoveCartItem, RemoveCartItem: &RemoveCartItemPayload{SKU: "GAD-010"}},
		{Type: TypeUpdateCartItem, UpdateCartItem: &UpdateCartItemPayload{SKU: "WID-100", Quantity: 0}},
	})
	require.NoError(t, err)
	assert.Empty(t, next.Cart.Items)
	assert.Zero(t, next.Cart.Subtotal)
}

func TestApply_UnknownTypeIsConfigurationError(t *testing.T) {
	state := newState()

	_, err := Apply(state, []Command{{Type: "SET_MODE"}})
	require.Error(t, err)

	var cerr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestApply_FailedApplyLeavesStateUntouched(t *testing.T) {
	state := newState()

	_, err := Apply(state, []Command{
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "WID-100", Name: "Widget", Quantity: 1, UnitPrice: 5}},
		{Type: "NOT_A_COMMAND"},
	})
	require.Error(t, err)
	assert.Empty(t, state.Cart.Items)
}

func TestApply_Deterministic(t *testing.T) {
	cmds := []Command{
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "A", Name: "A", Quantity: 3, UnitPrice: 1.10}},
		{Type: TypeApplyDiscount, ApplyDiscount: &ApplyDiscountPayload{Percent: 15}},
		{Type: TypeAddComparison, AddComparison: &domain.ComparisonEntry{SKU: "B", Name: "B", Price: 2}},
		NewSetError("boom"),
		{Type: TypeClearError},
		{Type: TypeRecordViolation, RecordViolation: &RecordViolationPayload{Layer: "pattern", Severity: domain.SeverityMedium}},
	}

	base := newState()
	a, err := Apply(base, cmds)
	require.NoError(t, err)
	b, err := Apply(base, cmds)
	require.NoError(t, err)

	aj, err := json.Marshal(a)
	require.NoError(t, err)
	bj, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(aj), string(bj))
}

func TestApply_ViolationsDecayTrustScore(t *testing.T) {
	state := newState()
	v := Command{Type: TypeRecordViolation, RecordViolation: &RecordViolationPayload{Layer: "intent", Severity: domain.SeverityMedium}}

	next := state
	var err error
	for i := 0; i < 12; i++ {
		next, err = Apply(next, []Command{v})
		require.NoError(t, err)
	}

	assert.Equal(t, 12, next.Security.Violations)
	assert.InDelta(t, 0.1, next.Security.TrustScore, 0.001) // floor, never below
}

func TestApply_BulkJobMarkers(t *testing.T) {
	state := newState()

	next, err := Apply(state, []Command{
		{Type: TypeBulkStarted, BulkStarted: &BulkStartedPayload{JobID: "job-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", next.ActiveBulkJobID)

	next, err = Apply(next, []Command{
		{Type: TypeBulkSummary, BulkSummary: &domain.BulkSummary{JobID: "job-1", Status: domain.BulkCompleted}},
	})
	require.NoError(t, err)
	assert.Empty(t, next.ActiveBulkJobID)
}

func TestCommand_RoundTripsThroughJSON(t *testing.T) {
	in := []Command{
		{Type: TypeAddCartItem, AddCartItem: &AddCartItemPayload{SKU: "WID-100", Name: "Widget", Quantity: 2, UnitPrice: 9.99}},
		NewSetError("out of stock"),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Command
	require.NoError(t, json.Unmarshal(data, &out))

	// replaying the deserialized stream yields the same state
	a, err := Apply(newStateFixed(), in)
	require.NoError(t, err)
	b, err := Apply(newStateFixed(), out)
	require.NoError(t, err)
	assert.Equal(t, a.Cart, b.Cart)
	assert.Equal(t, a.LastError, b.LastError)
}

// newStateFixed returns states with identical identity so replays compare equal.
func newStateFixed() *domain.SessionState {
	s := domain.NewSession(domain.ModeB2C, domain.SessionContext{})
	s.ID = "fixed"
	return s
}
