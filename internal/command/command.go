// Package command defines the closed set of state-delta commands and the
// reducer that applies them. Nothing else in the engine mutates session state.
package command

import (
	"time"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// Type tags a command variant. The set is closed: the reducer rejects any tag
// it does not know with a ConfigurationError, which catches vocabulary drift
// between executor and reducer.
type Type string

const (
	TypeAddCartItem         Type = "ADD_CART_ITEM"
	TypeUpdateCartItem      Type = "UPDATE_CART_ITEM"
	TypeRemoveCartItem      Type = "REMOVE_CART_ITEM"
	TypeClearCart           Type = "CLEAR_CART"
	TypeApplyDiscount       Type = "APPLY_DISCOUNT"
	TypeAddComparison       Type = "ADD_COMPARISON"
	TypeClearComparison     Type = "CLEAR_COMPARISON"
	TypeSetContext          Type = "SET_CONTEXT"
	TypeSetAvailableActions Type = "SET_AVAILABLE_ACTIONS"
	TypeSetError            Type = "SET_ERROR"
	TypeClearError          Type = "CLEAR_ERROR"
	TypeAddMessage          Type = "ADD_MESSAGE"
	TypeRecordViolation     Type = "RECORD_VIOLATION"
	TypeBulkStarted         Type = "BULK_STARTED"
	TypeBulkSummary         Type = "BULK_SUMMARY"
)

// Command is an immutable, JSON-serializable description of a state delta.
// Exactly one payload field matching Type is set. Applying it is the only side
// effect it ever has.
type Command struct {
	Type Type `json:"type"`

	AddCartItem         *AddCartItemPayload     `json:"addCartItem,omitempty"`
	UpdateCartItem      *UpdateCartItemPayload  `json:"updateCartItem,omitempty"`
	RemoveCartItem      *RemoveCartItemPayload  `json:"removeCartItem,omitempty"`
	ApplyDiscount       *ApplyDiscountPayload   `json:"applyDiscount,omitempty"`
	AddComparison       *domain.ComparisonEntry `json:"addComparison,omitempty"`
	SetContext          *domain.SessionContext  `json:"setContext,omitempty"`
	SetAvailableActions []string                `json:"setAvailableActions,omitempty"`
	SetError            *SetErrorPayload        `json:"setError,omitempty"`
	AddMessage          *AddMessagePayload      `json:"addMessage,omitempty"`
	RecordViolation     *RecordViolationPayload `json:"recordViolation,omitempty"`
	BulkStarted         *BulkStartedPayload     `json:"bulkStarted,omitempty"`
	BulkSummary         *domain.BulkSummary     `json:"bulkSummary,omitempty"`
}

// AddCartItemPayload adds (or merges) a cart line.
type AddCartItemPayload struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// UpdateCartItemPayload replaces the quantity of an existing line.
type UpdateCartItemPayload struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// RemoveCartItemPayload removes a cart line.
type RemoveCartItemPayload struct {
	SKU string `json:"sku"`
}

// ApplyDiscountPayload sets the cart-level discount percentage.
type ApplyDiscountPayload struct {
	Percent float64 `json:"percent"`
	Reason  string  `json:"reason,omitempty"`
}

// SetErrorPayload records the last user-visible error.
type SetErrorPayload struct {
	Message string `json:"message"`
}

// AddMessagePayload appends a transcript message.
type AddMessagePayload struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// RecordViolationPayload increments the session violation counter and decays
// the trust score.
type RecordViolationPayload struct {
	Layer    string          `json:"layer"`
	Severity domain.Severity `json:"severity"`
}

// BulkStartedPayload marks the session's single active bulk job.
type BulkStartedPayload struct {
	JobID string `json:"jobId"`
}

// Convenience constructors for the command pairs produced on every handled
// error: a SET_ERROR plus a user-safe ADD_MESSAGE.

// NewSetError builds a SET_ERROR command.
func NewSetError(message string) Command {
	return Command{Type: TypeSetError, SetError: &SetErrorPayload{Message: message}}
}

// NewMessage builds an ADD_MESSAGE command.
func NewMessage(role, content string) Command {
	return Command{Type: TypeAddMessage, AddMessage: &AddMessagePayload{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}}
}

// ErrorPair builds the standard SET_ERROR + ADD_MESSAGE pair carrying a
// user-safe summary.
func ErrorPair(userMessage string) []Command {
	return []Command{
		NewSetError(userMessage),
		NewMessage("assistant", userMessage),
	}
}
