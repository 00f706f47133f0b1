package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mode classifies a session as consumer or business.
type Mode string

const (
	ModeB2C Mode = "b2c"
	ModeB2B Mode = "b2b"

	// ModeBoth is only valid on action definitions, never on sessions.
	ModeBoth Mode = "both"
)

// Severity grades a security verdict.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for comparison.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// SessionContext carries the commerce context a session operates in.
type SessionContext struct {
	CustomerID string `json:"customerId,omitempty"`
	Currency   string `json:"currency"`
	Locale     string `json:"locale"`
}

// CartItem is a single line in the cart.
type CartItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

// Cart holds the items and derived totals for a session.
type Cart struct {
	Items           []CartItem `json:"items"`
	Subtotal        float64    `json:"subtotal"`
	DiscountPercent float64    `json:"discountPercent,omitempty"`
	Total           float64    `json:"total"`
}

// ComparisonEntry is a product pinned to the comparison list.
type ComparisonEntry struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// SecurityCounters tracks per-session security posture. Violations depress the
// trust score, which in turn depresses the session's effective rate limit.
type SecurityCounters struct {
	Violations int     `json:"violations"`
	TrustScore float64 `json:"trustScore"`
}

// Message is a single turn in the session transcript.
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the mutable conversation and commerce context. It is mutated
// exclusively by the command reducer; every other component reads it.
type SessionState struct {
	ID               string            `json:"id"`
	Mode             Mode              `json:"mode"`
	Context          SessionContext    `json:"context"`
	Cart             Cart              `json:"cart"`
	Comparison       []ComparisonEntry `json:"comparison,omitempty"`
	Security         SecurityCounters  `json:"security"`
	Messages         []Message         `json:"messages,omitempty"`
	AvailableActions []string          `json:"availableActions,omitempty"`
	LastError        string            `json:"lastError,omitempty"`
	ActiveBulkJobID  string            `json:"activeBulkJobId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewSession creates a fresh session. Mode is fixed for the session's lifetime;
// no command can change it.
func NewSession(mode Mode, sctx SessionContext) *SessionState {
	if sctx.Currency == "" {
		sctx.Currency = "USD"
	}
	if sctx.Locale == "" {
		sctx.Locale = "en-US"
	}
	now := time.Now()
	return &SessionState{
		ID:        uuid.New().String(),
		Mode:      mode,
		Context:   sctx,
		Security:  SecurityCounters{TrustScore: 1.0},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session state. The reducer applies commands
// to a clone so a failed apply never leaves the original half-mutated.
func (s *SessionState) Clone() *SessionState {
	out := *s
	out.Cart.Items = append([]CartItem(nil), s.Cart.Items...)
	out.Comparison = append([]ComparisonEntry(nil), s.Comparison...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.AvailableActions = append([]string(nil), s.AvailableActions...)
	return &out
}

// CartQuantity returns the quantity of the given SKU already in the cart.
func (s *SessionState) CartQuantity(sku string) int {
	for _, it := range s.Cart.Items {
		if it.SKU == sku {
			return it.Quantity
		}
	}
	return 0
}
