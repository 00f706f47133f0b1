// Package udl defines the Unified Data Layer: the abstracted commerce backend
// the engine calls by name with typed arguments. Every capability is a
// required method on the contract; implementations return normalized results
// and never leak platform-specific shapes.
package udl

import (
	"context"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// Method names, used for required-capability declarations on action
// definitions and for error reporting.
const (
	MethodSearchProducts  = "searchProducts"
	MethodGetProduct      = "getProduct"
	MethodGetAvailability = "getAvailability"
	MethodGetPricing      = "getPricing"
	MethodGetAlternatives = "getAlternatives"
	MethodGetCustomer     = "getCustomer"
	MethodGetOrders       = "getOrders"
)

// SearchQuery narrows a product search.
type SearchQuery struct {
	Text     string
	Category string
	MaxPrice float64
	Limit    int
}

// DataLayer is the stable commerce backend contract.
type DataLayer interface {
	// SearchProducts returns products matching the query.
	SearchProducts(ctx context.Context, q SearchQuery) ([]domain.Product, error)

	// GetProduct returns the product for a SKU, or a NotFoundError.
	GetProduct(ctx context.Context, sku string) (*domain.Product, error)

	// GetAvailability returns current stock for a SKU.
	GetAvailability(ctx context.Context, sku string) (*domain.Availability, error)

	// GetPricing returns a quantity-aware price quote, applying volume tiers
	// for b2b customers.
	GetPricing(ctx context.Context, sku string, quantity int, mode domain.Mode) (*domain.PriceQuote, error)

	// GetAlternatives suggests substitute products for a SKU.
	GetAlternatives(ctx context.Context, sku string, limit int) ([]domain.Product, error)

	// GetCustomer returns the customer record.
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)

	// GetOrders returns recent orders for a customer.
	GetOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}
