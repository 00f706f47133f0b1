package action

import "github.com/shopclerk/shopclerk/internal/domain"

// skuPattern matches catalog SKUs.
const skuPattern = `^[A-Za-z0-9][A-Za-z0-9._-]*$`

func fp(v float64) *float64 { return &v }

// Catalog returns the built-in action definitions. The executor holds a
// handler for every id returned here; drift between the two is a
// ConfigurationError at startup.
func Catalog() []Definition {
	return []Definition{
		{
			ID:          "searchProducts",
			Category:    "discovery",
			Description: "Search the product catalog by text, category, and price cap.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "query", Type: ParamString, Required: true, Description: "free-text search"},
				{Name: "category", Type: ParamString, Description: "restrict to a category"},
				{Name: "maxPrice", Type: ParamFloat, Min: fp(0), Description: "maximum unit price"},
				{Name: "limit", Type: ParamInt, Default: 5, Min: fp(1), Max: fp(25)},
			},
			RequiredMethods: []string{"searchProducts"},
			Hints:           []string{"prefer this for vague product requests"},
		},
		{
			ID:          "getProductDetails",
			Category:    "discovery",
			Description: "Get full details and current stock for one product.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern},
			},
			RequiredMethods: []string{"getProduct", "getAvailability"},
		},
		{
			ID:          "checkAvailability",
			Category:    "discovery",
			Description: "Check current stock for a SKU.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern, Suggests: "quantity"},
				{Name: "quantity", Type: ParamInt, Default: 1, Min: fp(1)},
			},
			RequiredMethods: []string{"getAvailability"},
		},
		{
			ID:          "addToCart",
			Category:    "cart",
			Description: "Add a quantity of a product to the cart.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern, Suggests: "quantity"},
				{Name: "quantity", Type: ParamInt, Required: true, Min: fp(1)},
			},
			RequiredMethods: []string{"getProduct", "getAvailability", "getPricing"},
			Mutating:        true,
		},
		{
			ID:          "updateCartItem",
			Category:    "cart",
			Description: "Change the quantity of a cart line (0 removes it).",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern},
				{Name: "quantity", Type: ParamInt, Required: true, Min: fp(0)},
			},
			Mutating: true,
		},
		{
			ID:          "removeFromCart",
			Category:    "cart",
			Description: "Remove a product from the cart.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern},
			},
			Mutating: true,
		},
		{
			ID:          "clearCart",
			Category:    "cart",
			Description: "Empty the cart.",
			Mode:        domain.ModeBoth,
			Mutating:    true,
		},
		{
			ID:          "applyDiscount",
			Category:    "checkout",
			Description: "Apply a negotiated cart-level discount percentage.",
			Mode:        domain.ModeB2B,
			Params: []ParamSpec{
				{Name: "percent", Type: ParamFloat, Required: true, Min: fp(0), Max: fp(100)},
				{Name: "reason", Type: ParamString},
			},
			Mutating:      true,
			CheckoutClass: true,
		},
		{
			ID:          "addToComparison",
			Category:    "comparison",
			Description: "Pin a product to the comparison list.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern},
			},
			RequiredMethods: []string{"getProduct"},
			Mutating:        true,
		},
		{
			ID:          "clearComparison",
			Category:    "comparison",
			Description: "Clear the comparison list.",
			Mode:        domain.ModeBoth,
			Mutating:    true,
		},
		{
			ID:          "getOrderHistory",
			Category:    "account",
			Description: "List the customer's recent orders.",
			Mode:        domain.ModeBoth,
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInt, Default: 5, Min: fp(1), Max: fp(20)},
			},
			RequiredMethods: []string{"getCustomer", "getOrders"},
		},
		{
			ID:          "requestQuote",
			Category:    "checkout",
			Description: "Get a volume-tiered price quote for a SKU and quantity.",
			Mode:        domain.ModeB2B,
			Params: []ParamSpec{
				{Name: "sku", Type: ParamString, Required: true, Pattern: skuPattern},
				{Name: "quantity", Type: ParamInt, Required: true, Min: fp(1)},
			},
			RequiredMethods: []string{"getPricing"},
			CheckoutClass:   true,
		},
		{
			ID:          "bulkOrder",
			Category:    "checkout",
			Description: "Resolve a bulk order from a structured item list or CSV payload.",
			Mode:        domain.ModeB2B,
			Params: []ParamSpec{
				{Name: "items", Type: ParamObjectList, Description: "list of {sku, quantity}"},
				{Name: "csv", Type: ParamString, Description: "delimited text with sku and quantity columns"},
				{Name: "priority", Type: ParamString, Default: "normal", Enum: []string{"low", "normal", "high"}},
			},
			RequiredMethods: []string{"getProduct", "getAvailability", "getPricing", "getAlternatives"},
			Mutating:        true,
			CheckoutClass:   true,
			Hints:           []string{"exactly one of items or csv must be provided"},
		},
	}
}
