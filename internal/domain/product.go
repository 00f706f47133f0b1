package domain

// Product is a normalized catalog entry as returned by the data layer.
type Product struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Categories  []string `json:"categories,omitempty"`
}

// Availability reports current stock for a SKU.
type Availability struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
}

// PriceQuote is a quantity-aware price, including the tier applied for
// business customers.
type PriceQuote struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Total     float64 `json:"total"`
	Savings   float64 `json:"savings,omitempty"`
	Tier      string  `json:"tier,omitempty"`
}

// Customer is a normalized customer record.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mode     Mode   `json:"mode"`
	Company  string `json:"company,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Order is a past order summary for customer queries.
type Order struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
	Items  int     `json:"items"`
}
