package udl

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// FakeDataLayer is a seedable in-memory DataLayer used by the CLI demo and
// tests. It is an explicit collaborator, never a silent substitute for a real
// backend.
type FakeDataLayer struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	stock     map[string]int
	customers map[string]domain.Customer
	orders    map[string][]domain.Order

	// FailWith, when set for a method name, makes that method return the
	// error once per recorded call (for failure-injection tests).
	FailWith map[string]error

	// Calls counts invocations per method name.
	Calls map[string]int
}

// NewFakeDataLayer creates an empty fake backend.
func NewFakeDataLayer() *FakeDataLayer {
	return &FakeDataLayer{
		products:  make(map[string]domain.Product),
		stock:     make(map[string]int),
		customers: make(map[string]domain.Customer),
		orders:    make(map[string][]domain.Order),
		FailWith:  make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// Seed adds a product with the given stock level.
func (f *FakeDataLayer) Seed(p domain.Product, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.SKU] = p
	f.stock[p.SKU] = stock
}

// SeedCustomer adds a customer record.
func (f *FakeDataLayer) SeedCustomer(c domain.Customer, orders []domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.ID] = c
	f.orders[c.ID] = orders
}

// SeedDemo loads a small demo catalog.
func (f *FakeDataLayer) SeedDemo() {
	demo := []struct {
		p     domain.Product
		stock int
	}{
		{domain.Product{SKU: "WID-100", Name: "Widget Classic", Description: "The original widget", Price: 9.99, Currency: "USD", Categories: []string{"widgets"}}, 500},
		{domain.Product{SKU: "WID-200", Name: "Widget Pro", Description: "Widget with pro features", Price: 24.99, Currency: "USD", Categories: []string{"widgets"}}, 120},
		{domain.Product{SKU: "WID-300", Name: "Widget Max", Description: "Industrial-grade widget", Price: 49.99, Currency: "USD", Categories: []string{"widgets"}}, 8},
		{domain.Product{SKU: "GAD-010", Name: "Gadget Mini", Description: "Pocket-size gadget", Price: 14.50, Currency: "USD", Categories: []string{"gadgets"}}, 300},
		{domain.Product{SKU: "GAD-020", Name: "Gadget Plus", Description: "Larger gadget", Price: 34.00, Currency: "USD", Categories: []string{"gadgets"}}, 0},
	}
	for _, d := range demo {
		f.Seed(d.p, d.stock)
	}
	f.SeedCustomer(domain.Customer{ID: "CUST-1", Name: "Demo Buyer", Mode: domain.ModeB2C, Currency: "USD"}, []domain.Order{
		{ID: "ORD-1", Status: "delivered", Total: 34.48, Items: 2},
	})
	f.SeedCustomer(domain.Customer{ID: "ACME-1", Name: "Acme Procurement", Mode: domain.ModeB2B, Company: "Acme Corp", Currency: "USD"}, []domain.Order{
		{ID: "ORD-2", Status: "processing", Total: 2499.00, Items: 100},
	})
}

// CallCount returns the number of recorded calls for a method.
func (f *FakeDataLayer) CallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.Calls[method]
}

// TotalCalls returns the number of recorded calls across all methods.
func (f *FakeDataLayer) TotalCalls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	total := 0
	for _, n := range f.Calls {
		total += n
	}
	return total
}

// record counts the call and pops any injected failure for the method.
func (f *FakeDataLayer) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[method]++
	if err, ok := f.FailWith[method]; ok && err != nil {
		delete(f.FailWith, method)
		return &domain.UpstreamError{Method: method, Err: err}
	}
	return nil
}

func (f *FakeDataLayer) SearchProducts(ctx context.Context, q SearchQuery) ([]domain.Product, error) {
	if err := f.record(MethodSearchProducts); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	text := strings.ToLower(q.Text)
	var out []domain.Product
	for _, p := range f.products {
		if text != "" && !strings.Contains(strings.ToLower(p.Name), text) &&
			!strings.Contains(strings.ToLower(p.Description), text) {
			continue
		}
		if q.Category != "" && !containsFold(p.Categories, q.Category) {
			continue
		}
		if q.MaxPrice > 0 && p.Price > q.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *FakeDataLayer) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	if err := f.record(MethodGetProduct); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.products[sku]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: sku}
	}
	return &p, nil
}

func (f *FakeDataLayer) GetAvailability(ctx context.Context, sku string) (*domain.Availability, error) {
	if err := f.record(MethodGetAvailability); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.products[sku]; !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: sku}
	}
	return &domain.Availability{SKU: sku, Available: f.stock[sku]}, nil
}

// b2b volume tiers: unit discount by quantity.
var volumeTiers = []struct {
	min     int
	percent float64
	name    string
}{
	{1000, 15, "platinum"},
	{250, 10, "gold"},
	{50, 5, "silver"},
}

func (f *FakeDataLayer) GetPricing(ctx context.Context, sku string, quantity int, mode domain.Mode) (*domain.PriceQuote, error) {
	if err := f.record(MethodGetPricing); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.products[sku]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: sku}
	}
	if quantity < 1 {
		return nil, &domain.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	quote := &domain.PriceQuote{
		SKU:       sku,
		Quantity:  quantity,
		UnitPrice: p.Price,
		Total:     p.Price * float64(quantity),
	}
	if mode == domain.ModeB2B {
		for _, t := range volumeTiers {
			if quantity >= t.min {
				listTotal := quote.Total
				quote.UnitPrice = p.Price * (1 - t.percent/100)
				quote.Total = quote.UnitPrice * float64(quantity)
				quote.Savings = listTotal - quote.Total
				quote.Tier = t.name
				break
			}
		}
	}
	return quote, nil
}

func (f *FakeDataLayer) GetAlternatives(ctx context.Context, sku string, limit int) ([]domain.Product, error) {
	if err := f.record(MethodGetAlternatives); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	base, ok := f.products[sku]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: sku}
	}

	var out []domain.Product
	for _, p := range f.products {
		if p.SKU == sku || f.stock[p.SKU] == 0 {
			continue
		}
		if shareCategory(base.Categories, p.Categories) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeDataLayer) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if err := f.record(MethodGetCustomer); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "customer", ID: id}
	}
	return &c, nil
}

func (f *FakeDataLayer) GetOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if err := f.record(MethodGetOrders); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	orders := f.orders[customerID]
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return append([]domain.Order(nil), orders...), nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func shareCategory(a, b []string) bool {
	for _, x := range a {
		if containsFold(b, x) {
			return true
		}
	}
	return false
}
