package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shopclerk/shopclerk/internal/bulk"
	"github.com/shopclerk/shopclerk/internal/command"
	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/judge"
	"github.com/shopclerk/shopclerk/internal/logging"
	"github.com/shopclerk/shopclerk/internal/udl"
)

// refusalMessage is the generic text shown for judge blocks. The full reason
// is logged, never echoed.
const refusalMessage = "I can't help with that request."

// BulkRunner resolves a bulk order job. Satisfied by *bulk.Processor.
type BulkRunner interface {
	Process(ctx context.Context, items []domain.BulkOrderRequest, opts bulk.Options) (*domain.BulkJob, error)
}

type handlerFunc func(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error)

// Executor resolves a validated action invocation into state-update commands.
// It owns mode gating, the judge pre-check for mutating actions, the
// per-session rate limit, and the concurrency of data layer calls. Every error
// except a ConfigurationError is resolved locally into a SET_ERROR +
// ADD_MESSAGE command pair; nothing else escapes to the caller.
type Executor struct {
	judge    *judge.Judge
	data     udl.DataLayer
	bulk     BulkRunner
	limits   config.LimitsConfig
	limiter  *SessionLimiter
	retry    udl.RetryPolicy
	handlers map[string]handlerFunc
	log      *logging.Logger
}

// NewExecutor wires an executor over the given collaborators.
func NewExecutor(j *judge.Judge, data udl.DataLayer, bulkRunner BulkRunner, limits config.LimitsConfig, log *logging.Logger) *Executor {
	e := &Executor{
		judge:   j,
		data:    data,
		bulk:    bulkRunner,
		limits:  limits,
		limiter: NewSessionLimiter(limits),
		retry:   udl.DefaultRetryPolicy(),
		log:     log.Sub("executor"),
	}
	e.handlers = map[string]handlerFunc{
		"searchProducts":    e.handleSearchProducts,
		"getProductDetails": e.handleGetProductDetails,
		"checkAvailability": e.handleCheckAvailability,
		"addToCart":         e.handleAddToCart,
		"updateCartItem":    e.handleUpdateCartItem,
		"removeFromCart":    e.handleRemoveFromCart,
		"clearCart":         e.handleClearCart,
		"applyDiscount":     e.handleApplyDiscount,
		"addToComparison":   e.handleAddToComparison,
		"clearComparison":   e.handleClearComparison,
		"getOrderHistory":   e.handleGetOrderHistory,
		"requestQuote":      e.handleRequestQuote,
		"bulkOrder":         e.handleBulkOrder,
	}
	return e
}

// Execute runs one action and returns the commands describing its outcome.
// The returned error is non-nil only for a ConfigurationError, which aborts
// the turn.
func (e *Executor) Execute(ctx context.Context, def Definition, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	log := e.log.WithSession(state.ID)

	// Mode gating happens before any external call.
	if def.Mode != domain.ModeBoth && def.Mode != state.Mode {
		err := &domain.AuthorizationError{ActionID: def.ID, Mode: state.Mode}
		log.Warn().Str("action", def.ID).Str("mode", string(state.Mode)).Msg("mode gate rejected action")
		return e.resolveError(err), nil
	}

	if !e.limiter.Allow(state) {
		log.Warn().Str("action", def.ID).Msg("rate limit exceeded")
		return command.ErrorPair("You're sending requests too quickly. Please slow down and try again."), nil
	}

	var pre []command.Command
	if def.Mutating || def.CheckoutClass {
		r := e.judge.CheckOutcome(outcomeFor(def, params), e.limits.ForMode(string(state.Mode)))
		if !r.Safe {
			if e.judge.Blocked(r) {
				return e.resolveError(&domain.SecurityViolation{Layer: r.Layer, Reason: r.Reason, Severity: r.Severity}), nil
			}
			pre = append(pre, command.Command{Type: command.TypeRecordViolation, RecordViolation: &command.RecordViolationPayload{Layer: r.Layer, Severity: r.Severity}})
		}
	}

	h, ok := e.handlers[def.ID]
	if !ok {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("no handler for action %q", def.ID)}
	}

	cmds, err := h(ctx, params, state)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		log.Error().Err(err).Str("action", def.ID).Msg("action failed")
		return append(pre, e.resolveError(err)...), nil
	}

	log.Debug().Str("action", def.ID).Int("commands", len(cmds)).Msg("action executed")
	return append(pre, cmds...), nil
}

// resolveError converts a caught error into the SET_ERROR + ADD_MESSAGE pair,
// plus a RECORD_VIOLATION for judge blocks. Messages stay user-safe.
func (e *Executor) resolveError(err error) []command.Command {
	var (
		ve *domain.ValidationError
		ae *domain.AuthorizationError
		sv *domain.SecurityViolation
		nf *domain.NotFoundError
		ue *domain.UpstreamError
	)
	switch {
	case errors.As(err, &sv):
		return append(
			[]command.Command{{Type: command.TypeRecordViolation, RecordViolation: &command.RecordViolationPayload{Layer: sv.Layer, Severity: sv.Severity}}},
			command.ErrorPair(refusalMessage)...,
		)
	case errors.As(err, &ve):
		return command.ErrorPair("That request had a problem: " + ve.Error())
	case errors.As(err, &ae):
		return command.ErrorPair("That operation isn't available for this account type.")
	case errors.As(err, &nf):
		return command.ErrorPair(fmt.Sprintf("I couldn't find %s %q.", nf.Kind, nf.ID))
	case errors.As(err, &ue):
		return command.ErrorPair("I'm having trouble reaching the catalog right now. Please try again in a moment.")
	default:
		return command.ErrorPair("Something went wrong handling that request.")
	}
}

// outcomeFor projects validated parameters onto the proposed outcome the
// business-rule layer judges.
func outcomeFor(def Definition, params ValidatedParams) judge.Outcome {
	return judge.Outcome{
		ActionID:        def.ID,
		Quantity:        params.Int("quantity"),
		DiscountPercent: params.Float("percent"),
	}
}

// fetch runs a data layer call under the retry policy, wrapping untyped
// failures as UpstreamError.
func fetch[T any](ctx context.Context, e *Executor, method string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.retry.Do(ctx, func() error {
		v, ferr := fn(ctx)
		if ferr != nil {
			return ferr
		}
		out = v
		return nil
	})
	if err != nil && !isDomainError(err) {
		err = &domain.UpstreamError{Method: method, Err: err}
	}
	return out, err
}

func isDomainError(err error) bool {
	var (
		ve *domain.ValidationError
		ae *domain.AuthorizationError
		nf *domain.NotFoundError
		ue *domain.UpstreamError
		ce *domain.ConfigurationError
	)
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &nf) || errors.As(err, &ue) || errors.As(err, &ce)
}

// --- handlers ---

func (e *Executor) handleSearchProducts(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	q := udl.SearchQuery{
		Text:     params.String("query"),
		Category: params.String("category"),
		MaxPrice: params.Float("maxPrice"),
		Limit:    params.Int("limit"),
	}
	products, err := fetch(ctx, e, udl.MethodSearchProducts, func(c context.Context) ([]domain.Product, error) {
		return e.data.SearchProducts(c, q)
	})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return []command.Command{command.NewMessage("assistant", fmt.Sprintf("I couldn't find anything matching %q.", q.Text))}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d product(s):\n", len(products))
	for _, p := range products {
		fmt.Fprintf(&b, "- %s (%s): %s %.2f\n", p.Name, p.SKU, p.Currency, p.Price)
	}
	return []command.Command{
		{Type: command.TypeClearError},
		command.NewMessage("assistant", strings.TrimSpace(b.String())),
	}, nil
}

func (e *Executor) handleGetProductDetails(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")

	// product and availability are independent lookups
	var product *domain.Product
	var avail *domain.Availability
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := fetch(gctx, e, udl.MethodGetProduct, func(c context.Context) (*domain.Product, error) {
			return e.data.GetProduct(c, sku)
		})
		product = p
		return err
	})
	g.Go(func() error {
		a, err := fetch(gctx, e, udl.MethodGetAvailability, func(c context.Context) (*domain.Availability, error) {
			return e.data.GetAvailability(c, sku)
		})
		avail = a
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("%s (%s): %s — %s %.2f, %d in stock.",
		product.Name, product.SKU, product.Description, product.Currency, product.Price, avail.Available)
	return []command.Command{
		{Type: command.TypeClearError},
		command.NewMessage("assistant", msg),
	}, nil
}

func (e *Executor) handleCheckAvailability(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	qty := params.Int("quantity")

	avail, err := fetch(ctx, e, udl.MethodGetAvailability, func(c context.Context) (*domain.Availability, error) {
		return e.data.GetAvailability(c, sku)
	})
	if err != nil {
		return nil, err
	}

	var msg string
	switch {
	case avail.Available >= qty:
		msg = fmt.Sprintf("%s is in stock: %d available.", sku, avail.Available)
	case avail.Available > 0:
		msg = fmt.Sprintf("Only %d of %s available (you asked about %d).", avail.Available, sku, qty)
	default:
		msg = fmt.Sprintf("%s is currently out of stock.", sku)
	}
	return []command.Command{command.NewMessage("assistant", msg)}, nil
}

func (e *Executor) handleAddToCart(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	qty := params.Int("quantity")

	var product *domain.Product
	var avail *domain.Availability
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := fetch(gctx, e, udl.MethodGetProduct, func(c context.Context) (*domain.Product, error) {
			return e.data.GetProduct(c, sku)
		})
		product = p
		return err
	})
	g.Go(func() error {
		a, err := fetch(gctx, e, udl.MethodGetAvailability, func(c context.Context) (*domain.Availability, error) {
			return e.data.GetAvailability(c, sku)
		})
		avail = a
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if avail.Available < qty {
		alts, altErr := fetch(ctx, e, udl.MethodGetAlternatives, func(c context.Context) ([]domain.Product, error) {
			return e.data.GetAlternatives(c, sku, 3)
		})
		msg := fmt.Sprintf("Only %d of %s in stock, so I didn't add it.", avail.Available, product.Name)
		if altErr == nil && len(alts) > 0 {
			names := make([]string, len(alts))
			for i, a := range alts {
				names[i] = fmt.Sprintf("%s (%s)", a.Name, a.SKU)
			}
			msg += " Alternatives: " + strings.Join(names, ", ") + "."
		}
		return []command.Command{
			command.NewSetError(fmt.Sprintf("insufficient stock for %s", sku)),
			command.NewMessage("assistant", msg),
		}, nil
	}

	// pricing depends on the product existing, so it runs after the fanout
	quote, err := fetch(ctx, e, udl.MethodGetPricing, func(c context.Context) (*domain.PriceQuote, error) {
		return e.data.GetPricing(c, sku, qty, state.Mode)
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Added %d × %s to your cart at %s %.2f each.", qty, product.Name, product.Currency, quote.UnitPrice)
	if quote.Savings > 0 {
		msg += fmt.Sprintf(" Volume tier %q saves you %s %.2f.", quote.Tier, product.Currency, quote.Savings)
	}
	return []command.Command{
		{Type: command.TypeAddCartItem, AddCartItem: &command.AddCartItemPayload{
			SKU:       sku,
			Name:      product.Name,
			Quantity:  qty,
			UnitPrice: quote.UnitPrice,
		}},
		{Type: command.TypeClearError},
		command.NewMessage("assistant", msg),
	}, nil
}

func (e *Executor) handleUpdateCartItem(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	qty := params.Int("quantity")

	if state.CartQuantity(sku) == 0 {
		return nil, &domain.ValidationError{Field: "sku", Message: fmt.Sprintf("%s is not in the cart", sku)}
	}

	msg := fmt.Sprintf("Updated %s to quantity %d.", sku, qty)
	if qty == 0 {
		msg = fmt.Sprintf("Removed %s from your cart.", sku)
	}
	return []command.Command{
		{Type: command.TypeUpdateCartItem, UpdateCartItem: &command.UpdateCartItemPayload{SKU: sku, Quantity: qty}},
		command.NewMessage("assistant", msg),
	}, nil
}

func (e *Executor) handleRemoveFromCart(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	if state.CartQuantity(sku) == 0 {
		return nil, &domain.ValidationError{Field: "sku", Message: fmt.Sprintf("%s is not in the cart", sku)}
	}
	return []command.Command{
		{Type: command.TypeRemoveCartItem, RemoveCartItem: &command.RemoveCartItemPayload{SKU: sku}},
		command.NewMessage("assistant", fmt.Sprintf("Removed %s from your cart.", sku)),
	}, nil
}

func (e *Executor) handleClearCart(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	return []command.Command{
		{Type: command.TypeClearCart},
		command.NewMessage("assistant", "Your cart is now empty."),
	}, nil
}

func (e *Executor) handleApplyDiscount(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	percent := params.Float("percent")
	reason := params.String("reason")

	if len(state.Cart.Items) == 0 {
		return nil, &domain.ValidationError{Field: "percent", Message: "the cart is empty"}
	}

	return []command.Command{
		{Type: command.TypeApplyDiscount, ApplyDiscount: &command.ApplyDiscountPayload{Percent: percent, Reason: reason}},
		command.NewMessage("assistant", fmt.Sprintf("Applied a %.1f%% discount to your cart.", percent)),
	}, nil
}

func (e *Executor) handleAddToComparison(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	product, err := fetch(ctx, e, udl.MethodGetProduct, func(c context.Context) (*domain.Product, error) {
		return e.data.GetProduct(c, sku)
	})
	if err != nil {
		return nil, err
	}
	return []command.Command{
		{Type: command.TypeAddComparison, AddComparison: &domain.ComparisonEntry{SKU: product.SKU, Name: product.Name, Price: product.Price}},
		command.NewMessage("assistant", fmt.Sprintf("Added %s to your comparison list.", product.Name)),
	}, nil
}

func (e *Executor) handleClearComparison(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	return []command.Command{
		{Type: command.TypeClearComparison},
		command.NewMessage("assistant", "Cleared your comparison list."),
	}, nil
}

func (e *Executor) handleGetOrderHistory(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	if state.Context.CustomerID == "" {
		return nil, &domain.ValidationError{Field: "customerId", Message: "no customer attached to this session"}
	}

	// the orders query depends on the customer lookup succeeding
	customer, err := fetch(ctx, e, udl.MethodGetCustomer, func(c context.Context) (*domain.Customer, error) {
		return e.data.GetCustomer(c, state.Context.CustomerID)
	})
	if err != nil {
		return nil, err
	}
	orders, err := fetch(ctx, e, udl.MethodGetOrders, func(c context.Context) ([]domain.Order, error) {
		return e.data.GetOrders(c, customer.ID, params.Int("limit"))
	})
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []command.Command{command.NewMessage("assistant", "You have no recent orders.")}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent orders for %s:\n", customer.Name)
	for _, o := range orders {
		fmt.Fprintf(&b, "- %s: %s, %d item(s), $%.2f\n", o.ID, o.Status, o.Items, o.Total)
	}
	return []command.Command{command.NewMessage("assistant", strings.TrimSpace(b.String()))}, nil
}

func (e *Executor) handleRequestQuote(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	sku := params.String("sku")
	qty := params.Int("quantity")

	quote, err := fetch(ctx, e, udl.MethodGetPricing, func(c context.Context) (*domain.PriceQuote, error) {
		return e.data.GetPricing(c, sku, qty, state.Mode)
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Quote for %d × %s: $%.2f each, $%.2f total.", qty, sku, quote.UnitPrice, quote.Total)
	if quote.Tier != "" {
		msg += fmt.Sprintf(" Volume tier %q saves $%.2f.", quote.Tier, quote.Savings)
	}
	return []command.Command{command.NewMessage("assistant", msg)}, nil
}

func (e *Executor) handleBulkOrder(ctx context.Context, params ValidatedParams, state *domain.SessionState) ([]command.Command, error) {
	if state.ActiveBulkJobID != "" {
		return nil, &domain.ValidationError{Field: "items", Message: "a bulk job is already running for this session"}
	}

	items, rejected, err := bulkItems(params)
	if err != nil {
		return nil, err
	}
	for _, re := range rejected {
		e.log.Warn().Str("sessionId", state.ID).Int("row", re.Row).Str("reason", re.Message).Msg("bulk csv row rejected")
	}

	limits := e.limits.ForMode(string(state.Mode))
	job, err := e.bulk.Process(ctx, items, bulk.Options{
		SessionID:   state.ID,
		Priority:    params.String("priority"),
		MaxQuantity: limits.MaxQuantityPerOrder,
		Mode:        state.Mode,
	})
	if err != nil {
		return nil, err
	}

	summary := job.Summarize()
	msg := formatBulkSummary(summary)
	if n := len(rejected); n > 0 {
		msg += fmt.Sprintf(" %d CSV row(s) were rejected during validation and not processed.", n)
	}
	return []command.Command{
		{Type: command.TypeBulkStarted, BulkStarted: &command.BulkStartedPayload{JobID: job.ID}},
		{Type: command.TypeBulkSummary, BulkSummary: &summary},
		command.NewMessage("assistant", msg),
	}, nil
}

// bulkItems extracts the item list from either the structured parameter or
// the CSV payload, plus any CSV rows rejected during sanitation. Exactly one
// of the two sources must be provided.
func bulkItems(params ValidatedParams) ([]domain.BulkOrderRequest, []bulk.RowError, error) {
	hasItems := params.Has("items")
	hasCSV := params.String("csv") != ""
	if hasItems == hasCSV {
		return nil, nil, &domain.ValidationError{Field: "items", Message: "provide exactly one of items or csv"}
	}

	if hasCSV {
		parsed, rowErrs, err := bulk.ParseCSV(strings.NewReader(params.String("csv")))
		if err != nil {
			return nil, nil, err
		}
		if len(parsed) == 0 {
			return nil, nil, &domain.ValidationError{Field: "csv", Message: "no valid rows found"}
		}
		return parsed, rowErrs, nil
	}

	objs := params.Objects("items")
	if len(objs) == 0 {
		return nil, nil, &domain.ValidationError{Field: "items", Message: "item list is empty"}
	}
	out := make([]domain.BulkOrderRequest, 0, len(objs))
	for i, obj := range objs {
		sku, _ := obj["sku"].(string)
		if sku == "" {
			return nil, nil, &domain.ValidationError{Field: "items", Message: fmt.Sprintf("item %d has no sku", i)}
		}
		qty, err := intField(obj["quantity"])
		if err != nil || qty < 1 {
			return nil, nil, &domain.ValidationError{Field: "items", Message: fmt.Sprintf("item %d has an invalid quantity", i)}
		}
		out = append(out, domain.BulkOrderRequest{SKU: sku, Quantity: qty})
	}
	return out, nil, nil
}

func intField(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not a whole number")
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func formatBulkSummary(s domain.BulkSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk order %s %s: %d fulfilled, %d partial, %d with alternatives, %d failed.",
		s.JobID, s.Status,
		s.Counts[domain.BulkFulfilled], s.Counts[domain.BulkPartial],
		s.Counts[domain.BulkAlternatives], s.Counts[domain.BulkItemFailed])
	if s.TotalValue > 0 {
		fmt.Fprintf(&b, " Resolvable value $%.2f.", s.TotalValue)
	}
	if s.Savings > 0 {
		fmt.Fprintf(&b, " Volume savings $%.2f.", s.Savings)
	}
	return b.String()
}
