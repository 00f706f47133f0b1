package judge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
)

// Outcome is a proposed action outcome evaluated by the business-rule layer.
// It describes what an action would do, not the raw input that requested it.
type Outcome struct {
	ActionID string

	Quantity        int
	DiscountPercent float64
	UnitPrice       float64

	PriceOverride      bool
	OverrideAuthorized bool

	// Cart arithmetic consistency: when HasCartTotals is set, Total must equal
	// Subtotal discounted by DiscountApplied within a cent.
	HasCartTotals   bool
	CartSubtotal    float64
	CartTotal       float64
	DiscountApplied float64
}

// checkRules evaluates the fixed numeric and structural guards against a
// proposed outcome.
func (j *Judge) checkRules(o Outcome, limits config.ModeLimits) Result {
	if o.UnitPrice < 0 {
		return unsafe(LayerRules, "negative price", domain.SeverityCritical)
	}
	if o.PriceOverride && !o.OverrideAuthorized {
		return unsafe(LayerRules, "unauthorized price override", domain.SeverityCritical)
	}
	if o.DiscountPercent < 0 || o.DiscountPercent > 100 {
		return unsafe(LayerRules, "discount outside 0-100 range", domain.SeverityCritical)
	}
	if o.DiscountPercent > limits.MaxDiscountPercent {
		return unsafe(LayerRules,
			fmt.Sprintf("discount %.1f%% exceeds the %.1f%% ceiling", o.DiscountPercent, limits.MaxDiscountPercent),
			domain.SeverityHigh)
	}
	if o.Quantity > limits.MaxQuantityPerOrder {
		return unsafe(LayerRules,
			fmt.Sprintf("quantity %d exceeds the per-order ceiling of %d", o.Quantity, limits.MaxQuantityPerOrder),
			domain.SeverityHigh)
	}
	if o.HasCartTotals {
		expected := o.CartSubtotal * (1 - o.DiscountApplied/100)
		if math.Abs(o.CartTotal-expected) > 0.01+1e-9 {
			return unsafe(LayerRules,
				fmt.Sprintf("cart total %.2f inconsistent with subtotal %.2f at %.1f%% discount", o.CartTotal, o.CartSubtotal, o.DiscountApplied),
				domain.SeverityCritical)
		}
	}
	return safe(LayerRules)
}

var (
	discountClaimRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*(?:discount|off)`)
	totalClaimRe    = regexp.MustCompile(`(?i)total(?:\s+(?:is|of|comes to))?[:\s]*\$\s*(\d+(?:,\d{3})*(?:\.\d+)?)`)
	negPriceRe      = regexp.MustCompile(`-\s*\$\s*\d`)
)

// checkResponseClaims guards a composed response against hallucinated or
// manipulated numbers: discounts above the ceiling, negative prices, and cart
// totals that contradict the session state.
func (j *Judge) checkResponseClaims(response string, state *domain.SessionState, limits config.ModeLimits) Result {
	if negPriceRe.MatchString(response) {
		return unsafe(LayerRules, "response claims a negative price", domain.SeverityCritical)
	}

	for _, m := range discountClaimRe.FindAllStringSubmatch(response, -1) {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if pct > limits.MaxDiscountPercent {
			return unsafe(LayerRules,
				fmt.Sprintf("response claims a %.1f%% discount above the %.1f%% ceiling", pct, limits.MaxDiscountPercent),
				domain.SeverityHigh)
		}
	}

	// Verify total claims only when a cart exists; a response quoting some
	// other figure (a product price, a bulk summary) is matched against the
	// cart total only when it uses the word "total".
	if state != nil && len(state.Cart.Items) > 0 {
		for _, m := range totalClaimRe.FindAllStringSubmatch(response, -1) {
			claimed, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil {
				continue
			}
			if math.Abs(claimed-state.Cart.Total) > 0.01+1e-9 {
				return unsafe(LayerRules,
					fmt.Sprintf("response claims total $%.2f but cart total is $%.2f", claimed, state.Cart.Total),
					domain.SeverityCritical)
			}
		}
	}

	return safe(LayerRules)
}
