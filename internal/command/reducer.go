package command

import (
	"fmt"
	"math"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// trustDecay is how much one recorded violation lowers the trust score.
const (
	trustDecay = 0.1
	trustFloor = 0.1
)

// Apply applies commands strictly in order to a copy of state and returns the
// new state. The input state is never mutated; an unknown command type aborts
// the whole apply with a ConfigurationError. Apply is deterministic: the same
// ordered command list over the same starting state always yields the same
// result.
func Apply(state *domain.SessionState, cmds []Command) (*domain.SessionState, error) {
	next := state.Clone()
	for i, cmd := range cmds {
		if err := applyOne(next, cmd); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, cmd.Type, err)
		}
	}
	if len(cmds) > 0 && len(next.Messages) > 0 {
		next.UpdatedAt = next.Messages[len(next.Messages)-1].Timestamp
	}
	return next, nil
}

func applyOne(s *domain.SessionState, cmd Command) error {
	switch cmd.Type {
	case TypeAddCartItem:
		p := cmd.AddCartItem
		if p == nil {
			return &domain.ConfigurationError{Message: "ADD_CART_ITEM missing payload"}
		}
		merged := false
		for i := range s.Cart.Items {
			if s.Cart.Items[i].SKU == p.SKU {
				s.Cart.Items[i].Quantity += p.Quantity
				s.Cart.Items[i].UnitPrice = p.UnitPrice
				merged = true
				break
			}
		}
		if !merged {
			s.Cart.Items = append(s.Cart.Items, domain.CartItem{
				SKU:       p.SKU,
				Name:      p.Name,
				Quantity:  p.Quantity,
				UnitPrice: p.UnitPrice,
			})
		}
		recomputeTotals(&s.Cart)

	case TypeUpdateCartItem:
		p := cmd.UpdateCartItem
		if p == nil {
			return &domain.ConfigurationError{Message: "UPDATE_CART_ITEM missing payload"}
		}
		for i := range s.Cart.Items {
			if s.Cart.Items[i].SKU == p.SKU {
				s.Cart.Items[i].Quantity = p.Quantity
				break
			}
		}
		dropZeroQuantity(&s.Cart)
		recomputeTotals(&s.Cart)

	case TypeRemoveCartItem:
		p := cmd.RemoveCartItem
		if p == nil {
			return &domain.ConfigurationError{Message: "REMOVE_CART_ITEM missing payload"}
		}
		items := s.Cart.Items[:0]
		for _, it := range s.Cart.Items {
			if it.SKU != p.SKU {
				items = append(items, it)
			}
		}
		s.Cart.Items = items
		recomputeTotals(&s.Cart)

	case TypeClearCart:
		s.Cart = domain.Cart{}

	case TypeApplyDiscount:
		p := cmd.ApplyDiscount
		if p == nil {
			return &domain.ConfigurationError{Message: "APPLY_DISCOUNT missing payload"}
		}
		s.Cart.DiscountPercent = p.Percent
		recomputeTotals(&s.Cart)

	case TypeAddComparison:
		p := cmd.AddComparison
		if p == nil {
			return &domain.ConfigurationError{Message: "ADD_COMPARISON missing payload"}
		}
		for _, e := range s.Comparison {
			if e.SKU == p.SKU {
				return nil
			}
		}
		s.Comparison = append(s.Comparison, *p)

	case TypeClearComparison:
		s.Comparison = nil

	case TypeSetContext:
		if cmd.SetContext == nil {
			return &domain.ConfigurationError{Message: "SET_CONTEXT missing payload"}
		}
		s.Context = *cmd.SetContext

	case TypeSetAvailableActions:
		s.AvailableActions = append([]string(nil), cmd.SetAvailableActions...)

	case TypeSetError:
		if cmd.SetError == nil {
			return &domain.ConfigurationError{Message: "SET_ERROR missing payload"}
		}
		s.LastError = cmd.SetError.Message

	case TypeClearError:
		s.LastError = ""

	case TypeAddMessage:
		p := cmd.AddMessage
		if p == nil {
			return &domain.ConfigurationError{Message: "ADD_MESSAGE missing payload"}
		}
		s.Messages = append(s.Messages, domain.Message{
			Role:      p.Role,
			Content:   p.Content,
			Timestamp: p.Timestamp,
		})

	case TypeRecordViolation:
		if cmd.RecordViolation == nil {
			return &domain.ConfigurationError{Message: "RECORD_VIOLATION missing payload"}
		}
		s.Security.Violations++
		s.Security.TrustScore = math.Max(trustFloor, s.Security.TrustScore-trustDecay)

	case TypeBulkStarted:
		p := cmd.BulkStarted
		if p == nil {
			return &domain.ConfigurationError{Message: "BULK_STARTED missing payload"}
		}
		s.ActiveBulkJobID = p.JobID

	case TypeBulkSummary:
		if cmd.BulkSummary == nil {
			return &domain.ConfigurationError{Message: "BULK_SUMMARY missing payload"}
		}
		if s.ActiveBulkJobID == cmd.BulkSummary.JobID {
			s.ActiveBulkJobID = ""
		}

	default:
		return &domain.ConfigurationError{Message: fmt.Sprintf("unknown command type %q", cmd.Type)}
	}
	return nil
}

func dropZeroQuantity(c *domain.Cart) {
	items := c.Items[:0]
	for _, it := range c.Items {
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	c.Items = items
}

// recomputeTotals derives line totals, subtotal, and the discounted total.
// Money stays in float64 rounded to cents at the cart boundary, matching the
// data layer's normalized prices.
func recomputeTotals(c *domain.Cart) {
	c.Subtotal = 0
	for i := range c.Items {
		c.Items[i].LineTotal = roundCents(c.Items[i].UnitPrice * float64(c.Items[i].Quantity))
		c.Subtotal += c.Items[i].LineTotal
	}
	c.Subtotal = roundCents(c.Subtotal)
	c.Total = roundCents(c.Subtotal * (1 - c.DiscountPercent/100))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
