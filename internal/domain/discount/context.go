package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a single cart line.
type CartItem struct {
	ProductID int64
	VariantID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the cart snapshot a discount is evaluated against.
type Cart struct {
	Subtotal decimal.Decimal
	Items    []CartItem
}

// TotalQuantity returns the sum of quantities across all lines.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// ItemsSubtotal returns the sum of line totals.
func (c Cart) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// EvaluationContext carries everything a single evaluation needs from the
// caller. Zero ids mean the identifier is absent.
type EvaluationContext struct {
	ZoneID       int64
	CurrencyCode string
	ChannelID    int64
	UserID       int64
	PartnerTier  string
	GroupIDs     []int64
	Code         string
	// Now overrides the engine clock when non-zero.
	Now          time.Time
	Cart         Cart
	ShippingBase decimal.Decimal
}

// Applied is one discount that contributed to the result.
type Applied struct {
	DiscountID int64
	// Amount is the merchandise reduction (line and cart contributions).
	Amount decimal.Decimal
	// Shipping is the shipping reduction this discount produced on its own.
	Shipping decimal.Decimal
}

// LineDiscount is a per-line contribution of a line-scoped discount.
type LineDiscount struct {
	ItemIndex  int
	Amount     decimal.Decimal
	DiscountID int64
}

// CartDiscount is a cart-level contribution.
type CartDiscount struct {
	Amount     decimal.Decimal
	DiscountID int64
}

// ShippingResult holds the shipping reduction of the evaluation.
type ShippingResult struct {
	DiscountAmount decimal.Decimal
}

// Result is the outcome of an evaluation.
type Result struct {
	Applied       []Applied
	DiscountTotal decimal.Decimal
	LineDiscounts []LineDiscount
	CartDiscounts []CartDiscount
	Shipping      ShippingResult
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{
		Applied:       []Applied{},
		DiscountTotal: decimal.Zero,
		LineDiscounts: []LineDiscount{},
		CartDiscounts: []CartDiscount{},
		Shipping:      ShippingResult{DiscountAmount: decimal.Zero},
	}
}

// Contains reports whether the discount is among the applied entries.
func (r *Result) Contains(id int64) bool {
	for _, a := range r.Applied {
		if a.DiscountID == id {
			return true
		}
	}
	return false
}

// recomputeTotal sets DiscountTotal to round(sum(applied amounts), 2).
func (r *Result) recomputeTotal() {
	sum := decimal.Zero
	for _, a := range r.Applied {
		sum = sum.Add(a.Amount)
	}
	r.DiscountTotal = sum.Round(2)
}
