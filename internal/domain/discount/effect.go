package discount

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Calculator computes the monetary effect of eligible discounts against a cart.
type Calculator struct {
	codes   CodeChecker
	catalog CatalogScope
}

// NewCalculator creates a Calculator.
func NewCalculator(codes CodeChecker, catalog CatalogScope) *Calculator {
	return &Calculator{codes: codes, catalog: catalog}
}

// Compute evaluates every eligible discount in order and accumulates the
// contributions. The result is not yet stacking-resolved.
func (c *Calculator) Compute(ctx context.Context, eligible []Discount, ec EvaluationContext) (*Result, error) {
	res := NewResult()
	run := &effectRun{calc: c, ec: ec}

	for i := range eligible {
		d := &eligible[i]
		if err := run.apply(ctx, d, res); err != nil {
			return nil, errors.Wrapf(err, "compute discount %d", d.ID)
		}
	}

	res.recomputeTotal()
	return res, nil
}

// effectRun holds per-evaluation scope lookups.
type effectRun struct {
	calc *Calculator
	ec   EvaluationContext

	brands     map[int64]int64
	categories map[int64][]int64
}

func (r *effectRun) apply(ctx context.Context, d *Discount, res *Result) error {
	if r.ec.Code != "" {
		ok, err := r.calc.codes.HasCode(ctx, d.ID, r.ec.Code)
		if err != nil {
			return errors.Wrap(err, "check code")
		}
		if !ok {
			return nil
		}
	}

	if !r.thresholdsPass(d) {
		return nil
	}

	applied := Applied{DiscountID: d.ID, Amount: decimal.Zero, Shipping: decimal.Zero}

	if d.LineScoped() {
		matched, err := r.matchLines(ctx, d)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			return nil
		}
		lines, amount := r.lineEffect(d, matched)
		res.LineDiscounts = append(res.LineDiscounts, lines...)
		applied.Amount = amount
	} else {
		amount := r.cartEffect(d)
		if amount.IsPositive() {
			res.CartDiscounts = append(res.CartDiscounts, CartDiscount{Amount: amount, DiscountID: d.ID})
		}
		applied.Amount = amount
	}

	applied.Shipping = r.shippingEffect(d)
	if applied.Shipping.GreaterThan(res.Shipping.DiscountAmount) {
		res.Shipping.DiscountAmount = applied.Shipping
	}

	if applied.Amount.IsPositive() || applied.Shipping.IsPositive() {
		res.Applied = append(res.Applied, applied)
	}
	return nil
}

func (r *effectRun) thresholdsPass(d *Discount) bool {
	for _, cond := range d.ConditionsOf(ConditionCartTotal) {
		if !cond.Passes(r.ec.Cart.Subtotal) {
			return false
		}
	}
	qty := decimal.NewFromInt(int64(r.ec.Cart.TotalQuantity()))
	for _, cond := range d.ConditionsOf(ConditionItemQty) {
		if !cond.Passes(qty) {
			return false
		}
	}
	return true
}

// matchLines returns the indexes of cart lines matching any scope condition.
func (r *effectRun) matchLines(ctx context.Context, d *Discount) ([]int, error) {
	var matched []int
	for i, item := range r.ec.Cart.Items {
		ok, err := r.lineMatches(ctx, d, item)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

func (r *effectRun) lineMatches(ctx context.Context, d *Discount, item CartItem) (bool, error) {
	for _, cond := range d.Conditions {
		switch cond.Type {
		case ConditionProduct:
			if slices.Contains(cond.IDs, item.ProductID) {
				return true, nil
			}
		case ConditionBrand:
			brands, err := r.loadBrands(ctx)
			if err != nil {
				return false, err
			}
			if brand, ok := brands[item.ProductID]; ok && slices.Contains(cond.IDs, brand) {
				return true, nil
			}
		case ConditionCategory:
			categories, err := r.loadCategories(ctx)
			if err != nil {
				return false, err
			}
			for _, cat := range categories[item.ProductID] {
				if slices.Contains(cond.IDs, cat) {
					return true, nil
				}
			}
		case ConditionCollection:
			if len(cond.IDs) == 0 {
				continue
			}
			ok, err := r.calc.catalog.InCollections(ctx, cond.IDs, item.ProductID)
			if err != nil {
				return false, errors.Wrap(err, "check collection membership")
			}
			if ok {
				return true, nil
			}
		case ConditionAttributeValue:
			// Attribute scoping never matches.
		}
	}
	return false, nil
}

func (r *effectRun) lineEffect(d *Discount, matched []int) ([]LineDiscount, decimal.Decimal) {
	items := r.ec.Cart.Items
	total := decimal.Zero

	switch e := d.Effect.(type) {
	case Percentage:
		var lines []LineDiscount
		for _, idx := range matched {
			lineTotal := items[idx].LineTotal()
			amount := decimal.Min(percentOf(lineTotal, e.Value), lineTotal)
			if amount.IsPositive() {
				lines = append(lines, LineDiscount{ItemIndex: idx, Amount: amount, DiscountID: d.ID})
				total = total.Add(amount)
			}
		}
		return lines, total
	case Fixed:
		var lines []LineDiscount
		for _, idx := range matched {
			lineTotal := items[idx].LineTotal()
			amount := floorAtZero(decimal.Min(lineTotal, e.Value)).Round(2)
			if amount.IsPositive() {
				lines = append(lines, LineDiscount{ItemIndex: idx, Amount: amount, DiscountID: d.ID})
				total = total.Add(amount)
			}
		}
		return lines, total
	case Bogo:
		return bogoLines(e.Config, items, matched, d.ID)
	default:
		return nil, decimal.Zero
	}
}

func (r *effectRun) cartEffect(d *Discount) decimal.Decimal {
	switch e := d.Effect.(type) {
	case Percentage:
		return percentOf(r.ec.Cart.Subtotal, e.Value)
	case Fixed:
		return floorAtZero(e.Value).Round(2)
	case Bogo:
		return BogoAmount(e.Config, r.ec.Cart.Items)
	default:
		return decimal.Zero
	}
}

func (r *effectRun) shippingEffect(d *Discount) decimal.Decimal {
	base := floorAtZero(r.ec.ShippingBase)
	switch {
	case d.FreeShipping:
		return base.Round(2)
	case d.AppliesToShipping && d.ShippingCap != nil:
		if base.GreaterThan(d.ShippingCap.CapAmount) {
			return base.Sub(d.ShippingCap.CapAmount).Round(2)
		}
		return decimal.Zero
	case d.AppliesToShipping:
		switch e := d.Effect.(type) {
		case Percentage:
			return percentOf(base, e.Value)
		case Fixed:
			return floorAtZero(e.Value).Round(2)
		}
	}
	return decimal.Zero
}

func (r *effectRun) loadBrands(ctx context.Context) (map[int64]int64, error) {
	if r.brands != nil {
		return r.brands, nil
	}
	brands, err := r.calc.catalog.Brands(ctx, r.productIDs())
	if err != nil {
		return nil, errors.Wrap(err, "load brands")
	}
	if brands == nil {
		brands = map[int64]int64{}
	}
	r.brands = brands
	return brands, nil
}

func (r *effectRun) loadCategories(ctx context.Context) (map[int64][]int64, error) {
	if r.categories != nil {
		return r.categories, nil
	}
	categories, err := r.calc.catalog.Categories(ctx, r.productIDs())
	if err != nil {
		return nil, errors.Wrap(err, "load categories")
	}
	if categories == nil {
		categories = map[int64][]int64{}
	}
	r.categories = categories
	return categories, nil
}

func (r *effectRun) productIDs() []int64 {
	ids := make([]int64, 0, len(r.ec.Cart.Items))
	for _, item := range r.ec.Cart.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// percentOf returns round(base * pct / 100, 2), never negative.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return floorAtZero(base.Mul(pct).Div(hundred)).Round(2)
}
