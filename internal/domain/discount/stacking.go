package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// StackingResolver applies the exclusive and single-best conflict policies.
type StackingResolver struct {
	policies PolicySource
}

// NewStackingResolver creates a StackingResolver.
func NewStackingResolver(policies PolicySource) *StackingResolver {
	return &StackingResolver{policies: policies}
}

// Resolve collapses the applied set when any applied discount is exclusive
// or declares single_best; otherwise every entry stacks.
//
// A collapse keeps the applied entry with the maximum amount among all
// applied entries, which need not be the discount that triggered it.
func (s *StackingResolver) Resolve(ctx context.Context, res *Result) (*Result, error) {
	if len(res.Applied) == 0 {
		return res, nil
	}

	ids := make([]int64, len(res.Applied))
	for i, a := range res.Applied {
		ids[i] = a.DiscountID
	}
	policies, err := s.policies.Policies(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load stacking policies")
	}

	var exclusive, singleBest bool
	for _, id := range ids {
		p := policies[id]
		exclusive = exclusive || p.Exclusive
		singleBest = singleBest || p.Stacking == StackingSingleBest
	}

	if !exclusive && !singleBest {
		return res, nil
	}
	return collapse(res), nil
}

// collapse keeps only the maximum-amount applied entry; ties go to the
// earliest entry in priority order.
func collapse(res *Result) *Result {
	best := res.Applied[0]
	for _, a := range res.Applied[1:] {
		if a.Amount.GreaterThan(best.Amount) {
			best = a
		}
	}

	out := &Result{
		Applied:       []Applied{best},
		LineDiscounts: []LineDiscount{},
		CartDiscounts: []CartDiscount{},
		Shipping:      ShippingResult{DiscountAmount: decimal.Max(best.Shipping, decimal.Zero)},
	}
	for _, l := range res.LineDiscounts {
		if l.DiscountID == best.DiscountID {
			out.LineDiscounts = append(out.LineDiscounts, l)
		}
	}
	for _, c := range res.CartDiscounts {
		if c.DiscountID == best.DiscountID {
			out.CartDiscounts = append(out.CartDiscounts, c)
		}
	}
	out.recomputeTotal()
	return out
}
