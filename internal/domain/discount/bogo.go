package discount

import (
	"slices"

	"github.com/shopspring/decimal"
)

// BogoAmount computes the buy-N-get-M reduction for the units of items.
// Units are sorted by price ascending and split into groups of
// BuyQty+GetQty; the GetQty cheapest units of every complete group are
// reduced by PercentOff. Incomplete trailing groups earn nothing.
func BogoAmount(cfg BogoConfig, items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, share := range bogoShares(cfg, items) {
		total = total.Add(share)
	}
	return floorAtZero(total).Round(2)
}

// bogoShares returns the unrounded reduction earned by each line, parallel
// to items. Lines are walked as runs of equally priced units so the cost
// does not depend on quantities.
func bogoShares(cfg BogoConfig, items []CartItem) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(items))
	size := int64(cfg.GroupSize())
	get := int64(cfg.GetQty)
	if get <= 0 || cfg.BuyQty < 0 || size <= 0 {
		return shares
	}

	order := make([]int, 0, len(items))
	var units int64
	for i, item := range items {
		if item.Quantity > 0 {
			order = append(order, i)
			units += int64(item.Quantity)
		}
	}
	if units < size {
		return shares
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return items[a].UnitPrice.Cmp(items[b].UnitPrice)
	})

	// free counts discounted units among the first n sorted units.
	limit := units / size * size
	free := func(n int64) int64 {
		n = min(n, limit)
		return n/size*get + min(n%size, get)
	}

	rate := cfg.PercentOff.Div(hundred)
	var pos int64
	for _, i := range order {
		end := pos + int64(items[i].Quantity)
		if n := free(end) - free(pos); n > 0 {
			shares[i] = items[i].UnitPrice.Mul(rate).Mul(decimal.NewFromInt(n))
		}
		pos = end
	}
	return shares
}

// bogoLines attributes a line-scoped BOGO reduction to the matched lines
// whose units were discounted. Rows are rounded to cents and the rounding
// residual goes to the line with the largest share, so rows sum to
// BogoAmount.
func bogoLines(cfg BogoConfig, items []CartItem, matched []int, discountID int64) ([]LineDiscount, decimal.Decimal) {
	scoped := make([]CartItem, len(matched))
	for i, idx := range matched {
		scoped[i] = items[idx]
	}
	shares := bogoShares(cfg, scoped)

	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share)
	}
	total = floorAtZero(total).Round(2)
	if !total.IsPositive() {
		return nil, decimal.Zero
	}

	rounded := make([]decimal.Decimal, len(shares))
	largest := 0
	sum := decimal.Zero
	for i, share := range shares {
		rounded[i] = share.Round(2)
		sum = sum.Add(rounded[i])
		if share.GreaterThan(shares[largest]) {
			largest = i
		}
	}
	rounded[largest] = rounded[largest].Add(total.Sub(sum))

	var lines []LineDiscount
	for i, amount := range rounded {
		if amount.IsPositive() {
			lines = append(lines, LineDiscount{ItemIndex: matched[i], Amount: amount, DiscountID: discountID})
		}
	}
	return lines, total
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
