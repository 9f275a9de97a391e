package discount

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_CartScoped(t *testing.T) {
	tests := []struct {
		name       string
		discount   Discount
		cart       Cart
		wantAmount string
		wantCart   int
	}{
		{
			name:       "percentage of subtotal",
			discount:   activeDiscount(1, pct("10")),
			cart:       cartOf(item(1, 1, "100.00")),
			wantAmount: "10.00",
			wantCart:   1,
		},
		{
			name:       "percentage rounds half up",
			discount:   activeDiscount(1, pct("15")),
			cart:       cartOf(item(1, 3, "9.99")),
			wantAmount: "4.50",
			wantCart:   1,
		},
		{
			name:       "fixed is not capped to subtotal",
			discount:   activeDiscount(1, fixed("50")),
			cart:       cartOf(item(1, 1, "20.00")),
			wantAmount: "50",
			wantCart:   1,
		},
		{
			name:       "bogo on whole cart",
			discount:   activeDiscount(1, Bogo{Config: BogoConfig{BuyQty: 1, GetQty: 1, PercentOff: d("100")}}),
			cart:       cartOf(item(1, 2, "10"), item(2, 2, "30")),
			wantAmount: "40",
			wantCart:   1,
		},
		{
			name:       "zero percentage contributes nothing",
			discount:   activeDiscount(1, pct("0")),
			cart:       cartOf(item(1, 1, "10")),
			wantAmount: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(&mockCodes{}, &mockCatalog{})
			res, err := calc.Compute(context.Background(), []Discount{tt.discount}, EvaluationContext{Cart: tt.cart})
			require.NoError(t, err)

			assert.True(t, d(tt.wantAmount).Equal(res.DiscountTotal),
				"expected total %s, got %s", tt.wantAmount, res.DiscountTotal)
			assert.Len(t, res.CartDiscounts, tt.wantCart)
			assert.Empty(t, res.LineDiscounts)
			if tt.wantCart > 0 {
				require.Len(t, res.Applied, 1)
				assert.True(t, d(tt.wantAmount).Equal(res.Applied[0].Amount))
			} else {
				assert.Empty(t, res.Applied)
			}
		})
	}
}

func TestCalculator_LineScoped(t *testing.T) {
	catalog := &mockCatalog{
		brands:      map[int64]int64{1: 100, 2: 200},
		categories:  map[int64][]int64{2: {10, 11}, 3: {12}},
		collections: map[int64][]int64{50: {3}},
	}
	cart := cartOf(
		item(1, 2, "15.00"), // line total 30
		item(2, 1, "8.00"),  // line total 8
		item(3, 1, "12.50"), // line total 12.50
	)

	tests := []struct {
		name       string
		effect     Effect
		conditions []Condition
		wantLines  map[int]string
		wantTotal  string
	}{
		{
			name:       "percentage on product",
			effect:     pct("10"),
			conditions: []Condition{idCondition(ConditionProduct, 1)},
			wantLines:  map[int]string{0: "3.00"},
			wantTotal:  "3.00",
		},
		{
			name:       "fixed capped at line total",
			effect:     fixed("10"),
			conditions: []Condition{idCondition(ConditionProduct, 1, 2)},
			wantLines:  map[int]string{0: "10", 1: "8.00"},
			wantTotal:  "18",
		},
		{
			name:       "brand match",
			effect:     pct("50"),
			conditions: []Condition{idCondition(ConditionBrand, 200)},
			wantLines:  map[int]string{1: "4.00"},
			wantTotal:  "4.00",
		},
		{
			name:       "shared category",
			effect:     pct("100"),
			conditions: []Condition{idCondition(ConditionCategory, 11, 12)},
			wantLines:  map[int]string{1: "8.00", 2: "12.50"},
			wantTotal:  "20.50",
		},
		{
			name:       "collection membership",
			effect:     fixed("2"),
			conditions: []Condition{idCondition(ConditionCollection, 50)},
			wantLines:  map[int]string{2: "2"},
			wantTotal:  "2",
		},
		{
			name:       "any scope condition matches",
			effect:     fixed("1"),
			conditions: []Condition{idCondition(ConditionProduct, 1), idCondition(ConditionBrand, 200)},
			wantLines:  map[int]string{0: "1", 1: "1"},
			wantTotal:  "2",
		},
		{
			name:   "bogo across matched units",
			effect: Bogo{Config: BogoConfig{BuyQty: 1, GetQty: 1, PercentOff: d("100")}},
			// Units 15, 15, 8 -> sorted 8, 15, 15 -> one group [8, 15] -> 8 free.
			conditions: []Condition{idCondition(ConditionProduct, 1, 2)},
			wantLines:  map[int]string{1: "8"},
			wantTotal:  "8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disc := activeDiscount(1, tt.effect)
			disc.Conditions = tt.conditions

			calc := NewCalculator(&mockCodes{}, catalog)
			res, err := calc.Compute(context.Background(), []Discount{disc}, EvaluationContext{Cart: cart})
			require.NoError(t, err)

			got := make(map[int]string, len(res.LineDiscounts))
			for _, l := range res.LineDiscounts {
				assert.Equal(t, int64(1), l.DiscountID)
				got[l.ItemIndex] = l.Amount.String()
			}
			require.Len(t, got, len(tt.wantLines))
			for idx, want := range tt.wantLines {
				assert.True(t, d(want).Equal(d(got[idx])), "line %d: expected %s, got %s", idx, want, got[idx])
			}
			assert.True(t, d(tt.wantTotal).Equal(res.DiscountTotal),
				"expected total %s, got %s", tt.wantTotal, res.DiscountTotal)
			assert.Empty(t, res.CartDiscounts)
		})
	}
}

func TestCalculator_LineScopedNoMatch(t *testing.T) {
	disc := activeDiscount(1, pct("10"))
	disc.FreeShipping = true
	disc.Conditions = []Condition{
		idCondition(ConditionProduct, 99),
		{Type: ConditionAttributeValue, IDs: []int64{1}},
	}

	calc := NewCalculator(&mockCodes{}, &mockCatalog{})
	res, err := calc.Compute(context.Background(), []Discount{disc}, EvaluationContext{
		Cart:         cartOf(item(1, 1, "10")),
		ShippingBase: d("5"),
	})
	require.NoError(t, err)

	assert.Empty(t, res.Applied)
	assert.True(t, res.DiscountTotal.IsZero())
	assert.True(t, res.Shipping.DiscountAmount.IsZero())
}

func TestCalculator_FixedLineCapProperty(t *testing.T) {
	for _, tc := range []struct{ value, price string }{
		{"5", "3.99"}, {"5", "5"}, {"5", "12.34"}, {"0.01", "100"},
	} {
		disc := activeDiscount(1, fixed(tc.value))
		disc.Conditions = []Condition{idCondition(ConditionProduct, 1)}

		calc := NewCalculator(&mockCodes{}, &mockCatalog{})
		res, err := calc.Compute(context.Background(), []Discount{disc}, EvaluationContext{
			Cart: cartOf(item(1, 1, tc.price)),
		})
		require.NoError(t, err)
		require.Len(t, res.LineDiscounts, 1)

		want := d(tc.value)
		if d(tc.price).LessThan(want) {
			want = d(tc.price)
		}
		assert.True(t, want.Equal(res.LineDiscounts[0].Amount), "value %s price %s", tc.value, tc.price)
	}
}

func TestCalculator_CodeGate(t *testing.T) {
	withCode := activeDiscount(1, pct("10"))
	withoutCode := activeDiscount(2, pct("5"))
	codes := &mockCodes{codes: map[int64][]string{1: {"SAVE10"}}}
	cart := cartOf(item(1, 1, "100"))

	calc := NewCalculator(codes, &mockCatalog{})

	res, err := calc.Compute(context.Background(), []Discount{withCode, withoutCode}, EvaluationContext{Cart: cart, Code: "save10"})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, int64(1), res.Applied[0].DiscountID)

	res, err = calc.Compute(context.Background(), []Discount{withCode, withoutCode}, EvaluationContext{Cart: cart, Code: "OTHER"})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)

	res, err = calc.Compute(context.Background(), []Discount{withCode, withoutCode}, EvaluationContext{Cart: cart})
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)
	assert.True(t, d("15").Equal(res.DiscountTotal))
}

func TestCalculator_ThresholdGates(t *testing.T) {
	cart := cartOf(item(1, 2, "25")) // subtotal 50, qty 2

	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"cart total greater than passes", []Condition{thresholdCondition(ConditionCartTotal, OpGreaterThan, "49.99")}, true},
		{"cart total greater than fails", []Condition{thresholdCondition(ConditionCartTotal, OpGreaterThan, "50")}, false},
		{"cart total equals", []Condition{thresholdCondition(ConditionCartTotal, OpEqualsTo, "50.00")}, true},
		{"item qty less than fails", []Condition{thresholdCondition(ConditionItemQty, OpLessThan, "2")}, false},
		{"item qty not equals", []Condition{thresholdCondition(ConditionItemQty, OpNotEqualsTo, "3")}, true},
		{"both must pass", []Condition{
			thresholdCondition(ConditionCartTotal, OpGreaterThan, "10"),
			thresholdCondition(ConditionItemQty, OpGreaterThan, "5"),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disc := activeDiscount(1, pct("10"))
			disc.Conditions = tt.conds

			calc := NewCalculator(&mockCodes{}, &mockCatalog{})
			res, err := calc.Compute(context.Background(), []Discount{disc}, EvaluationContext{Cart: cart})
			require.NoError(t, err)
			assert.Equal(t, tt.want, len(res.Applied) == 1)
		})
	}
}

func TestCalculator_Shipping(t *testing.T) {
	tests := []struct {
		name      string
		discounts func() []Discount
		base      string
		want      string
	}{
		{
			name: "free shipping covers base",
			discounts: func() []Discount {
				a := activeDiscount(1, pct("0"))
				a.FreeShipping = true
				return []Discount{a}
			},
			base: "9.99",
			want: "9.99",
		},
		{
			name: "shipping cap",
			discounts: func() []Discount {
				a := activeDiscount(1, pct("0"))
				a.AppliesToShipping = true
				a.ShippingCap = &ShippingCapConfig{CapAmount: d("4.99")}
				return []Discount{a}
			},
			base: "12.00",
			want: "7.01",
		},
		{
			name: "shipping cap above base",
			discounts: func() []Discount {
				a := activeDiscount(1, pct("0"))
				a.AppliesToShipping = true
				a.ShippingCap = &ShippingCapConfig{CapAmount: d("15")}
				return []Discount{a}
			},
			base: "12.00",
			want: "0",
		},
		{
			name: "own percentage applied to shipping",
			discounts: func() []Discount {
				a := activeDiscount(1, pct("50"))
				a.AppliesToShipping = true
				return []Discount{a}
			},
			base: "9.99",
			want: "5.00",
		},
		{
			name: "maximum across discounts wins",
			discounts: func() []Discount {
				a := activeDiscount(1, fixed("2"))
				a.AppliesToShipping = true
				b := activeDiscount(2, pct("0"))
				b.FreeShipping = true
				c := activeDiscount(3, pct("10"))
				c.AppliesToShipping = true
				return []Discount{a, b, c}
			},
			base: "8.00",
			want: "8.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(&mockCodes{}, &mockCatalog{})
			res, err := calc.Compute(context.Background(), tt.discounts(), EvaluationContext{
				Cart:         cartOf(item(1, 1, "40")),
				ShippingBase: d(tt.base),
			})
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(res.Shipping.DiscountAmount),
				"expected %s, got %s", tt.want, res.Shipping.DiscountAmount)
		})
	}
}

func TestCalculator_ShippingOnlyDiscountApplied(t *testing.T) {
	a := activeDiscount(1, pct("0"))
	a.FreeShipping = true

	calc := NewCalculator(&mockCodes{}, &mockCatalog{})
	res, err := calc.Compute(context.Background(), []Discount{a}, EvaluationContext{
		Cart:         cartOf(item(1, 1, "40")),
		ShippingBase: d("9.99"),
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].Amount.IsZero())
	assert.True(t, d("9.99").Equal(res.Applied[0].Shipping))
	assert.True(t, res.DiscountTotal.IsZero())
}

func TestCalculator_StorageFailures(t *testing.T) {
	t.Run("code lookup", func(t *testing.T) {
		calc := NewCalculator(&mockCodes{err: errors.New("boom")}, &mockCatalog{})
		_, err := calc.Compute(context.Background(), []Discount{activeDiscount(1, pct("10"))}, EvaluationContext{Code: "X"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "check code")
	})

	t.Run("scope lookup", func(t *testing.T) {
		disc := activeDiscount(1, pct("10"))
		disc.Conditions = []Condition{idCondition(ConditionBrand, 1)}
		calc := NewCalculator(&mockCodes{}, &mockCatalog{err: errors.New("boom")})
		_, err := calc.Compute(context.Background(), []Discount{disc}, EvaluationContext{Cart: cartOf(item(1, 1, "1"))})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load brands")
	})
}
