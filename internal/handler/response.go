package handler

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeResult(res *discount.Result) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("applied", func(e *jx.Encoder) {
		e.ArrStart()
		for _, a := range res.Applied {
			e.ObjStart()
			e.Field("discount_id", func(e *jx.Encoder) { e.Int64(a.DiscountID) })
			e.Field("amount", func(e *jx.Encoder) { money(e, a.Amount) })
			e.Field("shipping", func(e *jx.Encoder) { money(e, a.Shipping) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("discount_total", func(e *jx.Encoder) { money(e, res.DiscountTotal) })
	e.Field("line_discounts", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range res.LineDiscounts {
			e.ObjStart()
			e.Field("item_index", func(e *jx.Encoder) { e.Int(l.ItemIndex) })
			e.Field("amount", func(e *jx.Encoder) { money(e, l.Amount) })
			e.Field("discount_id", func(e *jx.Encoder) { e.Int64(l.DiscountID) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("cart_discounts", func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range res.CartDiscounts {
			e.ObjStart()
			e.Field("amount", func(e *jx.Encoder) { money(e, c.Amount) })
			e.Field("discount_id", func(e *jx.Encoder) { e.Int64(c.DiscountID) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("shipping", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("discount_amount", func(e *jx.Encoder) { money(e, res.Shipping.DiscountAmount) })
		e.ObjEnd()
	})
	e.ObjEnd()

	// The encoder goes back to the pool, so hand out a copy.
	return append([]byte(nil), e.Bytes()...)
}
