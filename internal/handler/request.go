package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// ErrInvalidRequest is returned for evaluate requests that fail validation.
var ErrInvalidRequest = errors.New("invalid request")

// maxQuantity bounds a single cart line.
const maxQuantity = 100_000

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidRequest, format, args...)
}

func decodeEvaluateRequest(body []byte) (discount.EvaluationContext, error) {
	var (
		ec          discount.EvaluationContext
		hasSubtotal bool
		hasCart     bool
	)

	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "zone_id":
			ec.ZoneID, err = d.Int64()
		case "currency":
			ec.CurrencyCode, err = d.Str()
		case "channel_id":
			ec.ChannelID, err = d.Int64()
		case "user_id":
			ec.UserID, err = d.Int64()
		case "partner_tier":
			ec.PartnerTier, err = d.Str()
		case "group_ids":
			ec.GroupIDs, err = decodeIDs(d)
		case "code":
			ec.Code, err = d.Str()
		case "now":
			ec.Now, err = decodeTime(d)
		case "shipping":
			ec.ShippingBase, err = decodeMoney(d)
		case "cart":
			hasCart = true
			hasSubtotal, err = decodeCart(d, &ec.Cart)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return ec, invalid("decode: %s", err)
	}
	if !hasCart {
		return ec, invalid("cart is required")
	}

	for i, item := range ec.Cart.Items {
		if item.Quantity <= 0 {
			return ec, invalid("cart.items[%d]: quantity must be positive", i)
		}
		if item.Quantity > maxQuantity {
			return ec, invalid("cart.items[%d]: quantity must not exceed %d", i, maxQuantity)
		}
		if item.UnitPrice.IsNegative() {
			return ec, invalid("cart.items[%d]: unit_price must not be negative", i)
		}
	}
	if !hasSubtotal {
		ec.Cart.Subtotal = ec.Cart.ItemsSubtotal()
	}
	if ec.Cart.Subtotal.IsNegative() {
		return ec, invalid("cart.subtotal must not be negative")
	}
	if ec.ShippingBase.IsNegative() {
		return ec, invalid("shipping must not be negative")
	}
	return ec, nil
}

func decodeCart(d *jx.Decoder, cart *discount.Cart) (hasSubtotal bool, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch key {
		case "subtotal":
			v, err := decodeMoney(d)
			if err != nil {
				return errors.Wrap(err, "subtotal")
			}
			cart.Subtotal = v
			hasSubtotal = true
			return nil
		case "items":
			cart.Items = []discount.CartItem{}
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(cart.Items))
				}
				cart.Items = append(cart.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return hasSubtotal, err
}

func decodeItem(d *jx.Decoder) (discount.CartItem, error) {
	var item discount.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			item.ProductID, err = d.Int64()
		case "variant_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			item.VariantID, err = d.Int64()
		case "quantity":
			item.Quantity, err = d.Int()
		case "unit_price":
			item.UnitPrice, err = decodeMoney(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return item, err
}

func decodeIDs(d *jx.Decoder) ([]int64, error) {
	ids := []int64{}
	err := d.Arr(func(d *jx.Decoder) error {
		id, err := d.Int64()
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// decodeMoney accepts both JSON numbers and decimal strings.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.Errorf("expected number or string, got %s", tt)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}
