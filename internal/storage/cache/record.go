// Package cache provides candidate-set caches for the discount engine.
package cache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// discountRecord is the serialized form of a discount. Effects are stored by
// kind and rebuilt on decode.
type discountRecord struct {
	ID                int64               `json:"id"`
	Name              string              `json:"name"`
	Status            string              `json:"status"`
	Priority          int                 `json:"priority"`
	Kind              string              `json:"kind"`
	Value             decimal.Decimal     `json:"value"`
	Bogo              *bogoRecord         `json:"bogo,omitempty"`
	StartsAt          *time.Time          `json:"starts_at,omitempty"`
	EndsAt            *time.Time          `json:"ends_at,omitempty"`
	Weekdays          []int               `json:"weekdays,omitempty"`
	TimeWindow        *timeWindowRecord   `json:"time_window,omitempty"`
	PerDayLimit       int                 `json:"per_day_limit,omitempty"`
	Currencies        []string            `json:"currencies"`
	Channels          []int64             `json:"channels"`
	FirstOrderOnly    bool                `json:"first_order_only,omitempty"`
	FreeShipping      bool                `json:"free_shipping,omitempty"`
	AppliesToShipping bool                `json:"applies_to_shipping,omitempty"`
	ShippingCap       decimal.NullDecimal `json:"shipping_cap"`
	Exclusive         bool                `json:"exclusive,omitempty"`
	Stacking          string              `json:"stacking"`
	Conditions        []conditionRecord   `json:"conditions,omitempty"`
}

type bogoRecord struct {
	BuyQty     int             `json:"buy_qty"`
	GetQty     int             `json:"get_qty"`
	PercentOff decimal.Decimal `json:"percent_off"`
}

type timeWindowRecord struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"tz,omitempty"`
}

type conditionRecord struct {
	Type      string              `json:"type"`
	Operator  string              `json:"operator,omitempty"`
	IDs       []int64             `json:"ids,omitempty"`
	Tiers     []string            `json:"tiers,omitempty"`
	Threshold decimal.NullDecimal `json:"threshold"`
}

func encodeDiscounts(discounts []discount.Discount) ([]byte, error) {
	records := make([]discountRecord, len(discounts))
	for i := range discounts {
		records[i] = toRecord(&discounts[i])
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, errors.Wrap(err, "marshal candidates")
	}
	return data, nil
}

func decodeDiscounts(data []byte) ([]discount.Discount, error) {
	var records []discountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "unmarshal candidates")
	}

	out := make([]discount.Discount, len(records))
	for i, r := range records {
		d, err := fromRecord(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decode discount %d", r.ID)
		}
		out[i] = d
	}
	return out, nil
}

func toRecord(d *discount.Discount) discountRecord {
	r := discountRecord{
		ID:                d.ID,
		Name:              d.Name,
		Status:            string(d.Status),
		Priority:          d.Priority,
		Kind:              d.Effect.Kind(),
		StartsAt:          d.StartsAt,
		EndsAt:            d.EndsAt,
		Weekdays:          d.Weekdays,
		PerDayLimit:       d.PerDayLimit,
		Currencies:        d.Currencies,
		Channels:          d.Channels,
		FirstOrderOnly:    d.FirstOrderOnly,
		FreeShipping:      d.FreeShipping,
		AppliesToShipping: d.AppliesToShipping,
		Exclusive:         d.Exclusive,
		Stacking:          string(d.Stacking),
	}

	switch e := d.Effect.(type) {
	case discount.Percentage:
		r.Value = e.Value
	case discount.Fixed:
		r.Value = e.Value
	case discount.Bogo:
		r.Bogo = &bogoRecord{BuyQty: e.Config.BuyQty, GetQty: e.Config.GetQty, PercentOff: e.Config.PercentOff}
	}
	if d.TimeWindow != nil {
		r.TimeWindow = &timeWindowRecord{Start: d.TimeWindow.Start, End: d.TimeWindow.End, Location: d.TimeWindow.Location}
	}
	if d.ShippingCap != nil {
		r.ShippingCap = decimal.NewNullDecimal(d.ShippingCap.CapAmount)
	}
	for _, c := range d.Conditions {
		r.Conditions = append(r.Conditions, conditionRecord{
			Type:      string(c.Type),
			Operator:  string(c.Operator),
			IDs:       c.IDs,
			Tiers:     c.Tiers,
			Threshold: c.Threshold,
		})
	}
	return r
}

func fromRecord(r discountRecord) (discount.Discount, error) {
	var bogo discount.BogoConfig
	if r.Bogo != nil {
		bogo = discount.BogoConfig{BuyQty: r.Bogo.BuyQty, GetQty: r.Bogo.GetQty, PercentOff: r.Bogo.PercentOff}
	}
	effect, err := discount.NewEffect(r.Kind, r.Value, bogo)
	if err != nil {
		return discount.Discount{}, err
	}

	d := discount.Discount{
		ID:                r.ID,
		Name:              r.Name,
		Status:            discount.Status(r.Status),
		Priority:          r.Priority,
		Effect:            effect,
		StartsAt:          r.StartsAt,
		EndsAt:            r.EndsAt,
		Weekdays:          r.Weekdays,
		PerDayLimit:       r.PerDayLimit,
		Currencies:        r.Currencies,
		Channels:          r.Channels,
		FirstOrderOnly:    r.FirstOrderOnly,
		FreeShipping:      r.FreeShipping,
		AppliesToShipping: r.AppliesToShipping,
		Exclusive:         r.Exclusive,
		Stacking:          discount.StackingPolicy(r.Stacking),
	}
	if r.TimeWindow != nil {
		d.TimeWindow = &discount.TimeWindow{Start: r.TimeWindow.Start, End: r.TimeWindow.End, Location: r.TimeWindow.Location}
	}
	if r.ShippingCap.Valid {
		d.ShippingCap = &discount.ShippingCapConfig{CapAmount: r.ShippingCap.Decimal}
	}
	for _, c := range r.Conditions {
		d.Conditions = append(d.Conditions, discount.Condition{
			Type:      discount.ConditionType(c.Type),
			Operator:  discount.Operator(c.Operator),
			IDs:       c.IDs,
			Tiers:     c.Tiers,
			Threshold: c.Threshold,
		})
	}
	return d, nil
}
