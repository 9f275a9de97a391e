package discount

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Metadata is the typed form of a discount's free-form metadata blob.
type Metadata struct {
	Bogo        BogoConfig
	ShippingCap *ShippingCapConfig
}

type metadataRecord struct {
	BuyQty      decimal.NullDecimal `json:"buy_qty"`
	GetQty      decimal.NullDecimal `json:"get_qty"`
	PercentOff  decimal.NullDecimal `json:"percent_off"`
	ShippingCap decimal.NullDecimal `json:"shipping_cap"`
}

type timeWindowRecord struct {
	Start string `json:"start"`
	End   string `json:"end"`
	TZ    string `json:"tz"`
}

var hundred = decimal.NewFromInt(100)

// ParseMetadata decodes discount metadata. Malformed payloads yield defaults:
// buy 1 get 1 at 100% off and no shipping cap.
func ParseMetadata(raw []byte) Metadata {
	md := Metadata{
		Bogo: BogoConfig{BuyQty: 1, GetQty: 1, PercentOff: hundred},
	}

	var rec metadataRecord
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &rec) != nil {
		return md
	}
	if rec.BuyQty.Valid {
		md.Bogo.BuyQty = int(rec.BuyQty.Decimal.IntPart())
	}
	if rec.GetQty.Valid {
		md.Bogo.GetQty = int(rec.GetQty.Decimal.IntPart())
	}
	if rec.PercentOff.Valid {
		md.Bogo.PercentOff = rec.PercentOff.Decimal
	}
	if rec.ShippingCap.Valid {
		md.ShippingCap = &ShippingCapConfig{CapAmount: rec.ShippingCap.Decimal}
	}
	return md
}

// ParseCondition builds a typed condition from its stored type, operator and
// JSON value. Malformed values produce an empty restriction. Unsupported
// operators on threshold conditions are reported as errors.
func ParseCondition(t, operator string, raw []byte) (Condition, error) {
	c := Condition{Type: ConditionType(t)}
	values := parseValues(raw)

	switch {
	case c.Type.Threshold():
		op, err := ParseOperator(operator)
		if err != nil {
			return Condition{}, err
		}
		c.Operator = op
		if len(values) > 0 {
			if v, err := decimal.NewFromString(values[0]); err == nil {
				c.Threshold = decimal.NewNullDecimal(v)
			}
		}
	case c.Type == ConditionPartnerTier:
		for _, v := range values {
			if v != "" {
				c.Tiers = append(c.Tiers, strings.ToLower(v))
			}
		}
	default:
		for _, v := range values {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				c.IDs = append(c.IDs, id)
			}
		}
	}
	return c, nil
}

// ParseWeekdays parses a comma separated ISO weekday mask ("1,2,3").
// Tokens outside 1..7 are ignored.
func ParseWeekdays(mask string) []int {
	var days []int
	for _, tok := range strings.Split(mask, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || d < 1 || d > 7 {
			continue
		}
		days = append(days, d)
	}
	return days
}

// ParseTimeWindow decodes a {start, end, tz} window. It returns nil when the
// payload is empty, malformed or missing either bound.
func ParseTimeWindow(raw []byte) *TimeWindow {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var rec timeWindowRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil
	}
	if rec.Start == "" || rec.End == "" {
		return nil
	}
	return &TimeWindow{Start: rec.Start, End: rec.End, Location: rec.TZ}
}

// parseValues normalizes a JSON scalar or list into strings.
func parseValues(raw []byte) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, el := range list {
			if s, ok := parseScalar(el); ok {
				out = append(out, s)
			}
		}
		return out
	}

	if s, ok := parseScalar(raw); ok {
		return []string{s}
	}
	return nil
}

func parseScalar(raw []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n decimal.Decimal
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
