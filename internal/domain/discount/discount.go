// Package discount implements the discount evaluation engine: candidate
// collection, eligibility filtering, effect calculation and stacking
// resolution over a cart snapshot.
package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a discount.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// StackingPolicy governs how a discount combines with other applied discounts.
type StackingPolicy string

const (
	// StackingStack sums all applied discounts.
	StackingStack StackingPolicy = "stack"
	// StackingSingleBest collapses the applied set to the highest amount.
	StackingSingleBest StackingPolicy = "single_best"
)

// ErrUnknownDiscountType is returned when a stored discount type has no
// matching effect.
var ErrUnknownDiscountType = errors.New("unknown discount type")

// Effect is the monetary behaviour of a discount. The set of implementations
// is closed: Percentage, Fixed and Bogo.
type Effect interface {
	// Kind returns the stored type name of the effect.
	Kind() string
	effect()
}

// Percentage reduces the base amount by Value percent.
type Percentage struct {
	Value decimal.Decimal
}

// Fixed reduces the base amount by a flat Value.
type Fixed struct {
	Value decimal.Decimal
}

// Bogo discounts the cheapest units of every complete buy+get group.
type Bogo struct {
	Config BogoConfig
}

func (Percentage) Kind() string { return "percentage" }
func (Fixed) Kind() string      { return "fixed" }
func (Bogo) Kind() string       { return "bogo" }

func (Percentage) effect() {}
func (Fixed) effect()      {}
func (Bogo) effect()       {}

// BogoConfig holds the buy-N-get-M parameters of a Bogo effect.
type BogoConfig struct {
	BuyQty     int
	GetQty     int
	PercentOff decimal.Decimal
}

// GroupSize returns the number of units in one qualifying group.
func (c BogoConfig) GroupSize() int {
	return c.BuyQty + c.GetQty
}

// ShippingCapConfig caps the shipping amount a customer pays when the
// discount applies to shipping.
type ShippingCapConfig struct {
	CapAmount decimal.Decimal
}

// TimeWindow restricts a discount to a time-of-day range. Start and End are
// "15:04" formatted and compared lexicographically.
type TimeWindow struct {
	Start    string
	End      string
	Location string
}

// Discount is a single promotional rule. It is read-only within the engine.
type Discount struct {
	ID       int64
	Name     string
	Status   Status
	Priority int
	Effect   Effect

	StartsAt *time.Time
	EndsAt   *time.Time
	// Weekdays holds ISO weekdays (1 = Monday ... 7 = Sunday).
	Weekdays   []int
	TimeWindow *TimeWindow
	// PerDayLimit caps redemptions per day. Zero means unlimited.
	PerDayLimit int

	Currencies []string
	Channels   []int64

	FirstOrderOnly    bool
	FreeShipping      bool
	AppliesToShipping bool
	ShippingCap       *ShippingCapConfig

	Exclusive bool
	Stacking  StackingPolicy

	Conditions []Condition
}

// ActiveAt reports whether the discount is active and inside its date bounds.
func (d *Discount) ActiveAt(now time.Time) bool {
	if d.Status != StatusActive {
		return false
	}
	if d.StartsAt != nil && d.StartsAt.After(now) {
		return false
	}
	if d.EndsAt != nil && d.EndsAt.Before(now) {
		return false
	}
	return true
}

// ConditionsOf returns the conditions of the given type.
func (d *Discount) ConditionsOf(t ConditionType) []Condition {
	var out []Condition
	for _, c := range d.Conditions {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// LineScoped reports whether the discount applies per matching cart line.
func (d *Discount) LineScoped() bool {
	for _, c := range d.Conditions {
		if c.Type.Scope() {
			return true
		}
	}
	return false
}

// Policy holds the conflict-resolution flags of a discount.
type Policy struct {
	Exclusive bool
	Stacking  StackingPolicy
}

// NewEffect builds the effect for a stored discount type.
func NewEffect(kind string, value decimal.Decimal, bogo BogoConfig) (Effect, error) {
	switch kind {
	case "percentage":
		return Percentage{Value: value}, nil
	case "fixed":
		return Fixed{Value: value}, nil
	case "bogo":
		return Bogo{Config: bogo}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDiscountType, "type %q", kind)
	}
}
