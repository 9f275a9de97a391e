package discount

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// placedOrderStatuses are the order states that count as a prior order for
// first-order-only discounts.
var placedOrderStatuses = []string{"placed", "paid", "fulfilled", "completed"}

// EligibilityFilter narrows candidates to those whose context-specific
// restrictions hold for a single evaluation.
type EligibilityFilter struct {
	redemptions RedemptionCounter
	customers   CustomerDirectory
	loc         *time.Location
}

// NewEligibilityFilter creates an EligibilityFilter. Redemption days are
// computed in loc; a nil loc means UTC.
func NewEligibilityFilter(redemptions RedemptionCounter, customers CustomerDirectory, loc *time.Location) *EligibilityFilter {
	if loc == nil {
		loc = time.UTC
	}
	return &EligibilityFilter{redemptions: redemptions, customers: customers, loc: loc}
}

// Filter returns the candidates that pass every eligibility check, keeping
// their order.
func (f *EligibilityFilter) Filter(ctx context.Context, candidates []Discount, ec EvaluationContext, now time.Time) ([]Discount, error) {
	ev := &eligibilityRun{filter: f, ec: ec, now: now}

	eligible := make([]Discount, 0, len(candidates))
	for i := range candidates {
		ok, err := ev.eligible(ctx, &candidates[i])
		if err != nil {
			return nil, errors.Wrapf(err, "check discount %d", candidates[i].ID)
		}
		if ok {
			eligible = append(eligible, candidates[i])
		}
	}
	return eligible, nil
}

// eligibilityRun memoizes per-evaluation lookups.
type eligibilityRun struct {
	filter *EligibilityFilter
	ec     EvaluationContext
	now    time.Time

	orderCount *int
}

func (r *eligibilityRun) eligible(ctx context.Context, d *Discount) (bool, error) {
	if !weekdayAllowed(d.Weekdays, r.now) {
		return false, nil
	}

	if d.PerDayLimit > 0 {
		from, to := dayBounds(r.now, r.filter.loc)
		count, err := r.filter.redemptions.CountRedemptions(ctx, d.ID, from, to)
		if err != nil {
			return false, errors.Wrap(err, "count redemptions")
		}
		if count >= d.PerDayLimit {
			return false, nil
		}
	}

	if !inTimeWindow(d.TimeWindow, r.now) {
		return false, nil
	}

	if len(d.Currencies) > 0 && !containsFold(d.Currencies, r.ec.CurrencyCode) {
		return false, nil
	}
	if len(d.Channels) > 0 && !slices.Contains(d.Channels, r.ec.ChannelID) {
		return false, nil
	}

	if d.FirstOrderOnly && r.ec.UserID != 0 {
		count, err := r.placedOrders(ctx)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
	}

	return r.segmentAllowed(d), nil
}

func (r *eligibilityRun) segmentAllowed(d *Discount) bool {
	if conds := d.ConditionsOf(ConditionCustomerGroup); len(conds) > 0 {
		allowed := allowedIDs(conds)
		if len(allowed) > 0 && !intersects(allowed, r.ec.GroupIDs) {
			return false
		}
	}

	if conds := d.ConditionsOf(ConditionZone); len(conds) > 0 && r.ec.ZoneID != 0 {
		allowed := allowedIDs(conds)
		if _, ok := allowed[r.ec.ZoneID]; len(allowed) > 0 && !ok {
			return false
		}
	}

	if conds := d.ConditionsOf(ConditionUser); len(conds) > 0 && r.ec.UserID != 0 {
		allowed := allowedIDs(conds)
		if _, ok := allowed[r.ec.UserID]; len(allowed) > 0 && !ok {
			return false
		}
	}

	if conds := d.ConditionsOf(ConditionPartnerTier); len(conds) > 0 {
		allowed := allowedTiers(conds)
		if _, ok := allowed[strings.ToLower(r.ec.PartnerTier)]; len(allowed) > 0 && !ok {
			return false
		}
	}

	return true
}

func (r *eligibilityRun) placedOrders(ctx context.Context) (int, error) {
	if r.orderCount != nil {
		return *r.orderCount, nil
	}
	count, err := r.filter.customers.PlacedOrderCount(ctx, r.ec.UserID, placedOrderStatuses)
	if err != nil {
		return 0, errors.Wrap(err, "count placed orders")
	}
	r.orderCount = &count
	return count, nil
}

// ISOWeekday returns the ISO-8601 weekday of t (Monday = 1, Sunday = 7).
func ISOWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

func weekdayAllowed(mask []int, now time.Time) bool {
	if len(mask) == 0 {
		return true
	}
	return slices.Contains(mask, ISOWeekday(now))
}

func inTimeWindow(w *TimeWindow, now time.Time) bool {
	if w == nil {
		return true
	}
	loc := time.UTC
	if w.Location != "" {
		if l, err := time.LoadLocation(w.Location); err == nil {
			loc = l
		}
	}
	hm := now.In(loc).Format("15:04")
	return hm >= w.Start && hm <= w.End
}

func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func intersects(allowed map[int64]struct{}, ids []int64) bool {
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			return true
		}
	}
	return false
}
