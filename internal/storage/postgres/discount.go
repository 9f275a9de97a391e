package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	listActiveDiscountsSQL = `SELECT id, name, status, priority, discount_type, value,
		starts_at, ends_at, weekday_mask, time_window, per_day_limit,
		currency_restrictions, channel_restrictions, first_order_only,
		free_shipping, applies_to_shipping, exclusive, stacking_policy, metadata
		FROM discounts
		WHERE status = 'active'
		  AND (starts_at IS NULL OR starts_at <= $1)
		  AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY priority, id`

	listConditionsSQL = `SELECT discount_id, condition_type, operator, value
		FROM discount_conditions WHERE discount_id = ANY($1) ORDER BY discount_id, id`

	listPoliciesSQL = `SELECT id, exclusive, stacking_policy
		FROM discounts WHERE id = ANY($1)`
)

var _ discount.Store = (*DiscountStore)(nil)

// DiscountStore loads discount definitions and their conditions.
type DiscountStore struct {
	pool *pgxpool.Pool
}

// NewDiscountStore returns a DiscountStore that uses the given pool.
func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

type discountRow struct {
	ID                   int64
	Name                 string
	Status               string
	Priority             int32
	DiscountType         string
	Value                decimal.Decimal
	StartsAt             *time.Time
	EndsAt               *time.Time
	WeekdayMask          *string
	TimeWindow           []byte
	PerDayLimit          int32
	CurrencyRestrictions []string
	ChannelRestrictions  []int64
	FirstOrderOnly       bool
	FreeShipping         bool
	AppliesToShipping    bool
	Exclusive            bool
	StackingPolicy       string
	Metadata             []byte
}

type conditionRow struct {
	DiscountID    int64
	ConditionType string
	Operator      string
	Value         []byte
}

// ActiveCandidates returns the active, in-date discounts with their
// conditions attached. Discounts whose stored definition cannot be
// interpreted are skipped and logged.
func (s *DiscountStore) ActiveCandidates(ctx context.Context, now time.Time) ([]discount.Discount, error) {
	rows, err := s.pool.Query(ctx, listActiveDiscountsSQL, now)
	if err != nil {
		return nil, errors.Wrap(err, "query active discounts")
	}
	discountRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[discountRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan active discounts")
	}
	if len(discountRows) == 0 {
		return []discount.Discount{}, nil
	}

	ids := make([]int64, len(discountRows))
	for i, r := range discountRows {
		ids[i] = r.ID
	}
	conditions, err := s.conditions(ctx, ids)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	out := make([]discount.Discount, 0, len(discountRows))
	for _, r := range discountRows {
		d, err := mapDiscount(r, conditions[r.ID])
		if err != nil {
			lg.Error("Skipping misconfigured discount",
				zap.Int64("discount_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *DiscountStore) conditions(ctx context.Context, ids []int64) (map[int64][]conditionRow, error) {
	rows, err := s.pool.Query(ctx, listConditionsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query discount conditions")
	}
	condRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[conditionRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan discount conditions")
	}

	out := make(map[int64][]conditionRow, len(ids))
	for _, c := range condRows {
		out[c.DiscountID] = append(out[c.DiscountID], c)
	}
	return out, nil
}

// Policies returns the conflict-resolution flags for the given discounts.
func (s *DiscountStore) Policies(ctx context.Context, ids []int64) (map[int64]discount.Policy, error) {
	rows, err := s.pool.Query(ctx, listPoliciesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query discount policies")
	}

	out := make(map[int64]discount.Policy, len(ids))
	var (
		id        int64
		exclusive bool
		stacking  string
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &exclusive, &stacking}, func() error {
		out[id] = discount.Policy{Exclusive: exclusive, Stacking: stackingPolicy(stacking)}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan discount policies")
	}
	return out, nil
}

func mapDiscount(r discountRow, conds []conditionRow) (discount.Discount, error) {
	md := discount.ParseMetadata(r.Metadata)

	effect, err := discount.NewEffect(r.DiscountType, r.Value, md.Bogo)
	if err != nil {
		return discount.Discount{}, err
	}

	d := discount.Discount{
		ID:                r.ID,
		Name:              r.Name,
		Status:            discount.Status(r.Status),
		Priority:          int(r.Priority),
		Effect:            effect,
		StartsAt:          r.StartsAt,
		EndsAt:            r.EndsAt,
		TimeWindow:        discount.ParseTimeWindow(r.TimeWindow),
		PerDayLimit:       int(r.PerDayLimit),
		Currencies:        r.CurrencyRestrictions,
		Channels:          r.ChannelRestrictions,
		FirstOrderOnly:    r.FirstOrderOnly,
		FreeShipping:      r.FreeShipping,
		AppliesToShipping: r.AppliesToShipping,
		ShippingCap:       md.ShippingCap,
		Exclusive:         r.Exclusive,
		Stacking:          stackingPolicy(r.StackingPolicy),
	}
	if r.WeekdayMask != nil {
		d.Weekdays = discount.ParseWeekdays(*r.WeekdayMask)
	}

	d.Conditions = make([]discount.Condition, 0, len(conds))
	for _, c := range conds {
		cond, err := discount.ParseCondition(c.ConditionType, c.Operator, c.Value)
		if err != nil {
			return discount.Discount{}, errors.Wrapf(err, "condition %s", c.ConditionType)
		}
		d.Conditions = append(d.Conditions, cond)
	}
	return d, nil
}

func stackingPolicy(s string) discount.StackingPolicy {
	if discount.StackingPolicy(s) == discount.StackingSingleBest {
		return discount.StackingSingleBest
	}
	return discount.StackingStack
}
