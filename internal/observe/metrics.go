package observe

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const meterName = "github.com/xenking/discount-engine/internal/observe"

// Metrics records evaluation and cache counters through OpenTelemetry.
type Metrics struct {
	evaluations metric.Int64Counter
	amount      metric.Float64Counter
	lookups     metric.Int64Counter
}

var _ discount.Sink = (*Metrics)(nil)

// NewMetrics registers the discount counters on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	evaluations, err := meter.Int64Counter("discounts.evaluations",
		metric.WithDescription("Discounts evaluated, by outcome."),
	)
	if err != nil {
		return nil, errors.Wrap(err, "evaluations counter")
	}
	amount, err := meter.Float64Counter("discounts.applied_amount",
		metric.WithDescription("Sum of merchandise discount amounts applied."),
	)
	if err != nil {
		return nil, errors.Wrap(err, "amount counter")
	}
	lookups, err := meter.Int64Counter("discounts.candidate_lookups",
		metric.WithDescription("Candidate set lookups, by cache outcome."),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lookups counter")
	}

	return &Metrics{evaluations: evaluations, amount: amount, lookups: lookups}, nil
}

func (m *Metrics) DiscountEvaluated(ctx context.Context, e discount.EvaluationEvent) {
	attrs := metric.WithAttributes(
		attribute.String("discount_id", strconv.FormatInt(e.DiscountID, 10)),
		attribute.Bool("success", e.Success),
	)
	m.evaluations.Add(ctx, 1, attrs)
	if e.Success {
		m.amount.Add(ctx, e.Amount.InexactFloat64(), attrs)
	}
}

func (m *Metrics) CandidateLookup(ctx context.Context, e discount.CacheEvent) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", e.Hit)))
}
