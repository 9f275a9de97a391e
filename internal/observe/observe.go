// Package observe implements discount engine diagnostic sinks.
package observe

import (
	"context"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// Multi fans diagnostics out to every sink in order.
type Multi []discount.Sink

var _ discount.Sink = Multi(nil)

func (m Multi) DiscountEvaluated(ctx context.Context, e discount.EvaluationEvent) {
	for _, s := range m {
		s.DiscountEvaluated(ctx, e)
	}
}

func (m Multi) CandidateLookup(ctx context.Context, e discount.CacheEvent) {
	for _, s := range m {
		s.CandidateLookup(ctx, e)
	}
}
