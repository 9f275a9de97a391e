package observe

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// Log writes diagnostics to the request logger at debug level.
type Log struct{}

var _ discount.Sink = Log{}

func (Log) DiscountEvaluated(ctx context.Context, e discount.EvaluationEvent) {
	zctx.From(ctx).Debug("Discount evaluated",
		zap.Int64("discount_id", e.DiscountID),
		zap.String("code", e.Code),
		zap.Bool("success", e.Success),
		zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("currency", e.Context.CurrencyCode),
		zap.Int64("user_id", e.Context.UserID),
	)
}

func (Log) CandidateLookup(ctx context.Context, e discount.CacheEvent) {
	zctx.From(ctx).Debug("Candidate lookup",
		zap.String("key", e.Key),
		zap.Bool("hit", e.Hit),
		zap.Int("count", e.Count),
	)
}
