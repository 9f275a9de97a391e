package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateSource loads active, in-bounds discounts with their conditions,
// ordered by ascending priority.
type CandidateSource interface {
	ActiveCandidates(ctx context.Context, now time.Time) ([]Discount, error)
}

// PolicySource reads the conflict-resolution flags of discounts by id.
type PolicySource interface {
	Policies(ctx context.Context, ids []int64) (map[int64]Policy, error)
}

// CodeChecker checks whether a discount owns a code (case-insensitive).
type CodeChecker interface {
	HasCode(ctx context.Context, discountID int64, code string) (bool, error)
}

// RedemptionCounter counts recorded redemptions of a discount in [from, to).
type RedemptionCounter interface {
	CountRedemptions(ctx context.Context, discountID int64, from, to time.Time) (int, error)
}

// CustomerDirectory resolves customer segmentation data.
type CustomerDirectory interface {
	GroupIDs(ctx context.Context, userID int64) ([]int64, error)
	// PartnerTier returns an empty string when the user is not a partner.
	PartnerTier(ctx context.Context, userID int64) (string, error)
	// PlacedOrderCount counts orders in any of the given statuses.
	PlacedOrderCount(ctx context.Context, userID int64, statuses []string) (int, error)
}

// CatalogScope resolves product relations used by line matching.
type CatalogScope interface {
	// Brands maps product id to brand id for products that have a brand.
	Brands(ctx context.Context, productIDs []int64) (map[int64]int64, error)
	// Categories maps product id to its category ids.
	Categories(ctx context.Context, productIDs []int64) (map[int64][]int64, error)
	// InCollections reports whether the product belongs to any of the collections.
	InCollections(ctx context.Context, collectionIDs []int64, productID int64) (bool, error)
}

// Cache stores candidate sets by key. Implementations treat backend failures
// as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]Discount, bool)
	Set(ctx context.Context, key string, discounts []Discount, ttl time.Duration)
}

// EvaluationEvent describes the outcome of one discount within an evaluation.
type EvaluationEvent struct {
	DiscountID int64
	Code       string
	Context    EvaluationContext
	Success    bool
	Amount     decimal.Decimal
}

// CacheEvent describes a candidate cache lookup.
type CacheEvent struct {
	Key   string
	Hit   bool
	Count int
}

// Sink receives best-effort diagnostics. Implementations must not block.
type Sink interface {
	DiscountEvaluated(ctx context.Context, e EvaluationEvent)
	CandidateLookup(ctx context.Context, e CacheEvent)
}

// NopSink discards all diagnostics.
type NopSink struct{}

func (NopSink) DiscountEvaluated(context.Context, EvaluationEvent) {}
func (NopSink) CandidateLookup(context.Context, CacheEvent)        {}
