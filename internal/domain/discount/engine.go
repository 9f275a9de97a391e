package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Store is the read side of discount storage the engine depends on.
type Store interface {
	CandidateSource
	PolicySource
}

// Deps groups the external collaborators of the Engine.
type Deps struct {
	Discounts   Store
	Codes       CodeChecker
	Redemptions RedemptionCounter
	Customers   CustomerDirectory
	Catalog     CatalogScope
	// Cache is optional; nil disables candidate caching.
	Cache Cache
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	ttl  time.Duration
	loc  *time.Location
	sink Sink
	now  func() time.Time
}

// WithCandidateTTL sets how long candidate sets stay cached.
func WithCandidateTTL(ttl time.Duration) Option {
	return func(o *engineOptions) { o.ttl = ttl }
}

// WithLocation sets the business location used for per-day redemption limits.
func WithLocation(loc *time.Location) Option {
	return func(o *engineOptions) { o.loc = loc }
}

// WithSink sets the diagnostic sink.
func WithSink(s Sink) Option {
	return func(o *engineOptions) { o.sink = s }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// Engine evaluates discounts for a cart. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	customers   CustomerDirectory
	candidates  *CandidateStore
	eligibility *EligibilityFilter
	calculator  *Calculator
	stacking    *StackingResolver
	sink        Sink
	now         func() time.Time
}

// NewEngine wires the evaluation stages from their collaborators.
func NewEngine(deps Deps, opts ...Option) *Engine {
	o := engineOptions{
		ttl:  DefaultCandidateTTL,
		loc:  time.UTC,
		sink: NopSink{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		customers:   deps.Customers,
		candidates:  NewCandidateStore(deps.Discounts, deps.Cache, o.ttl, o.sink),
		eligibility: NewEligibilityFilter(deps.Redemptions, deps.Customers, o.loc),
		calculator:  NewCalculator(deps.Codes, deps.Catalog),
		stacking:    NewStackingResolver(deps.Discounts),
		sink:        o.sink,
		now:         o.now,
	}
}

// Evaluate runs candidate collection, eligibility filtering, effect
// calculation and stacking resolution for the given context. Storage failures
// abort the evaluation; no partial result is returned.
func (e *Engine) Evaluate(ctx context.Context, ec EvaluationContext) (*Result, error) {
	now := ec.Now
	if now.IsZero() {
		now = e.now()
	}

	ec, err := e.resolveCustomer(ctx, ec)
	if err != nil {
		return nil, err
	}

	candidates, err := e.candidates.Collect(ctx, ec, now)
	if err != nil {
		return nil, errors.Wrap(err, "collect candidates")
	}

	eligible, err := e.eligibility.Filter(ctx, candidates, ec, now)
	if err != nil {
		return nil, errors.Wrap(err, "filter eligibility")
	}

	computed, err := e.calculator.Compute(ctx, eligible, ec)
	if err != nil {
		return nil, errors.Wrap(err, "compute effects")
	}

	res, err := e.stacking.Resolve(ctx, computed)
	if err != nil {
		return nil, errors.Wrap(err, "resolve stacking")
	}

	e.report(ctx, ec, eligible, res)

	zctx.From(ctx).Debug("Discounts evaluated",
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(eligible)),
		zap.Int("applied", len(res.Applied)),
		zap.String("total", res.DiscountTotal.StringFixed(2)),
		zap.String("shipping", res.Shipping.DiscountAmount.StringFixed(2)),
	)
	return res, nil
}

// resolveCustomer fills group ids and partner tier from the customer
// directory when the caller did not supply them.
func (e *Engine) resolveCustomer(ctx context.Context, ec EvaluationContext) (EvaluationContext, error) {
	if ec.UserID == 0 {
		return ec, nil
	}
	if len(ec.GroupIDs) == 0 {
		groups, err := e.customers.GroupIDs(ctx, ec.UserID)
		if err != nil {
			return ec, errors.Wrap(err, "resolve customer groups")
		}
		ec.GroupIDs = groups
	}
	if ec.PartnerTier == "" {
		tier, err := e.customers.PartnerTier(ctx, ec.UserID)
		if err != nil {
			return ec, errors.Wrap(err, "resolve partner tier")
		}
		ec.PartnerTier = tier
	}
	return ec, nil
}

func (e *Engine) report(ctx context.Context, ec EvaluationContext, eligible []Discount, res *Result) {
	amounts := make(map[int64]Applied, len(res.Applied))
	for _, a := range res.Applied {
		amounts[a.DiscountID] = a
	}
	for _, d := range eligible {
		a, ok := amounts[d.ID]
		e.sink.DiscountEvaluated(ctx, EvaluationEvent{
			DiscountID: d.ID,
			Code:       ec.Code,
			Context:    ec,
			Success:    ok,
			Amount:     a.Amount,
		})
	}
}
