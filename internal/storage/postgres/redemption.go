package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const countRedemptionsSQL = `SELECT COUNT(*) FROM discount_redemptions
	WHERE discount_id = $1 AND redeemed_at >= $2 AND redeemed_at < $3`

var _ discount.RedemptionCounter = (*RedemptionStore)(nil)

// RedemptionStore counts recorded redemptions.
type RedemptionStore struct {
	pool *pgxpool.Pool
}

// NewRedemptionStore returns a RedemptionStore that uses the given pool.
func NewRedemptionStore(pool *pgxpool.Pool) *RedemptionStore {
	return &RedemptionStore{pool: pool}
}

// CountRedemptions counts redemptions of the discount in [from, to).
func (s *RedemptionStore) CountRedemptions(ctx context.Context, discountID int64, from, to time.Time) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countRedemptionsSQL, discountID, from, to).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count redemptions for discount %d", discountID)
	}
	return int(n), nil
}
