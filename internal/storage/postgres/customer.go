package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	listUserGroupsSQL = `SELECT customer_group_id FROM customer_group_user
		WHERE user_id = $1 ORDER BY customer_group_id`

	getPartnerTierSQL = `SELECT tier FROM partners WHERE user_id = $1`

	countOrdersSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = ANY($2)`
)

var _ discount.CustomerDirectory = (*CustomerStore)(nil)

// CustomerStore resolves customer segments and order history.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// GroupIDs returns the customer groups the user belongs to.
func (s *CustomerStore) GroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, listUserGroupsSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "query groups of user %d", userID)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrapf(err, "scan groups of user %d", userID)
	}
	return ids, nil
}

// PartnerTier returns the partner tier of the user, or "" when the user is
// not a partner.
func (s *CustomerStore) PartnerTier(ctx context.Context, userID int64) (string, error) {
	var tier string
	err := s.pool.QueryRow(ctx, getPartnerTierSQL, userID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrapf(err, "get partner tier of user %d", userID)
	}
	return tier, nil
}

// PlacedOrderCount counts the user's orders in any of the given statuses.
func (s *CustomerStore) PlacedOrderCount(ctx context.Context, userID int64, statuses []string) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countOrdersSQL, userID, statuses).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count orders of user %d", userID)
	}
	return int(n), nil
}
