package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	hasCodeSQL = `SELECT EXISTS (
		SELECT 1 FROM discount_codes WHERE discount_id = $1 AND LOWER(code) = LOWER($2)
	)`

	createCodeStagingSQL = `CREATE TEMP TABLE discount_codes_import (code TEXT NOT NULL) ON COMMIT DROP`

	mergeCodeStagingSQL = `INSERT INTO discount_codes (discount_id, code)
		SELECT DISTINCT $1::BIGINT, code FROM discount_codes_import
		ON CONFLICT (discount_id, code) DO NOTHING`
)

var _ discount.CodeChecker = (*CodeStore)(nil)

// CodeStore checks and imports redemption codes attached to discounts.
type CodeStore struct {
	pool *pgxpool.Pool
}

// NewCodeStore returns a CodeStore that uses the given pool.
func NewCodeStore(pool *pgxpool.Pool) *CodeStore {
	return &CodeStore{pool: pool}
}

// HasCode reports whether code is attached to the discount, ignoring case.
func (s *CodeStore) HasCode(ctx context.Context, discountID int64, code string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, hasCodeSQL, discountID, code).Scan(&ok); err != nil {
		return false, errors.Wrapf(err, "check code for discount %d", discountID)
	}
	return ok, nil
}

// Import attaches codes to a discount. Codes already attached are left as
// they are. It returns how many codes were added.
func (s *CodeStore) Import(ctx context.Context, discountID int64, codes []string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin import")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createCodeStagingSQL); err != nil {
		return 0, errors.Wrap(err, "create staging table")
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"discount_codes_import"},
		[]string{"code"},
		pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
			return []any{codes[i]}, nil
		}),
	)
	if err != nil {
		return 0, errors.Wrap(err, "copy codes")
	}

	tag, err := tx.Exec(ctx, mergeCodeStagingSQL, discountID)
	if err != nil {
		return 0, errors.Wrap(err, "merge codes")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit import")
	}
	return tag.RowsAffected(), nil
}
