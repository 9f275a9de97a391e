package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	listBrandsSQL = `SELECT id, brand_id FROM products
		WHERE id = ANY($1) AND brand_id IS NOT NULL`

	listCategoriesSQL = `SELECT product_id, category_id FROM category_product
		WHERE product_id = ANY($1) ORDER BY product_id, category_id`

	inCollectionsSQL = `SELECT EXISTS (
		SELECT 1 FROM collection_product
		WHERE collection_id = ANY($1) AND product_id = $2
	)`
)

var _ discount.CatalogScope = (*CatalogStore)(nil)

// CatalogStore answers product scope questions for line-scoped discounts.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore returns a CatalogStore that uses the given pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Brands maps each product to its brand. Products without a brand are
// omitted.
func (s *CatalogStore) Brands(ctx context.Context, productIDs []int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, listBrandsSQL, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "query product brands")
	}

	out := make(map[int64]int64, len(productIDs))
	var productID, brandID int64
	_, err = pgx.ForEachRow(rows, []any{&productID, &brandID}, func() error {
		out[productID] = brandID
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan product brands")
	}
	return out, nil
}

// Categories maps each product to the categories it belongs to.
func (s *CatalogStore) Categories(ctx context.Context, productIDs []int64) (map[int64][]int64, error) {
	rows, err := s.pool.Query(ctx, listCategoriesSQL, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "query product categories")
	}

	out := make(map[int64][]int64, len(productIDs))
	var productID, categoryID int64
	_, err = pgx.ForEachRow(rows, []any{&productID, &categoryID}, func() error {
		out[productID] = append(out[productID], categoryID)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan product categories")
	}
	return out, nil
}

// InCollections reports whether the product belongs to any of the collections.
func (s *CatalogStore) InCollections(ctx context.Context, collectionIDs []int64, productID int64) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, inCollectionsSQL, collectionIDs, productID).Scan(&ok); err != nil {
		return false, errors.Wrapf(err, "check collections of product %d", productID)
	}
	return ok, nil
}
