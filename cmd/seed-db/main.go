// Command seed-db applies the schema and loads sample discounts and catalog
// data from a JSON seed file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/storage/postgres"
)

type seedFile struct {
	Products  []productSeed  `json:"products"`
	Discounts []discountSeed `json:"discounts"`
}

type productSeed struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	BrandID     *int64          `json:"brand_id"`
	Price       decimal.Decimal `json:"price"`
	Categories  []int64         `json:"categories"`
	Collections []int64         `json:"collections"`
}

type conditionSeed struct {
	Type     string          `json:"type"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

type discountSeed struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Status            string          `json:"status"`
	Priority          int32           `json:"priority"`
	DiscountType      string          `json:"discount_type"`
	Value             decimal.Decimal `json:"value"`
	WeekdayMask       *string         `json:"weekday_mask"`
	TimeWindow        json.RawMessage `json:"time_window"`
	PerDayLimit       int32           `json:"per_day_limit"`
	Currencies        []string        `json:"currencies"`
	Channels          []int64         `json:"channels"`
	FirstOrderOnly    bool            `json:"first_order_only"`
	FreeShipping      bool            `json:"free_shipping"`
	AppliesToShipping bool            `json:"applies_to_shipping"`
	Exclusive         bool            `json:"exclusive"`
	StackingPolicy    string          `json:"stacking_policy"`
	Metadata          json.RawMessage `json:"metadata"`
	Conditions        []conditionSeed `json:"conditions"`
	Codes             []string        `json:"codes"`
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, brand_id, price) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, brand_id = EXCLUDED.brand_id, price = EXCLUDED.price`
	insertCategorySQL   = `INSERT INTO category_product (category_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	insertCollectionSQL = `INSERT INTO collection_product (collection_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	upsertDiscountSQL = `INSERT INTO discounts (id, name, status, priority, discount_type, value,
		weekday_mask, time_window, per_day_limit, currency_restrictions, channel_restrictions,
		first_order_only, free_shipping, applies_to_shipping, exclusive, stacking_policy, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, status = EXCLUDED.status, priority = EXCLUDED.priority,
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			weekday_mask = EXCLUDED.weekday_mask, time_window = EXCLUDED.time_window,
			per_day_limit = EXCLUDED.per_day_limit,
			currency_restrictions = EXCLUDED.currency_restrictions,
			channel_restrictions = EXCLUDED.channel_restrictions,
			first_order_only = EXCLUDED.first_order_only, free_shipping = EXCLUDED.free_shipping,
			applies_to_shipping = EXCLUDED.applies_to_shipping, exclusive = EXCLUDED.exclusive,
			stacking_policy = EXCLUDED.stacking_policy, metadata = EXCLUDED.metadata`
	deleteConditionsSQL = `DELETE FROM discount_conditions WHERE discount_id = $1`
	insertConditionSQL  = `INSERT INTO discount_conditions (discount_id, condition_type, operator, value) VALUES ($1, $2, $3, $4)`
	insertCodeSQL       = `INSERT INTO discount_codes (discount_id, code) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	syncSequencesSQL = `SELECT setval(pg_get_serial_sequence('discounts', 'id'), COALESCE((SELECT MAX(id) FROM discounts), 1)),
		setval(pg_get_serial_sequence('products', 'id'), COALESCE((SELECT MAX(id) FROM products), 1))`
)

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/discounts.json", "path to the discounts seed file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	lg := zctx.From(ctx)

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	batch := &pgx.Batch{}
	for _, p := range seed.Products {
		batch.Queue(upsertProductSQL, p.ID, p.Name, p.BrandID, p.Price)
		for _, c := range p.Categories {
			batch.Queue(insertCategorySQL, c, p.ID)
		}
		for _, c := range p.Collections {
			batch.Queue(insertCollectionSQL, c, p.ID)
		}
	}
	for _, d := range seed.Discounts {
		queueDiscount(batch, d)
	}
	batch.Queue(syncSequencesSQL)

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Wrap(err, "apply seed")
	}

	lg.Info("Seeded",
		zap.Int("products", len(seed.Products)),
		zap.Int("discounts", len(seed.Discounts)),
		zap.Int("statements", batch.Len()),
	)
	return nil
}

func queueDiscount(batch *pgx.Batch, d discountSeed) {
	status := d.Status
	if status == "" {
		status = "inactive"
	}
	stacking := d.StackingPolicy
	if stacking == "" {
		stacking = "stack"
	}

	batch.Queue(upsertDiscountSQL,
		d.ID, d.Name, status, d.Priority, d.DiscountType, d.Value,
		d.WeekdayMask, jsonb(d.TimeWindow), d.PerDayLimit, d.Currencies, d.Channels,
		d.FirstOrderOnly, d.FreeShipping, d.AppliesToShipping, d.Exclusive, stacking, jsonb(d.Metadata),
	)
	batch.Queue(deleteConditionsSQL, d.ID)
	for _, c := range d.Conditions {
		batch.Queue(insertConditionSQL, d.ID, c.Type, c.Operator, jsonb(c.Value))
	}
	for _, code := range d.Codes {
		batch.Queue(insertCodeSQL, d.ID, code)
	}
}

// jsonb maps an absent payload to SQL NULL.
func jsonb(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
