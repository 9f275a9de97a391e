// Command code-import attaches discount codes from gzip-compressed code lists
// to a discount.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/codeimport"
	"github.com/xenking/discount-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		discountID  int64
		dryRun      bool
		opts        codeimport.Options
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&discountID, "discount-id", 0, "discount the codes are attached to")
	flag.IntVar(&opts.MinFiles, "min-files", 1, "keep codes that appear in at least this many files")
	flag.IntVar(&opts.MinLen, "min-len", 4, "minimum code length")
	flag.IntVar(&opts.MaxLen, "max-len", 32, "maximum code length")
	flag.UintVar(&opts.Capacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Float64Var(&opts.FalsePositiveRate, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Uint64Var(&opts.ProgressEvery, "progress-every", 1_000_000, "log progress every N codes")
	flag.BoolVar(&dryRun, "dry-run", false, "collect codes without writing them")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if discountID <= 0 {
		lg.Fatal("Discount id is required: set --discount-id")
	}
	files := flag.Args()
	if len(files) == 0 {
		lg.Fatal("Usage: code-import [flags] FILE.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, discountID, files, opts, dryRun); err != nil {
		lg.Fatal("Code import failed", zap.Error(err))
	}
}

func run(ctx context.Context, databaseURL string, discountID int64, files []string, opts codeimport.Options, dryRun bool) error {
	lg := zctx.From(ctx)
	lg.Info("Collecting codes", zap.Strings("files", files), zap.Int("min_files", opts.MinFiles))

	codes, err := codeimport.Collect(ctx, files, opts)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}
	lg.Info("Codes collected", zap.Int("count", len(codes)))

	if dryRun || len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	added, err := postgres.NewCodeStore(pool).Import(ctx, discountID, codes)
	if err != nil {
		return errors.Wrapf(err, "import codes for discount %d", discountID)
	}
	lg.Info("Codes imported",
		zap.Int64("discount_id", discountID),
		zap.Int64("added", added),
		zap.Int("skipped", len(codes)-int(added)),
	)
	return nil
}
