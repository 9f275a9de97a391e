// Package codeimport extracts discount codes from gzip-compressed code lists.
//
// Each file holds one code per line. Codes may be required to appear in a
// minimum number of files; cross-file membership is tested with one bloom
// filter per file, so the exact sets never have to be held in memory at once.
package codeimport

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxFiles is bounded by the width of the per-code file bitmask.
const maxFiles = bits.UintSize

// Options controls code extraction.
type Options struct {
	// MinFiles is how many files a code must appear in. Zero means one.
	MinFiles int
	MinLen   int
	MaxLen   int
	// Capacity and FalsePositiveRate size each bloom filter.
	Capacity          uint
	FalsePositiveRate float64
	// ProgressEvery logs scan progress every N codes. Zero disables it.
	ProgressEvery uint64
}

func (o Options) withDefaults() Options {
	if o.MinFiles <= 0 {
		o.MinFiles = 1
	}
	if o.MinLen <= 0 {
		o.MinLen = 1
	}
	if o.MaxLen <= 0 {
		o.MaxLen = 64
	}
	if o.Capacity == 0 {
		o.Capacity = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
	return o
}

func (o Options) accept(code string) bool {
	return len(code) >= o.MinLen && len(code) <= o.MaxLen
}

// Collect returns the sorted distinct codes that appear in at least
// MinFiles of the given files.
func Collect(ctx context.Context, files []string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	switch {
	case len(files) == 0:
		return nil, errors.New("no input files")
	case len(files) > maxFiles:
		return nil, errors.Errorf("too many input files: %d > %d", len(files), maxFiles)
	case opts.MinFiles > len(files):
		return nil, errors.Errorf("min files %d exceeds input files %d", opts.MinFiles, len(files))
	}

	var filters []*bloom.BloomFilter
	if opts.MinFiles > 1 {
		var err error
		if filters, err = buildFilters(ctx, files, opts); err != nil {
			return nil, errors.Wrap(err, "build bloom filters")
		}
	}

	masks := make([]map[string]uint, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			m, err := scanCandidates(gctx, i, f, filters, opts)
			if err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}
			masks[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	out := make([]string, 0, len(merged))
	for code, mask := range merged {
		if bits.OnesCount(mask) >= opts.MinFiles {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out, nil
}

func buildFilters(ctx context.Context, files []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FalsePositiveRate)
			n, err := streamCodes(ctx, f, opts, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", f)
			}
			zctx.From(ctx).Info("Indexed file", zap.String("file", f), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanCandidates marks each code of file idx with its own bit and keeps it
// when enough other files' filters may contain it. Bloom false positives are
// possible here; the merged exact masks settle them.
func scanCandidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter, opts Options) (map[string]uint, error) {
	out := make(map[string]uint)
	bit := uint(1) << uint(idx)
	need := opts.MinFiles - 1

	n, err := streamCodes(ctx, path, opts, func(code string) {
		if need > 0 {
			seen := 0
			for j, f := range filters {
				if j != idx && f.TestString(code) {
					seen++
				}
			}
			if seen < need {
				return
			}
		}
		out[code] |= bit
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Scanned file",
		zap.String("file", path),
		zap.Uint64("codes", n),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// streamCodes calls fn for every accepted, trimmed line of a gzip file and
// returns how many codes were accepted.
func streamCodes(ctx context.Context, path string, opts Options, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	lg := zctx.From(ctx)
	var count uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		code := strings.TrimSpace(scanner.Text())
		if !opts.accept(code) {
			continue
		}
		fn(code)
		count++
		if opts.ProgressEvery > 0 && count%opts.ProgressEvery == 0 {
			lg.Info("Scan progress", zap.String("file", path), zap.Uint64("codes", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrap(err, "scan")
	}
	return count, nil
}
