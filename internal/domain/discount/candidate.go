package discount

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-faster/errors"
)

// DefaultCandidateTTL is how long a candidate set stays cached.
const DefaultCandidateTTL = 3 * time.Minute

// CandidateStore resolves the active discounts for a market and time bucket,
// caching the result.
type CandidateStore struct {
	source CandidateSource
	cache  Cache
	ttl    time.Duration
	sink   Sink
}

// NewCandidateStore creates a CandidateStore. A nil cache disables caching.
func NewCandidateStore(source CandidateSource, cache Cache, ttl time.Duration, sink Sink) *CandidateStore {
	if ttl <= 0 {
		ttl = DefaultCandidateTTL
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &CandidateStore{source: source, cache: cache, ttl: ttl, sink: sink}
}

// Collect returns active candidates ordered by ascending priority.
func (s *CandidateStore) Collect(ctx context.Context, ec EvaluationContext, now time.Time) ([]Discount, error) {
	key := CandidateKey(ec, now)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.sink.CandidateLookup(ctx, CacheEvent{Key: key, Hit: true, Count: len(cached)})
			return cached, nil
		}
	}

	loaded, err := s.source.ActiveCandidates(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "load candidates")
	}

	candidates := make([]Discount, 0, len(loaded))
	for _, d := range loaded {
		if d.ActiveAt(now) {
			candidates = append(candidates, d)
		}
	}
	slices.SortStableFunc(candidates, func(a, b Discount) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if s.cache != nil {
		s.cache.Set(ctx, key, candidates, s.ttl)
	}
	s.sink.CandidateLookup(ctx, CacheEvent{Key: key, Hit: false, Count: len(candidates)})

	return candidates, nil
}

// CandidateKey derives the cache key for a candidate set. The user and the
// cart are deliberately not part of the key.
func CandidateKey(ec EvaluationContext, now time.Time) string {
	var b strings.Builder
	b.WriteString("discounts:candidates:")
	b.WriteString(strconv.FormatInt(ec.ZoneID, 10))
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(ec.CurrencyCode))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(ec.ChannelID, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(groupsHash(ec.GroupIDs), 16))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(ec.PartnerTier))
	b.WriteByte(':')
	b.WriteString(now.UTC().Truncate(time.Minute).Format("200601021504"))
	return b.String()
}

func groupsHash(ids []int64) uint64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	d := xxhash.New()
	for _, id := range sorted {
		_, _ = d.WriteString(strconv.FormatInt(id, 10))
		_, _ = d.WriteString(",")
	}
	return d.Sum64()
}
