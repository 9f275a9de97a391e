package discount

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// --- Mock implementations ---

type mockStore struct {
	discounts []Discount
	loadErr   error
	policyErr error
	loads     int
}

func (m *mockStore) ActiveCandidates(_ context.Context, _ time.Time) ([]Discount, error) {
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.discounts, nil
}

func (m *mockStore) Policies(_ context.Context, ids []int64) (map[int64]Policy, error) {
	if m.policyErr != nil {
		return nil, m.policyErr
	}
	out := make(map[int64]Policy, len(ids))
	for _, id := range ids {
		for _, disc := range m.discounts {
			if disc.ID == id {
				out[id] = Policy{Exclusive: disc.Exclusive, Stacking: disc.Stacking}
			}
		}
	}
	return out, nil
}

type mockCodes struct {
	codes map[int64][]string
	err   error
}

func (m *mockCodes) HasCode(_ context.Context, discountID int64, code string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, c := range m.codes[discountID] {
		if strings.EqualFold(c, code) {
			return true, nil
		}
	}
	return false, nil
}

type mockRedemptions struct {
	counts map[int64]int
	err    error
	from   time.Time
	to     time.Time
}

func (m *mockRedemptions) CountRedemptions(_ context.Context, discountID int64, from, to time.Time) (int, error) {
	m.from, m.to = from, to
	return m.counts[discountID], m.err
}

type mockCustomers struct {
	groups      map[int64][]int64
	tiers       map[int64]string
	orders      map[int64]int
	orderErr    error
	orderLookup int
}

func (m *mockCustomers) GroupIDs(_ context.Context, userID int64) ([]int64, error) {
	return m.groups[userID], nil
}

func (m *mockCustomers) PartnerTier(_ context.Context, userID int64) (string, error) {
	return m.tiers[userID], nil
}

func (m *mockCustomers) PlacedOrderCount(_ context.Context, userID int64, _ []string) (int, error) {
	m.orderLookup++
	return m.orders[userID], m.orderErr
}

type mockCatalog struct {
	brands      map[int64]int64
	categories  map[int64][]int64
	collections map[int64][]int64
	err         error
}

func (m *mockCatalog) Brands(_ context.Context, _ []int64) (map[int64]int64, error) {
	return m.brands, m.err
}

func (m *mockCatalog) Categories(_ context.Context, _ []int64) (map[int64][]int64, error) {
	return m.categories, m.err
}

func (m *mockCatalog) InCollections(_ context.Context, collectionIDs []int64, productID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, cid := range collectionIDs {
		for _, pid := range m.collections[cid] {
			if pid == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string][]Discount
	ttl   time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]Discount)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]Discount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, discounts []Discount, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = discounts
	c.ttl = ttl
}

type recordingSink struct {
	evaluated []EvaluationEvent
	lookups   []CacheEvent
}

func (s *recordingSink) DiscountEvaluated(_ context.Context, e EvaluationEvent) {
	s.evaluated = append(s.evaluated, e)
}

func (s *recordingSink) CandidateLookup(_ context.Context, e CacheEvent) {
	s.lookups = append(s.lookups, e)
}

// --- Helpers ---

func activeDiscount(id int64, effect Effect) Discount {
	return Discount{
		ID:       id,
		Name:     "discount",
		Status:   StatusActive,
		Priority: int(id),
		Effect:   effect,
		Stacking: StackingStack,
	}
}

func pct(v string) Effect   { return Percentage{Value: d(v)} }
func fixed(v string) Effect { return Fixed{Value: d(v)} }

func idCondition(t ConditionType, ids ...int64) Condition {
	return Condition{Type: t, IDs: ids}
}

func thresholdCondition(t ConditionType, op Operator, v string) Condition {
	return Condition{Type: t, Operator: op, Threshold: decimal.NewNullDecimal(d(v))}
}

func cartOf(items ...CartItem) Cart {
	c := Cart{Items: items}
	c.Subtotal = c.ItemsSubtotal()
	return c
}

func item(productID int64, qty int, price string) CartItem {
	return CartItem{ProductID: productID, Quantity: qty, UnitPrice: d(price)}
}

func newTestEngine(store *mockStore, opts ...Option) *Engine {
	return NewEngine(Deps{
		Discounts:   store,
		Codes:       &mockCodes{},
		Redemptions: &mockRedemptions{},
		Customers:   &mockCustomers{},
		Catalog:     &mockCatalog{},
	}, opts...)
}
