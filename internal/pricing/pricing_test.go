package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/store"
)

// fakeStore is a narrow in-memory store.PricingStore double, used instead
// of memstore so tests control price books/rules directly without going
// through the admin catalog surface.
type fakeStore struct {
	books map[store.PriceBookKind][]store.PriceBook
	rules map[uuid.UUID][]store.PriceRule
}

func newFakeStore() *fakeStore {
	return &fakeStore{books: map[store.PriceBookKind][]store.PriceBook{}, rules: map[uuid.UUID][]store.PriceRule{}}
}

func (f *fakeStore) ListPriceBooks(ctx context.Context, appID uuid.UUID, kind store.PriceBookKind, asOf time.Time) ([]store.PriceBook, error) {
	return f.books[kind], nil
}

func (f *fakeStore) ListPriceRules(ctx context.Context, priceBookID uuid.UUID) ([]store.PriceRule, error) {
	return f.rules[priceBookID], nil
}

func (f *fakeStore) ClaimUnpricedEvents(ctx context.Context, now time.Time, limit int) ([]store.UsageEvent, error) {
	return nil, nil
}
func (f *fakeStore) MarkEventPriced(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	return nil
}
func (f *fakeStore) ScheduleEventRetry(ctx context.Context, eventID uuid.UUID, retryCount int, nextRetryAt time.Time) error {
	return nil
}
func (f *fakeStore) CountLineItemsForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeStore) addBook(kind store.PriceBookKind) store.PriceBook {
	book := store.PriceBook{ID: uuid.New(), Kind: kind, EffectiveFrom: time.Time{}}
	f.books[kind] = append(f.books[kind], book)
	return book
}

func (f *fakeStore) addRule(bookID uuid.UUID, r store.PriceRule) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.rules[bookID] = append(f.rules[bookID], r)
}

func TestPriceFlatRule(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	fs.addRule(cogs.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "api_call"},
		Rule:  store.Rule{Kind: store.RuleKindFlat, Amount: 5},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, int64(5), drafts[0].AmountMinor)
}

func TestPricePerUnitRoundsUp(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	fs.addRule(cogs.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "tokens_consumed"},
		Rule:  store.Rule{Kind: store.RuleKindPerUnit, Field: "tokens", UnitPrice: 1},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{
		EventType: "tokens_consumed",
		Payload:   map[string]any{"tokens": 2.1},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, int64(3), drafts[0].AmountMinor)
}

func TestPriceTieredAccumulatesAcrossBoundaries(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	upTo100 := int64(100)
	fs.addRule(cogs.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "storage_bytes"},
		Rule: store.Rule{
			Kind:        store.RuleKindTiered,
			TieredField: "bytes",
			Tiers: []store.Tier{
				{UpTo: &upTo100, UnitPrice: 1},
				{UpTo: nil, UnitPrice: 2},
			},
		},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{
		EventType: "storage_bytes",
		Payload:   map[string]any{"bytes": 150},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	// 100 units at 1 + 50 units at 2 = 200
	assert.Equal(t, int64(200), drafts[0].AmountMinor)
}

func TestPriceNoCOGSBookIsPermanentError(t *testing.T) {
	fs := newFakeStore()
	engine := &Engine{Store: fs}
	_, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, KindNoPriceBook, err.(*Error).Kind)
}

func TestPriceNoMatchingRuleIsPermanentError(t *testing.T) {
	fs := newFakeStore()
	fs.addBook(store.PriceBookKindCOGS)
	engine := &Engine{Store: fs}
	_, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.Error(t, err)
	assert.Equal(t, KindNoMatchingRule, err.(*Error).Kind)
}

func TestPriceHighestPriorityRuleWins(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	fs.addRule(cogs.ID, store.PriceRule{
		Priority: 1, Match: store.RuleMatch{EventType: "api_call"},
		Rule: store.Rule{Kind: store.RuleKindFlat, Amount: 1},
	})
	fs.addRule(cogs.ID, store.PriceRule{
		Priority: 5, Match: store.RuleMatch{EventType: "api_call"},
		Rule: store.Rule{Kind: store.RuleKindFlat, Amount: 9},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), drafts[0].AmountMinor)
}

func TestPriceSkipsOptionalCustomerBook(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	fs.addRule(cogs.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "api_call"},
		Rule:  store.Rule{Kind: store.RuleKindFlat, Amount: 5},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, store.PriceBookKindCOGS, drafts[0].PriceBook.Kind)
}

func TestPriceIncludesCustomerBookWhenPresent(t *testing.T) {
	fs := newFakeStore()
	cogs := fs.addBook(store.PriceBookKindCOGS)
	fs.addRule(cogs.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "api_call"},
		Rule:  store.Rule{Kind: store.RuleKindFlat, Amount: 5},
	})
	customer := fs.addBook(store.PriceBookKindCustomer)
	fs.addRule(customer.ID, store.PriceRule{
		Match: store.RuleMatch{EventType: "api_call"},
		Rule:  store.Rule{Kind: store.RuleKindFlat, Amount: 10},
	})

	engine := &Engine{Store: fs}
	drafts, err := engine.Price(context.Background(), store.UsageEvent{EventType: "api_call"})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
}
