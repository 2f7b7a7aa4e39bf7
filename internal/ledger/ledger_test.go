package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
)

func newService() *Service {
	return &Service{Store: memstore.New()}
}

func TestGetOrCreateAccountCollapsesOnKey(t *testing.T) {
	svc := newService()
	appID, billToID := uuid.New(), uuid.New()

	id1, err := svc.GetOrCreateAccount(context.Background(), appID, billToID, store.LedgerAccountWallet)
	require.NoError(t, err)

	id2, err := svc.GetOrCreateAccount(context.Background(), appID, billToID, store.LedgerAccountWallet)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestCreateEntryDuplicateIdempotencyKeyReturnsExistingID(t *testing.T) {
	svc := newService()
	appID, billToID := uuid.New(), uuid.New()

	params := CreateEntryParams{
		AppID:          appID,
		BillToID:       billToID,
		AccountType:    store.LedgerAccountWallet,
		Type:           store.LedgerEntryTopup,
		AmountMinor:    1000,
		Currency:       "usd",
		IdempotencyKey: "topup-abc",
		Now:            time.Now().UTC(),
	}

	first, err := svc.CreateEntry(context.Background(), params)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first)

	second, err := svc.CreateEntry(context.Background(), params)
	assert.True(t, IsDuplicate(err))
	assert.Equal(t, first, second)
}

func TestGetBalanceSumsEntries(t *testing.T) {
	svc := newService()
	appID, billToID := uuid.New(), uuid.New()

	_, err := svc.CreateEntry(context.Background(), CreateEntryParams{
		AppID: appID, BillToID: billToID,
		AccountType: store.LedgerAccountWallet, Type: store.LedgerEntryTopup,
		AmountMinor: 500, Currency: "usd", IdempotencyKey: "a",
	})
	require.NoError(t, err)

	_, err = svc.CreateEntry(context.Background(), CreateEntryParams{
		AppID: appID, BillToID: billToID,
		AccountType: store.LedgerAccountWallet, Type: store.LedgerEntryUsageCharge,
		AmountMinor: -120, Currency: "usd", IdempotencyKey: "b",
	})
	require.NoError(t, err)

	accountID, err := svc.GetOrCreateAccount(context.Background(), appID, billToID, store.LedgerAccountWallet)
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), accountID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(380), balance)
}

func TestGetBalanceForBillToOnUnpostedAccountIsZero(t *testing.T) {
	svc := newService()
	balance, err := svc.GetBalanceForBillTo(context.Background(), uuid.New(), uuid.New(), store.LedgerAccountWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
