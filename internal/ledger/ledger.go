// Package ledger implements the append-only double-entry posting service of
// spec §4.4 (component C4), grounded on the transactional conventions in
// the teacher's apps/api/handlers/common.go (RunInTransaction/WithTx):
// every write that must be atomic runs inside a single store.WithinTx call.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

// Service implements C4's three operations against a store.Store.
type Service struct {
	Store store.Store
}

// CreateEntryParams is the input to CreateEntry (spec §4.4).
type CreateEntryParams struct {
	AppID          uuid.UUID
	BillToID       uuid.UUID
	AccountType    store.LedgerAccountType
	Type           store.LedgerEntryType
	AmountMinor    int64
	Currency       string
	ReferenceType  string
	ReferenceID    *string
	IdempotencyKey string
	Metadata       map[string]any
	Now            time.Time
}

// GetOrCreateAccount is lookup-or-insert on (appId, billToId, type); spec
// §4.4 and §5.1 both call this uniqueness-collapsing, not error-raising.
func (s *Service) GetOrCreateAccount(ctx context.Context, appID, billToID uuid.UUID, accountType store.LedgerAccountType) (uuid.UUID, error) {
	acc, err := s.Store.GetOrCreateLedgerAccount(ctx, appID, billToID, accountType)
	if err != nil {
		return uuid.Nil, err
	}
	return acc.ID, nil
}

// CreateEntry resolves the account and inserts the entry. On an
// idempotencyKey collision it returns the existing entry's id alongside
// store.ErrDuplicateLedgerEntry — spec §4.4: "the caller decides whether to
// swallow or surface".
func (s *Service) CreateEntry(ctx context.Context, p CreateEntryParams) (uuid.UUID, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var entryID uuid.UUID
	err := s.Store.WithinTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetOrCreateLedgerAccount(ctx, p.AppID, p.BillToID, p.AccountType)
		if err != nil {
			return err
		}

		entry, err := tx.CreateLedgerEntry(ctx, store.LedgerEntry{
			AppID:           p.AppID,
			BillToID:        p.BillToID,
			LedgerAccountID: acc.ID,
			Type:            p.Type,
			AmountMinor:     p.AmountMinor,
			Currency:        p.Currency,
			ReferenceType:   p.ReferenceType,
			ReferenceID:     p.ReferenceID,
			IdempotencyKey:  p.IdempotencyKey,
			Metadata:        p.Metadata,
			Timestamp:       now,
		})
		entryID = entry.ID
		return err
	})
	return entryID, err
}

// IsDuplicate reports whether err is the duplicate-idempotency-key signal
// callers are expected to check for and usually swallow (spec §4.4, §7).
func IsDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicateLedgerEntry)
}

// GetBalance sums amountMinor for an account, optionally as of a point in
// time (spec §4.4).
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (int64, error) {
	return s.Store.SumLedgerEntries(ctx, accountID, asOf)
}

// GetBalanceForBillTo is a convenience used by C11's auto-top-up check: it
// resolves the account first, then sums it, returning 0 if the account does
// not exist yet (an un-posted account has balance 0 by definition).
func (s *Service) GetBalanceForBillTo(ctx context.Context, appID, billToID uuid.UUID, accountType store.LedgerAccountType) (int64, error) {
	acc, err := s.Store.GetOrCreateLedgerAccount(ctx, appID, billToID, accountType)
	if err != nil {
		return 0, err
	}
	return s.Store.SumLedgerEntries(ctx, acc.ID, nil)
}
