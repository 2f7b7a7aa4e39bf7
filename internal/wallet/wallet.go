// Package wallet implements the wallet-debit service of spec §4.7
// (component C7): converts a CUSTOMER line item into a WALLET ledger debit
// and triggers auto-top-up, grounded on C4's ledger.Service for the actual
// posting.
package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
)

// AutoTopUpTrigger is the subset of C11 the wallet service calls after a
// successful debit (spec §4.7 step 6); failure here is logged and
// swallowed.
type AutoTopUpTrigger interface {
	CheckAndTriggerAutoTopUp(ctx context.Context, appID, teamID uuid.UUID) error
}

type Service struct {
	Store   store.Store
	Ledger  *ledger.Service
	TopUp   AutoTopUpTrigger
	Log     *zap.Logger
	Clock   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Result mirrors the three outcomes DebitImmediate can return (spec §4.7):
// "" for a fresh debit, "duplicate" on a replayed idempotency key, and
// "skipped" whenever steps 1-3 bail out early.
const (
	ResultDebited  = ""
	ResultDuplicate = "duplicate"
	ResultSkipped  = "skipped"
)

// DebitImmediate implements spec §4.7 steps 1-6.
func (s *Service) DebitImmediate(ctx context.Context, lineItemID uuid.UUID) (string, error) {
	item, err := s.Store.GetLineItem(ctx, lineItemID)
	if err != nil {
		if err == store.ErrNotFound {
			return ResultSkipped, nil
		}
		return "", err
	}
	if item.WalletDebitedAt != nil {
		return ResultSkipped, nil
	}

	team, err := s.Store.GetTeam(ctx, item.AppID, item.TeamID)
	if err != nil {
		if err == store.ErrNotFound {
			return ResultSkipped, nil
		}
		return "", err
	}
	if team.BillingMode != store.BillingModeWallet {
		return ResultSkipped, nil
	}
	if item.PriceBookKind != store.PriceBookKindCustomer {
		return ResultSkipped, nil
	}

	now := s.now()
	_, err = s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		AppID:          item.AppID,
		BillToID:       item.BillToID,
		AccountType:    store.LedgerAccountWallet,
		Type:           store.LedgerEntryUsageCharge,
		AmountMinor:    -item.AmountMinor,
		Currency:       item.Currency,
		ReferenceType:  "USAGE_EVENT",
		ReferenceID:    refString(item.UsageEventID),
		IdempotencyKey: fmt.Sprintf("wallet-debit:%s", lineItemID),
		Metadata: map[string]any{
			"mode":        "immediate",
			"lineItemId":  lineItemID.String(),
			"description": item.Description,
		},
		Now: now,
	})
	if ledger.IsDuplicate(err) {
		return ResultDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	if err := s.Store.MarkLineItemWalletDebited(ctx, lineItemID, now); err != nil {
		return "", err
	}

	if err := s.TopUp.CheckAndTriggerAutoTopUp(ctx, item.AppID, item.TeamID); err != nil {
		s.logger().Error("auto top-up check failed",
			zap.String("appId", item.AppID.String()), zap.String("teamId", item.TeamID.String()), zap.Error(err))
	}

	return ResultDebited, nil
}

// DebitBatch implements spec §4.7's periodic sweep: aggregate undebited
// CUSTOMER line items per (appId, billToId) into one ledger entry keyed by a
// hash of the sorted line item ids.
func (s *Service) DebitBatch(ctx context.Context, appID, billToID uuid.UUID) error {
	items, err := s.Store.ListUndebitedCustomerLineItems(ctx, appID, billToID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	var total int64
	currency := items[0].Currency
	for i, item := range items {
		ids[i] = item.ID.String()
		total += item.AmountMinor
	}
	sort.Strings(ids)
	hash := sha256.Sum256([]byte(strings.Join(ids, ",")))

	now := s.now()
	_, err = s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		AppID:          appID,
		BillToID:       billToID,
		AccountType:    store.LedgerAccountWallet,
		Type:           store.LedgerEntryUsageCharge,
		AmountMinor:    -total,
		Currency:       currency,
		ReferenceType:  "USAGE_BATCH",
		IdempotencyKey: fmt.Sprintf("wallet-batch:%s:%s:%s", appID, billToID, hex.EncodeToString(hash[:])),
		Metadata: map[string]any{
			"mode":      "batch",
			"lineItems": ids,
		},
		Now: now,
	})
	if ledger.IsDuplicate(err) {
		err = nil
	}
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := s.Store.MarkLineItemWalletDebited(ctx, item.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// HandleTopUpSucceeded implements spec §4.12's "payment_intent.succeeded
// with metadata.type == wallet_topup → C7 handle top-up success": posts a
// TOPUP ledger entry keyed by the gateway event id so duplicate webhook
// deliveries are no-ops (spec §4.12's closing idempotency invariant).
func (s *Service) HandleTopUpSucceeded(ctx context.Context, eventID string, pi *stripe.PaymentIntent) error {
	teamIDStr := pi.Metadata["teamId"]
	appIDStr := pi.Metadata["appId"]
	teamID, err := uuid.Parse(teamIDStr)
	if err != nil {
		s.logger().Warn("payment_intent.succeeded wallet_topup missing teamId metadata", zap.String("paymentIntentId", pi.ID))
		return nil
	}
	appID, err := uuid.Parse(appIDStr)
	if err != nil {
		s.logger().Warn("payment_intent.succeeded wallet_topup missing appId metadata", zap.String("paymentIntentId", pi.ID))
		return nil
	}

	entity, err := s.Store.GetBillingEntityForTeam(ctx, teamID)
	if err != nil {
		return err
	}

	ref := pi.ID
	_, err = s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		AppID:          appID,
		BillToID:       entity.ID,
		AccountType:    store.LedgerAccountWallet,
		Type:           store.LedgerEntryTopup,
		AmountMinor:    pi.Amount,
		Currency:       string(pi.Currency),
		ReferenceType:  "PAYMENT_INTENT",
		ReferenceID:    &ref,
		IdempotencyKey: fmt.Sprintf("topup:%s", eventID),
		Metadata: map[string]any{
			"paymentIntentId": pi.ID,
			"trigger":         pi.Metadata["trigger"],
		},
		Now: s.now(),
	})
	if ledger.IsDuplicate(err) {
		return nil
	}
	return err
}

func refString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
