// Package subscription implements the subscription handler of spec §4.13
// (component C13): three idempotent webhook-triggered mutations over
// TeamSubscription, each followed by an entitlement refresh, grounded on
// the teacher's mapStripeSubscriptionToPSSubscription field extraction in
// libs/go/client/payment_sync/stripe/subscription.go (status, period
// bounds and item quantity read off the same stripe.Subscription shape).
package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
)

// EntitlementInvalidator is the refreshEntitlements(team) command spec
// §4.13 issues after every mutation.
type EntitlementInvalidator interface {
	Invalidate(teamID uuid.UUID)
}

type Service struct {
	Store       store.Store
	Ledger      *ledger.Service
	Entitlement EntitlementInvalidator
	Log         *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// statusMap is the closed gateway-status lookup table spec §4.13 calls for.
// Statuses Stripe can report that are absent here (incomplete,
// incomplete_expired, unpaid, paused) are not guessed at:
// HandleSubscriptionUpdated logs them and leaves the stored status
// unchanged, while HandleCheckoutCompleted records the subscription as
// ACTIVE without logging.
var statusMap = map[stripe.SubscriptionStatus]store.SubscriptionStatus{
	stripe.SubscriptionStatusActive:   store.SubStatusActive,
	stripe.SubscriptionStatusPastDue:  store.SubStatusPastDue,
	stripe.SubscriptionStatusTrialing: store.SubStatusTrialing,
	stripe.SubscriptionStatusCanceled: store.SubStatusCanceled,
}

// HandleCheckoutCompleted implements spec §4.13's handleCheckoutCompleted.
// eventID is the Stripe event id (used for the ledger idempotency key, not
// the session id).
func (s *Service) HandleCheckoutCompleted(ctx context.Context, eventID string, session *stripe.CheckoutSession) error {
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	teamIDStr, ok := session.Metadata["teamId"]
	if !ok || teamIDStr == "" {
		return nil
	}
	teamID, err := parseUUID(teamIDStr)
	if err != nil {
		return nil
	}
	appID, err := parseUUID(session.Metadata["appId"])
	if err != nil {
		return nil
	}

	entity, err := s.Store.GetBillingEntityForTeam(ctx, teamID)
	if err != nil {
		return err
	}

	planID, _ := parseUUID(session.Metadata["planId"])

	gatewaySubID := ""
	periodStart := time.Now().UTC()
	periodEnd := periodStart.AddDate(0, 1, 0)
	seats := 1
	gwStatus := store.SubStatusActive

	if session.Subscription != nil {
		gatewaySubID = session.Subscription.ID
		if len(session.Subscription.Items.Data) > 0 {
			item := session.Subscription.Items.Data[0]
			if item.CurrentPeriodStart > 0 {
				periodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
			}
			if item.CurrentPeriodEnd > 0 {
				periodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
			}
			if item.Quantity > 0 {
				seats = int(item.Quantity)
			}
		}
		if mapped, ok := statusMap[session.Subscription.Status]; ok {
			gwStatus = mapped
		}
	}

	if _, err := s.Store.UpsertTeamSubscriptionByGatewayID(ctx, store.TeamSubscription{
		TeamID:                teamID,
		GatewaySubscriptionID: gatewaySubID,
		Status:                gwStatus,
		PlanID:                planID,
		CurrentPeriodStart:    periodStart,
		CurrentPeriodEnd:      periodEnd,
		SeatsQuantity:         seats,
	}); err != nil {
		return err
	}

	var reference *string
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		ref := session.PaymentIntent.ID
		reference = &ref
	}

	_, err = s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		AppID:          appID,
		BillToID:       entity.ID,
		AccountType:    store.LedgerAccountAccountsReceivable,
		Type:           store.LedgerEntrySubscriptionCharge,
		AmountMinor:    session.AmountTotal,
		Currency:       string(session.Currency),
		ReferenceType:  "PAYMENT_INTENT",
		ReferenceID:    reference,
		IdempotencyKey: "checkout:" + eventID,
		Metadata: map[string]any{
			"sessionId": session.ID,
			"planId":    session.Metadata["planId"],
		},
	})
	if ledger.IsDuplicate(err) {
		err = nil
	}
	if err != nil {
		return err
	}

	s.Entitlement.Invalidate(teamID)
	return nil
}

// HandleSubscriptionUpdated implements spec §4.13's handleSubscriptionUpdated.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	existing, err := s.Store.GetTeamSubscriptionByGatewayID(ctx, sub.ID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	updated := existing
	if mapped, ok := statusMap[sub.Status]; ok {
		updated.Status = mapped
	} else {
		s.logger().Warn("unmapped gateway subscription status", zap.String("status", string(sub.Status)), zap.String("gatewaySubscriptionId", sub.ID))
	}

	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			updated.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			updated.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		updated.SeatsQuantity = int(item.Quantity)
	}

	if _, err := s.Store.UpsertTeamSubscriptionByGatewayID(ctx, updated); err != nil {
		return err
	}
	s.Entitlement.Invalidate(existing.TeamID)
	return nil
}

// HandleSubscriptionDeleted implements spec §4.13's handleSubscriptionDeleted.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	canceled, err := s.Store.MarkSubscriptionCanceled(ctx, sub.ID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	s.Entitlement.Invalidate(canceled.TeamID)
	return nil
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
