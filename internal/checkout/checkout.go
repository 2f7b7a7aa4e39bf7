// Package checkout implements the checkout/top-up/portal driver of spec
// §4.11 (component C11): a thin wrapper over the gateway SDK enforcing the
// invariants spec.md spells out, grounded on the call shapes the teacher's
// libs/go/client/payment_sync/stripe package uses against the same
// stripe-go/v82 client (customer.go, subscription.go: stripe.NewClient,
// the V1<Resource>.Create/Retrieve method set, stripe.String/Int64/Bool
// param builders).
package checkout

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
)

const pendingCustomerPrefix = "pending:"

// Client drives checkout/portal/top-up flows against a configured Stripe
// client. SuccessURL/CancelURL/ReturnURL are return destinations the
// gateway redirects the browser to; they are operator config, not part of
// the request.
type Client struct {
	Stripe     *stripe.Client
	Store      store.Store
	Ledger     *ledger.Service
	Log        *zap.Logger
	SuccessURL string
	CancelURL  string
	ReturnURL  string
}

func (c *Client) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// getOrCreateStripeCustomer implements spec §4.11's optimistic single-row
// update: the loser of a concurrent create re-reads and returns the
// winner's id rather than erroring.
func (c *Client) getOrCreateStripeCustomer(ctx context.Context, appID, teamID uuid.UUID) (string, error) {
	team, err := c.Store.GetTeam(ctx, appID, teamID)
	if err != nil {
		return "", err
	}
	if hasCustomer(team) {
		return *team.StripeCustomerID, nil
	}

	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{
			"teamId": teamID.String(),
			"appId":  appID.String(),
		},
	}
	cust, err := c.Stripe.V1Customers.Create(ctx, params)
	if err != nil {
		return "", apierr.Wrap(apierr.KindInternal, "stripe customer create failed", err)
	}

	updated, current, err := c.Store.UpdateTeamStripeCustomerID(ctx, teamID, cust.ID)
	if err != nil {
		return "", err
	}
	if !updated {
		// Lost the race: another request already won. current is theirs.
		return current, nil
	}
	return cust.ID, nil
}

func hasCustomer(team store.Team) bool {
	return team.StripeCustomerID != nil && *team.StripeCustomerID != "" &&
		!strings.HasPrefix(*team.StripeCustomerID, pendingCustomerPrefix)
}

// CreateSubscriptionCheckout implements spec §4.11's createSubscriptionCheckout.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, appID, teamID uuid.UUID, planCode string, seats int) (*stripe.CheckoutSession, error) {
	plan, err := c.Store.GetPlanByCode(ctx, appID, planCode)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apierr.NotFound("unknown plan code")
		}
		return nil, err
	}
	if _, err := c.Store.GetTeam(ctx, appID, teamID); err != nil {
		return nil, err
	}

	customerID, err := c.getOrCreateStripeCustomer(ctx, appID, teamID)
	if err != nil {
		return nil, err
	}

	maps, err := c.Store.ListStripeProductMapsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	var lineItems []*stripe.CheckoutSessionCreateLineItemParams
	haveBase := false
	for _, pm := range maps {
		switch pm.Kind {
		case store.ProductMapKindBase:
			haveBase = true
			lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
				Price:    stripe.String(pm.StripePriceID),
				Quantity: stripe.Int64(1),
			})
		case store.ProductMapKindSeat:
			if seats > 0 {
				lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
					Price:    stripe.String(pm.StripePriceID),
					Quantity: stripe.Int64(int64(seats)),
				})
			}
		}
	}
	if !haveBase {
		return nil, apierr.Validation("plan has no BASE product mapping")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(customerID),
		LineItems:  lineItems,
		SuccessURL: stripe.String(c.SuccessURL),
		CancelURL:  stripe.String(c.CancelURL),
		Metadata: map[string]string{
			"teamId": teamID.String(),
			"appId":  appID.String(),
			"planId": plan.ID.String(),
		},
	}

	session, err := c.Stripe.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "stripe checkout session create failed", err)
	}
	return session, nil
}

// CreateTopupCheckout implements spec §4.11's createTopupCheckout: a single
// dynamic line item plus matching paymentIntentData metadata so the
// resulting payment_intent.succeeded webhook can identify the top-up
// without a round trip back to the session object.
func (c *Client) CreateTopupCheckout(ctx context.Context, appID, teamID uuid.UUID, amountMinor int64, currency string) (*stripe.CheckoutSession, error) {
	if _, err := c.Store.GetTeam(ctx, appID, teamID); err != nil {
		return nil, err
	}
	customerID, err := c.getOrCreateStripeCustomer(ctx, appID, teamID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"teamId":      teamID.String(),
		"appId":       appID.String(),
		"type":        "wallet_topup",
		"amountMinor": strconv.FormatInt(amountMinor, 10),
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amountMinor),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String("Wallet Top-Up"),
					},
				},
			},
		},
		SuccessURL: stripe.String(c.SuccessURL),
		CancelURL:  stripe.String(c.CancelURL),
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}

	session, err := c.Stripe.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "stripe checkout session create failed", err)
	}
	return session, nil
}

// CreatePortalSession implements spec §4.11's createPortalSession.
func (c *Client) CreatePortalSession(ctx context.Context, appID, teamID uuid.UUID) (*stripe.BillingPortalSession, error) {
	team, err := c.Store.GetTeam(ctx, appID, teamID)
	if err != nil {
		return nil, err
	}
	if !hasCustomer(team) {
		return nil, apierr.Validation("team has no stripe customer")
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(*team.StripeCustomerID),
		ReturnURL: stripe.String(c.ReturnURL),
	}
	session, err := c.Stripe.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "stripe portal session create failed", err)
	}
	return session, nil
}

// CheckAndTriggerAutoTopUp implements spec §4.11's checkAndTriggerAutoTopUp.
// It satisfies wallet.AutoTopUpTrigger.
func (c *Client) CheckAndTriggerAutoTopUp(ctx context.Context, appID, teamID uuid.UUID) error {
	cfg, err := c.Store.GetWalletConfig(ctx, appID, teamID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	if !cfg.AutoTopUpEnabled {
		return nil
	}

	entity, err := c.Store.GetBillingEntityForTeam(ctx, teamID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	balance, err := c.Ledger.GetBalanceForBillTo(ctx, appID, entity.ID, store.LedgerAccountWallet)
	if err != nil {
		return err
	}
	// Balance exactly equal to threshold does not trigger (spec §4.11).
	if balance >= cfg.ThresholdMinor {
		return nil
	}

	team, err := c.Store.GetTeam(ctx, appID, teamID)
	if err != nil {
		return err
	}
	if !hasCustomer(team) {
		c.logger().Warn("auto top-up skipped: team has no stripe customer",
			zap.String("appId", appID.String()), zap.String("teamId", teamID.String()))
		return nil
	}

	metadata := map[string]string{
		"teamId":      teamID.String(),
		"appId":       appID.String(),
		"type":        "wallet_topup",
		"amountMinor": strconv.FormatInt(cfg.TopUpAmountMinor, 10),
		"trigger":     "auto_topup",
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:     stripe.Int64(cfg.TopUpAmountMinor),
		Currency:   stripe.String(team.DefaultCurrency),
		Customer:   stripe.String(*team.StripeCustomerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
		Metadata:   metadata,
	}
	if _, err := c.Stripe.V1PaymentIntents.Create(ctx, params); err != nil {
		return apierr.Wrap(apierr.KindInternal, "stripe auto top-up payment intent failed", err)
	}
	return nil
}
