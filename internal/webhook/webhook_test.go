package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/mock/gomock"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
	"github.com/fluxmeter/billing-core/internal/webhook/webhookmocks"
)

const testSecret = "whsec_test_secret"

// signPayload replicates Stripe's documented webhook signing scheme
// (t=<timestamp>,v1=<hex hmac-sha256>) so tests don't need a live Stripe
// account to exercise Dispatcher.Handle's signature verification step.
// Signed bodies carry stripe.APIVersion as api_version because
// ConstructEvent rejects events from a different API version.
func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

func newDispatcher(sub SubscriptionHandler, topUp WalletTopUpHandler) *Dispatcher {
	st := memstore.New()
	return &Dispatcher{
		Secret:       testSecret,
		Store:        st,
		Subscription: sub,
		TopUp:        topUp,
		Ledger:       &ledger.Service{Store: st},
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	d := newDispatcher(webhookmocks.NewMockSubscriptionHandler(ctrl), webhookmocks.NewMockWalletTopUpHandler(ctrl))

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	err := d.Handle(context.Background(), body, "t=1,v1=deadbeef")
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestHandleRoutesCheckoutSessionCompleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sub := webhookmocks.NewMockSubscriptionHandler(ctrl)
	sub.EXPECT().HandleCheckoutCompleted(gomock.Any(), "evt_1", gomock.Any()).Return(nil)
	d := newDispatcher(sub, webhookmocks.NewMockWalletTopUpHandler(ctrl))

	body := []byte(`{"id":"evt_1","api_version":"` + stripe.APIVersion + `","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	require.NoError(t, d.Handle(context.Background(), body, signPayload(t, body)))
}

func TestHandleRoutesSubscriptionUpdatedAndDeleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sub := webhookmocks.NewMockSubscriptionHandler(ctrl)
	sub.EXPECT().HandleSubscriptionUpdated(gomock.Any(), gomock.Any()).Return(nil)
	sub.EXPECT().HandleSubscriptionDeleted(gomock.Any(), gomock.Any()).Return(nil)
	d := newDispatcher(sub, webhookmocks.NewMockWalletTopUpHandler(ctrl))

	updated := []byte(`{"id":"evt_2","api_version":"` + stripe.APIVersion + `","type":"customer.subscription.updated","data":{"object":{"id":"sub_1"}}}`)
	require.NoError(t, d.Handle(context.Background(), updated, signPayload(t, updated)))

	deleted := []byte(`{"id":"evt_3","api_version":"` + stripe.APIVersion + `","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1"}}}`)
	require.NoError(t, d.Handle(context.Background(), deleted, signPayload(t, deleted)))
}

func TestHandleIgnoresPaymentIntentWithoutWalletTopupMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	topUp := webhookmocks.NewMockWalletTopUpHandler(ctrl)
	d := newDispatcher(webhookmocks.NewMockSubscriptionHandler(ctrl), topUp)

	body := []byte(`{"id":"evt_4","api_version":"` + stripe.APIVersion + `","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"type":"other"}}}}`)
	require.NoError(t, d.Handle(context.Background(), body, signPayload(t, body)))
}

func TestHandleRoutesWalletTopupPaymentIntent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	topUp := webhookmocks.NewMockWalletTopUpHandler(ctrl)
	topUp.EXPECT().HandleTopUpSucceeded(gomock.Any(), "evt_5", gomock.Any()).Return(nil)
	d := newDispatcher(webhookmocks.NewMockSubscriptionHandler(ctrl), topUp)

	body := []byte(`{"id":"evt_5","api_version":"` + stripe.APIVersion + `","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"type":"wallet_topup"}}}}`)
	require.NoError(t, d.Handle(context.Background(), body, signPayload(t, body)))
}

func TestHandleIgnoresUnknownEventType(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	d := newDispatcher(webhookmocks.NewMockSubscriptionHandler(ctrl), webhookmocks.NewMockWalletTopUpHandler(ctrl))
	body := []byte(`{"id":"evt_6","api_version":"` + stripe.APIVersion + `","type":"invoice.created","data":{"object":{}}}`)
	assert.NoError(t, d.Handle(context.Background(), body, signPayload(t, body)))
}
