package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func signWebhookPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h)

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	w := doRawBody(t, router, http.MethodPost, "/v1/stripe/webhook", body, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookAcceptsSignedUnknownEventAsNoop(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h)

	body := []byte(`{"id":"evt_1","api_version":"` + stripe.APIVersion + `","type":"invoice.created","data":{"object":{}}}`)
	w := doRawBody(t, router, http.MethodPost, "/v1/stripe/webhook", body, map[string]string{
		"Stripe-Signature": signWebhookPayload(t, body),
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
