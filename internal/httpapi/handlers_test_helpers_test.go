package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/catalog"
	"github.com/fluxmeter/billing-core/internal/entitlement"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/periodclose"
	"github.com/fluxmeter/billing-core/internal/pricing"
	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
	"github.com/fluxmeter/billing-core/internal/subscription"
	"github.com/fluxmeter/billing-core/internal/tokenengine"
	"github.com/fluxmeter/billing-core/internal/vault"
	"github.com/fluxmeter/billing-core/internal/wallet"
	"github.com/fluxmeter/billing-core/internal/webhook"
)

const testVaultKeyHex = "0001020304050607000102030405060700010203040506070001020304050607"
const testWebhookSecret = "whsec_test_secret"
const testAdminKey = "admin-test-key"

// newTestHandlers wires every component against a fresh memstore, mirroring
// cmd/api/main.go's composition but without a live Stripe client; tests that
// would exercise Checkout's Stripe-calling paths are out of scope here for
// the same reason internal/checkout/checkout_test.go scopes around them.
func newTestHandlers(t *testing.T) (*Handlers, store.Store) {
	t.Helper()
	st := memstore.New()
	v, err := vault.NewFromHex(testVaultKeyHex)
	require.NoError(t, err)

	ledgerSvc := &ledger.Service{Store: st}
	entitlementResolver := &entitlement.Resolver{Store: st}

	return &Handlers{
		Store:       st,
		Vault:       v,
		TokenEngine: &tokenengine.Engine{Secrets: st, Replay: st, Vault: v},
		Ledger:      ledgerSvc,
		Pricer:      &pricing.Engine{Store: st},
		Entitlement: entitlementResolver,
		Catalog:     &catalog.Service{Store: st, Entitlement: entitlementResolver},
		Wallet:      &wallet.Service{Store: st, Ledger: ledgerSvc},
		Webhook: &webhook.Dispatcher{
			Secret:       testWebhookSecret,
			Store:        st,
			Subscription: &subscription.Service{Store: st, Ledger: ledgerSvc, Entitlement: entitlementResolver},
			TopUp:        &wallet.Service{Store: st, Ledger: ledgerSvc},
			Ledger:       ledgerSvc,
		},
		PeriodClose:         &periodclose.Service{Store: st, Ledger: ledgerSvc, Entitlement: entitlementResolver},
		Subscription:        &subscription.Service{Store: st, Ledger: ledgerSvc, Entitlement: entitlementResolver},
		AdminKey:            testAdminKey,
		MaxBatchSize:        100,
		SupportedEventTypes: []string{"api_call", "tokens_consumed"},
	}, st
}

func seedApp(t *testing.T, st store.Store) store.App {
	t.Helper()
	app, err := st.CreateApp(context.Background(), store.App{Status: store.AppStatusActive})
	require.NoError(t, err)
	return app
}

func seedTeam(t *testing.T, st store.Store, appID uuid.UUID) store.Team {
	t.Helper()
	team, _, err := st.GetOrCreateTeamByExternalRef(context.Background(), appID, "ext-"+uuid.NewString(), store.Team{
		AppID: appID, Kind: store.TeamKindStandard, DefaultCurrency: "usd", BillingMode: store.BillingModeWallet,
	})
	require.NoError(t, err)
	return team
}

func mintTokenFor(t *testing.T, h *Handlers, st store.Store, appID uuid.UUID, teamID *uuid.UUID, scopes []string) string {
	t.Helper()
	secret := []byte("fixture-hmac-secret-0123456789ab")
	encrypted, err := h.Vault.Encrypt(string(secret))
	require.NoError(t, err)
	kid := uuid.NewString()
	_, err = st.CreateAppSecret(context.Background(), store.AppSecret{
		AppID: appID, Kid: kid, EncryptedSecret: encrypted, Status: store.SecretStatusActive,
	})
	require.NoError(t, err)

	tok, err := tokenengine.Mint(tokenengine.MintParams{
		AppID: appID, TeamID: teamID, Subject: "svc", Scopes: scopes, TTL: time.Minute, Kid: kid, Secret: secret,
	})
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// doRawBody sends body verbatim, unlike doJSON which re-marshals it; needed
// for the Stripe webhook route where the signature covers the exact bytes.
func doRawBody(t *testing.T, router *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
