// Command api runs the HTTP surface of spec §6: admin, app, team, usage,
// billing, catalog and webhook endpoints over an in-process store,
// grounded on the teacher's apps/api/cmd/local pattern (godotenv.Load then
// logger.Init then server wiring) generalized off lambda/local build tags,
// which this service does not need.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82"

	"github.com/fluxmeter/billing-core/internal/catalog"
	"github.com/fluxmeter/billing-core/internal/checkout"
	"github.com/fluxmeter/billing-core/internal/entitlement"
	"github.com/fluxmeter/billing-core/internal/httpapi"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/logger"
	"github.com/fluxmeter/billing-core/internal/periodclose"
	"github.com/fluxmeter/billing-core/internal/pricing"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
	"github.com/fluxmeter/billing-core/internal/subscription"
	"github.com/fluxmeter/billing-core/internal/tokenengine"
	"github.com/fluxmeter/billing-core/internal/vault"
	"github.com/fluxmeter/billing-core/internal/wallet"
	"github.com/fluxmeter/billing-core/internal/webhook"
)

func requireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		logger.Fatal(fmt.Sprintf("missing required environment variable %s", name))
	}
	return v
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Fatal(fmt.Sprintf("invalid integer environment variable %s=%q", name, v))
	}
	return n
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file loaded: %v", err)
	}

	stage := os.Getenv("STAGE")
	logger.Init(stage)
	defer logger.Sync()

	adminKey := requireEnv("ADMIN_API_KEY")
	secretsKeyHex := requireEnv("SECRETS_ENCRYPTION_KEY")
	stripeSecretKey := requireEnv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := requireEnv("STRIPE_WEBHOOK_SECRET")

	maxBatchSize := envInt("MAX_BATCH_SIZE", 1000)
	jwtTTLSeconds := envInt("JWT_TTL_SECONDS", 60)

	v, err := vault.NewFromHex(secretsKeyHex)
	if err != nil {
		logger.Fatal("failed to initialize secrets vault: " + err.Error())
	}

	st := memstore.New()

	tokenEngine := &tokenengine.Engine{
		Secrets: st,
		Replay:  st,
		Vault:   v,
		Skew:    0,
	}
	logger.Info(fmt.Sprintf("jwt ttl configured at %ds (enforced by SDK-side token minting, not this service)", jwtTTLSeconds))

	ledgerSvc := &ledger.Service{Store: st}
	entitlementResolver := &entitlement.Resolver{Store: st}
	catalogSvc := &catalog.Service{Store: st, Entitlement: entitlementResolver}
	pricer := &pricing.Engine{Store: st}

	stripeClient := stripe.NewClient(stripeSecretKey, nil)

	checkoutClient := &checkout.Client{
		Stripe:     stripeClient,
		Store:      st,
		Ledger:     ledgerSvc,
		Log:        logger.Log,
		SuccessURL: envOr("CHECKOUT_SUCCESS_URL", "https://example.com/checkout/success"),
		CancelURL:  envOr("CHECKOUT_CANCEL_URL", "https://example.com/checkout/cancel"),
		ReturnURL:  envOr("PORTAL_RETURN_URL", "https://example.com/account"),
	}

	walletSvc := &wallet.Service{
		Store:  st,
		Ledger: ledgerSvc,
		TopUp:  checkoutClient,
		Log:    logger.Log,
	}

	subscriptionSvc := &subscription.Service{
		Store:       st,
		Ledger:      ledgerSvc,
		Entitlement: entitlementResolver,
		Log:         logger.Log,
	}

	webhookDispatcher := &webhook.Dispatcher{
		Secret:       stripeWebhookSecret,
		Store:        st,
		Subscription: subscriptionSvc,
		TopUp:        walletSvc,
		Ledger:       ledgerSvc,
		Log:          logger.Log,
	}

	periodCloseSvc := &periodclose.Service{
		Store:       st,
		Ledger:      ledgerSvc,
		Entitlement: entitlementResolver,
		Log:         logger.Log,
	}

	handlers := &httpapi.Handlers{
		Store:        st,
		Vault:        v,
		TokenEngine:  tokenEngine,
		Ledger:       ledgerSvc,
		Pricer:       pricer,
		Entitlement:  entitlementResolver,
		Catalog:      catalogSvc,
		Wallet:       walletSvc,
		Checkout:     checkoutClient,
		Webhook:      webhookDispatcher,
		PeriodClose:  periodCloseSvc,
		Subscription: subscriptionSvc,
		Log:          logger.Log,
		AdminKey:     adminKey,
		MaxBatchSize: maxBatchSize,
		SupportedEventTypes: []string{
			"api_call", "tokens_consumed", "storage_bytes", "seat_active",
		},
	}

	router := httpapi.NewRouter(handlers)

	addr := envOr("HTTP_ADDR", ":8080")
	logger.Info(fmt.Sprintf("api listening on %s", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server exited: " + err.Error())
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
