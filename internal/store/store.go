package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the full persistence contract. Components depend on the narrow
// sub-interface they actually need (AuthStore, LedgerStore, ...); Store
// exists to let the composition root hand out one concrete object and to
// let WithinTx hand back the same shape inside a transaction. This mirrors
// the teacher's db.Querier / db.Queries split (apps/api/handlers/common.go)
// generalized away from sqlc-generated method names.
type Store interface {
	AuthStore
	TeamStore
	CatalogStore
	PricingStore
	UsageStore
	LedgerStore
	PeriodCloseStore
	SubscriptionStore
	AuditStore

	// WithinTx runs fn against a Store bound to a single transaction. A
	// non-nil return from fn rolls the transaction back; implementations
	// must not leak partial writes on error (spec §5).
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// AuthStore backs C1/C2/C3: secrets, key rotation, replay protection.
type AuthStore interface {
	CreateApp(ctx context.Context, app App) (App, error)
	GetApp(ctx context.Context, id uuid.UUID) (App, error)

	CreateAppSecret(ctx context.Context, secret AppSecret) (AppSecret, error)
	GetAppSecretByKid(ctx context.Context, kid string) (AppSecret, error)
	RevokeAppSecret(ctx context.Context, appID uuid.UUID, kid string) error

	// InsertJti is the atomic proof-of-first-use the spec requires (§4.2
	// step 6): it must fail with ErrReplayed on a uniqueness violation.
	InsertJti(ctx context.Context, rec JtiRecord) error
}

// TeamStore backs team/membership CRUD used by the ingestion and
// entitlement endpoints.
type TeamStore interface {
	GetOrCreateTeamByExternalRef(ctx context.Context, appID uuid.UUID, externalTeamID string, defaults Team) (Team, bool, error)
	GetTeam(ctx context.Context, appID, teamID uuid.UUID) (Team, error)
	UpdateTeamStripeCustomerID(ctx context.Context, teamID uuid.UUID, stripeCustomerID string) (updated bool, current string, err error)
	GetBillingEntityForTeam(ctx context.Context, teamID uuid.UUID) (BillingEntity, error)

	UpsertTeamMember(ctx context.Context, m TeamMember) (TeamMember, error)
	RemoveTeamMember(ctx context.Context, teamID uuid.UUID, userID string) (TeamMember, error)
}

// CatalogStore backs C9 (bundle/contract CRUD) and the parts of C8 that read
// catalog data.
type CatalogStore interface {
	CreateBundle(ctx context.Context, b Bundle) (Bundle, error)
	UpdateBundle(ctx context.Context, b Bundle) (Bundle, error)
	GetBundle(ctx context.Context, id uuid.UUID) (Bundle, error)
	SetBundleApp(ctx context.Context, ba BundleApp) error
	SetBundleMeterPolicy(ctx context.Context, p BundleMeterPolicy) error
	ListBundleApp(ctx context.Context, bundleID, appID uuid.UUID) (BundleApp, error)
	ListBundleMeterPolicies(ctx context.Context, bundleID, appID uuid.UUID) ([]BundleMeterPolicy, error)

	CreateContract(ctx context.Context, c Contract) (Contract, error)
	UpdateContract(ctx context.Context, c Contract) (Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (Contract, error)
	GetActiveContractForBillTo(ctx context.Context, billToID uuid.UUID) (Contract, error)
	ListActiveContracts(ctx context.Context) ([]Contract, error)
	ReplaceContractOverrides(ctx context.Context, contractID uuid.UUID, overrides []ContractOverride) error
	ListContractOverrides(ctx context.Context, contractID uuid.UUID) ([]ContractOverride, error)

	GetPlanByCode(ctx context.Context, appID uuid.UUID, code string) (Plan, error)
	GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error)
	GetAddonByCode(ctx context.Context, appID uuid.UUID, code string) (Addon, error)
	ListStripeProductMapsForPlan(ctx context.Context, planID uuid.UUID) ([]StripeProductMap, error)

	GetActiveSubscriptionForTeam(ctx context.Context, teamID uuid.UUID) (TeamSubscription, error)
}

// PricingStore backs C5/C6: price books, rules and the usage-event queue.
type PricingStore interface {
	ListPriceBooks(ctx context.Context, appID uuid.UUID, kind PriceBookKind, asOf time.Time) ([]PriceBook, error)
	ListPriceRules(ctx context.Context, priceBookID uuid.UUID) ([]PriceRule, error)

	ClaimUnpricedEvents(ctx context.Context, now time.Time, limit int) ([]UsageEvent, error)
	MarkEventPriced(ctx context.Context, eventID uuid.UUID, at time.Time) error
	ScheduleEventRetry(ctx context.Context, eventID uuid.UUID, retryCount int, nextRetryAt time.Time) error
	CountLineItemsForEvent(ctx context.Context, eventID uuid.UUID) (int, error)
}

// UsageStore backs the ingestion endpoint.
type UsageStore interface {
	InsertUsageEvent(ctx context.Context, e UsageEvent) (UsageEvent, error)
	InsertLineItems(ctx context.Context, items []BillableLineItem) ([]BillableLineItem, error)
	GetLineItem(ctx context.Context, id uuid.UUID) (BillableLineItem, error)
	MarkLineItemWalletDebited(ctx context.Context, id uuid.UUID, at time.Time) error
	ListUndebitedCustomerLineItems(ctx context.Context, appID, billToID uuid.UUID) ([]BillableLineItem, error)
	ListLineItemsForPeriod(ctx context.Context, billToID uuid.UUID, kind PriceBookKind, from, to time.Time) ([]BillableLineItem, error)

	GetWalletConfig(ctx context.Context, appID, teamID uuid.UUID) (WalletConfig, error)
	PutWalletConfig(ctx context.Context, cfg WalletConfig) (WalletConfig, error)
}

// LedgerStore backs C4.
type LedgerStore interface {
	GetOrCreateLedgerAccount(ctx context.Context, appID, billToID uuid.UUID, accountType LedgerAccountType) (LedgerAccount, error)
	CreateLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	SumLedgerEntries(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (int64, error)
	GetLedgerEntryByIdempotencyKey(ctx context.Context, key string) (LedgerEntry, error)
	SumLedgerEntriesByReference(ctx context.Context, referenceID string) (int64, error)
}

// PeriodCloseStore backs C10.
type PeriodCloseStore interface {
	GetInvoiceForPeriod(ctx context.Context, contractID uuid.UUID, periodStart, periodEnd time.Time) (Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice, lines []InvoiceLineItem) (Invoice, []InvoiceLineItem, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListInvoiceLineItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceLineItem, error)
	MarkInvoicePaid(ctx context.Context, id uuid.UUID) (Invoice, error)
}

// SubscriptionStore backs C13.
type SubscriptionStore interface {
	UpsertTeamSubscriptionByGatewayID(ctx context.Context, sub TeamSubscription) (TeamSubscription, error)
	GetTeamSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (TeamSubscription, error)
	MarkSubscriptionCanceled(ctx context.Context, gatewaySubscriptionID string) (TeamSubscription, error)
}

// AuditStore backs the admin audit trail.
type AuditStore interface {
	RecordAudit(ctx context.Context, entry AuditLog) error
}
