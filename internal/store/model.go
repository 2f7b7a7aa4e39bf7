// Package store defines the persistence contract shared by every component:
// the entity shapes from spec §3 and the Store interface components code
// against. memstore is the in-process implementation and is deliberately
// the reference implementation for the invariants in spec §8; the
// interface is the contract a durable store would satisfy, not a stopgap
// waiting on one.
package store

import (
	"time"

	"github.com/google/uuid"
)

type AppStatus string

const (
	AppStatusActive   AppStatus = "ACTIVE"
	AppStatusDisabled AppStatus = "DISABLED"
)

type App struct {
	ID     uuid.UUID
	Name   string
	Status AppStatus
}

type SecretStatus string

const (
	SecretStatusActive  SecretStatus = "ACTIVE"
	SecretStatusRevoked SecretStatus = "REVOKED"
)

type AppSecret struct {
	AppID            uuid.UUID
	Kid              string
	EncryptedSecret  string
	Status           SecretStatus
	CreatedAt        time.Time
	RevokedAt        *time.Time
}

type JtiRecord struct {
	Jti       string
	ExpiresAt time.Time
}

type TeamKind string

const (
	TeamKindStandard TeamKind = "STANDARD"
	TeamKindPersonal TeamKind = "PERSONAL"
)

type BillingMode string

const (
	BillingModeSubscription     BillingMode = "SUBSCRIPTION"
	BillingModeWallet           BillingMode = "WALLET"
	BillingModeHybrid           BillingMode = "HYBRID"
	BillingModeEnterpriseContract BillingMode = "ENTERPRISE_CONTRACT"
)

type Team struct {
	ID               uuid.UUID
	AppID            uuid.UUID
	Name             string
	Kind             TeamKind
	OwnerUserID      *string
	DefaultCurrency  string
	StripeCustomerID *string
	BillingMode      BillingMode
}

type BillingEntityType string

const billingEntityTypeTeam BillingEntityType = "TEAM"

type BillingEntity struct {
	ID     uuid.UUID
	Type   BillingEntityType
	TeamID uuid.UUID
}

type ExternalTeamRef struct {
	AppID          uuid.UUID
	ExternalTeamID string
	TeamID         uuid.UUID
}

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "OWNER"
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "ACTIVE"
	MemberStatusRemoved MemberStatus = "REMOVED"
)

type TeamMember struct {
	TeamID    uuid.UUID
	UserID    string
	Role      MemberRole
	Status    MemberStatus
	StartedAt time.Time
	EndedAt   *time.Time
}

type Plan struct {
	ID    uuid.UUID
	AppID uuid.UUID
	Code  string
	Name  string
	// FeatureFlags are the plan's default feature overlay applied in
	// entitlement resolution step 4 (spec §4.8).
	FeatureFlags map[string]bool
}

type Addon struct {
	ID    uuid.UUID
	AppID uuid.UUID
	Code  string
	Name  string
}

type ProductMapKind string

const (
	ProductMapKindBase  ProductMapKind = "BASE"
	ProductMapKindSeat  ProductMapKind = "SEAT"
	ProductMapKindAddon ProductMapKind = "ADDON"
)

type StripeProductMap struct {
	ID              uuid.UUID
	PlanID          *uuid.UUID
	AddonID         *uuid.UUID
	Kind            ProductMapKind
	StripeProductID string
	StripePriceID   string
}

type SubscriptionStatus string

const (
	SubStatusTrialing SubscriptionStatus = "TRIALING"
	SubStatusActive   SubscriptionStatus = "ACTIVE"
	SubStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubStatusCanceled SubscriptionStatus = "CANCELED"
)

type TeamSubscription struct {
	ID                   uuid.UUID
	TeamID               uuid.UUID
	GatewaySubscriptionID string
	Status               SubscriptionStatus
	PlanID               uuid.UUID
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	SeatsQuantity        int
}

type BundleStatus string

const (
	BundleStatusActive   BundleStatus = "ACTIVE"
	BundleStatusArchived BundleStatus = "ARCHIVED"
)

type Bundle struct {
	ID     uuid.UUID
	Code   string
	Name   string
	Status BundleStatus
}

type BundleApp struct {
	BundleID            uuid.UUID
	AppID               uuid.UUID
	DefaultFeatureFlags map[string]bool
}

type LimitType string

const (
	LimitTypeNone      LimitType = "NONE"
	LimitTypeIncluded  LimitType = "INCLUDED"
	LimitTypeUnlimited LimitType = "UNLIMITED"
	LimitTypeHardCap   LimitType = "HARD_CAP"
)

type Enforcement string

const (
	EnforcementNone Enforcement = "NONE"
	EnforcementSoft Enforcement = "SOFT"
	EnforcementHard Enforcement = "HARD"
)

type OverageBilling string

const (
	OverageBillingNone    OverageBilling = "NONE"
	OverageBillingPerUnit OverageBilling = "PER_UNIT"
	OverageBillingTiered  OverageBilling = "TIERED"
	OverageBillingCustom  OverageBilling = "CUSTOM"
)

// MeterPolicy is the shared policy shape for both BundleMeterPolicy and
// ContractOverride (spec §3).
type MeterPolicy struct {
	LimitType      LimitType
	IncludedAmount *int64
	Enforcement    Enforcement
	OverageBilling OverageBilling
}

type BundleMeterPolicy struct {
	BundleID  uuid.UUID
	AppID     uuid.UUID
	MeterKey  string
	Policy    MeterPolicy
}

type ContractStatus string

const (
	ContractStatusDraft  ContractStatus = "DRAFT"
	ContractStatusActive ContractStatus = "ACTIVE"
	ContractStatusPaused ContractStatus = "PAUSED"
	ContractStatusEnded  ContractStatus = "ENDED"
)

type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "MONTHLY"
	BillingPeriodQuarterly BillingPeriod = "QUARTERLY"
)

type PricingMode string

const (
	PricingModeFixed              PricingMode = "FIXED"
	PricingModeFixedPlusTrueup    PricingMode = "FIXED_PLUS_TRUEUP"
	PricingModeMinCommitTrueup    PricingMode = "MIN_COMMIT_TRUEUP"
	PricingModeCustomInvoiceOnly  PricingMode = "CUSTOM_INVOICE_ONLY"
)

type Contract struct {
	ID            uuid.UUID
	BillToID      uuid.UUID
	BundleID      uuid.UUID
	Currency      string
	BillingPeriod BillingPeriod
	TermsDays     int
	PricingMode   PricingMode
	// FixedFeeMinor and MinCommitMinor resolve the Open Question in spec §9:
	// the fixed fee / min-commit amounts are not sourced from a concrete
	// field in the distilled data model, so we add them here.
	FixedFeeMinor  int64
	MinCommitMinor int64
	StartsAt       time.Time
	EndsAt         *time.Time
	Status         ContractStatus
}

type ContractOverride struct {
	ContractID uuid.UUID
	AppID      uuid.UUID
	MeterKey   string
	Policy     MeterPolicy
}

type PriceBookKind string

const (
	PriceBookKindCOGS     PriceBookKind = "COGS"
	PriceBookKindCustomer PriceBookKind = "CUSTOMER"
)

type PriceBook struct {
	ID            uuid.UUID
	AppID         uuid.UUID
	Kind          PriceBookKind
	Currency      string
	EffectiveFrom time.Time
}

// RuleMatch is a conjunction of equality checks on scalar fields, decoded
// strictly at the edge per the spec §9 redesign note.
type RuleMatch struct {
	EventType    string
	PayloadMatch map[string]any
}

// RuleKind discriminates the three rule shapes spec §4.5 step 3 supports.
type RuleKind string

const (
	RuleKindFlat    RuleKind = "flat"
	RuleKindPerUnit RuleKind = "per_unit"
	RuleKindTiered  RuleKind = "tiered"
)

type Tier struct {
	UpTo      *int64 // nil means unbounded (last tier only)
	UnitPrice int64
}

// Rule is the decoded sum type for {type:"flat"|"per_unit"|"tiered", ...}.
// Exactly one of the type-specific fields is populated, selected by Kind.
type Rule struct {
	Kind RuleKind

	// flat
	Amount int64

	// per_unit
	Field     string
	UnitPrice int64

	// tiered
	TieredField string
	Tiers       []Tier
}

type PriceRule struct {
	ID          uuid.UUID
	PriceBookID uuid.UUID
	Priority    int
	Match       RuleMatch
	Rule        Rule
	CreatedAt   time.Time
}

type UsageEvent struct {
	ID             uuid.UUID
	AppID          uuid.UUID
	TeamID         *uuid.UUID
	UserID         *string
	BillToID       uuid.UUID
	EventType      string
	Timestamp      time.Time
	IdempotencyKey string
	Payload        map[string]any
	Source         string
	PricedAt       *time.Time
	RetryCount     int
	NextRetryAt    *time.Time
	CreatedAt      time.Time
}

type BillableLineItem struct {
	ID              uuid.UUID
	AppID           uuid.UUID
	BillToID        uuid.UUID
	TeamID          uuid.UUID
	UserID          *string
	UsageEventID    *uuid.UUID
	Timestamp       time.Time
	PriceBookID     uuid.UUID
	PriceBookKind   PriceBookKind
	PriceRuleID     uuid.UUID
	AmountMinor     int64
	Currency        string
	Description     string
	InputsSnapshot  map[string]any
	WalletDebitedAt *time.Time
}

type LedgerAccountType string

const (
	LedgerAccountWallet            LedgerAccountType = "WALLET"
	LedgerAccountAccountsReceivable LedgerAccountType = "ACCOUNTS_RECEIVABLE"
	LedgerAccountRevenue           LedgerAccountType = "REVENUE"
	LedgerAccountCOGS              LedgerAccountType = "COGS"
	LedgerAccountTax               LedgerAccountType = "TAX"
)

type LedgerAccount struct {
	ID       uuid.UUID
	AppID    uuid.UUID
	BillToID uuid.UUID
	Type     LedgerAccountType
}

type LedgerEntryType string

const (
	LedgerEntryTopup              LedgerEntryType = "TOPUP"
	LedgerEntrySubscriptionCharge LedgerEntryType = "SUBSCRIPTION_CHARGE"
	LedgerEntryUsageCharge        LedgerEntryType = "USAGE_CHARGE"
	LedgerEntryRefund             LedgerEntryType = "REFUND"
	LedgerEntryAdjustment         LedgerEntryType = "ADJUSTMENT"
	LedgerEntryInvoicePayment     LedgerEntryType = "INVOICE_PAYMENT"
	LedgerEntryCOGSAccrual        LedgerEntryType = "COGS_ACCRUAL"
)

type LedgerEntry struct {
	ID              uuid.UUID
	AppID           uuid.UUID
	BillToID        uuid.UUID
	LedgerAccountID uuid.UUID
	Type            LedgerEntryType
	AmountMinor     int64
	Currency        string
	ReferenceType   string
	ReferenceID     *string
	IdempotencyKey  string
	Metadata        map[string]any
	Timestamp       time.Time
}

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

type Invoice struct {
	ID            uuid.UUID
	ContractID    uuid.UUID
	BillToID      uuid.UUID
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Status        InvoiceStatus
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
	IssuedAt      *time.Time
	DueAt         *time.Time
}

type InvoiceLineType string

const (
	InvoiceLineBaseFee    InvoiceLineType = "BASE_FEE"
	InvoiceLineUsageTrueup InvoiceLineType = "USAGE_TRUEUP"
	InvoiceLineAddon      InvoiceLineType = "ADDON"
	InvoiceLineCredit     InvoiceLineType = "CREDIT"
	InvoiceLineAdjustment InvoiceLineType = "ADJUSTMENT"
)

type InvoiceLineItem struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	AppID         *uuid.UUID
	Type          InvoiceLineType
	Description   string
	Quantity      int64
	UnitPriceMinor int64
	AmountMinor   int64
	UsageSummary  map[string]any
}

// WalletConfig resolves the spec §9 open question about
// checkAndTriggerAutoTopUp's source data: AutoTopUpEnabled and
// ThresholdMinor are not sourced from a concrete field in the distilled data
// model, so we add this entity keyed by (appId, teamId).
type WalletConfig struct {
	AppID            uuid.UUID
	TeamID           uuid.UUID
	AutoTopUpEnabled bool
	ThresholdMinor   int64
	TopUpAmountMinor int64
}

type AuditLog struct {
	ID         uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Actor      string
	At         time.Time
	Payload    map[string]any
}
