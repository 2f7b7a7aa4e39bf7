package memstore

import (
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

type data struct {
	apps    map[uuid.UUID]store.App
	secrets map[string]store.AppSecret // key: kid
	jtis    map[string]store.JtiRecord // key: jti

	teams           map[uuid.UUID]store.Team
	billingEntities map[uuid.UUID]store.BillingEntity // key: teamID
	externalRefs    map[string]uuid.UUID              // key: appID|externalTeamID
	members         map[string]store.TeamMember       // key: teamID|userID

	plans       map[string]store.Plan // key: appID|code
	plansByID   map[uuid.UUID]store.Plan
	addons      map[string]store.Addon
	addonsByID  map[uuid.UUID]store.Addon
	productMaps map[uuid.UUID][]store.StripeProductMap // key: planID or addonID

	subscriptions    map[uuid.UUID]store.TeamSubscription
	subsByGatewayID  map[string]uuid.UUID
	subsByTeamActive map[uuid.UUID]uuid.UUID

	bundles             map[uuid.UUID]store.Bundle
	bundlesByCode       map[string]uuid.UUID
	bundleApps          map[string]store.BundleApp          // key: bundleID|appID
	bundleMeterPolicies map[string][]store.BundleMeterPolicy // key: bundleID|appID

	contracts             map[uuid.UUID]store.Contract
	activeContractByBillTo map[uuid.UUID]uuid.UUID
	contractOverrides     map[uuid.UUID][]store.ContractOverride // key: contractID

	priceBooks map[uuid.UUID]store.PriceBook
	priceRules map[uuid.UUID][]store.PriceRule // key: priceBookID

	usageEvents       map[uuid.UUID]store.UsageEvent
	usageByIdempotency map[string]uuid.UUID // key: appID|idempotencyKey

	lineItems       map[uuid.UUID]store.BillableLineItem
	lineItemsByEvent map[uuid.UUID][]uuid.UUID

	ledgerAccounts    map[uuid.UUID]store.LedgerAccount
	ledgerAccountKey  map[string]uuid.UUID // key: appID|billToID|type
	ledgerEntries     map[uuid.UUID]store.LedgerEntry
	ledgerEntryByIdem map[string]uuid.UUID

	invoices          map[uuid.UUID]store.Invoice
	invoiceByPeriod   map[string]uuid.UUID // key: contractID|periodStart|periodEnd
	invoiceLines      map[uuid.UUID][]store.InvoiceLineItem

	walletConfigs map[string]store.WalletConfig // key: appID|teamID

	auditLogs []store.AuditLog
}

func newData() *data {
	return &data{
		apps:    map[uuid.UUID]store.App{},
		secrets: map[string]store.AppSecret{},
		jtis:    map[string]store.JtiRecord{},

		teams:           map[uuid.UUID]store.Team{},
		billingEntities: map[uuid.UUID]store.BillingEntity{},
		externalRefs:    map[string]uuid.UUID{},
		members:         map[string]store.TeamMember{},

		plans:       map[string]store.Plan{},
		plansByID:   map[uuid.UUID]store.Plan{},
		addons:      map[string]store.Addon{},
		addonsByID:  map[uuid.UUID]store.Addon{},
		productMaps: map[uuid.UUID][]store.StripeProductMap{},

		subscriptions:    map[uuid.UUID]store.TeamSubscription{},
		subsByGatewayID:  map[string]uuid.UUID{},
		subsByTeamActive: map[uuid.UUID]uuid.UUID{},

		bundles:             map[uuid.UUID]store.Bundle{},
		bundlesByCode:       map[string]uuid.UUID{},
		bundleApps:          map[string]store.BundleApp{},
		bundleMeterPolicies: map[string][]store.BundleMeterPolicy{},

		contracts:              map[uuid.UUID]store.Contract{},
		activeContractByBillTo: map[uuid.UUID]uuid.UUID{},
		contractOverrides:      map[uuid.UUID][]store.ContractOverride{},

		priceBooks: map[uuid.UUID]store.PriceBook{},
		priceRules: map[uuid.UUID][]store.PriceRule{},

		usageEvents:        map[uuid.UUID]store.UsageEvent{},
		usageByIdempotency: map[string]uuid.UUID{},

		lineItems:        map[uuid.UUID]store.BillableLineItem{},
		lineItemsByEvent: map[uuid.UUID][]uuid.UUID{},

		ledgerAccounts:    map[uuid.UUID]store.LedgerAccount{},
		ledgerAccountKey:  map[string]uuid.UUID{},
		ledgerEntries:     map[uuid.UUID]store.LedgerEntry{},
		ledgerEntryByIdem: map[string]uuid.UUID{},

		invoices:        map[uuid.UUID]store.Invoice{},
		invoiceByPeriod: map[string]uuid.UUID{},
		invoiceLines:    map[uuid.UUID][]store.InvoiceLineItem{},

		walletConfigs: map[string]store.WalletConfig{},

		auditLogs: nil,
	}
}

// clone makes an independent copy-on-write snapshot: every map gets a new
// backing array, so mutations inside a transaction never touch the
// committed data until WithinTx swaps the clone in.
func (d *data) clone() *data {
	nd := newData()

	for k, v := range d.apps {
		nd.apps[k] = v
	}
	for k, v := range d.secrets {
		nd.secrets[k] = v
	}
	for k, v := range d.jtis {
		nd.jtis[k] = v
	}
	for k, v := range d.teams {
		nd.teams[k] = v
	}
	for k, v := range d.billingEntities {
		nd.billingEntities[k] = v
	}
	for k, v := range d.externalRefs {
		nd.externalRefs[k] = v
	}
	for k, v := range d.members {
		nd.members[k] = v
	}
	for k, v := range d.plans {
		nd.plans[k] = v
	}
	for k, v := range d.plansByID {
		nd.plansByID[k] = v
	}
	for k, v := range d.addons {
		nd.addons[k] = v
	}
	for k, v := range d.addonsByID {
		nd.addonsByID[k] = v
	}
	for k, v := range d.productMaps {
		cp := make([]store.StripeProductMap, len(v))
		copy(cp, v)
		nd.productMaps[k] = cp
	}
	for k, v := range d.subscriptions {
		nd.subscriptions[k] = v
	}
	for k, v := range d.subsByGatewayID {
		nd.subsByGatewayID[k] = v
	}
	for k, v := range d.subsByTeamActive {
		nd.subsByTeamActive[k] = v
	}
	for k, v := range d.bundles {
		nd.bundles[k] = v
	}
	for k, v := range d.bundlesByCode {
		nd.bundlesByCode[k] = v
	}
	for k, v := range d.bundleApps {
		nd.bundleApps[k] = v
	}
	for k, v := range d.bundleMeterPolicies {
		cp := make([]store.BundleMeterPolicy, len(v))
		copy(cp, v)
		nd.bundleMeterPolicies[k] = cp
	}
	for k, v := range d.contracts {
		nd.contracts[k] = v
	}
	for k, v := range d.activeContractByBillTo {
		nd.activeContractByBillTo[k] = v
	}
	for k, v := range d.contractOverrides {
		cp := make([]store.ContractOverride, len(v))
		copy(cp, v)
		nd.contractOverrides[k] = cp
	}
	for k, v := range d.priceBooks {
		nd.priceBooks[k] = v
	}
	for k, v := range d.priceRules {
		cp := make([]store.PriceRule, len(v))
		copy(cp, v)
		nd.priceRules[k] = cp
	}
	for k, v := range d.usageEvents {
		nd.usageEvents[k] = v
	}
	for k, v := range d.usageByIdempotency {
		nd.usageByIdempotency[k] = v
	}
	for k, v := range d.lineItems {
		nd.lineItems[k] = v
	}
	for k, v := range d.lineItemsByEvent {
		cp := make([]uuid.UUID, len(v))
		copy(cp, v)
		nd.lineItemsByEvent[k] = cp
	}
	for k, v := range d.ledgerAccounts {
		nd.ledgerAccounts[k] = v
	}
	for k, v := range d.ledgerAccountKey {
		nd.ledgerAccountKey[k] = v
	}
	for k, v := range d.ledgerEntries {
		nd.ledgerEntries[k] = v
	}
	for k, v := range d.ledgerEntryByIdem {
		nd.ledgerEntryByIdem[k] = v
	}
	for k, v := range d.invoices {
		nd.invoices[k] = v
	}
	for k, v := range d.invoiceByPeriod {
		nd.invoiceByPeriod[k] = v
	}
	for k, v := range d.invoiceLines {
		cp := make([]store.InvoiceLineItem, len(v))
		copy(cp, v)
		nd.invoiceLines[k] = cp
	}
	for k, v := range d.walletConfigs {
		nd.walletConfigs[k] = v
	}

	nd.auditLogs = append([]store.AuditLog{}, d.auditLogs...)

	return nd
}
