package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

type createBundleRequest struct {
	Code                string                          `json:"code" binding:"required"`
	Name                string                          `json:"name" binding:"required"`
	Apps                []bundleAppRequest              `json:"apps"`
	MeterPolicies       []bundleMeterPolicyRequest       `json:"meterPolicies"`
}

type bundleAppRequest struct {
	AppID               uuid.UUID       `json:"appId" binding:"required"`
	DefaultFeatureFlags map[string]bool `json:"defaultFeatureFlags"`
}

type bundleMeterPolicyRequest struct {
	AppID    uuid.UUID         `json:"appId" binding:"required"`
	MeterKey string            `json:"meterKey" binding:"required"`
	Policy   meterPolicyPayload `json:"policy"`
}

type meterPolicyPayload struct {
	LimitType      store.LimitType      `json:"limitType"`
	IncludedAmount *int64               `json:"includedAmount"`
	Enforcement    store.Enforcement    `json:"enforcement"`
	OverageBilling store.OverageBilling `json:"overageBilling"`
}

func (p meterPolicyPayload) toModel() store.MeterPolicy {
	return store.MeterPolicy{
		LimitType:      p.LimitType,
		IncludedAmount: p.IncludedAmount,
		Enforcement:    p.Enforcement,
		OverageBilling: p.OverageBilling,
	}
}

// CreateBundle implements POST /v1/bundles. SetBundleApp/SetBundleMeterPolicy
// are not wrapped by catalog.Service (spec §4.9 scopes it to the
// entitlement-refresh-on-mutation contract/bundle path); this handler calls
// the store directly for the per-app wiring that follows the bundle insert.
func (h *Handlers) CreateBundle(c *gin.Context) {
	var req createBundleRequest
	if !bindJSON(c, &req) {
		return
	}
	bundle, err := h.Catalog.CreateBundle(c.Request.Context(), store.Bundle{
		Code:   req.Code,
		Name:   req.Name,
		Status: store.BundleStatusActive,
	})
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	for _, a := range req.Apps {
		if err := h.Store.SetBundleApp(c.Request.Context(), store.BundleApp{
			BundleID:            bundle.ID,
			AppID:               a.AppID,
			DefaultFeatureFlags: a.DefaultFeatureFlags,
		}); err != nil {
			sendError(c, h, toAPIErr(err))
			return
		}
	}
	for _, p := range req.MeterPolicies {
		if err := h.Store.SetBundleMeterPolicy(c.Request.Context(), store.BundleMeterPolicy{
			BundleID: bundle.ID,
			AppID:    p.AppID,
			MeterKey: p.MeterKey,
			Policy:   p.Policy.toModel(),
		}); err != nil {
			sendError(c, h, toAPIErr(err))
			return
		}
	}

	sendSuccess(c, http.StatusCreated, bundle)
}

type updateBundleRequest struct {
	Name   string             `json:"name"`
	Status store.BundleStatus `json:"status"`
}

func (h *Handlers) UpdateBundle(c *gin.Context) {
	id, ok := uuidParam(c, h, "id")
	if !ok {
		return
	}
	existing, err := h.Catalog.GetBundle(c.Request.Context(), id)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	var req updateBundleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	updated, err := h.Catalog.UpdateBundle(c.Request.Context(), existing)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, updated)
}

type createContractRequest struct {
	BillToID       uuid.UUID            `json:"billToId" binding:"required"`
	OwnerTeamID    uuid.UUID            `json:"ownerTeamId" binding:"required"`
	BundleID       uuid.UUID            `json:"bundleId" binding:"required"`
	Currency       string               `json:"currency" binding:"required"`
	BillingPeriod  store.BillingPeriod  `json:"billingPeriod" binding:"required"`
	TermsDays      int                  `json:"termsDays"`
	PricingMode    store.PricingMode    `json:"pricingMode" binding:"required"`
	FixedFeeMinor  int64                `json:"fixedFeeMinor"`
	MinCommitMinor int64                `json:"minCommitMinor"`
	StartsAt       time.Time            `json:"startsAt" binding:"required"`
}

func (h *Handlers) CreateContract(c *gin.Context) {
	var req createContractRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.Catalog.CreateContract(c.Request.Context(), store.Contract{
		BillToID:       req.BillToID,
		BundleID:       req.BundleID,
		Currency:       req.Currency,
		BillingPeriod:  req.BillingPeriod,
		TermsDays:      req.TermsDays,
		PricingMode:    req.PricingMode,
		FixedFeeMinor:  req.FixedFeeMinor,
		MinCommitMinor: req.MinCommitMinor,
		StartsAt:       req.StartsAt,
		Status:         store.ContractStatusDraft,
	}, req.OwnerTeamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusCreated, contract)
}

type updateContractRequest struct {
	OwnerTeamID uuid.UUID            `json:"ownerTeamId" binding:"required"`
	Status      store.ContractStatus `json:"status"`
	EndsAt      *time.Time           `json:"endsAt"`
}

// UpdateContract implements PATCH /v1/contracts/:id, including the
// transition-to-ACTIVE conflict check spec §4.9 delegates to the store
// (at most one ACTIVE contract per billToId).
func (h *Handlers) UpdateContract(c *gin.Context) {
	id, ok := uuidParam(c, h, "id")
	if !ok {
		return
	}
	existing, err := h.Catalog.GetContract(c.Request.Context(), id)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	var req updateContractRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	if req.EndsAt != nil {
		existing.EndsAt = req.EndsAt
	}
	updated, err := h.Catalog.UpdateContract(c.Request.Context(), existing, req.OwnerTeamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, updated)
}

type replaceOverridesRequest struct {
	OwnerTeamID uuid.UUID                  `json:"ownerTeamId" binding:"required"`
	Overrides   []contractOverrideRequest `json:"overrides"`
}

type contractOverrideRequest struct {
	AppID    uuid.UUID          `json:"appId" binding:"required"`
	MeterKey string             `json:"meterKey" binding:"required"`
	Policy   meterPolicyPayload `json:"policy"`
}

func (h *Handlers) ReplaceContractOverrides(c *gin.Context) {
	id, ok := uuidParam(c, h, "id")
	if !ok {
		return
	}
	var req replaceOverridesRequest
	if !bindJSON(c, &req) {
		return
	}
	overrides := make([]store.ContractOverride, 0, len(req.Overrides))
	for _, o := range req.Overrides {
		overrides = append(overrides, store.ContractOverride{
			ContractID: id,
			AppID:      o.AppID,
			MeterKey:   o.MeterKey,
			Policy:     o.Policy.toModel(),
		})
	}
	if err := h.Catalog.ReplaceOverrides(c.Request.Context(), id, overrides, req.OwnerTeamID); err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"contractId": id, "overrides": overrides})
}
