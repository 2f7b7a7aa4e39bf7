package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/store"
)

type createTeamRequest struct {
	ExternalTeamID  string `json:"externalTeamId" binding:"required"`
	Name            string `json:"name"`
	DefaultCurrency string `json:"defaultCurrency"`
}

// CreateTeam implements POST /v1/apps/:appId/teams, idempotent on
// externalTeamId (spec §6): a repeat call returns the same team.
func (h *Handlers) CreateTeam(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	var req createTeamRequest
	if !bindJSON(c, &req) {
		return
	}
	currency := req.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}

	team, created, err := h.Store.GetOrCreateTeamByExternalRef(c.Request.Context(), appID, req.ExternalTeamID, store.Team{
		AppID:           appID,
		Name:            req.Name,
		Kind:            store.TeamKindStandard,
		DefaultCurrency: currency,
		BillingMode:     store.BillingModeWallet,
	})
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	sendSuccess(c, status, team)
}

func (h *Handlers) GetTeam(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	team, err := h.Store.GetTeam(c.Request.Context(), appID, teamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, team)
}

// RemoveTeamUser implements DELETE /v1/apps/:appId/teams/:teamId/users/:userId,
// an idempotent soft-remove (spec §6): removing an already-removed member
// is not an error.
func (h *Handlers) RemoveTeamUser(c *gin.Context) {
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	userID := c.Param("userId")
	if userID == "" {
		sendError(c, h, apierr.Validation("userId is required"))
		return
	}
	member, err := h.Store.RemoveTeamMember(c.Request.Context(), teamID, userID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, member)
}
