package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fluxmeter/billing-core/internal/apierr"
)

type subscriptionCheckoutRequest struct {
	PlanCode string `json:"planCode" binding:"required"`
	Seats    int    `json:"seats"`
}

func (h *Handlers) CreateSubscriptionCheckout(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	var req subscriptionCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.Checkout.CreateSubscriptionCheckout(c.Request.Context(), appID, teamID, req.PlanCode, req.Seats)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusCreated, gin.H{"url": session.URL, "sessionId": session.ID})
}

type topupCheckoutRequest struct {
	AmountMinor int64  `json:"amountMinor" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
}

func (h *Handlers) CreateTopupCheckout(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	var req topupCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AmountMinor <= 0 {
		sendError(c, h, apierr.Validation("amountMinor must be positive"))
		return
	}
	session, err := h.Checkout.CreateTopupCheckout(c.Request.Context(), appID, teamID, req.AmountMinor, req.Currency)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusCreated, gin.H{"url": session.URL, "sessionId": session.ID})
}

func (h *Handlers) CreatePortalSession(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	session, err := h.Checkout.CreatePortalSession(c.Request.Context(), appID, teamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusCreated, gin.H{"url": session.URL})
}
