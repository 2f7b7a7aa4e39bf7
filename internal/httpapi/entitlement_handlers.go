package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetEntitlements(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	result, err := h.Entitlement.Resolve(c.Request.Context(), appID, teamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, result)
}
