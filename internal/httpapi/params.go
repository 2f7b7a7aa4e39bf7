package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/apierr"
)

func uuidParam(c *gin.Context, h *Handlers, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		sendError(c, h, apierr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
