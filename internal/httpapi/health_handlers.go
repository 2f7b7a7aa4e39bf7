package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz implements GET /healthz, grounded on the teacher's /health route:
// it answers 503 when no store is configured and 200 otherwise. It does not
// ping the store; a configured but unreachable store still reports 200.
func (h *Handlers) Healthz(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
