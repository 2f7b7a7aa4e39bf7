package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fluxmeter/billing-core/internal/apierr"
)

// StripeWebhook implements POST /v1/stripe/webhook. The body is read raw
// because Stripe's signature covers the exact bytes sent; gin's JSON
// binding would re-serialize and break verification.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		sendError(c, h, apierr.Validation("unable to read request body"))
		return
	}
	sig := c.GetHeader("Stripe-Signature")
	if err := h.Webhook.Handle(c.Request.Context(), body, sig); err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"received": true})
}
