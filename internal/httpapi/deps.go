// Package httpapi composes the HTTP surface of spec §6 over every component,
// grounded on the teacher's apps/api/server package: a single Handlers
// struct plays the role of the teacher's CommonServices plus its
// per-resource *Handler fields, and NewRouter mirrors InitializeRoutes's
// public/protected/admin grouping.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/catalog"
	"github.com/fluxmeter/billing-core/internal/checkout"
	"github.com/fluxmeter/billing-core/internal/entitlement"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/periodclose"
	"github.com/fluxmeter/billing-core/internal/pricing"
	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/subscription"
	"github.com/fluxmeter/billing-core/internal/tokenengine"
	"github.com/fluxmeter/billing-core/internal/vault"
	"github.com/fluxmeter/billing-core/internal/wallet"
	"github.com/fluxmeter/billing-core/internal/webhook"
)

// Handlers holds every dependency the HTTP layer needs, built once at
// startup in cmd/api/main.go and threaded through every route.
type Handlers struct {
	Store        store.Store
	Vault        *vault.Vault
	TokenEngine  *tokenengine.Engine
	Ledger       *ledger.Service
	Pricer       *pricing.Engine
	Entitlement  *entitlement.Resolver
	Catalog      *catalog.Service
	Wallet       *wallet.Service
	Checkout     *checkout.Client
	Webhook      *webhook.Dispatcher
	PeriodClose  *periodclose.Service
	Subscription *subscription.Service
	Log          *zap.Logger
	AdminKey     string

	MaxBatchSize        int
	SupportedEventTypes []string
}

func (h *Handlers) logger() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

// sendError mirrors the teacher's sendError (apps/api/handlers/common.go):
// it logs with the request's correlation id and responds with the stable
// {error, message, statusCode, requestId} body spec §6 requires.
func sendError(c *gin.Context, h *Handlers, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Internal(err)
	}
	requestID, _ := c.Get("requestId")
	h.logger().Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Any("requestId", requestID),
		zap.Error(apiErr),
	)
	c.JSON(apiErr.Kind.StatusCode(), gin.H{
		"error":      string(apiErr.Kind),
		"message":    apiErr.Message,
		"statusCode": apiErr.Kind.StatusCode(),
		"requestId":  requestID,
	})
}

// sendSuccess mirrors the teacher's sendSuccess (apps/api/handlers/common.go).
func sendSuccess(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, data)
}

// toAPIErr maps a store/service error to the apierr.Kind callers should
// respond with, defaulting unknown store sentinels to 500.
func toAPIErr(err error) error {
	if apiErr, ok := err.(*apierr.Error); ok {
		return apiErr
	}
	switch err {
	case store.ErrNotFound:
		return apierr.NotFound("resource not found")
	case store.ErrConflict:
		return apierr.Conflict("conflicting state")
	case store.ErrDuplicateLedgerEntry:
		return apierr.New(apierr.KindDuplicate, "duplicate idempotency key")
	case store.ErrDuplicateEvent:
		return apierr.New(apierr.KindDuplicate, "duplicate usage event")
	case store.ErrReplayed:
		return apierr.New(apierr.KindAuth, "token already used")
	default:
		return apierr.Internal(err)
	}
}

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      string(apierr.KindValidation),
			"message":    "malformed request body: " + err.Error(),
			"statusCode": http.StatusBadRequest,
		})
		return false
	}
	return true
}
