package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/store"
)

// createAppRequest is the body of POST /v1/admin/apps.
type createAppRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handlers) CreateApp(c *gin.Context) {
	var req createAppRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.Store.CreateApp(c.Request.Context(), store.App{
		ID:     uuid.New(),
		Name:   req.Name,
		Status: store.AppStatusActive,
	})
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusCreated, app)
}

// mintSecretResponse carries the plaintext secret exactly once, at mint
// time (spec §6: "returns kid + plaintext once").
type mintSecretResponse struct {
	Kid    string `json:"kid"`
	Secret string `json:"secret"`
}

func (h *Handlers) MintAppSecret(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	if _, err := h.Store.GetApp(c.Request.Context(), appID); err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		sendError(c, h, apierr.Internal(err))
		return
	}
	plaintext := hex.EncodeToString(raw)

	encrypted, err := h.Vault.Encrypt(plaintext)
	if err != nil {
		sendError(c, h, apierr.Internal(err))
		return
	}

	kid := uuid.NewString()
	secret, err := h.Store.CreateAppSecret(c.Request.Context(), store.AppSecret{
		AppID:           appID,
		Kid:             kid,
		EncryptedSecret: encrypted,
		Status:          store.SecretStatusActive,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	sendSuccess(c, http.StatusCreated, mintSecretResponse{Kid: secret.Kid, Secret: plaintext})
}

func (h *Handlers) RevokeAppSecret(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	kid := c.Param("kid")
	if err := h.Store.RevokeAppSecret(c.Request.Context(), appID, kid); err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"kid": kid, "status": string(store.SecretStatusRevoked)})
}
