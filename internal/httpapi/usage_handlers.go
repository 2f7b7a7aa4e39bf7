package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/httpapi/middleware"
	"github.com/fluxmeter/billing-core/internal/store"
)

type usageEventRequest struct {
	TeamID         *uuid.UUID     `json:"teamId"`
	UserID         *string        `json:"userId"`
	BillToID       uuid.UUID      `json:"billToId" binding:"required"`
	EventType      string         `json:"eventType" binding:"required"`
	Timestamp      time.Time      `json:"timestamp" binding:"required"`
	IdempotencyKey string         `json:"idempotencyKey" binding:"required"`
	Payload        map[string]any `json:"payload"`
	Source         string         `json:"source"`
}

type ingestUsageEventsRequest struct {
	Events []usageEventRequest `json:"events" binding:"required,min=1"`
}

type ingestUsageEventsResponse struct {
	Accepted  int `json:"accepted"`
	Duplicate int `json:"duplicates"`
}

// IngestUsageEvents implements POST /v1/apps/:appId/usage/events: batch
// ingest of 1..maxBatchSize events (spec §6), each deduplicated on
// (appId, idempotencyKey). A partially-duplicate batch is not an error;
// duplicates are counted and the rest accepted.
func (h *Handlers) IngestUsageEvents(c *gin.Context) {
	appID, ok := uuidParam(c, h, "appId")
	if !ok {
		return
	}
	claims, _ := middleware.ClaimsFromContext(c)

	var req ingestUsageEventsRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Events) > h.MaxBatchSize {
		sendError(c, h, apierr.Validation("batch exceeds maxBatchSize"))
		return
	}

	var resp ingestUsageEventsResponse
	for _, ev := range req.Events {
		teamID := ev.TeamID
		if teamID == nil {
			teamID = claims.TeamID
		}
		_, err := h.Store.InsertUsageEvent(c.Request.Context(), store.UsageEvent{
			AppID:          appID,
			TeamID:         teamID,
			UserID:         ev.UserID,
			BillToID:       ev.BillToID,
			EventType:      ev.EventType,
			Timestamp:      ev.Timestamp,
			IdempotencyKey: ev.IdempotencyKey,
			Payload:        ev.Payload,
			Source:         ev.Source,
		})
		switch err {
		case nil:
			resp.Accepted++
		case store.ErrDuplicateEvent:
			resp.Duplicate++
		default:
			sendError(c, h, toAPIErr(err))
			return
		}
	}

	sendSuccess(c, http.StatusAccepted, resp)
}
