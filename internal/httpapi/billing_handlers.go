package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/store"
)

type usageAggregationBucket struct {
	EventType   string `json:"eventType"`
	AmountMinor int64  `json:"amountMinor"`
	Count       int    `json:"count"`
}

type usageAggregationResponse struct {
	From    time.Time                 `json:"from"`
	To      time.Time                 `json:"to"`
	GroupBy string                    `json:"groupBy"`
	Buckets []usageAggregationBucket  `json:"buckets"`
	TotalMinor int64                  `json:"totalMinor"`
}

func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, false
	}
	var err error
	from, err = time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err = time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func aggregateLineItems(items []store.BillableLineItem, groupBy string) usageAggregationResponse {
	buckets := map[string]*usageAggregationBucket{}
	order := []string{}
	var total int64
	for _, li := range items {
		total += li.AmountMinor
		key := "all"
		if groupBy == "eventType" {
			if et, _ := li.InputsSnapshot["eventType"].(string); et != "" {
				key = et
			}
		}
		b, exists := buckets[key]
		if !exists {
			b = &usageAggregationBucket{EventType: key}
			buckets[key] = b
			order = append(order, key)
		}
		b.AmountMinor += li.AmountMinor
		b.Count++
	}
	out := usageAggregationResponse{GroupBy: groupBy, TotalMinor: total}
	for _, k := range order {
		out.Buckets = append(out.Buckets, *buckets[k])
	}
	return out
}

// GetUsageAggregation implements GET /v1/teams/:teamId/usage (spec §6,
// scoped to billing:read): CUSTOMER line items for the team's billing
// entity over [from, to), optionally grouped by eventType.
func (h *Handlers) GetUsageAggregation(c *gin.Context) {
	h.aggregate(c, store.PriceBookKindCustomer)
}

// GetCOGSAggregation implements GET /v1/teams/:teamId/cogs: the operator
// cost view of the same window, priced against the COGS book instead.
func (h *Handlers) GetCOGSAggregation(c *gin.Context) {
	h.aggregate(c, store.PriceBookKindCOGS)
}

func (h *Handlers) aggregate(c *gin.Context, kind store.PriceBookKind) {
	teamID, ok := uuidParam(c, h, "teamId")
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		sendError(c, h, apierr.Validation("from and to query params are required (RFC3339)"))
		return
	}
	groupBy := c.Query("groupBy")
	if groupBy == "" {
		groupBy = "eventType"
	}

	entity, err := h.Store.GetBillingEntityForTeam(c.Request.Context(), teamID)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	items, err := h.Store.ListLineItemsForPeriod(c.Request.Context(), entity.ID, kind, from, to)
	if err != nil {
		sendError(c, h, toAPIErr(err))
		return
	}

	resp := aggregateLineItems(items, groupBy)
	resp.From = from
	resp.To = to
	sendSuccess(c, http.StatusOK, resp)
}

// usageEventSchema is a static, representative description of an event
// type's expected payload shape; it is a catalog for SDK authors, not a
// concrete data-model entity.
type usageEventSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
}

var usageEventSchemas = []usageEventSchema{
	{Type: "api_call", Description: "A single metered API invocation.", Fields: []string{"endpoint", "statusCode", "durationMs"}},
	{Type: "tokens_consumed", Description: "LLM token usage for a completion.", Fields: []string{"model", "inputTokens", "outputTokens"}},
	{Type: "storage_bytes", Description: "Point-in-time storage footprint sample.", Fields: []string{"bucket", "bytes"}},
	{Type: "seat_active", Description: "A seat observed active in the billing period.", Fields: []string{"userId"}},
}

func (h *Handlers) GetUsageEventSchemas(c *gin.Context) {
	t := c.Param("type")
	if t == "" {
		sendSuccess(c, http.StatusOK, usageEventSchemas)
		return
	}
	for _, s := range usageEventSchemas {
		if s.Type == t {
			sendSuccess(c, http.StatusOK, s)
			return
		}
	}
	sendError(c, h, apierr.NotFound("unknown usage event type"))
}

type capabilitiesResponse struct {
	APIVersion      string          `json:"apiVersion"`
	UsageIngestion  usageIngestion  `json:"usageIngestion"`
	Meters          []string        `json:"meters"`
}

type usageIngestion struct {
	MaxBatchSize        int      `json:"maxBatchSize"`
	SupportedEventTypes []string `json:"supportedEventTypes"`
}

func (h *Handlers) GetCapabilities(c *gin.Context) {
	meters := make([]string, 0, len(usageEventSchemas))
	for _, s := range usageEventSchemas {
		meters = append(meters, s.Type)
	}
	sendSuccess(c, http.StatusOK, capabilitiesResponse{
		APIVersion: "v1",
		UsageIngestion: usageIngestion{
			MaxBatchSize:        h.MaxBatchSize,
			SupportedEventTypes: h.SupportedEventTypes,
		},
		Meters: meters,
	})
}
