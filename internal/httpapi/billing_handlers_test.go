package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUsageAggregationRequiresBillingReadScope(t *testing.T) {
	h, st := newTestHandlers(t)
	router := NewRouter(h)
	app := seedApp(t, st)
	team := seedTeam(t, st, app.ID)
	token := mintTokenFor(t, h, st, app.ID, &team.ID, nil)

	from := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Format(time.RFC3339)
	w := doJSON(t, router, http.MethodGet, "/v1/teams/"+team.ID.String()+"/usage?from="+from+"&to="+to, nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetUsageAggregationSucceedsWithScope(t *testing.T) {
	h, st := newTestHandlers(t)
	router := NewRouter(h)
	app := seedApp(t, st)
	team := seedTeam(t, st, app.ID)
	token := mintTokenFor(t, h, st, app.ID, &team.ID, []string{"billing:read"})

	from := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	w := doJSON(t, router, http.MethodGet, "/v1/teams/"+team.ID.String()+"/usage?from="+from+"&to="+to, nil,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	var resp usageAggregationResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, int64(0), resp.TotalMinor)
}

func TestGetUsageAggregationRejectsMissingRange(t *testing.T) {
	h, st := newTestHandlers(t)
	router := NewRouter(h)
	app := seedApp(t, st)
	team := seedTeam(t, st, app.ID)
	token := mintTokenFor(t, h, st, app.ID, &team.ID, []string{"billing:read"})

	w := doJSON(t, router, http.MethodGet, "/v1/teams/"+team.ID.String()+"/usage", nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsageEventSchemasListsAndLooksUpByType(t *testing.T) {
	h, st := newTestHandlers(t)
	router := NewRouter(h)
	app := seedApp(t, st)
	token := mintTokenFor(t, h, st, app.ID, nil, nil)
	headers := map[string]string{"Authorization": "Bearer " + token}

	w := doJSON(t, router, http.MethodGet, "/v1/schemas/usage-events", nil, headers)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := doJSON(t, router, http.MethodGet, "/v1/schemas/usage-events/api_call", nil, headers)
	assert.Equal(t, http.StatusOK, w2.Code)

	w3 := doJSON(t, router, http.MethodGet, "/v1/schemas/usage-events/does-not-exist", nil, headers)
	assert.Equal(t, http.StatusNotFound, w3.Code)
}

func TestGetCapabilitiesReturnsConfiguredLimits(t *testing.T) {
	h, st := newTestHandlers(t)
	router := NewRouter(h)
	app := seedApp(t, st)
	token := mintTokenFor(t, h, st, app.ID, nil, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/meta/capabilities", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	var resp capabilitiesResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, h.MaxBatchSize, resp.UsageIngestion.MaxBatchSize)
}
