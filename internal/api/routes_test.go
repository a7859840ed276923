package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

func newTestRouter(t *testing.T, server config.ServerConfig) http.Handler {
	t.Helper()
	engine := sync.NewEngine()
	stores := store.NewMemoryStore()
	manager, err := sync.NewManager(context.Background(), &config.Config{}, engine, stores)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return NewHandler(engine, stores, manager, server, config.MetricsConfig{Enabled: true, Path: "/metrics"}).Routes()
}

func do(t *testing.T, h http.Handler, method, path, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body APIError
	decode(t, rec, &body)
	return body.Code
}

const jobRequest = `{"jobs": [{"external_id": "E1", "external_source": "SAP", "job_number": "J-100"}]}`

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, config.ServerConfig{}), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, config.ServerConfig{}), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantRequired(t *testing.T) {
	rec := do(t, newTestRouter(t, config.ServerConfig{}), http.MethodPost, "/api/v1/sync/diff", "", jobRequest)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_tenant", errorCode(t, rec))
}

func TestBearerToken(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{AuthToken: "s3cret"})

	rec := do(t, h, http.MethodGet, "/api/v1/sync/status", "t1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	req.Header.Set(TenantHeader, "t1")
	req.Header.Set("Authorization", "Bearer s3cret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestDiffThenExecute(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/sync/diff", "t1", jobRequest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var diff sync.DiffResponse
	decode(t, rec, &diff)
	require.NotNil(t, diff.Jobs)
	assert.Equal(t, 1, diff.Jobs.ToCreate)
	assert.Nil(t, diff.Parts)

	rec = do(t, h, http.MethodPost, "/api/v1/sync/execute", "t1", jobRequest)
	require.Equal(t, http.StatusOK, rec.Code)
	var first sync.ExecuteResponse
	decode(t, rec, &first)
	assert.Equal(t, 1, first.Jobs.Created)

	rec = do(t, h, http.MethodPost, "/api/v1/sync/execute", "t1", jobRequest)
	var second sync.ExecuteResponse
	decode(t, rec, &second)
	assert.Equal(t, 1, second.Jobs.Skipped)

	// another tenant starts from an empty store
	rec = do(t, h, http.MethodPost, "/api/v1/sync/diff", "t2", jobRequest)
	decode(t, rec, &diff)
	assert.Equal(t, 1, diff.Jobs.ToCreate)

	rec = do(t, h, http.MethodGet, "/api/v1/sync/history?entity_type=jobs&limit=10", "t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history sync.HistoryResponse
	decode(t, rec, &history)
	assert.Equal(t, 2, history.Stats.TotalSyncs)
	assert.Equal(t, 2, history.Stats.Successful)
	assert.Equal(t, 1, history.Stats.TotalCreated)
}

func TestExecuteOptions(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{})
	body := `{
		"parts": [
			{"external_id": "P1", "external_source": "SAP", "part_number": "X", "job_id": "j-1"},
			{"external_id": "P2", "external_source": "SAP", "part_number": "Y"},
			{"external_id": "P3", "external_source": "SAP", "part_number": "Z", "job_id": "j-1"}
		],
		"options": {"continue_on_error": false, "record_history": false}
	}`

	rec := do(t, h, http.MethodPost, "/api/v1/sync/execute", "t1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sync.ExecuteResponse
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Parts.Total)
	assert.True(t, resp.Parts.Stopped)
	assert.Len(t, resp.Parts.Results, 2)

	rec = do(t, h, http.MethodGet, "/api/v1/sync/history", "t1", "")
	var history sync.HistoryResponse
	decode(t, rec, &history)
	assert.Empty(t, history.History)
}

func TestSyncRequestValidation(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{})

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"jobs": [`, "invalid_body"},
		{"no entity types", `{"options": {}}`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/sync/execute", "t1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestLookupRoutes(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{})
	rec := do(t, h, http.MethodPost, "/api/v1/sync/execute", "t1", jobRequest)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("lookup found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/lookup/jobs?external_source=SAP&external_id=E1", "t1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res sync.LookupResult
		decode(t, rec, &res)
		assert.True(t, res.Found)
		assert.Equal(t, "J-100", res.Entity.String("job_number"))
	})

	t.Run("lookup not found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/lookup/job?external_source=SAP&external_id=E2", "t1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res sync.LookupResult
		decode(t, rec, &res)
		assert.False(t, res.Found)
		assert.Equal(t, "E2", res.ExternalID)
	})

	t.Run("lookup missing query", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/lookup/job?external_source=SAP", "t1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_failed", errorCode(t, rec))
	})

	t.Run("unknown entity type", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/lookup/orders?external_source=SAP&external_id=E1", "t1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unknown_entity_type", errorCode(t, rec))
	})

	t.Run("batch lookup", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/lookup/job/batch", "t1", `{"external_source": "SAP", "external_ids": ["E1", "E9"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var res sync.BatchLookupResult
		decode(t, rec, &res)
		assert.Len(t, res.Found, 1)
		assert.Equal(t, []string{"E9"}, res.NotFound)
		assert.Equal(t, sync.BatchLookupSummary{Requested: 2, Found: 1, NotFound: 1}, res.Summary)
	})

	t.Run("batch lookup validation", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/lookup/job/batch", "t1", `{"external_ids": ["E1"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_failed", errorCode(t, rec))
	})

	t.Run("resolve", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/resolve/jobs", "t1", `{"external_source": "SAP", "external_ids": ["E1", "E1", "E9"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var res sync.ResolveResult
		decode(t, rec, &res)
		assert.Len(t, res.Mappings, 1)
		assert.Equal(t, []string{"E9"}, res.Unmapped)
		assert.Equal(t, 2, res.Summary.Requested)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/lookup/job?external_source=SAP&external_id=E1", "t2", "")
		var res sync.LookupResult
		decode(t, rec, &res)
		assert.False(t, res.Found)
	})
}

func TestFeedControlWithoutStaging(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/sync/status", "t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status sync.ManagerStatus
	decode(t, rec, &status)
	assert.Equal(t, sync.StateIdle, status.Status)
	assert.False(t, status.StagingEnabled)

	for _, path := range []string{"/api/v1/sync/trigger", "/api/v1/sync/snapshot"} {
		rec := do(t, h, http.MethodPost, path, "t1", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "staging_disabled", errorCode(t, rec))
	}

	rec = do(t, h, http.MethodPost, "/api/v1/sync/stop", "t1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryBadLimit(t *testing.T) {
	rec := do(t, newTestRouter(t, config.ServerConfig{}), http.MethodGet, "/api/v1/sync/history?limit=abc", "t1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	h := newTestRouter(t, config.ServerConfig{CorsOrigins: []string{"https://mes.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/diff", nil)
	req.Header.Set("Origin", "https://mes.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://mes.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
