package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

var validate = validator.New()

// maxBodyBytes bounds sync request bodies.
const maxBodyBytes = 16 << 20

type Handler struct {
	engine      *sync.Engine
	stores      store.Provider
	syncManager *sync.Manager
	server      config.ServerConfig
	metrics     config.MetricsConfig
}

func NewHandler(engine *sync.Engine, stores store.Provider, manager *sync.Manager, server config.ServerConfig, metrics config.MetricsConfig) *Handler {
	return &Handler{
		engine:      engine,
		stores:      stores,
		syncManager: manager,
		server:      server,
		metrics:     metrics,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.server.CorsOrigins))

	r.Get("/health", h.HealthCheck)
	if h.metrics.Enabled {
		path := h.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.server.AuthToken))
		r.Use(TenantMiddleware)

		r.Post("/sync/diff", h.Diff)
		r.Post("/sync/execute", h.Execute)
		r.Get("/sync/history", h.History)

		r.Get("/sync/status", h.GetSyncStatus)
		r.Post("/sync/trigger", h.TriggerSync)
		r.Post("/sync/stop", h.StopSync)
		r.Post("/sync/snapshot", h.RunSnapshot)

		r.Get("/lookup/{entity_type}", h.Lookup)
		r.Post("/lookup/{entity_type}/batch", h.BatchLookup)
		r.Post("/resolve/{entity_type}", h.Resolve)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) tenantStore(r *http.Request) store.Store {
	return h.stores.ForTenant(tenantFrom(r.Context()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apiError(http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
	}
	return nil
}

func (h *Handler) decodeSyncRequest(w http.ResponseWriter, r *http.Request) (sync.Request, error) {
	var req sync.Request
	if err := decodeBody(w, r, &req); err != nil {
		return req, err
	}
	if req.Jobs == nil && req.Parts == nil && req.Resources == nil {
		return req, apiError(http.StatusBadRequest, "invalid_request", "request must include jobs, parts or resources")
	}
	req.TenantID = tenantFrom(r.Context())
	return req, nil
}

func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeSyncRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.engine.Diff(r.Context(), h.tenantStore(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeSyncRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.engine.Execute(r.Context(), h.tenantStore(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apiError(http.StatusBadRequest, "invalid_request", key+" must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	resp, err := h.engine.History(r.Context(), h.tenantStore(r), sync.HistoryQuery{
		EntityType: q.Get("entity_type"),
		Source:     q.Get("source"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.Start(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	h.syncManager.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncManager.GetStatus())
}

func (h *Handler) RunSnapshot(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncManager.RunSnapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type lookupQuery struct {
	ExternalSource string `validate:"required"`
	ExternalID     string `validate:"required"`
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	entity, err := sync.ParseEntityType(chi.URLParam(r, "entity_type"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := lookupQuery{
		ExternalSource: r.URL.Query().Get("external_source"),
		ExternalID:     r.URL.Query().Get("external_id"),
	}
	if err := validate.Struct(q); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.engine.Lookup(r.Context(), h.tenantStore(r), entity, q.ExternalSource, q.ExternalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type batchLookupRequest struct {
	ExternalSource string   `json:"external_source" validate:"required"`
	ExternalIDs    []string `json:"external_ids" validate:"required,dive,required"`
}

func (h *Handler) decodeBatchLookup(w http.ResponseWriter, r *http.Request) (sync.EntityType, batchLookupRequest, error) {
	var req batchLookupRequest
	entity, err := sync.ParseEntityType(chi.URLParam(r, "entity_type"))
	if err != nil {
		return "", req, err
	}
	if err := decodeBody(w, r, &req); err != nil {
		return "", req, err
	}
	if err := validate.Struct(req); err != nil {
		return "", req, err
	}
	return entity, req, nil
}

func (h *Handler) BatchLookup(w http.ResponseWriter, r *http.Request) {
	entity, req, err := h.decodeBatchLookup(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.engine.BatchLookup(r.Context(), h.tenantStore(r), entity, req.ExternalSource, req.ExternalIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	entity, req, err := h.decodeBatchLookup(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.engine.Resolve(r.Context(), h.tenantStore(r), entity, req.ExternalSource, req.ExternalIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
