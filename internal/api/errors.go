package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/sync"
)

// APIError is the JSON error body for every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func apiError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return apiError(http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, sync.ErrUnknownEntityType):
		return apiError(http.StatusBadRequest, "unknown_entity_type", err.Error())
	case errors.Is(err, sync.ErrMissingRequiredFields):
		return apiError(http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, sync.ErrStagingDisabled):
		return apiError(http.StatusServiceUnavailable, "staging_disabled", err.Error())
	case errors.Is(err, sync.ErrFeedRunning), errors.Is(err, sync.ErrSnapshotRunning):
		return apiError(http.StatusConflict, "already_running", err.Error())
	default:
		return apiError(http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to encode response", zap.Error(err))
	}
}
