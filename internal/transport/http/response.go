package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"axle-monitor/core/internal/domain"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total         int                   `json:"total,omitempty"`
	Page          int                   `json:"page,omitempty"`
	Limit         int                   `json:"limit,omitempty"`
	TotalPages    int                   `json:"totalPages,omitempty"`
	SkippedFrames int                   `json:"skippedFrames,omitempty"`
	SkippedRows   int                   `json:"skippedRows,omitempty"`
	Errors        []*domain.DeviceError `json:"errors,omitempty"`
	QueryMs       int64                 `json:"query_ms"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respond(w, status, apiResponse{Success: true, Data: data})
}

func respondWithMeta(w http.ResponseWriter, status int, data interface{}, m *meta) {
	respond(w, status, apiResponse{Success: true, Data: data, Meta: m})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, apiResponse{Success: false, Error: message})
}

// respondErr maps an error kind onto its status code.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func respond(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPartialFailure):
		return http.StatusMultiStatus
	}
	return http.StatusInternalServerError
}

// partialStatus is 207 when some devices failed and 200 otherwise.
func partialStatus(errs []*domain.DeviceError) int {
	if len(errs) > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}
