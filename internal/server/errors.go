package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/systmms/secretproxy/internal/entry"
)

// Error codes carried in ErrorDetail.Code.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found_error"
	CodeService    = "service_error"
	CodeAuth       = "auth_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Errors       []ErrorDetail `json:"errors"`
	TotalRecords int           `json:"total_records"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message    string      `json:"message"`
	Type       string      `json:"type"`
	Code       string      `json:"code"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter names the input an error relates to.
type Parameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// classify maps an error to its HTTP status and body.
func classify(err error) (int, ErrorDetail) {
	var ve *entry.ValidationError
	var nf *entry.NotFoundError
	var be *entry.BackendError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorDetail{
			Message:    "Validation failed",
			Type:       "ValidationError",
			Code:       CodeValidation,
			Parameters: []Parameter{{Key: ve.Field, Value: ve.Message}},
		}
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrorDetail{
			Message: nf.Error(),
			Type:    "NotFoundError",
			Code:    CodeNotFound,
		}
	case errors.As(err, &be):
		return http.StatusBadGateway, ErrorDetail{
			Message:    be.Error(),
			Type:       "BackendError",
			Code:       CodeService,
			Parameters: []Parameter{{Key: "backend", Value: be.Backend}, {Key: "operation", Value: be.Op}},
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorDetail{
			Message: "Request cancelled before completion",
			Type:    "ContextError",
			Code:    CodeService,
		}
	default:
		return http.StatusInternalServerError, ErrorDetail{
			Message: err.Error(),
			Type:    "InternalError",
			Code:    CodeService,
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorResponse{
		Errors:       []ErrorDetail{detail},
		TotalRecords: 1,
	})
}
