package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/html-librarian/mig-catalog/internal/service"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total    int `json:"total,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, err error, message string) {
	correlationID := CorrelationIDFromContext(r.Context())

	// Backend failures answer with an opaque body. The real error stays in
	// the log, keyed by the correlation id the client can quote back.
	if statusCode >= http.StatusInternalServerError {
		util.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
			util.String("correlation_id", correlationID),
		)
		respondWithJSON(w, statusCode, Response{
			Success: false,
			Error:   "internal server error",
			Message: fmt.Sprintf("correlation_id: %s", correlationID),
		})
		return
	}

	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
		util.String("correlation_id", correlationID),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps service errors to HTTP statuses.
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidOrderState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
