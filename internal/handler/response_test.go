package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/html-librarian/mig-catalog/internal/service"
)

func TestUnmappedErrorAnswersOpaque500(t *testing.T) {
	backendErr := errors.New("no hosts available in the pool (host 10.2.3.4)")

	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, r, getStatusCode(backendErr), backendErr, "Login failed")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "10.2.3.4")
	assert.NotContains(t, body, "no hosts")
	assert.Contains(t, body, "internal server error")

	correlationID := rec.Header().Get("X-Correlation-ID")
	require.NotEmpty(t, correlationID)
	assert.Contains(t, body, correlationID)
}

func TestMappedErrorKeepsClientMessage(t *testing.T) {
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, r, getStatusCode(service.ErrItemNotFound), service.ErrItemNotFound, "Failed to get item")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/x", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), service.ErrItemNotFound.Error())
}
