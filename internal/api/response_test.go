package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusCreated, map[string]string{"id": "123"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var result SuccessResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "123", data["id"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "invalid input")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "invalid input", result.Error)
	assert.Equal(t, domain.ErrCodeValidation, result.Code)
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation error", domain.ErrEmptyQuery, http.StatusBadRequest},
		{"not found error", domain.ErrDocumentNotFound, http.StatusNotFound},
		{"feature disabled", domain.ErrFeatureDisabled, http.StatusForbidden},
		{"extraction error", domain.NewExtractionError("a.pdf", assert.AnError), http.StatusUnprocessableEntity},
		{"store unavailable", domain.NewStoreUnavailable(assert.AnError), http.StatusServiceUnavailable},
		{"wrapped domain error", fmt.Errorf("ingest: %w", domain.ErrInvalidSession), http.StatusBadRequest},
		{"internal error", domain.NewDomainError(domain.ErrCodeInternalError, "internal"), http.StatusInternalServerError},
		{"unknown domain error", domain.NewDomainError("UNKNOWN", "unknown"), http.StatusInternalServerError},
		{"non-domain error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DomainErrorToHTTP(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrDocumentNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, domain.ErrCodeNotFound, result.Code)
}

func TestHandleError_HidesServerErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.NewStoreUnavailable(errors.New("dial tcp 10.0.0.5:5432: connection refused")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Service Unavailable", result.Error)
	assert.Equal(t, domain.ErrCodeStoreUnavailable, result.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Question string `json:"question"`
	}

	tests := []struct {
		name       string
		payload    string
		allowEmpty bool
		ok         bool
		status     int
	}{
		{"valid", `{"question":"who?"}`, false, true, http.StatusOK},
		{"malformed", `{"question":`, false, false, http.StatusBadRequest},
		{"empty rejected", ``, false, false, http.StatusBadRequest},
		{"empty allowed", ``, true, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(tt.payload))

			var dst body
			assert.Equal(t, tt.ok, DecodeJSON(w, r, &dst, tt.allowEmpty))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"`+strings.Repeat("a", 64)+`"}`))
	r.Body = http.MaxBytesReader(w, r.Body, 16)

	var dst map[string]string
	assert.False(t, DecodeJSON(w, r, &dst, false))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleError_ReturnsMessageWithoutCause(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, fmt.Errorf("ingest: %w", domain.NewExtractionError("Session_04.pdf",
		errors.New("stat /var/lib/campaignkb/ingest/Session_04.pdf: no such file or directory"))))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "could not read document Session_04.pdf", result.Error)
	assert.Equal(t, domain.ErrCodeExtraction, result.Code)
	assert.NotContains(t, w.Body.String(), "/var/lib")
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "document not found", PublicMessage(domain.ErrDocumentNotFound))
	assert.Equal(t, "Internal Server Error", PublicMessage(errors.New("pq: relation missing")))
}
