package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response. Client errors carry the validation
// code so callers can branch on code alone.
func Error(w http.ResponseWriter, status int, message string) {
	resp := ErrorResponse{Error: message}
	if status >= 400 && status < 500 {
		resp.Code = domain.ErrCodeValidation
	}
	JSON(w, status, resp)
}

// DecodeJSON reads the request body into dst. An empty body leaves dst
// untouched when allowEmpty is set. On failure it writes the response
// and reports false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeFeatureDisabled:
		return http.StatusForbidden
	case domain.ErrCodeExtraction:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Server-side failures are answered with the status text only; client errors
// with the domain message. Wrapped causes are logged, never returned.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	code := domain.CodeOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		JSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: code})
		return
	}

	if errors.Unwrap(err) != nil {
		log.Printf("request rejected: %v", err)
	}
	JSON(w, status, ErrorResponse{Error: PublicMessage(err), Code: code})
}

// PublicMessage is the text of err that is safe to show a caller.
func PublicMessage(err error) string {
	if msg := domain.MessageOf(err); msg != "" {
		return msg
	}
	return http.StatusText(DomainErrorToHTTP(err))
}
