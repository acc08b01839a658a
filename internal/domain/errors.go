package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
// A sentinel with an empty message matches any error carrying its code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || t.Message == e.Message)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeExtraction       = "EXTRACTION_ERROR"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeFeatureDisabled  = "FEATURE_DISABLED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "chunk max chars must be greater than overlap, overlap must not be negative")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query is required")
	ErrInvalidSession       = NewDomainError(ErrCodeValidation, "session must be a non-negative number")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrPathNotAllowed       = NewDomainError(ErrCodeValidation, "document path must be inside an ingest directory")
	ErrNotPDF               = NewDomainError(ErrCodeValidation, "document must be a .pdf file")
	ErrStorageNotConfigured = NewDomainError(ErrCodeValidation, "object storage is not configured")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Fatal pipeline errors. Match with errors.Is; wrapped instances carry their own message.
var (
	ErrExtraction       = &DomainError{Code: ErrCodeExtraction}
	ErrStoreUnavailable = &DomainError{Code: ErrCodeStoreUnavailable}
)

// ErrFeatureDisabled is returned by the command surfaces when PDF QA is switched off.
var ErrFeatureDisabled = NewDomainError(ErrCodeFeatureDisabled, "PDF QA feature disabled.")

// NewExtractionError reports a document that could not be read as a whole.
func NewExtractionError(sourceFile string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExtraction, fmt.Sprintf("could not read document %s", sourceFile), err)
}

// NewStoreUnavailable reports a vector index backend that could not be reached.
func NewStoreUnavailable(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStoreUnavailable, "vector index is unavailable", err)
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// MessageOf returns the message of the first DomainError in err's chain that
// has one, leaving out the code and any wrapped cause. It returns "" when
// there is none.
func MessageOf(err error) string {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return ""
		}
		if de.Message != "" {
			return de.Message
		}
		err = de.Err
	}
	return ""
}
