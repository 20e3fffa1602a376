package provider

import (
	"fmt"
	"net/http"
)

// Kind classifies a backend error for the orchestration layer.
type Kind string

const (
	// KindInvalidInput means the backend rejected the request as malformed.
	// Retrying or falling back to another backend cannot help.
	KindInvalidInput Kind = "invalid_input"
	// KindFailure covers transport errors and server-side backend errors.
	KindFailure Kind = "provider_failure"
)

// Error is the common error type returned by all backends.
type Error struct {
	Kind     Kind
	Provider string
	Status   int // HTTP status from the vendor, 0 for transport errors
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// InvalidInput reports a request the backend rejected as malformed.
func InvalidInput(provider, message string) *Error {
	return &Error{Kind: KindInvalidInput, Provider: provider, Message: message}
}

// Failure wraps a transport or server-side backend error.
func Failure(provider string, cause error) *Error {
	return &Error{Kind: KindFailure, Provider: provider, Cause: cause}
}

// FromStatus classifies a non-2xx vendor response. Client errors that mark
// the request itself as unusable map to KindInvalidInput; everything else,
// including vendor-side throttling, is a backend failure the caller may
// retry or route around.
func FromStatus(provider string, status int, body string) *Error {
	kind := KindFailure
	switch status {
	case http.StatusBadRequest,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		kind = KindInvalidInput
	}
	return &Error{
		Kind:     kind,
		Provider: provider,
		Status:   status,
		Message:  fmt.Sprintf("API error (status %d): %s", status, body),
	}
}
