package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"bad_request", 400, KindInvalidInput},
		{"payload_too_large", 413, KindInvalidInput},
		{"unsupported_media", 415, KindInvalidInput},
		{"unprocessable", 422, KindInvalidInput},
		{"unauthorized", 401, KindFailure},
		{"vendor_throttled", 429, KindFailure},
		{"server_error", 500, KindFailure},
		{"bad_gateway", 502, KindFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus("whisper", tt.status, "boom")
			if err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Failure("deepl", fmt.Errorf("post: %w", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var perr *Error
	wrapped := fmt.Errorf("stage: %w", err)
	if !errors.As(wrapped, &perr) {
		t.Fatal("errors.As should find *Error through wrapping")
	}
	if perr.Provider != "deepl" {
		t.Errorf("Provider = %q, want deepl", perr.Provider)
	}
}

func TestErrorString(t *testing.T) {
	if got := InvalidInput("google", "empty text").Error(); got != "google: empty text" {
		t.Errorf("Error() = %q", got)
	}
	if got := Failure("whisper", errors.New("dial tcp: timeout")).Error(); got != "whisper: dial tcp: timeout" {
		t.Errorf("Error() = %q", got)
	}
}
