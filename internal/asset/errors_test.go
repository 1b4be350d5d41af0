package asset

import (
	"errors"
	"fmt"
	"testing"
)

// TestNetworkError_Error verifies error message formatting
func TestNetworkError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *NetworkError
		wantFormat string
	}{
		{
			name: "with HTTP status code",
			err: &NetworkError{
				Operation:  "get",
				StatusCode: 503,
				APIMessage: "service unavailable",
			},
			wantFormat: "network error during get (HTTP 503): service unavailable",
		},
		{
			name: "without HTTP status code",
			err: &NetworkError{
				Operation:  "get",
				APIMessage: "connection timeout",
			},
			wantFormat: "network error during get: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestDirectoryError_Error verifies error message formatting
func TestDirectoryError_Error(t *testing.T) {
	err := &DirectoryError{
		Path:   "/sdcard/devilutionx",
		Reason: "not writable",
	}

	expected := "directory error for '/sdcard/devilutionx': not writable"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestSourceError_Error(t *testing.T) {
	err := &SourceError{URL: "ftp://example.com/spawn.mpq", Reason: "no source for scheme ftp"}

	expected := "unsupported source ftp://example.com/spawn.mpq: no source for scheme ftp"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestNetworkError_Unwrap verifies error chain traversal
func TestNetworkError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &NetworkError{
		Operation:  "get",
		StatusCode: 500,
		APIMessage: "internal server error",
		Err:        cause,
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find cause in wrapped chain")
	}

	var netErr *NetworkError
	if !errors.As(wrapped, &netErr) || netErr.StatusCode != 500 {
		t.Errorf("errors.As() should recover the NetworkError, got %v", netErr)
	}
}

// TestDirectoryError_Unwrap verifies error chain traversal
func TestDirectoryError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &DirectoryError{
		Path:   "/data",
		Reason: "cannot list",
		Err:    cause,
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find cause in wrapped chain")
	}
}

func TestAuthenticationError(t *testing.T) {
	underlying := errors.New("401 Unauthorized")
	err := &AuthenticationError{Operation: "get", Err: underlying}

	if got := err.Error(); got != "authentication failed during get" {
		t.Errorf("Error() = %q", got)
	}

	var target *AuthenticationError
	if !errors.As(fmt.Errorf("fetch fonts: %w", err), &target) {
		t.Error("errors.As should find AuthenticationError through wrapping")
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should reach the underlying error")
	}
}
