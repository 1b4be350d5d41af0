package asset

import "fmt"

// NetworkError represents transport failures while fetching an asset, including
// non-2xx responses, connection resets and timeouts.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "get", "range_read")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the remote or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DirectoryError represents storage directory failures: a directory that cannot be
// listed, created or written.
type DirectoryError struct {
	Path   string // The directory that caused the error
	Reason string // Human-readable explanation of the directory error
	Err    error  // Underlying error, if any
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory error for '%s': %s", e.Path, e.Reason)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// SourceError is returned when an asset URL cannot be served by any configured source.
type SourceError struct {
	URL    string
	Reason string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("unsupported source %s: %s", e.URL, e.Reason)
}

// AuthenticationError is returned when a source rejects the configured credentials
// (HTTP 401/403, GCS permission denied).
type AuthenticationError struct {
	Operation string
	Err       error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
