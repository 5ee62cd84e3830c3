package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")
var ErrNoActiveSession = errors.New("no active session")
var ErrTokenExpired = errors.New("bearer token expired")

// ErrorKind classifies a streaming failure for recovery decisions.
type ErrorKind string

const (
	// ErrorAuthentication covers 401/403 responses. Never retried; the
	// auth collaborator must refresh the token first.
	ErrorAuthentication ErrorKind = "authentication"
	// ErrorNetwork covers transport failures and non-auth HTTP errors.
	// Recoverable unless the origin answered with a definitive 4xx.
	ErrorNetwork ErrorKind = "network"
	// ErrorChunkLoad covers a fetch or append failure for one specific
	// byte range.
	ErrorChunkLoad ErrorKind = "chunk_load_failed"
	// ErrorCapability means no supported codec profile. Terminal.
	ErrorCapability ErrorKind = "capability"
)

// StreamingError is the error currency of the streaming core. RetryCount
// records how many retries were consumed before the error surfaced.
type StreamingError struct {
	Kind        ErrorKind
	Status      int        // HTTP status for authentication errors
	Range       *ByteRange // failed range for chunk-load errors
	Priority    Priority   // planned priority of the failed chunk
	Recoverable bool
	RetryCount  int
	Cause       error
}

func (e *StreamingError) Error() string {
	switch e.Kind {
	case ErrorAuthentication:
		return fmt.Sprintf("authentication failed (status %d)", e.Status)
	case ErrorChunkLoad:
		if e.Range != nil {
			return fmt.Sprintf("chunk load failed for bytes %d-%d: %v", e.Range.Start, e.Range.End, e.Cause)
		}
		return fmt.Sprintf("chunk load failed: %v", e.Cause)
	case ErrorCapability:
		return fmt.Sprintf("capability error: %v", e.Cause)
	default:
		return fmt.Sprintf("network error: %v", e.Cause)
	}
}

func (e *StreamingError) Unwrap() error {
	return e.Cause
}

// NewAuthenticationError builds the non-recoverable auth failure for a
// 401 or 403 response.
func NewAuthenticationError(status int) *StreamingError {
	return &StreamingError{Kind: ErrorAuthentication, Status: status, Recoverable: false}
}

// NewNetworkError wraps a transport or HTTP failure. Definitive client
// errors (4xx other than auth) pass recoverable=false.
func NewNetworkError(cause error, recoverable bool) *StreamingError {
	return &StreamingError{Kind: ErrorNetwork, Recoverable: recoverable, Cause: cause}
}

// NewChunkLoadError records a failed fetch or append of one byte range.
func NewChunkLoadError(r ByteRange, prio Priority, cause error) *StreamingError {
	rng := r
	return &StreamingError{Kind: ErrorChunkLoad, Range: &rng, Priority: prio, Recoverable: true, Cause: cause}
}

// NewCapabilityError reports that no codec profile was supported.
func NewCapabilityError(cause error) *StreamingError {
	return &StreamingError{Kind: ErrorCapability, Recoverable: false, Cause: cause}
}

// AsStreamingError extracts a *StreamingError from an error chain. Errors
// of unknown provenance are treated as recoverable network failures.
func AsStreamingError(err error) *StreamingError {
	var serr *StreamingError
	if errors.As(err, &serr) {
		return serr
	}
	return NewNetworkError(err, true)
}
