package domain

// Lifecycle phases surfaced to the UI collaborator.
const (
	LifecycleLoading    = "loading"
	LifecycleReady      = "ready"
	LifecycleRecovering = "recovering"
	LifecycleEnded      = "ended"
	LifecycleError      = "error"
	LifecycleTerminated = "terminated"
)

// ErrorEvent is the wire form of a streaming failure.
type ErrorEvent struct {
	Category    string `json:"category"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	RetryCount  int    `json:"retryCount"`
}

// NewErrorEvent converts a StreamingError to its outward representation.
func NewErrorEvent(err *StreamingError) ErrorEvent {
	return ErrorEvent{
		Category:    string(err.Kind),
		Message:     err.Error(),
		Recoverable: err.Recoverable,
		RetryCount:  err.RetryCount,
	}
}

// Event is a typed message published on a session's event stream.
type Event struct {
	Type  string           `json:"type"` // "lifecycle", "error" or "state"
	Phase string           `json:"phase,omitempty"`
	Error *ErrorEvent      `json:"error,omitempty"`
	State *SessionSnapshot `json:"state,omitempty"`
}
