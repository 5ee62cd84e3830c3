package domain

import "time"

// SessionSnapshot is the outward-facing view of one playback session,
// broadcast to UI collaborators for buffering indicators.
type SessionSnapshot struct {
	SourceURL     string         `json:"sourceUrl"`
	State         string         `json:"state"`
	Codec         string         `json:"codec,omitempty"`
	CurrentTime   float64        `json:"currentTime"`
	Duration      float64        `json:"duration"`
	TotalFileSize uint64         `json:"totalFileSize"`
	Buffered      BufferedRanges `json:"buffered,omitempty"`
	BufferedBytes int64          `json:"bufferedBytes"`
	InFlight      int            `json:"inFlight"`
	Pending       int            `json:"pending"`
	RetryCount    int            `json:"retryCount"`
	LastError     *ErrorEvent    `json:"lastError,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
