package domain

import "time"

// ResumePosition records where playback last stood for a source, so a new
// session can offer to continue instead of starting over.
type ResumePosition struct {
	SourceURL string    `json:"sourceUrl"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	Profile   string    `json:"profile,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
