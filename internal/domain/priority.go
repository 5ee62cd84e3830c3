package domain

import "fmt"

// Priority orders chunk requests for fetching. Assigned at planning time
// from the chunk's distance to the playback cursor; a seek may upgrade
// every chunk in the new window to PriorityHigh.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2 // Immediate need, near the playback cursor.
)

var priorityNames = [...]string{"low", "normal", "high"}

func (p Priority) String() string {
	if p >= 0 && int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}
