package domain

import "fmt"

// ByteRange is an inclusive byte interval within a media file.
// Invariant: Start <= End < file size.
type ByteRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() uint64 {
	return r.End - r.Start + 1
}

// Key returns a stable identity used to deduplicate in-flight fetches.
func (r ByteRange) Key() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ChunkRequest is a planned fetch of one byte range.
type ChunkRequest struct {
	Range    ByteRange `json:"range"`
	Priority Priority  `json:"priority"`
}
