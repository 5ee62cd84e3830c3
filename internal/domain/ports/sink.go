package ports

import (
	"context"

	"mediastream/internal/domain"
)

// Sink is the playback buffer collaborator (the MSE SourceBuffer plus
// media-element analogue). Append and Remove are mutually exclusive
// against the sink: implementations must serialize them internally and
// block callers while another update is in progress. Appends may arrive
// out of submission order.
type Sink interface {
	// Supports probes one MIME+codec string during negotiation.
	Supports(mimeCodec string) bool

	// Append adds fetched bytes covering the given byte range and the
	// time interval the session mapped it to.
	Append(ctx context.Context, r domain.ByteRange, t domain.TimeRange, data []byte) error

	// Remove evicts a buffered time interval.
	Remove(ctx context.Context, t domain.TimeRange) error

	// Buffered returns the current buffered time ranges.
	Buffered() domain.BufferedRanges

	// Reset releases all buffered data and any underlying handles.
	Reset()
}
