package ports

import (
	"context"

	"mediastream/internal/domain"
)

// ChunkFetcher retrieves byte ranges from an authenticated origin.
type ChunkFetcher interface {
	// FetchChunk downloads one inclusive byte range, retrying transient
	// failures internally. Errors are *domain.StreamingError values.
	FetchChunk(ctx context.Context, source string, r domain.ByteRange, token string) ([]byte, error)

	// FileSize discovers the total size of the media file.
	FileSize(ctx context.Context, source, token string) (uint64, error)
}
