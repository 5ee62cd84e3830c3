package ports

import (
	"context"

	"mediastream/internal/domain"
)

// ResumeStore persists playback positions across sessions.
type ResumeStore interface {
	Upsert(ctx context.Context, pos domain.ResumePosition) error
	Get(ctx context.Context, sourceURL string) (domain.ResumePosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ResumePosition, error)
}
