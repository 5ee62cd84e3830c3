package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediastream/internal/domain"
)

// ResumeStore is the in-process fallback used when no database is
// configured. Positions survive for the lifetime of the server only.
type ResumeStore struct {
	mu        sync.RWMutex
	positions map[string]domain.ResumePosition
}

func NewResumeStore() *ResumeStore {
	return &ResumeStore{positions: make(map[string]domain.ResumePosition)}
}

func (s *ResumeStore) Upsert(_ context.Context, pos domain.ResumePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.UpdatedAt = time.Now().UTC()
	s.positions[pos.SourceURL] = pos
	return nil
}

func (s *ResumeStore) Get(_ context.Context, sourceURL string) (domain.ResumePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[sourceURL]
	if !ok {
		return domain.ResumePosition{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *ResumeStore) ListRecent(_ context.Context, limit int) ([]domain.ResumePosition, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	out := make([]domain.ResumePosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
