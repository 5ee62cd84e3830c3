package memory

import (
	"context"
	"errors"
	"testing"

	"mediastream/internal/domain"
)

func TestUpsertAndGet(t *testing.T) {
	s := NewResumeStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.ResumePosition{SourceURL: "https://x/a.mp4", Position: 30, Duration: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, domain.ResumePosition{SourceURL: "https://x/a.mp4", Position: 45, Duration: 100}); err != nil {
		t.Fatal(err)
	}

	pos, err := s.Get(ctx, "https://x/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if pos.Position != 45 {
		t.Errorf("Position = %v, want the updated value 45", pos.Position)
	}
	if pos.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestGetUnknownSource(t *testing.T) {
	s := NewResumeStore()
	_, err := s.Get(context.Background(), "https://x/missing.mp4")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRecentOrdersAndLimits(t *testing.T) {
	s := NewResumeStore()
	ctx := context.Background()
	for _, src := range []string{"https://x/a.mp4", "https://x/b.mp4", "https://x/c.mp4"} {
		if err := s.Upsert(ctx, domain.ResumePosition{SourceURL: src, Position: 1, Duration: 10}); err != nil {
			t.Fatal(err)
		}
	}
	// Touch a again so it becomes the most recent.
	if err := s.Upsert(ctx, domain.ResumePosition{SourceURL: "https://x/a.mp4", Position: 5, Duration: 10}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].SourceURL != "https://x/a.mp4" {
		t.Errorf("most recent = %q, want https://x/a.mp4", list[0].SourceURL)
	}
}
