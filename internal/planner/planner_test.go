package planner

import (
	"math"
	"testing"
	"time"

	"mediastream/internal/domain"
)

func testConfig() domain.StreamingConfig {
	return domain.StreamingConfig{
		ChunkSize:   1 << 20,
		BufferAhead: 30 * time.Second,
	}
}

func TestTimeByteMapping(t *testing.T) {
	const (
		duration = 100.0
		fileSize = uint64(10_000_000) // 100 KB/s
	)

	if got := BytesPerSecond(duration, fileSize); got != 100_000 {
		t.Errorf("BytesPerSecond = %v, want 100000", got)
	}
	if got := TimeToByte(15, duration, fileSize); got != 1_500_000 {
		t.Errorf("TimeToByte(15) = %d, want 1500000", got)
	}
	if got := TimeToByte(-2, duration, fileSize); got != 0 {
		t.Errorf("TimeToByte(-2) = %d, want 0", got)
	}
	// Past the end clamps to the last byte.
	if got := TimeToByte(1000, duration, fileSize); got != fileSize-1 {
		t.Errorf("TimeToByte(1000) = %d, want %d", got, fileSize-1)
	}
	if got := ByteToTime(1_500_000, duration, fileSize); math.Abs(got-15) > 1e-9 {
		t.Errorf("ByteToTime(1500000) = %v, want 15", got)
	}
}

func TestTimeByteMappingDegenerateInputs(t *testing.T) {
	if got := TimeToByte(10, 0, 1000); got != 0 {
		t.Errorf("zero duration: got %d, want 0", got)
	}
	if got := TimeToByte(10, 100, 0); got != 0 {
		t.Errorf("zero file size: got %d, want 0", got)
	}
	if got := ByteToTime(500, 0, 1000); got != 0 {
		t.Errorf("zero duration inverse: got %v, want 0", got)
	}
}

func TestCalculateChunksForTimeRange(t *testing.T) {
	p := New(testConfig())

	// 10 MB file, 100 s, window [0, 15] -> bytes [0, 1500000].
	chunks := p.CalculateChunksForTimeRange(0, 15, 100, 10_000_000)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Range != (domain.ByteRange{Start: 0, End: 999_999}) {
		t.Errorf("chunk 0 = %v, want [0,999999]", chunks[0].Range)
	}
	if chunks[1].Range != (domain.ByteRange{Start: 1_000_000, End: 1_500_000}) {
		t.Errorf("chunk 1 = %v, want [1000000,1500000]", chunks[1].Range)
	}

	// Chunk 0 midpoint sits at 5.0s from the window start.
	if chunks[0].Priority != domain.PriorityHigh {
		t.Errorf("chunk 0 priority = %v, want High", chunks[0].Priority)
	}
	// Chunk 1 midpoint sits at 12.5s.
	if chunks[1].Priority != domain.PriorityNormal {
		t.Errorf("chunk 1 priority = %v, want Normal", chunks[1].Priority)
	}
}

func TestCalculateChunksCoverWindowExactly(t *testing.T) {
	p := New(testConfig())
	chunks := p.CalculateChunksForTimeRange(10, 45, 100, 10_000_000)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	wantStart := TimeToByte(10, 100, 10_000_000)
	wantEnd := TimeToByte(45, 100, 10_000_000)
	if chunks[0].Range.Start != wantStart {
		t.Errorf("first chunk starts at %d, want %d", chunks[0].Range.Start, wantStart)
	}
	if chunks[len(chunks)-1].Range.End != wantEnd {
		t.Errorf("last chunk ends at %d, want %d", chunks[len(chunks)-1].Range.End, wantEnd)
	}
	// Contiguity: no holes, no overlaps.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Range.Start != chunks[i-1].Range.End+1 {
			t.Errorf("chunk %d not contiguous: %v after %v", i, chunks[i].Range, chunks[i-1].Range)
		}
	}
	for _, ch := range chunks {
		if ch.Range.Length() > p.cfg.ChunkSize {
			t.Errorf("chunk %v exceeds chunk size", ch.Range)
		}
	}
}

func TestCalculateChunksDegenerateInputs(t *testing.T) {
	p := New(testConfig())
	if got := p.CalculateChunksForTimeRange(10, 10, 100, 10_000_000); got != nil {
		t.Errorf("empty window should produce nil, got %v", got)
	}
	if got := p.CalculateChunksForTimeRange(10, 5, 100, 10_000_000); got != nil {
		t.Errorf("inverted window should produce nil, got %v", got)
	}
	if got := p.CalculateChunksForTimeRange(0, 10, 0, 10_000_000); got != nil {
		t.Errorf("zero duration should produce nil, got %v", got)
	}
	if got := p.CalculateChunksForTimeRange(0, 10, 100, 0); got != nil {
		t.Errorf("zero file size should produce nil, got %v", got)
	}
}

func TestCalculateChunksFarWindowIsLowPriority(t *testing.T) {
	p := New(testConfig())
	// Window [60, 75] measured from startTime 60 is all within 15s, but
	// the priority grading is relative to the window start, so the first
	// chunks come out High again after a seek.
	chunks := p.CalculateChunksForTimeRange(60, 75, 100, 10_000_000)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0].Priority != domain.PriorityHigh {
		t.Errorf("first chunk after window start = %v, want High", chunks[0].Priority)
	}
}

func TestPrioritizeChunksOrdering(t *testing.T) {
	p := New(testConfig())
	const (
		duration = 100.0
		fileSize = uint64(10_000_000)
	)

	chunks := []domain.ChunkRequest{
		{Range: domain.ByteRange{Start: 3_000_000, End: 3_999_999}, Priority: domain.PriorityLow},
		{Range: domain.ByteRange{Start: 0, End: 999_999}, Priority: domain.PriorityHigh},
		{Range: domain.ByteRange{Start: 1_000_000, End: 1_999_999}, Priority: domain.PriorityNormal},
		{Range: domain.ByteRange{Start: 2_000_000, End: 2_999_999}, Priority: domain.PriorityHigh},
	}

	got := p.PrioritizeChunks(0, chunks, duration, fileSize)

	wantOrder := []uint64{0, 2_000_000, 1_000_000, 3_000_000}
	for i, start := range wantOrder {
		if got[i].Range.Start != start {
			t.Errorf("position %d: got start %d, want %d", i, got[i].Range.Start, start)
		}
	}

	// Input slice must not be mutated.
	if chunks[0].Range.Start != 3_000_000 {
		t.Error("PrioritizeChunks mutated its input")
	}
}

func TestPrioritizeChunksStable(t *testing.T) {
	p := New(testConfig())
	chunks := []domain.ChunkRequest{
		{Range: domain.ByteRange{Start: 100, End: 199}, Priority: domain.PriorityNormal},
		{Range: domain.ByteRange{Start: 200, End: 299}, Priority: domain.PriorityNormal},
	}
	once := p.PrioritizeChunks(0, chunks, 100, 10_000_000)
	twice := p.PrioritizeChunks(0, once, 100, 10_000_000)
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("re-sorting changed order at %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestShouldLoadChunk(t *testing.T) {
	p := New(testConfig())

	tests := []struct {
		name     string
		buffered domain.BufferedRanges
		cursor   float64
		want     bool
	}{
		{"cursor uncovered", domain.BufferedRanges{{Start: 10, End: 20}}, 5, true},
		{"thin ahead buffer", domain.BufferedRanges{{Start: 0, End: 20}}, 5, true},
		{"deep ahead buffer", domain.BufferedRanges{{Start: 0, End: 40}}, 5, false},
		{"gap in near-term window", domain.BufferedRanges{{Start: 0, End: 8}, {Start: 10, End: 60}}, 5, true},
		{"nothing buffered", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldLoadChunk(tt.cursor, tt.buffered); got != tt.want {
				t.Errorf("ShouldLoadChunk = %v, want %v", got, tt.want)
			}
		})
	}
}
