package domain

import (
	"math"
	"testing"
)

func approxEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestInsertMergesOverlappingRanges(t *testing.T) {
	var b BufferedRanges
	b = b.Insert(TimeRange{Start: 0, End: 10})
	b = b.Insert(TimeRange{Start: 8, End: 15})

	if len(b) != 1 {
		t.Fatalf("expected 1 merged range, got %d: %v", len(b), b)
	}
	if !approxEq(b[0].Start, 0) || !approxEq(b[0].End, 15) {
		t.Errorf("merged range = %v, want [0,15]", b[0])
	}
}

func TestInsertKeepsDisjointRangesSorted(t *testing.T) {
	var b BufferedRanges
	b = b.Insert(TimeRange{Start: 20, End: 30})
	b = b.Insert(TimeRange{Start: 0, End: 10})

	if len(b) != 2 {
		t.Fatalf("expected 2 ranges, got %d: %v", len(b), b)
	}
	if b[0].Start != 0 || b[1].Start != 20 {
		t.Errorf("ranges out of order: %v", b)
	}
}

func TestInsertOrderIndependent(t *testing.T) {
	ranges := []TimeRange{{0, 5}, {10, 15}, {4, 11}}

	var forward BufferedRanges
	for _, r := range ranges {
		forward = forward.Insert(r)
	}
	var backward BufferedRanges
	for i := len(ranges) - 1; i >= 0; i-- {
		backward = backward.Insert(ranges[i])
	}

	if len(forward) != 1 || len(backward) != 1 {
		t.Fatalf("expected single merged range both ways, got %v and %v", forward, backward)
	}
	if forward[0] != backward[0] {
		t.Errorf("order-dependent merge: %v vs %v", forward[0], backward[0])
	}
}

func TestInsertIgnoresEmptyRange(t *testing.T) {
	var b BufferedRanges
	b = b.Insert(TimeRange{Start: 5, End: 5})
	b = b.Insert(TimeRange{Start: 7, End: 3})
	if len(b) != 0 {
		t.Errorf("empty ranges should be dropped, got %v", b)
	}
}

func TestRemoveSplitsStraddlingRange(t *testing.T) {
	b := BufferedRanges{{Start: 0, End: 30}}
	b = b.Remove(TimeRange{Start: 10, End: 20})

	if len(b) != 2 {
		t.Fatalf("expected split into 2 ranges, got %d: %v", len(b), b)
	}
	if !approxEq(b[0].End, 10) || !approxEq(b[1].Start, 20) {
		t.Errorf("split = %v, want [0,10] and [20,30]", b)
	}
}

func TestRemoveWholeAndPartial(t *testing.T) {
	b := BufferedRanges{{0, 10}, {20, 30}, {40, 50}}
	b = b.Remove(TimeRange{Start: 15, End: 45})

	if len(b) != 2 {
		t.Fatalf("expected 2 ranges, got %d: %v", len(b), b)
	}
	if b[0] != (TimeRange{0, 10}) {
		t.Errorf("first range = %v, want [0,10]", b[0])
	}
	if !approxEq(b[1].Start, 45) || !approxEq(b[1].End, 50) {
		t.Errorf("second range = %v, want [45,50]", b[1])
	}
}

func TestContains(t *testing.T) {
	b := BufferedRanges{{0, 10}, {20, 30}}

	tests := []struct {
		pos  float64
		want bool
	}{
		{0, true},
		{5, true},
		{10, false}, // half-open
		{15, false},
		{20, true},
		{29.9, true},
		{30, false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.pos); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestContiguousAheadCrossesSmallGaps(t *testing.T) {
	// 0.3s hole, inside tolerance.
	b := BufferedRanges{{0, 10}, {10.3, 20}}
	if got := b.ContiguousAhead(5); !approxEq(got, 15) {
		t.Errorf("ContiguousAhead(5) = %v, want 15", got)
	}
}

func TestContiguousAheadStopsAtRealGap(t *testing.T) {
	// 2s hole, past tolerance.
	b := BufferedRanges{{0, 10}, {12, 20}}
	if got := b.ContiguousAhead(5); !approxEq(got, 5) {
		t.Errorf("ContiguousAhead(5) = %v, want 5", got)
	}
}

func TestContiguousAheadOutsideCoverage(t *testing.T) {
	b := BufferedRanges{{10, 20}}
	if got := b.ContiguousAhead(5); got != 0 {
		t.Errorf("ContiguousAhead(5) = %v, want 0", got)
	}
}

func TestHasGapWithin(t *testing.T) {
	b := BufferedRanges{{0, 10}, {12, 20}}

	if !b.HasGapWithin(5, 10) {
		t.Error("expected gap at [10,12] to be detected from t=5")
	}
	// Window ends before the gap opens.
	if b.HasGapWithin(2, 7) {
		t.Error("gap outside window should not be detected")
	}
	// Small seams do not count.
	seamed := BufferedRanges{{0, 10}, {10.4, 20}}
	if seamed.HasGapWithin(5, 10) {
		t.Error("seam within tolerance should not count as a gap")
	}
}

func TestHasGapWithinIgnoresTailRegion(t *testing.T) {
	// Nothing buffered past 10; that is thin coverage, not a gap.
	b := BufferedRanges{{0, 10}}
	if b.HasGapWithin(5, 10) {
		t.Error("unbuffered tail should not count as a gap")
	}
}

func TestTotalSeconds(t *testing.T) {
	b := BufferedRanges{{0, 10}, {20, 25}}
	if got := b.TotalSeconds(); !approxEq(got, 15) {
		t.Errorf("TotalSeconds() = %v, want 15", got)
	}
}
