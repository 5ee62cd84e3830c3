package domain

import "sort"

// GapTolerance is the largest hole between two buffered time ranges that
// still counts as contiguous coverage. Media pipelines leave sub-second
// seams between appended segments; treating them as gaps would cause
// endless refetching of already-buffered content.
const GapTolerance = 0.5

// TimeRange is a half-open playback time interval in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the interval in seconds.
func (t TimeRange) Duration() float64 {
	if t.End <= t.Start {
		return 0
	}
	return t.End - t.Start
}

// BufferedRanges is an ordered, non-overlapping set of time intervals that
// have been appended to the playback sink. It is the source of truth for
// what can play without stalling.
type BufferedRanges []TimeRange

// Insert adds a range and merges it with any neighbours it touches,
// keeping the set sorted and non-overlapping. Appends may arrive out of
// submission order; Insert is order-independent.
func (b BufferedRanges) Insert(r TimeRange) BufferedRanges {
	if r.Duration() <= 0 {
		return b
	}
	out := append(BufferedRanges(nil), b...)
	out = append(out, r)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	merged := out[:1]
	for _, cur := range out[1:] {
		last := &merged[len(merged)-1]
		if cur.Start <= last.End {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Remove subtracts the interval from the set, splitting ranges that
// straddle it.
func (b BufferedRanges) Remove(r TimeRange) BufferedRanges {
	if r.Duration() <= 0 {
		return b
	}
	var out BufferedRanges
	for _, cur := range b {
		if cur.End <= r.Start || cur.Start >= r.End {
			out = append(out, cur)
			continue
		}
		if cur.Start < r.Start {
			out = append(out, TimeRange{Start: cur.Start, End: r.Start})
		}
		if cur.End > r.End {
			out = append(out, TimeRange{Start: r.End, End: cur.End})
		}
	}
	return out
}

// Contains reports whether the position falls inside a buffered range.
func (b BufferedRanges) Contains(t float64) bool {
	_, ok := b.rangeAt(t)
	return ok
}

// ContiguousAhead returns how many seconds of coverage extend past t,
// crossing holes no larger than GapTolerance.
func (b BufferedRanges) ContiguousAhead(t float64) float64 {
	i, ok := b.rangeAt(t)
	if !ok {
		return 0
	}
	end := b[i].End
	for j := i + 1; j < len(b); j++ {
		if b[j].Start-end > GapTolerance {
			break
		}
		end = b[j].End
	}
	return end - t
}

// HasGapWithin reports whether a hole larger than GapTolerance exists in
// the window [t, t+window]. Only holes between buffered content count; the
// unbuffered region past the last range is handled by the ahead check.
func (b BufferedRanges) HasGapWithin(t, window float64) bool {
	limit := t + window
	prevEnd := t
	for _, cur := range b {
		if cur.End <= t {
			continue
		}
		if cur.Start >= limit {
			break
		}
		if cur.Start-prevEnd > GapTolerance {
			return true
		}
		if cur.End > prevEnd {
			prevEnd = cur.End
		}
	}
	return false
}

// TotalSeconds returns the summed duration of all buffered ranges.
func (b BufferedRanges) TotalSeconds() float64 {
	var total float64
	for _, cur := range b {
		total += cur.Duration()
	}
	return total
}

func (b BufferedRanges) rangeAt(t float64) (int, bool) {
	for i, cur := range b {
		if t >= cur.Start && t < cur.End {
			return i, true
		}
	}
	return 0, false
}
