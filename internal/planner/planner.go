package planner

import (
	"math"
	"sort"

	"mediastream/internal/domain"
)

const (
	// Priority tiers by time-distance of a chunk's midpoint from the
	// window start.
	highPriorityWithinSec = 5.0
	lowPriorityBeyondSec  = 15.0

	// nearTermWindowSec bounds the gap scan in ShouldLoadChunk.
	nearTermWindowSec = 10.0
)

// Planner converts playback time windows into prioritized byte-range
// requests. It holds only the immutable session config; all methods are
// pure functions of their inputs so the controller can call them from its
// single decision point without re-entrancy concerns.
type Planner struct {
	cfg domain.StreamingConfig
}

func New(cfg domain.StreamingConfig) *Planner {
	return &Planner{cfg: cfg.Normalize()}
}

// BytesPerSecond returns the linear time-to-byte rate for the file. The
// mapping is exact for constant bitrate and a practical heuristic for
// variable bitrate, where no segment index is available to the client.
func BytesPerSecond(duration float64, fileSize uint64) float64 {
	if duration <= 0 || fileSize == 0 {
		return 0
	}
	return float64(fileSize) / duration
}

// TimeToByte maps a playback time to a byte offset, clamped to the file.
func TimeToByte(t, duration float64, fileSize uint64) uint64 {
	bps := BytesPerSecond(duration, fileSize)
	if bps <= 0 {
		return 0
	}
	if t < 0 {
		t = 0
	}
	off := uint64(math.Floor(t * bps))
	if off >= fileSize {
		off = fileSize - 1
	}
	return off
}

// ByteToTime is the inverse mapping, used to estimate a chunk's position
// on the playback timeline.
func ByteToTime(off uint64, duration float64, fileSize uint64) float64 {
	bps := BytesPerSecond(duration, fileSize)
	if bps <= 0 {
		return 0
	}
	return float64(off) / bps
}

// CalculateChunksForTimeRange maps [startTime, endTime] to a byte window
// and splits it into contiguous requests no larger than ChunkSize. The
// union of the returned ranges exactly covers the clamped byte window.
func (p *Planner) CalculateChunksForTimeRange(startTime, endTime, duration float64, fileSize uint64) []domain.ChunkRequest {
	if fileSize == 0 || duration <= 0 || endTime <= startTime {
		return nil
	}

	startByte := TimeToByte(startTime, duration, fileSize)
	endByte := TimeToByte(endTime, duration, fileSize)
	if endByte < startByte {
		return nil
	}

	var chunks []domain.ChunkRequest
	for off := startByte; ; {
		end := off + p.cfg.ChunkSize - 1
		if end > endByte {
			end = endByte
		}
		r := domain.ByteRange{Start: off, End: end}
		chunks = append(chunks, domain.ChunkRequest{
			Range:    r,
			Priority: p.priorityFor(r, startTime, duration, fileSize),
		})
		if end == endByte {
			break
		}
		off = end + 1
	}
	return chunks
}

// priorityFor grades a chunk by how far its midpoint sits from the window
// start on the playback timeline.
func (p *Planner) priorityFor(r domain.ByteRange, startTime, duration float64, fileSize uint64) domain.Priority {
	mid := r.Start + r.Length()/2
	dist := math.Abs(ByteToTime(mid, duration, fileSize) - startTime)
	switch {
	case dist <= highPriorityWithinSec:
		return domain.PriorityHigh
	case dist > lowPriorityBeyondSec:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}

// PrioritizeChunks stable-sorts candidates by priority tier, then by
// estimated time-distance from the playback cursor. Equal chunks keep
// their submission order, so re-sorting is idempotent.
func (p *Planner) PrioritizeChunks(currentTime float64, chunks []domain.ChunkRequest, duration float64, fileSize uint64) []domain.ChunkRequest {
	out := append([]domain.ChunkRequest(nil), chunks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return p.distanceFrom(currentTime, out[i].Range, duration, fileSize) <
			p.distanceFrom(currentTime, out[j].Range, duration, fileSize)
	})
	return out
}

func (p *Planner) distanceFrom(currentTime float64, r domain.ByteRange, duration float64, fileSize uint64) float64 {
	mid := r.Start + r.Length()/2
	return math.Abs(ByteToTime(mid, duration, fileSize) - currentTime)
}

// ShouldLoadChunk decides whether more data is needed at the cursor. It
// fires when the cursor itself is uncovered, when contiguous coverage
// ahead is thinner than BufferAhead, or when a gap hides inside the
// near-term window. The three checks catch starvation at the cursor and
// a too-thin ahead buffer independently.
func (p *Planner) ShouldLoadChunk(currentTime float64, buffered domain.BufferedRanges) bool {
	if !buffered.Contains(currentTime) {
		return true
	}
	if buffered.ContiguousAhead(currentTime) < p.cfg.BufferAhead.Seconds() {
		return true
	}
	return buffered.HasGapWithin(currentTime, nearTermWindowSec)
}
