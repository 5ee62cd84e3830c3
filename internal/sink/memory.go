package sink

import (
	"context"
	"sync"

	"mediastream/internal/domain"
)

// MemorySink is an in-process stand-in for the browser playback pipeline
// (SourceBuffer + media element). Updates are exclusive: Append and
// Remove hold the update slot for their whole duration, so a caller
// blocks until the previous update finishes, the same discipline the
// real sink imposes with its updating flag.
type MemorySink struct {
	mu       sync.Mutex
	updating bool
	cond     *sync.Cond

	supported map[string]bool
	ranges    domain.BufferedRanges
	chunks    map[string]chunkEntry // range key -> accounting, for dedup visibility
	bytes     int64
}

type chunkEntry struct {
	size int
	span domain.TimeRange
}

// NewMemorySink creates a sink that accepts the given MIME+codec strings.
// With no arguments it accepts the common H.264/AAC profiles.
func NewMemorySink(supported ...string) *MemorySink {
	if len(supported) == 0 {
		supported = []string{
			`video/mp4; codecs="avc1.640028,mp4a.40.2"`,
			`video/mp4; codecs="avc1.42E01E,mp4a.40.2"`,
			`audio/mp4; codecs="mp4a.40.2"`,
		}
	}
	s := &MemorySink{
		supported: make(map[string]bool, len(supported)),
		chunks:    make(map[string]chunkEntry),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, m := range supported {
		s.supported[m] = true
	}
	return s
}

func (s *MemorySink) Supports(mimeCodec string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported[mimeCodec]
}

// Append stores the chunk and merges its time interval into the buffered
// set. Out-of-order appends are fine; each range lands independently.
func (s *MemorySink) Append(ctx context.Context, r domain.ByteRange, t domain.TimeRange, data []byte) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	key := r.Key()
	if prev, ok := s.chunks[key]; ok {
		s.bytes -= int64(prev.size)
	}
	s.chunks[key] = chunkEntry{size: len(data), span: t}
	s.bytes += int64(len(data))
	s.ranges = s.ranges.Insert(t)
	return nil
}

// Remove evicts a time interval from the buffered set. A chunk releases
// its byte accounting once none of its interval remains buffered; a
// partially evicted chunk stays counted until the rest of it goes.
func (s *MemorySink) Remove(ctx context.Context, t domain.TimeRange) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.ranges = s.ranges.Remove(t)
	for key, ch := range s.chunks {
		if overlapsAny(s.ranges, ch.span) {
			continue
		}
		s.bytes -= int64(ch.size)
		delete(s.chunks, key)
	}
	return nil
}

func overlapsAny(ranges domain.BufferedRanges, span domain.TimeRange) bool {
	for _, r := range ranges {
		if span.Start < r.End && span.End > r.Start {
			return true
		}
	}
	return false
}

func (s *MemorySink) Buffered() domain.BufferedRanges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(domain.BufferedRanges(nil), s.ranges...)
}

// AppendedBytes returns the total payload bytes currently held.
func (s *MemorySink) AppendedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Reset releases all buffered data, as on session teardown.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = nil
	s.chunks = make(map[string]chunkEntry)
	s.bytes = 0
}

// acquire claims the exclusive update slot, waiting out any in-progress
// update unless the context is cancelled first.
func (s *MemorySink) acquire(ctx context.Context) error {
	s.mu.Lock()
	for s.updating {
		if ctx.Err() != nil {
			s.mu.Unlock()
			return ctx.Err()
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.updating = true
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) release() {
	s.mu.Lock()
	s.updating = false
	s.cond.Broadcast()
	s.mu.Unlock()
}
