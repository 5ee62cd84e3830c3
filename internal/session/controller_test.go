package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/sink"
)

// fakeFetcher scripts FileSize and per-range chunk outcomes.
type fakeFetcher struct {
	mu           sync.Mutex
	fileSize     uint64
	sizeErr      error
	sizeFailures int // fail FileSize this many times before succeeding
	chunkErr     func(r domain.ByteRange) error
	fetchDelay   time.Duration
	requests     []domain.ByteRange
	sizeCalls    int
	inFlight     int
	maxInFlight  int
}

func (f *fakeFetcher) FetchChunk(ctx context.Context, source string, r domain.ByteRange, token string) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	errFn := f.chunkErr
	delay := f.fetchDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, domain.NewNetworkError(err, true)
	}
	if errFn != nil {
		if err := errFn(r); err != nil {
			return nil, err
		}
	}
	return make([]byte, r.Length()), nil
}

func (f *fakeFetcher) FileSize(ctx context.Context, source, token string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeCalls++
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	if f.sizeFailures > 0 {
		f.sizeFailures--
		return 0, domain.NewNetworkError(errors.New("origin unreachable"), true)
	}
	return f.fileSize, nil
}

func (f *fakeFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeFetcher) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// fastTestConfig keeps every delay tiny so recovery paths run in
// milliseconds.
func fastTestConfig() domain.StreamingConfig {
	return domain.StreamingConfig{
		ChunkSize:             1000,
		MaxRetries:            1,
		RetryBaseDelay:        time.Millisecond,
		RecoveryBaseDelay:     5 * time.Millisecond,
		MaxRecoveryAttempts:   3,
		BufferAhead:           30 * time.Second,
		BufferBehind:          10 * time.Second,
		MaxConcurrentFetches:  3,
		EstimatedBytesPerSec:  1000,
		CleanupThresholdBytes: 1 << 30,
		HardLimitBytes:        2 << 30,
	}
}

// testInput is a 100 s / 100 KB source: 1000 bytes per second, so a
// 1000-byte chunk covers one second of playback.
func testInput(cfg domain.StreamingConfig) Input {
	return Input{
		SourceURL:   "https://origin.test/media.mp4",
		BearerToken: "tok",
		Duration:    100,
		Config:      cfg,
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startController(t *testing.T, fetcher *fakeFetcher, s *sink.MemorySink, input Input) *Controller {
	t.Helper()
	c := New(input, fetcher, s, nil)
	c.Start()
	t.Cleanup(func() {
		c.Terminate()
		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Error("controller did not shut down")
		}
	})
	return c
}

func drainEvents(c *Controller) {
	go func() {
		for range c.Events() {
		}
	}()
}

func TestControllerInitializesAndBuffers(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}
	if serr := c.Err(); serr != nil {
		t.Fatalf("unexpected terminal error: %v", serr)
	}

	waitFor(t, 2*time.Second, "initial window buffered", func() bool {
		return memSink.Buffered().ContiguousAhead(0) >= 29
	})

	snap := c.Snapshot()
	if snap.TotalFileSize != 100_000 {
		t.Errorf("TotalFileSize = %d, want 100000", snap.TotalFileSize)
	}
	if snap.Codec == "" {
		t.Error("snapshot missing negotiated codec")
	}
}

func TestControllerBecomesPlayingWhenCovered(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)
	<-c.Ready()

	waitFor(t, 2*time.Second, "coverage at cursor", func() bool {
		return memSink.Buffered().ContiguousAhead(0) >= 10
	})
	c.UpdateTime(0.5)
	waitFor(t, 2*time.Second, "transition to playing", func() bool {
		return c.CurrentState() == StatePlaying
	})
}

func TestControllerAuthFailureIsTerminal(t *testing.T) {
	fetcher := &fakeFetcher{sizeErr: domain.NewAuthenticationError(401)}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	waitFor(t, 2*time.Second, "error state", func() bool {
		return c.CurrentState() == StateError
	})
	serr := c.Err()
	if serr == nil || serr.Kind != domain.ErrorAuthentication {
		t.Errorf("Err() = %v, want authentication error", serr)
	}
	// No recovery for auth failures: size was asked exactly once.
	if fetcher.sizeCalls != 1 {
		t.Errorf("FileSize called %d times, want 1", fetcher.sizeCalls)
	}
}

func TestControllerNoCodecIsTerminal(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink("application/x-nothing")
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	waitFor(t, 2*time.Second, "error state", func() bool {
		return c.CurrentState() == StateError
	})
	serr := c.Err()
	if serr == nil || serr.Kind != domain.ErrorCapability {
		t.Errorf("Err() = %v, want capability error", serr)
	}
}

func TestControllerRecoversFromTransientInitFailure(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000, sizeFailures: 2}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never recovered")
	}
	if serr := c.Err(); serr != nil {
		t.Fatalf("unexpected terminal error: %v", serr)
	}
	if c.CurrentState() == StateError {
		t.Error("session ended in error despite eventual success")
	}
}

func TestControllerFirstChunkFailureStillBecomesReady(t *testing.T) {
	// The synchronous first chunk fails once with a recoverable error.
	// Recovery resumes loading at the cursor; the first append that lands
	// must unblock Ready waiters and clear the session error.
	var mu sync.Mutex
	failedOnce := false
	fetcher := &fakeFetcher{
		fileSize: 100_000,
		chunkErr: func(r domain.ByteRange) error {
			mu.Lock()
			defer mu.Unlock()
			if r.Start == 0 && !failedOnce {
				failedOnce = true
				return domain.NewNetworkError(errors.New("origin flake"), true)
			}
			return nil
		},
	}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready after recovering")
	}
	if serr := c.Err(); serr != nil {
		t.Fatalf("Err() = %v, want nil for a recovered session", serr)
	}
	waitFor(t, 2*time.Second, "coverage at cursor", func() bool {
		return memSink.Buffered().Contains(0)
	})
	if c.CurrentState() == StateError {
		t.Error("recovered session ended in error state")
	}
	if snap := c.Snapshot(); snap.LastError != nil {
		t.Errorf("snapshot still carries %v after recovery", snap.LastError)
	}
}

func TestControllerErrNilWhileRecovering(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000, sizeFailures: 2}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	// Err reports only terminal failures; transient recovery stays nil.
	waitFor(t, 2*time.Second, "ready after recovery", func() bool {
		if serr := c.Err(); serr != nil {
			t.Fatalf("Err() = %v while recovering", serr)
		}
		select {
		case <-c.Ready():
			return true
		default:
			return false
		}
	})
}

func TestControllerExhaustsRecoveryAndFails(t *testing.T) {
	fetcher := &fakeFetcher{
		fileSize: 100_000,
		chunkErr: func(domain.ByteRange) error {
			return domain.NewNetworkError(errors.New("origin flapping"), true)
		},
	}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)

	waitFor(t, 5*time.Second, "error state after recovery budget", func() bool {
		return c.CurrentState() == StateError
	})
	serr := c.Err()
	if serr == nil {
		t.Fatal("expected terminal error")
	}
	if serr.Kind != domain.ErrorChunkLoad {
		t.Errorf("Kind = %v, want chunk_load_failed", serr.Kind)
	}
}

func TestControllerSkipsFailedLowPriorityChunks(t *testing.T) {
	// Chunks mapping past 20 s fail; with a 30 s window those are planned
	// at low priority and must be skipped without killing the session.
	fetcher := &fakeFetcher{
		fileSize: 100_000,
		chunkErr: func(r domain.ByteRange) error {
			if r.Start >= 20_000 {
				return domain.NewNetworkError(errors.New("far chunk unavailable"), true)
			}
			return nil
		},
	}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)
	<-c.Ready()

	waitFor(t, 2*time.Second, "near-term coverage", func() bool {
		return memSink.Buffered().ContiguousAhead(0) >= 15
	})
	// Give the far chunks time to fail and be skipped.
	time.Sleep(50 * time.Millisecond)
	if c.CurrentState() == StateError {
		t.Fatalf("low-priority failures escalated to terminal error: %v", c.Err())
	}
}

func TestControllerSeekLoadsTargetWindow(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)
	<-c.Ready()

	c.Seek(60)

	waitFor(t, 2*time.Second, "coverage at seek target", func() bool {
		return memSink.Buffered().Contains(60)
	})
	snap := c.Snapshot()
	if snap.CurrentTime != 60 {
		t.Errorf("CurrentTime = %v, want 60", snap.CurrentTime)
	}
}

func TestControllerHonorsConcurrencyCap(t *testing.T) {
	cfg := fastTestConfig()
	cfg.MaxConcurrentFetches = 2
	fetcher := &fakeFetcher{fileSize: 100_000, fetchDelay: 5 * time.Millisecond}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(cfg))
	drainEvents(c)
	<-c.Ready()

	waitFor(t, 3*time.Second, "window buffered", func() bool {
		return memSink.Buffered().ContiguousAhead(0) >= 29
	})
	if peak := fetcher.peakConcurrency(); peak > cfg.MaxConcurrentFetches {
		t.Errorf("peak concurrency %d exceeds cap %d", peak, cfg.MaxConcurrentFetches)
	}
}

func TestControllerTerminateReleasesBuffers(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink()
	input := testInput(fastTestConfig())
	c := New(input, fetcher, memSink, nil)
	c.Start()
	drainEvents(c)
	<-c.Ready()

	c.Terminate()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not shut down")
	}

	if got := memSink.Buffered(); len(got) != 0 {
		t.Errorf("buffers not released on terminate: %v", got)
	}
	if c.CurrentState() != StateTerminated {
		t.Errorf("state = %v, want terminated", c.CurrentState())
	}
}

func TestControllerDoesNotRefetchBufferedRanges(t *testing.T) {
	fetcher := &fakeFetcher{fileSize: 100_000}
	memSink := sink.NewMemorySink()
	c := startController(t, fetcher, memSink, testInput(fastTestConfig()))
	drainEvents(c)
	<-c.Ready()

	waitFor(t, 2*time.Second, "window buffered", func() bool {
		return memSink.Buffered().ContiguousAhead(0) >= 29
	})
	settled := fetcher.requestCount()

	// Ticks inside the covered window must not trigger new fetches for
	// already-buffered ranges.
	for i := 0; i < 5; i++ {
		c.UpdateTime(0.2 * float64(i))
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	grew := fetcher.requestCount() - settled
	// Each forward tick may extend the window tail by one chunk; anything
	// beyond that means refetching covered ranges.
	if grew > 5 {
		t.Errorf("unexpected refetching: %d extra requests", grew)
	}
}
