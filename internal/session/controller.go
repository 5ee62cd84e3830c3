package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/evict"
	"mediastream/internal/metrics"
	"mediastream/internal/planner"
)

// State is the FSM state of a playback session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateBuffering
	StatePlaying
	StateSeekHandling
	StateRecovering
	StateError
	StateTerminated
)

var stateNames = [...]string{
	"idle", "initializing", "buffering", "playing",
	"seek_handling", "recovering", "error", "terminated",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

const (
	// minPlayableAheadSec is the contiguous coverage past the cursor
	// needed before Buffering yields to Playing.
	minPlayableAheadSec = 3.0

	// Seek window: everything in [-5s, +15s] around the target is
	// fetched at high priority before the normal window resumes.
	seekWindowBehindSec = 5.0
	seekWindowAheadSec  = 15.0

	// evictInterval is the wall-clock cleanup tick, run in addition to
	// per-time-update cleanup so eviction converges even while paused.
	evictInterval = 2 * time.Second

	endedToleranceSec = 0.25
)

// Input carries everything the collaborators hand over when a session is
// attached.
type Input struct {
	SourceURL   string
	BearerToken string
	TokenExpiry time.Time
	Duration    float64 // media duration in seconds, from sink metadata
	StartAt     float64 // resume offset; 0 = from the beginning
	Profile     string  // "video" (default) or "audio"
	Config      domain.StreamingConfig
}

type fetchResult struct {
	req  domain.ChunkRequest
	data []byte
	err  error
}

// Controller owns one playback session: the state machine, the pending
// queue, the in-flight set and the buffered-range bookkeeping. All
// session state is mutated from the single run() goroutine; external
// callers communicate through channels, so fetch completions arriving
// from pool goroutines never touch state directly.
type Controller struct {
	mu      sync.Mutex
	state   State
	lastErr *domain.StreamingError

	ctx    context.Context
	cancel context.CancelFunc

	input   Input
	cfg     domain.StreamingConfig
	fetcher ports.ChunkFetcher
	sink    ports.Sink
	plan    *planner.Planner
	evictor *evict.Evictor
	logger  *slog.Logger

	fileSize    uint64
	codec       CodecProfile
	currentTime float64
	retryCount  int
	endedSent   bool

	pending  []domain.ChunkRequest
	inFlight map[string]domain.ChunkRequest

	completions chan fetchResult
	timeUpdates chan float64

	seekMu     sync.Mutex
	seekReq    bool
	seekTarget float64

	events    chan domain.Event
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// New builds a controller in StateIdle. Start launches the FSM loop.
func New(input Input, fetcher ports.ChunkFetcher, sink ports.Sink, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := input.Config.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:       StateIdle,
		ctx:         ctx,
		cancel:      cancel,
		input:       input,
		cfg:         cfg,
		fetcher:     fetcher,
		sink:        sink,
		plan:        planner.New(cfg),
		evictor:     evict.New(cfg, logger),
		logger:      logger,
		inFlight:    make(map[string]domain.ChunkRequest),
		completions: make(chan fetchResult, cfg.MaxConcurrentFetches+1),
		timeUpdates: make(chan float64, 8),
		events:      make(chan domain.Event, 64),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start transitions Idle -> Initializing and launches the FSM loop.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateInitializing
	c.mu.Unlock()
	metrics.SessionStartsTotal.Inc()
	c.emitLifecycle(domain.LifecycleLoading)
	go c.run()
}

// UpdateTime feeds a playback-cursor tick from the sink collaborator.
// Stale ticks are droppable: the next one supersedes them.
func (c *Controller) UpdateTime(t float64) {
	select {
	case c.timeUpdates <- t:
	default:
	}
}

// Seek requests a jump to the given time. The FSM loop picks it up at
// its next decision point; only the latest target matters.
func (c *Controller) Seek(target float64) {
	c.seekMu.Lock()
	c.seekReq = true
	c.seekTarget = target
	c.seekMu.Unlock()
	// Nudge the loop in case no time updates are flowing.
	select {
	case c.timeUpdates <- -1:
	default:
	}
}

// Terminate tears the session down: buffers released, in-flight fetches
// abandoned, late completions dropped.
func (c *Controller) Terminate() {
	c.cancel()
}

// Done is closed once the FSM loop has fully cleaned up.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Ready is closed when the first chunk has been appended (or the session
// failed before that point).
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Events is the outward stream of lifecycle and error events.
func (c *Controller) Events() <-chan domain.Event { return c.events }

// Err returns the terminal error, if the session ended in StateError.
// A session that is recovering, or has recovered, reports nil.
func (c *Controller) Err() *domain.StreamingError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateError {
		return nil
	}
	return c.lastErr
}

// CurrentState returns the FSM state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot builds the outward-facing view of the session.
func (c *Controller) Snapshot() domain.SessionSnapshot {
	buffered := c.sink.Buffered()
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := domain.SessionSnapshot{
		SourceURL:     c.input.SourceURL,
		State:         c.state.String(),
		Codec:         c.codec.Name,
		CurrentTime:   c.currentTime,
		Duration:      c.input.Duration,
		TotalFileSize: c.fileSize,
		Buffered:      buffered,
		BufferedBytes: c.evictor.EstimateBufferedBytes(buffered),
		InFlight:      len(c.inFlight),
		Pending:       len(c.pending),
		RetryCount:    c.retryCount,
		UpdatedAt:     time.Now(),
	}
	if c.lastErr != nil {
		ev := domain.NewErrorEvent(c.lastErr)
		snap.LastError = &ev
	}
	return snap
}

func (c *Controller) transitionTo(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	metrics.StateTransitionsTotal.WithLabelValues(from.String(), s.String()).Inc()
	c.logger.Info("session state transition",
		slog.String("source", c.input.SourceURL),
		slog.String("from", from.String()),
		slog.String("to", s.String()),
	)
}

func (c *Controller) setError(serr *domain.StreamingError) {
	c.mu.Lock()
	c.lastErr = serr
	from := c.state
	c.state = StateError
	c.mu.Unlock()
	metrics.StateTransitionsTotal.WithLabelValues(from.String(), StateError.String()).Inc()
	c.logger.Error("session terminal error",
		slog.String("source", c.input.SourceURL),
		slog.String("state", from.String()),
		slog.String("kind", string(serr.Kind)),
		slog.String("error", serr.Error()),
	)
	c.emitError(serr, domain.LifecycleError)
	c.signalReady()
}

func (c *Controller) signalReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// markHealthy records a successful append: the recovery budget resets,
// the last error clears, and the session is signaled ready if this was
// the first data to land. Reaching here after a recovered first-chunk
// failure must unblock Ready waiters the same as the direct path.
func (c *Controller) markHealthy() {
	c.mu.Lock()
	c.retryCount = 0
	c.lastErr = nil
	c.mu.Unlock()
	c.readyOnce.Do(func() {
		close(c.ready)
		c.emitLifecycle(domain.LifecycleReady)
	})
}

func (c *Controller) checkSeekRequested() (float64, bool) {
	c.seekMu.Lock()
	defer c.seekMu.Unlock()
	if !c.seekReq {
		return 0, false
	}
	target := c.seekTarget
	c.seekReq = false
	return target, true
}

// ---- FSM loop ----

func (c *Controller) run() {
	defer c.cleanup()

	for {
		if c.ctx.Err() != nil {
			c.transitionTo(StateTerminated)
			return
		}

		switch c.CurrentState() {
		case StateInitializing:
			if err := c.doInitializing(); err != nil {
				if !c.beginRecovery(err) {
					return
				}
			}
		case StateBuffering, StatePlaying:
			if err := c.doStreaming(); err != nil {
				if !c.beginRecovery(err) {
					return
				}
			}
		case StateSeekHandling:
			c.doSeekHandling()
		case StateRecovering:
			if err := c.doRecovering(); err != nil {
				c.transitionTo(StateTerminated)
				return
			}
		case StateError, StateTerminated, StateIdle:
			return
		}
	}
}

// beginRecovery routes a surfaced error. Non-recoverable errors and an
// exhausted retry budget are terminal; everything else enters Recovering.
// Returns false when the FSM loop should stop.
func (c *Controller) beginRecovery(err error) bool {
	if c.ctx.Err() != nil {
		c.transitionTo(StateTerminated)
		return false
	}
	serr := domain.AsStreamingError(err)
	c.mu.Lock()
	attempts := c.retryCount
	c.lastErr = serr
	c.mu.Unlock()

	if !serr.Recoverable || attempts >= c.cfg.MaxRecoveryAttempts {
		c.setError(serr)
		return false
	}
	c.transitionTo(StateRecovering)
	return true
}

// doInitializing negotiates the codec, discovers the file size, then
// fetches the first chunk synchronously so minimal playback can start,
// firing the rest of the initial window behind it.
func (c *Controller) doInitializing() error {
	profiles := VideoCodecProfiles()
	if c.input.Profile == "audio" {
		profiles = AudioCodecProfiles()
	}
	codec, err := negotiateCodec(c.sink, profiles)
	if err != nil {
		return err
	}

	size, err := c.fetcher.FileSize(c.ctx, c.input.SourceURL, c.input.BearerToken)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.codec = codec
	c.fileSize = size
	c.currentTime = c.input.StartAt
	c.mu.Unlock()

	c.logger.Info("session initialized",
		slog.String("source", c.input.SourceURL),
		slog.String("codec", codec.Name),
		slog.Uint64("fileSize", size),
		slog.Float64("duration", c.input.Duration),
		slog.Float64("startAt", c.input.StartAt),
	)

	start := c.input.StartAt
	chunks := c.plan.CalculateChunksForTimeRange(
		start, start+c.cfg.BufferAhead.Seconds(), c.input.Duration, size)
	chunks = c.plan.PrioritizeChunks(start, chunks, c.input.Duration, size)
	if len(chunks) == 0 {
		return domain.NewNetworkError(fmt.Errorf("empty initial window for duration %.1fs", c.input.Duration), false)
	}

	// First chunk synchronously: playback cannot begin without it.
	first := chunks[0]
	data, err := c.fetcher.FetchChunk(c.ctx, c.input.SourceURL, first.Range, c.input.BearerToken)
	if err != nil {
		serr := domain.AsStreamingError(err)
		if serr.Kind == domain.ErrorAuthentication || !serr.Recoverable {
			return serr
		}
		return domain.NewChunkLoadError(first.Range, first.Priority, serr)
	}
	if err := c.appendChunk(first, data); err != nil {
		return err
	}
	c.markHealthy()

	c.mu.Lock()
	c.pending = append(c.pending[:0], chunks[1:]...)
	c.mu.Unlock()

	c.transitionTo(StateBuffering)
	c.dispatch()
	return nil
}

// doStreaming is the Buffering/Playing pump: it reacts to fetch
// completions, playback-time ticks, seeks and the periodic eviction
// tick. It returns nil on state change or a session-level error.
func (c *Controller) doStreaming() error {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil

		case res := <-c.completions:
			if err := c.handleCompletion(res); err != nil {
				return err
			}

		case t := <-c.timeUpdates:
			if target, ok := c.checkSeekRequested(); ok {
				c.startSeek(target)
				return nil
			}
			if t < 0 {
				continue // seek nudge without a tick
			}
			if err := c.handleTimeTick(t); err != nil {
				return err
			}

		case <-ticker.C:
			if target, ok := c.checkSeekRequested(); ok {
				c.startSeek(target)
				return nil
			}
			c.runCleanup()
		}

		if c.CurrentState() == StateSeekHandling {
			return nil
		}
	}
}

func (c *Controller) startSeek(target float64) {
	c.mu.Lock()
	c.seekTarget = target
	c.mu.Unlock()
	c.transitionTo(StateSeekHandling)
}

// handleTimeTick re-reads current buffered state and decides the next
// work. Planning is a pure function of (cursor, buffered, config), so a
// stale plan self-corrects on the next tick.
func (c *Controller) handleTimeTick(t float64) error {
	c.mu.Lock()
	c.currentTime = t
	duration := c.input.Duration
	c.mu.Unlock()

	c.runCleanup()

	buffered := c.sink.Buffered()
	metrics.BufferedSeconds.Set(buffered.TotalSeconds())

	if duration > 0 && t >= duration-endedToleranceSec {
		c.emitEnded()
		return nil
	}

	pressure := c.evictor.CheckPressure(buffered)
	if pressure != evict.PressureCritical && c.plan.ShouldLoadChunk(t, buffered) {
		c.planWindow(t, t+c.cfg.BufferAhead.Seconds())
		c.dispatch()
	}

	c.updatePlayability(t, buffered)
	return nil
}

// handleCompletion folds one finished fetch back into session state.
func (c *Controller) handleCompletion(res fetchResult) error {
	c.mu.Lock()
	delete(c.inFlight, res.req.Range.Key())
	inFlight := len(c.inFlight)
	cursor := c.currentTime
	c.mu.Unlock()
	metrics.InFlightFetches.Set(float64(inFlight))

	if res.err != nil {
		return c.handleChunkFailure(res.req, res.err)
	}

	if err := c.appendChunk(res.req, res.data); err != nil {
		return err
	}
	c.markHealthy()

	buffered := c.sink.Buffered()
	metrics.BufferedSeconds.Set(buffered.TotalSeconds())
	c.updatePlayability(cursor, buffered)
	c.dispatch()
	return nil
}

// handleChunkFailure applies the skip-and-continue rule: low-priority
// chunks are logged and dropped without consuming retry budget; anything
// else surfaces to the recovery machinery.
func (c *Controller) handleChunkFailure(req domain.ChunkRequest, err error) error {
	serr := domain.AsStreamingError(err)
	if serr.Kind == domain.ErrorAuthentication || !serr.Recoverable {
		return serr
	}
	if req.Priority == domain.PriorityLow {
		metrics.ChunksSkippedTotal.Inc()
		c.logger.Warn("skipping failed low-priority chunk",
			slog.String("range", req.Range.Key()),
			slog.String("error", serr.Error()),
		)
		c.dispatch()
		return nil
	}
	return domain.NewChunkLoadError(req.Range, req.Priority, serr)
}

// appendChunk maps the byte range onto the playback timeline and hands
// the payload to the sink. Append failures count as chunk-load errors.
func (c *Controller) appendChunk(req domain.ChunkRequest, data []byte) error {
	c.mu.Lock()
	size := c.fileSize
	duration := c.input.Duration
	c.mu.Unlock()

	tr := domain.TimeRange{
		Start: planner.ByteToTime(req.Range.Start, duration, size),
		End:   planner.ByteToTime(req.Range.End+1, duration, size),
	}
	if err := c.sink.Append(c.ctx, req.Range, tr, data); err != nil {
		if c.ctx.Err() != nil {
			return domain.NewNetworkError(c.ctx.Err(), true)
		}
		return domain.NewChunkLoadError(req.Range, req.Priority, fmt.Errorf("sink append: %w", err))
	}
	return nil
}

// updatePlayability flips Buffering <-> Playing based on coverage at the
// cursor.
func (c *Controller) updatePlayability(cursor float64, buffered domain.BufferedRanges) {
	playable := buffered.Contains(cursor) && buffered.ContiguousAhead(cursor) >= minPlayableAheadSec
	switch c.CurrentState() {
	case StateBuffering:
		if playable {
			c.transitionTo(StatePlaying)
		}
	case StatePlaying:
		if !playable {
			c.transitionTo(StateBuffering)
		}
	}
}

// doSeekHandling clears stale pending work, loads a high-priority window
// around the target and schedules the normal window behind it.
func (c *Controller) doSeekHandling() {
	c.mu.Lock()
	target := c.seekTarget
	dropped := len(c.pending)
	c.pending = c.pending[:0]
	c.currentTime = target
	duration := c.input.Duration
	size := c.fileSize
	c.mu.Unlock()

	metrics.SeekRequestsTotal.Inc()
	c.logger.Info("seek",
		slog.String("source", c.input.SourceURL),
		slog.Float64("target", target),
		slog.Int("droppedPending", dropped),
	)

	windowStart := target - seekWindowBehindSec
	if windowStart < 0 {
		windowStart = 0
	}
	urgent := c.plan.CalculateChunksForTimeRange(windowStart, target+seekWindowAheadSec, duration, size)
	for i := range urgent {
		urgent[i].Priority = domain.PriorityHigh
	}
	urgent = c.plan.PrioritizeChunks(target, urgent, duration, size)

	c.enqueue(urgent)
	c.dispatch()

	// Normal ahead window follows once the urgent chunks drain.
	c.planWindow(target, target+c.cfg.BufferAhead.Seconds())

	c.transitionTo(StateBuffering)
}

// doRecovering waits out the session-level backoff, then either re-runs
// initialization (pre-init network failure) or resumes chunk loading at
// the cursor, which implicitly skips the failed chunk, since planning
// is coverage-driven.
func (c *Controller) doRecovering() error {
	c.mu.Lock()
	attempt := c.retryCount
	c.retryCount++
	serr := c.lastErr
	initialized := c.fileSize > 0
	c.mu.Unlock()

	delay := c.cfg.RecoveryBaseDelay << attempt
	metrics.RecoveryAttemptsTotal.Inc()
	c.emitError(serr, domain.LifecycleRecovering)
	c.logger.Warn("session recovering",
		slog.String("source", c.input.SourceURL),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
		slog.String("kind", string(serr.Kind)),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	if serr.Kind == domain.ErrorNetwork && !initialized {
		c.transitionTo(StateInitializing)
		return nil
	}

	c.mu.Lock()
	cursor := c.currentTime
	c.mu.Unlock()
	c.transitionTo(StateBuffering)
	c.planWindow(cursor, cursor+c.cfg.BufferAhead.Seconds())
	c.dispatch()
	return nil
}

// ---- planning and dispatch ----

// planWindow computes chunks for [from, to], drops ranges whose timeline
// interval is already buffered, and enqueues the rest.
func (c *Controller) planWindow(from, to float64) {
	c.mu.Lock()
	duration := c.input.Duration
	size := c.fileSize
	cursor := c.currentTime
	c.mu.Unlock()
	if size == 0 {
		return
	}

	buffered := c.sink.Buffered()
	chunks := c.plan.CalculateChunksForTimeRange(from, to, duration, size)
	kept := chunks[:0]
	for _, ch := range chunks {
		mid := planner.ByteToTime(ch.Range.Start+ch.Range.Length()/2, duration, size)
		if buffered.Contains(mid) {
			continue
		}
		kept = append(kept, ch)
	}
	kept = c.plan.PrioritizeChunks(cursor, kept, duration, size)
	c.enqueue(kept)
}

// enqueue adds chunks to the pending queue, skipping anything already
// queued or in flight.
func (c *Controller) enqueue(chunks []domain.ChunkRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queued := make(map[string]bool, len(c.pending))
	for _, p := range c.pending {
		queued[p.Range.Key()] = true
	}
	for _, ch := range chunks {
		key := ch.Range.Key()
		if queued[key] {
			continue
		}
		if _, ok := c.inFlight[key]; ok {
			continue
		}
		c.pending = append(c.pending, ch)
		queued[key] = true
	}
}

// dispatch launches queued fetches until the concurrency cap is reached.
// A range already in flight is never re-submitted.
func (c *Controller) dispatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.inFlight) < c.cfg.MaxConcurrentFetches && len(c.pending) > 0 {
		req := c.pending[0]
		c.pending = c.pending[1:]
		key := req.Range.Key()
		if _, ok := c.inFlight[key]; ok {
			continue
		}
		c.inFlight[key] = req
		metrics.InFlightFetches.Set(float64(len(c.inFlight)))
		go c.fetch(req)
	}
}

// fetch runs on a pool goroutine; results flow back through the
// completions channel so state mutation stays on the FSM goroutine.
// Completions after termination are dropped here.
func (c *Controller) fetch(req domain.ChunkRequest) {
	data, err := c.fetcher.FetchChunk(c.ctx, c.input.SourceURL, req.Range, c.input.BearerToken)
	select {
	case c.completions <- fetchResult{req: req, data: data, err: err}:
	case <-c.ctx.Done():
	}
}

// ---- teardown and events ----

func (c *Controller) runCleanup() {
	c.mu.Lock()
	cursor := c.currentTime
	c.mu.Unlock()
	if _, err := c.evictor.CleanupOldBuffers(c.ctx, cursor, c.sink); err != nil && c.ctx.Err() == nil {
		c.logger.Warn("buffer cleanup failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) cleanup() {
	c.mu.Lock()
	c.pending = nil
	c.inFlight = make(map[string]domain.ChunkRequest)
	terminal := c.state
	c.mu.Unlock()

	c.sink.Reset()
	metrics.InFlightFetches.Set(0)
	metrics.BufferedSeconds.Set(0)

	if terminal != StateError {
		c.emitLifecycle(domain.LifecycleTerminated)
	}
	c.signalReady()
	close(c.events)
	close(c.done)
	c.logger.Info("session closed",
		slog.String("source", c.input.SourceURL),
		slog.String("finalState", terminal.String()),
	)
}

func (c *Controller) emitEnded() {
	c.mu.Lock()
	sent := c.endedSent
	c.endedSent = true
	c.mu.Unlock()
	if !sent {
		c.emitLifecycle(domain.LifecycleEnded)
	}
}

func (c *Controller) emitLifecycle(phase string) {
	c.emit(domain.Event{Type: "lifecycle", Phase: phase})
}

func (c *Controller) emitError(serr *domain.StreamingError, phase string) {
	ev := domain.NewErrorEvent(serr)
	ev.RetryCount = c.sessionRetryCount()
	c.emit(domain.Event{Type: "error", Phase: phase, Error: &ev})
}

func (c *Controller) sessionRetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

func (c *Controller) emit(ev domain.Event) {
	select {
	case c.events <- ev:
	default:
		// Event buffer full; UI snapshots self-heal on the next broadcast.
	}
}
