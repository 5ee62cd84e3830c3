package session

import (
	"context"
	"log/slog"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

// Manager enforces the one-active-session rule. Attaching a new source
// tears the previous session down completely before the new one starts,
// so two sessions never share the sink.
type Manager struct {
	fetcher ports.ChunkFetcher
	sink    ports.Sink
	logger  *slog.Logger

	// current is guarded by ops: all mutations run through the ops
	// channel on a single goroutine, which serializes attach/terminate
	// races without a lock held across teardown waits.
	ops     chan func()
	current *Controller
	onEvent func(domain.Event)
}

func NewManager(fetcher ports.ChunkFetcher, sink ports.Sink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		fetcher: fetcher,
		sink:    sink,
		logger:  logger,
		ops:     make(chan func()),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for op := range m.ops {
		op()
	}
}

// SetEventHandler registers a callback that receives every session's
// lifecycle and error events, for the WebSocket broadcast. Call it once,
// before the first Attach.
func (m *Manager) SetEventHandler(fn func(domain.Event)) {
	done := make(chan struct{})
	m.ops <- func() {
		m.onEvent = fn
		close(done)
	}
	<-done
}

// forwardEvents drains one controller's event stream into the handler.
// It exits when the controller closes the stream during teardown.
func forwardEvents(c *Controller, fn func(domain.Event)) {
	for ev := range c.Events() {
		fn(ev)
	}
}

func (m *Manager) do(ctx context.Context, op func()) error {
	done := make(chan struct{})
	select {
	case m.ops <- func() { op(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach starts a session for the given input, replacing any active one.
// It returns once the previous session has fully released its buffers
// and the new controller is running; it does not wait for first data.
func (m *Manager) Attach(ctx context.Context, input Input) (*Controller, error) {
	if !input.TokenExpiry.IsZero() && !time.Now().Before(input.TokenExpiry) {
		return nil, domain.ErrTokenExpired
	}

	var ctrl *Controller
	err := m.do(ctx, func() {
		m.teardownLocked()
		ctrl = New(input, m.fetcher, m.sink, m.logger.With(slog.String("source", input.SourceURL)))
		m.current = ctrl
		metrics.ActiveSessions.Set(1)
		ctrl.Start()
		if m.onEvent != nil {
			go forwardEvents(ctrl, m.onEvent)
		}
	})
	if err != nil {
		return nil, err
	}
	return ctrl, nil
}

// Retry restarts the failed session with a fresh token, resuming at the
// last known playback position.
func (m *Manager) Retry(ctx context.Context, token string, expiry time.Time) (*Controller, error) {
	var input Input
	var haveSession bool
	if err := m.do(ctx, func() {
		if m.current == nil {
			return
		}
		haveSession = true
		input = m.current.input
		input.StartAt = m.current.Snapshot().CurrentTime
	}); err != nil {
		return nil, err
	}
	if !haveSession {
		return nil, domain.ErrNoActiveSession
	}
	input.BearerToken = token
	input.TokenExpiry = expiry
	return m.Attach(ctx, input)
}

// Terminate tears down the active session, if any.
func (m *Manager) Terminate(ctx context.Context) error {
	var had bool
	if err := m.do(ctx, func() {
		had = m.current != nil
		m.teardownLocked()
	}); err != nil {
		return err
	}
	if !had {
		return domain.ErrNoActiveSession
	}
	return nil
}

// teardownLocked runs on the ops goroutine. Waits for the controller's
// cleanup so the sink is guaranteed empty before a successor attaches.
func (m *Manager) teardownLocked() {
	if m.current == nil {
		return
	}
	m.current.Terminate()
	<-m.current.Done()
	m.current = nil
	metrics.ActiveSessions.Set(0)
}

// Seek forwards a seek to the active session.
func (m *Manager) Seek(ctx context.Context, target float64) error {
	return m.withCurrent(ctx, func(c *Controller) { c.Seek(target) })
}

// UpdateTime forwards a playback-cursor tick to the active session.
func (m *Manager) UpdateTime(ctx context.Context, t float64) error {
	return m.withCurrent(ctx, func(c *Controller) { c.UpdateTime(t) })
}

// Snapshot returns the active session's state.
func (m *Manager) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	var ctrl *Controller
	if err := m.do(ctx, func() { ctrl = m.current }); err != nil {
		return snap, err
	}
	if ctrl == nil {
		return snap, domain.ErrNoActiveSession
	}
	return ctrl.Snapshot(), nil
}

// Current returns the active controller, or nil.
func (m *Manager) Current(ctx context.Context) *Controller {
	var ctrl *Controller
	if err := m.do(ctx, func() { ctrl = m.current }); err != nil {
		return nil
	}
	return ctrl
}

// Close terminates the active session and stops the ops goroutine.
func (m *Manager) Close(ctx context.Context) error {
	err := m.do(ctx, func() { m.teardownLocked() })
	close(m.ops)
	return err
}

func (m *Manager) withCurrent(ctx context.Context, fn func(*Controller)) error {
	var ctrl *Controller
	if err := m.do(ctx, func() { ctrl = m.current }); err != nil {
		return err
	}
	if ctrl == nil {
		return domain.ErrNoActiveSession
	}
	fn(ctrl)
	return nil
}
