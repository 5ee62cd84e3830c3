package evict

import (
	"context"
	"log/slog"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

// farAheadSlackSec is how far past the ahead-buffer a range may start
// before it is considered stranded (left over from an abandoned seek).
const farAheadSlackSec = 60.0

// Pressure grades the estimated buffered-memory footprint.
type Pressure int

const (
	PressureNone Pressure = iota
	// PressureCleanup: over the cleanup threshold, eviction should run.
	PressureCleanup
	// PressureCritical: over the hard limit, new fetches are suppressed
	// until usage drops.
	PressureCritical
)

// Evictor keeps the playback buffer bounded by dropping ranges that fell
// behind the cursor or landed far ahead of any plausible playback window.
type Evictor struct {
	cfg    domain.StreamingConfig
	logger *slog.Logger
}

func New(cfg domain.StreamingConfig, logger *slog.Logger) *Evictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evictor{cfg: cfg.Normalize(), logger: logger}
}

// CleanupOldBuffers removes at most one buffered range per call. Removal
// on the sink is exclusive against appends, so batching removals would
// contend with in-flight data; callers invoke this periodically and let
// cleanup converge over successive ticks. Returns whether a removal was
// issued.
func (e *Evictor) CleanupOldBuffers(ctx context.Context, currentTime float64, sink ports.Sink) (bool, error) {
	behindCutoff := currentTime - e.cfg.BufferBehind.Seconds()
	aheadCutoff := currentTime + e.cfg.BufferAhead.Seconds() + farAheadSlackSec

	for _, r := range sink.Buffered() {
		var victim domain.TimeRange
		var reason string

		switch {
		case r.End <= behindCutoff:
			victim, reason = r, "behind"
		case r.Start < behindCutoff && r.End > behindCutoff:
			// Straddles the behind cutoff: trim only the stale prefix.
			// Contiguous appends merge into one range spanning the cursor,
			// so this is the steady-state shape; the data playback still
			// needs, [cutoff, end], is untouched.
			victim, reason = domain.TimeRange{Start: r.Start, End: behindCutoff}, "trim"
		case r.Start > aheadCutoff:
			victim, reason = r, "ahead"
		default:
			continue
		}

		if err := sink.Remove(ctx, victim); err != nil {
			return false, err
		}
		metrics.BufferEvictionsTotal.WithLabelValues(reason).Inc()
		e.logger.Debug("evicted buffered range",
			slog.String("reason", reason),
			slog.Float64("start", victim.Start),
			slog.Float64("end", victim.End),
			slog.Float64("currentTime", currentTime),
		)
		return true, nil
	}
	return false, nil
}

// EstimateBufferedBytes approximates the buffer's memory footprint as
// buffered seconds times the configured bytes-per-second constant.
func (e *Evictor) EstimateBufferedBytes(buffered domain.BufferedRanges) int64 {
	return int64(buffered.TotalSeconds() * float64(e.cfg.EstimatedBytesPerSec))
}

// CheckPressure grades the current estimated footprint against the
// cleanup threshold and the hard limit.
func (e *Evictor) CheckPressure(buffered domain.BufferedRanges) Pressure {
	est := e.EstimateBufferedBytes(buffered)
	metrics.BufferedBytesEstimate.Set(float64(est))
	switch {
	case est >= e.cfg.HardLimitBytes:
		return PressureCritical
	case est >= e.cfg.CleanupThresholdBytes:
		return PressureCleanup
	default:
		return PressureNone
	}
}
