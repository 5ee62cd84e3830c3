package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "active_sessions",
		Help:      "Number of currently active playback sessions.",
	})

	SessionStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "session_starts_total",
		Help:      "Total number of playback sessions started.",
	})

	StateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "state_transitions_total",
		Help:      "Total session state machine transitions.",
	}, []string{"from", "to"})

	ChunkFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "chunk_fetches_total",
		Help:      "Total chunk fetches by outcome.",
	}, []string{"outcome"})

	ChunkFetchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "chunk_fetch_retries_total",
		Help:      "Total chunk fetch retries after transient failures.",
	})

	ChunkFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stream",
		Name:      "chunk_fetch_duration_seconds",
		Help:      "Duration of successful chunk fetches in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	ChunkFetchBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stream",
		Name:      "chunk_fetch_bytes",
		Help:      "Size of fetched chunks in bytes.",
		Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 8),
	})

	InFlightFetches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "in_flight_fetches",
		Help:      "Number of chunk fetches currently in flight.",
	})

	SeekRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "seek_requests_total",
		Help:      "Total number of seek requests handled.",
	})

	RecoveryAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "recovery_attempts_total",
		Help:      "Total session-level recovery attempts.",
	})

	ChunksSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "chunks_skipped_total",
		Help:      "Total low-priority chunks dropped without retry.",
	})

	BufferEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "buffer_evictions_total",
		Help:      "Total buffered ranges evicted by reason.",
	}, []string{"reason"})

	BufferedSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "buffered_seconds",
		Help:      "Total seconds of media currently buffered.",
	})

	BufferedBytesEstimate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "buffered_bytes_estimate",
		Help:      "Estimated memory footprint of the playback buffer in bytes.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		SessionStartsTotal,
		StateTransitionsTotal,
		ChunkFetchesTotal,
		ChunkFetchRetriesTotal,
		ChunkFetchDuration,
		ChunkFetchBytes,
		InFlightFetches,
		SeekRequestsTotal,
		RecoveryAttemptsTotal,
		ChunksSkippedTotal,
		BufferEvictionsTotal,
		BufferedSeconds,
		BufferedBytesEstimate,
	)
}
