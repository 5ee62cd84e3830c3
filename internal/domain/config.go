package domain

import "time"

// StreamingConfig holds the per-session tuning knobs. It is immutable for
// the lifetime of a session; audio and video use different profiles.
type StreamingConfig struct {
	ChunkSize            uint64
	MaxRetries           int
	RetryBaseDelay       time.Duration
	RecoveryBaseDelay    time.Duration
	MaxRecoveryAttempts  int
	BufferAhead          time.Duration
	BufferBehind         time.Duration
	MaxConcurrentFetches int

	// EstimatedBytesPerSec drives the buffered-memory estimate
	// (buffered seconds × this constant). It is an approximation, not
	// an exact accounting of appended bytes.
	EstimatedBytesPerSec  int64
	CleanupThresholdBytes int64
	HardLimitBytes        int64
}

// VideoProfile returns the default configuration for video playback.
func VideoProfile() StreamingConfig {
	return StreamingConfig{
		ChunkSize:             1 << 20, // 1 MB
		MaxRetries:            3,
		RetryBaseDelay:        time.Second,
		RecoveryBaseDelay:     2 * time.Second,
		MaxRecoveryAttempts:   3,
		BufferAhead:           30 * time.Second,
		BufferBehind:          10 * time.Second,
		MaxConcurrentFetches:  3,
		EstimatedBytesPerSec:  1 << 20, // ~1 MB of media per buffered second
		CleanupThresholdBytes: 100 << 20,
		HardLimitBytes:        150 << 20,
	}
}

// AudioProfile returns the default configuration for audio-only playback:
// smaller chunks, a deeper ahead-buffer, and a shallower behind-buffer.
func AudioProfile() StreamingConfig {
	cfg := VideoProfile()
	cfg.ChunkSize = 256 << 10 // 256 KB
	cfg.BufferAhead = 60 * time.Second
	cfg.BufferBehind = 5 * time.Second
	cfg.EstimatedBytesPerSec = 32 << 10
	cfg.CleanupThresholdBytes = 16 << 20
	cfg.HardLimitBytes = 32 << 20
	return cfg
}

// Normalize fills zero-valued fields with the video profile defaults so a
// partially specified config is always usable.
func (c StreamingConfig) Normalize() StreamingConfig {
	def := VideoProfile()
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RecoveryBaseDelay <= 0 {
		c.RecoveryBaseDelay = def.RecoveryBaseDelay
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = def.MaxRecoveryAttempts
	}
	if c.BufferAhead <= 0 {
		c.BufferAhead = def.BufferAhead
	}
	if c.BufferBehind <= 0 {
		c.BufferBehind = def.BufferBehind
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = def.MaxConcurrentFetches
	}
	if c.EstimatedBytesPerSec <= 0 {
		c.EstimatedBytesPerSec = def.EstimatedBytesPerSec
	}
	if c.CleanupThresholdBytes <= 0 {
		c.CleanupThresholdBytes = def.CleanupThresholdBytes
	}
	if c.HardLimitBytes <= 0 {
		c.HardLimitBytes = def.HardLimitBytes
	}
	return c
}
