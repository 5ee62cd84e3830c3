package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"mediastream/internal/domain"
	"mediastream/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// Client performs authenticated byte-range requests against a media
// origin. It is stateless with respect to session state and safe for
// concurrent use.
type Client struct {
	http    *http.Client
	cfg     domain.StreamingConfig
	limiter *rate.Limiter // optional bandwidth cap, tokens are bytes
	logger  *slog.Logger
}

type Option func(*Client)

// NewTransport returns the traced transport used by the default client,
// for callers building their own http.Client with a custom timeout.
func NewTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBandwidthLimit caps fetch throughput in bytes per second.
func WithBandwidthLimit(bytesPerSec int64) Option {
	return func(c *Client) {
		if bytesPerSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		}
	}
}

func NewClient(cfg domain.StreamingConfig, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.Normalize(),
		logger: logger,
		http: &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FetchChunk downloads one inclusive byte range with bearer auth,
// retrying recoverable failures with exponential backoff.
func (c *Client) FetchChunk(ctx context.Context, source string, r domain.ByteRange, token string) ([]byte, error) {
	start := time.Now()
	data, err := RetryWithBackoff(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetchOnce(ctx, source, r, token)
	}, c.cfg.MaxRetries, c.cfg.RetryBaseDelay)
	if err != nil {
		metrics.ChunkFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ChunkFetchesTotal.WithLabelValues("ok").Inc()
	metrics.ChunkFetchDuration.Observe(time.Since(start).Seconds())
	metrics.ChunkFetchBytes.Observe(float64(len(data)))
	return data, nil
}

func (c *Client) fetchOnce(ctx context.Context, source string, r domain.ByteRange, token string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitN(ctx, int(r.Length())); err != nil {
			return nil, domain.NewNetworkError(err, true)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, domain.NewNetworkError(err, false)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Range", r.Header())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(err, true)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(fmt.Errorf("read chunk body: %w", err), true)
	}
	// A 200 to a ranged request means the origin ignored the Range header
	// and sent the whole file; accepting it would mis-mark coverage.
	if resp.StatusCode == http.StatusOK && uint64(len(data)) != r.Length() {
		return nil, domain.NewNetworkError(
			fmt.Errorf("origin ignored range request: got %d bytes for %s", len(data), r.Header()), false)
	}
	c.logger.Debug("chunk fetched",
		slog.String("range", r.Key()),
		slog.Int("bytes", len(data)),
		slog.Int("status", resp.StatusCode),
	)
	return data, nil
}

// FileSize discovers the total media size with a 1-byte range probe,
// falling back to a HEAD request when Content-Range is missing.
func (c *Client) FileSize(ctx context.Context, source, token string) (uint64, error) {
	return RetryWithBackoff(ctx, func(ctx context.Context) (uint64, error) {
		size, err := c.probeSize(ctx, source, token)
		if err == nil {
			return size, nil
		}
		serr := domain.AsStreamingError(err)
		if serr.Kind == domain.ErrorAuthentication {
			return 0, err
		}
		return c.headSize(ctx, source, token)
	}, c.cfg.MaxRetries, c.cfg.RetryBaseDelay)
}

func (c *Client) probeSize(ctx context.Context, source, token string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, domain.NewNetworkError(err, false)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, domain.NewNetworkError(err, true)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if err := classifyStatus(resp.StatusCode); err != nil {
		return 0, err
	}

	total, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, domain.NewNetworkError(err, true)
	}
	return total, nil
}

func (c *Client) headSize(ctx context.Context, source, token string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, source, nil)
	if err != nil {
		return 0, domain.NewNetworkError(err, false)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, domain.NewNetworkError(err, true)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return 0, err
	}
	if resp.ContentLength > 0 {
		return uint64(resp.ContentLength), nil
	}
	raw := strings.TrimSpace(resp.Header.Get("Content-Length"))
	size, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || size == 0 {
		return 0, domain.NewNetworkError(fmt.Errorf("origin reported no usable Content-Length (%q)", raw), true)
	}
	return size, nil
}

// classifyStatus maps an HTTP status to the streaming error taxonomy:
// 401/403 are authentication failures, other 4xx are definitive, and
// everything else non-2xx is a retryable network failure.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK || status == http.StatusPartialContent:
		return nil
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewAuthenticationError(status)
	case status >= 400 && status < 500:
		return domain.NewNetworkError(fmt.Errorf("origin rejected request with status %d", status), false)
	default:
		return domain.NewNetworkError(fmt.Errorf("origin returned status %d", status), true)
	}
}

// parseContentRangeTotal extracts the total size from a header shaped
// like "bytes 0-0/12345".
func parseContentRangeTotal(header string) (uint64, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	slash := strings.LastIndexByte(header, '/')
	if slash < 0 || slash == len(header)-1 {
		return 0, fmt.Errorf("malformed Content-Range header %q", header)
	}
	totalRaw := header[slash+1:]
	if totalRaw == "*" {
		return 0, fmt.Errorf("origin did not report a total size in %q", header)
	}
	total, err := strconv.ParseUint(totalRaw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range total in %q: %w", header, err)
	}
	if total == 0 {
		return 0, fmt.Errorf("origin reported zero total size")
	}
	return total, nil
}
