package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionManager is the control surface the HTTP layer drives.
type SessionManager interface {
	Attach(ctx context.Context, input session.Input) (*session.Controller, error)
	Retry(ctx context.Context, token string, expiry time.Time) (*session.Controller, error)
	Terminate(ctx context.Context) error
	Seek(ctx context.Context, target float64) error
	UpdateTime(ctx context.Context, t float64) error
	Snapshot(ctx context.Context) (domain.SessionSnapshot, error)
}

// ResumeStore is the subset of the persistence layer the API reads.
type ResumeStore interface {
	Get(ctx context.Context, sourceURL string) (domain.ResumePosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ResumePosition, error)
}

type Server struct {
	sessions       SessionManager
	resume         ResumeStore
	streamCfg      domain.StreamingConfig
	allowedOrigins []string
	rateLimitRPS   float64
	rateLimitBurst int
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithResumeStore(store ResumeStore) ServerOption {
	return func(s *Server) {
		s.resume = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimitRPS = rps
		s.rateLimitBurst = burst
	}
}

// WithStreamingConfig sets the config template applied to new sessions.
func WithStreamingConfig(cfg domain.StreamingConfig) ServerOption {
	return func(s *Server) {
		s.streamCfg = cfg
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(sessions SessionManager, opts ...ServerOption) *Server {
	s := &Server{
		sessions:       sessions,
		streamCfg:      domain.VideoProfile(),
		rateLimitRPS:   100,
		rateLimitBurst: 200,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/current", s.handleCurrentSession)
	mux.HandleFunc("/sessions/current/seek", s.handleSeek)
	mux.HandleFunc("/sessions/current/time", s.handleTimeUpdate)
	mux.HandleFunc("/sessions/current/retry", s.handleRetry)
	mux.HandleFunc("/resume", s.handleResumeList)
	mux.HandleFunc("/resume/position", s.handleResumePosition)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "media-stream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst,
			metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastState pushes a session snapshot to all WebSocket clients.
func (s *Server) BroadcastState(snap domain.SessionSnapshot) {
	if s.wsHub != nil {
		s.wsHub.BroadcastState(snap)
	}
}

// BroadcastEvent pushes a lifecycle or error event to all WebSocket clients.
func (s *Server) BroadcastEvent(ev domain.Event) {
	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(ev)
	}
}

// Close disconnects WebSocket clients; the session manager is shut down
// separately by the owner.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
