package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "mediastream/internal/api/http"
	"mediastream/internal/app"
	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/fetch"
	"mediastream/internal/metrics"
	memoryrepo "mediastream/internal/repository/memory"
	mongorepo "mediastream/internal/repository/mongo"
	"mediastream/internal/session"
	"mediastream/internal/sink"
	"mediastream/internal/telemetry"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const serviceVersion = "1.0.0"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "media-stream", serviceVersion)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "media-stream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Bool("mongoEnabled", cfg.MongoURI != ""),
		slog.Uint64("chunkSize", cfg.Streaming.ChunkSize),
		slog.Duration("bufferAhead", cfg.Streaming.BufferAhead),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resumeStore ports.ResumeStore
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		defer cancel()

		mongoClient, err = mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		repo := mongorepo.NewResumeRepository(mongoClient, cfg.MongoDatabase)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		resumeStore = repo
	} else {
		resumeStore = memoryrepo.NewResumeStore()
	}

	fetchOpts := []fetch.Option{}
	if cfg.FetchBandwidthBps > 0 {
		fetchOpts = append(fetchOpts, fetch.WithBandwidthLimit(cfg.FetchBandwidthBps))
	}
	if cfg.FetchTimeout > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(&http.Client{
			Transport: fetch.NewTransport(),
			Timeout:   cfg.FetchTimeout,
		}))
	}
	fetcher := fetch.NewClient(cfg.Streaming, logger, fetchOpts...)

	mediaSink := sink.NewMemorySink()
	manager := session.NewManager(fetcher, mediaSink, logger)

	handler := apihttp.NewServer(manager,
		apihttp.WithLogger(logger),
		apihttp.WithResumeStore(resumeStore),
		apihttp.WithStreamingConfig(cfg.Streaming),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	manager.SetEventHandler(handler.BroadcastEvent)

	go broadcastLoop(rootCtx, cfg, manager, handler, resumeStore, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("session manager close error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// broadcastLoop pushes session snapshots to WebSocket clients and
// persists resume positions while a session is active.
func broadcastLoop(ctx context.Context, cfg app.Config, manager *session.Manager, handler *apihttp.Server, store ports.ResumeStore, logger *slog.Logger) {
	stateTicker := time.NewTicker(cfg.BroadcastInterval)
	resumeTicker := time.NewTicker(cfg.ResumeSaveInterval)
	defer stateTicker.Stop()
	defer resumeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stateTicker.C:
			snap, err := manager.Snapshot(ctx)
			if err != nil {
				continue
			}
			handler.BroadcastState(snap)
		case <-resumeTicker.C:
			snap, err := manager.Snapshot(ctx)
			if err != nil || snap.CurrentTime <= 0 {
				continue
			}
			pos := domain.ResumePosition{
				SourceURL: snap.SourceURL,
				Position:  snap.CurrentTime,
				Duration:  snap.Duration,
			}
			saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Upsert(saveCtx, pos); err != nil {
				logger.Debug("resume position save failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
