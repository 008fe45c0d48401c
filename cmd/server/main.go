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

	apihttp "github.com/TypeA2/ai-sync/internal/api/http"
	"github.com/TypeA2/ai-sync/internal/app"
	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/media/ffprobe"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/session"
	"github.com/TypeA2/ai-sync/internal/telemetry"
	"github.com/TypeA2/ai-sync/internal/transport/ws"
)

// proberResolver adapts the ffprobe prober to the coordinator's
// MediaResolver interface.
type proberResolver struct {
	prober *ffprobe.Prober
}

func (r proberResolver) Resolve(ctx context.Context, locator string) (session.Media, error) {
	handle, err := r.prober.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "ai-sync")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "ai-sync"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mediaDir", cfg.MediaDir),
		slog.Int64("toleranceMs", cfg.Tolerance.Milliseconds()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := session.Events{
		ServerStarted: func() {
			logger.Info("coordinator started")
		},
		ClientConnected: func(id domain.ClientID) {
			logger.Debug("client admitted", slog.String("clientId", string(id)))
		},
		PlaybackStopped: func() {
			logger.Info("playback stopped")
		},
		PlayingChanged: func(playing bool) {
			logger.Info("playing changed", slog.Bool("playing", playing))
		},
		PositionChanged: func(position time.Duration) {
			logger.Debug("position", slog.Int64("positionMs", position.Milliseconds()))
		},
	}

	coord := session.New(session.Config{
		Tolerance:        cfg.Tolerance,
		HandshakeTimeout: cfg.HandshakeTimeout,
		StatusTimeout:    cfg.StatusTimeout,
		PollInterval:     cfg.PollInterval,
	}, proberResolver{prober: ffprobe.New(cfg.FFProbePath)}, logger, events)

	transport := ws.NewServer(logger, ws.Callbacks{
		OnConnect:    coord.HandleConnect,
		OnDisconnect: coord.HandleDisconnect,
		OnMessage:    coord.HandleMessage,
	})
	coord.Bind(transport)

	handler := apihttp.NewServer(coord, transport,
		apihttp.WithLogger(logger),
		apihttp.WithMediaDir(cfg.MediaDir),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

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
	coord.Started()

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

	if err := coord.StopPlayback(); err != nil && !errors.Is(err, domain.ErrNoSession) {
		logger.Warn("session stop error", slog.String("error", err.Error()))
	}
	transport.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
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
