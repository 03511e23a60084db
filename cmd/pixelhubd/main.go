package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pixeldraw/pixelhub/internal/activity"
	"github.com/pixeldraw/pixelhub/internal/config"
	"github.com/pixeldraw/pixelhub/internal/policy"
	"github.com/pixeldraw/pixelhub/internal/server"
)

func main() {
	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logFile := setupLogging(cfg)
	if logFile != nil {
		defer logFile.Close()
	}

	// Hub policy. A configured but invalid file is fatal.
	store := policy.NewStore(nil)
	if cfg.PolicyFile != "" {
		p, err := policy.Load(cfg.PolicyFile)
		if err != nil {
			slog.Error("failed to load policy", "path", cfg.PolicyFile, "error", err)
			os.Exit(1)
		}
		store.Set(p)
		slog.Info("policy loaded", "path", cfg.PolicyFile, "room_access", p.RoomAccess)

		go func() {
			if err := policy.Watch(ctx, cfg.PolicyFile, store); err != nil {
				slog.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	// Activity feed (optional)
	var (
		embedded *activity.EmbeddedServer
		feed     *activity.Publisher
	)
	if cfg.FeedEnabled() {
		natsURL := cfg.NatsURL
		if cfg.NatsEmbedded {
			embedded, err = activity.StartEmbedded(activity.EmbeddedConfig{})
			if err != nil {
				slog.Error("failed to start embedded NATS", "error", err)
				os.Exit(1)
			}
			natsURL = embedded.ClientURL()
		}

		feed, err = activity.Connect(natsURL)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		slog.Info("activity feed enabled", "nats_url", natsURL, "embedded", cfg.NatsEmbedded)
	}

	srv := server.New(cfg, store, feed)

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	// Graceful shutdown: HTTP and hub first, then the feed, then NATS
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	if feed != nil {
		feed.Close()
	}
	if embedded != nil {
		embedded.Shutdown()
	}

	slog.Info("shutdown complete")
}

// setupLogging installs the default slog logger. When LOG_FILE is set the
// returned rotating file receives a copy of stdout.
func setupLogging(cfg *config.Config) *lumberjack.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var (
		w  io.Writer = os.Stdout
		lj *lumberjack.Logger
	)
	if cfg.LogFile != "" {
		lj = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, lj)
	}

	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	return lj
}
