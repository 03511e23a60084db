package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pixeldraw/pixelhub/internal/activity"
	"github.com/pixeldraw/pixelhub/internal/collab"
	"github.com/pixeldraw/pixelhub/internal/config"
	"github.com/pixeldraw/pixelhub/internal/metrics"
	"github.com/pixeldraw/pixelhub/internal/middleware"
	"github.com/pixeldraw/pixelhub/internal/policy"
)

// Server is the HTTP server and the hub it fronts.
type Server struct {
	cfg         *config.Config
	hub         *collab.Hub
	policy      *policy.Store
	feed        *activity.Publisher // nil when the activity feed is disabled
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	server      *http.Server

	hubCancel context.CancelFunc
	hubDone   chan struct{}
}

// New creates a Server and starts its hub. feed may be nil.
func New(cfg *config.Config, store *policy.Store, feed *activity.Publisher) *Server {
	m := metrics.New()

	opts := []collab.Option{
		collab.WithPolicy(store),
		collab.WithMetrics(m),
	}
	if feed != nil {
		opts = append(opts, collab.WithFeed(feed))
	}
	hub := collab.NewHub(opts...)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RatePerSecond:   cfg.UpgradeRate,
		Burst:           cfg.UpgradeBurst,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	})

	s := &Server{
		cfg:         cfg,
		hub:         hub,
		policy:      store,
		feed:        feed,
		metrics:     m,
		rateLimiter: rateLimiter,
		hubCancel:   hubCancel,
		hubDone:     hubDone,
	}

	s.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Hub returns the hub served by s.
func (s *Server) Hub() *collab.Hub {
	return s.hub
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server. HTTP stops accepting first,
// then the hub closes every live connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()

	err := s.server.Shutdown(ctx)

	s.hubCancel()
	select {
	case <-s.hubDone:
	case <-ctx.Done():
		slog.Warn("hub did not stop before shutdown deadline")
	}
	return err
}
