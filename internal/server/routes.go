package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pixeldraw/pixelhub/internal/handler"
	"github.com/pixeldraw/pixelhub/internal/middleware"
	"github.com/pixeldraw/pixelhub/internal/websocket"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	// Health checks
	var feed handler.FeedStatus
	if s.feed != nil {
		feed = s.feed
	}
	healthHandler := handler.NewHealthHandler(s.hub, feed)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", s.metrics.Handler())

	// WebSocket endpoint
	socketHandler := handler.NewSocketHandler(s.hub, websocket.Options{
		MaxMessageSize: s.cfg.WSMaxMessageSize,
		SendBuffer:     s.cfg.WSSendBuffer,
		Policy:         s.policy,
		Metrics:        s.metrics,
	}, s.cfg.CORSOrigins)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter))
		r.Get("/ws", socketHandler.Connect)
	})

	// Read-only inspection API
	roomsHandler := handler.NewRoomsHandler(s.hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/rooms", roomsHandler.List)
		r.Get("/rooms/{roomId}", roomsHandler.Get)
	})

	return r
}
