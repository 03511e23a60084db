package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger is a request logging middleware using slog. Probe and scrape
// endpoints are logged at debug level.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			level := slog.LevelInfo
			if quietPath(r.URL.Path) {
				level = slog.LevelDebug
			}
			slog.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", ww.BytesWritten(),
				"remote_ip", clientIP(r),
				"upgrade", strings.EqualFold(r.Header.Get("Upgrade"), "websocket"),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func quietPath(path string) bool {
	switch path {
	case "/health", "/ready", "/metrics":
		return true
	}
	return false
}
