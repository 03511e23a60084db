package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/pixeldraw/pixelhub/internal/collab"
	"github.com/pixeldraw/pixelhub/internal/websocket"
)

// SocketHandler upgrades HTTP requests to hub connections.
type SocketHandler struct {
	hub      *collab.Hub
	opts     websocket.Options
	upgrader ws.Upgrader
}

// NewSocketHandler creates a SocketHandler. Browser origins must appear in
// allowedOrigins; "*" allows any origin. Requests without an Origin header
// are always accepted.
func NewSocketHandler(hub *collab.Hub, opts websocket.Options, allowedOrigins []string) *SocketHandler {
	return &SocketHandler{
		hub:  hub,
		opts: opts,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	_, wildcard := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Connect upgrades the request and registers the connection with the hub.
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "hub not running"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, uuid.NewString(), h.opts)
	if err := h.hub.Register(client); err != nil {
		if !errors.Is(err, collab.ErrHubClosed) {
			slog.Error("failed to register client", "error", err)
		}
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseTryAgainLater, "unavailable"))
		conn.Close()
		return
	}

	// Pumps outlive the request, so they get a fresh context.
	go client.WritePump()
	go client.ReadPump(context.Background())
}
