package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pixeldraw/pixelhub/internal/collab"
)

// RoomsHandler exposes read-only room snapshots.
type RoomsHandler struct {
	hub *collab.Hub
}

// NewRoomsHandler creates a new RoomsHandler.
func NewRoomsHandler(hub *collab.Hub) *RoomsHandler {
	return &RoomsHandler{hub: hub}
}

// ListRoomsResponse is the response for listing rooms.
type ListRoomsResponse struct {
	Rooms       []collab.RoomSummary `json:"rooms"`
	Connections int                  `json:"connections"`
}

// List returns every known room with its member count.
func (h *RoomsHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.hub.Rooms(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	stats, err := h.hub.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms, Connections: stats.Connections})
}

// Get returns the members of one room.
func (h *RoomsHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	detail, found, err := h.hub.Room(r.Context(), roomID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *RoomsHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, collab.ErrHubClosed) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "hub not running"})
		return
	}
	slog.Error("room query failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
