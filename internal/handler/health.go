package handler

import (
	"encoding/json"
	"net/http"
)

// HubStatus reports whether the dispatch loop is running.
type HubStatus interface {
	Running() bool
}

// FeedStatus reports the activity feed connection state.
type FeedStatus interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	hub  HubStatus
	feed FeedStatus
}

// NewHealthHandler creates a new HealthHandler. feed may be nil when the
// activity feed is disabled.
func NewHealthHandler(hub HubStatus, feed FeedStatus) *HealthHandler {
	return &HealthHandler{hub: hub, feed: feed}
}

// Health is a simple liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready is a readiness probe that checks the hub and the activity feed.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]string{
		"status": "ready",
		"hub":    "running",
		"nats":   "disabled",
	}

	status := http.StatusOK

	if !h.hub.Running() {
		response["status"] = "not_ready"
		response["hub"] = "stopped"
		status = http.StatusServiceUnavailable
	}

	if h.feed != nil {
		response["nats"] = "connected"
		if !h.feed.IsConnected() {
			response["status"] = "not_ready"
			response["nats"] = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
