package api

import (
	"net/http"

	"chat-relay/observability"
	"chat-relay/runtime"
)

type HealthHandler struct {
	monitor  *observability.Monitor
	registry *runtime.Registry
}

func NewHealthHandler(monitor *observability.Monitor, registry *runtime.Registry) *HealthHandler {
	return &HealthHandler{monitor: monitor, registry: registry}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Snapshot(len(h.registry.OnlineIDs())))
}
