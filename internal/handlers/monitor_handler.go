package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/services/monitor"
)

// MonitorHandler serves the host, model and database snapshots.
type MonitorHandler struct {
	monitor *monitor.Service
	logger  arbor.ILogger
}

func NewMonitorHandler(monitorService *monitor.Service, logger arbor.ILogger) *MonitorHandler {
	return &MonitorHandler{monitor: monitorService, logger: logger}
}

func (h *MonitorHandler) System(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.monitor.System(r.Context()))
}

func (h *MonitorHandler) Models(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	models := h.monitor.Models(r.Context())
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
		"count":  len(models),
	})
}

func (h *MonitorHandler) Databases(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"databases": h.monitor.Databases(r.Context()),
	})
}
