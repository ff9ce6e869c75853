package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

// SystemHandler serves the public health and version endpoints.
type SystemHandler struct {
	manager *sqlite.Manager
	logger  arbor.ILogger
}

func NewSystemHandler(manager *sqlite.Manager, logger arbor.ILogger) *SystemHandler {
	return &SystemHandler{manager: manager, logger: logger}
}

// Health pings every database and reports ok or degraded.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := h.manager.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Health check database ping failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]string{
		"status":  status,
		"version": common.GetVersion(),
	})
}

// Version reports the build version.
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}
