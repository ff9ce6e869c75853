package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/services/alerting"
)

// AlertHandler manages threshold rules and runs on-demand evaluation.
type AlertHandler struct {
	alerts   interfaces.AlertStorage
	alerting *alerting.Service
	logger   arbor.ILogger
}

func NewAlertHandler(alerts interfaces.AlertStorage, alertingService *alerting.Service, logger arbor.ILogger) *AlertHandler {
	return &AlertHandler{alerts: alerts, alerting: alertingService, logger: logger}
}

// Collection serves GET (list) and POST (create) on /api/admin/alerts.
func (h *AlertHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		alerts, err := h.alerts.List(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"alerts": alerts,
			"count":  len(alerts),
		})
	case http.MethodPost:
		var alert models.Alert
		if !DecodeJSON(w, r, &alert) {
			return
		}
		if err := alert.Validate(); err != nil {
			WriteError(w, apperr.Validation("%v", err))
			return
		}
		id, err := h.alerts.Create(r.Context(), &alert)
		if err != nil {
			WriteError(w, err)
			return
		}
		alert.ID = id
		h.logger.Info().Int64("alert_id", id).Str("metric", alert.Metric).Msg("Alert rule created")
		WriteJSON(w, http.StatusOK, alert)
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item serves PUT/DELETE on /api/admin/alerts/{id} and POST .../check.
func (h *AlertHandler) Item(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/check") {
		h.check(w, r)
		return
	}

	id, err := PathID(r, "/api/admin/alerts")
	if err != nil {
		WriteError(w, err)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var alert models.Alert
		if !DecodeJSON(w, r, &alert) {
			return
		}
		alert.ID = id
		if err := alert.Validate(); err != nil {
			WriteError(w, apperr.Validation("%v", err))
			return
		}
		if err := h.alerts.Update(r.Context(), &alert); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, alert)
	case http.MethodDelete:
		if err := h.alerts.Delete(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// check evaluates the enabled rules against the latest pipeline metrics.
func (h *AlertHandler) check(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	firings, err := h.alerting.Check(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	triggered := make([]int64, 0, len(firings))
	for _, firing := range firings {
		triggered = append(triggered, firing.AlertID)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"triggered": triggered,
		"firings":   firings,
	})
}
