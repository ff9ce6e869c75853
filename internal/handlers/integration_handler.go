package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/services/integrations"
)

// IntegrationHandler manages external connection configs and live tests.
type IntegrationHandler struct {
	integrations *integrations.Service
	logger       arbor.ILogger
}

func NewIntegrationHandler(integrationService *integrations.Service, logger arbor.ILogger) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrationService, logger: logger}
}

// Collection serves GET (list) and POST (save) on /api/admin/integrations.
func (h *IntegrationHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.integrations.List(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"integrations": list,
			"count":        len(list),
		})
	case http.MethodPost:
		var integration models.Integration
		if !DecodeJSON(w, r, &integration) {
			return
		}
		if integration.ID == "" {
			WriteError(w, apperr.Validation("integration id is required"))
			return
		}
		if err := h.integrations.Save(r.Context(), &integration); err != nil {
			WriteError(w, err)
			return
		}
		h.logger.Info().Str("integration", integration.ID).Msg("Integration saved")
		WriteJSON(w, http.StatusOK, map[string]interface{}{"saved": integration.ID})
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item serves /api/admin/integrations/{id} and the /test action.
func (h *IntegrationHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := PathSegment(r, "/api/admin/integrations")
	if id == "" {
		WriteError(w, apperr.Validation("missing integration id in path"))
		return
	}

	if strings.HasSuffix(r.URL.Path, "/test") {
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}
		result, err := h.integrations.Test(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
		return
	}

	switch r.Method {
	case http.MethodGet:
		integration, err := h.integrations.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, integration)
	case http.MethodDelete:
		if err := h.integrations.Delete(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
