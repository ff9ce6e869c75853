package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/regulatory"
)

// RegulatoryHandler serves the SR 11-7 style oversight endpoints.
type RegulatoryHandler struct {
	regulatory *regulatory.Service
	logger     arbor.ILogger
}

func NewRegulatoryHandler(regulatoryService *regulatory.Service, logger arbor.ILogger) *RegulatoryHandler {
	return &RegulatoryHandler{regulatory: regulatoryService, logger: logger}
}

// Handle dispatches /api/admin/regulatory/{sr11-7/{uc_id}|model-inventory|compliance-summary}.
func (h *RegulatoryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/regulatory"), "/")

	switch {
	case strings.HasPrefix(rest, "sr11-7/"):
		useCaseKey := strings.TrimPrefix(rest, "sr11-7/")
		assessment, err := h.regulatory.Assess(r.Context(), useCaseKey)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, assessment)
	case rest == "model-inventory":
		inventory, err := h.regulatory.Inventory(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"models": inventory,
			"count":  len(inventory),
		})
	case rest == "compliance-summary":
		summary, err := h.regulatory.Compliance(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, summary)
	default:
		WriteError(w, apperr.NotFound("unknown regulatory endpoint %q", rest))
	}
}
