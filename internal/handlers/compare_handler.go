package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/compare"
)

// CompareHandler serves the cross-use-case comparison endpoints.
type CompareHandler struct {
	compare *compare.Service
	logger  arbor.ILogger
}

func NewCompareHandler(compareService *compare.Service, logger arbor.ILogger) *CompareHandler {
	return &CompareHandler{compare: compareService, logger: logger}
}

// Handle dispatches /api/admin/compare/{portfolio|side-by-side|department-summary|business-case/{uc_id}}.
func (h *CompareHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/compare"), "/")

	switch {
	case rest == "portfolio":
		portfolio, err := h.compare.Portfolio(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, portfolio)
	case rest == "side-by-side":
		keys := splitCSV(r.URL.Query().Get("ids"))
		metrics, err := h.compare.SideBySide(r.Context(), keys)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"use_cases": metrics})
	case rest == "department-summary":
		departments, err := h.compare.Departments(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"departments": departments})
	case strings.HasPrefix(rest, "business-case/"):
		useCaseKey := strings.TrimPrefix(rest, "business-case/")
		businessCase, err := h.compare.BusinessCaseFor(r.Context(), useCaseKey)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, businessCase)
	default:
		WriteError(w, apperr.NotFound("unknown compare endpoint %q", rest))
	}
}

// Departments is the public department summary, outside the admin group.
func (h *CompareHandler) Departments(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	departments, err := h.compare.Departments(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"departments": departments})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
