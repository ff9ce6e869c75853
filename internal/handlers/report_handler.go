package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/reports"
)

// ReportHandler serves the export endpoints. Single-document renders
// stream the file back; batch returns a manifest of what was rendered.
type ReportHandler struct {
	reports *reports.Service
	logger  arbor.ILogger
}

func NewReportHandler(reportService *reports.Service, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{reports: reportService, logger: logger}
}

// Export dispatches /api/admin/export/{format}/{uc_id} plus the
// executive-summary and batch actions.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/export"), "/")

	switch rest {
	case "executive-summary":
		export, err := h.reports.ExecutiveSummary(r.Context(), h.format(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		h.stream(w, export)
		return
	case "batch":
		exports, err := h.reports.Batch(r.Context(), h.format(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		manifest := make([]map[string]interface{}, 0, len(exports))
		for _, export := range exports {
			manifest = append(manifest, map[string]interface{}{
				"use_case_key": export.UseCaseKey,
				"format":       export.Format,
				"file_name":    export.FileName,
				"size_bytes":   len(export.Data),
			})
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"exports": manifest,
			"count":   len(manifest),
		})
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		WriteError(w, apperr.Validation("expected /api/admin/export/{format}/{uc_id}"))
		return
	}
	export, err := h.reports.Render(r.Context(), parts[0], parts[1])
	if err != nil {
		WriteError(w, err)
		return
	}
	h.stream(w, export)
}

func (h *ReportHandler) format(r *http.Request) string {
	if format := r.URL.Query().Get("format"); format != "" {
		return format
	}
	return "markdown"
}

func (h *ReportHandler) stream(w http.ResponseWriter, export *reports.Export) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(export.Data)
}
