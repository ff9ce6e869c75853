package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/rag"
)

// RAGHandler answers natural-language questions over the ingested report
// chunks.
type RAGHandler struct {
	rag    *rag.Service
	logger arbor.ILogger
}

func NewRAGHandler(ragService *rag.Service, logger arbor.ILogger) *RAGHandler {
	return &RAGHandler{rag: ragService, logger: logger}
}

// Query serves POST /api/admin/rag/query.
func (h *RAGHandler) Query(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Query   string `json:"query"`
		UseCase string `json:"use_case"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		WriteError(w, apperr.Validation("query is required"))
		return
	}
	response, err := h.rag.Query(r.Context(), req.Query, req.UseCase)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, response)
}
