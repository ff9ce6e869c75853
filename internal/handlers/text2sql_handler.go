package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/text2sql"
)

// Text2SQLHandler exposes the schema dump, SQL generation and the gated
// read-only execution endpoint.
type Text2SQLHandler struct {
	text2sql *text2sql.Service
	logger   arbor.ILogger
}

func NewText2SQLHandler(text2sqlService *text2sql.Service, logger arbor.ILogger) *Text2SQLHandler {
	return &Text2SQLHandler{text2sql: text2sqlService, logger: logger}
}

func (h *Text2SQLHandler) Schema(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	schema, err := h.text2sql.Schema(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tables": schema})
}

func (h *Text2SQLHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Question == "" {
		WriteError(w, apperr.Validation("question is required"))
		return
	}
	statement, err := h.text2sql.Generate(r.Context(), req.Question)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"sql": statement})
}

func (h *Text2SQLHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		SQL string `json:"sql"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.SQL == "" {
		WriteError(w, apperr.Validation("sql is required"))
		return
	}
	result, err := h.text2sql.Execute(r.Context(), req.SQL)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
