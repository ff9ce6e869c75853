package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/chunker"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

// JobHandler serves the job list, job items, cancellation, and the
// vector-store and chunking info endpoints grouped under /api/admin/jobs.
type JobHandler struct {
	jobs    interfaces.JobStorage
	vectors vectorstore.Store
	logger  arbor.ILogger
}

func NewJobHandler(jobs interfaces.JobStorage, vectors vectorstore.Store, logger arbor.ILogger) *JobHandler {
	return &JobHandler{jobs: jobs, vectors: vectors, logger: logger}
}

// List serves GET /api/admin/jobs with optional status and limit filters.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobs, err := h.jobs.List(r.Context(), r.URL.Query().Get("status"), QueryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Item dispatches /api/admin/jobs/{id}[/cancel] plus the two reserved
// segments "vectordb" and "chunking".
func (h *JobHandler) Item(w http.ResponseWriter, r *http.Request) {
	segment := PathSegment(r, "/api/admin/jobs")
	switch segment {
	case "vectordb":
		h.vectorDB(w, r)
		return
	case "chunking":
		h.chunking(w, r)
		return
	}

	id, err := PathID(r, "/api/admin/jobs")
	if err != nil {
		WriteError(w, err)
		return
	}

	if strings.HasSuffix(r.URL.Path, "/cancel") {
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}
		if err := h.jobs.Cancel(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		h.logger.Info().Int64("job_id", id).Msg("Job cancelled")
		WriteJSON(w, http.StatusOK, map[string]interface{}{"cancelled": id})
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := h.jobs.Delete(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// vectorDB reports per-collection record counts and dimensions.
func (h *JobHandler) vectorDB(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := h.vectors.Stats(r.Context())
	if err != nil {
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to read vector store stats"))
		return
	}
	collections, err := h.vectors.ListCollections(r.Context())
	if err != nil {
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to list collections"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"collections": collections,
		"stats":       stats,
	})
}

// chunking reports the available strategies and packing defaults.
func (h *JobHandler) chunking(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": []chunker.Strategy{
			chunker.StrategyFixed,
			chunker.StrategyRecursive,
			chunker.StrategySentence,
			chunker.StrategySemantic,
		},
		"default_strategy":   chunker.StrategySentence,
		"default_chunk_size": 200,
		"default_overlap":    0,
		"token_estimate":     "1.3 tokens per word, rounded up",
	})
}
