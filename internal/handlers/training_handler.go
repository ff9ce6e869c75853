package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/services/training"
)

// TrainingHandler starts training jobs and exposes their lifecycle.
type TrainingHandler struct {
	training *training.Service
	jobs     interfaces.JobStorage
	logger   arbor.ILogger
}

func NewTrainingHandler(trainingService *training.Service, jobs interfaces.JobStorage, logger arbor.ILogger) *TrainingHandler {
	return &TrainingHandler{training: trainingService, jobs: jobs, logger: logger}
}

// Start validates the request and enqueues a background training run.
func (h *TrainingHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req training.Request
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.training.Start(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info().Int64("job_id", job.ID).Str("algorithm", req.Algorithm).Msg("Training job started")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// Jobs serves GET /api/admin/training/jobs and .../jobs/{id}.
func (h *TrainingHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if segment := PathSegment(r, "/api/admin/training/jobs"); segment != "" {
		id, err := PathID(r, "/api/admin/training/jobs")
		if err != nil {
			WriteError(w, err)
			return
		}
		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
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
