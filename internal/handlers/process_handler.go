package handlers

import (
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/scheduler"
)

// ProcessHandler starts pipeline runs through the scheduler.
type ProcessHandler struct {
	scheduler *scheduler.Scheduler
	logger    arbor.ILogger
}

func NewProcessHandler(schedulerService *scheduler.Scheduler, logger arbor.ILogger) *ProcessHandler {
	return &ProcessHandler{scheduler: schedulerService, logger: logger}
}

// Run enqueues one pipeline job per requested use case. An empty or
// absent body runs every known use case.
func (h *ProcessHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UseCases []string `json:"use_cases"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, apperr.Validation("failed to read request body"))
		return
	}
	if len(body) > 0 {
		if err := decodeBytes(body, &req); err != nil {
			WriteError(w, apperr.Validation("invalid JSON body: %v", err))
			return
		}
	}
	if len(req.UseCases) == 0 {
		for _, uc := range models.DefaultUseCases {
			req.UseCases = append(req.UseCases, uc.Key)
		}
	}

	jobs, err := h.scheduler.RunPipeline(r.Context(), req.UseCases)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info().Int("use_cases", len(jobs)).Msg("Pipeline run started")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"status": "started",
	})
}
