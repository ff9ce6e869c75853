package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/services/stats"
)

// StatsHandler serves the on-demand dataset analyses. Every request loads
// the frame fresh; nothing is cached between calls.
type StatsHandler struct {
	stats  *stats.Service
	logger arbor.ILogger
}

func NewStatsHandler(statsService *stats.Service, logger arbor.ILogger) *StatsHandler {
	return &StatsHandler{stats: statsService, logger: logger}
}

// Handle routes /api/admin/stats/{dataset_id}/{analysis}.
func (h *StatsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/stats"), "/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		WriteError(w, apperr.Validation("expected /api/admin/stats/{dataset_id}/{analysis}"))
		return
	}
	datasetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		WriteError(w, apperr.Validation("invalid dataset id %q", parts[0]))
		return
	}

	ctx := r.Context()
	q := r.URL.Query()

	var payload interface{}
	switch parts[1] {
	case "correlations":
		payload, err = h.stats.Correlations(ctx, datasetID)
	case "distributions":
		payload, err = h.stats.Distributions(ctx, datasetID)
	case "outliers":
		payload, err = h.stats.Outliers(ctx, datasetID)
	case "class-distribution":
		payload, err = h.stats.ClassDistributionFor(ctx, datasetID, q.Get("target"))
	case "feature-engineering":
		payload, err = h.stats.FeatureEngineering(ctx, datasetID)
	case "stability":
		payload, err = h.stats.Stability(ctx, datasetID)
	case "leakage":
		payload, err = h.stats.Leakage(ctx, datasetID, q.Get("target"))
	case "calibration":
		payload, err = h.stats.Calibration(ctx, datasetID, q.Get("score"), q.Get("target"))
	case "fairness":
		payload, err = h.stats.Fairness(ctx, datasetID, q.Get("group"), q.Get("target"))
	case "cost-threshold":
		payload, err = h.stats.CostThreshold(ctx, datasetID, q.Get("score"), q.Get("target"),
			QueryFloat(r, "fp_cost", 1), QueryFloat(r, "fn_cost", 1))
	default:
		WriteError(w, apperr.NotFound("unknown analysis %q", parts[1]))
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}
