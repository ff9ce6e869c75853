package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/services/training"
)

// ScoringHandler scores feature rows against persisted model artifacts.
// Models are addressed by bare file name inside the models directory.
type ScoringHandler struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewScoringHandler(cfg *common.Config, logger arbor.ILogger) *ScoringHandler {
	return &ScoringHandler{cfg: cfg, logger: logger}
}

type scoreRequest struct {
	Model    string             `json:"model"`
	Features map[string]float64 `json:"features"`
}

type batchScoreRequest struct {
	Model string               `json:"model"`
	Rows  []map[string]float64 `json:"rows"`
}

type prediction struct {
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Models lists the artifacts available for scoring.
func (h *ScoringHandler) Models(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := os.ReadDir(h.cfg.ModelsDir())
	if err != nil && !os.IsNotExist(err) {
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to read models directory"))
		return
	}
	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".gob") {
			names = append(names, entry.Name())
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models": names,
		"count":  len(names),
	})
}

// Score predicts a single feature row.
func (h *ScoringHandler) Score(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req scoreRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Features) == 0 {
		WriteError(w, apperr.Validation("features are required"))
		return
	}
	artifact, err := h.loadArtifact(req.Model)
	if err != nil {
		WriteError(w, err)
		return
	}
	results, err := h.predict(artifact, []map[string]float64{req.Features})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, results[0])
}

// Batch predicts many rows against one model.
func (h *ScoringHandler) Batch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req batchScoreRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		WriteError(w, apperr.Validation("rows are required"))
		return
	}
	artifact, err := h.loadArtifact(req.Model)
	if err != nil {
		WriteError(w, err)
		return
	}
	results, err := h.predict(artifact, req.Rows)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": results,
		"count":       len(results),
	})
}

// loadArtifact resolves a model file name strictly inside the models
// directory. Names carrying path separators or traversal are refused.
func (h *ScoringHandler) loadArtifact(name string) (*training.ModelArtifact, error) {
	if name == "" {
		return nil, apperr.Validation("model name is required")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return nil, apperr.Validation("invalid model name %q", name)
	}
	if !strings.HasSuffix(name, ".gob") {
		return nil, apperr.Validation("model name must end in .gob")
	}
	return training.LoadModel(filepath.Join(h.cfg.ModelsDir(), name))
}

func (h *ScoringHandler) predict(artifact *training.ModelArtifact, rows []map[string]float64) ([]prediction, error) {
	X := make([][]float64, len(rows))
	for i, row := range rows {
		vector := make([]float64, len(artifact.FeatureColumns))
		for j, column := range artifact.FeatureColumns {
			value, ok := row[column]
			if !ok {
				return nil, apperr.Validation("row %d is missing feature %q", i, column)
			}
			vector[j] = value
		}
		X[i] = vector
	}

	labels, probabilities, err := artifact.Predict(X)
	if err != nil {
		return nil, err
	}
	results := make([]prediction, len(labels))
	for i, label := range labels {
		probs := make(map[string]float64, len(artifact.Classes))
		for j, class := range artifact.Classes {
			if j < len(probabilities[i]) {
				probs[class] = probabilities[i][j]
			}
		}
		results[i] = prediction{Prediction: label, Probabilities: probs}
	}
	return results, nil
}
