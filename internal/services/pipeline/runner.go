// Package pipeline implements the twelve pipeline subtasks the scheduler
// drives per use case. Each subtask reads its predecessor's canonical
// files under preprocessing_output/<use_case_key>/ and writes its own;
// unchanged inputs are detected by file hash and skipped.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/scheduler"
	"github.com/ternarybob/trutina/internal/services/embeddings"
	"github.com/ternarybob/trutina/internal/services/rag"
	"github.com/ternarybob/trutina/internal/services/regulatory"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

const hashManifest = "hashes.json"

// Runner executes pipeline subtasks against the real services.
type Runner struct {
	cfg           *common.Config
	preprocessing interfaces.PreprocessingStorage
	vectors       vectorstore.Store
	embedder      *embeddings.Service
	rag           *rag.Service
	regulatory    *regulatory.Service
	logger        arbor.ILogger
}

func NewRunner(
	cfg *common.Config,
	preprocessing interfaces.PreprocessingStorage,
	vectors vectorstore.Store,
	embedder *embeddings.Service,
	ragService *rag.Service,
	regulatoryService *regulatory.Service,
	logger arbor.ILogger,
) *Runner {
	return &Runner{
		cfg:           cfg,
		preprocessing: preprocessing,
		vectors:       vectors,
		embedder:      embedder,
		rag:           ragService,
		regulatory:    regulatoryService,
		logger:        logger,
	}
}

var _ scheduler.Runner = (*Runner)(nil)

// subtaskIO names the input and output files of one subtask, relative to
// the use-case directory. Inputs drive skip detection; outputs define
// idempotent resume.
var subtaskIO = map[string]struct {
	inputs  []string
	outputs []string
}{
	"data_split":            {inputs: []string{"source.csv"}, outputs: []string{"train.csv", "test.csv"}},
	"noise_removal":         {inputs: []string{"train.csv"}, outputs: []string{"train_clean.csv", "summary.json", "column_profiles.json", "outliers.json", "target_distribution.json", "correlations.json", "feature_engineering.json"}},
	"model_training":        {inputs: []string{"train_clean.csv"}, outputs: []string{"training_results.json"}},
	"model_evaluation":      {inputs: []string{"training_results.json", "test.csv"}, outputs: []string{"evaluation.json"}},
	"ensemble_training":     {inputs: []string{"train_clean.csv", "test.csv"}, outputs: []string{"ensemble_results.json"}},
	"model_benchmarking":    {inputs: []string{"train_clean.csv", "test.csv"}, outputs: []string{"benchmarking.json"}},
	"ai_governance_scoring": {inputs: []string{"summary.json", "training_results.json"}, outputs: []string{"governance.json"}},
	"chunking":              {inputs: []string{"summary.json", "training_results.json"}, outputs: []string{"chunks.json"}},
	"embedding":             {inputs: []string{"chunks.json"}, outputs: []string{"embedding_manifest.json"}},
	"vector_db_ingestion":   {inputs: []string{"chunks.json"}, outputs: []string{"ingestion.json"}},
	"rag_evaluation":        {inputs: []string{"ingestion.json"}, outputs: []string{"rag_evaluation.json"}},
	"report_generation":     {inputs: []string{"summary.json", "training_results.json", "evaluation.json"}, outputs: []string{"full_report.json"}},
}

// RunSubtask dispatches one named subtask, applying hash-based skip
// detection first.
func (r *Runner) RunSubtask(ctx context.Context, subtask, useCaseKey string, priorArtifacts []string) scheduler.SubtaskResult {
	uc, ok := models.FindUseCase(useCaseKey)
	if !ok {
		return fail("unknown use case " + useCaseKey)
	}
	dir := r.useCaseDir(useCaseKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("failed to create use case directory: " + err.Error())
	}

	if r.canSkip(dir, subtask) {
		entry := subtaskIO[subtask]
		return scheduler.SubtaskResult{
			Status:        scheduler.SubtaskSkip,
			ArtifactPaths: absPaths(dir, entry.outputs),
		}
	}

	var result scheduler.SubtaskResult
	switch subtask {
	case "data_split":
		result = r.runDataSplit(ctx, uc, dir)
	case "noise_removal":
		result = r.runNoiseRemoval(ctx, uc, dir)
	case "model_training":
		result = r.runModelTraining(ctx, uc, dir)
	case "model_evaluation":
		result = r.runModelEvaluation(ctx, uc, dir)
	case "ensemble_training":
		result = r.runEnsembleTraining(ctx, uc, dir)
	case "model_benchmarking":
		result = r.runModelBenchmarking(ctx, uc, dir)
	case "ai_governance_scoring":
		result = r.runGovernanceScoring(ctx, uc, dir)
	case "chunking":
		result = r.runChunking(ctx, uc, dir)
	case "embedding":
		result = r.runEmbedding(ctx, uc, dir)
	case "vector_db_ingestion":
		result = r.runVectorIngestion(ctx, uc, dir)
	case "rag_evaluation":
		result = r.runRAGEvaluation(ctx, uc, dir)
	case "report_generation":
		result = r.runReportGeneration(ctx, uc, dir)
	default:
		return fail("unknown subtask " + subtask)
	}

	if result.Status == scheduler.SubtaskOK {
		r.recordHash(dir, subtask)
	}
	return result
}

func (r *Runner) useCaseDir(useCaseKey string) string {
	return filepath.Join(r.cfg.PreprocessingOutputDir(), useCaseKey)
}

// canSkip reports whether the subtask's inputs are unchanged since its
// last success and every canonical output still exists.
func (r *Runner) canSkip(dir, subtask string) bool {
	entry, ok := subtaskIO[subtask]
	if !ok {
		return false
	}
	for _, output := range entry.outputs {
		if _, err := os.Stat(filepath.Join(dir, output)); err != nil {
			return false
		}
	}
	current, err := r.inputHash(dir, subtask)
	if err != nil {
		return false
	}
	recorded := r.loadHashes(dir)
	return recorded[subtask] != "" && recorded[subtask] == current
}

// inputHash combines the sha256 of every input file, in name order.
func (r *Runner) inputHash(dir, subtask string) (string, error) {
	entry := subtaskIO[subtask]
	inputs := append([]string(nil), entry.inputs...)
	sort.Strings(inputs)

	combined := sha256.New()
	for _, input := range inputs {
		f, err := os.Open(filepath.Join(dir, input))
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(combined, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
	}
	return hex.EncodeToString(combined.Sum(nil)), nil
}

func (r *Runner) recordHash(dir, subtask string) {
	current, err := r.inputHash(dir, subtask)
	if err != nil {
		return
	}
	hashes := r.loadHashes(dir)
	hashes[subtask] = current
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, hashManifest), data, 0644); err != nil {
		r.logger.Warn().Str("dir", dir).Err(err).Msg("Failed to record subtask input hash")
	}
}

func (r *Runner) loadHashes(dir string) map[string]string {
	hashes := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(dir, hashManifest))
	if err == nil {
		_ = json.Unmarshal(data, &hashes)
	}
	return hashes
}

func absPaths(dir string, names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out
}

func fail(message string) scheduler.SubtaskResult {
	return scheduler.SubtaskResult{Status: scheduler.SubtaskFail, Error: message}
}

func ok(artifacts []string, metrics map[string]float64) scheduler.SubtaskResult {
	return scheduler.SubtaskResult{
		Status:        scheduler.SubtaskOK,
		ArtifactPaths: artifacts,
		Metrics:       metrics,
	}
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
