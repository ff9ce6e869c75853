package scheduler

import "context"

// Plan is the ordered subtask sequence executed for every use case.
// Order matters: each subtask consumes artifacts of its predecessors.
var Plan = []string{
	"data_split",
	"noise_removal",
	"model_training",
	"model_evaluation",
	"ensemble_training",
	"model_benchmarking",
	"ai_governance_scoring",
	"chunking",
	"embedding",
	"vector_db_ingestion",
	"rag_evaluation",
	"report_generation",
}

// Subtask outcome statuses. A skip counts as success and reuses the
// previously recorded artifacts.
const (
	SubtaskOK   = "ok"
	SubtaskSkip = "skip"
	SubtaskFail = "fail"
)

// SubtaskResult is the uniform return of every subtask.
type SubtaskResult struct {
	Status        string             `json:"status"`
	ArtifactPaths []string           `json:"artifact_paths,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// Runner executes one named subtask for one use case, receiving the
// artifact paths accumulated by its predecessors.
type Runner interface {
	RunSubtask(ctx context.Context, subtask, useCaseKey string, priorArtifacts []string) SubtaskResult
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, subtask, useCaseKey string, priorArtifacts []string) SubtaskResult

func (f RunnerFunc) RunSubtask(ctx context.Context, subtask, useCaseKey string, priorArtifacts []string) SubtaskResult {
	return f(ctx, subtask, useCaseKey, priorArtifacts)
}
