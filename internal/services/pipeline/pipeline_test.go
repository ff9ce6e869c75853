package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/scheduler"
	"github.com/ternarybob/trutina/internal/services/embeddings"
	"github.com/ternarybob/trutina/internal/services/rag"
	"github.com/ternarybob/trutina/internal/services/regulatory"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

func newTestRunner(t *testing.T) (*Runner, *common.Config) {
	t.Helper()
	logger := arbor.NewLogger()

	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	require.NoError(t, cfg.EnsureDirs())

	db, err := sqlite.NewSQLiteDB(cfg.PreprocessingDBPath(), logger, sqlite.MigratePreprocessing)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	preprocessing := sqlite.NewPreprocessingStorage(db, logger)

	vectors, err := vectorstore.NewDenseStore(cfg.VectorStoreDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	embedder := embeddings.NewService(nil, cfg.RAG.EmbeddingDim, nil, logger)
	ragService := rag.NewService(vectors, embedder, nil, nil, &cfg.RAG, logger)
	regulatoryService := regulatory.NewService(cfg, logger)

	return NewRunner(cfg, preprocessing, vectors, embedder, ragService, regulatoryService, logger), cfg
}

// writeSmallSource stages a compact, cleanly separable dataset so the
// training stages stay fast. The label is 1 exactly when x exceeds 10.
func writeSmallSource(t *testing.T, cfg *common.Config, uc *models.UseCase) {
	t.Helper()
	dir := filepath.Join(cfg.PreprocessingOutputDir(), uc.Key)
	require.NoError(t, os.MkdirAll(dir, 0755))

	regions := []string{"north", "south", "east", "west"}
	var b strings.Builder
	fmt.Fprintf(&b, "x,y,region,%s\n", uc.TargetColumn)
	for i := 0; i < 160; i++ {
		x := i % 20
		y := (i * 7) % 13
		label := 0
		if x > 10 {
			label = 1
		}
		fmt.Fprintf(&b, "%d,%d,%s,%d\n", x, y, regions[i%len(regions)], label)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "source.csv"), []byte(b.String()), 0644))
}

func runAll(t *testing.T, runner *Runner, useCaseKey string) {
	t.Helper()
	for _, subtask := range scheduler.Plan {
		result := runner.RunSubtask(context.Background(), subtask, useCaseKey, nil)
		require.Equal(t, scheduler.SubtaskOK, result.Status,
			"subtask %s: %s", subtask, result.Error)
		assert.NotEmpty(t, result.ArtifactPaths, "subtask %s reports its artifacts", subtask)
	}
}

func TestFullPipelineRun(t *testing.T) {
	runner, cfg := newTestRunner(t)
	uc, _ := models.FindUseCase("fraud_detection")
	writeSmallSource(t, cfg, uc)

	runAll(t, runner, uc.Key)

	dir := filepath.Join(cfg.PreprocessingOutputDir(), uc.Key)
	for _, io := range subtaskIO {
		for _, output := range io.outputs {
			_, err := os.Stat(filepath.Join(dir, output))
			assert.NoError(t, err, "canonical output %s exists", output)
		}
	}

	var trained struct {
		Accuracy float64  `json:"accuracy"`
		Classes  []string `json:"classes"`
	}
	require.NoError(t, readJSONInto(filepath.Join(dir, "training_results.json"), &trained))
	assert.Greater(t, trained.Accuracy, 0.8, "separable dataset trains well")
	assert.Equal(t, []string{"0", "1"}, trained.Classes)

	var evaluation struct {
		HoldoutAccuracy float64 `json:"holdout_accuracy"`
		HoldoutRows     int     `json:"holdout_rows"`
	}
	require.NoError(t, readJSONInto(filepath.Join(dir, "evaluation.json"), &evaluation))
	assert.Equal(t, 32, evaluation.HoldoutRows, "20 percent of 160 rows")
	assert.Greater(t, evaluation.HoldoutAccuracy, 0.8)

	stats, err := runner.vectors.Stats(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stats[uc.Key].Records, 0, "collection was ingested")

	run, err := runner.preprocessing.LatestRun(context.Background(), uc.Key)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Greater(t, run.DataQualityScore, 0.0)
}

func TestSecondRunSkips(t *testing.T) {
	runner, cfg := newTestRunner(t)
	uc, _ := models.FindUseCase("credit_scoring")
	writeSmallSource(t, cfg, uc)

	runAll(t, runner, uc.Key)

	for _, subtask := range scheduler.Plan {
		result := runner.RunSubtask(context.Background(), subtask, uc.Key, nil)
		assert.Equal(t, scheduler.SubtaskSkip, result.Status,
			"subtask %s skips when inputs are unchanged", subtask)
		assert.NotEmpty(t, result.ArtifactPaths, "skips still report artifacts")
	}
}

func TestChangedInputReruns(t *testing.T) {
	runner, cfg := newTestRunner(t)
	uc, _ := models.FindUseCase("loan_approval")
	writeSmallSource(t, cfg, uc)
	runAll(t, runner, uc.Key)

	// appending a row changes the train.csv hash, so noise_removal must
	// run again instead of skipping
	trainPath := filepath.Join(cfg.PreprocessingOutputDir(), uc.Key, "train.csv")
	f, err := os.OpenFile(trainPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("3,4,north,0\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result := runner.RunSubtask(context.Background(), "noise_removal", uc.Key, nil)
	assert.Equal(t, scheduler.SubtaskOK, result.Status, result.Error)
}

func TestMissingOutputForcesRerun(t *testing.T) {
	runner, cfg := newTestRunner(t)
	uc, _ := models.FindUseCase("churn_prediction")
	writeSmallSource(t, cfg, uc)

	ctx := context.Background()
	require.Equal(t, scheduler.SubtaskOK, runner.RunSubtask(ctx, "data_split", uc.Key, nil).Status)
	require.NoError(t, os.Remove(filepath.Join(cfg.PreprocessingOutputDir(), uc.Key, "test.csv")))

	result := runner.RunSubtask(ctx, "data_split", uc.Key, nil)
	assert.Equal(t, scheduler.SubtaskOK, result.Status, "absent canonical output disables the skip")
}

func TestUnknownUseCaseFails(t *testing.T) {
	runner, _ := newTestRunner(t)
	result := runner.RunSubtask(context.Background(), "data_split", "nonexistent", nil)
	assert.Equal(t, scheduler.SubtaskFail, result.Status)
	assert.Contains(t, result.Error, "unknown use case")
}

func TestSubtaskWithoutInputsFails(t *testing.T) {
	runner, _ := newTestRunner(t)
	result := runner.RunSubtask(context.Background(), "model_training", "aml_monitoring", nil)
	assert.Equal(t, scheduler.SubtaskFail, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestSyntheticGenerationIsDeterministic(t *testing.T) {
	uc, _ := models.FindUseCase("fraud_detection")
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")
	require.NoError(t, generateSyntheticCSV(uc, first))
	require.NoError(t, generateSyntheticCSV(uc, second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same key seeds the same dataset")

	header := strings.SplitN(string(a), "\n", 2)[0]
	assert.True(t, strings.HasSuffix(header, ","+uc.TargetColumn))
}
