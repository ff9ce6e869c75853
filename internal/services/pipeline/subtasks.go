package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/trutina/internal/chunker"
	"github.com/ternarybob/trutina/internal/dataframe"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/scheduler"
	"github.com/ternarybob/trutina/internal/services/training"
)

const splitSeed = 42

// benchmarkAlgorithms is the fixed roster trained by the ensemble and
// benchmarking stages.
var benchmarkAlgorithms = []string{
	training.AlgorithmLogisticRegression,
	training.AlgorithmRandomForest,
	training.AlgorithmGradientBoosting,
}

// modelPath is the canonical location of the pipeline-trained model for
// one use case and algorithm.
func (r *Runner) modelPath(uc *models.UseCase, algorithm string) string {
	return filepath.Join(r.cfg.ModelsDir(), fmt.Sprintf("pipeline_%s_%s.gob", uc.Key, algorithm))
}

// runDataSplit stages the source dataset and splits it 80/20. An uploaded
// file named after the use case wins over synthetic generation.
func (r *Runner) runDataSplit(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	sourcePath := filepath.Join(dir, "source.csv")
	if _, err := os.Stat(sourcePath); err != nil {
		uploaded := filepath.Join(r.cfg.UploadsDir(), uc.Key+".csv")
		if _, statErr := os.Stat(uploaded); statErr == nil {
			if copyErr := copyFile(uploaded, sourcePath); copyErr != nil {
				return fail("failed to stage uploaded dataset: " + copyErr.Error())
			}
			r.logger.Info().Str("use_case", uc.Key).Str("file", uploaded).Msg("Using uploaded dataset")
		} else if genErr := generateSyntheticCSV(uc, sourcePath); genErr != nil {
			return fail("failed to generate synthetic dataset: " + genErr.Error())
		}
	}

	frame, err := dataframe.LoadCSV(sourcePath, r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load source dataset: " + err.Error())
	}
	if frame.NumRows() < 10 {
		return fail(fmt.Sprintf("source dataset has only %d rows, need at least 10", frame.NumRows()))
	}

	testN := frame.NumRows() / 5
	if testN < 1 {
		testN = 1
	}
	indexes := rand.New(rand.NewSource(splitSeed)).Perm(frame.NumRows())
	testSet := make(map[int]bool, testN)
	for _, idx := range indexes[:testN] {
		testSet[idx] = true
	}

	trainRows := make([][]string, 0, frame.NumRows()-testN)
	testRows := make([][]string, 0, testN)
	for i, row := range frame.Rows {
		if testSet[i] {
			testRows = append(testRows, row)
		} else {
			trainRows = append(trainRows, row)
		}
	}

	if err := writeCSV(filepath.Join(dir, "train.csv"), frame.Columns, trainRows); err != nil {
		return fail("failed to write train split: " + err.Error())
	}
	if err := writeCSV(filepath.Join(dir, "test.csv"), frame.Columns, testRows); err != nil {
		return fail("failed to write test split: " + err.Error())
	}

	return ok(absPaths(dir, subtaskIO["data_split"].outputs), map[string]float64{
		"train_rows": float64(len(trainRows)),
		"test_rows":  float64(len(testRows)),
	})
}

// runNoiseRemoval drops IQR-fence outlier rows from the train split and
// writes the full preprocessing report: quality summary, column profiles,
// outlier counts, target distribution, top correlations and feature
// suggestions. The report also lands in the preprocessing database.
func (r *Runner) runNoiseRemoval(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	started := time.Now()
	frame, err := dataframe.LoadCSV(filepath.Join(dir, "train.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load train split: " + err.Error())
	}
	if !frame.HasColumn(uc.TargetColumn) {
		return fail(fmt.Sprintf("target column %q not present in dataset", uc.TargetColumn))
	}
	numeric := frame.NumericColumns(uc.TargetColumn)

	outlierRow := make([]bool, frame.NumRows())
	columnOutliers := make([]map[string]interface{}, 0, len(numeric))
	for _, name := range numeric {
		values := frame.NumericColumn(name)
		q1 := percentile(values, 0.25)
		q3 := percentile(values, 0.75)
		iqr := q3 - q1
		lower, upper := q1-1.5*iqr, q3+1.5*iqr

		count := 0
		for i, v := range values {
			if v < lower || v > upper {
				outlierRow[i] = true
				count++
			}
		}
		columnOutliers = append(columnOutliers, map[string]interface{}{
			"column":      name,
			"lower_fence": lower,
			"upper_fence": upper,
			"count":       count,
		})
	}

	kept := make([][]string, 0, frame.NumRows())
	dropped := 0
	for i, row := range frame.Rows {
		if outlierRow[i] {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	if len(kept) == 0 {
		return fail("every row was flagged as an outlier, refusing to empty the dataset")
	}
	if err := writeCSV(filepath.Join(dir, "train_clean.csv"), frame.Columns, kept); err != nil {
		return fail("failed to write cleaned split: " + err.Error())
	}

	profiles, missingCells := profileColumns(frame)
	totalCells := frame.NumRows() * len(frame.Columns)
	missingPct := 0.0
	if totalCells > 0 {
		missingPct = 100 * float64(missingCells) / float64(totalCells)
	}
	droppedPct := 100 * float64(dropped) / float64(frame.NumRows())
	quality := 100 - missingPct - droppedPct
	if quality < 0 {
		quality = 0
	}

	pairs := correlationPairs(frame, numeric)
	counts, imbalanced := targetCounts(frame, uc.TargetColumn)
	suggestions := featureSuggestions(frame, numeric, uc.TargetColumn)

	files := map[string]interface{}{
		"summary.json": map[string]interface{}{
			"use_case_key":       uc.Key,
			"label":              uc.Label,
			"data_quality_score": quality,
			"rows":               frame.NumRows(),
			"columns":            len(frame.Columns),
			"rows_dropped":       dropped,
			"missing_cells":      missingCells,
			"generated_at":       time.Now().UTC(),
		},
		"column_profiles.json": profiles,
		"outliers.json": map[string]interface{}{
			"columns":      columnOutliers,
			"rows_dropped": dropped,
		},
		"target_distribution.json": map[string]interface{}{
			"target_column": uc.TargetColumn,
			"counts":        counts,
			"imbalanced":    imbalanced,
		},
		"correlations.json":        pairs,
		"feature_engineering.json": suggestions,
	}
	for name, payload := range files {
		if err := writeJSON(filepath.Join(dir, name), payload); err != nil {
			return fail("failed to write " + name + ": " + err.Error())
		}
	}

	if r.preprocessing != nil {
		report := &models.PreprocessingReport{
			UseCaseKey:          uc.Key,
			Label:               uc.Label,
			DataQualityScore:    quality,
			ColumnProfiles:      profiles,
			OutlierSummary:      map[string]interface{}{"columns": columnOutliers, "rows_dropped": dropped},
			CorrelationTopPairs: pairs,
			TargetDistribution:  counts,
			FeatureSuggestions:  flattenSuggestions(suggestions),
			RunTimestamp:        time.Now().UTC(),
			ElapsedSeconds:      time.Since(started).Seconds(),
		}
		if _, err := r.preprocessing.SaveRun(ctx, report); err != nil {
			r.logger.Warn().Str("use_case", uc.Key).Err(err).Msg("Failed to persist preprocessing run")
		}
	}

	return ok(absPaths(dir, subtaskIO["noise_removal"].outputs), map[string]float64{
		"rows_dropped":       float64(dropped),
		"data_quality_score": quality,
	})
}

// runModelTraining fits the canonical random forest on the cleaned split
// and persists both the model artifact and the flattened metrics.
func (r *Runner) runModelTraining(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	frame, err := dataframe.LoadCSV(filepath.Join(dir, "train_clean.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load cleaned split: " + err.Error())
	}

	report, artifact, err := training.TrainFrame(frame, training.Request{
		Algorithm:    training.AlgorithmRandomForest,
		TargetColumn: uc.TargetColumn,
		TestSize:     0.2,
	}, nil)
	if err != nil {
		return fail("training failed: " + err.Error())
	}

	modelPath := r.modelPath(uc, training.AlgorithmRandomForest)
	if err := training.SaveModel(modelPath, artifact); err != nil {
		return fail("failed to persist model: " + err.Error())
	}

	payload := map[string]interface{}{
		"use_case_key":        uc.Key,
		"algorithm":           training.AlgorithmRandomForest,
		"model_path":          modelPath,
		"accuracy":            report.Accuracy,
		"precision":           report.Precision,
		"recall":              report.Recall,
		"f1":                  report.F1,
		"roc_auc":             report.ROCAUC,
		"classes":             report.Classes,
		"train_rows":          report.TrainRows,
		"test_rows":           report.TestRows,
		"confusion_matrix":    report.ConfusionMatrix,
		"feature_importances": report.FeatureImportances,
		"generated_at":        time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "training_results.json"), payload); err != nil {
		return fail("failed to write training results: " + err.Error())
	}

	return ok(absPaths(dir, subtaskIO["model_training"].outputs), map[string]float64{
		"accuracy": report.Accuracy,
		"f1":       report.F1,
	})
}

// runModelEvaluation scores the persisted model on the untouched holdout
// split, the rows neither training nor noise removal ever saw.
func (r *Runner) runModelEvaluation(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	artifact, err := training.LoadModel(r.modelPath(uc, training.AlgorithmRandomForest))
	if err != nil {
		return fail("failed to load model: " + err.Error())
	}
	frame, err := dataframe.LoadCSV(filepath.Join(dir, "test.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load test split: " + err.Error())
	}
	if !frame.HasColumn(uc.TargetColumn) {
		return fail(fmt.Sprintf("target column %q not present in test split", uc.TargetColumn))
	}

	labels, _, err := artifact.Predict(frame.Matrix(artifact.FeatureColumns))
	if err != nil {
		return fail("prediction failed: " + err.Error())
	}
	holdoutAccuracy := accuracyOf(labels, frame.Column(uc.TargetColumn))

	payload := map[string]interface{}{
		"use_case_key":     uc.Key,
		"algorithm":        artifact.Algorithm,
		"holdout_rows":     frame.NumRows(),
		"holdout_accuracy": holdoutAccuracy,
		"generated_at":     time.Now().UTC(),
	}
	var trained struct {
		Accuracy *float64 `json:"accuracy"`
	}
	if readJSONInto(filepath.Join(dir, "training_results.json"), &trained) == nil && trained.Accuracy != nil {
		payload["train_accuracy"] = *trained.Accuracy
		payload["accuracy_drop"] = *trained.Accuracy - holdoutAccuracy
	}
	if err := writeJSON(filepath.Join(dir, "evaluation.json"), payload); err != nil {
		return fail("failed to write evaluation: " + err.Error())
	}

	return ok(absPaths(dir, subtaskIO["model_evaluation"].outputs), map[string]float64{
		"holdout_accuracy": holdoutAccuracy,
	})
}

// runEnsembleTraining trains all three algorithms and majority-votes their
// holdout predictions. Ties break toward the random forest.
func (r *Runner) runEnsembleTraining(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	trainFrame, err := dataframe.LoadCSV(filepath.Join(dir, "train_clean.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load cleaned split: " + err.Error())
	}
	testFrame, err := dataframe.LoadCSV(filepath.Join(dir, "test.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load test split: " + err.Error())
	}
	actual := testFrame.Column(uc.TargetColumn)
	if actual == nil {
		return fail(fmt.Sprintf("target column %q not present in test split", uc.TargetColumn))
	}

	votes := make([][]string, 0, len(benchmarkAlgorithms))
	memberAccuracy := make(map[string]float64, len(benchmarkAlgorithms))
	for _, algorithm := range benchmarkAlgorithms {
		_, artifact, err := training.TrainFrame(trainFrame, training.Request{
			Algorithm:    algorithm,
			TargetColumn: uc.TargetColumn,
			TestSize:     0.2,
		}, nil)
		if err != nil {
			return fail(algorithm + " training failed: " + err.Error())
		}
		labels, _, err := artifact.Predict(testFrame.Matrix(artifact.FeatureColumns))
		if err != nil {
			return fail(algorithm + " prediction failed: " + err.Error())
		}
		votes = append(votes, labels)
		memberAccuracy[algorithm] = accuracyOf(labels, actual)
	}

	// index 1 is the random forest, the tie-breaker
	ensembleLabels := make([]string, len(actual))
	for i := range actual {
		tally := make(map[string]int, 3)
		for _, labels := range votes {
			tally[labels[i]]++
		}
		choice := votes[1][i]
		for _, labels := range votes {
			if tally[labels[i]] > tally[choice] {
				choice = labels[i]
			}
		}
		ensembleLabels[i] = choice
	}
	ensembleAccuracy := accuracyOf(ensembleLabels, actual)

	payload := map[string]interface{}{
		"use_case_key":      uc.Key,
		"members":           memberAccuracy,
		"ensemble_accuracy": ensembleAccuracy,
		"holdout_rows":      len(actual),
		"generated_at":      time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "ensemble_results.json"), payload); err != nil {
		return fail("failed to write ensemble results: " + err.Error())
	}

	return ok(absPaths(dir, subtaskIO["ensemble_training"].outputs), map[string]float64{
		"ensemble_accuracy": ensembleAccuracy,
	})
}

// runModelBenchmarking times and scores every algorithm on the same
// cleaned split and ranks them by test accuracy.
func (r *Runner) runModelBenchmarking(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	frame, err := dataframe.LoadCSV(filepath.Join(dir, "train_clean.csv"), r.cfg.Storage.SampleLimit)
	if err != nil {
		return fail("failed to load cleaned split: " + err.Error())
	}

	type row struct {
		Algorithm      string   `json:"algorithm"`
		Accuracy       float64  `json:"accuracy"`
		F1             float64  `json:"f1"`
		ROCAUC         *float64 `json:"roc_auc,omitempty"`
		ElapsedSeconds float64  `json:"elapsed_seconds"`
	}
	rows := make([]row, 0, len(benchmarkAlgorithms))
	for _, algorithm := range benchmarkAlgorithms {
		started := time.Now()
		report, _, err := training.TrainFrame(frame, training.Request{
			Algorithm:    algorithm,
			TargetColumn: uc.TargetColumn,
			TestSize:     0.2,
		}, nil)
		if err != nil {
			return fail(algorithm + " benchmark failed: " + err.Error())
		}
		rows = append(rows, row{
			Algorithm:      algorithm,
			Accuracy:       report.Accuracy,
			F1:             report.F1,
			ROCAUC:         report.ROCAUC,
			ElapsedSeconds: time.Since(started).Seconds(),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Accuracy > rows[j].Accuracy })

	payload := map[string]interface{}{
		"use_case_key": uc.Key,
		"results":      rows,
		"best":         rows[0].Algorithm,
		"generated_at": time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "benchmarking.json"), payload); err != nil {
		return fail("failed to write benchmark results: " + err.Error())
	}

	return ok(absPaths(dir, subtaskIO["model_benchmarking"].outputs), map[string]float64{
		"best_accuracy": rows[0].Accuracy,
	})
}

// runGovernanceScoring records the SR 11-7 risk assessment derived from
// the quality and training artifacts written by earlier stages.
func (r *Runner) runGovernanceScoring(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	assessment, err := r.regulatory.Assess(ctx, uc.Key)
	if err != nil {
		return fail("governance assessment failed: " + err.Error())
	}
	if err := writeJSON(filepath.Join(dir, "governance.json"), assessment); err != nil {
		return fail("failed to write governance assessment: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["ai_governance_scoring"].outputs), nil)
}

// runChunking renders the quality and training artifacts into a narrative
// and segments it for retrieval.
func (r *Runner) runChunking(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	text := artifactNarrative(uc, dir)
	if strings.TrimSpace(text) == "" {
		return fail("no artifacts available to chunk")
	}

	ck, err := chunker.New(chunker.StrategySentence, 200, 0, r.logger)
	if err != nil {
		return fail("failed to build chunker: " + err.Error())
	}
	chunks := ck.ChunkText(text, uc.Key+"_report")
	if len(chunks) == 0 {
		return fail("chunking produced no chunks")
	}
	for i := range chunks {
		chunks[i].Metadata["use_case"] = uc.Key
	}

	if err := writeJSON(filepath.Join(dir, "chunks.json"), chunks); err != nil {
		return fail("failed to write chunks: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["chunking"].outputs), map[string]float64{
		"chunks": float64(len(chunks)),
	})
}

// runEmbedding embeds every chunk, warming the read-through cache the
// ingestion stage hits next.
func (r *Runner) runEmbedding(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	var chunks []models.Chunk
	if err := readJSONInto(filepath.Join(dir, "chunks.json"), &chunks); err != nil {
		return fail("failed to read chunks: " + err.Error())
	}
	if len(chunks) == 0 {
		return fail("no chunks to embed")
	}

	dimension := 0
	for _, chunk := range chunks {
		vec, err := r.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fail("embedding failed: " + err.Error())
		}
		dimension = len(vec)
	}

	payload := map[string]interface{}{
		"use_case_key": uc.Key,
		"count":        len(chunks),
		"dimension":    dimension,
		"method":       r.embedder.MethodName(),
		"generated_at": time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "embedding_manifest.json"), payload); err != nil {
		return fail("failed to write embedding manifest: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["embedding"].outputs), map[string]float64{
		"embedded":  float64(len(chunks)),
		"dimension": float64(dimension),
	})
}

// runVectorIngestion rebuilds the use case's collection from the chunks.
// The collection is dropped first so re-runs never duplicate records.
func (r *Runner) runVectorIngestion(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	var chunks []models.Chunk
	if err := readJSONInto(filepath.Join(dir, "chunks.json"), &chunks); err != nil {
		return fail("failed to read chunks: " + err.Error())
	}
	if len(chunks) == 0 {
		return fail("no chunks to ingest")
	}
	if err := r.vectors.DeleteCollection(ctx, uc.Key); err != nil {
		return fail("failed to reset collection: " + err.Error())
	}

	records := make([]models.VectorRecord, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := r.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fail("embedding failed: " + err.Error())
		}
		records = append(records, models.VectorRecord{
			ChunkID:    chunk.ChunkID,
			Text:       chunk.Text,
			Metadata:   chunk.Metadata,
			Embedding:  vec,
			Collection: uc.Key,
			TokenCount: chunk.TokenCount,
		})
	}
	if err := r.vectors.Add(ctx, uc.Key, records); err != nil {
		return fail("vector store ingestion failed: " + err.Error())
	}

	payload := map[string]interface{}{
		"use_case_key": uc.Key,
		"collection":   uc.Key,
		"records":      len(records),
		"generated_at": time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "ingestion.json"), payload); err != nil {
		return fail("failed to write ingestion manifest: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["vector_db_ingestion"].outputs), map[string]float64{
		"records": float64(len(records)),
	})
}

// runRAGEvaluation runs canned questions against the freshly ingested
// collection and records the answer quality scores.
func (r *Runner) runRAGEvaluation(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	queries := []string{
		fmt.Sprintf("What is the model accuracy for %s?", uc.Label),
		fmt.Sprintf("How is the data quality for %s?", uc.Label),
	}

	type outcome struct {
		Query    string                   `json:"query"`
		Answered bool                     `json:"answered"`
		Cached   bool                     `json:"cached"`
		Sources  int                      `json:"sources"`
		Scores   *models.EvaluationScores `json:"scores,omitempty"`
	}
	outcomes := make([]outcome, 0, len(queries))
	relevanceSum, scored := 0.0, 0
	for _, query := range queries {
		response, err := r.rag.Query(ctx, query, uc.Key)
		if err != nil {
			return fail("rag query failed: " + err.Error())
		}
		outcomes = append(outcomes, outcome{
			Query:    query,
			Answered: !response.NoResults && response.Error == "",
			Cached:   response.Cached,
			Sources:  len(response.Sources),
			Scores:   response.Scores,
		})
		if response.Scores != nil {
			relevanceSum += response.Scores.Relevance
			scored++
		}
	}

	payload := map[string]interface{}{
		"use_case_key": uc.Key,
		"queries":      outcomes,
		"generated_at": time.Now().UTC(),
	}
	metrics := map[string]float64{"queries": float64(len(outcomes))}
	if scored > 0 {
		mean := relevanceSum / float64(scored)
		payload["mean_relevance"] = mean
		metrics["mean_relevance"] = mean
	}
	if err := writeJSON(filepath.Join(dir, "rag_evaluation.json"), payload); err != nil {
		return fail("failed to write rag evaluation: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["rag_evaluation"].outputs), metrics)
}

// runReportGeneration merges the stage artifacts into the full report the
// export endpoints read.
func (r *Runner) runReportGeneration(ctx context.Context, uc *models.UseCase, dir string) scheduler.SubtaskResult {
	sections := make(map[string]json.RawMessage)
	for _, name := range []string{"summary", "training_results", "evaluation"} {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil || !json.Valid(data) {
			continue
		}
		sections[name] = data
	}
	if len(sections) == 0 {
		return fail("no section artifacts available for the report")
	}

	payload := map[string]interface{}{
		"use_case_key": uc.Key,
		"label":        uc.Label,
		"sections":     sections,
		"generated_at": time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, "full_report.json"), payload); err != nil {
		return fail("failed to write full report: " + err.Error())
	}
	return ok(absPaths(dir, subtaskIO["report_generation"].outputs), map[string]float64{
		"sections": float64(len(sections)),
	})
}

// artifactNarrative renders the scalar fields of the quality and training
// artifacts into plain sentences the retrieval layer can index.
func artifactNarrative(uc *models.UseCase, dir string) string {
	var b strings.Builder
	sources := []struct {
		file  string
		title string
	}{
		{"summary.json", "Data quality summary for " + uc.Label},
		{"training_results.json", "Model training results for " + uc.Label},
	}
	for _, source := range sources {
		var payload map[string]interface{}
		if readJSONInto(filepath.Join(dir, source.file), &payload) != nil {
			continue
		}
		b.WriteString(source.title + ". ")

		keys := make([]string, 0, len(payload))
		for key := range payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			spoken := strings.ReplaceAll(key, "_", " ")
			switch v := payload[key].(type) {
			case string:
				fmt.Fprintf(&b, "The %s is %s. ", spoken, v)
			case float64:
				fmt.Fprintf(&b, "The %s is %s. ", spoken, strconv.FormatFloat(v, 'g', 6, 64))
			case bool:
				fmt.Fprintf(&b, "The %s is %t. ", spoken, v)
			}
		}
	}
	return b.String()
}

// profileColumns infers per-column dtype, null and cardinality counts, and
// returns the total number of empty cells.
func profileColumns(frame *dataframe.Frame) ([]models.ColumnProfile, int) {
	profiles := make([]models.ColumnProfile, 0, len(frame.Columns))
	missing := 0
	for _, name := range frame.Columns {
		values := frame.Column(name)
		nonNull, nulls := 0, 0
		unique := make(map[string]struct{})
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				nulls++
				continue
			}
			nonNull++
			unique[v] = struct{}{}
		}
		missing += nulls

		dtype := "categorical"
		if frame.IsNumeric(name) {
			dtype = "numeric"
		}
		profiles = append(profiles, models.ColumnProfile{
			Name:      name,
			Dtype:     dtype,
			NonNull:   nonNull,
			NullCount: nulls,
			Unique:    len(unique),
		})
	}
	return profiles, missing
}

// correlationPairs computes Pearson r for every numeric pair, strongest
// absolute correlations first, capped at ten pairs.
func correlationPairs(frame *dataframe.Frame, numeric []string) []models.CorrelationPair {
	columns := make(map[string][]float64, len(numeric))
	for _, name := range numeric {
		columns[name] = frame.NumericColumn(name)
	}

	var pairs []models.CorrelationPair
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			pairs = append(pairs, models.CorrelationPair{
				ColumnA:     numeric[i],
				ColumnB:     numeric[j],
				Correlation: pearson(columns[numeric[i]], columns[numeric[j]]),
			})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})
	if len(pairs) > 10 {
		pairs = pairs[:10]
	}
	return pairs
}

func targetCounts(frame *dataframe.Frame, targetColumn string) (map[string]int, bool) {
	counts := make(map[string]int)
	for _, v := range frame.Column(targetColumn) {
		counts[v]++
	}
	minority := math.MaxInt
	for _, c := range counts {
		if c < minority {
			minority = c
		}
	}
	imbalanced := len(counts) > 1 && float64(minority)/float64(frame.NumRows()) < 0.1
	return counts, imbalanced
}

// featureSuggestions flags constant columns, heavy skew, near-duplicate
// numeric pairs and categorical encodings.
func featureSuggestions(frame *dataframe.Frame, numeric []string, targetColumn string) []map[string]string {
	var suggestions []map[string]string
	numericSet := make(map[string]struct{}, len(numeric))
	for _, name := range numeric {
		numericSet[name] = struct{}{}
	}

	for _, name := range numeric {
		values := frame.NumericColumn(name)
		mean, std := meanStd(values)
		if std < 1e-12 {
			suggestions = append(suggestions, map[string]string{
				"column": name, "suggestion": "drop", "reason": "constant column carries no signal",
			})
			continue
		}
		if math.Abs(skewness(values, mean, std)) > 2 {
			suggestions = append(suggestions, map[string]string{
				"column": name, "suggestion": "log_transform", "reason": "heavy skew",
			})
		}
	}

	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			if math.Abs(pearson(frame.NumericColumn(numeric[i]), frame.NumericColumn(numeric[j]))) > 0.95 {
				suggestions = append(suggestions, map[string]string{
					"column": numeric[j], "suggestion": "drop_correlated", "reason": "near-duplicate of " + numeric[i],
				})
			}
		}
	}

	for _, name := range frame.Columns {
		if name == targetColumn {
			continue
		}
		if _, isNumeric := numericSet[name]; isNumeric {
			continue
		}
		unique := make(map[string]struct{})
		for _, v := range frame.Column(name) {
			unique[v] = struct{}{}
		}
		if len(unique) > 50 {
			suggestions = append(suggestions, map[string]string{
				"column": name, "suggestion": "hash_encode", "reason": "high-cardinality categorical",
			})
		} else if len(unique) > 1 {
			suggestions = append(suggestions, map[string]string{
				"column": name, "suggestion": "one_hot_encode", "reason": "low-cardinality categorical",
			})
		}
	}
	return suggestions
}

func flattenSuggestions(suggestions []map[string]string) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, fmt.Sprintf("%s: %s (%s)", s["column"], s["suggestion"], s["reason"]))
	}
	return out
}

func accuracyOf(predicted, actual []string) float64 {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return 0
	}
	correct := 0
	for i := range predicted {
		if predicted[i] == strings.TrimSpace(actual[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(predicted))
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

func skewness(values []float64, mean, std float64) float64 {
	if len(values) == 0 || std < 1e-12 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := (v - mean) / std
		sum += d * d * d
	}
	return sum / float64(len(values))
}

// percentile interpolates linearly on a sorted copy.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p * float64(len(sorted)-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	meanA, stdA := meanStd(a)
	meanB, stdB := meanStd(b)
	if stdA < 1e-12 || stdB < 1e-12 {
		return 0
	}
	cov := 0.0
	for i := range a {
		cov += (a[i] - meanA) * (b[i] - meanB)
	}
	return cov / (float64(n) * stdA * stdB)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readJSONInto(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
