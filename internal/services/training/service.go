// Package training runs supervised classification jobs over uploaded
// datasets: load, split, fit, evaluate, persist the fitted model.
package training

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/dataframe"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

const (
	AlgorithmLogisticRegression = "logistic_regression"
	AlgorithmRandomForest       = "random_forest"
	AlgorithmGradientBoosting   = "gradient_boosting"
)

// Request describes one training job.
type Request struct {
	DatasetID    int64   `json:"dataset_id"`
	Algorithm    string  `json:"algorithm"`
	TargetColumn string  `json:"target_column"`
	TestSize     float64 `json:"test_size,omitempty"`
}

// ModelArtifact is the gob-serialized form of a fitted model. Exactly one
// of the model fields is non-nil, matching Algorithm.
type ModelArtifact struct {
	Algorithm      string
	FeatureColumns []string
	Classes        []string
	LogReg         *LogisticRegression
	Forest         *RandomForest
	Boosting       *GradientBoosting
}

type classifier interface {
	fit(X [][]float64, y []int)
	predict(X [][]float64) []int
	predictProba(X [][]float64) [][]float64
	featureImportances() []float64
}

// Service executes training jobs against the job and dataset repositories.
type Service struct {
	datasets interfaces.DatasetStorage
	jobs     interfaces.JobStorage
	cfg      *common.Config
	logger   arbor.ILogger
}

func NewService(datasets interfaces.DatasetStorage, jobs interfaces.JobStorage, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{datasets: datasets, jobs: jobs, cfg: cfg, logger: logger}
}

// Start validates the request, queues a training job and runs it on a
// background goroutine. Returns the queued job immediately.
func (s *Service) Start(ctx context.Context, req Request) (*models.Job, error) {
	if err := validateAlgorithm(req.Algorithm); err != nil {
		return nil, err
	}
	if req.TargetColumn == "" {
		return nil, apperr.Validation("target_column is required")
	}
	if req.TestSize <= 0 || req.TestSize >= 1 {
		req.TestSize = 0.2
	}
	if _, err := s.datasets.Get(ctx, req.DatasetID); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindModel, "failed to encode training config")
	}
	job, err := s.jobs.Create(ctx, "training", string(configJSON))
	if err != nil {
		return nil, err
	}

	go s.run(job.ID, req)
	return job, nil
}

// run executes the full procedure for one queued job and records the
// outcome on the job row.
func (s *Service) run(jobID int64, req Request) {
	ctx := context.Background()
	log := s.logger.WithCorrelationId(common.NewRunID())

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusRunning, ""); err != nil {
		log.Error().Int64("job_id", jobID).Err(err).Msg("Failed to mark training job running")
		return
	}

	report, err := s.execute(ctx, jobID, req)
	if err != nil {
		if cancelled, checkErr := s.isCancelled(ctx, jobID); checkErr == nil && cancelled {
			log.Info().Int64("job_id", jobID).Msg("Training job cancelled")
			return
		}
		if statusErr := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusFailed, err.Error()); statusErr != nil {
			log.Warn().Int64("job_id", jobID).Err(statusErr).Msg("Failed to mark training job failed")
		}
		log.Warn().Int64("job_id", jobID).Err(err).Msg("Training job failed")
		return
	}

	resultJSON, err := json.Marshal(report)
	if err != nil {
		log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to encode training result")
	} else if resultErr := s.jobs.UpdateResult(ctx, jobID, string(resultJSON)); resultErr != nil {
		log.Warn().Int64("job_id", jobID).Err(resultErr).Msg("Failed to persist training result")
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCompleted, ""); err != nil {
		log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to mark training job completed")
		return
	}
	log.Info().Int64("job_id", jobID).Str("algorithm", req.Algorithm).
		Float64("accuracy", report.Accuracy).Msg("Training job completed")
}

// execute runs the numbered training procedure. Cancellation is observed
// only between stages.
func (s *Service) execute(ctx context.Context, jobID int64, req Request) (*EvaluationReport, error) {
	dataset, err := s.datasets.Get(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	frame, err := dataframe.LoadCSV(dataset.FilePath, s.cfg.Storage.SampleLimit)
	if err != nil {
		return nil, err
	}

	report, model, err := TrainFrame(frame, req, func(progress int) {
		if cancelled, err := s.isCancelled(ctx, jobID); err == nil && cancelled {
			return
		}
		if err := s.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
			s.logger.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to update training progress")
		}
	})
	if err != nil {
		return nil, err
	}
	if cancelled, err := s.isCancelled(ctx, jobID); err != nil || cancelled {
		return nil, apperr.Model("training cancelled")
	}

	if err := s.persistModel(jobID, req.Algorithm, model); err != nil {
		return nil, err
	}
	return report, nil
}

// TrainFrame runs split, fit and evaluation on an already loaded frame.
// Used both by training jobs and the pipeline's model_training subtask.
// progress, when non-nil, is called with 30 after the split and 70 after
// the fit.
func TrainFrame(frame *dataframe.Frame, req Request, progress func(int)) (*EvaluationReport, *ModelArtifact, error) {
	if err := validateAlgorithm(req.Algorithm); err != nil {
		return nil, nil, err
	}
	if !frame.HasColumn(req.TargetColumn) {
		return nil, nil, apperr.Validation("target column %q not found in dataset", req.TargetColumn)
	}
	featureColumns := frame.NumericColumns(req.TargetColumn)
	if len(featureColumns) == 0 {
		return nil, nil, apperr.Data("no numeric feature columns remain after dropping the target")
	}

	classes, y := encodeLabels(frame.Column(req.TargetColumn))
	if len(classes) < 2 {
		return nil, nil, apperr.Data("target column %q has fewer than two classes", req.TargetColumn)
	}
	X := frame.Matrix(featureColumns)

	testSize := req.TestSize
	if testSize <= 0 || testSize >= 1 {
		testSize = 0.2
	}
	trainX, testX, trainY, testY := trainTestSplit(X, y, testSize)
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, nil, apperr.Data("dataset too small to split with test_size %.2f", testSize)
	}
	if progress != nil {
		progress(30)
	}

	model := newClassifier(req.Algorithm)
	model.fit(trainX, trainY)
	if progress != nil {
		progress(70)
	}

	predictions := model.predict(testX)
	accuracy, precision, recall, f1, confusion := evaluate(testY, predictions, len(classes))

	report := &EvaluationReport{
		Accuracy:        accuracy,
		Precision:       precision,
		Recall:          recall,
		F1:              f1,
		ConfusionMatrix: confusion,
		Classes:         classes,
		TrainRows:       len(trainX),
		TestRows:        len(testX),
	}
	if len(classes) == 2 {
		probas := model.predictProba(testX)
		positive := make([]float64, len(probas))
		for i, proba := range probas {
			positive[i] = proba[1]
		}
		auc := rocAUC(testY, positive)
		report.ROCAUC = &auc
	}
	if importances := model.featureImportances(); importances != nil {
		report.FeatureImportances = make(map[string]float64, len(featureColumns))
		for i, col := range featureColumns {
			report.FeatureImportances[col] = importances[i]
		}
	}

	artifact := &ModelArtifact{
		Algorithm:      req.Algorithm,
		FeatureColumns: featureColumns,
		Classes:        classes,
	}
	switch m := model.(type) {
	case *LogisticRegression:
		artifact.LogReg = m
	case *RandomForest:
		artifact.Forest = m
	case *GradientBoosting:
		artifact.Boosting = m
	}
	return report, artifact, nil
}

func (a *ModelArtifact) model() (classifier, error) {
	switch {
	case a.LogReg != nil:
		return a.LogReg, nil
	case a.Forest != nil:
		return a.Forest, nil
	case a.Boosting != nil:
		return a.Boosting, nil
	}
	return nil, apperr.Model("model artifact carries no fitted model")
}

// Predict scores a feature matrix and returns decoded class labels with
// per-row positive-class probabilities where available.
func (a *ModelArtifact) Predict(X [][]float64) ([]string, [][]float64, error) {
	model, err := a.model()
	if err != nil {
		return nil, nil, err
	}
	labels := model.predict(X)
	decoded := make([]string, len(labels))
	for i, label := range labels {
		if label >= 0 && label < len(a.Classes) {
			decoded[i] = a.Classes[label]
		}
	}
	return decoded, model.predictProba(X), nil
}

// ModelPath returns the canonical artifact location for a job.
func (s *Service) ModelPath(jobID int64, algorithm string) string {
	return filepath.Join(s.cfg.ModelsDir(), fmt.Sprintf("job_%d_%s.gob", jobID, algorithm))
}

func (s *Service) persistModel(jobID int64, algorithm string, artifact *ModelArtifact) error {
	return SaveModel(s.ModelPath(jobID, algorithm), artifact)
}

// SaveModel gob-encodes a model artifact to path, creating the parent
// directory as needed.
func SaveModel(path string, artifact *ModelArtifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.Wrap(err, apperr.KindModel, "failed to create models directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(err, apperr.KindModel, "failed to create model file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(artifact); err != nil {
		return apperr.Wrap(err, apperr.KindModel, "failed to serialize model")
	}
	return nil
}

// LoadModel reads a persisted model artifact back from disk.
func LoadModel(path string) (*ModelArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("model file not found: %s", filepath.Base(path))
		}
		return nil, apperr.Wrap(err, apperr.KindModel, "failed to open model file")
	}
	defer f.Close()
	var artifact ModelArtifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return nil, apperr.Wrap(err, apperr.KindModel, "failed to decode model file")
	}
	return &artifact, nil
}

func (s *Service) isCancelled(ctx context.Context, jobID int64) (bool, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == models.JobStatusCancelled, nil
}

func newClassifier(algorithm string) classifier {
	switch algorithm {
	case AlgorithmLogisticRegression:
		return newLogisticRegression()
	case AlgorithmRandomForest:
		return newRandomForest(randomState)
	default:
		return newGradientBoosting()
	}
}

func validateAlgorithm(algorithm string) error {
	switch algorithm {
	case AlgorithmLogisticRegression, AlgorithmRandomForest, AlgorithmGradientBoosting:
		return nil
	}
	return apperr.Validation("unsupported algorithm %q, expected one of %s, %s, %s",
		algorithm, AlgorithmLogisticRegression, AlgorithmRandomForest, AlgorithmGradientBoosting)
}

func encodeLabels(raw []string) ([]string, []int) {
	seen := make(map[string]struct{})
	for _, v := range raw {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	y := make([]int, len(raw))
	for i, v := range raw {
		y[i] = index[v]
	}
	return classes, y
}
