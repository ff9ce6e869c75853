package regulatory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	return NewService(cfg, arbor.NewLogger())
}

func writeMetrics(t *testing.T, s *Service, useCase string, quality, accuracy float64) {
	t.Helper()
	dir := filepath.Join(s.cfg.PreprocessingOutputDir(), useCase)
	require.NoError(t, os.MkdirAll(dir, 0755))

	summary, _ := json.Marshal(map[string]float64{"data_quality_score": quality})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), summary, 0644))
	training, _ := json.Marshal(map[string]float64{"accuracy": accuracy})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "training_results.json"), training, 0644))
}

func TestSensitiveDomainAlwaysHigh(t *testing.T) {
	service := newTestService(t)
	writeMetrics(t, service, "fraud_detection", 99, 0.99)

	assessment, err := service.Assess(context.Background(), "fraud_detection")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, assessment.RiskTier, "fraud is sensitive regardless of metrics")
	assert.NotEmpty(t, assessment.Factors)
}

func TestAccuracyThresholds(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	writeMetrics(t, service, "churn_prediction", 95, 0.80)
	assessment, err := service.Assess(ctx, "churn_prediction")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, assessment.RiskTier, "accuracy below 0.85")

	writeMetrics(t, service, "churn_prediction", 95, 0.90)
	assessment, err = service.Assess(ctx, "churn_prediction")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, assessment.RiskTier, "accuracy below 0.92")

	writeMetrics(t, service, "churn_prediction", 95, 0.95)
	assessment, err = service.Assess(ctx, "churn_prediction")
	require.NoError(t, err)
	assert.Equal(t, RiskLow, assessment.RiskTier)
}

func TestQualityThresholdsEscalateOnly(t *testing.T) {
	service := newTestService(t)
	writeMetrics(t, service, "loan_approval", 85, 0.95)

	assessment, err := service.Assess(context.Background(), "loan_approval")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, assessment.RiskTier, "quality below 90")

	writeMetrics(t, service, "loan_approval", 70, 0.95)
	assessment, err = service.Assess(context.Background(), "loan_approval")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, assessment.RiskTier, "quality below 80")
}

func TestAssessUnknownUseCase(t *testing.T) {
	service := newTestService(t)
	_, err := service.Assess(context.Background(), "nonexistent")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestInventoryAndCompliance(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	writeMetrics(t, service, "credit_scoring", 95, 0.95)

	inventory, err := service.Inventory(ctx)
	require.NoError(t, err)
	assert.Len(t, inventory, 6, "every registered use case appears")

	byKey := make(map[string]InventoryEntry)
	for _, entry := range inventory {
		byKey[entry.UseCaseKey] = entry
	}
	assert.True(t, byKey["credit_scoring"].HasModel)
	assert.False(t, byKey["churn_prediction"].HasModel, "no artifacts means no model")
	assert.Equal(t, RiskHigh, byKey["fraud_detection"].RiskTier)
	assert.Equal(t, RiskHigh, byKey["aml_monitoring"].RiskTier)

	summary, err := service.Compliance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.TotalModels)
	assert.Contains(t, summary.HighRisk, "fraud_detection")
	assert.Contains(t, summary.HighRisk, "aml_monitoring")
	total := 0
	for _, count := range summary.ByTier {
		total += count
	}
	assert.Equal(t, 6, total)
}
