package alerting

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, interfaces.AlertStorage, *common.Config) {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()

	db, err := sqlite.NewSQLiteDB(filepath.Join(cfg.Storage.BaseDir, "admin.db"), logger, sqlite.MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	alerts := sqlite.NewAlertStorage(db, logger)
	audit := sqlite.NewAuditStorage(db, logger)

	return NewService(alerts, audit, cfg, logger), alerts, cfg
}

func writeArtifact(t *testing.T, cfg *common.Config, useCase, file string, payload map[string]interface{}) {
	t.Helper()
	dir := filepath.Join(cfg.PreprocessingOutputDir(), useCase)
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0644))
}

func TestCheckFiresOnLowAccuracy(t *testing.T) {
	service, alerts, cfg := newTestService(t)
	ctx := context.Background()

	writeArtifact(t, cfg, "fraud_detection", "training_results.json",
		map[string]interface{}{"accuracy": 0.71, "f1": 0.69})
	writeArtifact(t, cfg, "credit_scoring", "training_results.json",
		map[string]interface{}{"accuracy": 0.97})

	id, err := alerts.Create(ctx, &models.Alert{
		Name: "low accuracy", Metric: "accuracy", Threshold: 0.9,
		Operator: "<", UseCase: "all", Severity: "critical", Enabled: true,
	})
	require.NoError(t, err)

	firings, err := service.Check(ctx)
	require.NoError(t, err)
	require.Len(t, firings, 1)
	assert.Equal(t, "fraud_detection", firings[0].UseCase)
	assert.InDelta(t, 0.71, firings[0].Value, 1e-9)

	updated, err := alerts.Get(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastTriggered, "firing stamps last_triggered")
}

func TestCheckScopedToOneUseCase(t *testing.T) {
	service, alerts, cfg := newTestService(t)
	ctx := context.Background()

	writeArtifact(t, cfg, "fraud_detection", "summary.json",
		map[string]interface{}{"data_quality_score": 55.0})
	writeArtifact(t, cfg, "credit_scoring", "summary.json",
		map[string]interface{}{"data_quality_score": 45.0})

	_, err := alerts.Create(ctx, &models.Alert{
		Name: "quality floor", Metric: "data_quality_score", Threshold: 60,
		Operator: "<", UseCase: "credit_scoring", Severity: "warning", Enabled: true,
	})
	require.NoError(t, err)

	firings, err := service.Check(ctx)
	require.NoError(t, err)
	require.Len(t, firings, 1)
	assert.Equal(t, "credit_scoring", firings[0].UseCase)
}

func TestCheckIgnoresDisabledRulesAndMissingMetrics(t *testing.T) {
	service, alerts, cfg := newTestService(t)
	ctx := context.Background()

	writeArtifact(t, cfg, "fraud_detection", "training_results.json",
		map[string]interface{}{"accuracy": 0.5})

	_, err := alerts.Create(ctx, &models.Alert{
		Name: "disabled", Metric: "accuracy", Threshold: 0.9,
		Operator: "<", UseCase: "all", Severity: "critical", Enabled: false,
	})
	require.NoError(t, err)
	_, err = alerts.Create(ctx, &models.Alert{
		Name: "no psi artifact", Metric: "psi", Threshold: 0.25,
		Operator: ">", UseCase: "all", Severity: "warning", Enabled: true,
	})
	require.NoError(t, err)

	firings, err := service.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, firings)
}

func TestCheckWithoutArtifactsReturnsNothing(t *testing.T) {
	service, alerts, _ := newTestService(t)
	ctx := context.Background()

	_, err := alerts.Create(ctx, &models.Alert{
		Name: "anything", Metric: "accuracy", Threshold: 0.9,
		Operator: "<", UseCase: "all", Severity: "info", Enabled: true,
	})
	require.NoError(t, err)

	firings, err := service.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, firings)
}
