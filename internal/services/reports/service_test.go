package reports

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

func writeArtifact(t *testing.T, s *Service, useCase, section string, payload interface{}) {
	t.Helper()
	dir := filepath.Join(s.cfg.PreprocessingOutputDir(), useCase)
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, section+".json"), data, 0644))
}

func seedFraudArtifacts(t *testing.T, s *Service) {
	writeArtifact(t, s, "fraud_detection", "summary",
		map[string]interface{}{"data_quality_score": 87.5, "rows": 10000})
	writeArtifact(t, s, "fraud_detection", "training_results",
		map[string]interface{}{"accuracy": 0.94, "f1": 0.91})
	writeArtifact(t, s, "fraud_detection", "correlations",
		[]map[string]interface{}{{"column_a": "amount", "column_b": "risk", "correlation": 0.8}})
}

func TestCompileTolerantOfMissingSections(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)

	compiled, err := service.Compile(context.Background(), "fraud_detection")
	require.NoError(t, err)
	assert.Equal(t, "Card Fraud Detection", compiled.Label)
	assert.ElementsMatch(t, []string{"summary", "correlations", "training_results"}, compiled.Present)
	assert.NotContains(t, compiled.Sections, "outliers")
}

func TestCompileOrderFollowsSectionOrder(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)

	compiled, err := service.Compile(context.Background(), "fraud_detection")
	require.NoError(t, err)
	assert.Equal(t, []string{"summary", "correlations", "training_results"}, compiled.Present,
		"present sections keep the canonical order")
}

func TestCompileMissingUseCase(t *testing.T) {
	service := newTestService(t)

	_, err := service.Compile(context.Background(), "fraud_detection")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = service.Compile(context.Background(), "../escape")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRenderMarkdown(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)

	export, err := service.Render(context.Background(), "markdown", "fraud_detection")
	require.NoError(t, err)

	text := string(export.Data)
	assert.Contains(t, text, "# Card Fraud Detection")
	assert.Contains(t, text, "## Summary")
	assert.Contains(t, text, "**data_quality_score**: 87.5")
	assert.Contains(t, text, "## Training Results")
	assert.NotContains(t, text, "## Outliers", "missing sections are omitted")
}

func TestRenderHTMLAndPDF(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)
	ctx := context.Background()

	html, err := service.Render(ctx, "html", "fraud_detection")
	require.NoError(t, err)
	assert.Contains(t, string(html.Data), "<h1")
	assert.Contains(t, html.ContentType, "text/html")

	pdf, err := service.Render(ctx, "pdf", "fraud_detection")
	require.NoError(t, err)
	assert.True(t, len(pdf.Data) > 500)
	assert.Equal(t, "%PDF", string(pdf.Data[:4]))
}

func TestRenderUnsupportedFormats(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)
	ctx := context.Background()

	for _, format := range []string{"excel", "word", "pptx"} {
		_, err := service.Render(ctx, format, "fraud_detection")
		require.Error(t, err, format)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), format)
		assert.Contains(t, err.Error(), "not supported")
	}

	_, err := service.Render(ctx, "bmp", "fraud_detection")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestExecutiveSummaryAggregates(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)
	writeArtifact(t, service, "credit_scoring", "summary",
		map[string]interface{}{"data_quality_score": 92.0})

	export, err := service.ExecutiveSummary(context.Background(), "markdown")
	require.NoError(t, err)

	text := string(export.Data)
	assert.Contains(t, text, "# Executive Summary")
	assert.Contains(t, text, "Card Fraud Detection")
	assert.Contains(t, text, "Retail Credit Scoring")
}

func TestBatchSkipsEmptyUseCases(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)

	exports, err := service.Batch(context.Background(), "markdown")
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "fraud_detection", exports[0].UseCaseKey)
}

func TestAvailableListsArtifacts(t *testing.T) {
	service := newTestService(t)
	seedFraudArtifacts(t, service)

	available := service.Available(context.Background())
	require.Contains(t, available, "fraud_detection")
	assert.Contains(t, available["fraud_detection"], "summary")
}
