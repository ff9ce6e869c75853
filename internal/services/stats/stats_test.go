package stats

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

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func newTestService(t *testing.T, csv string) (*Service, int64) {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()

	path := filepath.Join(cfg.Storage.BaseDir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	db, err := sqlite.NewSQLiteDB(filepath.Join(cfg.Storage.BaseDir, "admin.db"), logger, sqlite.MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	datasets := sqlite.NewDatasetStorage(db, logger)

	id, err := datasets.Create(context.Background(), &models.Dataset{
		Name: "test", OriginalFilename: "data.csv", FilePath: path,
	})
	require.NoError(t, err)
	return NewService(datasets, cfg, logger), id
}

// correlatedCSV: b tracks a exactly, c is anti-proportional noise-free,
// label flips with a.
func correlatedCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("a,b,c,region,label,score\n")
	for i := 0; i < rows; i++ {
		a := float64(i)
		// "ok" sorts after "fraud" and encodes to 1, so its score is high
		label := "ok"
		score := 0.9
		if i%2 == 0 {
			label = "fraud"
			score = 0.1
		}
		region := "east"
		if i%3 == 0 {
			region = "west"
		}
		fmt.Fprintf(&sb, "%.1f,%.1f,%.1f,%s,%s,%.2f\n", a, a*2, -a, region, label, score)
	}
	return sb.String()
}

func TestCorrelationsSortedByStrength(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	pairs, err := service.Correlations(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	assert.InDelta(t, 1.0, abs(pairs[0].Correlation), 1e-9, "perfectly linear pair first")
	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, abs(pairs[i-1].Correlation), abs(pairs[i].Correlation))
	}
}

func TestDistributionsHistogram(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	dists, err := service.Distributions(context.Background(), id)
	require.NoError(t, err)

	var a *ColumnDistribution
	for i := range dists {
		if dists[i].Column == "a" {
			a = &dists[i]
		}
	}
	require.NotNil(t, a)
	assert.InDelta(t, 49.5, a.Mean, 1e-9)
	assert.Equal(t, 0.0, a.Min)
	assert.Equal(t, 99.0, a.Max)
	require.Len(t, a.BinCounts, 10)
	total := 0
	for _, c := range a.BinCounts {
		total += c
	}
	assert.Equal(t, 100, total)
}

func TestOutliersIQR(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("v\n")
	for i := 0; i < 99; i++ {
		sb.WriteString("10\n")
	}
	sb.WriteString("1000\n")
	service, id := newTestService(t, sb.String())

	outliers, err := service.Outliers(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, outliers, 1)
	assert.Equal(t, 1, outliers[0].Count)
	assert.InDelta(t, 1.0, outliers[0].Percent, 1e-9)
}

func TestClassDistribution(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	dist, err := service.ClassDistributionFor(context.Background(), id, "label")
	require.NoError(t, err)
	assert.Equal(t, 50, dist.Counts["fraud"])
	assert.Equal(t, 50, dist.Counts["ok"])
	assert.False(t, dist.Imbalanced)

	_, err = service.ClassDistributionFor(context.Background(), id, "absent")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestFeatureEngineeringFlagsNearDuplicates(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	suggestions, err := service.FeatureEngineering(context.Background(), id)
	require.NoError(t, err)

	var dropCorrelated, oneHot bool
	for _, s := range suggestions {
		if s.Suggestion == "drop_correlated" {
			dropCorrelated = true
		}
		if s.Suggestion == "one_hot_encode" && s.Column == "region" {
			oneHot = true
		}
	}
	assert.True(t, dropCorrelated, "b duplicates a and must be flagged")
	assert.True(t, oneHot, "region is a low-cardinality categorical")
}

func TestStabilityDetectsShift(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("steady,shifting\n")
	for i := 0; i < 100; i++ {
		shifting := float64(i % 10)
		if i >= 50 {
			shifting += 100
		}
		fmt.Fprintf(&sb, "%.1f,%.1f\n", float64(i%10), shifting)
	}
	service, id := newTestService(t, sb.String())

	report, err := service.Stability(context.Background(), id)
	require.NoError(t, err)

	ratings := make(map[string]string)
	for _, c := range report {
		ratings[c.Column] = c.Rating
	}
	assert.Equal(t, "stable", ratings["steady"])
	assert.Equal(t, "unstable", ratings["shifting"])
}

func TestLeakageFlagsPerfectPredictor(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("leaky,noise,label\n")
	for i := 0; i < 100; i++ {
		label := "ok"
		leaky := 0.0
		if i%2 == 0 {
			label = "fraud"
			leaky = 1.0
		}
		fmt.Fprintf(&sb, "%.1f,%.1f,%s\n", leaky, float64((i*37)%11), label)
	}
	service, id := newTestService(t, sb.String())

	findings, err := service.Leakage(context.Background(), id, "label")
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "leaky", findings[0].Column)
	assert.Equal(t, "high", findings[0].Severity)
}

func TestCalibrationWellCalibratedScores(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	report, err := service.Calibration(context.Background(), id, "score", "label")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Bins)
	assert.Less(t, report.BrierScore, 0.05, "0.9/0.1 scores match a perfectly alternating label")

	_, err = service.Calibration(context.Background(), id, "absent", "label")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestFairnessParityGap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("group,label\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("a,approved\n")
	}
	for i := 0; i < 50; i++ {
		label := "denied"
		if i < 10 {
			label = "approved"
		}
		fmt.Fprintf(&sb, "b,%s\n", label)
	}
	service, id := newTestService(t, sb.String())

	report, err := service.Fairness(context.Background(), id, "group", "label")
	require.NoError(t, err)
	require.Len(t, report.Groups, 2)
	// "denied" sorts after "approved" and encodes to 1
	assert.InDelta(t, 0.8, report.ParityGap, 1e-9)
}

func TestCostThresholdPrefersCatchingPositives(t *testing.T) {
	service, id := newTestService(t, correlatedCSV(100))

	report, err := service.CostThreshold(context.Background(), id, "score", "label", 1, 5)
	require.NoError(t, err)
	require.NotEmpty(t, report.Sweep)
	// positives score 0.9 and negatives 0.1, so 0.15 separates them cleanly
	assert.LessOrEqual(t, report.BestThreshold, 0.15)
	assert.Greater(t, report.Sweep[0].Cost, 0.0, "threshold 0.05 still admits every negative")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
