package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	return NewService(cfg, arbor.NewLogger())
}

func TestSystemSnapshot(t *testing.T) {
	service := newTestService(t)

	snapshot := service.System(context.Background())
	require.NotNil(t, snapshot)
	assert.NotEmpty(t, snapshot.SampledAt)
	// memory is the one probe every supported platform answers
	if snapshot.MemoryTotal > 0 {
		assert.GreaterOrEqual(t, snapshot.MemoryTotal, snapshot.MemoryUsed)
		assert.GreaterOrEqual(t, snapshot.MemoryPercent, 0.0)
		assert.LessOrEqual(t, snapshot.MemoryPercent, 100.0)
	}
	assert.GreaterOrEqual(t, snapshot.CPUPercent, 0.0)
}

func TestDatabasesReportsMissingFiles(t *testing.T) {
	service := newTestService(t)

	infos := service.Databases(context.Background())
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.False(t, info.Exists, "no database files were created")
	}
}

func TestDatabasesReportsSizes(t *testing.T) {
	service := newTestService(t)
	adminPath := service.cfg.AdminDBPath()
	require.NoError(t, os.WriteFile(adminPath, []byte("stub"), 0644))

	infos := service.Databases(context.Background())
	for _, info := range infos {
		if info.Name == "admin" {
			assert.True(t, info.Exists)
			assert.Equal(t, int64(4), info.SizeBytes)
		}
	}
}

func TestModelsListsArtifacts(t *testing.T) {
	service := newTestService(t)
	require.NoError(t, os.MkdirAll(service.cfg.ModelsDir(), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(service.cfg.ModelsDir(), "job_1_random_forest.gob"), []byte("x"), 0644))

	models := service.Models(context.Background())
	require.Len(t, models, 1)
	assert.Equal(t, "job_1_random_forest.gob", models[0].FileName)
}
