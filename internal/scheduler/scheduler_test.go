package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func newTestScheduler(t *testing.T, runner Runner) (*Scheduler, interfaces.JobStorage) {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "admin.db"), logger, sqlite.MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	jobs := sqlite.NewJobStorage(db, logger)

	cfg := common.NewDefaultConfig()
	cfg.Scheduler.MaxWorkers = 4
	cfg.Scheduler.SubtaskTimeoutMinutes = 1
	return New(cfg, jobs, runner, logger), jobs
}

func okRunner() Runner {
	return RunnerFunc(func(ctx context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		return SubtaskResult{Status: SubtaskOK, ArtifactPaths: []string{useCaseKey + "/" + subtask}}
	})
}

func TestRunPipelineCompletesAllSubtasks(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)
	runner := RunnerFunc(func(ctx context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		mu.Lock()
		seen[useCaseKey] = append(seen[useCaseKey], subtask)
		mu.Unlock()
		return SubtaskResult{Status: SubtaskOK}
	})

	sched, jobs := newTestScheduler(t, runner)
	ctx := context.Background()

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection", "credit_scoring"})
	require.NoError(t, err)
	require.Len(t, jobIDs, 2)
	sched.Wait()

	for key, jobID := range jobIDs {
		job, err := jobs.Get(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, job.Status, key)
		assert.Equal(t, 100, job.Progress, "completion forces progress to 100")

		mu.Lock()
		assert.Equal(t, Plan, seen[key], "subtasks must run in plan order within a use case")
		mu.Unlock()

		var result struct {
			Subtasks map[string]SubtaskResult `json:"subtasks"`
		}
		require.NoError(t, json.Unmarshal([]byte(job.ResultJSON), &result))
		assert.Len(t, result.Subtasks, len(Plan))
	}
}

func TestFailureIsolatedToOneUseCase(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		if useCaseKey == "fraud_detection" && subtask == "model_training" {
			return SubtaskResult{Status: SubtaskFail, Error: "training data missing target column"}
		}
		return SubtaskResult{Status: SubtaskOK}
	})

	sched, jobs := newTestScheduler(t, runner)
	ctx := context.Background()

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection", "credit_scoring"})
	require.NoError(t, err)
	sched.Wait()

	failed, err := jobs.Get(ctx, jobIDs["fraud_detection"])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, "training data missing target column", failed.ErrorMessage)

	var result struct {
		Subtasks map[string]SubtaskResult `json:"subtasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(failed.ResultJSON), &result))
	assert.Equal(t, SubtaskFail, result.Subtasks["model_training"].Status)
	_, ranLater := result.Subtasks["model_evaluation"]
	assert.False(t, ranLater, "subtasks after a failure must not run")

	ok, err := jobs.Get(ctx, jobIDs["credit_scoring"])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, ok.Status, "a failure in one use case must not touch the others")
}

func TestSkipCountsAsSuccess(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		return SubtaskResult{Status: SubtaskSkip}
	})

	sched, jobs := newTestScheduler(t, runner)
	ctx := context.Background()

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection"})
	require.NoError(t, err)
	sched.Wait()

	job, err := jobs.Get(ctx, jobIDs["fraud_detection"])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestShutdownDrainsBetweenSubtasks(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	runner := RunnerFunc(func(ctx context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		once.Do(func() {
			close(started)
			<-release
		})
		return SubtaskResult{Status: SubtaskOK}
	})

	sched, jobs := newTestScheduler(t, runner)
	ctx := context.Background()

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection"})
	require.NoError(t, err)

	<-started
	sched.Shutdown()
	close(release)
	require.True(t, sched.WaitWithDeadline(5*time.Second))

	job, err := jobs.Get(ctx, jobIDs["fraud_detection"])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	var result struct {
		Subtasks map[string]SubtaskResult `json:"subtasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(job.ResultJSON), &result))
	assert.Equal(t, "cancelled", result.Subtasks["noise_removal"].Error,
		"the subtask interrupted by shutdown is recorded as a cancelled failure")
}

func TestAPICancelStopsThePipeline(t *testing.T) {
	var mu sync.Mutex
	ran := 0
	gate := make(chan struct{})

	sched, jobs := newTestScheduler(t, nil)
	ctx := context.Background()

	runner := RunnerFunc(func(c context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		mu.Lock()
		ran++
		first := ran == 1
		mu.Unlock()
		if first {
			<-gate
		}
		return SubtaskResult{Status: SubtaskOK}
	})
	sched.runner = runner

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection"})
	require.NoError(t, err)
	jobID := jobIDs["fraud_detection"]

	// wait for the job to reach running, then cancel through storage
	require.Eventually(t, func() bool {
		job, err := jobs.Get(ctx, jobID)
		return err == nil && job.Status == models.JobStatusRunning
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, jobs.Cancel(ctx, jobID))
	close(gate)
	require.True(t, sched.WaitWithDeadline(5*time.Second))

	job, err := jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, ran, len(Plan), "remaining subtasks must not run after an API cancel")
}

func TestProgressNeverReaches100BeforeCompletion(t *testing.T) {
	var mu sync.Mutex
	var observed []int

	sched, jobs := newTestScheduler(t, nil)
	ctx := context.Background()

	var jobID int64
	runner := RunnerFunc(func(c context.Context, subtask, useCaseKey string, prior []string) SubtaskResult {
		mu.Lock()
		id := jobID
		mu.Unlock()
		if id != 0 {
			if job, err := jobs.Get(c, id); err == nil {
				mu.Lock()
				observed = append(observed, job.Progress)
				mu.Unlock()
			}
		}
		return SubtaskResult{Status: SubtaskOK}
	})
	sched.runner = runner

	jobIDs, err := sched.RunPipeline(ctx, []string{"fraud_detection"})
	require.NoError(t, err)
	mu.Lock()
	jobID = jobIDs["fraud_detection"]
	mu.Unlock()
	sched.Wait()

	mu.Lock()
	defer mu.Unlock()
	last := 0
	for _, p := range observed {
		assert.LessOrEqual(t, p, 99, "100 is reserved for the completed transition")
		assert.GreaterOrEqual(t, p, last, "progress must be monotonic")
		last = p
	}
}
