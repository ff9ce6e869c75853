// Package scheduler executes the per-use-case pipeline plan over a bounded
// worker pool. Use cases run in parallel, one worker each; subtasks within
// a use case run strictly sequentially. The jobs table is the sole source
// of truth for what has run; artifacts on disk are a cache.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

// Scheduler owns the worker pool and the shutdown flag.
type Scheduler struct {
	jobs           interfaces.JobStorage
	runner         Runner
	maxWorkers     int
	subtaskTimeout time.Duration
	orphanGrace    time.Duration
	logger         arbor.ILogger

	shuttingDown atomic.Bool
	sem          chan struct{}
	wg           sync.WaitGroup
}

// New creates the scheduler. runner supplies the subtask implementations.
func New(cfg *common.Config, jobs interfaces.JobStorage, runner Runner, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		jobs:           jobs,
		runner:         runner,
		maxWorkers:     cfg.Scheduler.MaxWorkers,
		subtaskTimeout: time.Duration(cfg.Scheduler.SubtaskTimeoutMinutes) * time.Minute,
		orphanGrace:    time.Duration(cfg.Scheduler.OrphanGraceMinutes) * time.Minute,
		logger:         logger,
		sem:            make(chan struct{}, cfg.Scheduler.MaxWorkers),
	}
}

// ReconcileOrphans marks running jobs left behind by an unclean shutdown
// as failed. Called once at startup before any new work is accepted.
func (s *Scheduler) ReconcileOrphans(ctx context.Context) (int64, error) {
	return s.jobs.ReconcileOrphans(ctx, s.orphanGrace)
}

// RunPipeline queues one pipeline job per use case and dispatches each to
// the pool. Returns the created job IDs keyed by use case.
func (s *Scheduler) RunPipeline(ctx context.Context, useCaseKeys []string) (map[string]int64, error) {
	jobIDs := make(map[string]int64, len(useCaseKeys))
	for _, key := range useCaseKeys {
		configJSON, _ := json.Marshal(map[string]string{"use_case_key": key})
		job, err := s.jobs.Create(ctx, "pipeline", string(configJSON))
		if err != nil {
			return jobIDs, err
		}
		jobIDs[key] = job.ID

		s.wg.Add(1)
		go func(jobID int64, useCaseKey string) {
			defer s.wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			s.runUseCase(jobID, useCaseKey)
		}(job.ID, key)
	}
	return jobIDs, nil
}

// Shutdown sets the drain flag. Workers finish their current subtask and
// stop; Wait blocks until the pool is empty.
func (s *Scheduler) Shutdown() {
	if s.shuttingDown.CompareAndSwap(false, true) {
		s.logger.Info().Msg("Scheduler shutdown requested, draining workers")
	}
}

// Wait blocks until every dispatched use case has finished or drained.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// WaitWithDeadline waits for the pool to drain, giving up after d.
// Returns false when the deadline passed with workers still busy.
func (s *Scheduler) WaitWithDeadline(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// runUseCase walks the plan sequentially, persisting every transition.
func (s *Scheduler) runUseCase(jobID int64, useCaseKey string) {
	ctx := context.Background()
	log := s.logger.WithCorrelationId(common.NewRunID())

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusRunning, ""); err != nil {
		log.Error().Int64("job_id", jobID).Err(err).Msg("Failed to mark pipeline job running")
		return
	}

	transitions := make(map[string]SubtaskResult, len(Plan))
	artifacts := make([]string, 0)

	for i, subtask := range Plan {
		if s.shuttingDown.Load() {
			transitions[subtask] = SubtaskResult{Status: SubtaskFail, Error: "cancelled"}
			s.persistTransitions(ctx, jobID, transitions)
			if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCancelled, "cancelled"); err != nil {
				log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to mark job cancelled")
			}
			log.Info().Int64("job_id", jobID).Str("use_case", useCaseKey).
				Str("subtask", subtask).Msg("Pipeline cancelled by shutdown")
			return
		}

		// a cancel request through the API lands as a terminal status
		if current, err := s.jobs.Get(ctx, jobID); err == nil && current.Status.IsTerminal() {
			log.Info().Int64("job_id", jobID).Str("use_case", useCaseKey).
				Str("status", string(current.Status)).Msg("Pipeline stopped, job already terminal")
			return
		}

		result := s.runSubtask(ctx, subtask, useCaseKey, artifacts)
		transitions[subtask] = result
		s.persistTransitions(ctx, jobID, transitions)

		if result.Status == SubtaskFail {
			detail := result.Error
			if detail == "" {
				detail = subtask + " failed"
			}
			if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusFailed, detail); err != nil {
				log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to mark job failed")
			}
			log.Warn().Int64("job_id", jobID).Str("use_case", useCaseKey).
				Str("subtask", subtask).Str("error", detail).Msg("Pipeline aborted at subtask")
			return
		}

		artifacts = append(artifacts, result.ArtifactPaths...)

		progress := (i + 1) * 100 / len(Plan)
		if progress > 99 {
			progress = 99
		}
		if err := s.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
			log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to update progress")
		}

		log.Debug().Int64("job_id", jobID).Str("use_case", useCaseKey).
			Str("subtask", subtask).Str("status", result.Status).Msg("Subtask finished")
	}

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCompleted, ""); err != nil {
		log.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to mark job completed")
		return
	}
	log.Info().Int64("job_id", jobID).Str("use_case", useCaseKey).Msg("Pipeline completed")
}

// runSubtask bounds one subtask's wall clock and converts panics and
// timeouts into fail results so one use case never takes down the pool.
func (s *Scheduler) runSubtask(ctx context.Context, subtask, useCaseKey string, prior []string) (result SubtaskResult) {
	subCtx, cancel := context.WithTimeout(ctx, s.subtaskTimeout)
	defer cancel()

	done := make(chan SubtaskResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Str("subtask", subtask).Str("use_case", useCaseKey).
					Msg("Subtask panicked")
				done <- SubtaskResult{Status: SubtaskFail, Error: "internal panic"}
			}
		}()
		done <- s.runner.RunSubtask(subCtx, subtask, useCaseKey, prior)
	}()

	select {
	case result = <-done:
		return result
	case <-subCtx.Done():
		return SubtaskResult{Status: SubtaskFail, Error: "subtask timed out"}
	}
}

func (s *Scheduler) persistTransitions(ctx context.Context, jobID int64, transitions map[string]SubtaskResult) {
	payload, err := json.Marshal(map[string]interface{}{"subtasks": transitions})
	if err != nil {
		return
	}
	if err := s.jobs.UpdateResult(ctx, jobID, string(payload)); err != nil {
		s.logger.Warn().Int64("job_id", jobID).Err(err).Msg("Failed to persist subtask transitions")
	}
}
