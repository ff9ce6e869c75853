package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/interfaces"
)

// Maintenance runs periodic background housekeeping: expired cache rows
// are purged hourly so the query cache does not grow without bound.
type Maintenance struct {
	cron   *cron.Cron
	cache  interfaces.CacheStorage
	jobs   interfaces.JobStorage
	grace  time.Duration
	logger arbor.ILogger
}

func NewMaintenance(cache interfaces.CacheStorage, jobs interfaces.JobStorage, orphanGrace time.Duration, logger arbor.ILogger) *Maintenance {
	return &Maintenance{
		cron:   cron.New(),
		cache:  cache,
		jobs:   jobs,
		grace:  orphanGrace,
		logger: logger,
	}
}

// Start registers the jobs and begins the cron loop.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc("@hourly", m.purgeExpiredCache); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc("@every 10m", m.reconcileOrphans); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info().Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any in-flight run to finish.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info().Msg("Maintenance scheduler stopped")
}

func (m *Maintenance) purgeExpiredCache() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := m.cache.PurgeExpired(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Cache purge sweep failed")
		return
	}
	if purged > 0 {
		m.logger.Info().Int64("purged", purged).Msg("Purged expired cache entries")
	}
}

func (m *Maintenance) reconcileOrphans() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reconciled, err := m.jobs.ReconcileOrphans(ctx, m.grace)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Orphan reconcile sweep failed")
		return
	}
	if reconciled > 0 {
		m.logger.Warn().Int64("reconciled", reconciled).Msg("Marked orphaned jobs as failed")
	}
}
