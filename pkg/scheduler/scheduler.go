// Package scheduler runs the background maintenance loops that keep the
// memory engine honest outside the request path: the periodic retention
// decay sweep over due-for-review memories, and retry of sub-store
// migrations that failed mid-flight.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oceanbase/powermem/pkg/corelog"
	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/substore"
)

// Config controls the scheduler's cadence.
type Config struct {
	// DecaySpec is the cron spec for the retention decay sweep.
	// Default "@hourly".
	DecaySpec string

	// MigrationRetrySpec is the cron spec for retrying failed
	// migrations. Default "@every 5m".
	MigrationRetrySpec string

	// SweepPageSize pages the decay sweep's store scan. Default 200.
	SweepPageSize int

	// MigrationBatchSize is handed to Router.Migrate on retry. Default 100.
	MigrationBatchSize int

	// MigrationDeleteSource mirrors the delete_source flag of the
	// original migrate call being retried.
	MigrationDeleteSource bool

	// JobTimeout bounds one sweep or retry run. Default 10m.
	JobTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DecaySpec == "" {
		out.DecaySpec = "@hourly"
	}
	if out.MigrationRetrySpec == "" {
		out.MigrationRetrySpec = "@every 5m"
	}
	if out.SweepPageSize <= 0 {
		out.SweepPageSize = 200
	}
	if out.MigrationBatchSize <= 0 {
		out.MigrationBatchSize = 100
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 10 * time.Minute
	}
	return out
}

// Scheduler owns the cron runner and the two maintenance jobs.
type Scheduler struct {
	cron      *cron.Cron
	router    *substore.Router
	retention *intelligence.EbbinghausManager
	cfg       Config
}

// New creates a scheduler over the given router and retention manager.
// Call Start to begin running jobs.
func New(router *substore.Router, retention *intelligence.EbbinghausManager, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Scheduler{
		cron:      cron.New(),
		router:    router,
		retention: retention,
		cfg:       cfg.withDefaults(),
	}
}

// Start registers and begins the cron jobs. Safe to call once.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.DecaySpec, s.decayJob); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.MigrationRetrySpec, s.migrationRetryJob); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) decayJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	s.RunDecaySweep(ctx)
}

func (s *Scheduler) migrationRetryJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	s.RetryFailedMigrations(ctx)
}

// RunDecaySweep pages through every routed store, recomputes the current
// retention of memories whose next review time has passed, and persists
// the decayed strength. Exposed for tests and for operators that want a
// one-shot sweep.
func (s *Scheduler) RunDecaySweep(ctx context.Context) {
	log := corelog.Component("scheduler")
	now := time.Now()

	for _, store := range s.router.RouteRead(nil) {
		updater, ok := store.(storage.RetentionUpdater)
		if !ok {
			continue
		}

		offset := 0
		for {
			page, err := store.GetAll(ctx, &storage.GetAllOptions{Limit: s.cfg.SweepPageSize, Offset: offset})
			if err != nil {
				log.Warn().Err(err).Msg("decay sweep scan failed")
				break
			}
			if len(page) == 0 {
				break
			}

			for _, m := range page {
				retention, ok := intelligence.RetentionFromMetadata(m.Metadata)
				if !ok {
					continue
				}
				if !retention.NextReview.IsZero() && retention.NextReview.After(now) {
					continue
				}

				retention.Refresh(s.retention, now)
				if retention.CurrentRetention == m.RetentionStrength {
					continue
				}

				// Persist the refreshed block (current_retention,
				// memory_type, should_forget) alongside the strength
				// column; counters are untouched by Refresh.
				metadata := make(map[string]interface{}, len(m.Metadata))
				for k, v := range m.Metadata {
					metadata[k] = v
				}
				retention.ToMetadata(metadata)

				lastAccessed := m.CreatedAt
				if m.LastAccessedAt != nil {
					lastAccessed = *m.LastAccessedAt
				}
				if err := updater.UpdateRetention(ctx, m.ID, retention.CurrentRetention, lastAccessed, metadata); err != nil {
					log.Warn().Err(err).Int64("memory_id", int64(m.ID)).Msg("decay write-back failed")
				}
			}

			if len(page) < s.cfg.SweepPageSize {
				break
			}
			offset += s.cfg.SweepPageSize
		}
	}
}

// RetryFailedMigrations re-runs Migrate for every sub-store left in the
// FAILED state. Concurrent-migration errors are ignored; anything else
// is logged and retried on the next tick.
func (s *Scheduler) RetryFailedMigrations(ctx context.Context) {
	log := corelog.Component("scheduler")

	for _, d := range s.router.SubStores() {
		if d.Status() != substore.Failed {
			continue
		}
		err := s.router.Migrate(ctx, d.Index, s.cfg.MigrationBatchSize, s.cfg.MigrationDeleteSource)
		if err != nil && !errors.Is(err, substore.ErrMigrationInProgress) {
			log.Warn().Err(err).Str("substore", d.Name).Msg("migration retry failed")
		}
	}
}
