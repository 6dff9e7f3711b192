// Package retention removes stored video artifacts once their retention
// window has passed. Source uploads, frame snapshots and protected
// outputs all expire together with the job row.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/domain/port"
)

type Cleaner struct {
	repo   port.JobRepository
	store  port.ArtifactStore
	window time.Duration
	logger *zap.Logger
	cron   *cron.Cron
}

func NewCleaner(repo port.JobRepository, store port.ArtifactStore, window time.Duration, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		repo:   repo,
		store:  store,
		window: window,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the cleanup on the given cron expression and runs it
// until Stop is called.
func (c *Cleaner) Start(schedule string) error {
	_, err := c.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := c.CleanupOnce(ctx); err != nil {
			c.logger.Error("retention cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// CleanupOnce deletes all artifacts of jobs older than the retention
// window, then drops the job rows. Deletion failures are logged and
// skipped so one stuck object cannot block the rest of the sweep.
func (c *Cleaner) CleanupOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.window)
	jobs, err := c.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	c.logger.Info("retention cleanup starting",
		zap.Int("expired_jobs", len(jobs)),
		zap.Time("cutoff", cutoff),
	)

	for _, job := range jobs {
		log := c.logger.With(zap.String("video_id", job.ID.String()))

		if job.SourceKey != "" {
			if err := c.store.DeleteSource(ctx, job.SourceKey); err != nil {
				log.Warn("failed to delete source", zap.Error(err))
				continue
			}
		}
		for _, frame := range job.Catalog {
			if frame.SnapshotKey == "" {
				continue
			}
			if err := c.store.DeleteSnapshot(ctx, frame.SnapshotKey); err != nil {
				log.Warn("failed to delete snapshot",
					zap.String("snapshot_key", frame.SnapshotKey),
					zap.Error(err),
				)
			}
		}
		keys, err := c.repo.ListRedactionKeys(ctx, job.ID)
		if err != nil {
			log.Warn("failed to list protected outputs", zap.Error(err))
			continue
		}
		for _, key := range keys {
			if err := c.store.DeleteProtected(ctx, key); err != nil {
				log.Warn("failed to delete protected output",
					zap.String("protected_key", key),
					zap.Error(err),
				)
			}
		}

		if err := c.repo.Delete(ctx, job.ID); err != nil {
			log.Warn("failed to delete job row", zap.Error(err))
			continue
		}
		log.Info("expired job cleaned up")
	}
	return nil
}
