package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/mx-space/journal/internal/modules/weekly"
	pkgcron "github.com/mx-space/journal/internal/pkg/cron"
	"go.uber.org/zap"
)

const (
	cronLockPrefix   = "journal:cron:lock:"
	taskLedgerMaxAge = 24 * time.Hour
)

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() error {
	cronLogger := a.logger.Named("CronService")

	jobs := []pkgcron.Job{
		{
			Name:        "weekly_insight",
			Description: "generate weekly insights for sessions with seven journaled days",
			Interval:    a.cfg.Schedule.WeeklyInterval,
			Fn: func(ctx context.Context) error {
				return a.registry.Each(ctx, func(userID string, s *session.Session) error {
					res, err := s.Weekly.MaybeGenerateWeekly(ctx, a.registry.Now())
					var genErr *weekly.GenerationError
					if errors.As(err, &genErr) {
						// Eligibility is unchanged, the next run tries again.
						cronLogger.Warn("weekly insight failed", zap.String("user", userID), zap.Error(err))
						return nil
					}
					if err != nil {
						return err
					}
					if res.Outcome == weekly.OutcomeCreated {
						cronLogger.Info("weekly insight created", zap.String("user", userID), zap.Int("entries", res.Eligibility.EntriesInWindow))
					}
					return nil
				})
			},
		},
		{
			Name:        "retry_held_summaries",
			Description: "retry entry summaries held by provider failures",
			Interval:    a.cfg.Schedule.RetryInterval,
			Fn: func(ctx context.Context) error {
				return a.registry.Each(ctx, func(_ string, s *session.Session) error {
					_, err := s.Summaries.RetryHeld(ctx)
					return err
				})
			},
		},
		{
			Name:        "reconcile_offline_writes",
			Description: "push writes saved offline to the remote store",
			Interval:    a.cfg.Schedule.ReconcileEvery,
			Fn:          a.reconcileAll,
		},
	}
	if a.backup != nil {
		jobs = append(jobs, pkgcron.Job{
			Name:        "backup_snapshots",
			Description: "export every open session to object storage",
			Interval:    a.cfg.Schedule.BackupInterval,
			Fn: func(ctx context.Context) error {
				return a.registry.Each(ctx, func(userID string, s *session.Session) error {
					key, err := a.backup.Export(ctx, userID, s.Journal.Snapshot())
					if err != nil {
						return err
					}
					cronLogger.Info("snapshot exported", zap.String("user", userID), zap.String("key", key))
					return nil
				})
			},
		})
	}
	if a.tasks != nil {
		jobs = append(jobs, pkgcron.Job{
			Name:        "prune_task_ledger",
			Description: "drop finished summary tasks from the Redis ledger",
			Interval:    taskLedgerMaxAge,
			Fn: func(ctx context.Context) error {
				return a.tasks.DeleteCompleted(ctx, time.Now().Add(-taskLedgerMaxAge))
			},
		})
	}

	var errs []error
	for _, job := range jobs {
		job.Fn = a.exclusive(job.Name, job.Interval, job.Fn)
		if err := a.sched.Register(job); err != nil {
			errs = append(errs, err)
			continue
		}
		cronLogger.Debug("cron job registered", zap.String("job", job.Name), zap.String("every", humanizeDuration(job.Interval)))
	}
	return errors.Join(errs...)
}

// reconcileAll replays offline writes for open sessions and for users that
// only have offline records.
func (a *App) reconcileAll(ctx context.Context) error {
	var errs []error
	for _, userID := range a.Users(ctx) {
		s, err := a.registry.Get(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("open session %s: %w", userID, err))
			continue
		}
		if _, err := s.Journal.Reconcile(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// exclusive makes fn run in one process at a time when Redis is available.
func (a *App) exclusive(name string, ttl time.Duration, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if a.rc == nil {
			return fn(ctx)
		}
		key := cronLockPrefix + name
		owner := uuid.NewString()
		ok, err := a.rc.TryLock(ctx, key, owner, ttl)
		if err != nil {
			return fmt.Errorf("cron lock %s: %w", name, err)
		}
		if !ok {
			a.logger.Debug("cron job held by another process", zap.String("job", name))
			return nil
		}
		defer func() {
			if err := a.rc.Unlock(context.WithoutCancel(ctx), key, owner); err != nil {
				a.logger.Warn("cron unlock failed", zap.String("job", name), zap.Error(err))
			}
		}()
		return fn(ctx)
	}
}
