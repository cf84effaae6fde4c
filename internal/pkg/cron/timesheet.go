package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
)

// TimesheetJobsConfig holds the schedules of the timesheet maintenance jobs
type TimesheetJobsConfig struct {
	OfflineSpec      string        // default: every 15 minutes
	OfflineMaxAge    time.Duration // default: 24 hours
	OfflineBatchSize int           // default: 100
	ReconcileSpec    string        // default: 02:30 daily
	CleanupSpec      string        // default: 03:00 on Sundays
	Retention        time.Duration // default: 90 days
	Now              func() time.Time
}

type TimesheetJobs struct {
	timesheets timesheet.TimesheetService
	summaries  worksummary.Service
	config     TimesheetJobsConfig
}

func NewTimesheetJobs(timesheets timesheet.TimesheetService, summaries worksummary.Service, cfg TimesheetJobsConfig) *TimesheetJobs {
	if cfg.OfflineSpec == "" {
		cfg.OfflineSpec = "@every 15m"
	}
	if cfg.OfflineMaxAge <= 0 {
		cfg.OfflineMaxAge = 24 * time.Hour
	}
	if cfg.OfflineBatchSize <= 0 {
		cfg.OfflineBatchSize = 100
	}
	if cfg.ReconcileSpec == "" {
		cfg.ReconcileSpec = "30 2 * * *"
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = "0 3 * * 0"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TimesheetJobs{timesheets: timesheets, summaries: summaries, config: cfg}
}

func (j *TimesheetJobs) RegisterJobs(scheduler *Scheduler) error {
	if err := scheduler.AddJob("process-offline-entries", j.config.OfflineSpec, 10*time.Minute, j.ProcessOfflineEntries); err != nil {
		return err
	}
	if err := scheduler.AddJob("reconcile-work-summaries", j.config.ReconcileSpec, 30*time.Minute, j.ReconcileWorkSummaries); err != nil {
		return err
	}
	return scheduler.AddJob("cleanup-geofence-data", j.config.CleanupSpec, 30*time.Minute, j.CleanupGeofenceData)
}

const maxOfflineRounds = 50

// ProcessOfflineEntries validates synced offline entries in batches until a
// batch comes back short.
func (j *TimesheetJobs) ProcessOfflineEntries(ctx context.Context) error {
	since := j.config.Now().Add(-j.config.OfflineMaxAge)
	total := 0

	for round := 0; round < maxOfflineRounds; round++ {
		n, err := j.timesheets.ProcessOfflineEntries(ctx, since, j.config.OfflineBatchSize)
		total += n
		if err != nil {
			return fmt.Errorf("process offline entries: %w", err)
		}
		if n < j.config.OfflineBatchSize {
			break
		}
	}

	if total > 0 {
		slog.Info("Cron: Processed offline entries", "count", total)
	}
	return nil
}

// ReconcileWorkSummaries recomputes the current month, plus the previous
// one during the first day of a month.
func (j *TimesheetJobs) ReconcileWorkSummaries(ctx context.Context) error {
	now := j.config.Now().UTC()
	months := []worksummary.YearMonth{worksummary.Of(now)}
	if now.Day() == 1 {
		months = append(months, worksummary.Of(now.AddDate(0, 0, -1)))
	}

	for _, ym := range months {
		n, err := j.summaries.Reconcile(ctx, ym)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", ym, err)
		}
		slog.Info("Cron: Reconciled work summaries", "year_month", ym.String(), "employees", n)
	}
	return nil
}

// CleanupGeofenceData clears location data older than the retention window.
func (j *TimesheetJobs) CleanupGeofenceData(ctx context.Context) error {
	res, err := j.timesheets.CleanupGeofenceData(ctx, j.config.Retention, false)
	if err != nil {
		return fmt.Errorf("cleanup geofence data: %w", err)
	}
	slog.Info("Cron: Cleaned up geofence data", "retention", j.config.Retention.String(), "cleared", res.Total())
	return nil
}
