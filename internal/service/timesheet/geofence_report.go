package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
)

func (s *service) RecentViolations(ctx context.Context, projectID string, limit int) ([]timesheet.ViolationRecord, error) {
	switch {
	case limit <= 0:
		limit = timesheet.DefaultViolationLimit
	case limit > timesheet.MaxViolationLimit:
		limit = timesheet.MaxViolationLimit
	}
	return s.timesheets.ListViolations(ctx, projectID, limit)
}

func (s *service) GeofenceStatistics(ctx context.Context, filter timesheet.StatisticsFilter) (timesheet.GeofenceStatistics, error) {
	return s.timesheets.GeofenceStatistics(ctx, filter)
}

func (s *service) CleanupGeofenceData(ctx context.Context, retention time.Duration, dryRun bool) (timesheet.CleanupResult, error) {
	if retention <= 0 {
		return timesheet.CleanupResult{}, fmt.Errorf("retention must be positive, got %s", retention)
	}
	cutoff := s.cfg.Now().Add(-retention)

	if dryRun {
		res, err := s.timesheets.CountGeofenceData(ctx, cutoff)
		if err != nil {
			return timesheet.CleanupResult{}, err
		}
		slog.Info("Geofence cleanup dry run", "cutoff", cutoff, "would_clear", res.Total())
		return res, nil
	}

	var res timesheet.CleanupResult
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.timesheets.PurgeGeofenceData(txCtx, cutoff)
		return err
	})
	if err != nil {
		return timesheet.CleanupResult{}, err
	}

	slog.Info("Geofence data cleaned up",
		"cutoff", cutoff,
		"locations", res.Locations,
		"violations", res.Violations,
		"gps_logs", res.GPSLogs,
	)
	return res, nil
}
