package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/google/uuid"
)

// Config holds timesheet business limits
type Config struct {
	WeeklyHourLimit      float64 // default: 60
	MonthlyOvertimeLimit float64 // default: 40
	Now                  func() time.Time
}

type service struct {
	timesheets timesheet.TimesheetRepository
	approvals  timesheet.ApprovalRepository
	tx         timesheet.Transactor
	validator  geofence.LocationValidator
	cfg        Config
}

func NewTimesheetService(
	timesheets timesheet.TimesheetRepository,
	approvals timesheet.ApprovalRepository,
	tx timesheet.Transactor,
	validator geofence.LocationValidator,
	cfg Config,
) timesheet.TimesheetService {
	if cfg.WeeklyHourLimit == 0 {
		cfg.WeeklyHourLimit = 60
	}
	if cfg.MonthlyOvertimeLimit == 0 {
		cfg.MonthlyOvertimeLimit = 40
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{
		timesheets: timesheets,
		approvals:  approvals,
		tx:         tx,
		validator:  validator,
		cfg:        cfg,
	}
}

func (s *service) Create(ctx context.Context, actorID string, req timesheet.CreateTimesheetRequest) (timesheet.Timesheet, error) {
	if err := req.Validate(); err != nil {
		return timesheet.Timesheet{}, err
	}

	now := s.cfg.Now()
	ts := req.ToTimesheet(actorID, now)
	ts.ID = uuid.New().String()

	for _, e := range ts.Entries {
		exists, err := s.timesheets.HasEntryOnDate(ctx, ts.EmployeeID, e.Date)
		if err != nil {
			return timesheet.Timesheet{}, err
		}
		if exists {
			return timesheet.Timesheet{}, fmt.Errorf("%w: %s", timesheet.ErrOverlappingEntry, e.Date.Format("2006-01-02"))
		}
	}

	if err := s.checkLimits(ctx, ts); err != nil {
		return timesheet.Timesheet{}, err
	}

	// violations are reported once the timesheet is stored
	var flagged []checkedSample
	for i := range ts.Entries {
		e := &ts.Entries[i]
		// offline entries are checked later by the offline job
		if e.IsOffline {
			continue
		}
		sample, ok := e.StartSample()
		if !ok {
			continue
		}
		sample.CapturedAt = now
		res, err := s.validator.Validate(ctx, sample)
		if err != nil {
			return timesheet.Timesheet{}, fmt.Errorf("entry %s: %w", e.Date.Format("2006-01-02"), err)
		}
		e.ApplyCompliance(res)
		if !res.Compliant {
			flagged = append(flagged, checkedSample{sample: sample, result: res})
		}
	}

	rec := timesheet.NewApprovalRecord(ts.ID, now)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.timesheets.Create(txCtx, &ts); err != nil {
			return err
		}
		return s.approvals.Create(txCtx, &rec)
	})
	if err != nil {
		return timesheet.Timesheet{}, err
	}

	for _, f := range flagged {
		s.validator.Report(ctx, f.sample, f.result)
	}

	slog.Info("Timesheet created",
		"timesheet_id", ts.ID,
		"employee_id", ts.EmployeeID,
		"entries", len(ts.Entries),
		"total_hours", ts.TotalHours,
	)
	return ts, nil
}

// checkLimits applies the weekly hour cap and the monthly overtime cap,
// counting hours already recorded in other timesheets.
func (s *service) checkLimits(ctx context.Context, ts timesheet.Timesheet) error {
	weekly := make(map[time.Time]float64)
	monthly := make(map[time.Time]float64)
	for _, e := range ts.Entries {
		weekly[weekStart(e.Date)] += e.HoursWorked + e.OvertimeHours
		monthly[monthStart(e.Date)] += e.OvertimeHours
	}

	for start, hours := range weekly {
		worked, overtime, err := s.timesheets.SumHours(ctx, ts.EmployeeID, start, start.AddDate(0, 0, 7))
		if err != nil {
			return err
		}
		if total := worked + overtime + hours; total > s.cfg.WeeklyHourLimit {
			return fmt.Errorf("%w: week of %s would total %.2f h, limit is %.0f h",
				timesheet.ErrWeeklyLimitExceeded, start.Format("2006-01-02"), total, s.cfg.WeeklyHourLimit)
		}
	}

	for start, ot := range monthly {
		if ot == 0 {
			continue
		}
		_, overtime, err := s.timesheets.SumHours(ctx, ts.EmployeeID, start, start.AddDate(0, 1, 0))
		if err != nil {
			return err
		}
		if total := overtime + ot; total > s.cfg.MonthlyOvertimeLimit {
			return fmt.Errorf("%w: %s would total %.2f h overtime, limit is %.0f h",
				timesheet.ErrOvertimeLimitExceeded, start.Format("2006-01"), total, s.cfg.MonthlyOvertimeLimit)
		}
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id string) (timesheet.Timesheet, error) {
	return s.timesheets.GetByID(ctx, id)
}

// ProcessOfflineEntries validates synced offline entries that have not been
// checked yet. Entries that cannot be validated are logged and left for the
// next run.
func (s *service) ProcessOfflineEntries(ctx context.Context, since time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	entries, err := s.timesheets.ListUnverifiedOfflineEntries(ctx, since, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		sample, ok := e.StartSample()
		var res geofence.ComplianceResult
		if !ok {
			e.LocationVerified = true
		} else {
			res, err = s.validator.Validate(ctx, sample)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return processed, err
				}
				slog.Warn("Failed to validate offline entry", "entry_id", e.ID, "error", err)
				continue
			}
			e.ApplyCompliance(res)
		}

		if err := s.timesheets.UpdateEntryCompliance(ctx, e); err != nil {
			slog.Error("Failed to store offline entry compliance", "entry_id", e.ID, "error", err)
			continue
		}
		if ok {
			s.validator.Report(ctx, sample, res)
		}
		processed++
	}

	return processed, nil
}

type checkedSample struct {
	sample geofence.LocationSample
	result geofence.ComplianceResult
}

func weekStart(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

func monthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}
