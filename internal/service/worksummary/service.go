package worksummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
)

type service struct {
	timesheets timesheet.TimesheetRepository
	repo       worksummary.Repository
	now        func() time.Time
}

func NewWorkSummaryService(timesheets timesheet.TimesheetRepository, repo worksummary.Repository, now func() time.Time) worksummary.Service {
	if now == nil {
		now = time.Now
	}
	return &service{timesheets: timesheets, repo: repo, now: now}
}

func (s *service) OnTimesheetApproved(ctx context.Context, timesheetID string) ([]worksummary.Summary, error) {
	ts, err := s.timesheets.GetByID(ctx, timesheetID)
	if err != nil {
		return nil, fmt.Errorf("load timesheet %s: %w", timesheetID, err)
	}

	months := monthsOf(ts)
	out := make([]worksummary.Summary, 0, len(months))
	for _, ym := range months {
		summary, err := s.Recompute(ctx, ts.EmployeeID, ym)
		if err != nil {
			return out, err
		}
		out = append(out, summary)
	}

	slog.Info("Work summaries updated", "timesheet_id", timesheetID, "employee_id", ts.EmployeeID, "months", len(out))
	return out, nil
}

// monthsOf returns the months the entries fall in, or the period's months
// when the timesheet has no entries.
func monthsOf(ts timesheet.Timesheet) []worksummary.YearMonth {
	if len(ts.Entries) == 0 {
		return worksummary.MonthsBetween(ts.PeriodStart, ts.PeriodEnd)
	}

	seen := make(map[worksummary.YearMonth]bool)
	var months []worksummary.YearMonth
	for _, e := range ts.Entries {
		ym := worksummary.Of(e.Date)
		if !seen[ym] {
			seen[ym] = true
			months = append(months, ym)
		}
	}
	sort.Slice(months, func(i, j int) bool {
		return months[i].Start().Before(months[j].Start())
	})
	return months
}

// Recompute rebuilds the row from every approved entry of the month, so
// running it again for the same inputs writes the same values.
func (s *service) Recompute(ctx context.Context, employeeID string, ym worksummary.YearMonth) (worksummary.Summary, error) {
	entries, err := s.repo.ApprovedEntries(ctx, employeeID, ym)
	if err != nil {
		return worksummary.Summary{}, fmt.Errorf("load approved entries for %s %s: %w", employeeID, ym, err)
	}

	summary := worksummary.Compute(employeeID, ym, entries, s.now())
	if err := s.repo.Upsert(ctx, summary); err != nil {
		return worksummary.Summary{}, fmt.Errorf("upsert work summary for %s %s: %w", employeeID, ym, err)
	}
	return summary, nil
}

func (s *service) Get(ctx context.Context, employeeID string, ym worksummary.YearMonth) (worksummary.SummaryResponse, error) {
	summary, err := s.repo.Get(ctx, employeeID, ym)
	if err != nil {
		return worksummary.SummaryResponse{}, err
	}
	return worksummary.NewSummaryResponse(summary), nil
}

func (s *service) Reconcile(ctx context.Context, ym worksummary.YearMonth) (int, error) {
	employees, err := s.repo.EmployeesWithApproved(ctx, ym)
	if err != nil {
		return 0, fmt.Errorf("list employees for %s: %w", ym, err)
	}

	var errs []error
	updated := 0
	for _, employeeID := range employees {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if _, err := s.Recompute(ctx, employeeID, ym); err != nil {
			slog.Error("Failed to reconcile work summary", "employee_id", employeeID, "year_month", ym.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		updated++
	}
	return updated, errors.Join(errs...)
}
