package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type workSummaryRepository struct {
	db *database.DB
}

func NewWorkSummaryRepository(db *database.DB) worksummary.Repository {
	return &workSummaryRepository{db: db}
}

func (r *workSummaryRepository) ApprovedEntries(ctx context.Context, employeeID string, ym worksummary.YearMonth) ([]worksummary.EntryHours, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT te.timesheet_id, te.project_id, te.entry_date, te.hours_worked, te.overtime_hours, te.billable
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE te.employee_id = $1 AND te.entry_date >= $2 AND te.entry_date < $3 AND t.status = $4
		ORDER BY te.entry_date
	`
	rows, err := q.Query(ctx, query, employeeID, ym.Start(), ym.End(), string(timesheet.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to query approved entries: %w", err)
	}
	defer rows.Close()

	entries := make([]worksummary.EntryHours, 0)
	for rows.Next() {
		var e worksummary.EntryHours
		if err := rows.Scan(&e.TimesheetID, &e.ProjectID, &e.Date, &e.HoursWorked, &e.OvertimeHours, &e.Billable); err != nil {
			return nil, fmt.Errorf("failed to scan approved entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approved entries: %w", err)
	}
	return entries, nil
}

func (r *workSummaryRepository) EmployeesWithApproved(ctx context.Context, ym worksummary.YearMonth) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT DISTINCT te.employee_id
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE te.entry_date >= $1 AND te.entry_date < $2 AND t.status = $3
		ORDER BY te.employee_id
	`
	rows, err := q.Query(ctx, query, ym.Start(), ym.End(), string(timesheet.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employees: %w", err)
	}
	return ids, nil
}

// Upsert overwrites the month row, so repeated recomputation never double counts
func (r *workSummaryRepository) Upsert(ctx context.Context, s worksummary.Summary) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO employee_work_summaries (employee_id, year_month, regular_hours, overtime_hours,
			billable_hours, non_billable_hours, project_count, timesheet_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (employee_id, year_month)
		DO UPDATE SET regular_hours = $3, overtime_hours = $4, billable_hours = $5,
			non_billable_hours = $6, project_count = $7, timesheet_count = $8, updated_at = $9
	`
	_, err := q.Exec(ctx, query,
		s.EmployeeID,
		s.YearMonth.String(),
		s.RegularHours,
		s.OvertimeHours,
		s.BillableHours,
		s.NonBillableHours,
		s.ProjectCount,
		s.TimesheetCount,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work summary: %w", err)
	}
	return nil
}

func (r *workSummaryRepository) Get(ctx context.Context, employeeID string, ym worksummary.YearMonth) (worksummary.Summary, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT employee_id, regular_hours, overtime_hours, billable_hours, non_billable_hours,
			project_count, timesheet_count, updated_at
		FROM employee_work_summaries
		WHERE employee_id = $1 AND year_month = $2
	`
	s := worksummary.Summary{YearMonth: ym}
	err := q.QueryRow(ctx, query, employeeID, ym.String()).Scan(
		&s.EmployeeID,
		&s.RegularHours,
		&s.OvertimeHours,
		&s.BillableHours,
		&s.NonBillableHours,
		&s.ProjectCount,
		&s.TimesheetCount,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return worksummary.Summary{}, worksummary.ErrSummaryNotFound
		}
		return worksummary.Summary{}, fmt.Errorf("failed to get work summary: %w", err)
	}
	return s, nil
}
