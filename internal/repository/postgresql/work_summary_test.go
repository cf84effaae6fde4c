package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
	"github.com/cmlabs-hris/fieldtime-backend/internal/repository/postgresql"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkSummaryRepository_ApprovedEntries(t *testing.T) {
	mock, db := newMockDB(t)
	ym := worksummary.YearMonth{Year: 2025, Month: time.January}

	mock.ExpectQuery("SELECT (.+) FROM time_entries te JOIN timesheets t (.+) t.status = \\$4").
		WithArgs("emp-1", ym.Start(), ym.End(), "manager_approved").
		WillReturnRows(pgxmock.NewRows([]string{"timesheet_id", "project_id", "entry_date", "hours_worked", "overtime_hours", "billable"}).
			AddRow("ts-1", "proj-1", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), 8.0, 1.0, true))

	entries, err := postgresql.NewWorkSummaryRepository(db).ApprovedEntries(context.Background(), "emp-1", ym)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 8.0, entries[0].HoursWorked)
	assert.True(t, entries[0].Billable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkSummaryRepository_Upsert(t *testing.T) {
	mock, db := newMockDB(t)

	s := worksummary.Summary{
		EmployeeID:       "emp-1",
		YearMonth:        worksummary.YearMonth{Year: 2025, Month: time.January},
		RegularHours:     decimal.RequireFromString("160"),
		OvertimeHours:    decimal.RequireFromString("4.5"),
		BillableHours:    decimal.RequireFromString("150"),
		NonBillableHours: decimal.RequireFromString("14.5"),
		ProjectCount:     2,
		TimesheetCount:   5,
		UpdatedAt:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO employee_work_summaries (.+) ON CONFLICT \\(employee_id, year_month\\)").
		WithArgs("emp-1", "2025-01", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 2, 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := postgresql.NewWorkSummaryRepository(db).Upsert(context.Background(), s)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
