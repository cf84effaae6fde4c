package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/repository/postgresql"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalRepository_GetByTimesheetID(t *testing.T) {
	mock, db := newMockDB(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	stage := 3
	reason := "hours mismatch"

	stages := []byte(`[
		{"approver_id":"u-foreman","acted_at":"2025-03-08T10:00:00Z","notes":null,"outcome":"approved"},
		{"approver_id":"u-incharge","acted_at":"2025-03-09T10:00:00Z","notes":"ok","outcome":"approved"},
		{"approver_id":"u-checker","acted_at":"2025-03-10T09:00:00Z","notes":"hours mismatch","outcome":"rejected"},
		{"approver_id":null,"acted_at":null,"notes":null,"outcome":"pending"}
	]`)

	rows := pgxmock.NewRows([]string{
		"timesheet_id", "status", "approval_level", "stages", "rejection_stage", "rejection_reason",
		"rejected_at", "gps_logs", "version", "updated_at",
	}).AddRow("ts-1", "rejected", 2, stages, &stage, &reason, &now, []byte(`[]`), int64(4), now)

	mock.ExpectQuery("SELECT (.+) FROM timesheet_approvals WHERE timesheet_id = (.+)").
		WithArgs("ts-1").
		WillReturnRows(rows)

	rec, err := postgresql.NewApprovalRepository(db).GetByTimesheetID(context.Background(), "ts-1")

	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusRejected, rec.Status)
	assert.Equal(t, 2, rec.Level)
	require.NotNil(t, rec.RejectionStage)
	assert.Equal(t, timesheet.StageChecking, *rec.RejectionStage)
	assert.Equal(t, timesheet.OutcomeApproved, rec.Stage(timesheet.StageInCharge).Outcome)
	assert.Equal(t, timesheet.OutcomeRejected, rec.Stage(timesheet.StageChecking).Outcome)
	assert.Equal(t, int64(4), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepository_GetByTimesheetIDNotFound(t *testing.T) {
	mock, db := newMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM timesheet_approvals").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := postgresql.NewApprovalRepository(db).GetByTimesheetID(context.Background(), "missing")

	assert.ErrorIs(t, err, timesheet.ErrApprovalNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepository_CompareAndSwap(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := timesheet.NewApprovalRecord("ts-1", now)
	rec.Status = timesheet.StatusSubmitted
	rec.Version = 2

	t.Run("version matches", func(t *testing.T) {
		mock, db := newMockDB(t)
		mock.ExpectExec("UPDATE timesheet_approvals SET (.+) WHERE timesheet_id = \\$1 AND version = \\$11").
			WithArgs("ts-1", "submitted", 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), int64(2), pgxmock.AnyArg(), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := postgresql.NewApprovalRepository(db).CompareAndSwap(context.Background(), rec, 1)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		mock, db := newMockDB(t)
		mock.ExpectExec("UPDATE timesheet_approvals").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgresql.NewApprovalRepository(db).CompareAndSwap(context.Background(), rec, 1)

		assert.ErrorIs(t, err, timesheet.ErrConcurrentModification)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
