package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type approvalRepository struct {
	db *database.DB
}

func NewApprovalRepository(db *database.DB) timesheet.ApprovalRepository {
	return &approvalRepository{db: db}
}

func marshalApproval(rec timesheet.ApprovalRecord) (stages, gpsLogs []byte, err error) {
	if stages, err = json.Marshal(rec.Stages); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal approval stages: %w", err)
	}
	logs := rec.GPSLogs
	if logs == nil {
		logs = []geofence.LocationSample{}
	}
	if gpsLogs, err = json.Marshal(logs); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal gps logs: %w", err)
	}
	return stages, gpsLogs, nil
}

func (r *approvalRepository) Create(ctx context.Context, rec *timesheet.ApprovalRecord) error {
	q := GetQuerier(ctx, r.db)

	stages, gpsLogs, err := marshalApproval(*rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO timesheet_approvals (timesheet_id, status, approval_level, stages, rejection_stage,
			rejection_reason, rejected_at, gps_logs, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = q.Exec(ctx, query,
		rec.TimesheetID,
		string(rec.Status),
		rec.Level,
		stages,
		stageArg(rec.RejectionStage),
		rec.RejectionReason,
		rec.RejectedAt,
		gpsLogs,
		rec.Version,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval record: %w", err)
	}
	return nil
}

func (r *approvalRepository) GetByTimesheetID(ctx context.Context, timesheetID string) (timesheet.ApprovalRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT timesheet_id, status, approval_level, stages, rejection_stage, rejection_reason,
			rejected_at, gps_logs, version, updated_at
		FROM timesheet_approvals
		WHERE timesheet_id = $1
	`
	var (
		rec            timesheet.ApprovalRecord
		status         string
		stagesJSON     []byte
		gpsJSON        []byte
		rejectionStage *int
	)
	err := q.QueryRow(ctx, query, timesheetID).Scan(
		&rec.TimesheetID,
		&status,
		&rec.Level,
		&stagesJSON,
		&rejectionStage,
		&rec.RejectionReason,
		&rec.RejectedAt,
		&gpsJSON,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return timesheet.ApprovalRecord{}, timesheet.ErrApprovalNotFound
		}
		return timesheet.ApprovalRecord{}, fmt.Errorf("failed to get approval record: %w", err)
	}

	rec.Status = timesheet.Status(status)
	if rejectionStage != nil {
		s := timesheet.Stage(*rejectionStage)
		rec.RejectionStage = &s
	}
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &rec.Stages); err != nil {
			return timesheet.ApprovalRecord{}, fmt.Errorf("failed to unmarshal approval stages: %w", err)
		}
	}
	if len(gpsJSON) > 0 {
		if err := json.Unmarshal(gpsJSON, &rec.GPSLogs); err != nil {
			return timesheet.ApprovalRecord{}, fmt.Errorf("failed to unmarshal gps logs: %w", err)
		}
	}
	return rec, nil
}

// CompareAndSwap writes rec if the stored version is still expectedVersion
func (r *approvalRepository) CompareAndSwap(ctx context.Context, rec timesheet.ApprovalRecord, expectedVersion int64) error {
	q := GetQuerier(ctx, r.db)

	stages, gpsLogs, err := marshalApproval(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE timesheet_approvals
		SET status = $2, approval_level = $3, stages = $4, rejection_stage = $5, rejection_reason = $6,
			rejected_at = $7, gps_logs = $8, version = $9, updated_at = $10
		WHERE timesheet_id = $1 AND version = $11
	`
	result, err := q.Exec(ctx, query,
		rec.TimesheetID,
		string(rec.Status),
		rec.Level,
		stages,
		stageArg(rec.RejectionStage),
		rec.RejectionReason,
		rec.RejectedAt,
		gpsLogs,
		rec.Version,
		rec.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return timesheet.ErrConcurrentModification
	}
	return nil
}

func stageArg(s *timesheet.Stage) *int {
	if s == nil {
		return nil
	}
	v := int(*s)
	return &v
}
