package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/google/uuid"
)

type auditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) timesheet.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, e *timesheet.AuditEntry) error {
	q := GetQuerier(ctx, r.db)

	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	query := `
		INSERT INTO timesheet_audit_log (id, timesheet_id, action, stage, actor_id, from_status, to_status,
			from_level, to_level, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.Exec(ctx, query,
		e.ID,
		e.TimesheetID,
		string(e.Action),
		stageArg(e.Stage),
		e.ActorID,
		string(e.FromStatus),
		string(e.ToStatus),
		e.FromLevel,
		e.ToLevel,
		e.Notes,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByTimesheet(ctx context.Context, timesheetID string) ([]timesheet.AuditEntry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, timesheet_id, action, stage, actor_id, from_status, to_status, from_level, to_level, notes, occurred_at
		FROM timesheet_audit_log
		WHERE timesheet_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := q.Query(ctx, query, timesheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]timesheet.AuditEntry, 0)
	for rows.Next() {
		var (
			e                            timesheet.AuditEntry
			action, fromStatus, toStatus string
			stage                        *int
		)
		if err := rows.Scan(
			&e.ID,
			&e.TimesheetID,
			&action,
			&stage,
			&e.ActorID,
			&fromStatus,
			&toStatus,
			&e.FromLevel,
			&e.ToLevel,
			&e.Notes,
			&e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = timesheet.AuditAction(action)
		e.FromStatus = timesheet.Status(fromStatus)
		e.ToStatus = timesheet.Status(toStatus)
		if stage != nil {
			s := timesheet.Stage(*stage)
			e.Stage = &s
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}
	return entries, nil
}
