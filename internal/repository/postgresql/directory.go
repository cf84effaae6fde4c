package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// DirectoryRepository reads users, project memberships and stage approver
// pools. It serves both the notification directory and the stage authorizer.
type DirectoryRepository struct {
	db *database.DB
}

func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

var (
	_ notification.RecipientDirectory = (*DirectoryRepository)(nil)
	_ timesheet.StageAuthorizer       = (*DirectoryRepository)(nil)
)

func (r *DirectoryRepository) collect(ctx context.Context, query string, args ...interface{}) ([]notification.Recipient, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]notification.Recipient, 0)
	for rows.Next() {
		var (
			rc   notification.Recipient
			role string
		)
		if err := rows.Scan(&rc.UserID, &rc.Name, &rc.Email, &role); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		rc.Role = notification.Role(role)
		recipients = append(recipients, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}
	return recipients, nil
}

func (r *DirectoryRepository) User(ctx context.Context, userID string) (notification.Recipient, error) {
	q := GetQuerier(ctx, r.db)

	var (
		rc   notification.Recipient
		role string
	)
	err := q.QueryRow(ctx,
		`SELECT id, full_name, email, role FROM users WHERE id = $1 AND is_active = true`,
		userID,
	).Scan(&rc.UserID, &rc.Name, &rc.Email, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Recipient{}, notification.ErrRecipientNotFound
		}
		return notification.Recipient{}, fmt.Errorf("failed to get recipient: %w", err)
	}
	rc.Role = notification.Role(role)
	return rc, nil
}

func (r *DirectoryRepository) ProjectRole(ctx context.Context, projectID string, role notification.Role) ([]notification.Recipient, error) {
	query := `
		SELECT u.id, u.full_name, u.email, pm.role
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND pm.role = $2 AND u.is_active = true
		ORDER BY u.id
	`
	return r.collect(ctx, query, projectID, string(role))
}

func (r *DirectoryRepository) OrgRole(ctx context.Context, role notification.Role) ([]notification.Recipient, error) {
	query := `
		SELECT id, full_name, email, role
		FROM users
		WHERE role = $1 AND is_active = true
		ORDER BY id
	`
	return r.collect(ctx, query, string(role))
}

func (r *DirectoryRepository) StageApprovers(ctx context.Context, projectID string, stage int) ([]notification.Recipient, error) {
	query := `
		SELECT u.id, u.full_name, u.email, u.role
		FROM stage_approvers sa
		JOIN users u ON u.id = sa.user_id
		WHERE sa.project_id = $1 AND sa.stage = $2 AND u.is_active = true
		ORDER BY u.id
	`
	return r.collect(ctx, query, projectID, stage)
}

// IsAuthorizedForStage checks the stage pool of the timesheet's project
func (r *DirectoryRepository) IsAuthorizedForStage(ctx context.Context, actorID string, stage timesheet.Stage, timesheetID string) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM stage_approvers sa
			JOIN timesheets t ON t.project_id = sa.project_id
			WHERE t.id = $1 AND sa.stage = $2 AND sa.user_id = $3
		)
	`
	var ok bool
	if err := q.QueryRow(ctx, query, timesheetID, int(stage), actorID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check stage authorization: %w", err)
	}
	return ok, nil
}
