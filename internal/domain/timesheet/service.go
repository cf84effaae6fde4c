package timesheet

import (
	"context"
	"time"
)

// Workflow drives a timesheet through the four approval stages.
type Workflow interface {
	Submit(ctx context.Context, timesheetID, actorID string) (ApprovalRecord, error)
	ApproveStage(ctx context.Context, timesheetID, actorID string, stage Stage, notes *string) (ApprovalRecord, error)
	RejectStage(ctx context.Context, timesheetID, actorID string, stage Stage, reason string) (ApprovalRecord, error)
	Resubmit(ctx context.Context, timesheetID, actorID string) (ApprovalRecord, error)

	GetApproval(ctx context.Context, timesheetID string) (ApprovalRecord, error)
	History(ctx context.Context, timesheetID string) ([]AuditEntry, error)
}

type TimesheetService interface {
	Create(ctx context.Context, actorID string, req CreateTimesheetRequest) (Timesheet, error)
	GetByID(ctx context.Context, id string) (Timesheet, error)
	// ProcessOfflineEntries validates unverified offline entries captured
	// after since and returns how many were processed.
	ProcessOfflineEntries(ctx context.Context, since time.Time, batchSize int) (int, error)

	RecentViolations(ctx context.Context, projectID string, limit int) ([]ViolationRecord, error)
	GeofenceStatistics(ctx context.Context, filter StatisticsFilter) (GeofenceStatistics, error)
	// CleanupGeofenceData clears location data older than retention. A dry
	// run only counts what would be cleared.
	CleanupGeofenceData(ctx context.Context, retention time.Duration, dryRun bool) (CleanupResult, error)
}
