package timesheet

import (
	"context"
	"time"
)

type TimesheetRepository interface {
	// Create inserts the timesheet together with its entries.
	Create(ctx context.Context, ts *Timesheet) error
	GetByID(ctx context.Context, id string) (Timesheet, error)
	UpdateStatus(ctx context.Context, id string, status Status) error

	HasEntryOnDate(ctx context.Context, employeeID string, date time.Time) (bool, error)
	// SumHours totals worked and overtime hours of non-rejected entries in [from, to).
	SumHours(ctx context.Context, employeeID string, from, to time.Time) (worked float64, overtime float64, err error)

	ListUnverifiedOfflineEntries(ctx context.Context, since time.Time, limit int) ([]TimeEntry, error)
	UpdateEntryCompliance(ctx context.Context, entry TimeEntry) error

	// ListViolations returns the newest flagged entries first. An empty
	// projectID lists every project.
	ListViolations(ctx context.Context, projectID string, limit int) ([]ViolationRecord, error)
	GeofenceStatistics(ctx context.Context, filter StatisticsFilter) (GeofenceStatistics, error)
	// CountGeofenceData and PurgeGeofenceData cover entries created before
	// cutoff that are already verified, and approval GPS logs of terminal
	// timesheets last updated before cutoff.
	CountGeofenceData(ctx context.Context, cutoff time.Time) (CleanupResult, error)
	PurgeGeofenceData(ctx context.Context, cutoff time.Time) (CleanupResult, error)
}

type ApprovalRepository interface {
	Create(ctx context.Context, rec *ApprovalRecord) error
	GetByTimesheetID(ctx context.Context, timesheetID string) (ApprovalRecord, error)
	// CompareAndSwap persists rec only if the stored version still equals
	// expectedVersion, otherwise it returns ErrConcurrentModification.
	CompareAndSwap(ctx context.Context, rec ApprovalRecord, expectedVersion int64) error
}

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByTimesheet(ctx context.Context, timesheetID string) ([]AuditEntry, error)
}

// StageAuthorizer owns the permission model for approval stages.
type StageAuthorizer interface {
	IsAuthorizedForStage(ctx context.Context, actorID string, stage Stage, timesheetID string) (bool, error)
}

// Transactor runs fn in a single database transaction carried by the
// context passed to fn.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
