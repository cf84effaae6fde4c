package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/lock"
)

// WorkflowConfig holds approval workflow settings
type WorkflowConfig struct {
	LockTTL       time.Duration // default: 10 seconds
	LookupTimeout time.Duration // default: 3 seconds
	Now           func() time.Time
}

type workflow struct {
	timesheets timesheet.TimesheetRepository
	approvals  timesheet.ApprovalRepository
	audit      timesheet.AuditRepository
	authorizer timesheet.StageAuthorizer
	tx         timesheet.Transactor
	locker     lock.Locker
	publisher  event.Publisher
	cfg        WorkflowConfig
}

// WorkflowDeps groups the collaborators of the approval workflow.
type WorkflowDeps struct {
	Timesheets timesheet.TimesheetRepository
	Approvals  timesheet.ApprovalRepository
	Audit      timesheet.AuditRepository
	Authorizer timesheet.StageAuthorizer
	Tx         timesheet.Transactor
	Locker     lock.Locker
	Publisher  event.Publisher
}

func NewWorkflow(deps WorkflowDeps, cfg WorkflowConfig) timesheet.Workflow {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = event.Discard{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}

	return &workflow{
		timesheets: deps.Timesheets,
		approvals:  deps.Approvals,
		audit:      deps.Audit,
		authorizer: deps.Authorizer,
		tx:         deps.Tx,
		locker:     deps.Locker,
		publisher:  deps.Publisher,
		cfg:        cfg,
	}
}

// step computes the next record from the current state.
type step func(ts timesheet.Timesheet, rec timesheet.ApprovalRecord, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error)

func (w *workflow) Submit(ctx context.Context, timesheetID, actorID string) (timesheet.ApprovalRecord, error) {
	return w.apply(ctx, timesheetID, func(ts timesheet.Timesheet, rec timesheet.ApprovalRecord, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
		if err := checkOwner(ts, actorID); err != nil {
			return rec, timesheet.AuditEntry{}, err
		}
		return submit(rec, actorID, gpsSnapshot(ts), now)
	})
}

func (w *workflow) ApproveStage(ctx context.Context, timesheetID, actorID string, stage timesheet.Stage, notes *string) (timesheet.ApprovalRecord, error) {
	if !stage.Valid() {
		return timesheet.ApprovalRecord{}, fmt.Errorf("%w: %d", timesheet.ErrInvalidStage, stage)
	}
	if err := w.authorize(ctx, actorID, stage, timesheetID); err != nil {
		return timesheet.ApprovalRecord{}, err
	}

	return w.apply(ctx, timesheetID, func(_ timesheet.Timesheet, rec timesheet.ApprovalRecord, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
		return approve(rec, actorID, stage, notes, now)
	})
}

func (w *workflow) RejectStage(ctx context.Context, timesheetID, actorID string, stage timesheet.Stage, reason string) (timesheet.ApprovalRecord, error) {
	if !stage.Valid() {
		return timesheet.ApprovalRecord{}, fmt.Errorf("%w: %d", timesheet.ErrInvalidStage, stage)
	}
	if err := w.authorize(ctx, actorID, stage, timesheetID); err != nil {
		return timesheet.ApprovalRecord{}, err
	}

	return w.apply(ctx, timesheetID, func(_ timesheet.Timesheet, rec timesheet.ApprovalRecord, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
		return reject(rec, actorID, stage, reason, now)
	})
}

func (w *workflow) Resubmit(ctx context.Context, timesheetID, actorID string) (timesheet.ApprovalRecord, error) {
	return w.apply(ctx, timesheetID, func(ts timesheet.Timesheet, rec timesheet.ApprovalRecord, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
		if err := checkOwner(ts, actorID); err != nil {
			return rec, timesheet.AuditEntry{}, err
		}
		return resubmit(rec, actorID, gpsSnapshot(ts), now)
	})
}

func (w *workflow) GetApproval(ctx context.Context, timesheetID string) (timesheet.ApprovalRecord, error) {
	var rec timesheet.ApprovalRecord
	err := w.lookup(ctx, func(lctx context.Context) error {
		var err error
		rec, err = w.approvals.GetByTimesheetID(lctx, timesheetID)
		return err
	})
	return rec, err
}

func (w *workflow) History(ctx context.Context, timesheetID string) ([]timesheet.AuditEntry, error) {
	if _, err := w.GetApproval(ctx, timesheetID); err != nil {
		return nil, err
	}

	var entries []timesheet.AuditEntry
	err := w.lookup(ctx, func(lctx context.Context) error {
		var err error
		entries, err = w.audit.ListByTimesheet(lctx, timesheetID)
		return err
	})
	return entries, err
}

// apply runs one transition under the timesheet lease and commits the
// record, timesheet status and audit entry together.
func (w *workflow) apply(ctx context.Context, timesheetID string, next step) (timesheet.ApprovalRecord, error) {
	lease, err := w.locker.Obtain(ctx, "timesheet:"+timesheetID, w.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return timesheet.ApprovalRecord{}, fmt.Errorf("%w: timesheet %s is being updated", timesheet.ErrConcurrentModification, timesheetID)
		}
		return timesheet.ApprovalRecord{}, fmt.Errorf("failed to lock timesheet: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release timesheet lock", "timesheet_id", timesheetID, "error", err)
		}
	}()

	var (
		ts  timesheet.Timesheet
		rec timesheet.ApprovalRecord
	)
	err = w.lookup(ctx, func(lctx context.Context) error {
		var err error
		if ts, err = w.timesheets.GetByID(lctx, timesheetID); err != nil {
			return err
		}
		rec, err = w.approvals.GetByTimesheetID(lctx, timesheetID)
		return err
	})
	if err != nil {
		return timesheet.ApprovalRecord{}, err
	}

	now := w.cfg.Now()
	updated, entry, err := next(ts, rec, now)
	if err != nil {
		return timesheet.ApprovalRecord{}, err
	}

	err = w.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := w.approvals.CompareAndSwap(txCtx, updated, rec.Version); err != nil {
			return err
		}
		if err := w.timesheets.UpdateStatus(txCtx, timesheetID, updated.Status); err != nil {
			return err
		}
		return w.audit.Append(txCtx, &entry)
	})
	if err != nil {
		return timesheet.ApprovalRecord{}, err
	}

	slog.Info("Timesheet transition committed",
		"timesheet_id", timesheetID,
		"action", entry.Action,
		"from", entry.FromStatus,
		"to", entry.ToStatus,
		"actor_id", entry.ActorID,
	)

	w.publisher.Publish(context.WithoutCancel(ctx), eventFor(ts, rec, updated, entry))
	return updated, nil
}

func (w *workflow) authorize(ctx context.Context, actorID string, stage timesheet.Stage, timesheetID string) error {
	var ok bool
	err := w.lookup(ctx, func(lctx context.Context) error {
		var err error
		ok, err = w.authorizer.IsAuthorizedForStage(lctx, actorID, stage, timesheetID)
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", timesheet.ErrStageNotAuthorized, stage)
	}
	return nil
}

// lookup bounds a read by LookupTimeout. A timeout of the lookup itself
// becomes ErrLookupTimeout, caller cancellation is returned as is.
func (w *workflow) lookup(ctx context.Context, fn func(ctx context.Context) error) error {
	lctx, cancel := context.WithTimeout(ctx, w.cfg.LookupTimeout)
	defer cancel()

	err := fn(lctx)
	if err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return timesheet.ErrLookupTimeout
	}
	return err
}

func checkOwner(ts timesheet.Timesheet, actorID string) error {
	if actorID != ts.EmployeeID && actorID != ts.CreatedBy {
		return timesheet.ErrNotTimesheetOwner
	}
	return nil
}

func eventFor(ts timesheet.Timesheet, prev, next timesheet.ApprovalRecord, entry timesheet.AuditEntry) event.Event {
	kind := event.KindTimesheetSubmitted
	switch entry.Action {
	case timesheet.ActionApprove:
		kind = event.KindStageApproved
		if next.Status == timesheet.StatusApproved {
			kind = event.KindTimesheetApproved
		}
	case timesheet.ActionReject:
		kind = event.KindTimesheetRejected
	}

	ev := event.New(kind, entry.OccurredAt)
	ev.EmployeeID = ts.EmployeeID
	ev.ProjectID = ts.ProjectID
	ev.TimesheetID = ts.ID
	ev.ActorID = entry.ActorID
	ev.Notes = entry.Notes
	if entry.Stage != nil {
		ev.Stage = *entry.Stage
	}
	if kind == event.KindTimesheetRejected {
		ev.PriorApprovers = priorApprovers(prev, *entry.Stage)
	}
	if kind == event.KindTimesheetSubmitted {
		ev.Violations = entryViolations(ts)
	}
	return ev
}

// entryViolations gathers the geofence flags recorded on the entries.
func entryViolations(ts timesheet.Timesheet) []geofence.Violation {
	var out []geofence.Violation
	for _, e := range ts.Entries {
		out = append(out, e.Violations...)
	}
	return out
}
