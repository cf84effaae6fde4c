package timesheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
)

// The functions below compute a transition on a copy of rec. They never
// touch storage, so a failed check leaves the stored record as it was.

func submit(rec timesheet.ApprovalRecord, actorID string, gpsLogs []geofence.LocationSample, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
	if rec.Status != timesheet.StatusDraft {
		return rec, timesheet.AuditEntry{}, fmt.Errorf("%w: status is %s", timesheet.ErrAlreadySubmitted, rec.Status)
	}

	next := rec
	next.Status = timesheet.StatusSubmitted
	next.Level = 0
	next.GPSLogs = gpsLogs
	stamp(&next, rec, now)

	return next, audit(rec, next, timesheet.ActionSubmit, nil, actorID, nil, now), nil
}

func approve(rec timesheet.ApprovalRecord, actorID string, stage timesheet.Stage, notes *string, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
	if err := expectStage(rec, stage); err != nil {
		return rec, timesheet.AuditEntry{}, err
	}

	next := rec
	approver := actorID
	at := now
	next.Stages[stage-1] = timesheet.StageRecord{
		ApproverID: &approver,
		ActedAt:    &at,
		Notes:      notes,
		Outcome:    timesheet.OutcomeApproved,
	}
	next.Level = int(stage)
	next.Status = stage.ApprovedStatus()
	stamp(&next, rec, now)

	return next, audit(rec, next, timesheet.ActionApprove, &stage, actorID, notes, now), nil
}

func reject(rec timesheet.ApprovalRecord, actorID string, stage timesheet.Stage, reason string, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return rec, timesheet.AuditEntry{}, timesheet.ErrRejectionReasonEmpty
	}
	if err := expectStage(rec, stage); err != nil {
		return rec, timesheet.AuditEntry{}, err
	}

	next := rec
	approver := actorID
	at := now
	next.Stages[stage-1] = timesheet.StageRecord{
		ApproverID: &approver,
		ActedAt:    &at,
		Notes:      &reason,
		Outcome:    timesheet.OutcomeRejected,
	}
	// the level stays at the last approved stage
	next.Status = timesheet.StatusRejected
	rejectedStage := stage
	next.RejectionStage = &rejectedStage
	next.RejectionReason = &reason
	next.RejectedAt = &at
	stamp(&next, rec, now)

	return next, audit(rec, next, timesheet.ActionReject, &stage, actorID, &reason, now), nil
}

func resubmit(rec timesheet.ApprovalRecord, actorID string, gpsLogs []geofence.LocationSample, now time.Time) (timesheet.ApprovalRecord, timesheet.AuditEntry, error) {
	if rec.Status != timesheet.StatusRejected {
		return rec, timesheet.AuditEntry{}, fmt.Errorf("%w: status is %s", timesheet.ErrNotRejected, rec.Status)
	}

	next := rec
	next.Status = timesheet.StatusSubmitted
	next.Level = 0
	next.ResetStages()
	next.RejectionStage = nil
	next.RejectionReason = nil
	next.RejectedAt = nil
	next.GPSLogs = gpsLogs
	stamp(&next, rec, now)

	return next, audit(rec, next, timesheet.ActionResubmit, nil, actorID, nil, now), nil
}

// expectStage enforces strict stage ordering.
func expectStage(rec timesheet.ApprovalRecord, stage timesheet.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %d", timesheet.ErrInvalidStage, stage)
	}

	switch {
	case rec.Status == timesheet.StatusDraft:
		return fmt.Errorf("%w: timesheet has not been submitted", timesheet.ErrInvalidTransition)
	case rec.Status == timesheet.StatusRejected:
		return fmt.Errorf("%w: timesheet was rejected at %s stage, resubmit first", timesheet.ErrInvalidTransition, rejectedAt(rec))
	case rec.Status == timesheet.StatusApproved:
		return fmt.Errorf("%w: timesheet is already fully approved", timesheet.ErrInvalidTransition)
	}

	expected, ok := rec.NextStage()
	if !ok {
		return fmt.Errorf("%w: no stage may act in status %s", timesheet.ErrInvalidTransition, rec.Status)
	}
	if stage != expected {
		return fmt.Errorf("%w: expected %s approval", timesheet.ErrInvalidTransition, expected)
	}
	return nil
}

func rejectedAt(rec timesheet.ApprovalRecord) string {
	if rec.RejectionStage == nil {
		return "unknown"
	}
	return rec.RejectionStage.String()
}

func stamp(next *timesheet.ApprovalRecord, prev timesheet.ApprovalRecord, now time.Time) {
	next.Version = prev.Version + 1
	next.UpdatedAt = now
}

func audit(prev, next timesheet.ApprovalRecord, action timesheet.AuditAction, stage *timesheet.Stage, actorID string, notes *string, now time.Time) timesheet.AuditEntry {
	return timesheet.AuditEntry{
		TimesheetID: next.TimesheetID,
		Action:      action,
		Stage:       stage,
		ActorID:     actorID,
		FromStatus:  prev.Status,
		ToStatus:    next.Status,
		FromLevel:   prev.Level,
		ToLevel:     next.Level,
		Notes:       notes,
		OccurredAt:  now,
	}
}

// priorApprovers lists the approvers of stages before stage.
func priorApprovers(rec timesheet.ApprovalRecord, stage timesheet.Stage) []string {
	var ids []string
	for s := timesheet.StageForeman; s < stage; s++ {
		r := rec.Stage(s)
		if r.Outcome == timesheet.OutcomeApproved && r.ApproverID != nil {
			ids = append(ids, *r.ApproverID)
		}
	}
	return ids
}

// gpsSnapshot collects the start samples of the timesheet's entries.
func gpsSnapshot(ts timesheet.Timesheet) []geofence.LocationSample {
	logs := make([]geofence.LocationSample, 0, len(ts.Entries))
	for _, e := range ts.Entries {
		if s, ok := e.StartSample(); ok {
			logs = append(logs, s)
		}
	}
	return logs
}
