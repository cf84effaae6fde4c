package timesheet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func approveAll(t *testing.T, f *fixture, id string, from timesheet.Stage) timesheet.ApprovalRecord {
	t.Helper()
	var rec timesheet.ApprovalRecord
	for s := from; s <= timesheet.StageManager; s++ {
		var err error
		rec, err = f.workflow.ApproveStage(context.Background(), id, "u-"+s.String(), s, nil)
		require.NoError(t, err, "stage %s", s)
	}
	return rec
}

func TestWorkflow_FullApproval(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	rec, err := f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusSubmitted, rec.Status)
	assert.Equal(t, 0, rec.Level)
	require.Len(t, rec.GPSLogs, 1)
	assert.Equal(t, 40.7128, rec.GPSLogs[0].Latitude)

	notes := strPtr("looks right")
	rec, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, notes)
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusForemanApproved, rec.Status)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, 25, rec.Progress())
	assert.Equal(t, "u-foreman", *rec.Stage(timesheet.StageForeman).ApproverID)
	assert.Equal(t, notes, rec.Stage(timesheet.StageForeman).Notes)

	rec = approveAll(t, f, "ts-1", timesheet.StageInCharge)
	assert.Equal(t, timesheet.StatusApproved, rec.Status)
	assert.Equal(t, 4, rec.Level)
	assert.Equal(t, 100, rec.Progress())
	_, open := rec.NextStage()
	assert.False(t, open)

	assert.Equal(t, []event.Kind{
		event.KindTimesheetSubmitted,
		event.KindStageApproved,
		event.KindStageApproved,
		event.KindStageApproved,
		event.KindTimesheetApproved,
	}, f.publisher.kinds())
	assert.Equal(t, "emp-1", f.publisher.last().EmployeeID)
	assert.Equal(t, timesheet.StageManager, f.publisher.last().Stage)

	ts, err := memTimesheets{f.store}.GetByID(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusApproved, ts.Status)

	history, err := f.workflow.History(ctx, "ts-1")
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestWorkflow_DuplicateApprovalLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)
	require.NoError(t, err)

	before := f.store.record("ts-1")
	auditBefore := f.store.auditLen()

	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)

	assert.ErrorIs(t, err, timesheet.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "expected incharge approval")
	assert.Equal(t, before, f.store.record("ts-1"))
	assert.Equal(t, auditBefore, f.store.auditLen())
}

func TestWorkflow_OutOfOrderNamesExpectedStage(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)
	assert.ErrorIs(t, err, timesheet.ErrInvalidTransition, "draft timesheets cannot be approved")

	_, err = f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)

	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-checking", timesheet.StageChecking, nil)
	assert.ErrorIs(t, err, timesheet.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "expected foreman approval")
}

func TestWorkflow_RejectAtChecking(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)
	require.NoError(t, err)
	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-incharge", timesheet.StageInCharge, strPtr("ok"))
	require.NoError(t, err)

	rec, err := f.workflow.RejectStage(ctx, "ts-1", "u-checking", timesheet.StageChecking, "hours mismatch")
	require.NoError(t, err)

	assert.Equal(t, timesheet.StatusRejected, rec.Status)
	require.NotNil(t, rec.RejectionStage)
	assert.Equal(t, timesheet.StageChecking, *rec.RejectionStage)
	assert.Equal(t, "hours mismatch", *rec.RejectionReason)
	assert.NotNil(t, rec.RejectedAt)
	assert.Equal(t, 2, rec.Level)
	assert.Equal(t, "u-foreman", *rec.Stage(timesheet.StageForeman).ApproverID)
	assert.Equal(t, "u-incharge", *rec.Stage(timesheet.StageInCharge).ApproverID)
	assert.Equal(t, "ok", *rec.Stage(timesheet.StageInCharge).Notes)
	assert.Equal(t, timesheet.OutcomeRejected, rec.Stage(timesheet.StageChecking).Outcome)

	ev := f.publisher.last()
	assert.Equal(t, event.KindTimesheetRejected, ev.Kind)
	assert.Equal(t, timesheet.StageChecking, ev.Stage)
	assert.Equal(t, []string{"u-foreman", "u-incharge"}, ev.PriorApprovers)

	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-manager", timesheet.StageManager, nil)
	assert.ErrorIs(t, err, timesheet.ErrInvalidTransition, "no stage acts until resubmitted")
}

func TestWorkflow_RejectResubmitApprove(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)
	require.NoError(t, err)
	_, err = f.workflow.RejectStage(ctx, "ts-1", "u-incharge", timesheet.StageInCharge, "missing break")
	require.NoError(t, err)

	rec, err := f.workflow.Resubmit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusSubmitted, rec.Status)
	assert.Equal(t, 0, rec.Level)
	assert.Nil(t, rec.RejectionStage)
	assert.Nil(t, rec.RejectionReason)
	for s := timesheet.StageForeman; s <= timesheet.StageManager; s++ {
		assert.Equal(t, timesheet.OutcomePending, rec.Stage(s).Outcome)
		assert.Nil(t, rec.Stage(s).ApproverID)
	}

	rec = approveAll(t, f, "ts-1", timesheet.StageForeman)
	assert.Equal(t, timesheet.StatusApproved, rec.Status)

	history, err := f.workflow.History(ctx, "ts-1")
	require.NoError(t, err)

	actions := make([]timesheet.AuditAction, len(history))
	for i, h := range history {
		actions[i] = h.Action
	}
	assert.Equal(t, []timesheet.AuditAction{
		timesheet.ActionSubmit,
		timesheet.ActionApprove,
		timesheet.ActionReject,
		timesheet.ActionResubmit,
		timesheet.ActionApprove,
		timesheet.ActionApprove,
		timesheet.ActionApprove,
		timesheet.ActionApprove,
	}, actions)
	assert.Equal(t, "missing break", *history[2].Notes)
	assert.Equal(t, timesheet.StatusRejected, history[3].FromStatus)
}

func TestWorkflow_StateErrors(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.Resubmit(ctx, "ts-1", "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrNotRejected)

	_, err = f.workflow.Submit(ctx, "ts-1", "someone-else")
	assert.ErrorIs(t, err, timesheet.ErrNotTimesheetOwner)

	_, err = f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)
	_, err = f.workflow.Submit(ctx, "ts-1", "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrAlreadySubmitted)

	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-incharge", timesheet.StageForeman, nil)
	assert.ErrorIs(t, err, timesheet.ErrStageNotAuthorized)

	_, err = f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.Stage(7), nil)
	assert.ErrorIs(t, err, timesheet.ErrInvalidStage)

	_, err = f.workflow.RejectStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, "   ")
	assert.ErrorIs(t, err, timesheet.ErrRejectionReasonEmpty)

	_, err = f.workflow.Submit(ctx, "missing", "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrTimesheetNotFound)
}

func TestWorkflow_LeaseHeldIsConcurrentModification(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	lease, err := f.locker.Obtain(ctx, "timesheet:ts-1", time.Minute)
	require.NoError(t, err)

	_, err = f.workflow.Submit(ctx, "ts-1", "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrConcurrentModification)

	require.NoError(t, lease.Release(ctx))
	_, err = f.workflow.Submit(ctx, "ts-1", "emp-1")
	assert.NoError(t, err)
}

func TestWorkflow_VersionConflictRollsBack(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	f.store.beforeCAS = func() {
		f.store.mu.Lock()
		rec := f.store.approvals["ts-1"]
		rec.Version++
		f.store.approvals["ts-1"] = rec
		f.store.mu.Unlock()
	}

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")

	assert.ErrorIs(t, err, timesheet.ErrConcurrentModification)
	assert.Equal(t, timesheet.StatusDraft, f.store.record("ts-1").Status)
	assert.Zero(t, f.store.auditLen())
	assert.Empty(t, f.publisher.kinds())
}

func TestWorkflow_AuditFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	f.store.failAudit = errAuditDown

	_, err := f.workflow.Submit(context.Background(), "ts-1", "emp-1")

	assert.ErrorIs(t, err, errAuditDown)
	assert.Equal(t, timesheet.StatusDraft, f.store.record("ts-1").Status)
	assert.Equal(t, timesheet.StatusDraft, f.store.timesheets["ts-1"].Status)
	assert.Empty(t, f.publisher.kinds())
}

func TestWorkflow_ConcurrentApprovalsOneWins(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx := context.Background()

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")
	require.NoError(t, err)

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.workflow.ApproveStage(ctx, "ts-1", "u-foreman", timesheet.StageForeman, nil)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, timesheet.ErrConcurrentModification) && !errors.Is(err, timesheet.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	rec := f.store.record("ts-1")
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, 2, f.store.auditLen())
}

func TestWorkflow_LookupTimeout(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	wf := f.newWorkflow(stageActors{block: true})

	_, err := wf.ApproveStage(context.Background(), "ts-1", "u-foreman", timesheet.StageForeman, nil)
	assert.ErrorIs(t, err, timesheet.ErrLookupTimeout)

	f.store.blockReads = true
	_, err = f.workflow.Submit(context.Background(), "ts-1", "emp-1")
	assert.ErrorIs(t, err, timesheet.ErrLookupTimeout)
}

func TestWorkflow_CancelledCallerChangesNothing(t *testing.T) {
	f := newFixture()
	f.seed("ts-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.workflow.Submit(ctx, "ts-1", "emp-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, timesheet.StatusDraft, f.store.record("ts-1").Status)
	assert.Zero(t, f.store.auditLen())
}
