package timesheet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/lock"
)

// memStore backs every repository fake so a transaction can snapshot and
// restore all of them together.
type memStore struct {
	mu         sync.Mutex
	timesheets map[string]timesheet.Timesheet
	approvals  map[string]timesheet.ApprovalRecord
	audit      []timesheet.AuditEntry

	failAudit    error
	failApproval error
	failPurge    error
	lastLimit    int
	beforeCAS    func()
	blockReads   bool
}

func newMemStore() *memStore {
	return &memStore{
		timesheets: make(map[string]timesheet.Timesheet),
		approvals:  make(map[string]timesheet.ApprovalRecord),
	}
}

func (m *memStore) snapshot() (map[string]timesheet.Timesheet, map[string]timesheet.ApprovalRecord, []timesheet.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := make(map[string]timesheet.Timesheet, len(m.timesheets))
	for k, v := range m.timesheets {
		ts[k] = v
	}
	ap := make(map[string]timesheet.ApprovalRecord, len(m.approvals))
	for k, v := range m.approvals {
		ap[k] = v
	}
	return ts, ap, append([]timesheet.AuditEntry(nil), m.audit...)
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	ts, ap, au := m.snapshot()
	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.timesheets, m.approvals, m.audit = ts, ap, au
		m.mu.Unlock()
	}
	return err
}

func (m *memStore) auditLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audit)
}

func (m *memStore) record(id string) timesheet.ApprovalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approvals[id]
}

func (m *memStore) wait(ctx context.Context) error {
	if !m.blockReads {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

type memTimesheets struct{ *memStore }

func (r memTimesheets) Create(ctx context.Context, ts *timesheet.Timesheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ts.Entries {
		if ts.Entries[i].ID == "" {
			ts.Entries[i].ID = ts.ID + "-" + ts.Entries[i].Date.Format("20060102")
		}
		ts.Entries[i].TimesheetID = ts.ID
	}
	r.timesheets[ts.ID] = *ts
	return nil
}

func (r memTimesheets) GetByID(ctx context.Context, id string) (timesheet.Timesheet, error) {
	if err := r.wait(ctx); err != nil {
		return timesheet.Timesheet{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.timesheets[id]
	if !ok {
		return timesheet.Timesheet{}, timesheet.ErrTimesheetNotFound
	}
	return ts, nil
}

func (r memTimesheets) UpdateStatus(ctx context.Context, id string, status timesheet.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.timesheets[id]
	if !ok {
		return timesheet.ErrTimesheetNotFound
	}
	ts.Status = status
	r.timesheets[id] = ts
	return nil
}

func (r memTimesheets) HasEntryOnDate(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ts := range r.timesheets {
		if ts.Status == timesheet.StatusRejected {
			continue
		}
		for _, e := range ts.Entries {
			if e.EmployeeID == employeeID && e.Date.Equal(date) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r memTimesheets) SumHours(ctx context.Context, employeeID string, from, to time.Time) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var worked, overtime float64
	for _, ts := range r.timesheets {
		if ts.Status == timesheet.StatusRejected {
			continue
		}
		for _, e := range ts.Entries {
			if e.EmployeeID == employeeID && !e.Date.Before(from) && e.Date.Before(to) {
				worked += e.HoursWorked
				overtime += e.OvertimeHours
			}
		}
	}
	return worked, overtime, nil
}

func (r memTimesheets) ListUnverifiedOfflineEntries(ctx context.Context, since time.Time, limit int) ([]timesheet.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []timesheet.TimeEntry
	for _, ts := range r.timesheets {
		for _, e := range ts.Entries {
			if e.IsOffline && !e.LocationVerified && !e.CreatedAt.Before(since) && len(out) < limit {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r memTimesheets) UpdateEntryCompliance(ctx context.Context, entry timesheet.TimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.timesheets[entry.TimesheetID]
	if !ok {
		return timesheet.ErrTimesheetNotFound
	}
	for i, e := range ts.Entries {
		if e.ID == entry.ID {
			ts.Entries[i] = entry
			r.timesheets[ts.ID] = ts
			return nil
		}
	}
	return timesheet.ErrTimesheetNotFound
}

func (r memTimesheets) ListViolations(ctx context.Context, projectID string, limit int) ([]timesheet.ViolationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	out := make([]timesheet.ViolationRecord, 0)
	for _, ts := range r.timesheets {
		for _, e := range ts.Entries {
			if e.IsWithinGeofence == nil || *e.IsWithinGeofence || (projectID != "" && e.ProjectID != projectID) {
				continue
			}
			if len(out) < limit {
				out = append(out, timesheet.ViolationRecord{EntryID: e.ID, TimesheetID: ts.ID, ProjectID: e.ProjectID, Violations: e.Violations})
			}
		}
	}
	return out, nil
}

func (r memTimesheets) GeofenceStatistics(ctx context.Context, filter timesheet.StatisticsFilter) (timesheet.GeofenceStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats timesheet.GeofenceStatistics
	for _, ts := range r.timesheets {
		for _, e := range ts.Entries {
			if filter.EmployeeID != nil && e.EmployeeID != *filter.EmployeeID {
				continue
			}
			stats.TotalEntries++
			switch {
			case e.IsWithinGeofence == nil:
				stats.UnverifiedEntries++
			case *e.IsWithinGeofence:
				stats.CompliantEntries++
			default:
				stats.ViolationEntries++
			}
		}
	}
	stats.ComputeRate()
	return stats, nil
}

// staleEntries counts verified entries created before cutoff that still
// carry a start location, clearing it when purge is set.
func (r memTimesheets) staleEntries(cutoff time.Time, purge bool) int64 {
	var n int64
	for id, ts := range r.timesheets {
		for i, e := range ts.Entries {
			if e.LocationVerified && e.Start != nil && e.CreatedAt.Before(cutoff) {
				n++
				if purge {
					ts.Entries[i].Start = nil
				}
			}
		}
		r.timesheets[id] = ts
	}
	return n
}

func (r memTimesheets) CountGeofenceData(ctx context.Context, cutoff time.Time) (timesheet.CleanupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return timesheet.CleanupResult{Locations: r.staleEntries(cutoff, false), DryRun: true}, nil
}

func (r memTimesheets) PurgeGeofenceData(ctx context.Context, cutoff time.Time) (timesheet.CleanupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPurge != nil {
		return timesheet.CleanupResult{}, r.failPurge
	}
	return timesheet.CleanupResult{Locations: r.staleEntries(cutoff, true)}, nil
}

type memApprovals struct{ *memStore }

func (r memApprovals) Create(ctx context.Context, rec *timesheet.ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApproval != nil {
		return r.failApproval
	}
	r.approvals[rec.TimesheetID] = *rec
	return nil
}

func (r memApprovals) GetByTimesheetID(ctx context.Context, id string) (timesheet.ApprovalRecord, error) {
	if err := r.wait(ctx); err != nil {
		return timesheet.ApprovalRecord{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.approvals[id]
	if !ok {
		return timesheet.ApprovalRecord{}, timesheet.ErrApprovalNotFound
	}
	return rec, nil
}

func (r memApprovals) CompareAndSwap(ctx context.Context, rec timesheet.ApprovalRecord, expected int64) error {
	if r.beforeCAS != nil {
		r.beforeCAS()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.approvals[rec.TimesheetID]
	if !ok || cur.Version != expected {
		return timesheet.ErrConcurrentModification
	}
	r.approvals[rec.TimesheetID] = rec
	return nil
}

type memAudit struct{ *memStore }

func (r memAudit) Append(ctx context.Context, e *timesheet.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAudit != nil {
		return r.failAudit
	}
	r.audit = append(r.audit, *e)
	return nil
}

func (r memAudit) ListByTimesheet(ctx context.Context, id string) ([]timesheet.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []timesheet.AuditEntry
	for _, e := range r.audit {
		if e.TimesheetID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// stageActors authorizes actor "u-<stage name>" for each stage.
type stageActors struct {
	block bool
}

func (a stageActors) IsAuthorizedForStage(ctx context.Context, actorID string, stage timesheet.Stage, timesheetID string) (bool, error) {
	if a.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return actorID == "u-"+stage.String(), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []event.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func (p *recordingPublisher) last() event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// stubValidator flags every sample further north than maxLat. With failOn
// set only that call (1-based) returns err.
type stubValidator struct {
	maxLat   float64
	err      error
	failOn   int
	calls    int
	reported []geofence.LocationSample
}

func (v *stubValidator) Validate(ctx context.Context, s geofence.LocationSample) (geofence.ComplianceResult, error) {
	v.calls++
	if v.err != nil && (v.failOn == 0 || v.failOn == v.calls) {
		return geofence.ComplianceResult{}, v.err
	}
	zoneID := "zone-site"
	if s.Latitude <= v.maxLat {
		d := 10.0
		return geofence.ComplianceResult{Compliant: true, Violations: []geofence.Violation{}, NearestZoneID: &zoneID, DistanceFromNearestZoneMeters: &d}, nil
	}
	d := 800.0
	return geofence.ComplianceResult{
		Violations: []geofence.Violation{{
			ZoneID:         zoneID,
			Direction:      geofence.DirectionOutside,
			Severity:       geofence.SeverityStrict,
			DistanceMeters: d,
		}},
		NearestZoneID:                 &zoneID,
		DistanceFromNearestZoneMeters: &d,
	}, nil
}

func (v *stubValidator) ValidateAndReport(ctx context.Context, s geofence.LocationSample) (geofence.ComplianceResult, error) {
	res, err := v.Validate(ctx, s)
	if err == nil {
		v.Report(ctx, s, res)
	}
	return res, err
}

func (v *stubValidator) Report(_ context.Context, s geofence.LocationSample, res geofence.ComplianceResult) {
	if !res.Compliant {
		v.reported = append(v.reported, s)
	}
}

var errAuditDown = errors.New("audit store down")

type fixture struct {
	store     *memStore
	locker    *lock.LocalLocker
	publisher *recordingPublisher
	workflow  timesheet.Workflow
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		locker:    lock.NewLocalLocker(),
		publisher: &recordingPublisher{},
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.workflow = f.newWorkflow(stageActors{})
	return f
}

func (f *fixture) newWorkflow(auth timesheet.StageAuthorizer) timesheet.Workflow {
	return NewWorkflow(WorkflowDeps{
		Timesheets: memTimesheets{f.store},
		Approvals:  memApprovals{f.store},
		Audit:      memAudit{f.store},
		Authorizer: auth,
		Tx:         f.store,
		Locker:     f.locker,
		Publisher:  f.publisher,
	}, WorkflowConfig{
		LookupTimeout: 50 * time.Millisecond,
		Now:           func() time.Time { return f.now },
	})
}

// seed stores a draft timesheet with one located entry.
func (f *fixture) seed(id string) {
	start := f.now.Add(-8 * time.Hour)
	ts := timesheet.Timesheet{
		ID:          id,
		EmployeeID:  "emp-1",
		ProjectID:   "proj-1",
		PeriodStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Status:      timesheet.StatusDraft,
		CreatedBy:   "emp-1",
		Entries: []timesheet.TimeEntry{{
			ID:          id + "-e1",
			TimesheetID: id,
			EmployeeID:  "emp-1",
			ProjectID:   "proj-1",
			Date:        time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
			StartTime:   &start,
			HoursWorked: 8,
			Start:       &timesheet.LocationFix{Latitude: 40.7128, Longitude: -74.0060, AccuracyMeters: 10},
		}},
	}
	f.store.timesheets[id] = ts
	f.store.approvals[id] = timesheet.NewApprovalRecord(id, f.now)
}
