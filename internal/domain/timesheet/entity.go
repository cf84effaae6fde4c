package timesheet

import (
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
)

type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusForemanApproved  Status = "foreman_approved"
	StatusInChargeApproved Status = "incharge_approved"
	StatusCheckingApproved Status = "checking_approved"
	StatusApproved         Status = "manager_approved"
	StatusRejected         Status = "rejected"
)

// InPipeline reports whether a stage may act on a timesheet in this status.
func (s Status) InPipeline() bool {
	switch s {
	case StatusSubmitted, StatusForemanApproved, StatusInChargeApproved, StatusCheckingApproved:
		return true
	}
	return false
}

// Stage is one of the four sequential approvals, numbered from 1.
type Stage int

const (
	StageForeman  Stage = 1
	StageInCharge Stage = 2
	StageChecking Stage = 3
	StageManager  Stage = 4
)

const StageCount = 4

var stageNames = map[Stage]string{
	StageForeman:  "foreman",
	StageInCharge: "incharge",
	StageChecking: "checking",
	StageManager:  "manager",
}

var stageStatuses = map[Stage]Status{
	StageForeman:  StatusForemanApproved,
	StageInCharge: StatusInChargeApproved,
	StageChecking: StatusCheckingApproved,
	StageManager:  StatusApproved,
}

func (s Stage) Valid() bool {
	return s >= StageForeman && s <= StageManager
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// ApprovedStatus is the status a timesheet enters when this stage approves.
func (s Stage) ApprovedStatus() Status {
	return stageStatuses[s]
}

// ParseStage accepts a stage name or its number.
func ParseStage(v string) (Stage, bool) {
	for s, name := range stageNames {
		if name == v {
			return s, true
		}
	}
	switch v {
	case "1":
		return StageForeman, true
	case "2":
		return StageInCharge, true
	case "3":
		return StageChecking, true
	case "4":
		return StageManager, true
	}
	return 0, false
}

type StageOutcome string

const (
	OutcomePending  StageOutcome = "pending"
	OutcomeApproved StageOutcome = "approved"
	OutcomeRejected StageOutcome = "rejected"
)

type StageRecord struct {
	ApproverID *string      `json:"approver_id"`
	ActedAt    *time.Time   `json:"acted_at"`
	Notes      *string      `json:"notes"`
	Outcome    StageOutcome `json:"outcome"`
}

// ApprovalRecord tracks the whole pipeline of one timesheet. Stage i lives
// at Stages[i-1].
type ApprovalRecord struct {
	TimesheetID     string
	Status          Status
	Level           int
	Stages          [StageCount]StageRecord
	RejectionStage  *Stage
	RejectionReason *string
	RejectedAt      *time.Time
	GPSLogs         []geofence.LocationSample
	Version         int64
	UpdatedAt       time.Time
}

// NewApprovalRecord returns the record of a fresh draft timesheet.
func NewApprovalRecord(timesheetID string, now time.Time) ApprovalRecord {
	rec := ApprovalRecord{
		TimesheetID: timesheetID,
		Status:      StatusDraft,
		UpdatedAt:   now,
	}
	rec.ResetStages()
	return rec
}

// ResetStages marks every stage pending.
func (r *ApprovalRecord) ResetStages() {
	for i := range r.Stages {
		r.Stages[i] = StageRecord{Outcome: OutcomePending}
	}
}

// Stage returns the record of stage s.
func (r ApprovalRecord) Stage(s Stage) StageRecord {
	return r.Stages[s-1]
}

// NextStage is the stage whose turn it is, if the pipeline is open.
func (r ApprovalRecord) NextStage() (Stage, bool) {
	if !r.Status.InPipeline() || r.Level >= StageCount {
		return 0, false
	}
	return Stage(r.Level + 1), true
}

// Progress returns completed stages as a percentage.
func (r ApprovalRecord) Progress() int {
	return r.Level * 100 / StageCount
}

type Timesheet struct {
	ID            string
	EmployeeID    string
	ProjectID     string
	AssignmentID  *string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalHours    float64
	OvertimeHours float64
	Status        Status
	Notes         *string
	Entries       []TimeEntry
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LocationFix is a GPS reading attached to the start or end of an entry.
type LocationFix struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	Address        *string `json:"address,omitempty"`
}

// TimeEntry is the atomic daily record a timesheet aggregates.
type TimeEntry struct {
	ID               string
	TimesheetID      string
	EmployeeID       string
	ProjectID        string
	Date             time.Time
	StartTime        *time.Time
	EndTime          *time.Time
	HoursWorked      float64
	OvertimeHours    float64
	Billable         bool
	Start            *LocationFix
	End              *LocationFix
	IsWithinGeofence *bool
	Violations       []geofence.Violation
	DistanceFromSite *float64
	DeviceID         *string
	IsOffline        bool
	SyncedAt         *time.Time
	LocationVerified bool
	CreatedAt        time.Time
}

// StartSample builds the location sample recorded at the start of the entry.
func (e TimeEntry) StartSample() (geofence.LocationSample, bool) {
	if e.Start == nil {
		return geofence.LocationSample{}, false
	}
	capturedAt := e.CreatedAt
	if e.StartTime != nil {
		capturedAt = *e.StartTime
	}
	return geofence.LocationSample{
		EmployeeID:     e.EmployeeID,
		ProjectID:      e.ProjectID,
		Latitude:       e.Start.Latitude,
		Longitude:      e.Start.Longitude,
		AccuracyMeters: e.Start.AccuracyMeters,
		CapturedAt:     capturedAt,
		DeviceID:       e.DeviceID,
		Offline:        e.IsOffline,
		SyncedAt:       e.SyncedAt,
	}, true
}

// ApplyCompliance copies a compliance verdict onto the entry.
func (e *TimeEntry) ApplyCompliance(res geofence.ComplianceResult) {
	within := res.Compliant
	e.IsWithinGeofence = &within
	e.Violations = res.Violations
	e.DistanceFromSite = res.DistanceFromNearestZoneMeters
	e.LocationVerified = true
}

type AuditAction string

const (
	ActionSubmit   AuditAction = "submit"
	ActionApprove  AuditAction = "approve"
	ActionReject   AuditAction = "reject"
	ActionResubmit AuditAction = "resubmit"
)

// AuditEntry is one append-only row of the approval history.
type AuditEntry struct {
	ID          string
	TimesheetID string
	Action      AuditAction
	Stage       *Stage
	ActorID     string
	FromStatus  Status
	ToStatus    Status
	FromLevel   int
	ToLevel     int
	Notes       *string
	OccurredAt  time.Time
}
