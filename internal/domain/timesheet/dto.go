package timesheet

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
)

// ========================================
// TIMESHEET DTOs
// ========================================

type CreateEntryRequest struct {
	Date          string       `json:"date" validate:"required,datetime=2006-01-02"`
	ProjectID     *string      `json:"project_id"`
	StartTime     *time.Time   `json:"start_time"`
	EndTime       *time.Time   `json:"end_time"`
	HoursWorked   float64      `json:"hours_worked" validate:"gte=0,lte=24"`
	OvertimeHours float64      `json:"overtime_hours" validate:"gte=0,lte=24"`
	Billable      bool         `json:"billable"`
	Start         *LocationFix `json:"start_location"`
	End           *LocationFix `json:"end_location"`
	DeviceID      *string      `json:"device_id"`
	IsOffline     bool         `json:"is_offline"`
}

type CreateTimesheetRequest struct {
	EmployeeID   string               `json:"employee_id" validate:"required"`
	ProjectID    string               `json:"project_id" validate:"required"`
	AssignmentID *string              `json:"assignment_id"`
	PeriodStart  string               `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd    string               `json:"period_end" validate:"required,datetime=2006-01-02"`
	Notes        *string              `json:"notes" validate:"omitempty,max=1000"`
	Entries      []CreateEntryRequest `json:"entries" validate:"required,min=1,max=62,dive"`
}

func (r *CreateTimesheetRequest) Validate() error {
	errs := validator.Struct(r)
	if len(errs) > 0 {
		return errs
	}

	start, _ := validator.IsValidDate(r.PeriodStart)
	end, _ := validator.IsValidDate(r.PeriodEnd)
	if end.Before(start) {
		errs.Add("period_end", "period_end must not be before period_start")
	}

	seen := make(map[string]bool, len(r.Entries))
	for i, e := range r.Entries {
		field := fmt.Sprintf("entries[%d]", i)

		date, _ := validator.IsValidDate(e.Date)
		if date.Before(start) || date.After(end) {
			errs.Add(field+".date", "date must fall within the timesheet period")
		}
		if seen[e.Date] {
			errs.Add(field+".date", "only one entry per date is allowed")
		}
		seen[e.Date] = true

		if e.StartTime != nil && e.EndTime != nil && e.EndTime.Before(*e.StartTime) {
			errs.Add(field+".end_time", "end_time must not be before start_time")
		}
		if e.HoursWorked+e.OvertimeHours > 24 {
			errs.Add(field+".hours_worked", "hours_worked plus overtime_hours must not exceed 24")
		}
		for name, fix := range map[string]*LocationFix{"start_location": e.Start, "end_location": e.End} {
			if fix == nil {
				continue
			}
			if fix.Latitude < -90 || fix.Latitude > 90 {
				errs.Add(field+"."+name, "latitude must be between -90 and 90")
			}
			if fix.Longitude < -180 || fix.Longitude > 180 {
				errs.Add(field+"."+name, "longitude must be between -180 and 180")
			}
		}
	}

	return errs.Err()
}

// ToTimesheet builds a draft timesheet; Validate must have passed.
func (r *CreateTimesheetRequest) ToTimesheet(actorID string, now time.Time) Timesheet {
	start, _ := validator.IsValidDate(r.PeriodStart)
	end, _ := validator.IsValidDate(r.PeriodEnd)

	ts := Timesheet{
		EmployeeID:   r.EmployeeID,
		ProjectID:    r.ProjectID,
		AssignmentID: r.AssignmentID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Status:       StatusDraft,
		Notes:        r.Notes,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, e := range r.Entries {
		date, _ := validator.IsValidDate(e.Date)
		projectID := r.ProjectID
		if e.ProjectID != nil && *e.ProjectID != "" {
			projectID = *e.ProjectID
		}
		entry := TimeEntry{
			EmployeeID:    r.EmployeeID,
			ProjectID:     projectID,
			Date:          date,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			HoursWorked:   e.HoursWorked,
			OvertimeHours: e.OvertimeHours,
			Billable:      e.Billable,
			Start:         e.Start,
			End:           e.End,
			DeviceID:      e.DeviceID,
			IsOffline:     e.IsOffline,
			CreatedAt:     now,
		}
		if e.IsOffline {
			synced := now
			entry.SyncedAt = &synced
		}
		ts.TotalHours += e.HoursWorked
		ts.OvertimeHours += e.OvertimeHours
		ts.Entries = append(ts.Entries, entry)
	}

	return ts
}

type ApproveStageRequest struct {
	Stage int     `json:"stage" validate:"required,gte=1,lte=4"`
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

func (r *ApproveStageRequest) Validate() error {
	return validator.Struct(r).Err()
}

type RejectStageRequest struct {
	Stage  int    `json:"stage" validate:"required,gte=1,lte=4"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (r *RejectStageRequest) Validate() error {
	return validator.Struct(r).Err()
}

// ========================================
// RESPONSES
// ========================================

type EntryResponse struct {
	ID               string               `json:"id"`
	Date             string               `json:"date"`
	ProjectID        string               `json:"project_id"`
	StartTime        *time.Time           `json:"start_time,omitempty"`
	EndTime          *time.Time           `json:"end_time,omitempty"`
	HoursWorked      float64              `json:"hours_worked"`
	OvertimeHours    float64              `json:"overtime_hours"`
	Billable         bool                 `json:"billable"`
	Start            *LocationFix         `json:"start_location,omitempty"`
	End              *LocationFix         `json:"end_location,omitempty"`
	IsWithinGeofence *bool                `json:"is_within_geofence"`
	Violations       []geofence.Violation `json:"geofence_violations"`
	DistanceFromSite *float64             `json:"distance_from_site"`
	IsOffline        bool                 `json:"is_offline"`
	LocationVerified bool                 `json:"location_verified"`
}

type TimesheetResponse struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id"`
	ProjectID     string          `json:"project_id"`
	AssignmentID  *string         `json:"assignment_id,omitempty"`
	PeriodStart   string          `json:"period_start"`
	PeriodEnd     string          `json:"period_end"`
	TotalHours    float64         `json:"total_hours"`
	OvertimeHours float64         `json:"overtime_hours"`
	Status        Status          `json:"status"`
	Notes         *string         `json:"notes,omitempty"`
	Entries       []EntryResponse `json:"entries"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewTimesheetResponse(ts Timesheet) TimesheetResponse {
	resp := TimesheetResponse{
		ID:            ts.ID,
		EmployeeID:    ts.EmployeeID,
		ProjectID:     ts.ProjectID,
		AssignmentID:  ts.AssignmentID,
		PeriodStart:   ts.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     ts.PeriodEnd.Format("2006-01-02"),
		TotalHours:    ts.TotalHours,
		OvertimeHours: ts.OvertimeHours,
		Status:        ts.Status,
		Notes:         ts.Notes,
		Entries:       make([]EntryResponse, 0, len(ts.Entries)),
		CreatedAt:     ts.CreatedAt,
	}
	for _, e := range ts.Entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			ID:               e.ID,
			Date:             e.Date.Format("2006-01-02"),
			ProjectID:        e.ProjectID,
			StartTime:        e.StartTime,
			EndTime:          e.EndTime,
			HoursWorked:      e.HoursWorked,
			OvertimeHours:    e.OvertimeHours,
			Billable:         e.Billable,
			Start:            e.Start,
			End:              e.End,
			IsWithinGeofence: e.IsWithinGeofence,
			Violations:       e.Violations,
			DistanceFromSite: e.DistanceFromSite,
			IsOffline:        e.IsOffline,
			LocationVerified: e.LocationVerified,
		})
	}
	return resp
}

type StageResponse struct {
	Stage Stage  `json:"stage"`
	Name  string `json:"name"`
	StageRecord
}

type ApprovalResponse struct {
	TimesheetID     string                    `json:"timesheet_id"`
	Status          Status                    `json:"status"`
	ApprovalLevel   int                       `json:"approval_level"`
	Progress        int                       `json:"progress"`
	NextStage       *string                   `json:"next_stage"`
	Stages          []StageResponse           `json:"stages"`
	RejectionStage  *Stage                    `json:"rejection_stage"`
	RejectionReason *string                   `json:"rejection_reason"`
	RejectedAt      *time.Time                `json:"rejected_at"`
	GPSLogs         []geofence.LocationSample `json:"gps_logs"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func NewApprovalResponse(rec ApprovalRecord) ApprovalResponse {
	resp := ApprovalResponse{
		TimesheetID:     rec.TimesheetID,
		Status:          rec.Status,
		ApprovalLevel:   rec.Level,
		Progress:        rec.Progress(),
		RejectionStage:  rec.RejectionStage,
		RejectionReason: rec.RejectionReason,
		RejectedAt:      rec.RejectedAt,
		GPSLogs:         rec.GPSLogs,
		UpdatedAt:       rec.UpdatedAt,
	}
	if next, ok := rec.NextStage(); ok {
		name := next.String()
		resp.NextStage = &name
	}
	for i, s := range rec.Stages {
		stage := Stage(i + 1)
		resp.Stages = append(resp.Stages, StageResponse{Stage: stage, Name: stage.String(), StageRecord: s})
	}
	return resp
}

type AuditEntryResponse struct {
	Action     AuditAction `json:"action"`
	Stage      *Stage      `json:"stage,omitempty"`
	ActorID    string      `json:"actor_id"`
	FromStatus Status      `json:"from_status"`
	ToStatus   Status      `json:"to_status"`
	FromLevel  int         `json:"from_level"`
	ToLevel    int         `json:"to_level"`
	Notes      *string     `json:"notes,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewAuditEntryResponses(entries []AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			Action:     e.Action,
			Stage:      e.Stage,
			ActorID:    e.ActorID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			FromLevel:  e.FromLevel,
			ToLevel:    e.ToLevel,
			Notes:      e.Notes,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}
