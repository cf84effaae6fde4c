package timesheet

import (
	"math"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
)

// ViolationRecord is a stored time entry whose location check failed.
type ViolationRecord struct {
	EntryID          string               `json:"entry_id"`
	TimesheetID      string               `json:"timesheet_id"`
	EmployeeID       string               `json:"employee_id"`
	ProjectID        string               `json:"project_id"`
	Date             time.Time            `json:"date"`
	DistanceFromSite *float64             `json:"distance_from_site"`
	Violations       []geofence.Violation `json:"violations"`
	CreatedAt        time.Time            `json:"created_at"`
}

// StatisticsFilter narrows the compliance statistics; nil fields match all.
// From and To are inclusive entry dates.
type StatisticsFilter struct {
	ProjectID  *string
	EmployeeID *string
	From       *time.Time
	To         *time.Time
}

type GeofenceStatistics struct {
	TotalEntries           int      `json:"total_entries"`
	CompliantEntries       int      `json:"compliant_entries"`
	ViolationEntries       int      `json:"violation_entries"`
	StrictViolationEntries int      `json:"strict_violation_entries"`
	UnverifiedEntries      int      `json:"unverified_entries"`
	ComplianceRate         float64  `json:"compliance_rate"`
	AvgViolationDistance   *float64 `json:"avg_violation_distance_meters"`
}

// ComputeRate sets ComplianceRate to the percentage of checked entries that
// were compliant, rounded to two decimals. Unchecked entries do not count.
func (s *GeofenceStatistics) ComputeRate() {
	checked := s.CompliantEntries + s.ViolationEntries
	if checked == 0 {
		s.ComplianceRate = 0
		return
	}
	s.ComplianceRate = math.Round(float64(s.CompliantEntries)/float64(checked)*10000) / 100
}

// CleanupResult counts the entries and approval records whose location data
// was cleared, or would be in a dry run.
type CleanupResult struct {
	Locations  int64 `json:"locations"`
	Violations int64 `json:"violations"`
	GPSLogs    int64 `json:"gps_logs"`
	DryRun     bool  `json:"dry_run"`
}

func (c CleanupResult) Total() int64 {
	return c.Locations + c.Violations + c.GPSLogs
}

// ========================================
// GEOFENCE REPORT DTOs
// ========================================

const (
	DefaultViolationLimit = 50
	MaxViolationLimit     = 100
)

type StatisticsRequest struct {
	ProjectID  string `json:"project_id" validate:"omitempty,max=64"`
	EmployeeID string `json:"employee_id" validate:"omitempty,max=64"`
	DateFrom   string `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo     string `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
}

func (r *StatisticsRequest) Validate() error {
	errs := validator.Struct(r)
	if len(errs) > 0 {
		return errs
	}

	if r.DateFrom != "" && r.DateTo != "" {
		from, _ := validator.IsValidDate(r.DateFrom)
		to, _ := validator.IsValidDate(r.DateTo)
		if to.Before(from) {
			errs.Add("date_to", "date_to must not be before date_from")
		}
	}
	return errs.Err()
}

// ToFilter assumes Validate passed.
func (r StatisticsRequest) ToFilter() StatisticsFilter {
	var f StatisticsFilter
	if r.ProjectID != "" {
		f.ProjectID = &r.ProjectID
	}
	if r.EmployeeID != "" {
		f.EmployeeID = &r.EmployeeID
	}
	if d, ok := validator.IsValidDate(r.DateFrom); ok {
		f.From = &d
	}
	if d, ok := validator.IsValidDate(r.DateTo); ok {
		f.To = &d
	}
	return f
}
