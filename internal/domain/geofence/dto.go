package geofence

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
)

// ========================================
// LOCATION DTOs
// ========================================

type ValidateLocationRequest struct {
	EmployeeID     string     `json:"employee_id" validate:"required"`
	ProjectID      string     `json:"project_id" validate:"required"`
	Latitude       float64    `json:"latitude" validate:"latitude"`
	Longitude      float64    `json:"longitude" validate:"longitude"`
	AccuracyMeters float64    `json:"accuracy_meters" validate:"gte=0"`
	CapturedAt     *time.Time `json:"captured_at"`
	DeviceID       *string    `json:"device_id"`
	Offline        bool       `json:"offline"`
}

func (r *ValidateLocationRequest) Validate() error {
	return validator.Struct(r).Err()
}

// ToSample converts the request; a missing capture time means "now".
func (r *ValidateLocationRequest) ToSample(now time.Time) LocationSample {
	capturedAt := now
	if r.CapturedAt != nil {
		capturedAt = *r.CapturedAt
	}
	s := LocationSample{
		EmployeeID:     r.EmployeeID,
		ProjectID:      r.ProjectID,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		AccuracyMeters: r.AccuracyMeters,
		CapturedAt:     capturedAt,
		DeviceID:       r.DeviceID,
		Offline:        r.Offline,
	}
	if r.Offline {
		synced := now
		s.SyncedAt = &synced
	}
	return s
}

// ========================================
// ZONE DTOs
// ========================================

const (
	MinZoneRadiusMeters = 10
	MaxZoneRadiusMeters = 5000
	MaxPolygonVertices  = 50
)

type CreateZoneRequest struct {
	Name              string           `json:"name" validate:"required,max=255"`
	Type              ZoneType         `json:"type" validate:"required,oneof=circular polygon"`
	Category          ZoneCategory     `json:"category" validate:"omitempty,oneof=project_site office warehouse restricted custom"`
	Center            *geo.Coordinate  `json:"center"`
	RadiusMeters      float64          `json:"radius_meters"`
	Vertices          []geo.Coordinate `json:"vertices" validate:"max=50"`
	IsActive          *bool            `json:"is_active"`
	EnforceEntry      *bool            `json:"enforce_entry"`
	EnforceExit       *bool            `json:"enforce_exit"`
	MonitoringEnabled *bool            `json:"monitoring_enabled"`
	AlertOnViolation  *bool            `json:"alert_on_violation"`
}

func (r *CreateZoneRequest) Validate() error {
	errs := validator.Struct(r)
	errs = append(errs, validateGeometry(r.Type, r.Center, r.RadiusMeters, r.Vertices)...)
	return errs.Err()
}

func validateGeometry(t ZoneType, center *geo.Coordinate, radius float64, vertices []geo.Coordinate) validator.ValidationErrors {
	var errs validator.ValidationErrors

	switch t {
	case ZoneTypeCircular:
		if center == nil {
			errs.Add("center", "center is required for circular zones")
		} else if err := center.Validate(); err != nil {
			errs.Add("center", err.Error())
		}
		if radius < MinZoneRadiusMeters || radius > MaxZoneRadiusMeters {
			errs.Add("radius_meters", fmt.Sprintf("radius_meters must be between %d and %d", MinZoneRadiusMeters, MaxZoneRadiusMeters))
		}
	case ZoneTypePolygon:
		if len(vertices) < 3 {
			errs.Add("vertices", "polygon zones need at least 3 vertices")
		}
		if len(vertices) > MaxPolygonVertices {
			errs.Add("vertices", fmt.Sprintf("polygon zones allow at most %d vertices", MaxPolygonVertices))
		}
		for i, v := range vertices {
			if err := v.Validate(); err != nil {
				errs.Add(fmt.Sprintf("vertices[%d]", i), err.Error())
			}
		}
	}

	return errs
}

// ToZone builds a new zone with category-specific defaults applied.
func (r *CreateZoneRequest) ToZone(projectID string) Zone {
	category := r.Category
	if category == "" {
		category = CategoryProjectSite
	}

	// restricted areas forbid presence, every other category requires it
	restricted := category == CategoryRestricted
	z := Zone{
		ProjectID:         projectID,
		Name:              r.Name,
		Type:              r.Type,
		Category:          category,
		IsActive:          boolOr(r.IsActive, true),
		EnforceEntry:      boolOr(r.EnforceEntry, !restricted),
		EnforceExit:       boolOr(r.EnforceExit, restricted),
		MonitoringEnabled: boolOr(r.MonitoringEnabled, true),
		AlertOnViolation:  boolOr(r.AlertOnViolation, true),
	}
	if r.Type == ZoneTypeCircular {
		z.Center = r.Center
		z.RadiusMeters = r.RadiusMeters
	} else {
		z.Vertices = r.Vertices
	}
	return z
}

type UpdateZoneRequest struct {
	Name              *string          `json:"name" validate:"omitempty,max=255"`
	Center            *geo.Coordinate  `json:"center"`
	RadiusMeters      *float64         `json:"radius_meters"`
	Vertices          []geo.Coordinate `json:"vertices" validate:"max=50"`
	IsActive          *bool            `json:"is_active"`
	EnforceEntry      *bool            `json:"enforce_entry"`
	EnforceExit       *bool            `json:"enforce_exit"`
	MonitoringEnabled *bool            `json:"monitoring_enabled"`
	AlertOnViolation  *bool            `json:"alert_on_violation"`
}

func (r *UpdateZoneRequest) Validate() error {
	return validator.Struct(r).Err()
}

// Apply merges the request into z and re-checks the resulting geometry.
func (r *UpdateZoneRequest) Apply(z *Zone) error {
	if r.Name != nil {
		z.Name = *r.Name
	}
	if r.Center != nil {
		z.Center = r.Center
	}
	if r.RadiusMeters != nil {
		z.RadiusMeters = *r.RadiusMeters
	}
	if r.Vertices != nil {
		z.Vertices = r.Vertices
	}
	z.IsActive = boolOr(r.IsActive, z.IsActive)
	z.EnforceEntry = boolOr(r.EnforceEntry, z.EnforceEntry)
	z.EnforceExit = boolOr(r.EnforceExit, z.EnforceExit)
	z.MonitoringEnabled = boolOr(r.MonitoringEnabled, z.MonitoringEnabled)
	z.AlertOnViolation = boolOr(r.AlertOnViolation, z.AlertOnViolation)

	return validateGeometry(z.Type, z.Center, z.RadiusMeters, z.Vertices).Err()
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

type ZoneResponse struct {
	ID                string           `json:"id"`
	ProjectID         string           `json:"project_id"`
	Name              string           `json:"name"`
	Type              ZoneType         `json:"type"`
	Category          ZoneCategory     `json:"category"`
	Center            *geo.Coordinate  `json:"center,omitempty"`
	RadiusMeters      float64          `json:"radius_meters,omitempty"`
	Vertices          []geo.Coordinate `json:"vertices,omitempty"`
	IsActive          bool             `json:"is_active"`
	EnforceEntry      bool             `json:"enforce_entry"`
	EnforceExit       bool             `json:"enforce_exit"`
	MonitoringEnabled bool             `json:"monitoring_enabled"`
	AlertOnViolation  bool             `json:"alert_on_violation"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func NewZoneResponse(z Zone) ZoneResponse {
	return ZoneResponse{
		ID:                z.ID,
		ProjectID:         z.ProjectID,
		Name:              z.Name,
		Type:              z.Type,
		Category:          z.Category,
		Center:            z.Center,
		RadiusMeters:      z.RadiusMeters,
		Vertices:          z.Vertices,
		IsActive:          z.IsActive,
		EnforceEntry:      z.EnforceEntry,
		EnforceExit:       z.EnforceExit,
		MonitoringEnabled: z.MonitoringEnabled,
		AlertOnViolation:  z.AlertOnViolation,
		UpdatedAt:         z.UpdatedAt,
	}
}
