package geofence

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
)

type ZoneType string

const (
	ZoneTypeCircular ZoneType = "circular"
	ZoneTypePolygon  ZoneType = "polygon"
)

type ZoneCategory string

const (
	CategoryProjectSite ZoneCategory = "project_site"
	CategoryOffice      ZoneCategory = "office"
	CategoryWarehouse   ZoneCategory = "warehouse"
	CategoryRestricted  ZoneCategory = "restricted"
	CategoryCustom      ZoneCategory = "custom"
)

// Zone is a work area attached to a project. Zones are soft-deleted so that
// historical violations stay attributable.
type Zone struct {
	ID                string
	ProjectID         string
	Name              string
	Type              ZoneType
	Category          ZoneCategory
	Center            *geo.Coordinate
	RadiusMeters      float64
	Vertices          []geo.Coordinate
	IsActive          bool
	EnforceEntry      bool
	EnforceExit       bool
	MonitoringEnabled bool
	AlertOnViolation  bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// Validate checks the geometry invariants of the zone.
func (z Zone) Validate() error {
	switch z.Type {
	case ZoneTypeCircular:
		if z.Center == nil {
			return fmt.Errorf("%w: zone %s has no center", ErrZoneDataCorrupt, z.ID)
		}
		if err := z.Center.Validate(); err != nil {
			return fmt.Errorf("%w: zone %s: %v", ErrZoneDataCorrupt, z.ID, err)
		}
		if z.RadiusMeters <= 0 {
			return fmt.Errorf("%w: zone %s radius must be positive", ErrZoneDataCorrupt, z.ID)
		}
	case ZoneTypePolygon:
		if len(z.Vertices) < 3 {
			return fmt.Errorf("%w: zone %s needs at least 3 vertices", ErrZoneDataCorrupt, z.ID)
		}
		for i, v := range z.Vertices {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: zone %s vertex %d: %v", ErrZoneDataCorrupt, z.ID, i, err)
			}
		}
	default:
		return fmt.Errorf("%w: zone %s has unknown type %q", ErrZoneDataCorrupt, z.ID, z.Type)
	}
	return nil
}

// RequiresPresence reports whether the worker must be inside the zone.
func (z Zone) RequiresPresence() bool {
	return z.EnforceEntry
}

// ForbidsPresence reports whether being inside the zone is a violation.
// EnforceExit marks a restricted area only on its own; with EnforceEntry
// also set the zone is a work area enforced in both directions, so the
// worker must be inside it.
func (z Zone) ForbidsPresence() bool {
	return z.EnforceExit && !z.EnforceEntry
}

// LocationSample is a single reported position. It is never modified after
// capture.
type LocationSample struct {
	EmployeeID     string     `json:"employee_id"`
	ProjectID      string     `json:"project_id"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	AccuracyMeters float64    `json:"accuracy_meters"`
	CapturedAt     time.Time  `json:"captured_at"`
	DeviceID       *string    `json:"device_id,omitempty"`
	Offline        bool       `json:"offline"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

func (s LocationSample) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

type Severity string

const (
	SeverityStrict  Severity = "strict"
	SeverityLenient Severity = "lenient"
)

// Direction is the containment state that broke the zone rule.
type Direction string

const (
	// DirectionOutside means the worker was outside a zone that requires presence.
	DirectionOutside Direction = "outside"
	// DirectionInside means the worker was inside a zone that forbids presence.
	DirectionInside Direction = "inside"
)

// RawViolation is an unclassified containment mismatch.
type RawViolation struct {
	Zone           Zone
	Direction      Direction
	DistanceMeters float64
}

type Violation struct {
	ZoneID         string    `json:"zone_id"`
	ZoneName       string    `json:"zone_name"`
	Direction      Direction `json:"direction"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	DistanceMeters float64   `json:"distance_meters"`
}

// ComplianceResult is embedded in time entries rather than stored on its own.
type ComplianceResult struct {
	Compliant                     bool        `json:"compliant"`
	Violations                    []Violation `json:"violations"`
	NearestZoneID                 *string     `json:"nearest_zone_id"`
	DistanceFromNearestZoneMeters *float64    `json:"distance_from_nearest_zone_meters"`
}

// HasStrict reports whether any violation is strict.
func HasStrict(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityStrict {
			return true
		}
	}
	return false
}
