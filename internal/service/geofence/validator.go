package geofence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
)

// ValidatorConfig holds location validation limits
type ValidatorConfig struct {
	LookupTimeout     time.Duration // default: 3 seconds
	MaxAccuracyMeters float64       // default: 500, 0 disables the check
	MaxLocationAge    time.Duration // default: 5 minutes, ignored for offline samples
	Now               func() time.Time
}

type locationValidator struct {
	zones      geofence.ZoneRepository
	classifier *Classifier
	publisher  event.Publisher
	cfg        ValidatorConfig
}

// NewLocationValidator creates a validator reading zones from repo and
// reporting violations to publisher.
func NewLocationValidator(repo geofence.ZoneRepository, publisher event.Publisher, cfg ValidatorConfig) geofence.LocationValidator {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if cfg.MaxAccuracyMeters == 0 {
		cfg.MaxAccuracyMeters = 500
	}
	if cfg.MaxLocationAge == 0 {
		cfg.MaxLocationAge = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = event.Discard{}
	}

	return &locationValidator{
		zones:      repo,
		classifier: NewClassifier(),
		publisher:  publisher,
		cfg:        cfg,
	}
}

// Validate implements geofence.LocationValidator.
func (v *locationValidator) Validate(ctx context.Context, sample geofence.LocationSample) (geofence.ComplianceResult, error) {
	if err := v.checkSample(sample); err != nil {
		return geofence.ComplianceResult{}, err
	}

	zones, err := v.activeZones(ctx, sample.ProjectID)
	if err != nil {
		return geofence.ComplianceResult{}, err
	}

	result := geofence.ComplianceResult{
		Compliant:  true,
		Violations: []geofence.Violation{},
	}

	point := sample.Coordinate()
	var raw []geofence.RawViolation

	for _, zone := range zones {
		if !zone.IsActive || zone.DeletedAt != nil {
			continue
		}

		inside, distance, err := evaluateZone(point, zone)
		if err != nil {
			slog.Warn("Skipping corrupt geofence zone",
				"zone_id", zone.ID,
				"project_id", sample.ProjectID,
				"error", err,
			)
			continue
		}

		if result.DistanceFromNearestZoneMeters == nil || distance < *result.DistanceFromNearestZoneMeters {
			id, d := zone.ID, distance
			result.NearestZoneID = &id
			result.DistanceFromNearestZoneMeters = &d
		}

		switch {
		case zone.RequiresPresence() && !inside:
			raw = append(raw, geofence.RawViolation{Zone: zone, Direction: geofence.DirectionOutside, DistanceMeters: distance})
		case zone.ForbidsPresence() && inside:
			raw = append(raw, geofence.RawViolation{Zone: zone, Direction: geofence.DirectionInside, DistanceMeters: distance})
		}
	}

	if len(raw) > 0 {
		result.Violations = v.classifier.Classify(raw)
		// worst first
		sort.SliceStable(result.Violations, func(i, j int) bool {
			return result.Violations[i].DistanceMeters > result.Violations[j].DistanceMeters
		})
		result.Compliant = false
	}

	return result, nil
}

// ValidateAndReport implements geofence.LocationValidator.
func (v *locationValidator) ValidateAndReport(ctx context.Context, sample geofence.LocationSample) (geofence.ComplianceResult, error) {
	result, err := v.Validate(ctx, sample)
	if err != nil {
		return result, err
	}
	v.Report(ctx, sample, result)
	return result, nil
}

// Report implements geofence.LocationValidator. Compliant results publish
// nothing.
func (v *locationValidator) Report(ctx context.Context, sample geofence.LocationSample, result geofence.ComplianceResult) {
	if result.Compliant {
		return
	}

	ev := event.New(event.KindGeofenceViolation, v.cfg.Now())
	ev.EmployeeID = sample.EmployeeID
	ev.ProjectID = sample.ProjectID
	ev.Violations = result.Violations
	ev.DistanceFromSite = result.DistanceFromNearestZoneMeters
	ev.Latitude = sample.Latitude
	ev.Longitude = sample.Longitude

	// the notification outlives the request that triggered it
	v.publisher.Publish(context.WithoutCancel(ctx), ev)
}

func (v *locationValidator) activeZones(ctx context.Context, projectID string) ([]geofence.Zone, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.LookupTimeout)
	defer cancel()

	zones, err := v.zones.GetActiveZonesForProject(lookupCtx, projectID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: project %s", geofence.ErrLookupTimeout, projectID)
		}
		return nil, fmt.Errorf("failed to get active zones: %w", err)
	}
	return zones, nil
}

func (v *locationValidator) checkSample(s geofence.LocationSample) error {
	switch {
	case s.EmployeeID == "":
		return fmt.Errorf("%w: employee is required", geofence.ErrInvalidSample)
	case s.ProjectID == "":
		return fmt.Errorf("%w: project is required", geofence.ErrInvalidSample)
	case s.CapturedAt.IsZero():
		return fmt.Errorf("%w: capture time is required", geofence.ErrInvalidSample)
	}

	if err := s.Coordinate().Validate(); err != nil {
		return err
	}

	if s.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy must not be negative", geofence.ErrInvalidSample)
	}
	if v.cfg.MaxAccuracyMeters > 0 && s.AccuracyMeters > v.cfg.MaxAccuracyMeters {
		return fmt.Errorf("%w: GPS accuracy %.0f m is worse than the allowed %.0f m",
			geofence.ErrInvalidSample, s.AccuracyMeters, v.cfg.MaxAccuracyMeters)
	}

	if !s.Offline && v.cfg.MaxLocationAge > 0 {
		if age := v.cfg.Now().Sub(s.CapturedAt); age > v.cfg.MaxLocationAge {
			return fmt.Errorf("%w: location is %s old, maximum is %s",
				geofence.ErrInvalidSample, age.Truncate(time.Second), v.cfg.MaxLocationAge)
		}
	}

	return nil
}

// evaluateZone returns containment and the distance used for ranking: to the
// centre for circles, to the nearest edge for polygons on either side of it.
func evaluateZone(point geo.Coordinate, zone geofence.Zone) (bool, float64, error) {
	if err := zone.Validate(); err != nil {
		return false, 0, err
	}

	switch zone.Type {
	case geofence.ZoneTypeCircular:
		inside, err := geo.InCircle(point, *zone.Center, zone.RadiusMeters)
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", geofence.ErrZoneDataCorrupt, err)
		}
		d, err := geo.Distance(point, *zone.Center)
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", geofence.ErrZoneDataCorrupt, err)
		}
		return inside, d, nil

	default:
		inside, err := geo.InPolygon(point, zone.Vertices)
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", geofence.ErrZoneDataCorrupt, err)
		}
		d, err := geo.DistanceToPolygon(point, zone.Vertices)
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", geofence.ErrZoneDataCorrupt, err)
		}
		return inside, d, nil
	}
}
