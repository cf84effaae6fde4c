package geofence

import (
	"fmt"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
)

// Classifier assigns a severity to each raw violation. It holds no state and
// is safe for concurrent use.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify keeps the input order.
func (c *Classifier) Classify(raw []geofence.RawViolation) []geofence.Violation {
	out := make([]geofence.Violation, 0, len(raw))
	for _, rv := range raw {
		out = append(out, geofence.Violation{
			ZoneID:         rv.Zone.ID,
			ZoneName:       rv.Zone.Name,
			Direction:      rv.Direction,
			Severity:       c.Severity(rv),
			Message:        violationMessage(rv),
			DistanceMeters: rv.DistanceMeters,
		})
	}
	return out
}

// Severity is strict only when the zone enforces the failing direction and
// both monitoring and alerting are switched on.
func (c *Classifier) Severity(rv geofence.RawViolation) geofence.Severity {
	z := rv.Zone

	enforced := false
	switch rv.Direction {
	case geofence.DirectionOutside:
		enforced = z.EnforceEntry
	case geofence.DirectionInside:
		enforced = z.EnforceExit
	}

	if enforced && z.MonitoringEnabled && z.AlertOnViolation {
		return geofence.SeverityStrict
	}
	return geofence.SeverityLenient
}

func violationMessage(rv geofence.RawViolation) string {
	if rv.Direction == geofence.DirectionInside {
		return fmt.Sprintf("Location is inside restricted zone %q", rv.Zone.Name)
	}
	return fmt.Sprintf("Location is %.0f m from zone %q and outside the required work area", rv.DistanceMeters, rv.Zone.Name)
}
