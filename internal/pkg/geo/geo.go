package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidPolygon    = errors.New("invalid polygon")
)

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports ErrInvalidCoordinate for non-finite or out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

func toRadians(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return haversine(a, b), nil
}

func haversine(a, b Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// InCircle reports whether point lies within radiusMeters of center.
// A point exactly on the boundary is inside.
func InCircle(point, center Coordinate, radiusMeters float64) (bool, error) {
	d, err := Distance(point, center)
	if err != nil {
		return false, err
	}
	return d <= radiusMeters, nil
}

// InPolygon runs an even-odd ray cast over the implicitly closed ring.
// Latitude and longitude are treated as planar y/x, so rings crossing the
// antimeridian are not supported.
func InPolygon(point Coordinate, vertices []Coordinate) (bool, error) {
	if err := validateRing(vertices); err != nil {
		return false, err
	}
	if err := point.Validate(); err != nil {
		return false, err
	}

	x, y := point.Longitude, point.Latitude
	inside := false
	for i, j := 0, len(vertices)-1; i < len(vertices); j, i = i, i+1 {
		xi, yi := vertices[i].Longitude, vertices[i].Latitude
		xj, yj := vertices[j].Longitude, vertices[j].Latitude

		if (yi > y) != (yj > y) {
			crossX := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < crossX {
				inside = !inside
			}
		}
	}
	return inside, nil
}

// DistanceToPolygon returns the distance in meters from point to the nearest
// edge of the ring. Edges are projected onto a local equirectangular plane
// centred on point, which is accurate at work-site scale.
func DistanceToPolygon(point Coordinate, vertices []Coordinate) (float64, error) {
	if err := validateRing(vertices); err != nil {
		return 0, err
	}
	if err := point.Validate(); err != nil {
		return 0, err
	}

	cosLat := math.Cos(toRadians(point.Latitude))
	project := func(c Coordinate) (float64, float64) {
		px := toRadians(c.Longitude-point.Longitude) * cosLat * EarthRadiusMeters
		py := toRadians(c.Latitude-point.Latitude) * EarthRadiusMeters
		return px, py
	}

	best := math.Inf(1)
	for i, j := 0, len(vertices)-1; i < len(vertices); j, i = i, i+1 {
		ax, ay := project(vertices[j])
		bx, by := project(vertices[i])
		if d := segmentDistance(ax, ay, bx, by); d < best {
			best = d
		}
	}
	return best, nil
}

// segmentDistance is the distance from the origin to segment ab.
func segmentDistance(ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = -(ax*dx + ay*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	return math.Hypot(ax+t*dx, ay+t*dy)
}

// Centroid returns the vertex average of the ring.
func Centroid(vertices []Coordinate) (Coordinate, error) {
	if err := validateRing(vertices); err != nil {
		return Coordinate{}, err
	}
	var c Coordinate
	for _, v := range vertices {
		c.Latitude += v.Latitude
		c.Longitude += v.Longitude
	}
	n := float64(len(vertices))
	return Coordinate{Latitude: c.Latitude / n, Longitude: c.Longitude / n}, nil
}

func validateRing(vertices []Coordinate) error {
	if len(vertices) < 3 {
		return fmt.Errorf("%w: need at least 3 vertices, got %d", ErrInvalidPolygon, len(vertices))
	}
	for i, v := range vertices {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: vertex %d: %v", ErrInvalidPolygon, i, err)
		}
	}
	return nil
}
