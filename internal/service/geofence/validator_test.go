package geofence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeZoneRepo struct {
	mu    sync.Mutex
	zones map[string][]geofence.Zone
	block bool
	err   error
}

func newFakeZoneRepo(zones ...geofence.Zone) *fakeZoneRepo {
	r := &fakeZoneRepo{zones: make(map[string][]geofence.Zone)}
	for _, z := range zones {
		r.zones[z.ProjectID] = append(r.zones[z.ProjectID], z)
	}
	return r
}

func (r *fakeZoneRepo) GetActiveZonesForProject(ctx context.Context, projectID string) ([]geofence.Zone, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []geofence.Zone
	for _, z := range r.zones[projectID] {
		if z.IsActive && z.DeletedAt == nil {
			out = append(out, z)
		}
	}
	return out, nil
}

func (r *fakeZoneRepo) ListByProject(ctx context.Context, projectID string) ([]geofence.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geofence.Zone(nil), r.zones[projectID]...), nil
}

func (r *fakeZoneRepo) GetByID(ctx context.Context, id string) (geofence.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, zs := range r.zones {
		for _, z := range zs {
			if z.ID == id {
				return z, nil
			}
		}
	}
	return geofence.Zone{}, geofence.ErrZoneNotFound
}

func (r *fakeZoneRepo) Create(ctx context.Context, zone *geofence.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[zone.ProjectID] = append(r.zones[zone.ProjectID], *zone)
	return nil
}

func (r *fakeZoneRepo) Update(ctx context.Context, zone *geofence.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	zs := r.zones[zone.ProjectID]
	for i := range zs {
		if zs[i].ID == zone.ID {
			zs[i] = *zone
			return nil
		}
	}
	return geofence.ErrZoneNotFound
}

func (r *fakeZoneRepo) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, zs := range r.zones {
		for i := range zs {
			if zs[i].ID == id {
				now := time.Now()
				zs[i].DeletedAt = &now
				return nil
			}
		}
	}
	return geofence.ErrZoneNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

var (
	fixedNow  = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	siteCoord = geo.Coordinate{Latitude: 40.7128, Longitude: -74.0060}
)

func siteCircle() geofence.Zone {
	center := siteCoord
	return geofence.Zone{
		ID:                "zone-site",
		ProjectID:         "proj-1",
		Name:              "Main site",
		Type:              geofence.ZoneTypeCircular,
		Category:          geofence.CategoryProjectSite,
		Center:            &center,
		RadiusMeters:      100,
		IsActive:          true,
		EnforceEntry:      true,
		MonitoringEnabled: true,
		AlertOnViolation:  true,
	}
}

func sample(lat, lng float64) geofence.LocationSample {
	return geofence.LocationSample{
		EmployeeID:     "emp-1",
		ProjectID:      "proj-1",
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: 10,
		CapturedAt:     fixedNow,
	}
}

func newTestValidator(repo geofence.ZoneRepository, pub event.Publisher) geofence.LocationValidator {
	return NewLocationValidator(repo, pub, ValidatorConfig{
		LookupTimeout: 50 * time.Millisecond,
		Now:           func() time.Time { return fixedNow },
	})
}

func TestValidate_NoZonesIsCompliant(t *testing.T) {
	v := newTestValidator(newFakeZoneRepo(), nil)

	res, err := v.Validate(context.Background(), sample(40.7128, -74.0060))
	require.NoError(t, err)

	assert.True(t, res.Compliant)
	assert.Empty(t, res.Violations)
	assert.Nil(t, res.NearestZoneID)
	assert.Nil(t, res.DistanceFromNearestZoneMeters)
}

func TestValidate_CircleScenario(t *testing.T) {
	pub := &recordingPublisher{}
	v := newTestValidator(newFakeZoneRepo(siteCircle()), pub)

	t.Run("at the centre", func(t *testing.T) {
		res, err := v.ValidateAndReport(context.Background(), sample(40.7128, -74.0060))
		require.NoError(t, err)

		assert.True(t, res.Compliant)
		assert.Empty(t, res.Violations)
		require.NotNil(t, res.NearestZoneID)
		assert.Equal(t, "zone-site", *res.NearestZoneID)
		assert.InDelta(t, 0, *res.DistanceFromNearestZoneMeters, 1e-6)
		assert.Empty(t, pub.all())
	})

	t.Run("800m north", func(t *testing.T) {
		res, err := v.ValidateAndReport(context.Background(), sample(40.7200, -74.0060))
		require.NoError(t, err)

		assert.False(t, res.Compliant)
		require.Len(t, res.Violations, 1)
		vio := res.Violations[0]
		assert.Equal(t, "zone-site", vio.ZoneID)
		assert.Equal(t, geofence.SeverityStrict, vio.Severity)
		assert.Equal(t, geofence.DirectionOutside, vio.Direction)
		assert.InDelta(t, 800, vio.DistanceMeters, 5)
		assert.InDelta(t, 800, *res.DistanceFromNearestZoneMeters, 5)

		events := pub.all()
		require.Len(t, events, 1)
		assert.Equal(t, event.KindGeofenceViolation, events[0].Kind)
		assert.Equal(t, "emp-1", events[0].EmployeeID)
		assert.True(t, geofence.HasStrict(events[0].Violations))
		assert.InDelta(t, 800, *events[0].DistanceFromSite, 5)
	})
}

func TestValidate_SkipsCorruptZones(t *testing.T) {
	broken := geofence.Zone{
		ID:           "zone-broken",
		ProjectID:    "proj-1",
		Name:         "Broken",
		Type:         geofence.ZoneTypePolygon,
		Vertices:     []geo.Coordinate{{Latitude: 40.71, Longitude: -74.0}, {Latitude: 40.72, Longitude: -74.0}},
		IsActive:     true,
		EnforceEntry: true,
	}
	noCenter := geofence.Zone{ID: "zone-nocenter", ProjectID: "proj-1", Type: geofence.ZoneTypeCircular, RadiusMeters: 50, IsActive: true, EnforceEntry: true}

	v := newTestValidator(newFakeZoneRepo(broken, noCenter, siteCircle()), nil)

	res, err := v.Validate(context.Background(), sample(40.7128, -74.0060))
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Equal(t, "zone-site", *res.NearestZoneID)
}

func TestValidate_PolygonAndNearest(t *testing.T) {
	poly := geofence.Zone{
		ID:        "zone-yard",
		ProjectID: "proj-1",
		Name:      "Yard",
		Type:      geofence.ZoneTypePolygon,
		Vertices: []geo.Coordinate{
			{Latitude: 40.7120, Longitude: -74.0070},
			{Latitude: 40.7130, Longitude: -74.0070},
			{Latitude: 40.7130, Longitude: -74.0050},
			{Latitude: 40.7120, Longitude: -74.0050},
		},
		IsActive:          true,
		EnforceEntry:      true,
		MonitoringEnabled: false,
		AlertOnViolation:  true,
	}
	far := siteCircle()
	far.ID = "zone-far"
	far.Center = &geo.Coordinate{Latitude: 40.7500, Longitude: -74.0060}

	v := newTestValidator(newFakeZoneRepo(poly, far), nil)

	res, err := v.Validate(context.Background(), sample(40.7125, -74.0060))
	require.NoError(t, err)
	assert.False(t, res.Compliant, "outside the far circle")
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "zone-far", res.Violations[0].ZoneID)
	assert.Equal(t, "zone-yard", *res.NearestZoneID)
	// margin to the southern and northern edges, not zero
	assert.InDelta(t, 55.6, *res.DistanceFromNearestZoneMeters, 1)

	res, err = v.Validate(context.Background(), sample(40.7100, -74.0060))
	require.NoError(t, err)
	require.Len(t, res.Violations, 2)
	// worst first
	assert.Equal(t, "zone-far", res.Violations[0].ZoneID)
	assert.Equal(t, "zone-yard", res.Violations[1].ZoneID)
	assert.Equal(t, geofence.SeverityLenient, res.Violations[1].Severity, "monitoring disabled")
}

func TestValidate_RestrictedZone(t *testing.T) {
	center := siteCoord
	restricted := geofence.Zone{
		ID:                "zone-restricted",
		ProjectID:         "proj-1",
		Name:              "Blast area",
		Type:              geofence.ZoneTypeCircular,
		Category:          geofence.CategoryRestricted,
		Center:            &center,
		RadiusMeters:      50,
		IsActive:          true,
		EnforceExit:       true,
		MonitoringEnabled: true,
		AlertOnViolation:  true,
	}
	v := newTestValidator(newFakeZoneRepo(restricted), nil)

	res, err := v.Validate(context.Background(), sample(40.7128, -74.0060))
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, geofence.DirectionInside, res.Violations[0].Direction)
	assert.Equal(t, geofence.SeverityStrict, res.Violations[0].Severity)

	res, err = v.Validate(context.Background(), sample(40.7200, -74.0060))
	require.NoError(t, err)
	assert.True(t, res.Compliant)
}

func TestValidate_EntryAndExitEnforcedIsWorkArea(t *testing.T) {
	z := siteCircle()
	z.EnforceExit = true
	v := newTestValidator(newFakeZoneRepo(z), nil)

	res, err := v.Validate(context.Background(), sample(40.7128, -74.0060))
	require.NoError(t, err)
	assert.True(t, res.Compliant, "inside a work area is never a violation")

	res, err = v.Validate(context.Background(), sample(40.7200, -74.0060))
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, geofence.DirectionOutside, res.Violations[0].Direction)
	assert.Equal(t, geofence.SeverityStrict, res.Violations[0].Severity)
}

func TestValidate_IgnoresInactiveZones(t *testing.T) {
	z := siteCircle()
	z.IsActive = false
	v := newTestValidator(newFakeZoneRepo(z), nil)

	res, err := v.Validate(context.Background(), sample(40.7200, -74.0060))
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Nil(t, res.NearestZoneID)
}

func TestValidate_InvalidSamples(t *testing.T) {
	v := newTestValidator(newFakeZoneRepo(siteCircle()), nil)

	tests := []struct {
		name   string
		mutate func(s *geofence.LocationSample)
		want   error
	}{
		{"missing employee", func(s *geofence.LocationSample) { s.EmployeeID = "" }, geofence.ErrInvalidSample},
		{"missing project", func(s *geofence.LocationSample) { s.ProjectID = "" }, geofence.ErrInvalidSample},
		{"missing capture time", func(s *geofence.LocationSample) { s.CapturedAt = time.Time{} }, geofence.ErrInvalidSample},
		{"poor accuracy", func(s *geofence.LocationSample) { s.AccuracyMeters = 800 }, geofence.ErrInvalidSample},
		{"stale location", func(s *geofence.LocationSample) { s.CapturedAt = fixedNow.Add(-10 * time.Minute) }, geofence.ErrInvalidSample},
		{"latitude out of range", func(s *geofence.LocationSample) { s.Latitude = 123 }, geo.ErrInvalidCoordinate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sample(40.7128, -74.0060)
			tt.mutate(&s)
			_, err := v.Validate(context.Background(), s)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("offline samples skip the age check", func(t *testing.T) {
		s := sample(40.7128, -74.0060)
		s.CapturedAt = fixedNow.Add(-6 * time.Hour)
		s.Offline = true
		res, err := v.Validate(context.Background(), s)
		require.NoError(t, err)
		assert.True(t, res.Compliant)
	})
}

func TestValidate_LookupTimeout(t *testing.T) {
	repo := newFakeZoneRepo()
	repo.block = true
	v := newTestValidator(repo, nil)

	_, err := v.Validate(context.Background(), sample(40.7128, -74.0060))
	assert.ErrorIs(t, err, geofence.ErrLookupTimeout)
}

func TestValidate_CallerCancellation(t *testing.T) {
	repo := newFakeZoneRepo()
	repo.block = true
	v := newTestValidator(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, sample(40.7128, -74.0060))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, geofence.ErrLookupTimeout)
}
