package geofence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/google/uuid"
)

type zoneService struct {
	repo geofence.ZoneRepository
	now  func() time.Time
}

func NewZoneService(repo geofence.ZoneRepository) geofence.ZoneService {
	return &zoneService{repo: repo, now: time.Now}
}

// Create implements geofence.ZoneService.
func (s *zoneService) Create(ctx context.Context, projectID string, req geofence.CreateZoneRequest) (geofence.Zone, error) {
	if err := req.Validate(); err != nil {
		return geofence.Zone{}, err
	}

	zone := req.ToZone(projectID)
	zone.ID = uuid.New().String()
	zone.CreatedAt = s.now()
	zone.UpdatedAt = zone.CreatedAt

	if err := s.repo.Create(ctx, &zone); err != nil {
		return geofence.Zone{}, fmt.Errorf("failed to create zone: %w", err)
	}

	slog.Info("Geofence zone created", "zone_id", zone.ID, "project_id", projectID, "type", zone.Type)
	return zone, nil
}

// Update implements geofence.ZoneService.
func (s *zoneService) Update(ctx context.Context, zoneID string, req geofence.UpdateZoneRequest) (geofence.Zone, error) {
	if err := req.Validate(); err != nil {
		return geofence.Zone{}, err
	}

	zone, err := s.repo.GetByID(ctx, zoneID)
	if err != nil {
		return geofence.Zone{}, err
	}

	if err := req.Apply(&zone); err != nil {
		return geofence.Zone{}, err
	}
	zone.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, &zone); err != nil {
		return geofence.Zone{}, fmt.Errorf("failed to update zone: %w", err)
	}
	return zone, nil
}

// Delete implements geofence.ZoneService. Zones are only ever soft-deleted.
func (s *zoneService) Delete(ctx context.Context, zoneID string) error {
	if err := s.repo.SoftDelete(ctx, zoneID); err != nil {
		return err
	}
	slog.Info("Geofence zone retired", "zone_id", zoneID)
	return nil
}

// ListByProject implements geofence.ZoneService.
func (s *zoneService) ListByProject(ctx context.Context, projectID string) ([]geofence.ZoneResponse, error) {
	zones, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]geofence.ZoneResponse, 0, len(zones))
	for _, z := range zones {
		out = append(out, geofence.NewZoneResponse(z))
	}
	return out, nil
}
