package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type zoneRepository struct {
	db *database.DB
}

func NewZoneRepository(db *database.DB) geofence.ZoneRepository {
	return &zoneRepository{db: db}
}

const zoneColumns = `id, project_id, name, zone_type, category, center_lat, center_lng, radius_meters, vertices,
	is_active, enforce_entry, enforce_exit, monitoring_enabled, alert_on_violation, created_at, updated_at, deleted_at`

func scanZone(row pgx.Row) (geofence.Zone, error) {
	var (
		z                  geofence.Zone
		zoneType, category string
		centerLat          *float64
		centerLng          *float64
		radius             *float64
		verticesJSON       []byte
	)

	err := row.Scan(
		&z.ID,
		&z.ProjectID,
		&z.Name,
		&zoneType,
		&category,
		&centerLat,
		&centerLng,
		&radius,
		&verticesJSON,
		&z.IsActive,
		&z.EnforceEntry,
		&z.EnforceExit,
		&z.MonitoringEnabled,
		&z.AlertOnViolation,
		&z.CreatedAt,
		&z.UpdatedAt,
		&z.DeletedAt,
	)
	if err != nil {
		return geofence.Zone{}, err
	}

	z.Type = geofence.ZoneType(zoneType)
	z.Category = geofence.ZoneCategory(category)
	if centerLat != nil && centerLng != nil {
		z.Center = &geo.Coordinate{Latitude: *centerLat, Longitude: *centerLng}
	}
	if radius != nil {
		z.RadiusMeters = *radius
	}
	if len(verticesJSON) > 0 {
		if err := json.Unmarshal(verticesJSON, &z.Vertices); err != nil {
			z.Vertices = nil
			return z, fmt.Errorf("%w: zone %s vertices: %v", geofence.ErrZoneDataCorrupt, z.ID, err)
		}
	}
	return z, nil
}

func (r *zoneRepository) list(ctx context.Context, query string, args ...interface{}) ([]geofence.Zone, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	zones := make([]geofence.Zone, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			if errors.Is(err, geofence.ErrZoneDataCorrupt) {
				// keep the row; the validator skips corrupt zones
				zones = append(zones, z)
				continue
			}
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zones: %w", err)
	}

	return zones, nil
}

// GetActiveZonesForProject returns active, non-deleted zones of a project
func (r *zoneRepository) GetActiveZonesForProject(ctx context.Context, projectID string) ([]geofence.Zone, error) {
	query := `SELECT ` + zoneColumns + `
		FROM geofence_zones
		WHERE project_id = $1 AND is_active = true AND deleted_at IS NULL
		ORDER BY created_at`
	return r.list(ctx, query, projectID)
}

func (r *zoneRepository) ListByProject(ctx context.Context, projectID string) ([]geofence.Zone, error) {
	query := `SELECT ` + zoneColumns + `
		FROM geofence_zones
		WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`
	return r.list(ctx, query, projectID)
}

func (r *zoneRepository) GetByID(ctx context.Context, id string) (geofence.Zone, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + zoneColumns + `
		FROM geofence_zones
		WHERE id = $1 AND deleted_at IS NULL`

	z, err := scanZone(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return geofence.Zone{}, geofence.ErrZoneNotFound
		}
		return geofence.Zone{}, fmt.Errorf("failed to get zone: %w", err)
	}
	return z, nil
}

func zoneArgs(z *geofence.Zone) (centerLat, centerLng, radius *float64, vertices []byte, err error) {
	if z.Center != nil {
		centerLat, centerLng = &z.Center.Latitude, &z.Center.Longitude
	}
	if z.Type == geofence.ZoneTypeCircular {
		radius = &z.RadiusMeters
	}
	if len(z.Vertices) > 0 {
		vertices, err = json.Marshal(z.Vertices)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal vertices: %w", err)
		}
	}
	return centerLat, centerLng, radius, vertices, nil
}

func (r *zoneRepository) Create(ctx context.Context, z *geofence.Zone) error {
	q := GetQuerier(ctx, r.db)

	if z.ID == "" {
		z.ID = uuid.New().String()
	}
	now := time.Now()
	if z.CreatedAt.IsZero() {
		z.CreatedAt = now
	}
	z.UpdatedAt = now

	centerLat, centerLng, radius, vertices, err := zoneArgs(z)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO geofence_zones (id, project_id, name, zone_type, category, center_lat, center_lng, radius_meters, vertices,
			is_active, enforce_entry, enforce_exit, monitoring_enabled, alert_on_violation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = q.Exec(ctx, query,
		z.ID,
		z.ProjectID,
		z.Name,
		string(z.Type),
		string(z.Category),
		centerLat,
		centerLng,
		radius,
		vertices,
		z.IsActive,
		z.EnforceEntry,
		z.EnforceExit,
		z.MonitoringEnabled,
		z.AlertOnViolation,
		z.CreatedAt,
		z.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create zone: %w", err)
	}
	return nil
}

func (r *zoneRepository) Update(ctx context.Context, z *geofence.Zone) error {
	q := GetQuerier(ctx, r.db)

	z.UpdatedAt = time.Now()
	centerLat, centerLng, radius, vertices, err := zoneArgs(z)
	if err != nil {
		return err
	}

	query := `
		UPDATE geofence_zones
		SET name = $2, center_lat = $3, center_lng = $4, radius_meters = $5, vertices = $6,
			is_active = $7, enforce_entry = $8, enforce_exit = $9, monitoring_enabled = $10,
			alert_on_violation = $11, updated_at = $12
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := q.Exec(ctx, query,
		z.ID,
		z.Name,
		centerLat,
		centerLng,
		radius,
		vertices,
		z.IsActive,
		z.EnforceEntry,
		z.EnforceExit,
		z.MonitoringEnabled,
		z.AlertOnViolation,
		z.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update zone: %w", err)
	}
	if result.RowsAffected() == 0 {
		return geofence.ErrZoneNotFound
	}
	return nil
}

func (r *zoneRepository) SoftDelete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	query := `UPDATE geofence_zones SET deleted_at = $2, is_active = false WHERE id = $1 AND deleted_at IS NULL`
	result, err := q.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	if result.RowsAffected() == 0 {
		return geofence.ErrZoneNotFound
	}
	return nil
}
