package geofence

import "context"

type ZoneRepository interface {
	// GetActiveZonesForProject excludes inactive and soft-deleted zones.
	GetActiveZonesForProject(ctx context.Context, projectID string) ([]Zone, error)
	ListByProject(ctx context.Context, projectID string) ([]Zone, error)
	GetByID(ctx context.Context, id string) (Zone, error)
	Create(ctx context.Context, zone *Zone) error
	Update(ctx context.Context, zone *Zone) error
	SoftDelete(ctx context.Context, id string) error
}
