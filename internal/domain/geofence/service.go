package geofence

import "context"

// LocationValidator checks a sample against the active zones of its project.
type LocationValidator interface {
	Validate(ctx context.Context, sample LocationSample) (ComplianceResult, error)
	// ValidateAndReport also publishes a violation event when the sample is
	// not compliant.
	ValidateAndReport(ctx context.Context, sample LocationSample) (ComplianceResult, error)
	// Report publishes the violation event for a result obtained from
	// Validate. Callers that persist the result report after it is stored.
	Report(ctx context.Context, sample LocationSample, result ComplianceResult)
}

type ZoneService interface {
	Create(ctx context.Context, projectID string, req CreateZoneRequest) (Zone, error)
	Update(ctx context.Context, zoneID string, req UpdateZoneRequest) (Zone, error)
	Delete(ctx context.Context, zoneID string) error
	ListByProject(ctx context.Context, projectID string) ([]ZoneResponse, error)
}
