package geofence

import "errors"

// Geofence domain errors
var (
	ErrInvalidSample   = errors.New("invalid location sample")
	ErrZoneDataCorrupt = errors.New("zone data corrupt")
	ErrZoneNotFound    = errors.New("zone not found")
	ErrLookupTimeout   = errors.New("zone lookup timed out")
)
