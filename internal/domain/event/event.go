package event

import (
	"context"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/google/uuid"
)

// Kind identifies a domain event.
type Kind string

const (
	KindGeofenceViolation  Kind = "geofence_violation_detected"
	KindTimesheetSubmitted Kind = "timesheet_submitted"
	KindStageApproved      Kind = "timesheet_stage_approved"
	KindTimesheetRejected  Kind = "timesheet_rejected"
	KindTimesheetApproved  Kind = "timesheet_approved"
)

// AllKinds returns every event kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindGeofenceViolation,
		KindTimesheetSubmitted,
		KindStageApproved,
		KindTimesheetRejected,
		KindTimesheetApproved,
	}
}

// Event is self-contained: consumers never need to read workflow state to
// handle it.
type Event struct {
	ID          string
	Kind        Kind
	OccurredAt  time.Time
	EmployeeID  string
	ProjectID   string
	TimesheetID string
	ActorID     string
	Stage       timesheet.Stage
	Notes       *string
	// PriorApprovers are the users who approved earlier stages; set on
	// rejection events.
	PriorApprovers []string

	Violations       []geofence.Violation
	DistanceFromSite *float64
	Latitude         float64
	Longitude        float64
}

// New returns an event with a fresh ID.
func New(kind Kind, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Kind:       kind,
		OccurredAt: at,
	}
}

// Publisher accepts events without blocking the caller. Implementations
// own delivery and retries and never report delivery failures.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes every event to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
