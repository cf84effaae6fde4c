package notification

import (
	"fmt"
	"strings"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
)

// audience names a group of recipients the directory can resolve for an event.
type audience int

const (
	audienceEmployee audience = iota
	audienceProjectManagers
	audienceHRManagers
	audienceSystemAdmins
	audienceNextStage
	audiencePriorApprovers
)

func (a audience) String() string {
	switch a {
	case audienceEmployee:
		return "employee"
	case audienceProjectManagers:
		return "project_managers"
	case audienceHRManagers:
		return "hr_managers"
	case audienceSystemAdmins:
		return "system_admins"
	case audienceNextStage:
		return "next_stage"
	case audiencePriorApprovers:
		return "prior_approvers"
	}
	return "unknown"
}

// facts are computed once per event and drive rule conditions.
type facts struct {
	critical bool
	strict   bool
}

type rule struct {
	audience audience
	channels []notification.Channel
	when     func(facts) bool
	// approval rules are skipped when the employee is muted on approval
	approval bool
}

// recipientPolicy is one row of the routing table.
type recipientPolicy struct {
	rules  []rule
	render func(ev event.Event, f facts) notification.Message
}

var (
	inApp     = notification.ChannelInApp
	push      = notification.ChannelPush
	email     = notification.ChannelEmail
	broadcast = notification.ChannelBroadcast
)

func ifStrict(f facts) bool   { return f.strict }
func ifCritical(f facts) bool { return f.critical }

// policies routes every event kind. Adding a notification type is a new row.
var policies = map[event.Kind]recipientPolicy{
	event.KindGeofenceViolation: {
		rules: []rule{
			{audience: audienceEmployee, channels: []notification.Channel{inApp, push}, when: ifStrict},
			{audience: audienceProjectManagers, channels: []notification.Channel{inApp, email}},
			{audience: audienceHRManagers, channels: []notification.Channel{inApp, email}},
			{audience: audienceSystemAdmins, channels: []notification.Channel{inApp, email, broadcast}, when: ifCritical},
		},
		render: renderViolation,
	},
	event.KindTimesheetSubmitted: {
		rules: []rule{
			{audience: audienceNextStage, channels: []notification.Channel{inApp, push, email}},
		},
		render: renderSubmitted,
	},
	event.KindStageApproved: {
		rules: []rule{
			{audience: audienceEmployee, channels: []notification.Channel{inApp, push}, approval: true},
			{audience: audienceNextStage, channels: []notification.Channel{inApp, push, email}},
		},
		render: renderStageApproved,
	},
	event.KindTimesheetRejected: {
		rules: []rule{
			{audience: audienceEmployee, channels: []notification.Channel{inApp, push, email}},
			{audience: audiencePriorApprovers, channels: []notification.Channel{inApp}},
		},
		render: renderRejected,
	},
	event.KindTimesheetApproved: {
		rules: []rule{
			{audience: audienceEmployee, channels: []notification.Channel{inApp, push, email}, approval: true},
			{audience: audienceHRManagers, channels: []notification.Channel{inApp}},
		},
		render: renderApproved,
	},
}

// nextStage is the stage whose actor pool should act on ev.
func nextStage(ev event.Event) (timesheet.Stage, bool) {
	switch ev.Kind {
	case event.KindTimesheetSubmitted:
		return timesheet.StageForeman, true
	case event.KindStageApproved:
		next := ev.Stage + 1
		return next, next.Valid()
	}
	return 0, false
}

// IsCritical escalates a violation when any violation is strict or the
// sample lies further than thresholdMeters from the site.
func IsCritical(ev event.Event, thresholdMeters float64) bool {
	if ev.Kind != event.KindGeofenceViolation {
		return false
	}
	if geofence.HasStrict(ev.Violations) {
		return true
	}
	return ev.DistanceFromSite != nil && *ev.DistanceFromSite > thresholdMeters
}

func baseData(ev event.Event) map[string]interface{} {
	data := map[string]interface{}{
		"event_id":    ev.ID,
		"kind":        string(ev.Kind),
		"employee_id": ev.EmployeeID,
		"project_id":  ev.ProjectID,
	}
	if ev.TimesheetID != "" {
		data["timesheet_id"] = ev.TimesheetID
	}
	if ev.Stage.Valid() {
		data["stage"] = ev.Stage.String()
	}
	return data
}

func renderViolation(ev event.Event, f facts) notification.Message {
	title := "Geofence violation"
	if f.critical {
		title = "Critical geofence violation"
	}

	parts := make([]string, 0, len(ev.Violations))
	for _, v := range ev.Violations {
		parts = append(parts, v.Message)
	}
	body := strings.Join(parts, "; ")
	if body == "" {
		body = "Location is outside the permitted work area"
	}
	if ev.DistanceFromSite != nil {
		body += fmt.Sprintf(" (%.0f m from site)", *ev.DistanceFromSite)
	}

	data := baseData(ev)
	data["latitude"] = ev.Latitude
	data["longitude"] = ev.Longitude
	data["violations"] = len(ev.Violations)
	if ev.DistanceFromSite != nil {
		data["distance_from_site"] = *ev.DistanceFromSite
	}

	return notification.Message{Title: title, Body: body, Critical: f.critical, Data: data}
}

func renderSubmitted(ev event.Event, _ facts) notification.Message {
	body := "A timesheet is waiting for foreman approval"
	if len(ev.Violations) > 0 {
		body += fmt.Sprintf(" (%d geofence violations flagged)", len(ev.Violations))
	}
	return notification.Message{Title: "Timesheet submitted", Body: body, Data: baseData(ev)}
}

func renderStageApproved(ev event.Event, _ facts) notification.Message {
	body := fmt.Sprintf("Approved at the %s stage", ev.Stage)
	if next, ok := nextStage(ev); ok {
		body += fmt.Sprintf(", now waiting for %s approval", next)
	}
	return notification.Message{
		Title: "Timesheet stage approved",
		Body:  withNotes(body, ev.Notes),
		Data:  baseData(ev),
	}
}

func renderRejected(ev event.Event, _ facts) notification.Message {
	return notification.Message{
		Title: "Timesheet rejected",
		Body:  withNotes(fmt.Sprintf("Rejected at the %s stage", ev.Stage), ev.Notes),
		Data:  baseData(ev),
	}
}

func renderApproved(ev event.Event, _ facts) notification.Message {
	return notification.Message{
		Title: "Timesheet approved",
		Body:  "All four approval stages are complete",
		Data:  baseData(ev),
	}
}

func withNotes(body string, notes *string) string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return body
	}
	return body + ": " + strings.TrimSpace(*notes)
}
