package notification

import (
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
)

// NotificationType mirrors the event kind that produced the notification
type NotificationType string

const (
	TypeGeofenceViolation  NotificationType = NotificationType(event.KindGeofenceViolation)
	TypeTimesheetSubmitted NotificationType = NotificationType(event.KindTimesheetSubmitted)
	TypeStageApproved      NotificationType = NotificationType(event.KindStageApproved)
	TypeTimesheetRejected  NotificationType = NotificationType(event.KindTimesheetRejected)
	TypeTimesheetApproved  NotificationType = NotificationType(event.KindTimesheetApproved)
)

// AllNotificationTypes returns all available notification types
func AllNotificationTypes() []NotificationType {
	kinds := event.AllKinds()
	out := make([]NotificationType, len(kinds))
	for i, k := range kinds {
		out[i] = NotificationType(k)
	}
	return out
}

// Channel is a delivery medium
type Channel string

const (
	ChannelInApp     Channel = "in_app"
	ChannelPush      Channel = "push"
	ChannelEmail     Channel = "email"
	ChannelBroadcast Channel = "broadcast"
)

// Role groups recipients the directory can resolve
type Role string

const (
	RoleEmployee       Role = "employee"
	RoleProjectManager Role = "project_manager"
	RoleHRManager      Role = "hr_manager"
	RoleSystemAdmin    Role = "system_admin"
)

// Recipient is a resolved user that can receive notifications
type Recipient struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

// Notification represents an in-app notification row
type Notification struct {
	ID          string
	RecipientID string
	SenderID    *string
	EventID     string
	Type        NotificationType
	Title       string
	Message     string
	Data        map[string]interface{}
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// NotificationPreference represents user preference for a notification type
type NotificationPreference struct {
	ID               string
	UserID           string
	NotificationType NotificationType
	EmailEnabled     bool
	PushEnabled      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Message is the rendered content shared by every channel
type Message struct {
	Title    string
	Body     string
	Critical bool
	Data     map[string]interface{}
}
