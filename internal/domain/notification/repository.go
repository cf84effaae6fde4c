package notification

import (
	"context"
)

// Repository defines the notification repository interface
type Repository interface {
	// Notifications CRUD
	Create(ctx context.Context, notification *Notification) error
	CreateBatch(ctx context.Context, notifications []*Notification) error
	GetByUserID(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]*Notification, int, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, ids []string, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string, userID string) error

	// Preferences
	GetPreferences(ctx context.Context, userID string) ([]*NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *NotificationPreference) error
	// ChannelEnabled reports whether userID accepts notifType on an opt-out
	// channel (email or push). Missing preferences count as enabled.
	ChannelEnabled(ctx context.Context, userID string, notifType NotificationType, channel Channel) (bool, error)
}

// RecipientDirectory resolves who should hear about an event
type RecipientDirectory interface {
	User(ctx context.Context, userID string) (Recipient, error)
	// ProjectRole returns members of a project holding role.
	ProjectRole(ctx context.Context, projectID string, role Role) ([]Recipient, error)
	// OrgRole returns users holding an organisation-wide role.
	OrgRole(ctx context.Context, role Role) ([]Recipient, error)
	// StageApprovers returns the actor pool of an approval stage.
	StageApprovers(ctx context.Context, projectID string, stage int) ([]Recipient, error)
}
