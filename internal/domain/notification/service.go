package notification

import (
	"context"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
)

// Service is the dispatcher plus the inbox API backing the in-app channel
type Service interface {
	// Publish hands an event to the background workers. Delivery failures
	// are logged, never returned.
	event.Publisher

	GetNotifications(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*NotificationListResponse, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, req MarkAsReadRequest) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string, notificationID string) error

	GetPreferences(ctx context.Context, userID string) ([]PreferenceResponse, error)
	UpdatePreference(ctx context.Context, userID string, req UpdatePreferenceRequest) error

	// SSE subscription
	Subscribe(ctx context.Context, userID string) (<-chan SSEEvent, func())

	// Stop drains the queue and waits for the workers
	Stop()
}
