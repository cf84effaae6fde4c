package notification

import (
	"slices"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
)

type MarkAsReadRequest struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1,max=200,dive,uuid"`
}

func (r *MarkAsReadRequest) Validate() error {
	return validator.Struct(r).Err()
}

// UpdatePreferenceRequest toggles the opt-out channels of one type.
// In-app delivery cannot be disabled.
type UpdatePreferenceRequest struct {
	NotificationType NotificationType `json:"notification_type" validate:"required"`
	EmailEnabled     bool             `json:"email_enabled"`
	PushEnabled      bool             `json:"push_enabled"`
}

func (r *UpdatePreferenceRequest) Validate() error {
	if errs := validator.Struct(r); len(errs) > 0 {
		return errs
	}
	if !slices.Contains(AllNotificationTypes(), r.NotificationType) {
		return ErrInvalidNotificationType
	}
	return nil
}

type NotificationResponse struct {
	ID        string                 `json:"id"`
	EventID   string                 `json:"event_id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewNotificationResponse(n *Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		EventID:   n.EventID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Total         int                    `json:"total"`
	UnreadCount   int                    `json:"unread_count"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
}

type PreferenceResponse struct {
	NotificationType NotificationType `json:"notification_type"`
	EmailEnabled     bool             `json:"email_enabled"`
	PushEnabled      bool             `json:"push_enabled"`
}

// MergePreferences lists every notification type; types without a stored
// preference are reported as enabled.
func MergePreferences(stored []*NotificationPreference) []PreferenceResponse {
	byType := make(map[NotificationType]*NotificationPreference, len(stored))
	for _, p := range stored {
		byType[p.NotificationType] = p
	}

	types := AllNotificationTypes()
	out := make([]PreferenceResponse, len(types))
	for i, t := range types {
		out[i] = PreferenceResponse{NotificationType: t, EmailEnabled: true, PushEnabled: true}
		if p, ok := byType[t]; ok {
			out[i].EmailEnabled = p.EmailEnabled
			out[i].PushEnabled = p.PushEnabled
		}
	}
	return out
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type SSETokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// SSEEvent is one frame of the notification stream.
type SSEEvent struct {
	Event string               `json:"event"`
	Data  NotificationResponse `json:"data"`
}
