package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	broadcastpkg "github.com/cmlabs-hris/fieldtime-backend/internal/pkg/broadcast"
	emailpkg "github.com/cmlabs-hris/fieldtime-backend/internal/pkg/email"
	pushpkg "github.com/cmlabs-hris/fieldtime-backend/internal/pkg/push"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/sse"
	"github.com/google/uuid"
)

// Channel is a fire-and-forget delivery sink. Send returns the recipients
// that were not reached so the dispatcher can retry only those.
type Channel interface {
	Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error)

func (f ChannelFunc) Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
	return f(ctx, ev, msg, recipients)
}

// InAppChannel stores inbox rows and pushes them to open SSE streams.
type InAppChannel struct {
	repo notification.Repository
	hub  *sse.Hub
	now  func() time.Time
}

func NewInAppChannel(repo notification.Repository, hub *sse.Hub) *InAppChannel {
	return &InAppChannel{repo: repo, hub: hub, now: time.Now}
}

func (c *InAppChannel) Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
	var sender *string
	if ev.ActorID != "" {
		actor := ev.ActorID
		sender = &actor
	}

	rows := make([]*notification.Notification, len(recipients))
	for i, r := range recipients {
		rows[i] = &notification.Notification{
			ID:          uuid.New().String(),
			RecipientID: r.UserID,
			SenderID:    sender,
			EventID:     ev.ID,
			Type:        notification.NotificationType(ev.Kind),
			Title:       msg.Title,
			Message:     msg.Body,
			Data:        msg.Data,
			CreatedAt:   c.now(),
		}
	}

	// one statement, so a failure leaves every row unwritten
	if err := c.repo.CreateBatch(ctx, rows); err != nil {
		return recipients, fmt.Errorf("insert in-app notifications: %w", err)
	}

	if c.hub != nil {
		for _, n := range rows {
			c.hub.Publish(n.RecipientID, sse.Event{
				UserID: n.RecipientID,
				Event:  "notification",
				Data:   notification.NewNotificationResponse(n),
			})
		}
	}
	return nil, nil
}

// PushChannel sends to the per-user FCM topic.
type PushChannel struct {
	sender pushpkg.Sender
}

func NewPushChannel(sender pushpkg.Sender) *PushChannel {
	return &PushChannel{sender: sender}
}

func (c *PushChannel) Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
	data := stringData(msg.Data)

	var failed []notification.Recipient
	var lastErr error
	for _, r := range recipients {
		if err := c.sender.Send(ctx, pushpkg.UserTopic(r.UserID), msg.Title, msg.Body, data); err != nil {
			failed = append(failed, r)
			lastErr = err
		}
	}
	return failed, lastErr
}

// EmailChannel mails each recipient separately.
type EmailChannel struct {
	mailer emailpkg.EmailService
}

func NewEmailChannel(mailer emailpkg.EmailService) *EmailChannel {
	return &EmailChannel{mailer: mailer}
}

func (c *EmailChannel) Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
	var failed []notification.Recipient
	var lastErr error
	for _, r := range recipients {
		if err := ctx.Err(); err != nil {
			return append(failed, r), err
		}
		if r.Email == "" {
			slog.Warn("Recipient has no email address, skipping", "user_id", r.UserID, "event_id", ev.ID)
			continue
		}
		if err := c.mailer.SendNotification(r.Email, r.Name, msg.Title, msg.Body, msg.Critical); err != nil {
			failed = append(failed, r)
			lastErr = err
		}
	}
	return failed, lastErr
}

// BroadcastChannel publishes one message per event to the alerts topic,
// listing every recipient.
type BroadcastChannel struct {
	publisher broadcastpkg.Publisher
}

func NewBroadcastChannel(publisher broadcastpkg.Publisher) *BroadcastChannel {
	return &BroadcastChannel{publisher: publisher}
}

type broadcastPayload struct {
	EventID    string                 `json:"event_id"`
	Kind       string                 `json:"kind"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Critical   bool                   `json:"critical"`
	Recipients []string               `json:"recipients"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func (c *BroadcastChannel) Send(ctx context.Context, ev event.Event, msg notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.UserID
	}

	attrs := map[string]string{
		"kind":     string(ev.Kind),
		"event_id": ev.ID,
	}
	if msg.Critical {
		attrs["critical"] = "true"
	}

	id, err := c.publisher.Publish(ctx, attrs, broadcastPayload{
		EventID:    ev.ID,
		Kind:       string(ev.Kind),
		Title:      msg.Title,
		Body:       msg.Body,
		Critical:   msg.Critical,
		Recipients: ids,
		OccurredAt: ev.OccurredAt,
		Data:       msg.Data,
	})
	if err != nil {
		return recipients, err
	}
	slog.Debug("Broadcast published", "event_id", ev.ID, "message_id", id)
	return nil, nil
}

func stringData(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
