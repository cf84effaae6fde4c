package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, recipient_id, sender_id, event_id, type, title, message, data, is_read, read_at, created_at`

type notificationRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepository{db: db, now: time.Now}
}

func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.CreateBatch(ctx, []*notification.Notification{n})
}

// CreateBatch inserts all rows in one statement through unnest. A row that
// repeats (event_id, recipient_id) is ignored, so replayed events do not
// duplicate the inbox.
func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	var (
		ids        = make([]string, len(ns))
		recipients = make([]string, len(ns))
		senders    = make([]*string, len(ns))
		events     = make([]string, len(ns))
		types      = make([]string, len(ns))
		titles     = make([]string, len(ns))
		messages   = make([]string, len(ns))
		payloads   = make([][]byte, len(ns))
		createdAt  = make([]time.Time, len(ns))
	)
	for i, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = r.now()
		}
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}

		ids[i] = n.ID
		recipients[i] = n.RecipientID
		senders[i] = n.SenderID
		events[i] = n.EventID
		types[i] = string(n.Type)
		titles[i] = n.Title
		messages[i] = n.Message
		payloads[i] = data
		createdAt[i] = n.CreatedAt
	}

	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, event_id, type, title, message, data, is_read, created_at)
		SELECT id, recipient_id, sender_id, event_id, type, title, message, data, false, created_at
		FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::text[], $5::text[], $6::text[], $7::text[], $8::jsonb[], $9::timestamptz[])
			AS t(id, recipient_id, sender_id, event_id, type, title, message, data, created_at)
		ON CONFLICT (event_id, recipient_id) DO NOTHING
	`
	if _, err := GetQuerier(ctx, r.db).Exec(ctx, query,
		ids, recipients, senders, events, types, titles, messages, payloads, createdAt,
	); err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

// GetByUserID pages through a user's inbox, newest first. The total comes
// from a window count on the same query.
func (r *notificationRepository) GetByUserID(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]*notification.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := `
		SELECT ` + notificationColumns + `, COUNT(*) OVER() AS total
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR is_read = false)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := GetQuerier(ctx, r.db).Query(ctx, query, userID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var (
		out   []*notification.Notification
		total int
	)
	for rows.Next() {
		n, err := scanNotification(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read notifications: %w", err)
	}

	// An out-of-range page has no rows to carry the window count.
	if len(out) == 0 && page > 1 {
		count, err := r.count(ctx, userID, unreadOnly)
		if err != nil {
			return nil, 0, err
		}
		total = count
	}
	return out, total, nil
}

func scanNotification(row pgx.Row, total *int) (*notification.Notification, error) {
	var (
		n    notification.Notification
		kind string
		data []byte
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.EventID, &kind, &n.Title, &n.Message, &data, &n.IsRead, &n.ReadAt, &n.CreatedAt, total); err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	n.Type = notification.NotificationType(kind)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("notification %s has invalid data: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (r *notificationRepository) count(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	var n int
	err := GetQuerier(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND (NOT $2 OR is_read = false)`,
		userID, unreadOnly,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, userID, true)
}

// MarkAsRead only touches rows owned by userID; foreign ids are ignored.
func (r *notificationRepository) MarkAsRead(ctx context.Context, ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := GetQuerier(ctx, r.db).Exec(ctx, `
		UPDATE notifications SET is_read = true, read_at = $1
		WHERE recipient_id = $2 AND id = ANY($3::uuid[]) AND is_read = false
	`, r.now(), userID, ids)
	if err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID string) error {
	_, err := GetQuerier(ctx, r.db).Exec(ctx, `
		UPDATE notifications SET is_read = true, read_at = $1
		WHERE recipient_id = $2 AND is_read = false
	`, r.now(), userID)
	if err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id string, userID string) error {
	tag, err := GetQuerier(ctx, r.db).Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotificationNotFound
	}
	return nil
}

// Preferences

func (r *notificationRepository) GetPreferences(ctx context.Context, userID string) ([]*notification.NotificationPreference, error) {
	rows, err := GetQuerier(ctx, r.db).Query(ctx, `
		SELECT id, user_id, notification_type, email_enabled, push_enabled, created_at, updated_at
		FROM notification_preferences
		WHERE user_id = $1
		ORDER BY notification_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}

	prefs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*notification.NotificationPreference, error) {
		var (
			p    notification.NotificationPreference
			kind string
		)
		err := row.Scan(&p.ID, &p.UserID, &kind, &p.EmailEnabled, &p.PushEnabled, &p.CreatedAt, &p.UpdatedAt)
		p.NotificationType = notification.NotificationType(kind)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan preferences: %w", err)
	}
	return prefs, nil
}

func (r *notificationRepository) UpsertPreference(ctx context.Context, pref *notification.NotificationPreference) error {
	if pref.ID == "" {
		pref.ID = uuid.New().String()
	}
	now := r.now()
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now

	_, err := GetQuerier(ctx, r.db).Exec(ctx, `
		INSERT INTO notification_preferences (id, user_id, notification_type, email_enabled, push_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, notification_type) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			updated_at = EXCLUDED.updated_at
	`, pref.ID, pref.UserID, string(pref.NotificationType), pref.EmailEnabled, pref.PushEnabled, pref.CreatedAt, pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}

func (r *notificationRepository) ChannelEnabled(ctx context.Context, userID string, notifType notification.NotificationType, channel notification.Channel) (bool, error) {
	if channel != notification.ChannelEmail && channel != notification.ChannelPush {
		return true, nil
	}

	var emailEnabled, pushEnabled bool
	err := GetQuerier(ctx, r.db).QueryRow(ctx, `
		SELECT email_enabled, push_enabled
		FROM notification_preferences
		WHERE user_id = $1 AND notification_type = $2
	`, userID, string(notifType)).Scan(&emailEnabled, &pushEnabled)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to read notification preference: %w", err)
	}

	if channel == notification.ChannelEmail {
		return emailEnabled, nil
	}
	return pushEnabled, nil
}
