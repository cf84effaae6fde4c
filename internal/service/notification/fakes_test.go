package notification_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	svc "github.com/cmlabs-hris/fieldtime-backend/internal/service/notification"
)

type fakeDirectory struct {
	users    map[string]notification.Recipient
	project  map[notification.Role][]notification.Recipient
	org      map[notification.Role][]notification.Recipient
	stages   map[int][]notification.Recipient
	failUser bool
}

func newDirectory() *fakeDirectory {
	d := &fakeDirectory{
		users: map[string]notification.Recipient{},
		project: map[notification.Role][]notification.Recipient{
			notification.RoleProjectManager: {person("pm-1", notification.RoleProjectManager)},
		},
		org: map[notification.Role][]notification.Recipient{
			notification.RoleHRManager:   {person("hr-1", notification.RoleHRManager)},
			notification.RoleSystemAdmin: {person("admin-1", notification.RoleSystemAdmin)},
		},
		stages: map[int][]notification.Recipient{
			1: {person("foreman-1", notification.RoleProjectManager)},
			2: {person("incharge-1", notification.RoleProjectManager), person("incharge-2", notification.RoleProjectManager)},
			3: {person("checker-1", notification.RoleProjectManager)},
			4: {person("manager-1", notification.RoleProjectManager)},
		},
	}
	for _, id := range []string{"emp-1", "foreman-1", "incharge-1"} {
		d.users[id] = person(id, notification.RoleEmployee)
	}
	return d
}

func person(id string, role notification.Role) notification.Recipient {
	return notification.Recipient{UserID: id, Name: id, Email: id + "@example.com", Role: role}
}

func (d *fakeDirectory) User(_ context.Context, userID string) (notification.Recipient, error) {
	if d.failUser {
		return notification.Recipient{}, errors.New("directory down")
	}
	r, ok := d.users[userID]
	if !ok {
		return notification.Recipient{}, notification.ErrRecipientNotFound
	}
	return r, nil
}

func (d *fakeDirectory) ProjectRole(_ context.Context, _ string, role notification.Role) ([]notification.Recipient, error) {
	return d.project[role], nil
}

func (d *fakeDirectory) OrgRole(_ context.Context, role notification.Role) ([]notification.Recipient, error) {
	return d.org[role], nil
}

func (d *fakeDirectory) StageApprovers(_ context.Context, _ string, stage int) ([]notification.Recipient, error) {
	return d.stages[stage], nil
}

// fakeRepo keeps inbox rows in memory; only preferences matter to dispatch.
type fakeRepo struct {
	mu       sync.Mutex
	rows     []*notification.Notification
	disabled map[string]bool // userID|type|channel
	prefs    []*notification.NotificationPreference
}

func newRepo() *fakeRepo {
	return &fakeRepo{disabled: map[string]bool{}}
}

func (r *fakeRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, n)
	return nil
}

func (r *fakeRepo) CreateBatch(_ context.Context, ns []*notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, ns...)
	return nil
}

func (r *fakeRepo) GetByUserID(_ context.Context, userID string, page, pageSize int, unreadOnly bool) ([]*notification.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notification.Notification
	for _, n := range r.rows {
		if n.RecipientID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) GetUnreadCount(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.rows {
		if n.RecipientID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkAsRead(_ context.Context, ids []string, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		for _, id := range ids {
			if n.ID == id && n.RecipientID == userID {
				n.IsRead = true
			}
		}
	}
	return nil
}

func (r *fakeRepo) MarkAllAsRead(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.RecipientID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.rows {
		if n.ID == id && n.RecipientID == userID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return notification.ErrNotificationNotFound
}

func (r *fakeRepo) GetPreferences(_ context.Context, userID string) ([]*notification.NotificationPreference, error) {
	var out []*notification.NotificationPreference
	for _, p := range r.prefs {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpsertPreference(_ context.Context, pref *notification.NotificationPreference) error {
	r.prefs = append(r.prefs, pref)
	return nil
}

func (r *fakeRepo) ChannelEnabled(_ context.Context, userID string, t notification.NotificationType, ch notification.Channel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled[userID+"|"+string(t)+"|"+string(ch)], nil
}

// recorder captures every successful delivery per channel.
type recorder struct {
	mu    sync.Mutex
	sent  map[notification.Channel][]string
	calls map[notification.Channel]int
	// fail decides whether a recipient fails on a given attempt
	fail map[notification.Channel]func(userID string, attempt int) bool
}

func newRecorder() *recorder {
	return &recorder{
		sent:  map[notification.Channel][]string{},
		calls: map[notification.Channel]int{},
		fail:  map[notification.Channel]func(string, int) bool{},
	}
}

func (r *recorder) channel(ch notification.Channel) svc.Channel {
	return svc.ChannelFunc(func(_ context.Context, _ event.Event, _ notification.Message, recipients []notification.Recipient) ([]notification.Recipient, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls[ch]++
		attempt := r.calls[ch]

		var failed []notification.Recipient
		for _, rc := range recipients {
			if f := r.fail[ch]; f != nil && f(rc.UserID, attempt) {
				failed = append(failed, rc)
				continue
			}
			r.sent[ch] = append(r.sent[ch], rc.UserID)
		}
		if len(failed) > 0 {
			return failed, errors.New("gateway unavailable")
		}
		return nil, nil
	})
}

func (r *recorder) channels() map[notification.Channel]svc.Channel {
	return map[notification.Channel]svc.Channel{
		notification.ChannelInApp:     r.channel(notification.ChannelInApp),
		notification.ChannelPush:      r.channel(notification.ChannelPush),
		notification.ChannelEmail:     r.channel(notification.ChannelEmail),
		notification.ChannelBroadcast: r.channel(notification.ChannelBroadcast),
	}
}

func (r *recorder) to(ch notification.Channel) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.sent[ch]...)
	sort.Strings(out)
	return out
}

func (r *recorder) callCount(ch notification.Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ch]
}

// at returns a clock fixed to the given local hour.
func at(hour int) func() time.Time {
	t := time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func testConfig(hour int) svc.Config {
	return svc.Config{
		WorkerCount:  2,
		QueueSize:    16,
		RetryBackoff: time.Millisecond,
		Location:     time.UTC,
		Now:          at(hour),
	}
}
