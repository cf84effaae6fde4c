package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/dedup"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/sse"
)

// Config holds notification service configuration
type Config struct {
	WorkerCount  int           // default: 2
	QueueSize    int           // default: 1000
	MaxRetries   int           // attempts per channel, default: 3
	RetryBackoff time.Duration // first retry delay, doubled each attempt; default: 500ms
	EventTimeout time.Duration // budget for one event, default: 30 seconds

	DedupTTL   time.Duration // default: 24 hours
	MaxPerHour int           // non-critical violation alerts per recipient, default: 10

	BusinessHourStart int            // default: 8
	BusinessHourEnd   int            // default: 18
	Location          *time.Location // default: time.Local

	CriticalDistanceMeters float64 // default: 1000

	// MuteEmployeeOnApproval stops approval notices to the timesheet owner.
	MuteEmployeeOnApproval bool

	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 30 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.MaxPerHour <= 0 {
		c.MaxPerHour = 10
	}
	if c.BusinessHourStart == 0 && c.BusinessHourEnd == 0 {
		c.BusinessHourStart, c.BusinessHourEnd = 8, 18
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.CriticalDistanceMeters <= 0 {
		c.CriticalDistanceMeters = 1000
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Deps are the collaborators of the dispatcher. A channel missing from
// Channels is treated as unavailable and skipped.
type Deps struct {
	Repo      notification.Repository
	Directory notification.RecipientDirectory
	Hub       *sse.Hub
	Dedup     dedup.Store
	Channels  map[notification.Channel]Channel
}

type service struct {
	repo      notification.Repository
	directory notification.RecipientDirectory
	hub       *sse.Hub
	dedup     dedup.Store
	channels  map[notification.Channel]Channel
	config    Config

	queue  chan event.Event
	wg     sync.WaitGroup
	stopCh chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// NewNotificationService creates the dispatcher and starts its workers
func NewNotificationService(deps Deps, cfg Config) notification.Service {
	cfg.setDefaults()

	store := deps.Dedup
	if store == nil {
		store = dedup.NewMemoryStore()
	}
	hub := deps.Hub
	if hub == nil {
		hub = sse.NewHub()
	}

	s := &service{
		repo:      deps.Repo,
		directory: deps.Directory,
		hub:       hub,
		dedup:     store,
		channels:  deps.Channels,
		config:    cfg,
		queue:     make(chan event.Event, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}

	// Start background workers
	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	log.Printf("[NotificationService] Started with %d workers, queue size %d, max retries %d",
		cfg.WorkerCount, cfg.QueueSize, cfg.MaxRetries)

	return s
}

func (s *service) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case ev := <-s.queue:
			s.process(id, ev)
		case <-s.stopCh:
			// drain what was accepted before Stop
			for {
				select {
				case ev := <-s.queue:
					s.process(id, ev)
				default:
					return
				}
			}
		}
	}
}

// Publish queues ev for the workers. The caller's context is not used for
// delivery, so cancelling it never loses an accepted event.
func (s *service) Publish(ctx context.Context, ev event.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		log.Printf("[NotificationService] Stopped, dropping event %s (%s)", ev.ID, ev.Kind)
		return
	}

	select {
	case s.queue <- ev:
	default:
		// Queue full, deliver on a dedicated goroutine
		log.Printf("[NotificationService] Queue full, spilling event %s (%s)", ev.ID, ev.Kind)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(-1, ev)
		}()
	}
}

// process resolves, filters and delivers one event. Errors end here.
func (s *service) process(workerID int, ev event.Event) {
	policy, ok := policies[ev.Kind]
	if !ok {
		log.Printf("[NotificationWorker-%d] No policy for event kind %q, skipping", workerID, ev.Kind)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.EventTimeout)
	defer cancel()

	f := facts{critical: IsCritical(ev, s.config.CriticalDistanceMeters)}
	if ev.Kind == event.KindGeofenceViolation {
		f.strict = geofence.HasStrict(ev.Violations)
	}
	msg := policy.render(ev, f)

	plan := s.plan(ctx, workerID, ev, policy, f)
	if ev.Kind == event.KindGeofenceViolation && !f.critical {
		s.throttle(ctx, workerID, ev, plan)
		if !s.inBusinessHours() {
			delete(plan, notification.ChannelEmail)
		}
	}

	for _, ch := range []notification.Channel{
		notification.ChannelInApp,
		notification.ChannelPush,
		notification.ChannelEmail,
		notification.ChannelBroadcast,
	} {
		recipients := plan[ch]
		if len(recipients) == 0 {
			continue
		}
		sink, ok := s.channels[ch]
		if !ok || sink == nil {
			continue
		}

		recipients = s.allowed(ctx, workerID, ev, ch, f, recipients)
		recipients = s.claim(ctx, workerID, ev, ch, recipients)
		if len(recipients) == 0 {
			continue
		}
		s.deliver(ctx, workerID, sink, ch, ev, msg, recipients)
	}
}

// plan maps each channel to its recipients, one entry per user.
func (s *service) plan(ctx context.Context, workerID int, ev event.Event, policy recipientPolicy, f facts) map[notification.Channel][]notification.Recipient {
	plan := make(map[notification.Channel][]notification.Recipient)
	seen := make(map[notification.Channel]map[string]bool)

	for _, r := range policy.rules {
		if r.when != nil && !r.when(f) {
			continue
		}
		if r.approval && s.config.MuteEmployeeOnApproval {
			continue
		}

		recipients, err := s.resolve(ctx, r.audience, ev)
		if err != nil {
			log.Printf("[NotificationWorker-%d] Failed to resolve %s for event %s: %v", workerID, r.audience, ev.ID, err)
			continue
		}

		for _, ch := range r.channels {
			if seen[ch] == nil {
				seen[ch] = make(map[string]bool)
			}
			for _, rc := range recipients {
				// the actor already knows what they did
				if rc.UserID == "" || rc.UserID == ev.ActorID || seen[ch][rc.UserID] {
					continue
				}
				seen[ch][rc.UserID] = true
				plan[ch] = append(plan[ch], rc)
			}
		}
	}
	return plan
}

func (s *service) resolve(ctx context.Context, a audience, ev event.Event) ([]notification.Recipient, error) {
	switch a {
	case audienceEmployee:
		r, err := s.directory.User(ctx, ev.EmployeeID)
		if err != nil {
			return nil, err
		}
		return []notification.Recipient{r}, nil
	case audienceProjectManagers:
		return s.directory.ProjectRole(ctx, ev.ProjectID, notification.RoleProjectManager)
	case audienceHRManagers:
		return s.directory.OrgRole(ctx, notification.RoleHRManager)
	case audienceSystemAdmins:
		return s.directory.OrgRole(ctx, notification.RoleSystemAdmin)
	case audienceNextStage:
		stage, ok := nextStage(ev)
		if !ok {
			return nil, nil
		}
		return s.directory.StageApprovers(ctx, ev.ProjectID, int(stage))
	case audiencePriorApprovers:
		out := make([]notification.Recipient, 0, len(ev.PriorApprovers))
		for _, id := range ev.PriorApprovers {
			r, err := s.directory.User(ctx, id)
			if err != nil {
				return out, err
			}
			out = append(out, r)
		}
		return out, nil
	}
	return nil, nil
}

// throttle drops users who already received MaxPerHour violation alerts in
// the last hour. Each user is counted once per event.
func (s *service) throttle(ctx context.Context, workerID int, ev event.Event, plan map[notification.Channel][]notification.Recipient) {
	over := make(map[string]bool)
	counted := make(map[string]bool)

	for _, recipients := range plan {
		for _, r := range recipients {
			if counted[r.UserID] {
				continue
			}
			counted[r.UserID] = true

			n, err := s.dedup.Hit(ctx, "throttle:"+r.UserID, time.Hour)
			if err != nil {
				log.Printf("[NotificationWorker-%d] Throttle check failed for %s: %v", workerID, r.UserID, err)
				continue
			}
			if n > int64(s.config.MaxPerHour) {
				over[r.UserID] = true
			}
		}
	}
	if len(over) == 0 {
		return
	}

	log.Printf("[NotificationWorker-%d] Throttled %d recipients for event %s", workerID, len(over), ev.ID)
	for ch, recipients := range plan {
		kept := recipients[:0]
		for _, r := range recipients {
			if !over[r.UserID] {
				kept = append(kept, r)
			}
		}
		plan[ch] = kept
	}
}

func (s *service) inBusinessHours() bool {
	hour := s.config.Now().In(s.config.Location).Hour()
	return hour >= s.config.BusinessHourStart && hour < s.config.BusinessHourEnd
}

// allowed applies opt-out preferences. Critical alerts ignore them.
func (s *service) allowed(ctx context.Context, workerID int, ev event.Event, ch notification.Channel, f facts, recipients []notification.Recipient) []notification.Recipient {
	if f.critical || (ch != notification.ChannelEmail && ch != notification.ChannelPush) || s.repo == nil {
		return recipients
	}

	kept := make([]notification.Recipient, 0, len(recipients))
	for _, r := range recipients {
		enabled, err := s.repo.ChannelEnabled(ctx, r.UserID, notification.NotificationType(ev.Kind), ch)
		if err != nil {
			log.Printf("[NotificationWorker-%d] Preference lookup failed for %s: %v", workerID, r.UserID, err)
			enabled = true
		}
		if enabled {
			kept = append(kept, r)
		}
	}
	return kept
}

// claim keeps the recipients this event has not reached on ch yet.
func (s *service) claim(ctx context.Context, workerID int, ev event.Event, ch notification.Channel, recipients []notification.Recipient) []notification.Recipient {
	kept := make([]notification.Recipient, 0, len(recipients))
	for _, r := range recipients {
		fresh, err := s.dedup.Claim(ctx, DedupKey(ev.ID, r.UserID, ch), s.config.DedupTTL)
		if err != nil {
			// a duplicate is better than a lost notification
			log.Printf("[NotificationWorker-%d] Dedup claim failed for %s/%s: %v", workerID, r.UserID, ch, err)
			fresh = true
		}
		if fresh {
			kept = append(kept, r)
		}
	}
	return kept
}

// deliver retries the recipients a channel failed to reach with exponential
// backoff, then gives up on them.
func (s *service) deliver(ctx context.Context, workerID int, sink Channel, ch notification.Channel, ev event.Event, msg notification.Message, recipients []notification.Recipient) {
	pending := recipients
	backoff := s.config.RetryBackoff

	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		failed, err := sink.Send(ctx, ev, msg, pending)
		if err == nil && len(failed) == 0 {
			log.Printf("[NotificationWorker-%d] Delivered %s via %s to %d recipients", workerID, ev.Kind, ch, len(pending))
			return
		}

		log.Printf("[NotificationWorker-%d] %s delivery of event %s failed for %d recipients (attempt %d/%d): %v",
			workerID, ch, ev.ID, len(failed), attempt, s.config.MaxRetries, err)
		if len(failed) > 0 {
			pending = failed
		}

		if attempt == s.config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			log.Printf("[NotificationWorker-%d] Giving up on %s for event %s: %v", workerID, ch, ev.ID, ctx.Err())
			return
		}
	}

	log.Printf("[NotificationWorker-%d] Dropped %s delivery of event %s to %d recipients", workerID, ch, ev.ID, len(pending))
}

// DedupKey identifies one delivery of an event to a recipient on a channel.
func DedupKey(eventID, userID string, ch notification.Channel) string {
	sum := sha256.Sum256([]byte(eventID + "|" + userID + "|" + string(ch)))
	return "notify:" + hex.EncodeToString(sum[:])
}

// GetNotifications retrieves paginated notifications for a user
func (s *service) GetNotifications(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	notifications, total, err := s.repo.GetByUserID(ctx, userID, page, pageSize, unreadOnly)
	if err != nil {
		return nil, err
	}

	unreadCount, err := s.repo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]notification.NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = notification.NewNotificationResponse(n)
	}

	return &notification.NotificationListResponse{
		Notifications: responses,
		Total:         total,
		UnreadCount:   unreadCount,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

func (s *service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, userID string, req notification.MarkAsReadRequest) error {
	return s.repo.MarkAsRead(ctx, req.NotificationIDs, userID)
}

func (s *service) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *service) Delete(ctx context.Context, userID string, notificationID string) error {
	return s.repo.Delete(ctx, notificationID, userID)
}

// GetPreferences returns every notification type, defaulting to enabled
func (s *service) GetPreferences(ctx context.Context, userID string) ([]notification.PreferenceResponse, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	return notification.MergePreferences(prefs), nil
}

func (s *service) UpdatePreference(ctx context.Context, userID string, req notification.UpdatePreferenceRequest) error {
	pref := &notification.NotificationPreference{
		UserID:           userID,
		NotificationType: req.NotificationType,
		EmailEnabled:     req.EmailEnabled,
		PushEnabled:      req.PushEnabled,
		UpdatedAt:        s.config.Now(),
	}

	return s.repo.UpsertPreference(ctx, pref)
}

// Subscribe creates an SSE subscription for a user
func (s *service) Subscribe(ctx context.Context, userID string) (<-chan notification.SSEEvent, func()) {
	ch, cleanup := s.hub.Subscribe(userID)

	out := make(chan notification.SSEEvent, 10)

	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return
				}
				resp, ok := e.Data.(notification.NotificationResponse)
				if !ok {
					continue
				}
				select {
				case out <- notification.SSEEvent{Event: e.Event, Data: resp}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cleanup
}

// Stop drains the queue and waits for in-flight deliveries
func (s *service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	log.Println("[NotificationService] Stopped")
}
