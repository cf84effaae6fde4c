package worksummary

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
)

// WorkerConfig holds work summary worker configuration
type WorkerConfig struct {
	QueueSize    int           // default: 256
	MaxAttempts  int           // default: 3
	RetryBackoff time.Duration // default: 1 second, doubled per attempt
	Timeout      time.Duration // per attempt, default: 30 seconds
}

type worker struct {
	svc    worksummary.Service
	config WorkerConfig

	queue  chan string
	wg     sync.WaitGroup
	stopCh chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// NewWorker starts a single consumer of final approval events.
func NewWorker(svc worksummary.Service, cfg WorkerConfig) worksummary.Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	w := &worker{
		svc:    svc,
		config: cfg,
		queue:  make(chan string, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	log.Printf("[WorkSummaryWorker] Started, queue size %d", cfg.QueueSize)
	return w
}

// Publish ignores every event except final approval.
func (w *worker) Publish(ctx context.Context, ev event.Event) {
	if ev.Kind != event.KindTimesheetApproved || ev.TimesheetID == "" {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		log.Printf("[WorkSummaryWorker] Stopped, dropping timesheet %s", ev.TimesheetID)
		return
	}

	select {
	case w.queue <- ev.TimesheetID:
	default:
		log.Printf("[WorkSummaryWorker] Queue full, processing timesheet %s on a new goroutine", ev.TimesheetID)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.handle(ev.TimesheetID)
		}()
	}
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		select {
		case id := <-w.queue:
			w.handle(id)
		case <-w.stopCh:
			for {
				select {
				case id := <-w.queue:
					w.handle(id)
				default:
					return
				}
			}
		}
	}
}

func (w *worker) handle(timesheetID string) {
	backoff := w.config.RetryBackoff
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
		summaries, err := w.svc.OnTimesheetApproved(ctx, timesheetID)
		cancel()
		if err == nil {
			log.Printf("[WorkSummaryWorker] Timesheet %s rolled into %d monthly summaries", timesheetID, len(summaries))
			return
		}

		log.Printf("[WorkSummaryWorker] Attempt %d/%d for timesheet %s failed: %v", attempt, w.config.MaxAttempts, timesheetID, err)
		if attempt < w.config.MaxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	log.Printf("[WorkSummaryWorker] Giving up on timesheet %s; the nightly reconcile will pick it up", timesheetID)
}

func (w *worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	log.Println("[WorkSummaryWorker] Stopped")
}
