package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/events"
	"github.com/spec-kit/ecoguard/internal/service"
)

const defaultQueueSize = 256

// NotificationWorker moves notification delivery off the request path.
// Published events are queued and handled by a single goroutine.
type NotificationWorker struct {
	notifications *service.NotificationService
	logger        *zap.Logger
	queue         chan events.Event

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(notifications *service.NotificationService, logger *zap.Logger, queueSize int) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &NotificationWorker{
		notifications: notifications,
		logger:        logger,
		queue:         make(chan events.Event, queueSize),
		done:          make(chan struct{}),
	}
}

// Subscribe registers the worker for every event the notification service
// handles.
func (w *NotificationWorker) Subscribe(dispatcher events.Dispatcher) {
	if w.notifications == nil || dispatcher == nil {
		return
	}
	for _, t := range w.notifications.EventTypes() {
		dispatcher.Subscribe(t, w.enqueue)
	}
}

// Start runs the delivery loop until Stop is called or ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-w.queue:
				if !ok {
					return
				}
				w.deliver(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop closes the queue and waits for queued events to drain.
func (w *NotificationWorker) Stop(timeout time.Duration) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(timeout):
		w.logger.Warn("notification worker did not drain in time", zap.Int("pending", len(w.queue)))
	}
}

// enqueue never blocks the publisher; a full queue drops the event.
func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return nil
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

func (w *NotificationWorker) deliver(ctx context.Context, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("notification handler panicked", zap.Any("panic", r), zap.String("event_type", string(event.Type)))
		}
	}()
	if err := w.notifications.Handle(ctx, event); err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
