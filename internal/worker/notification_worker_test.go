package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/events"
	"github.com/spec-kit/ecoguard/internal/service"
)

func newObservedWorker(t *testing.T, queue int) (*NotificationWorker, events.Dispatcher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	notifications := service.NewNotificationService(logger, config.NotificationConfig{
		EmailFrom:  "noreply@ecoguard.test",
		AdminEmail: "admin@ecoguard.test",
		WebhookURL: "https://hooks.ecoguard.test/tickets",
	})
	dispatcher := events.NewInMemoryDispatcher(logger)
	w := NewNotificationWorker(notifications, logger, queue)
	w.Subscribe(dispatcher)
	return w, dispatcher, logs
}

func TestNotificationWorkerDeliversQueuedEvents(t *testing.T) {
	w, dispatcher, logs := newObservedWorker(t, 8)
	w.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "t-1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventStageChanged,
		TicketID: "t-1",
		Payload:  events.StageChangedPayload{From: domain.StageAwaitingClientPhotos, To: domain.StageUnderReview},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventVerdictRecorded, TicketID: "t-1"}))
	w.Stop(time.Second)

	require.Equal(t, 1, logs.FilterMessage("TicketCreated").Len())
	require.Equal(t, 1, logs.FilterMessage("TicketStageChanged").Len())

	emails := logs.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 2)
	for _, e := range emails {
		require.Equal(t, "admin@ecoguard.test", e.ContextMap()["to"])
	}
	require.Equal(t, 3, logs.FilterMessage("sendWebhookNotificationStub").Len())
}

func TestNotificationWorkerDropsWhenFull(t *testing.T) {
	w, dispatcher, logs := newObservedWorker(t, 1)

	// Not started: the first event fills the queue.
	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "t-1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "t-2"}))
	require.Equal(t, 1, logs.FilterMessage("notification queue full, dropping event").Len())

	w.Start(ctx)
	w.Stop(time.Second)
	require.Equal(t, 1, logs.FilterMessage("TicketCreated").Len())
}

func TestNotificationWorkerIgnoresEventsAfterStop(t *testing.T) {
	w, dispatcher, logs := newObservedWorker(t, 4)
	w.Start(context.Background())
	w.Stop(time.Second)
	w.Stop(time.Second)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated, TicketID: "t-1"}))
	require.Zero(t, logs.FilterMessage("TicketCreated").Len())
}
