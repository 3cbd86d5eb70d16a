package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/events"
)

// NotificationService turns ticket events into e-mail and webhook
// notifications. Delivery is stubbed through the logger.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger, cfg: cfg}
}

// EventTypes lists the events the service reacts to.
func (n *NotificationService) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTicketCreated,
		events.EventStageChanged,
		events.EventMessagePosted,
		events.EventVerdictRecorded,
		events.EventDeletedByClient,
	}
}

// Handle delivers the notifications for one event.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.EventTicketCreated:
		return n.handleTicketCreated(ctx, event)
	case events.EventStageChanged:
		return n.handleStageChanged(ctx, event)
	case events.EventMessagePosted:
		return n.handleMessagePosted(ctx, event)
	case events.EventVerdictRecorded, events.EventDeletedByClient:
		return n.handleWebhookOnly(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event, n.cfg.AdminEmail)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// handleStageChanged notifies whoever has to act next.
func (n *NotificationService) handleStageChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStageChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if p, ok := event.Payload.(events.StageChangedPayload); ok {
		switch p.To {
		case domain.StageUnderReview:
			n.sendEmailNotificationStub(ctx, event, n.cfg.AdminEmail)
		case domain.StageAwaitingClientPhotos, domain.StageFinalized:
			n.sendEmailNotificationStub(ctx, event, "client")
		}
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMessagePosted(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketMessagePosted", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	recipient := n.cfg.AdminEmail
	if event.Actor.Role == domain.RoleAdministrator {
		recipient = "client"
	}
	n.sendEmailNotificationStub(ctx, event, recipient)
	return nil
}

func (n *NotificationService) handleWebhookOnly(ctx context.Context, event events.Event) error {
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event, to string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || strings.TrimSpace(to) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
