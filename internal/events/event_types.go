package events

import (
	"time"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventStageChanged    EventType = "ticket_stage_changed"
	EventPhotoUploaded   EventType = "area_photo_uploaded"
	EventVerdictRecorded EventType = "area_verdict_recorded"
	EventMessagePosted   EventType = "ticket_message_posted"
	EventDeletedByClient EventType = "ticket_deleted_by_client"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id"`
}

// ActorFrom copies the workflow actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{Role: a.Role, ID: a.ID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CompanyID      string `json:"company_id"`
	FacilityPlanID string `json:"facility_plan_id"`
	ClientID       string `json:"client_id"`
}

// StageChangedPayload payload.
type StageChangedPayload struct {
	From domain.Stage `json:"from"`
	To   domain.Stage `json:"to"`
}

// PhotoUploadedPayload payload.
type PhotoUploadedPayload struct {
	AreaID      string `json:"area_id"`
	ContentType string `json:"content_type"`
}

// VerdictRecordedPayload payload.
type VerdictRecordedPayload struct {
	AreaID  string         `json:"area_id"`
	Verdict domain.Verdict `json:"verdict"`
}

// MessagePostedPayload payload.
type MessagePostedPayload struct {
	MessageID   string      `json:"message_id"`
	SenderRole  domain.Role `json:"sender_role"`
	BodyPreview string      `json:"body_preview"`
}
