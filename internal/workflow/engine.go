// Package workflow enforces the inspection ticket lifecycle: which stage
// transitions are legal, which role may trigger each one, and when a ticket
// is complete. It performs no I/O; callers load a ticket, apply an operation
// and persist the result. Serializing concurrent operations on one ticket is
// the caller's responsibility.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// AreaDraft is the administrator's input for one mapped area.
type AreaDraft struct {
	Name        string
	Description string
	AreaType    string
	Criticality string
	PositionX   float64
	PositionY   float64
}

// Photo references a blob already written to the blob store.
type Photo struct {
	Ref         string
	ContentType string
}

// Engine applies workflow operations to a ticket aggregate. On error the
// ticket is left untouched.
type Engine struct {
	now   func() time.Time
	newID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how area and message ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTicket opens a ticket in the mapping stage.
func (e *Engine) NewTicket(companyID, facilityPlanID, clientID string) (*domain.Ticket, error) {
	companyID = strings.TrimSpace(companyID)
	facilityPlanID = strings.TrimSpace(facilityPlanID)
	clientID = strings.TrimSpace(clientID)
	if companyID == "" || facilityPlanID == "" || clientID == "" {
		return nil, invalid("company_id, facility_plan_id and client_id are required", nil)
	}
	now := e.now()
	return &domain.Ticket{
		ID:             e.newID(),
		CompanyID:      companyID,
		FacilityPlanID: facilityPlanID,
		ClientID:       clientID,
		Stage:          domain.StageMapping,
		Areas:          []domain.TicketArea{},
		Messages:       []domain.Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SubmitMapping records the administrator's areas and hands the ticket to
// the client for photos.
func (e *Engine) SubmitMapping(t *domain.Ticket, actor domain.Actor, drafts []AreaDraft) error {
	if err := e.guard(t, actor, domain.RoleAdministrator, domain.StageMapping); err != nil {
		return err
	}
	if len(drafts) == 0 {
		return ErrEmptyMapping
	}

	now := e.now()
	areas := make([]domain.TicketArea, 0, len(drafts))
	for i, d := range drafts {
		area, err := e.areaFromDraft(t.ID, i, d, now)
		if err != nil {
			return err
		}
		areas = append(areas, area)
	}

	t.Areas = areas
	return e.advance(t, domain.StageAwaitingClientPhotos)
}

// UploadAreaPhoto attaches (or replaces) the client's photo for one area.
func (e *Engine) UploadAreaPhoto(t *domain.Ticket, actor domain.Actor, areaID string, photo Photo) error {
	if err := e.guard(t, actor, domain.RoleClient, domain.StageAwaitingClientPhotos); err != nil {
		return err
	}
	if strings.TrimSpace(photo.Ref) == "" {
		return invalid("photo reference required", nil)
	}
	area, ok := t.Area(areaID)
	if !ok {
		return areaNotFound(areaID)
	}

	now := e.now()
	ref := photo.Ref
	area.ClientPhotoRef = &ref
	if photo.ContentType != "" {
		ct := photo.ContentType
		area.PhotoContentType = &ct
	} else {
		area.PhotoContentType = nil
	}
	area.PhotoUploadedAt = &now
	t.UpdatedAt = now
	return nil
}

// SubmitPhotosForReview hands the ticket back to the administrator. Areas
// without a photo stay reviewable.
func (e *Engine) SubmitPhotosForReview(t *domain.Ticket, actor domain.Actor) error {
	if err := e.guard(t, actor, domain.RoleClient, domain.StageAwaitingClientPhotos); err != nil {
		return err
	}
	if t.PhotoCount() == 0 {
		return invalidTransition("upload at least one photo before submitting", nil)
	}
	return e.advance(t, domain.StageUnderReview)
}

// RecordVerdict stores the administrator's verdict for an area. Verdicts are
// write-once.
func (e *Engine) RecordVerdict(t *domain.Ticket, actor domain.Actor, areaID, verdict, note string) error {
	if err := e.guard(t, actor, domain.RoleAdministrator, domain.StageUnderReview); err != nil {
		return err
	}
	v, ok := domain.ParseVerdict(verdict)
	if !ok {
		return invalid("verdict must be compliant, non_compliant or not_applicable", map[string]any{"verdict": verdict})
	}
	area, ok := t.Area(areaID)
	if !ok {
		return areaNotFound(areaID)
	}
	if area.Verdict != nil {
		return ErrAlreadyVerdicted.WithDetails(map[string]any{"area_id": areaID, "verdict": *area.Verdict})
	}

	now := e.now()
	area.Verdict = &v
	if n := strings.TrimSpace(note); n != "" {
		area.ReviewerNote = &n
	}
	area.VerdictAt = &now
	t.UpdatedAt = now
	return nil
}

// Finalize closes the ticket once every area has a verdict.
func (e *Engine) Finalize(t *domain.Ticket, actor domain.Actor) error {
	if err := e.guard(t, actor, domain.RoleAdministrator, domain.StageUnderReview); err != nil {
		return err
	}
	if pending := t.PendingVerdicts(); len(pending) > 0 {
		return invalidTransition("every area needs a verdict before finalizing", map[string]any{
			"pending_area_ids": pending,
		})
	}
	return e.advance(t, domain.StageFinalized)
}

// PostMessage appends to the ticket thread. Allowed in every stage.
func (e *Engine) PostMessage(t *domain.Ticket, actor domain.Actor, body string) (*domain.Message, error) {
	if err := participant(t, actor); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("message body required", nil)
	}
	msg := domain.Message{
		ID:         e.newID(),
		TicketID:   t.ID,
		SenderRole: actor.Role,
		SenderID:   actor.ID,
		Body:       body,
		CreatedAt:  e.now(),
	}
	t.Messages = append(t.Messages, msg)
	return &msg, nil
}

// MarkDeletedByClient sets the client's soft-delete flag. The stage is not
// affected and the administrator keeps full access.
func (e *Engine) MarkDeletedByClient(t *domain.Ticket, actor domain.Actor) error {
	if actor.Role != domain.RoleClient {
		return forbidden("only the client can delete the ticket")
	}
	if err := participant(t, actor); err != nil {
		return err
	}
	if !t.DeletedByClient {
		t.DeletedByClient = true
		t.UpdatedAt = e.now()
	}
	return nil
}

func (e *Engine) guard(t *domain.Ticket, actor domain.Actor, role domain.Role, stage domain.Stage) error {
	if actor.Role != role {
		return forbidden(fmt.Sprintf("%s role required", role))
	}
	if err := participant(t, actor); err != nil {
		return err
	}
	if t.Stage == domain.StageFinalized {
		return ErrTicketFinalized
	}
	if t.Stage != stage {
		return invalidTransition(fmt.Sprintf("ticket is in stage %s, expected %s", t.Stage, stage), map[string]any{
			"stage":    t.Stage,
			"expected": stage,
		})
	}
	return nil
}

// participant checks that the actor may act on the ticket at all: any
// administrator, or the client who owns it.
func participant(t *domain.Ticket, actor domain.Actor) error {
	switch actor.Role {
	case domain.RoleAdministrator:
		return nil
	case domain.RoleClient:
		if actor.ID != "" && actor.ID == t.ClientID {
			return nil
		}
		return forbidden("ticket belongs to another client")
	default:
		return forbidden("unknown role")
	}
}

func (e *Engine) advance(t *domain.Ticket, to domain.Stage) error {
	next, ok := t.Stage.Next()
	if !ok || next != to {
		return invalidTransition(fmt.Sprintf("cannot move from %s to %s", t.Stage, to), nil)
	}
	t.Stage = to
	t.UpdatedAt = e.now()
	return nil
}

func (e *Engine) areaFromDraft(ticketID string, index int, d AreaDraft, now time.Time) (domain.TicketArea, error) {
	details := map[string]any{"index": index}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return domain.TicketArea{}, invalid("area name required", details)
	}
	areaType, ok := domain.ParseAreaType(d.AreaType)
	if !ok {
		details["area_type"] = d.AreaType
		return domain.TicketArea{}, invalid("unknown area type", details)
	}
	criticality, ok := domain.ParseCriticality(d.Criticality)
	if !ok {
		details["criticality"] = d.Criticality
		return domain.TicketArea{}, invalid("unknown criticality", details)
	}
	if !validPercent(d.PositionX) || !validPercent(d.PositionY) {
		details["posicao_x"] = d.PositionX
		details["posicao_y"] = d.PositionY
		return domain.TicketArea{}, invalid("area position must be a percentage between 0 and 100", details)
	}
	return domain.TicketArea{
		ID:          e.newID(),
		TicketID:    ticketID,
		Position:    index,
		Name:        name,
		Description: strings.TrimSpace(d.Description),
		AreaType:    areaType,
		Criticality: criticality,
		PositionX:   d.PositionX,
		PositionY:   d.PositionY,
		CreatedAt:   now,
	}, nil
}

// validPercent rejects NaN as well as out of range values.
func validPercent(v float64) bool {
	return v >= 0 && v <= 100
}
