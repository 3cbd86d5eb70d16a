package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/blob"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/events"
	"github.com/spec-kit/ecoguard/internal/lock"
	"github.com/spec-kit/ecoguard/internal/observability"
	"github.com/spec-kit/ecoguard/internal/report"
	"github.com/spec-kit/ecoguard/internal/repository"
	"github.com/spec-kit/ecoguard/internal/workflow"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows: it serializes work per ticket,
// runs the workflow engine and persists the outcome.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	blobs      blob.Store
	locker     lock.Locker
	engine     *workflow.Engine
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	sanitizer  *bluemonday.Policy
	fine       int64
	maxPhoto   int64
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo           repository.TicketRepository
	MessageRepo          repository.TicketMessageRepository
	HistoryRepo          repository.TicketHistoryRepository
	UserRepo             repository.UserRepository
	Blobs                blob.Store
	Locker               lock.Locker
	Engine               *workflow.Engine
	Dispatcher           events.Dispatcher
	Logger               *zap.Logger
	Metrics              *observability.Metrics
	FinePerNonConformity int64
	MaxPhotoBytes        int64
	Now                  func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	CompanyID      string
	FacilityPlanID string
	ClientID       string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Stage     *domain.Stage
	CompanyID *string
	Limit     int
	Offset    int
}

// TicketDetail is a ticket with its thread, audit trail and the actions the
// caller may take next.
type TicketDetail struct {
	Ticket         *domain.Ticket
	History        []domain.StageChange
	AllowedActions []workflow.Action
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		blobs:      deps.Blobs,
		locker:     deps.Locker,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		sanitizer:  bluemonday.StrictPolicy(),
		fine:       deps.FinePerNonConformity,
		maxPhoto:   deps.MaxPhotoBytes,
		now:        deps.Now,
	}
	if s.engine == nil {
		s.engine = workflow.New()
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.fine <= 0 {
		s.fine = report.DefaultFinePerNonConformity
	}
	return s
}

// CreateTicket opens a ticket in the mapping stage. A client always opens
// tickets for itself; an administrator must name the client.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	clientID := strings.TrimSpace(input.ClientID)
	switch actor.Role {
	case domain.RoleClient:
		if clientID != "" && clientID != actor.ID {
			return nil, apperrors.NewForbidden("clients open tickets for themselves only")
		}
		clientID = actor.ID
	case domain.RoleAdministrator:
		if clientID == "" {
			return nil, apperrors.NewValidationError("client_id is required", nil)
		}
		owner, err := s.users.GetByID(ctx, clientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("client not found", map[string]any{"client_id": clientID})
			}
			return nil, err
		}
		if owner.Role != domain.RoleClient {
			return nil, apperrors.NewValidationError("client_id must reference a client", map[string]any{"client_id": clientID})
		}
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}

	ticket, err := s.engine.NewTicket(input.CompanyID, input.FacilityPlanID, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("stage", string(ticket.Stage)),
		zap.String("actor_role", string(actor.Role)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			CompanyID:      ticket.CompanyID,
			FacilityPlanID: ticket.FacilityPlanID,
			ClientID:       ticket.ClientID,
		},
	})
	return ticket, nil
}

// ListTickets returns the caller's tickets: a client sees its own tickets
// that it has not deleted, an administrator sees every ticket.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		CompanyID: filter.CompanyID,
		Stage:     filter.Stage,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}
	switch actor.Role {
	case domain.RoleClient:
		id := actor.ID
		repoFilter.ClientID = &id
	case domain.RoleAdministrator:
		repoFilter.IncludeDeleted = true
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// GetTicket loads the full ticket for a participant.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*TicketDetail, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Messages = msgs

	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	return &TicketDetail{
		Ticket:         ticket,
		History:        history,
		AllowedActions: workflow.AllowedActions(ticket, actor),
	}, nil
}

// SubmitMapping stores the administrator's areas and hands the ticket to the
// client.
func (s *TicketService) SubmitMapping(ctx context.Context, actor domain.Actor, ticketID string, drafts []workflow.AreaDraft) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) error {
		return s.engine.SubmitMapping(t, actor, drafts)
	})
}

// UploadAreaPhoto validates and stores a photo, then attaches it to the area.
// The blob is written before the ticket lock is taken; it is removed again
// if the update is rejected.
func (s *TicketService) UploadAreaPhoto(ctx context.Context, actor domain.Actor, ticketID, areaID string, data []byte) (*domain.TicketArea, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("photo is required", nil)
	}
	if s.maxPhoto > 0 && int64(len(data)) > s.maxPhoto {
		return nil, apperrors.NewValidationError("photo too large", map[string]any{"max_bytes": s.maxPhoto})
	}
	contentType, err := blob.DetectImage(data)
	if err != nil {
		return nil, apperrors.NewValidationError("photo must be an image", map[string]any{"content_type": contentType})
	}

	// Reject early so unauthorized or out-of-stage uploads never reach the store.
	current, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.UploadAreaPhoto(current.Clone(), actor, areaID, workflow.Photo{Ref: "pending"}); err != nil {
		return nil, err
	}

	ref, err := s.blobs.Put(ctx, fmt.Sprintf("tickets/%s/areas/%s", ticketID, areaID), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	var replaced *string
	ticket, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) error {
		if area, ok := t.Area(areaID); ok && area.ClientPhotoRef != nil {
			prev := *area.ClientPhotoRef
			replaced = &prev
		}
		return s.engine.UploadAreaPhoto(t, actor, areaID, workflow.Photo{Ref: ref, ContentType: contentType})
	})
	if err != nil {
		s.deleteBlob(ref)
		return nil, err
	}
	if replaced != nil && *replaced != ref {
		s.deleteBlob(*replaced)
	}

	area, _ := ticket.Area(areaID)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventPhotoUploaded,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.PhotoUploadedPayload{AreaID: areaID, ContentType: contentType},
	})
	return area, nil
}

// SubmitPhotosForReview hands the ticket back to the administrator.
func (s *TicketService) SubmitPhotosForReview(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) error {
		return s.engine.SubmitPhotosForReview(t, actor)
	})
}

// RecordVerdict stores a write-once verdict for one area.
func (s *TicketService) RecordVerdict(ctx context.Context, actor domain.Actor, ticketID, areaID, verdict, note string) (*domain.TicketArea, error) {
	ticket, err := s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) error {
		return s.engine.RecordVerdict(t, actor, areaID, verdict, note)
	})
	if err != nil {
		return nil, err
	}
	area, _ := ticket.Area(areaID)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventVerdictRecorded,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.VerdictRecordedPayload{AreaID: areaID, Verdict: *area.Verdict},
	})
	return area, nil
}

// Finalize closes a fully verdicted ticket.
func (s *TicketService) Finalize(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, func(t *domain.Ticket) error {
		return s.engine.Finalize(t, actor)
	})
}

// AdvanceTo moves the ticket to the requested stage through the operation
// that owns that transition. Only the photo submission and finalize
// transitions can be requested this way; mapping has its own payload.
func (s *TicketService) AdvanceTo(ctx context.Context, actor domain.Actor, ticketID, rawStage string) (*domain.Ticket, error) {
	target, ok := domain.ParseStage(rawStage)
	if !ok {
		return nil, apperrors.NewValidationError("unknown stage", map[string]any{"stage": rawStage})
	}
	switch target {
	case domain.StageUnderReview:
		return s.SubmitPhotosForReview(ctx, actor, ticketID)
	case domain.StageFinalized:
		return s.Finalize(ctx, actor, ticketID)
	default:
		return nil, workflow.ErrInvalidTransition.
			WithMessage(fmt.Sprintf("stage %s cannot be requested directly", target)).
			WithDetails(map[string]any{"stage": target})
	}
}

// PostMessage appends a plain-text message to the ticket thread. Any markup
// in the body is stripped.
func (s *TicketService) PostMessage(ctx context.Context, actor domain.Actor, ticketID, body string) (*domain.Message, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	clean, ok := plainText(s.sanitizer, body)
	if !ok {
		return nil, workflow.ErrValidation.WithMessage("message contains markup")
	}
	msg, err := s.engine.PostMessage(ticket, actor, clean)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessagePosted,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload: events.MessagePostedPayload{
			MessageID:   msg.ID,
			SenderRole:  msg.SenderRole,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// MarkDeletedByClient hides the ticket from its client. Idempotent.
func (s *TicketService) MarkDeletedByClient(ctx context.Context, actor domain.Actor, ticketID string) error {
	var changed bool
	_, err := s.mutateTicket(ctx, actor, ticketID, true, func(t *domain.Ticket) error {
		changed = !t.DeletedByClient
		return s.engine.MarkDeletedByClient(t, actor)
	})
	if err != nil {
		return err
	}
	if changed {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventDeletedByClient,
			TicketID: ticketID,
			Actor:    events.ActorFrom(actor),
		})
	}
	return nil
}

// PhotoFor opens the stored photo of an area. The caller closes the body.
func (s *TicketService) PhotoFor(ctx context.Context, actor domain.Actor, ticketID, areaID string) (*blob.Object, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	area, ok := ticket.Area(areaID)
	if !ok {
		return nil, apperrors.NewNotFound("area", map[string]any{"area_id": areaID})
	}
	if !area.HasPhoto() {
		return nil, apperrors.NewNotFound("photo", map[string]any{"area_id": areaID})
	}
	obj, err := s.blobs.Get(ctx, *area.ClientPhotoRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, apperrors.NewNotFound("photo", map[string]any{"area_id": areaID})
		}
		return nil, err
	}
	if area.PhotoContentType != nil && *area.PhotoContentType != "" {
		obj.ContentType = *area.PhotoContentType
	}
	return obj, nil
}

// Report builds the inspection report of a finalized ticket.
func (s *TicketService) Report(ctx context.Context, actor domain.Actor, ticketID string) (report.Report, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return report.Report{}, err
	}
	if !workflow.Can(ticket, actor, workflow.ActionDownloadReport) {
		return report.Report{}, workflow.ErrInvalidTransition.
			WithMessage("report is available once the ticket is finalized").
			WithDetails(map[string]any{"stage": ticket.Stage})
	}
	return report.Build(ticket, s.fine, s.now()), nil
}

// mutate runs fn on a freshly loaded ticket while holding the ticket lock and
// persists the result with a compare-and-swap on the loaded stage. A ticket
// the client deleted is missing for that client.
func (s *TicketService) mutate(ctx context.Context, actor domain.Actor, ticketID string, fn func(*domain.Ticket) error) (*domain.Ticket, error) {
	return s.mutateTicket(ctx, actor, ticketID, false, fn)
}

func (s *TicketService) mutateTicket(ctx context.Context, actor domain.Actor, ticketID string, allowDeleted bool, fn func(*domain.Ticket) error) (*domain.Ticket, error) {
	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, "ticket:"+ticketID)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, apperrors.NewConflict("ticket is busy, retry", map[string]any{"ticket_id": ticketID})
		}
		return nil, fmt.Errorf("acquire ticket lock: %w", err)
	}
	s.metrics.ObserveLockWait(time.Since(waitStart))

	ticket, change, err := s.applyLocked(ctx, actor, ticketID, allowDeleted, fn)
	release()
	if err != nil {
		return nil, err
	}

	if change != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventStageChanged,
			TicketID: ticketID,
			Actor:    events.ActorFrom(actor),
			Payload:  events.StageChangedPayload{From: change.FromStage, To: change.ToStage},
		})
	}
	return ticket, nil
}

func (s *TicketService) applyLocked(ctx context.Context, actor domain.Actor, ticketID string, allowDeleted bool, fn func(*domain.Ticket) error) (*domain.Ticket, *domain.StageChange, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !allowDeleted && hiddenFrom(ticket, actor) {
		return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	from := ticket.Stage
	if err := fn(ticket); err != nil {
		return nil, nil, err
	}

	if err := s.tickets.Save(ctx, ticket, from); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleStage):
			return nil, nil, apperrors.NewConflict("ticket changed concurrently, reload and retry", map[string]any{"ticket_id": ticketID})
		case errors.Is(err, repository.ErrVerdictTaken):
			return nil, nil, workflow.ErrAlreadyVerdicted.WithDetails(map[string]any{"ticket_id": ticketID})
		case errors.Is(err, pgx.ErrNoRows):
			return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, nil, fmt.Errorf("save ticket: %w", err)
	}

	if ticket.Stage == from {
		return ticket, nil, nil
	}

	change := &domain.StageChange{
		TicketID:  ticket.ID,
		FromStage: from,
		ToStage:   ticket.Stage,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		CreatedAt: ticket.UpdatedAt,
	}
	if err := s.history.Create(ctx, change); err != nil {
		// The stage change is committed at this point; only log.
		s.logger.Error("record stage change", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.metrics.RecordTransition(string(from), string(ticket.Stage))
	s.logger.Info("ticket stage changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(from)),
		zap.String("stage", string(ticket.Stage)),
		zap.String("actor_role", string(actor.Role)))
	return ticket, change, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// visibleTicket loads a ticket the actor may read. A ticket the client
// deleted is reported as missing to that client.
func (s *TicketService) visibleTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := workflow.Authorize(ticket, actor); err != nil {
		return nil, err
	}
	if hiddenFrom(ticket, actor) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// hiddenFrom reports whether the ticket was deleted by the client acting on it.
func hiddenFrom(t *domain.Ticket, actor domain.Actor) bool {
	return actor.Role == domain.RoleClient && t.DeletedByClient
}

func (s *TicketService) deleteBlob(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.logger.Warn("delete photo blob", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

const maxSanitizePasses = 8

var tagLike = regexp.MustCompile(`<[A-Za-z/!?]`)

// plainText strips markup from body, decoding entities between passes so
// entity-encoded tags are stripped as well. It reports false when the text
// does not settle or still looks like markup.
func plainText(policy *bluemonday.Policy, body string) (string, bool) {
	current := body
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(policy.Sanitize(current))
		if next == current {
			return current, !tagLike.MatchString(current)
		}
		current = next
	}
	return "", false
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
