package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ecoguard/internal/api/dto"
	"github.com/spec-kit/ecoguard/internal/auth"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/report"
	"github.com/spec-kit/ecoguard/internal/service"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

// TicketsHandler exposes the inspection ticket endpoints to both roles.
type TicketsHandler struct {
	service  *service.TicketService
	renderer *report.Renderer
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, renderer *report.Renderer) *TicketsHandler {
	return &TicketsHandler{service: ticketService, renderer: renderer}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.CreateTicketInput{
		CompanyID:      req.CompanyID,
		FacilityPlanID: req.FacilityPlanID,
		ClientID:       req.ClientID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// SubmitMapping POST /api/tickets/:id/areas.
func (h *TicketsHandler) SubmitMapping(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SubmitMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.SubmitMapping(c.UserContext(), actor, c.Params("id"), req.Drafts())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UploadPhoto POST /api/tickets/:id/upload-foto (multipart area_id, foto).
func (h *TicketsHandler) UploadPhoto(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	areaID := strings.TrimSpace(c.FormValue("area_id"))
	if areaID == "" {
		return apperrors.NewValidationError("area_id is required", nil)
	}
	file, err := c.FormFile("foto")
	if err != nil {
		if file, err = c.FormFile("photo"); err != nil {
			return apperrors.NewValidationError("foto is required", nil)
		}
	}
	f, err := file.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}

	ticketID := c.Params("id")
	area, err := h.service.UploadAreaPhoto(c.UserContext(), actor, ticketID, areaID, data)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": areaResponse(ticketID, area)})
}

// ChangeStatus PUT /api/tickets/:id/status?status= (or ?stage=, ?etapa=).
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	target := stageQuery(c)
	if strings.TrimSpace(target) == "" {
		return apperrors.NewValidationError("status is required", nil)
	}
	ticket, err := h.service.AdvanceTo(c.UserContext(), actor, c.Params("id"), target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Finalize POST /api/tickets/:id/finalize.
func (h *TicketsHandler) Finalize(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Finalize(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// RecordVerdict POST /api/tickets/:id/analise-area.
func (h *TicketsHandler) RecordVerdict(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	areaID := strings.TrimSpace(c.FormValue("area_id"))
	if areaID == "" {
		return apperrors.NewValidationError("area_id is required", nil)
	}
	verdict := formValue(c, "verdict", "resultado")
	note := formValue(c, "note", "observacao")

	ticketID := c.Params("id")
	area, err := h.service.RecordVerdict(c.UserContext(), actor, ticketID, areaID, verdict, note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": areaResponse(ticketID, area)})
}

// PostMessage POST /api/tickets/:id/mensagem?mensagem= (or JSON body).
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	body := c.Query("mensagem")
	if strings.TrimSpace(body) == "" && len(c.Body()) > 0 {
		var req dto.PostMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		body = req.Text()
	}
	msg, err := h.service.PostMessage(c.UserContext(), actor, c.Params("id"), body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// Delete DELETE /api/tickets/:id hides the ticket from its client.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkDeletedByClient(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Photo GET /api/tickets/:id/areas/:areaId/foto.
func (h *TicketsHandler) Photo(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	obj, err := h.service.PhotoFor(c.UserContext(), actor, c.Params("id"), c.Params("areaId"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	// fasthttp closes the body once it has been streamed.
	return c.SendStream(obj.Body, int(obj.Size))
}

// Report GET /api/tickets/:id/relatorio.
func (h *TicketsHandler) Report(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	rep, err := h.service.Report(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, rep); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("render report: %w", err))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

func formValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

// stageQuery reads the target stage from stage, status or the legacy etapa
// parameter, in that order.
func stageQuery(c *fiber.Ctx) string {
	return c.Query("stage", c.Query("status", c.Query("etapa")))
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if raw := stageQuery(c); raw != "" {
		stage, ok := domain.ParseStage(raw)
		if !ok {
			return filter, apperrors.NewValidationError("unknown stage", map[string]any{"stage": raw})
		}
		filter.Stage = &stage
	}
	if company := strings.TrimSpace(c.Query("company_id")); company != "" {
		filter.CompanyID = &company
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:              ticket.ID,
		CompanyID:       ticket.CompanyID,
		FacilityPlanID:  ticket.FacilityPlanID,
		ClientID:        ticket.ClientID,
		Stage:           ticket.Stage,
		DeletedByClient: ticket.DeletedByClient,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	areas := make([]dto.AreaResponse, 0, len(ticket.Areas))
	for i := range ticket.Areas {
		areas = append(areas, areaResponse(ticket.ID, &ticket.Areas[i]))
	}
	return dto.TicketResponse{
		TicketSummary:   ticketSummary(ticket),
		PendingVerdicts: len(ticket.PendingVerdicts()),
		Areas:           areas,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	msgs := make([]dto.MessageResponse, 0, len(detail.Ticket.Messages))
	for i := range detail.Ticket.Messages {
		msgs = append(msgs, messageResponse(&detail.Ticket.Messages[i]))
	}
	history := make([]dto.StageChangeResponse, 0, len(detail.History))
	for _, h := range detail.History {
		history = append(history, dto.StageChangeResponse{
			From:      h.FromStage,
			To:        h.ToStage,
			ActorRole: h.ActorRole,
			ActorID:   h.ActorID,
			CreatedAt: h.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(detail.Ticket),
		Messages:       msgs,
		History:        history,
		AllowedActions: detail.AllowedActions,
	}
}

func areaResponse(ticketID string, a *domain.TicketArea) dto.AreaResponse {
	resp := dto.AreaResponse{
		ID:              a.ID,
		Position:        a.Position,
		Name:            a.Name,
		Description:     a.Description,
		AreaType:        a.AreaType,
		Criticality:     a.Criticality,
		PositionX:       a.PositionX,
		PositionY:       a.PositionY,
		HasPhoto:        a.HasPhoto(),
		ClientPending:   a.ClientPending(),
		PhotoUploadedAt: a.PhotoUploadedAt,
		Verdict:         a.Verdict,
		ReviewerNote:    a.ReviewerNote,
		VerdictAt:       a.VerdictAt,
	}
	if resp.HasPhoto {
		resp.PhotoURL = fmt.Sprintf("/api/tickets/%s/areas/%s/foto", ticketID, a.ID)
	}
	return resp
}

func messageResponse(m *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         m.ID,
		SenderRole: m.SenderRole,
		SenderID:   m.SenderID,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}
