package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/workflow"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CompanyID      string `json:"company_id"`
	FacilityPlanID string `json:"facility_plan_id"`
	ClientID       string `json:"client_id"`
}

// AreaDraftRequest is one mapped area. Both the English keys and the legacy
// Portuguese keys are accepted; English wins when both are present.
type AreaDraftRequest struct {
	Name        string   `json:"name"`
	Nome        string   `json:"nome"`
	Description string   `json:"description"`
	Descricao   string   `json:"descricao"`
	AreaType    string   `json:"area_type"`
	TipoArea    string   `json:"tipo_area"`
	Criticality string   `json:"criticality"`
	Criticidade string   `json:"criticidade"`
	PositionX   *float64 `json:"position_x"`
	PosicaoX    *float64 `json:"posicao_x"`
	PositionY   *float64 `json:"position_y"`
	PosicaoY    *float64 `json:"posicao_y"`
}

// SubmitMappingRequest payload.
type SubmitMappingRequest struct {
	Areas []AreaDraftRequest `json:"areas"`
}

// Drafts converts the request into workflow drafts.
func (r SubmitMappingRequest) Drafts() []workflow.AreaDraft {
	out := make([]workflow.AreaDraft, 0, len(r.Areas))
	for _, a := range r.Areas {
		out = append(out, workflow.AreaDraft{
			Name:        firstNonEmpty(a.Name, a.Nome),
			Description: firstNonEmpty(a.Description, a.Descricao),
			AreaType:    firstNonEmpty(a.AreaType, a.TipoArea),
			Criticality: firstNonEmpty(a.Criticality, a.Criticidade),
			PositionX:   firstNumber(a.PositionX, a.PosicaoX),
			PositionY:   firstNumber(a.PositionY, a.PosicaoY),
		})
	}
	return out
}

// PostMessageRequest payload.
type PostMessageRequest struct {
	Body     string `json:"body"`
	Mensagem string `json:"mensagem"`
}

// Text returns the message body from whichever key was sent.
func (r PostMessageRequest) Text() string {
	return firstNonEmpty(r.Body, r.Mensagem)
}

// TicketSummary response.
type TicketSummary struct {
	ID              string       `json:"id"`
	CompanyID       string       `json:"company_id"`
	FacilityPlanID  string       `json:"facility_plan_id"`
	ClientID        string       `json:"client_id"`
	Stage           domain.Stage `json:"stage"`
	DeletedByClient bool         `json:"deleted_by_client"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TicketResponse is a ticket with its areas.
type TicketResponse struct {
	TicketSummary
	PendingVerdicts int            `json:"pending_verdicts"`
	Areas           []AreaResponse `json:"areas"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Messages       []MessageResponse     `json:"messages"`
	History        []StageChangeResponse `json:"history"`
	AllowedActions []workflow.Action     `json:"allowed_actions"`
}

// AreaResponse represents one mapped area.
type AreaResponse struct {
	ID              string             `json:"id"`
	Position        int                `json:"position"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	AreaType        domain.AreaType    `json:"area_type"`
	Criticality     domain.Criticality `json:"criticality"`
	PositionX       float64            `json:"position_x"`
	PositionY       float64            `json:"position_y"`
	HasPhoto        bool               `json:"has_photo"`
	ClientPending   bool               `json:"client_pending"`
	PhotoURL        string             `json:"photo_url,omitempty"`
	PhotoUploadedAt *time.Time         `json:"photo_uploaded_at,omitempty"`
	Verdict         *domain.Verdict    `json:"verdict"`
	ReviewerNote    *string            `json:"reviewer_note,omitempty"`
	VerdictAt       *time.Time         `json:"verdict_at,omitempty"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID         string      `json:"id"`
	SenderRole domain.Role `json:"sender_role"`
	SenderID   string      `json:"sender_id"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// StageChangeResponse is one audit entry.
type StageChangeResponse struct {
	From      domain.Stage `json:"from"`
	To        domain.Stage `json:"to"`
	ActorRole domain.Role  `json:"actor_role"`
	ActorID   string       `json:"actor_id"`
	CreatedAt time.Time    `json:"created_at"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// firstNumber returns -1 when no coordinate was sent so validation rejects it.
func firstNumber(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return -1
}
