package domain

import (
	"strings"
	"time"
)

// Stage enumerates the fixed, forward-only positions of an inspection ticket.
type Stage string

const (
	StageMapping              Stage = "mapping"
	StageAwaitingClientPhotos Stage = "awaiting_client_photos"
	StageUnderReview          Stage = "under_review"
	StageFinalized            Stage = "finalized"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{StageMapping, StageAwaitingClientPhotos, StageUnderReview, StageFinalized}

var stageAliases = map[string]Stage{
	"aberto":                   StageMapping,
	"mapeamento":               StageMapping,
	"aguardando_cliente":       StageAwaitingClientPhotos,
	"aguardando_fotos_cliente": StageAwaitingClientPhotos,
	"upload_fotos_cliente":     StageAwaitingClientPhotos,
	"em_analise":               StageUnderReview,
	"analise":                  StageUnderReview,
	"fechado":                  StageFinalized,
	"finalizado":               StageFinalized,
}

// ParseStage accepts canonical stage names and the legacy status/etapa values.
func ParseStage(raw string) (Stage, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range Stages {
		if string(s) == key {
			return s, true
		}
	}
	s, ok := stageAliases[key]
	return s, ok
}

// Rank is the zero based position in the workflow, or -1 when unknown.
func (s Stage) Rank() int {
	for i, candidate := range Stages {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s.
func (s Stage) Next() (Stage, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(Stages) {
		return "", false
	}
	return Stages[r+1], true
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageFinalized
}

// Ticket is the aggregate tracking one facility's inspection cycle.
type Ticket struct {
	ID              string
	CompanyID       string
	FacilityPlanID  string
	ClientID        string
	Stage           Stage
	DeletedByClient bool
	Areas           []TicketArea
	Messages        []Message
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Area returns a pointer into t.Areas for the given id.
func (t *Ticket) Area(id string) (*TicketArea, bool) {
	for i := range t.Areas {
		if t.Areas[i].ID == id {
			return &t.Areas[i], true
		}
	}
	return nil, false
}

// PendingVerdicts lists the ids of areas still lacking a verdict.
func (t *Ticket) PendingVerdicts() []string {
	pending := []string{}
	for _, a := range t.Areas {
		if a.Verdict == nil {
			pending = append(pending, a.ID)
		}
	}
	return pending
}

// PhotoCount returns how many areas carry a client photo.
func (t *Ticket) PhotoCount() int {
	n := 0
	for _, a := range t.Areas {
		if a.HasPhoto() {
			n++
		}
	}
	return n
}

// Clone deep copies the aggregate so a failed operation can be discarded.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	if t.Areas != nil {
		cp.Areas = make([]TicketArea, len(t.Areas))
		for i, a := range t.Areas {
			cp.Areas[i] = a.clone()
		}
	}
	if t.Messages != nil {
		cp.Messages = make([]Message, len(t.Messages))
		copy(cp.Messages, t.Messages)
	}
	return &cp
}
