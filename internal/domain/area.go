package domain

import (
	"strings"
	"time"
)

// AreaType classifies a mapped critical zone.
type AreaType string

const (
	AreaTypeWaste         AreaType = "waste"
	AreaTypeEffluent      AreaType = "effluent"
	AreaTypeProtectedZone AreaType = "protected_zone"
	AreaTypeStorage       AreaType = "storage"
	AreaTypeProduction    AreaType = "production"
)

// AreaTypes lists the accepted area types.
var AreaTypes = []AreaType{AreaTypeWaste, AreaTypeEffluent, AreaTypeProtectedZone, AreaTypeStorage, AreaTypeProduction}

var areaTypeAliases = map[string]AreaType{
	"residuos":      AreaTypeWaste,
	"efluentes":     AreaTypeEffluent,
	"app":           AreaTypeProtectedZone,
	"armazenamento": AreaTypeStorage,
	"producao":      AreaTypeProduction,
}

// ParseAreaType accepts canonical names and the legacy tipo_area values.
func ParseAreaType(raw string) (AreaType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range AreaTypes {
		if string(t) == key {
			return t, true
		}
	}
	t, ok := areaTypeAliases[key]
	return t, ok
}

// Criticality is informational only and never gates the workflow.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

var criticalities = []Criticality{CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityCritical}

var criticalityAliases = map[string]Criticality{
	"baixa":   CriticalityLow,
	"media":   CriticalityMedium,
	"média":   CriticalityMedium,
	"alta":    CriticalityHigh,
	"critica": CriticalityCritical,
	"crítica": CriticalityCritical,
}

// ParseCriticality defaults to medium for an empty value.
func ParseCriticality(raw string) (Criticality, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return CriticalityMedium, true
	}
	for _, c := range criticalities {
		if string(c) == key {
			return c, true
		}
	}
	c, ok := criticalityAliases[key]
	return c, ok
}

// Verdict is the administrator's conformity judgment for an area.
type Verdict string

const (
	VerdictCompliant     Verdict = "compliant"
	VerdictNonCompliant  Verdict = "non_compliant"
	VerdictNotApplicable Verdict = "not_applicable"
)

var verdicts = []Verdict{VerdictCompliant, VerdictNonCompliant, VerdictNotApplicable}

var verdictAliases = map[string]Verdict{
	"conforme":      VerdictCompliant,
	"nao_conforme":  VerdictNonCompliant,
	"não_conforme":  VerdictNonCompliant,
	"nao_aplicavel": VerdictNotApplicable,
	"na":            VerdictNotApplicable,
}

// ParseVerdict accepts canonical names and the legacy resposta values.
func ParseVerdict(raw string) (Verdict, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, v := range verdicts {
		if string(v) == key {
			return v, true
		}
	}
	v, ok := verdictAliases[key]
	return v, ok
}

// TicketArea is a mapped zone of the site plan. Positions are percentages
// (0-100) of the displayed image's width and height.
type TicketArea struct {
	ID               string
	TicketID         string
	Position         int
	Name             string
	Description      string
	AreaType         AreaType
	Criticality      Criticality
	PositionX        float64
	PositionY        float64
	ClientPhotoRef   *string
	PhotoContentType *string
	PhotoUploadedAt  *time.Time
	Verdict          *Verdict
	ReviewerNote     *string
	VerdictAt        *time.Time
	CreatedAt        time.Time
}

// HasPhoto reports whether the client uploaded a photo for the area.
func (a TicketArea) HasPhoto() bool {
	return a.ClientPhotoRef != nil && *a.ClientPhotoRef != ""
}

// ClientPending marks an area still waiting on the client's photo.
func (a TicketArea) ClientPending() bool {
	return !a.HasPhoto()
}

func (a TicketArea) clone() TicketArea {
	cp := a
	cp.ClientPhotoRef = clonePtr(a.ClientPhotoRef)
	cp.PhotoContentType = clonePtr(a.PhotoContentType)
	cp.PhotoUploadedAt = clonePtr(a.PhotoUploadedAt)
	cp.Verdict = clonePtr(a.Verdict)
	cp.ReviewerNote = clonePtr(a.ReviewerNote)
	cp.VerdictAt = clonePtr(a.VerdictAt)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
