// Package report derives the read-only inspection report of a ticket.
package report

import (
	"time"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// DefaultFinePerNonConformity is the estimated fine, in BRL, per
// non-compliant area when none is configured.
const DefaultFinePerNonConformity int64 = 12500

// checklistItems is the number of checklist items inspected per area type.
var checklistItems = map[domain.AreaType]int{
	domain.AreaTypeWaste:         8,
	domain.AreaTypeEffluent:      6,
	domain.AreaTypeProtectedZone: 5,
	domain.AreaTypeStorage:       7,
	domain.AreaTypeProduction:    9,
}

// ChecklistItems returns the checklist size for an area type.
func ChecklistItems(t domain.AreaType) int {
	return checklistItems[t]
}

// Row is one area of the report.
type Row struct {
	AreaID         string
	Name           string
	Description    string
	AreaType       domain.AreaType
	Criticality    domain.Criticality
	PositionX      float64
	PositionY      float64
	ChecklistItems int
	HasPhoto       bool
	ClientPending  bool
	Verdict        *domain.Verdict
	ReviewerNote   string
}

// Report summarizes verdicts over the ticket's areas.
type Report struct {
	TicketID       string
	CompanyID      string
	FacilityPlanID string
	Stage          domain.Stage
	Final          bool
	GeneratedAt    time.Time
	Rows           []Row
	TotalAreas     int
	Compliant      int
	NonCompliant   int
	NotApplicable  int
	Pending        int
	ClientPending  int
	ChecklistTotal int
	// EstimatedExposure is the potential fine in whole currency units.
	EstimatedExposure int64
}

// Build projects a ticket into its report. finePerNonConformity is the
// estimated fine attached to each non-compliant area.
func Build(t *domain.Ticket, finePerNonConformity int64, now time.Time) Report {
	r := Report{
		TicketID:       t.ID,
		CompanyID:      t.CompanyID,
		FacilityPlanID: t.FacilityPlanID,
		Stage:          t.Stage,
		Final:          t.Stage == domain.StageFinalized,
		GeneratedAt:    now,
		Rows:           make([]Row, 0, len(t.Areas)),
		TotalAreas:     len(t.Areas),
	}
	for _, a := range t.Areas {
		row := Row{
			AreaID:         a.ID,
			Name:           a.Name,
			Description:    a.Description,
			AreaType:       a.AreaType,
			Criticality:    a.Criticality,
			PositionX:      a.PositionX,
			PositionY:      a.PositionY,
			ChecklistItems: ChecklistItems(a.AreaType),
			HasPhoto:       a.HasPhoto(),
			ClientPending:  a.ClientPending(),
			Verdict:        a.Verdict,
		}
		if a.ReviewerNote != nil {
			row.ReviewerNote = *a.ReviewerNote
		}
		r.ChecklistTotal += row.ChecklistItems
		if row.ClientPending {
			r.ClientPending++
		}
		switch {
		case a.Verdict == nil:
			r.Pending++
		case *a.Verdict == domain.VerdictCompliant:
			r.Compliant++
		case *a.Verdict == domain.VerdictNonCompliant:
			r.NonCompliant++
		case *a.Verdict == domain.VerdictNotApplicable:
			r.NotApplicable++
		}
		r.Rows = append(r.Rows, row)
	}
	r.EstimatedExposure = int64(r.NonCompliant) * finePerNonConformity
	return r
}

// ComplianceRate is the share of compliant areas among those with an
// applicable verdict, in percent. Zero when nothing applies.
func (r Report) ComplianceRate() float64 {
	applicable := r.Compliant + r.NonCompliant
	if applicable == 0 {
		return 0
	}
	return float64(r.Compliant) * 100 / float64(applicable)
}
