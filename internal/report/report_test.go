package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ecoguard/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func sampleTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:             "tk-1",
		CompanyID:      "co-1",
		FacilityPlanID: "plan-1",
		Stage:          domain.StageFinalized,
		Areas: []domain.TicketArea{
			{ID: "a1", Name: "Waste yard", AreaType: domain.AreaTypeWaste, Criticality: domain.CriticalityHigh,
				PositionX: 12.5, PositionY: 40, ClientPhotoRef: ptr("blob-1"), Verdict: ptr(domain.VerdictCompliant)},
			{ID: "a2", Name: "Effluent tank", AreaType: domain.AreaTypeEffluent, Criticality: domain.CriticalityMedium,
				Verdict: ptr(domain.VerdictNonCompliant), ReviewerNote: ptr("**Leak** near valve <script>alert(1)</script>")},
			{ID: "a3", Name: "APP border", AreaType: domain.AreaTypeProtectedZone, Criticality: domain.CriticalityLow,
				ClientPhotoRef: ptr("blob-3"), Verdict: ptr(domain.VerdictNotApplicable)},
		},
	}
}

func TestBuildCountsVerdicts(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	rep := Build(sampleTicket(), 12500, now)

	require.True(t, rep.Final)
	require.Equal(t, 3, rep.TotalAreas)
	require.Equal(t, 1, rep.Compliant)
	require.Equal(t, 1, rep.NonCompliant)
	require.Equal(t, 1, rep.NotApplicable)
	require.Equal(t, 0, rep.Pending)
	require.Equal(t, 1, rep.ClientPending)
	require.Equal(t, 8+6+5, rep.ChecklistTotal)
	require.Equal(t, int64(12500), rep.EstimatedExposure)
	require.InDelta(t, 50.0, rep.ComplianceRate(), 0.001)
	require.True(t, rep.Rows[1].ClientPending)
	require.Equal(t, now, rep.GeneratedAt)
}

func TestBuildPartialReport(t *testing.T) {
	ticket := sampleTicket()
	ticket.Stage = domain.StageUnderReview
	ticket.Areas[2].Verdict = nil

	rep := Build(ticket, 1000, time.Now())
	require.False(t, rep.Final)
	require.Equal(t, 1, rep.Pending)
	require.Equal(t, int64(1000), rep.EstimatedExposure)
}

func TestComplianceRateWithoutApplicableVerdicts(t *testing.T) {
	require.Zero(t, Report{NotApplicable: 2}.ComplianceRate())
}

func TestRenderSanitizesNotes(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	rep := Build(sampleTicket(), 12500, time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC))
	require.NoError(t, r.Render(&buf, rep))
	html := buf.String()

	assert.Contains(t, html, "Relatório de Inspeção")
	assert.Contains(t, html, "<strong>Leak</strong>")
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "Não conforme")
	assert.Contains(t, html, "R$ 12.500")
	assert.Contains(t, html, "12.5% × 40%")
	assert.Contains(t, html, "pendente do cliente")
	assert.Contains(t, html, "04/05/2026 10:30")
}

func TestFormatMoney(t *testing.T) {
	tests := map[int64]string{0: "0", 999: "999", 1000: "1.000", 12500: "12.500", 1234567: "1.234.567", -2500: "-2.500"}
	for in, want := range tests {
		assert.Equal(t, want, formatMoney(in))
	}
}
