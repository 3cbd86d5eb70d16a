package workflow

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ecoguard/internal/domain"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

var (
	admin  = domain.Actor{ID: "admin-1", Role: domain.RoleAdministrator}
	client = domain.Actor{ID: "client-1", Role: domain.RoleClient}
	other  = domain.Actor{ID: "client-2", Role: domain.RoleClient}
)

func newTestEngine() *Engine {
	n := 0
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time {
			base = base.Add(time.Second)
			return base
		}),
	)
}

func twoDrafts() []AreaDraft {
	return []AreaDraft{
		{Name: "Waste yard", AreaType: "residuos", Criticality: "alta", PositionX: 12.5, PositionY: 40},
		{Name: "Effluent tank", AreaType: "effluent", PositionX: 80, PositionY: 10.25},
	}
}

func newTicket(t *testing.T, e *Engine) *domain.Ticket {
	t.Helper()
	ticket, err := e.NewTicket("company-1", "plan-1", client.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StageMapping, ticket.Stage)
	return ticket
}

func mapped(t *testing.T, e *Engine) *domain.Ticket {
	t.Helper()
	ticket := newTicket(t, e)
	require.NoError(t, e.SubmitMapping(ticket, admin, twoDrafts()))
	return ticket
}

func underReview(t *testing.T, e *Engine) *domain.Ticket {
	t.Helper()
	ticket := mapped(t, e)
	require.NoError(t, e.UploadAreaPhoto(ticket, client, ticket.Areas[0].ID, Photo{Ref: "blob-a1", ContentType: "image/jpeg"}))
	require.NoError(t, e.SubmitPhotosForReview(ticket, client))
	return ticket
}

func TestScenarioAMappingMovesToAwaitingPhotos(t *testing.T) {
	e := newTestEngine()
	ticket := mapped(t, e)

	require.Equal(t, domain.StageAwaitingClientPhotos, ticket.Stage)
	require.Len(t, ticket.Areas, 2)
	for i, a := range ticket.Areas {
		assert.Equal(t, i, a.Position)
		assert.Nil(t, a.ClientPhotoRef)
		assert.Nil(t, a.Verdict)
	}
	assert.Equal(t, domain.AreaTypeWaste, ticket.Areas[0].AreaType)
	assert.Equal(t, domain.CriticalityHigh, ticket.Areas[0].Criticality)
	assert.Equal(t, domain.CriticalityMedium, ticket.Areas[1].Criticality)
	assert.Equal(t, 10.25, ticket.Areas[1].PositionY)
}

func TestScenarioBPartialPhotosReachReview(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)

	require.Equal(t, domain.StageUnderReview, ticket.Stage)
	require.True(t, ticket.Areas[0].HasPhoto())
	require.Nil(t, ticket.Areas[1].ClientPhotoRef)
	require.True(t, ticket.Areas[1].ClientPending())
}

func TestScenarioCVerdictsThenFinalize(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)

	require.NoError(t, e.RecordVerdict(ticket, admin, ticket.Areas[0].ID, "compliant", ""))
	require.NoError(t, e.RecordVerdict(ticket, admin, ticket.Areas[1].ID, "non_compliant", "drum leaking"))
	require.Equal(t, domain.VerdictCompliant, *ticket.Areas[0].Verdict)
	require.Equal(t, domain.VerdictNonCompliant, *ticket.Areas[1].Verdict)
	require.Equal(t, "drum leaking", *ticket.Areas[1].ReviewerNote)
	require.Nil(t, ticket.Areas[0].ReviewerNote)

	require.NoError(t, e.Finalize(ticket, admin))
	require.Equal(t, domain.StageFinalized, ticket.Stage)
}

func TestScenarioDFinalizeWithPendingVerdict(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)
	require.NoError(t, e.RecordVerdict(ticket, admin, ticket.Areas[0].ID, "compliant", ""))

	err := e.Finalize(ticket, admin)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, domain.StageUnderReview, ticket.Stage)

	de := apperrors.ToDomainError(err)
	require.Equal(t, []string{ticket.Areas[1].ID}, de.Details["pending_area_ids"])
}

func TestScenarioEClientCannotRecordVerdict(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)
	before := ticket.Clone()

	err := e.RecordVerdict(ticket, client, ticket.Areas[0].ID, "compliant", "")
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, before, ticket)
}

func TestFinalizeSucceedsIffAllVerdicted(t *testing.T) {
	for mask := 0; mask < 4; mask++ {
		t.Run(fmt.Sprintf("mask=%02b", mask), func(t *testing.T) {
			e := newTestEngine()
			ticket := underReview(t, e)
			for i := range ticket.Areas {
				if mask&(1<<i) != 0 {
					require.NoError(t, e.RecordVerdict(ticket, admin, ticket.Areas[i].ID, "not_applicable", ""))
				}
			}
			err := e.Finalize(ticket, admin)
			if mask == 3 {
				require.NoError(t, err)
				require.Equal(t, domain.StageFinalized, ticket.Stage)
			} else {
				require.Error(t, err)
				require.Equal(t, domain.StageUnderReview, ticket.Stage)
			}
		})
	}
}

func TestVerdictIsWriteOnce(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)
	areaID := ticket.Areas[0].ID

	require.NoError(t, e.RecordVerdict(ticket, admin, areaID, "compliant", "ok"))
	err := e.RecordVerdict(ticket, admin, areaID, "non_compliant", "changed my mind")
	require.ErrorIs(t, err, ErrAlreadyVerdicted)
	require.Equal(t, domain.VerdictCompliant, *ticket.Areas[0].Verdict)
	require.Equal(t, "ok", *ticket.Areas[0].ReviewerNote)
}

func TestVerdictAllowedWithoutClientPhoto(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)
	require.False(t, ticket.Areas[1].HasPhoto())
	require.NoError(t, e.RecordVerdict(ticket, admin, ticket.Areas[1].ID, "nao_aplicavel", ""))
	require.Equal(t, domain.VerdictNotApplicable, *ticket.Areas[1].Verdict)
}

func TestRecordVerdictValidation(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)

	err := e.RecordVerdict(ticket, admin, ticket.Areas[0].ID, "perhaps", "")
	require.ErrorIs(t, err, ErrValidation)

	err = e.RecordVerdict(ticket, admin, "missing", "compliant", "")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{ticket.Areas[0].ID, ticket.Areas[1].ID}, ticket.PendingVerdicts())
}

func TestEmptyMappingLeavesStage(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)

	err := e.SubmitMapping(ticket, admin, nil)
	require.ErrorIs(t, err, ErrEmptyMapping)
	require.Equal(t, domain.StageMapping, ticket.Stage)

	err = e.SubmitMapping(ticket, admin, []AreaDraft{})
	require.ErrorIs(t, err, ErrEmptyMapping)
	require.Empty(t, ticket.Areas)
}

func TestSubmitMappingValidatesDrafts(t *testing.T) {
	tests := []struct {
		name  string
		draft AreaDraft
	}{
		{"missing name", AreaDraft{AreaType: "waste", PositionX: 1, PositionY: 1}},
		{"unknown type", AreaDraft{Name: "x", AreaType: "parking", PositionX: 1, PositionY: 1}},
		{"unknown criticality", AreaDraft{Name: "x", AreaType: "waste", Criticality: "extreme"}},
		{"x above 100", AreaDraft{Name: "x", AreaType: "waste", PositionX: 100.5}},
		{"negative y", AreaDraft{Name: "x", AreaType: "waste", PositionY: -0.1}},
		{"nan", AreaDraft{Name: "x", AreaType: "waste", PositionX: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			ticket := newTicket(t, e)
			drafts := append(twoDrafts(), tt.draft)
			err := e.SubmitMapping(ticket, admin, drafts)
			require.ErrorIs(t, err, ErrValidation)
			require.Equal(t, domain.StageMapping, ticket.Stage)
			require.Empty(t, ticket.Areas)
		})
	}
}

func TestPositionBoundsAreInclusive(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)
	err := e.SubmitMapping(ticket, admin, []AreaDraft{{Name: "corner", AreaType: "storage", PositionX: 0, PositionY: 100}})
	require.NoError(t, err)
}

func TestRoleGating(t *testing.T) {
	type op struct {
		name  string
		setup func(*testing.T, *Engine) *domain.Ticket
		run   func(*Engine, *domain.Ticket, domain.Actor) error
		wrong []domain.Actor
	}
	ops := []op{
		{
			name:  "submit mapping",
			setup: newTicket,
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.SubmitMapping(tk, a, twoDrafts())
			},
			wrong: []domain.Actor{client, other},
		},
		{
			name:  "upload photo",
			setup: mapped,
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.UploadAreaPhoto(tk, a, tk.Areas[0].ID, Photo{Ref: "x"})
			},
			wrong: []domain.Actor{admin, other},
		},
		{
			name: "submit photos",
			setup: func(t *testing.T, e *Engine) *domain.Ticket {
				tk := mapped(t, e)
				require.NoError(t, e.UploadAreaPhoto(tk, client, tk.Areas[0].ID, Photo{Ref: "x"}))
				return tk
			},
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.SubmitPhotosForReview(tk, a)
			},
			wrong: []domain.Actor{admin, other},
		},
		{
			name:  "record verdict",
			setup: underReview,
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.RecordVerdict(tk, a, tk.Areas[0].ID, "compliant", "")
			},
			wrong: []domain.Actor{client, other},
		},
		{
			name: "finalize",
			setup: func(t *testing.T, e *Engine) *domain.Ticket {
				tk := underReview(t, e)
				for _, a := range tk.Areas {
					require.NoError(t, e.RecordVerdict(tk, admin, a.ID, "compliant", ""))
				}
				return tk
			},
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.Finalize(tk, a)
			},
			wrong: []domain.Actor{client, other},
		},
		{
			name:  "mark deleted",
			setup: newTicket,
			run: func(e *Engine, tk *domain.Ticket, a domain.Actor) error {
				return e.MarkDeletedByClient(tk, a)
			},
			wrong: []domain.Actor{admin, other},
		},
	}

	for _, o := range ops {
		for _, actor := range o.wrong {
			t.Run(fmt.Sprintf("%s by %s/%s", o.name, actor.Role, actor.ID), func(t *testing.T) {
				e := newTestEngine()
				ticket := o.setup(t, e)
				before := ticket.Clone()
				err := o.run(e, ticket, actor)
				require.ErrorIs(t, err, ErrForbidden)
				require.Equal(t, before, ticket)
			})
		}
	}
}

func TestUnknownRoleIsForbidden(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)
	_, err := e.PostMessage(ticket, domain.Actor{ID: "x", Role: "auditor"}, "hello")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestFinalizedTicketIsFrozen(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)
	for _, a := range ticket.Areas {
		require.NoError(t, e.RecordVerdict(ticket, admin, a.ID, "compliant", ""))
	}
	require.NoError(t, e.Finalize(ticket, admin))
	before := ticket.Clone()

	errs := []error{
		e.SubmitMapping(ticket, admin, twoDrafts()),
		e.UploadAreaPhoto(ticket, client, ticket.Areas[0].ID, Photo{Ref: "late"}),
		e.SubmitPhotosForReview(ticket, client),
		e.RecordVerdict(ticket, admin, ticket.Areas[0].ID, "non_compliant", ""),
		e.Finalize(ticket, admin),
	}
	for i, err := range errs {
		require.ErrorIs(t, err, ErrTicketFinalized, "operation %d", i)
	}
	require.Equal(t, before, ticket)

	msg, err := e.PostMessage(ticket, client, "thanks for the report")
	require.NoError(t, err)
	require.Equal(t, domain.RoleClient, msg.SenderRole)
	require.NoError(t, e.MarkDeletedByClient(ticket, client))
	require.True(t, ticket.DeletedByClient)
	require.Equal(t, domain.StageFinalized, ticket.Stage)
}

func TestStageMismatchIsInvalidTransition(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)

	require.ErrorIs(t, e.SubmitPhotosForReview(ticket, client), ErrInvalidTransition)
	require.ErrorIs(t, e.UploadAreaPhoto(ticket, client, "a", Photo{Ref: "x"}), ErrInvalidTransition)
	require.ErrorIs(t, e.RecordVerdict(ticket, admin, "a", "compliant", ""), ErrInvalidTransition)
	require.ErrorIs(t, e.Finalize(ticket, admin), ErrInvalidTransition)

	require.NoError(t, e.SubmitMapping(ticket, admin, twoDrafts()))
	require.ErrorIs(t, e.SubmitMapping(ticket, admin, twoDrafts()), ErrInvalidTransition)
}

func TestSubmitPhotosRequiresAtLeastOnePhoto(t *testing.T) {
	e := newTestEngine()
	ticket := mapped(t, e)
	err := e.SubmitPhotosForReview(ticket, client)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, domain.StageAwaitingClientPhotos, ticket.Stage)
}

func TestUploadPhotoOverwritesAndDoesNotAdvance(t *testing.T) {
	e := newTestEngine()
	ticket := mapped(t, e)
	areaID := ticket.Areas[1].ID

	require.NoError(t, e.UploadAreaPhoto(ticket, client, areaID, Photo{Ref: "first", ContentType: "image/png"}))
	require.NoError(t, e.UploadAreaPhoto(ticket, client, areaID, Photo{Ref: "second"}))
	require.Equal(t, "second", *ticket.Areas[1].ClientPhotoRef)
	require.Nil(t, ticket.Areas[1].PhotoContentType)
	require.Equal(t, domain.StageAwaitingClientPhotos, ticket.Stage)

	require.ErrorIs(t, e.UploadAreaPhoto(ticket, client, "nope", Photo{Ref: "x"}), ErrNotFound)
	require.ErrorIs(t, e.UploadAreaPhoto(ticket, client, areaID, Photo{}), ErrValidation)
}

func TestStagesNeverRegress(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)
	observed := []domain.Stage{ticket.Stage}
	record := func(error) { observed = append(observed, ticket.Stage) }

	record(e.SubmitPhotosForReview(ticket, client))
	record(e.SubmitMapping(ticket, admin, twoDrafts()))
	record(e.SubmitMapping(ticket, admin, twoDrafts()))
	record(e.UploadAreaPhoto(ticket, client, ticket.Areas[0].ID, Photo{Ref: "p"}))
	record(e.Finalize(ticket, admin))
	record(e.SubmitPhotosForReview(ticket, client))
	record(e.RecordVerdict(ticket, admin, ticket.Areas[0].ID, "compliant", ""))
	record(e.Finalize(ticket, admin))
	record(e.RecordVerdict(ticket, admin, ticket.Areas[1].ID, "compliant", ""))
	record(e.Finalize(ticket, admin))

	for i := 1; i < len(observed); i++ {
		require.GreaterOrEqual(t, observed[i].Rank(), observed[i-1].Rank(), "step %d", i)
	}
	require.Equal(t, domain.StageFinalized, observed[len(observed)-1])
}

func TestPostMessage(t *testing.T) {
	e := newTestEngine()
	ticket := newTicket(t, e)

	_, err := e.PostMessage(ticket, client, "   ")
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.PostMessage(ticket, other, "not my ticket")
	require.ErrorIs(t, err, ErrForbidden)

	first, err := e.PostMessage(ticket, client, " When will you map? ")
	require.NoError(t, err)
	second, err := e.PostMessage(ticket, admin, "Today")
	require.NoError(t, err)

	require.Equal(t, "When will you map?", first.Body)
	require.Len(t, ticket.Messages, 2)
	require.Equal(t, first.ID, ticket.Messages[0].ID)
	require.Equal(t, second.ID, ticket.Messages[1].ID)
	require.True(t, ticket.Messages[0].CreatedAt.Before(ticket.Messages[1].CreatedAt))
	require.Equal(t, domain.RoleAdministrator, ticket.Messages[1].SenderRole)
}

func TestMarkDeletedByClient(t *testing.T) {
	e := newTestEngine()
	ticket := underReview(t, e)

	require.ErrorIs(t, e.MarkDeletedByClient(ticket, admin), ErrForbidden)
	require.ErrorIs(t, e.MarkDeletedByClient(ticket, other), ErrForbidden)
	require.False(t, ticket.DeletedByClient)

	require.NoError(t, e.MarkDeletedByClient(ticket, client))
	updated := ticket.UpdatedAt
	require.NoError(t, e.MarkDeletedByClient(ticket, client))

	require.True(t, ticket.DeletedByClient)
	require.Equal(t, updated, ticket.UpdatedAt)
	require.Equal(t, domain.StageUnderReview, ticket.Stage)
}

func TestNewTicketRequiresReferences(t *testing.T) {
	e := newTestEngine()
	_, err := e.NewTicket("", "plan", "client")
	require.ErrorIs(t, err, ErrValidation)
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{ErrForbidden, ErrInvalidTransition, ErrEmptyMapping, ErrAlreadyVerdicted, ErrTicketFinalized, ErrNotFound, ErrValidation}
	for i, a := range kinds {
		for j, b := range kinds {
			assert.Equal(t, i == j, errors.Is(a, b), "%v vs %v", a, b)
		}
	}
}
