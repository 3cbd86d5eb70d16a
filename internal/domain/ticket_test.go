package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		input string
		want  Stage
		ok    bool
	}{
		{"mapping", StageMapping, true},
		{" UNDER_REVIEW ", StageUnderReview, true},
		{"aberto", StageMapping, true},
		{"aguardando_fotos_cliente", StageAwaitingClientPhotos, true},
		{"upload_fotos_cliente", StageAwaitingClientPhotos, true},
		{"em_analise", StageUnderReview, true},
		{"fechado", StageFinalized, true},
		{"cancelled", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseStage(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStageOrdering(t *testing.T) {
	for i, s := range Stages {
		require.Equal(t, i, s.Rank())
	}
	require.Equal(t, -1, Stage("bogus").Rank())

	next, ok := StageMapping.Next()
	require.True(t, ok)
	require.Equal(t, StageAwaitingClientPhotos, next)

	_, ok = StageFinalized.Next()
	require.False(t, ok)
	require.True(t, StageFinalized.Terminal())
	require.False(t, StageUnderReview.Terminal())
}

func TestParseAreaAttributes(t *testing.T) {
	at, ok := ParseAreaType("residuos")
	require.True(t, ok)
	require.Equal(t, AreaTypeWaste, at)

	at, ok = ParseAreaType("app")
	require.True(t, ok)
	require.Equal(t, AreaTypeProtectedZone, at)

	_, ok = ParseAreaType("parking")
	require.False(t, ok)

	c, ok := ParseCriticality("")
	require.True(t, ok)
	require.Equal(t, CriticalityMedium, c)

	c, ok = ParseCriticality("critica")
	require.True(t, ok)
	require.Equal(t, CriticalityCritical, c)

	v, ok := ParseVerdict("nao_conforme")
	require.True(t, ok)
	require.Equal(t, VerdictNonCompliant, v)

	_, ok = ParseVerdict("maybe")
	require.False(t, ok)
}

func TestTicketCloneIsDeep(t *testing.T) {
	ref := "blob-1"
	ticket := &Ticket{
		ID:    "t1",
		Areas: []TicketArea{{ID: "a1", ClientPhotoRef: &ref}},
	}
	cp := ticket.Clone()
	newRef := "blob-2"
	cp.Areas[0].ClientPhotoRef = &newRef
	v := VerdictCompliant
	cp.Areas[0].Verdict = &v

	require.Equal(t, "blob-1", *ticket.Areas[0].ClientPhotoRef)
	require.Nil(t, ticket.Areas[0].Verdict)
	require.Equal(t, []string{"a1"}, ticket.PendingVerdicts())
	require.Empty(t, cp.PendingVerdicts())
	require.Equal(t, 1, ticket.PhotoCount())
}
