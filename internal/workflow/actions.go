package workflow

import "github.com/spec-kit/ecoguard/internal/domain"

// Action names an operation an actor can invoke on a ticket.
type Action string

const (
	ActionSubmitMapping  Action = "submit_mapping"
	ActionUploadPhoto    Action = "upload_photo"
	ActionSubmitPhotos   Action = "submit_photos"
	ActionRecordVerdict  Action = "record_verdict"
	ActionFinalize       Action = "finalize"
	ActionPostMessage    Action = "post_message"
	ActionMarkDeleted    Action = "mark_deleted"
	ActionDownloadReport Action = "download_report"
)

// AllowedActions lists what the actor may do next with the ticket, in
// workflow order. It never includes an action the engine would reject for
// stage or role reasons.
func AllowedActions(t *domain.Ticket, actor domain.Actor) []Action {
	if participant(t, actor) != nil {
		return []Action{}
	}

	actions := []Action{}
	switch {
	case actor.Role == domain.RoleAdministrator && t.Stage == domain.StageMapping:
		actions = append(actions, ActionSubmitMapping)
	case actor.Role == domain.RoleClient && t.Stage == domain.StageAwaitingClientPhotos:
		actions = append(actions, ActionUploadPhoto)
		if t.PhotoCount() > 0 {
			actions = append(actions, ActionSubmitPhotos)
		}
	case actor.Role == domain.RoleAdministrator && t.Stage == domain.StageUnderReview:
		pending := t.PendingVerdicts()
		if len(pending) > 0 {
			actions = append(actions, ActionRecordVerdict)
		} else {
			actions = append(actions, ActionFinalize)
		}
	}

	actions = append(actions, ActionPostMessage)
	if actor.Role == domain.RoleClient && !t.DeletedByClient {
		actions = append(actions, ActionMarkDeleted)
	}
	if t.Stage == domain.StageFinalized {
		actions = append(actions, ActionDownloadReport)
	}
	return actions
}

// Can reports whether action is currently allowed for actor.
func Can(t *domain.Ticket, actor domain.Actor, action Action) bool {
	for _, a := range AllowedActions(t, actor) {
		if a == action {
			return true
		}
	}
	return false
}

// Authorize reports whether actor may see the ticket at all. It returns a
// Forbidden error for a client who does not own it.
func Authorize(t *domain.Ticket, actor domain.Actor) error {
	return participant(t, actor)
}
