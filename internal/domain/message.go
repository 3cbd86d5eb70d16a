package domain

import "time"

// Message captures communications in a ticket thread. Messages are append-only.
type Message struct {
	ID         string
	TicketID   string
	SenderRole Role
	SenderID   string
	Body       string
	CreatedAt  time.Time
}

// StageChange is an immutable audit entry for one stage transition.
type StageChange struct {
	ID        string
	TicketID  string
	FromStage Stage
	ToStage   Stage
	ActorRole Role
	ActorID   string
	CreatedAt time.Time
}
