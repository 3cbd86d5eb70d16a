package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/repository"
)

// MessageRepository is an append-only in-memory thread store.
type MessageRepository struct {
	mu       sync.RWMutex
	byTicket map[string][]domain.Message
}

var _ repository.TicketMessageRepository = (*MessageRepository)(nil)

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byTicket: make(map[string][]domain.Message)}
}

func (r *MessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.byTicket[msg.TicketID] = append(r.byTicket[msg.TicketID], *msg)
	return nil
}

func (r *MessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byTicket[ticketID]
	out := make([]domain.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// HistoryRepository is an in-memory audit log of stage changes.
type HistoryRepository struct {
	mu       sync.RWMutex
	byTicket map[string][]domain.StageChange
	now      func() time.Time
}

var _ repository.TicketHistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		byTicket: make(map[string][]domain.StageChange),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *HistoryRepository) Create(_ context.Context, change *domain.StageChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	change.ID = uuid.NewString()
	if change.CreatedAt.IsZero() {
		change.CreatedAt = r.now()
	}
	r.byTicket[change.TicketID] = append(r.byTicket[change.TicketID], *change)
	return nil
}

func (r *HistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.StageChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byTicket[ticketID]
	out := make([]domain.StageChange, len(stored))
	copy(out, stored)
	return out, nil
}
