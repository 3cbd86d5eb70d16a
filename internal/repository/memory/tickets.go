// Package memory holds in-process repository implementations used when no
// database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/repository"
)

// TicketRepository keeps tickets in a map. Stored values are clones so
// callers never share state with the store.
type TicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository builds an empty store.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *TicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	stored := ticket.Clone()
	stored.Messages = nil
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := t.Clone()
	if out.Areas == nil {
		out.Areas = []domain.TicketArea{}
	}
	return out, nil
}

func (r *TicketRepository) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Ticket
	for _, t := range r.tickets {
		if filter.ClientID != nil && t.ClientID != *filter.ClientID {
			continue
		}
		if filter.CompanyID != nil && t.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.Stage != nil && t.Stage != *filter.Stage {
			continue
		}
		if !filter.IncludeDeleted && t.DeletedByClient {
			continue
		}
		c := t.Clone()
		c.Areas = nil
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset, limit := filter.Offset, filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *TicketRepository) Save(_ context.Context, ticket *domain.Ticket, expected domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Stage != expected {
		return repository.ErrStaleStage
	}

	next := ticket.Clone()
	next.Messages = nil
	// Stored verdicts are write-once: an unset incoming verdict keeps the
	// stored one, a different one is rejected.
	for i := range next.Areas {
		prev, ok := current.Area(next.Areas[i].ID)
		if !ok || prev.Verdict == nil {
			continue
		}
		if in := &next.Areas[i]; in.Verdict != nil && !sameVerdict(prev, in) {
			return fmt.Errorf("save area %s: %w", in.ID, repository.ErrVerdictTaken)
		}
		next.Areas[i].Verdict = prev.Verdict
		next.Areas[i].ReviewerNote = prev.ReviewerNote
		next.Areas[i].VerdictAt = prev.VerdictAt
	}
	next.CreatedAt = current.CreatedAt
	r.tickets[ticket.ID] = next
	return nil
}

func sameVerdict(stored, incoming *domain.TicketArea) bool {
	if *stored.Verdict != *incoming.Verdict {
		return false
	}
	if stored.VerdictAt == nil || incoming.VerdictAt == nil {
		return stored.VerdictAt == nil && incoming.VerdictAt == nil
	}
	return stored.VerdictAt.Equal(*incoming.VerdictAt)
}
