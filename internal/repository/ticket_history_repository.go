package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// TicketHistoryRepository stores stage transition audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, change *domain.StageChange) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StageChange, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, change *domain.StageChange) error {
	const query = `
        INSERT INTO ticket_stage_changes (ticket_id, from_stage, to_stage, actor_role, actor_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		change.TicketID,
		change.FromStage,
		change.ToStage,
		change.ActorRole,
		change.ActorID,
	).Scan(&change.ID, &change.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StageChange, error) {
	const query = `
        SELECT id, ticket_id, from_stage, to_stage, actor_role, actor_id, created_at
        FROM ticket_stage_changes WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.StageChange{}
	for rows.Next() {
		var change domain.StageChange
		if err := rows.Scan(
			&change.ID,
			&change.TicketID,
			&change.FromStage,
			&change.ToStage,
			&change.ActorRole,
			&change.ActorID,
			&change.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, change)
	}
	return result, rows.Err()
}
