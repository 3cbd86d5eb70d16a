package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// TicketMessageRepository manages the append-only ticket thread.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, sender_role, sender_id, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderRole,
		msg.SenderID,
		msg.Body,
		msg.CreatedAt,
	)
	return err
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender_role, sender_id, body, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderRole,
			&msg.SenderID,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
