package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ecoguard/internal/domain"
)

// ErrStaleStage is returned by Save when the stored stage no longer matches
// the stage the caller loaded.
var ErrStaleStage = errors.New("ticket stage changed concurrently")

// ErrVerdictTaken is returned by Save when an area already holds a different
// verdict than the one being written.
var ErrVerdictTaken = errors.New("area verdict already recorded")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	ClientID       *string
	CompanyID      *string
	Stage          *domain.Stage
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// TicketRepository persists the ticket aggregate and its areas.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Save writes stage, flags and areas atomically. It fails with
	// ErrStaleStage unless the stored stage equals expected, and with
	// ErrVerdictTaken when a stored verdict would be replaced.
	Save(ctx context.Context, ticket *domain.Ticket, expected domain.Stage) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, company_id, facility_plan_id, client_user_id, stage, deleted_by_client, created_at, updated_at`

const areaColumns = `id, ticket_id, position, name, description, area_type, criticality, position_x, position_y,
               client_photo_ref, photo_content_type, photo_uploaded_at, verdict, reviewer_note, verdict_at, created_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, company_id, facility_plan_id, client_user_id, stage, deleted_by_client, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.CompanyID,
		ticket.FacilityPlanID,
		ticket.ClientID,
		ticket.Stage,
		ticket.DeletedByClient,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	areas, err := r.listAreas(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Areas = areas
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_user_id=$%d", len(args)))
	}
	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		clauses = append(clauses, fmt.Sprintf("company_id=$%d", len(args)))
	}
	if filter.Stage != nil {
		args = append(args, *filter.Stage)
		clauses = append(clauses, fmt.Sprintf("stage=$%d", len(args)))
	}
	if !filter.IncludeDeleted {
		clauses = append(clauses, "deleted_by_client = FALSE")
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket, expected domain.Stage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const update = `
        UPDATE tickets SET stage=$1, deleted_by_client=$2, updated_at=$3
        WHERE id=$4 AND stage=$5`
	cmd, err := tx.Exec(ctx, update, ticket.Stage, ticket.DeletedByClient, ticket.UpdatedAt, ticket.ID, expected)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrStaleStage
	}

	// Verdicts and notes are write-once. A stored verdict may only be
	// rewritten with itself; anything else skips the row.
	const upsertArea = `
        INSERT INTO ticket_areas (` + areaColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (id) DO UPDATE SET
            client_photo_ref = EXCLUDED.client_photo_ref,
            photo_content_type = EXCLUDED.photo_content_type,
            photo_uploaded_at = EXCLUDED.photo_uploaded_at,
            verdict = COALESCE(ticket_areas.verdict, EXCLUDED.verdict),
            reviewer_note = CASE WHEN ticket_areas.verdict IS NULL THEN EXCLUDED.reviewer_note ELSE ticket_areas.reviewer_note END,
            verdict_at = COALESCE(ticket_areas.verdict_at, EXCLUDED.verdict_at)
        WHERE EXCLUDED.verdict IS NULL
           OR ticket_areas.verdict IS NULL
           OR (ticket_areas.verdict = EXCLUDED.verdict AND ticket_areas.verdict_at = EXCLUDED.verdict_at)`
	for _, a := range ticket.Areas {
		var verdict *string
		if a.Verdict != nil {
			v := string(*a.Verdict)
			verdict = &v
		}
		tag, err := tx.Exec(ctx, upsertArea,
			a.ID,
			ticket.ID,
			a.Position,
			a.Name,
			a.Description,
			a.AreaType,
			a.Criticality,
			a.PositionX,
			a.PositionY,
			a.ClientPhotoRef,
			a.PhotoContentType,
			a.PhotoUploadedAt,
			verdict,
			a.ReviewerNote,
			a.VerdictAt,
			a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save area %s: %w", a.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("save area %s: %w", a.ID, ErrVerdictTaken)
		}
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) listAreas(ctx context.Context, ticketID string) ([]domain.TicketArea, error) {
	query := `SELECT ` + areaColumns + ` FROM ticket_areas WHERE ticket_id=$1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	areas := []domain.TicketArea{}
	for rows.Next() {
		var a domain.TicketArea
		var verdict *string
		if err := rows.Scan(
			&a.ID,
			&a.TicketID,
			&a.Position,
			&a.Name,
			&a.Description,
			&a.AreaType,
			&a.Criticality,
			&a.PositionX,
			&a.PositionY,
			&a.ClientPhotoRef,
			&a.PhotoContentType,
			&a.PhotoUploadedAt,
			&verdict,
			&a.ReviewerNote,
			&a.VerdictAt,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		if verdict != nil {
			v := domain.Verdict(*verdict)
			a.Verdict = &v
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.CompanyID,
		&ticket.FacilityPlanID,
		&ticket.ClientID,
		&ticket.Stage,
		&ticket.DeletedByClient,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
