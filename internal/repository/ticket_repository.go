package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/conversation-service/internal/domain"
)

const ticketColumns = `id, unit_id, subject, requester_id, requester_name,
               status, last_message, last_sender, last_updated_at, created_at`

// TicketRepository encapsulates ticket persistence. Tickets are created by
// the surrounding ERP; summary mutations go through the write coordinator,
// so this repository is read-mostly.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOrdered(ctx context.Context) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (unit_id, subject, requester_id, requester_name, status, last_message, last_sender)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, last_updated_at, created_at`
	status := ticket.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	lastSender := ticket.LastSender
	if lastSender == "" {
		lastSender = domain.SenderRequester
	}
	return r.pool.QueryRow(ctx, query,
		ticket.UnitID,
		ticket.Subject,
		ticket.RequesterID,
		ticket.RequesterName,
		status,
		ticket.LastMessage,
		lastSender,
	).Scan(&ticket.ID, &ticket.LastUpdatedAt, &ticket.CreatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.UnitID,
		&ticket.Subject,
		&ticket.RequesterID,
		&ticket.RequesterName,
		&ticket.Status,
		&ticket.LastMessage,
		&ticket.LastSender,
		&ticket.LastUpdatedAt,
		&ticket.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListOrdered returns every ticket ordered by last activity, newest first.
// Grouping by unit and status filtering are applied by callers over this
// flat snapshot.
func (r *ticketRepository) ListOrdered(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets ORDER BY last_updated_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UnitID,
			&ticket.Subject,
			&ticket.RequesterID,
			&ticket.RequesterName,
			&ticket.Status,
			&ticket.LastMessage,
			&ticket.LastSender,
			&ticket.LastUpdatedAt,
			&ticket.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
