package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/conversation-service/internal/domain"
)

const messageColumns = `id, ticket_id, sender, sender_id, sender_name, body,
               attachment_url, attachment_key, attachment_name, attachment_type, attachment_size,
               seen, created_at`

// MessageRepository manages a ticket's ordered, append-only message log.
// Within a ticket messages are totally ordered by created_at (id breaks
// clock ties); they are never updated or deleted, apart from the transient
// seen flag used by the direct-message variant.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	MarkSeen(ctx context.Context, ticketID string, reader domain.SenderRole) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.pool.QueryRow(ctx, insertMessageSQL, insertMessageArgs(msg)...).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `SELECT ` + messageColumns + `
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanMessages(rows)
}

// MarkSeen flags every message in the ticket not authored by the reader.
func (r *messageRepository) MarkSeen(ctx context.Context, ticketID string, reader domain.SenderRole) error {
	const query = `UPDATE messages SET seen=TRUE WHERE ticket_id=$1 AND sender <> $2 AND seen=FALSE`
	_, err := r.pool.Exec(ctx, query, ticketID, reader)
	return err
}

// insertMessageSQL and its argument builder are shared with the write
// coordinator so a transactional append produces exactly the same row as a
// direct one.
const insertMessageSQL = `
        INSERT INTO messages (ticket_id, sender, sender_id, sender_name, body,
            attachment_url, attachment_key, attachment_name, attachment_type, attachment_size)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`

func insertMessageArgs(msg *domain.Message) []any {
	var url, key, name, contentType *string
	var size *int64
	if att := msg.Attachment; att != nil {
		url, key, name, contentType, size = &att.URL, &att.StorageKey, &att.FileName, &att.ContentType, &att.SizeBytes
	}
	return []any{
		msg.TicketID,
		msg.Sender,
		msg.SenderID,
		msg.SenderName,
		msg.Text,
		url, key, name, contentType, size,
	}
}

// AppendMessageSQL exposes the shared insert for transactional writes.
func AppendMessageSQL() string {
	return insertMessageSQL
}

// AppendMessageArgs exposes the shared argument builder for transactional writes.
func AppendMessageArgs(msg *domain.Message) []any {
	return insertMessageArgs(msg)
}

// ScanMessages converts rows into domain messages.
func ScanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		var url, key, name, contentType *string
		var size *int64
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Sender,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Text,
			&url, &key, &name, &contentType, &size,
			&msg.Seen,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if url != nil && name != nil {
			msg.Attachment = &domain.Attachment{
				URL:         *url,
				FileName:    *name,
			}
			if key != nil {
				msg.Attachment.StorageKey = *key
			}
			if contentType != nil {
				msg.Attachment.ContentType = *contentType
			}
			if size != nil {
				msg.Attachment.SizeBytes = *size
			}
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
