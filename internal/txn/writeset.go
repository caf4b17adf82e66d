package txn

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/repository"
)

// Mutation is one document mutation inside a writeSet.
type Mutation interface {
	Apply(ctx context.Context, tx pgx.Tx) error
}

// WriteSet is an ordered set of mutations that must become visible to all
// subscribers simultaneously, or not at all. Topics name the change channels
// to notify once the set has committed.
type WriteSet struct {
	mutations []Mutation
	topics    []string
}

// NewWriteSet builds an empty writeSet.
func NewWriteSet() *WriteSet {
	return &WriteSet{}
}

// Add appends a mutation, preserving order.
func (ws *WriteSet) Add(m Mutation) *WriteSet {
	ws.mutations = append(ws.mutations, m)
	return ws
}

// NotifyTopic records a change topic published only after commit.
func (ws *WriteSet) NotifyTopic(topic string) *WriteSet {
	ws.topics = append(ws.topics, topic)
	return ws
}

// Mutations returns the ordered mutations.
func (ws *WriteSet) Mutations() []Mutation {
	return ws.mutations
}

// Topics returns the post-commit notification topics.
func (ws *WriteSet) Topics() []string {
	return ws.topics
}

// AppendMessage inserts a message into its ticket's log. The store assigns
// ID and CreatedAt, written back into Message on apply.
type AppendMessage struct {
	Message *domain.Message
}

func (m *AppendMessage) Apply(ctx context.Context, tx pgx.Tx) error {
	return tx.QueryRow(ctx, repository.AppendMessageSQL(), repository.AppendMessageArgs(m.Message)...).
		Scan(&m.Message.ID, &m.Message.CreatedAt)
}

// UpdateTicketSummary bumps a ticket's summary fields. last_updated_at uses
// clock_timestamp() so it strictly increases even for commits inside the
// same transaction instant.
type UpdateTicketSummary struct {
	TicketID    string
	Status      domain.TicketStatus
	LastMessage string
	LastSender  domain.SenderRole
}

func (m *UpdateTicketSummary) Apply(ctx context.Context, tx pgx.Tx) error {
	const query = `
        UPDATE tickets SET status=$2, last_message=$3, last_sender=$4, last_updated_at=clock_timestamp()
        WHERE id=$1`
	cmd, err := tx.Exec(ctx, query, m.TicketID, m.Status, m.LastMessage, m.LastSender)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
