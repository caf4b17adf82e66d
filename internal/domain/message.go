package domain

import "time"

// Message is one entry in a ticket's ordered log. Messages are immutable once
// appended; the store assigns ID and CreatedAt. Seen is transient state used
// only by the direct-message variant.
type Message struct {
	ID         string
	TicketID   string
	Sender     SenderRole
	SenderID   *string
	SenderName string
	Text       string
	Attachment *Attachment
	Seen       bool
	CreatedAt  time.Time
}

// Empty reports whether the message carries neither text nor attachment. Such
// messages are invalid and must be rejected at append time.
func (m *Message) Empty() bool {
	return m.Text == "" && m.Attachment == nil
}

// IsSystem reports whether the message was appended by a status transition.
func (m *Message) IsSystem() bool {
	return m.Sender == SenderSystem
}
