package dto

import (
	"time"

	"github.com/spec-kit/conversation-service/internal/domain"
)

// LoginRequest carries credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries an issued token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Role      string    `json:"role"`
}

// TicketSummary is one directory entry.
type TicketSummary struct {
	ID            string    `json:"id"`
	UnitID        string    `json:"unit_id"`
	Subject       string    `json:"subject"`
	RequesterName string    `json:"requester_name"`
	Status        string    `json:"status"`
	LastMessage   string    `json:"last_message"`
	LastSender    string    `json:"last_sender"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// TicketGroup buckets summaries under one grouping key.
type TicketGroup struct {
	GroupKey string          `json:"group_key"`
	Tickets  []TicketSummary `json:"tickets"`
}

// AttachmentResponse is the viewer contract: url, name, type.
type AttachmentResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"`
	SizeBytes   int64  `json:"size_bytes"`
}

// MessageResponse is one log entry.
type MessageResponse struct {
	ID         string              `json:"id"`
	Sender     string              `json:"sender"`
	SenderName string              `json:"sender_name"`
	Text       string              `json:"text"`
	Attachment *AttachmentResponse `json:"attachment,omitempty"`
	Seen       bool                `json:"seen"`
	Timestamp  time.Time           `json:"timestamp"`
}

// ConversationResponse is one open conversation.
type ConversationResponse struct {
	Ticket   TicketSummary     `json:"ticket"`
	Messages []MessageResponse `json:"messages"`
}

// UnitResponse is one organizational unit.
type UnitResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// SendMessageRequest posts a message; attachments ride as multipart files on
// the session endpoints, or pre-uploaded references here.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// CommandRequest drives a live session.
type CommandRequest struct {
	Type     string `json:"type"`
	GroupKey string `json:"group_key,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Text     string `json:"text,omitempty"`
}

// FromTicket maps a domain ticket.
func FromTicket(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:            t.ID,
		UnitID:        t.UnitID,
		Subject:       t.Subject,
		RequesterName: t.RequesterName,
		Status:        string(t.Status),
		LastMessage:   t.LastMessage,
		LastSender:    string(t.LastSender),
		LastUpdatedAt: t.LastUpdatedAt,
	}
}

// FromMessage maps a domain message.
func FromMessage(m *domain.Message) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID,
		Sender:     string(m.Sender),
		SenderName: m.SenderName,
		Text:       m.Text,
		Seen:       m.Seen,
		Timestamp:  m.CreatedAt,
	}
	if m.Attachment != nil {
		resp.Attachment = &AttachmentResponse{
			URL:         m.Attachment.URL,
			FileName:    m.Attachment.FileName,
			ContentType: m.Attachment.ContentType,
			Kind:        string(m.Attachment.Kind()),
			SizeBytes:   m.Attachment.SizeBytes,
		}
	}
	return resp
}
