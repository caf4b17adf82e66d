package events

import (
	"time"

	"github.com/spec-kit/conversation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMessageSent        EventType = "message_sent"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketReopened     EventType = "ticket_reopened"
	EventAttachmentUploaded EventType = "attachment_uploaded"
)

// Event represents a domain event emitted after a committed write.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	MessageID     string            `json:"message_id"`
	Sender        domain.SenderRole `json:"sender"`
	BodyPreview   string            `json:"body_preview"`
	HasAttachment bool              `json:"has_attachment"`
	Reopened      bool              `json:"reopened,omitempty"`
}

// StatusChangedPayload payload for close/reopen events.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// AttachmentUploadedPayload payload.
type AttachmentUploadedPayload struct {
	StorageKey  string `json:"storage_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}
