package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/events"
	"github.com/spec-kit/conversation-service/internal/repository"
	"github.com/spec-kit/conversation-service/internal/stream"
	"github.com/spec-kit/conversation-service/internal/txn"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// ConversationService governs the ticket state machine and the compound
// send operation. Every mutation goes through the write coordinator so a
// message append and its ticket summary update are visible together or not
// at all.
type ConversationService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	committer  txn.Committer
	notify     txn.Publisher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ConversationDependencies bundles collaborators for the service.
type ConversationDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Committer   txn.Committer
	Notifier    txn.Publisher
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewConversationService constructs the service.
func NewConversationService(deps ConversationDependencies) *ConversationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		committer:  deps.Committer,
		notify:     deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// SendMessage appends a message and bumps the ticket summary in one commit.
// A responder messaging a closed ticket silently reopens it in the same
// transaction; a requester messaging a closed ticket is rejected before any
// write.
func (s *ConversationService) SendMessage(ctx context.Context, actor domain.Actor, ticketID, text string, attachment *domain.Attachment) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return nil, apperrors.NewValidationError("message requires text or an attachment", nil)
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(actor, ticket); err != nil {
		return nil, err
	}

	status := ticket.Status
	reopened := false
	if ticket.IsClosed() {
		if !actor.Role.IsResponder() {
			return nil, apperrors.NewUnauthorized("ticket is closed")
		}
		status = domain.TicketStatusOpen
		reopened = true
	}

	actorID := actor.ID
	msg := &domain.Message{
		TicketID:   ticket.ID,
		Sender:     actor.Role,
		SenderID:   &actorID,
		SenderName: actor.Name,
		Text:       text,
		Attachment: attachment,
	}

	ws := txn.NewWriteSet().
		Add(&txn.AppendMessage{Message: msg}).
		Add(&txn.UpdateTicketSummary{
			TicketID:    ticket.ID,
			Status:      status,
			LastMessage: summaryText(text, attachment),
			LastSender:  actor.Role,
		}).
		NotifyTopic(stream.TopicTickets).
		NotifyTopic(stream.TopicLog(ticket.ID))

	if err := s.committer.Commit(ctx, ws); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessageSent,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.MessageSentPayload{
			MessageID:     msg.ID,
			Sender:        msg.Sender,
			BodyPreview:   stringPreview(msg.Text, 120),
			HasAttachment: msg.Attachment != nil,
			Reopened:      reopened,
		},
	})
	if msg.Attachment != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventAttachmentUploaded,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload: events.AttachmentUploadedPayload{
				StorageKey:  msg.Attachment.StorageKey,
				FileName:    msg.Attachment.FileName,
				ContentType: msg.Attachment.ContentType,
				SizeBytes:   msg.Attachment.SizeBytes,
			},
		})
	}
	return msg, nil
}

// Close transitions an open ticket to closed, appending exactly one system
// message naming the actor.
func (s *ConversationService) Close(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, domain.TicketStatusClosed)
}

// Reopen transitions a closed ticket back to open, appending exactly one
// system message naming the actor.
func (s *ConversationService) Reopen(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, domain.TicketStatusOpen)
}

func (s *ConversationService) transition(ctx context.Context, actor domain.Actor, ticketID string, target domain.TicketStatus) (*domain.Ticket, error) {
	if !actor.Role.IsResponder() {
		return nil, apperrors.NewUnauthorized("only responders may close or reopen tickets")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == target {
		return nil, apperrors.NewValidationError(fmt.Sprintf("ticket already %s", strings.ToLower(string(target))), nil)
	}

	verb := "closed"
	eventType := events.EventTicketClosed
	if target == domain.TicketStatusOpen {
		verb = "reopened"
		eventType = events.EventTicketReopened
	}
	sysText := fmt.Sprintf("Ticket %s by %s (%s).", verb, actor.Name, strings.ToLower(string(actor.Role)))

	sysMsg := &domain.Message{
		TicketID:   ticket.ID,
		Sender:     domain.SenderSystem,
		SenderName: "System",
		Text:       sysText,
	}

	ws := txn.NewWriteSet().
		Add(&txn.AppendMessage{Message: sysMsg}).
		Add(&txn.UpdateTicketSummary{
			TicketID:    ticket.ID,
			Status:      target,
			LastMessage: sysText,
			LastSender:  domain.SenderSystem,
		}).
		NotifyTopic(stream.TopicTickets).
		NotifyTopic(stream.TopicLog(ticket.ID))

	if err := s.committer.Commit(ctx, ws); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	ticket.Status = target
	ticket.LastMessage = sysText
	ticket.LastSender = domain.SenderSystem
	ticket.LastUpdatedAt = sysMsg.CreatedAt

	s.publishEvent(ctx, events.Event{
		Type:     eventType,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.StatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: target,
		},
	})
	return ticket, nil
}

// GetConversation fetches a ticket with its full ordered log, enforcing
// access.
func (s *ConversationService) GetConversation(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, []domain.Message, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkAccess(actor, ticket); err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.NewLogUnavailable(err)
	}
	return ticket, msgs, nil
}

// MarkSeen flags the other party's messages as read. Used by the
// direct-message surface only; applied outside any writeSet because the
// seen flag is transient view state, not conversation history.
func (s *ConversationService) MarkSeen(ctx context.Context, actor domain.Actor, ticketID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.checkAccess(actor, ticket); err != nil {
		return err
	}
	if err := s.messages.MarkSeen(ctx, ticketID, actor.Role); err != nil {
		return apperrors.MapError(err)
	}
	if s.notify != nil {
		if err := s.notify.Publish(ctx, stream.TopicLog(ticketID)); err != nil {
			s.logger.Warn("seen notification failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return nil
}

func (s *ConversationService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *ConversationService) checkAccess(actor domain.Actor, ticket *domain.Ticket) error {
	if actor.Role.IsResponder() {
		return nil
	}
	if actor.Role == domain.SenderRequester && ticket.RequesterID == actor.ID {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func (s *ConversationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func summaryText(text string, attachment *domain.Attachment) string {
	if text != "" {
		return text
	}
	return attachment.FileName
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max - 3
	ellipsis := "..."
	if max <= 3 {
		cut = max
		ellipsis = ""
	}
	// never split a multi-byte rune at the cut point
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + ellipsis
}
