package handlers

import (
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-service/internal/api/dto"
	"github.com/spec-kit/conversation-service/internal/auth"
	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/repository"
	"github.com/spec-kit/conversation-service/internal/service"
	"github.com/spec-kit/conversation-service/internal/stream"
	"github.com/spec-kit/conversation-service/internal/upload"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// ConversationsHandler serves the stateless REST surface over tickets and
// their logs. The live surface is served by SessionsHandler.
type ConversationsHandler struct {
	tickets       repository.TicketRepository
	units         repository.UnitRepository
	conversations *service.ConversationService
	uploader      *upload.Uploader
	constraints   upload.Constraints
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(
	tickets repository.TicketRepository,
	units repository.UnitRepository,
	conversations *service.ConversationService,
	uploader *upload.Uploader,
	constraints upload.Constraints,
) *ConversationsHandler {
	return &ConversationsHandler{
		tickets:       tickets,
		units:         units,
		conversations: conversations,
		uploader:      uploader,
		constraints:   constraints,
	}
}

// ListUnits GET /units.
func (h *ConversationsHandler) ListUnits(c *fiber.Ctx) error {
	units, err := h.units.ListActive(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.UnitResponse, 0, len(units))
	for _, u := range units {
		items = append(items, dto.UnitResponse{ID: u.ID, Name: u.Name, Kind: string(u.Kind)})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListTickets GET /tickets — the full directory, grouped by unit, newest
// activity first within each group. Status filtering is applied here over
// the snapshot, the store stays status-agnostic.
func (h *ConversationsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	tickets, err := h.tickets.ListOrdered(c.UserContext())
	if err != nil {
		return apperrors.NewDirectoryUnavailable(err)
	}

	statusFilter := domain.TicketStatus(c.Query("status"))
	actor := principal.Actor()

	snapshot := stream.DirectorySnapshot{Groups: make(map[string][]domain.Ticket)}
	for i := range tickets {
		t := tickets[i]
		if actor.Role == domain.SenderRequester && t.RequesterID != actor.ID {
			continue
		}
		snapshot.Groups[t.UnitID] = append(snapshot.Groups[t.UnitID], t)
	}

	keys := make([]string, 0, len(snapshot.Groups))
	for key := range snapshot.Groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([]dto.TicketGroup, 0, len(keys))
	for _, key := range keys {
		filtered := snapshot.FilterStatus(key, statusFilter)
		if len(filtered) == 0 {
			continue
		}
		summaries := make([]dto.TicketSummary, 0, len(filtered))
		for i := range filtered {
			summaries = append(summaries, dto.FromTicket(&filtered[i]))
		}
		groups = append(groups, dto.TicketGroup{GroupKey: key, Tickets: summaries})
	}
	return c.JSON(fiber.Map{"data": groups})
}

// GetConversation GET /tickets/:id.
func (h *ConversationsHandler) GetConversation(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	ticket, msgs, err := h.conversations.GetConversation(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}

	messages := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		messages = append(messages, dto.FromMessage(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": dto.ConversationResponse{
		Ticket:   dto.FromTicket(ticket),
		Messages: messages,
	}})
}

// SendMessage POST /tickets/:id/messages. Accepts JSON for plain text or
// multipart with an optional "file" part; the file is uploaded first and
// message plus ticket summary commit as one writeSet.
func (h *ConversationsHandler) SendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	actor := principal.Actor()
	ticketID := c.Params("id")

	var text string
	var attachment *domain.Attachment

	if form, err := c.MultipartForm(); err == nil && form != nil {
		if vals := form.Value["text"]; len(vals) > 0 {
			text = vals[0]
		}
		if files := form.File["file"]; len(files) > 0 {
			header := files[0]
			src, err := header.Open()
			if err != nil {
				return apperrors.NewUploadFailed(err)
			}
			defer src.Close()

			att, err := h.uploader.Upload(c.UserContext(), ticketID, upload.File{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Reader:      src,
			}, h.constraints, nil)
			if err != nil {
				return err
			}
			attachment = att
		}
	} else {
		var req dto.SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		text = req.Text
	}

	msg, err := h.conversations.SendMessage(c.UserContext(), actor, ticketID, text, attachment)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromMessage(msg)})
}

// CloseTicket POST /tickets/:id/close.
func (h *ConversationsHandler) CloseTicket(c *fiber.Ctx) error {
	return h.transition(c, domain.TicketStatusClosed)
}

// ReopenTicket POST /tickets/:id/reopen.
func (h *ConversationsHandler) ReopenTicket(c *fiber.Ctx) error {
	return h.transition(c, domain.TicketStatusOpen)
}

func (h *ConversationsHandler) transition(c *fiber.Ctx, target domain.TicketStatus) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var ticket *domain.Ticket
	var err error
	if target == domain.TicketStatusClosed {
		ticket, err = h.conversations.Close(c.UserContext(), principal.Actor(), c.Params("id"))
	} else {
		ticket, err = h.conversations.Reopen(c.UserContext(), principal.Actor(), c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}
