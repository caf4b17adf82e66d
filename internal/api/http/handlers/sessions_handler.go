package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/api/dto"
	"github.com/spec-kit/conversation-service/internal/auth"
	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/session"
	"github.com/spec-kit/conversation-service/internal/upload"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// SessionModeTickets serves the full ticket directory; SessionModeChat
// serves the direct-message box with its tighter upload limit and
// mark-seen-on-open behavior.
const (
	SessionModeTickets = "tickets"
	SessionModeChat    = "chat"
)

type liveSession struct {
	ownerID string
	sess    *session.Session
}

// SessionsHandler owns the live view-model sessions. Each session is a
// server-side event loop streamed to the client over SSE and driven by
// command posts.
type SessionsHandler struct {
	deps         session.Dependencies
	ticketLimits upload.Constraints
	chatLimits   upload.Constraints
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(deps session.Dependencies, ticketLimits, chatLimits upload.Constraints, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		deps:         deps,
		ticketLimits: ticketLimits,
		chatLimits:   chatLimits,
		logger:       logger,
		sessions:     make(map[string]*liveSession),
	}
}

type createSessionRequest struct {
	Mode string `json:"mode"`
}

// Create POST /sessions.
func (h *SessionsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	req := createSessionRequest{Mode: SessionModeTickets}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	opts := session.Options{Actor: principal.Actor()}
	switch req.Mode {
	case SessionModeTickets:
		opts.Upload = h.ticketLimits
	case SessionModeChat:
		opts.Upload = h.chatLimits
		opts.MarkSeenOnSelect = true
	default:
		return apperrors.NewValidationError("unknown session mode", map[string]any{"mode": req.Mode})
	}

	id := uuid.NewString()
	live := &liveSession{
		ownerID: opts.Actor.ID,
		sess:    session.New(opts, h.deps),
	}

	h.mu.Lock()
	h.sessions[id] = live
	h.mu.Unlock()

	h.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("mode", req.Mode),
		zap.String("actor_id", opts.Actor.ID))

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"session_id": id, "mode": req.Mode}})
}

// Stream GET /sessions/:id/stream — SSE feed of view snapshots, latest wins.
// The stream ends when the session is destroyed.
func (h *SessionsHandler) Stream(c *fiber.Ctx) error {
	live, err := h.lookup(c)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := h.logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		for state := range live.sess.States() {
			payload, err := json.Marshal(dto.FromViewState(state))
			if err != nil {
				logger.Error("encode session state", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// client went away; the session itself stays alive until
				// deleted so the client can reattach
				return
			}
		}
	})
	return nil
}

// Command POST /sessions/:id/commands.
func (h *SessionsHandler) Command(c *fiber.Ctx) error {
	live, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req dto.CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	switch req.Type {
	case "select_group":
		live.sess.SelectGroup(req.GroupKey)
	case "select_ticket":
		live.sess.SelectTicket(req.TicketID)
	case "set_status_filter":
		status := domain.TicketStatus(req.Status)
		if status != "" && status != domain.TicketStatusOpen && status != domain.TicketStatusClosed {
			return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
		}
		live.sess.SetStatusFilter(status)
	case "set_draft_text":
		live.sess.SetDraftText(req.Text)
	case "clear_attachment":
		live.sess.ClearAttachment()
	case "send":
		live.sess.Send()
	case "close":
		live.sess.Close()
	case "reopen":
		live.sess.Reopen()
	default:
		return apperrors.NewValidationError("unknown command", map[string]any{"type": req.Type})
	}

	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"accepted": req.Type}})
}

// Attach POST /sessions/:id/attachment — stages one multipart file on the
// composer. The bytes are held in the session until send commits or the
// attachment is cleared.
func (h *SessionsHandler) Attach(c *fiber.Ctx) error {
	live, err := h.lookup(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("missing file part", nil)
	}

	src, err := header.Open()
	if err != nil {
		return apperrors.NewUploadFailed(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return apperrors.NewUploadFailed(err)
	}

	contentType := header.Header.Get("Content-Type")
	live.sess.AttachFile(header.Filename, contentType, data)

	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"file_name":  header.Filename,
		"size_bytes": len(data),
	}})
}

// Destroy DELETE /sessions/:id — stops the event loop and every
// subscription it holds.
func (h *SessionsHandler) Destroy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	id := c.Params("id")
	h.mu.Lock()
	live, ok := h.sessions[id]
	if ok && live.ownerID == principal.Actor().ID {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		return apperrors.NewNotFound("session", nil)
	}
	if live.ownerID != principal.Actor().ID {
		return apperrors.NewForbidden("session belongs to another actor")
	}

	live.sess.Stop()
	h.logger.Info("session destroyed", zap.String("session_id", id))
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": id}})
}

// StopAll tears down every live session, used on server shutdown.
func (h *SessionsHandler) StopAll() {
	h.mu.Lock()
	live := make([]*liveSession, 0, len(h.sessions))
	for id, s := range h.sessions {
		live = append(live, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	for _, s := range live {
		s.sess.Stop()
	}
}

func (h *SessionsHandler) lookup(c *fiber.Ctx) (*liveSession, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	h.mu.Lock()
	live, ok := h.sessions[c.Params("id")]
	h.mu.Unlock()

	if !ok {
		return nil, apperrors.NewNotFound("session", nil)
	}
	if live.ownerID != principal.Actor().ID {
		return nil, apperrors.NewForbidden("session belongs to another actor")
	}
	return live, nil
}
