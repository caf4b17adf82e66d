package session

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/observability"
	"github.com/spec-kit/conversation-service/internal/stream"
	"github.com/spec-kit/conversation-service/internal/upload"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// DirectorySource is the live ticket directory the session subscribes to.
type DirectorySource interface {
	Subscribe(ctx context.Context, groupBy stream.GroupKeyFunc) (<-chan stream.DirectorySnapshot, <-chan error)
}

// LogSource is the live message log for one selected ticket.
type LogSource interface {
	Subscribe(ctx context.Context, ticketID string) (<-chan []domain.Message, <-chan error)
}

// ConversationOps are the transactional commands the session dispatches.
type ConversationOps interface {
	SendMessage(ctx context.Context, actor domain.Actor, ticketID, text string, attachment *domain.Attachment) (*domain.Message, error)
	Close(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error)
	Reopen(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error)
	MarkSeen(ctx context.Context, actor domain.Actor, ticketID string) error
}

// AttachmentUploader transfers one staged file to blob storage.
type AttachmentUploader interface {
	Upload(ctx context.Context, ticketID string, file upload.File, constraints upload.Constraints, progress upload.ProgressFunc) (*domain.Attachment, error)
}

// Options parameterize one conversation session. The same engine serves the
// admin view, the teacher/associate view and the faculty direct-message box;
// only the actor, grouping and upload limits differ.
type Options struct {
	Actor            domain.Actor
	GroupBy          stream.GroupKeyFunc
	Upload           upload.Constraints
	MarkSeenOnSelect bool
}

// Dependencies bundles collaborators for a session.
type Dependencies struct {
	Directory     DirectorySource
	Logs          LogSource
	Conversations ConversationOps
	Uploader      AttachmentUploader
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// ViewState is the immutable snapshot the presentation layer renders. A new
// snapshot is pushed after every state change; consumers always replace
// their copy.
type ViewState struct {
	Groups         map[string][]domain.Ticket
	SelectedGroup  string
	SelectedTicket *domain.Ticket
	Messages       []domain.Message
	StatusFilter   domain.TicketStatus
	DraftText      string
	StagedFileName string
	UploadProgress float64
	Sending        bool
	Notice         string
	DirectoryDown  bool
	LogDown        bool
}

type stagedFile struct {
	name        string
	contentType string
	data        []byte
}

// Session merges the live directory and log subscriptions with local
// optimistic state. All state is owned by a single run goroutine; commands
// and async results are delivered to it as messages, so no locking is
// needed and interleaved subscription pushes each land on their own slice
// of state.
type Session struct {
	opts Options
	deps Dependencies

	cmds   chan func(ctx context.Context)
	inbox  chan any
	states chan ViewState
	cancel context.CancelFunc
	done   chan struct{}

	// run-loop owned state
	view              ViewState
	raw               stream.DirectorySnapshot
	staged            *stagedFile
	seq               int
	transitionPending bool
	logCancel         context.CancelFunc
	logCh             <-chan []domain.Message
	logErrCh          <-chan error
	sendCancel        context.CancelFunc
}

// internal messages posted back into the run loop
type progressMsg struct {
	seq      int
	fraction float64
}

type sendDoneMsg struct {
	seq       int
	draftText string
	err       error
}

type transitionDoneMsg struct {
	seq        int
	ticketID   string
	prevStatus domain.TicketStatus
	err        error
}

// New starts a session for the given actor. Call Stop to tear down every
// subscription and in-flight operation.
func New(opts Options, deps Dependencies) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.GroupBy == nil {
		opts.GroupBy = stream.GroupByUnit
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:   opts,
		deps:   deps,
		cmds:   make(chan func(ctx context.Context), 16),
		inbox:  make(chan any, 16),
		states: make(chan ViewState, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// States delivers view snapshots, latest-wins.
func (s *Session) States() <-chan ViewState {
	return s.states
}

// Stop tears down the session and all of its subscriptions.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// SelectGroup switches the active grouping key.
func (s *Session) SelectGroup(key string) {
	s.dispatch("select_group", func(ctx context.Context) {
		s.view.SelectedGroup = key
		s.publish()
	})
}

// SelectTicket opens a conversation, resetting all ephemeral state and
// replacing the log subscription.
func (s *Session) SelectTicket(ticketID string) {
	s.dispatch("select_ticket", func(ctx context.Context) {
		s.selectTicket(ctx, ticketID)
	})
}

// SetStatusFilter applies the open/closed filter over the latest snapshot.
// Purely local, so it reacts instantly to optimistic transitions.
func (s *Session) SetStatusFilter(status domain.TicketStatus) {
	s.dispatch("set_status_filter", func(ctx context.Context) {
		s.view.StatusFilter = status
		s.applyDirectory()
		s.publish()
	})
}

// SetDraftText updates the outgoing draft.
func (s *Session) SetDraftText(text string) {
	s.dispatch("set_draft_text", func(ctx context.Context) {
		s.view.DraftText = text
		s.publish()
	})
}

// AttachFile stages a single outgoing attachment, replacing any previous one.
func (s *Session) AttachFile(name, contentType string, data []byte) {
	s.dispatch("attach_file", func(ctx context.Context) {
		if s.view.Sending {
			return
		}
		s.staged = &stagedFile{name: name, contentType: contentType, data: data}
		s.view.StagedFileName = name
		s.view.UploadProgress = 0
		s.publish()
	})
}

// ClearAttachment abandons the staged attachment.
func (s *Session) ClearAttachment() {
	s.dispatch("clear_attachment", func(ctx context.Context) {
		if s.view.Sending {
			return
		}
		s.staged = nil
		s.view.StagedFileName = ""
		s.view.UploadProgress = 0
		s.publish()
	})
}

// Send uploads the staged attachment (if any) and commits the message
// together with the ticket summary update.
func (s *Session) Send() {
	s.dispatch("send", func(ctx context.Context) {
		s.send(ctx)
	})
}

// Close transitions the selected ticket to closed.
func (s *Session) Close() {
	s.dispatch("close", func(ctx context.Context) {
		s.transition(ctx, domain.TicketStatusClosed)
	})
}

// Reopen transitions the selected ticket back to open.
func (s *Session) Reopen() {
	s.dispatch("reopen", func(ctx context.Context) {
		s.transition(ctx, domain.TicketStatusOpen)
	})
}

func (s *Session) dispatch(name string, fn func(ctx context.Context)) {
	s.deps.Metrics.RecordCommand(name)
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.states)
	defer func() {
		if s.logCancel != nil {
			s.logCancel()
		}
		if s.sendCancel != nil {
			s.sendCancel()
		}
	}()

	dirCh, dirErrCh := s.deps.Directory.Subscribe(ctx, s.opts.GroupBy)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.cmds:
			fn(ctx)
		case snapshot, ok := <-dirCh:
			if !ok {
				dirCh = nil
				continue
			}
			s.raw = snapshot
			s.view.DirectoryDown = false
			s.applyDirectory()
			s.refreshSelected()
			s.publish()
		case err, ok := <-dirErrCh:
			if !ok {
				dirErrCh = nil
				continue
			}
			// Last-known snapshot stays rendered; the caller re-subscribes
			// by starting a fresh session.
			s.view.DirectoryDown = true
			s.view.Notice = apperrors.ToDomainError(err).Message
			s.publish()
		case msgs, ok := <-s.logCh:
			if !ok {
				s.logCh = nil
				continue
			}
			s.view.LogDown = false
			s.view.Messages = msgs
			s.publish()
		case err, ok := <-s.logErrCh:
			if !ok {
				s.logErrCh = nil
				continue
			}
			s.view.LogDown = true
			s.view.Notice = apperrors.ToDomainError(err).Message
			s.publish()
		case m := <-s.inbox:
			s.handleResult(m)
		}
	}
}

func (s *Session) selectTicket(ctx context.Context, ticketID string) {
	s.resetEphemeral()

	if s.logCancel != nil {
		s.logCancel()
		s.logCancel = nil
		s.logCh = nil
		s.logErrCh = nil
	}

	ticket := s.findTicket(ticketID)
	s.view.SelectedTicket = ticket
	s.view.Messages = nil
	s.view.LogDown = false
	if ticket == nil {
		s.publish()
		return
	}

	logCtx, cancel := context.WithCancel(ctx)
	s.logCancel = cancel
	s.logCh, s.logErrCh = s.deps.Logs.Subscribe(logCtx, ticketID)

	if s.opts.MarkSeenOnSelect {
		actor := s.opts.Actor
		go func() {
			if err := s.deps.Conversations.MarkSeen(logCtx, actor, ticketID); err != nil {
				s.deps.Logger.Warn("mark seen failed", zap.String("ticket_id", ticketID), zap.Error(err))
			}
		}()
	}
	s.publish()
}

func (s *Session) send(ctx context.Context) {
	if s.view.Sending || s.view.SelectedTicket == nil {
		return
	}
	text := strings.TrimSpace(s.view.DraftText)
	staged := s.staged
	if text == "" && staged == nil {
		// blank send is a no-op, not an error
		return
	}
	if s.view.SelectedTicket.IsClosed() && !s.opts.Actor.Role.IsResponder() {
		// Rejected locally before any write; the composer is replaced by
		// the closed-ticket notice.
		s.view.Notice = "ticket is closed"
		s.publish()
		return
	}

	s.seq++
	seq := s.seq
	ticketID := s.view.SelectedTicket.ID
	actor := s.opts.Actor
	constraints := s.opts.Upload

	s.view.Sending = true
	s.view.DraftText = ""
	s.view.Notice = ""
	s.publish()

	sendCtx, cancel := context.WithCancel(ctx)
	s.sendCancel = cancel

	go func() {
		var attachment *domain.Attachment
		if staged != nil {
			file := upload.File{
				Name:        staged.name,
				ContentType: staged.contentType,
				Size:        int64(len(staged.data)),
				Reader:      bytes.NewReader(staged.data),
			}
			att, err := s.deps.Uploader.Upload(sendCtx, ticketID, file, constraints, func(fraction float64) {
				s.post(progressMsg{seq: seq, fraction: fraction})
			})
			if err != nil {
				s.post(sendDoneMsg{seq: seq, draftText: text, err: err})
				return
			}
			attachment = att
		}
		_, err := s.deps.Conversations.SendMessage(sendCtx, actor, ticketID, text, attachment)
		s.post(sendDoneMsg{seq: seq, draftText: text, err: err})
	}()
}

func (s *Session) transition(ctx context.Context, target domain.TicketStatus) {
	if s.view.SelectedTicket == nil || s.transitionPending {
		return
	}
	if !s.opts.Actor.Role.IsResponder() {
		// rejected locally before any write attempt
		s.view.Notice = "only responders may close or reopen tickets"
		s.publish()
		return
	}
	if s.view.SelectedTicket.Status == target {
		return
	}

	s.seq++
	seq := s.seq
	ticketID := s.view.SelectedTicket.ID
	prev := s.view.SelectedTicket.Status
	actor := s.opts.Actor

	// Optimistic patch keeps the action button responsive; rolled back if
	// the transaction fails.
	s.view.SelectedTicket.Status = target
	s.transitionPending = true
	s.applyDirectory()
	s.publish()

	go func() {
		var err error
		if target == domain.TicketStatusClosed {
			_, err = s.deps.Conversations.Close(ctx, actor, ticketID)
		} else {
			_, err = s.deps.Conversations.Reopen(ctx, actor, ticketID)
		}
		s.post(transitionDoneMsg{seq: seq, ticketID: ticketID, prevStatus: prev, err: err})
	}()
}

func (s *Session) handleResult(m any) {
	switch msg := m.(type) {
	case progressMsg:
		if msg.seq != s.seq || !s.view.Sending {
			return
		}
		if msg.fraction > s.view.UploadProgress {
			s.view.UploadProgress = msg.fraction
			s.publish()
		}
	case sendDoneMsg:
		if msg.seq != s.seq {
			return
		}
		if s.sendCancel != nil {
			s.sendCancel()
			s.sendCancel = nil
		}
		s.view.Sending = false
		s.view.UploadProgress = 0
		s.staged = nil
		s.view.StagedFileName = ""
		if msg.err != nil {
			// Typed text is restored so the user does not lose input; the
			// staged attachment is deliberately not restored and must be
			// re-picked.
			// TODO: product sign-off on the draft/attachment restore asymmetry.
			s.view.DraftText = msg.draftText
			s.view.Notice = apperrors.ToDomainError(msg.err).Message
		}
		// On success the authoritative message arrives via the log
		// subscription; no optimistic insert, avoiding duplicate entries.
		s.publish()
	case transitionDoneMsg:
		if msg.seq != s.seq {
			return
		}
		s.transitionPending = false
		if msg.err != nil {
			if s.view.SelectedTicket != nil && s.view.SelectedTicket.ID == msg.ticketID {
				s.view.SelectedTicket.Status = msg.prevStatus
			}
			s.view.Notice = apperrors.ToDomainError(msg.err).Message
			s.applyDirectory()
		}
		s.publish()
	}
}

func (s *Session) post(m any) {
	select {
	case s.inbox <- m:
	case <-s.done:
	}
}

func (s *Session) resetEphemeral() {
	s.seq++ // invalidates in-flight send/transition results
	if s.sendCancel != nil {
		s.sendCancel()
		s.sendCancel = nil
	}
	s.staged = nil
	s.transitionPending = false
	s.view.DraftText = ""
	s.view.StagedFileName = ""
	s.view.UploadProgress = 0
	s.view.Sending = false
	s.view.Notice = ""
}

// applyDirectory recomputes the rendered groups from the raw snapshot and
// the local status filter, overlaying the optimistic status of the selected
// ticket while a transition is pending.
func (s *Session) applyDirectory() {
	overlaid := stream.DirectorySnapshot{Groups: make(map[string][]domain.Ticket, len(s.raw.Groups))}
	for key := range s.raw.Groups {
		tickets := s.raw.Groups[key]
		out := make([]domain.Ticket, 0, len(tickets))
		for _, t := range tickets {
			if s.transitionPending && s.view.SelectedTicket != nil && t.ID == s.view.SelectedTicket.ID {
				t.Status = s.view.SelectedTicket.Status
			}
			out = append(out, t)
		}
		overlaid.Groups[key] = out
	}

	groups := make(map[string][]domain.Ticket, len(overlaid.Groups))
	for key := range overlaid.Groups {
		groups[key] = overlaid.FilterStatus(key, s.view.StatusFilter)
	}
	s.view.Groups = groups
}

// refreshSelected reconciles the selected ticket with the server-confirmed
// snapshot.
func (s *Session) refreshSelected() {
	if s.view.SelectedTicket == nil {
		return
	}
	confirmed := s.findTicket(s.view.SelectedTicket.ID)
	if confirmed == nil {
		return
	}
	if s.transitionPending {
		confirmed.Status = s.view.SelectedTicket.Status
	}
	s.view.SelectedTicket = confirmed
}

func (s *Session) findTicket(ticketID string) *domain.Ticket {
	for _, tickets := range s.raw.Groups {
		for i := range tickets {
			if tickets[i].ID == ticketID {
				t := tickets[i]
				return &t
			}
		}
	}
	return nil
}

// publish pushes an immutable copy of the view, dropping any stale
// undelivered snapshot first (latest wins).
func (s *Session) publish() {
	state := s.view
	if s.view.SelectedTicket != nil {
		t := *s.view.SelectedTicket
		state.SelectedTicket = &t
	}
	state.Messages = append([]domain.Message(nil), s.view.Messages...)
	state.Groups = make(map[string][]domain.Ticket, len(s.view.Groups))
	for key, tickets := range s.view.Groups {
		state.Groups[key] = append([]domain.Ticket(nil), tickets...)
	}

	select {
	case <-s.states:
	default:
	}
	select {
	case s.states <- state:
	default:
	}
}
