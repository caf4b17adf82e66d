package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/events"
	"github.com/spec-kit/conversation-service/internal/stream"
	"github.com/spec-kit/conversation-service/internal/txn"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// fakeStore backs the repositories and the committer with one in-memory
// state so commit atomicity is observable from tests.
type fakeStore struct {
	tickets  map[string]*domain.Ticket
	messages map[string][]domain.Message
	nextID   int

	failCommit bool
	published  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets:  make(map[string]*domain.Ticket),
		messages: make(map[string][]domain.Message),
	}
}

func (f *fakeStore) addTicket(t *domain.Ticket) {
	if t.Status == "" {
		t.Status = domain.TicketStatusOpen
	}
	f.tickets[t.ID] = t
}

// TicketRepository

func (f *fakeStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	f.nextID++
	ticket.ID = fmt.Sprintf("t-%d", f.nextID)
	ticket.CreatedAt = time.Now()
	ticket.LastUpdatedAt = ticket.CreatedAt
	f.addTicket(ticket)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) ListOrdered(ctx context.Context) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		out = append(out, *t)
	}
	return out, nil
}

// MessageRepository

func (f *fakeStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	f.nextID++
	msg.ID = fmt.Sprintf("m-%d", f.nextID)
	msg.CreatedAt = time.Now()
	f.messages[msg.TicketID] = append(f.messages[msg.TicketID], *msg)
	return nil
}

func (f *fakeStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	return append([]domain.Message(nil), f.messages[ticketID]...), nil
}

func (f *fakeStore) MarkSeen(ctx context.Context, ticketID string, reader domain.SenderRole) error {
	for i := range f.messages[ticketID] {
		if f.messages[ticketID][i].Sender != reader {
			f.messages[ticketID][i].Seen = true
		}
	}
	return nil
}

// messageRepoAdapter exposes CreateMessage under the repository method name
// without colliding with the ticket Create method on fakeStore.
type messageRepoAdapter struct{ *fakeStore }

func (a messageRepoAdapter) Create(ctx context.Context, msg *domain.Message) error {
	return a.CreateMessage(ctx, msg)
}

// Committer: applies the writeSet against the in-memory state, all or
// nothing, publishing topics only on success.
func (f *fakeStore) Commit(ctx context.Context, ws *txn.WriteSet) error {
	if f.failCommit {
		return apperrors.NewCommitFailed(fmt.Errorf("simulated failure"))
	}

	// stage on copies first
	type summaryPatch struct {
		ticketID string
		apply    func(t *domain.Ticket)
	}
	var appended []*domain.Message
	var patches []summaryPatch

	for _, m := range ws.Mutations() {
		switch mut := m.(type) {
		case *txn.AppendMessage:
			appended = append(appended, mut.Message)
		case *txn.UpdateTicketSummary:
			if _, ok := f.tickets[mut.TicketID]; !ok {
				return apperrors.NewCommitFailed(pgx.ErrNoRows)
			}
			patches = append(patches, summaryPatch{ticketID: mut.TicketID, apply: func(t *domain.Ticket) {
				t.Status = mut.Status
				t.LastMessage = mut.LastMessage
				t.LastSender = mut.LastSender
				t.LastUpdatedAt = time.Now()
			}})
		default:
			return apperrors.NewCommitFailed(fmt.Errorf("unknown mutation %T", m))
		}
	}

	for _, msg := range appended {
		_ = f.CreateMessage(ctx, msg)
	}
	for _, p := range patches {
		p.apply(f.tickets[p.ticketID])
	}
	f.published = append(f.published, ws.Topics()...)
	return nil
}

// Publisher

func (f *fakeStore) Publish(ctx context.Context, topic string) error {
	f.published = append(f.published, topic)
	return nil
}

func newTestService(store *fakeStore) (*ConversationService, events.Dispatcher) {
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewConversationService(ConversationDependencies{
		TicketRepo:  store,
		MessageRepo: messageRepoAdapter{store},
		Committer:   store,
		Notifier:    store,
		Dispatcher:  dispatcher,
	})
	return svc, dispatcher
}

var (
	requester = domain.Actor{ID: "r-1", Name: "Dana Requester", Role: domain.SenderRequester}
	admin     = domain.Actor{ID: "a-1", Name: "Rose Admin", Role: domain.SenderAdmin}
)

func openTicket(store *fakeStore) *domain.Ticket {
	t := &domain.Ticket{
		ID:          "t-open",
		UnitID:      "unit-cs",
		Subject:     "enrollment issue",
		RequesterID: requester.ID,
		Status:      domain.TicketStatusOpen,
	}
	store.addTicket(t)
	return t
}

func TestSendMessageCommitsMessageAndSummaryTogether(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	msg, err := svc.SendMessage(context.Background(), requester, ticket.ID, "  hello there  ", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello there", msg.Text)

	stored := store.tickets[ticket.ID]
	assert.Equal(t, "hello there", stored.LastMessage)
	assert.Equal(t, domain.SenderRequester, stored.LastSender)
	assert.Len(t, store.messages[ticket.ID], 1)

	assert.Contains(t, store.published, stream.TopicTickets)
	assert.Contains(t, store.published, stream.TopicLog(ticket.ID))
}

func TestSendMessageAttachmentOnlyUsesFileNameAsSummary(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	att := &domain.Attachment{URL: "https://cdn/x.pdf", FileName: "transcript.pdf", ContentType: "application/pdf"}
	msg, err := svc.SendMessage(context.Background(), requester, ticket.ID, "", att)
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "transcript.pdf", store.tickets[ticket.ID].LastMessage)
}

func TestSendMessageWithAttachmentEmitsUploadEvent(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, dispatcher := newTestService(store)

	var payloads []events.AttachmentUploadedPayload
	dispatcher.Subscribe(events.EventAttachmentUploaded, func(ctx context.Context, e events.Event) error {
		payloads = append(payloads, e.Payload.(events.AttachmentUploadedPayload))
		return nil
	})

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "text only", nil)
	require.NoError(t, err)
	assert.Empty(t, payloads, "text-only sends carry no upload event")

	att := &domain.Attachment{
		URL:         "https://cdn/x.pdf",
		StorageKey:  "attachments/t-open/x.pdf",
		FileName:    "transcript.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
	}
	_, err = svc.SendMessage(context.Background(), requester, ticket.ID, "see attached", att)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "attachments/t-open/x.pdf", payloads[0].StorageKey)
	assert.Equal(t, "transcript.pdf", payloads[0].FileName)
	assert.Equal(t, "application/pdf", payloads[0].ContentType)
	assert.Equal(t, int64(2048), payloads[0].SizeBytes)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "   ", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Empty(t, store.messages[ticket.ID])
}

func TestSendMessageRequesterOnClosedTicketRejected(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	ticket.Status = domain.TicketStatusClosed
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "please", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	assert.Empty(t, store.messages[ticket.ID], "rejection must happen before any write")
	assert.Equal(t, domain.TicketStatusClosed, store.tickets[ticket.ID].Status)
}

func TestSendMessageResponderOnClosedTicketReopens(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	ticket.Status = domain.TicketStatusClosed
	svc, dispatcher := newTestService(store)

	var reopened bool
	dispatcher.Subscribe(events.EventMessageSent, func(ctx context.Context, e events.Event) error {
		reopened = e.Payload.(events.MessageSentPayload).Reopened
		return nil
	})

	_, err := svc.SendMessage(context.Background(), admin, ticket.ID, "following up", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, store.tickets[ticket.ID].Status, "responder send implies reopen in the same commit")
	assert.True(t, reopened)
}

func TestSendMessageForeignRequesterForbidden(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	other := domain.Actor{ID: "r-2", Name: "Sam Other", Role: domain.SenderRequester}
	_, err := svc.SendMessage(context.Background(), other, ticket.ID, "hi", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestSendMessageUnknownTicket(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), admin, "missing", "hi", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSendMessageCommitFailureLeavesNoPartialState(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	store.failCommit = true
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "hello", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCommitFailed))
	assert.Empty(t, store.messages[ticket.ID])
	assert.Empty(t, store.tickets[ticket.ID].LastMessage)
	assert.Empty(t, store.published, "topics must not be published for a failed commit")
}

func TestCloseAppendsSystemMessage(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	updated, err := svc.Close(context.Background(), admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, updated.Status)
	assert.Equal(t, domain.TicketStatusClosed, store.tickets[ticket.ID].Status)

	log := store.messages[ticket.ID]
	require.Len(t, log, 1)
	assert.Equal(t, domain.SenderSystem, log[0].Sender)
	assert.Equal(t, "Ticket closed by Rose Admin (admin).", log[0].Text)
	assert.Equal(t, domain.SenderSystem, store.tickets[ticket.ID].LastSender)
}

func TestReopenAppendsSystemMessage(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	ticket.Status = domain.TicketStatusClosed
	svc, _ := newTestService(store)

	teacher := domain.Actor{ID: "a-2", Name: "Lee Teacher", Role: domain.SenderTeacher}
	updated, err := svc.Reopen(context.Background(), teacher, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)

	log := store.messages[ticket.ID]
	require.Len(t, log, 1)
	assert.Equal(t, "Ticket reopened by Lee Teacher (teacher).", log[0].Text)
}

func TestTransitionRequesterUnauthorized(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	_, err := svc.Close(context.Background(), requester, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	assert.Empty(t, store.messages[ticket.ID])
}

func TestTransitionAlreadyInState(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	_, err := svc.Reopen(context.Background(), admin, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Empty(t, store.messages[ticket.ID], "no system message for a no-op transition")
}

func TestTransitionCommitFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	store.failCommit = true
	svc, _ := newTestService(store)

	_, err := svc.Close(context.Background(), admin, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, domain.TicketStatusOpen, store.tickets[ticket.ID].Status)
	assert.Empty(t, store.messages[ticket.ID])
}

func TestGetConversationReturnsOrderedLog(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "first", nil)
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), admin, ticket.ID, "second", nil)
	require.NoError(t, err)

	got, msgs, err := svc.GetConversation(context.Background(), requester, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestMarkSeenFlagsOtherPartyAndNotifies(t *testing.T) {
	store := newFakeStore()
	ticket := openTicket(store)
	svc, _ := newTestService(store)

	_, err := svc.SendMessage(context.Background(), requester, ticket.ID, "from requester", nil)
	require.NoError(t, err)
	store.published = nil

	require.NoError(t, svc.MarkSeen(context.Background(), admin, ticket.ID))
	assert.True(t, store.messages[ticket.ID][0].Seen)
	assert.Contains(t, store.published, stream.TopicLog(ticket.ID))
}

func TestStringPreviewCutsOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		body string
		max  int
		want string
	}{
		{"short untouched", "hello", 120, "hello"},
		{"trims whitespace", "  hello  ", 120, "hello"},
		{"ascii truncated", strings.Repeat("a", 130), 120, strings.Repeat("a", 117) + "..."},
		{"exact fit", strings.Repeat("a", 120), 120, strings.Repeat("a", 120)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stringPreview(tt.body, tt.max))
		})
	}

	// 100 two-byte runes, 200 bytes total. A byte cut at 117 would land
	// inside a rune.
	accented := strings.Repeat("é", 100)
	got := stringPreview(accented, 120)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 120)
	assert.Equal(t, strings.Repeat("é", 58)+"...", got)
}
