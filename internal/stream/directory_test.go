package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/observability"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// fakeNotifier delivers signals over plain channels, one per Subscribe call.
type fakeNotifier struct {
	mu      sync.Mutex
	signals map[string]chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{signals: make(map[string]chan struct{})}
}

func (f *fakeNotifier) Publish(ctx context.Context, topic string) error {
	f.mu.Lock()
	ch, ok := f.signals[topic]
	f.mu.Unlock()
	if ok {
		ch <- struct{}{}
	}
	return nil
}

func (f *fakeNotifier) Subscribe(ctx context.Context, topic string) <-chan struct{} {
	ch := make(chan struct{}, 8)
	f.mu.Lock()
	f.signals[topic] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeNotifier) closeTopic(topic string) {
	f.mu.Lock()
	ch, ok := f.signals[topic]
	delete(f.signals, topic)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

type fakeTicketSource struct {
	mu      sync.Mutex
	tickets []domain.Ticket
	err     error
}

func (f *fakeTicketSource) set(tickets []domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = tickets
}

func (f *fakeTicketSource) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTicketSource) Create(ctx context.Context, ticket *domain.Ticket) error { return nil }

func (f *fakeTicketSource) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTicketSource) ListOrdered(ctx context.Context) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Ticket(nil), f.tickets...), nil
}

func waitSnapshot(t *testing.T, ch <-chan DirectorySnapshot) DirectorySnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "snapshot channel closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return DirectorySnapshot{}
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err, ok := <-ch:
		require.True(t, ok, "error channel closed unexpectedly")
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

func waitClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for channel close")
		}
	}
}

func newTestDirectory(source *fakeTicketSource, notifier Notifier) *Directory {
	return NewDirectory(source, notifier, observability.NewMetrics(), zap.NewNop())
}

func TestDirectoryPushesImmediateGroupedSnapshot(t *testing.T) {
	source := &fakeTicketSource{}
	source.set([]domain.Ticket{
		{ID: "t1", UnitID: "cs", Status: domain.TicketStatusOpen},
		{ID: "t2", UnitID: "math", Status: domain.TicketStatusOpen},
		{ID: "t3", UnitID: "cs", Status: domain.TicketStatusClosed},
	})
	notifier := newFakeNotifier()
	dir := newTestDirectory(source, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, _ := dir.Subscribe(ctx, GroupByUnit)

	snap := waitSnapshot(t, snapshots)
	assert.Len(t, snap.Groups["cs"], 2)
	assert.Len(t, snap.Groups["math"], 1)
}

func TestDirectoryRequeriesOnChangeSignal(t *testing.T) {
	source := &fakeTicketSource{}
	source.set([]domain.Ticket{{ID: "t1", UnitID: "cs"}})
	notifier := newFakeNotifier()
	dir := newTestDirectory(source, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, _ := dir.Subscribe(ctx, GroupByUnit)

	first := waitSnapshot(t, snapshots)
	assert.Len(t, first.Groups["cs"], 1)

	source.set([]domain.Ticket{{ID: "t1", UnitID: "cs"}, {ID: "t2", UnitID: "cs"}})
	require.NoError(t, notifier.Publish(ctx, TopicTickets))

	second := waitSnapshot(t, snapshots)
	assert.Len(t, second.Groups["cs"], 2)
}

func TestDirectoryQueryFailureTerminatesClassified(t *testing.T) {
	source := &fakeTicketSource{}
	source.set([]domain.Ticket{{ID: "t1", UnitID: "cs"}})
	notifier := newFakeNotifier()
	dir := newTestDirectory(source, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, errs := dir.Subscribe(ctx, GroupByUnit)
	waitSnapshot(t, snapshots)

	source.failWith(errors.New("connection reset"))
	require.NoError(t, notifier.Publish(ctx, TopicTickets))

	err := waitErr(t, errs)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDirectoryUnavailable))
	waitClosed(t, snapshots)
	waitClosed(t, errs)
}

func TestDirectoryFeedClosureTerminatesClassified(t *testing.T) {
	source := &fakeTicketSource{}
	notifier := newFakeNotifier()
	dir := newTestDirectory(source, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, errs := dir.Subscribe(ctx, GroupByUnit)
	waitSnapshot(t, snapshots)

	notifier.closeTopic(TopicTickets)

	err := waitErr(t, errs)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDirectoryUnavailable))
	waitClosed(t, snapshots)
}

func TestDirectoryCancelClosesWithoutError(t *testing.T) {
	source := &fakeTicketSource{}
	notifier := newFakeNotifier()
	dir := newTestDirectory(source, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	snapshots, errs := dir.Subscribe(ctx, GroupByUnit)
	waitSnapshot(t, snapshots)

	cancel()
	waitClosed(t, snapshots)
	waitClosed(t, errs)
}

func TestFilterStatus(t *testing.T) {
	snap := DirectorySnapshot{Groups: map[string][]domain.Ticket{
		"cs": {
			{ID: "t1", Status: domain.TicketStatusOpen},
			{ID: "t2", Status: domain.TicketStatusClosed},
		},
	}}

	assert.Len(t, snap.FilterStatus("cs", ""), 2)

	open := snap.FilterStatus("cs", domain.TicketStatusOpen)
	require.Len(t, open, 1)
	assert.Equal(t, "t1", open[0].ID)

	assert.Empty(t, snap.FilterStatus("unknown", domain.TicketStatusOpen))
}
