package stream

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/observability"
	"github.com/spec-kit/conversation-service/internal/repository"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// GroupKeyFunc extracts the grouping key for a directory subscription.
type GroupKeyFunc func(domain.Ticket) string

// GroupByUnit groups tickets by their organizational unit, the default for
// every conversation surface.
func GroupByUnit(t domain.Ticket) string {
	return t.UnitID
}

// DirectorySnapshot is one immutable push from the ticket directory: tickets
// bucketed by grouping key, ordered by last activity (newest first) within
// each bucket. Snapshots are status-agnostic; status filtering is a pure
// function applied by the consumer so it reacts instantly to optimistic
// transitions.
type DirectorySnapshot struct {
	Groups map[string][]domain.Ticket
}

// FilterStatus returns the tickets of one group matching the status filter.
// An empty filter passes everything.
func (s DirectorySnapshot) FilterStatus(group string, status domain.TicketStatus) []domain.Ticket {
	tickets := s.Groups[group]
	if status == "" {
		return tickets
	}
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Directory maintains live, grouped views over all tickets.
type Directory struct {
	tickets  repository.TicketRepository
	notifier Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDirectory constructs the directory store.
func NewDirectory(tickets repository.TicketRepository, notifier Notifier, metrics *observability.Metrics, logger *zap.Logger) *Directory {
	return &Directory{tickets: tickets, notifier: notifier, metrics: metrics, logger: logger}
}

// Subscribe pushes a fresh snapshot immediately and then after every change
// signal. On transport failure the error channel delivers a classified
// DirectoryUnavailable and both channels close; the store does not retry,
// callers re-subscribe.
func (d *Directory) Subscribe(ctx context.Context, groupBy GroupKeyFunc) (<-chan DirectorySnapshot, <-chan error) {
	snapshots := make(chan DirectorySnapshot, 1)
	errs := make(chan error, 1)
	signals := d.notifier.Subscribe(ctx, TopicTickets)

	go func() {
		defer close(snapshots)
		defer close(errs)

		fail := func(err error) {
			d.metrics.RecordSubscriptionDrop("directory")
			d.logger.Warn("directory subscription terminated", zap.Error(err))
			errs <- apperrors.NewDirectoryUnavailable(err)
		}

		push := func() bool {
			tickets, err := d.tickets.ListOrdered(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fail(err)
				}
				return false
			}
			snapshot := DirectorySnapshot{Groups: groupTickets(tickets, groupBy)}
			select {
			case snapshots <- snapshot:
			case <-ctx.Done():
				return false
			}
			return true
		}

		if !push() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					if ctx.Err() == nil {
						fail(errors.New("change feed closed"))
					}
					return
				}
				if !push() {
					return
				}
			}
		}
	}()

	return snapshots, errs
}

func groupTickets(tickets []domain.Ticket, groupBy GroupKeyFunc) map[string][]domain.Ticket {
	groups := make(map[string][]domain.Ticket)
	for _, t := range tickets {
		key := groupBy(t)
		groups[key] = append(groups[key], t)
	}
	return groups
}
