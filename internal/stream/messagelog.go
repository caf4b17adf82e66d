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

// MessageLog exposes a live view over one ticket's ordered message log.
// Every push re-delivers the full current log so consumers can replace
// their cached copy, which makes re-subscription after a disconnect safe.
type MessageLog struct {
	messages repository.MessageRepository
	notifier Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewMessageLog constructs the log store.
func NewMessageLog(messages repository.MessageRepository, notifier Notifier, metrics *observability.Metrics, logger *zap.Logger) *MessageLog {
	return &MessageLog{messages: messages, notifier: notifier, metrics: metrics, logger: logger}
}

// Subscribe pushes the full ordered log (ascending by timestamp) immediately
// and after every change signal. Terminates with LogUnavailable on transport
// failure; no auto-retry.
func (l *MessageLog) Subscribe(ctx context.Context, ticketID string) (<-chan []domain.Message, <-chan error) {
	logs := make(chan []domain.Message, 1)
	errs := make(chan error, 1)
	signals := l.notifier.Subscribe(ctx, TopicLog(ticketID))

	go func() {
		defer close(logs)
		defer close(errs)

		fail := func(err error) {
			l.metrics.RecordSubscriptionDrop("log")
			l.logger.Warn("log subscription terminated", zap.String("ticket_id", ticketID), zap.Error(err))
			errs <- apperrors.NewLogUnavailable(err)
		}

		push := func() bool {
			msgs, err := l.messages.ListByTicket(ctx, ticketID)
			if err != nil {
				if ctx.Err() == nil {
					fail(err)
				}
				return false
			}
			select {
			case logs <- msgs:
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

	return logs, errs
}

// Append validates and persists a single message outside any ticket-summary
// transaction, then signals log subscribers. The compound send operation
// goes through the write coordinator instead; this entry point serves
// fixtures and the direct-message surface.
func (l *MessageLog) Append(ctx context.Context, msg *domain.Message) error {
	if msg.Empty() {
		return apperrors.NewValidationError("message requires text or an attachment", nil)
	}
	if err := l.messages.Create(ctx, msg); err != nil {
		return apperrors.NewCommitFailed(err)
	}
	if err := l.notifier.Publish(ctx, TopicLog(msg.TicketID)); err != nil {
		l.logger.Warn("log change notification failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
	}
	return nil
}
