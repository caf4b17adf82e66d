package txn

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/observability"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// Publisher delivers post-commit change notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// Committer applies a writeSet atomically.
type Committer interface {
	Commit(ctx context.Context, ws *WriteSet) error
}

// Coordinator applies writeSets in a single database transaction. Subscribers
// never observe a partially applied set; change topics are published only
// after the transaction committed.
type Coordinator struct {
	pool      *pgxpool.Pool
	publisher Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(pool *pgxpool.Pool, publisher Publisher, metrics *observability.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{pool: pool, publisher: publisher, metrics: metrics, logger: logger}
}

// Commit runs every mutation in order inside one transaction. On any failure
// the transaction is rolled back and the error classified as CommitFailed.
func (c *Coordinator) Commit(ctx context.Context, ws *WriteSet) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		c.metrics.RecordCommit(false)
		return apperrors.NewCommitFailed(err)
	}

	for _, mutation := range ws.Mutations() {
		if err := mutation.Apply(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			c.metrics.RecordCommit(false)
			return apperrors.NewCommitFailed(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		c.metrics.RecordCommit(false)
		return apperrors.NewCommitFailed(err)
	}
	c.metrics.RecordCommit(true)

	if c.publisher != nil {
		// Best effort: a lost notification delays a snapshot refresh, it
		// cannot lose data.
		for _, topic := range ws.Topics() {
			if err := c.publisher.Publish(ctx, topic); err != nil {
				c.logger.Warn("change notification failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
	return nil
}
