// Package ingest consumes article drafts from the queue and persists them.
// The broker redelivers anything that is not acked, so the handler leans on
// the store's idempotent upsert: reprocessing a message is always safe.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/metrics"
	"github.com/pwieczorek/newsrelay/internal/queue"
	"github.com/pwieczorek/newsrelay/internal/store"
)

// Consumer drains the queue into the store.
type Consumer struct {
	queue  queue.Consumer
	store  store.Store
	logger *zap.Logger
}

// New wires a Consumer. A nil logger gets replaced with a no-op one.
func New(q queue.Consumer, st store.Store, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{queue: q, store: st, logger: logger}
}

// Run blocks receiving messages until the context ends.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Ingest consumer started")
	return c.queue.Receive(ctx, c.handle)
}

// handle settles every delivery exactly one way:
//   - malformed draft: ack and drop, redelivery cannot fix it
//   - store error: nack, the broker will redeliver
//   - inserted or duplicate: ack
func (c *Consumer) handle(ctx context.Context, d queue.Delivery) {
	msg := d.Message()
	if msg.Attempt > 1 {
		metrics.QueueRedelivered()
	}

	if err := msg.Draft.Validate(); err != nil {
		c.logger.Warn("Dropping malformed draft",
			zap.String("url", msg.Draft.SourceURL),
			zap.Error(err))
		metrics.ArticleIngested("invalid")
		d.Ack()
		return
	}

	res, err := c.store.UpsertIfNew(ctx, msg.Draft)
	if err != nil {
		c.logger.Error("Store upsert failed, message will be redelivered",
			zap.String("url", msg.Draft.SourceURL),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err))
		metrics.ArticleIngested("error")
		d.Nack()
		return
	}

	if res.Inserted {
		c.logger.Info("Stored new article",
			zap.String("id", res.Article.ID),
			zap.String("url", res.Article.SourceURL),
			zap.String("category", res.Article.Category))
		metrics.ArticleIngested("inserted")
	} else {
		c.logger.Debug("Skipping duplicate article",
			zap.String("id", res.Article.ID),
			zap.String("url", msg.Draft.SourceURL))
		metrics.ArticleIngested("duplicate")
	}
	d.Ack()
}
