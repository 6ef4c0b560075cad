// Package dispatch polls stored articles and announces them on the channel.
// Every article ends in exactly one terminal state: delivered after a
// confirmed send, or delivery_failed once the retry budget is spent. A crash
// between the send and the status update means the next pass re-sends, so
// the pipeline prefers an occasional duplicate announcement over a lost one.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/metrics"
	"github.com/pwieczorek/newsrelay/internal/news"
	"github.com/pwieczorek/newsrelay/internal/notify"
	"github.com/pwieczorek/newsrelay/internal/retry"
	"github.com/pwieczorek/newsrelay/internal/store"
)

const publishedAtLayout = "02.01.2006 15:04"

// Config tunes the dispatcher loop.
type Config struct {
	// PollInterval is the pause between polls of the pending set.
	PollInterval time.Duration
	// BatchSize caps how many pending articles one pass picks up.
	BatchSize int
	// SendDelay paces consecutive channel sends within a pass.
	SendDelay time.Duration
	// Retry bounds the per-article send attempts.
	Retry retry.Policy
}

// Dispatcher drains pending articles to the notification channel.
type Dispatcher struct {
	store    store.Store
	notifier notify.Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New wires a Dispatcher, filling in defaults for zero config values.
func New(st store.Store, n notify.Notifier, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:    st,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until the context ends. Each pass drains one batch of pending
// articles, oldest publication first.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("batch_size", d.cfg.BatchSize))

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx); err != nil {
			d.logger.Error("Dispatch pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce processes a single batch of pending articles. A delivery failure
// on one article never blocks the rest of the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	pending, err := d.store.ListByStatus(ctx, news.StatusNew, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending articles: %w", err)
	}

	for i, article := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && d.cfg.SendDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.SendDelay):
			}
		}
		d.dispatchOne(ctx, article)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, article news.StoredArticle) {
	msg := notify.Message{
		Text:     FormatAnnouncement(article),
		PhotoURL: article.ImageURL,
	}

	err := retry.Do(ctx, d.cfg.Retry, notify.IsRetryable, func(ctx context.Context) error {
		metrics.DeliveryAttempted()
		return d.notifier.Deliver(ctx, msg)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a channel verdict. Leave the article pending.
			return
		}
		d.logger.Error("Giving up on article delivery",
			zap.String("id", article.ID),
			zap.String("url", article.SourceURL),
			zap.Error(err))
		metrics.DeliveryResolved("failed")
		if mErr := d.store.MarkDeliveryFailed(ctx, article.ID); mErr != nil {
			d.logger.Error("Failed to record delivery failure",
				zap.String("id", article.ID), zap.Error(mErr))
		}
		return
	}

	d.logger.Info("Article announced",
		zap.String("id", article.ID),
		zap.String("url", article.SourceURL))
	metrics.DeliveryResolved("delivered")
	if mErr := d.store.MarkDelivered(ctx, article.ID, d.now().UTC()); mErr != nil {
		d.logger.Error("Failed to record delivery",
			zap.String("id", article.ID), zap.Error(mErr))
	}
}

// FormatAnnouncement renders the channel message for an article.
func FormatAnnouncement(a news.StoredArticle) string {
	publishedAt := "Data nie podana"
	if !a.PublishedAt.IsZero() {
		publishedAt = a.PublishedAt.Format(publishedAtLayout)
	}
	author := "Autor nie podany"
	if len(a.Authors) > 0 {
		author = strings.Join(a.Authors, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📰 *%s*\n\n", a.Title)
	fmt.Fprintf(&b, "📁 %s\n", a.Category)
	fmt.Fprintf(&b, "🔍 %s\n\n", a.Subtitle)
	fmt.Fprintf(&b, "📅 %s\n", publishedAt)
	fmt.Fprintf(&b, "✍️ %s\n\n", author)
	fmt.Fprintf(&b, "🔗 [Czytaj więcej](%s)", a.SourceURL)
	return b.String()
}
