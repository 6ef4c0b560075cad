// Package store defines the persistence contract for articles. The unique
// constraint on the natural-key hash is the load-bearing invariant: it turns
// the queue's at-least-once delivery into at-most-once persistence.
package store

import (
	"context"
	"time"

	"github.com/pwieczorek/newsrelay/internal/news"
)

// UpsertResult reports the outcome of UpsertIfNew. Inserted is true exactly
// once per natural key across all concurrent callers; every other call for
// the same key observes the already-stored article.
type UpsertResult struct {
	Article  news.StoredArticle
	Inserted bool
}

// Store persists articles and their delivery status. All operations are
// individually atomic.
type Store interface {
	// UpsertIfNew inserts the draft unless an article with the same natural
	// key hash already exists. A duplicate is an expected control-flow
	// outcome, not an error.
	UpsertIfNew(ctx context.Context, draft news.ArticleDraft) (UpsertResult, error)

	// ListByStatus returns up to limit articles in the given status, oldest
	// publication first.
	ListByStatus(ctx context.Context, status news.DeliveryStatus, limit int) ([]news.StoredArticle, error)

	// MarkDelivered advances the article to StatusDelivered and records the
	// confirmation time.
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// MarkDeliveryFailed advances the article to the terminal
	// StatusDeliveryFailed.
	MarkDeliveryFailed(ctx context.Context, id string) error

	Close() error
}
