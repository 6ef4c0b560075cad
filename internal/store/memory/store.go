// Package memory provides an in-process Store for tests and the
// single-process run mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pwieczorek/newsrelay/internal/news"
	"github.com/pwieczorek/newsrelay/internal/store"
)

// Store keeps articles keyed by natural-key hash behind a mutex, which gives
// the same one-winner guarantee the Postgres unique constraint does.
type Store struct {
	mu     sync.Mutex
	byHash map[string]*news.StoredArticle
	now    func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byHash: make(map[string]*news.StoredArticle),
		now:    time.Now,
	}
}

// UpsertIfNew implements store.Store.
func (s *Store) UpsertIfNew(_ context.Context, draft news.ArticleDraft) (store.UpsertResult, error) {
	if err := draft.Validate(); err != nil {
		return store.UpsertResult{}, fmt.Errorf("upsert draft: %w", err)
	}
	hash := draft.NaturalKeyHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byHash[hash]; ok {
		return store.UpsertResult{Article: *existing, Inserted: false}, nil
	}

	article := &news.StoredArticle{
		ID:             uuid.NewString(),
		NaturalKeyHash: hash,
		SourceURL:      draft.SourceURL,
		Title:          draft.Title,
		Subtitle:       draft.Subtitle,
		PublishedAt:    draft.PublishedAt,
		Authors:        append([]string(nil), draft.Authors...),
		Category:       draft.Category,
		BodyText:       draft.BodyText,
		ImageURL:       draft.ImageURL,
		ImageCredits:   append([]string(nil), draft.ImageCredits...),
		Status:         news.StatusNew,
		FirstSeenAt:    s.now(),
	}
	s.byHash[hash] = article
	return store.UpsertResult{Article: *article, Inserted: true}, nil
}

// ListByStatus implements store.Store.
func (s *Store) ListByStatus(_ context.Context, status news.DeliveryStatus, limit int) ([]news.StoredArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []news.StoredArticle
	for _, a := range s.byHash {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkDelivered implements store.Store.
func (s *Store) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.findLocked(id)
	if err != nil {
		return err
	}
	a.Status = news.StatusDelivered
	a.DeliveredAt = &at
	return nil
}

// MarkDeliveryFailed implements store.Store.
func (s *Store) MarkDeliveryFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.findLocked(id)
	if err != nil {
		return err
	}
	a.Status = news.StatusDeliveryFailed
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) findLocked(id string) (*news.StoredArticle, error) {
	for _, a := range s.byHash {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("article %s not found", id)
}
