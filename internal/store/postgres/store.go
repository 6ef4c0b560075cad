// Package postgres implements the article store on PostgreSQL. The unique
// index on natural_key_hash plus INSERT ... ON CONFLICT DO NOTHING makes
// UpsertIfNew atomic: two consumers racing on the same key get exactly one
// inserted row. See migrations/001_init.sql for the schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwieczorek/newsrelay/internal/news"
	"github.com/pwieczorek/newsrelay/internal/store"
)

// Querier is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var articleColumns = []string{
	"id", "natural_key_hash", "source_url", "title", "subtitle",
	"published_at", "authors", "category", "body_text", "image_url",
	"image_credits", "status", "first_seen_at", "delivered_at",
}

// Store persists articles in Postgres.
type Store struct {
	db    Querier
	now   func() time.Time
	newID func() string
}

// New wraps an existing pool or mock.
func New(db Querier) *Store {
	return &Store{db: db, now: time.Now, newID: uuid.NewString}
}

// Connect builds a pool from the DSN and pings it, failing fast when the
// database is unreachable.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

// UpsertIfNew implements store.Store.
func (s *Store) UpsertIfNew(ctx context.Context, draft news.ArticleDraft) (store.UpsertResult, error) {
	if err := draft.Validate(); err != nil {
		return store.UpsertResult{}, fmt.Errorf("upsert draft: %w", err)
	}
	hash := draft.NaturalKeyHash()
	id := s.newID()
	firstSeen := s.now().UTC()

	// pgx encodes nil slices as SQL NULL, which the NOT NULL array columns
	// reject. Drafts without authors or credits are normal input.
	authors := draft.Authors
	if authors == nil {
		authors = []string{}
	}
	credits := draft.ImageCredits
	if credits == nil {
		credits = []string{}
	}

	query, args, err := psql.Insert("articles").
		Columns("id", "natural_key_hash", "source_url", "title", "subtitle",
			"published_at", "authors", "category", "body_text", "image_url",
			"image_credits", "status", "first_seen_at").
		Values(id, hash, draft.SourceURL, draft.Title, draft.Subtitle,
			draft.PublishedAt, authors, draft.Category, draft.BodyText,
			draft.ImageURL, credits, news.StatusNew, firstSeen).
		Suffix("ON CONFLICT (natural_key_hash) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("build insert: %w", err)
	}

	var insertedID string
	err = s.db.QueryRow(ctx, query, args...).Scan(&insertedID)
	switch {
	case err == nil:
		return store.UpsertResult{
			Article: news.StoredArticle{
				ID:             insertedID,
				NaturalKeyHash: hash,
				SourceURL:      draft.SourceURL,
				Title:          draft.Title,
				Subtitle:       draft.Subtitle,
				PublishedAt:    draft.PublishedAt,
				Authors:        authors,
				Category:       draft.Category,
				BodyText:       draft.BodyText,
				ImageURL:       draft.ImageURL,
				ImageCredits:   credits,
				Status:         news.StatusNew,
				FirstSeenAt:    firstSeen,
			},
			Inserted: true,
		}, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Conflict: some earlier insert won. Return the stored row.
		existing, selErr := s.getByHash(ctx, hash)
		if selErr != nil {
			return store.UpsertResult{}, selErr
		}
		return store.UpsertResult{Article: existing, Inserted: false}, nil
	default:
		return store.UpsertResult{}, fmt.Errorf("insert article: %w", err)
	}
}

func (s *Store) getByHash(ctx context.Context, hash string) (news.StoredArticle, error) {
	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"natural_key_hash": hash}).
		ToSql()
	if err != nil {
		return news.StoredArticle{}, fmt.Errorf("build select: %w", err)
	}

	row := s.db.QueryRow(ctx, query, args...)
	article, err := scanArticle(row)
	if err != nil {
		return news.StoredArticle{}, fmt.Errorf("select article by hash: %w", err)
	}
	return article, nil
}

// ListByStatus implements store.Store.
func (s *Store) ListByStatus(ctx context.Context, status news.DeliveryStatus, limit int) ([]news.StoredArticle, error) {
	builder := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": status}).
		OrderBy("published_at ASC", "first_seen_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var out []news.StoredArticle
	for rows.Next() {
		article, scanErr := scanArticle(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan article: %w", scanErr)
		}
		out = append(out, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// MarkDelivered implements store.Store.
func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("articles").
		Set("status", news.StatusDelivered).
		Set("delivered_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark delivered: article %s not found", id)
	}
	return nil
}

// MarkDeliveryFailed implements store.Store.
func (s *Store) MarkDeliveryFailed(ctx context.Context, id string) error {
	query, args, err := psql.Update("articles").
		Set("status", news.StatusDeliveryFailed).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark delivery failed: article %s not found", id)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func scanArticle(row pgx.Row) (news.StoredArticle, error) {
	var a news.StoredArticle
	err := row.Scan(
		&a.ID, &a.NaturalKeyHash, &a.SourceURL, &a.Title, &a.Subtitle,
		&a.PublishedAt, &a.Authors, &a.Category, &a.BodyText, &a.ImageURL,
		&a.ImageCredits, &a.Status, &a.FirstSeenAt, &a.DeliveredAt,
	)
	if err != nil {
		return news.StoredArticle{}, err
	}
	return a, nil
}
