package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwieczorek/newsrelay/internal/news"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := New(mock)
	s.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "11111111-1111-1111-1111-111111111111" }
	return s, mock
}

func testDraft() news.ArticleDraft {
	return news.ArticleDraft{
		SourceURL:   "https://www.rp.pl/ekonomia/art123-eksport",
		Title:       "Eksport rośnie",
		Subtitle:    "Dane za marzec",
		PublishedAt: time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC),
		Authors:     []string{"Jan Kowalski"},
		Category:    "Ekonomia > Biznes",
		BodyText:    "Treść artykułu.",
	}
}

func TestUpsertIfNew_Inserts(t *testing.T) {
	s, mock := newMockStore(t)
	draft := testDraft()

	mock.ExpectQuery("INSERT INTO articles").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).
			AddRow("11111111-1111-1111-1111-111111111111"))

	res, err := s.UpsertIfNew(context.Background(), draft)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", res.Article.ID)
	assert.Equal(t, news.StatusNew, res.Article.Status)
	assert.Equal(t, draft.NaturalKeyHash(), res.Article.NaturalKeyHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfNew_ConflictReturnsExisting(t *testing.T) {
	s, mock := newMockStore(t)
	draft := testDraft()
	hash := draft.NaturalKeyHash()

	mock.ExpectQuery("INSERT INTO articles").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM articles WHERE natural_key_hash").
		WillReturnRows(pgxmock.NewRows(articleColumns).AddRow(
			"22222222-2222-2222-2222-222222222222", hash, draft.SourceURL,
			draft.Title, draft.Subtitle, draft.PublishedAt, draft.Authors,
			draft.Category, draft.BodyText, "", []string{},
			news.StatusNew, time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC),
			(*time.Time)(nil),
		))

	res, err := s.UpsertIfNew(context.Background(), draft)
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", res.Article.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfNew_NoAuthorsInsertsEmptyArrays(t *testing.T) {
	s, mock := newMockStore(t)
	draft := news.ArticleDraft{
		SourceURL:   "https://www.rp.pl/ekonomia/art124-bez-autora",
		Title:       "Bez autora",
		PublishedAt: time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC),
	}
	require.Nil(t, draft.Authors)
	require.Nil(t, draft.ImageCredits)

	// A nil slice would reach the driver as SQL NULL and violate the
	// NOT NULL array columns; the store must send empty arrays instead.
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			"11111111-1111-1111-1111-111111111111", draft.NaturalKeyHash(),
			draft.SourceURL, draft.Title, "", draft.PublishedAt,
			[]string{}, "", "", "", []string{},
			news.StatusNew, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).
			AddRow("11111111-1111-1111-1111-111111111111"))

	res, err := s.UpsertIfNew(context.Background(), draft)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.NotNil(t, res.Article.Authors)
	assert.NotNil(t, res.Article.ImageCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfNew_RejectsInvalidDraft(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.UpsertIfNew(context.Background(), news.ArticleDraft{Title: "bez url"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	draft := testDraft()

	mock.ExpectQuery("SELECT (.+) FROM articles WHERE status").
		WillReturnRows(pgxmock.NewRows(articleColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", draft.NaturalKeyHash(),
			draft.SourceURL, draft.Title, draft.Subtitle, draft.PublishedAt,
			draft.Authors, draft.Category, draft.BodyText, "", []string{},
			news.StatusNew, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
			(*time.Time)(nil),
		))

	rows, err := s.ListByStatus(context.Background(), news.StatusNew, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, draft.SourceURL, rows[0].SourceURL)
	assert.Nil(t, rows[0].DeliveredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDelivered(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE articles SET").
		WithArgs(news.StatusDelivered, at, "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkDelivered(context.Background(), "id-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDelivered_UnknownID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE articles SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkDelivered(context.Background(), "missing", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveryFailed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE articles SET").
		WithArgs(news.StatusDeliveryFailed, "id-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkDeliveryFailed(context.Background(), "id-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}
