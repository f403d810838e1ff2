package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/clmercier/urlcollector/internal/crawler"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *FrontierStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewFrontierStoreWithPool(mock, "urls", nil)
	require.NoError(t, err)
	return mock, store
}

func TestNewFrontierStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFrontierStoreWithPool(nil, "urls", nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewFrontierStoreWithPool(mock, "urls; DROP TABLE urls", nil)
	require.Error(t, err)
}

func TestSeedInsertsOnce(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("INSERT INTO urls").
		WithArgs("https://example.com").
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // conflict, already seeded

	require.NoError(t, store.Seed(context.Background(), "https://example.com"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddDiscoveredReportsNewness(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("INSERT INTO urls").
		WithArgs("https://example.com/a", 1, "https://example.com").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO urls").
		WithArgs("https://example.com/a", 1, "https://example.com").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	isNew, err := store.AddDiscovered(context.Background(), "https://example.com/a", 1, "https://example.com")
	require.NoError(t, err)
	require.True(t, isNew)

	isNew, err = store.AddDiscovered(context.Background(), "https://example.com/a", 1, "https://example.com")
	require.NoError(t, err)
	require.False(t, isNew)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextReturnsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("UPDATE urls SET status = 'crawling'").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "depth"}).
			AddRow(int64(7), "https://example.com/page", 2))

	claimed, ok, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, crawler.ClaimedURL{ID: 7, URL: "https://example.com/page", Depth: 2}, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextEmptyQueueIsNotAnError(t *testing.T) {
	t.Parallel()

	// Zero rows from the claim (empty queue, or a racing claim that
	// committed first) must read as "nothing to do".
	mock, store := newMockStore(t)
	mock.ExpectQuery("UPDATE urls SET status = 'crawling'").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCrawled(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("SET status = 'crawled'").
		WithArgs(200, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkCrawled(context.Background(), 7, 200))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkErrorTruncatesMessage(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", crawler.MaxErrorLen+100)

	mock, store := newMockStore(t)
	mock.ExpectExec("SET status = 'error'").
		WithArgs(strings.Repeat("x", crawler.MaxErrorLen), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkError(context.Background(), 9, long))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCounts(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("FILTER").
		WillReturnRows(pgxmock.NewRows([]string{"total", "queued", "crawling", "crawled", "error"}).
			AddRow(int64(10), int64(4), int64(1), int64(3), int64(2)))

	counts, err := store.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.StatusCounts{Total: 10, Queued: 4, Crawling: 1, Crawled: 3, Errored: 2}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListURLsWithStatusFilter(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	from := "https://example.com"
	errMsg := "timeout"

	mock, store := newMockStore(t)
	mock.ExpectQuery("ORDER BY id DESC").
		WithArgs("error", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "status", "depth", "discovered_from", "http_status", "error", "first_seen", "last_crawled",
		}).AddRow(int64(3), "https://example.com/x", "error", 1, &from, nil, &errMsg, now, &now))

	records, err := store.ListURLs(context.Background(), crawler.ListFilter{
		Status: crawler.StatusError,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, crawler.StatusError, records[0].Status)
	require.Nil(t, records[0].HTTPStatus)
	require.Equal(t, "timeout", *records[0].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDepthHistogramBucketsOverflow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("GROUP BY depth").
		WillReturnRows(pgxmock.NewRows([]string{"depth", "count"}).
			AddRow(0, int64(1)).
			AddRow(1, int64(5)).
			AddRow(4, int64(2)))

	buckets, err := store.DepthHistogram(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []crawler.Bucket{
		{Label: "0", Count: 1},
		{Label: "1", Count: 5},
		{Label: "2", Count: 0},
		{Label: ">2", Count: 2},
	}, buckets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusClassHistogram(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("WHERE http_status IS NOT NULL").
		WillReturnRows(pgxmock.NewRows([]string{"http_status", "count"}).
			AddRow(200, int64(5)).
			AddRow(204, int64(1)).
			AddRow(404, int64(2)))

	buckets, err := store.StatusClassHistogram(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.Bucket{
		{Label: "2xx", Count: 6},
		{Label: "3xx", Count: 0},
		{Label: "4xx", Count: 2},
		{Label: "5xx", Count: 0},
		{Label: "other", Count: 0},
	}, buckets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopDomains(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT url FROM urls").
		WillReturnRows(pgxmock.NewRows([]string{"url"}).
			AddRow("https://a.example/1").
			AddRow("https://a.example/2").
			AddRow("https://B.example/1"))

	buckets, err := store.TopDomains(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, []crawler.Bucket{
		{Label: "a.example", Count: 2},
		{Label: "b.example", Count: 1},
	}, buckets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivitySeries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 15, 20, 0, 0, time.UTC)
	thisHour := now.Truncate(time.Hour)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewFrontierStoreWithPool(mock, "urls", fixedClock{now: now})
	require.NoError(t, err)

	mock.ExpectQuery("date_trunc").
		WithArgs(thisHour.Add(-time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "count"}).
			AddRow(thisHour, int64(4)))
	mock.ExpectQuery("date_trunc").
		WithArgs(thisHour.Add(-time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "count"}).
			AddRow(thisHour.Add(-time.Hour), int64(2)))

	series, err := store.Activity(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []crawler.ActivityPoint{
		{Label: thisHour.Add(-time.Hour).Format("15:04"), Discovered: 0, Crawled: 2},
		{Label: thisHour.Format("15:04"), Discovered: 4, Crawled: 0},
	}, series)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
