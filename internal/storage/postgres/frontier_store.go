// Package postgres provides the durable, Postgres-backed frontier. The claim
// operation relies on a single UPDATE with FOR UPDATE SKIP LOCKED so that
// concurrent workers can never observe and take the same queued row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clmercier/urlcollector/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FrontierStoreConfig controls the Postgres connection pool backing the
// frontier.
type FrontierStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// FrontierStore implements crawler.Frontier and crawler.FrontierReader on
// Postgres.
type FrontierStore struct {
	pool  pool
	table string
	clock crawler.Clock
}

// NewFrontierStore connects to Postgres and ensures the frontier schema
// exists, so that a restarted run resumes against whatever state the table
// already holds.
func NewFrontierStore(ctx context.Context, cfg FrontierStoreConfig, clock crawler.Clock) (*FrontierStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "urls"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &FrontierStore{pool: p, table: table, clock: clock}
	if err := store.ensureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewFrontierStoreWithPool constructs a store from an existing pool
// (primarily for testing). The schema is assumed to exist.
func NewFrontierStoreWithPool(p pool, table string, clock crawler.Clock) (*FrontierStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "urls"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &FrontierStore{pool: p, table: table, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *FrontierStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *FrontierStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func (s *FrontierStore) ensureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'queued'
		CHECK (status IN ('queued', 'crawling', 'crawled', 'error')),
	depth INTEGER NOT NULL DEFAULT 0,
	discovered_from TEXT,
	http_status INTEGER,
	error TEXT,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_crawled TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_queued ON %[1]s (id) WHERE status = 'queued'`, s.table)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure frontier schema: %w", err)
	}
	return nil
}

// Seed inserts the seed URL at depth 0 with no parent. A duplicate insert is
// a no-op, which is what lets a prior run resume.
func (s *FrontierStore) Seed(ctx context.Context, url string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (url, status, depth) VALUES ($1, 'queued', 0) ON CONFLICT (url) DO NOTHING`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, url); err != nil {
		return fmt.Errorf("insert seed: %w", err)
	}
	return nil
}

// AddDiscovered inserts a queued record unless the URL already exists.
// Duplicates report isNew=false; they are routine, not an error.
func (s *FrontierStore) AddDiscovered(ctx context.Context, url string, depth int, discoveredFrom string) (bool, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (url, status, depth, discovered_from) VALUES ($1, 'queued', $2, NULLIF($3, '')) ON CONFLICT (url) DO NOTHING`,
		s.table,
	)
	tag, err := s.pool.Exec(ctx, query, url, depth, discoveredFrom)
	if err != nil {
		return false, fmt.Errorf("insert discovered url: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNext atomically transitions the oldest queued row to crawling and
// returns it. The inner SELECT takes a row lock and skips rows a racing
// transaction already locked, so each row is handed to at most one caller.
// Zero rows means the queue is (momentarily) empty.
func (s *FrontierStore) ClaimNext(ctx context.Context) (crawler.ClaimedURL, bool, error) {
	query := fmt.Sprintf(`
UPDATE %[1]s SET status = 'crawling'
WHERE id = (
	SELECT id FROM %[1]s WHERE status = 'queued'
	ORDER BY id ASC LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, url, depth`, s.table)

	var claimed crawler.ClaimedURL
	err := s.pool.QueryRow(ctx, query).Scan(&claimed.ID, &claimed.URL, &claimed.Depth)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.ClaimedURL{}, false, nil
	}
	if err != nil {
		return crawler.ClaimedURL{}, false, fmt.Errorf("claim next url: %w", err)
	}
	return claimed, true, nil
}

// MarkCrawled resolves a claimed record as fetched.
func (s *FrontierStore) MarkCrawled(ctx context.Context, id int64, httpStatus int) error {
	query := fmt.Sprintf(
		`UPDATE %s SET status = 'crawled', http_status = $1, error = NULL, last_crawled = now() WHERE id = $2`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, httpStatus, id); err != nil {
		return fmt.Errorf("mark crawled: %w", err)
	}
	return nil
}

// MarkError resolves a claimed record as failed.
func (s *FrontierStore) MarkError(ctx context.Context, id int64, message string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET status = 'error', error = $1, last_crawled = now() WHERE id = $2`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, crawler.TruncateError(message), id); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// StatusCounts aggregates the frontier by lifecycle state in one scan.
func (s *FrontierStore) StatusCounts(ctx context.Context) (crawler.StatusCounts, error) {
	query := fmt.Sprintf(`
SELECT
	count(*),
	count(*) FILTER (WHERE status = 'queued'),
	count(*) FILTER (WHERE status = 'crawling'),
	count(*) FILTER (WHERE status = 'crawled'),
	count(*) FILTER (WHERE status = 'error')
FROM %s`, s.table)

	var counts crawler.StatusCounts
	err := s.pool.QueryRow(ctx, query).Scan(
		&counts.Total, &counts.Queued, &counts.Crawling, &counts.Crawled, &counts.Errored,
	)
	if err != nil {
		return crawler.StatusCounts{}, fmt.Errorf("count statuses: %w", err)
	}
	return counts, nil
}

// ListURLs returns a page of records newest-first, optionally filtered by
// status.
func (s *FrontierStore) ListURLs(ctx context.Context, filter crawler.ListFilter) ([]crawler.URLRecord, error) {
	args := make([]any, 0, 3)
	where := ""
	if filter.Status != "" {
		where = "WHERE status = $1 "
		args = append(args, string(filter.Status))
	}
	query := fmt.Sprintf(
		`SELECT id, url, status, depth, discovered_from, http_status, error, first_seen, last_crawled FROM %s %sORDER BY id DESC LIMIT $%d OFFSET $%d`,
		s.table, where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	defer rows.Close()

	records := make([]crawler.URLRecord, 0, filter.Limit)
	for rows.Next() {
		var (
			rec    crawler.URLRecord
			status string
		)
		if err := rows.Scan(
			&rec.ID, &rec.URL, &status, &rec.Depth,
			&rec.DiscoveredFrom, &rec.HTTPStatus, &rec.Error,
			&rec.FirstSeen, &rec.LastCrawled,
		); err != nil {
			return nil, fmt.Errorf("scan url record: %w", err)
		}
		rec.Status = crawler.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate url records: %w", err)
	}
	return records, nil
}

// DepthHistogram buckets all records by depth.
func (s *FrontierStore) DepthHistogram(ctx context.Context, maxDepth int) ([]crawler.Bucket, error) {
	query := fmt.Sprintf(`SELECT depth, count(*) FROM %s GROUP BY depth`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("depth histogram: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var depth int
		var count int64
		if err := rows.Scan(&depth, &count); err != nil {
			return nil, fmt.Errorf("scan depth row: %w", err)
		}
		counts[depth] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate depth rows: %w", err)
	}
	return crawler.DepthBuckets(counts, maxDepth), nil
}

// StatusClassHistogram buckets fetched records by HTTP status class.
func (s *FrontierStore) StatusClassHistogram(ctx context.Context) ([]crawler.Bucket, error) {
	query := fmt.Sprintf(
		`SELECT http_status, count(*) FROM %s WHERE http_status IS NOT NULL GROUP BY http_status`,
		s.table,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("status histogram: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status int
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		counts[crawler.ClassifyStatus(status)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}
	return crawler.StatusClassBuckets(counts), nil
}

// TopDomains counts records per host. Hosts are derived in Go because URLs,
// not host columns, are what the table stores.
func (s *FrontierStore) TopDomains(ctx context.Context, limit int) ([]crawler.Bucket, error) {
	query := fmt.Sprintf(`SELECT url FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		if host := crawler.HostOf(raw); host != "" {
			counts[host]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return crawler.DomainBuckets(counts, limit), nil
}

// Activity reports hourly discovered-vs-crawled counts over the window.
func (s *FrontierStore) Activity(ctx context.Context, hours int) ([]crawler.ActivityPoint, error) {
	if hours < 1 {
		return []crawler.ActivityPoint{}, nil
	}
	now := s.now()
	start := now.Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	discovered, err := s.hourlyCounts(ctx, "first_seen", start)
	if err != nil {
		return nil, err
	}
	crawled, err := s.hourlyCounts(ctx, "last_crawled", start)
	if err != nil {
		return nil, err
	}
	return crawler.HourlySeries(now, hours, discovered, crawled), nil
}

func (s *FrontierStore) hourlyCounts(ctx context.Context, column string, start time.Time) (map[time.Time]int64, error) {
	query := fmt.Sprintf(
		`SELECT date_trunc('hour', %[2]s), count(*) FROM %[1]s WHERE %[2]s >= $1 GROUP BY 1`,
		s.table, column,
	)
	rows, err := s.pool.Query(ctx, query, start)
	if err != nil {
		return nil, fmt.Errorf("hourly %s counts: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[time.Time]int64)
	for rows.Next() {
		var bucket time.Time
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan hourly row: %w", err)
		}
		counts[bucket.UTC()] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly rows: %w", err)
	}
	return counts, nil
}
