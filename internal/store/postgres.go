// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github-events-monitor/internal/model"
)

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	dbpool *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(dbpool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		dbpool: dbpool,
		logger: logger,
	}
}

const insertEventSQL = `
INSERT INTO events (id, repo_name, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

// StoreAll inserts records one row at a time with insert-or-ignore
// semantics. Per-row failures are logged and skipped; only a batch where
// every row fails is reported as a storage failure.
func (s *PostgresStore) StoreAll(ctx context.Context, records []model.EventRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	var rowErrs []error
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			s.logger.Warn("Skipping record with unencodable payload", "id", rec.ID, "error", err)
			rowErrs = append(rowErrs, err)
			continue
		}

		tag, err := s.dbpool.Exec(ctx, insertEventSQL,
			rec.ID, rec.RepoName, rec.EventType, payload, rec.CreatedAt)
		if err != nil {
			s.logger.Warn("Failed to insert event", "id", rec.ID, "error", err)
			rowErrs = append(rowErrs, err)
			continue
		}
		inserted += int(tag.RowsAffected())
	}

	if len(rowErrs) == len(records) {
		return 0, fmt.Errorf("storage unreachable, all %d inserts failed: %w", len(records), errors.Join(rowErrs...))
	}
	return inserted, nil
}

func (s *PostgresStore) CountByType(ctx context.Context, eventType string, since time.Time) (int64, error) {
	var n int64
	err := s.dbpool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE event_type = $1 AND created_at >= $2`,
		eventType, since).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountAllTypes(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.dbpool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM events WHERE created_at >= $1 GROUP BY event_type`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountByRepoAndType(ctx context.Context, repo, eventType string, since time.Time) (int64, error) {
	var n int64
	err := s.dbpool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE repo_name = $1 AND event_type = $2 AND created_at >= $3`,
		repo, eventType, since).Scan(&n)
	return n, err
}

// OpenedPRTimestamps orders by (created_at, id) so interval computation is
// deterministic when two events share a timestamp.
func (s *PostgresStore) OpenedPRTimestamps(ctx context.Context, repo string) ([]time.Time, error) {
	rows, err := s.dbpool.Query(ctx,
		`SELECT created_at FROM events
		 WHERE repo_name = $1 AND event_type = $2 AND payload->>'action' = 'opened'
		 ORDER BY created_at ASC, id ASC`,
		repo, model.TypePullRequest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timestamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		timestamps = append(timestamps, ts.UTC())
	}
	return timestamps, rows.Err()
}

func (s *PostgresStore) ActivityByRepo(ctx context.Context, repo string, since time.Time) (map[string]model.TypeActivity, error) {
	rows, err := s.dbpool.Query(ctx,
		`SELECT event_type, COUNT(*), MIN(created_at), MAX(created_at)
		 FROM events WHERE repo_name = $1 AND created_at >= $2
		 GROUP BY event_type`,
		repo, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := make(map[string]model.TypeActivity)
	for rows.Next() {
		var typ string
		var a model.TypeActivity
		if err := rows.Scan(&typ, &a.Count, &a.FirstEventAt, &a.LastEventAt); err != nil {
			return nil, err
		}
		a.FirstEventAt = a.FirstEventAt.UTC()
		a.LastEventAt = a.LastEventAt.UTC()
		activity[typ] = a
	}
	return activity, rows.Err()
}

// TrendingSince runs two queries: the ranking itself, then the per-type
// sub-counts for the repos that made the cut.
func (s *PostgresStore) TrendingSince(ctx context.Context, since time.Time, limit int) ([]model.TrendingEntry, error) {
	rows, err := s.dbpool.Query(ctx,
		`SELECT repo_name, COUNT(*) AS total, MIN(created_at), MAX(created_at)
		 FROM events WHERE created_at >= $1 AND repo_name <> ''
		 GROUP BY repo_name
		 ORDER BY total DESC, repo_name ASC
		 LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TrendingEntry
	var repos []string
	for rows.Next() {
		var e model.TrendingEntry
		if err := rows.Scan(&e.RepoName, &e.TotalEvents, &e.FirstEventAt, &e.LastEventAt); err != nil {
			return nil, err
		}
		e.FirstEventAt = e.FirstEventAt.UTC()
		e.LastEventAt = e.LastEventAt.UTC()
		e.PerTypeCounts = make(map[string]int64)
		entries = append(entries, e)
		repos = append(repos, e.RepoName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	typeRows, err := s.dbpool.Query(ctx,
		`SELECT repo_name, event_type, COUNT(*)
		 FROM events WHERE created_at >= $1 AND repo_name = ANY($2)
		 GROUP BY repo_name, event_type`,
		since, repos)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()

	byRepo := make(map[string]*model.TrendingEntry, len(entries))
	for i := range entries {
		byRepo[entries[i].RepoName] = &entries[i]
	}
	for typeRows.Next() {
		var repo, typ string
		var n int64
		if err := typeRows.Scan(&repo, &typ, &n); err != nil {
			return nil, err
		}
		if e, ok := byRepo[repo]; ok {
			e.PerTypeCounts[typ] = n
		}
	}
	return entries, typeRows.Err()
}
