// internal/store/store.go
package store

import (
	"context"
	"time"

	"github-events-monitor/internal/model"
)

// Store is the persistence contract for event records. One implementation
// exists per backend; callers depend only on this interface.
type Store interface {
	// StoreAll inserts records idempotently by id and returns the number of
	// rows actually inserted. A failure on one record does not abort the
	// rest of the batch.
	StoreAll(ctx context.Context, records []model.EventRecord) (int, error)

	// CountByType counts events of one type with created_at >= since.
	CountByType(ctx context.Context, eventType string, since time.Time) (int64, error)

	// CountAllTypes counts events per type with created_at >= since.
	CountAllTypes(ctx context.Context, since time.Time) (map[string]int64, error)

	// CountByRepoAndType counts one repo's events of one type since the given time.
	CountByRepoAndType(ctx context.Context, repo, eventType string, since time.Time) (int64, error)

	// OpenedPRTimestamps returns the creation times of a repo's opened-PR
	// events, ascending by (created_at, id).
	OpenedPRTimestamps(ctx context.Context, repo string) ([]time.Time, error)

	// ActivityByRepo returns per-type count and first/last event times for
	// one repo with created_at >= since.
	ActivityByRepo(ctx context.Context, repo string, since time.Time) (map[string]model.TypeActivity, error)

	// TrendingSince ranks repos by event volume since the given time,
	// ordered by total descending then repo name ascending.
	TrendingSince(ctx context.Context, since time.Time, limit int) ([]model.TrendingEntry, error)
}
