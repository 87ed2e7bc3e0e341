// internal/metrics/engine_test.go
package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-events-monitor/internal/errors"
	"github-events-monitor/internal/model"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) StoreAll(ctx context.Context, records []model.EventRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) CountByType(ctx context.Context, eventType string, since time.Time) (int64, error) {
	args := m.Called(ctx, eventType, since)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) CountAllTypes(ctx context.Context, since time.Time) (map[string]int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(map[string]int64), args.Error(1)
}
func (m *MockStore) CountByRepoAndType(ctx context.Context, repo, eventType string, since time.Time) (int64, error) {
	args := m.Called(ctx, repo, eventType, since)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) OpenedPRTimestamps(ctx context.Context, repo string) ([]time.Time, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).([]time.Time), args.Error(1)
}
func (m *MockStore) ActivityByRepo(ctx context.Context, repo string, since time.Time) (map[string]model.TypeActivity, error) {
	args := m.Called(ctx, repo, since)
	return args.Get(0).(map[string]model.TypeActivity), args.Error(1)
}
func (m *MockStore) TrendingSince(ctx context.Context, since time.Time, limit int) ([]model.TrendingEntry, error) {
	args := m.Called(ctx, since, limit)
	return args.Get(0).([]model.TrendingEntry), args.Error(1)
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(s *MockStore) *Engine {
	e := NewEngine(s, model.DefaultEventTypes())
	e.now = func() time.Time { return testNow }
	return e
}

func TestEngine_EventCounts(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive offset", func(t *testing.T) {
		e := newTestEngine(new(MockStore))

		_, err := e.EventCounts(ctx, 0, "")

		var winErr *custom_errors.ErrInvalidWindow
		require.ErrorAs(t, err, &winErr)
		assert.Equal(t, "offset", winErr.Param)
	})

	t.Run("rejects unknown type filter", func(t *testing.T) {
		e := newTestEngine(new(MockStore))

		_, err := e.EventCounts(ctx, 60, "GollumEvent")

		var typeErr *custom_errors.ErrUnknownEventType
		require.ErrorAs(t, err, &typeErr)
	})

	t.Run("counts over the requested window", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)

		wantSince := testNow.Add(-60 * time.Minute)
		mockStore.On("CountAllTypes", ctx, wantSince).
			Return(map[string]int64{model.TypeWatch: 3, model.TypeIssues: 2}, nil).Once()

		counts, err := e.EventCounts(ctx, 60, "")

		require.NoError(t, err)
		assert.Equal(t, int64(5), counts.TotalEvents)
		assert.Equal(t, int64(3), counts.Counts[model.TypeWatch])
		assert.Equal(t, testNow, counts.AsOf)
		mockStore.AssertExpectations(t)
	})

	t.Run("type filter scopes the count", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)

		wantSince := testNow.Add(-30 * time.Minute)
		mockStore.On("CountByType", ctx, model.TypeWatch, wantSince).Return(int64(7), nil).Once()

		counts, err := e.EventCounts(ctx, 30, model.TypeWatch)

		require.NoError(t, err)
		assert.Equal(t, int64(7), counts.TotalEvents)
		assert.Equal(t, map[string]int64{model.TypeWatch: 7}, counts.Counts)
		mockStore.AssertExpectations(t)
	})
}

func TestEngine_PRInterval(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("computes stats over consecutive gaps", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)

		// Gaps of 3600s and 7200s.
		timestamps := []time.Time{t0, t0.Add(time.Hour), t0.Add(3 * time.Hour)}
		mockStore.On("OpenedPRTimestamps", ctx, "octo/hello").Return(timestamps, nil).Once()

		stat, err := e.PRInterval(ctx, "octo/hello")

		require.NoError(t, err)
		assert.True(t, stat.HasData())
		assert.Equal(t, 3, stat.PRCount)
		require.NotNil(t, stat.AvgIntervalSeconds)
		assert.Equal(t, 5400.0, *stat.AvgIntervalSeconds)
		assert.Equal(t, 3600.0, *stat.MinIntervalSeconds)
		assert.Equal(t, 7200.0, *stat.MaxIntervalSeconds)
		assert.Equal(t, 5400.0, *stat.MedianIntervalSeconds)
		assert.Equal(t, 1800.0, *stat.StddevIntervalSeconds)
	})

	t.Run("returns no data for fewer than two events", func(t *testing.T) {
		for _, timestamps := range [][]time.Time{nil, {t0}} {
			mockStore := new(MockStore)
			e := newTestEngine(mockStore)
			mockStore.On("OpenedPRTimestamps", ctx, "octo/hello").Return(timestamps, nil).Once()

			stat, err := e.PRInterval(ctx, "octo/hello")

			require.NoError(t, err)
			assert.False(t, stat.HasData())
			assert.Equal(t, len(timestamps), stat.PRCount)
			assert.Nil(t, stat.AvgIntervalSeconds)
			assert.Nil(t, stat.MinIntervalSeconds)
			assert.Nil(t, stat.MaxIntervalSeconds)
		}
	})

	t.Run("rejects malformed repo", func(t *testing.T) {
		e := newTestEngine(new(MockStore))

		_, err := e.PRInterval(ctx, "not-a-repo")

		var repoErr *custom_errors.ErrInvalidRepoFormat
		require.ErrorAs(t, err, &repoErr)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)
		storeErr := errors.New("connection refused")
		mockStore.On("OpenedPRTimestamps", ctx, "octo/hello").Return([]time.Time(nil), storeErr).Once()

		_, err := e.PRInterval(ctx, "octo/hello")

		assert.ErrorIs(t, err, storeErr)
	})
}

func TestEngine_RepositoryActivity(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive hours", func(t *testing.T) {
		e := newTestEngine(new(MockStore))

		_, err := e.RepositoryActivity(ctx, "octo/hello", -1)

		var winErr *custom_errors.ErrInvalidWindow
		require.ErrorAs(t, err, &winErr)
		assert.Equal(t, "hours", winErr.Param)
	})

	t.Run("totals per-type activity", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)

		wantSince := testNow.Add(-24 * time.Hour)
		activity := map[string]model.TypeActivity{
			model.TypeWatch:       {Count: 4, FirstEventAt: wantSince.Add(time.Hour), LastEventAt: testNow.Add(-time.Minute)},
			model.TypePullRequest: {Count: 2, FirstEventAt: wantSince.Add(2 * time.Hour), LastEventAt: testNow.Add(-time.Hour)},
		}
		mockStore.On("ActivityByRepo", ctx, "octo/hello", wantSince).Return(activity, nil).Once()

		got, err := e.RepositoryActivity(ctx, "octo/hello", 24)

		require.NoError(t, err)
		assert.Equal(t, int64(6), got.TotalEvents)
		assert.Equal(t, 24, got.Hours)
		assert.Equal(t, activity, got.Activity)
		mockStore.AssertExpectations(t)
	})
}

func TestEngine_Trending(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive window and limit", func(t *testing.T) {
		e := newTestEngine(new(MockStore))

		_, err := e.Trending(ctx, 0, 10)
		assert.Error(t, err)

		_, err = e.Trending(ctx, 24, 0)
		assert.Error(t, err)
	})

	t.Run("delegates to the store with the computed window", func(t *testing.T) {
		mockStore := new(MockStore)
		e := newTestEngine(mockStore)

		wantSince := testNow.Add(-6 * time.Hour)
		entries := []model.TrendingEntry{
			{RepoName: "octo/alpha", TotalEvents: 9},
			{RepoName: "octo/beta", TotalEvents: 9},
		}
		mockStore.On("TrendingSince", ctx, wantSince, 10).Return(entries, nil).Once()

		report, err := e.Trending(ctx, 6, 10)

		require.NoError(t, err)
		assert.Equal(t, entries, report.Repositories)
		assert.Equal(t, 6, report.Hours)
		mockStore.AssertExpectations(t)
	})
}
