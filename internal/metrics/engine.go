// internal/metrics/engine.go
package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	custom_errors "github-events-monitor/internal/errors"
	"github-events-monitor/internal/model"
	"github-events-monitor/internal/store"
)

// Engine computes the canonical metrics from stored events. It holds no
// state of its own; every query recomputes from the store. All window math
// is done in UTC.
type Engine struct {
	store   store.Store
	allowed map[string]struct{}
	now     func() time.Time
}

// NewEngine creates an Engine over the given store. eventTypes is the
// configured allow-list, used to validate type-scoped queries.
func NewEngine(s store.Store, eventTypes []string) *Engine {
	allowed := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		allowed[t] = struct{}{}
	}
	return &Engine{
		store:   s,
		allowed: allowed,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EventCounts returns event counts over the window [now-offsetMinutes, now].
// typeFilter narrows the count to one event type; empty means all types.
func (e *Engine) EventCounts(ctx context.Context, offsetMinutes int, typeFilter string) (model.EventCounts, error) {
	if offsetMinutes <= 0 {
		return model.EventCounts{}, &custom_errors.ErrInvalidWindow{Param: "offset", Value: offsetMinutes}
	}

	now := e.now()
	since := now.Add(-time.Duration(offsetMinutes) * time.Minute)

	var counts map[string]int64
	if typeFilter != "" {
		if _, ok := e.allowed[typeFilter]; !ok {
			return model.EventCounts{}, &custom_errors.ErrUnknownEventType{Type: typeFilter}
		}
		n, err := e.store.CountByType(ctx, typeFilter, since)
		if err != nil {
			return model.EventCounts{}, err
		}
		counts = map[string]int64{typeFilter: n}
	} else {
		var err error
		counts, err = e.store.CountAllTypes(ctx, since)
		if err != nil {
			return model.EventCounts{}, err
		}
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return model.EventCounts{
		OffsetMinutes: offsetMinutes,
		TotalEvents:   total,
		Counts:        counts,
		AsOf:          now,
	}, nil
}

// PRInterval computes interval statistics over a repo's opened pull
// requests. With fewer than two qualifying events the returned stat carries
// the observed count and nil interval fields.
func (e *Engine) PRInterval(ctx context.Context, repo string) (model.PRIntervalStat, error) {
	if err := validateRepo(repo); err != nil {
		return model.PRIntervalStat{}, err
	}

	timestamps, err := e.store.OpenedPRTimestamps(ctx, repo)
	if err != nil {
		return model.PRIntervalStat{}, err
	}

	stat := model.PRIntervalStat{Repo: repo, PRCount: len(timestamps)}
	if len(timestamps) < 2 {
		return stat, nil
	}

	intervals := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals[i-1] = timestamps[i].Sub(timestamps[i-1]).Seconds()
	}

	stat.AvgIntervalSeconds = ptr(mean(intervals))
	stat.MinIntervalSeconds = ptr(minOf(intervals))
	stat.MaxIntervalSeconds = ptr(maxOf(intervals))
	stat.MedianIntervalSeconds = ptr(median(intervals))
	stat.StddevIntervalSeconds = ptr(stddev(intervals))
	return stat, nil
}

// RepositoryActivity returns per-type activity for one repo over the window
// [now-hours, now].
func (e *Engine) RepositoryActivity(ctx context.Context, repo string, hours int) (model.RepoActivity, error) {
	if err := validateRepo(repo); err != nil {
		return model.RepoActivity{}, err
	}
	if hours <= 0 {
		return model.RepoActivity{}, &custom_errors.ErrInvalidWindow{Param: "hours", Value: hours}
	}

	now := e.now()
	since := now.Add(-time.Duration(hours) * time.Hour)
	activity, err := e.store.ActivityByRepo(ctx, repo, since)
	if err != nil {
		return model.RepoActivity{}, err
	}

	var total int64
	for _, a := range activity {
		total += a.Count
	}
	return model.RepoActivity{
		Repo:        repo,
		Hours:       hours,
		TotalEvents: total,
		Activity:    activity,
		AsOf:        now,
	}, nil
}

// Trending ranks repos by event volume over the window [now-hours, now].
// Any positive limit is accepted here; clamping is the caller-facing
// layer's concern.
func (e *Engine) Trending(ctx context.Context, hours, limit int) (model.TrendingReport, error) {
	if hours <= 0 {
		return model.TrendingReport{}, &custom_errors.ErrInvalidWindow{Param: "hours", Value: hours}
	}
	if limit <= 0 {
		return model.TrendingReport{}, &custom_errors.ErrInvalidWindow{Param: "limit", Value: limit}
	}

	now := e.now()
	since := now.Add(-time.Duration(hours) * time.Hour)
	entries, err := e.store.TrendingSince(ctx, since, limit)
	if err != nil {
		return model.TrendingReport{}, err
	}
	return model.TrendingReport{
		Hours:        hours,
		Repositories: entries,
		AsOf:         now,
	}, nil
}

func validateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &custom_errors.ErrInvalidRepoFormat{Repo: repo}
	}
	return nil
}

func ptr(f float64) *float64 { return &f }

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(xs []float64) float64 {
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
