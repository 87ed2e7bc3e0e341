// internal/model/models.go
package model

import (
	"time"
)

// Event types from the public feed that the service cares about.
const (
	TypeWatch       = "WatchEvent"
	TypePullRequest = "PullRequestEvent"
	TypeIssues      = "IssuesEvent"
	TypeFork        = "ForkEvent"
	TypePush        = "PushEvent"
)

// DefaultEventTypes is the allow-list used when no EVENT_TYPES override is configured.
func DefaultEventTypes() []string {
	return []string{TypeWatch, TypePullRequest, TypeIssues}
}

// EventRecord is one event from the public feed, as stored.
// Records are created once by the poller and never mutated.
type EventRecord struct {
	ID        string         `json:"id"`
	RepoName  string         `json:"repo_name"`
	EventType string         `json:"event_type"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

// Action returns the payload's "action" field, if present and a string.
// Feed payloads are semi-structured; no key can be assumed to exist.
func (e EventRecord) Action() (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	v, ok := e.Payload["action"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// EventCounts is the windowed count metric.
type EventCounts struct {
	OffsetMinutes int              `json:"offset_minutes"`
	TotalEvents   int64            `json:"total_events"`
	Counts        map[string]int64 `json:"counts"`
	AsOf          time.Time        `json:"timestamp"`
}

// PRIntervalStat describes the spacing of opened pull requests for one
// repository. The interval fields are nil when fewer than two opened-PR
// events have been observed.
type PRIntervalStat struct {
	Repo                  string   `json:"repo"`
	PRCount               int      `json:"pr_count"`
	AvgIntervalSeconds    *float64 `json:"avg_interval_seconds,omitempty"`
	MinIntervalSeconds    *float64 `json:"min_interval_seconds,omitempty"`
	MaxIntervalSeconds    *float64 `json:"max_interval_seconds,omitempty"`
	MedianIntervalSeconds *float64 `json:"median_interval_seconds,omitempty"`
	StddevIntervalSeconds *float64 `json:"stddev_interval_seconds,omitempty"`
}

// HasData reports whether enough opened-PR events exist to compute intervals.
func (s PRIntervalStat) HasData() bool {
	return s.PRCount >= 2
}

// TypeActivity is the per-event-type slice of a repository's activity.
type TypeActivity struct {
	Count        int64     `json:"count"`
	FirstEventAt time.Time `json:"first_event"`
	LastEventAt  time.Time `json:"last_event"`
}

// RepoActivity is the windowed activity metric for one repository.
type RepoActivity struct {
	Repo        string                  `json:"repo"`
	Hours       int                     `json:"hours"`
	TotalEvents int64                   `json:"total_events"`
	Activity    map[string]TypeActivity `json:"activity"`
	AsOf        time.Time               `json:"timestamp"`
}

// TrendingEntry is one repository in the trending ranking.
type TrendingEntry struct {
	RepoName      string           `json:"repo_name"`
	TotalEvents   int64            `json:"total_events"`
	PerTypeCounts map[string]int64 `json:"per_type_counts"`
	FirstEventAt  time.Time        `json:"first_event"`
	LastEventAt   time.Time        `json:"last_event"`
}

// TrendingReport is the full trending metric over a lookback window.
type TrendingReport struct {
	Hours        int             `json:"hours"`
	Repositories []TrendingEntry `json:"repositories"`
	AsOf         time.Time       `json:"timestamp"`
}
