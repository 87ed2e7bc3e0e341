// internal/ingest/loop.go
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github-events-monitor/internal/poller"
	"github-events-monitor/internal/store"
)

// Fetcher is the slice of the poller the loop depends on.
type Fetcher interface {
	Fetch(ctx context.Context, cur poller.Cursor, perPage int) (poller.Result, error)
}

// Loop drives the poll-store cycle. Exactly one Loop owns the cursor; the
// manual trigger hands work to the loop goroutine instead of fetching
// concurrently.
type Loop struct {
	fetcher      Fetcher
	store        store.Store
	logger       *slog.Logger
	minInterval  time.Duration
	maxInterval  time.Duration
	storeTimeout time.Duration

	// OnNewData, when set, is called from the loop goroutine after a cycle
	// that inserted at least one new record.
	OnNewData func(inserted int)

	trigger       chan int
	transientErrs atomic.Int64
}

// NewLoop creates a Loop. min and max bound the poll cadence; suggested
// intervals from upstream are clamped into [min, max].
func NewLoop(f Fetcher, s store.Store, logger *slog.Logger, minInterval, maxInterval, storeTimeout time.Duration) *Loop {
	return &Loop{
		fetcher:      f,
		store:        s,
		logger:       logger,
		minInterval:  minInterval,
		maxInterval:  maxInterval,
		storeTimeout: storeTimeout,
		trigger:      make(chan int, 1),
	}
}

// TriggerCollect requests a one-shot fetch outside the normal cadence.
// perPage overrides the page size for that fetch when positive. It reports
// false when a trigger is already pending.
func (l *Loop) TriggerCollect(perPage int) bool {
	select {
	case l.trigger <- perPage:
		return true
	default:
		return false
	}
}

// ConsecutiveTransientErrors reports how many fetches in a row have failed
// transiently. Tracked for observability only; it never stops the loop.
func (l *Loop) ConsecutiveTransientErrors() int64 {
	return l.transientErrs.Load()
}

// Run polls until ctx is cancelled. Cancellation is observed at iteration
// boundaries and during every sleep, never mid-fetch.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Starting ingestion loop",
		"min_interval", l.minInterval.String(), "max_interval", l.maxInterval.String())

	var cur poller.Cursor
	perPage := 0

	for {
		if ctx.Err() != nil {
			l.logger.Info("Ingestion loop shutting down", "reason", ctx.Err())
			return
		}

		var wait time.Duration
		var mandatory bool
		cur, wait, mandatory = l.runCycle(ctx, cur, perPage)
		perPage = 0

		if !l.sleep(ctx, wait, mandatory, &perPage) {
			l.logger.Info("Ingestion loop shutting down", "reason", ctx.Err())
			return
		}
	}
}

// sleep waits out the inter-iteration pause. A manual trigger cuts the wait
// short unless it is a mandatory rate-limit backoff, in which case the
// trigger is parked and honored once the reset has passed. Returns false on
// cancellation.
func (l *Loop) sleep(ctx context.Context, wait time.Duration, mandatory bool, perPage *int) bool {
	start := time.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case pp := <-l.trigger:
			*perPage = pp
			if !mandatory {
				l.logger.Info("Manual collection triggered")
				return true
			}
			// The backoff must run its course; the trigger fires after.
			l.logger.Info("Manual trigger parked until rate limit reset",
				"remaining", (wait - time.Since(start)).String())
		case <-timer.C:
			return true
		}
	}
}

// runCycle performs one fetch-store pass and returns the updated cursor,
// the sleep before the next pass, and whether that sleep is a mandatory
// rate-limit backoff.
func (l *Loop) runCycle(ctx context.Context, cur poller.Cursor, perPage int) (poller.Cursor, time.Duration, bool) {
	res, err := l.fetcher.Fetch(ctx, cur, perPage)

	switch res.Outcome {
	case poller.OutcomeTransientError:
		n := l.transientErrs.Add(1)
		l.logger.Warn("Transient fetch error", "error", err, "consecutive", n)
		return res.Cursor, l.clamp(res.Interval), false

	case poller.OutcomeRateLimited:
		l.transientErrs.Store(0)
		// The reset time is mandatory. Convert it to a duration once and
		// sleep on the monotonic clock rather than re-comparing wall clocks.
		wait := time.Until(res.ResetAt)
		if wait < l.minInterval {
			wait = l.minInterval
		}
		l.logger.Warn("Backing off until rate limit reset", "reset_at", res.ResetAt, "wait", wait.String())
		return res.Cursor, wait, true

	case poller.OutcomeNotModified:
		l.transientErrs.Store(0)
		l.logger.Debug("Feed not modified")
		return res.Cursor, l.clamp(res.Interval), false
	}

	l.transientErrs.Store(0)

	if len(res.Records) > 0 {
		storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
		inserted, err := l.store.StoreAll(storeCtx, res.Records)
		cancel()
		if err != nil {
			// Storage unreachable: hand back the pre-fetch cursor so the
			// next conditional request replays this batch instead of
			// getting a 304 past it. Idempotent inserts make the replay
			// safe.
			l.logger.Error("Failed to store fetched events", "error", err)
			return cur, l.clamp(res.Interval), false
		}

		l.logger.Info("Stored fetched events", "fetched", len(res.Records), "inserted", inserted)
		if inserted > 0 && l.OnNewData != nil {
			l.OnNewData(inserted)
		}
	}

	return res.Cursor, l.clamp(res.Interval), false
}

// clamp bounds an upstream-suggested interval to the configured band.
// A zero suggestion means the header was absent; fall back to the minimum.
func (l *Loop) clamp(suggested time.Duration) time.Duration {
	if suggested < l.minInterval {
		return l.minInterval
	}
	if suggested > l.maxInterval {
		return l.maxInterval
	}
	return suggested
}
