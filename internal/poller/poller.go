// internal/poller/poller.go
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github-events-monitor/internal/model"
)

const apiVersion = "2022-11-28"

// Cursor carries the conditional-request validators from the most recent
// successful fetch. The zero value means "no validators yet".
type Cursor struct {
	ETag         string
	LastModified string
}

// Outcome classifies the result of a single fetch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotModified
	OutcomeRateLimited
	OutcomeTransientError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Fetch call.
type Result struct {
	Records []model.EventRecord
	Cursor  Cursor
	// Interval is the upstream-suggested poll interval (X-Poll-Interval),
	// zero when the header was absent. Callers clamp it to their own band.
	Interval time.Duration
	Outcome  Outcome
	// ResetAt is the rate-limit reset time, set only for OutcomeRateLimited.
	ResetAt time.Time
}

// Poller fetches the public events feed with conditional GET semantics.
type Poller struct {
	httpClient *http.Client
	feedURL    string
	perPage    int
	allowed    map[string]struct{}
	logger     *slog.Logger
}

// NewPoller creates and configures a new Poller instance.
// An empty token means unauthenticated requests (lower rate limit).
func NewPoller(feedURL, token string, eventTypes []string, perPage int, logger *slog.Logger) *Poller {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = 30 * time.Second
	}

	allowed := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		allowed[t] = struct{}{}
	}

	return &Poller{
		httpClient: httpClient,
		feedURL:    feedURL,
		perPage:    perPage,
		allowed:    allowed,
		logger:     logger,
	}
}

// Fetch performs one conditional GET against the feed. perPage overrides the
// configured page size when positive. The returned error is non-nil only for
// OutcomeTransientError; the cursor is never invalidated on failure.
func (p *Poller) Fetch(ctx context.Context, cur Cursor, perPage int) (Result, error) {
	if perPage <= 0 {
		perPage = p.perPage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return Result{Cursor: cur, Outcome: OutcomeTransientError}, err
	}
	q := req.URL.Query()
	q.Set("per_page", strconv.Itoa(perPage))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if cur.ETag != "" {
		req.Header.Set("If-None-Match", cur.ETag)
	}
	if cur.LastModified != "" {
		req.Header.Set("If-Modified-Since", cur.LastModified)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{Cursor: cur, Outcome: OutcomeTransientError}, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	interval := pollInterval(resp)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Result{Cursor: cur, Interval: interval, Outcome: OutcomeNotModified}, nil

	case resp.StatusCode == http.StatusTooManyRequests || isRateLimited(resp):
		resetAt := rateLimitReset(resp)
		p.logger.Warn("Feed rate limited", "status", resp.StatusCode, "reset_at", resetAt)
		return Result{Cursor: cur, Interval: interval, Outcome: OutcomeRateLimited, ResetAt: resetAt}, nil

	case resp.StatusCode != http.StatusOK:
		return Result{Cursor: cur, Interval: interval, Outcome: OutcomeTransientError},
			fmt.Errorf("feed returned unexpected status %d", resp.StatusCode)
	}

	var events []*github.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return Result{Cursor: cur, Interval: interval, Outcome: OutcomeTransientError},
			fmt.Errorf("failed to decode feed body: %w", err)
	}

	// Validators from the response replace the old ones; when the server
	// omits one, the previous value is kept rather than cleared.
	newCur := cur
	if etag := resp.Header.Get("ETag"); etag != "" {
		newCur.ETag = etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		newCur.LastModified = lm
	}

	records := p.filterEvents(events)
	p.logger.Debug("Fetched feed page", "received", len(events), "kept", len(records))

	return Result{Records: records, Cursor: newCur, Interval: interval, Outcome: OutcomeSuccess}, nil
}

// filterEvents translates feed entries to the internal model, keeping only
// allow-listed types. A malformed entry is dropped on its own; it never
// fails the batch.
func (p *Poller) filterEvents(events []*github.Event) []model.EventRecord {
	var records []model.EventRecord
	for _, e := range events {
		rec, ok := p.toEventRecord(e)
		if !ok {
			continue
		}
		if _, allowed := p.allowed[rec.EventType]; !allowed {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// toEventRecord translates one feed entry to the internal model, rejecting
// entries with missing identity fields.
func (p *Poller) toEventRecord(e *github.Event) (model.EventRecord, bool) {
	if e == nil {
		return model.EventRecord{}, false
	}
	id := e.GetID()
	typ := e.GetType()
	repo := e.GetRepo().GetName()
	createdAt := e.GetCreatedAt().Time

	if id == "" || typ == "" || repo == "" || createdAt.IsZero() {
		p.logger.Debug("Dropping malformed feed entry", "id", id, "type", typ, "repo", repo)
		return model.EventRecord{}, false
	}

	var payload map[string]any
	if e.RawPayload != nil {
		if err := json.Unmarshal(*e.RawPayload, &payload); err != nil {
			p.logger.Debug("Feed entry payload is not an object, storing empty payload", "id", id, "error", err)
			payload = nil
		}
	}

	return model.EventRecord{
		ID:        id,
		RepoName:  repo,
		EventType: typ,
		CreatedAt: createdAt.UTC(),
		Payload:   payload,
	}, true
}

func pollInterval(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("X-Poll-Interval"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// isRateLimited catches the secondary form: 403 with an exhausted quota.
func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func rateLimitReset(resp *http.Response) time.Time {
	unix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
