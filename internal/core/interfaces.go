package core

import (
	"context"
	"time"
)

// ClaimStore atomically reserves work units from the shared backlog. Under
// any number of concurrent callers each unit is returned to exactly one of
// them; losers get ErrNoWork, never a duplicate claim.
type ClaimStore interface {
	// ClaimNext reserves the next eligible unit, flipping its attempted flag
	// and reading the representative job in one atomic statement. The window
	// bounds how many candidates the selection scans.
	ClaimNext(ctx context.Context, window int) (Claim, error)

	// Requeue clears the attempted flag so a unit becomes claimable again.
	// This is the explicit administrative re-queue path; nothing calls it
	// automatically.
	Requeue(ctx context.Context, employerID int64) error
}

// ResultSink persists per-item outcomes. SaveResult is an idempotent upsert
// keyed by the job reference.
type ResultSink interface {
	SaveResult(ctx context.Context, res Result) error

	// MarkInactive flags the underlying listing as gone after a not-found
	// outcome so later backlog population skips it.
	MarkInactive(ctx context.Context, reference string) error
}

// RetryQueue tracks failed domain lookups and feeds them back through the
// batch claim primitive once their backoff interval has elapsed.
type RetryQueue interface {
	// Enqueue inserts a domain, ignored if it is already tracked.
	Enqueue(ctx context.Context, domain, url, category string) error

	// ClaimBatch reserves up to n eligible items, each transitioning
	// queued -> processing. Items in processing are invisible to other
	// claimers until resolved.
	ClaimBatch(ctx context.Context, n int) ([]RetryItem, error)

	// Resolve finishes a claimed item: success is terminal, failure re-queues
	// it with capped exponential backoff.
	Resolve(ctx context.Context, item RetryItem, success bool, detail string) error
}

// SearchQueue is the budget-limited sub-queue in front of the metered search
// API. ClaimBatch returns nothing once the daily spend cap is reached.
type SearchQueue interface {
	Enqueue(ctx context.Context, item SearchItem) error
	ClaimBatch(ctx context.Context, n int) ([]SearchItem, error)
	Usage(ctx context.Context) (SearchUsage, error)
	MarkProcessed(ctx context.Context, id int64, success bool, detail string) error

	// RecordQuery appends one issued query to the dated spend log.
	RecordQuery(ctx context.Context, query string) error
}

// Browser is the automation capability consumed by the navigation state
// machine. Implementations must bound every operation with the supplied
// context; the state machine treats a timeout like any other failure.
type Browser interface {
	Goto(ctx context.Context, url string) (PageInfo, error)
	Evaluate(ctx context.Context, script string, out any) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// ChallengeSolver turns a challenge image into its textual solution. Any
// error is terminal for the item; resubmission of a fresh image is the
// caller's decision, never the solver's.
type ChallengeSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// SessionStore is a capability-scoped key-value store for per-worker browser
// session state. Blobs are opaque to the scheduler.
type SessionStore interface {
	Load(workerID string) (blob []byte, found bool, err error)
	Save(workerID string, blob []byte) error

	// Handled reports whether consent has already been probed for this
	// worker's session; MarkHandled records it so later items never re-probe.
	Handled(workerID string) bool
	MarkHandled(workerID string) error
}

// Extractor bundles the pure heuristic functions the scheduler consumes but
// does not implement.
type Extractor interface {
	ExtractEmails(html, companyNameHint string) ExtractionResult
	NormalizeCompanyName(name string) string
	SimilarityScore(a, b string) float64
}

// Searcher is the metered external search capability.
type Searcher interface {
	Search(ctx context.Context, name, postalCode string) (SearchResult, error)
}

// Fetcher retrieves a page over plain HTTP, used for domain-level lookups
// where no browser session is required.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (status int, body []byte, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
