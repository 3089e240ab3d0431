package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/progress"
)

// fakeClaims hands out a fixed set of claims exactly once, under any number
// of concurrent callers.
type fakeClaims struct {
	mu      sync.Mutex
	pending []core.Claim
	claimed []core.Claim
	err     error
}

func (f *fakeClaims) ClaimNext(_ context.Context, _ int) (core.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return core.Claim{}, f.err
	}
	if len(f.pending) == 0 {
		return core.Claim{}, core.ErrNoWork
	}
	claim := f.pending[0]
	f.pending = f.pending[1:]
	f.claimed = append(f.claimed, claim)
	return claim, nil
}

func (f *fakeClaims) Requeue(_ context.Context, _ int64) error { return nil }

type fakeResults struct {
	mu       sync.Mutex
	saved    []core.Result
	inactive []string
	saveErr  error
}

func (f *fakeResults) SaveResult(_ context.Context, res core.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, res)
	return nil
}

func (f *fakeResults) MarkInactive(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactive = append(f.inactive, reference)
	return nil
}

func (f *fakeResults) results() []core.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Result(nil), f.saved...)
}

type fakeRetries struct {
	mu       sync.Mutex
	enqueued []core.RetryItem
	batch    []core.RetryItem
	resolved []resolution
}

type resolution struct {
	item    core.RetryItem
	success bool
	detail  string
}

func (f *fakeRetries) Enqueue(_ context.Context, domain, url, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, core.RetryItem{Domain: domain, URL: url, Category: category})
	return nil
}

func (f *fakeRetries) ClaimBatch(_ context.Context, n int) ([]core.RetryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batch) == 0 {
		return nil, nil
	}
	if n > len(f.batch) {
		n = len(f.batch)
	}
	items := f.batch[:n]
	f.batch = f.batch[n:]
	return items, nil
}

func (f *fakeRetries) Resolve(_ context.Context, item core.RetryItem, success bool, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, resolution{item: item, success: success, detail: detail})
	return nil
}

type fakeSearchQueue struct {
	mu        sync.Mutex
	enqueued  []core.SearchItem
	batch     []core.SearchItem
	usage     core.SearchUsage
	exhausted bool
	recorded  []string
	processed []processedLookup
}

type processedLookup struct {
	id      int64
	success bool
	detail  string
}

func (f *fakeSearchQueue) Enqueue(_ context.Context, item core.SearchItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, item)
	return nil
}

func (f *fakeSearchQueue) ClaimBatch(_ context.Context, n int) ([]core.SearchItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exhausted {
		return nil, core.ErrBudgetExhausted
	}
	if len(f.batch) == 0 {
		return nil, nil
	}
	if n > len(f.batch) {
		n = len(f.batch)
	}
	items := f.batch[:n]
	f.batch = f.batch[n:]
	return items, nil
}

func (f *fakeSearchQueue) Usage(_ context.Context) (core.SearchUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, nil
}

func (f *fakeSearchQueue) MarkProcessed(_ context.Context, id int64, success bool, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, processedLookup{id: id, success: success, detail: detail})
	return nil
}

func (f *fakeSearchQueue) RecordQuery(_ context.Context, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, query)
	return nil
}

// fakeProcessor scripts a NavigationOutcome per reference, with a default.
type fakeProcessor struct {
	mu        sync.Mutex
	outcomes  map[string]core.NavigationOutcome
	fallback  core.NavigationOutcome
	processed []core.Target
}

func (f *fakeProcessor) Restore(_ context.Context) error { return nil }

func (f *fakeProcessor) Process(_ context.Context, target core.Target) core.NavigationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, target)
	if outcome, ok := f.outcomes[target.Reference]; ok {
		return outcome
	}
	return f.fallback
}

// fakeExtractor finds any "@"-containing token it was configured with.
type fakeExtractor struct {
	byContent map[string]core.ExtractionResult
}

func (f *fakeExtractor) ExtractEmails(html, _ string) core.ExtractionResult {
	if res, ok := f.byContent[html]; ok {
		return res
	}
	return core.ExtractionResult{}
}

func (f *fakeExtractor) NormalizeCompanyName(name string) string { return name }
func (f *fakeExtractor) SimilarityScore(_, _ string) float64     { return 0 }

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) byKind(kind progress.Kind) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

// fakeFetcher serves canned pages by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fetchedPage
	urls  []string
}

type fetchedPage struct {
	status int
	body   string
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	page, ok := f.pages[url]
	if !ok {
		return 404, nil, nil
	}
	if page.err != nil {
		return 0, nil, page.err
	}
	return page.status, []byte(page.body), nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]core.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, name, _ string) (core.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, name)
	if f.err != nil {
		return core.SearchResult{}, f.err
	}
	return f.results[name], nil
}
