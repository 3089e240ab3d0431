// Package worker contains the scheduler's run loops: the per-item worker,
// the domain retry runner and the budget-limited search runner.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/metrics"
	"github.com/jobkontakt/crawler/internal/progress"
)

// Mode selects how the worker loop terminates.
type Mode string

// Worker loop modes.
const (
	ModeBatch      Mode = "batch"
	ModeContinuous Mode = "continuous"
)

// Processor is the navigation capability the worker drives per item. The
// navigate.Machine implements it.
type Processor interface {
	Restore(ctx context.Context) error
	Process(ctx context.Context, target core.Target) core.NavigationOutcome
}

// Policy parameterizes one worker.
type Policy struct {
	Mode           Mode
	BatchSize      int
	InterItemDelay time.Duration
	IdleDelay      time.Duration
	ClaimWindow    int
	// ListingBaseURL prefixes job references to form the target URL.
	ListingBaseURL string
	// SearchFallback enqueues a metered search lookup when a ready page
	// yields no emails.
	SearchFallback bool
	// MinPagesPerSolve aborts the run when challenges recur faster than this
	// many pages apart; that pattern means the session is poisoned and every
	// further solve is wasted spend.
	MinPagesPerSolve int
}

func (p *Policy) applyDefaults() {
	if p.Mode == "" {
		p.Mode = ModeBatch
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	if p.IdleDelay <= 0 {
		p.IdleDelay = 30 * time.Second
	}
	if p.ClaimWindow <= 0 {
		p.ClaimWindow = 100
	}
	if p.MinPagesPerSolve <= 0 {
		p.MinPagesPerSolve = 15
	}
}

// ErrSessionPoisoned is returned when the challenge watchdog trips.
var ErrSessionPoisoned = errors.New("challenges recurring too frequently, session likely poisoned")

// Worker claims one unit at a time, runs the navigation machine, extracts and
// persists. One item's failure never aborts the loop; only storage-claim
// errors and the challenge watchdog do.
type Worker struct {
	id        string
	policy    Policy
	claims    core.ClaimStore
	results   core.ResultSink
	retries   core.RetryQueue
	searches  core.SearchQueue
	processor Processor
	extractor core.Extractor
	clock     core.Clock
	emitter   progress.Emitter
	logger    *zap.Logger
}

// Deps bundles the worker's collaborators.
type Deps struct {
	Claims    core.ClaimStore
	Results   core.ResultSink
	Retries   core.RetryQueue
	Searches  core.SearchQueue
	Processor Processor
	Extractor core.Extractor
	Clock     core.Clock
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// New builds a Worker. Retries, Searches and Emitter are optional; the
// related side effects are skipped when absent.
func New(id string, policy Policy, deps Deps) (*Worker, error) {
	if id == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if deps.Claims == nil || deps.Results == nil {
		return nil, fmt.Errorf("claim store and result sink are required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	policy.applyDefaults()
	return &Worker{
		id:        id,
		policy:    policy,
		claims:    deps.Claims,
		results:   deps.Results,
		retries:   deps.Retries,
		searches:  deps.Searches,
		processor: deps.Processor,
		extractor: deps.Extractor,
		clock:     deps.Clock,
		emitter:   deps.Emitter,
		logger:    deps.Logger.With(zap.String("worker_id", id)),
	}, nil
}

// Run executes the loop until the batch is done (batch mode), the context
// ends, or the claim store fails.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.processor.Restore(ctx); err != nil {
		w.logger.Warn("session restore failed, starting fresh", zap.Error(err))
	}

	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	processed := 0
	pagesSinceSolve := w.policy.MinPagesPerSolve

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claim, err := w.claims.ClaimNext(ctx, w.policy.ClaimWindow)
		if errors.Is(err, core.ErrNoWork) {
			w.emitClaim("empty")
			if w.policy.Mode == ModeBatch {
				w.logger.Info("backlog empty, batch done", zap.Int("processed", processed))
				return nil
			}
			if err := sleepCtx(ctx, w.policy.IdleDelay); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("claim next: %w", err)
		}
		w.emitClaim("claimed")

		solved := w.processItem(ctx, claim)
		if solved {
			if pagesSinceSolve < w.policy.MinPagesPerSolve {
				w.logger.Error("challenge watchdog tripped",
					zap.Int("pages_since_last_solve", pagesSinceSolve),
					zap.Int("min_pages", w.policy.MinPagesPerSolve))
				return ErrSessionPoisoned
			}
			pagesSinceSolve = 0
		} else {
			pagesSinceSolve++
		}

		processed++
		if w.policy.Mode == ModeBatch && processed >= w.policy.BatchSize {
			w.logger.Info("batch complete", zap.Int("processed", processed))
			return nil
		}
		if w.policy.InterItemDelay > 0 {
			if err := sleepCtx(ctx, w.policy.InterItemDelay); err != nil {
				return err
			}
		}
	}
}

// processItem runs one claimed unit end to end. It reports whether a
// challenge was solved for this item; every other error is contained here.
func (w *Worker) processItem(ctx context.Context, claim core.Claim) bool {
	logger := w.logger.With(
		zap.String("employer", claim.EmployerName),
		zap.String("reference", claim.JobReference))

	target := core.Target{
		URL:          w.targetURL(claim.JobReference),
		Reference:    claim.JobReference,
		EmployerName: claim.EmployerName,
	}

	start := w.clock.Now()
	outcome := w.processor.Process(ctx, target)
	elapsed := w.clock.Now().Sub(start)

	w.emit(progress.Event{
		TS:        w.clock.Now().UTC(),
		WorkerID:  w.id,
		Kind:      progress.KindNavigated,
		Employer:  claim.EmployerName,
		Reference: claim.JobReference,
		Outcome:   string(outcome.Status),
		Dur:       elapsed,
		Note:      outcome.Detail,
	})
	if outcome.ChallengeSolved {
		w.emit(progress.Event{
			TS:       w.clock.Now().UTC(),
			WorkerID: w.id,
			Kind:     progress.KindChallenge,
			Employer: claim.EmployerName,
			Outcome:  "solved",
		})
	}

	res := core.Result{
		EmployerID:   claim.EmployerID,
		EmployerName: claim.EmployerName,
		Reference:    claim.JobReference,
		Source:       "listing",
		DurationMs:   elapsed.Milliseconds(),
	}

	switch outcome.Status {
	case core.OutcomeReady:
		extraction := w.extractor.ExtractEmails(outcome.Content, claim.EmployerName)
		res.Extraction = extraction
		res.Success = extraction.Count > 0

		if outcome.RedirectDomain != "" {
			w.enqueueRedirect(ctx, outcome.RedirectDomain, logger)
		}
		if extraction.Count == 0 && w.policy.SearchFallback {
			w.enqueueSearch(ctx, claim, logger)
		}

	case core.OutcomeNotFound:
		res.ErrorText = "listing no longer active"
		if err := w.results.MarkInactive(ctx, claim.JobReference); err != nil {
			logger.Warn("mark inactive failed", zap.Error(err))
		}

	case core.OutcomeChallengeFailed:
		res.ErrorText = outcome.Detail
		w.emit(progress.Event{
			TS:       w.clock.Now().UTC(),
			WorkerID: w.id,
			Kind:     progress.KindChallenge,
			Employer: claim.EmployerName,
			Outcome:  "failed",
			Note:     outcome.Detail,
		})

	default:
		res.ErrorText = outcome.Detail
	}

	if err := w.results.SaveResult(ctx, res); err != nil {
		logger.Error("save result failed", zap.Error(err))
	} else {
		w.emit(progress.Event{
			TS:        w.clock.Now().UTC(),
			WorkerID:  w.id,
			Kind:      progress.KindSaved,
			Employer:  claim.EmployerName,
			Reference: claim.JobReference,
			Outcome:   outcomeLabel(res.Success),
		})
	}

	logger.Info("item processed",
		zap.String("status", string(outcome.Status)),
		zap.Int("emails", res.Extraction.Count),
		zap.Duration("duration", elapsed))
	return outcome.ChallengeSolved
}

func (w *Worker) enqueueRedirect(ctx context.Context, domain string, logger *zap.Logger) {
	if w.retries == nil {
		return
	}
	if err := w.retries.Enqueue(ctx, domain, "https://"+domain, "external_redirect"); err != nil {
		logger.Warn("retry enqueue failed", zap.String("domain", domain), zap.Error(err))
	}
}

func (w *Worker) enqueueSearch(ctx context.Context, claim core.Claim, logger *zap.Logger) {
	if w.searches == nil {
		return
	}
	item := core.SearchItem{
		EmployerName: claim.EmployerName,
		Reference:    claim.JobReference,
		PostalCode:   claim.PostalCode,
	}
	if err := w.searches.Enqueue(ctx, item); err != nil {
		logger.Warn("search enqueue failed", zap.Error(err))
	}
}

func (w *Worker) targetURL(reference string) string {
	base := strings.TrimSuffix(w.policy.ListingBaseURL, "/")
	if base == "" {
		return reference
	}
	return base + "/" + url.PathEscape(reference)
}

// emitClaim publishes the claim milestone; counters are the Prometheus
// sink's job so they are not double-counted here.
func (w *Worker) emitClaim(result string) {
	w.emit(progress.Event{
		TS:       w.clock.Now().UTC(),
		WorkerID: w.id,
		Kind:     progress.KindClaimed,
		Outcome:  result,
	})
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "no_emails"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
