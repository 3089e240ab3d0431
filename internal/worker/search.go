package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/metrics"
	"github.com/jobkontakt/crawler/internal/progress"
)

// SearchRunnerConfig parameterizes the search drain loop.
type SearchRunnerConfig struct {
	RunnerID  string
	BatchSize int
	IdleDelay time.Duration
	// PauseDelay is how long to wait after the daily budget closes the gate.
	PauseDelay time.Duration
	// BuildQuery renders the spend-log form of a lookup. The search client's
	// canonical builder is injected here; a plain fallback is used otherwise.
	BuildQuery func(name, postalCode string) string
}

// SearchRunner drains the budget-limited search sub-queue. An exhausted
// budget is a pause signal, not an empty queue: the runner sleeps out the
// gate instead of spinning on it.
type SearchRunner struct {
	cfg      SearchRunnerConfig
	queue    core.SearchQueue
	searcher core.Searcher
	clock    core.Clock
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewSearchRunner builds a SearchRunner.
func NewSearchRunner(cfg SearchRunnerConfig, queue core.SearchQueue, searcher core.Searcher, clock core.Clock, emitter progress.Emitter, logger *zap.Logger) (*SearchRunner, error) {
	if queue == nil {
		return nil, fmt.Errorf("search queue is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.RunnerID == "" {
		cfg.RunnerID = "search-runner"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Minute
	}
	if cfg.PauseDelay <= 0 {
		cfg.PauseDelay = time.Hour
	}
	if cfg.BuildQuery == nil {
		cfg.BuildQuery = func(name, postalCode string) string {
			if postalCode == "" {
				return fmt.Sprintf("%q", name)
			}
			return fmt.Sprintf("%q %s", name, postalCode)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchRunner{
		cfg:      cfg,
		queue:    queue,
		searcher: searcher,
		clock:    clock,
		emitter:  emitter,
		logger:   logger.With(zap.String("runner_id", cfg.RunnerID)),
	}, nil
}

// Run drains the queue until the context ends, idling when empty and pausing
// when the budget gate is closed.
func (r *SearchRunner) Run(ctx context.Context) error {
	for {
		n, err := r.RunOnce(ctx)
		switch {
		case errors.Is(err, core.ErrBudgetExhausted):
			r.logger.Warn("daily search budget exhausted, pausing",
				zap.Duration("pause", r.cfg.PauseDelay))
			if err := sleepCtx(ctx, r.cfg.PauseDelay); err != nil {
				return err
			}
		case err != nil:
			return err
		case n == 0:
			if err := sleepCtx(ctx, r.cfg.IdleDelay); err != nil {
				return err
			}
		}
	}
}

// RunOnce claims and processes one batch. It surfaces core.ErrBudgetExhausted
// unchanged so the caller can distinguish "paused" from "empty".
func (r *SearchRunner) RunOnce(ctx context.Context) (int, error) {
	if usage, err := r.queue.Usage(ctx); err == nil {
		metrics.SetSearchCost(usage.Cost)
		if usage.Warning && usage.CanContinue {
			r.logger.Warn("search spend nearing daily cap",
				zap.Float64("cost", usage.Cost),
				zap.Float64("remaining", usage.Remaining))
		}
	}

	items, err := r.queue.ClaimBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		if errors.Is(err, core.ErrBudgetExhausted) {
			return 0, core.ErrBudgetExhausted
		}
		return 0, fmt.Errorf("claim search batch: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r.processLookup(ctx, item)
	}
	return len(items), nil
}

func (r *SearchRunner) processLookup(ctx context.Context, item core.SearchItem) {
	logger := r.logger.With(zap.String("employer", item.EmployerName))

	// The query is logged before the result is known; spend accrues on issue,
	// not on success.
	query := r.cfg.BuildQuery(item.EmployerName, item.PostalCode)
	if err := r.queue.RecordQuery(ctx, query); err != nil {
		logger.Error("record query failed", zap.Error(err))
	}

	result, err := r.searcher.Search(ctx, item.EmployerName, item.PostalCode)

	success := err == nil && result.Found
	detail := ""
	switch {
	case err != nil:
		detail = err.Error()
	case result.Found:
		detail = result.Website
	default:
		detail = "no results"
	}
	if markErr := r.queue.MarkProcessed(ctx, item.ID, success, detail); markErr != nil {
		logger.Error("mark processed failed", zap.Error(markErr))
	}

	if r.emitter != nil {
		outcome := "failed"
		if success {
			outcome = "found"
		} else if err == nil {
			outcome = "no_results"
		}
		r.emitter.Emit(progress.Event{
			TS:       r.clock.Now().UTC(),
			WorkerID: r.cfg.RunnerID,
			Kind:     progress.KindSearch,
			Employer: item.EmployerName,
			Outcome:  outcome,
			Note:     detail,
		})
	}
	logger.Info("lookup processed", zap.Bool("success", success))
}
