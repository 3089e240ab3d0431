package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/policy/ratelimit"
	"github.com/jobkontakt/crawler/internal/progress"
)

// contactPaths are the page roles probed on a domain, in order. The root
// page is the empty path.
var contactPaths = []string{"", "impressum", "kontakt", "karriere"}

// DomainRunnerConfig parameterizes the retry drain loop.
type DomainRunnerConfig struct {
	RunnerID  string
	BatchSize int
	IdleDelay time.Duration
}

// DomainRunner drains the retry sub-queue: for each claimed domain it fetches
// the contact-relevant pages over plain HTTP, extracts emails and resolves
// the item. Failures re-queue with backoff via the store.
type DomainRunner struct {
	cfg       DomainRunnerConfig
	retries   core.RetryQueue
	fetcher   core.Fetcher
	extractor core.Extractor
	limiter   *ratelimit.Limiter
	clock     core.Clock
	emitter   progress.Emitter
	logger    *zap.Logger
}

// NewDomainRunner builds a DomainRunner. limiter and emitter are optional.
func NewDomainRunner(cfg DomainRunnerConfig, retries core.RetryQueue, fetcher core.Fetcher, extractor core.Extractor, limiter *ratelimit.Limiter, clock core.Clock, emitter progress.Emitter, logger *zap.Logger) (*DomainRunner, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry queue is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.RunnerID == "" {
		cfg.RunnerID = "domain-runner"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainRunner{
		cfg:       cfg,
		retries:   retries,
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		clock:     clock,
		emitter:   emitter,
		logger:    logger.With(zap.String("runner_id", cfg.RunnerID)),
	}, nil
}

// Run drains eligible items until the context ends, sleeping while the queue
// is empty.
func (r *DomainRunner) Run(ctx context.Context) error {
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := sleepCtx(ctx, r.cfg.IdleDelay); err != nil {
				return err
			}
		}
	}
}

// RunOnce claims and processes one batch, returning how many items it worked.
func (r *DomainRunner) RunOnce(ctx context.Context) (int, error) {
	items, err := r.retries.ClaimBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim retry batch: %w", err)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r.processDomain(ctx, item)
	}
	return len(items), nil
}

func (r *DomainRunner) processDomain(ctx context.Context, item core.RetryItem) {
	logger := r.logger.With(zap.String("domain", item.Domain), zap.Int("attempts", item.Attempts))

	extraction, probeErr := r.probe(ctx, item)
	success := extraction.Count > 0

	detail := ""
	switch {
	case success:
		detail = "emails: " + strings.Join(extraction.Emails, ", ")
	case probeErr != nil:
		detail = probeErr.Error()
	default:
		detail = "no emails on contact pages"
	}

	if err := r.retries.Resolve(ctx, item, success, detail); err != nil {
		logger.Error("resolve failed", zap.Error(err))
		return
	}

	outcome := "requeued"
	if success {
		outcome = "completed"
	}
	if r.emitter != nil {
		r.emitter.Emit(progress.Event{
			TS:       r.clock.Now().UTC(),
			WorkerID: r.cfg.RunnerID,
			Kind:     progress.KindRetryResolved,
			Employer: item.Domain,
			Outcome:  outcome,
			Note:     detail,
		})
	}
	logger.Info("domain processed",
		zap.Bool("success", success),
		zap.Int("emails", extraction.Count))
}

// probe walks the contact page roles until one yields emails. A page that is
// unreachable does not abort the walk; only all pages failing counts as a
// probe error.
func (r *DomainRunner) probe(ctx context.Context, item core.RetryItem) (core.ExtractionResult, error) {
	base := strings.TrimSuffix(item.URL, "/")
	if base == "" {
		base = "https://" + item.Domain
	}

	var lastErr error
	reached := false
	for _, path := range contactPaths {
		pageURL := base
		if path != "" {
			pageURL = base + "/" + path
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx, pageURL); err != nil {
				return core.ExtractionResult{}, err
			}
		}
		status, body, err := r.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 400 {
			lastErr = fmt.Errorf("status %d on %s", status, pageURL)
			continue
		}
		reached = true
		if extraction := r.extractor.ExtractEmails(string(body), item.Domain); extraction.Count > 0 {
			extraction.Website = base
			return extraction, nil
		}
	}
	if !reached && lastErr != nil {
		return core.ExtractionResult{}, fmt.Errorf("domain unreachable: %w", lastErr)
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ExtractionResult{}, ctx.Err()
	}
	return core.ExtractionResult{Website: base}, nil
}
