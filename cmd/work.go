package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/app"
	"github.com/jobkontakt/crawler/internal/browser"
	"github.com/jobkontakt/crawler/internal/challenge"
	"github.com/jobkontakt/crawler/internal/clock/system"
	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/extract"
	"github.com/jobkontakt/crawler/internal/navigate"
	"github.com/jobkontakt/crawler/internal/progress"
	"github.com/jobkontakt/crawler/internal/progress/sinks"
	"github.com/jobkontakt/crawler/internal/session"
	"github.com/jobkontakt/crawler/internal/worker"
)

func newWorkCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run employer worker loops against the shared backlog",
		Long: `Claims employers from the backlog, loads their listings in a headless
browser and extracts contact emails. Several loops can run in one process;
each keeps its own browser session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWork(cmd, workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 1, "number of concurrent worker loops")
	return cmd
}

func runWork(cmd *cobra.Command, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer services.Close()
	cfg := services.Cfg
	logger := services.Logger

	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		sinks.NewPrometheusSink(),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	}()

	sessions, err := session.New(session.Config{BaseDir: cfg.Session.BaseDir})
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}

	var solver core.ChallengeSolver
	if cfg.Solver.APIKey != "" {
		s, err := challenge.New(challenge.Config{
			APIKey:        cfg.Solver.APIKey,
			BaseURL:       cfg.Solver.BaseURL,
			Warmup:        time.Duration(cfg.Solver.WarmupSec) * time.Second,
			PollInterval:  time.Duration(cfg.Solver.PollSec) * time.Second,
			MaxPolls:      cfg.Solver.MaxPolls,
			SubmitTimeout: time.Duration(cfg.Solver.SubmitTimeout) * time.Second,
		}, nil, logger.Named("solver"))
		if err != nil {
			return fmt.Errorf("init challenge solver: %w", err)
		}
		solver = s
	} else {
		logger.Warn("no solver API key configured, challenge pages will fail")
	}

	policy := worker.Policy{
		Mode:             worker.Mode(cfg.Worker.Mode),
		BatchSize:        cfg.Worker.BatchSize,
		InterItemDelay:   time.Duration(cfg.Worker.InterItemDelaySec) * time.Second,
		IdleDelay:        time.Duration(cfg.Worker.IdleDelaySec) * time.Second,
		ClaimWindow:      cfg.Worker.ClaimWindow,
		ListingBaseURL:   cfg.Worker.ListingBaseURL,
		SearchFallback:   cfg.Worker.KeywordFallback,
		MinPagesPerSolve: cfg.Worker.MinPagesPerSolve,
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		// Stable IDs keep session state and consent markers reusable
		// across restarts.
		workerID := fmt.Sprintf("worker-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runOneWorker(ctx, workerID, policy, solver, sessions, hub, services); err != nil {
				errs <- fmt.Errorf("%s: %w", workerID, err)
				stop()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func runOneWorker(ctx context.Context, workerID string, policy worker.Policy, solver core.ChallengeSolver, sessions core.SessionStore, hub *progress.Hub, services *app.App) error {
	cfg := services.Cfg
	logger := services.Logger.Named("worker").With(zap.String("worker_id", workerID))

	br, err := browser.New(browser.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		OperationTimeout:  time.Duration(cfg.Browser.OpTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init browser: %w", err)
	}
	defer br.Close()

	machine, err := navigate.New(navigate.Config{WorkerID: workerID}, br, solver, sessions, logger)
	if err != nil {
		return fmt.Errorf("init navigation: %w", err)
	}

	w, err := worker.New(workerID, policy, worker.Deps{
		Claims:    services.Claims,
		Results:   services.Results,
		Retries:   services.Retries,
		Searches:  services.Searches,
		Processor: machine,
		Extractor: extract.New(),
		Clock:     system.New(),
		Emitter:   hub,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	err = w.Run(ctx)
	if errors.Is(err, worker.ErrSessionPoisoned) {
		logger.Error("worker stopped, browser session is poisoned")
	}
	return err
}
