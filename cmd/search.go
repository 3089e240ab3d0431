package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobkontakt/crawler/internal/app"
	"github.com/jobkontakt/crawler/internal/clock/system"
	"github.com/jobkontakt/crawler/internal/search"
	"github.com/jobkontakt/crawler/internal/worker"
)

func newSearchCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Drain the budget-limited search sub-queue",
		Long: `Looks up employers without a known website through the metered search
API. The daily budget gates claiming; when it is exhausted the runner
pauses instead of spending further.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process one batch and exit")
	return cmd
}

func runSearch(cmd *cobra.Command, once bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer services.Close()
	cfg := services.Cfg

	searcher, err := search.New(search.Config{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
	}, nil, services.Logger.Named("search"))
	if err != nil {
		return fmt.Errorf("init search client: %w", err)
	}

	runner, err := worker.NewSearchRunner(
		worker.SearchRunnerConfig{
			BatchSize:  cfg.Search.BatchSize,
			BuildQuery: search.BuildQuery,
		},
		services.Searches,
		searcher,
		system.New(),
		nil,
		services.Logger.Named("search"),
	)
	if err != nil {
		return fmt.Errorf("init search runner: %w", err)
	}

	if once {
		n, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		services.Logger.Sugar().Infof("processed %d lookups", n)
		return nil
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
