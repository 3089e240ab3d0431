package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobkontakt/crawler/internal/app"
	"github.com/jobkontakt/crawler/internal/clock/system"
	"github.com/jobkontakt/crawler/internal/extract"
	collyfetch "github.com/jobkontakt/crawler/internal/fetch/colly"
	"github.com/jobkontakt/crawler/internal/policy/ratelimit"
	"github.com/jobkontakt/crawler/internal/worker"
)

func newRetryCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Drain the domain retry sub-queue",
		Long: `Probes the contact pages of queued employer domains with a plain HTTP
client and resolves each item as completed or requeued with backoff.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRetry(cmd, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process one batch and exit")
	return cmd
}

func runRetry(cmd *cobra.Command, once bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer services.Close()
	cfg := services.Cfg

	fetcher := collyfetch.New(collyfetch.Config{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   time.Duration(cfg.Retry.FetchTimeoutSec) * time.Second,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Retry.DomainRatePerS,
		DefaultBurst: 1,
	})

	runner, err := worker.NewDomainRunner(
		worker.DomainRunnerConfig{BatchSize: cfg.Retry.BatchSize},
		services.Retries,
		fetcher,
		extract.New(),
		limiter,
		system.New(),
		nil,
		services.Logger.Named("retry"),
	)
	if err != nil {
		return fmt.Errorf("init retry runner: %w", err)
	}

	if once {
		n, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		services.Logger.Sugar().Infof("processed %d retry items", n)
		return nil
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
