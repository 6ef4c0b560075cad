package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pwieczorek/newsrelay/internal/extract"
	"github.com/pwieczorek/newsrelay/internal/fetch"
	"github.com/pwieczorek/newsrelay/internal/ops"
	"github.com/pwieczorek/newsrelay/internal/ratelimit"
	"github.com/pwieczorek/newsrelay/internal/scheduler"
)

// newCollectCmd creates the 'collect' subcommand: the discovery side of the
// pipeline, crawling category pages and publishing article drafts.
func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Crawls the source site and publishes discovered articles to the queue",
		Long: `Runs discovery passes over the configured category tree. Each pass
fetches category pages, follows article links, extracts drafts, and publishes
them to the queue for ingestion.`,
		RunE: runCollectCommand,
	}
}

func runCollectCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	collector, err := buildCollector(appInstance)
	if err != nil {
		return err
	}

	return runServices(cmd.Context(), appInstance, collector.Run)
}

func buildCollector(a App) (*scheduler.Collector, error) {
	cfg := a.GetConfig()

	limiter, err := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.Crawler.MaxConcurrentFetches,
		PerHostRPS:    cfg.Crawler.PerHostRPS,
		PerHostBurst:  cfg.Crawler.PerHostBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	extractor, err := extract.New(cfg.Source.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	fetcher := fetch.NewColly(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.Timeout,
	})

	categories := make([]scheduler.Category, 0, len(cfg.Source.Categories))
	for _, c := range cfg.Source.Categories {
		categories = append(categories, scheduler.Category{Path: c.Path, Name: c.Name})
	}

	return scheduler.New(fetcher, limiter, extractor, a.GetPublisher(), scheduler.Config{
		BaseURL:          cfg.Source.BaseURL,
		Categories:       categories,
		Workers:          cfg.Crawler.Workers,
		PollInterval:     cfg.Crawler.PollInterval,
		FreshnessWindow:  cfg.Crawler.FreshnessWindow,
		PerCategoryLimit: cfg.Crawler.PerCategoryLimit,
		Retry:            cfg.Crawler.Retry.Policy(),
	}, a.GetLogger())
}

// runServices runs the given long-lived services plus the ops HTTP server
// until a signal arrives or one of them fails.
func runServices(ctx context.Context, a App, services ...func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ops.New(a.GetConfig().Ops.Port, a.GetLogger()).Run(gctx)
	})
	for _, svc := range services {
		svc := svc
		g.Go(func() error { return svc(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.GetLogger().Info("Shutdown complete.")
	return nil
}
