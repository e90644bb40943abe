package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfactlab/article-harvester/internal/dedup"
	"github.com/openfactlab/article-harvester/internal/extract"
	"github.com/openfactlab/article-harvester/internal/harvest"
	"github.com/openfactlab/article-harvester/internal/logging"
)

func newOffsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offset",
		Short: "Harvest a listing paginated by numbered offset pages",
		Long: `Walks numbered listing pages built from offset.page_url, stopping at the
configured end page, on a page that renders with an error, or on the first
page that yields no cards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, harvest.ModeOffset)
		},
	}
}

func newScrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scroll",
		Short: "Harvest a single infinite-scroll listing",
		Long: `Renders scroll.start_url once, then repeatedly activates the load-more
control until the in-page sentinel appears, the control disappears, or the
round safety cap is reached.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, harvest.ModeScroll)
		},
	}
}

// runHarvest wires the collaborators and drives one run. Errors returned
// here make the process exit non-zero; a gracefully exhausted crawl is a
// normal zero-exit completion.
func runHarvest(cmd *cobra.Command, mode harvest.Mode) error {
	cfg, err := harvest.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(mode); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger = logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("mode", string(mode)),
		zap.String("publisher", cfg.Run.Publisher),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	sink, err := harvest.OpenSink(cfg.Output.Dir, cfg.Output.Stem, cfg.Output.BOM, logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer sink.Close() //nolint:errcheck

	var store harvest.DedupStore
	if cfg.Dedup.StorePath != "" {
		boltStore, err := dedup.Open(cfg.Dedup.StorePath)
		if err != nil {
			return fmt.Errorf("open dedup store: %w", err)
		}
		defer boltStore.Close() //nolint:errcheck
		store = boltStore
	}

	listRenderer, detailRenderer, closeRenderers, err := buildRenderers(cfg, mode, logger)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer closeRenderers(ctx)

	worker := harvest.NewFetchWorker(
		detailRenderer,
		extract.New(cfg.Extract),
		cfg.Run.Publisher,
		cfg.Run.Label,
		logger,
	)
	dispatcher := harvest.NewDispatcher(worker, cfg.Fetch.Concurrency, harvest.DelayPolicy{
		Base:   cfg.Fetch.DelayBase(),
		Jitter: cfg.Fetch.DelayJitter(),
	}, logger)

	var total int
	switch mode {
	case harvest.ModeOffset:
		pager := harvest.NewOffsetPager(
			cfg.Offset.PageURL,
			cfg.Offset.StartPage,
			cfg.Offset.EndPage,
			cfg.Offset.CrossPageDedup,
			cfg.Cards,
			listRenderer,
			dispatcher,
			sink,
			store,
			logger,
		)
		total, err = pager.Run(ctx)
	case harvest.ModeScroll:
		loader := harvest.NewIncrementalLoader(
			cfg.Scroll.StartURL,
			cfg.Scroll.LoadMore,
			cfg.Scroll.Sentinel,
			cfg.Scroll.Poll(),
			cfg.Scroll.Settle(),
			cfg.Scroll.MaxRounds,
			cfg.Cards,
			listRenderer,
			dispatcher,
			sink,
			store,
			logger,
		)
		total, err = loader.Run(ctx)
	}
	if err != nil {
		logger.Error("run aborted", zap.Error(err))
		return err
	}

	logger.Info("harvest complete", zap.Int("records_persisted", total))
	fmt.Fprintf(cmd.OutOrStdout(), "persisted %d records\n", total)
	return nil
}

// buildRenderers picks the renderer implementations for listing and detail
// pages. Scroll mode needs a live DOM for the listing, so it always gets the
// chromedp renderer there regardless of fetch.renderer.
func buildRenderers(cfg harvest.Config, mode harvest.Mode, logger *zap.Logger) (list, detail harvest.Renderer, closeAll func(context.Context), err error) {
	opts := harvest.RendererOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		NavTimeout:  cfg.Fetch.NavTimeout(),
		MaxSessions: cfg.Fetch.Concurrency + 1,
		DomainQPS:   cfg.Fetch.DomainQPS,
	}

	var chrome *harvest.ChromedpRenderer
	if mode == harvest.ModeScroll || cfg.Fetch.Renderer == "chromedp" {
		chrome, err = harvest.NewChromedpRenderer(opts, logger)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if cfg.Fetch.Renderer == "chromedp" {
		detail = chrome
	} else {
		detail, err = harvest.NewHTTPRenderer(opts, logger)
		if err != nil {
			if chrome != nil {
				chrome.Close(context.Background()) //nolint:errcheck
			}
			return nil, nil, nil, err
		}
	}

	list = detail
	if mode == harvest.ModeScroll {
		list = chrome
	}

	closeAll = func(ctx context.Context) {
		if chrome != nil {
			if cerr := chrome.Close(ctx); cerr != nil {
				logger.Warn("close renderer", zap.Error(cerr))
			}
		}
		if detail != chrome && detail != nil {
			if cerr := detail.Close(ctx); cerr != nil {
				logger.Warn("close renderer", zap.Error(cerr))
			}
		}
	}
	return list, detail, closeAll, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
