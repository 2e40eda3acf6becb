package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/api"
	"github.com/scanforge/scanforge/internal/candidate"
	"github.com/scanforge/scanforge/internal/catalog"
	"github.com/scanforge/scanforge/internal/checksum"
	"github.com/scanforge/scanforge/internal/download"
	"github.com/scanforge/scanforge/internal/metrics"
	"github.com/scanforge/scanforge/internal/pipeline"
	"github.com/scanforge/scanforge/internal/progress"
	"github.com/scanforge/scanforge/internal/store"
)

// Sidecar filenames inside the download directory.
const (
	progressFile = "download_progress.json"
	checksumFile = "file_checksums.json"
)

type harvestFlags struct {
	query       string
	maxItems    int
	startFrom   int
	allVariants bool
	downloadDir string
	subcol      string
	serve       bool
}

func newHarvestCmd() *cobra.Command {
	var flags harvestFlags
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Search the catalog and download matching PDFs",
		Long: `Walks the configured catalog search in pages, selects the best PDF
variant(s) for each item, downloads them with validation and retries, and
records every item and file in the workflow database. Interrupting the run
flushes progress so a rerun resumes where it left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.query, "query", "", "override the configured search query")
	cmd.Flags().IntVar(&flags.maxItems, "max-items", 0, "stop after this many items (0 = unbounded)")
	cmd.Flags().IntVar(&flags.startFrom, "start-from", 0, "search result offset to resume from")
	cmd.Flags().BoolVar(&flags.allVariants, "all-variants", false, "download every deduplicated PDF variant, not just the best")
	cmd.Flags().StringVar(&flags.downloadDir, "download-dir", "", "override the configured download directory")
	cmd.Flags().StringVar(&flags.subcol, "subcollection", "", "subcollection label recorded on downloaded files")
	cmd.Flags().BoolVar(&flags.serve, "serve", false, "serve /healthz, /progress, and /metrics during the run")

	return cmd
}

func runHarvest(parent context.Context, flags harvestFlags) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	dir := cfg.Download.Dir
	if flags.downloadDir != "" {
		dir = flags.downloadDir
	}
	subcol := cfg.Download.Subcollection
	if flags.subcol != "" {
		subcol = flags.subcol
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := catalog.New(catalog.Config{
		BaseURL:    cfg.Catalog.BaseURL,
		UserAgent:  cfg.Catalog.UserAgent,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.Download.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize catalog client: %w", err)
	}

	fetcher, err := download.New(client, download.Config{
		Dir:        dir,
		MaxRetries: cfg.Download.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, logger)
	if err != nil {
		return err
	}

	tracker, err := progress.Load(filepath.Join(dir, progressFile))
	if err != nil {
		return err
	}
	checksums, err := checksum.Load(filepath.Join(dir, checksumFile))
	if err != nil {
		return err
	}

	query := catalog.QuerySpec{
		Override:    firstNonEmpty(flags.query, cfg.Catalog.Query),
		Collections: cfg.Catalog.Collections,
		Subject:     cfg.Catalog.Subject,
		StartYear:   cfg.Catalog.StartYear,
		EndYear:     cfg.Catalog.EndYear,
	}.Build()

	driver, err := pipeline.New(client, st, candidate.New(dir, logger), fetcher, tracker, checksums, pipeline.Config{
		Query:         query,
		Sort:          cfg.Catalog.SortOrder,
		BatchSize:     cfg.Catalog.BatchSize,
		StartFrom:     flags.startFrom,
		MaxItems:      flags.maxItems,
		AllVariants:   flags.allVariants || cfg.Download.AllVariants,
		Subcollection: subcol,
		Concurrency:   cfg.Download.Concurrency,
		RatePerSec:    cfg.Catalog.RequestsPerSec,
	}, logger)
	if err != nil {
		return err
	}

	if flags.serve || cfg.Server.Enabled {
		srv := api.New(cfg.Server.Port, tracker, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting harvest", zap.String("query", query), zap.String("dir", dir))
	sum, err := driver.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("harvest interrupted; progress flushed",
			zap.Int("items", sum.Items),
			zap.Int("downloaded", sum.Downloaded),
		)
	}

	if sum.ExceedsFailureThreshold() {
		return fmt.Errorf("failure rate too high: %d failed of %d attempted",
			sum.Failed, sum.Downloaded+sum.Failed)
	}
	return nil
}

// openStore connects to Postgres and ensures the schema exists.
func openStore(ctx context.Context) (*store.PostgresStore, error) {
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn must be configured (SCANFORGE_DB_DSN)")
	}
	st, err := store.NewPostgres(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxOpenConns,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// optionalString maps an empty flag to a nil filter.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
