// Package pipeline orchestrates one harvest run: paged catalog search,
// per-item metadata, candidate selection, concurrent downloads, and the
// durable sidecar and store updates that make the run resumable.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/scanforge/scanforge/internal/catalog"
	"github.com/scanforge/scanforge/internal/checksum"
	"github.com/scanforge/scanforge/internal/download"
	"github.com/scanforge/scanforge/internal/metrics"
	"github.com/scanforge/scanforge/internal/progress"
	"github.com/scanforge/scanforge/internal/store"
)

// flushEvery bounds how much progress a crash can lose.
const flushEvery = 10

// failureThresholdPercent is the run-level failure budget. A run whose
// failed-file share exceeds this is reported unhealthy.
const failureThresholdPercent = 10.0

// Catalog is the slice of the catalog client the driver needs.
type Catalog interface {
	Search(ctx context.Context, query string, start, rows int, sort string) (catalog.SearchPage, error)
	ItemMetadata(ctx context.Context, identifier string) (*catalog.ItemMetadata, error)
	ItemURL(identifier string) string
}

// Store is the slice of the workflow store the driver needs.
type Store interface {
	UpsertItem(ctx context.Context, item store.Item) error
	UpsertPDFFile(ctx context.Context, f store.PDFFile) (int64, error)
}

// Selector picks which of an item's files to fetch.
type Selector interface {
	Select(files []catalog.FileInfo, allVariants bool) []catalog.FileInfo
}

// Fetcher downloads one chosen file.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string, file catalog.FileInfo) download.Result
}

// Config controls one harvest run.
type Config struct {
	Query         string
	Sort          string
	BatchSize     int
	StartFrom     int
	MaxItems      int // 0 means unbounded
	AllVariants   bool
	Subcollection string
	Concurrency   int
	RatePerSec    float64 // item pacing; 0 disables the limiter
}

// Summary reports one finished or interrupted run.
type Summary struct {
	Items      int
	Downloaded int
	Failed     int
	Skipped    int
}

// ExceedsFailureThreshold reports whether failures crossed the run budget.
func (s Summary) ExceedsFailureThreshold() bool {
	attempted := s.Downloaded + s.Failed
	if attempted == 0 {
		return false
	}
	return float64(s.Failed)/float64(attempted)*100 > failureThresholdPercent
}

// Driver walks the search results and drives each item through selection,
// download, and persistence. One Driver runs one harvest.
type Driver struct {
	catalog   Catalog
	store     Store
	selector  Selector
	fetcher   Fetcher
	tracker   *progress.Tracker
	checksums *checksum.Store
	limiter   *rate.Limiter
	cfg       Config
	logger    *zap.Logger
}

// New creates a Driver.
func New(cat Catalog, st Store, sel Selector, fetch Fetcher, tracker *progress.Tracker, checksums *checksum.Store, cfg Config, logger *zap.Logger) (*Driver, error) {
	if cat == nil || st == nil || sel == nil || fetch == nil {
		return nil, fmt.Errorf("catalog, store, selector, and fetcher are required")
	}
	if cfg.Query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Driver{
		catalog:   cat,
		store:     st,
		selector:  sel,
		fetcher:   fetch,
		tracker:   tracker,
		checksums: checksums,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run executes the harvest until the result set is exhausted, MaxItems is
// reached, or ctx is cancelled. Sidecars are flushed before returning, so a
// cancelled run loses at most the item in flight.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	defer d.flush()

	offset := d.cfg.StartFrom
	sinceFlush := 0

	for {
		page, err := d.catalog.Search(ctx, d.cfg.Query, offset, d.cfg.BatchSize, d.cfg.Sort)
		if err != nil {
			// A dead search endpoint ends the run; what was already
			// harvested stays durable.
			d.logger.Error("search failed, stopping run", zap.Int("offset", offset), zap.Error(err))
			return sum, fmt.Errorf("search page at offset %d: %w", offset, err)
		}
		if len(page.Docs) == 0 {
			break
		}
		d.logger.Info("search page",
			zap.Int("offset", offset),
			zap.Int("docs", len(page.Docs)),
			zap.Int("num_found", page.NumFound),
		)

		for _, doc := range page.Docs {
			if err := ctx.Err(); err != nil {
				d.logger.Warn("run cancelled", zap.Int("items", sum.Items))
				return sum, err
			}
			if d.cfg.MaxItems > 0 && sum.Items >= d.cfg.MaxItems {
				d.logger.Info("item cap reached", zap.Int("max_items", d.cfg.MaxItems))
				return sum, nil
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return sum, err
				}
			}

			d.processItem(ctx, doc, &sum)
			sum.Items++
			metrics.ObserveItem()

			sinceFlush++
			if sinceFlush >= flushEvery {
				d.flush()
				sinceFlush = 0
			}
		}

		offset += len(page.Docs)
		if offset >= page.NumFound {
			break
		}
	}

	d.logger.Info("harvest finished",
		zap.Int("items", sum.Items),
		zap.Int("downloaded", sum.Downloaded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// processItem runs one item end to end. All failure modes degrade to
// counters; nothing here aborts the run.
func (d *Driver) processItem(ctx context.Context, doc catalog.SearchDoc, sum *Summary) {
	if doc.Identifier == "" {
		d.logger.Warn("search doc without identifier, skipping")
		sum.Failed++
		d.countFailed(1)
		return
	}
	log := d.logger.With(zap.String("identifier", doc.Identifier))

	meta, err := d.catalog.ItemMetadata(ctx, doc.Identifier)
	if err != nil {
		log.Warn("metadata fetch failed", zap.Error(err))
		sum.Failed++
		d.countFailed(1)
		return
	}

	if err := d.store.UpsertItem(ctx, d.buildItem(doc.Identifier, meta)); err != nil {
		log.Warn("item upsert failed", zap.Error(err))
	}

	chosen := d.selector.Select(meta.Files, d.cfg.AllVariants)
	if len(chosen) == 0 {
		log.Info("no pdf candidates")
		sum.Skipped++
		d.countSkipped(1)
		return
	}

	results := d.fetchAll(ctx, doc.Identifier, chosen)
	for _, res := range results {
		d.recordResult(ctx, res, sum)
	}
}

// fetchAll downloads the chosen files with bounded concurrency. Workers only
// fetch; all bookkeeping happens on the driver goroutine afterwards.
func (d *Driver) fetchAll(ctx context.Context, identifier string, files []catalog.FileInfo) []download.Result {
	results := make([]download.Result, 0, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, file := range files {
		file := file
		g.Go(func() error {
			res := d.fetcher.Fetch(gctx, identifier, file)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// recordResult advances counters, sidecars, metrics, and the store for one
// fetch outcome. A download only counts as downloaded once its row is in
// the store: a file the store does not know about is invisible to every
// later stage, so a failed write demotes the outcome to failed.
func (d *Driver) recordResult(ctx context.Context, res download.Result, sum *Summary) {
	switch res.Outcome {
	case download.OutcomeDownloaded:
		if err := d.upsertFile(ctx, res, store.DownloadStatusDownloaded, true, nil); err != nil {
			d.logger.Error("pdf file upsert failed, counting download as failed",
				zap.String("file", res.Filename),
				zap.Error(err),
			)
			sum.Failed++
			d.countFailed(1)
			metrics.ObserveFile(download.OutcomeFailed.String(), 0)
			return
		}
		sum.Downloaded++
		if d.tracker != nil {
			d.tracker.AddDownloaded()
		}
		if d.checksums != nil && res.SHA256 != "" {
			d.checksums.Put(res.Filename, res.Identifier, res.SHA256, res.Size, time.Now())
		}
		metrics.ObserveFile(res.Outcome.String(), res.Size)

	case download.OutcomeSkipped:
		sum.Skipped++
		d.countSkipped(1)
		metrics.ObserveFile(res.Outcome.String(), 0)

	default:
		sum.Failed++
		d.countFailed(1)
		var msg *string
		if res.Err != nil {
			s := res.Err.Error()
			msg = &s
		}
		if err := d.upsertFile(ctx, res, store.DownloadStatusFailed, false, msg); err != nil {
			d.logger.Warn("failed-download upsert failed",
				zap.String("file", res.Filename),
				zap.Error(err),
			)
		}
		metrics.ObserveFile(res.Outcome.String(), 0)
	}
}

func (d *Driver) upsertFile(ctx context.Context, res download.Result, status string, valid bool, validationErr *string) error {
	var sub *string
	if d.cfg.Subcollection != "" {
		sub = &d.cfg.Subcollection
	}
	_, err := d.store.UpsertPDFFile(ctx, store.PDFFile{
		Identifier:      res.Identifier,
		Filename:        res.Filename,
		Filepath:        res.Path,
		Subcollection:   sub,
		SizeBytes:       res.Size,
		SHA256:          res.SHA256,
		DownloadStatus:  status,
		IsValid:         valid,
		ValidationError: validationErr,
		DownloadDate:    time.Now(),
	})
	return err
}

// buildItem flattens the metadata document into an Item row.
func (d *Driver) buildItem(identifier string, meta *catalog.ItemMetadata) store.Item {
	return store.Item{
		Identifier:   identifier,
		Title:        meta.Field("title"),
		Creator:      meta.Field("creator"),
		Publisher:    meta.Field("publisher"),
		Date:         meta.Field("date"),
		Year:         meta.YearField(),
		Language:     meta.Field("language"),
		Subject:      meta.Field("subject"),
		Collection:   meta.Field("collection"),
		Description:  meta.Field("description"),
		ItemURL:      d.catalog.ItemURL(identifier),
		MetadataJSON: meta.Raw,
		DownloadDate: time.Now(),
	}
}

func (d *Driver) countFailed(n int) {
	if d.tracker == nil {
		return
	}
	for i := 0; i < n; i++ {
		d.tracker.AddFailed()
	}
}

func (d *Driver) countSkipped(n int) {
	if d.tracker == nil {
		return
	}
	for i := 0; i < n; i++ {
		d.tracker.AddSkipped()
	}
}

// flush persists both sidecars, logging rather than failing; the store rows
// remain the source of truth.
func (d *Driver) flush() {
	if d.tracker != nil {
		if err := d.tracker.Flush(); err != nil {
			d.logger.Warn("progress flush failed", zap.Error(err))
		}
	}
	if d.checksums != nil {
		if err := d.checksums.Flush(); err != nil {
			d.logger.Warn("checksum flush failed", zap.Error(err))
		}
	}
}
