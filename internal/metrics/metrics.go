// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesTotal         *prometheus.CounterVec
	itemsProcessed     prometheus.Counter
	bytesDownloaded    prometheus.Counter
	ocrRecordsIngested prometheus.Counter
	exportsWritten     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		filesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanforge_files_total",
				Help: "File fetch outcomes, labeled by outcome (downloaded/failed/skipped).",
			},
			[]string{"outcome"},
		)
		itemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scanforge_items_processed_total",
			Help: "Catalog items processed by the harvest driver.",
		})
		bytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scanforge_bytes_downloaded_total",
			Help: "Total bytes of validated PDF downloads.",
		})
		ocrRecordsIngested = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scanforge_ocr_records_ingested_total",
			Help: "OCR result records ingested into the workflow store.",
		})
		exportsWritten = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scanforge_exports_written_total",
			Help: "Combined export artifacts written.",
		})
	})
}

// ObserveFile records one file fetch outcome.
func ObserveFile(outcome string, size int64) {
	if filesTotal == nil {
		return
	}
	filesTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		bytesDownloaded.Add(float64(size))
	}
}

// ObserveItem records one processed catalog item.
func ObserveItem() {
	if itemsProcessed != nil {
		itemsProcessed.Inc()
	}
}

// ObserveOCRIngest records ingested OCR records.
func ObserveOCRIngest(n int) {
	if ocrRecordsIngested != nil {
		ocrRecordsIngested.Add(float64(n))
	}
}

// ObserveExport records one written export.
func ObserveExport() {
	if exportsWritten != nil {
		exportsWritten.Inc()
	}
}
