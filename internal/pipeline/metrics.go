package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grana_import_records_extracted_total",
		Help: "Line items returned by the extraction model.",
	})
	recordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grana_import_records_dropped_total",
		Help: "Line items dropped before commit, by reason.",
	}, []string{"reason"})
	entriesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grana_import_entries_committed_total",
		Help: "Ledger entries written by successful imports.",
	})
	importsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grana_imports_duplicate_total",
		Help: "Imports rejected because the invoice fingerprint already existed.",
	})
	importsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grana_imports_rate_limited_total",
		Help: "Imports rejected by the sliding rate window.",
	})
)
