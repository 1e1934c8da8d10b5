package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for harvest runs.
var (
	harvestWindowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_windows_total",
		Help: "Identifier-window queries by kind (full, probe, open_probe) and result (records, empty, error)",
	}, []string{"kind", "result"})

	harvestGapJumpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_gap_jumps_total",
		Help: "Cursor relocations past identifier gaps",
	})

	harvestGapJumpWidth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_gap_jump_width",
		Help:    "Identifiers skipped per gap jump",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	})

	harvestRecordsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_records_emitted_total",
		Help: "Records emitted by harvest streams",
	})

	harvestRecordsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_records_dropped_total",
		Help: "Records discarded because their identifier was outside the window or not increasing",
	})

	harvestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_runs_total",
		Help: "Finished harvest streams by outcome (exhausted, total_count, error)",
	}, []string{"outcome"})
)
