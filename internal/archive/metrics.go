package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	archivedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codedeck",
		Subsystem: "archive",
		Name:      "events_total",
		Help:      "Total raw events archived, by engine.",
	}, []string{"engine"})

	archiveFlushDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codedeck",
		Subsystem: "archive",
		Name:      "flush_duration_seconds",
		Help:      "Batch flush duration to DuckDB in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)
