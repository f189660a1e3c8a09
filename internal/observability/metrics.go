package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// drift-correction pipeline.
type Metrics struct {
	ReadingsProcessed prometheus.Counter
	ReadingsFlagged   prometheus.Counter
	SensorsSkipped    prometheus.Counter
	UnmatchedReadings prometheus.Counter

	BaselineSegments *prometheus.CounterVec // label: strategy={rolling_min,step_fill,lowess}
	CorrectedRows    prometheus.Counter

	FloodStatusesPersisted prometheus.Counter
	AlertsSent             prometheus.Counter
	AlertSkips             prometheus.Counter // place not registered
	AlertFailures          prometheus.Counter

	RunsTotal      *prometheus.CounterVec // label: outcome={ok,error}
	RunDuration    prometheus.Histogram
	PipelineActive prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsProcessed,
		m.ReadingsFlagged,
		m.SensorsSkipped,
		m.UnmatchedReadings,
		m.BaselineSegments,
		m.CorrectedRows,
		m.FloodStatusesPersisted,
		m.AlertsSent,
		m.AlertSkips,
		m.AlertFailures,
		m.RunsTotal,
		m.RunDuration,
		m.PipelineActive,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "readings_processed_total",
			Help:      "Total readings fetched for processing, including lookback context.",
		}),
		ReadingsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "readings_flagged_total",
			Help:      "Total readings excluded by the rate-of-change quality filter.",
		}),
		SensorsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "sensors_skipped_total",
			Help:      "Sensors excluded from a run for missing survey data.",
		}),
		UnmatchedReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "unmatched_readings_total",
			Help:      "Readings that predate every survey for their sensor.",
		}),
		BaselineSegments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "baseline_segments_total",
			Help:      "Baseline segments estimated, by smoothing strategy.",
		}, []string{"strategy"}),
		CorrectedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "corrected_rows_total",
			Help:      "Drift-corrected rows written to the display store.",
		}),
		FloodStatusesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "flood_statuses_persisted_total",
			Help:      "Flood status rows appended across runs.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "alerts_sent_total",
			Help:      "Flood alerts delivered.",
		}),
		AlertSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "alert_skips_total",
			Help:      "Alerts skipped because the place has no registered recipients.",
		}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "alert_failures_total",
			Help:      "Alert deliveries that failed and will be retried next run.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_etl",
			Name:      "runs_total",
			Help:      "Batch runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete batch run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PipelineActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flood_etl",
			Name:      "pipeline_active",
			Help:      "1 while a batch run is in progress.",
		}),
	}
}
