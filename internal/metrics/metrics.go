// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "creditflow"

// Metrics holds the load collectors of one process.
type Metrics struct {
	// Counters
	RowsLoaded    *prometheus.CounterVec
	RowsRejected  *prometheus.CounterVec
	Batches       *prometheus.CounterVec
	BatchRetries  *prometheus.CounterVec
	QualityChecks *prometheus.CounterVec

	// Gauges
	RunOutcome    *prometheus.GaugeVec
	LastRunTime   prometheus.Gauge
	PortfolioNPA  prometheus.Gauge
	TotalExposure prometheus.Gauge

	// Histograms
	BatchDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RowsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows committed to the warehouse by entity",
		},
		[]string{"entity"},
	)

	m.RowsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows rejected before load by entity and reason",
		},
		[]string{"entity", "reason"},
	)

	m.Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches finished by entity and status",
		},
		[]string{"entity", "status"}, // "committed", "failed"
	)

	m.BatchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Transient failure retries by entity",
		},
		[]string{"entity"},
	)

	m.QualityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_checks_total",
			Help:      "Data quality checks by kind and result",
		},
		[]string{"kind", "result"},
	)

	m.RunOutcome = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_outcome",
			Help:      "1 for the outcome of the last run, 0 for the others",
		},
		[]string{"outcome"},
	)

	m.LastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_finished_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})

	m.PortfolioNPA = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_npa_ratio",
		Help:      "Share of loans that are non-performing",
	})

	m.TotalExposure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_exposure_total",
		Help:      "Sum of outstanding loan balances",
	})

	m.BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time per batch including retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"entity"},
	)

	m.registry.MustRegister(
		m.RowsLoaded, m.RowsRejected, m.Batches, m.BatchRetries, m.QualityChecks,
		m.RunOutcome, m.LastRunTime, m.PortfolioNPA, m.TotalExposure, m.BatchDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBatch records one finished batch.
func (m *Metrics) ObserveBatch(entity model.Entity, res model.BatchResult, elapsed time.Duration) {
	e := string(entity)
	status := "committed"
	if res.Failed {
		status = "failed"
	}
	m.Batches.WithLabelValues(e, status).Inc()
	m.RowsLoaded.WithLabelValues(e).Add(float64(res.Loaded))
	if res.Retries > 0 {
		m.BatchRetries.WithLabelValues(e).Add(float64(res.Retries))
	}
	m.BatchDuration.WithLabelValues(e).Observe(elapsed.Seconds())
}

// ObserveRun records the rejections, audit and outcome of a finished run.
func (m *Metrics) ObserveRun(s *model.RunSummary) {
	for entity, byReason := range s.Rejections {
		for reason, n := range byReason {
			m.RowsRejected.WithLabelValues(string(entity), reason).Add(float64(n))
		}
	}

	if s.Quality != nil {
		for _, c := range s.Quality.Checks {
			result := "passed"
			if !c.Passed {
				result = "failed"
			}
			m.QualityChecks.WithLabelValues(c.Kind, result).Inc()
		}
	}

	if s.Portfolio != nil {
		m.PortfolioNPA.Set(s.Portfolio.NPARatio)
		m.TotalExposure.Set(s.Portfolio.TotalExposure)
	}

	for _, o := range []model.Outcome{model.OutcomeSuccessful, model.OutcomeDegraded, model.OutcomeFailed} {
		v := 0.0
		if o == s.Outcome {
			v = 1
		}
		m.RunOutcome.WithLabelValues(string(o)).Set(v)
	}
	if !s.FinishedAt.IsZero() {
		m.LastRunTime.Set(float64(s.FinishedAt.Unix()))
	}
}

// WriteTextfile writes every collector in the Prometheus text format, for
// pickup by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
