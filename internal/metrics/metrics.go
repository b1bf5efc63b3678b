// Package metrics exposes Prometheus instrumentation for registry imports.
//
// Collectors are registered once by Init. Every helper is a no-op until then,
// so the import pipeline can be exercised in tests and CLI runs without a
// registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "registry_import_"

// Row outcomes used as the "outcome" label of rows_total.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeFiltered = "filtered"
)

var (
	registerOnce sync.Once
	registry     *prometheus.Registry

	jobsStarted   *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	rowsTotal     *prometheus.CounterVec
	batchLatency  *prometheus.HistogramVec
	checkpoints   prometheus.Counter
	jobsReaped    prometheus.Counter
	prospectsSeen *prometheus.CounterVec
)

// Init registers the import collectors. activeImports, when non-nil, backs a
// gauge with the number of imports currently running in this process.
func Init(activeImports func() float64) {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()

		jobsStarted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "jobs_started_total",
				Help: "Total import jobs started by mode",
			},
			[]string{"mode"},
		)
		jobsFinished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "jobs_finished_total",
				Help: "Total import jobs finished by mode and terminal status",
			},
			[]string{"mode", "status"},
		)
		jobDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "job_duration_seconds",
				Help:    "Wall time of import jobs in seconds",
				Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
			},
			[]string{"mode", "status"},
		)
		rowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_total",
				Help: "Total source rows processed by outcome",
			},
			[]string{"outcome"},
		)
		batchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_latency_seconds",
				Help:    "Batch write latency in seconds by write strategy",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"strategy"},
		)
		checkpoints = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "checkpoints_total",
				Help: "Total job checkpoints written",
			},
		)
		jobsReaped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "jobs_reaped_total",
				Help: "Total running jobs marked abandoned after their heartbeat expired",
			},
		)
		prospectsSeen = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "prospects_total",
				Help: "Registry records selected or claimed as prospects",
			},
			[]string{"result"},
		)

		registry.MustRegister(
			jobsStarted,
			jobsFinished,
			jobDuration,
			rowsTotal,
			batchLatency,
			checkpoints,
			jobsReaped,
			prospectsSeen,
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)

		if activeImports != nil {
			registry.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: metricPrefix + "active_jobs",
					Help: "Imports currently running in this process",
				},
				activeImports,
			))
		}
	})
}

// Handler returns the scrape handler for the import collectors.
// Before Init it serves the default registry.
func Handler() http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncJobStarted counts a started import.
func IncJobStarted(mode string) {
	if jobsStarted != nil {
		jobsStarted.WithLabelValues(mode).Inc()
	}
}

// ObserveJobFinished records the terminal status and duration of an import.
func ObserveJobFinished(mode, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if jobsFinished != nil {
		jobsFinished.WithLabelValues(mode, status).Inc()
	}
	if jobDuration != nil {
		jobDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	}
}

// AddRows adds n rows with the given outcome.
func AddRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	if rowsTotal != nil {
		rowsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveBatch records the latency of one batch write.
func ObserveBatch(strategy string, duration time.Duration) {
	if batchLatency != nil {
		batchLatency.WithLabelValues(strategy).Observe(duration.Seconds())
	}
}

// IncCheckpoint counts a persisted checkpoint.
func IncCheckpoint() {
	if checkpoints != nil {
		checkpoints.Inc()
	}
}

// AddJobsReaped counts jobs marked abandoned by the reaper.
func AddJobsReaped(n int64) {
	if n <= 0 {
		return
	}
	if jobsReaped != nil {
		jobsReaped.Add(float64(n))
	}
}

// AddProspects counts prospect candidates; result is "selected" or "claimed".
func AddProspects(result string, n int) {
	if n <= 0 {
		return
	}
	if prospectsSeen != nil {
		prospectsSeen.WithLabelValues(result).Add(float64(n))
	}
}
