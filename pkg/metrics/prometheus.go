package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scansStarted   prometheus.Counter
	scansFinished  *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
	scanProgress   prometheus.Gauge
	fetchErrors    *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	symbolsScanned prometheus.Counter
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		scansStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "squeezescan_scans_started_total",
				Help: "Total number of scans started",
			},
		),
		scansFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squeezescan_scans_finished_total",
				Help: "Total number of scans finished, by terminal status",
			},
			[]string{"status"},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "squeezescan_scan_duration_seconds",
				Help:    "Duration of full scan runs in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"status"},
		),
		scanProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "squeezescan_scan_progress",
				Help: "Progress of the running scan (0-100)",
			},
		),
		fetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squeezescan_fetch_errors_total",
				Help: "Total number of provider fetch errors, by kind",
			},
			[]string{"kind"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squeezescan_cache_hits_total",
				Help: "Total number of market cache hits, by kind",
			},
			[]string{"kind"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squeezescan_cache_misses_total",
				Help: "Total number of market cache misses, by kind",
			},
			[]string{"kind"},
		),
		symbolsScanned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "squeezescan_symbols_scanned_total",
				Help: "Total number of symbols run through the indicator engine",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "squeezescan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScanStarted records a scan start.
func (r *Recorder) RecordScanStarted() {
	r.scansStarted.Inc()
}

// RecordScanFinished records a terminal scan transition and its duration.
func (r *Recorder) RecordScanFinished(status string, seconds float64) {
	r.scansFinished.WithLabelValues(status).Inc()
	r.scanDuration.WithLabelValues(status).Observe(seconds)
}

// RecordScanProgress records the running scan's progress.
func (r *Recorder) RecordScanProgress(progress int) {
	r.scanProgress.Set(float64(progress))
}

// RecordFetchError records a provider fetch error.
func (r *Recorder) RecordFetchError(kind string) {
	r.fetchErrors.WithLabelValues(kind).Inc()
}

// RecordCacheHit records a market cache hit.
func (r *Recorder) RecordCacheHit(kind string) {
	r.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a market cache miss.
func (r *Recorder) RecordCacheMiss(kind string) {
	r.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordSymbolsScanned records symbols evaluated by the indicator engine.
func (r *Recorder) RecordSymbolsScanned(n int) {
	r.symbolsScanned.Add(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
