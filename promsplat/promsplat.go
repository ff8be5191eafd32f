// Package promsplat implements splatgo.MetricsCollector on Prometheus.
//
// Pass a Collector to splatgo.WithMetricsCollector and expose the registry
// with promhttp:
//
//	collector := promsplat.NewCollector()
//	model, _ := splatgo.New(ras, splatgo.WithMetricsCollector(collector))
//	http.Handle("/metrics", promhttp.Handler())
package promsplat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options configures collector registration.
type Options struct {
	// Namespace prefixes every metric name.
	Namespace string

	// Registerer receives the collector's metrics. Defaults to the
	// process-global prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// DefaultOptions returns the default collector configuration.
func DefaultOptions() Options {
	return Options{
		Namespace:  "splatgo",
		Registerer: prometheus.DefaultRegisterer,
	}
}

// Collector exports model operation metrics to Prometheus. All methods are
// safe for concurrent use.
type Collector struct {
	opLatency *prometheus.HistogramVec
	opErrors  *prometheus.CounterVec

	splits     prometheus.Counter
	duplicates prometheus.Counter
	culls      prometheus.Counter
	grown      prometheus.Counter

	queryPhrases  prometheus.Counter
	snapshotBytes prometheus.Counter

	population prometheus.Gauge
}

// NewCollector creates and registers a Collector. It panics when a metric
// name collides with one already registered, matching MustRegister.
func NewCollector(optFns ...func(*Options)) *Collector {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of model operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "operation_errors_total",
			Help:      "Failed model operations.",
		}, []string{"op"}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "points_split_total",
			Help:      "Split parents superseded by children.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "points_duplicated_total",
			Help:      "Points cloned by densification.",
		}),
		culls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "points_culled_total",
			Help:      "Points removed by refinement passes.",
		}),
		grown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "points_grown_total",
			Help:      "Points appended by incremental growth.",
		}),
		queryPhrases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "query_phrases_total",
			Help:      "Phrases evaluated by relevancy scans.",
		}),
		snapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "snapshot_bytes_total",
			Help:      "Encoded checkpoint bytes moved.",
		}),
		population: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "population",
			Help:      "Current point population.",
		}),
	}

	opts.Registerer.MustRegister(
		c.opLatency, c.opErrors,
		c.splits, c.duplicates, c.culls, c.grown,
		c.queryPhrases, c.snapshotBytes, c.population,
	)
	return c
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.opErrors.WithLabelValues(op).Inc()
	}
}

// RecordRender implements splatgo.MetricsCollector.
func (c *Collector) RecordRender(d time.Duration, err error) {
	c.observe("render", d, err)
}

// RecordRefine implements splatgo.MetricsCollector.
func (c *Collector) RecordRefine(split, duplicated, culled int, d time.Duration, err error) {
	c.observe("refine", d, err)
	if err != nil {
		return
	}
	c.splits.Add(float64(split))
	c.duplicates.Add(float64(duplicated))
	c.culls.Add(float64(culled))
}

// RecordGrowth implements splatgo.MetricsCollector.
func (c *Collector) RecordGrowth(added int, d time.Duration, err error) {
	c.observe("growth", d, err)
	if err == nil {
		c.grown.Add(float64(added))
	}
}

// RecordQuery implements splatgo.MetricsCollector.
func (c *Collector) RecordQuery(phrases int, d time.Duration, err error) {
	c.observe("query", d, err)
	if err == nil {
		c.queryPhrases.Add(float64(phrases))
	}
}

// RecordSnapshot implements splatgo.MetricsCollector.
func (c *Collector) RecordSnapshot(bytes int, d time.Duration, err error) {
	c.observe("snapshot", d, err)
	if err == nil {
		c.snapshotBytes.Add(float64(bytes))
	}
}

// RecordPopulation implements splatgo.MetricsCollector.
func (c *Collector) RecordPopulation(n int) {
	c.population.Set(float64(n))
}
