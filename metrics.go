package splatgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// promsplat package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordRender is called after each render pass.
	RecordRender(duration time.Duration, err error)

	// RecordRefine is called after each refinement pass with the pass's
	// structural mutation counts.
	RecordRefine(split, duplicated, culled int, duration time.Duration, err error)

	// RecordGrowth is called after each incremental growth operation.
	// added is the number of points appended.
	RecordGrowth(added int, duration time.Duration, err error)

	// RecordQuery is called after each relevancy ladder scan.
	RecordQuery(phrases int, duration time.Duration, err error)

	// RecordSnapshot is called after each checkpoint save or load.
	// bytes is the encoded snapshot size (0 on error).
	RecordSnapshot(bytes int, duration time.Duration, err error)

	// RecordPopulation is called whenever the population changes.
	RecordPopulation(n int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRender(time.Duration, error)                {}
func (NoopMetricsCollector) RecordRefine(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordGrowth(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordSnapshot(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordPopulation(int)                             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RenderCount      atomic.Int64
	RenderErrors     atomic.Int64
	RenderTotalNanos atomic.Int64

	RefineCount      atomic.Int64
	RefineErrors     atomic.Int64
	RefineTotalNanos atomic.Int64
	SplitTotal       atomic.Int64
	DuplicatedTotal  atomic.Int64
	CulledTotal      atomic.Int64

	GrowthCount  atomic.Int64
	GrowthErrors atomic.Int64
	GrownTotal   atomic.Int64

	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64

	SnapshotCount  atomic.Int64
	SnapshotErrors atomic.Int64
	SnapshotBytes  atomic.Int64

	Population atomic.Int64
}

// RecordRender implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRender(duration time.Duration, err error) {
	b.RenderCount.Add(1)
	b.RenderTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RenderErrors.Add(1)
	}
}

// RecordRefine implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefine(split, duplicated, culled int, duration time.Duration, err error) {
	b.RefineCount.Add(1)
	b.RefineTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RefineErrors.Add(1)
		return
	}
	b.SplitTotal.Add(int64(split))
	b.DuplicatedTotal.Add(int64(duplicated))
	b.CulledTotal.Add(int64(culled))
}

// RecordGrowth implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrowth(added int, duration time.Duration, err error) {
	b.GrowthCount.Add(1)
	if err != nil {
		b.GrowthErrors.Add(1)
		return
	}
	b.GrownTotal.Add(int64(added))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(phrases int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(int64(bytes))
}

// RecordPopulation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPopulation(n int) {
	b.Population.Store(int64(n))
}
