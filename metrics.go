package atree

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert, with the number of live graph
	// nodes afterwards.
	RecordInsert(duration time.Duration, nodes int, err error)
	// RecordDelete is called after each delete with the number of live graph
	// nodes afterwards.  found is false when the id didn't exist.
	RecordDelete(duration time.Duration, found bool, nodes int)
	// RecordSearch is called after each search with the number of matched
	// subscriptions.
	RecordSearch(duration time.Duration, matches int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, int, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, bool, int)  {}
func (NoopMetricsCollector) RecordSearch(time.Duration, int, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	Nodes            atomic.Int64
	DeleteCount      atomic.Int64
	DeleteMisses     atomic.Int64
	DeleteTotalNanos atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	SearchMatches    atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, nodes int, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
		return
	}
	b.Nodes.Store(int64(nodes))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, found bool, nodes int) {
	b.DeleteCount.Add(1)
	b.DeleteTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.DeleteMisses.Add(1)
		return
	}
	b.Nodes.Store(int64(nodes))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, matches int, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
		return
	}
	b.SearchMatches.Add(int64(matches))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		Nodes:          b.Nodes.Load(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteMisses:   b.DeleteMisses.Load(),
		DeleteAvgNanos: avg(b.DeleteTotalNanos.Load(), b.DeleteCount.Load()),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		SearchMatches:  b.SearchMatches.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount    int64
	InsertErrors   int64
	InsertAvgNanos int64
	// Nodes is the number of live graph nodes after the last successful
	// insert or delete.
	Nodes          int64
	DeleteCount    int64
	DeleteMisses   int64
	DeleteAvgNanos int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	SearchMatches  int64
}
