package bcache

import (
	"sync/atomic"
	"time"
)

// Op names a cache operation in logs and metrics.
type Op string

const (
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpRelease Op = "release"
	OpPin     Op = "pin"
	OpUnpin   Op = "unpin"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    hits      prometheus.Counter
//	    transfers *prometheus.HistogramVec
//	}
//
//	func (p *PrometheusCollector) RecordHit() {
//	    p.hits.Inc()
//	}
type MetricsCollector interface {
	// RecordHit is called when a lookup finds its block already cached.
	RecordHit()

	// RecordMiss is called when a lookup claims a buffer for its block.
	RecordMiss()

	// RecordTransfer is called after each device transfer.
	// op is OpRead or OpWrite, bytes the block size, err nil on success.
	RecordTransfer(op Op, bytes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHit()                                  {}
func (NoopMetricsCollector) RecordMiss()                                 {}
func (NoopMetricsCollector) RecordTransfer(Op, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits            atomic.Int64
	Misses          atomic.Int64
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadBytes       atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteBytes      atomic.Int64
	WriteTotalNanos atomic.Int64
}

// RecordHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHit() {
	b.Hits.Add(1)
}

// RecordMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMiss() {
	b.Misses.Add(1)
}

// RecordTransfer implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransfer(op Op, bytes int, duration time.Duration, err error) {
	switch op {
	case OpRead:
		b.ReadCount.Add(1)
		b.ReadTotalNanos.Add(duration.Nanoseconds())
		if err != nil {
			b.ReadErrors.Add(1)
		} else {
			b.ReadBytes.Add(int64(bytes))
		}
	case OpWrite:
		b.WriteCount.Add(1)
		b.WriteTotalNanos.Add(duration.Nanoseconds())
		if err != nil {
			b.WriteErrors.Add(1)
		} else {
			b.WriteBytes.Add(int64(bytes))
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:          b.Hits.Load(),
		Misses:        b.Misses.Load(),
		ReadCount:     b.ReadCount.Load(),
		ReadErrors:    b.ReadErrors.Load(),
		ReadBytes:     b.ReadBytes.Load(),
		ReadAvgNanos:  avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:    b.WriteCount.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		WriteBytes:    b.WriteBytes.Load(),
		WriteAvgNanos: avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
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
	Hits          int64
	Misses        int64
	ReadCount     int64
	ReadErrors    int64
	ReadBytes     int64
	ReadAvgNanos  int64
	WriteCount    int64
	WriteErrors   int64
	WriteBytes    int64
	WriteAvgNanos int64
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
