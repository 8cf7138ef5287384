// Package metrics records per-batch pipeline metrics: collation latency,
// delivery counts and failure breakdowns.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records per-batch metrics in a thread-safe manner. Prefetch
// workers record collation latencies concurrently; the consumer thread
// records deliveries.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	collated     int64
	delivered    int64
	failures     int64
	tokens       int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	start        time.Time
}

// Stats represents aggregated pipeline metrics.
type Stats struct {
	Collated     int64         `json:"collated"`
	Delivered    int64         `json:"delivered"`
	Failures     int64         `json:"failures"`
	Tokens       int64         `json:"tokens"`
	MinLatency   time.Duration `json:"-"`
	MaxLatency   time.Duration `json:"-"`
	MeanLatency  time.Duration `json:"-"`
	P50Latency   time.Duration `json:"-"`
	P90Latency   time.Duration `json:"-"`
	P99Latency   time.Duration `json:"-"`
	Duration     time.Duration `json:"-"`
	BatchesPerSec float64      `json:"batches_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms"`
	DurationMs    float64        `json:"duration_ms"`
	Errors        map[string]int `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

// RecordCollation records one collation attempt's latency and error state.
func (c *Collector) RecordCollation(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err == nil {
		c.collated++
	} else {
		c.failures++
		errorType := fmt.Sprintf("%T", err)
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		c.errorsByType[errorType]++
	}
}

// RecordDelivery records one in-order batch handed to the consumer.
func (c *Collector) RecordDelivery(tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered++
	c.tokens += int64(tokens)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Collated:   c.collated,
		Delivered:  c.delivered,
		Failures:   c.failures,
		Tokens:     c.tokens,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	attempts := c.collated + c.failures
	if attempts > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / attempts)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = float64(stats.MinLatency) / float64(time.Millisecond)
	stats.MaxLatencyMs = float64(stats.MaxLatency) / float64(time.Millisecond)
	stats.MeanLatencyMs = float64(stats.MeanLatency) / float64(time.Millisecond)
	stats.P50LatencyMs = float64(stats.P50Latency) / float64(time.Millisecond)
	stats.P90LatencyMs = float64(stats.P90Latency) / float64(time.Millisecond)
	stats.P99LatencyMs = float64(stats.P99Latency) / float64(time.Millisecond)

	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && c.delivered > 0 {
		stats.BatchesPerSec = float64(c.delivered) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.start)
}

// ErrorBreakdown returns a map of error types to their counts.
func (c *Collector) ErrorBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByType {
		result[k] = int(v)
	}
	return result
}
