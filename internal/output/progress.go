package output

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/shardfeed/shardfeed/internal/metrics"
)

// ProgressReporter renders iteration progress as batches are delivered. The
// consumer calls Observe once per batch; rendering is throttled to a few
// updates per second so a fast pipeline does not flood the terminal.
type ProgressReporter struct {
	collector *metrics.Collector
	limiter   *rate.Limiter
	writer    io.Writer
	total     int
	epoch     int64
}

// NewProgressReporter creates a reporter over the collector's stats.
// total is the number of batches in one epoch, used for the x/y display.
func NewProgressReporter(collector *metrics.Collector, total int, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		limiter:   rate.NewLimiter(rate.Limit(4), 1),
		writer:    writer,
		total:     total,
	}
}

// SetEpoch records the epoch number shown on the progress line.
func (p *ProgressReporter) SetEpoch(epoch int64) { p.epoch = epoch }

// Observe is called once per delivered batch and renders at most a handful
// of updates per second.
func (p *ProgressReporter) Observe() {
	if !p.limiter.Allow() {
		return
	}
	p.render()
}

// Finish renders a final unthrottled progress line and terminates it.
func (p *ProgressReporter) Finish() {
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *ProgressReporter) render() {
	stats := p.collector.Stats(p.collector.Elapsed())
	line := fmt.Sprintf("\repoch %d | batch %d/%d | %d tokens | %.1f batches/s",
		p.epoch, stats.Delivered, p.total, stats.Tokens, stats.BatchesPerSec)
	if stats.Failures > 0 {
		line += fmt.Sprintf(" | %d failed", stats.Failures)
	}
	if stats.P99Latency > 0 {
		line += fmt.Sprintf(" | collate p99 %s", stats.P99Latency.Round(time.Microsecond))
	}
	fmt.Fprint(p.writer, line)
}
