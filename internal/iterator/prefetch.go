package iterator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// workItem is one batch position scheduled for collation.
type workItem struct {
	ordinal int
	indices []int
}

// result is one prefetch slot's payload, keyed by its traversal ordinal.
type result struct {
	ordinal int
	indices []int
	payload any
	err     error
}

type job struct {
	workItem
	out chan<- result
}

// prefetcher runs a fixed pool of workers that collate batches in parallel
// while preserving traversal order for the consumer.
//
// A dispatcher goroutine walks the traversal and, for each batch, enqueues a
// one-shot result channel into slots before handing the batch to a worker.
// The consumer receives slots in dispatch order, so payloads arrive in
// traversal order no matter which worker finishes first; out-of-order
// completions wait in their slot. The slots channel's capacity bounds the
// collated payloads in flight, which is what backpressures the dispatcher
// (and through the jobs channel, the workers) when the consumer falls
// behind.
type prefetcher struct {
	slots  chan chan result
	done   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newPrefetcher(parent context.Context, work []workItem, opt Options) *prefetcher {
	ctx, cancel := context.WithCancel(parent)
	p := &prefetcher{
		slots:  make(chan chan result, opt.BufferSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	jobs := make(chan job)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.slots)
		defer close(jobs)
		for _, w := range work {
			out := make(chan result, 1)
			select {
			case p.slots <- out:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- job{workItem: w, out: out}:
			case <-ctx.Done():
				return
			}
		}
	}()

	p.wg.Add(opt.NumWorkers)
	for i := 0; i < opt.NumWorkers; i++ {
		go func() {
			defer p.wg.Done()
			for j := range jobs {
				j.out <- collateOne(ctx, j.workItem, opt)
			}
		}()
	}

	return p
}

// stop cancels all workers, waits for them to acknowledge and discards any
// buffered results. Idempotent.
func (p *prefetcher) stop() {
	p.once.Do(func() {
		p.cancel()
		close(p.done)
		p.wg.Wait()
		for range p.slots {
		}
	})
}

func collateOne(ctx context.Context, w workItem, opt Options) result {
	var span trace.Span
	if opt.Tracer != nil {
		_, span = opt.Tracer.Start(ctx, fmt.Sprintf("collate batch %d", w.ordinal),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.Int("batch.size", len(w.indices))))
	}

	start := time.Now()
	payload, err := opt.Collator(ctx, w.indices)
	if opt.Metrics != nil {
		opt.Metrics.RecordCollation(time.Since(start), err)
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	return result{ordinal: w.ordinal, indices: w.indices, payload: payload, err: err}
}
