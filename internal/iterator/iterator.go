// Package iterator provides the resumable epoch batch iterator: a stateful
// driver that replays one shard's batch list across epochs with a
// deterministic per-epoch traversal order, a concurrent prefetch pipeline and
// checkpointable progress.
package iterator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/shardfeed/shardfeed/internal/metrics"
)

// ErrExhausted is returned by Next when the current epoch has no batches
// left, and by any call made after Stop. Start the next epoch to continue.
var ErrExhausted = errors.New("iterator exhausted: no batches remain in the current epoch")

// CollationError reports a single batch that failed collation. The batch
// counts as consumed and the traversal continues; resuming from a checkpoint
// taken before the batch's position is the only way to retry it.
type CollationError struct {
	Epoch   int64
	Ordinal int
	Indices []int
	Err     error
}

func (e *CollationError) Error() string {
	return fmt.Sprintf("collating batch %d of epoch %d (%d examples): %v",
		e.Ordinal, e.Epoch, len(e.Indices), e.Err)
}

func (e *CollationError) Unwrap() error { return e.Err }

// Collator converts the example indices of one batch into an opaque payload.
// It must be safe for concurrent use; prefetch workers call it in parallel.
type Collator func(ctx context.Context, indices []int) (any, error)

// Batch is one collated payload delivered in traversal order.
type Batch struct {
	// Ordinal is the batch's position in this epoch's traversal.
	Ordinal int
	// Indices are the example indices the payload was collated from.
	Indices []int
	// Payload is the collator's opaque result.
	Payload any
}

// Phase is the iterator's lifecycle state.
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseInEpoch
	PhaseExhausted
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseInEpoch:
		return "in-epoch"
	case PhaseExhausted:
		return "exhausted"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Options configure an EpochBatchIterator.
type Options struct {
	Seed       int64
	NumWorkers int // prefetch workers, minimum 1
	BufferSize int // collated payloads buffered ahead of the consumer, minimum 1
	Collator   Collator
	Metrics    *metrics.Collector // optional
	Tracer     trace.Tracer       // optional
}

func (o *Options) normalize() {
	if o.NumWorkers < 1 {
		o.NumWorkers = 1
	}
	if o.BufferSize < 1 {
		o.BufferSize = 1
	}
}

// EpochBatchIterator replays one shard's batch list across epochs.
//
// Epoch numbers start at 1 and increase monotonically, including across
// checkpoint restarts. The traversal order of epoch e under seed s is fixed:
// unshuffled it is the batch list's own order, shuffled it is a Fisher-Yates
// permutation drawn from rand.NewSource(s + e), so the same (seed, epoch)
// pair always reproduces the same traversal and resuming mid-epoch can skip
// exactly the consumed prefix.
//
// A single consumer goroutine owns Next; Stop may be called from anywhere.
type EpochBatchIterator struct {
	opt     Options
	batches [][]int

	mu       sync.Mutex
	seed     int64
	epoch    int64 // 0 until the first epoch starts
	consumed int   // batches consumed within the current epoch
	shuffle  bool
	resume   bool // state was restored mid-epoch; next start resumes it
	phase    Phase
	pf       *prefetcher
	pending  chan result // dequeued slot not yet delivered; retried by the next Next
	span     trace.Span
}

// New creates an iterator over one shard's batch list.
func New(batches [][]int, opt Options) (*EpochBatchIterator, error) {
	if opt.Collator == nil {
		return nil, errors.New("iterator: a Collator is required")
	}
	opt.normalize()
	return &EpochBatchIterator{
		opt:     opt,
		batches: batches,
		seed:    opt.Seed,
		phase:   PhaseFresh,
	}, nil
}

// NumBatches returns the number of batches in one epoch of this shard.
func (it *EpochBatchIterator) NumBatches() int { return len(it.batches) }

// Epoch returns the current epoch number, 0 before the first epoch.
func (it *EpochBatchIterator) Epoch() int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.epoch
}

// Phase returns the iterator's lifecycle state.
func (it *EpochBatchIterator) Phase() Phase {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.phase
}

// StartEpoch begins or resumes the given epoch. Starting the epoch the
// iterator was checkpointed in resumes after its consumed prefix; starting
// any other epoch begins it from the top. The prefetch pipeline is launched
// immediately and runs until the epoch is exhausted or the iterator stops.
func (it *EpochBatchIterator) StartEpoch(ctx context.Context, epoch int64, shuffle bool) error {
	if epoch < 1 {
		return fmt.Errorf("epoch numbers start at 1, got %d", epoch)
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.phase == PhaseStopped {
		return fmt.Errorf("start epoch %d: iterator stopped: %w", epoch, ErrExhausted)
	}

	it.stopPrefetchLocked()

	skip := 0
	if epoch == it.epoch && it.consumed > 0 && it.consumed < len(it.batches) {
		skip = it.consumed
	} else {
		it.consumed = 0
	}
	it.epoch = epoch
	it.shuffle = shuffle
	it.resume = false

	order := it.traversal(epoch, shuffle)
	work := make([]workItem, 0, len(order)-skip)
	for ordinal := skip; ordinal < len(order); ordinal++ {
		work = append(work, workItem{
			ordinal: ordinal,
			indices: it.batches[order[ordinal]],
		})
	}

	if it.opt.Tracer != nil {
		_, it.span = it.opt.Tracer.Start(ctx, fmt.Sprintf("epoch %d", epoch),
			trace.WithSpanKind(trace.SpanKindInternal))
	}

	it.pf = newPrefetcher(ctx, work, it.opt)
	it.phase = PhaseInEpoch
	return nil
}

// NextEpoch starts the epoch after the current one, or resumes the current
// epoch when state was restored mid-epoch. It returns the epoch number that
// was started.
func (it *EpochBatchIterator) NextEpoch(ctx context.Context, shuffle bool) (int64, error) {
	it.mu.Lock()
	epoch := it.epoch + 1
	if it.resume {
		epoch = it.epoch
	}
	it.mu.Unlock()

	if err := it.StartEpoch(ctx, epoch, shuffle); err != nil {
		return 0, err
	}
	return epoch, nil
}

// Next returns the next collated batch in traversal order, blocking until it
// is available. At the end of the epoch it returns ErrExhausted; a batch
// whose collation failed is reported as a CollationError and counts as
// consumed. A Next that fails with the caller context's error has not
// consumed its batch: the next call delivers that same batch.
func (it *EpochBatchIterator) Next(ctx context.Context) (*Batch, error) {
	it.mu.Lock()
	pf := it.pf
	phase := it.phase
	epoch := it.epoch
	slot := it.pending
	it.mu.Unlock()

	switch phase {
	case PhaseStopped:
		return nil, fmt.Errorf("iterator stopped: %w", ErrExhausted)
	case PhaseFresh:
		return nil, fmt.Errorf("no epoch in progress: %w", ErrExhausted)
	case PhaseExhausted:
		return nil, fmt.Errorf("epoch %d consumed: %w", epoch, ErrExhausted)
	}

	if slot == nil {
		var ok bool
		slot, ok = <-pf.slots
		if !ok {
			it.finishEpoch()
			return nil, fmt.Errorf("epoch %d consumed: %w", epoch, ErrExhausted)
		}
		it.mu.Lock()
		it.pending = slot
		it.mu.Unlock()
	}

	var res result
	select {
	case res = <-slot:
	case <-ctx.Done():
		// The slot stays pending; a retried Next re-waits on the same
		// ordinal instead of skipping it.
		return nil, ctx.Err()
	case <-pf.done:
		return nil, fmt.Errorf("iterator stopped: %w", ErrExhausted)
	}

	it.mu.Lock()
	it.pending = nil
	it.consumed++
	it.mu.Unlock()

	if it.opt.Metrics != nil {
		it.opt.Metrics.RecordDelivery(len(res.indices))
	}

	if res.err != nil {
		return nil, &CollationError{
			Epoch:   epoch,
			Ordinal: res.ordinal,
			Indices: res.indices,
			Err:     res.err,
		}
	}
	return &Batch{Ordinal: res.ordinal, Indices: res.indices, Payload: res.payload}, nil
}

// Stop cancels the iterator from any state. Outstanding prefetch work is
// drained and discarded, and Stop returns only after all workers have
// exited. It is idempotent; Next fails with ErrExhausted afterwards.
func (it *EpochBatchIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.phase == PhaseStopped {
		return
	}
	it.stopPrefetchLocked()
	it.phase = PhaseStopped
}

// State snapshots the iterator's resumable progress.
func (it *EpochBatchIterator) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return State{
		Epoch:    it.epoch,
		Seed:     it.seed,
		Consumed: it.consumed,
		Shuffle:  it.shuffle,
	}
}

// Restore loads a snapshot taken by State. A mid-epoch snapshot makes the
// next StartEpoch (or NextEpoch) recompute that epoch's traversal and skip
// the consumed prefix, reproducing exactly the remaining suffix.
func (it *EpochBatchIterator) Restore(s State) error {
	if s.Epoch < 0 {
		return fmt.Errorf("restore: epoch %d is negative", s.Epoch)
	}
	if s.Consumed < 0 || s.Consumed > len(it.batches) {
		return fmt.Errorf("restore: consumed count %d is outside [0,%d]", s.Consumed, len(it.batches))
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.phase == PhaseStopped {
		return fmt.Errorf("restore: iterator stopped: %w", ErrExhausted)
	}
	it.stopPrefetchLocked()

	it.seed = s.Seed
	it.epoch = s.Epoch
	it.consumed = s.Consumed
	it.shuffle = s.Shuffle
	it.resume = false

	switch {
	case s.Epoch == 0:
		it.phase = PhaseFresh
	case s.Consumed >= len(it.batches) && len(it.batches) > 0:
		it.phase = PhaseExhausted
	default:
		it.resume = s.Consumed > 0
		it.phase = PhaseFresh
	}
	return nil
}

// traversal returns the order in which this shard's batch positions are
// visited during the given epoch.
func (it *EpochBatchIterator) traversal(epoch int64, shuffle bool) []int {
	if !shuffle {
		order := make([]int, len(it.batches))
		for i := range order {
			order[i] = i
		}
		return order
	}
	return rand.New(rand.NewSource(it.seed + epoch)).Perm(len(it.batches))
}

func (it *EpochBatchIterator) finishEpoch() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.phase == PhaseInEpoch {
		it.phase = PhaseExhausted
	}
	it.endSpanLocked()
}

func (it *EpochBatchIterator) stopPrefetchLocked() {
	if it.pf != nil {
		it.pf.stop()
		it.pf = nil
	}
	it.pending = nil
	it.endSpanLocked()
}

func (it *EpochBatchIterator) endSpanLocked() {
	if it.span != nil {
		it.span.End()
		it.span = nil
	}
}
