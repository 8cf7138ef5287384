package iterator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPrefetchPreservesOrderAcrossWorkers(t *testing.T) {
	// Even-ordinal batches collate slowly; with several workers the odd
	// ones finish first, but delivery must still follow traversal order.
	const n = 20
	batches := makeBatches(n)
	collator := func(ctx context.Context, indices []int) (any, error) {
		if (indices[0]/10)%2 == 0 {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return echoCollator(ctx, indices)
	}

	it, err := New(batches, Options{
		Seed:       1,
		NumWorkers: 4,
		BufferSize: 4,
		Collator:   collator,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()
	if _, err := it.NextEpoch(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	got := drain(t, it)
	if len(got) != n {
		t.Fatalf("delivered %d batches, want %d", len(got), n)
	}
	for i, b := range got {
		if b.Ordinal != i {
			t.Fatalf("position %d delivered ordinal %d; out-of-order completion leaked through", i, b.Ordinal)
		}
	}
}

func TestPrefetchBackpressure(t *testing.T) {
	const bufferSize = 2
	var started atomic.Int64
	collator := func(ctx context.Context, indices []int) (any, error) {
		started.Add(1)
		return echoCollator(ctx, indices)
	}

	it, err := New(makeBatches(12), Options{
		Seed:       1,
		NumWorkers: 2,
		BufferSize: bufferSize,
		Collator:   collator,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()
	if _, err := it.NextEpoch(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	// With nobody consuming, only bufferSize collations may begin: each
	// job is dispatched only after its slot fits the bounded buffer.
	time.Sleep(50 * time.Millisecond)
	if got := started.Load(); got > bufferSize {
		t.Fatalf("%d collations started with a full buffer, want at most %d", got, bufferSize)
	}

	// Consuming frees a slot and lets the pipeline advance.
	if _, err := it.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for started.Load() < bufferSize+1 {
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not advance after consuming: %d collations started", started.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPrefetchStopCancelsWorkers(t *testing.T) {
	release := make(chan struct{})
	collator := func(ctx context.Context, indices []int) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return echoCollator(ctx, indices)
		}
	}

	it, err := New(makeBatches(6), Options{
		Seed:       1,
		NumWorkers: 3,
		BufferSize: 3,
		Collator:   collator,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := it.NextEpoch(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		it.Stop() // must unblock in-flight collators and return
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return; workers were not cancelled")
	}
}

func TestNextHonorsCallerContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	collator := func(ctx context.Context, indices []int) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return echoCollator(ctx, indices)
		}
	}

	it, err := New(makeBatches(2), Options{Seed: 1, Collator: collator})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()
	if _, err := it.NextEpoch(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := it.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want deadline exceeded", err)
	}
}

func TestNextRedeliversAfterCancelledContext(t *testing.T) {
	// The first batch's collator blocks until released; a timed-out Next
	// must leave that batch pending rather than skipping to the next one.
	release := make(chan struct{})
	collator := func(ctx context.Context, indices []int) (any, error) {
		if indices[0] == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
			}
		}
		return echoCollator(ctx, indices)
	}

	it, err := New(makeBatches(2), Options{Seed: 1, Collator: collator})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()
	if _, err := it.NextEpoch(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := it.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want deadline exceeded", err)
	}
	if got := it.State().Consumed; got != 0 {
		t.Fatalf("State().Consumed = %d after a failed Next, want 0", got)
	}

	close(release)

	first, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("retried Next() error = %v", err)
	}
	if first.Ordinal != 0 {
		t.Fatalf("retried Next() delivered ordinal %d, want the undelivered batch 0", first.Ordinal)
	}
	second, err := it.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Ordinal != 1 {
		t.Fatalf("Next() delivered ordinal %d, want 1", second.Ordinal)
	}
	if got := it.State().Consumed; got != 2 {
		t.Errorf("State().Consumed = %d, want 2", got)
	}
}
