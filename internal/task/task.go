// Package task wires the batching pipeline together: it owns the split
// registry and configuration, and turns a dataset into a sharded, resumable
// epoch batch iterator.
package task

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/shardfeed/shardfeed/internal/batch"
	"github.com/shardfeed/shardfeed/internal/config"
	"github.com/shardfeed/shardfeed/internal/dataset"
	"github.com/shardfeed/shardfeed/internal/iterator"
	"github.com/shardfeed/shardfeed/internal/metrics"
)

// Task holds loaded dataset splits and builds batch iterators over them.
type Task struct {
	// Metrics and Tracer, when set, are handed to every iterator the task
	// builds.
	Metrics *metrics.Collector
	Tracer  trace.Tracer

	cfg      *config.Config
	registry *dataset.Registry
}

// New validates the configuration and creates a Task. Invalid configuration
// aborts here; no partial task is returned.
func New(cfg *config.Config) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Task{cfg: cfg, registry: dataset.NewRegistry()}, nil
}

// Config returns the task's configuration.
func (t *Task) Config() *config.Config { return t.cfg }

// LoadDataset registers a dataset under a split name. Values that do not
// implement the dataset capability interface fail with a dataset.TypeError.
func (t *Task) LoadDataset(split string, value any) error {
	return t.registry.Load(split, value)
}

// Dataset returns a loaded split, or a dataset.UnknownSplitError.
func (t *Task) Dataset(split string) (dataset.Dataset, error) {
	return t.registry.Dataset(split)
}

// MaxPositions returns the configured per-axis example size limit, nil when
// unset.
func (t *Task) MaxPositions() dataset.Size {
	if len(t.cfg.MaxPositions) == 0 {
		return nil
	}
	return dataset.Size(t.cfg.MaxPositions)
}

// BatchIterator runs the full pipeline over a dataset: seeded ordering, size
// filtering, capacity packing, shard selection, and finally the resumable
// iterator over this shard's batches.
//
// Every shard of a distributed run derives the identical global batch list
// from the same seed and budgets before selecting its own subset, so the
// result only depends on the configuration, never on timing.
func (t *Task) BatchIterator(ds dataset.Dataset) (*iterator.EpochBatchIterator, error) {
	indices := ds.OrderedIndices(t.cfg.Seed)

	indices, err := batch.FilterBySize(indices, ds.Size, t.MaxPositions(), !t.cfg.IgnoreInvalidInputs)
	if err != nil {
		return nil, err
	}

	global := batch.BySize(indices, ds.NumTokens, batch.Options{
		MaxTokens:        t.cfg.MaxTokens,
		MaxSentences:     t.cfg.MaxSentences,
		RequiredMultiple: t.cfg.RequiredBatchSizeMultiple,
	})

	shard, err := batch.Shard(global, t.cfg.NumShards, t.cfg.ShardID)
	if err != nil {
		return nil, err
	}

	return iterator.New(shard, iterator.Options{
		Seed:       t.cfg.Seed,
		NumWorkers: t.cfg.NumWorkers,
		BufferSize: t.cfg.DataBufferSize,
		Collator:   ds.Collate,
		Metrics:    t.Metrics,
		Tracer:     t.Tracer,
	})
}
