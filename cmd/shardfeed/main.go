// Command shardfeed iterates a dataset split in deterministic, sharded
// batches and scores every example against a candidate list, writing a JSON
// results file. It is the consumer-side driver for the batch iteration
// engine; the scoring model itself is pluggable and a deterministic lexical
// scorer stands in by default.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shardfeed/shardfeed/internal/config"
	"github.com/shardfeed/shardfeed/internal/dataset"
	"github.com/shardfeed/shardfeed/internal/iterator"
	"github.com/shardfeed/shardfeed/internal/metrics"
	"github.com/shardfeed/shardfeed/internal/output"
	"github.com/shardfeed/shardfeed/internal/task"
	"github.com/shardfeed/shardfeed/internal/tracing"
)

// defaultMaxTokens applies when neither a token nor a sentence budget is set.
const defaultMaxTokens = 12000

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := validatePaths(cfg); err != nil {
		return err
	}
	if cfg.MaxTokens == 0 && cfg.MaxSentences == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	t, err := task.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	collector := metrics.NewCollector()
	t.Metrics = collector
	t.Tracer = provider.Tracer()

	ds, err := dataset.NewJSONL(cfg.DataPath)
	if err != nil {
		return err
	}
	if err := t.LoadDataset(cfg.Split, ds); err != nil {
		return err
	}
	split, err := t.Dataset(cfg.Split)
	if err != nil {
		return err
	}

	candidates, err := loadCandidates(cfg.CandidatesPath)
	if err != nil {
		return err
	}
	scorer := NewLexicalScorer(candidates)

	itr, err := t.BatchIterator(split)
	if err != nil {
		return err
	}
	defer itr.Stop()

	if cfg.StatePath != "" {
		if err := restoreState(itr, cfg.StatePath); err != nil {
			return err
		}
	}

	epoch, err := itr.NextEpoch(ctx, cfg.Shuffle)
	if err != nil {
		return err
	}

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(collector, itr.NumBatches(), os.Stderr)
		progress.SetEpoch(epoch)
	}

	results := make(output.Results)
	for {
		b, err := itr.Next(ctx)
		if errors.Is(err, iterator.ErrExhausted) {
			break
		}
		var collErr *iterator.CollationError
		if errors.As(err, &collErr) {
			fmt.Fprintf(os.Stderr, "shard %d: %v\n", cfg.ShardID, collErr)
			continue
		}
		if err != nil {
			return err
		}

		tb, ok := b.Payload.(*dataset.TextBatch)
		if !ok {
			return fmt.Errorf("batch %d: unexpected payload type %T", b.Ordinal, b.Payload)
		}
		for id, scores := range scorer.Score(tb) {
			results[id] = scores
		}
		if progress != nil {
			progress.Observe()
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if err := output.WriteResults(cfg.ResultsPath, results); err != nil {
		return err
	}
	if cfg.StatePath != "" {
		if err := saveState(itr, cfg.StatePath); err != nil {
			return err
		}
	}

	output.PrintReport(os.Stdout, collector.Stats(collector.Elapsed()))
	return nil
}

// validatePaths enforces the required path arguments before any work starts.
func validatePaths(cfg *config.Config) error {
	if cfg.DataPath == "" {
		return errors.New("--data is required")
	}
	if cfg.CheckpointPath == "" {
		return errors.New("--path is required for generation")
	}
	if cfg.ResultsPath == "" {
		return errors.New("--results-path is required")
	}
	if cfg.CandidatesPath == "" {
		return errors.New("--list-candidates is required")
	}
	if _, err := os.Stat(cfg.CheckpointPath); err != nil {
		return fmt.Errorf("model checkpoint: %w", err)
	}
	return nil
}

func restoreState(itr *iterator.EpochBatchIterator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first run, nothing to resume
		}
		return fmt.Errorf("read iterator state: %w", err)
	}
	state, err := iterator.DecodeState(data)
	if err != nil {
		return err
	}
	return itr.Restore(state)
}

func saveState(itr *iterator.EpochBatchIterator, path string) error {
	data, err := itr.State().Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write iterator state: %w", err)
	}
	return nil
}
