package config

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shardfeed",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Data flags
	flags.String("data", "", "Path to the JSONL dataset file")
	flags.String("gen-subset", "test", "Dataset split to iterate")
	flags.String("path", "", "Path to the model checkpoint")
	flags.String("results-path", "", "Path to write the results file")
	flags.String("list-candidates", "", "Path to a newline-delimited candidate list file")

	// Batching flags
	flags.Int("max-tokens", 0, "Max tokens per batch, padded cost (0 means unset)")
	flags.Int("max-sentences", 0, "Max examples per batch (0 means unset)")
	flags.IntSlice("max-positions", nil, "Per-axis example size limit (one value applies to every axis)")
	flags.Bool("ignore-invalid-inputs", false, "Silently drop examples that exceed --max-positions instead of failing")
	flags.Int("required-batch-size-multiple", 1, "Require batch sizes to be a multiple of N")
	flags.Int64("seed", 1, "Random seed for ordering and per-epoch shuffling")
	flags.Bool("shuffle", false, "Shuffle the batch traversal order each epoch")

	// Sharding flags
	flags.Int("num-shards", 1, "Number of shards the global batch list is split across")
	flags.Int("shard-id", 0, "Which shard this process iterates")

	// Pipeline flags
	flags.IntP("num-workers", "w", 1, "Number of prefetch workers collating batches")
	flags.Int("data-buffer-size", 10, "Max collated batches buffered ahead of the consumer")

	// Run flags
	flags.String("state-path", "", "Path to read/write iterator checkpoint state")
	flags.Bool("progress", false, "Print progress updates while iterating")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for span export (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP transport: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}
