package config

import (
	"fmt"
	"strings"
)

// Config carries every recognized option for a batching run.
type Config struct {
	// Batching budgets and determinism knobs.
	MaxTokens                 int     `mapstructure:"max_tokens"`
	MaxSentences              int     `mapstructure:"max_sentences"`
	MaxPositions              []int   `mapstructure:"max_positions"`
	IgnoreInvalidInputs       bool    `mapstructure:"ignore_invalid_inputs"`
	RequiredBatchSizeMultiple int     `mapstructure:"required_batch_size_multiple"`
	Seed                      int64   `mapstructure:"seed"`
	NumShards                 int     `mapstructure:"num_shards"`
	ShardID                   int     `mapstructure:"shard_id"`
	NumWorkers                int     `mapstructure:"num_workers"`
	DataBufferSize            int     `mapstructure:"data_buffer_size"`
	Shuffle                   bool    `mapstructure:"shuffle"`

	// Scoring run surface.
	DataPath       string `mapstructure:"data"`
	Split          string `mapstructure:"gen_subset"`
	CheckpointPath string `mapstructure:"path"`
	ResultsPath    string `mapstructure:"results_path"`
	CandidatesPath string `mapstructure:"list_candidates"`
	StatePath      string `mapstructure:"state_path"`
	Progress       bool   `mapstructure:"progress"`

	Tracing TracingConfig `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether span export is configured.
func (c TracingConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Error reports an invalid configuration value. It is always fatal: no
// iterator is constructed from a configuration that fails validation.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration before any batching begins and returns
// the first violation found.
func (c *Config) Validate() error {
	if c.MaxTokens < 0 {
		return &Error{Field: "max_tokens", Reason: "must not be negative"}
	}
	if c.MaxSentences < 0 {
		return &Error{Field: "max_sentences", Reason: "must not be negative"}
	}
	for _, p := range c.MaxPositions {
		if p < 0 {
			return &Error{Field: "max_positions", Reason: "axis limits must not be negative"}
		}
	}
	if c.RequiredBatchSizeMultiple < 1 {
		return &Error{Field: "required_batch_size_multiple", Reason: "must be at least 1"}
	}
	if c.NumShards < 1 {
		return &Error{Field: "num_shards", Reason: "must be at least 1"}
	}
	if c.ShardID < 0 || c.ShardID >= c.NumShards {
		return &Error{
			Field:  "shard_id",
			Reason: fmt.Sprintf("%d is outside [0,%d)", c.ShardID, c.NumShards),
		}
	}
	if c.NumWorkers < 1 {
		return &Error{Field: "num_workers", Reason: "must be at least 1"}
	}
	if c.DataBufferSize < 1 {
		return &Error{Field: "data_buffer_size", Reason: "must be at least 1"}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return &Error{Field: "tracing.sample_rate", Reason: "must be between 0.0 and 1.0"}
	}
	return nil
}
