package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a
// Config. Flags override values from the config file.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()

	cfg := Default()
	cfg.ConfigFile = configPath

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := cfgViper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		RequiredBatchSizeMultiple: 1,
		Seed:                      1,
		NumShards:                 1,
		NumWorkers:                1,
		DataBufferSize:            10,
		Split:                     "test",
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// applyFlagOverrides copies every flag the user set on the command line into
// the config, taking precedence over file values.
func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataPath, _ = flags.GetString(f.Name)
		case "gen-subset":
			cfg.Split, _ = flags.GetString(f.Name)
		case "path":
			cfg.CheckpointPath, _ = flags.GetString(f.Name)
		case "results-path":
			cfg.ResultsPath, _ = flags.GetString(f.Name)
		case "list-candidates":
			cfg.CandidatesPath, _ = flags.GetString(f.Name)
		case "max-tokens":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.MaxTokens = v
		case "max-sentences":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.MaxSentences = v
		case "max-positions":
			v, err := flags.GetIntSlice(f.Name)
			record(err)
			cfg.MaxPositions = v
		case "ignore-invalid-inputs":
			v, err := flags.GetBool(f.Name)
			record(err)
			cfg.IgnoreInvalidInputs = v
		case "required-batch-size-multiple":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.RequiredBatchSizeMultiple = v
		case "seed":
			v, err := flags.GetInt64(f.Name)
			record(err)
			cfg.Seed = v
		case "shuffle":
			v, err := flags.GetBool(f.Name)
			record(err)
			cfg.Shuffle = v
		case "num-shards":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.NumShards = v
		case "shard-id":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.ShardID = v
		case "num-workers":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.NumWorkers = v
		case "data-buffer-size":
			v, err := flags.GetInt(f.Name)
			record(err)
			cfg.DataBufferSize = v
		case "state-path":
			cfg.StatePath, _ = flags.GetString(f.Name)
		case "progress":
			v, err := flags.GetBool(f.Name)
			record(err)
			cfg.Progress = v
		case "tracing-endpoint":
			cfg.Tracing.Endpoint, _ = flags.GetString(f.Name)
		case "tracing-protocol":
			cfg.Tracing.Protocol, _ = flags.GetString(f.Name)
		case "tracing-service-name":
			cfg.Tracing.ServiceName, _ = flags.GetString(f.Name)
		case "tracing-sample-rate":
			v, err := flags.GetFloat64(f.Name)
			record(err)
			cfg.Tracing.SampleRate = v
		case "tracing-insecure":
			v, err := flags.GetBool(f.Name)
			record(err)
			cfg.Tracing.Insecure = v
		}
	})

	return firstErr
}

func displayHelp(cmd *cobra.Command) {
	_ = cmd.Help()
}
