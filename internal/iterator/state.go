package iterator

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// State is the persisted checkpoint record of an EpochBatchIterator. The
// epoch number, seed and consumed count round-trip through Encode/DecodeState
// with no loss; the traversal itself is never persisted because it is
// recomputed deterministically from (seed, epoch).
type State struct {
	Epoch    int64 `yaml:"epoch"`
	Seed     int64 `yaml:"seed"`
	Consumed int   `yaml:"consumed"`
	Shuffle  bool  `yaml:"shuffle"`
}

// Encode serializes the state to a byte stream.
func (s State) Encode() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode iterator state: %w", err)
	}
	return data, nil
}

// DecodeState parses a byte stream produced by Encode.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode iterator state: %w", err)
	}
	return s, nil
}
