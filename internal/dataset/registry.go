package dataset

import (
	"sort"
	"sync"
)

// Registry owns named dataset splits. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	splits map[string]Dataset
}

func NewRegistry() *Registry {
	return &Registry{splits: make(map[string]Dataset)}
}

// Load registers a dataset under a split name. The value must implement
// Dataset; anything else fails with a TypeError at setup time rather than
// later inside the batching pipeline.
func (r *Registry) Load(split string, value any) error {
	ds, ok := value.(Dataset)
	if !ok || ds == nil {
		return &TypeError{Split: split, Value: value}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.splits[split] = ds
	return nil
}

// Dataset returns the split registered under the given name. An unknown
// split fails with an UnknownSplitError naming the splits that are loaded.
func (r *Registry) Dataset(split string) (Dataset, error) {
	r.mu.RLock()
	ds, ok := r.splits[split]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownSplitError{Split: split, Loaded: r.Splits()}
	}
	return ds, nil
}

// Splits returns the names of all loaded splits, sorted.
func (r *Registry) Splits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.splits))
	for name := range r.splits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
