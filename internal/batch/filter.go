package batch

import (
	"fmt"

	"github.com/shardfeed/shardfeed/internal/dataset"
)

// InvalidExampleError reports an example whose size exceeds the positional
// limit under strict filtering.
type InvalidExampleError struct {
	Index int
	Size  dataset.Size
	Limit dataset.Size
}

func (e *InvalidExampleError) Error() string {
	return fmt.Sprintf(
		"example %d has size %s, which exceeds the limit %s; "+
			"drop oversized examples with ignore_invalid_inputs",
		e.Index, e.Size, e.Limit,
	)
}

// FilterBySize returns the subsequence of indices whose size fits the limit
// on every axis. A nil or empty limit returns the input unchanged. In strict
// mode the first violation fails the whole pass with an InvalidExampleError
// and no partial result; otherwise violating indices are dropped silently.
func FilterBySize(indices []int, size func(int) dataset.Size, limit dataset.Size, strict bool) ([]int, error) {
	if len(limit) == 0 {
		return indices, nil
	}

	kept := make([]int, 0, len(indices))
	for _, index := range indices {
		sz := size(index)
		if sz.Within(limit) {
			kept = append(kept, index)
			continue
		}
		if strict {
			return nil, &InvalidExampleError{Index: index, Size: sz, Limit: limit}
		}
	}
	return kept, nil
}
