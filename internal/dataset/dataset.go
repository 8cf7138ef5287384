// Package dataset defines the capability contract a data source must satisfy
// to be batched by the engine, plus a registry of named splits.
package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Size is one or more non-negative axis measures attached to an example.
// A scalar size is a Size of length one; paired datasets (source/target)
// report one measure per axis.
type Size []int

// Scalar builds a single-axis Size.
func Scalar(n int) Size { return Size{n} }

// Max returns the largest axis measure, or 0 for an empty Size.
func (s Size) Max() int {
	max := 0
	for _, v := range s {
		if v > max {
			max = v
		}
	}
	return max
}

// Within reports whether every axis of s fits the limit. A single-axis limit
// applies to all axes of s; a multi-axis limit is compared componentwise and
// axes beyond its length are unconstrained. A nil limit always fits.
func (s Size) Within(limit Size) bool {
	if len(limit) == 0 {
		return true
	}
	for i, v := range s {
		bound := limit[0]
		if len(limit) > 1 {
			if i >= len(limit) {
				break
			}
			bound = limit[i]
		}
		if v > bound {
			return false
		}
	}
	return true
}

func (s Size) String() string {
	if len(s) == 1 {
		return strconv.Itoa(s[0])
	}
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Dataset is the capability interface consumed by the batching engine.
// Size, NumTokens and Collate must be safe for concurrent use; the engine
// calls Collate from multiple prefetch workers at once.
type Dataset interface {
	// Len returns the number of examples.
	Len() int

	// OrderedIndices returns a total ordering of all example indices for the
	// given seed, typically ascending by size with a seeded stable tiebreak.
	// The same seed must always produce the same ordering.
	OrderedIndices(seed int64) []int

	// Size returns the per-axis size measures of one example.
	Size(index int) Size

	// NumTokens returns the packing cost of one example in tokens.
	NumTokens(index int) int

	// Collate converts the examples at the given indices into one opaque
	// batched payload.
	Collate(ctx context.Context, indices []int) (any, error)
}

// TypeError reports a value that does not satisfy the Dataset contract.
type TypeError struct {
	Split string
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("dataset %q: %T does not implement the dataset capability interface", e.Split, e.Value)
}

// UnknownSplitError reports a lookup of a split that was never loaded.
type UnknownSplitError struct {
	Split  string
	Loaded []string
}

func (e *UnknownSplitError) Error() string {
	if len(e.Loaded) == 0 {
		return fmt.Sprintf("dataset not loaded: %q (no splits loaded)", e.Split)
	}
	return fmt.Sprintf("dataset not loaded: %q (loaded: %s)", e.Split, strings.Join(e.Loaded, ", "))
}
