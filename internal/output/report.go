// Package output renders iteration progress and writes run results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/shardfeed/shardfeed/internal/metrics"
)

// Results maps example id to its per-candidate scores, in candidate-list
// order.
type Results map[string][]float64

// WriteResults writes the results file as JSON with stable key order.
func WriteResults(path string, results Results) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// PrintReport outputs a human-readable summary of one run.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Iteration Results ---")
	fmt.Fprintf(w, "Batches Delivered: %d\n", stats.Delivered)
	fmt.Fprintf(w, "Collated:          %d\n", stats.Collated)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Tokens:            %d\n", stats.Tokens)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Batches/sec:       %.2f\n", stats.BatchesPerSec)
	fmt.Fprintln(w, "\nCollation Latency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nError Breakdown:")
		types := make([]string, 0, len(stats.Errors))
		for errType := range stats.Errors {
			types = append(types, errType)
		}
		sort.Slice(types, func(i, j int) bool {
			return stats.Errors[types[i]] > stats.Errors[types[j]]
		})
		for _, errType := range types {
			fmt.Fprintf(w, "  - %s: %d\n", errType, stats.Errors[errType])
		}
	}
}
