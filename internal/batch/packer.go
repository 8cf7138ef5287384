// Package batch turns an ordered index sequence into capacity-bounded
// batches and distributes the resulting batch list across shards.
//
// Every shard of a distributed run computes the identical global batch list
// (same seed, same filter, same packing) and then selects its own disjoint
// subset, so synchronization needs no runtime communication.
package batch

// Options bound the packing of one batch.
type Options struct {
	// MaxTokens caps the padded token cost of a batch: the largest example
	// size in the batch times the batch length. Zero means unbounded.
	MaxTokens int

	// MaxSentences caps the number of examples per batch. Zero means
	// unbounded.
	MaxSentences int

	// RequiredMultiple forces every batch length (except the last of a full
	// scan) to a multiple of this value. Values below 1 are treated as 1.
	RequiredMultiple int
}

// BySize greedily packs indices, in the order given, into batches that honor
// the configured budgets. The token cost charged for a batch is
// max(example size) * batch length, matching the cost of padded collation.
//
// When a budget would be exceeded, the open batch is closed at the largest
// length satisfying the multiple constraint and the remainder carries over
// into the next batch instead of splitting at a non-multiple boundary. A
// single index larger than MaxTokens still forms a batch of one; rejecting
// oversized examples is FilterBySize's job, applied earlier.
func BySize(indices []int, numTokens func(int) int, opt Options) [][]int {
	mult := opt.RequiredMultiple
	if mult < 1 {
		mult = 1
	}

	full := func(length, tokens int) bool {
		if length == 0 {
			return false
		}
		if opt.MaxSentences > 0 && length == opt.MaxSentences {
			return true
		}
		return opt.MaxTokens > 0 && tokens > opt.MaxTokens
	}

	var batches [][]int
	var open []int
	var openSizes []int
	maxSize := 0

	for _, idx := range indices {
		size := numTokens(idx)
		if size > maxSize {
			maxSize = size
		}

		// Cost if idx were appended to the open batch.
		if full(len(open), (len(open)+1)*maxSize) {
			// Close at a multiple of mult; the tail carries forward.
			closeLen := mult * (len(open) / mult)
			if rem := len(open) % mult; rem > closeLen {
				closeLen = rem
			}
			batches = append(batches, open[:closeLen:closeLen])
			open = append([]int(nil), open[closeLen:]...)
			openSizes = append([]int(nil), openSizes[closeLen:]...)
			maxSize = size
			for _, s := range openSizes {
				if s > maxSize {
					maxSize = s
				}
			}
		}
		open = append(open, idx)
		openSizes = append(openSizes, size)
	}

	// The final batch of the scan is exempt from the multiple constraint.
	if len(open) > 0 {
		batches = append(batches, open)
	}
	return batches
}
