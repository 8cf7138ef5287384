package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/shardfeed/shardfeed/internal/dataset"
)

// Scorer assigns one score per candidate to every example of a collated
// batch. Implementations stand in for the retrieval model; scores must be
// deterministic for a fixed batch and candidate list.
type Scorer interface {
	Score(batch *dataset.TextBatch) map[string][]float64
}

// LexicalScorer scores examples by token-set overlap with each candidate.
// Candidate token sets are built lazily and cached for the run; the cache is
// owned by the scorer instance, so nothing leaks across runs or tests.
type LexicalScorer struct {
	candidates []string
	cache      map[string]map[string]struct{}
}

// NewLexicalScorer creates a scorer over the given candidate list.
func NewLexicalScorer(candidates []string) *LexicalScorer {
	return &LexicalScorer{
		candidates: candidates,
		cache:      make(map[string]map[string]struct{}, len(candidates)),
	}
}

// Score returns, for each example id in the batch, one similarity score per
// candidate in candidate-list order. Called from the single consumer
// goroutine; not safe for concurrent use.
func (s *LexicalScorer) Score(batch *dataset.TextBatch) map[string][]float64 {
	out := make(map[string][]float64, len(batch.IDs))
	for i, id := range batch.IDs {
		tokens := tokenSet(batch.Tokens[i][:batch.Lengths[i]])
		scores := make([]float64, len(s.candidates))
		for j, candidate := range s.candidates {
			scores[j] = jaccard(tokens, s.candidateTokens(candidate))
		}
		out[id] = scores
	}
	return out
}

func (s *LexicalScorer) candidateTokens(candidate string) map[string]struct{} {
	if set, ok := s.cache[candidate]; ok {
		return set
	}
	set := tokenSet(strings.Fields(strings.ToLower(candidate)))
	s.cache[candidate] = set
	return set
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[strings.ToLower(tok)] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	common := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			common++
		}
	}
	return float64(common) / float64(len(a)+len(b)-common)
}

// loadCandidates reads a newline-delimited candidate list, skipping blank
// lines.
func loadCandidates(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidate list: %w", err)
	}
	defer file.Close()

	var candidates []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		candidates = append(candidates, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read candidate list: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("candidate list %s is empty", path)
	}
	return candidates, nil
}
