package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/shardfeed/shardfeed/internal/dataset"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1.0},
		{"disjoint", []string{"a"}, []string{"b"}, 0.0},
		{"partial", []string{"red", "apple", "pie"}, []string{"red", "apple"}, 2.0 / 3.0},
		{"both empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tokenSet(tt.a), tokenSet(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLexicalScorer(t *testing.T) {
	s := NewLexicalScorer([]string{"red apple", "banana"})
	batch := &dataset.TextBatch{
		Indices: []int{0, 1},
		IDs:     []string{"a", "b"},
		Tokens: [][]string{
			{"Red", "apple", "pie", "<pad>"},
			{"banana", "<pad>", "<pad>", "<pad>"},
		},
		Lengths: []int{3, 1},
		Width:   4,
	}

	scores := s.Score(batch)
	if len(scores) != 2 {
		t.Fatalf("scored %d examples, want 2", len(scores))
	}
	if math.Abs(scores["a"][0]-2.0/3.0) > 1e-9 {
		t.Errorf("scores[a][0] = %v, want 2/3", scores["a"][0])
	}
	if scores["a"][1] != 0 {
		t.Errorf("scores[a][1] = %v, want 0", scores["a"][1])
	}
	if scores["b"][1] != 1.0 {
		t.Errorf("scores[b][1] = %v, want 1", scores["b"][1])
	}

	// Padding past Lengths must not contribute tokens.
	if scores["b"][0] != 0 {
		t.Errorf("scores[b][0] = %v, want 0", scores["b"][0])
	}
}

func TestCandidateTokensCached(t *testing.T) {
	s := NewLexicalScorer([]string{"red apple"})
	first := s.candidateTokens("red apple")
	first["sentinel"] = struct{}{}

	second := s.candidateTokens("red apple")
	if _, ok := second["sentinel"]; !ok {
		t.Error("second lookup rebuilt the token set instead of hitting the cache")
	}
	if len(s.cache) != 1 {
		t.Errorf("cache holds %d entries, want 1", len(s.cache))
	}
}

func TestLoadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.txt")
	contents := "first candidate\n\n  second candidate  \n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	candidates, err := loadCandidates(path)
	if err != nil {
		t.Fatalf("loadCandidates() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("loaded %d candidates, want 2", len(candidates))
	}
	if candidates[1] != "second candidate" {
		t.Errorf("candidates[1] = %q", candidates[1])
	}
}

func TestLoadCandidatesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCandidates(path); err == nil {
		t.Fatal("loadCandidates() on empty list did not error")
	}
}

func TestLoadCandidatesMissing(t *testing.T) {
	if _, err := loadCandidates("/nonexistent/candidates.txt"); err == nil {
		t.Fatal("loadCandidates() on missing file did not error")
	}
}
