package dataset

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// PadToken fills short examples up to the batch width during collation.
const PadToken = "<pad>"

// TextRecord is one JSONL example: an id, whitespace-tokenized source text and
// an optional target side.
type TextRecord struct {
	ID     string
	Source []string
	Target []string
}

// TextBatch is the collated payload for a group of text examples. Token rows
// are padded to the longest example in the batch, so the memory cost of a
// batch is max length times batch size.
type TextBatch struct {
	Indices []int
	IDs     []string
	Tokens  [][]string
	Lengths []int
	Width   int
}

// JSONL is a text dataset backed by a newline-delimited JSON file. Each line
// holds an object with a "text" field, an optional "target" field and an
// optional "id" (line ordinal when absent). All methods are safe for
// concurrent use once constructed; records are immutable.
type JSONL struct {
	records []TextRecord
}

// NewJSONL loads every record of a JSONL file into memory.
func NewJSONL(path string) (*JSONL, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSONL file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []TextRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", lineNo)
		}

		text := gjson.Get(line, "text")
		if !text.Exists() {
			return nil, fmt.Errorf("line %d: missing \"text\" field", lineNo)
		}

		rec := TextRecord{
			ID:     gjson.Get(line, "id").String(),
			Source: strings.Fields(text.String()),
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(len(records))
		}
		if target := gjson.Get(line, "target"); target.Exists() {
			rec.Target = strings.Fields(target.String())
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read JSONL: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("JSONL file %s contains no records", path)
	}

	return &JSONL{records: records}, nil
}

// Record returns the raw record at the given index.
func (d *JSONL) Record(index int) (TextRecord, error) {
	if index < 0 || index >= len(d.records) {
		return TextRecord{}, fmt.Errorf("example index %d out of range [0,%d)", index, len(d.records))
	}
	return d.records[index], nil
}

func (d *JSONL) Len() int { return len(d.records) }

// Size returns the source token count, plus the target token count as a
// second axis when the record has a target side.
func (d *JSONL) Size(index int) Size {
	rec := d.records[index]
	if rec.Target == nil {
		return Scalar(len(rec.Source))
	}
	return Size{len(rec.Source), len(rec.Target)}
}

// NumTokens returns the padded packing cost of one example: the longer of its
// two sides.
func (d *JSONL) NumTokens(index int) int {
	return d.Size(index).Max()
}

// OrderedIndices returns all indices ascending by token count. Ties are
// broken by a permutation drawn from the seed, so the ordering is stable for
// a fixed seed and varies across seeds.
func (d *JSONL) OrderedIndices(seed int64) []int {
	indices := rand.New(rand.NewSource(seed)).Perm(len(d.records))
	sort.SliceStable(indices, func(i, j int) bool {
		return d.NumTokens(indices[i]) < d.NumTokens(indices[j])
	})
	return indices
}

// Collate pads the examples at the given indices to a rectangular token
// matrix.
func (d *JSONL) Collate(ctx context.Context, indices []int) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("collate: empty batch")
	}

	batch := &TextBatch{
		Indices: append([]int(nil), indices...),
		IDs:     make([]string, 0, len(indices)),
		Tokens:  make([][]string, 0, len(indices)),
		Lengths: make([]int, 0, len(indices)),
	}
	for _, index := range indices {
		rec, err := d.Record(index)
		if err != nil {
			return nil, err
		}
		batch.IDs = append(batch.IDs, rec.ID)
		batch.Tokens = append(batch.Tokens, rec.Source)
		batch.Lengths = append(batch.Lengths, len(rec.Source))
		if len(rec.Source) > batch.Width {
			batch.Width = len(rec.Source)
		}
	}
	for i, row := range batch.Tokens {
		if len(row) == batch.Width {
			continue
		}
		padded := make([]string, batch.Width)
		copy(padded, row)
		for j := len(row); j < batch.Width; j++ {
			padded[j] = PadToken
		}
		batch.Tokens[i] = padded
	}
	return batch, nil
}
