package dataset

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSizeWithin(t *testing.T) {
	tests := []struct {
		name  string
		size  Size
		limit Size
		want  bool
	}{
		{"nil limit always fits", Size{100}, nil, true},
		{"scalar within", Scalar(5), Scalar(10), true},
		{"scalar at bound", Scalar(10), Scalar(10), true},
		{"scalar above", Scalar(11), Scalar(10), false},
		{"scalar limit bounds every axis", Size{5, 9}, Scalar(10), true},
		{"scalar limit violated on second axis", Size{5, 11}, Scalar(10), false},
		{"tuple componentwise ok", Size{5, 9}, Size{5, 10}, true},
		{"tuple componentwise violated", Size{6, 9}, Size{5, 10}, false},
		{"extra axes unconstrained", Size{5, 9, 999}, Size{5, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.size.Within(tt.limit); got != tt.want {
				t.Errorf("Size%v.Within(%v) = %v, want %v", tt.size, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSizeString(t *testing.T) {
	if got := Scalar(7).String(); got != "7" {
		t.Errorf("Scalar(7).String() = %q, want \"7\"", got)
	}
	if got := (Size{3, 4}).String(); got != "(3,4)" {
		t.Errorf("Size{3,4}.String() = %q, want \"(3,4)\"", got)
	}
}

type fakeDataset struct{ n int }

func (f *fakeDataset) Len() int                      { return f.n }
func (f *fakeDataset) OrderedIndices(int64) []int    { return make([]int, f.n) }
func (f *fakeDataset) Size(int) Size                 { return Scalar(1) }
func (f *fakeDataset) NumTokens(int) int             { return 1 }
func (f *fakeDataset) Collate(context.Context, []int) (any, error) {
	return nil, nil
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	ds := &fakeDataset{n: 3}
	if err := r.Load("train", ds); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got, err := r.Dataset("train")
	if err != nil {
		t.Fatalf("Dataset() error = %v", err)
	}
	if got != Dataset(ds) {
		t.Error("Dataset() returned a different dataset than was loaded")
	}
}

func TestRegistryUnknownSplit(t *testing.T) {
	r := NewRegistry()
	if err := r.Load("train", &fakeDataset{n: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Load("test", &fakeDataset{n: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := r.Dataset("valid")
	var unknown *UnknownSplitError
	if !errors.As(err, &unknown) {
		t.Fatalf("Dataset() error = %v, want UnknownSplitError", err)
	}
	if unknown.Split != "valid" {
		t.Errorf("error names split %q, want \"valid\"", unknown.Split)
	}
	if !reflect.DeepEqual(unknown.Loaded, []string{"test", "train"}) {
		t.Errorf("error lists loaded splits %v, want [test train]", unknown.Loaded)
	}
	if !strings.Contains(unknown.Error(), "test, train") {
		t.Errorf("error message %q does not list the loaded splits", unknown.Error())
	}
}

func TestRegistrySplits(t *testing.T) {
	r := NewRegistry()
	if got := r.Splits(); len(got) != 0 {
		t.Errorf("Splits() on empty registry = %v", got)
	}
	for _, name := range []string{"valid", "train", "test"} {
		if err := r.Load(name, &fakeDataset{n: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.Splits(); !reflect.DeepEqual(got, []string{"test", "train", "valid"}) {
		t.Errorf("Splits() = %v, want sorted names", got)
	}
}

func TestRegistryTypeError(t *testing.T) {
	r := NewRegistry()
	err := r.Load("train", "not a dataset")
	var typeErr *TypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("Load() error = %v, want TypeError", err)
	}
}
