package jitter

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	a := generate(7)
	b := generate(7)
	if a != b {
		t.Fatal("expected identical tables for identical seeds")
	}
}

func TestGenerateDiffersAcrossSeeds(t *testing.T) {
	a := generate(1)
	b := generate(2)
	if a == b {
		t.Fatal("expected different tables for different seeds")
	}
}

func TestGenerateValueRange(t *testing.T) {
	values := generate(42)
	for i, v := range values {
		for _, c := range [3]float32{v.X, v.Y, v.Z} {
			if c < 0 || c >= 2 {
				t.Fatalf("entry %d: component %v out of [0,2)", i, c)
			}
		}
	}
}

func TestAtWrapsNegativeAndLargeIndices(t *testing.T) {
	tbl := &Table{values: generate(3)}
	if tbl.At(0) != tbl.At(NumRandVecs) {
		t.Error("At should wrap modulo NumRandVecs for indices past the table")
	}
	if tbl.At(-1) != tbl.At(NumRandVecs-1) {
		t.Error("At should wrap negative indices into [0, NumRandVecs)")
	}
}
