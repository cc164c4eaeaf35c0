package transferfunction

import (
	"testing"

	"volray/internal/raycast"
)

// newTestTable builds a Table bypassing NewTable's device-texture
// allocation, so Sample/AlphaAt can be exercised without a GL context.
func newTestTable(lut []raycast.Vec4) *Table {
	return &Table{size: len(lut), lut: lut}
}

func TestSizeByBpc(t *testing.T) {
	t8 := newTestTable(make([]raycast.Vec4, Size8Bit))
	if t8.Size() != Size8Bit {
		t.Errorf("expected size %d, got %d", Size8Bit, t8.Size())
	}

	t16 := newTestTable(make([]raycast.Vec4, Size16Bit))
	if t16.Size() != Size16Bit {
		t.Errorf("expected size %d, got %d", Size16Bit, t16.Size())
	}
}

func TestSampleExactEntries(t *testing.T) {
	lut := make([]raycast.Vec4, Size8Bit)
	for i := range lut {
		s := float32(i) / float32(Size8Bit-1)
		lut[i] = raycast.Vec4{X: s, Y: s, Z: s, W: s}
	}
	tbl := newTestTable(lut)

	for _, i := range []int{0, 1, 127, 255} {
		s := (float32(i) + 0.5) / float32(Size8Bit)
		got := tbl.Sample(s)
		want := lut[i]
		if diff := got.X - want.X; diff < -0.01 || diff > 0.01 {
			t.Errorf("entry %d: expected ~%v, got %v", i, want, got)
		}
	}
}

func TestSampleLinearInterpolation(t *testing.T) {
	lut := make([]raycast.Vec4, 4)
	lut[0] = raycast.Vec4{X: 0, W: 0}
	lut[1] = raycast.Vec4{X: 1, W: 1}
	lut[2] = raycast.Vec4{X: 1, W: 1}
	lut[3] = raycast.Vec4{X: 1, W: 1}
	tbl := newTestTable(lut)

	mid := tbl.Sample(0.375) // f = 0.375*4-0.5 = 1.0 -> exactly entry 1
	if mid.X < 0.99 {
		t.Errorf("expected near entry 1 (1.0), got %v", mid.X)
	}

	half := tbl.Sample(0.25) // f = 0.25*4-0.5 = 0.5 -> halfway between entry 0 and 1
	if half.X < 0.45 || half.X > 0.55 {
		t.Errorf("expected ~0.5 halfway between 0 and 1, got %v", half.X)
	}
}

func TestSampleClampsAtEdges(t *testing.T) {
	lut := make([]raycast.Vec4, 4)
	lut[0] = raycast.Vec4{X: 0.1}
	lut[3] = raycast.Vec4{X: 0.9}
	tbl := newTestTable(lut)

	below := tbl.Sample(-1)
	if below != lut[0] {
		t.Errorf("expected clamp to first entry below range, got %v", below)
	}
	above := tbl.Sample(2)
	if above != lut[3] {
		t.Errorf("expected clamp to last entry above range, got %v", above)
	}
}

func TestAlphaAtOutOfRange(t *testing.T) {
	tbl := newTestTable(make([]raycast.Vec4, 4))
	if tbl.AlphaAt(-1) != 0 {
		t.Error("expected 0 for negative index")
	}
	if tbl.AlphaAt(4) != 0 {
		t.Error("expected 0 for index past the table")
	}
}

func TestAlphaAtMatchesLut(t *testing.T) {
	lut := make([]raycast.Vec4, 8)
	lut[3] = raycast.Vec4{W: 0.42}
	tbl := newTestTable(lut)
	if got := tbl.AlphaAt(3); got != 0.42 {
		t.Errorf("expected 0.42, got %v", got)
	}
}
