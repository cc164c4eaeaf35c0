package volume

import (
	"testing"

	"volray/internal/raycast"
)

func TestRebit16ShiftsHighByteKeepsLow(t *testing.T) {
	// Big-endian 16-bit value 0x1234 shifted right by 4 is 0x0123; the
	// transform keeps only the low 8 bits of that shifted value as the
	// new high byte (0x23), and copies the original low byte through.
	raw := []byte{0x12, 0x34}
	got := rebit16(raw)
	if got[0] != 0x23 || got[1] != 0x34 {
		t.Errorf("expected {0x23,0x34}, got {%#x,%#x}", got[0], got[1])
	}
}

func TestRebit16LeavesInputUntouched(t *testing.T) {
	raw := []byte{0xFF, 0x00, 0x01, 0x02}
	_ = rebit16(raw)
	if raw[0] != 0xFF || raw[1] != 0x00 || raw[2] != 0x01 || raw[3] != 0x02 {
		t.Error("rebit16 must not mutate its input")
	}
}

func TestToNormalized8OneBytePerVoxel(t *testing.T) {
	raw := []byte{1, 2, 3}
	out := toNormalized8(raw, 1)
	if len(out) != 3 || out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("expected a verbatim copy, got %v", out)
	}
}

func TestToNormalized8TakesHighByteFor16Bit(t *testing.T) {
	raw := []byte{0x01, 0x34, 0x02, 0x56}
	out := toNormalized8(raw, 2)
	if len(out) != 2 || out[0] != 0x01 || out[1] != 0x02 {
		t.Errorf("expected high bytes {0x01,0x02}, got %v", out)
	}
}

func newNearestStore(desc Descriptor, host []byte) *Store {
	return &Store{desc: desc, hostFrames: [][]byte{host}, interpolate: false}
}

func TestSampleNearestReturnsExactVoxel(t *testing.T) {
	desc := Descriptor{NX: 2, NY: 2, NZ: 2}
	host := []byte{0, 0, 0, 0, 0, 0, 0, 255} // voxel (1,1,1) is 255
	s := newNearestStore(desc, host)

	// Texture coordinate at the center of voxel (1,1,1): (1.5/2, 1.5/2, 1.5/2).
	v := s.Sample(raycast.Vec3{X: 0.75, Y: 0.75, Z: 0.75})
	if v != 1 {
		t.Errorf("expected normalized 1.0 at voxel (1,1,1), got %v", v)
	}
	zero := s.Sample(raycast.Vec3{X: 0.25, Y: 0.25, Z: 0.25})
	if zero != 0 {
		t.Errorf("expected normalized 0.0 at voxel (0,0,0), got %v", zero)
	}
}

func TestSampleTrilinearMidpoint(t *testing.T) {
	desc := Descriptor{NX: 2, NY: 1, NZ: 1}
	host := []byte{0, 255}
	s := &Store{desc: desc, hostFrames: [][]byte{host}, interpolate: true}

	// Exactly between voxel centers 0.25 and 0.75: should average to ~0.5.
	v := s.Sample(raycast.Vec3{X: 0.5, Y: 0.5, Z: 0.5})
	if v < 0.49 || v > 0.51 {
		t.Errorf("expected ~0.5 at the midpoint, got %v", v)
	}
}

func TestSampleClampsAddressing(t *testing.T) {
	desc := Descriptor{NX: 2, NY: 1, NZ: 1}
	host := []byte{10, 20}
	s := newNearestStore(desc, host)

	// Texture coordinates outside [0,1] must clamp to the edge voxel,
	// never index out of range.
	low := s.Sample(raycast.Vec3{X: -5, Y: 0.5, Z: 0.5})
	high := s.Sample(raycast.Vec3{X: 5, Y: 0.5, Z: 0.5})
	if low != 10.0/255 {
		t.Errorf("expected clamp to first voxel (10/255), got %v", low)
	}
	if high != 20.0/255 {
		t.Errorf("expected clamp to last voxel (20/255), got %v", high)
	}
}

func TestSampleEmptyStoreReturnsZero(t *testing.T) {
	s := NewStore(Descriptor{NX: 1, NY: 1, NZ: 1})
	if v := s.Sample(raycast.Vec3{}); v != 0 {
		t.Errorf("expected 0 for a store with no loaded frame, got %v", v)
	}
}

func TestDescriptorGeometry(t *testing.T) {
	d := Descriptor{NX: 4, NY: 4, NZ: 4, SX: 2, SY: 4, SZ: 6, PX: 1, PY: 2, PZ: 3}
	half := d.HalfSize()
	if half.X != 1 || half.Y != 2 || half.Z != 3 {
		t.Errorf("unexpected half size %v", half)
	}
	center := d.Center()
	if center.X != 1 || center.Y != 2 || center.Z != 3 {
		t.Errorf("unexpected center %v", center)
	}
}
