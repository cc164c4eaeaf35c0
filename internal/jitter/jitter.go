// Package jitter implements the fixed-size table of pseudorandom offsets
// used to dither ray start positions and break up slice-aliasing.
package jitter

import (
	"math/rand"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"volray/internal/raycast"
)

// NumRandVecs is the fixed table size.
const NumRandVecs = 8192

// generate produces the deterministic table of offsets in [0,2) per
// component, apart from any device upload, so the sequence it produces
// can be exercised directly.
func generate(seed int64) [NumRandVecs]raycast.Vec3 {
	rng := rand.New(rand.NewSource(seed))
	var values [NumRandVecs]raycast.Vec3
	for i := 0; i < NumRandVecs; i++ {
		values[i] = raycast.Vec3{
			X: rng.Float32() * 2.0,
			Y: rng.Float32() * 2.0,
			Z: rng.Float32() * 2.0,
		}
	}
	return values
}

// Table is the device 1-D texture plus the host-side mirror CPU code
// samples directly.
type Table struct {
	values [NumRandVecs]raycast.Vec3
	tex    uint32
	ready  bool
}

// EnsureInitialized generates the table once, deterministically from
// seed; repeated calls are a no-op, so the noise pattern stays coherent
// across frames and reproducible across runs.
func (t *Table) EnsureInitialized(seed int64) {
	if t.ready {
		return
	}
	t.values = generate(seed)
	flat := make([]float32, NumRandVecs*3)
	for i, v := range t.values {
		flat[i*3+0] = v.X
		flat[i*3+1] = v.Y
		flat[i*3+2] = v.Z
	}

	gl.GenTextures(1, &t.tex)
	gl.BindTexture(gl.TEXTURE_1D, t.tex)
	gl.TexImage1D(gl.TEXTURE_1D, 0, gl.RGB32F, NumRandVecs, 0, gl.RGB, gl.FLOAT, unsafe.Pointer(&flat[0]))
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.BindTexture(gl.TEXTURE_1D, 0)

	t.ready = true
}

// At implements raycast.JitterSource. The table is RGB-only; the kernel
// never reads an alpha component.
func (t *Table) At(index int) raycast.Vec3 {
	return t.values[((index%NumRandVecs)+NumRandVecs)%NumRandVecs]
}

// GLTexture returns the device texture id.
func (t *Table) GLTexture() uint32 { return t.tex }

// Destroy releases the device texture.
func (t *Table) Destroy() {
	if t.tex != 0 {
		gl.DeleteTextures(1, &t.tex)
		t.tex = 0
	}
	t.ready = false
}
