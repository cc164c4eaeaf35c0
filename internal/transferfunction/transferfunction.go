// Package transferfunction implements the 1-D RGBA lookup table that
// pre-classifies each volume sample before compositing.
package transferfunction

import (
	"fmt"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"volray/core"
	"volray/internal/raycast"
)

func glPtr(f []float32) unsafe.Pointer {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Pointer(&f[0])
}

const (
	Size8Bit  = 256
	Size16Bit = 4096
)

// Table is the device 1-D texture plus a host-side mirror used for CPU
// sampling (tests, reference kernel, and space-skipping grid rebuilds).
type Table struct {
	size int
	lut  []raycast.Vec4 // host mirror, length == size
	tex  uint32
}

// NewTable creates an all-zero table sized for bpc (1 -> 256, 2 -> 4096).
func NewTable(bpc int) (*Table, error) {
	size := Size8Bit
	if bpc == 2 {
		size = Size16Bit
	} else if bpc != 1 {
		return nil, core.ErrUnsupportedFormat
	}
	t := &Table{size: size, lut: make([]raycast.Vec4, size)}
	gl.GenTextures(1, &t.tex)
	if err := t.upload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Size returns L, the lookup table length.
func (t *Table) Size() int { return t.size }

// Recompute receives L RGBA floats and reuploads them in place into the
// same 1-D texture object. The upload finishes before Recompute returns,
// so a kernel launched afterwards on the same host thread only ever sees
// the complete new table.
func (t *Table) Recompute(lut []core.Color) error {
	if len(lut) != t.size {
		return fmt.Errorf("transferfunction: expected %d entries, got %d: %w", t.size, len(lut), core.ErrUnsupportedFormat)
	}
	next := make([]raycast.Vec4, t.size)
	for i, c := range lut {
		next[i] = raycast.Vec4{X: c.R, Y: c.G, Z: c.B, W: c.A}
	}
	t.lut = next
	return t.upload()
}

func (t *Table) upload() error {
	flat := make([]float32, t.size*4)
	for i, v := range t.lut {
		flat[i*4+0] = v.X
		flat[i*4+1] = v.Y
		flat[i*4+2] = v.Z
		flat[i*4+3] = v.W
	}
	gl.BindTexture(gl.TEXTURE_1D, t.tex)
	gl.TexImage1D(gl.TEXTURE_1D, 0, gl.RGBA32F, int32(t.size), 0, gl.RGBA, gl.FLOAT, glPtr(flat))
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_1D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_1D, 0)
	return nil
}

// GLTexture returns the device texture id.
func (t *Table) GLTexture() uint32 { return t.tex }

// Destroy releases the device texture.
func (t *Table) Destroy() {
	if t.tex != 0 {
		gl.DeleteTextures(1, &t.tex)
		t.tex = 0
	}
}

// Sample implements raycast.TransferFunctionSampler: s is a normalized
// scalar in [0,1], linearly filtered across the table exactly like the
// device sampler (clamp addressing, linear filtering).
func (t *Table) Sample(s float32) raycast.Vec4 {
	if len(t.lut) == 0 {
		return raycast.Vec4{}
	}
	f := s*float32(t.size) - 0.5
	i0 := int(f)
	frac := f - float32(i0)
	if f < 0 {
		i0 = 0
		frac = 0
	}
	i1 := i0 + 1
	if i0 < 0 {
		i0 = 0
	}
	if i0 > t.size-1 {
		i0 = t.size - 1
	}
	if i1 > t.size-1 {
		i1 = t.size - 1
	}
	a := t.lut[i0]
	b := t.lut[i1]
	return raycast.Vec4{
		X: a.X + (b.X-a.X)*frac,
		Y: a.Y + (b.Y-a.Y)*frac,
		Z: a.Z + (b.Z-a.Z)*frac,
		W: a.W + (b.W-a.W)*frac,
	}
}

// AlphaAt returns the opacity at raw scalar index i (0..size-1), used by
// the space-skipping grid's "every scalar in range maps to zero alpha"
// test.
func (t *Table) AlphaAt(i int) float32 {
	if i < 0 || i >= len(t.lut) {
		return 0
	}
	return t.lut[i].W
}
