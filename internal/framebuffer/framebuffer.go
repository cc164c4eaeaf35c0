// Package framebuffer owns the kernel's output surface: an RGBA8 color
// image (possibly padded to a power-of-two texture width) and an
// optional depth image at a configured precision.
package framebuffer

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"volray/internal/raycast"
)

// FBO is the device-side output surface handed unchanged to the external
// presentation collaborator.
type FBO struct {
	ColorTex uint32
	DepthTex uint32 // 0 if depth disabled

	Width, Height int
	TexW          int // may be > Width, rounded up to a GPU-friendly size

	depthPrecision raycast.DepthPrecision
	wantDepth      bool
}

// New allocates color (and, if wantDepth, depth) device images sized for
// width x height, with the color image's storage width rounded up to the
// next power of two.
func New(width, height int, wantDepth bool, precision raycast.DepthPrecision) (*FBO, error) {
	f := &FBO{
		Width:          width,
		Height:         height,
		TexW:           nextPOT(width),
		wantDepth:      wantDepth,
		depthPrecision: precision,
	}
	if err := f.alloc(); err != nil {
		return nil, err
	}
	return f, nil
}

func nextPOT(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}

func (f *FBO) alloc() error {
	gl.GenTextures(1, &f.ColorTex)
	gl.BindTexture(gl.TEXTURE_2D, f.ColorTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(f.TexW), int32(f.Height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if f.wantDepth {
		gl.GenTextures(1, &f.DepthTex)
		gl.BindTexture(gl.TEXTURE_2D, f.DepthTex)
		internalFmt := depthInternalFormat(f.depthPrecision)
		gl.TexImage2D(gl.TEXTURE_2D, 0, internalFmt, int32(f.TexW), int32(f.Height), 0, gl.RED_INTEGER, gl.UNSIGNED_INT, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
	return nil
}

func depthInternalFormat(p raycast.DepthPrecision) int32 {
	switch p {
	case raycast.DepthU16:
		return gl.R16UI
	case raycast.DepthU32:
		return gl.R32UI
	default:
		return gl.R8UI
	}
}

// Resize reallocates both the color buffer and the depth buffer at the
// configured precision.
func (f *FBO) Resize(width, height int) error {
	f.free()
	f.Width, f.Height = width, height
	f.TexW = nextPOT(width)
	if err := f.alloc(); err != nil {
		return fmt.Errorf("framebuffer: resize: %w", err)
	}
	return nil
}

func (f *FBO) free() {
	if f.ColorTex != 0 {
		gl.DeleteTextures(1, &f.ColorTex)
		f.ColorTex = 0
	}
	if f.DepthTex != 0 {
		gl.DeleteTextures(1, &f.DepthTex)
		f.DepthTex = 0
	}
}

// Destroy releases every device allocation.
func (f *FBO) Destroy() {
	f.free()
}
