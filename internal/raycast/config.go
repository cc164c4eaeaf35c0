// Package raycast implements the per-pixel volume ray-casting kernel: a
// GPU compute-shader specialization (kernel.go, dispatcher.go) and a
// byte-for-byte equivalent pure-Go reference (reference.go) that runs
// without a GPU; the package's tests run against it.
package raycast

import "math"

// MipMode selects the compositing mode of the kernel.
type MipMode int

const (
	MipNone MipMode = iota
	MipMax
	MipMin
)

// DepthPrecision selects the quantization of the emitted depth value.
type DepthPrecision int

const (
	DepthU8 DepthPrecision = iota
	DepthU16
	DepthU32
)

// Config is the Boolean/enum configuration lattice the kernel is
// specialized over: ten independent flags that together select one of
// roughly 2^10 kernel variants.
type Config struct {
	Interpolation  bool
	Lighting       bool
	OpacityCorrect bool
	TerminateEarly bool
	MipMode        MipMode
	ROIUsed        bool
	SphericalROI   bool
	ClipPlaneOn    bool
	SpaceSkipping  bool
	Jittering      bool
	Quality        float32
	DepthPrecision DepthPrecision
}

// Normalized returns a copy of c with the dispatcher-mandated invariant
// applied: early ray termination is never active outside NONE compositing.
func (c Config) Normalized() Config {
	if c.MipMode != MipNone {
		c.TerminateEarly = false
	}
	return c
}

// key is the specialization cache key: one entry per reachable point in
// the configuration lattice, never the full 2^10 cross-product.
type key struct {
	interpolation  bool
	lighting       bool
	opacityCorrect bool
	terminateEarly bool
	mipMode        MipMode
	roiUsed        bool
	sphericalROI   bool
	clipPlaneOn    bool
	spaceSkipping  bool
	jittering      bool
	depthPrecision DepthPrecision
}

func (c Config) key() key {
	n := c.Normalized()
	return key{
		interpolation:  n.Interpolation,
		lighting:       n.Lighting,
		opacityCorrect: n.OpacityCorrect,
		terminateEarly: n.TerminateEarly,
		mipMode:        n.MipMode,
		roiUsed:        n.ROIUsed,
		sphericalROI:   n.SphericalROI,
		clipPlaneOn:    n.ClipPlaneOn,
		spaceSkipping:  n.SpaceSkipping,
		jittering:      n.Jittering,
		depthPrecision: n.DepthPrecision,
	}
}

// NumSlices derives the per-ray sample count from quality and the
// object-space diagonal of the volume, in voxel units.
func NumSlices(quality, diagonalVoxels float64) int {
	n := int(quality * diagonalVoxels)
	if n < 1 {
		n = 1
	}
	return n
}

// StepDistance returns the fixed ray-march step `d` for a given quality
// and voxel-space diagonal length.
func StepDistance(quality, diagonalVoxels float64) float32 {
	n := NumSlices(quality, diagonalVoxels)
	return float32(diagonalVoxels / float64(n))
}

// Vec3 is a minimal float32 triple, independent of the host math package,
// so the kernel has no dependency beyond plain arithmetic.
type Vec3 struct {
	X, Y, Z float32
}

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float32) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}
func (a Vec3) Dot(b Vec3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Length() float32 {
	return float32(math.Sqrt(float64(a.Dot(a))))
}
func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return a
	}
	return a.Scale(1 / l)
}

// Vec4 is a minimal float32 quadruple used for RGBA accumulation.
type Vec4 struct {
	X, Y, Z, W float32
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
