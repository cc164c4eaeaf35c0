package raycast

import "math"

// VolumeSampler returns the normalized scalar ([0,1]) at a texture
// coordinate in [0,1]^3. Implemented by internal/volume.Store.
type VolumeSampler interface {
	Sample(tc Vec3) float32
}

// TransferFunctionSampler classifies a normalized scalar into RGBA.
// Implemented by internal/transferfunction.Table.
type TransferFunctionSampler interface {
	Sample(s float32) Vec4
}

// JitterSource returns the dithering offset for a given linear pixel
// index. Implemented by internal/jitter.Table.
type JitterSource interface {
	At(index int) Vec3
}

// SkipGridSampler reports whether a texture coordinate falls in a cell
// the transfer function maps entirely to zero alpha. Implemented by
// internal/skipgrid.Grid.
type SkipGridSampler interface {
	Skippable(tc Vec3) bool
}

const (
	numRandVecs           = 8192
	earlyTerminationAlpha = 0.95
	lightingAlphaGate     = 0.1
	gradientDelta         = 0.01
	shininess             = 1000
)

var (
	kd = Vec3{0.8, 0.8, 0.8}
	ks = Vec3{0.8, 0.8, 0.8}
)

// Inputs bundles everything a single kernel launch needs.
type Inputs struct {
	Width, Height, TexW int
	Background          Vec4

	VolPos, VolHalf     Vec3
	ProbePos, ProbeHalf Vec3

	L Vec3 // light direction, unit, pointing toward the light
	H Vec3 // half-vector between L and the (fixed) view direction

	ClipSphereCenter   Vec3
	ClipSphereRadiusSq float32

	ClipPlaneNormal Vec3 // unit
	ClipPlaneDist   float32

	InverseMVP Mat4
	MVP        Mat4

	Volume   VolumeSampler
	TF       TransferFunctionSampler
	Jitter   JitterSource
	SkipGrid SkipGridSampler

	Config Config

	DiagonalVoxels float64

	// WantDepth requests depth emission; when false no depth value is
	// emitted (the per-sample max-alpha bookkeeping still runs).
	WantDepth bool
}

// stepDistance and sampleCount are derived once per launch from
// Config.Quality and the volume's diagonal in voxel units.
func (in *Inputs) stepDistance() float32 {
	return StepDistance(float64(in.Config.Quality), in.DiagonalVoxels)
}

func (in *Inputs) sampleCount() int {
	return NumSlices(float64(in.Config.Quality), in.DiagonalVoxels)
}

// Render runs the full kernel over every pixel of the launch, writing
// RGBA8 bytes into outRGBA (length >= texW*height*4) and, if outDepth is
// non-nil, the quantized depth value per the configured precision.
func Render(in *Inputs, outRGBA []byte, outDepth []byte) {
	cfg := in.Config.Normalized()
	d := in.stepDistance()
	n := in.sampleCount()

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			rgba, depth, hasDepth := renderPixel(in, cfg, d, n, x, y)
			base := (y*in.TexW + x) * 4
			outRGBA[base+0] = rgba[0]
			outRGBA[base+1] = rgba[1]
			outRGBA[base+2] = rgba[2]
			outRGBA[base+3] = rgba[3]
			if outDepth != nil && hasDepth {
				writeDepth(outDepth, (y*in.TexW + x), cfg.DepthPrecision, depth)
			}
		}
	}
}

// RenderPixel exposes the single-pixel kernel directly; the package's
// tests are expressed against this entry point.
func RenderPixel(in *Inputs, x, y int) (rgba [4]byte, depth uint32, hasDepth bool) {
	cfg := in.Config.Normalized()
	d := in.stepDistance()
	n := in.sampleCount()
	return renderPixel(in, cfg, d, n, x, y)
}

func renderPixel(in *Inputs, cfg Config, d float32, n int, x, y int) (rgba [4]byte, depth uint32, hasDepth bool) {
	width, height := float32(in.Width), float32(in.Height)
	u := 2*float32(x)/width - 1
	v := 2*float32(y)/height - 1

	originH := in.InverseMVP.MulVec4(Vec4{u, v, -1, 1})
	farH := in.InverseMVP.MulVec4(Vec4{u, v, 1, 1})
	origin := originH.ToVec3DivW()
	dir := farH.ToVec3DivW().Sub(origin).Normalize()

	probeMin := in.ProbePos.Sub(in.ProbeHalf)
	probeMax := in.ProbePos.Add(in.ProbeHalf)

	var tnear, tfar float32
	var hit bool
	if cfg.ROIUsed && cfg.SphericalROI {
		tnear, tfar, hit = sphereIntersect(origin, dir, in.ProbePos, in.ProbeHalf.X*in.ProbeHalf.X)
	} else {
		tnear, tfar, hit = slabIntersect(origin, dir, probeMin, probeMax)
	}
	if !hit {
		return [4]byte{}, 0, in.wantsDepth()
	}

	// Step 3: quantize tnear to a multiple of d, clamp to >= 0.
	if tnear < 0 {
		tnear = 0
	}
	if d > 0 {
		tnear = float32(math.Floor(float64(tnear/d))) * d
	}

	// Step 4: optional clip sphere. Only meaningful while the ROI is
	// active and spherical; the SphericalROI flag alone clips nothing.
	if cfg.ROIUsed && cfg.SphericalROI && in.ClipSphereRadiusSq > 0 {
		_, _, sphereHit := sphereIntersect(origin, dir, in.ClipSphereCenter, in.ClipSphereRadiusSq)
		if !sphereHit {
			return [4]byte{}, 0, in.wantsDepth()
		}
	}

	// Step 5: optional clip plane.
	var tpnear float32
	var nddot float32
	if cfg.ClipPlaneOn {
		nddot = in.ClipPlaneNormal.Dot(dir)
		if nddot == 0 {
			nddot = 1e-8
		}
		tpnear = (in.ClipPlaneDist - in.ClipPlaneNormal.Dot(origin)) / nddot
	}

	// Step 6: initialize destination.
	var dst Vec4
	if cfg.MipMode != MipNone {
		dst = in.Background
	}

	// Step 7: optional jitter applied to the starting position.
	pos := origin.Add(dir.Scale(tnear))
	if cfg.Jittering && in.Jitter != nil {
		idx := (y*in.Width + x) % numRandVecs
		jv := in.Jitter.At(idx)
		pos = pos.Add(jv.Scale(d))
	}

	var lastAlpha float32
	var maxDiff float32
	maxDiffPos := pos
	wasClipped := false

	t := tnear
	for i := 0; i < n+1 && t <= tfar; i++ {
		clippedNow := false
		if cfg.ClipPlaneOn {
			if (t <= tpnear && nddot >= 0) || (t >= tpnear && nddot < 0) {
				clippedNow = true
			}
		}
		if clippedNow {
			wasClipped = true
			t += d
			pos = pos.Add(dir.Scale(d))
			continue
		}

		tc := Vec3{
			X: (pos.X - in.VolPos.X + in.VolHalf.X) / (2 * in.VolHalf.X),
			Y: (pos.Y - in.VolPos.Y + in.VolHalf.Y) / (2 * in.VolHalf.Y),
			Z: (pos.Z - in.VolPos.Z + in.VolHalf.Z) / (2 * in.VolHalf.Z),
		}

		if cfg.SpaceSkipping && in.SkipGrid != nil && in.SkipGrid.Skippable(tc) {
			t += d
			pos = pos.Add(dir.Scale(d))
			wasClipped = false
			continue
		}

		s := in.Volume.Sample(tc)
		src := in.TF.Sample(s)

		if cfg.MipMode == MipMax {
			dst = Vec4{maxf(dst.X, src.X), maxf(dst.Y, src.Y), maxf(dst.Z, src.Z), 1}
		} else if cfg.MipMode == MipMin {
			dst = Vec4{minf(dst.X, src.X), minf(dst.Y, src.Y), minf(dst.Z, src.Z), 1}
		} else {
			if cfg.Lighting && src.W > lightingAlphaGate {
				src = shade(in, tc, src, wasClipped)
			}
			if cfg.OpacityCorrect {
				src.W = 1 - powf(1-src.W, d)
			}
			src.X *= src.W
			src.Y *= src.W
			src.Z *= src.W
			inv := 1 - dst.W
			dst.X += src.X * inv
			dst.Y += src.Y * inv
			dst.Z += src.Z * inv
			dst.W += src.W * inv
		}
		wasClipped = false

		if dst.W-lastAlpha > maxDiff {
			maxDiff = dst.W - lastAlpha
			maxDiffPos = pos
		}
		lastAlpha = dst.W

		if cfg.MipMode == MipNone && cfg.TerminateEarly && dst.W > earlyTerminationAlpha {
			break
		}

		t += d
		if t > tfar {
			break
		}
		pos = pos.Add(dir.Scale(d))
	}

	rgba = [4]byte{
		byteClamp(dst.X),
		byteClamp(dst.Y),
		byteClamp(dst.Z),
		byteClamp(dst.W),
	}

	if in.wantsDepth() {
		depth, hasDepth = emitDepth(in, maxDiffPos, cfg.DepthPrecision)
	}
	return rgba, depth, hasDepth
}

func shade(in *Inputs, tc Vec3, src Vec4, wasClipped bool) Vec4 {
	delta := float32(gradientDelta)
	gx := in.Volume.Sample(Vec3{tc.X + delta, tc.Y, tc.Z}) - in.Volume.Sample(Vec3{tc.X - delta, tc.Y, tc.Z})
	gy := in.Volume.Sample(Vec3{tc.X, tc.Y + delta, tc.Z}) - in.Volume.Sample(Vec3{tc.X, tc.Y - delta, tc.Z})
	gz := in.Volume.Sample(Vec3{tc.X, tc.Y, tc.Z + delta}) - in.Volume.Sample(Vec3{tc.X, tc.Y, tc.Z - delta})
	n := Vec3{gx, gy, gz}.Normalize()

	if wasClipped {
		n = n.Scale(1 - src.W).Add(in.ClipPlaneNormal.Scale(src.W)).Normalize()
	}

	diffuse := maxf(n.Dot(in.L), 0)
	color := Vec3{src.X, src.Y, src.Z}.Scale(diffuse)
	color = Vec3{color.X * kd.X, color.Y * kd.Y, color.Z * kd.Z}

	if diffuse > 0 {
		spec := powf(maxf(n.Dot(in.H), 0), shininess)
		if spec > 0 {
			color = color.Add(ks.Scale(spec))
		}
	}

	return Vec4{color.X, color.Y, color.Z, src.W}
}

func emitDepth(in *Inputs, pos Vec3, precision DepthPrecision) (uint32, bool) {
	clip := in.MVP.MulVec4(Vec4{pos.X, pos.Y, pos.Z, 1})
	if clip.W == 0 {
		return 0, true
	}
	ndcZ := clip.Z / clip.W
	z01 := clamp01((ndcZ + 1) * 0.5)
	switch precision {
	case DepthU16:
		return uint32(z01 * 65535), true
	case DepthU32:
		return uint32(float64(z01) * 4294967295), true
	default:
		return uint32(z01 * 255), true
	}
}

func writeDepth(buf []byte, idx int, precision DepthPrecision, v uint32) {
	switch precision {
	case DepthU16:
		o := idx * 2
		buf[o] = byte(v)
		buf[o+1] = byte(v >> 8)
	case DepthU32:
		o := idx * 4
		buf[o] = byte(v)
		buf[o+1] = byte(v >> 8)
		buf[o+2] = byte(v >> 16)
		buf[o+3] = byte(v >> 24)
	default:
		buf[idx] = byte(v)
	}
}

func (in *Inputs) wantsDepth() bool {
	return in.WantDepth
}

func slabIntersect(origin, dir, boxMin, boxMax Vec3) (tnear, tfar float32, hit bool) {
	tnear = float32(math.Inf(-1))
	tfar = float32(math.Inf(1))

	for axis := 0; axis < 3; axis++ {
		o, dd, mn, mx := component(origin, axis), component(dir, axis), component(boxMin, axis), component(boxMax, axis)
		if dd == 0 {
			if o < mn || o > mx {
				return 0, 0, false
			}
			continue
		}
		t0 := (mn - o) / dd
		t1 := (mx - o) / dd
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tnear {
			tnear = t0
		}
		if t1 < tfar {
			tfar = t1
		}
		if tnear > tfar {
			return 0, 0, false
		}
	}
	if tfar < 0 {
		return 0, 0, false
	}
	return tnear, tfar, true
}

func sphereIntersect(origin, dir, center Vec3, radiusSq float32) (tnear, tfar float32, hit bool) {
	oc := origin.Sub(center)
	b := 2 * oc.Dot(dir)
	c := oc.Dot(oc) - radiusSq
	disc := b*b - 4*c
	if disc < 0 {
		return 0, 0, false
	}
	sq := float32(math.Sqrt(float64(disc)))
	t0 := (-b - sq) / 2
	t1 := (-b + sq) / 2
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	if t1 < 0 {
		return 0, 0, false
	}
	return t0, t1, true
}

func component(v Vec3, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func powf(base, exp float32) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}

func byteClamp(v float32) byte {
	v = clamp01(v)
	return byte(v*255 + 0.5)
}
