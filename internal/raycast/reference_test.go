package raycast

import (
	"math"
	"testing"
)

// identity is its own inverse; using it for both InverseMVP and MVP
// turns ray generation into a simple orthographic cast along +Z, with
// NDC (u,v) carried straight through to world (x,y).
func identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// swapYZ permutes (x,y,z) -> (x,z,y); it is its own inverse, used to
// point the orthographic ray along +Y instead of +Z for the clip-plane
// test below.
func swapYZ() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 0, 1, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
	}
}

type constVolume float32

func (c constVolume) Sample(Vec3) float32 { return float32(c) }

type countingVolume struct {
	inner VolumeSampler
	calls *int
}

func (c countingVolume) Sample(tc Vec3) float32 {
	*c.calls++
	return c.inner.Sample(tc)
}

type constTF Vec4

func (c constTF) Sample(float32) Vec4 { return Vec4(c) }

func baseInputs() *Inputs {
	return &Inputs{
		Width: 8, Height: 8, TexW: 8,
		VolPos: Vec3{}, VolHalf: Vec3{X: 1, Y: 1, Z: 1},
		ProbePos: Vec3{}, ProbeHalf: Vec3{X: 1, Y: 1, Z: 1},
		InverseMVP:     identity(),
		MVP:            identity(),
		Config:         Config{Quality: 4},
		DiagonalVoxels: 2, // n = 4*2 = 8 slices, d = 2/8 = 0.25, matching the box's full z-span
	}
}

// A ray that misses the probe box produces the zero pixel (and zero
// depth, when requested).
func TestMissScenarioIsZero(t *testing.T) {
	in := baseInputs()
	in.ProbePos = Vec3{X: 100, Y: 100, Z: 100} // far from every ray in this orthographic setup
	in.Volume = constVolume(0.5)
	in.TF = constTF{X: 1, Y: 1, Z: 1, W: 1}
	in.WantDepth = true

	rgba, depth, hasDepth := RenderPixel(in, 4, 4)
	if rgba != [4]byte{} {
		t.Errorf("expected zero pixel on miss, got %v", rgba)
	}
	if !hasDepth || depth != 0 {
		t.Errorf("expected zero depth on miss, got %v (hasDepth=%v)", depth, hasDepth)
	}
}

// MIP MAX with a fully opaque, constant transfer function yields the
// source color at full alpha, regardless of opacity-correction.
func TestSolidOpaqueMipMax(t *testing.T) {
	for _, oc := range []bool{false, true} {
		in := baseInputs()
		in.Volume = constVolume(128.0 / 255.0)
		in.TF = constTF{X: 0.5, Y: 0.5, Z: 0.5, W: 1}
		in.Config = Config{Quality: 4, MipMode: MipMax, OpacityCorrect: oc}
		in.DiagonalVoxels = 2

		rgba, _, _ := RenderPixel(in, 4, 4)
		want := [4]byte{128, 128, 128, 255}
		if rgba != want {
			t.Errorf("opacityCorrect=%v: expected %v, got %v", oc, want, rgba)
		}
	}
}

// Accumulated alpha never exceeds 1.0 (byte 255) in front-to-back
// compositing, even when every sample is fully opaque.
func TestAlphaNeverExceedsOne(t *testing.T) {
	in := baseInputs()
	in.Volume = constVolume(0.9)
	in.TF = constTF{X: 1, Y: 0, Z: 0, W: 1}
	in.Config = Config{Quality: 4, TerminateEarly: false}

	rgba, _, _ := RenderPixel(in, 4, 4)
	if rgba[3] > 255 {
		t.Fatalf("alpha byte %d exceeds 255", rgba[3])
	}
	if rgba[3] != 255 {
		t.Errorf("expected saturated alpha 255 for all-opaque samples, got %d", rgba[3])
	}
}

// Early ray termination consumes exactly one sample when the transfer
// function is fully opaque (the first sample's alpha already exceeds
// the 0.95 threshold), against n+1 samples when early termination is
// off.
func TestEarlyTerminationSampleCount(t *testing.T) {
	calls := 0
	in := baseInputs()
	in.Volume = countingVolume{inner: constVolume(0.5), calls: &calls}
	in.TF = constTF{X: 1, Y: 1, Z: 1, W: 1}
	in.Config = Config{Quality: 4, TerminateEarly: true}

	RenderPixel(in, 4, 4)
	if calls != 1 {
		t.Errorf("expected exactly 1 sample with early termination on full opacity, got %d", calls)
	}

	calls = 0
	in.Config = Config{Quality: 4, TerminateEarly: false}
	RenderPixel(in, 4, 4)
	expected := NumSlices(float64(in.Config.Quality), in.DiagonalVoxels) + 1
	if calls != expected {
		t.Errorf("expected %d samples with early termination off, got %d", expected, calls)
	}
}

// Re-rendering the same pixel with the same inputs is byte-identical.
func TestDeterministic(t *testing.T) {
	in := baseInputs()
	in.Volume = constVolume(0.4)
	in.TF = constTF{X: 0.2, Y: 0.6, Z: 0.1, W: 0.4}
	in.Config = Config{Quality: 4}

	a, da, ha := RenderPixel(in, 3, 5)
	b, db, hb := RenderPixel(in, 3, 5)
	if a != b || da != db || ha != hb {
		t.Errorf("expected identical output across runs, got %v/%v/%v vs %v/%v/%v", a, da, ha, b, db, hb)
	}
}

// A clip plane zeroes out contributions from samples on one side of it
// (t <= tpnear when N.dir >= 0) while samples past it accumulate
// normally.
func TestClipPlaneSplitsRay(t *testing.T) {
	in := baseInputs()
	in.InverseMVP = swapYZ()
	in.MVP = swapYZ()
	in.Volume = constVolume(0.5)
	in.TF = constTF{X: 1, Y: 1, Z: 1, W: 0.3}
	in.Config = Config{Quality: 4, ClipPlaneOn: true}
	in.DiagonalVoxels = 2
	in.ClipPlaneNormal = Vec3{X: 0, Y: 1, Z: 0}
	in.ClipPlaneDist = 0

	rgba, _, _ := RenderPixel(in, 4, 4)

	// 9 samples total (t=0,0.25,...,2.0); tpnear=1 so t<=1 (5 samples)
	// are clipped, leaving 4 unclipped samples that accumulate from a
	// fresh dst=(0,0,0,0).
	const alpha = 0.3
	unclipped := 4
	expectedW := 1 - math.Pow(1-alpha, float64(unclipped))
	expectedByte := byte(clamp01(float32(expectedW))*255 + 0.5)

	if diff := int(rgba[3]) - int(expectedByte); diff < -1 || diff > 1 {
		t.Errorf("expected alpha byte near %d (±1), got %d", expectedByte, rgba[3])
	}

	// Pushing the plane far ahead of the whole ray (tpnear >> tfar) puts
	// every sample on the clipped side: output must be zero.
	in.ClipPlaneDist = 10
	zero, _, _ := RenderPixel(in, 4, 4)
	if zero != ([4]byte{}) {
		t.Errorf("expected fully-clipped ray to be zero, got %v", zero)
	}
}

// A spherical region of interest restricts rendering to the probe
// sphere only while the ROI itself is active; the SphericalROI flag
// alone must not clip anything.
func TestSphericalROIRequiresActiveROI(t *testing.T) {
	in := baseInputs()
	in.Volume = constVolume(0.5)
	in.TF = constTF{X: 1, Y: 1, Z: 1, W: 1}
	in.ClipSphereCenter = Vec3{}
	in.ClipSphereRadiusSq = 1

	// The corner ray (x=-1, y=-1) crosses the probe box but misses the
	// unit probe sphere entirely.
	in.Config = Config{Quality: 4, ROIUsed: true, SphericalROI: true}
	rgba, _, _ := RenderPixel(in, 0, 0)
	if rgba != ([4]byte{}) {
		t.Errorf("expected the corner ray to miss the spherical probe, got %v", rgba)
	}

	// The center ray passes through the sphere and accumulates.
	center, _, _ := RenderPixel(in, 4, 4)
	if center == ([4]byte{}) {
		t.Error("expected the center ray to hit the spherical probe")
	}

	// Without an active ROI the same flag and sphere fields must leave
	// the output identical to a plain box render.
	in.Config = Config{Quality: 4, SphericalROI: true}
	withFlag, _, _ := RenderPixel(in, 0, 0)
	in.Config = Config{Quality: 4}
	plain, _, _ := RenderPixel(in, 0, 0)
	if withFlag != plain {
		t.Errorf("SphericalROI without an active ROI must not clip: %v vs %v", withFlag, plain)
	}
	if plain == ([4]byte{}) {
		t.Error("expected the corner ray to accumulate against the box probe")
	}
}

// Early termination must never change the final byte in MIP
// compositing, since it is disabled there by Config.Normalized
// regardless of the caller's setting.
func TestEarlyTerminationDisabledUnderMip(t *testing.T) {
	in := baseInputs()
	in.Volume = constVolume(0.6)
	in.TF = constTF{X: 0.9, Y: 0.1, Z: 0.1, W: 1}
	in.Background = Vec4{}

	in.Config = Config{Quality: 4, MipMode: MipMax, TerminateEarly: true}
	withET, _, _ := RenderPixel(in, 4, 4)

	in.Config = Config{Quality: 4, MipMode: MipMax, TerminateEarly: false}
	withoutET, _, _ := RenderPixel(in, 4, 4)

	if withET != withoutET {
		t.Errorf("MIP mode output must not depend on TerminateEarly: %v vs %v", withET, withoutET)
	}
}

// slabVolume is opaque only in a thin z-slab of texture space, zero
// elsewhere.
type slabVolume struct {
	zmin, zmax float32
}

func (s slabVolume) Sample(tc Vec3) float32 {
	if tc.Z >= s.zmin && tc.Z <= s.zmax {
		return 1
	}
	return 0
}

// funcTF adapts a plain function to the TransferFunctionSampler
// interface.
type funcTF func(s float32) Vec4

func (f funcTF) Sample(s float32) Vec4 { return f(s) }

// With per-sample alpha 0.5 and no opacity correction, front-to-back
// accumulation crosses the 0.95 termination threshold on
// the fifth sample (1 - 0.5^5 = 0.96875), and the premultiplied red
// channel tracks the accumulated alpha exactly.
func TestFrontToBackAccumulationTerminates(t *testing.T) {
	calls := 0
	in := baseInputs()
	in.Volume = countingVolume{inner: constVolume(64.0 / 255.0), calls: &calls}
	in.TF = constTF{X: 1, Y: 1, Z: 0, W: 0.5}
	in.Config = Config{Quality: 4, TerminateEarly: true}

	rgba, _, _ := RenderPixel(in, 4, 4)
	if calls != 5 {
		t.Errorf("expected the threshold crossed on sample 5, got %d samples", calls)
	}
	want := byte(clamp01(1-float32(math.Pow(0.5, 5)))*255 + 0.5)
	if rgba[3] != want {
		t.Errorf("expected alpha byte %d, got %d", want, rgba[3])
	}
	if rgba[0] != want || rgba[1] != want || rgba[2] != 0 {
		t.Errorf("expected premultiplied rgb (%d,%d,0), got (%d,%d,%d)", want, want, rgba[0], rgba[1], rgba[2])
	}
}

// Round-trip property: for a uniform volume of scalar c and a transfer
// function rgb(s)=(s,s,s), alpha(s)=a, the composited pixel matches the
// closed form c * (1 - (1-a)^N) per channel.
func TestRoundTripAgainstAnalyticReference(t *testing.T) {
	const c = 0.5
	const a = 0.2
	in := baseInputs()
	in.Volume = constVolume(c)
	in.TF = funcTF(func(s float32) Vec4 { return Vec4{X: s, Y: s, Z: s, W: a} })
	in.Config = Config{Quality: 4}

	rgba, _, _ := RenderPixel(in, 4, 4)

	// 9 samples along the box's full z-span at d = 0.25.
	alpha := 1 - math.Pow(1-a, 9)
	wantA := byte(clamp01(float32(alpha))*255 + 0.5)
	wantR := byte(clamp01(float32(c*alpha))*255 + 0.5)
	if diff := int(rgba[3]) - int(wantA); diff < -1 || diff > 1 {
		t.Errorf("expected alpha byte near %d, got %d", wantA, rgba[3])
	}
	if diff := int(rgba[0]) - int(wantR); diff < -1 || diff > 1 {
		t.Errorf("expected red byte near %d, got %d", wantR, rgba[0])
	}
}

// An opaque slab centered at z=0 puts the maximum alpha increment at
// the sample point z=0, whose window depth under identity matrices is
// exactly 0.5, quantized to 32767 at 16-bit precision.
func TestDepthEmissionU16(t *testing.T) {
	in := baseInputs()
	in.Volume = slabVolume{zmin: 0.45, zmax: 0.55}
	in.TF = funcTF(func(s float32) Vec4 {
		return Vec4{X: s, Y: s, Z: s, W: s}
	})
	in.Config = Config{Quality: 4, DepthPrecision: DepthU16}
	in.WantDepth = true

	_, depth, hasDepth := RenderPixel(in, 4, 4)
	if !hasDepth {
		t.Fatal("expected a depth value with WantDepth set")
	}
	if depth != 32767 {
		t.Errorf("expected depth 32767 (window z 0.5 at 16-bit), got %d", depth)
	}
}

func TestNumSlicesMonotonic(t *testing.T) {
	prev := NumSlices(0.1, 10)
	for _, q := range []float64{0.2, 0.5, 1, 2, 4} {
		n := NumSlices(q, 10)
		if n < prev {
			t.Errorf("NumSlices should be non-decreasing in quality: q=%v got %d after %d", q, n, prev)
		}
		prev = n
	}
}

func TestNumSlicesAtLeastOne(t *testing.T) {
	if n := NumSlices(0, 10); n != 1 {
		t.Errorf("NumSlices(0, ...) should floor to 1, got %d", n)
	}
}
