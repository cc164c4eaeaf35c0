package raycast

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// Dispatcher picks the specialization matching the current renderer
// state, uploads matrices, binds samplers, and issues the kernel.
// Programs are compiled lazily and cached by specialization key, so
// only the configurations a session actually reaches ever pay the
// compile cost.
type Dispatcher struct {
	programs map[progKey]uint32
}

// progKey extends the configuration lattice key with the one launch
// property that also changes the generated source: whether a depth
// image is bound.
type progKey struct {
	key
	wantDepth bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{programs: make(map[progKey]uint32)}
}

// programFor returns the compiled compute program for cfg, compiling and
// caching it on first use.
func (d *Dispatcher) programFor(cfg Config, wantDepth bool) (uint32, error) {
	cfg = cfg.Normalized()
	k := progKey{key: cfg.key(), wantDepth: wantDepth}
	if prog, ok := d.programs[k]; ok {
		return prog, nil
	}
	src := specializationSource(cfg, wantDepth)
	prog, err := compileComputeProgram(src)
	if err != nil {
		return 0, fmt.Errorf("raycast: dispatcher: %w", err)
	}
	d.programs[k] = prog
	return prog, nil
}

// LaunchParams carries everything a GPU dispatch needs beyond the
// configuration: bound texture units and device constants.
type LaunchParams struct {
	VolumeTex   uint32
	TFTex       uint32
	SkipTex     uint32 // 0 if SpaceSkipping disabled
	JitterTex   uint32 // 0 if Jittering disabled
	OutColorTex uint32
	OutDepthTex uint32 // 0 if depth not requested

	VolDim       [3]int32 // voxels per axis, for the skip-cell lookup
	SkipGridDim  [3]int32
	SkipCellSize [3]int32

	Width, Height, TexW int
	InverseMVP, MVP     Mat4
	Background          Vec4
	VolPos, VolHalf     Vec3
	ProbePos, ProbeHalf Vec3
	L, H                Vec3
	ClipSphereCenter    Vec3
	ClipSphereRadiusSq  float32
	ClipPlaneNormal     Vec3
	ClipPlaneDist       float32
	StepDistance        float32
	NumSlices           int
}

const blockSize = 16

// Launch binds the specialized program for cfg and dispatches one GPU
// thread per output pixel, in 16x16 blocks.
func (d *Dispatcher) Launch(cfg Config, p LaunchParams) error {
	wantDepth := p.OutDepthTex != 0
	prog, err := d.programFor(cfg, wantDepth)
	if err != nil {
		return err
	}

	gl.UseProgram(prog)

	gl.BindImageTexture(0, p.OutColorTex, 0, false, 0, gl.WRITE_ONLY, gl.RGBA8)
	if wantDepth {
		gl.BindImageTexture(1, p.OutDepthTex, 0, false, 0, gl.WRITE_ONLY, depthImageFormat(cfg.Normalized().DepthPrecision))
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_3D, p.VolumeTex)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("volumeTex\x00")), 0)

	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_1D, p.TFTex)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("tfTex\x00")), 1)

	if cfg.Normalized().SpaceSkipping && p.SkipTex != 0 {
		gl.ActiveTexture(gl.TEXTURE2)
		gl.BindTexture(gl.TEXTURE_3D, p.SkipTex)
		gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("skipTex\x00")), 2)
		gl.Uniform3i(gl.GetUniformLocation(prog, gl.Str("volDim\x00")), p.VolDim[0], p.VolDim[1], p.VolDim[2])
		gl.Uniform3i(gl.GetUniformLocation(prog, gl.Str("skipGridDim\x00")), p.SkipGridDim[0], p.SkipGridDim[1], p.SkipGridDim[2])
		gl.Uniform3i(gl.GetUniformLocation(prog, gl.Str("skipCellSize\x00")), p.SkipCellSize[0], p.SkipCellSize[1], p.SkipCellSize[2])
	}
	if cfg.Normalized().Jittering && p.JitterTex != 0 {
		gl.ActiveTexture(gl.TEXTURE3)
		gl.BindTexture(gl.TEXTURE_1D, p.JitterTex)
		gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("jitterTex\x00")), 3)
	}

	setMat4(prog, "invMVP", p.InverseMVP)
	setMat4(prog, "mvp", p.MVP)
	gl.Uniform4f(gl.GetUniformLocation(prog, gl.Str("background\x00")), p.Background.X, p.Background.Y, p.Background.Z, p.Background.W)
	setVec3(prog, "volPos", p.VolPos)
	setVec3(prog, "volHalf", p.VolHalf)
	setVec3(prog, "probePos", p.ProbePos)
	setVec3(prog, "probeHalf", p.ProbeHalf)
	setVec3(prog, "lightDir", p.L)
	setVec3(prog, "halfVec", p.H)
	setVec3(prog, "clipSphereCenter", p.ClipSphereCenter)
	gl.Uniform1f(gl.GetUniformLocation(prog, gl.Str("clipSphereRadiusSq\x00")), p.ClipSphereRadiusSq)
	setVec3(prog, "clipPlaneNormal", p.ClipPlaneNormal)
	gl.Uniform1f(gl.GetUniformLocation(prog, gl.Str("clipPlaneDist\x00")), p.ClipPlaneDist)
	gl.Uniform1f(gl.GetUniformLocation(prog, gl.Str("stepDistance\x00")), p.StepDistance)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("numSlices\x00")), int32(p.NumSlices))
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("texW\x00")), int32(p.TexW))
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("width\x00")), int32(p.Width))
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("height\x00")), int32(p.Height))

	gx := (p.Width + blockSize - 1) / blockSize
	gy := (p.Height + blockSize - 1) / blockSize
	gl.DispatchCompute(uint32(gx), uint32(gy), 1)
	gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
	return nil
}

func setMat4(prog uint32, name string, m Mat4) {
	flat := [16]float32{
		m[0][0], m[0][1], m[0][2], m[0][3],
		m[1][0], m[1][1], m[1][2], m[1][3],
		m[2][0], m[2][1], m[2][2], m[2][3],
		m[3][0], m[3][1], m[3][2], m[3][3],
	}
	gl.UniformMatrix4fv(gl.GetUniformLocation(prog, gl.Str(name+"\x00")), 1, false, &flat[0])
}

func depthImageFormat(p DepthPrecision) uint32 {
	switch p {
	case DepthU16:
		return gl.R16UI
	case DepthU32:
		return gl.R32UI
	default:
		return gl.R8UI
	}
}

func setVec3(prog uint32, name string, v Vec3) {
	gl.Uniform3f(gl.GetUniformLocation(prog, gl.Str(name+"\x00")), v.X, v.Y, v.Z)
}

// Destroy releases every compiled specialization.
func (d *Dispatcher) Destroy() {
	for _, prog := range d.programs {
		gl.DeleteProgram(prog)
	}
	d.programs = make(map[progKey]uint32)
}
