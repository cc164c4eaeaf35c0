// Package engine is the host-side orchestrator: it owns the volume
// store, transfer-function table, jitter table, optional space-skipping
// grid, camera, output framebuffer and kernel dispatcher, and runs the
// single-threaded per-frame sequence: update textures if dirty, upload
// matrices, launch the kernel, hand the framebuffer to the presenter.
package engine

import (
	"fmt"

	"volray/config"
	"volray/core"
	"volray/internal/camera"
	"volray/internal/framebuffer"
	"volray/internal/jitter"
	"volray/internal/present"
	"volray/internal/raycast"
	"volray/internal/skipgrid"
	"volray/internal/transferfunction"
	"volray/internal/volume"
)

// Engine is the renderer's top-level handle: construct one per loaded
// volume, call Render once per frame, Destroy on teardown.
type Engine struct {
	viability *core.Viability

	desc   volume.Descriptor
	store  *volume.Store
	tf     *transferfunction.Table
	jitter *jitter.Table
	skip   *skipgrid.Grid // nil unless SpaceSkipping is enabled and desc.BPC == 1

	camera     *camera.Camera
	fbo        *framebuffer.FBO
	dispatcher *raycast.Dispatcher
	blitter    *present.Blitter

	cfg config.RenderConfig

	background core.Color
}

// New allocates every device resource a fresh renderer needs: the
// transfer-function table sized for desc.BPC, the jitter table, the
// output framebuffer at width x height, and a dispatcher with no
// compiled specializations yet (populated lazily on first Render). The
// volume itself is loaded separately via LoadVolumeFrame, since a
// renderer may be constructed before any frame data is available.
func New(desc volume.Descriptor, width, height int, cfg config.RenderConfig) (*Engine, error) {
	if desc.BPC != 1 && desc.BPC != 2 {
		return nil, fmt.Errorf("engine: %w", core.ErrUnsupportedFormat)
	}

	tf, err := transferfunction.NewTable(desc.BPC)
	if err != nil {
		return nil, fmt.Errorf("engine: transfer function: %w", err)
	}

	fbo, err := framebuffer.New(width, height, cfg.WantDepth, toDepthPrecision(cfg))
	if err != nil {
		return nil, fmt.Errorf("engine: framebuffer: %w", err)
	}

	blitter, err := present.New()
	if err != nil {
		return nil, fmt.Errorf("engine: present: %w", err)
	}

	jitterTbl := &jitter.Table{}
	jitterTbl.EnsureInitialized(1)

	e := &Engine{
		viability:  core.NewViability(),
		desc:       desc,
		store:      volume.NewStore(desc),
		tf:         tf,
		jitter:     jitterTbl,
		camera:     camera.New(0.7, float32(width)/float32(height), 0.1, 1000.0),
		fbo:        fbo,
		dispatcher: raycast.NewDispatcher(),
		blitter:    blitter,
		cfg:        cfg,
		background: core.ColorBlack,
	}
	return e, nil
}

func toDepthPrecision(cfg config.RenderConfig) raycast.DepthPrecision {
	switch cfg.DepthPrecision {
	case config.DepthU16:
		return raycast.DepthU16
	case config.DepthU32:
		return raycast.DepthU32
	default:
		return raycast.DepthU8
	}
}

// Camera exposes the orchestrator's camera so callers (the demo's input
// handler) can reposition it between frames.
func (e *Engine) Camera() *camera.Camera { return e.camera }

// Viable reports whether the renderer is still willing to render
// frames.
func (e *Engine) Viable() bool { return e.viability.OK() }

// ViabilityReason returns the sentinel error that last tripped the
// viability flag, or nil if the renderer is currently viable.
func (e *Engine) ViabilityReason() error { return e.viability.Reason() }

// LoadVolumeFrame uploads one frame of raw voxel data. On device
// allocation failure the renderer's viability flag trips and every
// subsequent Render call is a no-op until the caller reconstructs the
// Engine.
func (e *Engine) LoadVolumeFrame(frame int, raw []byte) error {
	if err := e.store.LoadFrame(frame, raw); err != nil {
		e.viability.MarkFailed(err)
		return err
	}
	if e.cfg.SpaceSkipping && e.desc.BPC == 1 {
		e.rebuildSkipGridMinMax()
	}
	return nil
}

func (e *Engine) rebuildSkipGridMinMax() {
	host := e.store.HostVoxels(0)
	if host == nil {
		return
	}
	e.skip = skipgrid.BuildMinMax(e.desc, host, skipgrid.DefaultDim, skipgrid.DefaultDim, skipgrid.DefaultDim)
	e.skip.Recompute(e.tf)
}

// SetActiveFrame steps a time-varying volume to frame i; only that
// frame's texture is sampled by subsequent Render calls.
func (e *Engine) SetActiveFrame(i int) { e.store.SetActiveFrame(i) }

// SetTransferFunction reuploads the transfer function and, when
// space-skipping is enabled, recomputes the skip grid's boolean texture
// against the new table.
func (e *Engine) SetTransferFunction(lut []core.Color) error {
	if err := e.tf.Recompute(lut); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if e.skip != nil {
		e.skip.Recompute(e.tf)
	}
	return nil
}

// SetInterpolation toggles trilinear filtering on the volume sampler,
// rebuilding the device sampler state.
func (e *Engine) SetInterpolation(linear bool) {
	e.cfg.Interpolation = linear
	e.store.SetInterpolation(linear)
}

// SetBackground sets the color used as the initial destination in MIP
// compositing modes.
func (e *Engine) SetBackground(c core.Color) { e.background = c }

// Config returns the current render configuration.
func (e *Engine) Config() config.RenderConfig { return e.cfg }

// SetConfig replaces the render configuration wholesale (e.g. after
// loading a TOML settings file).
func (e *Engine) SetConfig(cfg config.RenderConfig) { e.cfg = cfg }

// Resize reallocates the output framebuffer and updates the camera's
// aspect ratio. The kernel still only ever writes width x height actual
// pixels even though the color texture may be wider.
func (e *Engine) Resize(width, height int) error {
	if err := e.fbo.Resize(width, height); err != nil {
		e.viability.MarkFailed(err)
		return err
	}
	e.camera.UpdateAspectRatio(float32(width), float32(height))
	return nil
}

// Render runs one synchronous frame: if the renderer is not viable it
// is a no-op; otherwise it uploads the current camera matrices,
// selects the kernel specialization for the current Config, dispatches
// one GPU thread per output pixel, and blits the result to the
// currently bound (typically default) framebuffer.
func (e *Engine) Render() error {
	if !e.viability.OK() {
		return fmt.Errorf("engine: render refused: %w", e.viability.Reason())
	}

	kcfg := e.cfg.ToKernelConfig()
	// Space skipping may be switched on after the volume was loaded; the
	// grid is then built here. Without a grid (bpc=2, or no frame loaded
	// yet) the kernel runs without skipping.
	if kcfg.SpaceSkipping && e.skip == nil && e.desc.BPC == 1 {
		e.rebuildSkipGridMinMax()
	}
	kcfg.SpaceSkipping = kcfg.SpaceSkipping && e.skip != nil
	half := e.desc.HalfSize()
	center := e.desc.Center()

	// The probe defaults to the whole volume box; an active ROI narrows
	// it to the configured sub-region.
	probePos, probeHalf := center, half
	if e.cfg.ROIUsed {
		probePos = raycast.Vec3{X: e.cfg.ROICenter[0], Y: e.cfg.ROICenter[1], Z: e.cfg.ROICenter[2]}
		probeHalf = raycast.Vec3{X: e.cfg.ROISize[0] / 2, Y: e.cfg.ROISize[1] / 2, Z: e.cfg.ROISize[2] / 2}
	}

	params := raycast.LaunchParams{
		VolumeTex:   e.store.GLTexture(),
		TFTex:       e.tf.GLTexture(),
		OutColorTex: e.fbo.ColorTex,
		OutDepthTex: e.fbo.DepthTex,
		Width:       e.fbo.Width,
		Height:      e.fbo.Height,
		TexW:        e.fbo.TexW,
		InverseMVP:  e.camera.InverseViewProj(),
		MVP:         e.camera.ViewProj(),
		Background:  raycast.Vec4{X: e.background.R, Y: e.background.G, Z: e.background.B, W: e.background.A},
		VolPos:      center,
		VolHalf:     half,
		ProbePos:    probePos,
		ProbeHalf:   probeHalf,
		L:           raycast.Vec3{X: 0.4, Y: 0.8, Z: 0.4}.Normalize(),
		H:           raycast.Vec3{X: 0.2, Y: 0.9, Z: 0.2}.Normalize(),

		StepDistance: raycast.StepDistance(float64(kcfg.Quality), e.desc.Diagonal()),
		NumSlices:    raycast.NumSlices(float64(kcfg.Quality), e.desc.Diagonal()),
	}

	if e.cfg.ROIUsed && e.cfg.SphericalROI {
		params.ClipSphereCenter = probePos
		params.ClipSphereRadiusSq = probeHalf.X * probeHalf.X
	}
	if e.cfg.ClipPlaneOn {
		n := raycast.Vec3{X: e.cfg.ClipNormal[0], Y: e.cfg.ClipNormal[1], Z: e.cfg.ClipNormal[2]}.Normalize()
		p := raycast.Vec3{X: e.cfg.ClipPoint[0], Y: e.cfg.ClipPoint[1], Z: e.cfg.ClipPoint[2]}
		params.ClipPlaneNormal = n
		params.ClipPlaneDist = n.Dot(p)
	}

	if e.cfg.SpaceSkipping && e.skip != nil {
		params.SkipTex = e.skip.GLTexture()
		params.VolDim = [3]int32{int32(e.desc.NX), int32(e.desc.NY), int32(e.desc.NZ)}
		gx, gy, gz := e.skip.Dims()
		params.SkipGridDim = [3]int32{int32(gx), int32(gy), int32(gz)}
		cw, ch, cd := e.skip.CellSizes()
		params.SkipCellSize = [3]int32{int32(cw), int32(ch), int32(cd)}
	}
	if e.cfg.Jittering {
		params.JitterTex = e.jitter.GLTexture()
	}

	if err := e.dispatcher.Launch(kcfg, params); err != nil {
		e.viability.MarkFailed(fmt.Errorf("%w: %v", core.ErrTransientDevice, err))
		return err
	}

	e.blitter.Draw(e.fbo.ColorTex, int32(e.fbo.Width), int32(e.fbo.Height))
	return nil
}

// Destroy releases every device allocation.
func (e *Engine) Destroy() {
	if e.skip != nil {
		e.skip.Destroy()
	}
	e.store.Destroy()
	e.tf.Destroy()
	e.jitter.Destroy()
	e.fbo.Destroy()
	e.dispatcher.Destroy()
	e.blitter.Destroy()
}
