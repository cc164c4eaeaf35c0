// Command voxraycast is the demo: it opens a window, builds a small
// synthetic volume, wires up an engine.Engine, and runs the render loop
// with keyboard toggles over the renderer's parameter surface.
package main

import (
	"fmt"
	stdmath "math"
	"time"

	"volray/config"
	"volray/core"
	remath "volray/math"

	"volray/internal/engine"
	"volray/internal/volume"
)

// buildSyntheticVolume fills an 8-bit NxNxN volume with a solid sphere
// of scalar 200 against a background of 32.
func buildSyntheticVolume(n int) (volume.Descriptor, []byte) {
	desc := volume.Descriptor{
		NX: n, NY: n, NZ: n,
		BPC: 1,
		SX:  2, SY: 2, SZ: 2,
		Frames: 1,
	}
	raw := make([]byte, n*n*n)
	c := float64(n-1) / 2
	r := float64(n) * 0.35
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				dist := stdmath.Sqrt(dx*dx + dy*dy + dz*dz)
				v := byte(32)
				if dist < r {
					v = 200
				}
				raw[z*n*n+y*n+x] = v
			}
		}
	}
	return desc, raw
}

// rampTransferFunction builds a 256-entry table: alpha ramps from 0 at
// scalar 0 to 1 at scalar 255, colored by a warm-to-cool gradient, so
// the demo shows something other than a blank frame.
func rampTransferFunction(size int) []core.Color {
	lut := make([]core.Color, size)
	for i := range lut {
		s := float32(i) / float32(size-1)
		lut[i] = core.Color{R: s, G: 0.4, B: 1 - s, A: s}
	}
	return lut
}

func main() {
	fmt.Println("Starting volray demo...")

	windowConfig := core.DefaultWindowConfig()
	windowConfig.Title = "volray"
	windowConfig.Width = 1024
	windowConfig.Height = 768

	window, err := core.NewWindow(windowConfig)
	if err != nil {
		fmt.Printf("Failed to create window: %v\n", err)
		return
	}
	defer window.Destroy()

	desc, raw := buildSyntheticVolume(64)

	cfg := config.Default()
	if loaded, err := config.Load("voxraycast.toml"); err == nil {
		cfg = loaded
	}

	eng, err := engine.New(desc, windowConfig.Width, windowConfig.Height, cfg)
	if err != nil {
		fmt.Printf("Failed to create engine: %v\n", err)
		return
	}
	defer eng.Destroy()

	if err := eng.LoadVolumeFrame(0, raw); err != nil {
		fmt.Printf("Failed to load volume: %v\n", err)
		return
	}
	if err := eng.SetTransferFunction(rampTransferFunction(256)); err != nil {
		fmt.Printf("Failed to set transfer function: %v\n", err)
		return
	}

	eng.Camera().SetPosition(remath.Vec3{X: 0, Y: 0, Z: 6})
	eng.Camera().LookAt(remath.Vec3Zero, remath.Vec3Up)

	fmt.Println("===========================================")
	fmt.Println("  volray - volume ray-caster demo")
	fmt.Println("===========================================")
	fmt.Println("L  - toggle lighting")
	fmt.Println("O  - toggle opacity correction")
	fmt.Println("T  - toggle early ray termination")
	fmt.Println("M  - cycle MIP mode (none / max / min)")
	fmt.Println("J  - toggle jitter")
	fmt.Println("K  - toggle space skipping")
	fmt.Println("[ / ] - decrease / increase quality")
	fmt.Println("ESC - quit")
	fmt.Println("===========================================")

	toggleKeyWasDown := map[int]bool{}
	pressed := func(key int) bool {
		down := window.IsKeyPressed(key)
		was := toggleKeyWasDown[key]
		toggleKeyWasDown[key] = down
		return down && !was
	}

	yaw := float32(0)
	lastTime := time.Now()
	frames := 0
	fpsClock := time.Now()

	for !window.ShouldClose() {
		window.PollEvents()
		if window.IsKeyPressed(core.KeyEscape) {
			break
		}

		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		rcfg := eng.Config()
		if pressed(core.KeyL) {
			rcfg.Lighting = !rcfg.Lighting
			fmt.Printf("[Lighting] %v\n", rcfg.Lighting)
		}
		if pressed(core.KeyO) {
			rcfg.OpacityCorrect = !rcfg.OpacityCorrect
			fmt.Printf("[OpacityCorrect] %v\n", rcfg.OpacityCorrect)
		}
		if pressed(core.KeyT) {
			rcfg.TerminateEarly = !rcfg.TerminateEarly
			fmt.Printf("[TerminateEarly] %v\n", rcfg.TerminateEarly)
		}
		if pressed(core.KeyM) {
			switch rcfg.MipMode {
			case config.MipNone:
				rcfg.MipMode = config.MipMax
			case config.MipMax:
				rcfg.MipMode = config.MipMin
			default:
				rcfg.MipMode = config.MipNone
			}
			fmt.Printf("[MipMode] %v\n", rcfg.MipMode)
		}
		if pressed(core.KeyJ) {
			rcfg.Jittering = !rcfg.Jittering
			fmt.Printf("[Jittering] %v\n", rcfg.Jittering)
		}
		if pressed(core.KeyK) {
			rcfg.SpaceSkipping = !rcfg.SpaceSkipping
			fmt.Printf("[SpaceSkipping] %v\n", rcfg.SpaceSkipping)
		}
		if window.IsKeyPressed(core.KeyLeftBracket) {
			rcfg.Quality -= 0.5 * dt
			if rcfg.Quality < 0.1 {
				rcfg.Quality = 0.1
			}
		}
		if window.IsKeyPressed(core.KeyRightBracket) {
			rcfg.Quality += 0.5 * dt
		}
		eng.SetConfig(rcfg)

		yaw += dt * 0.3
		eng.Camera().SetPosition(remath.Vec3{
			X: 6 * float32(stdmath.Sin(float64(yaw))),
			Y: 0,
			Z: 6 * float32(stdmath.Cos(float64(yaw))),
		})
		eng.Camera().LookAt(remath.Vec3Zero, remath.Vec3Up)

		if err := eng.Render(); err != nil {
			fmt.Printf("[Render] %v\n", err)
			width, height := window.GetFramebufferSize()
			if width > 0 && height > 0 {
				eng.Resize(width, height)
			}
		}

		window.SwapBuffers()

		frames++
		if time.Since(fpsClock) >= time.Second {
			window.SetTitle(fmt.Sprintf("volray | FPS: %d | quality %.2f", frames, rcfg.Quality))
			frames = 0
			fpsClock = time.Now()
		}
	}

	fmt.Println("Exiting...")
}
