// Package volume owns the uploaded scalar field: one device 3-D array
// per time frame, the host-side 16-bit "rebit" transform, and the
// bind-for-sampling/interpolation-mode operations the kernel consumes.
package volume

import (
	"fmt"
	gomath "math"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"volray/core"
	"volray/internal/raycast"
)

// Descriptor is the immutable-after-load volume description.
type Descriptor struct {
	NX, NY, NZ int
	BPC        int // bytes per channel, 1 or 2
	SX, SY, SZ float32
	PX, PY, PZ float32
	Frames     int
}

func (d Descriptor) voxelCount() int { return d.NX * d.NY * d.NZ }

// HalfSize returns the object-space half-extent of the volume.
func (d Descriptor) HalfSize() raycast.Vec3 {
	return raycast.Vec3{X: d.SX / 2, Y: d.SY / 2, Z: d.SZ / 2}
}

// Center returns the object-space center of the volume.
func (d Descriptor) Center() raycast.Vec3 {
	return raycast.Vec3{X: d.PX, Y: d.PY, Z: d.PZ}
}

// Diagonal returns the voxel-space diagonal length, used to derive the
// kernel's step distance and sample count.
func (d Descriptor) Diagonal() float64 {
	nx, ny, nz := float64(d.NX), float64(d.NY), float64(d.NZ)
	return gomath.Sqrt(nx*nx + ny*ny + nz*nz)
}

// Store owns the per-frame device 3-D textures and exposes CPU-side
// sampling for the reference kernel and tests.
type Store struct {
	desc        Descriptor
	frames      []uint32 // device texture ids, one per loaded frame
	hostFrames  [][]byte // CPU-side normalized copies (8-bit per voxel) for Sample()
	activeFrame int
	interpolate bool
}

func NewStore(desc Descriptor) *Store {
	return &Store{
		desc:        desc,
		frames:      make([]uint32, 0, desc.Frames),
		hostFrames:  make([][]byte, 0, desc.Frames),
		interpolate: true,
	}
}

// rebit16 treats each voxel's two bytes as a big-endian 16-bit value
// holding a 12-bit sensor reading, replaces the high byte with that
// value right-shifted by 4, and copies the low byte through unchanged.
// The exact bit layout is kept for compatibility; see DESIGN.md.
func rebit16(raw []byte) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	for i := 0; i+1 < len(out); i += 2 {
		hi, lo := out[i], out[i+1]
		v := uint16(hi)<<8 | uint16(lo)
		out[i] = byte(v >> 4)
		out[i+1] = lo
	}
	return out
}

// toNormalized8 reduces a raw frame (1 or 2 bytes/voxel) to one byte per
// voxel for CPU-side sampling, taking the high byte after rebit for
// 16-bit volumes.
func toNormalized8(raw []byte, bpc int) []byte {
	if bpc == 1 {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out
	}
	out := make([]byte, len(raw)/2)
	for i := range out {
		out[i] = raw[i*2]
	}
	return out
}

// LoadFrame allocates a device 3-D array matching bpc and uploads the
// (optionally rebitted) frame. On allocation failure for frame k, all
// frames 0..k are released and ErrOutOfDeviceMemory is reported; the
// store is not usable again until rebuilt.
func (s *Store) LoadFrame(frame int, raw []byte) error {
	if s.desc.BPC != 1 && s.desc.BPC != 2 {
		return core.ErrUnsupportedFormat
	}
	want := s.desc.voxelCount() * s.desc.BPC
	if len(raw) != want {
		return fmt.Errorf("volume: frame %d: expected %d bytes, got %d: %w", frame, want, len(raw), core.ErrUnsupportedFormat)
	}

	payload := raw
	if s.desc.BPC == 2 {
		payload = rebit16(raw)
	}

	id, err := s.allocDeviceFrame(payload)
	if err != nil {
		s.releaseThrough(frame)
		return fmt.Errorf("volume: load frame %d: %w", frame, core.ErrOutOfDeviceMemory)
	}

	for len(s.frames) <= frame {
		s.frames = append(s.frames, 0)
		s.hostFrames = append(s.hostFrames, nil)
	}
	s.frames[frame] = id
	s.hostFrames[frame] = toNormalized8(payload, s.desc.BPC)
	return nil
}

func (s *Store) allocDeviceFrame(payload []byte) (id uint32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("volume: device allocation panicked: %v", r)
		}
	}()

	var internalFormat int32 = gl.R8
	var format uint32 = gl.RED
	if s.desc.BPC == 2 {
		internalFormat = gl.R16
	}

	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_3D, id)
	gl.TexImage3D(gl.TEXTURE_3D, 0, internalFormat,
		int32(s.desc.NX), int32(s.desc.NY), int32(s.desc.NZ), 0,
		format, gl.UNSIGNED_BYTE, glPtr(payload))
	s.applySamplerState()
	gl.BindTexture(gl.TEXTURE_3D, 0)
	return id, nil
}

func (s *Store) applySamplerState() {
	filter := int32(gl.NEAREST)
	if s.interpolate {
		filter = gl.LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
}

func glPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func (s *Store) releaseThrough(k int) {
	for i := 0; i <= k && i < len(s.frames); i++ {
		if s.frames[i] != 0 {
			id := s.frames[i]
			gl.DeleteTextures(1, &id)
			s.frames[i] = 0
		}
	}
	s.frames = s.frames[:0]
	s.hostFrames = s.hostFrames[:0]
}

// Destroy releases every loaded frame's device texture. The store is
// empty afterwards and must be rebuilt before rendering resumes.
func (s *Store) Destroy() {
	s.releaseThrough(len(s.frames) - 1)
}

// SetInterpolation rebuilds the sampler state on every loaded frame
// when the interpolation mode changes.
func (s *Store) SetInterpolation(linear bool) {
	if s.interpolate == linear {
		return
	}
	s.interpolate = linear
	for _, id := range s.frames {
		if id == 0 {
			continue
		}
		gl.BindTexture(gl.TEXTURE_3D, id)
		s.applySamplerState()
	}
	gl.BindTexture(gl.TEXTURE_3D, 0)
}

// SetActiveFrame selects which loaded frame subsequent BindForSampling
// calls and CPU-side Sample calls use, stepping a time-varying dataset
// one frame at a time.
func (s *Store) SetActiveFrame(i int) {
	if i >= 0 && i < len(s.frames) {
		s.activeFrame = i
	}
}

// BindForSampling binds the active frame's device texture to the given
// texture unit.
func (s *Store) BindForSampling(unit uint32) {
	if s.activeFrame >= len(s.frames) || s.frames[s.activeFrame] == 0 {
		return
	}
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_3D, s.frames[s.activeFrame])
}

// GLTexture returns the active frame's device texture id.
func (s *Store) GLTexture() uint32 {
	if s.activeFrame >= len(s.frames) {
		return 0
	}
	return s.frames[s.activeFrame]
}

func (s *Store) Descriptor() Descriptor { return s.desc }

// HostVoxels returns the normalized-to-one-byte-per-voxel host mirror of
// a loaded frame, x-fastest-z-slowest, used by internal/skipgrid to
// build the min/max partition without touching the device texture.
func (s *Store) HostVoxels(frame int) []byte {
	if frame < 0 || frame >= len(s.hostFrames) {
		return nil
	}
	return s.hostFrames[frame]
}

// Sample implements raycast.VolumeSampler against the CPU-side copy of
// the active frame, with nearest or trilinear filtering depending on the
// interpolation flag, clamped addressing on all three axes.
func (s *Store) Sample(tc raycast.Vec3) float32 {
	if s.activeFrame >= len(s.hostFrames) || s.hostFrames[s.activeFrame] == nil {
		return 0
	}
	host := s.hostFrames[s.activeFrame]
	nx, ny, nz := s.desc.NX, s.desc.NY, s.desc.NZ

	fx := tc.X*float32(nx) - 0.5
	fy := tc.Y*float32(ny) - 0.5
	fz := tc.Z*float32(nz) - 0.5

	if !s.interpolate {
		x := clampIdx(round(fx), nx)
		y := clampIdx(round(fy), ny)
		z := clampIdx(round(fz), nz)
		return float32(host[idx(x, y, z, nx, ny)]) / 255
	}

	x0, y0, z0 := int(floor(fx)), int(floor(fy)), int(floor(fz))
	tx, ty, tz := fx-float32(x0), fy-float32(y0), fz-float32(z0)

	var acc float32
	for _, dz := range [2]int{0, 1} {
		for _, dy := range [2]int{0, 1} {
			for _, dx := range [2]int{0, 1} {
				x := clampIdx(x0+dx, nx)
				y := clampIdx(y0+dy, ny)
				z := clampIdx(z0+dz, nz)
				wx := lerpWeight(tx, dx)
				wy := lerpWeight(ty, dy)
				wz := lerpWeight(tz, dz)
				acc += wx * wy * wz * float32(host[idx(x, y, z, nx, ny)])
			}
		}
	}
	return acc / 255
}

func idx(x, y, z, nx, ny int) int { return z*nx*ny + y*nx + x }

func clampIdx(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func lerpWeight(t float32, d int) float32 {
	if d == 0 {
		return 1 - t
	}
	return t
}

func floor(v float32) float32 {
	return float32(gomath.Floor(float64(v)))
}

func round(v float32) int {
	return int(gomath.Floor(float64(v) + 0.5))
}
