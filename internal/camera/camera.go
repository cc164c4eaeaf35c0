// Package camera produces the two device constants the ray kernel
// needs each frame: the inverse and forward model-view-projection
// matrices, cached behind a dirty flag.
package camera

import (
	gomath "math"

	"volray/internal/raycast"
	remath "volray/math"
)

// Camera is a perspective view onto the volume. The volume's own
// object-space transform is the identity (its position and extent are
// already expressed in world units), so model-view-projection reduces
// to view-projection here.
type Camera struct {
	Position    remath.Vec3
	Rotation    remath.Quaternion
	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	viewProj raycast.Mat4
	inverse  raycast.Mat4
	dirty    bool
}

func New(fov, aspect, near, far float32) *Camera {
	return &Camera{
		Rotation:    remath.QuaternionIdentity(),
		FOV:         fov,
		AspectRatio: aspect,
		NearPlane:   near,
		FarPlane:    far,
		dirty:       true,
	}
}

func (c *Camera) SetPosition(pos remath.Vec3) {
	c.Position = pos
	c.dirty = true
}

func (c *Camera) SetRotation(rot remath.Quaternion) {
	c.Rotation = rot
	c.dirty = true
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height > 0 {
		c.AspectRatio = width / height
		c.dirty = true
	}
}

// LookAt points the camera at target, deriving the rotation quaternion
// from a look-at basis.
func (c *Camera) LookAt(target, up remath.Vec3) {
	forward := target.Sub(c.Position).Normalize()
	right := up.Cross(forward).Normalize()
	upNew := forward.Cross(right)

	m := remath.Mat4{
		{right.X, upNew.X, -forward.X, 0},
		{right.Y, upNew.Y, -forward.Y, 0},
		{right.Z, upNew.Z, -forward.Z, 0},
		{0, 0, 0, 1},
	}
	c.Rotation = quaternionFromMat4(m)
	c.dirty = true
}

func quaternionFromMat4(m remath.Mat4) remath.Quaternion {
	trace := m[0][0] + m[1][1] + m[2][2]
	var q remath.Quaternion
	switch {
	case trace > 0:
		s := float32(0.5 / gomath.Sqrt(float64(trace+1)))
		q.W = 0.25 / s
		q.X = (m[2][1] - m[1][2]) * s
		q.Y = (m[0][2] - m[2][0]) * s
		q.Z = (m[1][0] - m[0][1]) * s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * float32(gomath.Sqrt(float64(1+m[0][0]-m[1][1]-m[2][2])))
		q.W = (m[2][1] - m[1][2]) / s
		q.X = 0.25 * s
		q.Y = (m[0][1] + m[1][0]) / s
		q.Z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := 2 * float32(gomath.Sqrt(float64(1+m[1][1]-m[0][0]-m[2][2])))
		q.W = (m[0][2] - m[2][0]) / s
		q.X = (m[0][1] + m[1][0]) / s
		q.Y = 0.25 * s
		q.Z = (m[1][2] + m[2][1]) / s
	default:
		s := 2 * float32(gomath.Sqrt(float64(1+m[2][2]-m[0][0]-m[1][1])))
		q.W = (m[1][0] - m[0][1]) / s
		q.X = (m[0][2] + m[2][0]) / s
		q.Y = (m[1][2] + m[2][1]) / s
		q.Z = 0.25 * s
	}
	return q.Normalize()
}

func (c *Camera) update() {
	if !c.dirty {
		return
	}
	rotation := c.Rotation.ToMat4()
	translation := remath.Mat4Translation(c.Position.Negate())
	view := rotation.Mul(translation)
	proj := remath.Mat4Perspective(c.FOV, c.AspectRatio, c.NearPlane, c.FarPlane)
	vp := proj.Mul(view)

	c.viewProj = raycast.Mat4(vp)
	c.inverse = raycast.Mat4(vp.Inverse())
	c.dirty = false
}

// ViewProj returns the forward model-view-projection matrix, already in
// the column-major layout the kernel and GLSL expect.
func (c *Camera) ViewProj() raycast.Mat4 {
	c.update()
	return c.viewProj
}

// InverseViewProj returns the inverse of ViewProj, used to un-project a
// pixel's NDC coordinates back into a world-space ray.
func (c *Camera) InverseViewProj() raycast.Mat4 {
	c.update()
	return c.inverse
}

// Forward returns the camera's look direction.
func (c *Camera) Forward() remath.Vec3 {
	return c.Rotation.RotateVector(remath.Vec3Front)
}

// OrbitCamera orbits a target point at a fixed distance.
type OrbitCamera struct {
	Camera
	Target   remath.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
}

func NewOrbit(target remath.Vec3, distance, fov, aspect float32) *OrbitCamera {
	c := &OrbitCamera{Target: target, Distance: distance, Pitch: 0.3}
	c.Camera = *New(fov, aspect, 0.1, 1000.0)
	c.updatePosition()
	return c
}

func (c *OrbitCamera) updatePosition() {
	if c.Pitch > 1.5 {
		c.Pitch = 1.5
	}
	if c.Pitch < -1.5 {
		c.Pitch = -1.5
	}
	cosPitch := float32(gomath.Cos(float64(c.Pitch)))
	sinPitch := float32(gomath.Sin(float64(c.Pitch)))
	cosYaw := float32(gomath.Cos(float64(c.Yaw)))
	sinYaw := float32(gomath.Sin(float64(c.Yaw)))

	offset := remath.Vec3{
		X: c.Distance * cosPitch * sinYaw,
		Y: c.Distance * sinPitch,
		Z: c.Distance * cosPitch * cosYaw,
	}
	c.Position = c.Target.Add(offset)
	c.LookAt(c.Target, remath.Vec3Up)
}

func (c *OrbitCamera) Orbit(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	c.updatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance += delta
	if c.Distance < 0.1 {
		c.Distance = 0.1
	}
	c.updatePosition()
}
