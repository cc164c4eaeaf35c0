package raycast

// Mat4 is a column-major 4x4 matrix. Element [c][r] is column c, row r,
// the same storage GLSL's mat4 uses, so no transpose step is needed
// when these values are uploaded as a uniform.
type Mat4 [4][4]float32

// MulVec4 computes M * v treating v as a column vector, matching the
// kernel's "o = inverse_mvp · (u,v,-1,1)" step exactly.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		X: m[0][0]*v.X + m[1][0]*v.Y + m[2][0]*v.Z + m[3][0]*v.W,
		Y: m[0][1]*v.X + m[1][1]*v.Y + m[2][1]*v.Z + m[3][1]*v.W,
		Z: m[0][2]*v.X + m[1][2]*v.Y + m[2][2]*v.Z + m[3][2]*v.W,
		W: m[0][3]*v.X + m[1][3]*v.Y + m[2][3]*v.Z + m[3][3]*v.W,
	}
}

// ToVec3DivW perspective-divides a homogeneous point down to 3-D.
func (v Vec4) ToVec3DivW() Vec3 {
	if v.W == 0 {
		return Vec3{v.X, v.Y, v.Z}
	}
	inv := 1 / v.W
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}
