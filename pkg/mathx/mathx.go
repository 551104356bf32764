// Package mathx holds the integer lattice helpers shared by the dense
// volume, the sparse octree and the voxelizer. World-space vectors use
// mgl32.Vec3 directly; scalar float32 math goes through chewxy/math32.
package mathx

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Vec3i is an integer lattice coordinate (voxel or cell index).
type Vec3i struct {
	X, Y, Z int
}

// V3i is shorthand for Vec3i{x, y, z}.
func V3i(x, y, z int) Vec3i {
	return Vec3i{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3i) Sub(o Vec3i) Vec3i {
	return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3i) Scale(s int) Vec3i {
	return Vec3i{v.X * s, v.Y * s, v.Z * s}
}

// Min returns the component-wise minimum.
func (v Vec3i) Min(o Vec3i) Vec3i {
	return Vec3i{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

// Max returns the component-wise maximum.
func (v Vec3i) Max(o Vec3i) Vec3i {
	return Vec3i{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}

// Clamp clamps every component into [lo, hi].
func (v Vec3i) Clamp(lo, hi int) Vec3i {
	return Vec3i{clamp(v.X, lo, hi), clamp(v.Y, lo, hi), clamp(v.Z, lo, hi)}
}

// InRange reports whether every component lies in [lo, hi).
func (v Vec3i) InRange(lo, hi int) bool {
	return v.X >= lo && v.X < hi &&
		v.Y >= lo && v.Y < hi &&
		v.Z >= lo && v.Z < hi
}

// Vec3 converts the coordinate to a float vector.
func (v Vec3i) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// To1D flattens a coordinate in a size³ cube: x + y*size + z*size*size.
func To1D(x, y, z, size int) int {
	return x + y*size + z*size*size
}

// To3D is the inverse of To1D.
func To3D(i, size int) Vec3i {
	return Vec3i{
		X: i % size,
		Y: (i / size) % size,
		Z: i / (size * size),
	}
}

// CubeAxis returns the smallest a such that a*a*a >= n.
func CubeAxis(n int) int {
	if n <= 0 {
		return 0
	}
	a := int(math32.Ceil(math32.Cbrt(float32(n))))
	for a*a*a < n {
		a++
	}
	for a > 1 && (a-1)*(a-1)*(a-1) >= n {
		a--
	}
	return a
}

// Pow2 returns 2^n.
func Pow2(n int) int {
	return 1 << uint(n)
}

// FloorVec returns the component-wise floor of v.
func FloorVec(v mgl32.Vec3) Vec3i {
	return Vec3i{
		X: int(math32.Floor(v.X())),
		Y: int(math32.Floor(v.Y())),
		Z: int(math32.Floor(v.Z())),
	}
}

// CeilVec returns the component-wise ceiling of v.
func CeilVec(v mgl32.Vec3) Vec3i {
	return Vec3i{
		X: int(math32.Ceil(v.X())),
		Y: int(math32.Ceil(v.Y())),
		Z: int(math32.Ceil(v.Z())),
	}
}

// RoundVec returns v rounded to the nearest lattice point.
func RoundVec(v mgl32.Vec3) Vec3i {
	return Vec3i{
		X: int(math32.Floor(v.X() + 0.5)),
		Y: int(math32.Floor(v.Y() + 0.5)),
		Z: int(math32.Floor(v.Z() + 0.5)),
	}
}

// MaxComponent returns the largest component of v.
func MaxComponent(v mgl32.Vec3) float32 {
	return math32.Max(v.X(), math32.Max(v.Y(), v.Z()))
}

// MinComponent returns the smallest component of v.
func MinComponent(v mgl32.Vec3) float32 {
	return math32.Min(v.X(), math32.Min(v.Y(), v.Z()))
}

// AbsVec returns the component-wise absolute value of v.
func AbsVec(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Abs(v.X()), math32.Abs(v.Y()), math32.Abs(v.Z())}
}

// DivVec divides a by b component-wise.
func DivVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a.X() / b.X(), a.Y() / b.Y(), a.Z() / b.Z()}
}
