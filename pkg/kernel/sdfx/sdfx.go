// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/mathx"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel    = (*SdfxKernel)(nil)
	_ kernel.Primitive = (*sdfxPrimitive)(nil)
)

// sdfxPrimitive wraps an sdf.SDF3 to implement kernel.Primitive.
type sdfxPrimitive struct {
	s sdf.SDF3
}

// Distance evaluates the wrapped SDF in float64 and narrows the result.
func (p *sdfxPrimitive) Distance(v mgl32.Vec3) float32 {
	return float32(p.s.Evaluate(toV3(v)))
}

// Bounds returns the axis-aligned bounding box.
func (p *sdfxPrimitive) Bounds() (min, max mgl32.Vec3) {
	bb := p.s.BoundingBox()
	return fromV3(bb.Min), fromV3(bb.Max)
}

// SDF3 exposes the underlying sdfx value for callers that want to render
// or combine it with sdfx directly.
func (p *sdfxPrimitive) SDF3() sdf.SDF3 {
	return p.s
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// wrap creates a kernel.Primitive from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Primitive {
	return &sdfxPrimitive{s: s}
}

// Box creates a box centred on the origin. sdf.Box3D takes the full size,
// so the half extents are doubled.
func (k *SdfxKernel) Box(halfExtents mgl32.Vec3, rounding float32) (kernel.Primitive, error) {
	if mathx.MinComponent(halfExtents) <= 0 {
		return nil, fmt.Errorf("sdfx: box half extents %v must be positive", halfExtents)
	}
	rounding = min(max(rounding, 0), mathx.MinComponent(halfExtents))
	s, err := sdf.Box3D(toV3(halfExtents.Mul(2)), float64(rounding))
	if err != nil {
		return nil, fmt.Errorf("sdfx: Box3D: %w", err)
	}
	return wrap(s), nil
}

// Sphere creates a sphere centred on the origin.
func (k *SdfxKernel) Sphere(radius float32) (kernel.Primitive, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("sdfx: sphere radius %g must be positive", radius)
	}
	s, err := sdf.Sphere3D(float64(radius))
	if err != nil {
		return nil, fmt.Errorf("sdfx: Sphere3D: %w", err)
	}
	return wrap(s), nil
}

// Cylinder creates a capped cylinder along Z centred on the origin.
func (k *SdfxKernel) Cylinder(radius, height float32) (kernel.Primitive, error) {
	if radius <= 0 || height <= 0 {
		return nil, fmt.Errorf("sdfx: cylinder radius %g and height %g must be positive", radius, height)
	}
	s, err := sdf.Cylinder3D(float64(height), float64(radius), 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: Cylinder3D: %w", err)
	}
	return wrap(s), nil
}

func toV3(v mgl32.Vec3) v3.Vec {
	return v3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func fromV3(v v3.Vec) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
