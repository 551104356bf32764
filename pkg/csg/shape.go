// Package csg evaluates constructive-solid-geometry shape trees as a signed
// density field. A tree is made of Containers; each container may reference
// a Shape held in an externally owned Arena and combines its children by
// union (Add) or subtraction (Subtract).
//
// Evaluation is pure: a Generator never mutates its tree or the arena, so
// it may be sampled from many goroutines at once.
package csg

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/mathx"
)

// ShapeKind names the primitive behind a Shape.
type ShapeKind int

const (
	KindBox ShapeKind = iota
	KindSphere
	KindCylinder
)

func (k ShapeKind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindSphere:
		return "sphere"
	case KindCylinder:
		return "cylinder"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Shape is a placed primitive. Position, Rotation and Scale map the
// primitive's local frame into the frame of the container holding it.
type Shape struct {
	Kind     ShapeKind
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3

	prim kernel.Primitive
}

func newShape(kind ShapeKind, prim kernel.Primitive) *Shape {
	return &Shape{
		Kind:     kind,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		prim:     prim,
	}
}

// NewBox returns a box with the given half extents.
func NewBox(k kernel.Kernel, halfExtents mgl32.Vec3, rounding float32) (*Shape, error) {
	p, err := k.Box(halfExtents, rounding)
	if err != nil {
		return nil, fmt.Errorf("csg: box: %w", err)
	}
	return newShape(KindBox, p), nil
}

// NewSphere returns a sphere of the given radius.
func NewSphere(k kernel.Kernel, radius float32) (*Shape, error) {
	p, err := k.Sphere(radius)
	if err != nil {
		return nil, fmt.Errorf("csg: sphere: %w", err)
	}
	return newShape(KindSphere, p), nil
}

// NewCylinder returns a cylinder along the local Z axis.
func NewCylinder(k kernel.Kernel, radius, height float32) (*Shape, error) {
	p, err := k.Cylinder(radius, height)
	if err != nil {
		return nil, fmt.Errorf("csg: cylinder: %w", err)
	}
	return newShape(KindCylinder, p), nil
}

// At sets the position and returns s for chaining.
func (s *Shape) At(p mgl32.Vec3) *Shape {
	s.Position = p
	return s
}

// Rotated sets the rotation and returns s for chaining.
func (s *Shape) Rotated(q mgl32.Quat) *Shape {
	s.Rotation = q
	return s
}

// Scaled sets the scale and returns s for chaining.
func (s *Shape) Scaled(v mgl32.Vec3) *Shape {
	s.Scale = v
	return s
}

// ToLocal maps p from the parent frame into the shape's rigid local frame
// (translation and rotation only). Child containers are evaluated there.
func (s *Shape) ToLocal(p mgl32.Vec3) mgl32.Vec3 {
	return inverseRotate(s.Rotation, p.Sub(s.Position))
}

// Distance returns the signed distance from parent-frame point p to the
// shape. Non-uniform scale is handled by evaluating in the unscaled frame
// and rescaling by the smallest scale component, which keeps the sign
// exact and the magnitude conservative.
func (s *Shape) Distance(p mgl32.Vec3) float32 {
	scale := mathx.AbsVec(s.Scale)
	local := mathx.DivVec(s.ToLocal(p), scale)
	return s.prim.Distance(local) * mathx.MinComponent(scale)
}

// Bounds returns the shape's axis-aligned bounds in the parent frame.
func (s *Shape) Bounds() kernel.AABB {
	lo, hi := s.prim.Bounds()
	scale := mathx.AbsVec(s.Scale)
	box := kernel.AABB{
		Min: mgl32.Vec3{lo[0] * scale[0], lo[1] * scale[1], lo[2] * scale[2]},
		Max: mgl32.Vec3{hi[0] * scale[0], hi[1] * scale[1], hi[2] * scale[2]},
	}
	return transformBox(box, s.Position, s.Rotation)
}

// inverseRotate applies the inverse of q to v. The zero quaternion is
// treated as the identity so zero-valued shapes stay usable.
func inverseRotate(q mgl32.Quat, v mgl32.Vec3) mgl32.Vec3 {
	if q == (mgl32.Quat{}) {
		return v
	}
	return q.Inverse().Rotate(v)
}

func rotate(q mgl32.Quat, v mgl32.Vec3) mgl32.Vec3 {
	if q == (mgl32.Quat{}) {
		return v
	}
	return q.Rotate(v)
}

// transformBox returns the AABB of box after rotating by q and translating
// by t.
func transformBox(box kernel.AABB, t mgl32.Vec3, q mgl32.Quat) kernel.AABB {
	var out kernel.AABB
	for i := 0; i < 8; i++ {
		c := mgl32.Vec3{box.Min[0], box.Min[1], box.Min[2]}
		if i&1 != 0 {
			c[0] = box.Max[0]
		}
		if i&2 != 0 {
			c[1] = box.Max[1]
		}
		if i&4 != 0 {
			c[2] = box.Max[2]
		}
		w := rotate(q, c).Add(t)
		if i == 0 {
			out = kernel.AABB{Min: w, Max: w}
			continue
		}
		out = unionPoint(out, w)
	}
	return out
}

func unionPoint(b kernel.AABB, p mgl32.Vec3) kernel.AABB {
	for k := 0; k < 3; k++ {
		b.Min[k] = min(b.Min[k], p[k])
		b.Max[k] = max(b.Max[k], p[k])
	}
	return b
}

func unionBox(a, b kernel.AABB) kernel.AABB {
	return unionPoint(unionPoint(a, b.Min), b.Max)
}

// ShapeID is a non-owning handle to a Shape in an Arena.
type ShapeID int

// NoShape marks a container without a shape.
const NoShape ShapeID = -1

// Arena owns the shapes a CSG tree refers to. Shapes must outlive every
// container that references them.
type Arena struct {
	shapes []*Shape
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add stores s and returns its handle.
func (a *Arena) Add(s *Shape) ShapeID {
	a.shapes = append(a.shapes, s)
	return ShapeID(len(a.shapes) - 1)
}

// Shape resolves id, returning nil for NoShape or an unknown handle.
func (a *Arena) Shape(id ShapeID) *Shape {
	if a == nil || id < 0 || int(id) >= len(a.shapes) {
		return nil
	}
	return a.shapes[id]
}

// Len returns the number of shapes in the arena.
func (a *Arena) Len() int {
	return len(a.shapes)
}
