// Package kernel defines the abstract geometry kernel interface.
// Implementations (sdfx) provide primitive distance functions behind this
// interface so the CSG evaluator can swap backends without changing the
// rest of the system.
package kernel

import "github.com/go-gl/mathgl/mgl32"

// Primitive is a solid described by its signed distance function. Distances
// are measured in the primitive's local frame: negative inside, positive
// outside.
type Primitive interface {
	// Distance returns the signed distance from p to the surface.
	Distance(p mgl32.Vec3) float32

	// Bounds returns the local-frame axis-aligned bounding box.
	Bounds() (min, max mgl32.Vec3)
}

// Kernel is the abstract geometry kernel interface. Every primitive is
// centred on the local origin.
type Kernel interface {
	// Box is a box with the given half extents. Rounding softens the edges
	// and is clamped to the smallest half extent.
	Box(halfExtents mgl32.Vec3, rounding float32) (Primitive, error)

	// Sphere is a sphere of the given radius.
	Sphere(radius float32) (Primitive, error)

	// Cylinder is a capped cylinder along the local Z axis.
	Cylinder(radius, height float32) (Primitive, error)
}
