// Package tessellate turns a CSG generator into a triangle mesh using
// marching cubes, so procedural shapes can be fed back through the
// voxelizer or exported.
package tessellate

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/csg"
	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
)

// DefaultCells controls marching cubes resolution along the longest axis.
const DefaultCells = 64

// ErrEmptyBounds is returned when there is nothing to tessellate.
var ErrEmptyBounds = errors.New("tessellate: generator has empty bounds")

// Options controls a tessellation run.
type Options struct {
	// Cells is the number of marching cubes cells along the longest axis.
	Cells int
	// Bounds overrides the generator's own bounds when non-empty.
	Bounds kernel.AABB

	Name       string
	MaterialID voxel.Material
	Material   volume.Material
}

// field adapts a generator to sdf.SDF3.
type field struct {
	g  *csg.Generator
	bb sdf.Box3
}

func (f *field) Evaluate(p v3.Vec) float64 {
	return float64(f.g.Evaluate(mgl32.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}))
}

func (f *field) BoundingBox() sdf.Box3 {
	return f.bb
}

// Tessellate polygonises the zero iso-surface of g. Each triangle gets its
// own three vertices carrying the face normal. The generator is only read.
func Tessellate(g *csg.Generator, opts Options) (*kernel.Mesh, error) {
	if g == nil {
		return nil, ErrEmptyBounds
	}
	if opts.Cells <= 0 {
		opts.Cells = DefaultCells
	}

	bounds := opts.Bounds
	if bounds.IsEmpty() {
		b, ok := g.Bounds()
		if !ok || b.IsEmpty() {
			return nil, ErrEmptyBounds
		}
		bounds = b
	}

	// One cell of padding keeps surfaces lying on the bounds closed.
	size := bounds.Max.Sub(bounds.Min)
	pad := max(size[0], size[1], size[2]) / float32(opts.Cells)
	grow := mgl32.Vec3{pad, pad, pad}
	bounds = kernel.AABB{Min: bounds.Min.Sub(grow), Max: bounds.Max.Add(grow)}

	f := &field{
		g: g,
		bb: sdf.Box3{
			Min: toV3(bounds.Min),
			Max: toV3(bounds.Max),
		},
	}

	renderer := render.NewMarchingCubesUniform(opts.Cells)
	triangles := render.ToTriangles(f, renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("tessellate: %q produced no triangles at %d cells", opts.Name, opts.Cells)
	}

	vertices := make([]kernel.Vertex, 0, len(triangles)*3)
	indices := make([]uint32, 0, len(triangles)*3)
	for _, tri := range triangles {
		n := fromV3(tri.Normal())
		for j := 0; j < 3; j++ {
			indices = append(indices, uint32(len(vertices)))
			vertices = append(vertices, kernel.Vertex{Position: fromV3(tri[j]), Normal: n})
		}
	}

	mesh := &kernel.Mesh{
		Name:       opts.Name,
		Vertices:   vertices,
		Indices:    indices,
		MaterialID: opts.MaterialID,
		Material:   opts.Material,
	}
	mesh.ComputeBounds()
	return mesh, nil
}

func toV3(v mgl32.Vec3) v3.Vec {
	return v3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func fromV3(v v3.Vec) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
