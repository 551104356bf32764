package kernel

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
)

// Vertex is a mesh vertex with its shading normal.
type Vertex struct {
	Position mgl32.Vec3 `json:"position"`
	Normal   mgl32.Vec3 `json:"normal"`
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

// HalfExtents returns half the box size per axis.
func (b AABB) HalfExtents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Center returns the box centre.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// IsEmpty reports whether the box has no volume.
func (b AABB) IsEmpty() bool {
	return b.Max.X() <= b.Min.X() || b.Max.Y() <= b.Min.Y() || b.Max.Z() <= b.Min.Z()
}

// Mesh is an indexed triangle mesh as handed over by an importer or the
// tessellator. Indices hold three entries per triangle.
type Mesh struct {
	Name       string          `json:"name"`
	Vertices   []Vertex        `json:"vertices"`
	Indices    []uint32        `json:"indices"`
	MaterialID voxel.Material  `json:"material_id"`
	Material   volume.Material `json:"material"`
	Bounds     AABB            `json:"bounds"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0 || len(m.Indices) < 3
}

// Triangle returns the three vertices of triangle i and whether every
// index is in range.
func (m *Mesh) Triangle(i int) (a, b, c Vertex, ok bool) {
	i0, i1, i2 := m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]
	n := uint32(len(m.Vertices))
	if i0 >= n || i1 >= n || i2 >= n {
		return Vertex{}, Vertex{}, Vertex{}, false
	}
	return m.Vertices[i0], m.Vertices[i1], m.Vertices[i2], true
}

// ComputeBounds recomputes Bounds from the vertex positions.
func (m *Mesh) ComputeBounds() AABB {
	m.Bounds = BoundsOf(m.Vertices)
	return m.Bounds
}

// BoundsOf returns the box around every vertex position, or the zero box
// when vs is empty.
func BoundsOf(vs []Vertex) AABB {
	if len(vs) == 0 {
		return AABB{}
	}
	lo, hi := vs[0].Position, vs[0].Position
	for _, v := range vs[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], v.Position[k])
			hi[k] = max(hi[k], v.Position[k])
		}
	}
	return AABB{Min: lo, Max: hi}
}
