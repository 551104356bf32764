// Package voxel defines the two value types every field representation is
// built from: a Voxel (material tag + signed density) and a Cell (the eight
// voxels at the corners of one lattice cube).
//
// Voxels live at cell corners (dual grid). A lattice with N cells per axis
// therefore has N+1 voxels per axis, and a voxel on a shared face, edge or
// corner belongs to up to eight cells at once.
package voxel

import "github.com/chazu/voxfield/pkg/mathx"

// Material is an opaque 8-bit material tag. Zero means empty.
type Material uint8

// DefaultDensity is the density of a voxel far outside any surface.
const DefaultDensity float32 = 60

// Voxel is a single field sample. Negative density is inside.
type Voxel struct {
	Material Material `json:"material"`
	Density  float32  `json:"density"`
}

// Default returns the voxel reported for unset or out-of-range positions.
func Default() Voxel {
	return Voxel{Material: 0, Density: DefaultDensity}
}

// Inside reports whether the voxel lies inside the surface.
func (v Voxel) Inside() bool {
	return v.Density < 0
}

// Normalized returns v with its density replaced by ±DefaultDensity,
// keeping the sign and material.
func (v Voxel) Normalized() Voxel {
	if v.Inside() {
		return Voxel{Material: v.Material, Density: -DefaultDensity}
	}
	return Voxel{Material: v.Material, Density: DefaultDensity}
}

// CornerIndex packs a corner offset (each component 0 or 1) into 0..7.
func CornerIndex(x, y, z int) int {
	return x | y<<1 | z<<2
}

// CornerOffset unpacks a corner index into its offset.
func CornerOffset(i int) mathx.Vec3i {
	return mathx.Vec3i{X: i & 1, Y: (i >> 1) & 1, Z: (i >> 2) & 1}
}

// Cell holds the eight corner voxels of one lattice cube, indexed by
// CornerIndex.
type Cell [8]Voxel

// FilledCell returns a cell whose corners are all v.
func FilledCell(v Voxel) Cell {
	var c Cell
	c.Fill(v)
	return c
}

// Fill sets every corner to v.
func (c *Cell) Fill(v Voxel) {
	for i := range c {
		c[i] = v
	}
}

// Corner returns the voxel at corner offset (x, y, z).
func (c *Cell) Corner(x, y, z int) Voxel {
	return c[CornerIndex(x, y, z)]
}

// HasSurface reports whether the surface crosses this cell: either the
// corner densities disagree in sign or the corner materials differ.
func (c *Cell) HasSurface() bool {
	inside := c[0].Inside()
	and := c[0].Material
	for i := 1; i < len(c); i++ {
		if c[i].Inside() != inside {
			return true
		}
		and &= c[i].Material
	}
	// The AND of all tags equals every tag only when they are identical.
	for i := range c {
		if c[i].Material != and {
			return true
		}
	}
	return false
}

// CanBeSimplified reports whether the cell carries no surface and may be
// represented by a single uniform value.
func (c *Cell) CanBeSimplified() bool {
	return !c.HasSurface()
}
