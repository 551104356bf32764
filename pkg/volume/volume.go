// Package volume implements the dense, fixed-resolution field: a size³
// array of voxels spanning the cube [-extent, +extent]³, together with the
// surface material the renderer shades it with.
package volume

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/voxel"
)

// TextureSlot is one texture layer of a surface material.
type TextureSlot struct {
	Path   string  `json:"path" yaml:"path"`
	Tiling float32 `json:"tiling" yaml:"tiling"`
}

// Material describes how the field surface is shaded.
type Material struct {
	Name      string        `json:"name"`
	Color     [4]float32    `json:"color"`
	Roughness float32       `json:"roughness"`
	Metallic  float32       `json:"metallic"`
	Textures  []TextureSlot `json:"textures,omitempty"`
}

// DefaultMaterial is the material a new volume starts with.
func DefaultMaterial() Material {
	return Material{Name: "default", Color: [4]float32{1, 1, 1, 1}, Roughness: 0.5}
}

// Dense is a cubic array of voxels. Voxel (0,0,0) sits at world position
// (-extent, -extent, -extent) and voxel (size-1, size-1, size-1) at
// (+extent, +extent, +extent).
type Dense struct {
	size     int
	extent   float32
	voxels   []voxel.Voxel
	material Material
	dirty    bool
}

// New allocates a size³ volume filled with voxel.Default(). Size is
// clamped to at least 2 so the cell size stays finite.
func New(size int, extent float32) *Dense {
	if size < 2 {
		size = 2
	}
	d := &Dense{
		size:     size,
		extent:   extent,
		voxels:   make([]voxel.Voxel, size*size*size),
		material: DefaultMaterial(),
	}
	d.Fill(voxel.Default())
	return d
}

// Size returns the number of voxels per axis.
func (d *Dense) Size() int { return d.size }

// Extent returns the half-width of the volume in world units.
func (d *Dense) Extent() float32 { return d.extent }

// CellSize returns the world-space distance between adjacent voxels.
func (d *Dense) CellSize() float32 {
	return 2 * d.extent / float32(d.size-1)
}

// Bounds returns the world-space box covered by the volume.
func (d *Dense) Bounds() (min, max mgl32.Vec3) {
	e := d.extent
	return mgl32.Vec3{-e, -e, -e}, mgl32.Vec3{e, e, e}
}

// Material returns the surface material.
func (d *Dense) Material() Material { return d.material }

// SetMaterial replaces the surface material and marks the volume dirty.
func (d *Dense) SetMaterial(m Material) {
	d.material = m
	d.dirty = true
}

// IsValidVoxelIndex reports whether idx lies inside the lattice.
func (d *Dense) IsValidVoxelIndex(idx mathx.Vec3i) bool {
	return idx.InRange(0, d.size)
}

// Voxel returns the voxel at (x, y, z), or voxel.Default() when out of range.
func (d *Dense) Voxel(x, y, z int) voxel.Voxel {
	if !d.IsValidVoxelIndex(mathx.V3i(x, y, z)) {
		return voxel.Default()
	}
	return d.voxels[mathx.To1D(x, y, z, d.size)]
}

// SetVoxel writes the voxel at (x, y, z) and marks the volume dirty.
// Out-of-range writes are ignored.
func (d *Dense) SetVoxel(x, y, z int, v voxel.Voxel) {
	if !d.IsValidVoxelIndex(mathx.V3i(x, y, z)) {
		return
	}
	d.voxels[mathx.To1D(x, y, z, d.size)] = v
	d.dirty = true
}

// VoxelAt returns the voxel at flat index i without bounds checking.
func (d *Dense) VoxelAt(i int) voxel.Voxel {
	return d.voxels[i]
}

// Voxels exposes the flat voxel array in mathx.To1D order. Callers must
// treat it as read-only.
func (d *Dense) Voxels() []voxel.Voxel {
	return d.voxels
}

// Fill sets every voxel to v and marks the volume dirty.
func (d *Dense) Fill(v voxel.Voxel) {
	for i := range d.voxels {
		d.voxels[i] = v
	}
	d.dirty = true
}

// VoxelIndexToWorldPosition maps a lattice index to its world position.
func (d *Dense) VoxelIndexToWorldPosition(idx mathx.Vec3i) mgl32.Vec3 {
	cs := d.CellSize()
	return idx.Vec3().Mul(cs).Sub(mgl32.Vec3{d.extent, d.extent, d.extent})
}

// WorldPositionToVoxelIndex returns the nearest lattice index to p. The
// result may be out of range.
func (d *Dense) WorldPositionToVoxelIndex(p mgl32.Vec3) mathx.Vec3i {
	return mathx.RoundVec(d.toLattice(p))
}

// WorldPositionToCellIndex returns the index of the cell containing p. The
// result may be out of range.
func (d *Dense) WorldPositionToCellIndex(p mgl32.Vec3) mathx.Vec3i {
	return mathx.FloorVec(d.toLattice(p))
}

func (d *Dense) toLattice(p mgl32.Vec3) mgl32.Vec3 {
	return p.Add(mgl32.Vec3{d.extent, d.extent, d.extent}).Mul(1 / d.CellSize())
}

// IsDirty reports whether the volume changed since the last ClearDirty.
func (d *Dense) IsDirty() bool { return d.dirty }

// MarkDirty flags the volume as changed.
func (d *Dense) MarkDirty() { d.dirty = true }

// ClearDirty is called once a consumer has picked up the latest contents.
func (d *Dense) ClearDirty() { d.dirty = false }
