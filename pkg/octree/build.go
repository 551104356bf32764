package octree

import (
	"fmt"
	"log/slog"

	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/voxel"
)

// Source is any dense voxel lattice the tree can be populated from.
// *volume.Dense satisfies it.
type Source interface {
	Size() int
	Voxel(x, y, z int) voxel.Voxel
}

// DepthForSize returns the depth whose lattice has size voxels per axis,
// or false when size is not 2^depth + 1.
func DepthForSize(size int) (int, bool) {
	for d := 0; d <= MaxSupportedDepth; d++ {
		if mathx.Pow2(d)+1 == size {
			return d, true
		}
	}
	return 0, false
}

// FromVolume builds a fully subdivided tree holding exactly the voxels of
// src. Call CollapseTree afterwards to compress uniform regions.
func FromVolume(src Source, log *slog.Logger) (*Octree, error) {
	depth, ok := DepthForSize(src.Size())
	if !ok {
		return nil, fmt.Errorf("octree: volume size %d is not 2^n+1 (n <= %d)", src.Size(), MaxSupportedDepth)
	}
	o := New(depth, voxel.Default(), log)
	o.build(o.root, mathx.Vec3i{}, o.CellAxisCount(), src)
	return o, nil
}

func (o *Octree) build(n NodeIndex, origin mathx.Vec3i, size int, src Source) {
	if size == 1 {
		var c voxel.Cell
		for i := range c {
			p := origin.Add(voxel.CornerOffset(i))
			c[i] = src.Voxel(p.X, p.Y, p.Z)
		}
		o.ToLeaf(n, c)
		return
	}
	o.ToBranch(n)
	half := size / 2
	children := o.nodes[n].children
	for i, c := range children {
		o.build(c, origin.Add(childOffsets[i].Scale(half)), half, src)
	}
}
