package octree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
)

var (
	air   = voxel.Voxel{Material: 0, Density: voxel.DefaultDensity}
	stone = voxel.Voxel{Material: 1, Density: -1}
)

func TestLatticeDimensions(t *testing.T) {
	tests := []struct {
		depth, axis, cells int
	}{
		{0, 2, 1},
		{1, 3, 2},
		{2, 5, 4},
		{4, 17, 16},
	}
	for _, tt := range tests {
		o := New(tt.depth, air, nil)
		if got := o.AxisCount(); got != tt.axis {
			t.Errorf("depth %d: AxisCount() = %d, want %d", tt.depth, got, tt.axis)
		}
		if got := o.CellAxisCount(); got != tt.cells {
			t.Errorf("depth %d: CellAxisCount() = %d, want %d", tt.depth, got, tt.cells)
		}
	}
}

func TestBranchLeafArena(t *testing.T) {
	o := New(2, air, nil)
	require.Equal(t, 1, o.NodeCount())

	require.True(t, o.ToBranch(o.Root()))
	assert.Equal(t, 9, o.NodeCount())
	assert.False(t, o.ToBranch(o.Root()), "branches stay as they are")
	assert.False(t, o.IsLeaf(o.Root()))
	for _, c := range o.nodes[o.Root()].children {
		assert.Equal(t, voxel.FilledCell(air), o.nodes[c].cell, "children copy the parent cell")
	}

	o.ToLeaf(o.Root(), voxel.FilledCell(stone))
	assert.Equal(t, 1, o.NodeCount())
	assert.Equal(t, stone, o.GetVoxel(mathx.V3i(3, 3, 3)))

	arena := len(o.nodes)
	o.ToBranch(o.Root())
	assert.Equal(t, arena, len(o.nodes), "freed slots are reused")
}

func TestToBranchStopsAtMaxDepth(t *testing.T) {
	tests := []struct {
		depth int
	}{
		{0},
		{1},
		{3},
	}
	for _, tt := range tests {
		o := New(tt.depth, air, nil)
		n := o.Root()
		for o.Depth(n) < tt.depth {
			require.True(t, o.ToBranch(n))
			n = o.nodes[n].children[7]
		}
		before := o.NodeCount()
		assert.False(t, o.ToBranch(n), "depth %d: leaf at max depth must not split", tt.depth)
		assert.Equal(t, before, o.NodeCount())
		assert.True(t, o.IsLeaf(n))

		// Reads and writes through the deepest leaf still resolve.
		last := o.AxisCount() - 1
		o.SetVoxel(mathx.V3i(last, last, last), stone)
		assert.Equal(t, stone, o.GetVoxel(mathx.V3i(last, last, last)))
	}
}

func TestOutOfRangeIsDefault(t *testing.T) {
	o := New(2, stone, nil)
	for _, idx := range []mathx.Vec3i{
		mathx.V3i(-1, 0, 0),
		mathx.V3i(0, 5, 0),
		mathx.V3i(0, 0, 99),
	} {
		assert.Equal(t, voxel.Default(), o.GetVoxel(idx), "read %+v", idx)
		o.SetVoxel(idx, air)
	}
	assert.Equal(t, 1, o.NodeCount(), "ignored writes must not subdivide")
}

func TestCornerSharing(t *testing.T) {
	indices := []mathx.Vec3i{
		mathx.V3i(2, 2, 2), // interior: 8 sharing cells
		mathx.V3i(0, 0, 0), // lattice corner: 1 cell
		mathx.V3i(4, 4, 4), // upper lattice corner
		mathx.V3i(4, 2, 0), // boundary edge
		mathx.V3i(1, 3, 2),
	}
	for _, idx := range indices {
		o := New(2, air, nil)
		o.SetVoxel(idx, stone)
		assert.Equal(t, stone, o.GetVoxel(idx))

		shared := 0
		for dz := 0; dz <= 1; dz++ {
			for dy := 0; dy <= 1; dy++ {
				for dx := 0; dx <= 1; dx++ {
					cell := idx.Sub(mathx.V3i(dx, dy, dz))
					if !cell.InRange(0, o.CellAxisCount()) {
						continue
					}
					shared++
					leaf := o.leafFor(cell)
					got := o.nodes[leaf].cell[voxel.CornerIndex(dx, dy, dz)]
					assert.Equal(t, stone, got, "voxel %+v in cell %+v corner (%d,%d,%d)", idx, cell, dx, dy, dz)
				}
			}
		}
		assert.Positive(t, shared)
	}
}

func TestWriteDoesNotLeak(t *testing.T) {
	o := New(2, air, nil)
	o.SetVoxel(mathx.V3i(2, 2, 2), stone)
	for i := 0; i < 125; i++ {
		idx := mathx.To3D(i, 5)
		if idx == mathx.V3i(2, 2, 2) {
			continue
		}
		assert.Equal(t, air, o.GetVoxel(idx), "voxel %+v", idx)
	}
}

// sphereVolume fills a 5³ volume with a sphere of radius r.
func sphereVolume(r float32) *volume.Dense {
	d := volume.New(5, 2)
	for i := 0; i < 125; i++ {
		idx := mathx.To3D(i, 5)
		p := d.VoxelIndexToWorldPosition(idx)
		v := voxel.Voxel{Density: p.Len() - r}
		if v.Density <= 0 {
			v.Material = 1
		}
		d.SetVoxel(idx.X, idx.Y, idx.Z, v)
	}
	return d
}

func TestDenseSparseEquivalence(t *testing.T) {
	d := sphereVolume(1.2)

	edited := New(2, voxel.Default(), nil)
	for i := 0; i < 125; i++ {
		idx := mathx.To3D(i, 5)
		edited.SetVoxel(idx, d.Voxel(idx.X, idx.Y, idx.Z))
	}

	built, err := FromVolume(d, nil)
	require.NoError(t, err)

	for i := 0; i < 125; i++ {
		idx := mathx.To3D(i, 5)
		want := d.Voxel(idx.X, idx.Y, idx.Z)
		assert.Equal(t, want, edited.GetVoxel(idx), "edited %+v", idx)
		assert.Equal(t, want, built.GetVoxel(idx), "built %+v", idx)
	}
}

func TestFromVolumeRejectsSize(t *testing.T) {
	_, err := FromVolume(volume.New(6, 1), nil)
	assert.Error(t, err)
}

func TestCollapseUniform(t *testing.T) {
	o := New(3, air, nil)
	// Same sign and material, different magnitudes.
	o.SetVoxel(mathx.V3i(3, 3, 3), voxel.Voxel{Material: 0, Density: 2})
	o.SetVoxel(mathx.V3i(8, 0, 1), voxel.Voxel{Material: 0, Density: 0.5})
	require.Greater(t, o.NodeCount(), 1)

	merged := o.CollapseTree()
	assert.Positive(t, merged)
	assert.Equal(t, 1, o.NodeCount())
	assert.True(t, o.IsLeaf(o.Root()))

	for i := 0; i < 9*9*9; i++ {
		v := o.GetVoxel(mathx.To3D(i, 9))
		assert.False(t, v.Inside())
		assert.Equal(t, voxel.Material(0), v.Material)
	}
}

func TestCollapseKeepsSurface(t *testing.T) {
	o := New(2, air, nil)
	o.SetVoxel(mathx.V3i(2, 2, 2), stone)
	before := o.NodeCount()

	o.CollapseTree()
	assert.Equal(t, before, o.NodeCount(), "every octant touches the surface")
	assert.Equal(t, stone, o.GetVoxel(mathx.V3i(2, 2, 2)))
	assert.Equal(t, air, o.GetVoxel(mathx.V3i(0, 0, 0)))
}

func TestCollapsePartial(t *testing.T) {
	o := New(3, air, nil)
	o.SetVoxel(mathx.V3i(1, 1, 1), stone)
	// Force the far octant to subdivide with surface-free values.
	o.SetVoxel(mathx.V3i(6, 6, 6), voxel.Voxel{Material: 0, Density: 3})
	before := o.NodeCount()

	o.CollapseTree()
	assert.Less(t, o.NodeCount(), before)
	assert.Equal(t, stone, o.GetVoxel(mathx.V3i(1, 1, 1)))
	assert.False(t, o.GetVoxel(mathx.V3i(6, 6, 6)).Inside())
}

func TestMergeRejectsMixedMaterials(t *testing.T) {
	o := New(1, air, nil)
	o.ToBranch(o.Root())
	children := o.nodes[o.Root()].children
	o.ToLeaf(children[7], voxel.FilledCell(voxel.Voxel{Material: 2, Density: 5}))

	assert.False(t, o.TryToMergeNodes(o.Root()))
	assert.False(t, o.IsLeaf(o.Root()))
}

func TestGPUStructure(t *testing.T) {
	o := New(2, air, nil)
	g := o.GetGPUOctreeStructure()
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, 1, g.AxisCount)
	assert.True(t, g.Nodes[0].Leaf)

	o.SetVoxel(mathx.V3i(0, 0, 0), stone)
	g = o.GetGPUOctreeStructure()
	require.Len(t, g.Nodes, o.NodeCount())
	assert.Equal(t, mathx.CubeAxis(len(g.Nodes)), g.AxisCount)
	assert.False(t, g.Nodes[0].Leaf)

	// Pre-order: the first child of the root directly follows it.
	assert.Equal(t, 1, g.ChildIndex(g.Nodes[0].Children[0]))

	// Follow octant 0 down to the leaf holding voxel (0,0,0).
	n := 0
	for !g.Nodes[n].Leaf {
		n = g.ChildIndex(g.Nodes[n].Children[0])
	}
	assert.Equal(t, stone, g.Nodes[n].Cell[0])

	seen := map[int]bool{}
	for _, nd := range g.Nodes {
		if nd.Leaf {
			continue
		}
		for _, c := range nd.Children {
			i := g.ChildIndex(c)
			assert.Less(t, i, len(g.Nodes))
			assert.False(t, seen[i], "child %d referenced twice", i)
			seen[i] = true
		}
	}
	assert.Len(t, seen, len(g.Nodes)-1)
}

func TestWalkCoversLattice(t *testing.T) {
	o := New(2, air, nil)
	o.SetVoxel(mathx.V3i(1, 1, 1), stone)

	volumeCovered := 0
	o.Walk(func(origin mathx.Vec3i, size int, cell *voxel.Cell) {
		volumeCovered += size * size * size
	})
	assert.Equal(t, 64, volumeCovered)
	// Seven untouched octants plus the eight cells of octant 0.
	assert.Equal(t, 15, o.LeafCount())
}
