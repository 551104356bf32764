// Package octree implements the sparse voxel octree: an adaptive tree over
// the cells of a (2^depth + 1)³ voxel lattice. Leaves store one Cell (eight
// corner voxels); uniform regions collapse into a single shallow leaf while
// regions crossed by the surface subdivide down to one cell per leaf.
//
// Nodes live in an arena and refer to each other by index. A branch owns its
// eight children; discarded subtrees go back onto a free list.
package octree

import (
	"fmt"
	"log/slog"

	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/voxel"
)

// MaxSupportedDepth bounds the lattice at 1025 voxels per axis.
const MaxSupportedDepth = 10

// NodeIndex addresses a node in the tree's arena.
type NodeIndex int32

// NoNode marks an unused child slot.
const NoNode NodeIndex = -1

type node struct {
	cell     voxel.Cell
	children [8]NodeIndex
	depth    uint8
	leaf     bool
}

// Octree is a single-writer sparse voxel octree.
type Octree struct {
	nodes    []node
	free     []NodeIndex
	root     NodeIndex
	maxDepth int
	log      *slog.Logger
}

// childOffsets is the fixed octant table used for every descent. Entry i
// is the corner offset of octant i, matching voxel.CornerIndex packing.
var childOffsets = [8]mathx.Vec3i{
	{X: 0, Y: 0, Z: 0},
	{X: 1, Y: 0, Z: 0},
	{X: 0, Y: 1, Z: 0},
	{X: 1, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: 1},
	{X: 1, Y: 0, Z: 1},
	{X: 0, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: 1},
}

// New returns a tree of the given maximum depth whose root is a single leaf
// with every corner set to fill. Depth is clamped to [0, MaxSupportedDepth].
func New(maxDepth int, fill voxel.Voxel, log *slog.Logger) *Octree {
	if maxDepth < 0 {
		maxDepth = 0
	}
	if maxDepth > MaxSupportedDepth {
		maxDepth = MaxSupportedDepth
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	o := &Octree{maxDepth: maxDepth, log: log}
	o.root = o.alloc(voxel.FilledCell(fill), 0)
	return o
}

// MaxDepth returns the depth at which a leaf covers exactly one cell.
func (o *Octree) MaxDepth() int { return o.maxDepth }

// AxisCount returns the number of voxels per axis: 2^maxDepth + 1.
func (o *Octree) AxisCount() int { return mathx.Pow2(o.maxDepth) + 1 }

// CellAxisCount returns the number of cells per axis: 2^maxDepth.
func (o *Octree) CellAxisCount() int { return mathx.Pow2(o.maxDepth) }

// Root returns the root node index.
func (o *Octree) Root() NodeIndex { return o.root }

// NodeCount returns the number of live nodes.
func (o *Octree) NodeCount() int { return len(o.nodes) - len(o.free) }

// LeafCount returns the number of live leaves.
func (o *Octree) LeafCount() int {
	n := 0
	o.Walk(func(mathx.Vec3i, int, *voxel.Cell) { n++ })
	return n
}

// IsLeaf reports whether n is a leaf.
func (o *Octree) IsLeaf(n NodeIndex) bool { return o.nodes[n].leaf }

// alloc creates a leaf at depth holding cell, reusing a freed slot when
// possible.
func (o *Octree) alloc(cell voxel.Cell, depth uint8) NodeIndex {
	nd := node{cell: cell, depth: depth, leaf: true}
	for i := range nd.children {
		nd.children[i] = NoNode
	}
	if k := len(o.free); k > 0 {
		idx := o.free[k-1]
		o.free = o.free[:k-1]
		o.nodes[idx] = nd
		return idx
	}
	o.nodes = append(o.nodes, nd)
	return NodeIndex(len(o.nodes) - 1)
}

// release returns n and its whole subtree to the free list.
func (o *Octree) release(n NodeIndex) {
	if !o.nodes[n].leaf {
		for _, c := range o.nodes[n].children {
			if c != NoNode {
				o.release(c)
			}
		}
	}
	o.free = append(o.free, n)
}

// ToBranch turns leaf n into a branch with eight leaf children, each a copy
// of n's cell, and reports whether it did. Branches and leaves already at
// max depth are left unchanged.
func (o *Octree) ToBranch(n NodeIndex) bool {
	if !o.nodes[n].leaf {
		return false
	}
	depth := o.nodes[n].depth
	if int(depth) >= o.maxDepth {
		o.log.Debug("octree: refusing to split leaf at max depth", "node", n, "depth", depth)
		return false
	}
	cell := o.nodes[n].cell
	var children [8]NodeIndex
	for i := range children {
		children[i] = o.alloc(cell, depth+1)
	}
	// alloc may grow the arena; index afresh.
	o.nodes[n].children = children
	o.nodes[n].leaf = false
	o.nodes[n].cell = voxel.Cell{}
	return true
}

// Depth returns the depth of node n; the root is 0.
func (o *Octree) Depth(n NodeIndex) int { return int(o.nodes[n].depth) }

// ToLeaf discards any children of n and makes it a leaf holding cell.
func (o *Octree) ToLeaf(n NodeIndex, cell voxel.Cell) {
	if !o.nodes[n].leaf {
		for i, c := range o.nodes[n].children {
			if c != NoNode {
				o.release(c)
			}
			o.nodes[n].children[i] = NoNode
		}
	}
	o.nodes[n].leaf = true
	o.nodes[n].cell = cell
}

// IsValidVoxelIndex reports whether idx lies inside the voxel lattice.
func (o *Octree) IsValidVoxelIndex(idx mathx.Vec3i) bool {
	return idx.InRange(0, o.AxisCount())
}

// homeCell returns the cell that owns voxel idx for reads, and the corner
// of that cell the voxel occupies.
func (o *Octree) homeCell(idx mathx.Vec3i) (mathx.Vec3i, mathx.Vec3i) {
	home := idx.Clamp(0, o.AxisCount()-2)
	return home, idx.Sub(home)
}

// childContaining picks the octant of branch n (whose cube starts at origin
// and has children of edge half) that contains cell.
func (o *Octree) childContaining(n NodeIndex, origin mathx.Vec3i, half int, cell mathx.Vec3i) (NodeIndex, mathx.Vec3i) {
	for i, off := range childOffsets {
		lo := origin.Add(off.Scale(half))
		d := cell.Sub(lo)
		if d.InRange(0, half) {
			return o.nodes[n].children[i], lo
		}
	}
	panic(fmt.Sprintf("octree: cell %+v outside node at %+v (half %d)", cell, origin, half))
}

// leafFor returns the leaf that covers cell.
func (o *Octree) leafFor(cell mathx.Vec3i) NodeIndex {
	n := o.root
	origin := mathx.Vec3i{}
	size := o.CellAxisCount()
	for !o.nodes[n].leaf {
		size /= 2
		n, origin = o.childContaining(n, origin, size, cell)
	}
	return n
}

// GetVoxel returns the voxel at lattice index idx, or voxel.Default() when
// idx is outside the lattice.
func (o *Octree) GetVoxel(idx mathx.Vec3i) voxel.Voxel {
	if !o.IsValidVoxelIndex(idx) {
		return voxel.Default()
	}
	home, corner := o.homeCell(idx)
	leaf := o.leafFor(home)
	return o.nodes[leaf].cell[voxel.CornerIndex(corner.X, corner.Y, corner.Z)]
}

// neighbor names one cell sharing a voxel: its offset from the home cell
// and the corner slot the voxel occupies inside it.
type neighbor struct {
	offset mathx.Vec3i
	corner int
}

// sharedCorners lists, for each corner of the home cell, the eight cells
// that share that voxel. Cells that fall outside the lattice are skipped at
// use.
var sharedCorners = [8][8]neighbor{
	// corner 0 (0,0,0)
	{
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 0},
		{mathx.Vec3i{X: -1, Y: 0, Z: 0}, 1},
		{mathx.Vec3i{X: 0, Y: -1, Z: 0}, 2},
		{mathx.Vec3i{X: -1, Y: -1, Z: 0}, 3},
		{mathx.Vec3i{X: 0, Y: 0, Z: -1}, 4},
		{mathx.Vec3i{X: -1, Y: 0, Z: -1}, 5},
		{mathx.Vec3i{X: 0, Y: -1, Z: -1}, 6},
		{mathx.Vec3i{X: -1, Y: -1, Z: -1}, 7},
	},
	// corner 1 (1,0,0)
	{
		{mathx.Vec3i{X: 1, Y: 0, Z: 0}, 0},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 1},
		{mathx.Vec3i{X: 1, Y: -1, Z: 0}, 2},
		{mathx.Vec3i{X: 0, Y: -1, Z: 0}, 3},
		{mathx.Vec3i{X: 1, Y: 0, Z: -1}, 4},
		{mathx.Vec3i{X: 0, Y: 0, Z: -1}, 5},
		{mathx.Vec3i{X: 1, Y: -1, Z: -1}, 6},
		{mathx.Vec3i{X: 0, Y: -1, Z: -1}, 7},
	},
	// corner 2 (0,1,0)
	{
		{mathx.Vec3i{X: 0, Y: 1, Z: 0}, 0},
		{mathx.Vec3i{X: -1, Y: 1, Z: 0}, 1},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 2},
		{mathx.Vec3i{X: -1, Y: 0, Z: 0}, 3},
		{mathx.Vec3i{X: 0, Y: 1, Z: -1}, 4},
		{mathx.Vec3i{X: -1, Y: 1, Z: -1}, 5},
		{mathx.Vec3i{X: 0, Y: 0, Z: -1}, 6},
		{mathx.Vec3i{X: -1, Y: 0, Z: -1}, 7},
	},
	// corner 3 (1,1,0)
	{
		{mathx.Vec3i{X: 1, Y: 1, Z: 0}, 0},
		{mathx.Vec3i{X: 0, Y: 1, Z: 0}, 1},
		{mathx.Vec3i{X: 1, Y: 0, Z: 0}, 2},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 3},
		{mathx.Vec3i{X: 1, Y: 1, Z: -1}, 4},
		{mathx.Vec3i{X: 0, Y: 1, Z: -1}, 5},
		{mathx.Vec3i{X: 1, Y: 0, Z: -1}, 6},
		{mathx.Vec3i{X: 0, Y: 0, Z: -1}, 7},
	},
	// corner 4 (0,0,1)
	{
		{mathx.Vec3i{X: 0, Y: 0, Z: 1}, 0},
		{mathx.Vec3i{X: -1, Y: 0, Z: 1}, 1},
		{mathx.Vec3i{X: 0, Y: -1, Z: 1}, 2},
		{mathx.Vec3i{X: -1, Y: -1, Z: 1}, 3},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 4},
		{mathx.Vec3i{X: -1, Y: 0, Z: 0}, 5},
		{mathx.Vec3i{X: 0, Y: -1, Z: 0}, 6},
		{mathx.Vec3i{X: -1, Y: -1, Z: 0}, 7},
	},
	// corner 5 (1,0,1)
	{
		{mathx.Vec3i{X: 1, Y: 0, Z: 1}, 0},
		{mathx.Vec3i{X: 0, Y: 0, Z: 1}, 1},
		{mathx.Vec3i{X: 1, Y: -1, Z: 1}, 2},
		{mathx.Vec3i{X: 0, Y: -1, Z: 1}, 3},
		{mathx.Vec3i{X: 1, Y: 0, Z: 0}, 4},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 5},
		{mathx.Vec3i{X: 1, Y: -1, Z: 0}, 6},
		{mathx.Vec3i{X: 0, Y: -1, Z: 0}, 7},
	},
	// corner 6 (0,1,1)
	{
		{mathx.Vec3i{X: 0, Y: 1, Z: 1}, 0},
		{mathx.Vec3i{X: -1, Y: 1, Z: 1}, 1},
		{mathx.Vec3i{X: 0, Y: 0, Z: 1}, 2},
		{mathx.Vec3i{X: -1, Y: 0, Z: 1}, 3},
		{mathx.Vec3i{X: 0, Y: 1, Z: 0}, 4},
		{mathx.Vec3i{X: -1, Y: 1, Z: 0}, 5},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 6},
		{mathx.Vec3i{X: -1, Y: 0, Z: 0}, 7},
	},
	// corner 7 (1,1,1)
	{
		{mathx.Vec3i{X: 1, Y: 1, Z: 1}, 0},
		{mathx.Vec3i{X: 0, Y: 1, Z: 1}, 1},
		{mathx.Vec3i{X: 1, Y: 0, Z: 1}, 2},
		{mathx.Vec3i{X: 0, Y: 0, Z: 1}, 3},
		{mathx.Vec3i{X: 1, Y: 1, Z: 0}, 4},
		{mathx.Vec3i{X: 0, Y: 1, Z: 0}, 5},
		{mathx.Vec3i{X: 1, Y: 0, Z: 0}, 6},
		{mathx.Vec3i{X: 0, Y: 0, Z: 0}, 7},
	},
}

// SetVoxel writes v at lattice index idx in every cell that shares it,
// subdividing leaves down to max depth where needed. Writes outside the
// lattice are ignored.
func (o *Octree) SetVoxel(idx mathx.Vec3i, v voxel.Voxel) {
	if !o.IsValidVoxelIndex(idx) {
		o.log.Debug("octree: ignoring write outside lattice",
			"index", idx, "axis", o.AxisCount())
		return
	}
	home, corner := o.homeCell(idx)
	cells := o.CellAxisCount()
	for _, nb := range sharedCorners[voxel.CornerIndex(corner.X, corner.Y, corner.Z)] {
		c := home.Add(nb.offset)
		if !c.InRange(0, cells) {
			continue
		}
		o.setCorner(c, nb.corner, v)
	}
}

// setCorner writes one corner slot of one max-depth cell.
func (o *Octree) setCorner(cell mathx.Vec3i, corner int, v voxel.Voxel) {
	n := o.root
	origin := mathx.Vec3i{}
	size := o.CellAxisCount()
	for depth := 0; ; depth++ {
		if o.nodes[n].leaf {
			if depth == o.maxDepth {
				c := o.nodes[n].cell
				c[corner] = v
				o.ToLeaf(n, c)
				return
			}
			// Every sub-cell already reports the leaf's corner value.
			if o.nodes[n].cell[corner] == v {
				return
			}
			o.ToBranch(n)
		}
		size /= 2
		n, origin = o.childContaining(n, origin, size, cell)
	}
}

// CollapseTree merges every subtree that carries no surface into a single
// leaf. It returns the number of branches that were merged.
func (o *Octree) CollapseTree() int {
	before := o.NodeCount()
	merged := 0
	o.tryToMerge(o.root, &merged)
	o.log.Debug("octree: collapsed",
		"merged", merged, "nodes_before", before, "nodes_after", o.NodeCount())
	return merged
}

// TryToMergeNodes attempts to merge the subtree at n and reports whether n
// is now a uniform leaf. A leaf merges when its cell has no surface; a
// branch merges when all eight children merge and agree in sign and
// material. The merged leaf is filled from child 0's first corner with its
// density normalised to ±voxel.DefaultDensity.
func (o *Octree) TryToMergeNodes(n NodeIndex) bool {
	merged := 0
	return o.tryToMerge(n, &merged)
}

func (o *Octree) tryToMerge(n NodeIndex, merged *int) bool {
	if o.nodes[n].leaf {
		return o.nodes[n].cell.CanBeSimplified()
	}
	children := o.nodes[n].children
	ok := true
	for _, c := range children {
		if !o.tryToMerge(c, merged) {
			ok = false
		}
	}
	if !ok {
		return false
	}
	rep := o.nodes[children[0]].cell[0]
	for _, c := range children[1:] {
		v := o.nodes[c].cell[0]
		if v.Inside() != rep.Inside() || v.Material != rep.Material {
			return false
		}
	}
	o.ToLeaf(n, voxel.FilledCell(rep.Normalized()))
	*merged++
	return true
}

// Walk calls fn for every leaf with the cell-space origin and edge length
// of the region it covers.
func (o *Octree) Walk(fn func(origin mathx.Vec3i, size int, cell *voxel.Cell)) {
	o.walk(o.root, mathx.Vec3i{}, o.CellAxisCount(), fn)
}

func (o *Octree) walk(n NodeIndex, origin mathx.Vec3i, size int, fn func(mathx.Vec3i, int, *voxel.Cell)) {
	if o.nodes[n].leaf {
		fn(origin, size, &o.nodes[n].cell)
		return
	}
	half := size / 2
	for i, c := range o.nodes[n].children {
		o.walk(c, origin.Add(childOffsets[i].Scale(half)), half, fn)
	}
}
