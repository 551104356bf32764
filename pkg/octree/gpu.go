package octree

import (
	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/voxel"
)

// GPUNode is one entry of the linearized tree. Branch children are given
// as coordinates into an AxisCount³ index cube rather than flat indices so
// the array can be uploaded as a 3D texture.
type GPUNode struct {
	Leaf     bool           `json:"leaf"`
	Cell     voxel.Cell     `json:"cell"`
	Children [8]mathx.Vec3i `json:"children"`
}

// GPUOctree is the flattened, pre-order form of an Octree.
type GPUOctree struct {
	MaxDepth  int       `json:"max_depth"`
	AxisCount int       `json:"axis_count"`
	Nodes     []GPUNode `json:"nodes"`
}

// ChildIndex decodes a child coordinate back into a position in Nodes.
func (g *GPUOctree) ChildIndex(c mathx.Vec3i) int {
	return mathx.To1D(c.X, c.Y, c.Z, g.AxisCount)
}

// GetGPUOctreeStructure linearizes the tree in pre-order. The root is
// entry 0. AxisCount is the smallest cube edge holding every node.
func (o *Octree) GetGPUOctreeStructure() *GPUOctree {
	order := make([]NodeIndex, 0, o.NodeCount())
	o.preorder(o.root, &order)

	slot := make(map[NodeIndex]int, len(order))
	for i, n := range order {
		slot[n] = i
	}

	g := &GPUOctree{
		MaxDepth:  o.maxDepth,
		AxisCount: mathx.CubeAxis(len(order)),
		Nodes:     make([]GPUNode, len(order)),
	}
	for i, n := range order {
		nd := &o.nodes[n]
		if nd.leaf {
			g.Nodes[i] = GPUNode{Leaf: true, Cell: nd.cell}
			continue
		}
		var out GPUNode
		for k, c := range nd.children {
			out.Children[k] = mathx.To3D(slot[c], g.AxisCount)
		}
		g.Nodes[i] = out
	}
	return g
}

func (o *Octree) preorder(n NodeIndex, order *[]NodeIndex) {
	*order = append(*order, n)
	if o.nodes[n].leaf {
		return
	}
	for _, c := range o.nodes[n].children {
		o.preorder(c, order)
	}
}
