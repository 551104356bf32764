package csg

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/kernel"
)

// ErrAttached is returned when a container that already has a parent is
// attached again.
var ErrAttached = errors.New("csg: container is already attached to a parent")

// Combination says how a child container merges into its parent's value.
type Combination int

const (
	// Add unions the child: min(d, c).
	Add Combination = iota
	// Subtract carves the child out: max(d, -c).
	Subtract
)

func (c Combination) String() string {
	if c == Subtract {
		return "subtract"
	}
	return "add"
}

// Apply combines a parent value d with a child value c.
func (c Combination) Apply(d, child float32) float32 {
	if c == Subtract {
		return math32.Max(d, -child)
	}
	return math32.Min(d, child)
}

// Container is a node of a CSG tree.
type Container struct {
	Shape ShapeID
	Op    Combination

	parent   *Container
	children []*Container
}

// NewContainer returns a root container referencing shape (or NoShape).
func NewContainer(shape ShapeID) *Container {
	return &Container{Shape: shape, Op: Add}
}

// AddChild appends a new child container holding shape and returns it so
// callers can keep building beneath it.
func (c *Container) AddChild(shape ShapeID, op Combination) *Container {
	child := &Container{Shape: shape, Op: op, parent: c}
	c.children = append(c.children, child)
	return child
}

// Attach appends an existing subtree with the given combination and
// returns it. A container has at most one parent; attaching it a second
// time returns ErrAttached and leaves both trees untouched.
func (c *Container) Attach(child *Container, op Combination) (*Container, error) {
	if child.parent != nil {
		return nil, ErrAttached
	}
	child.Op = op
	child.parent = c
	c.children = append(c.children, child)
	return child, nil
}

// Parent returns the container c is attached to, or nil for a root.
func (c *Container) Parent() *Container {
	return c.parent
}

// Children returns the child containers in evaluation order.
func (c *Container) Children() []*Container {
	return c.children
}

// Generator evaluates a CSG tree in world space. Position and Rotation
// place the whole tree.
type Generator struct {
	Root     *Container
	Position mgl32.Vec3
	Rotation mgl32.Quat

	arena *Arena
}

// NewGenerator returns a generator over root whose shapes live in arena.
// The generator borrows the arena; it does not copy it.
func NewGenerator(arena *Arena, root *Container) *Generator {
	return &Generator{Root: root, Rotation: mgl32.QuatIdent(), arena: arena}
}

// Arena returns the arena the generator resolves shapes from.
func (g *Generator) Arena() *Arena {
	return g.arena
}

// Evaluate returns the signed density at world position p. An empty tree
// is +Inf everywhere.
func (g *Generator) Evaluate(p mgl32.Vec3) float32 {
	if g.Root == nil {
		return math32.Inf(1)
	}
	return g.evaluate(g.Root, inverseRotate(g.Rotation, p.Sub(g.Position)))
}

func (g *Generator) evaluate(c *Container, p mgl32.Vec3) float32 {
	d := math32.Inf(1)
	local := p
	rest := c.children
	if s := g.arena.Shape(c.Shape); s != nil {
		d = s.Distance(p)
		local = s.ToLocal(p)
	} else if len(rest) > 0 {
		d = g.evaluate(rest[0], p)
		rest = rest[1:]
	}
	for _, child := range rest {
		d = child.Op.Apply(d, g.evaluate(child, local))
	}
	return d
}

// Bounds returns a conservative world-space box around everything the tree
// adds. Subtracted children never grow the box. ok is false for an empty
// tree.
func (g *Generator) Bounds() (box kernel.AABB, ok bool) {
	if g.Root == nil {
		return kernel.AABB{}, false
	}
	box, ok = g.bounds(g.Root)
	if !ok {
		return kernel.AABB{}, false
	}
	return transformBox(box, g.Position, g.Rotation), true
}

func (g *Generator) bounds(c *Container) (kernel.AABB, bool) {
	var box kernel.AABB
	ok := false
	s := g.arena.Shape(c.Shape)
	if s != nil {
		box, ok = s.Bounds(), true
	}
	for i, child := range c.children {
		base := s == nil && i == 0
		if child.Op == Subtract && !base {
			continue
		}
		cb, cok := g.bounds(child)
		if !cok {
			continue
		}
		if s != nil {
			cb = transformBox(cb, s.Position, s.Rotation)
		}
		if ok {
			box = unionBox(box, cb)
		} else {
			box, ok = cb, true
		}
	}
	return box, ok
}
