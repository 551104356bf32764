package voxelize

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/kernel"
)

// Region is the Voronoi region of a triangle a query point projects into.
type Region int

const (
	RegionFace    Region = iota + 1 // R1: inside all three edges
	RegionEdgeB                     // R2: outside edge V1→V3
	RegionEdgeC                     // R3: outside edge V3→V2
	RegionEdgeD                     // R4: outside edge V2→V1
	RegionVertex1                   // R5
	RegionVertex2                   // R6
	RegionVertex3                   // R7
)

func (r Region) String() string {
	switch r {
	case RegionFace:
		return "face"
	case RegionEdgeB:
		return "edge V1-V3"
	case RegionEdgeC:
		return "edge V3-V2"
	case RegionEdgeD:
		return "edge V2-V1"
	case RegionVertex1:
		return "vertex V1"
	case RegionVertex2:
		return "vertex V2"
	case RegionVertex3:
		return "vertex V3"
	}
	return fmt.Sprintf("Region(%d)", int(r))
}

// edgeSlack widens the edge parameter ranges so points on region borders
// still classify under float rounding.
const edgeSlack = 1e-5

// triangle holds the per-triangle frame used to classify lattice points.
//
//	A     face normal
//	B C D unit edge directions V1→V3, V3→V2, V2→V1 (lengths bLen, cLen, dLen)
//	E F G in-plane edge perpendiculars (edge × A), pointing into the triangle
type triangle struct {
	v1, v2, v3 mgl32.Vec3
	n1, n2, n3 mgl32.Vec3

	a                mgl32.Vec3
	b, c, d          mgl32.Vec3
	bLen, cLen, dLen float32
	e, f, g          mgl32.Vec3
}

// newTriangle builds the frame for (p1, p2, p3). It reports false for a
// degenerate triangle (zero-length edge or zero area).
func newTriangle(p1, p2, p3 kernel.Vertex) (triangle, bool) {
	t := triangle{
		v1: p1.Position, v2: p2.Position, v3: p3.Position,
	}

	cross := t.v2.Sub(t.v1).Cross(t.v3.Sub(t.v1))
	area2 := cross.Len()
	if area2 <= 1e-12 {
		return t, false
	}
	t.a = cross.Mul(1 / area2)

	var ok bool
	if t.b, t.bLen, ok = unitEdge(t.v1, t.v3); !ok {
		return t, false
	}
	if t.c, t.cLen, ok = unitEdge(t.v3, t.v2); !ok {
		return t, false
	}
	if t.d, t.dLen, ok = unitEdge(t.v2, t.v1); !ok {
		return t, false
	}
	t.e = t.b.Cross(t.a)
	t.f = t.c.Cross(t.a)
	t.g = t.d.Cross(t.a)

	t.n1 = normalOr(p1.Normal, t.a)
	t.n2 = normalOr(p2.Normal, t.a)
	t.n3 = normalOr(p3.Normal, t.a)
	return t, true
}

func unitEdge(from, to mgl32.Vec3) (mgl32.Vec3, float32, bool) {
	e := to.Sub(from)
	l := e.Len()
	if l <= 1e-12 {
		return mgl32.Vec3{}, 0, false
	}
	return e.Mul(1 / l), l, true
}

// normalOr returns n normalized, or fallback when n is (near) zero.
func normalOr(n, fallback mgl32.Vec3) mgl32.Vec3 {
	l := n.Len()
	if l <= 1e-12 {
		return fallback
	}
	return n.Mul(1 / l)
}

// pseudoNormal blends two vertex normals for an edge region.
func pseudoNormal(n1, n2, fallback mgl32.Vec3) mgl32.Vec3 {
	return normalOr(n1.Add(n2), fallback)
}

func signOf(x float32) float32 {
	if x < 0 {
		return -1
	}
	return 1
}

// classify finds the region of p and returns the unsigned distance from p
// to the triangle together with the side p lies on (+1 outside, -1 inside).
// Vertex regions are tested before edge regions. A point matching no
// region means the frame was built from bad data and is fatal.
func (t *triangle) classify(p mgl32.Vec3) (Region, float32, float32) {
	r1 := p.Sub(t.v1)
	r2 := p.Sub(t.v2)
	r3 := p.Sub(t.v3)

	a := r1.Dot(t.a)
	b := r1.Dot(t.b)
	c := r3.Dot(t.c)
	d := r2.Dot(t.d)
	e := r1.Dot(t.e)
	f := r3.Dot(t.f)
	g := r2.Dot(t.g)

	if e >= 0 && f >= 0 && g >= 0 {
		return RegionFace, math32.Abs(a), signOf(a)
	}

	switch {
	case b <= 0 && d >= t.dLen:
		return RegionVertex1, r1.Len(), signOf(r1.Dot(t.n1))
	case c <= 0 && b >= t.bLen:
		return RegionVertex3, r3.Len(), signOf(r3.Dot(t.n3))
	case d <= 0 && c >= t.cLen:
		return RegionVertex2, r2.Len(), signOf(r2.Dot(t.n2))
	}

	switch {
	case e < 0 && inSpan(b, t.bLen):
		off := r1.Sub(t.b.Mul(b))
		return RegionEdgeB, math32.Sqrt(a*a + e*e), signOf(off.Dot(pseudoNormal(t.n1, t.n3, t.a)))
	case f < 0 && inSpan(c, t.cLen):
		off := r3.Sub(t.c.Mul(c))
		return RegionEdgeC, math32.Sqrt(a*a + f*f), signOf(off.Dot(pseudoNormal(t.n3, t.n2, t.a)))
	case g < 0 && inSpan(d, t.dLen):
		off := r2.Sub(t.d.Mul(d))
		return RegionEdgeD, math32.Sqrt(a*a + g*g), signOf(off.Dot(pseudoNormal(t.n2, t.n1, t.a)))
	}

	panic(fmt.Sprintf("voxelize: point %v matches no region of triangle (%v, %v, %v)", p, t.v1, t.v2, t.v3))
}

func inSpan(s, length float32) bool {
	slack := edgeSlack * length
	return s >= -slack && s <= length+slack
}
