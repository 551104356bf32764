package csg_test

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/voxfield/pkg/csg"
	"github.com/chazu/voxfield/pkg/kernel/sdfx"
	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/voxel"
)

const eps = 1e-4

func sphere(t *testing.T, a *csg.Arena, r float32, at mgl32.Vec3) csg.ShapeID {
	t.Helper()
	s, err := csg.NewSphere(sdfx.New(), r)
	require.NoError(t, err)
	return a.Add(s.At(at))
}

func box(t *testing.T, a *csg.Arena, half mgl32.Vec3, at mgl32.Vec3) csg.ShapeID {
	t.Helper()
	s, err := csg.NewBox(sdfx.New(), half, 0)
	require.NoError(t, err)
	return a.Add(s.At(at))
}

func TestSingleShape(t *testing.T) {
	a := csg.NewArena()
	g := csg.NewGenerator(a, csg.NewContainer(sphere(t, a, 1, mgl32.Vec3{})))

	assert.InDelta(t, -1, g.Evaluate(mgl32.Vec3{}), eps)
	assert.InDelta(t, 1, g.Evaluate(mgl32.Vec3{2, 0, 0}), eps)
	assert.InDelta(t, 0, g.Evaluate(mgl32.Vec3{0, 0, 1}), eps)
}

func TestUnionLaw(t *testing.T) {
	a := csg.NewArena()
	sa := sphere(t, a, 1, mgl32.Vec3{})
	sb := sphere(t, a, 1, mgl32.Vec3{3, 0, 0})

	root := csg.NewContainer(sa)
	root.AddChild(sb, csg.Add)
	g := csg.NewGenerator(a, root)

	alone := csg.NewGenerator(a, csg.NewContainer(sa))
	other := csg.NewGenerator(a, csg.NewContainer(sb))

	for _, p := range []mgl32.Vec3{{0, 0, 0}, {3, 0, 0}, {1.5, 0, 0}, {-2, 1, 0}, {3, 2, 2}} {
		want := float32(math.Min(float64(alone.Evaluate(p)), float64(other.Evaluate(p))))
		assert.InDelta(t, want, g.Evaluate(p), eps, "at %v", p)
	}
	assert.Less(t, g.Evaluate(mgl32.Vec3{3, 0, 0}), float32(0))
}

func TestSubtractionLaw(t *testing.T) {
	a := csg.NewArena()
	sa := box(t, a, mgl32.Vec3{2, 2, 2}, mgl32.Vec3{})
	sb := sphere(t, a, 1, mgl32.Vec3{})

	root := csg.NewContainer(sa)
	root.AddChild(sb, csg.Subtract)
	g := csg.NewGenerator(a, root)

	alone := csg.NewGenerator(a, csg.NewContainer(sa))
	cutter := csg.NewGenerator(a, csg.NewContainer(sb))

	for _, p := range []mgl32.Vec3{{0, 0, 0}, {1.8, 0, 0}, {0.5, 0.5, 0}, {3, 0, 0}} {
		want := float32(math.Max(float64(alone.Evaluate(p)), float64(-cutter.Evaluate(p))))
		assert.InDelta(t, want, g.Evaluate(p), eps, "at %v", p)
	}
	assert.Greater(t, g.Evaluate(mgl32.Vec3{}), float32(0), "centre is carved out")
	assert.Less(t, g.Evaluate(mgl32.Vec3{1.8, 0, 0}), float32(0), "box wall remains")
}

func TestContainerWithoutShape(t *testing.T) {
	a := csg.NewArena()
	sa := sphere(t, a, 2, mgl32.Vec3{})
	sb := sphere(t, a, 1, mgl32.Vec3{})

	root := csg.NewContainer(csg.NoShape)
	root.AddChild(sa, csg.Add)
	root.AddChild(sb, csg.Subtract)
	g := csg.NewGenerator(a, root)

	assert.InDelta(t, 1, g.Evaluate(mgl32.Vec3{}), eps)
	assert.InDelta(t, -0.5, g.Evaluate(mgl32.Vec3{1.5, 0, 0}), eps)
}

func TestEmptyTree(t *testing.T) {
	g := csg.NewGenerator(csg.NewArena(), csg.NewContainer(csg.NoShape))
	assert.True(t, math.IsInf(float64(g.Evaluate(mgl32.Vec3{})), 1))

	var nilRoot csg.Generator
	assert.True(t, math.IsInf(float64(nilRoot.Evaluate(mgl32.Vec3{})), 1))
}

func TestChildFrameFollowsParent(t *testing.T) {
	a := csg.NewArena()
	parent := sphere(t, a, 1, mgl32.Vec3{5, 0, 0})
	child := sphere(t, a, 1, mgl32.Vec3{1, 0, 0})

	root := csg.NewContainer(parent)
	c := root.AddChild(child, csg.Add)
	assert.Len(t, root.Children(), 1)
	assert.Equal(t, child, c.Shape)

	g := csg.NewGenerator(a, root)
	assert.InDelta(t, -1, g.Evaluate(mgl32.Vec3{6, 0, 0}), eps)
}

func TestRotationAndScale(t *testing.T) {
	k := sdfx.New()
	a := csg.NewArena()

	bar, err := csg.NewBox(k, mgl32.Vec3{2, 0.5, 0.5}, 0)
	require.NoError(t, err)
	bar.Rotated(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}))
	g := csg.NewGenerator(a, csg.NewContainer(a.Add(bar)))

	assert.Less(t, g.Evaluate(mgl32.Vec3{0, 1.8, 0}), float32(0))
	assert.Greater(t, g.Evaluate(mgl32.Vec3{1.8, 0, 0}), float32(0))

	ball, err := csg.NewSphere(k, 1)
	require.NoError(t, err)
	ball.Scaled(mgl32.Vec3{2, 2, 2})
	g = csg.NewGenerator(a, csg.NewContainer(a.Add(ball)))
	assert.InDelta(t, -0.5, g.Evaluate(mgl32.Vec3{1.5, 0, 0}), eps)
}

func TestGeneratorPlacement(t *testing.T) {
	a := csg.NewArena()
	g := csg.NewGenerator(a, csg.NewContainer(sphere(t, a, 1, mgl32.Vec3{})))
	g.Position = mgl32.Vec3{10, 0, 0}
	assert.InDelta(t, -1, g.Evaluate(mgl32.Vec3{10, 0, 0}), eps)
	assert.InDelta(t, 9, g.Evaluate(mgl32.Vec3{}), eps)
}

func TestBounds(t *testing.T) {
	a := csg.NewArena()
	root := csg.NewContainer(sphere(t, a, 1, mgl32.Vec3{}))
	root.AddChild(sphere(t, a, 1, mgl32.Vec3{3, 0, 0}), csg.Add)
	root.AddChild(sphere(t, a, 10, mgl32.Vec3{}), csg.Subtract)
	g := csg.NewGenerator(a, root)

	b, ok := g.Bounds()
	require.True(t, ok)
	assert.InDelta(t, -1, b.Min.X(), eps)
	assert.InDelta(t, 4, b.Max.X(), eps)
	assert.InDelta(t, 1, b.Max.Y(), eps)

	_, ok = csg.NewGenerator(a, csg.NewContainer(csg.NoShape)).Bounds()
	assert.False(t, ok)
}

func TestArenaHandles(t *testing.T) {
	a := csg.NewArena()
	assert.Nil(t, a.Shape(csg.NoShape))
	assert.Nil(t, a.Shape(5))
	id := sphere(t, a, 1, mgl32.Vec3{})
	assert.NotNil(t, a.Shape(id))
	assert.Equal(t, 1, a.Len())
}

func TestAttachOnce(t *testing.T) {
	a := csg.NewArena()
	shared := csg.NewContainer(sphere(t, a, 1, mgl32.Vec3{}))
	first := csg.NewContainer(box(t, a, mgl32.Vec3{2, 2, 2}, mgl32.Vec3{}))
	second := csg.NewContainer(box(t, a, mgl32.Vec3{3, 3, 3}, mgl32.Vec3{}))

	got, err := first.Attach(shared, csg.Add)
	require.NoError(t, err)
	assert.Same(t, shared, got)
	assert.Same(t, first, shared.Parent())

	_, err = second.Attach(shared, csg.Subtract)
	assert.ErrorIs(t, err, csg.ErrAttached)
	assert.Equal(t, csg.Add, shared.Op, "the first attachment keeps its combination")
	assert.Empty(t, second.Children())

	child := first.AddChild(sphere(t, a, 1, mgl32.Vec3{}), csg.Add)
	_, err = second.Attach(child, csg.Add)
	assert.ErrorIs(t, err, csg.ErrAttached, "AddChild containers have a parent too")
	assert.Nil(t, first.Parent())
}

func TestParallelSampleMatchesSerial(t *testing.T) {
	a := csg.NewArena()
	root := csg.NewContainer(box(t, a, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{}))
	root.AddChild(sphere(t, a, 0.7, mgl32.Vec3{1, 1, 1}), csg.Subtract)
	g := csg.NewGenerator(a, root)

	const size = 9
	const extent = 1.5
	got := csg.Sample(g, size, extent, 4)
	require.Len(t, got, size*size*size)

	cs := float32(2 * extent / (size - 1))
	for i, d := range got {
		idx := mathx.To3D(i, size)
		p := idx.Vec3().Mul(cs).Sub(mgl32.Vec3{extent, extent, extent})
		assert.Equal(t, g.Evaluate(p), d, "voxel %+v", idx)
	}
}

func TestSampleVolume(t *testing.T) {
	a := csg.NewArena()
	g := csg.NewGenerator(a, csg.NewContainer(sphere(t, a, 1, mgl32.Vec3{})))

	d := csg.SampleVolume(g, 5, 2, 3, 0)
	centre := d.Voxel(2, 2, 2)
	assert.True(t, centre.Inside())
	assert.Equal(t, voxel.Material(3), centre.Material)

	corner := d.Voxel(0, 0, 0)
	assert.False(t, corner.Inside())
	assert.Equal(t, voxel.Material(0), corner.Material)
	assert.True(t, d.IsDirty())
}
