// Package voxelize converts an indexed triangle mesh into a dense signed
// density volume.
//
// Every triangle stamps the voxels inside its bounding box, grown by a
// surface threshold of one cell diagonal. Each voxel keeps the distance to
// its nearest triangle, measured by classifying the voxel into one of the
// triangle's seven Voronoi regions (face, three edges, three vertices). The
// sign comes from the nearest feature's normal. Voxels no triangle reached
// are flood-filled from the volume border to decide inside from outside.
package voxelize

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
)

const (
	// DefaultResolution is used when a mesh name carries no usable suffix.
	DefaultResolution = 5
	// DefaultMaxResolution bounds the resolution a mesh name may request.
	DefaultMaxResolution = 257
	// DefaultInflate grows the mesh bounds so the surface never touches the
	// volume border.
	DefaultInflate = 1.25
)

// Options tunes a voxelization run. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	DefaultResolution int
	Inflate           float32
	FarDensity        float32

	// MaxResolution caps the resolution taken from a mesh name. Larger
	// suffixes fall back to DefaultResolution with a warning.
	MaxResolution int

	// ShellOffset shifts the iso-surface outward by ShellOffset surface
	// thresholds. 0 places it on the mesh; 0.5 reproduces the thick-shell
	// density -(1 - d/threshold) + 0.5 for voxels outside the mesh. The
	// default of 0 deliberately departs from that formula, which leaves the
	// centre of a resolution-5 cube positive.
	ShellOffset float32

	// Textures maps a material name to the texture layers applied to the
	// resulting volume.
	Textures map[string][]volume.TextureSlot

	Logger *slog.Logger
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		DefaultResolution: DefaultResolution,
		MaxResolution:     DefaultMaxResolution,
		Inflate:           DefaultInflate,
		FarDensity:        voxel.DefaultDensity,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

var resolutionSuffix = regexp.MustCompile(`_(\d+)$`)

// ParseResolution extracts the voxels-per-axis count from a trailing
// "_<int>" in a mesh name, as in "cubeMesh_6". It reports false when the
// suffix is missing or below 2.
func ParseResolution(name string) (int, bool) {
	m := resolutionSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 2 {
		return 0, false
	}
	return n, true
}

// Voxelize rasterizes mesh into a new dense volume. Bad triangles are
// skipped with a warning; the rest of the mesh is still processed.
func Voxelize(mesh *kernel.Mesh, opts Options) *volume.Dense {
	log := opts.logger()
	if opts.MaxResolution < 2 {
		opts.MaxResolution = DefaultMaxResolution
	}
	if opts.DefaultResolution < 2 {
		opts.DefaultResolution = DefaultResolution
	}
	opts.DefaultResolution = min(opts.DefaultResolution, opts.MaxResolution)
	if opts.Inflate <= 0 {
		opts.Inflate = DefaultInflate
	}
	if opts.FarDensity <= 0 {
		opts.FarDensity = voxel.DefaultDensity
	}

	res, ok := ParseResolution(mesh.Name)
	switch {
	case !ok:
		res = opts.DefaultResolution
		log.Warn("voxelize: mesh name has no resolution suffix, using default",
			"mesh", mesh.Name, "resolution", res)
	case res > opts.MaxResolution:
		log.Warn("voxelize: resolution suffix exceeds maximum, using default",
			"mesh", mesh.Name, "requested", res, "max", opts.MaxResolution,
			"resolution", opts.DefaultResolution)
		res = opts.DefaultResolution
	}

	bounds := mesh.Bounds
	if bounds == (kernel.AABB{}) {
		bounds = kernel.BoundsOf(mesh.Vertices)
	}
	extent := reach(bounds) * opts.Inflate
	if extent <= 0 {
		log.Warn("voxelize: mesh has zero extent", "mesh", mesh.Name)
		extent = 1
	}

	vol := volume.New(res, extent)
	vol.Fill(voxel.Voxel{Material: 0, Density: opts.FarDensity})

	r := &rasterizer{
		vol:       vol,
		threshold: vol.CellSize() * math32.Sqrt(3),
		nearest:   make([]float32, res*res*res),
		side:      make([]float32, res*res*res),
	}
	for i := range r.nearest {
		r.nearest[i] = math32.Inf(1)
	}

	skipped := 0
	for i := 0; i < mesh.TriangleCount(); i++ {
		p1, p2, p3, ok := mesh.Triangle(i)
		if !ok {
			log.Warn("voxelize: triangle references missing vertex", "mesh", mesh.Name, "triangle", i)
			skipped++
			continue
		}
		tri, ok := newTriangle(p1, p2, p3)
		if !ok {
			log.Warn("voxelize: skipping degenerate triangle", "mesh", mesh.Name, "triangle", i)
			skipped++
			continue
		}
		r.stamp(&tri)
	}

	r.resolve(mesh.MaterialID, opts.ShellOffset, opts.FarDensity)
	vol.SetMaterial(surfaceMaterial(mesh.Material, opts.Textures))

	log.Debug("voxelize: done",
		"mesh", mesh.Name, "resolution", res, "extent", extent,
		"triangles", mesh.TriangleCount(), "skipped", skipped)
	return vol
}

// reach returns the largest absolute coordinate of b. For a mesh centred
// on the origin this is its largest half extent.
func reach(b kernel.AABB) float32 {
	return math32.Max(mathx.MaxComponent(mathx.AbsVec(b.Min)), mathx.MaxComponent(mathx.AbsVec(b.Max)))
}

func surfaceMaterial(m volume.Material, textures map[string][]volume.TextureSlot) volume.Material {
	if m.Name == "" && m.Color == ([4]float32{}) {
		m = volume.DefaultMaterial()
	}
	if slots, ok := textures[m.Name]; ok {
		m.Textures = append([]volume.TextureSlot(nil), slots...)
	}
	return m
}

// rasterizer accumulates the nearest triangle distance per voxel.
type rasterizer struct {
	vol       *volume.Dense
	threshold float32
	nearest   []float32
	side      []float32
}

// stamp visits every voxel within threshold of the triangle's bounds.
func (r *rasterizer) stamp(t *triangle) {
	size := r.vol.Size()
	grow := mgl32.Vec3{r.threshold, r.threshold, r.threshold}
	lo := minVec(t.v1, minVec(t.v2, t.v3)).Sub(grow)
	hi := maxVec(t.v1, maxVec(t.v2, t.v3)).Add(grow)

	ilo := r.vol.WorldPositionToCellIndex(lo)
	ihi := r.vol.WorldPositionToCellIndex(hi)
	if ihi.X < 0 || ihi.Y < 0 || ihi.Z < 0 || ilo.X >= size || ilo.Y >= size || ilo.Z >= size {
		return
	}
	ilo = ilo.Clamp(0, size-1)
	ihi = ihi.Clamp(0, size-1)

	for z := ilo.Z; z <= ihi.Z; z++ {
		for y := ilo.Y; y <= ihi.Y; y++ {
			for x := ilo.X; x <= ihi.X; x++ {
				idx := mathx.V3i(x, y, z)
				_, dist, side := t.classify(r.vol.VoxelIndexToWorldPosition(idx))
				i := mathx.To1D(x, y, z, size)
				if dist < r.nearest[i] {
					r.nearest[i] = dist
					r.side[i] = side
				}
			}
		}
	}
}

// resolve writes densities for stamped voxels and classifies the rest.
func (r *rasterizer) resolve(material voxel.Material, offset, far float32) {
	size := r.vol.Size()
	for i, dist := range r.nearest {
		if math32.IsInf(dist, 1) {
			continue
		}
		v := voxel.Voxel{Density: r.side[i]*dist/r.threshold - offset}
		if v.Density <= 0 {
			v.Material = material
		}
		p := mathx.To3D(i, size)
		r.vol.SetVoxel(p.X, p.Y, p.Z, v)
	}

	outside := r.floodOutside()
	for i, dist := range r.nearest {
		if !math32.IsInf(dist, 1) || outside[i] {
			continue
		}
		p := mathx.To3D(i, size)
		r.vol.SetVoxel(p.X, p.Y, p.Z, voxel.Voxel{Material: material, Density: -far})
	}
}

// floodOutside marks every voxel reachable from the volume border through
// voxels that are unstamped or have positive density.
func (r *rasterizer) floodOutside() []bool {
	size := r.vol.Size()
	n := size * size * size
	seen := make([]bool, n)
	passable := func(i int) bool {
		return math32.IsInf(r.nearest[i], 1) || r.vol.VoxelAt(i).Density > 0
	}

	queue := make([]int, 0, 6*size*size)
	for i := 0; i < n; i++ {
		p := mathx.To3D(i, size)
		border := p.X == 0 || p.Y == 0 || p.Z == 0 || p.X == size-1 || p.Y == size-1 || p.Z == size-1
		if border && passable(i) {
			seen[i] = true
			queue = append(queue, i)
		}
	}

	steps := [6]mathx.Vec3i{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		p := mathx.To3D(i, size)
		for _, s := range steps {
			q := p.Add(s)
			if !q.InRange(0, size) {
				continue
			}
			j := mathx.To1D(q.X, q.Y, q.Z, size)
			if !seen[j] && passable(j) {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return seen
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
