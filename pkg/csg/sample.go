package csg

import (
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
)

// Field is anything that yields a density for a world position.
type Field interface {
	Evaluate(p mgl32.Vec3) float32
}

// Sample evaluates f at every lattice point of a size³ grid spanning
// [-extent, +extent]³ and returns the densities in mathx.To1D order. Each
// z-slab is evaluated on a worker pool; workers <= 0 means one per CPU.
func Sample(f Field, size int, extent float32, workers int) []float32 {
	if size < 2 {
		size = 2
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]float32, size*size*size)
	cs := 2 * extent / float32(size-1)

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	var wg sync.WaitGroup
	for z := 0; z < size; z++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			wz := float32(z)*cs - extent
			for y := 0; y < size; y++ {
				wy := float32(y)*cs - extent
				row := mathx.To1D(0, y, z, size)
				for x := 0; x < size; x++ {
					out[row+x] = f.Evaluate(mgl32.Vec3{float32(x)*cs - extent, wy, wz})
				}
			}
		})
	}
	wg.Wait()
	return out
}

// Fill copies sampled densities into dst. Voxels at or below zero get
// material, the rest are tagged empty. densities must come from Sample
// with dst's size.
func Fill(dst *volume.Dense, densities []float32, material voxel.Material) {
	size := dst.Size()
	for i, d := range densities {
		v := voxel.Voxel{Density: d}
		if d <= 0 {
			v.Material = material
		}
		p := mathx.To3D(i, size)
		dst.SetVoxel(p.X, p.Y, p.Z, v)
	}
}

// SampleVolume samples f into a new dense volume.
func SampleVolume(f Field, size int, extent float32, material voxel.Material, workers int) *volume.Dense {
	dst := volume.New(size, extent)
	Fill(dst, Sample(f, dst.Size(), extent, workers), material)
	return dst
}
