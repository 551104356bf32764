package volume

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/voxfield/pkg/archive"
	"github.com/chazu/voxfield/pkg/voxel"
)

// ArchiveKind tags archives produced by Save.
const ArchiveKind = "volume"

// Property names written by Save.
const (
	propSize      = "Size"
	propExtent    = "Extent"
	propName      = "Name"
	propColor     = "Color"
	propRoughness = "Roughness"
	propMetallic  = "Metallic"
	propTextures  = "Textures"
	propVoxels    = "Voxels"
)

// voxelStride is the encoded width of one voxel: material byte + float32.
const voxelStride = 5

// Save writes the volume into a fresh archive.
func (d *Dense) Save() (*archive.Archive, error) {
	a := archive.New(ArchiveKind)
	a.PutUint32(propSize, uint32(d.size))
	a.PutFloat32(propExtent, d.extent)
	a.PutString(propName, d.material.Name)
	if err := a.PutJSON(propColor, d.material.Color); err != nil {
		return nil, err
	}
	a.PutFloat32(propRoughness, d.material.Roughness)
	a.PutFloat32(propMetallic, d.material.Metallic)
	if len(d.material.Textures) > 0 {
		if err := a.PutJSON(propTextures, d.material.Textures); err != nil {
			return nil, err
		}
	}
	a.PutBytes(propVoxels, encodeVoxels(d.voxels))
	return a, nil
}

// Load reconstructs a volume from an archive written by Save. The loaded
// volume is marked dirty.
func Load(a *archive.Archive) (*Dense, error) {
	if a.Kind != ArchiveKind {
		return nil, fmt.Errorf("volume: archive kind %q, want %q", a.Kind, ArchiveKind)
	}
	size, err := a.GetUint32(propSize)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}
	if size < 2 {
		return nil, fmt.Errorf("volume: size %d too small", size)
	}
	extent, err := a.GetFloat32(propExtent)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}

	m := DefaultMaterial()
	if a.Has(propName) {
		if m.Name, err = a.GetString(propName); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}
	if a.Has(propColor) {
		if err := a.GetJSON(propColor, &m.Color); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}
	if a.Has(propRoughness) {
		if m.Roughness, err = a.GetFloat32(propRoughness); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}
	if a.Has(propMetallic) {
		if m.Metallic, err = a.GetFloat32(propMetallic); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}
	if a.Has(propTextures) {
		if err := a.GetJSON(propTextures, &m.Textures); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}

	raw, err := a.GetBytes(propVoxels)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}
	n := int(size) * int(size) * int(size)
	if len(raw) != n*voxelStride {
		return nil, fmt.Errorf("volume: voxel payload is %d bytes, want %d for size %d", len(raw), n*voxelStride, size)
	}

	d := New(int(size), extent)
	decodeVoxels(raw, d.voxels)
	d.material = m
	d.dirty = true
	return d, nil
}

// SaveFile writes the volume to an archive file.
func (d *Dense) SaveFile(path string) error {
	a, err := d.Save()
	if err != nil {
		return err
	}
	return a.WriteFile(path)
}

// LoadFile reads a volume from an archive file.
func LoadFile(path string) (*Dense, error) {
	a, err := archive.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(a)
}

func encodeVoxels(vs []voxel.Voxel) []byte {
	out := make([]byte, len(vs)*voxelStride)
	for i, v := range vs {
		o := i * voxelStride
		out[o] = byte(v.Material)
		binary.LittleEndian.PutUint32(out[o+1:], math.Float32bits(v.Density))
	}
	return out
}

func decodeVoxels(raw []byte, dst []voxel.Voxel) {
	for i := range dst {
		o := i * voxelStride
		dst[i] = voxel.Voxel{
			Material: voxel.Material(raw[o]),
			Density:  math.Float32frombits(binary.LittleEndian.Uint32(raw[o+1:])),
		}
	}
}
