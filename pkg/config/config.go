// Package config loads voxfield settings from YAML. Every field has a
// default; a file only needs to name what it changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chazu/voxfield/pkg/engine"
	"github.com/chazu/voxfield/pkg/octree"
	"github.com/chazu/voxfield/pkg/tessellate"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
	"github.com/chazu/voxfield/pkg/voxelize"
)

// Config is the full service configuration.
type Config struct {
	Voxelize   Voxelize   `yaml:"voxelize"`
	Octree     Octree     `yaml:"octree"`
	Sampling   Sampling   `yaml:"sampling"`
	Tessellate Tessellate `yaml:"tessellate"`
	Server     Server     `yaml:"server"`
}

// Voxelize tunes the mesh voxelizer.
type Voxelize struct {
	DefaultResolution int     `yaml:"default_resolution"`
	MaxResolution     int     `yaml:"max_resolution"`
	Inflate           float32 `yaml:"inflate"`
	FarDensity        float32 `yaml:"far_density"`
	ShellOffset       float32 `yaml:"shell_offset"`

	// Textures maps a material name to its texture layers.
	Textures map[string][]volume.TextureSlot `yaml:"textures"`
}

// Octree sets the depth of trees built from sampled volumes.
type Octree struct {
	MaxDepth int `yaml:"max_depth"`
}

// Sampling controls parallel CSG sampling.
type Sampling struct {
	// Workers is the sampling pool size; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// Tessellate sets the marching cubes grid.
type Tessellate struct {
	Cells int `yaml:"cells"`
}

// Server configures the HTTP service.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	EvalTimeout    string   `yaml:"eval_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Voxelize: Voxelize{
			DefaultResolution: voxelize.DefaultResolution,
			MaxResolution:     voxelize.DefaultMaxResolution,
			Inflate:           voxelize.DefaultInflate,
			FarDensity:        voxel.DefaultDensity,
		},
		Octree:     Octree{MaxDepth: 4},
		Tessellate: Tessellate{Cells: tessellate.DefaultCells},
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			EvalTimeout:    engine.EvalTimeout.String(),
		},
	}
}

// Load reads the YAML file at path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML on top of Default. Zero values left in the document
// fall back to their defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Voxelize.DefaultResolution == 0 {
		c.Voxelize.DefaultResolution = d.Voxelize.DefaultResolution
	}
	if c.Voxelize.MaxResolution == 0 {
		c.Voxelize.MaxResolution = d.Voxelize.MaxResolution
	}
	if c.Voxelize.Inflate == 0 {
		c.Voxelize.Inflate = d.Voxelize.Inflate
	}
	if c.Voxelize.FarDensity == 0 {
		c.Voxelize.FarDensity = d.Voxelize.FarDensity
	}
	if c.Octree.MaxDepth == 0 {
		c.Octree.MaxDepth = d.Octree.MaxDepth
	}
	if c.Tessellate.Cells == 0 {
		c.Tessellate.Cells = d.Tessellate.Cells
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = d.Server.AllowedOrigins
	}
	if c.Server.EvalTimeout == "" {
		c.Server.EvalTimeout = d.Server.EvalTimeout
	}
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	switch {
	case c.Voxelize.DefaultResolution < 2:
		return fmt.Errorf("config: voxelize.default_resolution must be >= 2, got %d", c.Voxelize.DefaultResolution)
	case c.Voxelize.MaxResolution < c.Voxelize.DefaultResolution:
		return fmt.Errorf("config: voxelize.max_resolution must be >= default_resolution (%d), got %d",
			c.Voxelize.DefaultResolution, c.Voxelize.MaxResolution)
	case c.Voxelize.Inflate < 1:
		return fmt.Errorf("config: voxelize.inflate must be >= 1, got %g", c.Voxelize.Inflate)
	case c.Voxelize.FarDensity <= 0:
		return fmt.Errorf("config: voxelize.far_density must be positive, got %g", c.Voxelize.FarDensity)
	case c.Octree.MaxDepth < 0 || c.Octree.MaxDepth > octree.MaxSupportedDepth:
		return fmt.Errorf("config: octree.max_depth must be in [0, %d], got %d", octree.MaxSupportedDepth, c.Octree.MaxDepth)
	case c.Sampling.Workers < 0:
		return fmt.Errorf("config: sampling.workers must be >= 0, got %d", c.Sampling.Workers)
	case c.Tessellate.Cells < 1:
		return fmt.Errorf("config: tessellate.cells must be positive, got %d", c.Tessellate.Cells)
	}
	if _, err := c.Server.Timeout(); err != nil {
		return err
	}
	return nil
}

// Timeout parses EvalTimeout.
func (s Server) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(s.EvalTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: server.eval_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: server.eval_timeout must be positive, got %s", d)
	}
	return d, nil
}

// VoxelizeOptions converts the voxelize section into voxelizer options.
func (c Config) VoxelizeOptions(log *slog.Logger) voxelize.Options {
	return voxelize.Options{
		DefaultResolution: c.Voxelize.DefaultResolution,
		MaxResolution:     c.Voxelize.MaxResolution,
		Inflate:           c.Voxelize.Inflate,
		FarDensity:        c.Voxelize.FarDensity,
		ShellOffset:       c.Voxelize.ShellOffset,
		Textures:          c.Voxelize.Textures,
		Logger:            log,
	}
}
