package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/chazu/voxfield/pkg/config"
	"github.com/chazu/voxfield/pkg/csg"
	"github.com/chazu/voxfield/pkg/engine"
	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/octree"
	"github.com/chazu/voxfield/pkg/tessellate"
	"github.com/chazu/voxfield/pkg/volume"
	"github.com/chazu/voxfield/pkg/voxel"
	"github.com/chazu/voxfield/pkg/voxelize"
)

const (
	maxBodyBytes = 32 << 20
	maxSize      = 257
	// defaultExtent is used when a scene has no finite bounds.
	defaultExtent = 1
)

// server holds the per-process settings; each request builds its own
// engine, volume and octree.
type server struct {
	cfg     config.Config
	log     *slog.Logger
	timeout time.Duration
}

func newServer(cfg config.Config, log *slog.Logger) (*server, error) {
	timeout, err := cfg.Server.Timeout()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &server{cfg: cfg, log: log, timeout: timeout}, nil
}

// handler returns the routed, CORS-wrapped HTTP handler.
func (s *server) handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/sample", s.sampleHandler).Methods("POST")
	api.HandleFunc("/voxelize", s.voxelizeHandler).Methods("POST")
	api.HandleFunc("/tessellate", s.tessellateHandler).Methods("POST")
	api.HandleFunc("/octree", s.octreeHandler).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// ---------------------------------------------------------------------------
// Request and response bodies
// ---------------------------------------------------------------------------

type sampleRequest struct {
	Source   string         `json:"source"`
	Size     int            `json:"size"`
	Extent   float32        `json:"extent"`
	Material voxel.Material `json:"material"`
}

type voxelizeRequest struct {
	Mesh *kernel.Mesh `json:"mesh"`
}

type tessellateRequest struct {
	Source     string         `json:"source"`
	Cells      int            `json:"cells"`
	Name       string         `json:"name"`
	MaterialID voxel.Material `json:"material_id"`
}

type octreeRequest struct {
	Source   string         `json:"source"`
	Depth    int            `json:"depth"`
	Extent   float32        `json:"extent"`
	Material voxel.Material `json:"material"`
}

type volumeResponse struct {
	Size      int             `json:"size"`
	Extent    float32         `json:"extent"`
	CellSize  float32         `json:"cell_size"`
	Densities []float32       `json:"densities"`
	Materials []int           `json:"materials"`
	Material  volume.Material `json:"material"`
}

type octreeResponse struct {
	*octree.GPUOctree
	Merged int `json:"merged"`
}

type errorResponse struct {
	Error      string             `json:"error"`
	EvalErrors []engine.EvalError `json:"eval_errors,omitempty"`
}

// badRequest marks an error as the caller's fault.
type badRequest struct {
	err      error
	evalErrs []engine.EvalError
}

func (b *badRequest) Error() string { return b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return &badRequest{err: fmt.Errorf(format, args...)}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) sampleHandler(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Size == 0 {
		req.Size = mathx.Pow2(s.cfg.Octree.MaxDepth) + 1
	}
	if req.Size < 2 || req.Size > maxSize {
		s.fail(w, invalid("size must be in [2, %d], got %d", maxSize, req.Size))
		return
	}

	scene, err := s.evaluate(req.Source)
	if err != nil {
		s.fail(w, err)
		return
	}
	extent := s.extentFor(scene, req.Extent)
	vol := csg.SampleVolume(scene.Generator, req.Size, extent, req.Material, s.cfg.Sampling.Workers)

	if r.URL.Query().Get("format") == "archive" {
		s.writeArchive(w, vol)
		return
	}
	writeJSON(w, http.StatusOK, toVolumeResponse(vol))
}

func (s *server) voxelizeHandler(w http.ResponseWriter, r *http.Request) {
	var req voxelizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Mesh == nil || req.Mesh.IsEmpty() {
		s.fail(w, invalid("mesh is empty"))
		return
	}
	if errs, _ := req.Mesh.Validate(); len(errs) > 0 {
		s.fail(w, invalid("mesh: %s", errs[0].Message))
		return
	}
	limit := min(maxSize, s.cfg.Voxelize.MaxResolution)
	if res, ok := voxelize.ParseResolution(req.Mesh.Name); ok && res > limit {
		s.fail(w, invalid("mesh %q: resolution %d exceeds %d", req.Mesh.Name, res, limit))
		return
	}

	vol := voxelize.Voxelize(req.Mesh, s.cfg.VoxelizeOptions(s.log))
	if r.URL.Query().Get("format") == "archive" {
		s.writeArchive(w, vol)
		return
	}
	writeJSON(w, http.StatusOK, toVolumeResponse(vol))
}

func (s *server) tessellateHandler(w http.ResponseWriter, r *http.Request) {
	var req tessellateRequest
	if !s.decode(w, r, &req) {
		return
	}
	scene, err := s.evaluate(req.Source)
	if err != nil {
		s.fail(w, err)
		return
	}
	cells := req.Cells
	if cells <= 0 {
		cells = s.cfg.Tessellate.Cells
	}
	mesh, err := tessellate.Tessellate(scene.Generator, tessellate.Options{
		Cells:      cells,
		Name:       req.Name,
		MaterialID: req.MaterialID,
	})
	if errors.Is(err, tessellate.ErrEmptyBounds) {
		err = &badRequest{err: err}
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mesh)
}

func (s *server) octreeHandler(w http.ResponseWriter, r *http.Request) {
	var req octreeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Depth == 0 {
		req.Depth = s.cfg.Octree.MaxDepth
	}
	if req.Depth < 0 || req.Depth > octree.MaxSupportedDepth || mathx.Pow2(req.Depth)+1 > maxSize {
		s.fail(w, invalid("depth %d out of range", req.Depth))
		return
	}

	scene, err := s.evaluate(req.Source)
	if err != nil {
		s.fail(w, err)
		return
	}
	extent := s.extentFor(scene, req.Extent)
	vol := csg.SampleVolume(scene.Generator, mathx.Pow2(req.Depth)+1, extent, req.Material, s.cfg.Sampling.Workers)

	tree, err := octree.FromVolume(vol, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	merged := tree.CollapseTree()
	writeJSON(w, http.StatusOK, octreeResponse{GPUOctree: tree.GetGPUOctreeStructure(), Merged: merged})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, invalid("invalid JSON: %v", err))
		return false
	}
	return true
}

func (s *server) evaluate(source string) (*engine.Scene, error) {
	eng := engine.NewEngine()
	eng.Timeout = s.timeout
	eng.Logger = s.log

	scene, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		return nil, &badRequest{err: fmt.Errorf("evaluation failed: %s", evalErrs[0].Error()), evalErrs: evalErrs}
	}
	if scene.Empty() {
		return nil, invalid("source declares no (scene ...)")
	}
	return scene, nil
}

// extentFor returns requested, or the scene's reach grown like a
// voxelized mesh.
func (s *server) extentFor(scene *engine.Scene, requested float32) float32 {
	if requested > 0 {
		return requested
	}
	b, ok := scene.Generator.Bounds()
	if !ok {
		return defaultExtent
	}
	reach := math32.Max(mathx.MaxComponent(mathx.AbsVec(b.Min)), mathx.MaxComponent(mathx.AbsVec(b.Max)))
	if reach <= 0 || math32.IsInf(reach, 0) {
		return defaultExtent
	}
	return reach * s.cfg.Voxelize.Inflate
}

func (s *server) writeArchive(w http.ResponseWriter, vol *volume.Dense) {
	a, err := vol.Save()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="volume.vxa"`)
	if err := a.Write(w); err != nil {
		s.log.Error("fieldd: write archive", "err", err)
	}
}

func (s *server) fail(w http.ResponseWriter, err error) {
	var br *badRequest
	if errors.As(err, &br) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: br.Error(), EvalErrors: br.evalErrs})
		return
	}
	s.log.Error("fieldd: request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func toVolumeResponse(vol *volume.Dense) volumeResponse {
	voxels := vol.Voxels()
	resp := volumeResponse{
		Size:      vol.Size(),
		Extent:    vol.Extent(),
		CellSize:  vol.CellSize(),
		Densities: make([]float32, len(voxels)),
		Materials: make([]int, len(voxels)),
		Material:  vol.Material(),
	}
	for i, v := range voxels {
		resp.Densities[i] = v.Density
		resp.Materials[i] = int(v.Material)
	}
	return resp
}
