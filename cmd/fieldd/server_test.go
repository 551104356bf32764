package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/voxfield/pkg/archive"
	"github.com/chazu/voxfield/pkg/config"
	"github.com/chazu/voxfield/pkg/kernel"
	"github.com/chazu/voxfield/pkg/mathx"
	"github.com/chazu/voxfield/pkg/octree"
	"github.com/chazu/voxfield/pkg/volume"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	s, err := newServer(config.Default(), nil)
	require.NoError(t, err)
	return s.handler()
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSample(t *testing.T) {
	h := newTestServer(t)
	rec := post(t, h, "/api/sample", sampleRequest{
		Source:   `(scene (sphere :radius 1))`,
		Size:     5,
		Extent:   2,
		Material: 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp volumeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 5, resp.Size)
	assert.Equal(t, float32(2), resp.Extent)
	assert.Equal(t, float32(1), resp.CellSize)
	require.Len(t, resp.Densities, 125)
	require.Len(t, resp.Materials, 125)

	centre := mathx.To1D(2, 2, 2, 5)
	assert.InDelta(t, -1, resp.Densities[centre], 1e-4)
	assert.Equal(t, 3, resp.Materials[centre])
	assert.Equal(t, 0, resp.Materials[0])
}

func TestSampleDefaultsFromScene(t *testing.T) {
	rec := post(t, newTestServer(t), "/api/sample", sampleRequest{Source: `(scene (sphere :radius 2))`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp volumeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 17, resp.Size, "2^max_depth + 1")
	assert.InDelta(t, 2.5, resp.Extent, 1e-5)
}

func TestSampleArchive(t *testing.T) {
	rec := post(t, newTestServer(t), "/api/sample?format=archive", sampleRequest{
		Source: `(scene (box :size 1))`,
		Size:   9,
		Extent: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zstd", rec.Header().Get("Content-Type"))

	a, err := archive.Read(rec.Body)
	require.NoError(t, err)
	vol, err := volume.Load(a)
	require.NoError(t, err)
	assert.Equal(t, 9, vol.Size())
	assert.True(t, vol.Voxel(4, 4, 4).Inside())
	assert.False(t, vol.Voxel(0, 0, 0).Inside())
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
	}{
		{"invalid json", "/api/sample", `{"source": `},
		{"eval error", "/api/sample", sampleRequest{Source: `(sphere :radius)`, Size: 5}},
		{"no scene", "/api/sample", sampleRequest{Source: `(sphere :radius 1)`, Size: 5}},
		{"size too small", "/api/sample", sampleRequest{Source: `(scene (sphere :radius 1))`, Size: 1}},
		{"size too large", "/api/sample", sampleRequest{Source: `(scene (sphere :radius 1))`, Size: 1000}},
		{"empty mesh", "/api/voxelize", voxelizeRequest{Mesh: &kernel.Mesh{Name: "x_5"}}},
		{"missing mesh", "/api/voxelize", `{}`},
		{"bad index", "/api/voxelize", voxelizeRequest{Mesh: &kernel.Mesh{
			Name:     "tri_5",
			Vertices: []kernel.Vertex{{}, {Position: mgl32.Vec3{1, 0, 0}}, {Position: mgl32.Vec3{0, 1, 0}}},
			Indices:  []uint32{0, 1, 7},
		}}},
		{"resolution too large", "/api/voxelize", voxelizeRequest{Mesh: &kernel.Mesh{
			Name:     "tri_5000",
			Vertices: []kernel.Vertex{{}, {Position: mgl32.Vec3{1, 0, 0}}, {Position: mgl32.Vec3{0, 1, 0}}},
			Indices:  []uint32{0, 1, 2},
		}}},
		{"resolution above sample cap", "/api/voxelize", voxelizeRequest{Mesh: &kernel.Mesh{
			Name:     "tri_300",
			Vertices: []kernel.Vertex{{}, {Position: mgl32.Vec3{1, 0, 0}}, {Position: mgl32.Vec3{0, 1, 0}}},
			Indices:  []uint32{0, 1, 2},
		}}},
		{"depth out of range", "/api/octree", octreeRequest{Source: `(scene (sphere :radius 1))`, Depth: 11}},
		{"tessellate no scene", "/api/tessellate", tessellateRequest{Source: `(+ 1 2)`}},
	}
	h := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestEvalErrorsReported(t *testing.T) {
	rec := post(t, newTestServer(t), "/api/sample", sampleRequest{Source: "(scene\n  (sphere :radius 1)", Size: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.EvalErrors)
}

func TestVoxelize(t *testing.T) {
	mesh := &kernel.Mesh{Name: "cube_5", MaterialID: 2}
	for i := 0; i < 8; i++ {
		p := mgl32.Vec3{-1, -1, -1}
		for k := 0; k < 3; k++ {
			if i>>k&1 == 1 {
				p[k] = 1
			}
		}
		mesh.Vertices = append(mesh.Vertices, kernel.Vertex{Position: p, Normal: p.Normalize()})
	}
	mesh.Indices = []uint32{
		0, 6, 2, 0, 4, 6, 1, 7, 5, 1, 3, 7,
		0, 5, 4, 0, 1, 5, 2, 7, 3, 2, 6, 7,
		0, 3, 1, 0, 2, 3, 4, 7, 6, 4, 5, 7,
	}

	rec := post(t, newTestServer(t), "/api/voxelize", voxelizeRequest{Mesh: mesh})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp volumeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 5, resp.Size)
	assert.InDelta(t, 1.25, resp.Extent, 1e-5)

	centre := mathx.To1D(2, 2, 2, 5)
	assert.LessOrEqual(t, resp.Densities[centre], float32(0))
	assert.Equal(t, 2, resp.Materials[centre])
	assert.Greater(t, resp.Densities[0], float32(0))
}

func TestOctree(t *testing.T) {
	rec := post(t, newTestServer(t), "/api/octree", octreeRequest{
		Source: `(scene (sphere :radius 1))`,
		Depth:  3,
		Extent: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		MaxDepth  int              `json:"max_depth"`
		AxisCount int              `json:"axis_count"`
		Nodes     []octree.GPUNode `json:"nodes"`
		Merged    int              `json:"merged"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.MaxDepth)
	require.NotEmpty(t, resp.Nodes)
	assert.Greater(t, resp.Merged, 0, "uniform outer regions collapse")
	assert.GreaterOrEqual(t, resp.AxisCount*resp.AxisCount*resp.AxisCount, len(resp.Nodes))

	g := octree.GPUOctree{AxisCount: resp.AxisCount}
	for i, n := range resp.Nodes {
		if n.Leaf {
			continue
		}
		for _, c := range n.Children {
			j := g.ChildIndex(c)
			assert.Greater(t, j, i, "pre-order puts children after their parent")
			assert.Less(t, j, len(resp.Nodes))
		}
	}
}

func TestTessellate(t *testing.T) {
	rec := post(t, newTestServer(t), "/api/tessellate", tessellateRequest{
		Source: `(scene (sphere :radius 1))`,
		Cells:  16,
		Name:   "ball_9",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var mesh kernel.Mesh
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mesh))
	assert.Equal(t, "ball_9", mesh.Name)
	assert.NotEmpty(t, mesh.Vertices)
	assert.Equal(t, len(mesh.Vertices), len(mesh.Indices))
}

func TestMethodAndCORS(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sample", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/sample", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
