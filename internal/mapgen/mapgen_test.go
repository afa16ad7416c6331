package mapgen

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Faultbox/bspmesh/internal/material"
	"github.com/Faultbox/bspmesh/pkg/formats"
)

// quadVertices returns a unit quad in the XY plane facing +Z.
func quadVertices(z float32) []formats.BSPVertex {
	pos := [4][3]float32{{0, 0, z}, {1, 0, z}, {1, 1, z}, {0, 1, z}}
	verts := make([]formats.BSPVertex, 4)
	for i, p := range pos {
		verts[i] = formats.BSPVertex{
			Position:      p,
			TexCoord:      [2]float32{p[0], p[1]},
			LightmapCoord: [2]float32{p[0] * 0.5, p[1] * 0.5},
			Normal:        [3]float32{0, 0, 1},
		}
	}
	return verts
}

// gridVertices returns a flat w x h control grid with 0.5 unit spacing, row-major.
func gridVertices(w, h int) []formats.BSPVertex {
	verts := make([]formats.BSPVertex, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			verts = append(verts, formats.BSPVertex{
				Position: [3]float32{float32(x) * 0.5, float32(y) * 0.5, 0},
				TexCoord: [2]float32{float32(x), float32(y)},
			})
		}
	}
	return verts
}

func polygonMap() *formats.BSP {
	return &formats.BSP{
		Textures:  []formats.BSPTexture{{Name: "textures/base_floor/tile"}},
		Vertices:  quadVertices(2),
		MeshVerts: []int32{0, 1, 2, 0, 2, 3},
		Faces: []formats.BSPFace{{
			Kind: formats.FacePolygon, Texture: 0, LightmapIndex: -1,
			Vertex: 0, NumVertices: 4, MeshVert: 0, NumMeshVerts: 6,
		}},
	}
}

func patchMap(w, h int) *formats.BSP {
	return &formats.BSP{
		Textures: []formats.BSPTexture{{Name: "textures/base_wall/curve"}},
		Vertices: gridVertices(w, h),
		Faces: []formats.BSPFace{{
			Kind: formats.FacePatch, Texture: 0, LightmapIndex: -1,
			Vertex: 0, NumVertices: int32(w * h), Size: [2]int32{int32(w), int32(h)},
		}},
	}
}

// mixedMap holds two polygon faces sharing a group, a billboard, a regular
// 3x3 patch and a degenerate patch.
func mixedMap() *formats.BSP {
	verts := append(quadVertices(0), gridVertices(3, 3)...)
	return &formats.BSP{
		Textures: []formats.BSPTexture{
			{Name: "textures/base_floor/tile"},
			{Name: "textures/base_wall/curve"},
		},
		Vertices:  verts,
		MeshVerts: []int32{0, 1, 2, 0, 2, 3},
		Faces: []formats.BSPFace{
			{Kind: formats.FacePolygon, Texture: 0, LightmapIndex: 0, Vertex: 0, NumVertices: 4, MeshVert: 0, NumMeshVerts: 6},
			{Kind: formats.FaceBillboard, Texture: 0, LightmapIndex: -1, Vertex: 0, NumVertices: 1},
			{Kind: formats.FacePatch, Texture: 1, LightmapIndex: -1, Vertex: 4, NumVertices: 9, Size: [2]int32{3, 3}},
			{Kind: formats.FacePolygon, Texture: 0, LightmapIndex: 0, Vertex: 0, NumVertices: 4, MeshVert: 0, NumMeshVerts: 6},
			{Kind: formats.FacePatch, Texture: 1, LightmapIndex: -1, Vertex: 4, NumVertices: 3, Size: [2]int32{1, 3}},
		},
	}
}

var floorMaterial = &material.Material{Name: "textures/base_floor/tile", Template: material.TemplatePlain, LightmapIndex: -1}
var fallbackMaterial = &material.Material{Name: "fallback", Template: material.TemplateFallback, LightmapIndex: -1}

type resolverFunc func(name string, lightmapIndex int) (*material.Material, bool)

func (f resolverFunc) ResolveMaterial(name string, lightmapIndex int) (*material.Material, bool) {
	return f(name, lightmapIndex)
}

func floorOnlyResolver() resolverFunc {
	return func(name string, lightmapIndex int) (*material.Material, bool) {
		if name == floorMaterial.Name {
			return floorMaterial, true
		}
		return fallbackMaterial, false
	}
}

func TestClassifyFaces(t *testing.T) {
	groups, diags := ClassifyFaces(mixedMap())

	want := []FaceGroup{
		{Key: GroupKey{Kind: formats.FacePolygon, Texture: 0, LightmapIndex: 0}, Faces: []int{0, 3}},
		{Key: GroupKey{Kind: formats.FacePatch, Texture: 1, LightmapIndex: -1}, Faces: []int{2, 4}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("groups = %+v, want %+v", groups, want)
	}

	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(diags), diags)
	}
	if diags[0].Kind != DiagUnsupportedFaceKind || diags[0].Face != 1 {
		t.Errorf("unexpected diagnostic %v", diags[0])
	}
}

func TestClassifyFaces_Deterministic(t *testing.T) {
	bsp := mixedMap()
	first, _ := ClassifyFaces(bsp)
	for i := 0; i < 10; i++ {
		again, _ := ClassifyFaces(bsp)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("classification changed between runs")
		}
	}
}

func TestClassifyFaces_NormalizesNoLightmap(t *testing.T) {
	bsp := polygonMap()
	second := bsp.Faces[0]
	second.LightmapIndex = -7
	bsp.Faces = append(bsp.Faces, second)

	groups, _ := ClassifyFaces(bsp)
	if len(groups) != 1 {
		t.Fatalf("expected faces without lightmap to share a group, got %d groups", len(groups))
	}
	if groups[0].Key.LightmapIndex != -1 {
		t.Errorf("expected lightmap -1, got %d", groups[0].Key.LightmapIndex)
	}
}

func TestBuildPolygonMesh(t *testing.T) {
	bsp := polygonMap()

	m, err := BuildPolygonMesh(bsp, 0)
	if err != nil {
		t.Fatalf("BuildPolygonMesh failed: %v", err)
	}

	if m.VertexCount() != 4 || m.TriangleCount() != 2 {
		t.Fatalf("expected 4 vertices and 2 triangles, got %d/%d", m.VertexCount(), m.TriangleCount())
	}
	if m.Triangle(0) != [3]uint32{0, 1, 2} || m.Triangle(1) != [3]uint32{0, 2, 3} {
		t.Errorf("unexpected triangles %v %v", m.Triangle(0), m.Triangle(1))
	}

	for i, v := range m.Vertices {
		src := bsp.Vertices[i]
		if v.Position != src.Position || v.Normal != src.Normal ||
			v.TexCoord != src.TexCoord || v.LightmapUV != src.LightmapCoord {
			t.Errorf("vertex %d not copied in order: %+v vs %+v", i, v, src)
		}
	}

	if m.Bounds.Min != [3]float32{0, 0, 2} || m.Bounds.Max != [3]float32{1, 1, 2} {
		t.Errorf("unexpected bounds %+v", m.Bounds)
	}
}

func TestBuildPolygonMesh_Offsets(t *testing.T) {
	// The face's vertex range starts at 4; meshverts stay local.
	bsp := polygonMap()
	bsp.Vertices = append(quadVertices(9), quadVertices(2)...)
	bsp.Faces[0].Vertex = 4

	m, err := BuildPolygonMesh(bsp, 0)
	if err != nil {
		t.Fatalf("BuildPolygonMesh failed: %v", err)
	}
	if m.Vertices[0].Position[2] != 2 {
		t.Errorf("expected vertices from offset 4, got z=%v", m.Vertices[0].Position[2])
	}
	if !reflect.DeepEqual(m.Indices, []uint32{0, 1, 2, 0, 2, 3}) {
		t.Errorf("indices should be taken as-is, got %v", m.Indices)
	}
}

func TestBuildPolygonMesh_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*formats.BSP)
		face   int
	}{
		{name: "meshvert past vertex count", mutate: func(b *formats.BSP) { b.MeshVerts[5] = 4 }},
		{name: "negative meshvert", mutate: func(b *formats.BSP) { b.MeshVerts[0] = -1 }},
		{name: "vertex range", mutate: func(b *formats.BSP) { b.Faces[0].NumVertices = 5 }},
		{name: "meshvert range", mutate: func(b *formats.BSP) { b.Faces[0].NumMeshVerts = 7 }},
		{name: "face index", mutate: func(b *formats.BSP) {}, face: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bsp := polygonMap()
			tt.mutate(bsp)
			if _, err := BuildPolygonMesh(bsp, tt.face); !errors.Is(err, ErrMalformedMap) {
				t.Errorf("expected ErrMalformedMap, got %v", err)
			}
		})
	}
}

func TestPatchCount(t *testing.T) {
	tests := []struct {
		size   [2]int32
		nx, ny int
	}{
		{size: [2]int32{3, 3}, nx: 1, ny: 1},
		{size: [2]int32{5, 5}, nx: 2, ny: 2},
		{size: [2]int32{5, 3}, nx: 2, ny: 1},
		{size: [2]int32{3, 9}, nx: 1, ny: 4},
		{size: [2]int32{1, 3}, nx: 0, ny: 1},
		{size: [2]int32{0, 0}, nx: 0, ny: 0},
		{size: [2]int32{-5, 5}, nx: 0, ny: 2},
	}
	for _, tt := range tests {
		f := &formats.BSPFace{Kind: formats.FacePatch, Size: tt.size}
		nx, ny := PatchCount(f)
		if nx != tt.nx || ny != tt.ny {
			t.Errorf("PatchCount(%v) = %d,%d, want %d,%d", tt.size, nx, ny, tt.nx, tt.ny)
		}
	}
}

func TestPatchControlGrid(t *testing.T) {
	bsp := patchMap(5, 5)
	f := &bsp.Faces[0]

	tests := []struct {
		patch  int
		origin [2]float32 // position of ctrl[0]
		center [2]float32 // position of ctrl[4]
	}{
		{patch: 0, origin: [2]float32{0, 0}, center: [2]float32{0.5, 0.5}},
		{patch: 1, origin: [2]float32{1, 0}, center: [2]float32{1.5, 0.5}},
		{patch: 2, origin: [2]float32{0, 1}, center: [2]float32{0.5, 1.5}},
		{patch: 3, origin: [2]float32{1, 1}, center: [2]float32{1.5, 1.5}},
	}
	for _, tt := range tests {
		ctrl, err := PatchControlGrid(bsp, f, tt.patch)
		if err != nil {
			t.Fatalf("PatchControlGrid(%d) failed: %v", tt.patch, err)
		}
		if got := [2]float32{ctrl[0].Position.X, ctrl[0].Position.Y}; got != tt.origin {
			t.Errorf("patch %d origin = %v, want %v", tt.patch, got, tt.origin)
		}
		if got := [2]float32{ctrl[4].Position.X, ctrl[4].Position.Y}; got != tt.center {
			t.Errorf("patch %d center = %v, want %v", tt.patch, got, tt.center)
		}
	}

	// Neighbouring patches share their edge column.
	left, _ := PatchControlGrid(bsp, f, 0)
	right, _ := PatchControlGrid(bsp, f, 1)
	for row := 0; row < 3; row++ {
		if left[row*3+2] != right[row*3] {
			t.Errorf("row %d: shared edge differs", row)
		}
	}

	if _, err := PatchControlGrid(bsp, f, 4); err == nil {
		t.Error("expected error for patch index past the grid")
	}
}

func TestBuildPatchMesh_FlatSquare(t *testing.T) {
	bsp := patchMap(3, 3)

	m, err := BuildPatchMesh(bsp, 0, 1)
	if err != nil {
		t.Fatalf("BuildPatchMesh failed: %v", err)
	}
	if m.VertexCount() != 4 || m.TriangleCount() != 2 {
		t.Fatalf("expected 4 vertices and 2 triangles, got %d/%d", m.VertexCount(), m.TriangleCount())
	}

	corners := map[[2]float32]bool{}
	for _, v := range m.Vertices {
		corners[[2]float32{v.Position[0], v.Position[1]}] = true
	}
	for _, c := range [][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		if !corners[c] {
			t.Errorf("missing corner %v", c)
		}
	}

	// Two triangles covering the unit square have total area 1.
	var area float32
	for i := 0; i < m.TriangleCount(); i++ {
		tri := m.Triangle(i)
		a, b, c := m.Vertices[tri[0]].Position, m.Vertices[tri[1]].Position, m.Vertices[tri[2]].Position
		cross := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
		if cross < 0 {
			cross = -cross
		}
		area += cross / 2
	}
	if area != 1 {
		t.Errorf("triangles cover area %v, want 1", area)
	}
}

func TestBuildPatchMesh_Counts(t *testing.T) {
	tests := []struct {
		w, h, level int
		patches     int
	}{
		{w: 3, h: 3, level: 1, patches: 1},
		{w: 3, h: 3, level: 4, patches: 1},
		{w: 5, h: 5, level: 2, patches: 4},
		{w: 5, h: 3, level: 3, patches: 2},
	}
	for _, tt := range tests {
		m, err := BuildPatchMesh(patchMap(tt.w, tt.h), 0, tt.level)
		if err != nil {
			t.Fatalf("%dx%d: BuildPatchMesh failed: %v", tt.w, tt.h, err)
		}
		per := (tt.level + 1) * (tt.level + 1)
		if m.VertexCount() != tt.patches*per {
			t.Errorf("%dx%d L=%d: %d vertices, want %d", tt.w, tt.h, tt.level, m.VertexCount(), tt.patches*per)
		}
		if m.TriangleCount() != tt.patches*2*tt.level*tt.level {
			t.Errorf("%dx%d L=%d: %d triangles, want %d", tt.w, tt.h, tt.level, m.TriangleCount(), tt.patches*2*tt.level*tt.level)
		}
		for _, idx := range m.Indices {
			if int(idx) >= m.VertexCount() {
				t.Fatalf("index %d out of range %d", idx, m.VertexCount())
			}
		}
	}
}

func TestBuildPatchMesh_Degenerate(t *testing.T) {
	bsp := patchMap(3, 3)
	bsp.Faces[0].Size = [2]int32{1, 3}

	m, err := BuildPatchMesh(bsp, 0, 3)
	if err != nil {
		t.Fatalf("BuildPatchMesh failed: %v", err)
	}
	if !m.Empty() {
		t.Errorf("expected empty mesh, got %d vertices", m.VertexCount())
	}
}

func TestBuildPatchMesh_Errors(t *testing.T) {
	if _, err := BuildPatchMesh(patchMap(3, 3), 0, 0); !errors.Is(err, ErrInvalidTessellation) {
		t.Errorf("expected ErrInvalidTessellation, got %v", err)
	}

	small := patchMap(3, 3)
	small.Faces[0].Size = [2]int32{5, 3}
	if _, err := BuildPatchMesh(small, 0, 2); !errors.Is(err, ErrMalformedMap) {
		t.Errorf("expected ErrMalformedMap for undersized grid, got %v", err)
	}
}

func TestNewBuilder_InvalidTessellation(t *testing.T) {
	if _, err := NewBuilder(polygonMap(), nil, Options{Tessellation: 0}); !errors.Is(err, ErrInvalidTessellation) {
		t.Errorf("expected ErrInvalidTessellation, got %v", err)
	}
}

func TestBuilderBuild(t *testing.T) {
	b, err := NewBuilder(mixedMap(), floorOnlyResolver(), Options{Tessellation: 2, Workers: 4})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(res.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(res.Groups))
	}

	floor := res.Groups[0]
	if floor.Texture != "textures/base_floor/tile" || floor.Material != floorMaterial {
		t.Errorf("unexpected floor group %+v", floor)
	}
	if floor.Mesh.VertexCount() != 8 || len(floor.Mesh.Indices) != 12 {
		t.Errorf("floor group: %d vertices %d indices, want 8/12", floor.Mesh.VertexCount(), len(floor.Mesh.Indices))
	}
	if !reflect.DeepEqual(floor.Mesh.Indices[6:], []uint32{4, 5, 6, 4, 6, 7}) {
		t.Errorf("second face indices not offset: %v", floor.Mesh.Indices[6:])
	}

	curve := res.Groups[1]
	if curve.Material != fallbackMaterial {
		t.Errorf("expected fallback material for unresolved texture, got %+v", curve.Material)
	}
	if curve.Mesh.VertexCount() != 9 || curve.Mesh.TriangleCount() != 8 {
		t.Errorf("curve group: %d vertices %d triangles, want 9/8", curve.Mesh.VertexCount(), curve.Mesh.TriangleCount())
	}

	for _, g := range res.Groups {
		for _, idx := range g.Mesh.Indices {
			if int(idx) >= g.Mesh.VertexCount() {
				t.Fatalf("group %v: index %d >= vertex count %d", g.Key, idx, g.Mesh.VertexCount())
			}
		}
	}

	if res.Faces != 4 {
		t.Errorf("expected 4 built faces, got %d", res.Faces)
	}

	wantDiags := []Diagnostic{
		{Kind: DiagUnsupportedFaceKind, Face: 1, Group: -1},
		{Kind: DiagDegeneratePatch, Face: 4, Group: 1},
		{Kind: DiagUnresolvedTexture, Face: -1, Group: 1},
	}
	if len(res.Diagnostics) != len(wantDiags) {
		t.Fatalf("diagnostics = %v, want %d entries", res.Diagnostics, len(wantDiags))
	}
	for i, want := range wantDiags {
		got := res.Diagnostics[i]
		if got.Kind != want.Kind || got.Face != want.Face || got.Group != want.Group {
			t.Errorf("diagnostic %d = %v, want %v", i, got, want)
		}
	}
}

func TestBuilderBuild_UnsupportedOnly(t *testing.T) {
	bsp := polygonMap()
	bsp.Faces[0].Kind = formats.FaceBillboard

	b, err := NewBuilder(bsp, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(res.Groups) != 0 || res.Faces != 0 {
		t.Errorf("expected no geometry, got %d groups", len(res.Groups))
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != DiagUnsupportedFaceKind {
		t.Errorf("expected one UnsupportedFaceKind diagnostic, got %v", res.Diagnostics)
	}
}

func TestBuilderBuild_Deterministic(t *testing.T) {
	bsp := mixedMap()
	var results []*Result
	for _, workers := range []int{1, 2, 8} {
		b, err := NewBuilder(bsp, floorOnlyResolver(), Options{Tessellation: 3, Workers: workers})
		if err != nil {
			t.Fatalf("NewBuilder failed: %v", err)
		}
		res, err := b.Build(context.Background())
		if err != nil {
			t.Fatalf("Build with %d workers failed: %v", workers, err)
		}
		results = append(results, res)
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0], results[i]) {
			t.Errorf("result %d differs from sequential build", i)
		}
	}
}

func TestBuilderBuild_Malformed(t *testing.T) {
	bsp := mixedMap()
	bsp.MeshVerts[2] = 9

	b, err := NewBuilder(bsp, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	res, err := b.Build(context.Background())
	if !errors.Is(err, ErrMalformedMap) || !errors.Is(err, formats.ErrMalformedBSP) {
		t.Errorf("expected ErrMalformedMap, got %v", err)
	}
	if res != nil {
		t.Error("expected no partial result")
	}
}

func TestBuilderBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := NewBuilder(mixedMap(), nil, DefaultOptions())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if _, err := b.Build(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildGroup(t *testing.T) {
	bsp := mixedMap()
	b, err := NewBuilder(bsp, floorOnlyResolver(), Options{Tessellation: 2})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	groups, _ := ClassifyFaces(bsp)
	gm, diags, err := b.BuildGroup(groups[0])
	if err != nil {
		t.Fatalf("BuildGroup failed: %v", err)
	}
	if gm.Mesh.VertexCount() != 8 || gm.Material != floorMaterial {
		t.Errorf("unexpected group mesh %+v", gm)
	}
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}

	_, diags, err = b.BuildGroup(groups[1])
	if err != nil {
		t.Fatalf("BuildGroup failed: %v", err)
	}
	if len(diags) != 2 || diags[0].Kind != DiagDegeneratePatch || diags[1].Kind != DiagUnresolvedTexture {
		t.Errorf("unexpected diagnostics %v", diags)
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Kind: DiagDegeneratePatch, Face: 7, Group: 2, Detail: "control grid 1x3"}
	if got, want := d.String(), "DegeneratePatch face=7 group=2: control grid 1x3"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Diagnostic{Kind: DiagUnresolvedTexture, Face: -1, Group: -1}).String(); got != "UnresolvedTexture" {
		t.Errorf("String() = %q", got)
	}
	if got := DiagnosticKind(99).String(); got != "Diagnostic(99)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}
