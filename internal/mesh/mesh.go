// Package mesh provides the indexed triangle mesh produced for map faces,
// plus merging and normal recomputation.
package mesh

import (
	"github.com/Faultbox/bspmesh/pkg/math"
)

// Vertex represents a mesh vertex with all attributes.
type Vertex struct {
	Position   [3]float32
	Normal     [3]float32
	TexCoord   [2]float32
	LightmapUV [2]float32
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Mesh holds an indexed triangle list ready for upload.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Bounds   Bounds
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Empty reports whether the mesh has no geometry.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Vertices) == 0
}

// Triangle returns the three vertex indices of triangle i.
func (m *Mesh) Triangle(i int) [3]uint32 {
	return [3]uint32{m.Indices[i*3], m.Indices[i*3+1], m.Indices[i*3+2]}
}

// RecalculateBounds recomputes Bounds from the vertex positions.
// An empty mesh gets zero bounds.
func (m *Mesh) RecalculateBounds() {
	if len(m.Vertices) == 0 {
		m.Bounds = Bounds{}
		return
	}
	lo := math.V3(m.Vertices[0].Position)
	hi := lo
	for _, v := range m.Vertices[1:] {
		p := math.V3(v.Position)
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	m.Bounds = Bounds{Min: lo.Array(), Max: hi.Array()}
}

// RecalculateNormals replaces vertex normals with the angle-weighted average
// of the normals of the triangles sharing each vertex. Triangles are wound
// clockwise seen from their front, as map faces are.
// Degenerate triangles contribute nothing; unreferenced vertices get a zero normal.
func (m *Mesh) RecalculateNormals() {
	sums := make([]math.Vec3, len(m.Vertices))

	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		p := [3]math.Vec3{
			math.V3(m.Vertices[tri[0]].Position),
			math.V3(m.Vertices[tri[1]].Position),
			math.V3(m.Vertices[tri[2]].Position),
		}
		n := p[2].Sub(p[0]).Cross(p[1].Sub(p[0])).Normalize()
		if n == (math.Vec3{}) {
			continue
		}
		for c := 0; c < 3; c++ {
			a := p[(c+1)%3].Sub(p[c])
			b := p[(c+2)%3].Sub(p[c])
			sums[tri[c]] = sums[tri[c]].Add(n.Scale(a.Angle(b)))
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = sums[i].Normalize().Array()
	}
}

// Combine concatenates meshes in order into a new mesh, offsetting each
// index list by the running vertex count. Vertices are not deduplicated.
// Nil and empty inputs are skipped.
func Combine(meshes ...*Mesh) *Mesh {
	var vertexCount, indexCount int
	for _, m := range meshes {
		if m.Empty() {
			continue
		}
		vertexCount += len(m.Vertices)
		indexCount += len(m.Indices)
	}

	out := &Mesh{
		Vertices: make([]Vertex, 0, vertexCount),
		Indices:  make([]uint32, 0, indexCount),
	}
	for _, m := range meshes {
		if m.Empty() {
			continue
		}
		base := uint32(len(out.Vertices))
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, base+idx)
		}
	}
	out.RecalculateBounds()
	return out
}
