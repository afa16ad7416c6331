package mapgen

import (
	"fmt"

	"github.com/Faultbox/bspmesh/internal/mesh"
	"github.com/Faultbox/bspmesh/pkg/formats"
)

// BuildPolygonMesh builds the local mesh of a Polygon or Mesh face.
// Vertices are copied in order and mesh-vertex offsets are used as indices
// unchanged.
func BuildPolygonMesh(bsp *formats.BSP, faceIndex int) (*mesh.Mesh, error) {
	f, err := faceAt(bsp, faceIndex)
	if err != nil {
		return nil, err
	}
	if !spanInRange(f.MeshVert, f.NumMeshVerts, len(bsp.MeshVerts)) {
		return nil, fmt.Errorf("%w: face %d meshverts [%d,+%d) out of range [0,%d)",
			ErrMalformedMap, faceIndex, f.MeshVert, f.NumMeshVerts, len(bsp.MeshVerts))
	}

	src := bsp.FaceVertices(f)
	m := &mesh.Mesh{
		Vertices: make([]mesh.Vertex, len(src)),
		Indices:  make([]uint32, 0, f.NumMeshVerts),
	}
	for i, v := range src {
		m.Vertices[i] = mesh.Vertex{
			Position:   v.Position,
			Normal:     v.Normal,
			TexCoord:   v.TexCoord,
			LightmapUV: v.LightmapCoord,
		}
	}
	for j, mv := range bsp.FaceMeshVerts(f) {
		if mv < 0 || mv >= f.NumVertices {
			return nil, fmt.Errorf("%w: face %d meshvert %d = %d outside [0,%d)",
				ErrMalformedMap, faceIndex, j, mv, f.NumVertices)
		}
		m.Indices = append(m.Indices, uint32(mv))
	}

	m.RecalculateBounds()
	return m, nil
}

// faceAt returns face i after checking its vertex span.
func faceAt(bsp *formats.BSP, i int) (*formats.BSPFace, error) {
	if i < 0 || i >= len(bsp.Faces) {
		return nil, fmt.Errorf("%w: face %d out of range [0,%d)", ErrMalformedMap, i, len(bsp.Faces))
	}
	f := &bsp.Faces[i]
	if !spanInRange(f.Vertex, f.NumVertices, len(bsp.Vertices)) {
		return nil, fmt.Errorf("%w: face %d vertices [%d,+%d) out of range [0,%d)",
			ErrMalformedMap, i, f.Vertex, f.NumVertices, len(bsp.Vertices))
	}
	return f, nil
}

func spanInRange(start, count int32, length int) bool {
	return start >= 0 && count >= 0 && int64(start)+int64(count) <= int64(length)
}
