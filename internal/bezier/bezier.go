// Package bezier tessellates biquadratic Bezier patches into triangle grids.
package bezier

import (
	"github.com/Faultbox/bspmesh/internal/mesh"
	"github.com/Faultbox/bspmesh/pkg/math"
)

// ControlPoint is one vertex of a 3x3 patch control grid.
type ControlPoint struct {
	Position   math.Vec3
	TexCoord   math.Vec2
	LightmapUV math.Vec2
}

// Quadratic3 evaluates (1-t)^2*p0 + 2(1-t)t*p1 + t^2*p2 per component.
func Quadratic3(t float32, p0, p1, p2 math.Vec3) math.Vec3 {
	a := 1 - t
	tt := t * t
	return math.Vec3{
		X: a*a*p0.X + 2*a*(t*p1.X) + tt*p2.X,
		Y: a*a*p0.Y + 2*a*(t*p1.Y) + tt*p2.Y,
		Z: a*a*p0.Z + 2*a*(t*p1.Z) + tt*p2.Z,
	}
}

// Quadratic2 is Quadratic3 for texture-space coordinates.
func Quadratic2(t float32, p0, p1, p2 math.Vec2) math.Vec2 {
	a := 1 - t
	tt := t * t
	return math.Vec2{
		X: a*a*p0.X + 2*a*(t*p1.X) + tt*p2.X,
		Y: a*a*p0.Y + 2*a*(t*p1.Y) + tt*p2.Y,
	}
}

// Curve3 samples the curve through p0, p1, p2 at level+1 evenly stepped
// parameters. The first point is exactly p0 and the last exactly p2.
func Curve3(level int, p0, p1, p2 math.Vec3) []math.Vec3 {
	return curve(level, p0, p1, p2, Quadratic3)
}

// Curve2 is Curve3 for texture-space coordinates.
func Curve2(level int, p0, p1, p2 math.Vec2) []math.Vec2 {
	return curve(level, p0, p1, p2, Quadratic2)
}

// curve accumulates the parameter step rather than dividing per sample,
// which fixes the exact float32 sample positions.
func curve[T any](level int, p0, p1, p2 T, eval func(float32, T, T, T) T) []T {
	points := make([]T, 0, level+1)
	delta := 1 / float32(level)
	step := delta

	points = append(points, p0)
	for i := 0; i < level-1; i++ {
		points = append(points, eval(step, p0, p1, p2))
		step += delta
	}
	return append(points, p2)
}

// Tessellate evaluates a 3x3 control grid (row-major) at the given level,
// producing a (level+1)x(level+1) vertex grid and its triangle list.
// Normals are recomputed from the generated triangles. level must be >= 1.
func Tessellate(level int, ctrl [9]ControlPoint) *mesh.Mesh {
	width := level + 1

	// Columns run through control points (0,3,6), (1,4,7), (2,5,8).
	var colPos [3][]math.Vec3
	var colUV, colLM [3][]math.Vec2
	for c := 0; c < 3; c++ {
		colPos[c] = Curve3(level, ctrl[c].Position, ctrl[c+3].Position, ctrl[c+6].Position)
		colUV[c] = Curve2(level, ctrl[c].TexCoord, ctrl[c+3].TexCoord, ctrl[c+6].TexCoord)
		colLM[c] = Curve2(level, ctrl[c].LightmapUV, ctrl[c+3].LightmapUV, ctrl[c+6].LightmapUV)
	}

	m := &mesh.Mesh{
		Vertices: make([]mesh.Vertex, 0, width*width),
		Indices:  GridIndices(level),
	}
	for i := 0; i < width; i++ {
		pos := Curve3(level, colPos[0][i], colPos[1][i], colPos[2][i])
		uv := Curve2(level, colUV[0][i], colUV[1][i], colUV[2][i])
		lm := Curve2(level, colLM[0][i], colLM[1][i], colLM[2][i])
		for j := 0; j < width; j++ {
			m.Vertices = append(m.Vertices, mesh.Vertex{
				Position:   pos[j].Array(),
				TexCoord:   uv[j].Array(),
				LightmapUV: lm[j].Array(),
			})
		}
	}

	m.RecalculateNormals()
	m.RecalculateBounds()
	return m
}

// GridIndices builds the triangle list over a row-major (level+1)^2 grid.
//
// Walking every vertex above the last row with a column cursor, the left
// column emits (i, i+w, i+1), the right column emits (i, i+w-1, i+w), and
// interior columns emit both (i, i+w-1, i+w) and (i, i+w, i+1). The
// (i, i+w-1, i+w) triangle closes the quad to the left of i, so every grid
// cell ends up with two triangles: 2*level^2 in total.
func GridIndices(level int) []uint32 {
	width := level + 1
	numVerts := width * width
	indices := make([]uint32, 0, 6*level*level)

	xStep := 1
	for i := 0; i < numVerts-width; i++ {
		v := uint32(i)
		w := uint32(width)
		switch xStep {
		case 1:
			indices = append(indices, v, v+w, v+1)
			xStep++
		case width:
			indices = append(indices, v, v+w-1, v+w)
			xStep = 1
		default:
			indices = append(indices,
				v, v+w-1, v+w,
				v, v+w, v+1,
			)
			xStep++
		}
	}
	return indices
}
