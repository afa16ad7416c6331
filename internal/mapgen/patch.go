package mapgen

import (
	"fmt"

	"github.com/Faultbox/bspmesh/internal/bezier"
	"github.com/Faultbox/bspmesh/internal/mesh"
	"github.com/Faultbox/bspmesh/pkg/formats"
	"github.com/Faultbox/bspmesh/pkg/math"
)

// PatchCount returns how many 3x3 sub-patches a patch face's control grid
// splits into along each axis. A size below 3 yields 0 on that axis.
func PatchCount(f *formats.BSPFace) (nx, ny int) {
	if f.Size[0] >= 3 {
		nx = int(f.Size[0]-1) / 2
	}
	if f.Size[1] >= 3 {
		ny = int(f.Size[1]-1) / 2
	}
	return nx, ny
}

// PatchControlGrid extracts the 3x3 control points of sub-patch p, counted
// row-major over the face's patches. Adjacent sub-patches share an edge.
func PatchControlGrid(bsp *formats.BSP, f *formats.BSPFace, p int) ([9]bezier.ControlPoint, error) {
	var ctrl [9]bezier.ControlPoint

	nx, ny := PatchCount(f)
	if p < 0 || p >= nx*ny {
		return ctrl, fmt.Errorf("patch %d out of range [0,%d)", p, nx*ny)
	}

	px, py := 0, 0
	for i := 0; i < p; i++ {
		px++
		if px == nx {
			px = 0
			py++
		}
	}

	width := int(f.Size[0])
	verts := bsp.FaceVertices(f)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			v := verts[(2*py+row)*width+2*px+col]
			ctrl[row*3+col] = bezier.ControlPoint{
				Position:   math.V3(v.Position),
				TexCoord:   math.V2(v.TexCoord),
				LightmapUV: math.V2(v.LightmapCoord),
			}
		}
	}
	return ctrl, nil
}

// BuildPatchMesh tessellates every sub-patch of a Patch face at the given
// level and concatenates them. A face with no sub-patches yields an empty mesh.
func BuildPatchMesh(bsp *formats.BSP, faceIndex int, level int) (*mesh.Mesh, error) {
	if level < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTessellation, level)
	}
	f, err := faceAt(bsp, faceIndex)
	if err != nil {
		return nil, err
	}

	nx, ny := PatchCount(f)
	if nx == 0 || ny == 0 {
		return &mesh.Mesh{}, nil
	}
	if need := int64(f.Size[0]) * int64(f.Size[1]); need > int64(f.NumVertices) {
		return nil, fmt.Errorf("%w: face %d patch grid %dx%d needs more than %d vertices",
			ErrMalformedMap, faceIndex, f.Size[0], f.Size[1], f.NumVertices)
	}

	patches := make([]*mesh.Mesh, 0, nx*ny)
	for p := 0; p < nx*ny; p++ {
		ctrl, err := PatchControlGrid(bsp, f, p)
		if err != nil {
			return nil, err
		}
		patches = append(patches, bezier.Tessellate(level, ctrl))
	}
	return mesh.Combine(patches...), nil
}
