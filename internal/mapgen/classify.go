package mapgen

import (
	"fmt"

	"github.com/Faultbox/bspmesh/pkg/formats"
)

// Buildable reports whether faces of kind k produce geometry.
func Buildable(k formats.FaceKind) bool {
	return k == formats.FacePolygon || k == formats.FacePatch || k == formats.FaceMesh
}

// ClassifyFaces partitions the map's faces by (kind, texture, lightmap).
// Groups appear in the order their first face appears; faces keep file order
// inside each group. Faces of other kinds are skipped with one diagnostic each.
func ClassifyFaces(bsp *formats.BSP) ([]FaceGroup, []Diagnostic) {
	var groups []FaceGroup
	var diags []Diagnostic
	index := make(map[GroupKey]int)

	for i := range bsp.Faces {
		f := &bsp.Faces[i]
		if !Buildable(f.Kind) {
			diags = append(diags, Diagnostic{
				Kind:   DiagUnsupportedFaceKind,
				Face:   i,
				Group:  -1,
				Detail: fmt.Sprintf("face kind %d (%s) skipped", int32(f.Kind), f.Kind),
			})
			continue
		}

		key := GroupKey{Kind: f.Kind, Texture: f.Texture, LightmapIndex: f.LightmapIndex}
		if key.LightmapIndex < 0 {
			key.LightmapIndex = -1
		}
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, FaceGroup{Key: key})
		}
		groups[g].Faces = append(groups[g].Faces, i)
	}

	return groups, diags
}
