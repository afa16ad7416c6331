// Package export writes built map meshes to interchange formats.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/bspmesh/internal/mapgen"
	"github.com/Faultbox/bspmesh/internal/material"
	"github.com/Faultbox/bspmesh/pkg/math"
)

// AtlasMaterial is the single material of a lightmap atlas OBJ.
const AtlasMaterial = "lightmap_atlas"

// OBJOptions controls OBJ output.
type OBJOptions struct {
	MTLFile   string    // Referenced with mtllib when set
	Transform math.Mat4 // Applied to positions and normals

	// LightmapAtlas, when set, writes lightmap coordinates remapped into the
	// atlas instead of texture coordinates and puts every group on
	// AtlasMaterial.
	LightmapAtlas *LightmapAtlas
}

// DefaultOBJOptions converts Quake units (Z up) to Y-up with the given scale.
func DefaultOBJOptions(unitScale float32) OBJOptions {
	return OBJOptions{Transform: math.ZUpToYUp(unitScale)}
}

// objWriter tracks the first write error so callers can check once.
type objWriter struct {
	w   *bufio.Writer
	err error
}

func (o *objWriter) printf(format string, args ...any) {
	if o.err != nil {
		return
	}
	_, o.err = fmt.Fprintf(o.w, format, args...)
}

func (o *objWriter) flush() error {
	if o.err != nil {
		return o.err
	}
	return o.w.Flush()
}

// WriteOBJ writes groups as one Wavefront OBJ object per group.
// Texture V is flipped because OBJ puts the image origin bottom-left.
// Map triangles are clockwise; faces are written counter-clockwise.
func WriteOBJ(w io.Writer, groups []*mapgen.GroupMesh, opts OBJOptions) error {
	out := &objWriter{w: bufio.NewWriter(w)}

	out.printf("# bspmesh export: %d groups\n", len(groups))
	if opts.MTLFile != "" {
		out.printf("mtllib %s\n", opts.MTLFile)
	}

	base := 1
	for gi, g := range groups {
		if g.Mesh.Empty() {
			continue
		}

		out.printf("\no group_%d\n", gi)
		for _, v := range g.Mesh.Vertices {
			p := opts.Transform.TransformPoint(v.Position)
			out.printf("v %s %s %s\n", ftoa(p[0]), ftoa(p[1]), ftoa(p[2]))
		}
		for _, v := range g.Mesh.Vertices {
			uv := v.TexCoord
			if opts.LightmapAtlas != nil {
				uv = opts.LightmapAtlas.UV(int(g.Key.LightmapIndex), v.LightmapUV)
			}
			out.printf("vt %s %s\n", ftoa(uv[0]), ftoa(1-uv[1]))
		}
		for _, v := range g.Mesh.Vertices {
			n := opts.Transform.TransformDirection(v.Normal)
			out.printf("vn %s %s %s\n", ftoa(n[0]), ftoa(n[1]), ftoa(n[2]))
		}

		if opts.LightmapAtlas != nil {
			out.printf("usemtl %s\n", AtlasMaterial)
		} else {
			out.printf("usemtl %s\n", MaterialName(g))
		}
		for t := 0; t < g.Mesh.TriangleCount(); t++ {
			tri := g.Mesh.Triangle(t)
			a, b, c := base+int(tri[0]), base+int(tri[1]), base+int(tri[2])
			out.printf("f %d/%d/%d %d/%d/%d %d/%d/%d\n", a, a, a, c, c, c, b, b, b)
		}
		base += g.Mesh.VertexCount()
	}

	return out.flush()
}

// MaterialMaps names the image files a material entry references.
type MaterialMaps struct {
	Diffuse  string // map_Kd
	Lightmap string // map_Ka
}

// WriteMTL writes one material entry per distinct MaterialName. maps returns
// the image paths of a group's material; empty paths are omitted.
func WriteMTL(w io.Writer, groups []*mapgen.GroupMesh, maps func(*mapgen.GroupMesh) MaterialMaps) error {
	out := &objWriter{w: bufio.NewWriter(w)}
	seen := make(map[string]bool)

	for _, g := range groups {
		if g.Mesh.Empty() {
			continue
		}
		name := MaterialName(g)
		if seen[name] {
			continue
		}
		seen[name] = true

		out.printf("newmtl %s\n", name)
		if g.Material == nil || g.Material.Template == material.TemplateFallback {
			out.printf("Kd 0.5 0.5 0.5\n")
		} else {
			out.printf("Kd 1 1 1\n")
		}
		out.printf("Ka 0 0 0\nKs 0 0 0\nillum 1\n")
		if maps != nil {
			m := maps(g)
			if m.Diffuse != "" {
				out.printf("map_Kd %s\n", m.Diffuse)
			}
			if m.Lightmap != "" {
				out.printf("map_Ka %s\n", m.Lightmap)
			}
		}
		out.printf("\n")
	}

	return out.flush()
}

// WriteAtlasMTL writes the single-material library used by a lightmap atlas OBJ.
func WriteAtlasMTL(w io.Writer, atlasFile string) error {
	out := &objWriter{w: bufio.NewWriter(w)}
	out.printf("newmtl %s\nKd 1 1 1\nKa 0 0 0\nKs 0 0 0\nillum 1\nmap_Kd %s\n", AtlasMaterial, atlasFile)
	return out.flush()
}

// MaterialName returns a whitespace-free name unique to the group's texture
// and lightmap slot.
func MaterialName(g *mapgen.GroupMesh) string {
	name := g.Texture
	if name == "" {
		name = fmt.Sprintf("texture_%d", g.Key.Texture)
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r <= ' ' || r == 0x7f:
			return '_'
		}
		return r
	}, name)
	if g.Key.LightmapIndex >= 0 {
		name += "_lm" + strconv.Itoa(int(g.Key.LightmapIndex))
	}
	return name
}

func ftoa(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}
