package mapgen

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/bspmesh/internal/logger"
	"github.com/Faultbox/bspmesh/internal/material"
	"github.com/Faultbox/bspmesh/internal/mesh"
	"github.com/Faultbox/bspmesh/pkg/formats"
)

// MaterialResolver maps a texture name and lightmap slot (-1 = none) to a
// material. ok is false when the fallback material was substituted.
type MaterialResolver interface {
	ResolveMaterial(name string, lightmapIndex int) (mat *material.Material, ok bool)
}

// Options configures a Builder.
type Options struct {
	Tessellation int // Bezier subdivisions per patch edge, >= 1
	Workers      int // Parallel face builders, 0 = GOMAXPROCS
}

// DefaultOptions returns the default build settings.
func DefaultOptions() Options {
	return Options{Tessellation: 5}
}

// Builder converts one parsed map into combined group meshes.
type Builder struct {
	bsp      *formats.BSP
	resolver MaterialResolver
	opts     Options
}

// NewBuilder creates a builder. resolver may be nil, in which case groups
// carry no material.
func NewBuilder(bsp *formats.BSP, resolver MaterialResolver, opts Options) (*Builder, error) {
	if opts.Tessellation < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTessellation, opts.Tessellation)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{bsp: bsp, resolver: resolver, opts: opts}, nil
}

// faceResult is the private output slot of one face build.
type faceResult struct {
	mesh  *mesh.Mesh
	diags []Diagnostic
}

// BuildFace builds the local mesh of one face.
func (b *Builder) BuildFace(faceIndex int) (*mesh.Mesh, []Diagnostic, error) {
	f, err := faceAt(b.bsp, faceIndex)
	if err != nil {
		return nil, nil, err
	}

	switch f.Kind {
	case formats.FacePolygon, formats.FaceMesh:
		m, err := BuildPolygonMesh(b.bsp, faceIndex)
		return m, nil, err

	case formats.FacePatch:
		m, err := BuildPatchMesh(b.bsp, faceIndex, b.opts.Tessellation)
		if err != nil {
			return nil, nil, err
		}
		if m.Empty() {
			return m, []Diagnostic{{
				Kind:   DiagDegeneratePatch,
				Face:   faceIndex,
				Group:  -1,
				Detail: fmt.Sprintf("control grid %dx%d has no 3x3 sub-patch", f.Size[0], f.Size[1]),
			}}, nil
		}
		return m, nil, nil

	default:
		return &mesh.Mesh{}, []Diagnostic{{
			Kind:   DiagUnsupportedFaceKind,
			Face:   faceIndex,
			Group:  -1,
			Detail: fmt.Sprintf("face kind %d (%s) skipped", int32(f.Kind), f.Kind),
		}}, nil
	}
}

// BuildGroup builds and combines the faces of one group, then resolves its
// material. Faces are built sequentially in group order.
func (b *Builder) BuildGroup(g FaceGroup) (*GroupMesh, []Diagnostic, error) {
	results := make([]faceResult, len(g.Faces))
	for i, fi := range g.Faces {
		m, diags, err := b.BuildFace(fi)
		if err != nil {
			return nil, nil, err
		}
		results[i] = faceResult{mesh: m, diags: diags}
	}
	gm, diags := b.assemble(g, -1, results)
	return gm, diags, nil
}

// Build classifies every face, builds face meshes in parallel, and combines
// them per group. Output order does not depend on scheduling. The first fatal
// error or a cancelled ctx aborts the build and no partial result is returned.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	groups, diags := ClassifyFaces(b.bsp)

	slots := make([]faceResult, len(b.bsp.Faces))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Workers)

schedule:
	for _, g := range groups {
		for _, fi := range g.Faces {
			if egCtx.Err() != nil {
				break schedule
			}
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				m, fd, err := b.BuildFace(fi)
				if err != nil {
					return err
				}
				slots[fi] = faceResult{mesh: m, diags: fd}
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for gi, g := range groups {
		results := make([]faceResult, len(g.Faces))
		for i, fi := range g.Faces {
			results[i] = slots[fi]
		}
		gm, gd := b.assemble(g, gi, results)
		diags = append(diags, gd...)
		if gm.Mesh.Empty() {
			continue
		}
		res.Groups = append(res.Groups, gm)
		res.Faces += len(g.Faces)
	}
	res.Diagnostics = diags

	if logger.Enabled(zapcore.DebugLevel) {
		for _, d := range diags {
			logger.Debug("Build diagnostic", zap.Stringer("diagnostic", d))
		}
	}
	logger.Info("Built map meshes",
		zap.Int("groups", len(res.Groups)),
		zap.Int("faces", res.Faces),
		zap.Int("diagnostics", len(diags)),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

// assemble combines per-face results in order and resolves the material.
// Face diagnostics are tagged with the group index.
func (b *Builder) assemble(g FaceGroup, groupIndex int, results []faceResult) (*GroupMesh, []Diagnostic) {
	var diags []Diagnostic
	meshes := make([]*mesh.Mesh, len(results))
	for i, r := range results {
		meshes[i] = r.mesh
		for _, d := range r.diags {
			d.Group = groupIndex
			diags = append(diags, d)
		}
	}

	gm := &GroupMesh{
		Key:     g.Key,
		Texture: b.bsp.TextureName(g.Key.Texture),
		Faces:   g.Faces,
		Mesh:    mesh.Combine(meshes...),
	}

	if b.resolver != nil && !gm.Mesh.Empty() {
		lm := int(g.Key.LightmapIndex)
		if lm < 0 {
			lm = -1
		}
		mat, ok := b.resolver.ResolveMaterial(gm.Texture, lm)
		gm.Material = mat
		if !ok {
			diags = append(diags, Diagnostic{
				Kind:   DiagUnresolvedTexture,
				Face:   -1,
				Group:  groupIndex,
				Detail: fmt.Sprintf("texture %q not found, using fallback", gm.Texture),
			})
		}
	}

	return gm, diags
}
