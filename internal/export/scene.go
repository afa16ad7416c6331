package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/bspmesh/internal/logger"
	"github.com/Faultbox/bspmesh/internal/mapgen"
	"github.com/Faultbox/bspmesh/pkg/math"
)

// SceneOptions controls ExportScene.
type SceneOptions struct {
	UnitScale     float32 // Quake units to output units
	LightmapScale int     // Upscale factor for lightmap images
	WriteTextures bool    // Write resolved textures as WebP next to the OBJ
	Center        bool    // Move the centre of all geometry to the origin

	// LightmapAtlas, when set, adds lightmaps/atlas.webp and a second OBJ
	// whose texture coordinates address the atlas.
	LightmapAtlas *LightmapAtlas
}

// Files lists what ExportScene wrote, relative to the output directory.
type Files struct {
	OBJ      string
	MTL      string
	Textures []string

	LightmapOBJ string // Empty without a lightmap atlas
	LightmapMTL string
}

// ExportScene writes name.obj, name.mtl and (optionally) one WebP per
// resolved texture and lightmap into dir. With a lightmap atlas it also
// writes name_lightmap.obj and name_lightmap.mtl.
func ExportScene(dir, name string, groups []*mapgen.GroupMesh, opts SceneOptions) (*Files, error) {
	start := time.Now()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if opts.UnitScale == 0 {
		opts.UnitScale = 1
	}

	files := &Files{OBJ: name + ".obj", MTL: name + ".mtl"}
	textures := make(map[string]string)
	lightmaps := make(map[int]string)

	if opts.WriteTextures {
		for _, g := range groups {
			if g.Mesh.Empty() || g.Material == nil || g.Material.Texture == nil {
				continue
			}
			mat := MaterialName(g)
			if _, done := textures[mat]; done {
				continue
			}
			rel := filepath.ToSlash(filepath.Join("textures", mat+".webp"))
			if err := WriteWebP(filepath.Join(dir, rel), g.Material.Texture); err != nil {
				return nil, err
			}
			textures[mat] = rel
			files.Textures = append(files.Textures, rel)

			lmIndex := g.Material.LightmapIndex
			if _, done := lightmaps[lmIndex]; g.Material.Lightmap != nil && !done {
				lmRel := filepath.ToSlash(filepath.Join("lightmaps", fmt.Sprintf("lm_%d.webp", lmIndex)))
				if err := WriteWebP(filepath.Join(dir, lmRel), ScaleImage(g.Material.Lightmap, opts.LightmapScale, false)); err != nil {
					return nil, err
				}
				lightmaps[lmIndex] = lmRel
				files.Textures = append(files.Textures, lmRel)
			}
		}
	}

	objOpts := DefaultOBJOptions(opts.UnitScale)
	if opts.Center {
		c := sceneCenter(groups)
		objOpts.Transform = objOpts.Transform.Mul(math.Translate(-c[0], -c[1], -c[2]))
	}
	objOpts.MTLFile = files.MTL
	if err := writeFile(filepath.Join(dir, files.OBJ), func(f *os.File) error {
		return WriteOBJ(f, groups, objOpts)
	}); err != nil {
		return nil, err
	}

	if err := writeFile(filepath.Join(dir, files.MTL), func(f *os.File) error {
		return WriteMTL(f, groups, func(g *mapgen.GroupMesh) MaterialMaps {
			maps := MaterialMaps{Diffuse: textures[MaterialName(g)]}
			if g.Material != nil && g.Material.Lightmap != nil {
				maps.Lightmap = lightmaps[g.Material.LightmapIndex]
			}
			return maps
		})
	}); err != nil {
		return nil, err
	}

	if opts.LightmapAtlas != nil {
		if err := exportLightmapAtlas(dir, name, groups, objOpts, opts, files); err != nil {
			return nil, err
		}
	}

	logger.Info("Exported scene",
		zap.String("dir", dir),
		zap.String("obj", files.OBJ),
		zap.Int("groups", len(groups)),
		zap.Int("images", len(files.Textures)),
		zap.Duration("elapsed", time.Since(start)))
	return files, nil
}

// exportLightmapAtlas writes the atlas image and an OBJ addressing it.
func exportLightmapAtlas(dir, name string, groups []*mapgen.GroupMesh, objOpts OBJOptions, opts SceneOptions, files *Files) error {
	atlasRel := filepath.ToSlash(filepath.Join("lightmaps", "atlas.webp"))
	if err := WriteWebP(filepath.Join(dir, atlasRel), ScaleImage(opts.LightmapAtlas.Image, opts.LightmapScale, false)); err != nil {
		return err
	}
	files.Textures = append(files.Textures, atlasRel)

	files.LightmapOBJ = name + "_lightmap.obj"
	files.LightmapMTL = name + "_lightmap.mtl"
	objOpts.MTLFile = files.LightmapMTL
	objOpts.LightmapAtlas = opts.LightmapAtlas

	if err := writeFile(filepath.Join(dir, files.LightmapOBJ), func(f *os.File) error {
		return WriteOBJ(f, groups, objOpts)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, files.LightmapMTL), func(f *os.File) error {
		return WriteAtlasMTL(f, atlasRel)
	})
}

// sceneCenter returns the centre of the union of all group bounds.
func sceneCenter(groups []*mapgen.GroupMesh) [3]float32 {
	var lo, hi math.Vec3
	first := true
	for _, g := range groups {
		if g.Mesh.Empty() {
			continue
		}
		gl, gh := math.V3(g.Mesh.Bounds.Min), math.V3(g.Mesh.Bounds.Max)
		if first {
			lo, hi, first = gl, gh, false
			continue
		}
		lo, hi = lo.Min(gl), hi.Max(gh)
	}
	return lo.Add(hi).Scale(0.5).Array()
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
