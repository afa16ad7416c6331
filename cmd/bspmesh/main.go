// bspmesh is a CLI utility for inspecting Quake III BSP maps and exporting
// their geometry as material-batched meshes.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/bspmesh/internal/assets"
	"github.com/Faultbox/bspmesh/internal/config"
	"github.com/Faultbox/bspmesh/internal/export"
	"github.com/Faultbox/bspmesh/internal/logger"
	"github.com/Faultbox/bspmesh/internal/mapgen"
	"github.com/Faultbox/bspmesh/internal/material"
	"github.com/Faultbox/bspmesh/pkg/encoding"
	"github.com/Faultbox/bspmesh/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "textures", "tex":
		cmdTextures(args)
	case "faces":
		cmdFaces(args)
	case "entities", "ent":
		cmdEntities(args)
	case "build":
		cmdBuild(args)
	case "lightmaps", "lm":
		cmdLightmaps(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bspmesh - Quake III BSP map utility

Usage:
  bspmesh <command> [options]

Commands:
  info <map.bsp>                     Show header, lump directory and face counts
  textures <map.bsp>                 List textures with their face usage
  faces <map.bsp> [-kind K] [-n N]   Dump face records
  entities <map.bsp> [-class C]      Print entity key/value pairs
  build [options] <map.bsp>          Build meshes and export OBJ/MTL
  lightmaps <map.bsp> [-out D]       Export lightmaps as WebP (-atlas packs them)

Build options:
  -config <file>   YAML config file
  -tess <n>        Bezier tessellation level (default 5)
  -workers <n>     Parallel face builders (0 = GOMAXPROCS)
  -lightmaps       Attach lightmaps to materials
  -pk3 <a,b,...>   pk3 archives to search for textures
  -out <dir>       Output directory
  -save-config <f> Write the effective config to a YAML file
  -debug           Debug logging

Examples:
  bspmesh info maps/q3dm17.bsp
  bspmesh faces -kind patch -n 20 maps/q3dm17.bsp
  bspmesh build -tess 8 -pk3 baseq3/pak0.pk3 -out ./q3dm17 maps/q3dm17.bsp`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadMap(path string) *formats.BSP {
	start := time.Now()
	bsp, err := formats.ParseBSPFile(path)
	if err != nil {
		fatalf("%v", err)
	}
	logger.Debug("Loaded map", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))
	return bsp
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh info <map.bsp>")
		os.Exit(1)
	}

	bsp := loadMap(args[0])

	fmt.Printf("Map:       %s\n", args[0])
	fmt.Printf("Version:   %d\n", bsp.Version)
	fmt.Printf("Textures:  %d\n", len(bsp.Textures))
	fmt.Printf("Vertices:  %d\n", len(bsp.Vertices))
	fmt.Printf("MeshVerts: %d\n", len(bsp.MeshVerts))
	fmt.Printf("Faces:     %d\n", len(bsp.Faces))
	fmt.Printf("Lightmaps: %d\n", len(bsp.Lightmaps))
	fmt.Println()

	fmt.Println("Lumps:")
	for _, e := range bsp.Directory {
		fmt.Printf("  %-12s offset %9d  length %9d\n", e.Name, e.Offset, e.Length)
	}
	fmt.Println()

	fmt.Println("Faces by kind:")
	counts := bsp.CountFacesByKind()
	kinds := make([]formats.FaceKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
}

func cmdTextures(args []string) {
	fs := flag.NewFlagSet("textures", flag.ExitOnError)
	unused := fs.Bool("unused", false, "Also list textures no face references")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh textures [-unused] <map.bsp>")
		os.Exit(1)
	}

	bsp := loadMap(fs.Arg(0))

	usage := make([]int, len(bsp.Textures))
	for _, f := range bsp.Faces {
		usage[f.Texture]++
	}

	for i, tex := range bsp.Textures {
		if usage[i] == 0 && !*unused {
			continue
		}
		line := fmt.Sprintf("%4d  %-48s faces=%-5d flags=0x%x contents=0x%x", i, tex.Name, usage[i], tex.Flags, tex.Contents)
		if tex.RawName != tex.Name {
			line += fmt.Sprintf("  (raw %s)", tex.RawName)
		}
		fmt.Println(line)
	}
}

func parseFaceKind(s string) (formats.FaceKind, bool) {
	for _, k := range []formats.FaceKind{formats.FacePolygon, formats.FacePatch, formats.FaceMesh, formats.FaceBillboard} {
		if strings.EqualFold(s, k.String()) {
			return k, true
		}
	}
	return 0, false
}

func cmdFaces(args []string) {
	fs := flag.NewFlagSet("faces", flag.ExitOnError)
	kind := fs.String("kind", "", "Only show faces of this kind (polygon, patch, mesh, billboard)")
	limit := fs.Int("n", 0, "Limit output to N faces (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh faces [-kind K] [-n N] <map.bsp>")
		os.Exit(1)
	}

	var filter formats.FaceKind
	if *kind != "" {
		k, ok := parseFaceKind(*kind)
		if !ok {
			fatalf("unknown face kind %q", *kind)
		}
		filter = k
	}

	bsp := loadMap(fs.Arg(0))

	count := 0
	for i := range bsp.Faces {
		f := &bsp.Faces[i]
		if filter != 0 && f.Kind != filter {
			continue
		}

		fmt.Printf("%5d  %-9s tex=%-4d lm=%-3d verts=[%d,+%d) meshverts=[%d,+%d)",
			i, f.Kind, f.Texture, f.LightmapIndex, f.Vertex, f.NumVertices, f.MeshVert, f.NumMeshVerts)
		if f.Kind == formats.FacePatch {
			nx, ny := mapgen.PatchCount(f)
			fmt.Printf(" size=%dx%d patches=%d", f.Size[0], f.Size[1], nx*ny)
		}
		fmt.Printf("  %s\n", bsp.TextureName(f.Texture))

		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d faces)\n", count)
}

func cmdEntities(args []string) {
	fs := flag.NewFlagSet("entities", flag.ExitOnError)
	class := fs.String("class", "", "Only show entities whose classname contains this text")
	raw := fs.Bool("raw", false, "Print the entity lump unparsed")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh entities [-class C] [-raw] <map.bsp>")
		os.Exit(1)
	}

	bsp := loadMap(fs.Arg(0))

	if *raw {
		fmt.Print(encoding.Printable(encoding.Latin1ToUTF8(encoding.TrimNullBytes([]byte(bsp.Entities)))))
		return
	}

	entities, err := bsp.ParseEntities()
	if err != nil {
		fatalf("%v", err)
	}

	shown := 0
	for i, e := range entities {
		if *class != "" && !strings.Contains(e.Classname(), *class) {
			continue
		}
		fmt.Printf("[%d] %s\n", i, e.Classname())
		for _, p := range e.Pairs {
			if p.Key == "classname" {
				continue
			}
			fmt.Printf("    %-16s %s\n", p.Key, encoding.Printable(encoding.Latin1StringToUTF8(p.Value)))
		}
		shown++
	}

	fmt.Fprintf(os.Stderr, "\n(%d of %d entities)\n", shown, len(entities))
}

func cmdBuild(args []string) {
	if err := config.ParseArgs(args); err != nil {
		os.Exit(1)
	}
	if len(config.Args()) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh build [options] <map.bsp>")
		os.Exit(1)
	}
	mapPath := config.Args()[0]

	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Build settings: tess=%d workers=%d lightmaps=%t textures=%t",
		cfg.Map.Tessellation, cfg.Map.Workers, cfg.Map.ApplyLightmaps, cfg.Map.UseTextures)
	if path := config.SaveConfigPath(); path != "" {
		if err := cfg.SaveTo(path); err != nil {
			fatalf("save config: %v", err)
		}
		logger.Sugar.Infof("Saved config to %s", path)
	}

	bsp := loadMap(mapPath)

	textures := assets.NewManager()
	defer textures.Close()
	for _, p := range cfg.Assets.PK3Paths {
		if err := textures.AddArchive(p); err != nil {
			logger.Warn("Skipping archive", zap.String("path", p), zap.Error(err))
		}
	}
	for _, d := range cfg.Assets.TextureDirs {
		if err := textures.AddDir(d); err != nil {
			logger.Warn("Skipping texture directory", zap.String("path", d), zap.Error(err))
		}
	}

	lightmaps := func(i int) *image.NRGBA {
		if lm := bsp.Lightmap(i); lm != nil {
			return lm.Image()
		}
		return nil
	}
	lib := material.NewLibrary(textures, lightmaps, material.Options{
		UseTextures:    cfg.Map.UseTextures,
		ApplyLightmaps: cfg.Map.ApplyLightmaps,
	})

	builder, err := mapgen.NewBuilder(bsp, lib, mapgen.Options{
		Tessellation: cfg.Map.Tessellation,
		Workers:      cfg.Map.Workers,
	})
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := builder.Build(ctx)
	if err != nil {
		logger.Error("Build failed", zap.String("map", mapPath), zap.Error(err))
		fatalf("build: %v", err)
	}

	sceneOpts := export.SceneOptions{
		UnitScale:     cfg.Output.UnitScale,
		LightmapScale: cfg.Output.LightmapScale,
		WriteTextures: cfg.Output.WriteTextures,
		Center:        cfg.Output.Center,
	}
	if cfg.Map.ApplyLightmaps {
		sceneOpts.LightmapAtlas = export.BuildLightmapAtlas(bsp.Lightmaps)
	}

	name := strings.TrimSuffix(filepath.Base(mapPath), filepath.Ext(mapPath))
	files, err := export.ExportScene(cfg.Output.Dir, name, res.Groups, sceneOpts)
	if err != nil {
		fatalf("export: %v", err)
	}
	hits, misses := textures.CacheStats()
	logger.Debug("Texture cache", zap.Int("hits", hits), zap.Int("misses", misses))

	var vertices, triangles, fallbacks int
	for _, g := range res.Groups {
		vertices += g.Mesh.VertexCount()
		triangles += g.Mesh.TriangleCount()
		if g.Material == lib.Fallback() {
			fallbacks++
		}
	}

	fmt.Printf("Map:        %s\n", mapPath)
	fmt.Printf("Groups:     %d\n", len(res.Groups))
	fmt.Printf("Faces:      %d of %d\n", res.Faces, len(bsp.Faces))
	fmt.Printf("Vertices:   %d\n", vertices)
	fmt.Printf("Triangles:  %d\n", triangles)
	fmt.Printf("Materials:  %d resolved, %d groups on fallback\n", lib.Len(), fallbacks)
	fmt.Printf("Output:     %s\n", filepath.Join(cfg.Output.Dir, files.OBJ))
	if files.LightmapOBJ != "" {
		fmt.Printf("Lightmaps:  %s\n", filepath.Join(cfg.Output.Dir, files.LightmapOBJ))
	}

	if len(res.Diagnostics) > 0 {
		byKind := make(map[mapgen.DiagnosticKind]int)
		for _, d := range res.Diagnostics {
			byKind[d.Kind]++
		}
		fmt.Println()
		fmt.Println("Diagnostics:")
		for _, k := range []mapgen.DiagnosticKind{mapgen.DiagUnsupportedFaceKind, mapgen.DiagUnresolvedTexture, mapgen.DiagDegeneratePatch} {
			if byKind[k] > 0 {
				fmt.Printf("  %-20s %d\n", k, byKind[k])
			}
		}
	}
}

func cmdLightmaps(args []string) {
	fs := flag.NewFlagSet("lightmaps", flag.ExitOnError)
	outDir := fs.String("out", "lightmaps", "Output directory")
	scale := fs.Int("scale", 1, "Integer upscale factor")
	smooth := fs.Bool("smooth", false, "Use smooth (CatmullRom) upscaling")
	atlas := fs.Bool("atlas", false, "Pack all lightmaps into a single atlas image")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bspmesh lightmaps [-out D] [-scale N] [-smooth] [-atlas] <map.bsp>")
		os.Exit(1)
	}

	bsp := loadMap(fs.Arg(0))
	if *atlas {
		a := export.BuildLightmapAtlas(bsp.Lightmaps)
		path := filepath.Join(*outDir, "lightmap_atlas.webp")
		if err := export.WriteWebP(path, export.ScaleImage(a.Image, *scale, *smooth)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Packed %d/%d lightmaps into %dx%d atlas %s\n",
			a.Count, len(bsp.Lightmaps), a.Size, a.Size, path)
		return
	}

	if len(bsp.Lightmaps) == 0 {
		fmt.Fprintln(os.Stderr, "Map has no lightmaps")
		return
	}

	written := 0
	for i := range bsp.Lightmaps {
		img := export.ScaleImage(bsp.Lightmaps[i].Image(), *scale, *smooth)
		path := filepath.Join(*outDir, fmt.Sprintf("lm_%04d.webp", i))
		if err := export.WriteWebP(path, img); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			continue
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "Exported %d lightmaps to %s\n", written, *outDir)
}
