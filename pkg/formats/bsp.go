// BSP (Quake III "IBSP") parser for the geometry-related lumps.

package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/Faultbox/bspmesh/pkg/encoding"
)

// BSP format errors.
var (
	ErrMalformedBSP          = errors.New("malformed BSP")
	ErrInvalidBSPMagic       = errors.New("invalid BSP magic: expected 'IBSP'")
	ErrUnsupportedBSPVersion = errors.New("unsupported BSP version")
	ErrTruncatedBSPData      = fmt.Errorf("%w: truncated data", ErrMalformedBSP)
)

// Supported BSP versions.
const (
	BSPVersionQ3 int32 = 0x2E // Quake III Arena
	BSPVersionQL int32 = 0x2F // Quake Live
)

const (
	bspMagic      = "IBSP"
	bspLumpCount  = 17
	bspHeaderSize = 8 + bspLumpCount*8 // magic + version + 17 * (offset, length)

	textureNameLen = 64
)

// LightmapSize is the edge length in pixels of every lightmap slot.
const LightmapSize = 128

const lightmapBytes = LightmapSize * LightmapSize * 3

// Lump indices into the header directory.
const (
	LumpEntities = iota
	LumpTextures
	LumpPlanes
	LumpNodes
	LumpLeafs
	LumpLeafFaces
	LumpLeafBrushes
	LumpModels
	LumpBrushes
	LumpBrushSides
	LumpVertexes
	LumpMeshVerts
	LumpEffects
	LumpFaces
	LumpLightmaps
	LumpLightVols
	LumpVisData
)

var lumpNames = [bspLumpCount]string{
	"entities", "textures", "planes", "nodes", "leafs", "leaffaces",
	"leafbrushes", "models", "brushes", "brushsides", "vertexes",
	"meshverts", "effects", "faces", "lightmaps", "lightvols", "visdata",
}

// Record size in bytes of each lump. Entities and visdata are byte blobs.
var lumpRecordSizes = [bspLumpCount]uint32{
	1, 72, 16, 36, 48, 4,
	4, 40, 12, 8, 44,
	4, 72, 104, lightmapBytes, 8, 1,
}

// Shader-modifier fragments stripped from texture names to recover the
// base image name. Lossy: a plain texture containing one of these loses it too.
var shaderNameFragments = []string{"_hell", "_trans", "flat_400", "_750"}

// DirectoryEntry locates one lump inside the file.
type DirectoryEntry struct {
	Offset uint32
	Length uint32
	Name   string
}

// Validate checks that the lump holds whole records and lies inside the file.
func (e DirectoryEntry) Validate(recordSize uint32, fileSize int) error {
	if recordSize == 0 || e.Length%recordSize != 0 {
		return fmt.Errorf("%w: lump %s length %d is not a multiple of %d",
			ErrMalformedBSP, e.Name, e.Length, recordSize)
	}
	if uint64(e.Offset)+uint64(e.Length) > uint64(fileSize) {
		return fmt.Errorf("%w: lump %s [%d, +%d) exceeds file size %d",
			ErrTruncatedBSPData, e.Name, e.Offset, e.Length, fileSize)
	}
	return nil
}

// FaceKind is the geometric interpretation of a face.
type FaceKind int32

const (
	FacePolygon   FaceKind = 1 // Planar polygon, triangulated by meshverts
	FacePatch     FaceKind = 2 // Quadratic Bezier control grid
	FaceMesh      FaceKind = 3 // Triangle soup, triangulated by meshverts
	FaceBillboard FaceKind = 4 // Flare sprite, no geometry
)

// String returns a human-readable face kind name.
func (k FaceKind) String() string {
	switch k {
	case FacePolygon:
		return "Polygon"
	case FacePatch:
		return "Patch"
	case FaceMesh:
		return "Mesh"
	case FaceBillboard:
		return "Billboard"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(k))
	}
}

// BSPTexture is a surface/shader reference.
type BSPTexture struct {
	Name     string // Base name, shader fragments stripped
	RawName  string // Name as stored up to the first NUL, decoded from Latin-1
	Flags    int32
	Contents int32
}

type bspTextureRecord struct {
	Name     [textureNameLen]byte
	Flags    int32
	Contents int32
}

// BSPVertex mirrors the 44-byte on-disk vertex record.
type BSPVertex struct {
	Position      [3]float32
	TexCoord      [2]float32
	LightmapCoord [2]float32
	Normal        [3]float32
	Color         [4]uint8 // RGBA, not used for mesh generation
}

// BSPFace mirrors the 104-byte on-disk face record.
type BSPFace struct {
	Texture        int32 // Index into BSP.Textures
	Effect         int32 // Index into the effects lump, or -1
	Kind           FaceKind
	Vertex         int32 // First vertex in BSP.Vertices
	NumVertices    int32
	MeshVert       int32 // First index in BSP.MeshVerts
	NumMeshVerts   int32
	LightmapIndex  int32 // Index into BSP.Lightmaps, negative = none
	LightmapStart  [2]int32
	LightmapSize   [2]int32
	LightmapOrigin [3]float32
	LightmapVecs   [2][3]float32
	Normal         [3]float32
	Size           [2]int32 // Patch control grid width and height
}

// BSPLightmap is one 128x128 RGB lightmap slot.
type BSPLightmap struct {
	RGB [lightmapBytes]byte
}

func clampColor(c int) byte {
	if c > 255 {
		return 255
	}
	if c < 0 {
		return 0
	}
	return byte(c)
}

func newLightmap(rgb []byte) BSPLightmap {
	var lm BSPLightmap
	for i, c := range rgb {
		lm.RGB[i] = clampColor(int(c))
	}
	return lm
}

// Image returns the lightmap as an opaque NRGBA image.
func (lm *BSPLightmap) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, LightmapSize, LightmapSize))
	for i := 0; i < LightmapSize*LightmapSize; i++ {
		img.Pix[i*4] = lm.RGB[i*3]
		img.Pix[i*4+1] = lm.RGB[i*3+1]
		img.Pix[i*4+2] = lm.RGB[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img
}

// BSP represents a parsed map. It is read-only once returned by ParseBSP.
type BSP struct {
	Version   int32
	Directory [bspLumpCount]DirectoryEntry
	Entities  string // Raw entity text, unmodified
	Textures  []BSPTexture
	Vertices  []BSPVertex
	MeshVerts []int32 // Offsets relative to a face's first vertex
	Faces     []BSPFace
	Lightmaps []BSPLightmap
}

// ParseBSP parses a BSP file from raw bytes.
func ParseBSP(data []byte) (*BSP, error) {
	if len(data) < bspHeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncatedBSPData, bspHeaderSize, len(data))
	}

	if string(data[0:4]) != bspMagic {
		return nil, ErrInvalidBSPMagic
	}

	version := int32(binary.LittleEndian.Uint32(data[4:8]))
	if version != BSPVersionQ3 && version != BSPVersionQL {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBSPVersion, version)
	}

	bsp := &BSP{Version: version}

	for i := range bspLumpCount {
		off := 8 + i*8
		entry := DirectoryEntry{
			Offset: binary.LittleEndian.Uint32(data[off:]),
			Length: binary.LittleEndian.Uint32(data[off+4:]),
			Name:   lumpNames[i],
		}
		if err := entry.Validate(lumpRecordSizes[i], len(data)); err != nil {
			return nil, err
		}
		bsp.Directory[i] = entry
	}

	bsp.Entities = string(bsp.lumpData(data, LumpEntities))

	var rawTextures []bspTextureRecord
	if err := readLump(bsp, data, LumpTextures, &rawTextures); err != nil {
		return nil, err
	}
	bsp.Textures = make([]BSPTexture, len(rawTextures))
	for i, rt := range rawTextures {
		bsp.Textures[i] = newTexture(rt)
	}

	if err := readLump(bsp, data, LumpVertexes, &bsp.Vertices); err != nil {
		return nil, err
	}
	if err := readLump(bsp, data, LumpMeshVerts, &bsp.MeshVerts); err != nil {
		return nil, err
	}
	if err := readLump(bsp, data, LumpFaces, &bsp.Faces); err != nil {
		return nil, err
	}

	lmData := bsp.lumpData(data, LumpLightmaps)
	bsp.Lightmaps = make([]BSPLightmap, len(lmData)/lightmapBytes)
	for i := range bsp.Lightmaps {
		bsp.Lightmaps[i] = newLightmap(lmData[i*lightmapBytes : (i+1)*lightmapBytes])
	}

	if err := bsp.validateFaces(); err != nil {
		return nil, err
	}

	return bsp, nil
}

// ParseBSPFile parses a BSP file from disk.
func ParseBSPFile(path string) (*BSP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading BSP file: %w", err)
	}
	return ParseBSP(data)
}

func (b *BSP) lumpData(data []byte, lump int) []byte {
	e := b.Directory[lump]
	return data[e.Offset : e.Offset+e.Length]
}

// readLump decodes a lump of fixed-size records into a freshly sized slice.
func readLump[T any](b *BSP, data []byte, lump int, out *[]T) error {
	raw := b.lumpData(data, lump)
	count := len(raw) / int(lumpRecordSizes[lump])
	*out = make([]T, count)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, *out); err != nil {
		return fmt.Errorf("%w: reading %s lump: %v", ErrTruncatedBSPData, lumpNames[lump], err)
	}
	return nil
}

func newTexture(rt bspTextureRecord) BSPTexture {
	raw := encoding.FixedStringToUTF8(rt.Name[:])
	name := raw
	for _, frag := range shaderNameFragments {
		name = strings.ReplaceAll(name, frag, "")
	}
	return BSPTexture{
		Name:     name,
		RawName:  raw,
		Flags:    rt.Flags,
		Contents: rt.Contents,
	}
}

// validateFaces cross-checks every face against the lumps it indexes.
func (b *BSP) validateFaces() error {
	for i := range b.Faces {
		f := &b.Faces[i]

		if f.Texture < 0 || int(f.Texture) >= len(b.Textures) {
			return fmt.Errorf("%w: face %d texture %d out of range [0,%d)", ErrMalformedBSP, i, f.Texture, len(b.Textures))
		}
		if int(f.LightmapIndex) >= len(b.Lightmaps) {
			return fmt.Errorf("%w: face %d lightmap %d out of range [0,%d)", ErrMalformedBSP, i, f.LightmapIndex, len(b.Lightmaps))
		}
		if !inRange(f.Vertex, f.NumVertices, len(b.Vertices)) {
			return fmt.Errorf("%w: face %d vertices [%d,+%d) out of range [0,%d)", ErrMalformedBSP, i, f.Vertex, f.NumVertices, len(b.Vertices))
		}
		if !inRange(f.MeshVert, f.NumMeshVerts, len(b.MeshVerts)) {
			return fmt.Errorf("%w: face %d meshverts [%d,+%d) out of range [0,%d)", ErrMalformedBSP, i, f.MeshVert, f.NumMeshVerts, len(b.MeshVerts))
		}

		switch f.Kind {
		case FacePolygon, FaceMesh:
			for j, mv := range b.FaceMeshVerts(f) {
				if mv < 0 || mv >= f.NumVertices {
					return fmt.Errorf("%w: face %d meshvert %d = %d outside local range [0,%d)", ErrMalformedBSP, i, j, mv, f.NumVertices)
				}
			}
		case FacePatch:
			w, h := int64(f.Size[0]), int64(f.Size[1])
			if w >= 3 && h >= 3 && w*h > int64(f.NumVertices) {
				return fmt.Errorf("%w: face %d patch grid %dx%d needs more than %d vertices", ErrMalformedBSP, i, w, h, f.NumVertices)
			}
		}
	}
	return nil
}

func inRange(start, count int32, length int) bool {
	return start >= 0 && count >= 0 && int64(start)+int64(count) <= int64(length)
}

// FaceVertices returns the face's contiguous vertex range without copying.
func (b *BSP) FaceVertices(f *BSPFace) []BSPVertex {
	return b.Vertices[f.Vertex : f.Vertex+f.NumVertices]
}

// FaceMeshVerts returns the face's relative triangle indices without copying.
func (b *BSP) FaceMeshVerts(f *BSPFace) []int32 {
	return b.MeshVerts[f.MeshVert : f.MeshVert+f.NumMeshVerts]
}

// TextureName returns the normalized name of texture i, or "" if out of range.
func (b *BSP) TextureName(i int32) string {
	if i < 0 || int(i) >= len(b.Textures) {
		return ""
	}
	return b.Textures[i].Name
}

// Lightmap returns lightmap slot i, or nil for a negative or unknown index.
func (b *BSP) Lightmap(i int) *BSPLightmap {
	if i < 0 || i >= len(b.Lightmaps) {
		return nil
	}
	return &b.Lightmaps[i]
}

// CountFacesByKind returns the number of faces of each kind.
func (b *BSP) CountFacesByKind() map[FaceKind]int {
	counts := make(map[FaceKind]int)
	for _, f := range b.Faces {
		counts[f.Kind]++
	}
	return counts
}
