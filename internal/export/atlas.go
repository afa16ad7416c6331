package export

import (
	"image"

	"github.com/Faultbox/bspmesh/pkg/formats"
)

// maxAtlasSize caps the atlas edge; slots that do not fit are dropped.
const maxAtlasSize = 4096

// LightmapAtlas packs every lightmap slot of a map into one square image.
type LightmapAtlas struct {
	Image       *image.NRGBA
	Size        int // Atlas edge in pixels, a power of two
	TilesPerRow int
	TileSize    int
	Count       int // Slots actually placed
}

// BuildLightmapAtlas packs lightmaps row-major into a power-of-two atlas.
// A map without lightmaps gets an 8x8 white atlas so renderers always have
// something to sample.
func BuildLightmapAtlas(lightmaps []formats.BSPLightmap) *LightmapAtlas {
	if len(lightmaps) == 0 {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for i := range img.Pix {
			img.Pix[i] = 255
		}
		return &LightmapAtlas{Image: img, Size: 8, TilesPerRow: 1, TileSize: 8}
	}

	tile := formats.LightmapSize

	tilesPerRow := 1
	for tilesPerRow*tilesPerRow < len(lightmaps) {
		tilesPerRow *= 2
	}

	size := 64
	for size < tilesPerRow*tile {
		size *= 2
	}
	if size > maxAtlasSize {
		size = maxAtlasSize
	}
	tilesPerRow = size / tile

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	placed := 0
	for i := range lightmaps {
		tx, ty := i%tilesPerRow, i/tilesPerRow
		if (ty+1)*tile > size {
			break
		}
		for y := 0; y < tile; y++ {
			src := lightmaps[i].RGB[y*tile*3 : (y+1)*tile*3]
			dst := img.Pix[img.PixOffset(tx*tile, ty*tile+y):]
			for x := 0; x < tile; x++ {
				dst[x*4] = src[x*3]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 255
			}
		}
		placed++
	}

	return &LightmapAtlas{Image: img, Size: size, TilesPerRow: tilesPerRow, TileSize: tile, Count: placed}
}

// UV remaps a per-face lightmap coordinate in [0,1] of slot index into
// atlas space, inset by half a pixel to avoid sampling neighbouring slots.
// Out-of-range slots map to the atlas centre.
func (a *LightmapAtlas) UV(index int, uv [2]float32) [2]float32 {
	if a == nil || index < 0 || index >= a.Count || a.TilesPerRow == 0 {
		return [2]float32{0.5, 0.5}
	}

	size := float32(a.Size)
	tileUV := float32(a.TileSize) / size
	half := 0.5 / size

	baseU := float32(index%a.TilesPerRow) * tileUV
	baseV := float32(index/a.TilesPerRow) * tileUV
	span := tileUV - 2*half

	return [2]float32{
		baseU + half + clamp01(uv[0])*span,
		baseV + half + clamp01(uv[1])*span,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
