package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path"
	"strings"

	"github.com/ftrvxmtrx/tga"
	xdraw "golang.org/x/image/draw"
)

// tgaFooterSize is the length of the optional TGA 2.0 footer. The decoder
// seeks that far back from the end of every file.
const tgaFooterSize = 26

// textureExtensions lists the formats tried for an extension-less texture
// name, in priority order.
var textureExtensions = []string{".tga", ".jpg"}

// LoadTexture loads and decodes a texture by its shader name, for example
// "textures/base_floor/diamond2c". A TGA shadows a JPEG of the same name.
func (m *Manager) LoadTexture(name string) (*image.NRGBA, error) {
	var lastErr error
	for _, candidate := range textureCandidates(name) {
		data, err := m.Load(candidate)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		img, err := DecodeImage(candidate, data)
		if err != nil {
			lastErr = err
			continue
		}
		return img, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: texture %s", ErrNotFound, name)
}

func textureCandidates(name string) []string {
	ext := strings.ToLower(path.Ext(name))
	base := name
	for _, known := range textureExtensions {
		if ext == known {
			base = strings.TrimSuffix(name, path.Ext(name))
			break
		}
	}

	candidates := make([]string, 0, len(textureExtensions))
	for _, e := range textureExtensions {
		candidates = append(candidates, base+e)
	}
	return candidates
}

// DecodeImage decodes TGA or JPEG data, chosen by the extension of name,
// and returns it as NRGBA.
func DecodeImage(name string, data []byte) (*image.NRGBA, error) {
	var (
		img image.Image
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".tga":
		if len(data) < tgaFooterSize {
			padded := make([]byte, tgaFooterSize)
			copy(padded, data)
			data = padded
		}
		img, err = tga.Decode(bytes.NewReader(data))
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported image format: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return ToNRGBA(img), nil
}

// ToNRGBA converts any image to NRGBA with its origin at (0, 0).
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}
