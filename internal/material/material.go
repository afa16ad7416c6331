// Package material resolves texture names and lightmap slots into materials.
package material

import (
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/bspmesh/internal/logger"
)

// Template selects the shading setup a renderer should instantiate.
type Template int

const (
	TemplateFallback    Template = iota // No texture could be resolved
	TemplatePlain                       // Base texture only
	TemplateLightmapped                 // Base texture modulated by a lightmap
)

// String returns a human-readable template name.
func (t Template) String() string {
	switch t {
	case TemplatePlain:
		return "plain"
	case TemplateLightmapped:
		return "lightmapped"
	default:
		return "fallback"
	}
}

// Material is an opaque handle handed to the renderer with a combined mesh.
type Material struct {
	Name          string // Texture name the material was resolved for
	Template      Template
	Texture       *image.NRGBA // nil for the fallback material
	LightmapIndex int          // -1 when not lightmapped
	Lightmap      *image.NRGBA
}

// TextureSource loads a decoded texture by its base name (no extension).
type TextureSource interface {
	LoadTexture(name string) (*image.NRGBA, error)
}

// LightmapSource returns the pixels of a lightmap slot, or nil if there is none.
type LightmapSource func(index int) *image.NRGBA

// Options controls how materials are built.
type Options struct {
	UseTextures    bool // Resolve real textures; otherwise every face gets the fallback
	ApplyLightmaps bool // Attach lightmaps to faces that reference one
}

type cacheKey struct {
	name     string
	lightmap int
}

// Library resolves and caches materials. It is safe for concurrent use.
type Library struct {
	textures  TextureSource
	lightmaps LightmapSource
	opts      Options
	fallback  *Material

	mu        sync.Mutex
	materials map[cacheKey]*Material
	missing   map[string]bool
}

// NewLibrary creates a library. textures and lightmaps may be nil.
func NewLibrary(textures TextureSource, lightmaps LightmapSource, opts Options) *Library {
	return &Library{
		textures:  textures,
		lightmaps: lightmaps,
		opts:      opts,
		fallback:  &Material{Name: "fallback", Template: TemplateFallback, LightmapIndex: -1},
		materials: make(map[cacheKey]*Material),
		missing:   make(map[string]bool),
	}
}

// Fallback returns the designated material for unresolvable textures.
func (l *Library) Fallback() *Material {
	return l.fallback
}

// ResolveMaterial returns the material for a texture name and lightmap slot.
// ok is false when the texture could not be found; the fallback material is
// returned in that case. Resolution never fails hard.
func (l *Library) ResolveMaterial(name string, lightmapIndex int) (mat *Material, ok bool) {
	if !l.opts.UseTextures || l.textures == nil {
		return l.fallback, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.missing[name] {
		return l.fallback, false
	}

	key := cacheKey{name: name, lightmap: lightmapIndex}
	if m, exists := l.materials[key]; exists {
		return m, true
	}

	tex, err := l.textures.LoadTexture(name)
	if err != nil {
		logger.Debug("Failed to find texture", zap.String("texture", name), zap.Error(err))
		l.missing[name] = true
		return l.fallback, false
	}

	m := &Material{
		Name:          name,
		Template:      TemplatePlain,
		Texture:       tex,
		LightmapIndex: -1,
	}
	if lightmapIndex >= 0 && l.opts.ApplyLightmaps && l.lightmaps != nil {
		if lm := l.lightmaps(lightmapIndex); lm != nil {
			m.Template = TemplateLightmapped
			m.LightmapIndex = lightmapIndex
			m.Lightmap = lm
		}
	}

	l.materials[key] = m
	return m, true
}

// Len returns the number of cached materials.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.materials)
}
