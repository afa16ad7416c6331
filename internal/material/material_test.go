package material

import (
	"errors"
	"image"
	"sync"
	"testing"
)

type fakeTextures struct {
	mu    sync.Mutex
	known map[string]*image.NRGBA
	loads map[string]int
}

func newFakeTextures(names ...string) *fakeTextures {
	f := &fakeTextures{known: make(map[string]*image.NRGBA), loads: make(map[string]int)}
	for _, n := range names {
		f.known[n] = image.NewNRGBA(image.Rect(0, 0, 4, 4))
	}
	return f
}

func (f *fakeTextures) LoadTexture(name string) (*image.NRGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[name]++
	if img, ok := f.known[name]; ok {
		return img, nil
	}
	return nil, errors.New("not found")
}

func lightmapsUpTo(n int) LightmapSource {
	return func(index int) *image.NRGBA {
		if index < 0 || index >= n {
			return nil
		}
		return image.NewNRGBA(image.Rect(0, 0, 128, 128))
	}
}

func TestResolveMaterial_Plain(t *testing.T) {
	tex := newFakeTextures("textures/base_wall/metal")
	lib := NewLibrary(tex, lightmapsUpTo(2), Options{UseTextures: true})

	m, ok := lib.ResolveMaterial("textures/base_wall/metal", 1)
	if !ok {
		t.Fatal("expected texture to resolve")
	}
	if m.Template != TemplatePlain {
		t.Errorf("expected plain template without lightmaps, got %v", m.Template)
	}
	if m.Texture == nil || m.Lightmap != nil || m.LightmapIndex != -1 {
		t.Errorf("unexpected material %+v", m)
	}
}

func TestResolveMaterial_Lightmapped(t *testing.T) {
	tex := newFakeTextures("textures/base_wall/metal")
	lib := NewLibrary(tex, lightmapsUpTo(2), Options{UseTextures: true, ApplyLightmaps: true})

	m, ok := lib.ResolveMaterial("textures/base_wall/metal", 1)
	if !ok {
		t.Fatal("expected texture to resolve")
	}
	if m.Template != TemplateLightmapped || m.LightmapIndex != 1 || m.Lightmap == nil {
		t.Errorf("expected lightmapped material for slot 1, got %+v", m)
	}

	// No lightmap slot keeps the plain template.
	plain, _ := lib.ResolveMaterial("textures/base_wall/metal", -1)
	if plain.Template != TemplatePlain {
		t.Errorf("expected plain template for lightmap -1, got %v", plain.Template)
	}

	// A slot the source cannot serve also falls back to plain.
	missing, _ := lib.ResolveMaterial("textures/base_wall/metal", 7)
	if missing.Template != TemplatePlain {
		t.Errorf("expected plain template for unknown lightmap, got %v", missing.Template)
	}
}

func TestResolveMaterial_Unresolved(t *testing.T) {
	tex := newFakeTextures()
	lib := NewLibrary(tex, nil, Options{UseTextures: true})

	m, ok := lib.ResolveMaterial("textures/missing", 0)
	if ok {
		t.Error("expected unresolved texture to report false")
	}
	if m != lib.Fallback() {
		t.Errorf("expected fallback material, got %+v", m)
	}
	if m.Template != TemplateFallback {
		t.Errorf("expected fallback template, got %v", m.Template)
	}

	// Failures are remembered; the source is not asked again.
	lib.ResolveMaterial("textures/missing", 3)
	if tex.loads["textures/missing"] != 1 {
		t.Errorf("expected one load attempt, got %d", tex.loads["textures/missing"])
	}
}

func TestResolveMaterial_TexturesDisabled(t *testing.T) {
	tex := newFakeTextures("textures/base_wall/metal")
	lib := NewLibrary(tex, nil, Options{UseTextures: false})

	m, ok := lib.ResolveMaterial("textures/base_wall/metal", 0)
	if !ok || m != lib.Fallback() {
		t.Errorf("expected fallback without diagnostic when textures are disabled, got %+v %v", m, ok)
	}
	if len(tex.loads) != 0 {
		t.Error("texture source should not be consulted")
	}

	nilSource := NewLibrary(nil, nil, Options{UseTextures: true})
	if m, ok := nilSource.ResolveMaterial("x", 0); !ok || m != nilSource.Fallback() {
		t.Errorf("expected fallback for nil source, got %+v %v", m, ok)
	}
}

func TestResolveMaterial_Cached(t *testing.T) {
	tex := newFakeTextures("a", "b")
	lib := NewLibrary(tex, lightmapsUpTo(4), Options{UseTextures: true, ApplyLightmaps: true})

	m1, _ := lib.ResolveMaterial("a", 0)
	m2, _ := lib.ResolveMaterial("a", 0)
	if m1 != m2 {
		t.Error("expected the same handle for the same (name, lightmap)")
	}
	m3, _ := lib.ResolveMaterial("a", 1)
	if m3 == m1 {
		t.Error("expected a distinct handle for a different lightmap")
	}
	lib.ResolveMaterial("b", 0)

	if lib.Len() != 3 {
		t.Errorf("expected 3 cached materials, got %d", lib.Len())
	}
	if tex.loads["a"] != 2 {
		t.Errorf("expected one load per distinct key, got %d", tex.loads["a"])
	}
}

func TestResolveMaterial_Concurrent(t *testing.T) {
	tex := newFakeTextures("a")
	lib := NewLibrary(tex, lightmapsUpTo(1), Options{UseTextures: true, ApplyLightmaps: true})

	var wg sync.WaitGroup
	results := make([]*Material, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = lib.ResolveMaterial("a", 0)
		}(i)
	}
	wg.Wait()

	for i, m := range results {
		if m != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestTemplateString(t *testing.T) {
	tests := map[Template]string{
		TemplateFallback:    "fallback",
		TemplatePlain:       "plain",
		TemplateLightmapped: "lightmapped",
	}
	for tpl, want := range tests {
		if got := tpl.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", tpl, got, want)
		}
	}
}
