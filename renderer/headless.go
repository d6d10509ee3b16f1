package renderer

import (
	"sync"

	"lightsim/core"
	"lightsim/scene"
)

// HeadlessBackend draws nothing and records what it was asked to do. It
// backs the -headless mode of the binary and the package tests.
type HeadlessBackend struct {
	mu sync.Mutex

	Width, Height int
	Renders       int
	Destroyed     bool

	// Last frame, as seen by Render.
	LastBackground core.Color
	LastNodes      int

	ReleasedMeshes   []*scene.Mesh
	ReleasedTextures []*scene.Texture
}

// NewHeadlessFactory returns a factory and a pointer slice that collects
// every backend it creates.
func NewHeadlessFactory() (BackendFactory, *[]*HeadlessBackend) {
	var created []*HeadlessBackend
	factory := func(width, height int) (Backend, error) {
		b := &HeadlessBackend{Width: width, Height: height}
		created = append(created, b)
		return b, nil
	}
	return factory, &created
}

func (b *HeadlessBackend) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Width, b.Height = width, height
}

func (b *HeadlessBackend) Render(s *scene.Scene, cam *scene.Camera) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Renders++
	b.LastBackground = s.Background
	b.LastNodes = len(s.GetVisibleNodes())
	return nil
}

func (b *HeadlessBackend) ReleaseMesh(m *scene.Mesh) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReleasedMeshes = append(b.ReleasedMeshes, m)
}

func (b *HeadlessBackend) ReleaseTexture(t *scene.Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReleasedTextures = append(b.ReleasedTextures, t)
}

func (b *HeadlessBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Destroyed = true
}

// RenderCount returns how many frames were drawn.
func (b *HeadlessBackend) RenderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Renders
}
