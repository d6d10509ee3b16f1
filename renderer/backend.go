package renderer

import "lightsim/scene"

// Backend draws a scene into the current drawing surface. Implementations
// own every GPU object they create and must only be used from the goroutine
// that owns the graphics context.
type Backend interface {
	// Resize updates the drawable size in pixels.
	Resize(width, height int)

	// Render draws one frame of s as seen from cam and presents it.
	Render(s *scene.Scene, cam *scene.Camera) error

	// ReleaseMesh frees the GPU buffers of m. Meshes never uploaded are ignored.
	ReleaseMesh(m *scene.Mesh)

	// ReleaseTexture frees the GPU copy of t. Textures never uploaded are ignored.
	ReleaseTexture(t *scene.Texture)

	// Destroy frees every remaining GPU object. The backend is unusable after.
	Destroy()
}

// BackendFactory creates a Backend for a surface of the given size.
type BackendFactory func(width, height int) (Backend, error)

// Surface is the window-system side of a viewport.
type Surface interface {
	IsFullscreen() bool
	SetFullscreen(enabled bool)
}
