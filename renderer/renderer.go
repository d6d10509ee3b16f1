package renderer

import (
	"fmt"

	"lightsim/core"
	"lightsim/internal/opengl"
	"lightsim/scene"
)

// glBackend adapts the OpenGL renderer to a window: frames are presented
// with SwapBuffers and resizes follow the framebuffer, not the window.
type glBackend struct {
	gl     *opengl.Renderer
	window *core.Window
}

// NewGLFactory returns a BackendFactory drawing into window. The window's
// GL context must be current on the calling goroutine.
func NewGLFactory(window *core.Window) BackendFactory {
	return func(width, height int) (Backend, error) {
		r, err := opengl.NewRenderer(width, height, window.SwapBuffers)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenGL renderer: %w", err)
		}
		core.Logger().Info("render backend initialized", "api", "opengl", "width", width, "height", height)
		return &glBackend{gl: r, window: window}, nil
	}
}

func (b *glBackend) Resize(width, height int) {
	fw, fh := b.window.GetFramebufferSize()
	if fw > 0 && fh > 0 {
		width, height = fw, fh
	}
	b.gl.Resize(width, height)
}

func (b *glBackend) Render(s *scene.Scene, cam *scene.Camera) error {
	return b.gl.Render(s, cam)
}

func (b *glBackend) ReleaseMesh(m *scene.Mesh)       { b.gl.ReleaseMesh(m) }
func (b *glBackend) ReleaseTexture(t *scene.Texture) { b.gl.ReleaseTexture(t) }
func (b *glBackend) Destroy()                        { b.gl.Destroy() }
