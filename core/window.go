package core

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GLFW and the GL context must stay on the main OS thread.
	runtime.LockOSThread()
}

type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string

	fullscreen bool
	windowedX  int
	windowedY  int
	windowedW  int
	windowedH  int

	onResize func(width, height int)
}

type WindowConfig struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Title      string `json:"title"`
	Resizable  bool   `json:"resizable"`
	VSync      bool   `json:"vsync"`
	Fullscreen bool   `json:"fullscreen"`
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:      1280,
		Height:     720,
		Title:      "Lighting Preview",
		Resizable:  true,
		VSync:      true,
		Fullscreen: false,
	}
}

// NewWindow initialises GLFW, opens a window with an OpenGL 4.1 core context
// and makes that context current on the calling thread.
func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Samples, 4)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	monitor := (*glfw.Monitor)(nil)
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	window := &Window{
		Handle:     handle,
		Width:      config.Width,
		Height:     config.Height,
		Title:      config.Title,
		fullscreen: config.Fullscreen,
		windowedW:  config.Width,
		windowedH:  config.Height,
	}

	handle.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
		if window.onResize != nil {
			window.onResize(width, height)
		}
	})

	return window, nil
}

// SetResizeCallback registers fn for framebuffer size changes, including the
// ones caused by SetFullscreen.
func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.onResize = fn
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

// WaitEvents blocks until at least one event arrives. Wake unblocks it from
// another goroutine.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// Wake posts an empty event so a pending WaitEvents returns. Safe from any
// goroutine.
func (w *Window) Wake() {
	glfw.PostEmptyEvent()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

func (w *Window) GetFramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

// IsFullscreen reports whether the window currently covers a monitor.
func (w *Window) IsFullscreen() bool {
	return w.fullscreen
}

// SetFullscreen moves the window onto the primary monitor or back to its
// last windowed placement.
func (w *Window) SetFullscreen(enabled bool) {
	if enabled == w.fullscreen {
		return
	}
	if enabled {
		w.windowedX, w.windowedY = w.Handle.GetPos()
		w.windowedW, w.windowedH = w.Handle.GetSize()
		monitor := glfw.GetPrimaryMonitor()
		mode := monitor.GetVideoMode()
		w.Handle.SetMonitor(monitor, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	} else {
		w.Handle.SetMonitor(nil, w.windowedX, w.windowedY, w.windowedW, w.windowedH, 0)
	}
	w.fullscreen = enabled
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

// KeyCallback receives key presses (not releases or repeats).
type KeyCallback func(key int)

func (w *Window) SetKeyCallback(cb KeyCallback) {
	w.Handle.SetKeyCallback(func(win *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Press {
			cb(int(key))
		}
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const (
	KeyF        = int(glfw.KeyF)
	KeyN        = int(glfw.KeyN)
	KeyR        = int(glfw.KeyR)
	KeyEscape   = int(glfw.KeyEscape)
	KeyRight    = int(glfw.KeyRight)
	KeyLeft     = int(glfw.KeyLeft)
	KeyDown     = int(glfw.KeyDown)
	KeyUp       = int(glfw.KeyUp)
	KeyPageUp   = int(glfw.KeyPageUp)
	KeyPageDown = int(glfw.KeyPageDown)
)
