package renderer

import (
	"errors"
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
	"lightsim/scene"
)

var ErrNoBackend = errors.New("renderer: no backend factory")

type ViewportConfig struct {
	FOV            float32 // vertical, degrees
	Near           float32
	Far            float32
	CameraPosition mgl32.Vec3
	CameraTarget   mgl32.Vec3

	SpotPosition  mgl32.Vec3
	SpotColor     core.Color
	SpotIntensity float32
	SpotRange     float32
	SpotAngle     float32 // half-angle, radians
	SpotPenumbra  float32
	SpotDecay     float32

	AmbientColor     core.Color
	AmbientIntensity float32
	Background       core.Color

	// LoadFixture, when set, supplies a luminaire model for the spot light.
	// On error the wire cone helper is used instead.
	LoadFixture func() (*scene.Node, error)
}

func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		FOV:            75,
		Near:           0.1,
		Far:            1000,
		CameraPosition: mgl32.Vec3{0, 0, 5},
		CameraTarget:   mgl32.Vec3{0, 0, 0},

		SpotPosition:  mgl32.Vec3{0, 5, 5},
		SpotColor:     core.ColorWhite,
		SpotIntensity: 1,
		SpotRange:     100,
		SpotAngle:     stdmath.Pi / 6,
		SpotPenumbra:  0.5,
		SpotDecay:     2,

		AmbientColor:     core.ColorFromHex(0x404040),
		AmbientIntensity: 0.6,
		Background:       core.ColorFromHex(0xf0f0f0),
	}
}

// Viewport owns at most one SceneHandle at a time and decides when a frame
// is drawn. Nothing renders unless RequestRepaint was called since the last
// frame, or the surface was resized.
//
// All methods must be called from the main goroutine.
type Viewport struct {
	config  ViewportConfig
	factory BackendFactory
	surface Surface
	wake    func()

	handle      *SceneHandle
	initialized bool
	dirty       bool
	width       int
	height      int
	frames      int

	initHooks     []func(*SceneHandle)
	teardownHooks []func()
}

// NewViewport creates an unmounted viewport. wake is called whenever a
// repaint is requested so an idle event loop picks it up; it may be nil.
func NewViewport(config ViewportConfig, factory BackendFactory, wake func()) *Viewport {
	return &Viewport{
		config:  config,
		factory: factory,
		wake:    wake,
	}
}

// SetSurface attaches the window used by ToggleFullscreen.
func (v *Viewport) SetSurface(s Surface) {
	v.surface = s
}

// OnInit registers fn to run every time a new SceneHandle is created, after
// the default scene is built and before the first frame.
func (v *Viewport) OnInit(fn func(*SceneHandle)) {
	v.initHooks = append(v.initHooks, fn)
}

// OnTeardown registers fn to run every time the mounted SceneHandle is torn
// down, after its GPU resources are released.
func (v *Viewport) OnTeardown(fn func()) {
	v.teardownHooks = append(v.teardownHooks, fn)
}

// Init mounts the viewport. A second call while mounted is a no-op.
func (v *Viewport) Init(width, height int) error {
	if v.initialized {
		return nil
	}
	if v.factory == nil {
		return ErrNoBackend
	}

	backend, err := v.factory(width, height)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	v.handle = v.buildScene(backend, width, height)
	v.width, v.height = width, height
	v.initialized = true

	core.Logger().Info("viewport initialized", "width", width, "height", height)

	for _, fn := range v.initHooks {
		fn(v.handle)
	}
	v.RequestRepaint()
	return nil
}

func (v *Viewport) buildScene(backend Backend, width, height int) *SceneHandle {
	c := v.config

	s := scene.NewScene()
	s.Background = c.Background

	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	cam := scene.NewCamera(c.FOV, aspect, c.Near, c.Far)
	cam.SetPosition(c.CameraPosition)
	cam.LookAt(c.CameraTarget, mgl32.Vec3{0, 1, 0})

	ambient := &scene.Light{
		Type:      scene.LightTypeAmbient,
		Color:     c.AmbientColor,
		Intensity: c.AmbientIntensity,
	}
	spot := &scene.Light{
		Type:      scene.LightTypeSpot,
		Color:     c.SpotColor,
		Intensity: c.SpotIntensity,
		Range:     c.SpotRange,
		SpotAngle: c.SpotAngle,
		Penumbra:  c.SpotPenumbra,
		Decay:     c.SpotDecay,
	}
	s.AddLight(ambient)
	s.AddLight(spot)

	h := &SceneHandle{
		Scene:   s,
		Camera:  cam,
		Ambient: ambient,
		Spot:    spot,
		backend: backend,
	}

	if c.LoadFixture != nil {
		fixture, err := c.LoadFixture()
		if err != nil {
			core.Logger().Warn("fixture model unavailable, using helper", "err", err)
		} else {
			fixture.Name = FixtureNodeName
			h.Fixture = fixture
		}
	}
	if h.Fixture == nil {
		h.Fixture = scene.NewNode(FixtureNodeName)
		h.Fixture.Mesh = scene.CreateSpotHelper(c.SpotAngle, 16, c.SpotColor)
		h.StretchFixture = true
	}
	s.AddNode(h.Fixture)

	h.AimSpot(c.SpotPosition, SpotTarget)
	return h
}

// Initialized reports whether a SceneHandle is live.
func (v *Viewport) Initialized() bool {
	return v.initialized
}

// Handle returns the live SceneHandle, or nil when unmounted.
func (v *Viewport) Handle() *SceneHandle {
	return v.handle
}

// Size returns the last known drawable size.
func (v *Viewport) Size() (int, int) {
	return v.width, v.height
}

// RequestRepaint schedules one frame.
func (v *Viewport) RequestRepaint() {
	v.dirty = true
	if v.wake != nil {
		v.wake()
	}
}

// Dirty reports whether a frame is pending.
func (v *Viewport) Dirty() bool {
	return v.dirty
}

// Frames returns how many frames have been drawn since creation.
func (v *Viewport) Frames() int {
	return v.frames
}

// Flush draws a frame if one is pending and reports whether it did.
func (v *Viewport) Flush() (bool, error) {
	if !v.initialized || !v.dirty {
		return false, nil
	}
	v.dirty = false
	if err := v.handle.backend.Render(v.handle.Scene, v.handle.Camera); err != nil {
		return false, fmt.Errorf("render: %w", err)
	}
	v.frames++
	return true, nil
}

// Resize adapts the camera and backend to a new drawable size and redraws
// at once. Before Init it does nothing.
func (v *Viewport) Resize(width, height int) {
	if !v.initialized {
		return
	}
	if width <= 0 || height <= 0 {
		// Minimised window.
		return
	}
	v.width, v.height = width, height
	v.handle.Camera.UpdateAspectRatio(float32(width), float32(height))
	v.handle.backend.Resize(width, height)

	v.dirty = true
	if _, err := v.Flush(); err != nil {
		core.Logger().Error("resize repaint failed", "err", err)
	}
}

// ResetCamera restores the initial camera pose.
func (v *Viewport) ResetCamera() {
	if !v.initialized {
		return
	}
	cam := v.handle.Camera
	cam.SetPosition(v.config.CameraPosition)
	cam.LookAt(v.config.CameraTarget, mgl32.Vec3{0, 1, 0})
	v.RequestRepaint()
}

// ToggleFullscreen flips the surface between windowed and fullscreen and
// returns the new state. The size change arrives later through Resize.
func (v *Viewport) ToggleFullscreen() bool {
	if v.surface == nil {
		return false
	}
	enabled := !v.surface.IsFullscreen()
	v.surface.SetFullscreen(enabled)
	return enabled
}

// Teardown releases every GPU resource of the mounted scene and the backend
// itself. Calling it again, or before Init, does nothing.
func (v *Viewport) Teardown() {
	if !v.initialized {
		return
	}
	h := v.handle
	h.Release(h.Scene.Root)
	h.backend.Destroy()
	h.backend = nil

	v.handle = nil
	v.initialized = false
	v.dirty = false

	for _, fn := range v.teardownHooks {
		fn()
	}

	core.Logger().Info("viewport torn down", "frames", v.frames)
}
