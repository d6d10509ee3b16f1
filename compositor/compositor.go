// Package compositor builds the displaced, textured surface from a diffuse
// photo plus optional normal and depth maps that arrive in any order.
package compositor

import (
	"lightsim/core"
	"lightsim/renderer"
	"lightsim/scene"
)

const (
	SurfaceWidth    = 8
	SurfaceDepth    = 6
	SurfaceSegments = 100

	// DisplacementScale is the world-space height of a white depth texel.
	DisplacementScale = 0.5
)

// Assets names the three image inputs of the surface. An empty ref means
// the input is absent.
type Assets struct {
	Diffuse      string `json:"diffuse"`
	Normal       string `json:"normal"`
	Displacement string `json:"displacement"`
}

// Ref returns the ref for slot.
func (a Assets) Ref(slot scene.TextureSlot) string {
	switch slot {
	case scene.SlotDiffuse:
		return a.Diffuse
	case scene.SlotNormal:
		return a.Normal
	case scene.SlotDisplacement:
		return a.Displacement
	}
	return ""
}

// TextureLoader loads images in the background. done must run on the main
// goroutine; assets.Loader does that through its dispatcher.
type TextureLoader interface {
	LoadAsync(ref string, done func(*scene.Texture, error))
}

// ErrorHandler is told about every asset that failed to load.
type ErrorHandler func(slot scene.TextureSlot, ref string, err error)

var overlaySlots = [...]scene.TextureSlot{scene.SlotNormal, scene.SlotDisplacement}

// Compositor keeps at most one surface in the viewport's scene and keeps it
// in step with the latest Assets.
//
// Every load is tagged with the surface generation and a per-slot sequence
// number at the time it was started. A result whose tag is no longer current
// is dropped without touching the scene, so a slow load for a replaced photo
// can never resurrect it.
type Compositor struct {
	viewport *renderer.Viewport
	loader   TextureLoader
	onError  ErrorHandler

	assets     Assets
	generation uint64
	seq        [3]uint64

	surface  *scene.Node
	material *scene.Material

	// Overlay textures that resolved before the diffuse surface existed.
	parked [3]*scene.Texture
}

// New creates a compositor bound to v. The surface is rebuilt for the
// current assets every time v mounts a new scene.
func New(v *renderer.Viewport, loader TextureLoader) *Compositor {
	c := &Compositor{
		viewport: v,
		loader:   loader,
	}
	v.OnInit(c.remount)
	v.OnTeardown(c.unmount)
	return c
}

// SetErrorHandler installs fn as the failure callback. nil disables it.
func (c *Compositor) SetErrorHandler(fn ErrorHandler) {
	c.onError = fn
}

// Assets returns the refs last passed to SetAssets.
func (c *Compositor) Assets() Assets {
	return c.assets
}

// Surface returns the surface node, or nil when none is shown.
func (c *Compositor) Surface() *scene.Node {
	return c.surface
}

// Material returns the surface material, or nil when none is shown.
func (c *Compositor) Material() *scene.Material {
	return c.material
}

// SetAssets reconciles the scene with a. A new diffuse ref replaces the
// whole surface; new normal or displacement refs only swap that texture on
// the existing material.
func (c *Compositor) SetAssets(a Assets) {
	prev := c.assets
	c.assets = a

	if a.Diffuse != prev.Diffuse {
		c.rebuild()
		return
	}
	for _, slot := range overlaySlots {
		if a.Ref(slot) != prev.Ref(slot) {
			c.loadOverlay(slot)
		}
	}
}

// Clear removes the surface and forgets every ref.
func (c *Compositor) Clear() {
	c.SetAssets(Assets{})
}

func (c *Compositor) remount(h *renderer.SceneHandle) {
	// The previous handle and its GPU objects are gone.
	c.surface = nil
	c.material = nil
	c.rebuild()
}

// unmount forgets the surface of a torn-down scene. Its GPU objects were
// released with the scene; the assets are kept for the next mount.
func (c *Compositor) unmount() {
	c.generation++
	for i := range c.seq {
		c.seq[i]++
	}
	c.surface = nil
	c.material = nil
	c.parked = [3]*scene.Texture{}
}

func (c *Compositor) rebuild() {
	c.generation++
	for i := range c.seq {
		c.seq[i]++
	}
	c.parked = [3]*scene.Texture{}
	c.discardSurface()

	h := c.viewport.Handle()
	if h == nil {
		return
	}
	if c.assets.Diffuse == "" {
		c.viewport.RequestRepaint()
		return
	}

	gen, token := c.generation, c.seq[scene.SlotDiffuse]
	ref := c.assets.Diffuse
	core.Logger().Debug("surface load started", "ref", ref, "generation", gen)
	c.loader.LoadAsync(ref, func(tex *scene.Texture, err error) {
		c.diffuseLoaded(gen, token, ref, tex, err)
	})

	for _, slot := range overlaySlots {
		c.loadOverlay(slot)
	}
}

func (c *Compositor) discardSurface() {
	if c.surface == nil {
		return
	}
	if h := c.viewport.Handle(); h != nil {
		c.surface.Detach()
		h.Release(c.surface)
	}
	c.surface = nil
	c.material = nil
}

func (c *Compositor) current(gen, token uint64, slot scene.TextureSlot) bool {
	return gen == c.generation && token == c.seq[slot] && c.viewport.Handle() != nil
}

func (c *Compositor) diffuseLoaded(gen, token uint64, ref string, tex *scene.Texture, err error) {
	if !c.current(gen, token, scene.SlotDiffuse) {
		core.Logger().Debug("stale surface load dropped", "ref", ref, "generation", gen)
		return
	}
	if err != nil {
		core.Logger().Error("surface image failed", "ref", ref, "err", err)
		c.report(scene.SlotDiffuse, ref, err)
		return
	}

	mat := scene.DefaultMaterial()
	mat.Name = "SurfaceMaterial"
	mat.Side = scene.DoubleSide
	mat.DisplacementScale = DisplacementScale
	mat.SetTexture(scene.SlotDiffuse, tex)
	for _, slot := range overlaySlots {
		if t := c.parked[slot]; t != nil {
			mat.SetTexture(slot, t)
			c.parked[slot] = nil
		}
	}

	mesh := scene.CreatePlane(SurfaceWidth, SurfaceDepth, SurfaceSegments, SurfaceSegments)
	mesh.Material = mat

	node := scene.NewNode(renderer.SurfaceNodeName)
	node.Mesh = mesh

	c.viewport.Handle().Scene.AddNode(node)
	c.surface = node
	c.material = mat

	core.Logger().Debug("surface built", "ref", ref, "width", tex.Width, "height", tex.Height)
	c.viewport.RequestRepaint()
}

func (c *Compositor) loadOverlay(slot scene.TextureSlot) {
	c.seq[slot]++
	gen, token := c.generation, c.seq[slot]
	ref := c.assets.Ref(slot)

	if ref == "" {
		c.parked[slot] = nil
		if c.material != nil && c.material.Texture(slot) != nil {
			prev := c.material.SetTexture(slot, nil)
			if h := c.viewport.Handle(); h != nil {
				h.ReleaseTexture(prev)
			}
			c.viewport.RequestRepaint()
		}
		return
	}
	if c.viewport.Handle() == nil || c.assets.Diffuse == "" {
		return
	}

	c.loader.LoadAsync(ref, func(tex *scene.Texture, err error) {
		c.overlayLoaded(gen, token, slot, ref, tex, err)
	})
}

func (c *Compositor) overlayLoaded(gen, token uint64, slot scene.TextureSlot, ref string, tex *scene.Texture, err error) {
	if !c.current(gen, token, slot) {
		core.Logger().Debug("stale texture load dropped", "slot", slot, "ref", ref)
		return
	}
	if err != nil {
		core.Logger().Warn("texture failed, slot left empty", "slot", slot, "ref", ref, "err", err)
		c.report(slot, ref, err)
		return
	}

	if c.material == nil {
		c.parked[slot] = tex
		return
	}
	if prev := c.material.SetTexture(slot, tex); prev != nil {
		if h := c.viewport.Handle(); h != nil {
			h.ReleaseTexture(prev)
		}
	}
	core.Logger().Debug("texture applied", "slot", slot, "ref", ref)
	c.viewport.RequestRepaint()
}

func (c *Compositor) report(slot scene.TextureSlot, ref string, err error) {
	if c.onError != nil {
		c.onError(slot, ref, err)
	}
}
