package renderer

import (
	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
	"lightsim/scene"
)

const (
	SurfaceNodeName = "Surface"
	FixtureNodeName = "SpotFixture"
)

// SceneHandle bundles the live scene objects of one mounted viewport. It is
// created by Viewport.Init, invalidated by Viewport.Teardown and must only be
// touched from the main goroutine.
type SceneHandle struct {
	Scene   *scene.Scene
	Camera  *scene.Camera
	Ambient *scene.Light
	Spot    *scene.Light

	// Fixture follows the spot light: either the wire cone helper or a loaded
	// luminaire model.
	Fixture *scene.Node

	// StretchFixture scales the fixture along its axis to reach the target,
	// which is what the cone helper needs and a real model must not get.
	StretchFixture bool

	backend Backend
}

// SpotTarget is the point the spot light keeps aiming at.
var SpotTarget = mgl32.Vec3{0, 0, 0}

// AimSpot moves the spot light to pos, points it at target and carries the
// fixture along.
func (h *SceneHandle) AimSpot(pos, target mgl32.Vec3) {
	dir := target.Sub(pos)
	dist := dir.Len()
	if dist > 0 {
		dir = dir.Mul(1 / dist)
	} else {
		dir = mgl32.Vec3{0, -1, 0}
	}

	h.Spot.Position = pos
	h.Spot.Direction = dir

	if h.Fixture == nil {
		return
	}
	h.Fixture.SetPosition(pos)
	h.Fixture.SetRotation(rotationFromDown(dir))
	if h.StretchFixture && dist > 0 {
		h.Fixture.SetScale(mgl32.Vec3{dist, dist, dist})
	}
}

// rotationFromDown returns the rotation taking -Y onto dir.
func rotationFromDown(dir mgl32.Vec3) mgl32.Quat {
	down := mgl32.Vec3{0, -1, 0}
	if dir.ApproxEqual(down.Mul(-1)) {
		return mgl32.QuatRotate(mgl32.DegToRad(180), mgl32.Vec3{1, 0, 0})
	}
	return mgl32.QuatBetweenVectors(down, dir)
}

// SetBackground sets the clear color.
func (h *SceneHandle) SetBackground(c core.Color) {
	h.Scene.Background = c
}

// Surface returns the composed surface node, or nil when there is none.
func (h *SceneHandle) Surface() *scene.Node {
	for _, n := range h.Scene.Root.Children {
		if n.Name == SurfaceNodeName {
			return n
		}
	}
	return nil
}

// Release frees the GPU resources held by node and its descendants. The
// node itself is left untouched.
func (h *SceneHandle) Release(node *scene.Node) {
	if h.backend == nil || node == nil {
		return
	}
	node.Traverse(func(n *scene.Node) {
		if n.Mesh == nil {
			return
		}
		h.backend.ReleaseMesh(n.Mesh)
		if n.Mesh.Material != nil {
			for _, t := range n.Mesh.Material.Textures() {
				h.backend.ReleaseTexture(t)
			}
		}
	})
}

// ReleaseTexture frees the GPU copy of a single texture.
func (h *SceneHandle) ReleaseTexture(t *scene.Texture) {
	if h.backend == nil || t == nil {
		return
	}
	h.backend.ReleaseTexture(t)
}
