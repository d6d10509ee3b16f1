package lighting

import (
	"lightsim/core"
	"lightsim/renderer"
	"lightsim/service"
)

// Synchronizer applies lighting results to the viewport's spot light. It
// remembers the last applied parameters and replays them whenever the
// viewport mounts a new scene.
type Synchronizer struct {
	viewport *renderer.Viewport
	last     *LightParameters
}

func NewSynchronizer(v *renderer.Viewport) *Synchronizer {
	s := &Synchronizer{viewport: v}
	v.OnInit(s.remount)
	return s
}

// Apply moves the spot light to p's position and sets its intensity. It
// reports false and changes nothing when p has no position.
func (s *Synchronizer) Apply(p LightParameters) bool {
	if p.Position == nil {
		core.Logger().Debug("lighting result without position ignored")
		return false
	}
	pos := *p.Position
	s.last = &LightParameters{Position: &pos, Lumens: p.Lumens}

	if h := s.viewport.Handle(); h != nil {
		s.applyTo(h, *s.last)
		s.viewport.RequestRepaint()
	}
	return true
}

// ApplyResult applies a lighting computation result.
func (s *Synchronizer) ApplyResult(res *service.LightingResult) bool {
	return s.Apply(FromResult(res))
}

// Last returns the last applied parameters, if any.
func (s *Synchronizer) Last() (LightParameters, bool) {
	if s.last == nil {
		return LightParameters{}, false
	}
	return *s.last, true
}

// Reset forgets the last result. The live light stays where it is until the
// next mount.
func (s *Synchronizer) Reset() {
	s.last = nil
}

func (s *Synchronizer) remount(h *renderer.SceneHandle) {
	if s.last != nil {
		s.applyTo(h, *s.last)
	}
}

func (s *Synchronizer) applyTo(h *renderer.SceneHandle, p LightParameters) {
	world := MapPosition(*p.Position)
	h.AimSpot(world, renderer.SpotTarget)
	h.Spot.Intensity = NormalizedIntensity(p.Lumens)

	core.Logger().Debug("spot light updated",
		"position", world,
		"intensity", h.Spot.Intensity,
		"lumens", p.Lumens)
}
