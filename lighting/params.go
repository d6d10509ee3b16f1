// Package lighting keeps the live spot light and ambient light in step with
// computed lighting results and the day/night mode.
package lighting

import (
	"github.com/go-gl/mathgl/mgl32"

	"lightsim/service"
)

const (
	// DefaultLumens stands in for a missing or zero lumens value.
	DefaultLumens = 2000

	lumensPerUnit = 5000
	MinIntensity  = 0.1
	MaxIntensity  = 2

	// Surface extent and light height range in world units.
	spanX      = 8
	spanZ      = 6
	heightSpan = 8
	minHeight  = 2
)

// Position is a normalized light position. X and Y run across the photo,
// Z is height above it; each axis is in [0,1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DefaultPosition is centred over the photo, high up.
var DefaultPosition = Position{X: 0.5, Y: 0.5, Z: 0.8}

// LightParameters is the part of a lighting result that drives the scene.
// A nil Position means the result carried no placement.
type LightParameters struct {
	Position *Position `json:"position"`
	Lumens   float64   `json:"lumens"`
}

// MapPosition converts a normalized position to world space. The photo
// spans x in [-4,4] and z in [-3,3]; height runs from 2 to 10.
func MapPosition(p Position) mgl32.Vec3 {
	return mgl32.Vec3{
		float32((p.X - 0.5) * spanX),
		float32(p.Z*heightSpan + minHeight),
		float32((p.Y - 0.5) * spanZ),
	}
}

// NormalizedIntensity maps lumens to a light intensity in [0.1, 2]. Zero
// lumens counts as absent and uses DefaultLumens.
func NormalizedIntensity(lumens float64) float32 {
	if lumens == 0 {
		lumens = DefaultLumens
	}
	return mgl32.Clamp(float32(lumens/lumensPerUnit), MinIntensity, MaxIntensity)
}

// FromResult extracts the light parameters of a lighting computation.
func FromResult(res *service.LightingResult) LightParameters {
	if res == nil || res.LightInfo == nil {
		return LightParameters{}
	}
	p := LightParameters{Lumens: res.LightInfo.Lumens}
	if pos := res.LightInfo.Position; pos != nil {
		p.Position = &Position{X: pos.X, Y: pos.Y, Z: pos.Z}
	}
	return p
}

// ToService converts p for a lighting request.
func (p Position) ToService() service.Position {
	return service.Position{X: p.X, Y: p.Y, Z: p.Z}
}
