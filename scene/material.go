package scene

import "lightsim/core"

// TextureSlot names one of the texture inputs of a Material.
type TextureSlot int

const (
	SlotDiffuse TextureSlot = iota
	SlotNormal
	SlotDisplacement
)

func (s TextureSlot) String() string {
	switch s {
	case SlotDiffuse:
		return "diffuse"
	case SlotNormal:
		return "normal"
	case SlotDisplacement:
		return "displacement"
	}
	return "unknown"
}

// Side selects which triangle faces are shaded.
type Side int

const (
	FrontSide Side = iota
	DoubleSide
)

// Material describes Phong surface appearance for a mesh.
//
// Texture slots may be filled in any order after the mesh is in the scene.
// Every change to a slot bumps the version; the backend binds the current
// slots on each draw.
type Material struct {
	Name      string
	Albedo    core.Color // multiplied with the diffuse texture if set
	Specular  core.Color
	Shininess float32
	Unlit     bool // output raw albedo/texture color
	Side      Side

	DiffuseTexture *Texture

	// Tangent-space normal map (RGB 0..1 → XYZ -1..1).
	NormalTexture *Texture

	// Height map sampled in the vertex shader; red channel times
	// DisplacementScale offsets each vertex along its normal.
	DisplacementTexture *Texture
	DisplacementScale   float32

	version uint64
}

// DefaultMaterial returns a plain white matte Phong material.
func DefaultMaterial() *Material {
	return &Material{
		Name:      "Default",
		Albedo:    core.ColorWhite,
		Specular:  core.Color{R: 0.07, G: 0.07, B: 0.07, A: 1},
		Shininess: 30,
	}
}

// NewUnlitMaterial returns a flat-colored material that ignores lights.
func NewUnlitMaterial(name string, color core.Color) *Material {
	return &Material{
		Name:   name,
		Albedo: color,
		Unlit:  true,
		Side:   DoubleSide,
	}
}

// Texture returns the texture currently bound to slot.
func (m *Material) Texture(slot TextureSlot) *Texture {
	switch slot {
	case SlotDiffuse:
		return m.DiffuseTexture
	case SlotNormal:
		return m.NormalTexture
	case SlotDisplacement:
		return m.DisplacementTexture
	}
	return nil
}

// SetTexture binds tex to slot, flags the material for re-evaluation and
// returns the texture it replaced.
func (m *Material) SetTexture(slot TextureSlot, tex *Texture) *Texture {
	var prev *Texture
	switch slot {
	case SlotDiffuse:
		prev, m.DiffuseTexture = m.DiffuseTexture, tex
	case SlotNormal:
		prev, m.NormalTexture = m.NormalTexture, tex
	case SlotDisplacement:
		prev, m.DisplacementTexture = m.DisplacementTexture, tex
	default:
		return nil
	}
	m.version++
	return prev
}

// Textures returns every non-nil texture bound to the material.
func (m *Material) Textures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{m.DiffuseTexture, m.NormalTexture, m.DisplacementTexture} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Version increases on every slot change. Callers compare it to tell whether
// a material was touched since they last looked.
func (m *Material) Version() uint64 {
	return m.version
}
