package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
)

// Scene is the root of the scene graph plus its lights and clear color.
type Scene struct {
	Root       *Node
	Lights     []*Light
	Background core.Color
}

type LightType int

const (
	LightTypeAmbient LightType = iota
	LightTypeDirectional
	LightTypePoint
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeAmbient:
		return "ambient"
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	}
	return "unknown"
}

// Light is a light source. Spot lights aim from Position along Direction;
// SpotAngle is the cone half-angle in radians, Penumbra the soft fraction of
// the cone (0..1), Range the cutoff distance (0 = unlimited) and Decay the
// distance falloff exponent.
type Light struct {
	Type      LightType
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     core.Color
	Intensity float32
	Range     float32
	SpotAngle float32
	Penumbra  float32
	Decay     float32
}

func NewScene() *Scene {
	return &Scene{
		Root:       NewNode("Root"),
		Lights:     make([]*Light, 0),
		Background: core.ColorBlack,
	}
}

func (s *Scene) AddNode(node *Node) {
	s.Root.AddChild(node)
}

func (s *Scene) AddLight(light *Light) {
	s.Lights = append(s.Lights, light)
}

func (s *Scene) RemoveLight(light *Light) {
	for i, l := range s.Lights {
		if l == light {
			s.Lights = append(s.Lights[:i], s.Lights[i+1:]...)
			return
		}
	}
}

// FindLight returns the first light of the given type, or nil.
func (s *Scene) FindLight(t LightType) *Light {
	for _, l := range s.Lights {
		if l != nil && l.Type == t {
			return l
		}
	}
	return nil
}

// GetVisibleNodes returns all visible nodes that carry a mesh.
func (s *Scene) GetVisibleNodes() []*Node {
	var visible []*Node
	s.Root.Traverse(func(node *Node) {
		if node.Visible && node.Mesh != nil {
			visible = append(visible, node)
		}
	})
	return visible
}

// CountNodes returns how many nodes below the root have the given name.
func (s *Scene) CountNodes(name string) int {
	n := 0
	s.Root.Traverse(func(node *Node) {
		if node != s.Root && node.Name == name {
			n++
		}
	})
	return n
}
