package scene

import (
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
)

func TestCreatePlane(t *testing.T) {
	m := CreatePlane(8, 6, 4, 2)

	if len(m.Vertices) != 5*3 {
		t.Errorf("vertices: expected 15, got %d", len(m.Vertices))
	}
	if len(m.Indices) != 4*2*6 {
		t.Errorf("indices: expected 48, got %d", len(m.Indices))
	}

	first, last := m.Vertices[0], m.Vertices[len(m.Vertices)-1]
	if first.Position != (mgl32.Vec3{-4, 0, -3}) || first.UV != (mgl32.Vec2{0, 0}) {
		t.Errorf("first vertex: got %v uv %v", first.Position, first.UV)
	}
	if last.Position != (mgl32.Vec3{4, 0, 3}) || last.UV != (mgl32.Vec2{1, 1}) {
		t.Errorf("last vertex: got %v uv %v", last.Position, last.UV)
	}
	for i, v := range m.Vertices {
		if v.Normal != (mgl32.Vec3{0, 1, 0}) {
			t.Fatalf("vertex %d: expected +Y normal, got %v", i, v.Normal)
		}
		if !v.Tangent.ApproxEqualThreshold(mgl32.Vec3{1, 0, 0}, 1e-4) {
			t.Fatalf("vertex %d: expected +X tangent, got %v", i, v.Tangent)
		}
	}

	if p := CreatePlane(1, 1, 0, -3); len(p.Vertices) != 4 {
		t.Errorf("segment clamp: expected 4 vertices, got %d", len(p.Vertices))
	}
}

func TestCreateSpotHelper(t *testing.T) {
	m := CreateSpotHelper(0.5, 16, core.ColorWhite)
	if m.DrawMode != DrawLines {
		t.Errorf("DrawMode: expected lines, got %v", m.DrawMode)
	}
	if len(m.Vertices) != 17 {
		t.Errorf("vertices: expected apex + 16, got %d", len(m.Vertices))
	}
	if len(m.Indices)%2 != 0 {
		t.Errorf("indices: expected pairs, got %d", len(m.Indices))
	}
	if m.Material == nil || !m.Material.Unlit {
		t.Error("expected unlit material")
	}
}

func TestMaterialSlots(t *testing.T) {
	m := DefaultMaterial()
	a := NewSolidTexture("a", 1, 2, 3, 4)
	b := NewSolidTexture("b", 5, 6, 7, 8)

	v0 := m.Version()
	if prev := m.SetTexture(SlotNormal, a); prev != nil {
		t.Errorf("first set: expected no previous texture, got %v", prev.Name)
	}
	if prev := m.SetTexture(SlotNormal, b); prev != a {
		t.Error("second set: expected previous texture a")
	}
	if m.Texture(SlotNormal) != b || m.NormalTexture != b {
		t.Error("normal slot not updated")
	}
	if m.Version() != v0+2 {
		t.Errorf("version: expected %d, got %d", v0+2, m.Version())
	}

	m.SetTexture(SlotDisplacement, a)
	if got := len(m.Textures()); got != 2 {
		t.Errorf("Textures: expected 2, got %d", got)
	}
	if m.SetTexture(TextureSlot(9), a) != nil || m.Version() != v0+3 {
		t.Error("unknown slot: expected no change")
	}

	names := map[TextureSlot]string{SlotDiffuse: "diffuse", SlotNormal: "normal", SlotDisplacement: "displacement"}
	for slot, want := range names {
		if slot.String() != want {
			t.Errorf("String: expected %q, got %q", want, slot.String())
		}
	}
}

func TestNodeHierarchy(t *testing.T) {
	s := NewScene()
	parent := NewNode("Parent")
	child := NewNode("Child")
	child.Mesh = CreatePlane(1, 1, 1, 1)
	parent.AddChild(child)
	s.AddNode(parent)

	parent.SetPosition(mgl32.Vec3{1, 0, 0})
	child.SetPosition(mgl32.Vec3{0, 2, 0})
	p := child.GetWorldMatrix().Col(3).Vec3()
	if p != (mgl32.Vec3{1, 2, 0}) {
		t.Errorf("world position: expected (1,2,0), got %v", p)
	}

	parent.SetPosition(mgl32.Vec3{5, 0, 0})
	if p := child.GetWorldMatrix().Col(3).Vec3(); p != (mgl32.Vec3{5, 2, 0}) {
		t.Errorf("after parent move: expected (5,2,0), got %v", p)
	}

	if s.Root.Find("Child") != child || s.CountNodes("Child") != 1 {
		t.Error("Find/CountNodes: child not found")
	}
	if n := len(s.GetVisibleNodes()); n != 1 {
		t.Errorf("visible: expected 1, got %d", n)
	}

	child.Detach()
	if child.Parent != nil || s.CountNodes("Child") != 0 {
		t.Error("Detach: child still attached")
	}
}

func TestSceneLights(t *testing.T) {
	s := NewScene()
	amb := &Light{Type: LightTypeAmbient}
	spot := &Light{Type: LightTypeSpot}
	s.AddLight(amb)
	s.AddLight(spot)

	if s.FindLight(LightTypeSpot) != spot || s.FindLight(LightTypePoint) != nil {
		t.Error("FindLight: unexpected result")
	}
	s.RemoveLight(amb)
	if len(s.Lights) != 1 || s.FindLight(LightTypeAmbient) != nil {
		t.Error("RemoveLight: ambient still present")
	}
	if LightTypeSpot.String() != "spot" {
		t.Errorf("String: got %q", LightTypeSpot.String())
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{800, 600, 0, 800, 600},
		{800, 600, 1024, 800, 600},
		{8000, 6000, 4096, 4096, 3072},
		{600, 8000, 4000, 300, 4000},
		{10000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d): expected %dx%d, got %dx%d", tt.w, tt.h, tt.max, tt.wantW, tt.wantH, w, h)
		}
	}
}

func TestNewTextureFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})

	tex := NewTextureFromImage("red", img, 0)
	if tex.Width != 4 || tex.Height != 2 || len(tex.Pixels) != 4*2*4 {
		t.Fatalf("unexpected texture %dx%d (%d bytes)", tex.Width, tex.Height, len(tex.Pixels))
	}
	if tex.Pixels[0] != 255 || tex.Pixels[1] != 0 || tex.Pixels[3] != 255 {
		t.Errorf("top-left pixel: got %v", tex.Pixels[:4])
	}
}
