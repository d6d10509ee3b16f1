package lighting

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"lightsim/renderer"
	"lightsim/service"
)

func mountedViewport(t *testing.T) *renderer.Viewport {
	t.Helper()
	factory, _ := renderer.NewHeadlessFactory()
	return renderer.NewViewport(renderer.DefaultViewportConfig(), factory, nil)
}

func TestNormalizedIntensity(t *testing.T) {
	tests := []struct {
		lumens float64
		want   float32
	}{
		{0, 0.4},
		{2000, 0.4},
		{5000, 1.0},
		{10000, 2.0},
		{100, 0.1},
		{1e9, 2.0},
		{-300, 0.1},
	}
	for _, tt := range tests {
		if got := NormalizedIntensity(tt.lumens); got != tt.want {
			t.Errorf("NormalizedIntensity(%v): expected %v, got %v", tt.lumens, tt.want, got)
		}
	}

	for l := 0.0; l < 20000; l += 137 {
		if got := NormalizedIntensity(l); got < MinIntensity || got > MaxIntensity {
			t.Errorf("NormalizedIntensity(%v) = %v out of range", l, got)
		}
	}
}

func TestMapPosition(t *testing.T) {
	tests := []struct {
		p    Position
		want mgl32.Vec3
	}{
		{Position{0.5, 0.5, 0}, mgl32.Vec3{0, 2, 0}},
		{Position{0, 0, 1}, mgl32.Vec3{-4, 10, -3}},
		{Position{1, 1, 0.5}, mgl32.Vec3{4, 6, 3}},
		{Position{0.5, 0.5, 0.8}, mgl32.Vec3{0, 8.4, 0}},
	}
	for _, tt := range tests {
		got := MapPosition(tt.p)
		if !got.ApproxEqualThreshold(tt.want, 1e-5) {
			t.Errorf("MapPosition(%v): expected %v, got %v", tt.p, tt.want, got)
		}
	}

	for x := 0.0; x <= 1; x += 0.1 {
		for z := 0.0; z <= 1; z += 0.1 {
			p := Position{x, 1 - x, z}
			if MapPosition(p) != MapPosition(p) {
				t.Fatalf("MapPosition(%v) not deterministic", p)
			}
		}
	}
}

func TestApplyMovesSpot(t *testing.T) {
	v := mountedViewport(t)
	s := NewSynchronizer(v)
	v.Init(800, 600)
	v.Flush()

	ok := s.Apply(LightParameters{Position: &Position{1, 0, 0.5}, Lumens: 5000})
	if !ok {
		t.Fatal("Apply: expected true")
	}
	h := v.Handle()
	if h.Spot.Position != (mgl32.Vec3{4, 6, -3}) {
		t.Errorf("spot position: got %v", h.Spot.Position)
	}
	if h.Spot.Intensity != 1 {
		t.Errorf("spot intensity: expected 1, got %v", h.Spot.Intensity)
	}
	if h.Fixture.Transform.Position != h.Spot.Position {
		t.Error("fixture did not follow the spot light")
	}
	if !v.Dirty() {
		t.Error("Apply: expected repaint")
	}
}

func TestApplyIdempotent(t *testing.T) {
	v := mountedViewport(t)
	s := NewSynchronizer(v)
	v.Init(800, 600)

	p := LightParameters{Position: &Position{0.3, 0.7, 0.2}, Lumens: 1200}
	s.Apply(p)
	first := *v.Handle().Spot
	s.Apply(p)
	if *v.Handle().Spot != first {
		t.Errorf("second Apply changed the light: %+v vs %+v", first, *v.Handle().Spot)
	}
}

func TestApplyWithoutPosition(t *testing.T) {
	v := mountedViewport(t)
	s := NewSynchronizer(v)
	v.Init(800, 600)
	v.Flush()
	before := *v.Handle().Spot

	if s.Apply(LightParameters{Lumens: 9000}) {
		t.Error("Apply without position: expected false")
	}
	if s.ApplyResult(&service.LightingResult{Success: true}) {
		t.Error("ApplyResult without light_info: expected false")
	}
	if *v.Handle().Spot != before || v.Dirty() {
		t.Error("Apply without position changed the scene")
	}
	if _, ok := s.Last(); ok {
		t.Error("Last: expected nothing recorded")
	}
}

func TestApplyResult(t *testing.T) {
	v := mountedViewport(t)
	s := NewSynchronizer(v)
	v.Init(800, 600)

	ok := s.ApplyResult(&service.LightingResult{
		Success: true,
		LightInfo: &service.LightInfo{
			Position: &service.Position{X: 0.5, Y: 0.5, Z: 0},
		},
	})
	if !ok {
		t.Fatal("ApplyResult: expected true")
	}
	if got := v.Handle().Spot.Intensity; got != 0.4 {
		t.Errorf("missing lumens: expected 0.4, got %v", got)
	}
}

func TestApplyReplayedOnRemount(t *testing.T) {
	v := mountedViewport(t)
	s := NewSynchronizer(v)

	// Before mount the value is remembered only.
	s.Apply(LightParameters{Position: &Position{0, 1, 1}, Lumens: 10000})
	v.Init(800, 600)
	want := mgl32.Vec3{-4, 10, 3}
	if v.Handle().Spot.Position != want || v.Handle().Spot.Intensity != 2 {
		t.Errorf("init: expected replayed light, got %+v", *v.Handle().Spot)
	}

	v.Teardown()
	v.Init(800, 600)
	if v.Handle().Spot.Position != want {
		t.Errorf("remount: expected replayed light, got %v", v.Handle().Spot.Position)
	}
}

func TestAmbientRoundTrip(t *testing.T) {
	v := mountedViewport(t)
	a := NewAmbientController(v, Day)
	v.Init(800, 600)
	h := v.Handle()

	dayBg, dayIntensity := h.Scene.Background, h.Ambient.Intensity
	if dayBg.Hex() != 0xf0f0f0 || dayIntensity != 0.6 {
		t.Errorf("day: got %06x %v", dayBg.Hex(), dayIntensity)
	}

	a.SetMode(Night)
	if h.Scene.Background.Hex() != 0x1a1a1a || h.Ambient.Intensity != 0.2 {
		t.Errorf("night: got %06x %v", h.Scene.Background.Hex(), h.Ambient.Intensity)
	}
	if h.Ambient.Color.Hex() != 0x404040 {
		t.Errorf("ambient color: got %06x", h.Ambient.Color.Hex())
	}

	a.SetMode(Day)
	if h.Scene.Background != dayBg || h.Ambient.Intensity != dayIntensity {
		t.Error("Day→Night→Day did not restore the day state exactly")
	}
}

func TestAmbientBeforeInit(t *testing.T) {
	v := mountedViewport(t)
	a := NewAmbientController(v, Day)
	a.SetMode(Night)
	if v.Dirty() {
		t.Error("SetMode before init requested a repaint")
	}

	v.Init(800, 600)
	if v.Handle().Ambient.Intensity != 0.2 {
		t.Error("stored mode not applied at init")
	}
	if a.Toggle() != Day || v.Handle().Ambient.Intensity != 0.6 {
		t.Error("Toggle: expected day")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"day": Day, "Night": Night, " NIGHT ": Night} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): expected %v, got %v %v", in, want, got, err)
		}
	}
	if _, err := ParseMode("dusk"); err == nil {
		t.Error("ParseMode(dusk): expected error")
	}
}
