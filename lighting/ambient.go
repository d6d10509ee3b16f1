package lighting

import (
	"fmt"
	"strings"

	"lightsim/core"
	"lightsim/renderer"
)

type Mode int

const (
	Day Mode = iota
	Night
)

func (m Mode) String() string {
	if m == Night {
		return "night"
	}
	return "day"
}

// ParseMode accepts "day" or "night", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return Day, nil
	case "night":
		return Night, nil
	}
	return Day, fmt.Errorf("lighting: unknown mode %q", s)
}

// Preset is the look of one ambient mode.
type Preset struct {
	Background       core.Color
	AmbientIntensity float32
}

var (
	AmbientColor = core.ColorFromHex(0x404040)

	Presets = map[Mode]Preset{
		Day:   {Background: core.ColorFromHex(0xf0f0f0), AmbientIntensity: 0.6},
		Night: {Background: core.ColorFromHex(0x1a1a1a), AmbientIntensity: 0.2},
	}
)

// AmbientController switches the scene background and ambient light between
// the day and night presets. Changes are instant.
type AmbientController struct {
	viewport *renderer.Viewport
	mode     Mode
}

func NewAmbientController(v *renderer.Viewport, initial Mode) *AmbientController {
	a := &AmbientController{viewport: v, mode: initial}
	v.OnInit(a.apply)
	return a
}

func (a *AmbientController) Mode() Mode {
	return a.mode
}

// SetMode stores m and applies it to the mounted scene, if any.
func (a *AmbientController) SetMode(m Mode) {
	a.mode = m
	if h := a.viewport.Handle(); h != nil {
		a.apply(h)
		a.viewport.RequestRepaint()
	}
}

// Toggle flips between day and night and returns the new mode.
func (a *AmbientController) Toggle() Mode {
	if a.mode == Day {
		a.SetMode(Night)
	} else {
		a.SetMode(Day)
	}
	return a.mode
}

func (a *AmbientController) apply(h *renderer.SceneHandle) {
	p := Presets[a.mode]
	h.SetBackground(p.Background)
	h.Ambient.Color = AmbientColor
	h.Ambient.Intensity = p.AmbientIntensity
	core.Logger().Debug("ambient mode applied", "mode", a.mode)
}
