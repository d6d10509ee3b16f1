// Package controls turns user input (position nudges, luminaire choice,
// dimmer) into lighting requests, coalescing bursts of input.
package controls

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"lightsim/core"
	"lightsim/lighting"
	"lightsim/service"
)

const (
	// Step is the position change per nudge.
	Step = 0.1

	DefaultDelay          = 100 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
)

type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "unknown"
}

func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("controls: unknown axis %q", s)
}

// Luminaire is the product whose light is being previewed.
type Luminaire struct {
	ID        string  `json:"id"`
	LightType string  `json:"light_type"`
	Wattage   float64 `json:"wattage"`
	Lumens    float64 `json:"lumens"`
}

// Requester computes lighting. *service.Client implements it.
type Requester interface {
	CalculateLighting(ctx context.Context, req service.LightingRequest) (*service.LightingResult, error)
}

// Scheduler runs fn once after d on any goroutine. The returned function
// cancels the call if it has not started.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func timeScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

type Option func(*Controller)

// WithDelay sets the quiet period after the last nudge.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.after = s }
}

// WithRequestTimeout bounds each lighting request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// Controller owns the light position the user is steering. Its methods must
// be called from the main goroutine; timer fires and responses are
// marshalled back through the dispatcher.
//
// Every nudge updates the position immediately and restarts a trailing
// timer. Only when the timer runs out is a request sent, carrying the
// position at that moment. Each request gets a sequence number and a
// response is dropped unless it answers the newest request.
type Controller struct {
	dispatcher *core.Dispatcher
	requester  Requester
	delay      time.Duration
	timeout    time.Duration
	after      Scheduler

	position  lighting.Position
	luminaire *Luminaire
	dimmer    float64

	stop  func() bool
	armed uint64
	seq   uint64

	onResult   func(*service.LightingResult)
	onError    func(error)
	onPosition func(lighting.Position)
}

func NewController(d *core.Dispatcher, r Requester, options ...Option) *Controller {
	c := &Controller{
		dispatcher: d,
		requester:  r,
		delay:      DefaultDelay,
		timeout:    DefaultRequestTimeout,
		after:      timeScheduler,
		position:   lighting.DefaultPosition,
		dimmer:     100,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// OnResult sets the callback for accepted lighting results.
func (c *Controller) OnResult(fn func(*service.LightingResult)) { c.onResult = fn }

// OnError sets the callback for failed requests.
func (c *Controller) OnError(fn func(error)) { c.onError = fn }

// OnPosition sets the callback run after every local position change.
func (c *Controller) OnPosition(fn func(lighting.Position)) { c.onPosition = fn }

func (c *Controller) Position() lighting.Position { return c.position }

func (c *Controller) Luminaire() *Luminaire { return c.luminaire }

func (c *Controller) Dimmer() float64 { return c.dimmer }

// Nudge moves the position one step along axis, towards positive values
// when direction > 0, and schedules a request.
func (c *Controller) Nudge(axis Axis, direction int) {
	delta := Step
	if direction < 0 {
		delta = -Step
	} else if direction == 0 {
		return
	}

	p := c.position
	switch axis {
	case AxisX:
		p.X = stepAxis(p.X, delta)
	case AxisY:
		p.Y = stepAxis(p.Y, delta)
	case AxisZ:
		p.Z = stepAxis(p.Z, delta)
	default:
		return
	}
	c.position = p
	if c.onPosition != nil {
		c.onPosition(p)
	}
	c.schedule()
}

// stepAxis adds delta and clamps to [0,1], rounding to one decimal so
// repeated steps never drift.
func stepAxis(v, delta float64) float64 {
	v = math.Round((v+delta)*10) / 10
	return math.Max(0, math.Min(1, v))
}

// SelectLuminaire switches the previewed product and requests lighting for
// it at once. nil clears the selection and cancels any pending request.
func (c *Controller) SelectLuminaire(l *Luminaire) {
	if l == nil {
		c.luminaire = nil
		c.cancelTimer()
		c.seq++
		return
	}
	cp := *l
	c.luminaire = &cp
	c.cancelTimer()
	c.request()
}

// SetDimmer sets the percentage of the luminaire's lumens to request,
// clamped to [0,100], and schedules a request.
func (c *Controller) SetDimmer(percent float64) {
	c.dimmer = math.Max(0, math.Min(100, percent))
	c.schedule()
}

// Reset restores the default position and dimmer and drops pending work.
func (c *Controller) Reset() {
	c.cancelTimer()
	c.seq++
	c.position = lighting.DefaultPosition
	c.dimmer = 100
	if c.onPosition != nil {
		c.onPosition(c.position)
	}
}

func (c *Controller) cancelTimer() {
	c.armed++
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Controller) schedule() {
	c.cancelTimer()
	armed := c.armed
	c.stop = c.after(c.delay, func() {
		c.dispatcher.Post(func() {
			// A fire that raced with a newer nudge is ignored.
			if armed != c.armed {
				return
			}
			c.stop = nil
			c.request()
		})
	})
}

// Request builds the lighting request for the current state.
func (c *Controller) Request() (service.LightingRequest, bool) {
	if c.luminaire == nil {
		return service.LightingRequest{}, false
	}
	return service.LightingRequest{
		LightType:   c.luminaire.LightType,
		Wattage:     c.luminaire.Wattage,
		Lumens:      c.luminaire.Lumens * c.dimmer / 100,
		Position:    c.position.ToService(),
		ImageWidth:  service.RequestImageWidth,
		ImageHeight: service.RequestImageHeight,
	}, true
}

func (c *Controller) request() {
	req, ok := c.Request()
	if !ok || c.requester == nil {
		return
	}
	c.seq++
	seq := c.seq

	core.Logger().Debug("lighting request", "seq", seq, "position", req.Position, "lumens", req.Lumens)
	go func() {
		ctx := context.Background()
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		res, err := c.requester.CalculateLighting(ctx, req)
		c.dispatcher.Post(func() { c.deliver(seq, res, err) })
	}()
}

func (c *Controller) deliver(seq uint64, res *service.LightingResult, err error) {
	if seq != c.seq {
		core.Logger().Debug("stale lighting response dropped", "seq", seq, "latest", c.seq)
		return
	}
	if err != nil {
		core.Logger().Error("lighting request failed", "seq", seq, "err", err)
		if c.onError != nil {
			c.onError(err)
		}
		return
	}
	if c.onResult != nil {
		c.onResult(res)
	}
}
