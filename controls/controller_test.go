package controls

import (
	"context"
	"errors"
	"testing"
	"time"

	"lightsim/core"
	"lightsim/lighting"
	"lightsim/service"
)

type reply struct {
	res *service.LightingResult
	err error
}

type call struct {
	req   service.LightingRequest
	reply chan reply
}

// fakeRequester hands every request to the test, which answers it when it
// wants to.
type fakeRequester struct {
	calls chan *call
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{calls: make(chan *call, 16)}
}

func (f *fakeRequester) CalculateLighting(ctx context.Context, req service.LightingRequest) (*service.LightingResult, error) {
	c := &call{req: req, reply: make(chan reply, 1)}
	f.calls <- c
	r := <-c.reply
	return r.res, r.err
}

func (f *fakeRequester) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no lighting request issued")
		return nil
	}
}

func (f *fakeRequester) idle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected request %+v", c.req)
	case <-time.After(20 * time.Millisecond):
	}
}

// echo answers with the requested position.
func (c *call) echo() {
	p := c.req.Position
	c.reply <- reply{res: &service.LightingResult{
		Success:   true,
		LightInfo: &service.LightInfo{Position: &p, Lumens: c.req.Lumens},
	}}
}

// manualScheduler records timers and fires them on demand.
type manualScheduler struct {
	pending []func()
	stopped int
}

func (s *manualScheduler) schedule(d time.Duration, fn func()) func() bool {
	done := false
	s.pending = append(s.pending, fn)
	return func() bool {
		if done {
			return false
		}
		done = true
		s.stopped++
		return true
	}
}

// fireAll runs every timer, including stopped ones, the way a timer that
// already fired would race with Stop.
func (s *manualScheduler) fireAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func waitDrain(t *testing.T, d *core.Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for d.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("nothing posted to dispatcher")
		}
		time.Sleep(time.Millisecond)
	}
	d.Drain()
}

var testLuminaire = &Luminaire{ID: "m1", LightType: "spotlight", Wattage: 10, Lumens: 1000}

func TestFiveRapidNudges(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	s := &manualScheduler{}
	c := NewController(d, r, WithScheduler(s.schedule))

	var applied []*service.LightingResult
	c.OnResult(func(res *service.LightingResult) { applied = append(applied, res) })

	c.luminaire = testLuminaire
	for i := 0; i < 5; i++ {
		c.Nudge(AxisX, +1)
	}
	timers := append([]func(){}, s.pending...)

	if s.stopped != 4 {
		t.Errorf("expected 4 superseded timers, got %d", s.stopped)
	}
	want := lighting.Position{X: 1, Y: 0.5, Z: 0.8}
	if c.Position() != want {
		t.Errorf("local position: expected %v, got %v", want, c.Position())
	}

	s.fireAll(timers)
	d.Drain()

	call := r.next(t)
	r.idle(t)
	if call.req.Position != want.ToService() {
		t.Errorf("request position: expected %v, got %v", want, call.req.Position)
	}

	call.echo()
	waitDrain(t, d)
	if len(applied) != 1 || *applied[0].LightInfo.Position != want.ToService() {
		t.Errorf("expected one result for the final position, got %v", applied)
	}
}

func TestNudgeClampAndRounding(t *testing.T) {
	c := NewController(core.NewDispatcher(nil), nil, WithScheduler((&manualScheduler{}).schedule))

	for i := 0; i < 12; i++ {
		c.Nudge(AxisZ, +1)
	}
	if c.Position().Z != 1 {
		t.Errorf("Z: expected clamp at 1, got %v", c.Position().Z)
	}
	for i := 0; i < 7; i++ {
		c.Nudge(AxisY, -1)
	}
	if c.Position().Y != 0 {
		t.Errorf("Y: expected clamp at 0, got %v", c.Position().Y)
	}
	for i := 0; i < 3; i++ {
		c.Nudge(AxisY, +1)
	}
	if c.Position().Y != 0.3 {
		t.Errorf("Y: expected exactly 0.3, got %v", c.Position().Y)
	}
}

func TestNoLuminaireNoRequest(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	s := &manualScheduler{}
	c := NewController(d, r, WithScheduler(s.schedule))

	c.Nudge(AxisX, -1)
	s.fireAll(s.pending)
	d.Drain()
	r.idle(t)
}

func TestSelectLuminaireRequestsImmediately(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	c := NewController(d, r, WithScheduler((&manualScheduler{}).schedule))

	c.SelectLuminaire(testLuminaire)
	call := r.next(t)
	if call.req.LightType != "spotlight" || call.req.Lumens != 1000 || call.req.Wattage != 10 {
		t.Errorf("unexpected request %+v", call.req)
	}
	if call.req.ImageWidth != 800 || call.req.ImageHeight != 600 {
		t.Errorf("image size: got %dx%d", call.req.ImageWidth, call.req.ImageHeight)
	}
	call.echo()
	waitDrain(t, d)
}

func TestStaleResponseDropped(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	s := &manualScheduler{}
	c := NewController(d, r, WithScheduler(s.schedule))

	var applied []service.Position
	c.OnResult(func(res *service.LightingResult) { applied = append(applied, *res.LightInfo.Position) })

	c.SelectLuminaire(testLuminaire)
	first := r.next(t)

	c.Nudge(AxisZ, -1)
	s.fireAll(s.pending)
	d.Drain()
	second := r.next(t)

	// The newer response lands first; the older one must not override it.
	second.echo()
	waitDrain(t, d)
	first.echo()
	waitDrain(t, d)

	if len(applied) != 1 || applied[0].Z != 0.7 {
		t.Errorf("expected only the newest result (z=0.7), got %v", applied)
	}
}

func TestRequestError(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	c := NewController(d, r)

	var gotErr error
	c.OnError(func(err error) { gotErr = err })
	c.OnResult(func(*service.LightingResult) { t.Error("unexpected result") })

	c.SelectLuminaire(testLuminaire)
	r.next(t).reply <- reply{err: service.ErrServiceFailure}
	waitDrain(t, d)

	if !errors.Is(gotErr, service.ErrServiceFailure) {
		t.Errorf("expected service failure, got %v", gotErr)
	}
}

func TestDimmerScalesLumens(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	s := &manualScheduler{}
	c := NewController(d, r, WithScheduler(s.schedule))

	c.luminaire = testLuminaire
	c.SetDimmer(40)
	c.SetDimmer(250)
	c.SetDimmer(25)
	s.fireAll(s.pending)
	d.Drain()

	if got := r.next(t).req.Lumens; got != 250 {
		t.Errorf("Lumens: expected 250, got %v", got)
	}
}

func TestDebounceWithRealTimer(t *testing.T) {
	d := core.NewDispatcher(nil)
	r := newFakeRequester()
	c := NewController(d, r, WithDelay(10*time.Millisecond))
	c.luminaire = testLuminaire

	c.Nudge(AxisX, +1)
	c.Nudge(AxisX, +1)
	waitDrain(t, d)

	call := r.next(t)
	if call.req.Position.X != 0.7 {
		t.Errorf("X: expected 0.7, got %v", call.req.Position.X)
	}
	r.idle(t)
	call.echo()
	waitDrain(t, d)
}

func TestReset(t *testing.T) {
	c := NewController(core.NewDispatcher(nil), nil, WithScheduler((&manualScheduler{}).schedule))
	var seen []lighting.Position
	c.OnPosition(func(p lighting.Position) { seen = append(seen, p) })

	c.Nudge(AxisX, +1)
	c.SetDimmer(10)
	c.Reset()

	if c.Position() != lighting.DefaultPosition || c.Dimmer() != 100 {
		t.Errorf("Reset: got %v %v", c.Position(), c.Dimmer())
	}
	if len(seen) != 2 {
		t.Errorf("OnPosition: expected 2 calls, got %d", len(seen))
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "Y": AxisY, "z": AxisZ} {
		if got, err := ParseAxis(in); err != nil || got != want {
			t.Errorf("ParseAxis(%q): expected %v, got %v %v", in, want, got, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("ParseAxis(w): expected error")
	}
}
