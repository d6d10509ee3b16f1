package core

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestDispatcherOrderAndNesting(t *testing.T) {
	wakes := 0
	d := NewDispatcher(func() { wakes++ })

	var got []int
	d.Post(func() { got = append(got, 1) })
	d.Post(func() {
		got = append(got, 2)
		d.Post(func() { got = append(got, 4) })
	})
	d.Post(func() { got = append(got, 3) })
	d.Post(nil)

	if wakes != 3 {
		t.Errorf("wake: expected 3 calls, got %d", wakes)
	}
	if n := d.Drain(); n != 4 {
		t.Errorf("Drain: expected 4 tasks, got %d", n)
	}
	if wakes != 4 {
		t.Errorf("wake after nested post: expected 4 calls, got %d", wakes)
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("order: expected 1..4, got %v", got)
		}
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: expected 0, got %d", d.Pending())
	}
}

func TestDispatcherConcurrentPost(t *testing.T) {
	d := NewDispatcher(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Post(func() {})
		}()
	}
	wg.Wait()
	if n := d.Drain(); n != 50 {
		t.Errorf("expected 50 tasks, got %d", n)
	}
}

func TestLogger(t *testing.T) {
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("default logger: expected silent")
	}

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	Logger().Info("hello", "k", 1)
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("expected record in output, got %q", buf.String())
	}

	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil): expected silent")
	}
}

func TestColorHex(t *testing.T) {
	tests := []uint32{0x000000, 0xffffff, 0x404040, 0xf0f0f0, 0x1a1a1a, 0x12abef}
	for _, hex := range tests {
		if got := ColorFromHex(hex).Hex(); got != hex {
			t.Errorf("round trip 0x%06x: got 0x%06x", hex, got)
		}
	}
	c := ColorFromHex(0xff0000)
	if c.R != 1 || c.G != 0 || c.B != 0 || c.A != 1 {
		t.Errorf("ColorFromHex(0xff0000): got %+v", c)
	}
}

func TestTransformMatrix(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{1, 2, 3}
	tr.Scale = mgl32.Vec3{2, 2, 2}

	p := tr.GetMatrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	want := mgl32.Vec3{3, 2, 3}
	if !p.ApproxEqual(want) {
		t.Errorf("expected %v, got %v", want, p)
	}
}
