package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lightsim/core"
	"lightsim/scene"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadBlob(t *testing.T) {
	blobs := NewBlobStore()
	ref := blobs.Register("room.png", encodePNG(t, 4, 3))

	l := NewLoader(core.NewDispatcher(nil), blobs)
	tex, err := l.Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}
	if tex.Width != 4 || tex.Height != 3 {
		t.Errorf("Load: expected 4x3, got %dx%d", tex.Width, tex.Height)
	}
	if len(tex.Pixels) != 4*3*4 {
		t.Errorf("Load: expected %d pixel bytes, got %d", 4*3*4, len(tex.Pixels))
	}
}

func TestLoadRevokedBlob(t *testing.T) {
	blobs := NewBlobStore()
	ref := blobs.Register("", encodePNG(t, 1, 1))
	blobs.Revoke(ref)

	l := NewLoader(core.NewDispatcher(nil), blobs)
	_, err := l.Load(context.Background(), ref)
	if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Load: expected ErrLoad and ErrBlobNotFound, got %v", err)
	}
}

func TestLoadDataURI(t *testing.T) {
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, 2, 2))

	l := NewLoader(core.NewDispatcher(nil), nil)
	tex, err := l.Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}
	if tex.Name != "data:image/png;base64,…" {
		t.Errorf("Name: expected shortened data uri, got %q", tex.Name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth.png")
	if err := os.WriteFile(path, encodePNG(t, 5, 5), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(core.NewDispatcher(nil), nil)
	for _, ref := range []string{path, "file://" + path} {
		if _, err := l.Load(context.Background(), ref); err != nil {
			t.Errorf("Load(%q): unexpected error %v", ref, err)
		}
	}
}

func TestLoadHTTP(t *testing.T) {
	data := encodePNG(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	l := NewLoader(core.NewDispatcher(nil), nil, WithHTTPClient(srv.Client()))
	if _, err := l.Load(context.Background(), srv.URL+"/normal.png"); err != nil {
		t.Errorf("Load: unexpected error %v", err)
	}
	if _, err := l.Load(context.Background(), srv.URL+"/missing.png"); !errors.Is(err, ErrLoad) {
		t.Errorf("Load 404: expected ErrLoad, got %v", err)
	}
}

func TestLoadFailures(t *testing.T) {
	l := NewLoader(core.NewDispatcher(nil), NewBlobStore())

	tests := []struct {
		name string
		ref  string
		want error
	}{
		{"empty", "", ErrUnsupportedRef},
		{"scheme", "ftp://example.com/a.png", ErrUnsupportedRef},
		{"blob", "blob:lightsim/99", ErrBlobNotFound},
		{"not an image", "data:text/plain,hello", ErrLoad},
		{"missing file", filepath.Join(t.TempDir(), "nope.png"), ErrLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.ref)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadDownscales(t *testing.T) {
	blobs := NewBlobStore()
	ref := blobs.Register("", encodePNG(t, 64, 32))

	l := NewLoader(core.NewDispatcher(nil), blobs, WithMaxTextureSize(16))
	tex, err := l.Load(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width != 16 || tex.Height != 8 {
		t.Errorf("expected 16x8, got %dx%d", tex.Width, tex.Height)
	}
}

func TestLoadAsyncPostsToDispatcher(t *testing.T) {
	woken := make(chan struct{}, 1)
	d := core.NewDispatcher(func() { woken <- struct{}{} })

	blobs := NewBlobStore()
	ref := blobs.Register("", encodePNG(t, 2, 2))
	l := NewLoader(d, blobs)

	var got *scene.Texture
	var gotErr error
	called := false
	l.LoadAsync(ref, func(tex *scene.Texture, err error) {
		called = true
		got, gotErr = tex, err
	})

	select {
	case <-woken:
	case <-time.After(5 * time.Second):
		t.Fatal("LoadAsync: dispatcher never woken")
	}
	if called {
		t.Fatal("LoadAsync: callback ran before Drain")
	}
	if n := d.Drain(); n != 1 {
		t.Errorf("Drain: expected 1 task, got %d", n)
	}
	if !called || gotErr != nil || got == nil {
		t.Errorf("LoadAsync: expected texture, got %v, %v", got, gotErr)
	}
}
