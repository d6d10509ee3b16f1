package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"lightsim/core"
	"lightsim/scene"
)

var (
	// ErrLoad wraps every failure to fetch or decode an asset.
	ErrLoad = errors.New("assets: load failed")

	// ErrUnsupportedRef is returned for refs with an unknown scheme.
	ErrUnsupportedRef = errors.New("assets: unsupported ref")

	// ErrBlobNotFound is returned for blob refs that were never registered
	// or have been revoked.
	ErrBlobNotFound = errors.New("assets: blob not found")
)

const (
	DefaultFetchTimeout   = 30 * time.Second
	DefaultMaxTextureSize = 4096
	maxAssetBytes         = 64 << 20
)

// Loader fetches and decodes image textures. Load blocks; LoadAsync runs
// Load on its own goroutine and hands the result back through the
// Dispatcher, so callbacks always run on the main thread.
type Loader struct {
	blobs      *BlobStore
	client     *http.Client
	dispatcher *core.Dispatcher
	timeout    time.Duration
	maxSize    int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for http(s) refs.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		l.client = c
	}
}

// WithFetchTimeout bounds a single fetch+decode. Values <= 0 disable the bound.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithMaxTextureSize scales larger images down to fit. 0 keeps full size.
func WithMaxTextureSize(px int) LoaderOption {
	return func(l *Loader) {
		l.maxSize = px
	}
}

func NewLoader(dispatcher *core.Dispatcher, blobs *BlobStore, options ...LoaderOption) *Loader {
	l := &Loader{
		blobs:      blobs,
		client:     http.DefaultClient,
		dispatcher: dispatcher,
		timeout:    DefaultFetchTimeout,
		maxSize:    DefaultMaxTextureSize,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// LoadAsync starts loading ref in the background. done runs on the
// dispatcher's thread with either a texture or an error wrapping ErrLoad.
func (l *Loader) LoadAsync(ref string, done func(*scene.Texture, error)) {
	go func() {
		ctx := context.Background()
		if l.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		tex, err := l.Load(ctx, ref)
		l.dispatcher.Post(func() { done(tex, err) })
	}()
}

// Load fetches and decodes ref synchronously.
func (l *Loader) Load(ctx context.Context, ref string) (*scene.Texture, error) {
	start := time.Now()
	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, describeRef(ref), err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrLoad, describeRef(ref), err)
	}

	tex := scene.NewTextureFromImage(describeRef(ref), img, l.maxSize)
	core.Logger().Debug("asset loaded",
		"ref", describeRef(ref),
		"format", format,
		"width", tex.Width,
		"height", tex.Height,
		"elapsed", time.Since(start))
	return tex, nil
}

func (l *Loader) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: empty ref", ErrUnsupportedRef)
	case strings.HasPrefix(ref, BlobScheme):
		if l.blobs == nil {
			return nil, ErrBlobNotFound
		}
		data, ok := l.blobs.Get(ref)
		if !ok {
			return nil, ErrBlobNotFound
		}
		return data, nil
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, err
		}
		return readFile(u.Path)
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	default:
		return readFile(ref)
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return readLimited(resp.Body)
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAssetBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAssetBytes {
		return nil, fmt.Errorf("asset larger than %d bytes", maxAssetBytes)
	}
	return data, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<payload>.
func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			if data, err2 := base64.RawStdEncoding.DecodeString(payload); err2 == nil {
				return data, nil
			}
			return nil, fmt.Errorf("data uri: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data uri: %w", err)
	}
	return []byte(s), nil
}

// describeRef shortens data URIs for names and logs.
func describeRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		meta, _, _ := strings.Cut(ref, ",")
		return meta + ",…"
	}
	return ref
}
