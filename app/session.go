// Package app wires the engine components into one preview session: the
// surface, the spot light, the ambient mode and the user's light controls.
package app

import (
	"context"
	"time"

	"lightsim/assets"
	"lightsim/compositor"
	"lightsim/controls"
	"lightsim/core"
	"lightsim/lighting"
	"lightsim/renderer"
	"lightsim/scene"
	"lightsim/service"
)

// Backend is the external processing service.
type Backend interface {
	UploadImage(ctx context.Context, filename string, data []byte) (*service.UploadResult, error)
	controls.Requester
}

// Source names where a reported error came from.
type Source string

const (
	SourceUpload   Source = "upload"
	SourceAsset    Source = "asset"
	SourceLighting Source = "lighting"
)

type Options struct {
	Mode           lighting.Mode
	UploadTimeout  time.Duration
	ControlOptions []controls.Option
}

// Session is the engine sink driven by the UI. All methods must run on the
// main goroutine; the bridge posts them through the dispatcher.
type Session struct {
	dispatcher *core.Dispatcher
	viewport   *renderer.Viewport
	blobs      *assets.BlobStore
	backend    Backend

	Compositor *compositor.Compositor
	Lights     *lighting.Synchronizer
	Ambient    *lighting.AmbientController
	Controls   *controls.Controller

	uploadTimeout time.Duration
	uploadSeq     uint64
	photo         string

	onError    func(Source, error)
	onPosition func(lighting.Position)
}

// NewSession builds every component around v. Call it before v.Init so the
// components see the first mount.
func NewSession(d *core.Dispatcher, v *renderer.Viewport, loader compositor.TextureLoader, blobs *assets.BlobStore, backend Backend, opts Options) *Session {
	s := &Session{
		dispatcher:    d,
		viewport:      v,
		blobs:         blobs,
		backend:       backend,
		Compositor:    compositor.New(v, loader),
		Lights:        lighting.NewSynchronizer(v),
		Ambient:       lighting.NewAmbientController(v, opts.Mode),
		uploadTimeout: opts.UploadTimeout,
	}
	var requester controls.Requester
	if backend != nil {
		requester = backend
	}
	s.Controls = controls.NewController(d, requester, opts.ControlOptions...)

	s.Compositor.SetErrorHandler(func(slot scene.TextureSlot, ref string, err error) {
		s.report(SourceAsset, err)
	})
	s.Controls.OnResult(func(res *service.LightingResult) {
		s.Lights.ApplyResult(res)
	})
	s.Controls.OnError(func(err error) {
		s.report(SourceLighting, err)
	})
	s.Controls.OnPosition(func(p lighting.Position) {
		if s.onPosition != nil {
			s.onPosition(p)
		}
	})
	return s
}

// OnError sets the callback for failures the user should hear about.
func (s *Session) OnError(fn func(Source, error)) { s.onError = fn }

// OnPosition sets the callback for local light position changes.
func (s *Session) OnPosition(fn func(lighting.Position)) { s.onPosition = fn }

func (s *Session) Viewport() *renderer.Viewport { return s.viewport }

// Upload shows the photo at once and sends it for processing. The depth
// and normal maps are applied when the service answers, unless another
// upload or a Clear came first.
func (s *Session) Upload(filename string, data []byte) {
	s.uploadSeq++
	seq := s.uploadSeq

	if s.photo != "" {
		s.blobs.Revoke(s.photo)
	}
	s.photo = s.blobs.Register(filename, data)
	photo := s.photo
	s.Compositor.SetAssets(compositor.Assets{Diffuse: photo})

	if s.backend == nil {
		return
	}
	go func() {
		ctx := context.Background()
		if s.uploadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
			defer cancel()
		}
		res, err := s.backend.UploadImage(ctx, filename, data)
		s.dispatcher.Post(func() { s.uploaded(seq, photo, res, err) })
	}()
}

func (s *Session) uploaded(seq uint64, photo string, res *service.UploadResult, err error) {
	if seq != s.uploadSeq {
		core.Logger().Debug("stale upload result dropped", "seq", seq)
		return
	}
	if err != nil {
		core.Logger().Error("image processing failed", "err", err)
		s.report(SourceUpload, err)
		return
	}
	s.Compositor.SetAssets(compositor.Assets{
		Diffuse:      photo,
		Normal:       res.NormalMap,
		Displacement: res.DepthMap,
	})
}

// SetAssets replaces the surface inputs directly.
func (s *Session) SetAssets(a compositor.Assets) {
	s.uploadSeq++
	s.Compositor.SetAssets(a)
}

// Clear removes the photo, its maps and the last lighting result.
func (s *Session) Clear() {
	s.uploadSeq++
	if s.photo != "" {
		s.blobs.Revoke(s.photo)
		s.photo = ""
	}
	s.Compositor.Clear()
	s.Lights.Reset()
}

// ApplyLighting applies a lighting result computed elsewhere.
func (s *Session) ApplyLighting(p lighting.LightParameters) bool {
	return s.Lights.Apply(p)
}

func (s *Session) SetMode(m lighting.Mode) { s.Ambient.SetMode(m) }

func (s *Session) ToggleMode() lighting.Mode { return s.Ambient.Toggle() }

func (s *Session) Nudge(axis controls.Axis, direction int) { s.Controls.Nudge(axis, direction) }

func (s *Session) SelectLuminaire(l *controls.Luminaire) { s.Controls.SelectLuminaire(l) }

func (s *Session) SetDimmer(percent float64) { s.Controls.SetDimmer(percent) }

func (s *Session) Resize(width, height int) { s.viewport.Resize(width, height) }

func (s *Session) ResetCamera() { s.viewport.ResetCamera() }

func (s *Session) ToggleFullscreen() bool { return s.viewport.ToggleFullscreen() }

func (s *Session) report(src Source, err error) {
	if s.onError != nil {
		s.onError(src, err)
	}
}
