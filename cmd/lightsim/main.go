package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lightsim/app"
	"lightsim/assets"
	"lightsim/bridge"
	"lightsim/compositor"
	"lightsim/config"
	"lightsim/controls"
	"lightsim/core"
	"lightsim/lighting"
	"lightsim/renderer"
	"lightsim/scene"
	"lightsim/service"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	core.SetLogger(cfg.Log.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		core.Logger().Error("lightsim exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	mode, err := lighting.ParseMode(cfg.Engine.Mode)
	if err != nil {
		return err
	}

	var (
		window  *core.Window
		factory renderer.BackendFactory
		wake    func()
		wakeCh  = make(chan struct{}, 1)
	)
	if cfg.Engine.Headless {
		factory, _ = renderer.NewHeadlessFactory()
		wake = func() {
			select {
			case wakeCh <- struct{}{}:
			default:
			}
		}
	} else {
		window, err = core.NewWindow(cfg.Window)
		if err != nil {
			return err
		}
		defer window.Destroy()
		factory = renderer.NewGLFactory(window)
		wake = window.Wake
	}

	dispatcher := core.NewDispatcher(wake)

	vcfg := renderer.DefaultViewportConfig()
	if path := cfg.Engine.FixtureModel; path != "" {
		vcfg.LoadFixture = func() (*scene.Node, error) { return scene.LoadFixture(path) }
	}
	viewport := renderer.NewViewport(vcfg, factory, wake)
	if window != nil {
		viewport.SetSurface(window)
	}

	blobs := assets.NewBlobStore()
	loader := assets.NewLoader(dispatcher, blobs,
		assets.WithFetchTimeout(cfg.Engine.FetchTimeout.Std()),
		assets.WithMaxTextureSize(cfg.Engine.MaxTextureSize),
	)

	var backend app.Backend
	if cfg.Service.BaseURL != "" {
		client, err := service.NewClient(cfg.Service.BaseURL, cfg.Service.Timeout.Std())
		if err != nil {
			return err
		}
		backend = client
	}

	session := app.NewSession(dispatcher, viewport, loader, blobs, backend, app.Options{
		Mode:           mode,
		UploadTimeout:  cfg.Service.Timeout.Std(),
		ControlOptions: []controls.Option{controls.WithDelay(cfg.Engine.Debounce.Std())},
	})
	session.OnError(func(src app.Source, err error) {
		core.Logger().Warn("preview error", "source", string(src), "err", err)
	})

	width, height := cfg.Window.Width, cfg.Window.Height
	if window != nil {
		width, height = window.GetFramebufferSize()
	}
	if err := viewport.Init(width, height); err != nil {
		return err
	}
	defer viewport.Teardown()

	session.SetAssets(compositor.Assets{
		Diffuse:      cfg.Engine.Diffuse,
		Normal:       cfg.Engine.Normal,
		Displacement: cfg.Engine.Displacement,
	})

	bridgeErr := make(chan error, 1)
	if cfg.Bridge.Listen != "" {
		srv := bridge.NewServer(dispatcher, session, cfg.Bridge.AllowedOrigins)
		go func() { bridgeErr <- srv.ListenAndServe(ctx, cfg.Bridge.Listen) }()
	}

	if window == nil {
		return runHeadless(ctx, dispatcher, viewport, wakeCh, bridgeErr)
	}
	return runWindowed(ctx, window, dispatcher, session, bridgeErr)
}

func runWindowed(ctx context.Context, window *core.Window, d *core.Dispatcher, session *app.Session, bridgeErr <-chan error) error {
	viewport := session.Viewport()
	window.SetResizeCallback(session.Resize)
	window.SetKeyCallback(func(key int) {
		switch key {
		case core.KeyEscape:
			window.Handle.SetShouldClose(true)
		case core.KeyF:
			session.ToggleFullscreen()
		case core.KeyN:
			core.Logger().Info("ambient mode", "mode", session.ToggleMode().String())
		case core.KeyR:
			session.ResetCamera()
		case core.KeyLeft:
			session.Nudge(controls.AxisX, -1)
		case core.KeyRight:
			session.Nudge(controls.AxisX, 1)
		case core.KeyDown:
			session.Nudge(controls.AxisY, -1)
		case core.KeyUp:
			session.Nudge(controls.AxisY, 1)
		case core.KeyPageDown:
			session.Nudge(controls.AxisZ, -1)
		case core.KeyPageUp:
			session.Nudge(controls.AxisZ, 1)
		}
	})

	go func() {
		<-ctx.Done()
		d.Post(func() { window.Handle.SetShouldClose(true) })
	}()

	for !window.ShouldClose() {
		window.WaitEvents()
		d.Drain()
		if _, err := viewport.Flush(); err != nil {
			core.Logger().Error("render failed", "err", err)
		}
		select {
		case err := <-bridgeErr:
			if err != nil {
				return err
			}
		default:
		}
	}
	return nil
}

func runHeadless(ctx context.Context, d *core.Dispatcher, viewport *renderer.Viewport, wake <-chan struct{}, bridgeErr <-chan error) error {
	core.Logger().Info("running headless")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-bridgeErr:
			return err
		case <-wake:
		}
		d.Drain()
		if _, err := viewport.Flush(); err != nil {
			core.Logger().Error("render failed", "err", err)
		}
	}
}
