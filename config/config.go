// Package config holds the settings of the lightsim binary: a JSON file
// layered under command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"lightsim/core"
)

var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration that reads and writes as "150ms" in JSON.
// Plain numbers are taken as milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("duration: %s", b)
		}
		*d = Duration(ms * float64(time.Millisecond))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type ServiceConfig struct {
	BaseURL string   `json:"base_url"`
	Timeout Duration `json:"timeout"`
}

type BridgeConfig struct {
	Listen         string   `json:"listen"` // empty disables the bridge
	AllowedOrigins []string `json:"allowed_origins"`
}

type EngineConfig struct {
	Mode           string   `json:"mode"` // "day" or "night"
	Debounce       Duration `json:"debounce"`
	FetchTimeout   Duration `json:"fetch_timeout"`
	MaxTextureSize int      `json:"max_texture_size"`
	FixtureModel   string   `json:"fixture_model"` // optional .glb/.gltf
	Headless       bool     `json:"headless"`

	// Assets shown at start-up, if any.
	Diffuse      string `json:"diffuse"`
	Normal       string `json:"normal"`
	Displacement string `json:"displacement"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error, off
	Format string `json:"format"` // text or json
}

type Config struct {
	Window  core.WindowConfig `json:"window"`
	Service ServiceConfig     `json:"service"`
	Bridge  BridgeConfig      `json:"bridge"`
	Engine  EngineConfig      `json:"engine"`
	Log     LogConfig         `json:"log"`
}

func Default() Config {
	return Config{
		Window: core.DefaultWindowConfig(),
		Service: ServiceConfig{
			BaseURL: "http://localhost:5001",
			Timeout: Duration(60 * time.Second),
		},
		Bridge: BridgeConfig{
			Listen: "127.0.0.1:8765",
		},
		Engine: EngineConfig{
			Mode:           "day",
			Debounce:       Duration(100 * time.Millisecond),
			FetchTimeout:   Duration(30 * time.Second),
			MaxTextureSize: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a JSON file over the defaults. Missing keys keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	if c.Service.BaseURL != "" {
		u, err := url.Parse(c.Service.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: service.base_url %q", ErrInvalid, c.Service.BaseURL)
		}
	}
	if c.Service.Timeout < 0 || c.Engine.FetchTimeout < 0 || c.Engine.Debounce < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	switch strings.ToLower(c.Engine.Mode) {
	case "day", "night":
	default:
		return fmt.Errorf("%w: engine.mode %q", ErrInvalid, c.Engine.Mode)
	}
	if c.Engine.MaxTextureSize < 0 {
		return fmt.Errorf("%w: engine.max_texture_size %d", ErrInvalid, c.Engine.MaxTextureSize)
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// RegisterFlags binds flags on fs that override c once fs is parsed.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Window.Width, "width", c.Window.Width, "window width in pixels")
	fs.IntVar(&c.Window.Height, "height", c.Window.Height, "window height in pixels")
	fs.BoolVar(&c.Window.Fullscreen, "fullscreen", c.Window.Fullscreen, "start fullscreen")
	fs.BoolVar(&c.Window.VSync, "vsync", c.Window.VSync, "wait for vertical sync")

	fs.StringVar(&c.Service.BaseURL, "service", c.Service.BaseURL, "image processing service base URL (empty disables it)")
	fs.StringVar(&c.Bridge.Listen, "listen", c.Bridge.Listen, "WebSocket bridge address (empty disables it)")

	fs.StringVar(&c.Engine.Mode, "mode", c.Engine.Mode, "initial ambient mode: day or night")
	fs.Func("debounce", "quiet period before a lighting request (e.g. 100ms)", func(s string) error {
		d, err := time.ParseDuration(s)
		c.Engine.Debounce = Duration(d)
		return err
	})
	fs.StringVar(&c.Engine.FixtureModel, "fixture", c.Engine.FixtureModel, "glTF luminaire model attached to the spot light")
	fs.BoolVar(&c.Engine.Headless, "headless", c.Engine.Headless, "run without a window; only the bridge drives the engine")
	fs.StringVar(&c.Engine.Diffuse, "image", c.Engine.Diffuse, "photo shown at start-up")
	fs.StringVar(&c.Engine.Normal, "normal", c.Engine.Normal, "normal map shown at start-up")
	fs.StringVar(&c.Engine.Displacement, "depth", c.Engine.Displacement, "depth map shown at start-up")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn, error or off")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "text or json")
}

// Parse loads defaults, the file named by -config if given, and then the
// remaining flags, which win over the file.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	path := configPath(args)
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}

	fs.String("config", path, "JSON config file")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// configPath finds -config before the full parse so the file can seed the
// flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// NewLogger builds the slog logger described by c. Level "off" yields nil,
// which core.SetLogger treats as silent.
func (c LogConfig) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.Level)
	if strings.ToLower(c.Level) == "off" {
		return nil
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "off":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
