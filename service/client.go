// Package service talks to the external image-processing and
// lighting-computation backend.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lightsim/core"
)

// ErrServiceFailure is returned when the backend is unreachable, answers
// with a non-2xx status, or reports success=false.
var ErrServiceFailure = errors.New("service: request failed")

const (
	UploadPath   = "/api/image/upload"
	LightingPath = "/api/image/lighting/calculate"

	// Image size the lighting computation is asked to assume.
	RequestImageWidth  = 800
	RequestImageHeight = 600

	DefaultTimeout = 60 * time.Second
	maxResponse    = 32 << 20
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UploadResult is the processing service's answer to an image upload.
// DepthMap and NormalMap are image refs (URLs or data URIs).
type UploadResult struct {
	Success   bool   `json:"success"`
	DepthMap  string `json:"depth_map"`
	NormalMap string `json:"normal_map"`
	Error     string `json:"error,omitempty"`
}

type LightingRequest struct {
	LightType   string   `json:"light_type"`
	Wattage     float64  `json:"wattage"`
	Lumens      float64  `json:"lumens"`
	Position    Position `json:"position"`
	ImageWidth  int      `json:"image_width"`
	ImageHeight int      `json:"image_height"`
}

// LightInfo is the computed light placement. Position may be missing.
type LightInfo struct {
	Position *Position `json:"position"`
	Lumens   float64   `json:"lumens"`
}

type LightingResult struct {
	Success      bool            `json:"success"`
	LightInfo    *LightInfo      `json:"light_info"`
	LightingData json.RawMessage `json:"lighting_data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("service url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ResolveRef turns a ref returned by the backend into one the asset loader
// can fetch. Absolute URLs and data URIs pass through; paths are resolved
// against the backend root.
func (c *Client) ResolveRef(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.Contains(ref, "://") {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(rel).String()
}

// UploadImage posts the photo as multipart field "image".
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var res UploadResult
	if err := c.post(ctx, UploadPath, mw.FormDataContentType(), &body, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: image processing: %s", ErrServiceFailure, orUnknown(res.Error))
	}
	res.DepthMap = c.ResolveRef(res.DepthMap)
	res.NormalMap = c.ResolveRef(res.NormalMap)
	return &res, nil
}

// CalculateLighting asks the backend where and how bright the luminaire is.
func (c *Client) CalculateLighting(ctx context.Context, req LightingRequest) (*LightingResult, error) {
	if req.ImageWidth == 0 {
		req.ImageWidth = RequestImageWidth
	}
	if req.ImageHeight == 0 {
		req.ImageHeight = RequestImageHeight
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var res LightingResult
	if err := c.post(ctx, LightingPath, "application/json", bytes.NewReader(payload), &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: lighting: %s", ErrServiceFailure, orUnknown(res.Error))
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	endpoint := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrServiceFailure, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrServiceFailure, path, err)
	}
	core.Logger().Debug("service call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error bodies usually still carry {"error": "..."}.
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return fmt.Errorf("%w: %s: %s: %s", ErrServiceFailure, path, resp.Status, orUnknown(e.Error))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrServiceFailure, path, err)
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
