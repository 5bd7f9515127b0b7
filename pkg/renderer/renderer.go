// Package renderer captures screenshots of preview URLs with a headless
// Chrome instance, for feeding rendered output back into a conversation.
package renderer

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Viewport names one capture size.
type Viewport struct {
	Name   string
	Width  int
	Height int
	Mobile bool
}

// DefaultViewports covers the common desktop and mobile sizes.
var DefaultViewports = []Viewport{
	{Name: "desktop", Width: 1440, Height: 900},
	{Name: "mobile", Width: 390, Height: 844, Mobile: true},
}

// Renderer owns one headless Chrome process and captures pages with it.
type Renderer struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
}

// New creates an idle renderer. Chrome is not launched until Start.
func New(logger zerolog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Start launches headless Chrome and connects over CDP.
func (r *Renderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	l := launcher.New().Headless(true)

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to CDP: %w", err)
	}

	r.launcher = l
	r.browser = browser
	r.started = true

	r.logger.Info().Msg("Renderer started")
	return nil
}

// Capture loads url and screenshots it at each viewport. The result maps
// viewport name to a base64-encoded PNG. A failed viewport fails the whole
// capture.
func (r *Renderer) Capture(ctx context.Context, url string, viewports []Viewport) (map[string]string, error) {
	if err := r.Start(); err != nil {
		return nil, err
	}

	if len(viewports) == 0 {
		viewports = DefaultViewports
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page load timeout for %s: %w", url, err)
	}

	captures := make(map[string]string, len(viewports))
	for _, vp := range viewports {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: 1,
			Mobile:            vp.Mobile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport %s: %w", vp.Name, err)
		}

		data, err := page.Screenshot(false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to capture %s: %w", vp.Name, err)
		}

		captures[vp.Name] = base64.StdEncoding.EncodeToString(data)

		r.logger.Debug().
			Str("url", url).
			Str("viewport", vp.Name).
			Int("bytes", len(data)).
			Msg("Captured screenshot")
	}

	return captures, nil
}

// Close kills the Chrome process.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}

	if err := r.browser.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to close browser cleanly")
	}
	r.launcher.Kill()

	r.started = false
	r.logger.Info().Msg("Renderer stopped")
	return nil
}
