package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"browsernerd/internal/config"
	"browsernerd/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Engine owns the Chrome instance and mints rendering contexts from it.
type Engine struct {
	cfg        config.BrowserConfig
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// NewEngine creates an engine. Chrome is not touched until Start.
func NewEngine(cfg config.BrowserConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return nil // Browser is healthy
		}
		logging.Browser("stale browser connection, reconnecting")
		_ = e.browser.Close()
		e.browser = nil
		e.controlURL = ""
	}

	controlURL := e.cfg.DebuggerURL
	if controlURL == "" && len(e.cfg.Launch) > 0 {
		bin := e.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(e.cfg.Headless)
		for _, rawFlag := range e.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback without the extra flags
			fallback := launcher.New().Bin(bin).Headless(e.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(e.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	e.browser = browser
	e.controlURL = controlURL
	logging.Browser("engine connected: %s", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL.
func (e *Engine) ControlURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlURL
}

// NewContext opens a fresh page and wraps it as a rendering context.
func (e *Engine) NewContext(ctx context.Context) (Context, error) {
	e.mu.Lock()
	browser := e.browser
	e.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("engine not started")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserDebug("failed to set viewport: %v", err)
	}

	return newPageContext(ctx, page, e.cfg.NavigationTimeout()), nil
}

// Shutdown closes the browser.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.browser != nil {
		err = e.browser.Close()
		e.browser = nil
	}
	e.controlURL = ""
	return err
}
