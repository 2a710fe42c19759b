package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"browsernerd/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// pageContext adapts one rod page to the Context contract.
type pageContext struct {
	page    *rod.Page
	timeout time.Duration

	mu       sync.Mutex
	delegate Delegate

	closed    atomic.Bool
	committed atomic.Bool

	router     *rod.HijackRouter
	cancelEvts context.CancelFunc
	wired      bool
}

func newPageContext(ctx context.Context, page *rod.Page, timeout time.Duration) *pageContext {
	evtCtx, cancel := context.WithCancel(ctx)
	c := &pageContext{
		page:       page,
		timeout:    timeout,
		cancelEvts: cancel,
	}
	c.wire(evtCtx)
	return c
}

// SetDelegate installs the lifecycle delegate.
func (c *pageContext) SetDelegate(d Delegate) {
	c.mu.Lock()
	c.delegate = d
	c.mu.Unlock()
}

func (c *pageContext) del() Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

// wire subscribes to CDP lifecycle events and installs the policy hijack.
// Late events after Close are dropped by the closed guard.
func (c *pageContext) wire(ctx context.Context) {
	if c.wired {
		return
	}
	c.wired = true

	pageCtx := c.page.Context(ctx)

	// Pre-commit policy decisions ride on fetch interception: every
	// main-document request pauses here until the delegate decides.
	router := pageCtx.HijackRequests()
	_ = router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		if c.closed.Load() {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		d := c.del()
		if d.Decide != nil && d.Decide(h.Request.URL().String()) == PolicyCancel {
			logging.BrowserDebug("policy cancel: %s", h.Request.URL())
			h.Response.Fail(proto.NetworkErrorReasonAborted)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	c.router = router
	go router.Run()

	wait := pageCtx.EachEvent(
		func(ev *proto.PageFrameStartedLoading) {
			if c.closed.Load() || ev.FrameID != c.page.FrameID {
				return
			}
			c.committed.Store(false)
			if d := c.del(); d.OnProvisional != nil {
				d.OnProvisional()
			}
		},
		func(ev *proto.PageFrameNavigated) {
			if c.closed.Load() || ev.Frame.ID != c.page.FrameID {
				return
			}
			c.committed.Store(true)
			if d := c.del(); d.OnCommit != nil {
				d.OnCommit(ev.Frame.URL)
			}
		},
		func(ev *proto.PageLoadEventFired) {
			if c.closed.Load() {
				return
			}
			if d := c.del(); d.OnFinish != nil {
				d.OnFinish(c.URL(), c.Title())
			}
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			if c.closed.Load() || ev.Type != proto.NetworkResourceTypeDocument {
				return
			}
			if ev.FrameID != c.page.FrameID || ev.RedirectResponse == nil {
				return
			}
			if d := c.del(); d.OnRedirect != nil {
				d.OnRedirect(ev.Request.URL)
			}
		},
		func(ev *proto.NetworkLoadingFailed) {
			if c.closed.Load() || ev.Type != proto.NetworkResourceTypeDocument {
				return
			}
			// Canceled covers our own policy aborts; those are not
			// navigation failures.
			if ev.Canceled {
				return
			}
			if d := c.del(); d.OnFail != nil {
				d.OnFail(!c.committed.Load(), errors.New(ev.ErrorText))
			}
		},
		func(ev *proto.PageWindowOpen) {
			if c.closed.Load() {
				return
			}
			if d := c.del(); d.OnNewWindow != nil {
				d.OnNewWindow(ev.URL)
			}
		},
	)
	go wait()
}

// Load navigates to url.
func (c *pageContext) Load(url string) error {
	if c.closed.Load() {
		return errors.New("context closed")
	}
	return c.page.Timeout(c.timeout).Navigate(url)
}

// Reload reloads the current page.
func (c *pageContext) Reload() error {
	if c.closed.Load() {
		return errors.New("context closed")
	}
	return c.page.Reload()
}

// Back traverses one history entry back; no-op at the start of history.
func (c *pageContext) Back() error {
	if c.closed.Load() {
		return errors.New("context closed")
	}
	if !c.CanGoBack() {
		return nil
	}
	return c.page.NavigateBack()
}

// Forward traverses one history entry forward; no-op at the end.
func (c *pageContext) Forward() error {
	if c.closed.Load() {
		return errors.New("context closed")
	}
	if !c.CanGoForward() {
		return nil
	}
	return c.page.NavigateForward()
}

// EvaluateScript runs script asynchronously and reports via done.
func (c *pageContext) EvaluateScript(script string, done func(result string, err error)) {
	if c.closed.Load() {
		go done("", errors.New("context closed"))
		return
	}
	go func() {
		obj, err := c.page.Evaluate(&rod.EvalOptions{
			JS:           script,
			ByValue:      true,
			AwaitPromise: true,
		})
		if err != nil {
			done("", err)
			return
		}
		if obj == nil || obj.Value.Nil() {
			done("undefined", nil)
			return
		}
		done(obj.Value.String(), nil)
	}()
}

// URL returns the current page URL, empty on error.
func (c *pageContext) URL() string {
	if c.closed.Load() {
		return ""
	}
	info, err := c.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Title returns the current page title, empty on error.
func (c *pageContext) Title() string {
	if c.closed.Load() {
		return ""
	}
	info, err := c.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// CanGoBack reports whether history traversal backwards is possible.
func (c *pageContext) CanGoBack() bool {
	if c.closed.Load() {
		return false
	}
	res, err := proto.PageGetNavigationHistory{}.Call(c.page)
	if err != nil {
		return false
	}
	return res.CurrentIndex > 0
}

// CanGoForward reports whether history traversal forwards is possible.
func (c *pageContext) CanGoForward() bool {
	if c.closed.Load() {
		return false
	}
	res, err := proto.PageGetNavigationHistory{}.Call(c.page)
	if err != nil {
		return false
	}
	return res.CurrentIndex < len(res.Entries)-1
}

// Close drops the page. Subsequent delegate events are no-ops.
func (c *pageContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancelEvts()
	if c.router != nil {
		_ = c.router.Stop()
	}
	return c.page.Close()
}
