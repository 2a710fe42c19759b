package session

import (
	"time"

	"browsernerd/internal/browser"
	"browsernerd/internal/logging"
)

// NavState is one state of the per-session navigation machine.
type NavState int

const (
	StateIdle NavState = iota
	StateProvisional
	StateCommitted
	StateFinished
	StateFailed
)

func (s NavState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisional:
		return "provisional"
	case StateCommitted:
		return "committed"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Progress landmarks for the in-flight load indicator.
const (
	progressStarted   = 0.1
	progressCommitted = 0.5
	progressDone      = 1.0
)

// progressResetDelay is how long the full bar stays visible after a finished
// load before resetting.
const progressResetDelay = 600 * time.Millisecond

// navHooks are the controller's outward effects, all owned by the manager.
type navHooks struct {
	startDownload func(url string)
	finished      func(url, title string)
	failed        func(err error, provisional bool)
	changed       func()
}

// NavController drives one rendering context through the
// Idle -> Provisional -> Committed -> Finished/Failed machine. All methods
// run on the control loop; the rendering context delegates re-marshal onto
// it before calling in.
type NavController struct {
	sessionID string
	rctx      browser.Context
	dispatch  func(func())
	hooks     navHooks

	State        NavState
	Loading      bool
	Progress     float64
	DisplayURL   string
	CanGoBack    bool
	CanGoForward bool
}

func newNavController(sessionID string, rctx browser.Context, dispatch func(func()), hooks navHooks) *NavController {
	return &NavController{
		sessionID: sessionID,
		rctx:      rctx,
		dispatch:  dispatch,
		hooks:     hooks,
	}
}

// Start marks the beginning of a provisional load.
func (n *NavController) Start() {
	n.State = StateProvisional
	n.Loading = true
	n.Progress = progressStarted
	logging.NavigationDebug("[%s] provisional", n.sessionID)
	n.changed()
}

// DownloadInstead records that the pending navigation was cancelled in
// favor of a transfer. The policy answer itself is computed in the delegate,
// off the control loop; only this bookkeeping lands here.
func (n *NavController) DownloadInstead(url string) {
	logging.Navigation("[%s] classified as download: %s", n.sessionID, url)
	n.Loading = false
	n.Progress = 0
	if n.hooks.startDownload != nil {
		n.hooks.startDownload(url)
	}
	n.changed()
}

// ShowAddress updates the address display without touching committed-
// navigation bookkeeping; used for in-page search-results URLs.
func (n *NavController) ShowAddress(url string) {
	n.DisplayURL = url
	n.changed()
}

// Commit records the main-frame navigation.
func (n *NavController) Commit(url string) {
	n.State = StateCommitted
	n.Progress = progressCommitted
	n.DisplayURL = url
	logging.NavigationDebug("[%s] committed: %s", n.sessionID, url)
	n.changed()
}

// Finish completes the load: full progress, history append and session
// bookkeeping via hooks, capability refresh, then a delayed progress reset.
func (n *NavController) Finish(url, title string) {
	n.State = StateFinished
	n.Loading = false
	n.Progress = progressDone
	n.DisplayURL = url
	n.refreshCapabilities()
	logging.Navigation("[%s] finished: %s", n.sessionID, url)
	if n.hooks.finished != nil {
		n.hooks.finished(url, title)
	}
	n.changed()

	time.AfterFunc(progressResetDelay, func() {
		n.dispatch(func() {
			if n.State == StateFinished && n.Progress == progressDone {
				n.Progress = 0
				n.changed()
			}
		})
	})
}

// Fail terminates the attempt. A subsequent Start begins a fresh one.
func (n *NavController) Fail(provisional bool, err error) {
	n.State = StateFailed
	n.Loading = false
	n.Progress = 0
	logging.NavigationError("[%s] failed (provisional=%v): %v", n.sessionID, provisional, err)
	if n.hooks.failed != nil {
		n.hooks.failed(err, provisional)
	}
	n.changed()
}

// Redirect updates the address display; the machine state is untouched.
func (n *NavController) Redirect(url string) {
	n.DisplayURL = url
	logging.NavigationDebug("[%s] redirect: %s", n.sessionID, url)
	n.changed()
}

// NewWindow routes a new-window request back into this session instead of
// spawning another rendering context.
func (n *NavController) NewWindow(url string) {
	logging.Navigation("[%s] new-window rerouted: %s", n.sessionID, url)
	if err := n.rctx.Load(url); err != nil {
		logging.NavigationError("[%s] new-window load: %v", n.sessionID, err)
	}
}

func (n *NavController) refreshCapabilities() {
	n.CanGoBack = n.rctx.CanGoBack()
	n.CanGoForward = n.rctx.CanGoForward()
}

func (n *NavController) changed() {
	if n.hooks.changed != nil {
		n.hooks.changed()
	}
}
