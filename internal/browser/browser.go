// Package browser is the rendering-context adapter: it drives embedded
// Chrome pages over the DevTools protocol and reports navigation lifecycle
// events back to the core through a delegate. The core never touches rod
// types; it consumes the Context interface only.
package browser

// Policy is the outcome of a pre-commit navigation decision.
type Policy int

const (
	// PolicyAllow lets the navigation proceed.
	PolicyAllow Policy = iota
	// PolicyCancel aborts the navigation (e.g. it became a download).
	PolicyCancel
)

// Delegate receives navigation lifecycle callbacks. All callbacks may arrive
// from engine goroutines; receivers are expected to re-marshal onto their
// own control context. Nil funcs are skipped.
type Delegate struct {
	// OnProvisional fires when a main-frame load begins.
	OnProvisional func()
	// Decide is consulted before a main-frame request is committed.
	Decide func(url string) Policy
	// OnCommit fires when the main frame has navigated.
	OnCommit func(url string)
	// OnFinish fires when the page load event fires.
	OnFinish func(url, title string)
	// OnFail fires on a load failure; provisional reports whether the
	// failure happened before the commit.
	OnFail func(provisional bool, err error)
	// OnRedirect fires on a server redirect of the main-frame request.
	OnRedirect func(url string)
	// OnNewWindow fires when the page requests a new window (window.open,
	// target=_blank); the shell re-routes these into the same session.
	OnNewWindow func(url string)
}

// Context is one rendering context, bound 1:1 to a session.
type Context interface {
	// Load navigates to url.
	Load(url string) error
	// Reload reloads the current page.
	Reload() error
	// Back and Forward traverse session history; out-of-range traversal is
	// a no-op.
	Back() error
	Forward() error
	// EvaluateScript runs script asynchronously; done is called with the
	// stringified result or the evaluation error. Responses across
	// concurrently issued evaluations carry no ordering guarantee.
	EvaluateScript(script string, done func(result string, err error))

	URL() string
	Title() string
	CanGoBack() bool
	CanGoForward() bool

	// SetDelegate installs the lifecycle delegate. Must be set before the
	// first Load.
	SetDelegate(d Delegate)
	// Close tears the context down; late engine events after Close are
	// dropped.
	Close() error
}
