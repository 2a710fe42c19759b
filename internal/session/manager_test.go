package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"browsernerd/internal/browser"
	"browsernerd/internal/config"
	"browsernerd/internal/download"
	"browsernerd/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext is a synchronous stand-in for a rendering context: Load drives
// the full delegate sequence inline, which together with an inline dispatch
// keeps every test single-goroutine.
type fakeContext struct {
	delegate browser.Delegate

	loads    []string
	canceled []string
	url      string
	title    string

	canBack    bool
	canForward bool
	closed     bool

	// pending script completions, fired manually by tests
	evals []func(result string, err error)
}

func (f *fakeContext) Load(u string) error {
	if f.closed {
		return errors.New("context closed")
	}
	if u == "" {
		return errors.New("empty url")
	}
	if f.delegate.OnProvisional != nil {
		f.delegate.OnProvisional()
	}
	if f.delegate.Decide != nil && f.delegate.Decide(u) == browser.PolicyCancel {
		f.canceled = append(f.canceled, u)
		return nil
	}
	f.loads = append(f.loads, u)
	f.url = u
	f.title = "Title: " + u
	if f.delegate.OnCommit != nil {
		f.delegate.OnCommit(u)
	}
	if f.delegate.OnFinish != nil {
		f.delegate.OnFinish(u, f.title)
	}
	return nil
}

func (f *fakeContext) Reload() error  { return f.Load(f.url) }
func (f *fakeContext) Back() error    { return nil }
func (f *fakeContext) Forward() error { return nil }

func (f *fakeContext) EvaluateScript(script string, done func(result string, err error)) {
	f.evals = append(f.evals, done)
}

func (f *fakeContext) URL() string        { return f.url }
func (f *fakeContext) Title() string      { return f.title }
func (f *fakeContext) CanGoBack() bool    { return f.canBack }
func (f *fakeContext) CanGoForward() bool { return f.canForward }

func (f *fakeContext) SetDelegate(d browser.Delegate) { f.delegate = d }
func (f *fakeContext) Close() error                   { f.closed = true; return nil }

type fakeEngine struct {
	contexts []*fakeContext
}

func (e *fakeEngine) NewContext(ctx context.Context) (browser.Context, error) {
	fc := &fakeContext{}
	e.contexts = append(e.contexts, fc)
	return fc, nil
}

// blockingFetcher never completes on its own; transfers stay in flight until
// the manager shuts down.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, url, dest string) error {
	<-ctx.Done()
	return ctx.Err()
}

func inline(job func()) { job() }

type testFixture struct {
	m      *Manager
	engine *fakeEngine
	store  *store.Store
	cfg    *config.Config
	errors []string
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	cfg.Browser.LandingPage = "" // keep history clean unless a test opts in

	dl := download.NewManager(download.Options{
		Dispatch: inline,
		Fetcher:  blockingFetcher{},
		Dir:      t.TempDir(),
		Tick:     time.Hour, // never ticks during a test
	})
	t.Cleanup(dl.Shutdown)

	f := &testFixture{engine: &fakeEngine{}, store: s, cfg: cfg}
	f.m = NewManager(Options{
		Dispatch:  inline,
		Engine:    f.engine,
		Store:     s,
		Config:    cfg,
		Downloads: dl,
		OnError:   func(msg string) { f.errors = append(f.errors, msg) },
	})
	return f
}

func (f *testFixture) activeContext(t *testing.T) *fakeContext {
	t.Helper()
	active := f.m.ActiveSession()
	require.NotNil(t, active)
	return active.rctx.(*fakeContext)
}

func TestCreateSession_ExactlyOneActive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())

	views := f.m.Sessions()
	require.Len(t, views, 3)
	activeCount := 0
	for _, v := range views {
		if v.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
	assert.True(t, views[2].Active, "newest session is active")
}

func TestSwitchSession_UnknownIDChangesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	before := f.m.Sessions()

	f.m.SwitchSession("no-such-id")

	assert.Equal(t, before, f.m.Sessions())
}

func TestSwitchSession_MovesActiveFlag(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	first := f.m.Sessions()[0]

	f.m.SwitchSession(first.ID)

	views := f.m.Sessions()
	assert.True(t, views[0].Active)
	assert.False(t, views[1].Active)
}

func TestCloseSession_LastRemainingIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	only := f.m.Sessions()[0]

	f.m.CloseSession(only.ID)

	require.Len(t, f.m.Sessions(), 1)
	assert.False(t, f.engine.contexts[0].closed)
}

func TestCloseSession_ActiveAtEndClampsToNewLast(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	last := f.m.Sessions()[2]

	f.m.CloseSession(last.ID)

	views := f.m.Sessions()
	require.Len(t, views, 2)
	assert.True(t, views[1].Active, "activation falls to min(oldIndex, count-1)")
}

func TestCloseSession_DropsRenderingContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	first := f.m.Sessions()[0]

	f.m.CloseSession(first.ID)

	assert.True(t, f.engine.contexts[0].closed)
	assert.False(t, f.engine.contexts[1].closed)
}

func TestTabsPersistWriteThrough(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())

	tabs := f.store.LoadTabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, f.m.Sessions()[0].ID, tabs[0].ID)
	assert.False(t, tabs[0].Active)
	assert.True(t, tabs[1].Active)
}

func TestRestore_RebuildsSessions(t *testing.T) {
	f := newFixture(t)
	f.store.SaveTabs([]store.Tab{
		{ID: "a", Title: "A", URL: "https://a.example.com", Active: false},
		{ID: "b", Title: "B", URL: "https://b.example.com", Active: true},
	})

	require.NoError(t, f.m.Restore())

	views := f.m.Sessions()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].ID)
	assert.True(t, views[1].Active)
	assert.Contains(t, f.engine.contexts[0].loads, "https://a.example.com")
}

func TestRestore_RepairsActiveFlag(t *testing.T) {
	f := newFixture(t)
	f.store.SaveTabs([]store.Tab{
		{ID: "a", Active: true},
		{ID: "b", Active: true},
	})

	require.NoError(t, f.m.Restore())

	views := f.m.Sessions()
	assert.True(t, views[0].Active)
	assert.False(t, views[1].Active)
}

func TestRestore_EmptySnapshotCreatesFreshSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Restore())
	require.Len(t, f.m.Sessions(), 1)
	assert.True(t, f.m.Sessions()[0].Active)
}

func TestLoadAddress_LiteralAddress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	require.NoError(t, f.m.LoadAddress("example.com"))

	fc := f.activeContext(t)
	require.NotEmpty(t, fc.loads)
	assert.Equal(t, "https://example.com", fc.loads[len(fc.loads)-1])
}

func TestLoadAddress_SearchRouting(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	require.NoError(t, f.m.LoadAddress("not a url"))

	fc := f.activeContext(t)
	require.NotEmpty(t, fc.loads)
	assert.Equal(t, "https://www.google.com/search?q=not+a+url", fc.loads[len(fc.loads)-1])
}

func TestHistory_AppendOnlyNoDedup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	require.NoError(t, f.m.LoadAddress("https://example.com"))
	require.NoError(t, f.m.LoadAddress("https://example.com"))

	items := f.m.History()
	require.Len(t, items, 2)
	assert.Equal(t, items[0].URL, items[1].URL)
	assert.Len(t, f.store.LoadHistory(), 2)
}

func TestFinish_UpdatesOwningSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	require.NoError(t, f.m.LoadAddress("https://example.com"))

	active := f.m.Sessions()[0]
	assert.Equal(t, "https://example.com", active.URL)
	assert.Equal(t, "Title: https://example.com", active.Title)
	assert.Equal(t, StateFinished, active.State)

	tabs := f.store.LoadTabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, "https://example.com", tabs[0].URL)
}

func TestNavigationFailure_SurfacedAndNonFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	fc.delegate.OnProvisional()
	fc.delegate.OnFail(true, errors.New("net::ERR_NAME_NOT_RESOLVED"))

	view := f.m.Sessions()[0]
	assert.Equal(t, StateFailed, view.State)
	assert.False(t, view.Loading)
	assert.Zero(t, view.Progress)
	require.Len(t, f.errors, 1)

	// The session stays usable: a fresh load succeeds.
	require.NoError(t, f.m.LoadAddress("https://example.com"))
	assert.Equal(t, StateFinished, f.m.Sessions()[0].State)
}

func TestRedirect_UpdatesDisplayOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	fc.delegate.OnProvisional()
	fc.delegate.OnRedirect("https://moved.example.com")

	view := f.m.Sessions()[0]
	assert.Equal(t, "https://moved.example.com", view.DisplayURL)
	assert.Equal(t, StateProvisional, view.State, "redirect does not change state")
}

func TestNewWindow_ReroutesIntoSameSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	fc.delegate.OnNewWindow("https://popup.example.com")

	assert.Contains(t, fc.loads, "https://popup.example.com")
	assert.Len(t, f.m.Sessions(), 1, "no new session is created")
}

func TestLateCallbackAfterClose_IsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	first := f.m.Sessions()[0]
	fc := f.engine.contexts[0]
	delegate := fc.delegate

	f.m.CloseSession(first.ID)

	// The context is gone; a straggling finish must not touch anything.
	delegate.OnFinish("https://stale.example.com", "stale")
	assert.Empty(t, f.m.History())
}

func TestBookmark_BlankPageRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	err := f.m.AddBookmark()
	require.ErrorIs(t, err, ErrCannotBookmark)
	assert.Empty(t, f.m.Bookmarks())
}

func TestBookmark_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.LoadAddress("https://example.com"))

	require.NoError(t, f.m.AddBookmark())
	err := f.m.AddBookmark()

	require.ErrorIs(t, err, ErrDuplicateBookmark)
	assert.Len(t, f.m.Bookmarks(), 1)
	assert.Len(t, f.store.LoadBookmarks(), 1)
}

func TestBookmark_RemoveAndClear(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.LoadAddress("https://example.com"))
	require.NoError(t, f.m.AddBookmark())
	id := f.m.Bookmarks()[0].ID

	f.m.RemoveBookmark(id)
	assert.Empty(t, f.m.Bookmarks())

	require.NoError(t, f.m.AddBookmark())
	f.m.ClearBookmarks()
	assert.Empty(t, f.m.Bookmarks())
	assert.Empty(t, f.store.LoadBookmarks())
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.LoadAddress("https://example.com"))

	f.m.ClearHistory()

	assert.Empty(t, f.m.History())
	assert.Empty(t, f.store.LoadHistory())
}

func TestToggleDarkMode_Persists(t *testing.T) {
	f := newFixture(t)

	f.m.ToggleDarkMode()
	assert.True(t, f.m.Settings().DarkMode)
	assert.True(t, f.store.LoadSettings().DarkMode)

	f.m.ToggleDarkMode()
	assert.False(t, f.m.Settings().DarkMode)
}

func TestCustomCommands_AddRunDelete(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())

	cmd := f.m.AddCommand("Scroll down", "window.scrollBy(0, 500)", "arrow.down")
	require.NoError(t, f.m.RunCommand(cmd.ID))

	fc := f.activeContext(t)
	require.Len(t, fc.evals, 1)

	f.m.DeleteCommand(cmd.ID)
	assert.Empty(t, f.m.Commands())
	require.ErrorIs(t, f.m.RunCommand(cmd.ID), ErrUnknownCommand)
}

func TestConsole_CompletionOrderNotIssuanceOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	f.m.EvaluateScript("first()")
	f.m.EvaluateScript("second()")
	require.Len(t, fc.evals, 2)

	// Complete in reverse issuance order; the transcript follows completion.
	fc.evals[1]("result-second", nil)
	fc.evals[0]("result-first", nil)

	entries := f.m.Console()
	require.Len(t, entries, 2)
	assert.Equal(t, "result-second", entries[0].Text)
	assert.Equal(t, "result-first", entries[1].Text)
}

func TestConsole_ScriptErrorIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	f.m.EvaluateScript("broken(")
	require.Len(t, fc.evals, 1)
	fc.evals[0]("", errors.New("SyntaxError: unexpected end of input"))

	entries := f.m.Console()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsError)
	assert.Empty(t, f.errors, "script failures never raise a blocking alert")
}

func TestConsole_LateCompletionForClosedSessionDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	require.NoError(t, f.m.CreateSession())
	fc := f.engine.contexts[1]

	f.m.EvaluateScript("slow()")
	require.Len(t, fc.evals, 1)

	f.m.CloseSession(f.m.Sessions()[1].ID)
	fc.evals[0]("late", nil)

	assert.Empty(t, f.m.Console())
}

// pausedContext mimics the real engine contract: Load keeps the request
// paused and does not return until the policy decision resolves.
type pausedContext struct {
	fakeContext
}

func (p *pausedContext) Load(u string) error {
	if p.delegate.Decide != nil && p.delegate.Decide(u) == browser.PolicyCancel {
		p.canceled = append(p.canceled, u)
		return nil
	}
	p.loads = append(p.loads, u)
	p.url = u
	return nil
}

type pausedEngine struct{}

func (pausedEngine) NewContext(ctx context.Context) (browser.Context, error) {
	return &pausedContext{}, nil
}

// The policy decision must resolve while Load is still holding the control
// loop; a decision that waits on the loop would stall every navigation.
func TestLoadAddress_PolicyResolvesWhileLoadHoldsLoop(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	cfg.Browser.LandingPage = ""

	dl := download.NewManager(download.Options{
		Dispatch: loop.Dispatch,
		Fetcher:  blockingFetcher{},
		Dir:      t.TempDir(),
		Tick:     time.Hour,
	})
	t.Cleanup(dl.Shutdown)

	m := NewManager(Options{
		Dispatch:  loop.Dispatch,
		Engine:    pausedEngine{},
		Store:     s,
		Config:    cfg,
		Downloads: dl,
	})
	loop.Do(func() { _ = m.CreateSession() })

	done := make(chan error, 1)
	go loop.Do(func() { done <- m.LoadAddress("example.com/file.pdf") })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadAddress stalled while the policy decision was pending")
	}

	var items []download.Item
	loop.Do(func() { items = m.downloads.Items() })
	require.Len(t, items, 1)
	assert.Equal(t, "file.pdf", items[0].Filename)
}

func TestDecide_SearchResultsUpdatesDisplayOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	fc.delegate.OnProvisional()
	policy := fc.delegate.Decide("https://www.google.com/search?q=kittens")

	assert.Equal(t, browser.PolicyAllow, policy)
	view := f.m.Sessions()[0]
	assert.Equal(t, "https://www.google.com/search?q=kittens", view.DisplayURL)
	assert.Equal(t, StateProvisional, view.State, "address display only, no transition")
}

func TestSetSearchConfig_RefreshesPolicyHosts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.CreateSession())
	fc := f.activeContext(t)

	f.m.SetSearchConfig(config.SearchConfig{
		Default: "ex",
		Providers: []config.SearchProvider{
			{Key: "ex", Template: "https://search.example.net/?q=%s"},
		},
	})

	fc.delegate.Decide("https://search.example.net/?q=kittens")
	assert.Equal(t, "https://search.example.net/?q=kittens", f.m.Sessions()[0].DisplayURL)

	fc.delegate.Decide("https://www.google.com/search?q=kittens")
	assert.NotEqual(t, "https://www.google.com/search?q=kittens", f.m.Sessions()[0].DisplayURL,
		"replaced provider hosts no longer match")
}

// End-to-end: the three-session close, search routing, and download
// classification scenarios in one flow.
func TestEndToEnd(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.m.CreateSession()) // A
	require.NoError(t, f.m.CreateSession()) // B
	require.NoError(t, f.m.CreateSession()) // C, active
	a, b, c := f.m.Sessions()[0], f.m.Sessions()[1], f.m.Sessions()[2]

	f.m.CloseSession(b.ID)
	views := f.m.Sessions()
	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].ID)
	assert.Equal(t, c.ID, views[1].ID)
	assert.True(t, views[1].Active, "C stays active")

	require.NoError(t, f.m.LoadAddress("not a url"))
	fc := f.activeContext(t)
	assert.Equal(t, "https://www.google.com/search?q=not+a+url", fc.loads[len(fc.loads)-1])

	require.NoError(t, f.m.LoadAddress("example.com/file.pdf"))
	require.Len(t, fc.canceled, 1, "pdf navigation is cancelled")
	items := f.m.downloads.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "file.pdf", items[0].Filename)
	assert.True(t, items[0].Downloading)
}
