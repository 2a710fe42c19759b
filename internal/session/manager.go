package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"browsernerd/internal/browser"
	"browsernerd/internal/config"
	"browsernerd/internal/download"
	"browsernerd/internal/logging"
	"browsernerd/internal/store"

	"github.com/google/uuid"
)

// Engine mints rendering contexts; satisfied by browser.Engine.
type Engine interface {
	NewContext(ctx context.Context) (browser.Context, error)
}

// Session is one tab: a stable id bound 1:1 to a rendering context and a
// navigation controller. Owned exclusively by the Manager.
type Session struct {
	ID     string
	Title  string
	URL    string
	Active bool

	rctx browser.Context
	nav  *NavController
}

// SessionView is the read-only projection handed to observers.
type SessionView struct {
	ID           string
	Title        string
	URL          string
	Active       bool
	State        NavState
	Loading      bool
	Progress     float64
	DisplayURL   string
	CanGoBack    bool
	CanGoForward bool
}

// ConsoleEntry is one line of the script console transcript, appended in
// completion order.
type ConsoleEntry struct {
	Text    string
	IsError bool
	At      time.Time
}

// Manager owns the ordered tab collection and the command surface. Every
// method runs on the control loop; the Manager itself holds no locks.
type Manager struct {
	dispatch  func(func())
	engine    Engine
	store     *store.Store
	cfg       *config.Config
	downloads *download.Manager
	activity  *logging.ActivityLog

	sessions  []*Session
	history   []store.HistoryItem
	bookmarks []store.Bookmark
	commands  []store.CustomCommand
	settings  store.Settings
	console   []ConsoleEntry

	// Host set of the configured search providers, read by the policy
	// delegate off the control loop.
	searchMu    sync.RWMutex
	searchHosts map[string]bool

	onChange func()
	onError  func(msg string)

	ctx context.Context
}

// Options configures a Manager.
type Options struct {
	Dispatch  func(func()) // required: the control loop
	Engine    Engine       // required
	Store     *store.Store
	Config    *config.Config
	Downloads *download.Manager
	Activity  *logging.ActivityLog
	OnChange  func()            // state snapshot invalidation for the UI
	OnError   func(msg string)  // user-visible failures
	Context   context.Context   // lifetime for rendering contexts
}

// NewManager creates a manager with persisted collections loaded. No session
// exists until Restore or CreateSession runs.
func NewManager(opts Options) *Manager {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	m := &Manager{
		dispatch:  opts.Dispatch,
		engine:    opts.Engine,
		store:     opts.Store,
		cfg:       opts.Config,
		downloads: opts.Downloads,
		activity:  opts.Activity,
		onChange:  opts.OnChange,
		onError:   opts.OnError,
		ctx:       opts.Context,
	}
	if m.store != nil {
		m.history = m.store.LoadHistory()
		m.bookmarks = m.store.LoadBookmarks()
		m.commands = m.store.LoadCommands()
		m.settings = m.store.LoadSettings()
	}
	if m.settings.SearchProvider == "" && m.cfg != nil {
		m.settings.SearchProvider = m.cfg.Search.Default
	}
	m.refreshSearchHosts()
	return m
}

// Restore rebuilds the tab collection from the persisted snapshot, falling
// back to a single fresh session when nothing usable was saved.
func (m *Manager) Restore() error {
	var tabs []store.Tab
	if m.store != nil {
		tabs = m.store.LoadTabs()
	}
	for _, tab := range tabs {
		s, err := m.newSession(tab.ID)
		if err != nil {
			logging.SessionError("restore tab %s: %v", tab.ID, err)
			continue
		}
		s.Title = tab.Title
		s.URL = tab.URL
		s.Active = tab.Active
		m.sessions = append(m.sessions, s)
		if tab.URL != "" {
			if err := s.rctx.Load(tab.URL); err != nil {
				logging.SessionError("restore load %s: %v", tab.URL, err)
			}
		}
	}

	if len(m.sessions) == 0 {
		return m.CreateSession()
	}

	// Exactly one session is active; repair a snapshot that disagrees.
	activeSeen := false
	for _, s := range m.sessions {
		if s.Active {
			if activeSeen {
				s.Active = false
			}
			activeSeen = true
		}
	}
	if !activeSeen {
		m.sessions[len(m.sessions)-1].Active = true
	}
	m.persistTabs()
	m.changed()
	logging.Session("restored %d sessions", len(m.sessions))
	return nil
}

// CreateSession appends a fresh active session and loads the landing page.
func (m *Manager) CreateSession() error {
	s, err := m.newSession(uuid.NewString())
	if err != nil {
		return err
	}
	for _, other := range m.sessions {
		other.Active = false
	}
	s.Active = true
	m.sessions = append(m.sessions, s)

	landing := ""
	if m.cfg != nil {
		landing = m.cfg.Browser.LandingPage
	}
	if landing != "" {
		s.URL = landing
		if err := s.rctx.Load(landing); err != nil {
			logging.SessionError("landing page load: %v", err)
		}
	}

	logging.Session("created session %s", s.ID)
	if m.activity != nil {
		m.activity.Event("Tab opened")
	}
	m.persistTabs()
	m.changed()
	return nil
}

// SwitchSession activates the session with the given id. Unknown ids leave
// all state unchanged.
func (m *Manager) SwitchSession(id string) {
	target := m.byID(id)
	if target == nil {
		return
	}
	for _, s := range m.sessions {
		s.Active = false
	}
	target.Active = true
	target.nav.refreshCapabilities()
	logging.SessionDebug("switched to %s", id)
	m.persistTabs()
	m.changed()
}

// CloseSession removes a session and its rendering context. Closing the last
// remaining session is a no-op; closing the active one activates the session
// at the clamped index.
func (m *Manager) CloseSession(id string) {
	if len(m.sessions) <= 1 {
		return
	}
	idx := -1
	for i, s := range m.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	closing := m.sessions[idx]
	wasActive := closing.Active
	// Drop the rendering context immediately; its late delegate callbacks
	// no-op via the id lookup guard.
	if err := closing.rctx.Close(); err != nil {
		logging.SessionError("close context %s: %v", id, err)
	}
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)

	if wasActive {
		next := idx
		if next > len(m.sessions)-1 {
			next = len(m.sessions) - 1
		}
		for _, s := range m.sessions {
			s.Active = false
		}
		m.sessions[next].Active = true
	}

	logging.Session("closed session %s", id)
	if m.activity != nil {
		m.activity.Event("Tab closed")
	}
	m.persistTabs()
	m.changed()
}

// ActiveSession returns the active session, or nil for an empty collection.
func (m *Manager) ActiveSession() *Session {
	for _, s := range m.sessions {
		if s.Active {
			return s
		}
	}
	return nil
}

// Sessions returns read-only projections in tab order.
func (m *Manager) Sessions() []SessionView {
	out := make([]SessionView, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = SessionView{
			ID:           s.ID,
			Title:        s.Title,
			URL:          s.URL,
			Active:       s.Active,
			State:        s.nav.State,
			Loading:      s.nav.Loading,
			Progress:     s.nav.Progress,
			DisplayURL:   s.nav.DisplayURL,
			CanGoBack:    s.nav.CanGoBack,
			CanGoForward: s.nav.CanGoForward,
		}
	}
	return out
}

// Shutdown closes every rendering context and persists the final snapshot.
func (m *Manager) Shutdown() {
	for _, s := range m.sessions {
		if err := s.rctx.Close(); err != nil {
			logging.SessionError("shutdown close %s: %v", s.ID, err)
		}
	}
	m.persistTabs()
}

// newSession builds a session and wires its delegate. Every callback
// re-marshals onto the control loop and validates the session id still
// exists before applying any effect.
func (m *Manager) newSession(id string) (*Session, error) {
	rctx, err := m.engine.NewContext(m.ctx)
	if err != nil {
		return nil, fmt.Errorf("create rendering context: %w", err)
	}

	s := &Session{ID: id, Title: "New Tab", rctx: rctx}
	s.nav = newNavController(id, rctx, m.dispatch, navHooks{
		startDownload: m.startDownload,
		finished: func(url, title string) {
			m.recordVisit(id, url, title)
		},
		failed: func(err error, provisional bool) {
			m.surfaceError(fmt.Sprintf("Navigation failed: %v", err))
		},
		changed: m.changed,
	})

	rctx.SetDelegate(browser.Delegate{
		OnProvisional: func() {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.Start()
				}
			})
		},
		// Decide runs on the engine goroutine while the request is paused.
		// Load may be holding the control loop at that moment, so the
		// answer must not wait on a loop round-trip: classification is
		// pure and the search-host set is read under its own lock. Only
		// the bookkeeping side effects are marshaled, fire-and-forget.
		Decide: func(u string) browser.Policy {
			if download.Classify(u) {
				m.dispatch(func() {
					if cur := m.byID(id); cur != nil {
						cur.nav.DownloadInstead(u)
					}
				})
				return browser.PolicyCancel
			}
			if m.isSearchResults(u) {
				m.dispatch(func() {
					if cur := m.byID(id); cur != nil {
						cur.nav.ShowAddress(u)
					}
				})
			}
			return browser.PolicyAllow
		},
		OnCommit: func(u string) {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.Commit(u)
				}
			})
		},
		OnFinish: func(u, title string) {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.Finish(u, title)
				}
			})
		},
		OnFail: func(provisional bool, err error) {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.Fail(provisional, err)
				}
			})
		},
		OnRedirect: func(u string) {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.Redirect(u)
				}
			})
		},
		OnNewWindow: func(u string) {
			m.dispatch(func() {
				if cur := m.byID(id); cur != nil {
					cur.nav.NewWindow(u)
				}
			})
		},
	})
	return s, nil
}

// recordVisit appends the history item and updates the owning session's
// URL/title after a finished load.
func (m *Manager) recordVisit(id, pageURL, title string) {
	m.history = append(m.history, store.HistoryItem{
		ID:        uuid.NewString(),
		URL:       pageURL,
		Title:     title,
		VisitedAt: time.Now(),
	})
	if m.store != nil {
		m.store.SaveHistory(m.history)
	}

	if s := m.byID(id); s != nil {
		s.URL = pageURL
		if title != "" {
			s.Title = title
		}
		m.persistTabs()
	}
	if m.activity != nil {
		m.activity.Event("Page visited", pageURL)
	}
}

// startDownload hands a classified URL to the transfer manager.
func (m *Manager) startDownload(rawURL string) {
	if m.downloads == nil {
		return
	}
	m.downloads.Start(rawURL)
}

// SetSearchConfig swaps the search configuration, e.g. on live config
// reload. Runs on the control loop; the derived host set carries its own
// lock because the policy delegate reads it off-loop.
func (m *Manager) SetSearchConfig(sc config.SearchConfig) {
	if m.cfg != nil {
		m.cfg.Search = sc
	}
	m.refreshSearchHosts()
}

func (m *Manager) refreshSearchHosts() {
	hosts := make(map[string]bool)
	if m.cfg != nil {
		for _, p := range m.cfg.Search.Providers {
			if p.Template == "" {
				continue
			}
			if tu, err := url.Parse(p.Template); err == nil && tu.Host != "" {
				hosts[tu.Host] = true
			}
		}
	}
	m.searchMu.Lock()
	m.searchHosts = hosts
	m.searchMu.Unlock()
}

// isSearchResults reports whether the URL is a query against one of the
// configured providers; those only refresh the address display. Safe to
// call off the control loop.
func (m *Manager) isSearchResults(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return false
	}
	m.searchMu.RLock()
	defer m.searchMu.RUnlock()
	return m.searchHosts[u.Host]
}

func (m *Manager) byID(id string) *Session {
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *Manager) persistTabs() {
	if m.store == nil {
		return
	}
	tabs := make([]store.Tab, len(m.sessions))
	for i, s := range m.sessions {
		tabs[i] = store.Tab{ID: s.ID, Title: s.Title, URL: s.URL, Active: s.Active}
	}
	m.store.SaveTabs(tabs)
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}

func (m *Manager) surfaceError(msg string) {
	if m.onError != nil {
		m.onError(msg)
	}
}
