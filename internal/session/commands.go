package session

import (
	"fmt"
	"time"

	"browsernerd/internal/config"
	"browsernerd/internal/logging"
	"browsernerd/internal/store"

	"github.com/google/uuid"
)

// The command surface the presentation layer invokes, always on the control
// loop. Errors returned here are user-visible outcomes, not process faults.

// LoadAddress routes raw address-bar input: search-looking input goes
// through the selected provider's query template, everything else is loaded
// as a literal address.
func (m *Manager) LoadAddress(raw string) error {
	active := m.ActiveSession()
	if active == nil {
		return fmt.Errorf("%w: no active session", ErrNavigationFailed)
	}

	var provider config.SearchProvider
	if m.cfg != nil {
		provider = m.cfg.Search.Provider(m.settings.SearchProvider)
	}
	target, err := ResolveAddress(raw, provider)
	if err != nil {
		return err
	}

	logging.Navigation("load address: %q -> %s", raw, target)
	if m.activity != nil {
		m.activity.Event("Navigated", target)
	}
	if err := active.rctx.Load(target); err != nil {
		m.surfaceError(fmt.Sprintf("Could not load %s", target))
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	return nil
}

// Reload reloads the active session's page.
func (m *Manager) Reload() error {
	active := m.ActiveSession()
	if active == nil {
		return nil
	}
	if err := active.rctx.Reload(); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	return nil
}

// Back traverses the active session's history backwards.
func (m *Manager) Back() error {
	active := m.ActiveSession()
	if active == nil {
		return nil
	}
	if err := active.rctx.Back(); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	active.nav.refreshCapabilities()
	m.changed()
	return nil
}

// Forward traverses the active session's history forwards.
func (m *Manager) Forward() error {
	active := m.ActiveSession()
	if active == nil {
		return nil
	}
	if err := active.rctx.Forward(); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	active.nav.refreshCapabilities()
	m.changed()
	return nil
}

// ToggleDarkMode flips and persists the dark-mode setting.
func (m *Manager) ToggleDarkMode() {
	m.settings.DarkMode = !m.settings.DarkMode
	if m.store != nil {
		m.store.SaveSettings(m.settings)
	}
	m.changed()
}

// SetSearchProvider selects and persists the search provider.
func (m *Manager) SetSearchProvider(key string) {
	m.settings.SearchProvider = key
	if m.store != nil {
		m.store.SaveSettings(m.settings)
	}
	m.changed()
}

// AddBookmark bookmarks the active session's page. Duplicate URLs and
// empty/placeholder pages are rejected with distinct outcomes.
func (m *Manager) AddBookmark() error {
	active := m.ActiveSession()
	if active == nil || active.URL == "" || active.URL == "about:blank" {
		return ErrCannotBookmark
	}
	for _, b := range m.bookmarks {
		if b.URL == active.URL {
			return ErrDuplicateBookmark
		}
	}
	m.bookmarks = append(m.bookmarks, store.Bookmark{
		ID:      uuid.NewString(),
		URL:     active.URL,
		Title:   active.Title,
		AddedAt: time.Now(),
	})
	if m.store != nil {
		m.store.SaveBookmarks(m.bookmarks)
	}
	if m.activity != nil {
		m.activity.Event("Bookmark added", active.URL)
	}
	m.changed()
	return nil
}

// RemoveBookmark deletes a bookmark by id. Unknown ids are a no-op.
func (m *Manager) RemoveBookmark(id string) {
	for i, b := range m.bookmarks {
		if b.ID == id {
			m.bookmarks = append(m.bookmarks[:i], m.bookmarks[i+1:]...)
			if m.store != nil {
				m.store.SaveBookmarks(m.bookmarks)
			}
			m.changed()
			return
		}
	}
}

// ClearHistory drops the visit log.
func (m *Manager) ClearHistory() {
	m.history = nil
	if m.store != nil {
		m.store.SaveHistory(m.history)
	}
	if m.activity != nil {
		m.activity.Event("History cleared")
	}
	m.changed()
}

// ClearBookmarks drops all bookmarks.
func (m *Manager) ClearBookmarks() {
	m.bookmarks = nil
	if m.store != nil {
		m.store.SaveBookmarks(m.bookmarks)
	}
	if m.activity != nil {
		m.activity.Event("Bookmarks cleared")
	}
	m.changed()
}

// ClearDownloads drops the download collection, in-flight items included.
func (m *Manager) ClearDownloads() {
	if m.downloads != nil {
		m.downloads.Clear()
	}
	if m.activity != nil {
		m.activity.Event("Downloads cleared")
	}
	m.changed()
}

// AddCommand stores a user-defined script.
func (m *Manager) AddCommand(name, script, icon string) store.CustomCommand {
	cmd := store.CustomCommand{
		ID:     uuid.NewString(),
		Name:   name,
		Script: script,
		Icon:   icon,
	}
	m.commands = append(m.commands, cmd)
	if m.store != nil {
		m.store.SaveCommands(m.commands)
	}
	m.changed()
	return cmd
}

// DeleteCommand removes a stored command by id. Unknown ids are a no-op.
func (m *Manager) DeleteCommand(id string) {
	for i, c := range m.commands {
		if c.ID == id {
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			if m.store != nil {
				m.store.SaveCommands(m.commands)
			}
			m.changed()
			return
		}
	}
}

// EvaluateScript runs script text against the active session. The response
// lands on the console transcript in completion order; concurrent
// evaluations carry no ordering guarantee.
func (m *Manager) EvaluateScript(script string) {
	active := m.ActiveSession()
	if active == nil {
		return
	}
	id := active.ID
	active.rctx.EvaluateScript(script, func(result string, err error) {
		m.dispatch(func() {
			if m.byID(id) == nil {
				return
			}
			if err != nil {
				logging.SessionError("script evaluation: %v", err)
				m.appendConsole(fmt.Sprintf("%v: %v", ErrScriptEvaluation, err), true)
				return
			}
			m.appendConsole(result, false)
		})
	})
}

// RunCommand executes a stored custom command's script.
func (m *Manager) RunCommand(id string) error {
	for _, c := range m.commands {
		if c.ID == id {
			logging.Session("running command %q", c.Name)
			if m.activity != nil {
				m.activity.Event("Command executed", c.Name)
			}
			m.EvaluateScript(c.Script)
			return nil
		}
	}
	return ErrUnknownCommand
}

// History returns the visit log snapshot, oldest first.
func (m *Manager) History() []store.HistoryItem {
	return append([]store.HistoryItem(nil), m.history...)
}

// Bookmarks returns the bookmark snapshot in insertion order.
func (m *Manager) Bookmarks() []store.Bookmark {
	return append([]store.Bookmark(nil), m.bookmarks...)
}

// Commands returns stored custom commands in insertion order.
func (m *Manager) Commands() []store.CustomCommand {
	return append([]store.CustomCommand(nil), m.commands...)
}

// Settings returns the current persisted settings.
func (m *Manager) Settings() store.Settings { return m.settings }

// Console returns the script console transcript.
func (m *Manager) Console() []ConsoleEntry {
	return append([]ConsoleEntry(nil), m.console...)
}

func (m *Manager) appendConsole(text string, isError bool) {
	m.console = append(m.console, ConsoleEntry{Text: text, IsError: isError, At: time.Now()})
	m.changed()
}
