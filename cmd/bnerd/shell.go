// This file implements the interactive browsing shell using bubbletea.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"browsernerd/internal/access"
	"browsernerd/internal/browser"
	"browsernerd/internal/config"
	"browsernerd/internal/download"
	"browsernerd/internal/logging"
	"browsernerd/internal/session"
	"browsernerd/internal/store"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// app bundles the running core components behind the control loop.
type app struct {
	loop *session.Loop
	mgr  *session.Manager
	dl   *download.Manager
	gate *access.Gate
	cfg  *config.Config
}

// shellSnapshot is the read-only state projection the UI renders from,
// assembled in one control-loop job.
type shellSnapshot struct {
	sessions  []session.SessionView
	downloads []download.Item
	console   []session.ConsoleEntry
	bookmarks []store.Bookmark
	history   []store.HistoryItem
	commands  []store.CustomCommand
	settings  store.Settings
	activated bool
	remaining time.Duration
}

func (a *app) snapshot() shellSnapshot {
	var snap shellSnapshot
	a.loop.Do(func() {
		snap.sessions = a.mgr.Sessions()
		snap.downloads = a.dl.Items()
		snap.console = a.mgr.Console()
		snap.bookmarks = a.mgr.Bookmarks()
		snap.history = a.mgr.History()
		snap.commands = a.mgr.Commands()
		snap.settings = a.mgr.Settings()
		snap.activated = a.gate.IsActivated()
		snap.remaining = a.gate.TimeRemaining()
	})
	return snap
}

// runShell wires the core together and hands control to the TUI.
func runShell() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.StateDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("%s %s starting", cfg.Name, cfg.Version)

	activity, err := logging.NewActivityLog(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}

	s, err := store.Open(filepath.Join(cfg.StateDir, "state.db"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := session.NewLoop()
	loop.Start()
	defer loop.Close()

	engine := browser.NewEngine(cfg.Browser)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start browser engine: %w", err)
	}
	defer func() { _ = engine.Shutdown() }()

	// The program is created after the components that notify it; the
	// notifier drops messages atomically until a target is bound, since
	// the gate ticker and restore start sending before Run.
	n := &notifier{}
	notify := func() { n.send(refreshMsg{}) }
	surface := func(msg string) { n.send(flashMsg(msg)) }

	dl := download.NewManager(download.Options{
		Dispatch: loop.Dispatch,
		Fetcher:  download.NewHTTPFetcher(cfg.Downloads.RetryMax),
		Dir:      cfg.Downloads.Dir,
		Tick:     cfg.Downloads.ProgressTick(),
		Activity: activity,
		OnChange: notify,
		OnError: func(filename string, err error) {
			surface(fmt.Sprintf("Download failed: %s", filename))
		},
	})
	defer dl.Shutdown()

	gate := access.NewGate(access.Options{
		Dispatch:  loop.Dispatch,
		Validator: access.PlaintextValidator{Credential: cfg.Access.Credential},
		Store:     s,
		Duration:  cfg.Access.GrantDuration,
		OnChange:  notify,
	})
	gate.Start()
	defer gate.Close()

	mgr := session.NewManager(session.Options{
		Dispatch:  loop.Dispatch,
		Engine:    engine,
		Store:     s,
		Config:    cfg,
		Downloads: dl,
		Activity:  activity,
		OnChange:  notify,
		OnError:   surface,
		Context:   ctx,
	})
	var restoreErr error
	loop.Do(func() { restoreErr = mgr.Restore() })
	if restoreErr != nil {
		return fmt.Errorf("restore sessions: %w", restoreErr)
	}
	defer loop.Do(mgr.Shutdown)

	// Live config reload: search providers and credentials pick up edits
	// without a restart.
	watcher, err := config.NewWatcher(config.Path(cfg.StateDir), func(next *config.Config) {
		loop.Dispatch(func() {
			mgr.SetSearchConfig(next.Search)
			cfg.Downloads = next.Downloads
			notify()
		})
	})
	if err == nil {
		if werr := watcher.Start(ctx); werr != nil {
			logging.Boot("config watcher not started: %v", werr)
		} else {
			defer watcher.Stop()
		}
	}

	a := &app{loop: loop, mgr: mgr, dl: dl, gate: gate, cfg: cfg}
	program := tea.NewProgram(newShellModel(a), tea.WithAltScreen())
	n.bind(program)
	_, err = program.Run()
	return err
}

// msgTarget is what the notifier forwards to; satisfied by *tea.Program.
type msgTarget interface {
	Send(tea.Msg)
}

// notifier forwards core change events to the TUI once one exists. Sends
// before bind are dropped; bind and send race freely across goroutines.
type notifier struct {
	target atomic.Value // msgTarget
}

func (n *notifier) bind(t msgTarget) {
	n.target.Store(&t)
}

func (n *notifier) send(msg tea.Msg) {
	if v := n.target.Load(); v != nil {
		(*v.(*msgTarget)).Send(msg)
	}
}

// Panes of the lower view.
type pane int

const (
	paneTabs pane = iota
	paneDownloads
	paneBookmarks
	paneHistory
	paneConsole
	paneCount
)

func (p pane) title() string {
	switch p {
	case paneTabs:
		return "Tabs"
	case paneDownloads:
		return "Downloads"
	case paneBookmarks:
		return "Bookmarks"
	case paneHistory:
		return "History"
	case paneConsole:
		return "Console"
	}
	return ""
}

// Messages for tea updates
type (
	refreshMsg  struct{}
	flashMsg    string
	snapshotMsg shellSnapshot
)

type shellStyles struct {
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	address     lipgloss.Style
	flash       lipgloss.Style
	muted       lipgloss.Style
	paneTitle   lipgloss.Style
	locked      lipgloss.Style
}

func newShellStyles() shellStyles {
	return shellStyles{
		tabActive:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Underline(true),
		tabInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		address:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		flash:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		muted:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		paneTitle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("79")),
		locked:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
	}
}

type shellModel struct {
	app    *app
	input  textinput.Model
	styles shellStyles

	snap   shellSnapshot
	pane   pane
	flash  string
	width  int
	height int
}

func newShellModel(a *app) shellModel {
	ti := textinput.New()
	ti.Placeholder = "Enter address or search... (Ctrl+C to quit)"
	ti.Prompt = "> "
	ti.CharLimit = 2048
	ti.Width = 80
	ti.Focus()

	return shellModel{
		app:    a,
		input:  ti,
		styles: newShellStyles(),
		snap:   a.snapshot(),
	}
}

func (m shellModel) Init() tea.Cmd {
	return textinput.Blink
}

// fetchSnapshot re-reads core state off the tea goroutine.
func (m shellModel) fetchSnapshot() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		return snapshotMsg(a.snapshot())
	}
}

// do runs a core command on the control loop and refreshes.
func (m shellModel) do(job func()) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		a.loop.Do(job)
		return snapshotMsg(a.snapshot())
	}
}

// doErr is do for commands with a user-visible outcome.
func (m shellModel) doErr(job func() error) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		var err error
		a.loop.Do(func() { err = job() })
		if err != nil {
			return flashMsg(err.Error())
		}
		return snapshotMsg(a.snapshot())
	}
}

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case refreshMsg:
		return m, m.fetchSnapshot()

	case snapshotMsg:
		m.snap = shellSnapshot(msg)
		return m, nil

	case flashMsg:
		m.flash = string(msg)
		return m, m.fetchSnapshot()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m shellModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mgr := m.app.mgr

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		m.flash = ""
		if text == "" {
			return m, nil
		}
		if !m.snap.activated {
			return m.submitActivation(text)
		}
		return m.submitAddress(text)
	}

	if !m.snap.activated {
		// Everything except activation input is locked out.
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+t":
		return m, m.do(func() { _ = mgr.CreateSession() })
	case "ctrl+w":
		return m, m.do(func() {
			if s := mgr.ActiveSession(); s != nil {
				mgr.CloseSession(s.ID)
			}
		})
	case "ctrl+n":
		return m, m.do(func() { m.switchRelative(1) })
	case "ctrl+p":
		return m, m.do(func() { m.switchRelative(-1) })
	case "ctrl+r":
		return m, m.do(func() { _ = mgr.Reload() })
	case "alt+left":
		return m, m.do(func() { _ = mgr.Back() })
	case "alt+right":
		return m, m.do(func() { _ = mgr.Forward() })
	case "ctrl+d":
		return m, m.doErr(func() error { return mgr.AddBookmark() })
	case "ctrl+g":
		return m, m.do(mgr.ToggleDarkMode)
	case "ctrl+o":
		m.pane = (m.pane + 1) % paneCount
		return m, nil
	case "ctrl+x":
		return m, m.clearPane()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// switchRelative moves activation by delta in tab order. Control loop only.
func (m shellModel) switchRelative(delta int) {
	views := m.app.mgr.Sessions()
	if len(views) == 0 {
		return
	}
	cur := 0
	for i, v := range views {
		if v.Active {
			cur = i
			break
		}
	}
	next := (cur + delta + len(views)) % len(views)
	m.app.mgr.SwitchSession(views[next].ID)
}

func (m shellModel) submitActivation(code string) (tea.Model, tea.Cmd) {
	gate := m.app.gate
	return m, m.doErr(func() error {
		if !gate.Validate(code) {
			return access.ErrActivationRejected
		}
		return nil
	})
}

func (m shellModel) submitAddress(text string) (tea.Model, tea.Cmd) {
	mgr := m.app.mgr

	// "js <script>" runs against the active tab's page.
	if script, ok := strings.CutPrefix(text, "js "); ok {
		m.pane = paneConsole
		return m, m.do(func() { mgr.EvaluateScript(script) })
	}
	return m, m.doErr(func() error { return mgr.LoadAddress(text) })
}

func (m shellModel) clearPane() tea.Cmd {
	mgr := m.app.mgr
	switch m.pane {
	case paneDownloads:
		return m.do(mgr.ClearDownloads)
	case paneBookmarks:
		return m.do(mgr.ClearBookmarks)
	case paneHistory:
		return m.do(mgr.ClearHistory)
	}
	return nil
}

func (m shellModel) View() string {
	if !m.snap.activated {
		return m.lockedView()
	}

	var b strings.Builder
	b.WriteString(m.tabBar())
	b.WriteString("\n")
	b.WriteString(m.addressLine())
	b.WriteString("\n\n")
	b.WriteString(m.paneView())
	b.WriteString("\n")
	if m.flash != "" {
		b.WriteString(m.styles.flash.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.muted.Render(
		"ctrl+t new · ctrl+w close · ctrl+n/p switch · ctrl+r reload · " +
			"alt+←/→ history · ctrl+d bookmark · ctrl+o pane · ctrl+x clear · " +
			m.countdown()))
	return b.String()
}

func (m shellModel) lockedView() string {
	var b strings.Builder
	b.WriteString(m.styles.locked.Render("BrowserNERD is locked."))
	b.WriteString("\n\n")
	b.WriteString("Enter your activation code to continue.\n")
	if m.flash != "" {
		b.WriteString(m.styles.flash.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m shellModel) tabBar() string {
	parts := make([]string, 0, len(m.snap.sessions))
	for i, s := range m.snap.sessions {
		title := s.Title
		if title == "" {
			title = "New Tab"
		}
		label := fmt.Sprintf(" %d:%s ", i+1, truncate(title, 18))
		if s.Active {
			parts = append(parts, m.styles.tabActive.Render(label))
		} else {
			parts = append(parts, m.styles.tabInactive.Render(label))
		}
	}
	return strings.Join(parts, "│")
}

func (m shellModel) addressLine() string {
	var active *session.SessionView
	for i := range m.snap.sessions {
		if m.snap.sessions[i].Active {
			active = &m.snap.sessions[i]
			break
		}
	}
	if active == nil {
		return ""
	}
	addr := active.DisplayURL
	if addr == "" {
		addr = active.URL
	}
	line := m.styles.address.Render(addr)
	if active.Loading {
		line += m.styles.muted.Render(fmt.Sprintf("  loading %d%%", int(active.Progress*100)))
	}
	return line
}

func (m shellModel) paneView() string {
	var b strings.Builder
	b.WriteString(m.styles.paneTitle.Render("── " + m.pane.title() + " "))
	b.WriteString("\n")

	switch m.pane {
	case paneTabs:
		for i, s := range m.snap.sessions {
			marker := "  "
			if s.Active {
				marker = "▸ "
			}
			b.WriteString(fmt.Sprintf("%s%d. %s  %s\n",
				marker, i+1, truncate(s.Title, 30), m.styles.muted.Render(s.URL)))
		}
	case paneDownloads:
		if len(m.snap.downloads) == 0 {
			b.WriteString(m.styles.muted.Render("no downloads\n"))
		}
		for _, d := range m.snap.downloads {
			b.WriteString(fmt.Sprintf("  %s %s\n", progressBar(d.Progress, 20), d.Filename))
		}
	case paneBookmarks:
		if len(m.snap.bookmarks) == 0 {
			b.WriteString(m.styles.muted.Render("no bookmarks\n"))
		}
		for _, bm := range m.snap.bookmarks {
			b.WriteString(fmt.Sprintf("  %s  %s\n", truncate(bm.Title, 30), m.styles.muted.Render(bm.URL)))
		}
	case paneHistory:
		items := m.snap.history
		// newest first, capped to a screenful
		for i := len(items) - 1; i >= 0 && i >= len(items)-15; i-- {
			it := items[i]
			b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
				it.VisitedAt.Format("15:04"), truncate(it.Title, 28), m.styles.muted.Render(it.URL)))
		}
	case paneConsole:
		entries := m.snap.console
		for i := len(entries) - 15; i < len(entries); i++ {
			if i < 0 {
				continue
			}
			e := entries[i]
			if e.IsError {
				b.WriteString("  " + m.styles.flash.Render(e.Text) + "\n")
			} else {
				b.WriteString("  " + e.Text + "\n")
			}
		}
	}
	return b.String()
}

func (m shellModel) countdown() string {
	return fmt.Sprintf("access %s", m.snap.remaining.Round(time.Second))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

func progressBar(p float64, width int) string {
	filled := int(p * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
