package store

import "time"

// Tab is the persisted snapshot of one browsing session.
type Tab struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// HistoryItem is one append-only visit record. URLs are not deduplicated.
type HistoryItem struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	VisitedAt time.Time `json:"visited_at"`
}

// Bookmark is a saved page. URL uniqueness is enforced at insertion by the
// session layer, not here.
type Bookmark struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	AddedAt time.Time `json:"added_at"`
}

// CustomCommand is a user-defined script, displayed in insertion order.
type CustomCommand struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Script string `json:"script"`
	Icon   string `json:"icon"`
}

// Settings holds the small fixed set of persisted options.
type Settings struct {
	SearchProvider string `json:"search_provider"`
	DarkMode       bool   `json:"dark_mode"`
}

// AccessGrant is the persisted time-boxed activation record.
type AccessGrant struct {
	Expiry time.Time `json:"expiry"`
}

// Slot names for the persisted collections.
const (
	SlotTabs        = "tabs"
	SlotHistory     = "history"
	SlotBookmarks   = "bookmarks"
	SlotCommands    = "commands"
	SlotSettings    = "settings"
	SlotAccessGrant = "access_grant"
)

// Typed helpers so callers never touch slot names.

func (s *Store) SaveTabs(tabs []Tab)                 { s.Save(SlotTabs, tabs) }
func (s *Store) LoadTabs() []Tab                     { var v []Tab; s.Load(SlotTabs, &v); return v }
func (s *Store) SaveHistory(items []HistoryItem)     { s.Save(SlotHistory, items) }
func (s *Store) LoadHistory() []HistoryItem          { var v []HistoryItem; s.Load(SlotHistory, &v); return v }
func (s *Store) SaveBookmarks(items []Bookmark)      { s.Save(SlotBookmarks, items) }
func (s *Store) LoadBookmarks() []Bookmark           { var v []Bookmark; s.Load(SlotBookmarks, &v); return v }
func (s *Store) SaveCommands(items []CustomCommand)  { s.Save(SlotCommands, items) }
func (s *Store) LoadCommands() []CustomCommand       { var v []CustomCommand; s.Load(SlotCommands, &v); return v }
func (s *Store) SaveSettings(settings Settings)      { s.Save(SlotSettings, settings) }
func (s *Store) LoadSettings() Settings              { var v Settings; s.Load(SlotSettings, &v); return v }
func (s *Store) SaveAccessGrant(grant AccessGrant)   { s.Save(SlotAccessGrant, grant) }
func (s *Store) LoadAccessGrant() AccessGrant        { var v AccessGrant; s.Load(SlotAccessGrant, &v); return v }
