package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip_Tabs(t *testing.T) {
	s := openTestStore(t)

	tabs := []Tab{
		{ID: "a", Title: "Example", URL: "https://example.com", Active: false},
		{ID: "b", Title: "Docs", URL: "https://pkg.go.dev", Active: true},
	}
	s.SaveTabs(tabs)

	got := s.LoadTabs()
	if diff := cmp.Diff(tabs, got); diff != "" {
		t.Fatalf("tabs round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_HistoryBookmarksCommands(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	history := []HistoryItem{
		{ID: "h1", URL: "https://example.com", Title: "Example", VisitedAt: ts},
		// Append-only: same URL appears twice, no dedup.
		{ID: "h2", URL: "https://example.com", Title: "Example", VisitedAt: ts.Add(time.Minute)},
	}
	s.SaveHistory(history)

	bookmarks := []Bookmark{{ID: "b1", URL: "https://example.com", Title: "Example", AddedAt: ts}}
	s.SaveBookmarks(bookmarks)

	commands := []CustomCommand{{ID: "c1", Name: "title", Script: "document.title", Icon: "doc.text"}}
	s.SaveCommands(commands)

	if diff := cmp.Diff(history, s.LoadHistory()); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(bookmarks, s.LoadBookmarks()); diff != "" {
		t.Fatalf("bookmarks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(commands, s.LoadCommands()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_SettingsAndGrant(t *testing.T) {
	s := openTestStore(t)

	s.SaveSettings(Settings{SearchProvider: "duckduckgo", DarkMode: true})
	got := s.LoadSettings()
	require.Equal(t, "duckduckgo", got.SearchProvider)
	require.True(t, got.DarkMode)

	expiry := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	s.SaveAccessGrant(AccessGrant{Expiry: expiry})
	require.True(t, s.LoadAccessGrant().Expiry.Equal(expiry))
}

func TestLoad_MissingSlotYieldsEmpty(t *testing.T) {
	s := openTestStore(t)
	require.Empty(t, s.LoadTabs())
	require.Empty(t, s.LoadHistory())
	require.Empty(t, s.LoadBookmarks())
	require.Empty(t, s.LoadCommands())
	require.True(t, s.LoadAccessGrant().Expiry.IsZero())
}

func TestLoad_CorruptSlotDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)

	s.SaveTabs([]Tab{{ID: "a", URL: "https://example.com", Active: true}})
	require.NoError(t, s.Corrupt(SlotTabs))

	// Must not panic or error; yields the empty collection.
	require.Empty(t, s.LoadTabs())
}

func TestSave_Overwrite(t *testing.T) {
	s := openTestStore(t)

	s.SaveTabs([]Tab{{ID: "a", Active: true}})
	s.SaveTabs([]Tab{{ID: "b", Active: true}, {ID: "c"}})

	got := s.LoadTabs()
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ID)
}
