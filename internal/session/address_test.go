package session

import (
	"testing"

	"browsernerd/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var google = config.SearchProvider{
	Key:      "google",
	Template: "https://www.google.com/search?q=%s",
}

func TestResolveAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"full url passes through", "https://example.com/page", "https://example.com/page"},
		{"bare domain gets scheme", "example.com", "https://example.com"},
		{"domain with path gets scheme", "example.com/file.pdf", "https://example.com/file.pdf"},
		{"localhost with port", "localhost:8080", "https://localhost:8080"},
		{"ip address", "192.168.1.1", "https://192.168.1.1"},
		{"whitespace routes to search", "not a url", "https://www.google.com/search?q=not+a+url"},
		{"single word routes to search", "kittens", "https://www.google.com/search?q=kittens"},
		{"query marker routes to search", "?what is go", "https://www.google.com/search?q=%3Fwhat+is+go"},
		{"made-up tld routes to search", "foo.notarealtld", "https://www.google.com/search?q=foo.notarealtld"},
		{"surrounding whitespace trimmed", "  example.com  ", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAddress(tt.raw, google)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAddress_Empty(t *testing.T) {
	_, err := ResolveAddress("   ", google)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// An empty provider template is passed through as configured; the malformed
// result is the provider's problem, not ours to repair.
func TestResolveAddress_EmptyTemplate(t *testing.T) {
	got, err := ResolveAddress("some query", config.SearchProvider{Key: "mojeek"})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
