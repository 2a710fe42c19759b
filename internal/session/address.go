package session

import (
	"net"
	"net/url"
	"strings"

	"browsernerd/internal/config"

	"golang.org/x/net/publicsuffix"
)

// looksLikeAddress reports whether raw input should be treated as a literal
// address. Anything with whitespace, a leading query marker, or no
// domain-like host is routed to search instead.
func looksLikeAddress(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return false
	}
	if strings.HasPrefix(raw, "?") {
		return false
	}
	if strings.Contains(raw, "://") {
		return true
	}

	host, _, _ := strings.Cut(raw, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		return true
	}
	if !strings.Contains(host, ".") {
		return false
	}
	// A real registrable domain ends in an ICANN-managed public suffix;
	// "foo.bar" with a made-up TLD falls through to search.
	_, icann := publicsuffix.PublicSuffix(strings.ToLower(host))
	return icann
}

// ResolveAddress turns raw address-bar input into a loadable URL. Literal
// addresses get an https scheme prefixed when absent; everything else is
// routed through the provider's query template. An empty template is passed
// through as configured and yields an empty, malformed URL.
func ResolveAddress(raw string, provider config.SearchProvider) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}

	if looksLikeAddress(raw) {
		addr := raw
		if !strings.Contains(addr, "://") {
			addr = "https://" + addr
		}
		if _, err := url.Parse(addr); err != nil {
			return "", ErrInvalidAddress
		}
		return addr, nil
	}

	return strings.ReplaceAll(provider.Template, "%s", url.QueryEscape(raw)), nil
}
