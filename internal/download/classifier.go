// Package download decides which navigations become file transfers and runs
// the transfers themselves, with a synthetic progress estimate alongside the
// real transfer.
package download

import (
	"net/url"
	"path"
	"strings"
)

// downloadExtensions is the fixed set of path extensions that turn a
// navigation into a file transfer. Matching is case-insensitive.
var downloadExtensions = map[string]bool{
	// Documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".txt": true, ".csv": true, ".rtf": true,
	// Archives
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".bz2": true,
	// Media
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".flac": true, ".m4a": true, ".webm": true,
	// Images
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".svg": true, ".webp": true, ".ico": true, ".tiff": true,
	// Code/data
	".json": true, ".xml": true, ".sql": true,
	// Installers
	".exe": true, ".msi": true, ".dmg": true, ".pkg": true, ".deb": true,
	".rpm": true, ".apk": true, ".ipa": true,
}

// Classify reports whether the URL's path extension marks it as a file
// transfer rather than a page navigation. Pure; extensionless and
// unparseable URLs are false.
func Classify(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		// Scheme-less input like "example.com/file.pdf" parses with an
		// empty path; fall back to the opaque part.
		p = u.Opaque
		if p == "" {
			p = rawURL
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	// Strip any query remnants when parsing fell back to the raw string.
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	return downloadExtensions[ext]
}

// Filename extracts the target filename from a URL, falling back to
// "download" when the path has no useful last element.
func Filename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		if u.Path != "" {
			p = u.Path
		} else if u.Host != "" {
			// A host with no path has nothing to name the file after.
			return "download"
		}
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "download"
	}
	return name
}
