package linkroll

import (
	"net/url"
	"regexp"
	"strings"
)

var indexPageRegex = regexp.MustCompile(`(?i)/index\.html?$`)

// CanonicalURL returns the canonical form of rawURL: the scheme and host are
// lowercased, a leading "www." host segment is dropped, as are any
// "/index.htm(l)" suffix, trailing slashes and fragments. Values that cannot
// be parsed as absolute URLs are returned trimmed but otherwise unchanged.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment, u.RawFragment = "", ""

	path := indexPageRegex.ReplaceAllString(u.EscapedPath(), "")
	path = strings.TrimRight(path, "/")
	if unescaped, err := url.PathUnescape(path); err == nil {
		u.Path, u.RawPath = unescaped, path
	}
	return u.String()
}

// WWWURL returns the canonical form of rawURL with a "www." host segment
// prepended.
func WWWURL(rawURL string) string {
	canonical := CanonicalURL(rawURL)
	u, err := url.Parse(canonical)
	if err != nil || u.Host == "" {
		return canonical
	}
	u.Host = "www." + u.Host
	return u.String()
}
