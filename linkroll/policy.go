package linkroll

import (
	"golang.org/x/xerrors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrMalformedCandidate is returned for candidate URLs that cannot be
	// parsed, are relative or do not use an accepted scheme.
	ErrMalformedCandidate = xerrors.New("malformed candidate URL")

	// ErrBlockedCandidate is returned for candidate URLs matching the block
	// list of the page being scanned.
	ErrBlockedCandidate = xerrors.New("blocked candidate URL")
)

// Rejectables lists URL patterns that never take part in a link roll. A
// list containing too many of them is discarded.
var Rejectables = []string{
	`^mailto:`,
	`^https?://(www\.)?youtube\.com`,
	`^https?://(www\.)?americanapparel\.net(/|$)`,
	`^.*wikipedia\.org`,
	`^https?://(www\.)?slate\.com(/|$)`,
	`^https?://(.+\.)?amazon\.`,
	`^https?://(www\.)?blogger\.com`,
}

// TooPopular lists URL patterns of sites that commonly show up in link
// rolls but are not worth following.
var TooPopular = []string{
	`^https?://(www\.)?myspace\.com`,
	`^https?://(www\.)?last\.fm`,
	`^https?://(www\.)?hypem\.com`,
	`^https?://hype\.non-standard\.net(/|$)`,
	`^.*wikipedia\.org`,
	`^https?://(www\.)?pitchforkmagazine\.com`,
	`^https?://(www\.)?thefader\.com`,
	`^https?://(www\.)?scissorkick\.com(/|$)`,
	`^https?://(www\.)?talk2action\.org(/|$)`,
	`^https?://(www\.)?cableandtweed\.blogspot\.com(/|$)`,
	`^https?://[a-z0-9_-]+\.blogspot\.com/.+_archive\.html`,
}

var (
	rejectableRegexes = mustCompileAll(Rejectables)
	tooPopularRegexes = mustCompileAll(TooPopular)

	acceptedSchemes = map[string]bool{"http": true, "https": true}
)

// Policy decides which hrefs found on a page are acceptable link roll
// members. Besides the fixed pattern lists, a policy blocks links pointing
// back to the page it was created for.
type Policy struct {
	self []*regexp.Regexp
}

// NewPolicy returns a Policy for the page at pageURL.
func NewPolicy(pageURL string) *Policy {
	p := new(Policy)
	u, err := url.Parse(CanonicalURL(pageURL))
	if err != nil || u.Host == "" {
		return p
	}

	// Match the page with or without www, over either scheme, followed by
	// nothing or a path/query/fragment boundary.
	rest := strings.TrimPrefix(u.String(), u.Scheme+"://")
	p.self = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^https?://(www\.)?` + regexp.QuoteMeta(rest) + `([/?#].*)?$`),
	}
	return p
}

// Valid checks href against the policy and returns it with surrounding
// whitespace removed. The returned error wraps ErrMalformedCandidate or
// ErrBlockedCandidate.
func (p *Policy) Valid(href string) (string, error) {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return "", xerrors.Errorf("%q: %v: %w", href, err, ErrMalformedCandidate)
	} else if !acceptedSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
		return "", xerrors.Errorf("%q: %w", href, ErrMalformedCandidate)
	}

	if matchAny(p.self, href) || matchAny(rejectableRegexes, href) {
		return "", xerrors.Errorf("%q: %w", href, ErrBlockedCandidate)
	}
	return href, nil
}

// IsPopular returns true if u points to the page the policy was created
// for or to a site listed in TooPopular.
func (p *Policy) IsPopular(u string) bool {
	return matchAny(p.self, u) || matchAny(tooPopularRegexes, u)
}

func matchAny(exprs []*regexp.Regexp, s string) bool {
	for _, expr := range exprs {
		if expr.MatchString(s) {
			return true
		}
	}
	return false
}

func mustCompileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, pattern := range patterns {
		out[i] = regexp.MustCompile("(?i)" + pattern)
	}
	return out
}
