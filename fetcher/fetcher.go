package fetcher

import (
	"Blogroll/linkroll"
	"bytes"
	"context"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrFetch is returned when a page cannot be retrieved.
var ErrFetch = xerrors.New("unable to fetch page")

const (
	// DefaultMaxBodySize caps the number of bytes read from a response.
	DefaultMaxBodySize = 4 << 20

	// MaxTitleLength is the maximum number of characters kept from a page
	// title.
	MaxTitleLength = 200

	defaultUserAgent = "blogrank/1.0"
)

// URLGetter is implemented by objects that can perform HTTP requests.
// *http.Client satisfies this interface.
type URLGetter interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is a successfully retrieved HTML page.
type Page struct {
	// URL is the canonical URL of the page after following redirects.
	URL string

	// Title is the sanitized page title.
	Title string

	// Content holds the raw markup of the page.
	Content string

	// Doc is the parsed markup of the page.
	Doc *goquery.Document
}

// Config encapsulates the settings for an HTTPFetcher.
type Config struct {
	// The client to use for issuing requests. Defaults to an http.Client
	// with a 30s timeout. Redirects are followed by the client.
	Client URLGetter

	// MaxBodySize caps the response bytes that get read. Defaults to 4MiB.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	} else if cfg.MaxBodySize < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for max body size"))
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return err
}

// HTTPFetcher retrieves HTML pages over HTTP.
type HTTPFetcher struct {
	cfg       Config
	sanitizer *bluemonday.Policy
}

// NewHTTPFetcher returns a new HTTPFetcher instance using the provided config
// options.
func NewHTTPFetcher(cfg Config) (*HTTPFetcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("fetcher: config validation failed: %w", err)
	}
	return &HTTPFetcher{
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Fetch retrieves the HTML page at rawURL. Only 2xx responses with an HTML
// content type are accepted. If the request for a canonical URL fails at the
// transport level, it is retried once using the www-prefixed variant of the
// URL.
//
// All returned errors wrap ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	page, err := f.fetch(ctx, rawURL)
	var tErr *transportError
	if err == nil || ctx.Err() != nil || !xerrors.As(err, &tErr) || linkroll.CanonicalURL(rawURL) != strings.TrimSpace(rawURL) {
		return page, err
	}

	wwwURL := linkroll.WWWURL(rawURL)
	if wwwURL == rawURL {
		return nil, err
	}
	f.cfg.Logger.WithFields(logrus.Fields{
		"url":   rawURL,
		"retry": wwwURL,
		"err":   err,
	}).Debug("retrying fetch with www prefix")
	return f.fetch(ctx, wwwURL)
}

// transportError reports a failure to talk to the remote host, as opposed
// to a response that was received but rejected.
type transportError struct {
	url string
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("fetch %q: %v", e.url, e.err) }
func (e *transportError) Unwrap() error { return ErrFetch }

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return nil, xerrors.Errorf("fetch %q: %v: %w", rawURL, err, ErrFetch)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, &transportError{url: rawURL, err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, xerrors.Errorf("fetch %q: unexpected status %d: %w", rawURL, res.StatusCode, ErrFetch)
	}
	if contentType := res.Header.Get("Content-Type"); !strings.Contains(contentType, "html") {
		return nil, xerrors.Errorf("fetch %q: unsupported content type %q: %w", rawURL, contentType, ErrFetch)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.cfg.MaxBodySize))
	if err != nil {
		return nil, &transportError{url: rawURL, err: err}
	} else if len(bytes.TrimSpace(body)) == 0 {
		return nil, xerrors.Errorf("fetch %q: empty document: %w", rawURL, ErrFetch)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("fetch %q: %v: %w", rawURL, err, ErrFetch)
	}

	finalURL := rawURL
	if res.Request != nil && res.Request.URL != nil {
		finalURL = res.Request.URL.String()
	}

	return &Page{
		URL:     linkroll.CanonicalURL(finalURL),
		Title:   f.title(doc),
		Content: string(body),
		Doc:     doc,
	}, nil
}

func (f *HTTPFetcher) title(doc *goquery.Document) string {
	title := f.sanitizer.Sanitize(doc.Find("title").First().Text())
	title = strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	return string([]rune(title)[:MaxTitleLength])
}
