package fetcher

import (
	"context"
	"fmt"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var _ = gc.Suite(new(FetcherTestSuite))

func Test(t *testing.T) {
	// Run all gocheck test-suites
	gc.TestingT(t)
}

type FetcherTestSuite struct {
	srv *httptest.Server
}

func (s *FetcherTestSuite) SetUpTest(c *gc.C) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><title>  My   <b>Music</b> Blog </title></head><body><p>hi</p></body></html>`)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><head><title>Redirected</title></head></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, `<rss></rss>`)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "  \n ")
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, `<html><head><title>%s</title></head><body>%s</body></html>`,
			strings.Repeat("x", 500), strings.Repeat("y", 1000))
	})
	s.srv = httptest.NewServer(mux)
}

func (s *FetcherTestSuite) TearDownTest(c *gc.C) {
	s.srv.Close()
}

func (s *FetcherTestSuite) TestFetchPage(c *gc.C) {
	f := s.fetcher(c, Config{})

	page, err := f.Fetch(context.TODO(), s.srv.URL+"/page")
	c.Assert(err, gc.IsNil)
	c.Assert(page.URL, gc.Equals, s.srv.URL+"/page")
	c.Assert(page.Title, gc.Equals, "My Music Blog")
	c.Assert(page.Content, gc.Matches, "(?s).*<p>hi</p>.*")
	c.Assert(page.Doc.Find("p").Text(), gc.Equals, "hi")
}

func (s *FetcherTestSuite) TestFollowsRedirects(c *gc.C) {
	f := s.fetcher(c, Config{})

	page, err := f.Fetch(context.TODO(), s.srv.URL+"/moved")
	c.Assert(err, gc.IsNil)
	c.Assert(page.URL, gc.Equals, s.srv.URL+"/page", gc.Commentf("expected canonical URL of redirect target"))
	c.Assert(page.Title, gc.Equals, "Redirected")
}

func (s *FetcherTestSuite) TestRejectedResponses(c *gc.C) {
	f := s.fetcher(c, Config{})

	for _, path := range []string{"/missing", "/feed.xml", "/empty"} {
		_, err := f.Fetch(context.TODO(), s.srv.URL+path)
		c.Check(xerrors.Is(err, ErrFetch), gc.Equals, true, gc.Commentf("path %s: %v", path, err))
	}
}

func (s *FetcherTestSuite) TestBodyAndTitleLimits(c *gc.C) {
	f := s.fetcher(c, Config{MaxBodySize: 600})

	page, err := f.Fetch(context.TODO(), s.srv.URL+"/long")
	c.Assert(err, gc.IsNil)
	c.Assert(page.Content, gc.HasLen, 600)
	c.Assert(page.Title, gc.Equals, strings.Repeat("x", MaxTitleLength))
}

func (s *FetcherTestSuite) TestRetryWithWWWPrefix(c *gc.C) {
	getter := &getterStub{
		hosts: map[string]string{
			"www.myblog.com": `<html><head><title>Found</title></head></html>`,
		},
	}
	f := s.fetcher(c, Config{Client: getter})

	page, err := f.Fetch(context.TODO(), "http://myblog.com")
	c.Assert(err, gc.IsNil)
	c.Assert(page.Title, gc.Equals, "Found")
	c.Assert(page.URL, gc.Equals, "http://myblog.com")
	c.Assert(getter.requested, gc.DeepEquals, []string{"http://myblog.com", "http://www.myblog.com"})
}

func (s *FetcherTestSuite) TestNoRetryForNonCanonicalURL(c *gc.C) {
	getter := &getterStub{
		hosts: map[string]string{
			"www.myblog.com": `<html></html>`,
		},
	}
	f := s.fetcher(c, Config{Client: getter})

	_, err := f.Fetch(context.TODO(), "http://myblog.com/index.html")
	c.Assert(xerrors.Is(err, ErrFetch), gc.Equals, true)
	c.Assert(getter.requested, gc.HasLen, 1)
}

func (s *FetcherTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewHTTPFetcher(Config{MaxBodySize: -1})
	c.Assert(err, gc.ErrorMatches, "(?ms).*max body size.*")
}

func (s *FetcherTestSuite) fetcher(c *gc.C, cfg Config) *HTTPFetcher {
	f, err := NewHTTPFetcher(cfg)
	c.Assert(err, gc.IsNil)
	return f
}

// getterStub serves HTML for a fixed set of hosts and fails with a
// transport error for any other host.
type getterStub struct {
	hosts     map[string]string
	requested []string
}

func (g *getterStub) Do(req *http.Request) (*http.Response, error) {
	g.requested = append(g.requested, req.URL.String())
	body, ok := g.hosts[req.URL.Host]
	if !ok {
		return nil, xerrors.Errorf("dial tcp: lookup %s: no such host", req.URL.Host)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}
