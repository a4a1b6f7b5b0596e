package linkroll

import (
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(PolicyTestSuite))

type PolicyTestSuite struct{}

func (s *PolicyTestSuite) TestValid(c *gc.C) {
	p := NewPolicy("http://www.myblog.com/")

	specs := []struct {
		href   string
		expErr error
	}{
		{"http://other.com", nil},
		{"https://other.com/path", nil},
		{"  http://other.com/  ", nil},
		{"/relative", ErrMalformedCandidate},
		{"ftp://other.com", ErrMalformedCandidate},
		{"mailto:me@other.com", ErrMalformedCandidate},
		{"javascript:void(0)", ErrMalformedCandidate},
		{"http://%zz", ErrMalformedCandidate},
		{"", ErrMalformedCandidate},
		{"http://myblog.com", ErrBlockedCandidate},
		{"http://www.myblog.com/about", ErrBlockedCandidate},
		{"https://MYBLOG.com/?p=1", ErrBlockedCandidate},
		{"http://www.youtube.com/watch?v=1", ErrBlockedCandidate},
		{"http://en.wikipedia.org/wiki/Go", ErrBlockedCandidate},
		{"http://www.amazon.co.uk/dp/123", ErrBlockedCandidate},
		{"http://www.Slate.com/id/1", ErrBlockedCandidate},
		{"http://www.blogger.com/profile", ErrBlockedCandidate},
		{"http://myblog.com.other.org", nil},
	}

	for i, spec := range specs {
		_, err := p.Valid(spec.href)
		if spec.expErr == nil {
			c.Check(err, gc.IsNil, gc.Commentf("case %d: %q", i, spec.href))
			continue
		}
		c.Check(xerrors.Is(err, spec.expErr), gc.Equals, true, gc.Commentf("case %d: %q: got %v", i, spec.href, err))
	}
}

func (s *PolicyTestSuite) TestValidTrimsHref(c *gc.C) {
	href, err := NewPolicy("http://myblog.com").Valid(" http://other.com/ ")
	c.Assert(err, gc.IsNil)
	c.Assert(href, gc.Equals, "http://other.com/")
}

func (s *PolicyTestSuite) TestIsPopular(c *gc.C) {
	p := NewPolicy("http://myblog.com")

	for _, u := range []string{
		"http://myspace.com/band",
		"http://www.last.fm/music",
		"http://hypem.com",
		"http://cableandtweed.blogspot.com",
		"http://someone.blogspot.com/2008_01_01_archive.html",
		"http://myblog.com",
		"http://www.myblog.com/feed",
	} {
		c.Check(p.IsPopular(u), gc.Equals, true, gc.Commentf("%q", u))
	}

	for _, u := range []string{
		"http://someone.blogspot.com",
		"http://smallmusicblog.net",
		"http://myspacefan.org",
	} {
		c.Check(p.IsPopular(u), gc.Equals, false, gc.Commentf("%q", u))
	}
}

func (s *PolicyTestSuite) TestUnparseablePageURL(c *gc.C) {
	p := NewPolicy("")
	_, err := p.Valid("http://other.com")
	c.Assert(err, gc.IsNil)
}
