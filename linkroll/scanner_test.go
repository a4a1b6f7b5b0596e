package linkroll

import (
	"fmt"
	gc "gopkg.in/check.v1"
	"strings"
)

var _ = gc.Suite(new(ScannerTestSuite))

type ScannerTestSuite struct {
	scanner *Scanner
}

func (s *ScannerTestSuite) SetUpTest(c *gc.C) {
	scanner, err := NewScanner(ScannerConfig{})
	c.Assert(err, gc.IsNil)
	s.scanner = scanner
}

func (s *ScannerTestSuite) TestListWithBlankItem(c *gc.C) {
	var items []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}
	items = append(items, "<li>\n  </li>")

	got := s.scan(c, sidebar(items...), "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(9))
}

func (s *ScannerTestSuite) TestListWithNonLinkItemIsRejected(c *gc.C) {
	var items []string
	for i := 0; i < 8; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}
	items = append(items, `<li>I like <a href="http://site8.com">this one</a></li>`)

	got := s.scan(c, sidebar(items...), "http://myblog.com")
	c.Assert(got, gc.HasLen, 0)
}

func (s *ScannerTestSuite) TestShortListIsIgnored(c *gc.C) {
	var items []string
	for i := 0; i < 8; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}

	got := s.scan(c, sidebar(items...), "http://myblog.com")
	c.Assert(got, gc.HasLen, 0)
}

func (s *ScannerTestSuite) TestSelfLinkNeverReturned(c *gc.C) {
	var items []string
	for i := 0; i < 19; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}
	items = append(items, `<li><a href="http://www.myblog.com/">Home</a></li>`)

	got := s.scan(c, sidebar(items...), "http://myblog.com/")
	c.Assert(got, gc.DeepEquals, siteURLs(19))
	for _, u := range got {
		c.Assert(strings.Contains(u, "myblog"), gc.Equals, false)
	}
}

func (s *ScannerTestSuite) TestWhitespaceBeforeLeadingLink(c *gc.C) {
	var items []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf("<li>\n  <!-- entry -->\n  <a href=\"http://site%d.com\">Site %d</a> (daily)</li>", i, i))
	}

	got := s.scan(c, sidebar(items...), "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(9))
}

func (s *ScannerTestSuite) TestNestedListsAreScannedOnce(c *gc.C) {
	var items []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}
	doc := `<html><body><div><div><ul>` + strings.Join(items, "") + `</ul></div><ul><li>x</li></ul></div></body></html>`

	got := s.scan(c, doc, "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(9))
}

func (s *ScannerTestSuite) TestPopularAndDuplicateLinks(c *gc.C) {
	var items []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
	}
	items = append(items,
		`<li><a href="http://www.myspace.com/someband">Band</a></li>`,
		`<li><a href="http://www.site0.com/index.html">Site 0 again</a></li>`,
		`<li><a href="http://SITE1.com">Site 1 again</a></li>`,
	)

	got := s.scan(c, sidebar(items...), "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(9))
}

func (s *ScannerTestSuite) TestAnchorCluster(c *gc.C) {
	var anchors []string
	for i := 0; i < 6; i++ {
		anchors = append(anchors, fmt.Sprintf(`<a href="http://site%d.com">Site %d</a>`, i, i))
	}
	doc := `<html><body><p>Welcome to my blog, here are some words.</p><div id="friends">` +
		strings.Join(anchors, "") + `</div></body></html>`

	got := s.scan(c, doc, "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(6))
}

func (s *ScannerTestSuite) TestAnchorClusterRequirements(c *gc.C) {
	anchorsFn := func(n int) []string {
		var anchors []string
		for i := 0; i < n; i++ {
			anchors = append(anchors, fmt.Sprintf(`<a href="http://site%d.com">Site %d</a>`, i, i))
		}
		return anchors
	}

	specs := []struct {
		descr string
		body  string
	}{
		{
			descr: "too few anchors",
			body:  `<div>` + strings.Join(anchorsFn(5), "") + `</div>`,
		},
		{
			descr: "too much text",
			body:  `<div>` + strings.Join(anchorsFn(6), " and here is a long winded remark about the links ") + `</div>`,
		},
		{
			descr: "anchor with invalid href",
			body:  `<div>` + strings.Join(anchorsFn(6), "") + `<a href="/about">About</a></div>`,
		},
		{
			descr: "anchor without href",
			body:  `<div>` + strings.Join(anchorsFn(6), "") + `<a name="top">Top</a></div>`,
		},
	}

	for _, spec := range specs {
		got := s.scan(c, `<html><body>`+spec.body+`</body></html>`, "http://myblog.com")
		c.Check(got, gc.HasLen, 0, gc.Commentf("%s", spec.descr))
	}
}

func (s *ScannerTestSuite) TestAnchorClusterIgnoredWhenListFound(c *gc.C) {
	var items, anchors []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf(`<li><a href="http://site%d.com/">Site %d</a></li>`, i, i))
		anchors = append(anchors, fmt.Sprintf(`<a href="http://other%d.com">Other %d</a>`, i, i))
	}
	doc := `<html><body><div><ul>` + strings.Join(items, "") + `</ul></div><div>` +
		strings.Join(anchors, "") + `</div></body></html>`

	got := s.scan(c, doc, "http://myblog.com")
	c.Assert(got, gc.DeepEquals, siteURLs(9))
}

func (s *ScannerTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewScanner(ScannerConfig{MinListItems: -1, MaxInvalidRatio: 2})
	c.Assert(err, gc.ErrorMatches, "(?ms).*min list items.*max invalid ratio.*")
}

func (s *ScannerTestSuite) scan(c *gc.C, doc, pageURL string) []string {
	got, err := s.scanner.ScanHTML(strings.NewReader(doc), pageURL)
	c.Assert(err, gc.IsNil)
	return got
}

func sidebar(items ...string) string {
	return `<html><body><div id="content"><p>Hello</p></div><div id="sidebar"><h2>Blogroll</h2><ul>` +
		strings.Join(items, "\n") + `</ul></div></body></html>`
}

func siteURLs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://site%d.com", i)
	}
	return out
}
