package linkroll

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/xerrors"
	"io"
	"strings"
)

const (
	// DefaultMinListItems is the number of non-empty items a list must
	// exceed to be considered a link roll.
	DefaultMinListItems = 8

	// DefaultMaxInvalidRatio is the largest share of items without a
	// valid leading link that a link roll may contain.
	DefaultMaxInvalidRatio = 0.05

	// DefaultMinClusterAnchors is the number of direct anchor children an
	// element must exceed to be considered an anchor cluster.
	DefaultMinClusterAnchors = 5

	// DefaultMinAnchorDensity is the share of an anchor cluster's rendered
	// markup that must be taken up by its anchors.
	DefaultMinAnchorDensity = 0.9
)

// ScannerConfig encapsulates the settings for a Scanner.
type ScannerConfig struct {
	MinListItems      int
	MaxInvalidRatio   float64
	MinClusterAnchors int
	MinAnchorDensity  float64

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *ScannerConfig) validate() error {
	var err error
	if cfg.MinListItems == 0 {
		cfg.MinListItems = DefaultMinListItems
	} else if cfg.MinListItems < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for min list items"))
	}
	if cfg.MaxInvalidRatio == 0 {
		cfg.MaxInvalidRatio = DefaultMaxInvalidRatio
	} else if cfg.MaxInvalidRatio < 0 || cfg.MaxInvalidRatio > 1 {
		err = multierror.Append(err, xerrors.Errorf("max invalid ratio must be in the [0, 1] range"))
	}
	if cfg.MinClusterAnchors == 0 {
		cfg.MinClusterAnchors = DefaultMinClusterAnchors
	} else if cfg.MinClusterAnchors < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for min cluster anchors"))
	}
	if cfg.MinAnchorDensity == 0 {
		cfg.MinAnchorDensity = DefaultMinAnchorDensity
	} else if cfg.MinAnchorDensity < 0 || cfg.MinAnchorDensity > 1 {
		err = multierror.Append(err, xerrors.Errorf("min anchor density must be in the [0, 1] range"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return err
}

// Scanner locates link rolls in HTML documents: lists or tight clusters of
// links to other sites, as commonly found in blog sidebars.
type Scanner struct {
	cfg ScannerConfig
}

// NewScanner returns a new Scanner instance using the provided config
// options.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("scanner: config validation failed: %w", err)
	}
	return &Scanner{cfg: cfg}, nil
}

// ScanHTML parses the HTML document read from r and scans it for link
// roll members. See Scan.
func (s *Scanner) ScanHTML(r io.Reader, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, xerrors.Errorf("scan %q: %w", pageURL, err)
	}
	return s.Scan(doc, pageURL), nil
}

// Scan returns the canonical URLs of the link roll members found in doc,
// the document served at pageURL. URLs are returned once each, in document
// order.
//
// Link rolls are primarily detected as unordered lists nested in div or p
// elements whose items each start with a valid link. If no such list
// exists, elements with a high density of direct anchor children are
// considered instead.
func (s *Scanner) Scan(doc *goquery.Document, pageURL string) []string {
	policy := NewPolicy(pageURL)
	logger := s.cfg.Logger.WithField("page", pageURL)

	var (
		hrefs   []string
		visited = make(map[*html.Node]struct{})
	)
	doc.Find("div, p").Each(func(_ int, container *goquery.Selection) {
		if container.ChildrenFiltered("ul").Length() == 0 {
			return
		}
		container.Find("ul").Each(func(_ int, list *goquery.Selection) {
			node := list.Get(0)
			if _, seen := visited[node]; seen {
				return
			}
			visited[node] = struct{}{}
			hrefs = append(hrefs, s.linkList(list, policy, logger)...)
		})
	})

	if len(hrefs) == 0 {
		hrefs = s.anchorClusters(doc.Selection, policy)
	}

	var out []string
	for _, u := range dedup(canonicalize(dedup(hrefs))) {
		if _, err := policy.Valid(u); err != nil {
			continue
		} else if policy.IsPopular(u) {
			logger.WithField("url", u).Debug("skipping popular site")
			continue
		}
		out = append(out, u)
	}
	return out
}

// linkList returns the valid hrefs of list if it qualifies as a link roll.
func (s *Scanner) linkList(list *goquery.Selection, policy *Policy, logger *logrus.Entry) []string {
	var items []*html.Node
	for _, li := range list.Find("li").Nodes {
		if !isBlank(li) {
			items = append(items, li)
		}
	}
	if len(items) <= s.cfg.MinListItems {
		return nil
	}

	var (
		valid   []string
		invalid int
	)
	for _, li := range items {
		if href, ok := leadingLink(li, policy); ok {
			valid = append(valid, href)
		} else {
			invalid++
		}
	}

	if ratio := float64(invalid) / float64(len(items)); ratio > s.cfg.MaxInvalidRatio {
		logger.WithFields(logrus.Fields{
			"items":   len(items),
			"invalid": invalid,
		}).Debug("rejecting list with too many invalid items")
		return nil
	}
	return valid
}

// anchorClusters visits the parent of every anchor with an href in root
// once and collects the hrefs of the parents that qualify as anchor
// clusters.
func (s *Scanner) anchorClusters(root *goquery.Selection, policy *Policy) []string {
	var (
		hrefs   []string
		visited = make(map[*html.Node]struct{})
	)
	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		parent := a.Get(0).Parent
		if parent == nil {
			return
		} else if _, seen := visited[parent]; seen {
			return
		}
		visited[parent] = struct{}{}
		hrefs = append(hrefs, s.clusterLinks(parent, policy)...)
	})
	return hrefs
}

func (s *Scanner) clusterLinks(parent *html.Node, policy *Policy) []string {
	var (
		anchors              []*html.Node
		blockSize, anchorLen int
	)
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		size := renderedSize(c)
		blockSize += size
		if isAnchor(c) {
			anchors = append(anchors, c)
			anchorLen += size
		}
	}
	if len(anchors) <= s.cfg.MinClusterAnchors || blockSize == 0 {
		return nil
	}
	if float64(anchorLen)/float64(blockSize) <= s.cfg.MinAnchorDensity {
		return nil
	}

	// Every anchor of the cluster must point somewhere valid.
	hrefs := make([]string, 0, len(anchors))
	for _, n := range anchors {
		a := anchorOf(n)
		if !a.hasHref {
			return nil
		}
		href, err := policy.Valid(a.href)
		if err != nil {
			return nil
		}
		hrefs = append(hrefs, href)
	}
	return hrefs
}

type anchor struct {
	href    string
	hasHref bool
}

func anchorOf(n *html.Node) anchor {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == "href" {
			return anchor{href: attr.Val, hasHref: true}
		}
	}
	return anchor{}
}

func isAnchor(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.A
}

// leadingLink returns the valid href of li if its first non-whitespace
// child is an anchor.
func leadingLink(li *html.Node, policy *Policy) (string, bool) {
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.CommentNode:
			continue
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
			continue
		case !isAnchor(c):
			return "", false
		}

		a := anchorOf(c)
		if !a.hasHref {
			return "", false
		}
		href, err := policy.Valid(a.href)
		return href, err == nil
	}
	return "", false
}

// isBlank returns true if n has no element children and no text other than
// whitespace.
func isBlank(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		}
	}
	return true
}

type countingWriter int

func (w *countingWriter) Write(p []byte) (int, error) {
	*w += countingWriter(len(p))
	return len(p), nil
}

func renderedSize(n *html.Node) int {
	var w countingWriter
	if err := html.Render(&w, n); err != nil {
		return 0
	}
	return int(w)
}

func canonicalize(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = CanonicalURL(u)
	}
	return out
}

func dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, exists := seen[item]; exists {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
