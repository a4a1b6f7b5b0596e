package spider

import (
	"Blogroll/fetcher"
	"Blogroll/linkgraph/graph"
	"Blogroll/linkroll"
	"Blogroll/metrics"
	"Blogroll/pipeline"
	"context"
	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"io"
	"strings"
	"sync/atomic"
)

// DefaultMaxDepth is the number of link roll hops followed from the seed.
const DefaultMaxDepth = 2

// Fetcher is implemented by objects that can retrieve HTML pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Config encapsulates the settings for a Spider.
type Config struct {
	// Graph is the store for discovered sites and their relations.
	Graph graph.Graph

	// Fetcher retrieves the pages of candidate sites.
	Fetcher Fetcher

	// Scanner extracts link rolls from pages. If not specified, a scanner
	// with the default settings is used.
	Scanner *linkroll.Scanner

	// MaxDepth is the number of hops to follow from the seed. A site at
	// depth d has its link roll scanned only if d < MaxDepth. Defaults
	// to 2.
	MaxDepth int

	// ScanWorkers is the number of workers that parse link rolls while
	// building the link graph. If not specified, workers are spawned on
	// demand up to the number of CPUs.
	ScanWorkers int

	// Clock used for timestamping links and edges. Defaults to the wall
	// clock.
	Clock clock.Clock

	// Metrics receives spider counters. If not specified, the counters
	// are not exported.
	Metrics *metrics.Metrics

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Graph == nil {
		err = multierror.Append(err, xerrors.Errorf("graph store has not been provided"))
	}
	if cfg.Fetcher == nil {
		err = multierror.Append(err, xerrors.Errorf("page fetcher has not been provided"))
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	} else if cfg.MaxDepth < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for max depth"))
	}
	if cfg.ScanWorkers < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for scan workers"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	if cfg.Scanner == nil {
		scanner, sErr := linkroll.NewScanner(linkroll.ScannerConfig{Logger: cfg.Logger})
		if sErr != nil {
			err = multierror.Append(err, sErr)
		}
		cfg.Scanner = scanner
	}
	return err
}

// Stats holds the spider counters.
type Stats struct {
	// Discovered is the number of new sites registered.
	Discovered int

	// Skipped is the number of candidate links that could not be
	// registered.
	Skipped int
}

// Spider discovers sites by following the link rolls of already known
// sites and records the relations between them.
type Spider struct {
	cfg      Config
	pipeline *pipeline.Pipeline

	discovered int64
	skipped    int64
}

// NewSpider returns a new Spider instance using the provided config options.
func NewSpider(cfg Config) (*Spider, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("spider: config validation failed: %w", err)
	}
	return &Spider{
		cfg:      cfg,
		pipeline: assembleLinkGraphPipeline(cfg),
	}, nil
}

// Stats returns a snapshot of the spider counters.
func (s *Spider) Stats() Stats {
	return Stats{
		Discovered: int(atomic.LoadInt64(&s.discovered)),
		Skipped:    int(atomic.LoadInt64(&s.skipped)),
	}
}

type workItem struct {
	link  *graph.Link
	depth int

	// doc is the parsed page for links fetched during this run. Links
	// loaded from the graph store have no doc and get their stored
	// content parsed instead.
	doc *goquery.Document
}

// SpiderFrom registers the site at startURL and then walks the link rolls
// breadth-first, registering every site that is not known yet. Sites are
// explored up to MaxDepth hops away from the seed.
//
// Failures to register individual candidates are logged and skipped. An
// error is returned if the seed cannot be registered, the graph store fails
// while looking up candidates or ctx expires.
func (s *Spider) SpiderFrom(ctx context.Context, startURL string) error {
	seed, err := s.seed(ctx, startURL)
	if err != nil {
		return xerrors.Errorf("spider from %q: %w", startURL, err)
	}

	queue := []workItem{seed}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]
		if item.depth >= s.cfg.MaxDepth {
			continue
		}

		logger := s.cfg.Logger.WithFields(logrus.Fields{
			"url":   item.link.URL,
			"depth": item.depth,
		})
		candidates, err := s.scan(item)
		if err != nil {
			logger.WithField("err", err).Warn("unable to scan link roll")
			continue
		}
		logger.WithField("candidates", len(candidates)).Debug("scanned link roll")

		for _, candidate := range candidates {
			known, err := s.isKnown(candidate)
			if err != nil {
				return xerrors.Errorf("spider from %q: %w", startURL, err)
			} else if known {
				continue
			}

			next, reason, err := s.register(ctx, candidate)
			if err != nil {
				s.skip(reason, candidate, err)
				continue
			}
			next.depth = item.depth + 1
			if next.depth >= s.cfg.MaxDepth {
				next.doc = nil
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// scan extracts the link roll of the site referenced by item.
func (s *Spider) scan(item workItem) ([]string, error) {
	if item.doc != nil {
		return s.cfg.Scanner.Scan(item.doc, item.link.URL), nil
	}
	return s.cfg.Scanner.ScanHTML(strings.NewReader(item.link.Content), item.link.URL)
}

// seed returns the stored link for startURL, fetching and storing it first
// if it is unknown or has no content.
func (s *Spider) seed(ctx context.Context, startURL string) (workItem, error) {
	link, err := s.cfg.Graph.FindLinkByURL(linkroll.CanonicalURL(startURL))
	if err == nil && link.Content != "" {
		return workItem{link: link}, nil
	} else if err != nil && !xerrors.Is(err, graph.ErrNotFound) {
		return workItem{}, err
	}

	page, err := s.cfg.Fetcher.Fetch(ctx, startURL)
	if err != nil {
		return workItem{}, err
	}
	if link, err = s.store(page); err != nil {
		return workItem{}, err
	}
	s.cfg.Logger.WithField("url", link.URL).Info("registered seed site")
	return workItem{link: link, doc: page.Doc}, nil
}

// isKnown returns true if a stored link matches candidate with or without a
// www prefix.
func (s *Spider) isKnown(candidate string) (bool, error) {
	for _, prefix := range []string{linkroll.CanonicalURL(candidate), linkroll.WWWURL(candidate)} {
		_, err := s.cfg.Graph.MatchLink(prefix)
		if err == nil {
			return true, nil
		} else if !xerrors.Is(err, graph.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// register fetches and stores candidate. On failure it returns the reason
// for skipping the candidate.
func (s *Spider) register(ctx context.Context, candidate string) (workItem, string, error) {
	if _, err := linkroll.NewPolicy("").Valid(candidate); err != nil {
		return workItem{}, metrics.SkipMalformed, err
	}

	page, err := s.cfg.Fetcher.Fetch(ctx, candidate)
	if err != nil {
		return workItem{}, metrics.SkipFetch, err
	}

	// The candidate may redirect to a site we already know about.
	if _, err = s.cfg.Graph.FindLinkByURL(page.URL); err == nil {
		return workItem{}, metrics.SkipDuplicate, xerrors.Errorf("%q resolves to known site %q", candidate, page.URL)
	} else if !xerrors.Is(err, graph.ErrNotFound) {
		return workItem{}, metrics.SkipStore, err
	}

	link, err := s.store(page)
	if err != nil {
		return workItem{}, metrics.SkipStore, err
	}

	atomic.AddInt64(&s.discovered, 1)
	s.cfg.Metrics.LinksDiscovered.Inc()
	s.cfg.Logger.WithFields(logrus.Fields{
		"url":   link.URL,
		"title": link.Title,
	}).Info("registered site")
	return workItem{link: link, doc: page.Doc}, "", nil
}

func (s *Spider) store(page *fetcher.Page) (*graph.Link, error) {
	link := &graph.Link{
		URL:         page.URL,
		Title:       page.Title,
		Content:     page.Content,
		RetrievedAt: s.cfg.Clock.Now(),
	}
	if err := s.cfg.Graph.UpsertLink(link); err != nil {
		return nil, xerrors.Errorf("store %q: %w", page.URL, err)
	}
	return link, nil
}

func (s *Spider) skip(reason, candidate string, err error) {
	atomic.AddInt64(&s.skipped, 1)
	s.cfg.Metrics.LinksSkipped.WithLabelValues(reason).Inc()
	s.cfg.Logger.WithFields(logrus.Fields{
		"url":    candidate,
		"reason": reason,
		"err":    err,
	}).Warn("skipping candidate")
}
