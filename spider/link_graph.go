package spider

import (
	"Blogroll/linkgraph/graph"
	"Blogroll/linkroll"
	"Blogroll/metrics"
	"Blogroll/pipeline"
	"context"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"runtime"
	"strings"
	"sync"
)

// BuildLinkGraph re-scans the link roll of every stored site and records an
// edge to every stored site referenced by it. It returns the number of
// edges written.
//
// Link rolls are parsed concurrently while edges are written by a single
// pipeline stage.
func (s *Spider) BuildLinkGraph(ctx context.Context) (int, error) {
	linkIt, err := s.cfg.Graph.Links()
	if err != nil {
		return 0, xerrors.Errorf("build link graph: %w", err)
	}

	sink := new(countingSink)
	err = s.pipeline.Process(ctx, &linkSource{linkIt: linkIt}, sink)
	if closeErr := linkIt.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return sink.getCount(), xerrors.Errorf("build link graph: %w", err)
	}

	s.cfg.Metrics.EdgesLinked.Add(float64(sink.getCount()))
	s.cfg.Logger.WithField("edges", sink.getCount()).Info("link graph built")
	return sink.getCount(), nil
}

func assembleLinkGraphPipeline(cfg Config) *pipeline.Pipeline {
	extractor := newRollExtractor(cfg.Scanner, cfg.Logger)
	extractStage := pipeline.DynamicWorkerPool(extractor, runtime.NumCPU())
	if cfg.ScanWorkers > 0 {
		extractStage = pipeline.FixedWorkerPool(extractor, cfg.ScanWorkers)
	}

	return pipeline.New(
		extractStage,
		pipeline.Broadcast(
			newEdgeLinker(cfg.Graph, cfg.Clock),
			newRollObserver(cfg.Metrics),
		),
	)
}

var (
	_ pipeline.Payload = (*linkPayload)(nil)

	payloadPool = sync.Pool{
		New: func() interface{} { return new(linkPayload) },
	}
)

type linkPayload struct {
	LinkID  uuid.UUID
	URL     string
	Content string

	// Roll holds the canonical URLs found in the link roll of the site.
	Roll []string

	// Linked is the number of distinct destinations an edge was written
	// for.
	Linked int
}

// Clone implements pipeline.Payload.
func (p *linkPayload) Clone() pipeline.Payload {
	newP := payloadPool.Get().(*linkPayload)
	newP.LinkID = p.LinkID
	newP.URL = p.URL
	newP.Content = p.Content
	newP.Roll = append([]string(nil), p.Roll...)
	newP.Linked = p.Linked
	return newP
}

// MarkAsProcessed implements pipeline.Payload.
func (p *linkPayload) MarkAsProcessed() {
	p.Content = ""
	p.Roll = p.Roll[:0]
	p.Linked = 0
	payloadPool.Put(p)
}

type linkSource struct {
	linkIt graph.LinkIterator
}

func (ls *linkSource) Error() error              { return ls.linkIt.Error() }
func (ls *linkSource) Next(context.Context) bool { return ls.linkIt.Next() }
func (ls *linkSource) Payload() pipeline.Payload {
	link := ls.linkIt.Link()
	p := payloadPool.Get().(*linkPayload)

	p.LinkID = link.ID
	p.URL = link.URL
	p.Content = link.Content
	return p
}

type countingSink struct {
	count int
}

func (s *countingSink) Consume(_ context.Context, p pipeline.Payload) error {
	s.count += p.(*linkPayload).Linked
	return nil
}

func (s *countingSink) getCount() int {
	return s.count
}

type rollExtractor struct {
	scanner *linkroll.Scanner
	logger  *logrus.Entry
}

func newRollExtractor(scanner *linkroll.Scanner, logger *logrus.Entry) *rollExtractor {
	return &rollExtractor{
		scanner: scanner,
		logger:  logger,
	}
}

func (re *rollExtractor) Process(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
	payload := p.(*linkPayload)
	if payload.Content == "" {
		return nil, nil
	}

	roll, err := re.scanner.ScanHTML(strings.NewReader(payload.Content), payload.URL)
	if err != nil {
		re.logger.WithFields(logrus.Fields{
			"url": payload.URL,
			"err": err,
		}).Warn("unable to scan link roll")
		return nil, nil
	} else if len(roll) == 0 {
		return nil, nil
	}

	payload.Roll = append(payload.Roll[:0], roll...)
	payload.Content = ""
	return payload, nil
}

// rollObserver records the size of every extracted link roll.
type rollObserver struct {
	metrics *metrics.Metrics
}

func newRollObserver(m *metrics.Metrics) *rollObserver {
	return &rollObserver{metrics: m}
}

func (ro *rollObserver) Process(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
	payload := p.(*linkPayload)
	ro.metrics.RollsScanned.Inc()
	ro.metrics.RollLinks.Add(float64(len(payload.Roll)))
	return nil, nil
}

type edgeLinker struct {
	graph graph.Graph
	clock clock.Clock
}

func newEdgeLinker(g graph.Graph, clk clock.Clock) *edgeLinker {
	return &edgeLinker{
		graph: g,
		clock: clk,
	}
}

func (el *edgeLinker) Process(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
	payload := p.(*linkPayload)

	linked := make(map[uuid.UUID]struct{}, len(payload.Roll))
	for _, u := range payload.Roll {
		dst, err := el.resolve(u)
		if err != nil {
			return nil, err
		} else if dst == nil {
			continue
		} else if _, seen := linked[dst.ID]; seen {
			continue
		}

		if err := el.graph.UpsertEdge(&graph.Edge{
			Src:       payload.LinkID,
			Dst:       dst.ID,
			UpdatedAt: el.clock.Now(),
		}); err != nil {
			return nil, xerrors.Errorf("link %q -> %q: %w", payload.URL, dst.URL, err)
		}
		linked[dst.ID] = struct{}{}
	}

	payload.Linked = len(linked)
	return payload, nil
}

// resolve returns the stored link matching u with or without a www prefix
// or nil if there is none.
func (el *edgeLinker) resolve(u string) (*graph.Link, error) {
	for _, prefix := range []string{linkroll.CanonicalURL(u), linkroll.WWWURL(u)} {
		link, err := el.graph.MatchLink(prefix)
		if err == nil {
			return link, nil
		} else if !xerrors.Is(err, graph.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
