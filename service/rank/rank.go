package rank

import (
	"Blogroll/linkgraph/graph"
	"Blogroll/metrics"
	"Blogroll/pagerank"
	"context"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"io"
	"time"
)

// GraphAPI defines as set of API methods for fetching the links and edges
// from the link graph and storing the computed scores.
type GraphAPI interface {
	Links() (graph.LinkIterator, error)
	Edges() (graph.EdgeIterator, error)
	UpdateRank(id uuid.UUID, score float64) error
}

// Config encapsulates the settings for configuring the ranking service.
type Config struct {
	// An API for interacting with the links and edges in the link graph.
	GraphAPI GraphAPI

	// A clock instance for generating time-related events. If not
	// specified, the default wall-clock will be used instead.
	Clock clock.Clock

	// Settings for the rank computation.
	Calculator pagerank.Config

	// The time between subsequent ranking passes.
	UpdateInterval time.Duration

	// Metrics receives ranking counters. If not specified, the counters are
	// not exported.
	Metrics *metrics.Metrics

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.GraphAPI == nil {
		err = multierror.Append(err, xerrors.Errorf("graph API has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.UpdateInterval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for update interval"))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	if cfg.Calculator.Logger == nil {
		cfg.Calculator.Logger = cfg.Logger
	}
	return err
}

// Result is the outcome of a ranking pass.
type Result struct {
	// Scores of all ranked links in descending order. Empty if the pass
	// was skipped.
	Scores []pagerank.Score

	Nodes int
	Edges int
}

// Service periodically computes the rank of every link in the link graph
// and stores the result back in the graph.
type Service struct {
	cfg        Config
	calculator *pagerank.Calculator
}

// NewService creates a new ranking service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("rank service: config validation failed: %w", err)
	}

	calculator, err := pagerank.NewCalculator(cfg.Calculator)
	if err != nil {
		return nil, xerrors.Errorf("rank service: %w", err)
	}
	return &Service{
		cfg:        cfg,
		calculator: calculator,
	}, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "rank" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	svc.cfg.Logger.WithField("update_interval", svc.cfg.UpdateInterval.String()).Info("starting service")
	defer svc.cfg.Logger.Info("stopped service")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.cfg.Clock.After(svc.cfg.UpdateInterval):
			if _, err := svc.RankOnce(ctx); err != nil {
				if xerrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// RankOnce loads the link graph, computes the rank of every link and stores
// the scores. Passes over a graph without edges are skipped.
func (svc *Service) RankOnce(ctx context.Context) (*Result, error) {
	svc.cfg.Logger.Info("starting new ranking pass")
	startAt := svc.cfg.Clock.Now()

	g, res, err := svc.loadGraph()
	if err != nil {
		svc.cfg.Metrics.RankPasses.WithLabelValues("failed").Inc()
		return nil, err
	}
	svc.cfg.Metrics.GraphNodes.Set(float64(res.Nodes))
	svc.cfg.Metrics.GraphEdges.Set(float64(res.Edges))

	if res.Edges == 0 {
		svc.cfg.Metrics.RankPasses.WithLabelValues("skipped").Inc()
		svc.cfg.Logger.WithField("nodes", res.Nodes).Info("skipping ranking pass: link graph has no edges")
		return res, nil
	}

	if res.Scores, err = svc.calculator.Rank(ctx, g); err != nil {
		svc.cfg.Metrics.RankPasses.WithLabelValues("failed").Inc()
		return nil, xerrors.Errorf("rank: unable to compute scores: %w", err)
	}

	for _, score := range res.Scores {
		id, err := uuid.Parse(score.ID)
		if err != nil {
			return nil, xerrors.Errorf("rank: invalid link ID %q: %w", score.ID, err)
		}
		if err = svc.cfg.GraphAPI.UpdateRank(id, score.Value); err != nil {
			svc.cfg.Metrics.RankPasses.WithLabelValues("failed").Inc()
			return nil, xerrors.Errorf("rank: unable to store score for link %s: %w", id, err)
		}
	}

	elapsed := svc.cfg.Clock.Now().Sub(startAt)
	svc.cfg.Metrics.RankPasses.WithLabelValues("ok").Inc()
	svc.cfg.Metrics.RankDuration.Observe(elapsed.Seconds())
	svc.cfg.Logger.WithFields(logrus.Fields{
		"nodes":        res.Nodes,
		"edges":        res.Edges,
		"elapsed_time": elapsed.String(),
	}).Info("completed ranking pass")
	return res, nil
}

func (svc *Service) loadGraph() (*pagerank.Graph, *Result, error) {
	var (
		g   = pagerank.NewGraph()
		res = new(Result)
	)

	linkIt, err := svc.cfg.GraphAPI.Links()
	if err != nil {
		return nil, nil, xerrors.Errorf("rank: unable to retrieve links iterator: %w", err)
	}
	for linkIt.Next() {
		g.InsertNode(linkIt.Link().ID.String())
		res.Nodes++
	}
	if err = linkIt.Error(); err != nil {
		_ = linkIt.Close()
		return nil, nil, xerrors.Errorf("rank: unable to load links: %w", err)
	}
	if err = linkIt.Close(); err != nil {
		return nil, nil, xerrors.Errorf("rank: unable to load links: %w", err)
	}

	edgeIt, err := svc.cfg.GraphAPI.Edges()
	if err != nil {
		return nil, nil, xerrors.Errorf("rank: unable to retrieve edges iterator: %w", err)
	}
	for edgeIt.Next() {
		edge := edgeIt.Edge()
		if err = g.InsertEdge(edge.Src.String(), edge.Dst.String()); err != nil {
			_ = edgeIt.Close()
			return nil, nil, xerrors.Errorf("rank: unable to load edges: %w", err)
		}
		res.Edges++
	}
	if err = edgeIt.Error(); err != nil {
		_ = edgeIt.Close()
		return nil, nil, xerrors.Errorf("rank: unable to load edges: %w", err)
	}
	if err = edgeIt.Close(); err != nil {
		return nil, nil, xerrors.Errorf("rank: unable to load edges: %w", err)
	}
	return g, res, nil
}
