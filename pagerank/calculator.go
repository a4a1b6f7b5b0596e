package pagerank

import (
	"context"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"io"
	"math"
	"sort"
)

const (
	// DefaultDampingFactor is the probability that the random surfer
	// follows an outgoing link instead of jumping to a random node.
	DefaultDampingFactor = 0.85

	// DefaultMaxIterations bounds the number of power iteration steps.
	DefaultMaxIterations = 1000

	// DefaultAbsTolerance and DefaultRelTolerance define when two
	// successive iteration vectors are considered equal:
	// |a-b| <= abs + rel*|b| for every element.
	DefaultAbsTolerance = 1e-8
	DefaultRelTolerance = 1e-5
)

// Config encapsulates the settings for a Calculator.
type Config struct {
	// DampingFactor must be in the (0, 1] range. Defaults to 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps before
	// giving up with ErrRankDidNotConverge. Defaults to 1000.
	MaxIterations int

	// Convergence tolerances. Default to 1e-8 (absolute) and 1e-5
	// (relative).
	AbsTolerance float64
	RelTolerance float64

	// ComputeWorkers is the number of workers used for the matrix-vector
	// products. Defaults to 1.
	ComputeWorkers int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.DampingFactor == 0 {
		cfg.DampingFactor = DefaultDampingFactor
	} else if cfg.DampingFactor < 0 || cfg.DampingFactor > 1 {
		err = multierror.Append(err, xerrors.Errorf("damping factor must be in the (0, 1] range"))
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	} else if cfg.MaxIterations < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for max iterations"))
	}
	if cfg.AbsTolerance == 0 {
		cfg.AbsTolerance = DefaultAbsTolerance
	} else if cfg.AbsTolerance < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for absolute tolerance"))
	}
	if cfg.RelTolerance == 0 {
		cfg.RelTolerance = DefaultRelTolerance
	} else if cfg.RelTolerance < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for relative tolerance"))
	}
	if cfg.ComputeWorkers <= 0 {
		cfg.ComputeWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return err
}

// Score is the rank assigned to a single node.
type Score struct {
	// ID is the node identifier.
	ID string

	// Position is the node's insertion position in the graph.
	Position int

	// Value is the normalized score; the values of all nodes sum to 1.
	Value float64

	// Raw is the converged eigenvector entry, scaled so that the entry of
	// the node with the highest position equals 1.
	Raw float64
}

// Calculator computes the rank of every node in a Graph by finding the
// dominant eigenvector of its transition matrix with the power method.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a new Calculator instance using the provided config
// options.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("rank calculator: config validation failed: %w", err)
	}
	return &Calculator{cfg: cfg}, nil
}

// Rank computes the score of every node in g and returns them sorted in
// descending score order. Nodes with equal scores retain their insertion
// order. An empty graph yields an empty result.
//
// The graph is locked for writing while the computation is in progress.
func (c *Calculator) Rank(ctx context.Context, g *Graph) ([]Score, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.ids)
	if n == 0 {
		return nil, nil
	}

	m := g.transitionMatrix(c.cfg.DampingFactor)
	v, err := c.findDominant(ctx, m)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, x := range v {
		sum += x
	}

	scores := make([]Score, n)
	for pos, x := range v {
		scores[pos] = Score{
			ID:       g.ids[pos],
			Position: pos,
			Value:    x / sum,
			Raw:      x,
		}
	}
	sort.SliceStable(scores, func(l, r int) bool { return scores[l].Raw > scores[r].Raw })
	return scores, nil
}

// findDominant approximates the dominant eigenvector of m starting from the
// uniform vector (1/n, ..., 1/n). After each multiplication the vector is
// rescaled by its last entry.
func (c *Calculator) findDominant(ctx context.Context, m *TransitionMatrix) ([]float64, error) {
	var (
		n         = m.Dim()
		v         = make([]float64, n)
		next      = make([]float64, n)
		converged bool
	)
	for i := range v {
		v[i] = 1.0 / float64(n)
	}

	workers := startRowWorkers(m, c.cfg.ComputeWorkers)
	defer workers.close()

	ex := newExecutor(
		func() error {
			workers.mulVec(next, v)
			pivot := next[n-1]
			if pivot == 0 || math.IsNaN(pivot) || math.IsInf(pivot, 0) {
				return xerrors.Errorf("rank: degenerate pivot %v: %w", pivot, ErrRankDidNotConverge)
			}
			for i := range next {
				next[i] /= pivot
			}
			return nil
		},
		executorCallbacks{
			postStepKeepRunning: func(_ context.Context, step int) (bool, error) {
				converged = c.allClose(next, v)
				v, next = next, v
				return !converged, nil
			},
		},
	)

	if err := ex.runSteps(ctx, c.cfg.MaxIterations); err != nil {
		return nil, err
	}
	if !converged {
		return nil, xerrors.Errorf("rank: no fixed point after %d iterations: %w", ex.steps(), ErrRankDidNotConverge)
	}

	c.cfg.Logger.WithFields(logrus.Fields{
		"nodes":      n,
		"iterations": ex.steps(),
	}).Debug("rank computation converged")
	return v, nil
}

// allClose returns true if a and b are element-wise equal within the
// configured tolerances.
func (c *Calculator) allClose(a, b []float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > c.cfg.AbsTolerance+c.cfg.RelTolerance*math.Abs(b[i]) {
			return false
		}
	}
	return true
}
