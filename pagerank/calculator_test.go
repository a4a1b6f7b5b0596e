package pagerank

import (
	"context"
	"fmt"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
	"math"
	"math/rand"
)

var _ = gc.Suite(new(CalculatorTestSuite))

type CalculatorTestSuite struct{}

func (s *CalculatorTestSuite) TestBlogFixture(c *gc.C) {
	g := NewGraph()
	for _, id := range []string{"google", "apple", "goagrejor", "scipy", "enea", "idg"} {
		g.InsertNode(id)
	}
	edges := map[string][]string{
		"goagrejor": {"google", "enea", "apple"},
		"idg":       {"google", "goagrejor", "enea", "scipy"},
		"google":    {"enea", "google", "goagrejor", "idg", "scipy"},
		"scipy":     {"enea"},
		"enea":      {"google", "goagrejor", "enea"},
		"apple":     {"idg"},
	}
	for src, dsts := range edges {
		for _, dst := range dsts {
			c.Assert(g.InsertEdge(src, dst), gc.IsNil)
		}
	}

	scores := s.rank(c, g, Config{})
	c.Assert(positions(scores), gc.DeepEquals, []int{4, 0, 2, 5, 3, 1})

	expRaw := map[string]float64{
		"google":    1.7804,
		"apple":     0.5894,
		"goagrejor": 1.3873,
		"scipy":     0.7115,
		"enea":      2.3851,
		"idg":       1.0,
	}
	for _, score := range scores {
		c.Assert(math.Abs(score.Raw-expRaw[score.ID]) < 1e-3, gc.Equals, true, gc.Commentf("raw score for %q: %v", score.ID, score.Raw))
	}
	assertNormalized(c, scores)
}

func (s *CalculatorTestSuite) TestLetterGraph(c *gc.C) {
	scores := s.rank(c, letterGraph(c), Config{})

	var ids []string
	for _, score := range scores {
		ids = append(ids, score.ID)
	}
	c.Assert(ids, gc.DeepEquals, []string{"C", "B", "A", "E", "F", "D"})
	assertNormalized(c, scores)
}

func (s *CalculatorTestSuite) TestEmptyGraph(c *gc.C) {
	scores := s.rank(c, NewGraph(), Config{})
	c.Assert(scores, gc.HasLen, 0)
}

func (s *CalculatorTestSuite) TestSingleNode(c *gc.C) {
	g := NewGraph()
	g.InsertNode("solo")

	scores := s.rank(c, g, Config{})
	c.Assert(scores, gc.HasLen, 1)
	c.Assert(scores[0].ID, gc.Equals, "solo")
	c.Assert(math.Abs(scores[0].Value-1.0) < 1e-12, gc.Equals, true)
}

func (s *CalculatorTestSuite) TestTiesKeepInsertionOrder(c *gc.C) {
	g := NewGraph()
	for _, id := range []string{"z", "y", "x"} {
		g.InsertNode(id)
	}

	scores := s.rank(c, g, Config{})
	c.Assert(positions(scores), gc.DeepEquals, []int{0, 1, 2})
	for _, score := range scores {
		c.Assert(math.Abs(score.Value-1.0/3) < 1e-9, gc.Equals, true)
	}
}

func (s *CalculatorTestSuite) TestDeterministic(c *gc.C) {
	g := letterGraph(c)
	first := s.rank(c, g, Config{})
	for i := 0; i < 5; i++ {
		c.Assert(s.rank(c, g, Config{}), gc.DeepEquals, first)
	}
}

func (s *CalculatorTestSuite) TestParallelWorkersMatchSerial(c *gc.C) {
	g := NewGraph()
	growRandomGraph(c, g, rand.New(rand.NewSource(42)), 0, 1200)

	serial := s.rank(c, g, Config{ComputeWorkers: 1})
	parallel := s.rank(c, g, Config{ComputeWorkers: 4})
	c.Assert(parallel, gc.DeepEquals, serial)
	assertNormalized(c, serial)
}

func (s *CalculatorTestSuite) TestIterationCap(c *gc.C) {
	calc, err := NewCalculator(Config{MaxIterations: 1})
	c.Assert(err, gc.IsNil)

	_, err = calc.Rank(context.TODO(), letterGraph(c))
	c.Assert(xerrors.Is(err, ErrRankDidNotConverge), gc.Equals, true, gc.Commentf("unexpected error: %v", err))
}

func (s *CalculatorTestSuite) TestContextCancellation(c *gc.C) {
	calc, err := NewCalculator(Config{})
	c.Assert(err, gc.IsNil)

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()
	_, err = calc.Rank(ctx, letterGraph(c))
	c.Assert(xerrors.Is(err, context.Canceled), gc.Equals, true)
}

func (s *CalculatorTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewCalculator(Config{DampingFactor: 1.5, MaxIterations: -1})
	c.Assert(err, gc.ErrorMatches, "(?ms).*damping factor.*max iterations.*")

	calc, err := NewCalculator(Config{})
	c.Assert(err, gc.IsNil)
	c.Assert(calc.cfg.DampingFactor, gc.Equals, DefaultDampingFactor)
	c.Assert(calc.cfg.MaxIterations, gc.Equals, DefaultMaxIterations)
	c.Assert(calc.cfg.ComputeWorkers, gc.Equals, 1)
}

func (s *CalculatorTestSuite) rank(c *gc.C, g *Graph, cfg Config) []Score {
	calc, err := NewCalculator(cfg)
	c.Assert(err, gc.IsNil)

	scores, err := calc.Rank(context.TODO(), g)
	c.Assert(err, gc.IsNil)
	return scores
}

func positions(scores []Score) []int {
	out := make([]int, len(scores))
	for i, score := range scores {
		out[i] = score.Position
	}
	return out
}

func assertNormalized(c *gc.C, scores []Score) {
	var sum float64
	for _, score := range scores {
		sum += score.Value
	}
	c.Assert(math.Abs(sum-1.0) < 1e-9, gc.Equals, true, gc.Commentf("scores sum to %v", sum))
}

// letterGraph returns a six node graph with a dangling-free, strongly
// connected link structure.
// growRandomGraph inserts nodes [from, to) into g and links each of them
// to random nodes in [0, to). Every seventh node is left dangling.
func growRandomGraph(c *gc.C, g *Graph, rng *rand.Rand, from, to int) {
	for i := from; i < to; i++ {
		g.InsertNode(fmt.Sprint(i))
	}
	for i := from; i < to; i++ {
		if i%7 == 0 {
			continue
		}
		for j := 0; j < 1+rng.Intn(10); j++ {
			c.Assert(g.InsertEdge(fmt.Sprint(i), fmt.Sprint(rng.Intn(to))), gc.IsNil)
		}
	}
}

func letterGraph(c *gc.C) *Graph {
	g := NewGraph()
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		g.InsertNode(id)
	}
	for _, e := range [][2]string{
		{"A", "B"}, {"A", "C"}, {"A", "D"},
		{"E", "B"}, {"E", "A"}, {"E", "C"}, {"E", "F"},
		{"B", "C"}, {"B", "B"}, {"B", "A"}, {"B", "E"}, {"B", "F"},
		{"F", "C"},
		{"C", "B"}, {"C", "A"}, {"C", "C"},
		{"D", "E"},
	} {
		c.Assert(g.InsertEdge(e[0], e[1]), gc.IsNil)
	}
	return g
}
