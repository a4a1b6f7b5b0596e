package pagerank

import (
	gc "gopkg.in/check.v1"
	"math"
	"math/rand"
)

var _ = gc.Suite(new(MatrixTestSuite))

type MatrixTestSuite struct{}

func (s *MatrixTestSuite) TestColumnsAreStochastic(c *gc.C) {
	assertStochastic(c, letterGraph(c).TransitionMatrix(DefaultDampingFactor), 1e-12)
}

func (s *MatrixTestSuite) TestRandomGraphColumnsAreStochastic(c *gc.C) {
	g := NewGraph()
	rng := rand.New(rand.NewSource(7))
	growRandomGraph(c, g, rng, 0, 400)
	c.Assert(g.Capacity(), gc.Equals, DefaultInitialCapacity)
	for _, damping := range []float64{DefaultDampingFactor, 0.5, 1.0} {
		assertStochastic(c, g.TransitionMatrix(damping), 1e-9)
	}

	// Growing past the initial capacity keeps existing positions and
	// the rebuilt matrix covers every node.
	pos, _ := g.Position("399")
	growRandomGraph(c, g, rng, 400, 1200)
	c.Assert(g.Capacity() >= 1200, gc.Equals, true, gc.Commentf("capacity %d", g.Capacity()))
	c.Assert(g.IsInvalid(), gc.Equals, true)
	newPos, _ := g.Position("399")
	c.Assert(newPos, gc.Equals, pos)

	m := g.TransitionMatrix(DefaultDampingFactor)
	c.Assert(m.Dim(), gc.Equals, 1200)
	assertStochastic(c, m, 1e-9)
}

func assertStochastic(c *gc.C, m *TransitionMatrix, tolerance float64) {
	for col := 0; col < m.Dim(); col++ {
		sum := m.ColumnSum(col)
		c.Assert(math.Abs(sum-1.0) < tolerance, gc.Equals, true, gc.Commentf("column %d sums to %v", col, sum))
	}
}

func (s *MatrixTestSuite) TestDanglingColumn(c *gc.C) {
	g := NewGraph()
	c.Assert(g.InsertEdge("a", "b"), gc.IsNil)
	g.InsertNode("c")

	m := g.TransitionMatrix(0.8)
	// "c" has no out-links and distributes its mass uniformly.
	for row := 0; row < 3; row++ {
		c.Assert(math.Abs(m.At(row, 2)-1.0/3) < 1e-12, gc.Equals, true)
	}
	c.Assert(math.Abs(m.ColumnSum(2)-1.0) < 1e-12, gc.Equals, true)
}

func (s *MatrixTestSuite) TestEntries(c *gc.C) {
	g := NewGraph()
	c.Assert(g.InsertEdge("a", "b"), gc.IsNil)
	c.Assert(g.InsertEdge("a", "c"), gc.IsNil)
	c.Assert(g.InsertEdge("b", "a"), gc.IsNil)
	c.Assert(g.InsertEdge("c", "a"), gc.IsNil)

	var (
		d    = 0.85
		jump = (1 - d) / 3
		m    = g.TransitionMatrix(d)
	)
	specs := []struct {
		row, col int
		exp      float64
	}{
		{0, 0, jump},
		{1, 0, jump + d/2},
		{2, 0, jump + d/2},
		{0, 1, jump + d},
		{2, 1, jump},
		{0, 2, jump + d},
	}
	for _, spec := range specs {
		got := m.At(spec.row, spec.col)
		c.Assert(math.Abs(got-spec.exp) < 1e-12, gc.Equals, true, gc.Commentf("M[%d][%d] = %v; expected %v", spec.row, spec.col, got, spec.exp))
	}
}
