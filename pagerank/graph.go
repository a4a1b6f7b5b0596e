package pagerank

import (
	"golang.org/x/xerrors"
	"sync"
)

// DefaultInitialCapacity is the number of node positions a new Graph can
// address before its internal representation needs to grow.
const DefaultInitialCapacity = 500

type edge struct {
	from, to int
}

// Graph is an incrementally built directed graph of node identifiers. Each
// node is assigned a dense position (0..N-1) in insertion order; positions
// are never reused or renumbered.
//
// Graph caches the normalized transition matrix used by the Calculator. Any
// structural mutation marks the cached matrix as invalid so that it gets
// rebuilt by the next rank computation.
//
// Graph is safe for concurrent use. Insertions and matrix rebuilds are
// serialized by a single writer lock.
type Graph struct {
	mu sync.RWMutex

	positions map[string]int
	ids       []string

	// out holds the destinations of each source position in insertion
	// order; its length is the addressable capacity of the graph.
	out   [][]int
	edges map[edge]struct{}

	matrix  *TransitionMatrix
	invalid bool
}

// NewGraph returns an empty graph with the default initial capacity.
func NewGraph() *Graph {
	return NewGraphWithCapacity(DefaultInitialCapacity)
}

// NewGraphWithCapacity returns an empty graph that can initially address
// capacity node positions. The graph grows automatically as needed.
func NewGraphWithCapacity(capacity int) *Graph {
	if capacity < 1 {
		capacity = 1
	}
	return &Graph{
		positions: make(map[string]int),
		out:       make([][]int, capacity),
		edges:     make(map[edge]struct{}),
		invalid:   true,
	}
}

// InsertNode adds id to the graph and returns its position. Inserting an
// existing id is a no-op that returns the previously assigned position.
func (g *Graph) InsertNode(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertNode(id)
}

func (g *Graph) insertNode(id string) int {
	if pos, exists := g.positions[id]; exists {
		return pos
	}

	pos := len(g.ids)
	g.positions[id] = pos
	g.ids = append(g.ids, id)

	// Double the addressable range once we run out of positions.
	if len(g.ids) == len(g.out) {
		grown := make([][]int, len(g.out)*2)
		copy(grown, g.out)
		g.out = grown
	}
	g.invalidate()
	return pos
}

// InsertEdge adds a directed edge from fromID to toID. Endpoints that have
// not been inserted yet are inserted automatically. Inserting an existing
// edge is a no-op but still invalidates the cached transition matrix.
func (g *Graph) InsertEdge(fromID, toID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.invalidate()
	from, to := g.insertNode(fromID), g.insertNode(toID)
	if from >= len(g.out) || to >= len(g.out) {
		return xerrors.Errorf("insert edge %q -> %q: %w", fromID, toID, ErrInvalidGraphState)
	}

	e := edge{from: from, to: to}
	if _, exists := g.edges[e]; exists {
		return nil
	}
	g.edges[e] = struct{}{}
	g.out[from] = append(g.out[from], to)
	return nil
}

// IsInvalid returns true if the graph has been mutated since the transition
// matrix was last built.
func (g *Graph) IsInvalid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.invalid
}

func (g *Graph) invalidate() {
	g.invalid = true
	g.matrix = nil
}

// Position returns the position assigned to id.
func (g *Graph) Position(id string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pos, ok := g.positions[id]
	return pos, ok
}

// ID returns the identifier of the node at position pos.
func (g *Graph) ID(pos int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if pos < 0 || pos >= len(g.ids) {
		return "", false
	}
	return g.ids[pos], true
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// NumEdges returns the number of distinct edges in the graph.
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Capacity returns the number of node positions the graph can currently
// address without growing.
func (g *Graph) Capacity() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out)
}

// OutDegree returns the number of distinct out-edges of id.
func (g *Graph) OutDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pos, ok := g.positions[id]
	if !ok {
		return 0
	}
	return len(g.out[pos])
}

// HasEdge returns true if the graph contains an edge from fromID to toID.
func (g *Graph) HasEdge(fromID, toID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	from, fromOK := g.positions[fromID]
	to, toOK := g.positions[toID]
	if !fromOK || !toOK {
		return false
	}
	_, exists := g.edges[edge{from: from, to: to}]
	return exists
}

// TransitionMatrix returns the normalized transition matrix for the graph
// using the provided damping factor, rebuilding it if the graph has been
// mutated since the last build.
func (g *Graph) TransitionMatrix(damping float64) *TransitionMatrix {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transitionMatrix(damping)
}

func (g *Graph) transitionMatrix(damping float64) *TransitionMatrix {
	if g.invalid || g.matrix == nil || g.matrix.damping != damping {
		g.matrix = normalize(g.out[:len(g.ids)], damping)
		g.invalid = false
	}
	return g.matrix
}
