package memory

import (
	"Blogroll/linkgraph/graph"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	"strings"
	"sync"
	"time"
)

// Compile-time check for ensuring InMemoryGraph implements Graph.
var _ graph.Graph = (*InMemoryGraph)(nil)

type edgeList []uuid.UUID

// InMemoryGraph implements an in-memory link graph that can be concurrently
// accessed by multiple clients.
type InMemoryGraph struct {
	mu sync.RWMutex

	links map[uuid.UUID]*graph.Link
	edges map[uuid.UUID]*graph.Edge

	linkURLIndex map[string]*graph.Link
	linkEdgeMap  map[uuid.UUID]edgeList

	// linkOrder and edgeOrder keep insertion order so that iterators
	// yield items deterministically.
	linkOrder []uuid.UUID
	edgeOrder []uuid.UUID
}

// NewInMemoryGraph creates a new in-memory link graph.
func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{
		links:        make(map[uuid.UUID]*graph.Link),
		edges:        make(map[uuid.UUID]*graph.Edge),
		linkURLIndex: make(map[string]*graph.Link),
		linkEdgeMap:  make(map[uuid.UUID]edgeList),
	}
}

// UpsertLink creates a new link or updates an existing link.
func (s *InMemoryGraph) UpsertLink(link *graph.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if a link with the same URL already exists. If so, convert
	// this into an update and point the ID to an existing link.
	if existing := s.linkURLIndex[urlKey(link.URL)]; existing != nil {
		link.ID = existing.ID
		link.Rank = existing.Rank
		origTs := existing.RetrievedAt

		*existing = *link
		if origTs.After(existing.RetrievedAt) {
			existing.RetrievedAt = origTs
		}
		link.RetrievedAt = existing.RetrievedAt
		return nil
	}

	// Assign new ID and insert link
	for {
		link.ID = uuid.New()
		if s.links[link.ID] == nil {
			break
		}
	}
	link.Rank = 0

	lCopy := new(graph.Link)
	*lCopy = *link
	s.linkURLIndex[urlKey(lCopy.URL)] = lCopy
	s.links[lCopy.ID] = lCopy
	s.linkOrder = append(s.linkOrder, lCopy.ID)
	return nil
}

// UpsertEdge creates a new edge or updates an existing edge.
func (s *InMemoryGraph) UpsertEdge(edge *graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, srcExists := s.links[edge.Src]
	_, dstExists := s.links[edge.Dst]
	if !srcExists || !dstExists {
		return xerrors.Errorf("upsert edge: %w", graph.ErrUnknownEdgeLinks)
	}

	if edge.UpdatedAt.IsZero() {
		edge.UpdatedAt = time.Now()
	}

	// Check if the edge already exists and refresh it
	for _, edgeID := range s.linkEdgeMap[edge.Src] {
		existing := s.edges[edgeID]
		if existing.Src == edge.Src && existing.Dst == edge.Dst {
			if edge.UpdatedAt.After(existing.UpdatedAt) {
				existing.UpdatedAt = edge.UpdatedAt
			}
			*edge = *existing
			return nil
		}
	}

	// Assign new ID and insert edge
	for {
		edge.ID = uuid.New()
		if s.edges[edge.ID] == nil {
			break
		}
	}

	eCopy := new(graph.Edge)
	*eCopy = *edge
	s.edges[eCopy.ID] = eCopy
	s.edgeOrder = append(s.edgeOrder, eCopy.ID)

	// Append the edge ID to the list of edges originating from the
	// edge's source link.
	s.linkEdgeMap[edge.Src] = append(s.linkEdgeMap[edge.Src], eCopy.ID)
	return nil
}

// FindLink looks up a link by its ID.
func (s *InMemoryGraph) FindLink(id uuid.UUID) (*graph.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := s.links[id]
	if link == nil {
		return nil, xerrors.Errorf("find link: %w", graph.ErrNotFound)
	}

	lCopy := new(graph.Link)
	*lCopy = *link
	return lCopy, nil
}

// FindLinkByURL looks up a link by its URL ignoring case.
func (s *InMemoryGraph) FindLinkByURL(url string) (*graph.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := s.linkURLIndex[urlKey(url)]
	if link == nil {
		return nil, xerrors.Errorf("find link by url: %w", graph.ErrNotFound)
	}

	lCopy := new(graph.Link)
	*lCopy = *link
	return lCopy, nil
}

// MatchLink returns the link with the smallest URL that starts with prefix.
func (s *InMemoryGraph) MatchLink(prefix string) (*graph.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = urlKey(prefix)
	var best *graph.Link
	for key, link := range s.linkURLIndex {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if best == nil || key < urlKey(best.URL) {
			best = link
		}
	}
	if best == nil {
		return nil, xerrors.Errorf("match link: %w", graph.ErrNotFound)
	}

	lCopy := new(graph.Link)
	*lCopy = *best
	return lCopy, nil
}

// Links returns an iterator for all links in the graph.
func (s *InMemoryGraph) Links() (graph.LinkIterator, error) {
	s.mu.RLock()
	list := make([]*graph.Link, 0, len(s.linkOrder))
	for _, linkID := range s.linkOrder {
		list = append(list, s.links[linkID])
	}
	s.mu.RUnlock()

	return &linkIterator{s: s, links: list}, nil
}

// Edges returns an iterator for all edges in the graph.
func (s *InMemoryGraph) Edges() (graph.EdgeIterator, error) {
	s.mu.RLock()
	list := make([]*graph.Edge, 0, len(s.edgeOrder))
	for _, edgeID := range s.edgeOrder {
		list = append(list, s.edges[edgeID])
	}
	s.mu.RUnlock()

	return &edgeIterator{s: s, edges: list}, nil
}

// UpdateRank stores the rank score for the specified link.
func (s *InMemoryGraph) UpdateRank(id uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link := s.links[id]
	if link == nil {
		return xerrors.Errorf("update rank: %w", graph.ErrNotFound)
	}
	link.Rank = score
	return nil
}

func urlKey(url string) string {
	return strings.ToLower(url)
}
