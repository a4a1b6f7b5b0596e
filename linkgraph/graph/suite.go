package graph

import (
	"fmt"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
	"sort"
	"sync"
	"time"
)

// SuiteBase defines a re-usable set of graph-related tests that can
// be executed against any type that implements graph.Graph.
type SuiteBase struct {
	g Graph
}

// SetGraph configures the test-suite to run all tests against g.
func (s *SuiteBase) SetGraph(g Graph) {
	s.g = g
}

// TestUpsertLink verifies the link upsert logic.
func (s *SuiteBase) TestUpsertLink(c *gc.C) {
	// Create a new link
	original := &Link{
		URL:         "http://example.com",
		Title:       "Example",
		RetrievedAt: time.Now().Add(-10 * time.Hour),
	}

	err := s.g.UpsertLink(original)
	c.Assert(err, gc.IsNil)
	c.Assert(original.ID, gc.Not(gc.Equals), uuid.Nil, gc.Commentf("expected a linkID to be assigned to the new link"))

	// Update existing link with a newer timestamp and new content
	accessedAt := time.Now().Truncate(time.Second).UTC()
	existing := &Link{
		ID:          original.ID,
		URL:         "http://example.com",
		Title:       "Example v2",
		Content:     "<html></html>",
		RetrievedAt: accessedAt,
	}
	err = s.g.UpsertLink(existing)
	c.Assert(err, gc.IsNil)
	c.Assert(existing.ID, gc.Equals, original.ID, gc.Commentf("link ID changed while upserting"))

	stored, err := s.g.FindLink(existing.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.RetrievedAt.Equal(accessedAt), gc.Equals, true, gc.Commentf("last accessed timestamp was not updated"))
	c.Assert(stored.Title, gc.Equals, "Example v2")
	c.Assert(stored.Content, gc.Equals, "<html></html>")

	// Attempt to insert a new link whose URL matches an existing link
	// and provide an older accessedAt value
	sameURL := &Link{
		URL:         existing.URL,
		RetrievedAt: time.Now().Add(-10 * time.Hour).UTC(),
	}
	err = s.g.UpsertLink(sameURL)
	c.Assert(err, gc.IsNil)
	c.Assert(sameURL.ID, gc.Equals, existing.ID)

	stored, err = s.g.FindLink(existing.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.RetrievedAt.Equal(accessedAt), gc.Equals, true, gc.Commentf("last accessed timestamp was overwritten with an older value"))

	// Upserting must never reset a previously computed rank.
	c.Assert(s.g.UpdateRank(existing.ID, 0.25), gc.IsNil)
	c.Assert(s.g.UpsertLink(&Link{URL: existing.URL, RetrievedAt: time.Now()}), gc.IsNil)
	stored, err = s.g.FindLink(existing.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Rank, gc.Equals, 0.25)
}

// TestFindLink verifies the link lookup logic.
func (s *SuiteBase) TestFindLink(c *gc.C) {
	// Create a new link
	link := &Link{
		URL:         "http://example.com",
		Title:       "Example",
		Content:     "<p>hi</p>",
		RetrievedAt: time.Now().Truncate(time.Second).UTC(),
	}

	err := s.g.UpsertLink(link)
	c.Assert(err, gc.IsNil)
	c.Assert(link.ID, gc.Not(gc.Equals), uuid.Nil, gc.Commentf("expected a linkID to be assigned to the new link"))

	// Lookup link by ID
	other, err := s.g.FindLink(link.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(other.URL, gc.Equals, link.URL)
	c.Assert(other.Title, gc.Equals, link.Title)
	c.Assert(other.Content, gc.Equals, link.Content)
	c.Assert(other.RetrievedAt.Equal(link.RetrievedAt), gc.Equals, true)

	// Lookup link by unknown ID
	_, err = s.g.FindLink(uuid.Nil)
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

// TestFindLinkByURL verifies that URL lookups ignore case.
func (s *SuiteBase) TestFindLinkByURL(c *gc.C) {
	link := &Link{URL: "http://example.com/blog"}
	c.Assert(s.g.UpsertLink(link), gc.IsNil)

	other, err := s.g.FindLinkByURL("HTTP://Example.com/blog")
	c.Assert(err, gc.IsNil)
	c.Assert(other.ID, gc.Equals, link.ID)

	_, err = s.g.FindLinkByURL("http://example.com")
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true, gc.Commentf("exact lookup must not match prefixes"))
}

// TestMatchLink verifies the prefix-based lookup logic.
func (s *SuiteBase) TestMatchLink(c *gc.C) {
	for _, u := range []string{"http://b.example.com/zzz", "http://b.example.com", "http://a.example.com"} {
		c.Assert(s.g.UpsertLink(&Link{URL: u}), gc.IsNil)
	}

	link, err := s.g.MatchLink("HTTP://B.example")
	c.Assert(err, gc.IsNil)
	c.Assert(link.URL, gc.Equals, "http://b.example.com", gc.Commentf("expected the smallest matching URL"))

	link, err = s.g.MatchLink("http://a.example.com")
	c.Assert(err, gc.IsNil)
	c.Assert(link.URL, gc.Equals, "http://a.example.com")

	// LIKE wildcards in the prefix must be matched literally.
	_, err = s.g.MatchLink("http://%")
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
	_, err = s.g.MatchLink("http://_.example.com")
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)

	_, err = s.g.MatchLink("http://c.example.com")
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

// TestConcurrentLinkIterators verifies that multiple clients can concurrently
// access the store.
func (s *SuiteBase) TestConcurrentLinkIterators(c *gc.C) {
	var (
		wg           sync.WaitGroup
		numIterators = 10
		numLinks     = 100
	)

	for i := 0; i < numLinks; i++ {
		link := &Link{URL: fmt.Sprint(i)}
		c.Assert(s.g.UpsertLink(link), gc.IsNil)
	}

	wg.Add(numIterators)
	for i := 0; i < numIterators; i++ {
		go func(id int) {
			defer wg.Done()

			itTagComment := gc.Commentf("iterator %d", id)
			seen := make(map[string]bool)
			it, err := s.g.Links()
			c.Assert(err, gc.IsNil, itTagComment)

			for i := 0; it.Next(); i++ {
				link := it.Link()
				linkID := link.ID.String()
				c.Assert(seen[linkID], gc.Equals, false, gc.Commentf("iterator %d saw same link twice", id))
				seen[linkID] = true
			}

			c.Assert(seen, gc.HasLen, numLinks, itTagComment)
			c.Assert(it.Error(), gc.IsNil, itTagComment)
			c.Assert(it.Close(), gc.IsNil, itTagComment)
		}(i)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	// test completed successfully
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for test to complete")
	}
}

// TestUpsertEdge verifies the edge upsert logic.
func (s *SuiteBase) TestUpsertEdge(c *gc.C) {
	// Create links
	linkUUIDs := make([]uuid.UUID, 3)
	for i := 0; i < 3; i++ {
		link := &Link{URL: fmt.Sprint(i)}
		c.Assert(s.g.UpsertLink(link), gc.IsNil)
		linkUUIDs[i] = link.ID
	}

	// Create a edge
	edge := &Edge{
		Src: linkUUIDs[0],
		Dst: linkUUIDs[1],
	}

	err := s.g.UpsertEdge(edge)
	c.Assert(err, gc.IsNil)
	c.Assert(edge.ID, gc.Not(gc.Equals), uuid.Nil, gc.Commentf("expected an edgeID to be assigned to the new edge"))
	c.Assert(edge.UpdatedAt.IsZero(), gc.Equals, false, gc.Commentf("UpdatedAt field not set"))

	// Upserting the same pair again is a no-op that keeps the edge ID
	other := &Edge{
		Src: linkUUIDs[0],
		Dst: linkUUIDs[1],
	}
	err = s.g.UpsertEdge(other)
	c.Assert(err, gc.IsNil)
	c.Assert(other.ID, gc.Equals, edge.ID, gc.Commentf("edge ID changed while upserting"))
	c.Assert(s.countEdges(c), gc.Equals, 1)

	// Self-loops are valid edges
	c.Assert(s.g.UpsertEdge(&Edge{Src: linkUUIDs[2], Dst: linkUUIDs[2]}), gc.IsNil)
	c.Assert(s.countEdges(c), gc.Equals, 2)

	// Create edge with unknown link IDs
	bogus := &Edge{
		Src: linkUUIDs[0],
		Dst: uuid.New(),
	}
	err = s.g.UpsertEdge(bogus)
	c.Assert(xerrors.Is(err, ErrUnknownEdgeLinks), gc.Equals, true)
}

// TestUpsertEdgeTimestamp verifies that the UpdatedAt value supplied by the
// caller is stored and only ever moves forward.
func (s *SuiteBase) TestUpsertEdgeTimestamp(c *gc.C) {
	src := &Link{URL: "http://src.example.com"}
	c.Assert(s.g.UpsertLink(src), gc.IsNil)
	dst := &Link{URL: "http://dst.example.com"}
	c.Assert(s.g.UpsertLink(dst), gc.IsNil)

	linkedAt := time.Date(2008, 4, 1, 12, 0, 0, 0, time.UTC)
	edge := &Edge{Src: src.ID, Dst: dst.ID, UpdatedAt: linkedAt}
	c.Assert(s.g.UpsertEdge(edge), gc.IsNil)
	c.Assert(edge.UpdatedAt.Equal(linkedAt), gc.Equals, true, gc.Commentf("got %v", edge.UpdatedAt))
	c.Assert(s.storedEdgeTime(c, edge.ID).Equal(linkedAt), gc.Equals, true)

	relinkedAt := linkedAt.Add(24 * time.Hour)
	c.Assert(s.g.UpsertEdge(&Edge{Src: src.ID, Dst: dst.ID, UpdatedAt: relinkedAt}), gc.IsNil)
	c.Assert(s.storedEdgeTime(c, edge.ID).Equal(relinkedAt), gc.Equals, true)

	// An older timestamp does not move the stored one back.
	older := &Edge{Src: src.ID, Dst: dst.ID, UpdatedAt: linkedAt}
	c.Assert(s.g.UpsertEdge(older), gc.IsNil)
	c.Assert(older.UpdatedAt.Equal(relinkedAt), gc.Equals, true, gc.Commentf("got %v", older.UpdatedAt))
	c.Assert(s.storedEdgeTime(c, edge.ID).Equal(relinkedAt), gc.Equals, true)
}

func (s *SuiteBase) storedEdgeTime(c *gc.C, id uuid.UUID) time.Time {
	it, err := s.g.Edges()
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(it.Close(), gc.IsNil) }()

	for it.Next() {
		if it.Edge().ID == id {
			return it.Edge().UpdatedAt
		}
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Fatalf("edge %v not found", id)
	return time.Time{}
}

// TestConcurrentEdgeIterators verifies that multiple clients can concurrently
// access the store.
func (s *SuiteBase) TestConcurrentEdgeIterators(c *gc.C) {
	var (
		wg           sync.WaitGroup
		numIterators = 10
		numEdges     = 100
		linkUUIDs    = make([]uuid.UUID, numEdges*2)
	)

	for i := 0; i < numEdges*2; i++ {
		link := &Link{URL: fmt.Sprint(i)}
		c.Assert(s.g.UpsertLink(link), gc.IsNil)
		linkUUIDs[i] = link.ID
	}
	for i := 0; i < numEdges; i++ {
		c.Assert(s.g.UpsertEdge(&Edge{
			Src: linkUUIDs[0],
			Dst: linkUUIDs[i],
		}), gc.IsNil)
	}

	wg.Add(numIterators)
	for i := 0; i < numIterators; i++ {
		go func(id int) {
			defer wg.Done()

			itTagComment := gc.Commentf("iterator %d", id)
			seen := make(map[string]bool)
			it, err := s.g.Edges()
			c.Assert(err, gc.IsNil, itTagComment)

			for i := 0; it.Next(); i++ {
				edge := it.Edge()
				edgeID := edge.ID.String()
				c.Assert(seen[edgeID], gc.Equals, false, gc.Commentf("iterator %d saw same edge twice", id))
				seen[edgeID] = true
			}

			c.Assert(seen, gc.HasLen, numEdges, itTagComment)
			c.Assert(it.Error(), gc.IsNil, itTagComment)
			c.Assert(it.Close(), gc.IsNil, itTagComment)
		}(i)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	// test completed successfully
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for test to complete")
	}
}

// TestEdgeIterator verifies that the edge iterator returns the expected
// source/destination pairs.
func (s *SuiteBase) TestEdgeIterator(c *gc.C) {
	linkUUIDs := make([]uuid.UUID, 3)
	for i := 0; i < len(linkUUIDs); i++ {
		link := &Link{URL: fmt.Sprint(i)}
		c.Assert(s.g.UpsertLink(link), gc.IsNil)
		linkUUIDs[i] = link.ID
	}

	var exp []string
	for i := 1; i < len(linkUUIDs); i++ {
		edge := &Edge{Src: linkUUIDs[0], Dst: linkUUIDs[i]}
		c.Assert(s.g.UpsertEdge(edge), gc.IsNil)
		exp = append(exp, edge.Src.String()+"->"+edge.Dst.String())
	}

	it, err := s.g.Edges()
	c.Assert(err, gc.IsNil)

	var got []string
	for it.Next() {
		edge := it.Edge()
		got = append(got, edge.Src.String()+"->"+edge.Dst.String())
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)

	sort.Strings(got)
	sort.Strings(exp)
	c.Assert(got, gc.DeepEquals, exp)
}

// TestUpdateRank verifies that rank scores are persisted.
func (s *SuiteBase) TestUpdateRank(c *gc.C) {
	link := &Link{URL: "http://example.com"}
	c.Assert(s.g.UpsertLink(link), gc.IsNil)

	c.Assert(s.g.UpdateRank(link.ID, 0.42), gc.IsNil)
	stored, err := s.g.FindLink(link.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Rank, gc.Equals, 0.42)

	err = s.g.UpdateRank(uuid.New(), 1.0)
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

func (s *SuiteBase) countEdges(c *gc.C) int {
	it, err := s.g.Edges()
	c.Assert(err, gc.IsNil)

	var count int
	for it.Next() {
		count++
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	return count
}
