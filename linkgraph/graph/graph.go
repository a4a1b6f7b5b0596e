package graph

import (
	"github.com/google/uuid"
	"time"
)

// Iterator is implemented by graph objects that can be iterated.
type Iterator interface {
	// Next advances the iterator. If no more items are available or an
	// error occurs, calls to Next() returns false.
	Next() bool

	// Error returns the last error encountered by the iterator
	Error() error

	// Close releases any resources associated with an iterator.
	Close() error
}

// LinkIterator is implemented by object that can iterate the graph links.
type LinkIterator interface {
	Iterator

	// Link returns the currently fetched link object
	Link() *Link
}

// EdgeIterator is implemented by object that can iterate the graph edges
type EdgeIterator interface {
	Iterator

	//Edge returns the currently fetched edge objects
	Edge() *Edge
}

// Link describes a site that has been discovered by the spider.
type Link struct {
	ID  uuid.UUID
	URL string

	// Title of the site's front page.
	Title string

	// Content holds the raw markup of the front page so that the link roll
	// can be re-scanned without fetching the page again.
	Content string

	// Rank is the score assigned by the last ranking pass.
	Rank float64

	RetrievedAt time.Time
}

// Edge describes a directed relation from Src to Dst that was found in the
// link roll of Src.
type Edge struct {
	ID        uuid.UUID
	Src       uuid.UUID
	Dst       uuid.UUID
	UpdatedAt time.Time
}

// Graph is implemented by objects that can persist and query the link graph.
type Graph interface {
	// UpsertLink creates a new link or updates an existing link. Links are
	// keyed by their URL.
	UpsertLink(link *Link) error

	// FindLink looks up a link by its ID.
	FindLink(id uuid.UUID) (*Link, error)

	// FindLinkByURL looks up a link whose URL matches url ignoring case.
	FindLinkByURL(url string) (*Link, error)

	// MatchLink returns the link with the lexicographically smallest URL
	// that starts with prefix, ignoring case.
	MatchLink(prefix string) (*Link, error)

	// Links returns an iterator for the set of all known links.
	Links() (LinkIterator, error)

	// UpsertEdge creates a new edge or refreshes an existing edge. The
	// edge's UpdatedAt timestamp is kept unless it is older than the
	// stored one; a zero UpdatedAt is replaced with the current time.
	UpsertEdge(edge *Edge) error

	// Edges returns an iterator for the set of all known edges.
	Edges() (EdgeIterator, error)

	// UpdateRank stores the rank score for the specified link.
	UpdateRank(id uuid.UUID, score float64) error
}
