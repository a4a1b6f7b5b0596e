package cockroachdb

import (
	"Blogroll/linkgraph/graph"
	"database/sql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
	"strings"
	"time"
)

// Compile-time check for ensuring CockroachDBGraph implements Graph.
var _ graph.Graph = (*CockroachDBGraph)(nil)

var (
	upsertLinkQuery = `INSERT INTO links (url, url_key, title, content, retrieved_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url_key) DO UPDATE SET url=$1, title=$3, content=$4, retrieved_at = GREATEST(links.retrieved_at, $5)
RETURNING id, score, retrieved_at`

	upsertEdgeQuery = `INSERT INTO edges (src, dst, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (src, dst) DO UPDATE SET updated_at=GREATEST(edges.updated_at, $3)
RETURNING id, updated_at`

	linkColumns = `id, url, title, content, score, retrieved_at`

	findLinkQuery      = `SELECT ` + linkColumns + ` FROM links WHERE id=$1`
	findLinkByURLQuery = `SELECT ` + linkColumns + ` FROM links WHERE url_key=$1`
	matchLinkQuery     = `SELECT ` + linkColumns + ` FROM links WHERE url_key LIKE $1 ORDER BY url_key LIMIT 1`
	linksQuery         = `SELECT ` + linkColumns + ` FROM links ORDER BY created_at, id`
	edgesQuery         = `SELECT id, src, dst, updated_at FROM edges ORDER BY created_at, id`
	updateRankQuery    = `UPDATE links SET score=$1 WHERE id=$2`
)

// CockroachDBGraph implements a graph that persists its links and edges to a
// cockroachdb (or any postgres-compatible) instance.
type CockroachDBGraph struct {
	db *sql.DB
}

// NewCockroachDBGraph returns a CockroachDBGraph instance that connects to the
// cockroachdb instance specified by dsn. The schema from schema.sql must have
// been applied beforehand.
func NewCockroachDBGraph(dsn string) (*CockroachDBGraph, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open cockroachdb graph: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("open cockroachdb graph: %w", err)
	}
	return &CockroachDBGraph{db: db}, nil
}

// Close terminates the connection to the backing cockroachdb instance.
func (c *CockroachDBGraph) Close() error {
	return c.db.Close()
}

// UpsertLink creates a new link or updates an existing link.
func (c *CockroachDBGraph) UpsertLink(link *graph.Link) error {
	row := c.db.QueryRow(upsertLinkQuery, link.URL, urlKey(link.URL), link.Title, link.Content, link.RetrievedAt.UTC())
	if err := row.Scan(&link.ID, &link.Rank, &link.RetrievedAt); err != nil {
		return xerrors.Errorf("upsert link: %w", err)
	}
	link.RetrievedAt = link.RetrievedAt.UTC()
	return nil
}

// UpsertEdge creates a new edge or updates an existing edge.
func (c *CockroachDBGraph) UpsertEdge(edge *graph.Edge) error {
	updatedAt := edge.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	row := c.db.QueryRow(upsertEdgeQuery, edge.Src, edge.Dst, updatedAt.UTC())
	if err := row.Scan(&edge.ID, &edge.UpdatedAt); err != nil {
		if isForeignKeyViolationError(err) {
			err = graph.ErrUnknownEdgeLinks
		}
		return xerrors.Errorf("upsert edge: %w", err)
	}
	edge.UpdatedAt = edge.UpdatedAt.UTC()
	return nil
}

// FindLink looks up a link by its ID.
func (c *CockroachDBGraph) FindLink(id uuid.UUID) (*graph.Link, error) {
	return c.findOne("find link", findLinkQuery, id)
}

// FindLinkByURL looks up a link by its URL ignoring case.
func (c *CockroachDBGraph) FindLinkByURL(url string) (*graph.Link, error) {
	return c.findOne("find link by url", findLinkByURLQuery, urlKey(url))
}

// MatchLink returns the link with the smallest URL that starts with prefix.
func (c *CockroachDBGraph) MatchLink(prefix string) (*graph.Link, error) {
	return c.findOne("match link", matchLinkQuery, escapeLike(urlKey(prefix))+"%")
}

// Links returns an iterator for all links in the graph.
func (c *CockroachDBGraph) Links() (graph.LinkIterator, error) {
	rows, err := c.db.Query(linksQuery)
	if err != nil {
		return nil, xerrors.Errorf("links: %w", err)
	}
	return &linkIterator{rows: rows}, nil
}

// Edges returns an iterator for all edges in the graph.
func (c *CockroachDBGraph) Edges() (graph.EdgeIterator, error) {
	rows, err := c.db.Query(edgesQuery)
	if err != nil {
		return nil, xerrors.Errorf("edges: %w", err)
	}
	return &edgeIterator{rows: rows}, nil
}

// UpdateRank stores the rank score for the specified link.
func (c *CockroachDBGraph) UpdateRank(id uuid.UUID, score float64) error {
	res, err := c.db.Exec(updateRankQuery, score, id)
	if err != nil {
		return xerrors.Errorf("update rank: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return xerrors.Errorf("update rank: %w", err)
	} else if n == 0 {
		return xerrors.Errorf("update rank: %w", graph.ErrNotFound)
	}
	return nil
}

func (c *CockroachDBGraph) findOne(op, query string, arg interface{}) (*graph.Link, error) {
	link, err := scanLink(c.db.QueryRow(query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("%s: %w", op, graph.ErrNotFound)
		}
		return nil, xerrors.Errorf("%s: %w", op, err)
	}
	return link, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row scanner) (*graph.Link, error) {
	link := new(graph.Link)
	if err := row.Scan(&link.ID, &link.URL, &link.Title, &link.Content, &link.Rank, &link.RetrievedAt); err != nil {
		return nil, err
	}
	link.RetrievedAt = link.RetrievedAt.UTC()
	return link, nil
}

func urlKey(url string) string {
	return strings.ToLower(url)
}

// LIKE uses backslash as its default escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// isForeignKeyViolationError returns true if err indicates a foreign key
// constraint violation.
func isForeignKeyViolationError(err error) bool {
	pqErr, valid := err.(*pq.Error)
	if !valid {
		return false
	}
	return pqErr.Code.Name() == "foreign_key_violation"
}
