package sqlite

import (
	"Blogroll/linkgraph/graph"
	"database/sql"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	"strings"
	"time"

	// Pure-go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Compile-time check for ensuring SQLiteGraph implements Graph.
var _ graph.Graph = (*SQLiteGraph)(nil)

var (
	schemaQueries = []string{
		`CREATE TABLE IF NOT EXISTS links (
	id TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	url_key TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	score REAL NOT NULL DEFAULT 0,
	retrieved_at INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS edges (
	id TEXT NOT NULL UNIQUE,
	src TEXT NOT NULL REFERENCES links(id),
	dst TEXT NOT NULL REFERENCES links(id),
	updated_at INTEGER NOT NULL,
	UNIQUE (src, dst)
)`,
	}

	upsertLinkQuery = `INSERT INTO links (id, url, url_key, title, content, retrieved_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (url_key) DO UPDATE SET url=excluded.url, title=excluded.title, content=excluded.content,
retrieved_at=MAX(links.retrieved_at, excluded.retrieved_at)
RETURNING id, score, retrieved_at`

	countLinksQuery = `SELECT COUNT(*) FROM links WHERE id IN (?, ?)`

	upsertEdgeQuery = `INSERT INTO edges (id, src, dst, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (src, dst) DO UPDATE SET updated_at=MAX(edges.updated_at, excluded.updated_at)
RETURNING id, updated_at`

	linkColumns = `id, url, title, content, score, retrieved_at`

	findLinkQuery      = `SELECT ` + linkColumns + ` FROM links WHERE id=?`
	findLinkByURLQuery = `SELECT ` + linkColumns + ` FROM links WHERE url_key=?`
	matchLinkQuery     = `SELECT ` + linkColumns + ` FROM links WHERE url_key LIKE ? ESCAPE '\' ORDER BY url_key LIMIT 1`
	linksQuery         = `SELECT ` + linkColumns + ` FROM links ORDER BY rowid`
	edgesQuery         = `SELECT id, src, dst, updated_at FROM edges ORDER BY rowid`
	updateRankQuery    = `UPDATE links SET score=? WHERE id=?`
)

// SQLiteGraph implements a graph that persists its links and edges to a
// local SQLite database.
type SQLiteGraph struct {
	db *sql.DB
}

// NewSQLiteGraph opens (or creates) the SQLite database at path and makes
// sure that the link graph schema exists.
func NewSQLiteGraph(path string) (*SQLiteGraph, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open sqlite graph: %w", err)
	}
	for _, q := range schemaQueries {
		if _, err = db.Exec(q); err != nil {
			_ = db.Close()
			return nil, xerrors.Errorf("create sqlite schema: %w", err)
		}
	}
	return &SQLiteGraph{db: db}, nil
}

// Close terminates the connection to the backing database.
func (s *SQLiteGraph) Close() error {
	return s.db.Close()
}

// UpsertLink creates a new link or updates an existing link.
func (s *SQLiteGraph) UpsertLink(link *graph.Link) error {
	var retrievedAt int64
	row := s.db.QueryRow(upsertLinkQuery,
		uuid.New(), link.URL, urlKey(link.URL), link.Title, link.Content, toNanos(link.RetrievedAt),
	)
	if err := row.Scan(&link.ID, &link.Rank, &retrievedAt); err != nil {
		return xerrors.Errorf("upsert link: %w", err)
	}
	link.RetrievedAt = fromNanos(retrievedAt)
	return nil
}

// UpsertEdge creates a new edge or updates an existing edge.
func (s *SQLiteGraph) UpsertEdge(edge *graph.Edge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return xerrors.Errorf("upsert edge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var found int
	if err = tx.QueryRow(countLinksQuery, edge.Src, edge.Dst).Scan(&found); err != nil {
		return xerrors.Errorf("upsert edge: %w", err)
	}
	expected := 2
	if edge.Src == edge.Dst {
		expected = 1
	}
	if found != expected {
		return xerrors.Errorf("upsert edge: %w", graph.ErrUnknownEdgeLinks)
	}

	updatedAt := toNanos(edge.UpdatedAt)
	if edge.UpdatedAt.IsZero() {
		updatedAt = toNanos(time.Now())
	}
	row := tx.QueryRow(upsertEdgeQuery, uuid.New(), edge.Src, edge.Dst, updatedAt)
	if err = row.Scan(&edge.ID, &updatedAt); err != nil {
		return xerrors.Errorf("upsert edge: %w", err)
	}
	edge.UpdatedAt = fromNanos(updatedAt)

	if err = tx.Commit(); err != nil {
		return xerrors.Errorf("upsert edge: %w", err)
	}
	return nil
}

// FindLink looks up a link by its ID.
func (s *SQLiteGraph) FindLink(id uuid.UUID) (*graph.Link, error) {
	return s.findOne("find link", findLinkQuery, id)
}

// FindLinkByURL looks up a link by its URL ignoring case.
func (s *SQLiteGraph) FindLinkByURL(url string) (*graph.Link, error) {
	return s.findOne("find link by url", findLinkByURLQuery, urlKey(url))
}

// MatchLink returns the link with the smallest URL that starts with prefix.
func (s *SQLiteGraph) MatchLink(prefix string) (*graph.Link, error) {
	return s.findOne("match link", matchLinkQuery, escapeLike(urlKey(prefix))+"%")
}

// Links returns an iterator for all links in the graph.
func (s *SQLiteGraph) Links() (graph.LinkIterator, error) {
	rows, err := s.db.Query(linksQuery)
	if err != nil {
		return nil, xerrors.Errorf("links: %w", err)
	}
	return &linkIterator{rows: rows}, nil
}

// Edges returns an iterator for all edges in the graph.
func (s *SQLiteGraph) Edges() (graph.EdgeIterator, error) {
	rows, err := s.db.Query(edgesQuery)
	if err != nil {
		return nil, xerrors.Errorf("edges: %w", err)
	}
	return &edgeIterator{rows: rows}, nil
}

// UpdateRank stores the rank score for the specified link.
func (s *SQLiteGraph) UpdateRank(id uuid.UUID, score float64) error {
	res, err := s.db.Exec(updateRankQuery, score, id)
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

func (s *SQLiteGraph) findOne(op, query string, arg interface{}) (*graph.Link, error) {
	link, err := scanLink(s.db.QueryRow(query, arg))
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
	var (
		link        = new(graph.Link)
		retrievedAt int64
	)
	if err := row.Scan(&link.ID, &link.URL, &link.Title, &link.Content, &link.Rank, &retrievedAt); err != nil {
		return nil, err
	}
	link.RetrievedAt = fromNanos(retrievedAt)
	return link, nil
}

func urlKey(url string) string {
	return strings.ToLower(url)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Timestamps are stored as UTC unix nanoseconds; the zero time maps to 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
