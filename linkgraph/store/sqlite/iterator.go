package sqlite

import (
	"Blogroll/linkgraph/graph"
	"database/sql"
	"golang.org/x/xerrors"
)

// linkIterator is a graph.LinkIterator implementation for the sqlite graph.
type linkIterator struct {
	rows        *sql.Rows
	lastErr     error
	latchedLink *graph.Link
}

func (i *linkIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		return false
	}

	i.latchedLink, i.lastErr = scanLink(i.rows)
	return i.lastErr == nil
}

func (i *linkIterator) Error() error {
	if i.lastErr != nil {
		return i.lastErr
	}
	return i.rows.Err()
}

func (i *linkIterator) Close() error {
	if err := i.rows.Close(); err != nil {
		return xerrors.Errorf("link iterator: %w", err)
	}
	return nil
}

func (i *linkIterator) Link() *graph.Link {
	return i.latchedLink
}

// edgeIterator is a graph.EdgeIterator implementation for the sqlite graph.
type edgeIterator struct {
	rows        *sql.Rows
	lastErr     error
	latchedEdge *graph.Edge
}

func (i *edgeIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		return false
	}

	var (
		e         = new(graph.Edge)
		updatedAt int64
	)
	if i.lastErr = i.rows.Scan(&e.ID, &e.Src, &e.Dst, &updatedAt); i.lastErr != nil {
		return false
	}
	e.UpdatedAt = fromNanos(updatedAt)
	i.latchedEdge = e
	return true
}

func (i *edgeIterator) Error() error {
	if i.lastErr != nil {
		return i.lastErr
	}
	return i.rows.Err()
}

func (i *edgeIterator) Close() error {
	if err := i.rows.Close(); err != nil {
		return xerrors.Errorf("edge iterator: %w", err)
	}
	return nil
}

func (i *edgeIterator) Edge() *graph.Edge {
	return i.latchedEdge
}
