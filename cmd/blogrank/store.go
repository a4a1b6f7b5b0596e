package main

import (
	"Blogroll/config"
	"Blogroll/linkgraph/graph"
	"Blogroll/linkgraph/store/cockroachdb"
	"Blogroll/linkgraph/store/memory"
	"Blogroll/linkgraph/store/sqlite"
	"golang.org/x/xerrors"
)

// openGraph returns the link graph store selected by cfg and a function
// releasing its resources.
func openGraph(cfg config.Storage) (graph.Graph, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewInMemoryGraph(), func() error { return nil }, nil
	case config.DriverSQLite:
		g, err := sqlite.NewSQLiteGraph(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.DriverCockroachDB:
		g, err := cockroachdb.NewCockroachDBGraph(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, xerrors.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
