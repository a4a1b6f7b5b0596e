package pagerank

import "golang.org/x/xerrors"

var (
	// ErrRankDidNotConverge is returned by Calculator.Rank when the power
	// iteration does not reach a fixed point within the configured number
	// of iterations.
	ErrRankDidNotConverge = xerrors.New("rank computation did not converge")

	// ErrInvalidGraphState is returned when an edge references a node
	// position outside the range addressed by the graph.
	ErrInvalidGraphState = xerrors.New("invalid graph state")
)
