package pagerank

// TransitionMatrix is the damped, column-stochastic transition matrix of a
// Graph. Column j holds the outbound distribution of node j: damping/|out(j)|
// at each destination row (or damping/N on every row if j has no out-edges)
// plus (1-damping)/N on every row.
//
// The matrix is stored sparsely as the per-row list of weighted in-links
// (the transposed view used by the power iteration) and a per-column
// constant that applies to every row.
type TransitionMatrix struct {
	n       int
	damping float64

	inLinks [][]inLink
	colBase []float64
}

type inLink struct {
	col    int
	weight float64
}

// normalize builds the transition matrix for the adjacency list out.
func normalize(out [][]int, damping float64) *TransitionMatrix {
	n := len(out)
	m := &TransitionMatrix{
		n:       n,
		damping: damping,
		inLinks: make([][]inLink, n),
		colBase: make([]float64, n),
	}

	jump := (1.0 - damping) / float64(n)
	for col, dsts := range out {
		if len(dsts) == 0 {
			// Dangling node: jump anywhere instead of leaking rank.
			m.colBase[col] = damping/float64(n) + jump
			continue
		}

		m.colBase[col] = jump
		weight := damping / float64(len(dsts))
		for _, row := range dsts {
			m.inLinks[row] = append(m.inLinks[row], inLink{col: col, weight: weight})
		}
	}
	return m
}

// Dim returns the number of rows (and columns) of the matrix.
func (m *TransitionMatrix) Dim() int { return m.n }

// Damping returns the damping factor the matrix was built with.
func (m *TransitionMatrix) Damping() float64 { return m.damping }

// At returns the probability mass flowing into row from col.
func (m *TransitionMatrix) At(row, col int) float64 {
	v := m.colBase[col]
	for _, in := range m.inLinks[row] {
		if in.col == col {
			v += in.weight
		}
	}
	return v
}

// ColumnSum returns the sum of all entries in col.
func (m *TransitionMatrix) ColumnSum(col int) float64 {
	var sum float64
	for row := 0; row < m.n; row++ {
		sum += m.At(row, col)
	}
	return sum
}

// jumpMass returns the contribution of the per-column constants to every
// row of M·v.
func (m *TransitionMatrix) jumpMass(v []float64) float64 {
	var sum float64
	for col, base := range m.colBase {
		sum += base * v[col]
	}
	return sum
}

// mulRows writes rows [from, to) of M·v into dst. Each row is accumulated
// in a fixed order so the result does not depend on how rows are split
// between workers.
func (m *TransitionMatrix) mulRows(dst, v []float64, jump float64, from, to int) {
	for row := from; row < to; row++ {
		sum := jump
		for _, in := range m.inLinks[row] {
			sum += in.weight * v[in.col]
		}
		dst[row] = sum
	}
}
