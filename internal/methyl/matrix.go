package methyl

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/methclust/methclust/internal/reads"
)

// Thresholds configures the binarization of raw probabilities.
type Thresholds struct {
	High float64 // raw >= High → methylated (1)
	Low  float64 // raw <= Low  → unmethylated (0)
}

// Matrix is the finalized read × CpG matrix of a region. Raw holds
// probabilities with NaN marking missing cells; Binary holds -1 (missing),
// 0 (unmethylated), or 1 (methylated). Row order matches the order reads were
// added, column order is the sorted union of CpG positions.
type Matrix struct {
	Reads     []reads.ParsedRead
	Positions []int64
	Raw       *mat.Dense // nil when the matrix is empty
	Binary    [][]int8
}

// NumReads returns the row count.
func (m *Matrix) NumReads() int { return len(m.Reads) }

// NumCpGs returns the column count.
func (m *Matrix) NumCpGs() int { return len(m.Positions) }

// RawRow returns row i of the raw matrix, or nil when the matrix has no
// columns.
func (m *Matrix) RawRow(i int) []float64 {
	if m.Raw == nil {
		return nil
	}
	return m.Raw.RawRowView(i)
}

// ErrFinalized is returned when a read is added after Finalize.
var ErrFinalized = errors.New("methyl: cannot add reads after finalize")

// Builder accumulates per-read calls and produces the region matrix.
type Builder struct {
	thresholds Thresholds
	reads      []reads.ParsedRead
	calls      [][]Call
	finalized  bool
	matrix     *Matrix
}

// NewBuilder returns a Builder with the given binarization thresholds.
func NewBuilder(t Thresholds) *Builder {
	return &Builder{thresholds: t}
}

// AddRead appends a read and its calls, returning the assigned row index.
func (b *Builder) AddRead(pr reads.ParsedRead, calls []Call) (int, error) {
	if b.finalized {
		return 0, ErrFinalized
	}
	id := len(b.reads)
	b.reads = append(b.reads, pr)
	b.calls = append(b.calls, calls)
	return id, nil
}

// NumReads returns the number of reads added so far.
func (b *Builder) NumReads() int { return len(b.reads) }

// Finalize assembles the matrix. It is idempotent; repeated calls return the
// same matrix.
func (b *Builder) Finalize() *Matrix {
	if b.finalized {
		return b.matrix
	}
	b.finalized = true

	positions := b.collectPositions()
	colOf := make(map[int64]int, len(positions))
	for i, p := range positions {
		colOf[p] = i
	}

	n, p := len(b.reads), len(positions)
	m := &Matrix{
		Reads:     b.reads,
		Positions: positions,
		Binary:    make([][]int8, n),
	}

	if n > 0 && p > 0 {
		raw := make([]float64, n*p)
		for i := range raw {
			raw[i] = math.NaN()
		}
		m.Raw = mat.NewDense(n, p, raw)

		for r, calls := range b.calls {
			for _, c := range calls {
				m.Raw.Set(r, colOf[c.Pos], c.Prob)
			}
		}
	}

	for r := 0; r < n; r++ {
		row := make([]int8, p)
		for c := 0; c < p; c++ {
			row[c] = b.binarize(m.Raw.At(r, c))
		}
		m.Binary[r] = row
	}

	b.calls = nil
	b.matrix = m
	return m
}

func (b *Builder) binarize(v float64) int8 {
	switch {
	case math.IsNaN(v):
		return -1
	case v >= b.thresholds.High:
		return 1
	case v <= b.thresholds.Low:
		return 0
	}
	return -1
}

func (b *Builder) collectPositions() []int64 {
	seen := make(map[int64]struct{})
	for _, calls := range b.calls {
		for _, c := range calls {
			seen[c.Pos] = struct{}{}
		}
	}
	positions := make([]int64, 0, len(seen))
	for p := range seen {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return positions
}
