package distance

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/methclust/methclust/internal/methyl"
	"github.com/methclust/methclust/internal/reads"
)

// Config holds the parameters of a distance computation.
type Config struct {
	Metric               Metric
	MinCommonCoverage    int
	Strategy             NaNStrategy
	MaxDistanceValue     float64
	JaccardIncludeUnmeth bool

	// Workers bounds the goroutines used for the pair loop. Zero means one
	// per CPU; the region processor passes 1 when the outer pool already
	// saturates the machine.
	Workers int
}

// Matrix is a symmetric pairwise distance matrix with its computation
// statistics. Cells of invalid pairs hold the max distance or NaN depending
// on the strategy.
type Matrix struct {
	Metric            Metric
	Strategy          NaNStrategy
	MinCommonCoverage int

	ReadIDs []int
	D       *mat.SymDense // nil when fewer than one read

	ValidPairs         int
	InvalidPairs       int
	MeanCommonCoverage float64
}

// Size returns the matrix dimension.
func (m *Matrix) Size() int { return len(m.ReadIDs) }

// At returns the distance between rows i and j.
func (m *Matrix) At(i, j int) float64 { return m.D.At(i, j) }

// Compute builds the full pairwise matrix over every row of the methylation
// matrix.
func Compute(mm *methyl.Matrix, cfg Config) *Matrix {
	indices := make([]int, mm.NumReads())
	for i := range indices {
		indices[i] = i
	}
	return ComputeSubset(mm, indices, cfg)
}

// ComputeSubset builds the pairwise matrix over the given row indices. The
// upper-triangle pair loop runs on a dynamic schedule: workers claim rows
// from a shared atomic counter so long rows do not serialize the tail.
func ComputeSubset(mm *methyl.Matrix, rowIndices []int, cfg Config) *Matrix {
	n := len(rowIndices)
	out := &Matrix{
		Metric:            cfg.Metric,
		Strategy:          cfg.Strategy,
		MinCommonCoverage: cfg.MinCommonCoverage,
		ReadIDs:           make([]int, n),
	}
	for i, ri := range rowIndices {
		out.ReadIDs[i] = mm.Reads[ri].ReadID
	}
	if n == 0 {
		return out
	}

	out.D = mat.NewSymDense(n, nil)

	sentinel := cfg.MaxDistanceValue
	if cfg.Strategy == Skip {
		sentinel = math.NaN()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	var (
		nextRow       atomic.Int64
		validPairs    atomic.Int64
		invalidPairs  atomic.Int64
		coverageTotal atomic.Int64
		wg            sync.WaitGroup
	)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(nextRow.Add(1)) - 1
				if i >= n {
					return
				}
				for j := i + 1; j < n; j++ {
					d, common := kernel(mm, rowIndices[i], rowIndices[j], &cfg)
					if d < 0 {
						d = sentinel
						invalidPairs.Add(1)
					} else {
						validPairs.Add(1)
						coverageTotal.Add(int64(common))
					}
					// Pairs are disjoint, so the unsynchronized write is safe.
					out.D.SetSym(i, j, d)
				}
			}
		}()
	}
	wg.Wait()

	out.ValidPairs = int(validPairs.Load())
	out.InvalidPairs = int(invalidPairs.Load())
	if out.ValidPairs > 0 {
		out.MeanCommonCoverage = float64(coverageTotal.Load()) / float64(out.ValidPairs)
	}
	return out
}

// ComputeStrandSpecific partitions rows by strand and computes independent
// forward and reverse matrices. Unknown-strand rows are excluded from both;
// a strand with fewer than two rows yields an empty matrix.
func ComputeStrandSpecific(mm *methyl.Matrix, cfg Config) (forward, reverse *Matrix) {
	var fwd, rev []int
	for i, r := range mm.Reads {
		switch r.Strand {
		case reads.StrandForward:
			fwd = append(fwd, i)
		case reads.StrandReverse:
			rev = append(rev, i)
		}
	}
	if len(fwd) < 2 {
		fwd = nil
	}
	if len(rev) < 2 {
		rev = nil
	}
	return ComputeSubset(mm, fwd, cfg), ComputeSubset(mm, rev, cfg)
}

// Stats summarizes the valid pair distances of a matrix.
type Stats struct {
	Min, Max, Mean, Std float64
	P25, Median, P75    float64
	Count               int
}

// SummaryStats collects the upper-triangle distances excluding NaN cells and
// returns their summary, or ok=false when no valid distance exists.
func (m *Matrix) SummaryStats() (Stats, bool) {
	n := m.Size()
	var ds []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := m.D.At(i, j); !math.IsNaN(d) {
				ds = append(ds, d)
			}
		}
	}
	if len(ds) == 0 {
		return Stats{}, false
	}
	sort.Float64s(ds)
	mean, std := stat.MeanStdDev(ds, nil)
	if len(ds) == 1 {
		std = 0
	}
	return Stats{
		Min:    ds[0],
		Max:    ds[len(ds)-1],
		Mean:   mean,
		Std:    std,
		P25:    stat.Quantile(0.25, stat.Empirical, ds, nil),
		Median: stat.Quantile(0.5, stat.Empirical, ds, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, ds, nil),
		Count:  len(ds),
	}, true
}
