package distance

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/methclust/methclust/internal/methyl"
	"github.com/methclust/methclust/internal/reads"
)

// buildMatrix assembles a methylation matrix from raw rows; NaN marks missing
// cells. Column k corresponds to position k+1. With the 0.8/0.2 thresholds a
// raw value of 1.0 binarizes to methylated and 0.0 to unmethylated.
func buildMatrix(t *testing.T, rows [][]float64, strands []reads.Strand) *methyl.Matrix {
	t.Helper()
	b := methyl.NewBuilder(methyl.Thresholds{High: 0.8, Low: 0.2})
	for i, row := range rows {
		var calls []methyl.Call
		for j, v := range row {
			if !math.IsNaN(v) {
				calls = append(calls, methyl.Call{Pos: int64(j + 1), Prob: v})
			}
		}
		pr := reads.ParsedRead{ReadID: i, Name: fmt.Sprintf("read%d", i)}
		if strands != nil {
			pr.Strand = strands[i]
		}
		_, err := b.AddRead(pr, calls)
		require.NoError(t, err)
	}
	return b.Finalize()
}

var nan = math.NaN()

// scenarioRows is the shared 4×5 matrix: binary rows
// [1,1,0,0,-], [1,0,0,-,-], [0,0,1,1,1], [-,-,1,1,1].
func scenarioRows() [][]float64 {
	return [][]float64{
		{1, 1, 0, 0, nan},
		{1, 0, 0, nan, nan},
		{0, 0, 1, 1, 1},
		{nan, nan, 1, 1, 1},
	}
}

func nhdConfig(minCov int) Config {
	return Config{Metric: NHD, MinCommonCoverage: minCov, Strategy: MaxDist, MaxDistanceValue: 1.0, Workers: 1}
}

func TestNHD_Scenario(t *testing.T) {
	m := buildMatrix(t, scenarioRows(), nil)
	d := Compute(m, nhdConfig(2))

	assert.InDelta(t, 1.0/3.0, d.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0, d.At(0, 2), 1e-12)
	assert.InDelta(t, 0.0, d.At(2, 3), 1e-12)

	// Symmetric with a zero diagonal.
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, d.At(i, i))
		for j := 0; j < 4; j++ {
			assert.Equal(t, d.At(i, j), d.At(j, i))
		}
	}
}

func TestNHD_MinCommonCoverageGating(t *testing.T) {
	m := buildMatrix(t, scenarioRows(), nil)
	d := Compute(m, nhdConfig(4))

	// Rows 0 and 1 share only 3 sites, one short of C_min.
	assert.Equal(t, 1.0, d.At(0, 1))
	assert.Equal(t, 1.0, d.At(0, 2), "4 common sites stay valid")
	assert.Greater(t, d.InvalidPairs, 0)
}

func TestCoverageBoundary(t *testing.T) {
	rows := [][]float64{
		{1, 0, 1, nan},
		{1, 0, 0, nan},
	}
	m := buildMatrix(t, rows, nil)

	dist, common := nhd(m.Binary[0], m.Binary[1], 3)
	assert.Equal(t, 3, common)
	assert.InDelta(t, 1.0/3.0, dist, 1e-12, "common == C_min is valid")

	dist, _ = nhd(m.Binary[0], m.Binary[1], 4)
	assert.Equal(t, invalid, dist, "common == C_min-1 is invalid")
}

func TestL1L2(t *testing.T) {
	rows := [][]float64{
		{0.0, 1.0, 0.5, nan},
		{1.0, 1.0, 0.0, 0.3},
	}
	m := buildMatrix(t, rows, nil)

	d, common := l1(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 3, common)
	assert.InDelta(t, (1.0+0.0+0.5)/3.0, d, 1e-12)

	d, _ = l2(m.RawRow(0), m.RawRow(1), 1)
	assert.InDelta(t, math.Sqrt((1.0+0.0+0.25)/3.0), d, 1e-12)
}

func TestIdenticalRowsAreZero(t *testing.T) {
	rows := [][]float64{
		{0.9, 0.1, 0.9, 0.1},
		{0.9, 0.1, 0.9, 0.1},
	}
	m := buildMatrix(t, rows, nil)

	for _, metric := range []Metric{NHD, L1, L2, Jaccard} {
		cfg := Config{Metric: metric, MinCommonCoverage: 2, Strategy: MaxDist, MaxDistanceValue: 1.0, Workers: 1}
		d := Compute(m, cfg)
		assert.InDelta(t, 0.0, d.At(0, 1), 1e-12, "metric %s", metric)
	}
}

func TestCorrelation(t *testing.T) {
	perfect := [][]float64{
		{0.1, 0.5, 0.9},
		{0.2, 0.6, 1.0},
	}
	m := buildMatrix(t, perfect, nil)
	d, common := correlation(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 3, common)
	assert.InDelta(t, 0.0, d, 1e-9, "perfectly correlated rows")

	anti := [][]float64{
		{0.1, 0.5, 0.9},
		{0.9, 0.5, 0.1},
	}
	m = buildMatrix(t, anti, nil)
	d, _ = correlation(m.RawRow(0), m.RawRow(1), 1)
	assert.InDelta(t, 1.0, d, 1e-9, "anti-correlated rows")
}

func TestCorrelation_ZeroVariance(t *testing.T) {
	rows := [][]float64{
		{0.5, 0.5, 0.5, 0.5},
		{0.1, 0.9, 0.3, 0.7},
	}
	m := buildMatrix(t, rows, nil)

	d, _ := correlation(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 1.0, d, "constant row yields the maximum distance")
}

func TestCorrelation_NeedsThreeCommonSites(t *testing.T) {
	rows := [][]float64{
		{0.1, 0.9, nan, nan},
		{0.2, 0.8, nan, nan},
	}
	m := buildMatrix(t, rows, nil)

	d, common := correlation(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 2, common)
	assert.Equal(t, invalid, d)
}

func TestJaccard(t *testing.T) {
	rows := [][]float64{
		{1, 1, 0, 0},
		{1, 0, 1, 0},
	}
	m := buildMatrix(t, rows, nil)

	// Methylated sets: A={0,1}, B={0,2}; |A∩B|=1, |A∪B|=3.
	d, common := jaccard(m.Binary[0], m.Binary[1], 1, false)
	assert.Equal(t, 4, common)
	assert.InDelta(t, 1.0-1.0/3.0, d, 1e-12)

	// Including unmethylated sites compares agreement over all valid columns.
	d, _ = jaccard(m.Binary[0], m.Binary[1], 1, true)
	assert.InDelta(t, 1.0-2.0/4.0, d, 1e-12)
}

func TestJaccard_EmptyUnion(t *testing.T) {
	rows := [][]float64{
		{0, 0, 0},
		{0, 0, 0},
	}
	m := buildMatrix(t, rows, nil)

	d, _ := jaccard(m.Binary[0], m.Binary[1], 1, false)
	assert.Equal(t, 0.0, d, "no methylated sites anywhere → identical")
}

func TestBernoulli(t *testing.T) {
	// Confident disagreement at every site.
	rows := [][]float64{
		{1.0, 0.0},
		{0.0, 1.0},
	}
	m := buildMatrix(t, rows, nil)
	d, common := bernoulli(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 2, common)
	assert.InDelta(t, 1.0, d, 1e-12)

	// Confident agreement.
	rows = [][]float64{
		{1.0, 0.0},
		{1.0, 0.0},
	}
	m = buildMatrix(t, rows, nil)
	d, _ = bernoulli(m.RawRow(0), m.RawRow(1), 1)
	assert.InDelta(t, 0.0, d, 1e-12)
}

func TestBernoulli_UninformativeSitesInvalid(t *testing.T) {
	rows := [][]float64{
		{0.5, 0.5, 0.5},
		{0.5, 0.5, 0.5},
	}
	m := buildMatrix(t, rows, nil)

	d, common := bernoulli(m.RawRow(0), m.RawRow(1), 1)
	assert.Equal(t, 3, common)
	assert.Equal(t, invalid, d, "zero total weight is treated as no information")
}

func TestMetricBounds(t *testing.T) {
	rows := [][]float64{
		{0.95, 0.03, 0.88, 0.12, 0.99},
		{0.02, 0.97, 0.15, 0.85, 0.01},
		{0.91, 0.08, 0.93, 0.07, 0.96},
	}
	m := buildMatrix(t, rows, nil)

	for _, metric := range []Metric{NHD, L1, L2, Correlation, Jaccard, Bernoulli} {
		cfg := Config{Metric: metric, MinCommonCoverage: 2, Strategy: MaxDist, MaxDistanceValue: 1.0, Workers: 1}
		d := Compute(m, cfg)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v := d.At(i, j)
				assert.GreaterOrEqual(t, v, 0.0, "metric %s (%d,%d)", metric, i, j)
				assert.LessOrEqual(t, v, 1.0, "metric %s (%d,%d)", metric, i, j)
			}
		}
	}
}

func TestParseMetrics(t *testing.T) {
	ms, err := ParseMetrics("nhd, L1,CORR")
	require.NoError(t, err)
	assert.Equal(t, []Metric{NHD, L1, Correlation}, ms)

	_, err = ParseMetrics("bogus")
	require.Error(t, err)

	ms, err = ParseMetrics("")
	require.NoError(t, err)
	assert.Equal(t, []Metric{NHD}, ms, "empty list defaults to NHD")
}

func TestParseNaNStrategy(t *testing.T) {
	s, err := ParseNaNStrategy("max_dist")
	require.NoError(t, err)
	assert.Equal(t, MaxDist, s)

	s, err = ParseNaNStrategy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, Skip, s)

	_, err = ParseNaNStrategy("whatever")
	require.Error(t, err)
}
