// Package distance computes pairwise read distances over the methylation
// matrix under a minimum-common-coverage policy.
package distance

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/methclust/methclust/internal/methyl"
)

// Metric selects the pairwise distance kernel.
type Metric int

const (
	NHD Metric = iota
	L1
	L2
	Correlation
	Jaccard
	Bernoulli
)

func (m Metric) String() string {
	switch m {
	case NHD:
		return "NHD"
	case L1:
		return "L1"
	case L2:
		return "L2"
	case Correlation:
		return "CORR"
	case Jaccard:
		return "JACCARD"
	case Bernoulli:
		return "BERNOULLI"
	}
	return "UNKNOWN"
}

// ParseMetric accepts the metric names and their common aliases.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NHD", "HAMMING":
		return NHD, nil
	case "L1", "MANHATTAN":
		return L1, nil
	case "L2", "EUCLIDEAN":
		return L2, nil
	case "CORR", "CORRELATION", "PEARSON":
		return Correlation, nil
	case "JACCARD":
		return Jaccard, nil
	case "BERNOULLI":
		return Bernoulli, nil
	}
	return NHD, fmt.Errorf("unknown distance metric %q", s)
}

// ParseMetrics parses a comma-separated metric list.
func ParseMetrics(s string) ([]Metric, error) {
	var metrics []Metric
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseMetric(part)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if len(metrics) == 0 {
		metrics = []Metric{NHD}
	}
	return metrics, nil
}

// NaNStrategy controls what an invalid pair contributes to the matrix.
type NaNStrategy int

const (
	MaxDist NaNStrategy = iota // substitute the configured max distance
	Skip                       // leave a NaN cell
)

func (s NaNStrategy) String() string {
	if s == Skip {
		return "SKIP"
	}
	return "MAX_DIST"
}

// ParseNaNStrategy accepts "max_dist" and "skip".
func ParseNaNStrategy(s string) (NaNStrategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MAX_DIST", "MAXDIST", "MAX":
		return MaxDist, nil
	case "SKIP", "NAN":
		return Skip, nil
	}
	return MaxDist, fmt.Errorf("unknown NaN strategy %q", s)
}

// invalid is the kernel-level sentinel for pairs below the coverage floor.
const invalid = -1.0

const weightEpsilon = 1e-9

// kernel computes the distance between rows i and j of the matrix and the
// number of positions where both rows carry valid data. A negative distance
// marks the pair invalid.
func kernel(m *methyl.Matrix, i, j int, cfg *Config) (float64, int) {
	switch cfg.Metric {
	case NHD:
		return nhd(m.Binary[i], m.Binary[j], cfg.MinCommonCoverage)
	case L1:
		return l1(m.RawRow(i), m.RawRow(j), cfg.MinCommonCoverage)
	case L2:
		return l2(m.RawRow(i), m.RawRow(j), cfg.MinCommonCoverage)
	case Correlation:
		return correlation(m.RawRow(i), m.RawRow(j), cfg.MinCommonCoverage)
	case Jaccard:
		return jaccard(m.Binary[i], m.Binary[j], cfg.MinCommonCoverage, cfg.JaccardIncludeUnmeth)
	case Bernoulli:
		return bernoulli(m.RawRow(i), m.RawRow(j), cfg.MinCommonCoverage)
	}
	return invalid, 0
}

// nhd is the normalized Hamming distance over the common valid sites.
func nhd(bi, bj []int8, minCov int) (float64, int) {
	common, diff := 0, 0
	for k := range bi {
		if bi[k] != -1 && bj[k] != -1 {
			common++
			if bi[k] != bj[k] {
				diff++
			}
		}
	}
	if common < minCov {
		return invalid, common
	}
	return float64(diff) / float64(common), common
}

func l1(pi, pj []float64, minCov int) (float64, int) {
	common := 0
	sum := 0.0
	for k := range pi {
		if !math.IsNaN(pi[k]) && !math.IsNaN(pj[k]) {
			common++
			sum += math.Abs(pi[k] - pj[k])
		}
	}
	if common < minCov {
		return invalid, common
	}
	return sum / float64(common), common
}

func l2(pi, pj []float64, minCov int) (float64, int) {
	common := 0
	sum := 0.0
	for k := range pi {
		if !math.IsNaN(pi[k]) && !math.IsNaN(pj[k]) {
			common++
			d := pi[k] - pj[k]
			sum += d * d
		}
	}
	if common < minCov {
		return invalid, common
	}
	return math.Sqrt(sum / float64(common)), common
}

// correlation is the normalized Pearson distance (1-r)/2. It needs at least
// three common sites for a meaningful correlation; zero-variance rows yield
// the maximum distance.
func correlation(pi, pj []float64, minCov int) (float64, int) {
	var xs, ys []float64
	for k := range pi {
		if !math.IsNaN(pi[k]) && !math.IsNaN(pj[k]) {
			xs = append(xs, pi[k])
			ys = append(ys, pj[k])
		}
	}
	common := len(xs)
	if common < minCov || common < 3 {
		return invalid, common
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		// One or both rows constant over the common sites.
		return 1.0, common
	}
	r = math.Max(-1, math.Min(1, r))
	return (1.0 - r) / 2.0, common
}

func jaccard(bi, bj []int8, minCov int, includeUnmeth bool) (float64, int) {
	common, intersection, union := 0, 0, 0
	for k := range bi {
		if bi[k] == -1 || bj[k] == -1 {
			continue
		}
		common++
		if includeUnmeth {
			union++
			if bi[k] == bj[k] {
				intersection++
			}
			continue
		}
		inI, inJ := bi[k] == 1, bj[k] == 1
		if inI || inJ {
			union++
			if inI && inJ {
				intersection++
			}
		}
	}
	if common < minCov {
		return invalid, common
	}
	if union == 0 {
		// Neither read methylated anywhere in common: identical.
		return 0.0, common
	}
	return 1.0 - float64(intersection)/float64(union), common
}

// bernoulli is the confidence-weighted expected disagreement: sites near
// p=0.5 contribute almost nothing, confident sites dominate.
func bernoulli(pi, pj []float64, minCov int) (float64, int) {
	common := 0
	sumWeighted, sumWeights := 0.0, 0.0
	for k := range pi {
		if math.IsNaN(pi[k]) || math.IsNaN(pj[k]) {
			continue
		}
		common++
		w := 4 * math.Abs(pi[k]-0.5) * math.Abs(pj[k]-0.5)
		delta := pi[k]*(1-pj[k]) + (1-pi[k])*pj[k]
		sumWeighted += w * delta
		sumWeights += w
	}
	if common < minCov {
		return invalid, common
	}
	if sumWeights < weightEpsilon {
		// Every overlapping site is uninformative.
		return invalid, common
	}
	return sumWeighted / sumWeights, common
}
