package cluster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Linkage selects the cluster-distance rule.
type Linkage int

const (
	UPGMA Linkage = iota
	Ward
	Single
	Complete
)

func (l Linkage) String() string {
	switch l {
	case UPGMA:
		return "UPGMA"
	case Ward:
		return "WARD"
	case Single:
		return "SINGLE"
	case Complete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

// ParseLinkage accepts the linkage names and their common aliases.
func ParseLinkage(s string) (Linkage, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UPGMA", "AVERAGE":
		return UPGMA, nil
	case "WARD", "WARD.D", "WARD.D2":
		return Ward, nil
	case "SINGLE", "MIN":
		return Single, nil
	case "COMPLETE", "MAX":
		return Complete, nil
	}
	return UPGMA, fmt.Errorf("unknown linkage method %q", s)
}

// Config controls tree construction.
type Config struct {
	Linkage Linkage

	// MinBranchLength is the epsilon used to keep heights strictly
	// monotonic when a merge height would fall below a child's height.
	MinBranchLength float64
}

// DefaultMinBranchLength keeps clamped branches visible in tree renderings
// without distorting real heights.
const DefaultMinBranchLength = 1e-9

// Build runs the O(N³) agglomerative loop over the distance matrix and
// returns the tree plus the ordered merge records. Ties are broken by the
// lowest (i, j) pair so output is deterministic. N=0 yields an empty tree,
// N=1 a lone leaf.
func Build(d mat.Symmetric, labels []string, cfg Config) *Tree {
	n := d.SymmetricDim()
	if n != len(labels) {
		panic("cluster: label count does not match matrix dimension")
	}
	if cfg.MinBranchLength <= 0 {
		cfg.MinBranchLength = DefaultMinBranchLength
	}

	if n == 0 {
		return &Tree{}
	}
	if n == 1 {
		return &Tree{Root: &Node{ID: 0, Label: labels[0], LeafIndices: []int{0}}}
	}

	nodes := make([]*Node, 0, 2*n-1)
	active := make([]bool, 0, 2*n-1)
	for i := 0; i < n; i++ {
		nodes = append(nodes, &Node{ID: i, Label: labels[i], LeafIndices: []int{i}})
		active = append(active, true)
	}

	var merges []MergeRecord
	activeCount := n

	for activeCount > 1 {
		minDist := math.Inf(1)
		minI, minJ := -1, -1
		for i := range nodes {
			if !active[i] {
				continue
			}
			for j := i + 1; j < len(nodes); j++ {
				if !active[j] {
					continue
				}
				dist := clusterDistance(d, nodes[i].LeafIndices, nodes[j].LeafIndices, cfg.Linkage)
				if dist < minDist {
					minDist = dist
					minI, minJ = i, j
				}
			}
		}
		if minI < 0 {
			// Remaining clusters are mutually unreachable (all-NaN cells).
			break
		}

		height := heightOf(minDist, cfg.Linkage)
		maxChild := math.Max(nodes[minI].Height, nodes[minJ].Height)
		if height < maxChild+cfg.MinBranchLength {
			height = maxChild + cfg.MinBranchLength
		}

		left, right := nodes[minI], nodes[minJ]
		left.BranchLength = height - left.Height
		right.BranchLength = height - right.Height

		indices := make([]int, 0, len(left.LeafIndices)+len(right.LeafIndices))
		indices = append(indices, left.LeafIndices...)
		indices = append(indices, right.LeafIndices...)
		sort.Ints(indices)

		parent := &Node{
			ID:            len(nodes),
			Height:        height,
			MergeDistance: minDist,
			LeafIndices:   indices,
			Left:          left,
			Right:         right,
		}

		merges = append(merges, MergeRecord{
			ClusterI:     minI,
			ClusterJ:     minJ,
			Distance:     minDist,
			NewClusterID: parent.ID,
			Size:         len(indices),
		})

		active[minI] = false
		active[minJ] = false
		nodes = append(nodes, parent)
		active = append(active, true)
		activeCount--
	}

	var root *Node
	for i := len(nodes) - 1; i >= 0; i-- {
		if active[i] {
			root = nodes[i]
			break
		}
	}

	return &Tree{Root: root, Merges: merges}
}

// clusterDistance computes the linkage-specific distance between the members
// of two clusters.
func clusterDistance(d mat.Symmetric, a, b []int, linkage Linkage) float64 {
	switch linkage {
	case Single:
		minDist := math.Inf(1)
		for _, i := range a {
			for _, j := range b {
				if v := d.At(i, j); v < minDist {
					minDist = v
				}
			}
		}
		return minDist
	case Complete:
		maxDist := math.Inf(-1)
		for _, i := range a {
			for _, j := range b {
				if v := d.At(i, j); v > maxDist {
					maxDist = v
				}
			}
		}
		return maxDist
	case Ward:
		sum := 0.0
		for _, i := range a {
			for _, j := range b {
				v := d.At(i, j)
				sum += v * v
			}
		}
		meanSq := sum / float64(len(a)*len(b))
		na, nb := float64(len(a)), float64(len(b))
		return na * nb / (na + nb) * meanSq
	default: // UPGMA
		sum := 0.0
		for _, i := range a {
			for _, j := range b {
				sum += d.At(i, j)
			}
		}
		return sum / float64(len(a)*len(b))
	}
}

// heightOf converts a merge distance to a node height.
func heightOf(d float64, linkage Linkage) float64 {
	if linkage == Ward {
		return math.Sqrt(d) / 2
	}
	return d / 2
}
