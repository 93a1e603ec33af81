package cluster

import (
	"math"
	"sort"
)

// CutByDistance assigns a cluster label to every leaf by cutting the tree at
// the given merge distance: any subtree whose MergeDistance is at or below
// the threshold collapses into one cluster. The comparison uses the raw
// linkage distance recorded at merge time, so it is correct for every linkage
// including Ward, whose heights are not half the distance. Labels are
// assigned in breadth-first order.
func CutByDistance(t *Tree, threshold float64) []int {
	if t.Empty() {
		return nil
	}

	labels := make([]int, t.NumLeaves())
	current := 0
	queue := []*Node{t.Root}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.IsLeaf() || node.MergeDistance <= threshold {
			for _, idx := range node.LeafIndices {
				labels[idx] = current
			}
			current++
			continue
		}
		queue = append(queue, node.Left, node.Right)
	}

	return labels
}

// CutByNumClusters cuts the tree so that exactly k clusters result (clamped
// to [1, number of leaves]).
func CutByNumClusters(t *Tree, k int) []int {
	if t.Empty() {
		return nil
	}
	n := t.NumLeaves()
	if k <= 1 {
		labels := make([]int, n)
		return labels
	}
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	// Cutting just below the (k-1)-th largest merge distance splits the tree
	// into k clusters.
	internal := t.InternalNodes()
	distances := make([]float64, len(internal))
	for i, node := range internal {
		distances[i] = node.MergeDistance
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distances)))

	cut := math.Nextafter(distances[k-2], math.Inf(-1))
	return CutByDistance(t, cut)
}
