package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCutByDistance_Scenario(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: UPGMA})

	labels := CutByDistance(tree, 3.0)
	require.Len(t, labels, 4)

	assert.Equal(t, labels[0], labels[1], "A and B share a cluster")
	assert.Equal(t, labels[2], labels[3], "C and D share a cluster")
	assert.NotEqual(t, labels[0], labels[2])

	distinct := map[int]struct{}{}
	for _, l := range labels {
		distinct[l] = struct{}{}
	}
	assert.Len(t, distinct, 2)
}

func TestCutByDistance_Extremes(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: UPGMA})

	one := CutByDistance(tree, 100.0)
	assert.Equal(t, []int{0, 0, 0, 0}, one, "cut above the root keeps one cluster")

	four := CutByDistance(tree, 0.0)
	distinct := map[int]struct{}{}
	for _, l := range four {
		distinct[l] = struct{}{}
	}
	assert.Len(t, distinct, 4, "cut at zero separates every leaf")
}

func TestCutByNumClusters(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: UPGMA})

	two := CutByNumClusters(tree, 2)
	distinct := map[int]struct{}{}
	for _, l := range two {
		distinct[l] = struct{}{}
	}
	assert.Len(t, distinct, 2)
	assert.Equal(t, two[0], two[1])
	assert.Equal(t, two[2], two[3])

	assert.Equal(t, []int{0, 0, 0, 0}, CutByNumClusters(tree, 1))
	assert.Equal(t, []int{0, 1, 2, 3}, CutByNumClusters(tree, 4))
	assert.Equal(t, []int{0, 1, 2, 3}, CutByNumClusters(tree, 10), "k above leaf count clamps")
}

func TestCutByDistance_WardUsesMergeDistance(t *testing.T) {
	// Ward merges the scenario matrix at distances 2, 2, and 26, while the
	// corresponding heights are sqrt(d)/2; the cut must compare against the
	// raw distances, not twice the height (which would be sqrt(26) ≈ 5.1 for
	// the root).
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: Ward})

	require.Len(t, tree.Merges, 3)
	assert.InDelta(t, 26.0, tree.Root.MergeDistance, 1e-12)

	labels := CutByDistance(tree, 10.0)
	distinct := map[int]struct{}{}
	for _, l := range labels {
		distinct[l] = struct{}{}
	}
	assert.Len(t, distinct, 2, "the root merge at distance 26 must split at threshold 10")
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[2], labels[3])

	one := CutByDistance(tree, 30.0)
	assert.Equal(t, []int{0, 0, 0, 0}, one, "above the root merge distance everything is one cluster")
}

func TestCutByNumClusters_Ward(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: Ward})

	two := CutByNumClusters(tree, 2)
	distinct := map[int]struct{}{}
	for _, l := range two {
		distinct[l] = struct{}{}
	}
	assert.Len(t, distinct, 2)
	assert.Equal(t, two[0], two[1])
	assert.Equal(t, two[2], two[3])
}

func TestCut_EmptyTree(t *testing.T) {
	assert.Nil(t, CutByDistance(&Tree{}, 1.0))
	assert.Nil(t, CutByNumClusters(&Tree{}, 2))
}
