package cluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteNewick_Scenario(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: UPGMA})
	nwk := WriteNewick(tree, 6)

	assert.True(t, strings.HasSuffix(nwk, ";"))
	for _, label := range []string{"A", "B", "C", "D"} {
		assert.Contains(t, nwk, label)
	}
	assert.Contains(t, nwk, ":", "branch lengths are included")
}

func TestWriteNewick_Empty(t *testing.T) {
	assert.Equal(t, ";", WriteNewick(&Tree{}, 6))
}

func TestWriteNewick_SanitizesLabels(t *testing.T) {
	tree := Build(scenarioMatrix(), []string{"a read", "b(1)", "c:2", "d;x"}, Config{Linkage: UPGMA})
	nwk := WriteNewick(tree, 6)

	assert.Contains(t, nwk, "a_read")
	assert.Contains(t, nwk, "b_1_")
	assert.Contains(t, nwk, "c_2")
	assert.Contains(t, nwk, "d_x")
}

func TestNewickRoundTrip(t *testing.T) {
	orig := Build(scenarioMatrix(), []string{"A", "B", "C", "D"}, Config{Linkage: UPGMA})
	nwk := WriteNewick(orig, 6)

	parsed, err := ParseNewick(nwk)
	require.NoError(t, err)

	assert.Equal(t, orig.NumLeaves(), parsed.NumLeaves())
	assert.Equal(t, orig.LeafOrder(), parsed.LeafOrder())

	var compare func(a, b *Node)
	compare = func(a, b *Node) {
		require.Equal(t, a.IsLeaf(), b.IsLeaf())
		assert.InDelta(t, a.BranchLength, b.BranchLength, 1e-6)
		if a.IsLeaf() {
			assert.Equal(t, a.Label, b.Label)
			return
		}
		compare(a.Left, b.Left)
		compare(a.Right, b.Right)
	}
	compare(orig.Root, parsed.Root)
}

func TestNewickRoundTrip_SingleLeaf(t *testing.T) {
	orig := Build(symFromRows([][]float64{{0}}), []string{"lonely"}, Config{})
	nwk := WriteNewick(orig, 6)
	assert.Equal(t, "lonely;", nwk)

	parsed, err := ParseNewick(nwk)
	require.NoError(t, err)
	assert.Equal(t, 1, parsed.NumLeaves())
	assert.Equal(t, "lonely", parsed.Root.Label)
}

func TestParseNewick_Errors(t *testing.T) {
	for _, in := range []string{
		"(A,B)",      // missing semicolon
		"(A,B;",      // unbalanced
		"(A,B):x;",   // bad branch length
		"(,B);",      // empty label
		"(A,B)extra((;", // trailing garbage
	} {
		_, err := ParseNewick(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseNewick_Empty(t *testing.T) {
	tree, err := ParseNewick(";")
	require.NoError(t, err)
	assert.True(t, tree.Empty())
}
