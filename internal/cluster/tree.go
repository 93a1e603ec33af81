// Package cluster builds agglomerative clustering trees from pairwise
// distance matrices and serializes them as Newick.
package cluster

// Node is one node of a rooted binary clustering tree. Leaves carry a label
// and height zero; internal nodes carry the merge height. BranchLength is the
// height difference to the parent, set when the parent is created.
// MergeDistance is the raw linkage distance of the merge that created the
// node; it is zero for leaves. Height is derived from it per linkage (d/2, or
// sqrt(d)/2 for Ward) and then monotonicity-clamped, so cutting a tree must
// compare against MergeDistance, never against a rescaled Height.
type Node struct {
	ID            int
	Label         string
	Height        float64
	MergeDistance float64
	BranchLength  float64
	LeafIndices   []int // sorted original row indices under this node
	Left, Right   *Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// NumLeaves returns the number of leaves under the node.
func (n *Node) NumLeaves() int {
	return len(n.LeafIndices)
}

// MergeRecord describes one agglomeration step.
type MergeRecord struct {
	ClusterI     int
	ClusterJ     int
	Distance     float64
	NewClusterID int
	Size         int
}

// Tree is a rooted binary clustering tree plus the ordered merge history.
type Tree struct {
	Root   *Node
	Merges []MergeRecord
}

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool {
	return t == nil || t.Root == nil
}

// NumLeaves returns the leaf count.
func (t *Tree) NumLeaves() int {
	if t.Empty() {
		return 0
	}
	return t.Root.NumLeaves()
}

// Leaves returns the leaf nodes in in-order traversal.
func (t *Tree) Leaves() []*Node {
	if t.Empty() {
		return nil
	}
	var leaves []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			leaves = append(leaves, n)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)
	return leaves
}

// InternalNodes returns the internal nodes in pre-order traversal.
func (t *Tree) InternalNodes() []*Node {
	if t.Empty() || t.Root.IsLeaf() {
		return nil
	}
	var nodes []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || n.IsLeaf() {
			return
		}
		nodes = append(nodes, n)
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)
	return nodes
}

// LeafOrder returns the leaf labels in in-order traversal.
func (t *Tree) LeafOrder() []string {
	leaves := t.Leaves()
	labels := make([]string, len(leaves))
	for i, l := range leaves {
		labels[i] = l.Label
	}
	return labels
}
