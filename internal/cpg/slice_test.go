package cpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardSlice_DiscoveryOrder(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "a", Dst: "b", Kind: EdgeDDG})
	g.AddEdge(Edge{Src: "b", Dst: "c", Kind: EdgeCFG})
	g.AddEdge(Edge{Src: "c", Dst: "d", Kind: EdgeAST}) // AST not in default policy

	got := ForwardSlice(g, []string{"a"}, SliceOptions{})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBackwardSlice(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "a", Dst: "b", Kind: EdgeDDG})
	g.AddEdge(Edge{Src: "b", Dst: "c", Kind: EdgeDDG})

	got := BackwardSlice(g, []string{"c"}, SliceOptions{})
	assert.Equal(t, []string{"c", "b", "a"}, got)
}

func TestSlice_MaxNodesBoundOnCycle(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "a", Dst: "b", Kind: EdgeDDG})
	g.AddEdge(Edge{Src: "b", Dst: "c", Kind: EdgeDDG})
	g.AddEdge(Edge{Src: "c", Dst: "a", Kind: EdgeDDG})

	got := ForwardSlice(g, []string{"a"}, SliceOptions{MaxNodes: 2})
	assert.Len(t, got, 2)

	// Unbounded on a cycle still terminates via the visited set.
	got = ForwardSlice(g, []string{"a"}, SliceOptions{})
	assert.Len(t, got, 3)
}

func TestSlice_EdgeKindFilter(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "a", Dst: "b", Kind: EdgeDDG})
	g.AddEdge(Edge{Src: "a", Dst: "x", Kind: EdgeCFG})

	got := ForwardSlice(g, []string{"a"}, SliceOptions{EdgeKinds: []string{EdgeDDG}})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSlice_PerNodeLimit(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	for _, dst := range []string{"b", "c", "d", "e"} {
		g.AddEdge(Edge{Src: "a", Dst: dst, Kind: EdgeDDG})
	}

	got := ForwardSlice(g, []string{"a"}, SliceOptions{PerNodeLimit: 2})
	require.Len(t, got, 3) // criterion plus two neighbors
	assert.Equal(t, "a", got[0])
}

func TestSlice_DuplicateCriteria(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "a", Dst: "b", Kind: EdgeDDG})

	got := ForwardSlice(g, []string{"a", "a"}, SliceOptions{})
	assert.Equal(t, []string{"a", "b"}, got)
}
