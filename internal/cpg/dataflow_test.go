package cpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/lang"
)

func TestBuildDefUse_DefToUse(t *testing.T) {
	t.Parallel()

	f := parseFixture(t, lang.Python, "d.py", "x = 1\ny = x\n")
	g := NewBuilder(nil).Build([]ParsedFile{f}, false)
	BuildDefUse(g, f)

	var uses []Edge
	for _, e := range edgesOfKind(g, EdgeDDG) {
		if e.Attrs["var"] == "x" && e.Attrs["via"] == "" {
			uses = append(uses, e)
		}
	}
	require.NotEmpty(t, uses)
	for _, e := range uses {
		assert.Contains(t, g.Nodes, e.Src)
		assert.Contains(t, g.Nodes, e.Dst)
	}
}

func TestBuildDefUse_RHSCallAndArg(t *testing.T) {
	t.Parallel()

	src := "data = read()\nprocess(data)\n"
	f := parseFixture(t, lang.Python, "flow.py", src)
	g := NewBuilder(nil).Build([]ParsedFile{f}, false)
	BuildDefUse(g, f)

	var rhsCall, arg bool
	for _, e := range edgesOfKind(g, EdgeDDG) {
		switch e.Attrs["via"] {
		case "rhs_call":
			rhsCall = true
		case "arg":
			if e.Attrs["var"] == "data" {
				arg = true
			}
		}
	}
	assert.True(t, rhsCall, "call on the right-hand side should feed the definition")
	assert.True(t, arg, "live definition should feed the call taking it as an argument")
}

func TestBuildDefUse_GoShortVarDeclaration(t *testing.T) {
	t.Parallel()

	src := "package m\n\nfunc f() int {\n\tn := 1\n\treturn n\n}\n"
	f := parseFixture(t, lang.Go, "s.go", src)
	g := NewBuilder(nil).Build([]ParsedFile{f}, false)
	BuildDefUse(g, f)

	var found bool
	for _, e := range edgesOfKind(g, EdgeDDG) {
		if e.Attrs["var"] == "n" {
			found = true
		}
	}
	assert.True(t, found)
}

// chainGraph builds src -> mid -> dst over the given edge kind.
func chainGraph(kind string, ids ...string) *Graph {
	g := NewGraph()
	for i := 1; i < len(ids); i++ {
		g.AddEdge(Edge{Src: ids[i-1], Dst: ids[i], Kind: kind})
	}
	return g
}

func TestPropagateTaint_SourceToSink(t *testing.T) {
	t.Parallel()

	g := chainGraph(EdgeDDG, "src", "mid", "sink")
	paths := PropagateTaint(g,
		map[string]bool{"src": true},
		map[string]bool{"sink": true},
		nil, TaintOptions{})

	require.Len(t, paths, 1)
	assert.Equal(t, []string{"src", "mid", "sink"}, paths[0])
}

func TestPropagateTaint_SanitizerCutsOff(t *testing.T) {
	t.Parallel()

	g := chainGraph(EdgeDDG, "src", "clean", "sink")
	paths := PropagateTaint(g,
		map[string]bool{"src": true},
		map[string]bool{"sink": true},
		map[string]bool{"clean": true},
		TaintOptions{})

	assert.Empty(t, paths)
}

func TestPropagateTaint_IgnoresUnresolvedCalls(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge(Edge{Src: "src", Dst: "sink", Kind: EdgeCall, Attrs: map[string]string{"unresolved": "true"}})
	paths := PropagateTaint(g,
		map[string]bool{"src": true},
		map[string]bool{"sink": true},
		nil, TaintOptions{})
	assert.Empty(t, paths)
}

func TestPropagateTaint_CycleTerminates(t *testing.T) {
	t.Parallel()

	g := chainGraph(EdgeDDG, "a", "b", "a")
	paths := PropagateTaint(g,
		map[string]bool{"a": true},
		map[string]bool{"z": true},
		nil, TaintOptions{MaxSteps: 10})
	assert.Empty(t, paths)
}
