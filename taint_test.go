package arbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/lang"
)

func TestTaintForward_SourceToSink(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"cmd.py": "def run():\n    x = input()\n    os.system(x)\n",
	})

	data, err := q.TaintForward("", lang.Python, TaintOptions{})
	require.NoError(t, err)
	require.Len(t, data.Paths, 1, "unsanitized source to sink must yield exactly one path")
	path := data.Paths[0].Nodes
	require.GreaterOrEqual(t, len(path), 2)
	assert.Contains(t, data.Sources, path[0].NodeID)
	assert.Contains(t, data.Sinks, path[len(path)-1].NodeID)
}

func TestTaintForward_SanitizerPrunes(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"safe.py": "def render():\n    x = input()\n    y = html.escape(x)\n    os.system(y)\n",
	})

	data, err := q.TaintForward("", lang.Python, TaintOptions{})
	require.NoError(t, err)
	assert.Empty(t, data.Paths, "a path through a sanitizer must not be reported")
	assert.NotEmpty(t, data.Sources)
	assert.NotEmpty(t, data.Sinks)
}

func TestTaintBackward_SwapsRoles(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"cmd.py": "def run():\n    x = input()\n    os.system(x)\n",
	})

	data, err := q.TaintBackward("", lang.Python, TaintOptions{})
	require.NoError(t, err)
	assert.Equal(t, "in", data.Direction)
	require.Len(t, data.Paths, 1)
	path := data.Paths[0].Nodes
	assert.Contains(t, data.Sources, path[0].NodeID, "backward search starts at sinks")
}

func TestTaint_MaxPathsBound(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"many.py": "def run():\n    a = input()\n    b = input()\n    os.system(a)\n    os.system(b)\n",
	})

	data, err := q.TaintForward("", lang.Python, TaintOptions{MaxPaths: 1})
	require.NoError(t, err)
	assert.Len(t, data.Paths, 1)
	assert.True(t, data.Truncated)
}

func TestTaint_UnknownRevision(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{"m.py": "x = 1\n"})

	_, err := q.TaintForward("ghost", lang.Python, TaintOptions{})
	require.Error(t, err)
}
