package sourcesink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/lang"
)

func TestDefaults_CoverAllLanguages(t *testing.T) {
	t.Parallel()

	d := Defaults()
	for _, l := range lang.All() {
		assert.NotEmpty(t, d.Sources[l], "sources for %s", l)
		assert.NotEmpty(t, d.Sinks[l], "sinks for %s", l)
		assert.NotEmpty(t, d.Sanitizers[l], "sanitizers for %s", l)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	got, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)

	got, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestLoad_OverlayReplacesPerLanguage(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "taint.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
sinks:
  python:
    - dangerous_call
`), 0o644))

	got, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"dangerous_call"}, got.Sinks[lang.Python])
	// Untouched languages and tables keep defaults.
	assert.Equal(t, Defaults().Sinks[lang.Go], got.Sinks[lang.Go])
	assert.Equal(t, Defaults().Sources[lang.Python], got.Sources[lang.Python])
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("sinks: ["), 0o644))

	_, err := Load(p)
	assert.Error(t, err)
}

func TestSets(t *testing.T) {
	t.Parallel()

	d := Defaults()
	assert.True(t, d.SinkSet(lang.Python)["eval"])
	assert.True(t, d.SourceSet(lang.Ruby)["params"])
	assert.True(t, d.SanitizerSet(lang.Python)["html.escape"])
	assert.False(t, d.SinkSet(lang.Python)["print"])
}
