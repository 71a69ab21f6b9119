// Package sourcesink holds the per-language source/sink/sanitizer name
// tables that seed taint analysis. The built-in tables cover common
// injection and XSS relevant APIs; they are a heuristic seed list, not a
// security-complete taint model. A YAML file can override any language's
// lists.
package sourcesink

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jward/arbor/internal/lang"
)

// Tables maps each language to its source, sink, and sanitizer call names.
type Tables struct {
	Sources    map[lang.Lang][]string `yaml:"sources"`
	Sinks      map[lang.Lang][]string `yaml:"sinks"`
	Sanitizers map[lang.Lang][]string `yaml:"sanitizers"`
}

// Defaults returns the built-in tables.
func Defaults() *Tables {
	return &Tables{
		Sources: map[lang.Lang][]string{
			lang.Python:     {"input", "sys.stdin", "flask.request.args", "flask.request.form"},
			lang.TypeScript: {"window.location", "document.cookie", "process.env"},
			lang.Java:       {"System.in", "HttpServletRequest.getParameter"},
			lang.Go:         {"os.Args", "http.Request.Form", "http.Request.Body"},
			lang.Ruby:       {"ARGV", "STDIN", "params"},
		},
		Sinks: map[lang.Lang][]string{
			lang.Python:     {"subprocess.Popen", "os.system", "eval", "exec", "cursor.execute"},
			lang.TypeScript: {"eval", "Function", "document.write", "innerHTML"},
			lang.Java:       {"Runtime.exec", "ProcessBuilder.start", "Statement.execute"},
			lang.Go:         {"exec.Command", "db.Exec", "template.Execute"},
			lang.Ruby:       {"eval", "system", "exec", "Kernel.send"},
		},
		Sanitizers: map[lang.Lang][]string{
			lang.Python:     {"html.escape", "markupsafe.escape"},
			lang.TypeScript: {"DOMPurify.sanitize"},
			lang.Java:       {"ESAPI.encoder().encodeForHTML"},
			lang.Go:         {"template.HTMLEscapeString"},
			lang.Ruby:       {"ERB::Util.html_escape"},
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. A missing
// path ("" or nonexistent file) yields the defaults; malformed YAML is an
// error. Languages present in the file replace that language's list wholesale,
// languages absent keep their defaults.
func Load(path string) (*Tables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read taint config: %w", err)
	}
	var overlay Tables
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse taint config %s: %w", path, err)
	}
	for l, names := range overlay.Sources {
		t.Sources[l] = names
	}
	for l, names := range overlay.Sinks {
		t.Sinks[l] = names
	}
	for l, names := range overlay.Sanitizers {
		t.Sanitizers[l] = names
	}
	return t, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// SourceSet returns l's source names as a set.
func (t *Tables) SourceSet(l lang.Lang) map[string]bool { return toSet(t.Sources[l]) }

// SinkSet returns l's sink names as a set.
func (t *Tables) SinkSet(l lang.Lang) map[string]bool { return toSet(t.Sinks[l]) }

// SanitizerSet returns l's sanitizer names as a set.
func (t *Tables) SanitizerSet(l lang.Lang) map[string]bool { return toSet(t.Sanitizers[l]) }
