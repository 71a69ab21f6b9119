package resolve

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/store"
)

var (
	tsExportDeclRe = regexp.MustCompile(
		`^export\s+(?:default\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|enum|interface|type|abstract\s+class)\s+([A-Za-z_$][\w$]*)`)
	tsExportNamedFromRe = regexp.MustCompile(
		`export\s*(?:type\s*)?\{([^}]*)\}\s*from\s*['"]([^'"]+)['"]`)
	tsExportStarFromRe = regexp.MustCompile(
		`export\s*\*\s*(?:as\s+[A-Za-z_$][\w$]*\s*)?from\s*['"]([^'"]+)['"]`)
	tsExportLocalListRe = regexp.MustCompile(
		`export\s*(?:type\s*)?\{([^}]*)\}\s*(?:;|$)`)
)

// resolveTypeScript proves an import from a relative specifier. Strict mode
// covers four export shapes: a direct declaration export, a named re-export
// from another module, a star re-export (verified recursively, depth
// bounded), and a local named-export list. Bare package specifiers cannot be
// resolved without a package-manager algorithm, so they fail rather than
// guess.
func (r *Resolver) resolveTypeScript(ctx context.Context, req Request) (*Proof, error) {
	if !isRelativeSpec(req.FromModule) {
		return nil, fmt.Errorf("%w: typescript specifier %q is not relative", ErrUnsupportedSpecifier, req.FromModule)
	}
	if req.ImporterPath == "" {
		return nil, fmt.Errorf("%w: relative typescript import %q needs importer_file_path", ErrMissingHint, req.FromModule)
	}
	target, err := r.tsResolveSpec(req.Rev, req.ImporterPath, req.FromModule)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fmt.Errorf("%w: typescript module %q from %q", ErrModuleNotFound, req.FromModule, req.ImporterPath)
	}

	visited := map[string]bool{}
	match, evidence, err := r.tsFindExport(ctx, req.Rev, target, req.Name, req.MaxDepth, visited)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q does not export %q", ErrNameNotExported, target, req.Name)
	}
	return &Proof{
		Module: req.FromModule, Name: req.Name, Path: target,
		Evidence: evidence,
		Matches:  []Match{*match},
	}, nil
}

func isRelativeSpec(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".."
}

// tsResolveSpec maps a relative specifier to an existing file at rev using
// the usual extension and index-file conventions.
func (r *Resolver) tsResolveSpec(rev, importer, spec string) (string, error) {
	base := path.Clean(path.Join(path.Dir(importer), spec))
	candidates := []string{
		base + ".ts", base + ".tsx", base + ".js", base + ".jsx",
		path.Join(base, "index.ts"), path.Join(base, "index.tsx"), path.Join(base, "index.js"),
	}
	if path.Ext(base) != "" {
		candidates = append([]string{base}, candidates...)
	}
	return r.firstExisting(rev, candidates)
}

// tsExport is one export statement's parsed content.
type tsExport struct {
	names    map[string]store.Location // exported name -> statement location
	reexport map[string]string         // exported name -> original name, for named-from
	fromSpec string                    // non-empty for re-exports
	star     bool
}

// tsFindExport proves that filePath exports name, chasing re-export chains
// up to depth. The visited set breaks cycles.
func (r *Resolver) tsFindExport(ctx context.Context, rev, filePath, name string, depth int, visited map[string]bool) (*Match, string, error) {
	if depth < 0 || visited[filePath] {
		return nil, "", nil
	}
	visited[filePath] = true

	content, err := r.fileContent(rev, filePath)
	if err != nil {
		return nil, "", err
	}
	exports, err := r.tsCollectExports(ctx, filePath, content)
	if err != nil {
		return nil, "", err
	}

	var stars []string
	for _, ex := range exports {
		if loc, ok := ex.names[name]; ok {
			if ex.fromSpec == "" {
				match := Match{Path: filePath, Location: loc, Kind: "export"}
				if sm, _ := r.symbolMatch(rev, filePath, name); sm != nil {
					match = *sm
				}
				return &match, "export declaration", nil
			}
			// Named re-export: the original binding must be provable in the
			// source module.
			source, err := r.tsResolveSpec(rev, filePath, ex.fromSpec)
			if err != nil {
				return nil, "", err
			}
			if source == "" {
				return nil, "", fmt.Errorf("%w: re-export source %q from %q", ErrModuleNotFound, ex.fromSpec, filePath)
			}
			orig := ex.reexport[name]
			if orig == "" {
				orig = name
			}
			m, _, err := r.tsFindExport(ctx, rev, source, orig, depth-1, visited)
			if err != nil || m == nil {
				return m, "", err
			}
			return m, "named re-export chain", nil
		}
		if ex.star && ex.fromSpec != "" {
			stars = append(stars, ex.fromSpec)
		}
	}
	for _, spec := range stars {
		source, err := r.tsResolveSpec(rev, filePath, spec)
		if err != nil {
			return nil, "", err
		}
		if source == "" {
			continue
		}
		m, _, err := r.tsFindExport(ctx, rev, source, name, depth-1, visited)
		if err != nil {
			return nil, "", err
		}
		if m != nil {
			return m, "star re-export chain", nil
		}
	}
	return nil, "", nil
}

// tsCollectExports locates export_statement nodes with the grammar and reads
// their shapes with regular expressions over the statement text. Falls back
// to a line scan when the parse yields no export statements (heavily
// malformed sources still often keep exports at line starts).
func (r *Resolver) tsCollectExports(ctx context.Context, filePath string, content []byte) ([]tsExport, error) {
	tree, err := r.parsers.Parse(ctx, lang.TypeScript, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	var exports []tsExport
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "export_statement" {
			continue
		}
		sp, ep := stmt.StartPoint(), stmt.EndPoint()
		loc := store.Location{
			FilePath:  filePath,
			StartLine: int(sp.Row) + 1,
			StartCol:  int(sp.Column) + 1,
			EndLine:   int(ep.Row) + 1,
			EndCol:    int(ep.Column) + 1,
		}
		if ex := parseTSExport(text(stmt, content), loc); ex != nil {
			exports = append(exports, *ex)
		}
	}
	if len(exports) > 0 {
		return exports, nil
	}
	for lineNo, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "export") {
			continue
		}
		loc := store.Location{FilePath: filePath, StartLine: lineNo + 1, StartCol: 1, EndLine: lineNo + 1, EndCol: len(line) + 1}
		if ex := parseTSExport(trimmed, loc); ex != nil {
			exports = append(exports, *ex)
		}
	}
	return exports, nil
}

// parseTSExport classifies one export statement's text into a tsExport.
func parseTSExport(stmtText string, loc store.Location) *tsExport {
	if m := tsExportStarFromRe.FindStringSubmatch(stmtText); m != nil {
		return &tsExport{star: true, fromSpec: m[1], names: map[string]store.Location{}}
	}
	if m := tsExportNamedFromRe.FindStringSubmatch(stmtText); m != nil {
		ex := &tsExport{fromSpec: m[2], names: map[string]store.Location{}, reexport: map[string]string{}}
		for exported, orig := range parseExportList(m[1]) {
			ex.names[exported] = loc
			ex.reexport[exported] = orig
		}
		return ex
	}
	if m := tsExportDeclRe.FindStringSubmatch(stmtText); m != nil {
		return &tsExport{names: map[string]store.Location{m[1]: loc}}
	}
	if m := tsExportLocalListRe.FindStringSubmatch(stmtText); m != nil {
		ex := &tsExport{names: map[string]store.Location{}}
		for exported := range parseExportList(m[1]) {
			ex.names[exported] = loc
		}
		return ex
	}
	return nil
}

// parseExportList reads "a, b as c" into exported-name -> original-name.
func parseExportList(list string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		orig, alias, hasAlias := strings.Cut(item, " as ")
		orig = strings.TrimSpace(strings.TrimPrefix(orig, "type "))
		if hasAlias {
			out[strings.TrimSpace(alias)] = orig
		} else {
			out[orig] = orig
		}
	}
	return out
}
