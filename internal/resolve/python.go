package resolve

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/store"
)

// pythonModuleIndex is the evidence gathered from one parsed Python module:
// its module-scope bindings plus the lazy-export markers.
type pythonModuleIndex struct {
	bindings map[string]store.Location
	all      map[string]bool
	hasAll   bool
	hasGetattr bool
}

// resolvePython proves `from <module> import <name>` against stored content.
// A name is importable when bound at module scope, or when __all__ lists it
// and a module-level __getattr__ exists (the lazy-export pattern). __all__
// membership alone neither grants nor denies importability; Python only
// consults it for wildcard imports.
func (r *Resolver) resolvePython(ctx context.Context, req Request) (*Proof, error) {
	candidates, err := pythonCandidates(req.FromModule, req.ImporterPath)
	if err != nil {
		return nil, err
	}
	target, err := r.firstExisting(req.Rev, candidates)
	if err != nil {
		return nil, err
	}
	if target == "" {
		// Suffix fallback: the caller's module spec may omit leading path
		// segments relative to the repo layout.
		rel := strings.ReplaceAll(strings.TrimLeft(req.FromModule, "."), ".", "/")
		if rel != "" {
			for _, pattern := range []string{"%/" + rel + ".py", "%/" + rel + "/__init__.py"} {
				files, ferr := r.store.FilesMatching(req.Rev, pattern)
				if ferr != nil {
					return nil, ferr
				}
				if len(files) > 0 {
					target = files[0].Path
					break
				}
			}
		}
	}
	if target == "" {
		return nil, fmt.Errorf("%w: python module %q (tried %s)",
			ErrModuleNotFound, req.FromModule, strings.Join(candidates, ", "))
	}

	content, err := r.fileContent(req.Rev, target)
	if err != nil {
		return nil, err
	}
	idx, err := r.indexPythonModule(ctx, target, content)
	if err != nil {
		return nil, err
	}

	if loc, ok := idx.bindings[req.Name]; ok {
		match := Match{Path: target, Location: loc, Kind: "binding"}
		if sm, _ := r.symbolMatch(req.Rev, target, req.Name); sm != nil {
			match = *sm
		}
		return &Proof{
			Module: req.FromModule, Name: req.Name, Path: target,
			Evidence: "module-scope binding",
			Matches:  []Match{match},
		}, nil
	}

	if idx.hasAll && idx.all[req.Name] && idx.hasGetattr {
		return &Proof{
			Module: req.FromModule, Name: req.Name, Path: target,
			Evidence: "__all__ entry with module __getattr__",
			Matches:  []Match{{Path: target, Location: store.Location{FilePath: target, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1}}},
		}, nil
	}

	// from package import submodule: the name may be a module file inside
	// the package directory.
	if strings.HasSuffix(target, "__init__.py") {
		pkgDir := path.Dir(target)
		sub, err := r.firstExisting(req.Rev, []string{
			path.Join(pkgDir, req.Name+".py"),
			path.Join(pkgDir, req.Name, "__init__.py"),
		})
		if err != nil {
			return nil, err
		}
		if sub != "" {
			return &Proof{
				Module: req.FromModule, Name: req.Name, Path: sub,
				Evidence: "package submodule",
				Matches:  []Match{{Path: sub, Kind: "module", Location: store.Location{FilePath: sub, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1}}},
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %q has no module-scope binding %q", ErrNameNotExported, target, req.Name)
}

// pythonCandidates maps a dotted or relative module spec to candidate file
// paths. Relative specs need the importer's path.
func pythonCandidates(module, importer string) ([]string, error) {
	if strings.HasPrefix(module, ".") {
		if importer == "" {
			return nil, fmt.Errorf("%w: relative python import %q needs importer_file_path", ErrMissingHint, module)
		}
		dots := 0
		for dots < len(module) && module[dots] == '.' {
			dots++
		}
		base := path.Dir(importer)
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		rest := strings.ReplaceAll(module[dots:], ".", "/")
		if rest == "" {
			return []string{path.Join(base, "__init__.py")}, nil
		}
		return []string{
			path.Join(base, rest+".py"),
			path.Join(base, rest, "__init__.py"),
		}, nil
	}
	p := strings.ReplaceAll(module, ".", "/")
	return []string{p + ".py", p + "/__init__.py"}, nil
}

// indexPythonModule parses content with the Python grammar and collects
// module-scope bindings only: nested scopes never produce importable names.
func (r *Resolver) indexPythonModule(ctx context.Context, filePath string, content []byte) (*pythonModuleIndex, error) {
	tree, err := r.parsers.Parse(ctx, lang.Python, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	idx := &pythonModuleIndex{
		bindings: make(map[string]store.Location),
		all:      make(map[string]bool),
	}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() == "decorated_definition" {
			if def := stmt.ChildByFieldName("definition"); def != nil {
				stmt = def
			}
		}
		switch stmt.Type() {
		case "function_definition", "class_definition":
			name := fieldText(stmt, "name", content)
			if name != "" {
				idx.bind(name, filePath, stmt)
				if name == "__getattr__" {
					idx.hasGetattr = true
				}
			}
		case "expression_statement":
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				child := stmt.NamedChild(j)
				if child.Type() != "assignment" && child.Type() != "augmented_assignment" {
					continue
				}
				left := child.ChildByFieldName("left")
				if left == nil {
					continue
				}
				for _, target := range assignTargets(left, content) {
					idx.bind(target, filePath, child)
					if target == "__all__" {
						idx.hasAll = true
						collectStringList(child.ChildByFieldName("right"), content, idx.all)
					}
				}
			}
		case "import_statement":
			for _, name := range importStatementBindings(stmt, content) {
				idx.bind(name, filePath, stmt)
			}
		case "import_from_statement":
			for _, name := range importFromBindings(stmt, content) {
				idx.bind(name, filePath, stmt)
			}
		}
	}
	return idx, nil
}

func (idx *pythonModuleIndex) bind(name, filePath string, n *sitter.Node) {
	if _, exists := idx.bindings[name]; exists {
		return
	}
	sp, ep := n.StartPoint(), n.EndPoint()
	idx.bindings[name] = store.Location{
		FilePath:  filePath,
		StartLine: int(sp.Row) + 1,
		StartCol:  int(sp.Column) + 1,
		EndLine:   int(ep.Row) + 1,
		EndCol:    int(ep.Column) + 1,
	}
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	f := n.ChildByFieldName(field)
	if f == nil {
		return ""
	}
	return text(f, src)
}

func text(n *sitter.Node, src []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// assignTargets flattens an assignment's left side into bound identifiers,
// covering `a = ...`, `a, b = ...`, and `(a, b) = ...`.
func assignTargets(left *sitter.Node, src []byte) []string {
	switch left.Type() {
	case "identifier":
		return []string{text(left, src)}
	case "pattern_list", "tuple_pattern", "list_pattern":
		var names []string
		for i := 0; i < int(left.NamedChildCount()); i++ {
			c := left.NamedChild(i)
			if c.Type() == "identifier" {
				names = append(names, text(c, src))
			}
		}
		return names
	}
	return nil
}

// collectStringList reads string literals out of a list or tuple node into
// dst; the __all__ value shape.
func collectStringList(rhs *sitter.Node, src []byte, dst map[string]bool) {
	if rhs == nil {
		return
	}
	if rhs.Type() != "list" && rhs.Type() != "tuple" {
		return
	}
	for i := 0; i < int(rhs.NamedChildCount()); i++ {
		c := rhs.NamedChild(i)
		if c.Type() != "string" {
			continue
		}
		dst[strings.Trim(text(c, src), `'"`)] = true
	}
}

// importStatementBindings returns the names bound by `import a.b, c as d`:
// the top package for plain imports, the alias for aliased ones.
func importStatementBindings(stmt *sitter.Node, src []byte) []string {
	var names []string
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		c := stmt.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			full := text(c, src)
			if top, _, found := strings.Cut(full, "."); found {
				names = append(names, top)
			} else {
				names = append(names, full)
			}
		case "aliased_import":
			if alias := fieldText(c, "alias", src); alias != "" {
				names = append(names, alias)
			}
		}
	}
	return names
}

// importFromBindings returns the names bound by `from m import a, b as c`.
// Wildcard imports bind nothing provable.
func importFromBindings(stmt *sitter.Node, src []byte) []string {
	moduleName := stmt.ChildByFieldName("module_name")
	var names []string
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		c := stmt.NamedChild(i)
		if moduleName != nil && c.Equal(moduleName) {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			names = append(names, text(c, src))
		case "aliased_import":
			if alias := fieldText(c, "alias", src); alias != "" {
				names = append(names, alias)
			}
		}
	}
	return names
}
