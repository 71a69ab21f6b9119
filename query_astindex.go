package arbor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
)

// ImportInfo is one import statement found in a file.
type ImportInfo struct {
	Text     string   `json:"text"`
	Module   string   `json:"module,omitempty"`
	Location Location `json:"location"`
}

// ASTIndexData is the ast_index payload: a per-file inventory of
// declarations, call sites, and imports.
type ASTIndexData struct {
	Rev     string         `json:"rev"`
	Path    string         `json:"path"`
	Lang    string         `json:"lang"`
	Defs    []SymbolInfo   `json:"defs"`
	Calls   []CallSiteInfo `json:"calls"`
	Imports []ImportInfo   `json:"imports"`
}

// ASTIndex inventories one file at rev. Defs and calls come from the stored
// artifacts; imports are re-extracted from the stored blob, since import
// statements are not symbol-shaped and are not persisted as rows.
func (q *QueryBuilder) ASTIndex(ctx context.Context, rev, path string) (*ASTIndexData, error) {
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	blobHash, _, err := q.store.FileVersionBlob(rev, path)
	if err != nil {
		return nil, err
	}
	l, known := lang.ForFile(path)
	if !known {
		return nil, fmt.Errorf("%w: no grammar for %s", lang.ErrUnsupportedLanguage, path)
	}

	data := &ASTIndexData{Rev: rev, Path: path, Lang: string(l), Defs: []SymbolInfo{}, Calls: []CallSiteInfo{}, Imports: []ImportInfo{}}

	syms, err := q.store.SymbolsByBlob(blobHash)
	if err != nil {
		return nil, err
	}
	for _, sym := range syms {
		data.Defs = append(data.Defs, SymbolInfo{
			SymbolID: sym.SymbolID, Name: sym.Name, Kind: sym.Kind, Lang: sym.Lang,
			Location: Location{
				FilePath:  path,
				StartLine: sym.StartLine, StartCol: sym.StartCol,
				EndLine: sym.EndLine, EndCol: sym.EndCol,
			},
		})
	}

	calls, err := q.store.CallsByBlob(blobHash)
	if err != nil {
		return nil, err
	}
	srcIDs := make([]string, 0, len(calls))
	for _, c := range calls {
		srcIDs = append(srcIDs, c.SrcNode)
	}
	locs, err := q.store.NodeLocations(srcIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range calls {
		info := CallSiteInfo{SrcNode: c.SrcNode, DstName: c.DstName, Resolved: c.Resolved}
		if c.DstSymbol != nil {
			info.DstSym = *c.DstSymbol
		}
		if loc, ok := locs[c.SrcNode]; ok {
			info.Location = &loc
		}
		data.Calls = append(data.Calls, info)
	}

	content, err := q.store.BlobContent(blobHash)
	if err != nil {
		return nil, err
	}
	tree, err := q.parsers.Parse(ctx, l, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	data.Imports = extractImports(l, path, tree.RootNode(), content)
	return data, nil
}

// extractImports walks the tree collecting import-shaped statements for l.
// Ruby has no import syntax, so require and require_relative calls stand in.
func extractImports(l lang.Lang, path string, root *sitter.Node, src []byte) []ImportInfo {
	imports := []ImportInfo{}
	add := func(n *sitter.Node, module string) {
		sp, ep := n.StartPoint(), n.EndPoint()
		imports = append(imports, ImportInfo{
			Text:   string(src[n.StartByte():n.EndByte()]),
			Module: module,
			Location: Location{
				FilePath:  path,
				StartLine: int(sp.Row) + 1, StartCol: int(sp.Column) + 1,
				EndLine: int(ep.Row) + 1, EndCol: int(ep.Column) + 1,
			},
		})
	}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case l == lang.Python && n.Type() == "import_statement":
			add(n, importChildText(n, src, "dotted_name", "aliased_import"))
		case l == lang.Python && n.Type() == "import_from_statement":
			add(n, fieldOrEmpty(n, "module_name", src))
		case l == lang.TypeScript && n.Type() == "import_statement":
			add(n, unquote(fieldOrEmpty(n, "source", src)))
		case l == lang.Go && n.Type() == "import_spec":
			add(n, unquote(fieldOrEmpty(n, "path", src)))
		case l == lang.Java && n.Type() == "import_declaration":
			add(n, strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(string(src[n.StartByte():n.EndByte()])), "import "), ";"))
		case l == lang.Ruby && n.Type() == "call":
			method := fieldOrEmpty(n, "method", src)
			if method == "require" || method == "require_relative" {
				add(n, unquote(firstArgText(n, src)))
				continue
			}
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}
	return imports
}

// importChildText returns the text of the first child matching any of the
// given types, preferring earlier children.
func importChildText(n *sitter.Node, src []byte, types ...string) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return string(src[c.StartByte():c.EndByte()])
			}
		}
	}
	return ""
}

func fieldOrEmpty(n *sitter.Node, field string, src []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return string(src[c.StartByte():c.EndByte()])
}

func firstArgText(n *sitter.Node, src []byte) string {
	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	a := args.NamedChild(0)
	return string(src[a.StartByte():a.EndByte()])
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
