package resolve

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// resolveGo proves a repo-local import: the package directory must exist at
// the revision and one of its .go files must declare the symbol. Module
// paths outside the repo cannot be verified and fail. Exported-identifier
// casing is a convention the resolver assumes but does not enforce.
func (r *Resolver) resolveGo(ctx context.Context, req Request) (*Proof, error) {
	if req.RepoRootHint == "" {
		return nil, fmt.Errorf("%w: go import resolution needs repo_root_hint", ErrMissingHint)
	}

	for _, dir := range goCandidateDirs(req.FromModule, req.RepoRootHint) {
		files, err := r.store.FilesMatching(req.Rev, dir+"/%.go")
		if err != nil {
			return nil, err
		}
		found := false
		for _, fb := range files {
			if path.Dir(fb.Path) != dir {
				continue // a nested package, not this one
			}
			found = true
			syms, err := r.store.SymbolsByBlob(fb.BlobHash)
			if err != nil {
				return nil, err
			}
			for _, sym := range syms {
				if sym.Name != req.Name {
					continue
				}
				return &Proof{
					Module: req.FromModule, Name: req.Name, Path: fb.Path,
					Evidence: "package declaration",
					Matches: []Match{{
						Path:     fb.Path,
						Kind:     sym.Kind,
						Location: location(fb.Path, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol),
					}},
				}, nil
			}
		}
		if found {
			return nil, fmt.Errorf("%w: go package %q declares no %q", ErrNameNotExported, dir, req.Name)
		}
	}
	return nil, fmt.Errorf("%w: go package %q at rev %q", ErrModuleNotFound, req.FromModule, req.Rev)
}

// goCandidateDirs maps an import path to repo-relative package directories:
// the path itself, the path with the repo's root segment stripped, and every
// shorter suffix of a full module path.
func goCandidateDirs(fromModule, rootHint string) []string {
	spec := strings.Trim(fromModule, "/")
	dirs := []string{spec}
	if base := path.Base(strings.TrimRight(rootHint, "/")); base != "" && base != "." {
		if rest, ok := strings.CutPrefix(spec, base+"/"); ok {
			dirs = append(dirs, rest)
		}
	}
	parts := strings.Split(spec, "/")
	for j := 1; j < len(parts); j++ {
		dirs = append(dirs, strings.Join(parts[j:], "/"))
	}
	seen := make(map[string]bool, len(dirs))
	var out []string
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
