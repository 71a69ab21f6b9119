package resolve

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// resolveJava proves a repo-local import by mapping the dotted package to a
// directory suffix and requiring a source file that declares the type.
// Classpath and jar lookups are outside strict mode.
func (r *Resolver) resolveJava(ctx context.Context, req Request) (*Proof, error) {
	if req.RepoRootHint == "" {
		return nil, fmt.Errorf("%w: java import resolution needs repo_root_hint", ErrMissingHint)
	}

	pkgPath := strings.ReplaceAll(strings.Trim(req.FromModule, "."), ".", "/")
	files, err := r.store.FilesMatching(req.Rev, "%/"+pkgPath+"/"+req.Name+".java")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		// A package rooted at the top of the repo has no leading segment
		// for the suffix pattern to anchor on.
		files, err = r.store.FilesMatching(req.Rev, pkgPath+"/"+req.Name+".java")
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s/%s.java at rev %q", ErrModuleNotFound, pkgPath, req.Name, req.Rev)
	}

	for _, fb := range files {
		if path.Base(fb.Path) != req.Name+".java" {
			continue
		}
		m, err := r.symbolMatch(req.Rev, fb.Path, req.Name)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return &Proof{
				Module: req.FromModule, Name: req.Name, Path: fb.Path,
				Evidence: "type declaration in package directory",
				Matches:  []Match{*m},
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.java exists under %s but declares no %q", ErrNameNotExported, req.Name, pkgPath, req.Name)
}
