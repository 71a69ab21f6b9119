package resolve

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
)

// resolveRuby proves a require target. require_relative is resolved against
// the importer's directory and require against the repo layout (x.rb, then
// lib/x.rb). The target must exist at the revision and must define the
// requested constant or method; load-path configuration is not modeled, so
// anything else fails rather than guesses.
func (r *Resolver) resolveRuby(ctx context.Context, req Request) (*Proof, error) {
	spec := strings.TrimSuffix(req.FromModule, ".rb")

	var candidates []string
	relative := strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
	if relative {
		if req.ImporterPath == "" {
			return nil, fmt.Errorf("%w: require_relative needs importer_path", ErrMissingHint)
		}
		candidates = []string{path.Clean(path.Join(path.Dir(req.ImporterPath), spec)) + ".rb"}
	} else {
		candidates = []string{spec + ".rb", path.Join("lib", spec) + ".rb"}
	}

	target, err := r.firstExisting(req.Rev, candidates)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fmt.Errorf("%w: ruby require %q at rev %q (tried %s)",
			ErrModuleNotFound, req.FromModule, req.Rev, strings.Join(candidates, ", "))
	}

	if m, err := r.symbolMatch(req.Rev, target, req.Name); err != nil {
		return nil, err
	} else if m != nil {
		return &Proof{
			Module: req.FromModule, Name: req.Name, Path: target,
			Evidence: "definition in required file",
			Matches:  []Match{*m},
		}, nil
	}

	// Top-level constant assignments are not declaration symbols, so check
	// the parsed file for one before failing.
	src, err := r.fileContent(req.Rev, target)
	if err != nil {
		return nil, err
	}
	tree, err := r.parsers.Parse(ctx, lang.Ruby, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	if loc, ok := rubyConstantAssignment(tree.RootNode(), src, req.Name); ok {
		return &Proof{
			Module: req.FromModule, Name: req.Name, Path: target,
			Evidence: "constant assignment in required file",
			Matches:  []Match{{Path: target, Kind: "constant", Location: location(target, loc.StartLine, loc.StartCol, loc.EndLine, loc.EndCol)}},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s defines no %q", ErrNameNotExported, target, req.Name)
}

type rubyLoc struct {
	StartLine, StartCol, EndLine, EndCol int
}

func rubyConstantAssignment(root *sitter.Node, src []byte, name string) (rubyLoc, bool) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() != "assignment" {
			continue
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "constant" {
			continue
		}
		if string(src[left.StartByte():left.EndByte()]) != name {
			continue
		}
		sp, ep := left.StartPoint(), left.EndPoint()
		return rubyLoc{
			StartLine: int(sp.Row) + 1, StartCol: int(sp.Column) + 1,
			EndLine: int(ep.Row) + 1, EndCol: int(ep.Column) + 1,
		}, true
	}
	return rubyLoc{}, false
}
