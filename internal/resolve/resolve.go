// Package resolve implements strict, proof-based import resolution. A
// success is always backed by direct evidence: a module-scope binding found
// by parsing the target file's stored content at the requested revision, or
// a recursively verified re-export chain. Anything unprovable is a
// structured failure naming exactly what could not be verified; the resolver
// never guesses.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/store"
)

// ErrMissingHint means the requested resolution mode needs a hint (importer
// file path or repo root) that the caller did not supply.
var ErrMissingHint = errors.New("missing resolution hint")

// ErrModuleNotFound means no candidate module file exists at the revision.
var ErrModuleNotFound = errors.New("module not found")

// ErrNameNotExported means the module was found and parsed but the name
// could not be proven importable from it.
var ErrNameNotExported = errors.New("name not exported")

// ErrUnsupportedSpecifier marks specifier forms outside strict mode, such as
// bare package imports in TypeScript.
var ErrUnsupportedSpecifier = errors.New("unsupported specifier in strict mode")

// ErrContentUnavailable means the module file exists at the revision but its
// blob content was not stored, so nothing can be proven about it.
var ErrContentUnavailable = errors.New("module content unavailable")

// DefaultMaxDepth bounds re-export chain verification.
const DefaultMaxDepth = 5

// Request names one import to verify.
type Request struct {
	Lang         lang.Lang
	FromModule   string
	Name         string
	RepoRootHint string
	ImporterPath string
	MaxDepth     int
	Rev          string // already validated by the caller
}

// Match is one piece of location evidence backing a successful resolution.
type Match struct {
	Path     string         `json:"path"`
	Location store.Location `json:"location"`
	Kind     string         `json:"kind,omitempty"`
}

// Proof is a successful resolution: the module file that provides the name
// and the evidence rule that proved it.
type Proof struct {
	Module   string  `json:"module"`
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Evidence string  `json:"evidence"`
	Matches  []Match `json:"matches"`
}

// Resolver verifies imports against a store's revision content.
type Resolver struct {
	store   *store.Store
	parsers *lang.ParserFactory
}

// New returns a Resolver reading from s and parsing with parsers.
func New(s *store.Store, parsers *lang.ParserFactory) *Resolver {
	return &Resolver{store: s, parsers: parsers}
}

// Resolve dispatches to the per-language resolver.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Proof, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("resolve import: name is required")
	}
	if req.FromModule == "" {
		return nil, fmt.Errorf("resolve import: from_module is required")
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = DefaultMaxDepth
	}
	switch req.Lang {
	case lang.Python:
		return r.resolvePython(ctx, req)
	case lang.TypeScript:
		return r.resolveTypeScript(ctx, req)
	case lang.Go:
		return r.resolveGo(ctx, req)
	case lang.Java:
		return r.resolveJava(ctx, req)
	case lang.Ruby:
		return r.resolveRuby(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", lang.ErrUnsupportedLanguage, req.Lang)
	}
}

// fileContent loads path's stored content at rev.
func (r *Resolver) fileContent(rev, path string) ([]byte, error) {
	blobHash, _, err := r.store.FileVersionBlob(rev, path)
	if err != nil {
		return nil, err
	}
	content, err := r.store.BlobContent(blobHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s (blob %s)", ErrContentUnavailable, path, blobHash)
		}
		return nil, err
	}
	return content, nil
}

// firstExisting returns the first candidate path present at rev.
func (r *Resolver) firstExisting(rev string, candidates []string) (string, error) {
	for _, c := range candidates {
		ok, err := r.store.FileExistsAtRev(rev, c)
		if err != nil {
			return "", err
		}
		if ok {
			return c, nil
		}
	}
	return "", nil
}

func location(path string, startLine, startCol, endLine, endCol int) store.Location {
	return store.Location{
		FilePath:  path,
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   endLine,
		EndCol:    endCol,
	}
}

// symbolMatch looks for a declared symbol named name in path's blob at rev
// and returns it as evidence when present.
func (r *Resolver) symbolMatch(rev, path, name string) (*Match, error) {
	blobHash, _, err := r.store.FileVersionBlob(rev, path)
	if err != nil {
		return nil, err
	}
	syms, err := r.store.SymbolsByBlob(blobHash)
	if err != nil {
		return nil, err
	}
	for _, sym := range syms {
		if sym.Name == name {
			return &Match{
				Path:     path,
				Kind:     sym.Kind,
				Location: location(path, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol),
			}, nil
		}
	}
	return nil, nil
}
