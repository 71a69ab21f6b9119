// Package runtime embeds a Risor VM exposing the revision store's query
// surface to scripts. Scripts compose the same primitives the tool API is
// built from (symbol lookup, neighbor expansion, call-site search), which
// makes ad hoc graph exploration possible without recompiling.
package runtime

import (
	"context"
	"fmt"
	"os"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/arbor/internal/store"
)

// Runtime wires a Store into a Risor evaluation environment.
type Runtime struct {
	store *store.Store
}

// NewRuntime creates a Runtime over s.
func NewRuntime(s *store.Store) *Runtime {
	return &Runtime{store: s}
}

// RunScript loads a .risor file from disk and evaluates it. The returned
// string is the script's final value, rendered for display.
func (r *Runtime) RunScript(ctx context.Context, path string, extraGlobals map[string]any) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", path, err)
	}
	return r.eval(ctx, string(src), path, extraGlobals)
}

// RunSource evaluates Risor source directly, for inline scripts and tests.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (string, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (string, error) {
	var opts []risor.Option
	for name, val := range r.buildGlobals(extraGlobals) {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return "", fmt.Errorf("runtime: script %s: %w", label, err)
	}
	if result == nil {
		return "", nil
	}
	return result.Inspect(), nil
}

// buildGlobals constructs the globals exposed to scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"log": mustProxy(&logObject{prefix: "arbor"}),
	}
	if r.store != nil {
		globals["db"] = mustProxy(r.store)
		globals["latest_rev"] = makeLatestRevFn(r.store)
		globals["revisions"] = makeRevisionsFn(r.store)
		globals["symbol_search"] = makeSymbolSearchFn(r.store)
		globals["neighbors"] = makeNeighborsFn(r.store)
		globals["callsites"] = makeCallSitesFn(r.store)
		globals["node_locations"] = makeNodeLocationsFn(r.store)
		globals["search_code"] = makeSearchCodeFn(r.store)
		globals["blob_content"] = makeBlobContentFn(r.store)
		globals["stats"] = makeStatsFn(r.store)
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

type logObject struct {
	prefix string
}

func (l *logObject) Info(msg string) {
	fmt.Printf("[%s] INFO: %s\n", l.prefix, msg)
}

func (l *logObject) Warn(msg string) {
	fmt.Printf("[%s] WARN: %s\n", l.prefix, msg)
}

func (l *logObject) Error(msg string) {
	fmt.Printf("[%s] ERROR: %s\n", l.prefix, msg)
}
