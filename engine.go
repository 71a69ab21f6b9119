package arbor

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/resolve"
	"github.com/jward/arbor/internal/scan"
	"github.com/jward/arbor/internal/sourcesink"
	"github.com/jward/arbor/internal/store"
)

// Engine orchestrates the arbor pipeline: repository scanning, parallel
// parsing and graph construction, artifact persistence, call resolution, and
// query access.
type Engine struct {
	store   *store.Store
	parsers *lang.ParserFactory
	taint   *sourcesink.Tables

	languages    []lang.Lang // nil means all languages
	workers      int
	storeBlobs   bool
	maxFileBytes int64
	noGitignore  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will index.
func WithLanguages(languages ...lang.Lang) Option {
	return func(e *Engine) {
		e.languages = languages
	}
}

// WithParallel sets the number of parse workers. Values below one fall back
// to the CPU count. Parsing and graph construction run in the pool; all
// SQLite writes stay on the calling goroutine.
func WithParallel(workers int) Option {
	return func(e *Engine) {
		e.workers = workers
	}
}

// WithStoreBlobs controls whether file contents are persisted alongside the
// derived artifacts. Signature snippets, content search, and strict import
// resolution all need stored blobs; without them those operations report the
// content as unavailable.
func WithStoreBlobs(storeBlobs bool) Option {
	return func(e *Engine) {
		e.storeBlobs = storeBlobs
	}
}

// WithTaintConfig replaces the built-in source/sink/sanitizer name tables.
func WithTaintConfig(t *sourcesink.Tables) Option {
	return func(e *Engine) {
		e.taint = t
	}
}

// WithMaxFileBytes overrides the scanner's file size cap.
func WithMaxFileBytes(n int64) Option {
	return func(e *Engine) {
		e.maxFileBytes = n
	}
}

// WithoutGitignore disables .gitignore filtering during the scan.
func WithoutGitignore() Option {
	return func(e *Engine) {
		e.noGitignore = true
	}
}

// New creates an Engine backed by a SQLite database at dbPath. The database
// is created and migrated if needed.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("arbor: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("arbor: migrate: %w", err)
	}

	e := &Engine{
		store:   s,
		parsers: lang.NewParserFactory(),
		taint:   sourcesink.Defaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}
	if e.maxFileBytes <= 0 {
		e.maxFileBytes = scan.DefaultMaxFileBytes
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Parsers returns the Engine's parser factory, for registering grammar
// providers before indexing.
func (e *Engine) Parsers() *lang.ParserFactory {
	return e.parsers
}

// Taint returns the active source/sink/sanitizer tables.
func (e *Engine) Taint() *sourcesink.Tables {
	return e.taint
}

// Query returns a QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store, parsers: e.parsers, taint: e.taint}
}

// Resolver returns a strict import resolver reading from the Store.
func (e *Engine) Resolver() *resolve.Resolver {
	return resolve.New(e.store, e.parsers)
}

// ResolveImport validates the revision selector and runs strict import
// resolution.
func (e *Engine) ResolveImport(ctx context.Context, req ResolveRequest) (*Proof, error) {
	rev, err := e.store.RequireRevision(req.Rev)
	if err != nil {
		return nil, err
	}
	req.Rev = rev
	return e.Resolver().Resolve(ctx, req)
}

func (e *Engine) scanConfig() scan.Config {
	return scan.Config{
		IncludeLangs: e.languages,
		MaxFileBytes: e.maxFileBytes,
		NoGitignore:  e.noGitignore,
	}
}
