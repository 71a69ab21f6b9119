// Package lang resolves language identifiers to tree-sitter grammars and
// classifies files by extension. The set of supported languages is fixed:
// python, typescript, go, java, ruby. Plain JavaScript sources are parsed
// with the TypeScript grammar, which is a superset for the constructs the
// graph builder cares about.
package lang

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

// Lang is a canonical language identifier.
type Lang string

const (
	Python     Lang = "python"
	TypeScript Lang = "typescript"
	Go         Lang = "go"
	Java       Lang = "java"
	Ruby       Lang = "ruby"
)

// All lists every supported language in stable order.
func All() []Lang {
	return []Lang{Go, Java, Python, Ruby, TypeScript}
}

// aliases maps accepted spellings to canonical identifiers.
var aliases = map[string]Lang{
	"python":     Python,
	"py":         Python,
	"typescript": TypeScript,
	"ts":         TypeScript,
	"javascript": TypeScript,
	"js":         TypeScript,
	"go":         Go,
	"golang":     Go,
	"java":       Java,
	"ruby":       Ruby,
	"rb":         Ruby,
}

// Normalize maps a language identifier to its canonical form. Unknown
// identifiers are an error, never a fallback.
func Normalize(value string) (Lang, error) {
	l, ok := aliases[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		supported := make([]string, 0, len(aliases))
		for _, c := range All() {
			supported = append(supported, string(c))
		}
		sort.Strings(supported)
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, value, strings.Join(supported, ", "))
	}
	return l, nil
}

// extToLang maps file extensions to canonical language names.
var extToLang = map[string]Lang{
	".py":   Python,
	".go":   Go,
	".java": Java,
	".rb":   Ruby,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".js":   TypeScript,
	".jsx":  TypeScript,
}

// ForFile returns the canonical language for a file path based on its
// extension. Returns ("", false) for unrecognized extensions.
func ForFile(path string) (Lang, bool) {
	l, ok := extToLang[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// builtinGrammars holds the compiled-in tree-sitter grammars, lazily
// initialized on first use.
var (
	builtinGrammars map[Lang]*sitter.Language
	grammarsOnce    sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		builtinGrammars = map[Lang]*sitter.Language{
			Python:     python.GetLanguage(),
			TypeScript: ts.GetLanguage(),
			Go:         golang.GetLanguage(),
			Java:       java.GetLanguage(),
			Ruby:       ruby.GetLanguage(),
		}
	})
}

// TSXGrammar returns the dedicated grammar for .tsx files. Classification
// still reports them as typescript; only the parse uses the tsx dialect.
func TSXGrammar() *sitter.Language {
	return tsx.GetLanguage()
}

// Provider supplies a grammar for one language, overriding the compiled-in
// table. Used to swap in alternative grammar builds without touching the
// factory's resolution logic.
type Provider func() (*sitter.Language, error)

// ParserFactory resolves languages to grammars and mints parsers. It caches
// resolved grammars per language; construct one factory per Engine or query
// session and share it freely, all methods are safe for concurrent use.
type ParserFactory struct {
	mu        sync.Mutex
	providers map[Lang]Provider
	grammars  map[Lang]*sitter.Language
}

// NewParserFactory returns a factory backed by the compiled-in grammars.
func NewParserFactory() *ParserFactory {
	return &ParserFactory{
		providers: make(map[Lang]Provider),
		grammars:  make(map[Lang]*sitter.Language),
	}
}

// Register installs a grammar provider for lang, taking priority over the
// compiled-in grammar. Passing nil removes a previous registration.
func (f *ParserFactory) Register(lang Lang, p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p == nil {
		delete(f.providers, lang)
	} else {
		f.providers[lang] = p
	}
	delete(f.grammars, lang)
}

// Grammar resolves the tree-sitter grammar for lang. Resolution order:
// registered provider, then the compiled-in table. On total failure the
// error names every strategy attempted.
func (f *ParserFactory) Grammar(lang Lang) (*sitter.Language, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grammars[lang]; ok {
		return g, nil
	}
	var attempts []string
	if p, ok := f.providers[lang]; ok {
		g, err := p()
		if err == nil && g != nil {
			f.grammars[lang] = g
			return g, nil
		}
		attempts = append(attempts, fmt.Sprintf("registered provider: %v", err))
	} else {
		attempts = append(attempts, "registered provider: none registered")
	}
	initGrammars()
	if g, ok := builtinGrammars[lang]; ok {
		f.grammars[lang] = g
		return g, nil
	}
	attempts = append(attempts, "builtin grammar table: language not present")
	return nil, fmt.Errorf("%w: no grammar for %q (%s)", ErrParserUnavailable, lang, strings.Join(attempts, "; "))
}

// NewParser returns a fresh parser bound to lang's grammar. Grammars are
// cached and shared; parsers are not, since a tree-sitter parser is not safe
// for concurrent use. Callers running a worker pool mint one per worker.
func (f *ParserFactory) NewParser(lang Lang) (*sitter.Parser, error) {
	g, err := f.Grammar(lang)
	if err != nil {
		return nil, err
	}
	p := sitter.NewParser()
	p.SetLanguage(g)
	return p, nil
}

// Parse parses src with a one-shot parser for lang.
func (f *ParserFactory) Parse(ctx context.Context, lang Lang, src []byte) (*sitter.Tree, error) {
	p, err := f.NewParser(lang)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}
	return tree, nil
}
