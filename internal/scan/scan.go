// Package scan walks a repository tree and groups source files by language.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/arbor/internal/lang"
)

// DefaultMaxFileBytes is the per-file size cap. Files larger than this are
// skipped; generated bundles and vendored blobs above it add noise, not
// signal.
const DefaultMaxFileBytes = 2_000_000

// defaultExcludeDirs are directory names skipped at any depth.
var defaultExcludeDirs = []string{
	".git", ".hg", ".svn",
	"__pycache__", ".mypy_cache", ".pytest_cache",
	"node_modules", "dist", "build", "target", "vendor",
	".venv", "venv",
}

// Config controls a repository scan.
type Config struct {
	// IncludeLangs restricts the scan to these languages. Empty means all
	// supported languages.
	IncludeLangs []lang.Lang
	// ExcludeDirs replaces the default exclude set when non-nil.
	ExcludeDirs []string
	// MaxFileBytes caps file size; zero means DefaultMaxFileBytes.
	MaxFileBytes int64
	// NoGitignore disables the .gitignore overlay at the repo root.
	NoGitignore bool
}

// DefaultExcludeDirs returns a copy of the built-in exclude set.
func DefaultExcludeDirs() []string {
	out := make([]string, len(defaultExcludeDirs))
	copy(out, defaultExcludeDirs)
	return out
}

// Scan walks root and returns slash-separated paths relative to root, grouped
// by language and sorted within each group. Files in excluded directories,
// files over the size cap, and files with unrecognized extensions are
// dropped. Unreadable files are skipped, not fatal.
func Scan(root string, cfg Config) (map[lang.Lang][]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %q: not a directory", root)
	}

	exclude := make(map[string]bool)
	dirs := cfg.ExcludeDirs
	if dirs == nil {
		dirs = defaultExcludeDirs
	}
	for _, d := range dirs {
		exclude[d] = true
	}

	var include map[lang.Lang]bool
	if len(cfg.IncludeLangs) > 0 {
		include = make(map[lang.Lang]bool, len(cfg.IncludeLangs))
		for _, l := range cfg.IncludeLangs {
			include[l] = true
		}
	}

	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	var gi *ignore.GitIgnore
	if !cfg.NoGitignore {
		if g, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			gi = g
		}
	}

	out := make(map[lang.Lang][]string)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if exclude[d.Name()] {
				return fs.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		l, ok := lang.ForFile(path)
		if !ok {
			return nil
		}
		if include != nil && !include[l] {
			return nil
		}
		fi, statErr := d.Info()
		if statErr != nil || fi.Size() > maxBytes {
			return nil
		}
		out[l] = append(out[l], rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", root, walkErr)
	}

	for _, paths := range out {
		sort.Strings(paths)
	}
	return out, nil
}
