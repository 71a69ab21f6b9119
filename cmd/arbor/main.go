package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/mcpserver"
	arborruntime "github.com/jward/arbor/internal/runtime"
	"github.com/jward/arbor/internal/sourcesink"
)

var version = "dev"

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "arbor",
	Short:         "Revisioned code property graphs over a local SQLite store",
	Long:          "Arbor indexes source code into a lite code property graph (AST, CFG, calls, data flow) keyed by content hash and revision, and serves symbol, graph, and taint queries over it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .arbor/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log skipped files and other debug detail")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be json or text", format)
	}
}

var (
	flagRev          string
	flagBaseRev      string
	flagParallel     int
	flagLanguages    string
	flagStoreBlobs   bool
	flagMaxFileBytes int64
	flagNoGitignore  bool
	flagTaintConfig  string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a repository snapshot under a revision label",
	Long:  "Scans supported source files, builds per-file graph artifacts keyed by content hash, and resolves cross-file calls. Re-indexing an unchanged file under a new revision reuses its stored artifacts.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&flagRev, "rev", "head", "revision label for this snapshot")
	indexCmd.Flags().StringVar(&flagBaseRev, "base", "", "prior revision this snapshot derives from")
	indexCmd.Flags().IntVar(&flagParallel, "parallel", runtime.NumCPU(), "parse worker count")
	indexCmd.Flags().StringVar(&flagLanguages, "langs", "", "comma-separated language filter (e.g. go,python)")
	indexCmd.Flags().BoolVar(&flagStoreBlobs, "store-blobs", true, "store compressed file contents for content-backed queries")
	indexCmd.Flags().Int64Var(&flagMaxFileBytes, "max-file-bytes", 0, "skip files larger than this (0 uses the default)")
	indexCmd.Flags().BoolVar(&flagNoGitignore, "no-gitignore", false, "ignore .gitignore rules while scanning")
	indexCmd.Flags().StringVar(&flagTaintConfig, "taint-config", "", "YAML source/sink/sanitizer tables (default: built-in)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts, err := engineOptions()
	if err != nil {
		return err
	}
	engine, err := arbor.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	stats, err := engine.IndexRepository(context.Background(), targetDir, flagRev, flagBaseRev)
	if err != nil {
		return outputError("index", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s as %s in %s\n",
		targetDir, flagRev, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	return outputEnvelope("index", arbor.OK(stats))
}

// engineOptions translates index flags into engine options.
func engineOptions() ([]arbor.Option, error) {
	opts := []arbor.Option{
		arbor.WithParallel(flagParallel),
		arbor.WithStoreBlobs(flagStoreBlobs),
	}
	if flagLanguages != "" {
		var langs []lang.Lang
		for _, raw := range strings.Split(flagLanguages, ",") {
			l, err := lang.Normalize(raw)
			if err != nil {
				return nil, err
			}
			langs = append(langs, l)
		}
		opts = append(opts, arbor.WithLanguages(langs...))
	}
	if flagMaxFileBytes > 0 {
		opts = append(opts, arbor.WithMaxFileBytes(flagMaxFileBytes))
	}
	if flagNoGitignore {
		opts = append(opts, arbor.WithoutGitignore())
	}
	if flagTaintConfig != "" {
		tables, err := sourcesink.Load(flagTaintConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, arbor.WithTaintConfig(tables))
	}
	return opts, nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Row counts per store table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		stats, err := engine.Store().Stats()
		return outputEnvelope("stats", arbor.Envelope(stats, err))
	},
}

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Run Risor scripts against the index",
}

var scriptRunCmd = &cobra.Command{
	Use:   "run <file> [args...]",
	Short: "Evaluate a Risor script with query host functions bound",
	Long:  "Runs a Risor script with the store's query primitives exposed as globals. Extra arguments are visible to the script as the `args` string list.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		rt := arborruntime.NewRuntime(engine.Store())
		out, err := rt.RunScript(context.Background(), args[0], map[string]any{"args": args[1:]})
		if err != nil {
			return outputError("script", err)
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	scriptCmd.AddCommand(scriptRunCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query surface as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		return mcpserver.NewServer(engine, version).Run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the arbor version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("arbor", version)
	},
}

// openEngine opens the engine on an existing database from the --db flag
// path (or default).
func openEngine() (*arbor.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'arbor index' first)", dbPath)
	}
	return arbor.New(dbPath)
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".arbor", "index.db")
}
