package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/lang"
)

var (
	flagQueryRev     string
	flagLang         string
	flagLimit        int
	flagEdgeKinds    []string
	flagMaxNodes     int
	flagPerNodeLimit int
	flagDirection    string
	flagDepth        int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the code property graph",
	Long:  "Run read-only queries against an indexed repository. All line and column numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().StringVar(&flagQueryRev, "rev", "", "revision to query (default: latest)")

	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(astIndexCmd)
	queryCmd.AddCommand(signatureCmd)
	queryCmd.AddCommand(summaryCmd)
	queryCmd.AddCommand(resolveImportCmd)
	queryCmd.AddCommand(forwardCmd)
	queryCmd.AddCommand(backwardCmd)
	queryCmd.AddCommand(sliceCmd)
	queryCmd.AddCommand(reachCmd)
	queryCmd.AddCommand(callgraphCmd)
	queryCmd.AddCommand(cfgCmd)
	queryCmd.AddCommand(taintCmd)
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <name>",
	Short: "Search declared symbols by name, with their call sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().SymbolSearch(flagQueryRev, args[0], flagLang, flagLimit)
		return outputEnvelope("symbols", arbor.Envelope(data, err))
	},
}

func init() {
	symbolsCmd.Flags().StringVar(&flagLang, "lang", "", "language filter")
	symbolsCmd.Flags().IntVar(&flagLimit, "limit", 50, "maximum symbols returned")
}

var astIndexCmd = &cobra.Command{
	Use:   "astindex <path>",
	Short: "Per-file definitions, call sites, and imports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().ASTIndex(context.Background(), flagQueryRev, args[0])
		return outputEnvelope("astindex", arbor.Envelope(data, err))
	},
}

var signatureCmd = &cobra.Command{
	Use:   "signature <id>",
	Short: "First line of a symbol or node region",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().Signature(flagQueryRev, args[0])
		return outputEnvelope("signature", arbor.Envelope(data, err))
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <id>",
	Short: "Behavioral summary of a symbol or node region",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().Summary(flagQueryRev, args[0])
		return outputEnvelope("summary", arbor.Envelope(data, err))
	},
}

var (
	flagFromModule   string
	flagImportName   string
	flagRepoRootHint string
	flagImporterPath string
	flagMaxDepth     int
)

var resolveImportCmd = &cobra.Command{
	Use:   "resolve-import",
	Short: "Prove that an import binding is provided by repository content",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := lang.Normalize(flagLang)
		if err != nil {
			return outputError("resolve-import", err)
		}
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		proof, err := engine.ResolveImport(context.Background(), arbor.ResolveRequest{
			Lang:         l,
			FromModule:   flagFromModule,
			Name:         flagImportName,
			RepoRootHint: flagRepoRootHint,
			ImporterPath: flagImporterPath,
			MaxDepth:     flagMaxDepth,
			Rev:          flagQueryRev,
		})
		return outputEnvelope("resolve-import", arbor.Envelope(proof, err))
	},
}

func init() {
	resolveImportCmd.Flags().StringVar(&flagLang, "lang", "", "language of the import")
	resolveImportCmd.Flags().StringVar(&flagFromModule, "from", "", "module specifier as written in the import")
	resolveImportCmd.Flags().StringVar(&flagImportName, "name", "", "imported binding name")
	resolveImportCmd.Flags().StringVar(&flagRepoRootHint, "root-hint", "", "repository-relative source root hint")
	resolveImportCmd.Flags().StringVar(&flagImporterPath, "importer", "", "path of the importing file")
	resolveImportCmd.Flags().IntVar(&flagMaxDepth, "max-depth", 0, "re-export chase bound")
	resolveImportCmd.MarkFlagRequired("lang")
	resolveImportCmd.MarkFlagRequired("from")
	resolveImportCmd.MarkFlagRequired("name")
}

func graphFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagEdgeKinds, "kinds", nil, "edge kinds to follow (default: non-AST kinds)")
	cmd.Flags().IntVar(&flagMaxNodes, "max-nodes", 0, "visited node budget")
	cmd.Flags().IntVar(&flagPerNodeLimit, "per-node-limit", 0, "edge fan-out cap per node")
}

func graphOptions() arbor.GraphOptions {
	return arbor.GraphOptions{
		EdgeKinds:    flagEdgeKinds,
		MaxNodes:     flagMaxNodes,
		PerNodeLimit: flagPerNodeLimit,
	}
}

var forwardCmd = &cobra.Command{
	Use:   "forward <node-id>...",
	Short: "BFS along outgoing edges from the given nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().QueryForward(flagQueryRev, args, graphOptions())
		return outputEnvelope("forward", arbor.Envelope(data, err))
	},
}

var backwardCmd = &cobra.Command{
	Use:   "backward <node-id>...",
	Short: "BFS along incoming edges from the given nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().QueryBackward(flagQueryRev, args, graphOptions())
		return outputEnvelope("backward", arbor.Envelope(data, err))
	},
}

var sliceCmd = &cobra.Command{
	Use:   "slice <node-id>...",
	Short: "Program slice from criterion nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().Slice(flagQueryRev, args, flagDirection, graphOptions())
		return outputEnvelope("slice", arbor.Envelope(data, err))
	},
}

var reachCmd = &cobra.Command{
	Use:   "reach <source> <target>",
	Short: "Reachability between two nodes with a shortest witness path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().Reachability(flagQueryRev, args[0], args[1], graphOptions())
		return outputEnvelope("reach", arbor.Envelope(data, err))
	},
}

var callgraphCmd = &cobra.Command{
	Use:   "callgraph <id>",
	Short: "Depth-bounded call-graph neighborhood of a symbol or call node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if flagDirection == "both" {
			out, err := engine.Query().Callgraph(flagQueryRev, args[0], "out", flagDepth, graphOptions())
			if err != nil {
				return outputEnvelope("callgraph", arbor.Fail(err))
			}
			in, err := engine.Query().Callgraph(flagQueryRev, args[0], "in", flagDepth, graphOptions())
			if err != nil {
				return outputEnvelope("callgraph", arbor.Fail(err))
			}
			return outputEnvelope("callgraph", arbor.OK(mergeGraphData(out, in)))
		}
		data, err := engine.Query().Callgraph(flagQueryRev, args[0], flagDirection, flagDepth, graphOptions())
		return outputEnvelope("callgraph", arbor.Envelope(data, err))
	},
}

// mergeGraphData unions two traversals of the same start node, deduplicating
// nodes by id and edges by (src, dst, kind).
func mergeGraphData(a, b *arbor.GraphData) *arbor.GraphData {
	merged := &arbor.GraphData{
		Rev:       a.Rev,
		Direction: "both",
		Nodes:     a.Nodes,
		Edges:     a.Edges,
		Truncated: a.Truncated || b.Truncated,
	}
	seen := make(map[string]bool, len(a.Nodes))
	for _, n := range a.Nodes {
		seen[n.NodeID] = true
	}
	for _, n := range b.Nodes {
		if !seen[n.NodeID] {
			seen[n.NodeID] = true
			merged.Nodes = append(merged.Nodes, n)
		}
	}
	seenEdge := make(map[arbor.EdgeRef]bool, len(a.Edges))
	for _, e := range a.Edges {
		seenEdge[e] = true
	}
	for _, e := range b.Edges {
		if !seenEdge[e] {
			seenEdge[e] = true
			merged.Edges = append(merged.Edges, e)
		}
	}
	return merged
}

var cfgCmd = &cobra.Command{
	Use:   "cfg <id>",
	Short: "Depth-bounded control-flow region around a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		data, err := engine.Query().CFGRegion(flagQueryRev, args[0], flagDirection, flagDepth, graphOptions())
		return outputEnvelope("cfg", arbor.Envelope(data, err))
	},
}

var (
	flagMaxSteps int
	flagMaxPaths int
)

var taintCmd = &cobra.Command{
	Use:   "taint",
	Short: "Taint paths between configured sources and sinks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := lang.Normalize(flagLang)
		if err != nil {
			return outputError("taint", err)
		}
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		opt := arbor.TaintOptions{MaxSteps: flagMaxSteps, MaxPaths: flagMaxPaths}
		var data *arbor.TaintData
		if flagDirection == "backward" {
			data, err = engine.Query().TaintBackward(flagQueryRev, l, opt)
		} else {
			data, err = engine.Query().TaintForward(flagQueryRev, l, opt)
		}
		return outputEnvelope("taint", arbor.Envelope(data, err))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{forwardCmd, backwardCmd, sliceCmd, reachCmd, callgraphCmd, cfgCmd} {
		graphFlags(cmd)
	}
	sliceCmd.Flags().StringVar(&flagDirection, "direction", "forward", "forward|backward")
	callgraphCmd.Flags().StringVar(&flagDirection, "direction", "out", "out|in|both")
	cfgCmd.Flags().StringVar(&flagDirection, "direction", "out", "out|in")
	callgraphCmd.Flags().IntVar(&flagDepth, "depth", 0, "maximum hop count")
	cfgCmd.Flags().IntVar(&flagDepth, "depth", 0, "maximum hop count")

	taintCmd.Flags().StringVar(&flagLang, "lang", "", "language whose source/sink tables apply")
	taintCmd.Flags().StringVar(&flagDirection, "direction", "forward", "forward|backward")
	taintCmd.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "DFS step bound per start")
	taintCmd.Flags().IntVar(&flagMaxPaths, "max-paths", 0, "maximum reported paths")
	taintCmd.MarkFlagRequired("lang")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over indexed file contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		hits, err := engine.Query().Search(args[0], flagLang, flagSearchLimit)
		return outputEnvelope("search", arbor.Envelope(hits, err))
	},
}

var flagSearchLimit int

func init() {
	searchCmd.Flags().StringVar(&flagLang, "lang", "", "language filter")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 20, "maximum hits returned")
}

// outputEnvelope writes the result envelope in the selected format. Failure
// envelopes are still written to stdout in JSON mode so callers always get a
// well-formed result, and the error propagates for the exit code.
func outputEnvelope(command string, env arbor.Result) error {
	if env.Error != nil {
		errorHandled = true
		if flagFormat == "text" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", env.Error.Message)
		} else {
			writeJSON(env)
		}
		return errors.New(env.Error.Message)
	}
	if flagFormat == "text" {
		return formatText(os.Stdout, env.Data)
	}
	return writeJSON(env)
}

// outputError wraps a pre-envelope failure (bad flags, unusable input) the
// same way envelope failures are reported.
func outputError(command string, err error) error {
	return outputEnvelope(command, arbor.Fail(err))
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
