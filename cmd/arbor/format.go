package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jward/arbor"
)

// formatText renders the known payload shapes as readable text. Payloads
// without a dedicated formatter fall back to indented JSON.
func formatText(w io.Writer, data any) error {
	switch v := data.(type) {
	case *arbor.SymbolSearchData:
		formatSymbolSearch(w, v)
	case *arbor.ASTIndexData:
		formatASTIndex(w, v)
	case *arbor.SignatureData:
		fmt.Fprintf(w, "%s\n%s\n", v.Signature, formatLocation(v.Location))
	case *arbor.SummaryData:
		formatSummary(w, v)
	case *arbor.GraphData:
		formatGraph(w, v)
	case *arbor.ReachabilityData:
		formatReachability(w, v)
	case *arbor.TaintData:
		formatTaint(w, v)
	case []arbor.SearchHit:
		formatSearchHits(w, v)
	case arbor.Stats:
		formatStats(w, v)
	default:
		return writeJSON(data)
	}
	return nil
}

func formatLocation(loc arbor.Location) string {
	return fmt.Sprintf("%s:%d:%d", loc.FilePath, loc.StartLine, loc.StartCol)
}

func formatSymbolSearch(w io.Writer, data *arbor.SymbolSearchData) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tLANG\tLOCATION\tSYMBOL_ID")
	for _, s := range data.Symbols {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Kind, s.Lang, formatLocation(s.Location), s.SymbolID)
	}
	tw.Flush()

	if len(data.CallSites) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLEE\tRESOLVED\tCALL_SITE")
	for _, cs := range data.CallSites {
		loc := ""
		if cs.Location != nil {
			loc = formatLocation(*cs.Location)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", cs.DstName, cs.Resolved, loc)
	}
	tw.Flush()
}

func formatASTIndex(w io.Writer, data *arbor.ASTIndexData) {
	fmt.Fprintf(w, "%s (%s) at %s\n\n", data.Path, data.Lang, data.Rev)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEF\tKIND\tLINE")
	for _, d := range data.Defs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d.Name, d.Kind, d.Location.StartLine)
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL\tRESOLVED\tLINE")
	for _, c := range data.Calls {
		line := 0
		if c.Location != nil {
			line = c.Location.StartLine
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\n", c.DstName, c.Resolved, line)
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IMPORT\tMODULE\tLINE")
	for _, imp := range data.Imports {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", imp.Text, imp.Module, imp.Location.StartLine)
	}
	tw.Flush()
}

func formatSummary(w io.Writer, data *arbor.SummaryData) {
	fmt.Fprintf(w, "%s\n%s\n", data.Signature, formatLocation(data.Location))
	fmt.Fprintf(w, "returns: %t  may_throw: %t  side_effects: %t\n",
		data.HasReturn, data.MayThrow, data.HasSideEffects)
}

func formatGraph(w io.Writer, data *arbor.GraphData) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tLOCATION")
	for _, n := range data.Nodes {
		loc := ""
		if n.Location != nil {
			loc = formatLocation(*n.Location)
		}
		fmt.Fprintf(tw, "%s\t%s\n", n.NodeID, loc)
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSRC\tDST")
	for _, e := range data.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Kind, e.Src, e.Dst)
	}
	tw.Flush()

	if data.Truncated {
		fmt.Fprintln(w, "\n(truncated at node budget)")
	}
}

func formatReachability(w io.Writer, data *arbor.ReachabilityData) {
	if !data.Reachable {
		fmt.Fprintf(w, "unreachable: %s -> %s\n", data.Source, data.Target)
		return
	}
	fmt.Fprintf(w, "reachable in %d hops:\n", len(data.PathEdges))
	for i, n := range data.Path {
		loc := ""
		if n.Location != nil {
			loc = "  " + formatLocation(*n.Location)
		}
		if i > 0 {
			fmt.Fprintf(w, "  -[%s]-> %s%s\n", data.PathEdges[i-1].Kind, n.NodeID, loc)
		} else {
			fmt.Fprintf(w, "  %s%s\n", n.NodeID, loc)
		}
	}
}

func formatTaint(w io.Writer, data *arbor.TaintData) {
	fmt.Fprintf(w, "%s taint (%s), %d path(s)\n", data.Lang, data.Direction, len(data.Paths))
	for i, p := range data.Paths {
		fmt.Fprintf(w, "path %d:\n", i+1)
		for _, n := range p.Nodes {
			loc := ""
			if n.Location != nil {
				loc = "  " + formatLocation(*n.Location)
			}
			fmt.Fprintf(w, "  %s%s\n", n.NodeID, loc)
		}
	}
	if data.Truncated {
		fmt.Fprintln(w, "(truncated at path budget)")
	}
}

func formatSearchHits(w io.Writer, hits []arbor.SearchHit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANG\tSNIPPET")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Path, h.Lang, h.Snippet)
	}
	tw.Flush()
}

func formatStats(w io.Writer, stats arbor.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "files\t%d\n", stats.Files)
	fmt.Fprintf(tw, "file_versions\t%d\n", stats.FileVersions)
	fmt.Fprintf(tw, "blobs\t%d\n", stats.Blobs)
	fmt.Fprintf(tw, "nodes\t%d\n", stats.Nodes)
	fmt.Fprintf(tw, "edges\t%d\n", stats.Edges)
	fmt.Fprintf(tw, "symbols\t%d\n", stats.Symbols)
	fmt.Fprintf(tw, "calls\t%d\n", stats.Calls)
	tw.Flush()
}
