package arbor

import (
	"sort"

	"github.com/jward/arbor/internal/cpg"
	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/store"
)

// Taint search bounds.
const (
	DefaultTaintMaxSteps = 80
	DefaultTaintMaxPaths = 50
)

// TaintEdgeKinds is the default propagation allow-list.
func TaintEdgeKinds() []string {
	return []string{cpg.EdgeDDG, cpg.EdgeIPCall, cpg.EdgeCall}
}

// TaintOptions bounds a taint search. Zero values take defaults.
type TaintOptions struct {
	EdgeKinds    []string
	MaxSteps     int
	MaxPaths     int
	PerNodeLimit int
}

func (o TaintOptions) withDefaults() TaintOptions {
	if len(o.EdgeKinds) == 0 {
		o.EdgeKinds = TaintEdgeKinds()
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultTaintMaxSteps
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = DefaultTaintMaxPaths
	}
	if o.PerNodeLimit <= 0 {
		o.PerNodeLimit = DefaultPerNodeLimit
	}
	return o
}

// TaintPath is one source-to-sink witness, in traversal order.
type TaintPath struct {
	Nodes []NodeRef `json:"nodes"`
}

// TaintData is the taint query payload. The underlying source/sink tables
// are a heuristic seed list, so paths are leads for review, not findings.
type TaintData struct {
	Rev       string      `json:"rev"`
	Lang      string      `json:"lang"`
	Direction string      `json:"direction"`
	Sources   []string    `json:"sources"`
	Sinks     []string    `json:"sinks"`
	Paths     []TaintPath `json:"paths"`
	Truncated bool        `json:"truncated"`
}

// TaintForward searches from source call-sites toward sink call-sites for
// language l, pruning any branch that passes through a sanitizer call-site.
func (q *QueryBuilder) TaintForward(rev string, l lang.Lang, opt TaintOptions) (*TaintData, error) {
	return q.taintSearch(rev, l, store.DirOut, opt)
}

// TaintBackward is the same search with source and sink roles swapped,
// walking incoming edges.
func (q *QueryBuilder) TaintBackward(rev string, l lang.Lang, opt TaintOptions) (*TaintData, error) {
	return q.taintSearch(rev, l, store.DirIn, opt)
}

func (q *QueryBuilder) taintSearch(rev string, l lang.Lang, direction string, opt TaintOptions) (*TaintData, error) {
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	opt = opt.withDefaults()

	sourceNames := setToSorted(q.taint.SourceSet(l))
	sinkNames := setToSorted(q.taint.SinkSet(l))
	if direction == store.DirIn {
		sourceNames, sinkNames = sinkNames, sourceNames
	}

	sources, err := q.callSiteNodes(rev, sourceNames, string(l))
	if err != nil {
		return nil, err
	}
	sinks, err := q.callSiteNodes(rev, sinkNames, string(l))
	if err != nil {
		return nil, err
	}
	sanitizers, err := q.callSiteNodes(rev, setToSorted(q.taint.SanitizerSet(l)), string(l))
	if err != nil {
		return nil, err
	}

	data := &TaintData{
		Rev: rev, Lang: string(l), Direction: direction,
		Sources: setToSorted(sources), Sinks: setToSorted(sinks),
		Paths: []TaintPath{},
	}

	type frame struct {
		node  string
		path  []string
		steps int
	}
	for _, src := range data.Sources {
		if len(data.Paths) >= opt.MaxPaths {
			data.Truncated = true
			break
		}
		stack := []frame{{node: src, path: []string{src}}}
		for len(stack) > 0 && len(data.Paths) < opt.MaxPaths {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if sinks[f.node] && len(f.path) > 1 {
				path, err := q.taintPath(f.path)
				if err != nil {
					return nil, err
				}
				data.Paths = append(data.Paths, path)
				continue
			}
			if sanitizers[f.node] && len(f.path) > 1 {
				continue
			}
			if f.steps >= opt.MaxSteps {
				continue
			}
			edges, err := q.store.NeighborsRev(rev, []string{f.node}, direction, opt.EdgeKinds, opt.PerNodeLimit)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				next := e.Dst
				if direction == store.DirIn {
					next = e.Src
				}
				if containsID(f.path, next) {
					continue
				}
				grown := make([]string, len(f.path)+1)
				copy(grown, f.path)
				grown[len(f.path)] = next
				stack = append(stack, frame{node: next, path: grown, steps: f.steps + 1})
			}
		}
	}
	if len(data.Paths) >= opt.MaxPaths {
		data.Truncated = true
	}
	return data, nil
}

// callSiteNodes maps call-site callee names to the set of source node ids.
func (q *QueryBuilder) callSiteNodes(rev string, names []string, langFilter string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(names) == 0 {
		return out, nil
	}
	sites, err := q.store.CallSitesByNames(rev, names, langFilter)
	if err != nil {
		return nil, err
	}
	for _, cs := range sites {
		out[cs.SrcNode] = true
	}
	return out, nil
}

func (q *QueryBuilder) taintPath(ids []string) (TaintPath, error) {
	locs, err := q.store.NodeLocations(ids)
	if err != nil {
		return TaintPath{}, err
	}
	p := TaintPath{Nodes: make([]NodeRef, 0, len(ids))}
	for _, id := range ids {
		ref := NodeRef{NodeID: id}
		if loc, ok := locs[id]; ok {
			ref.Location = &loc
		}
		p.Nodes = append(p.Nodes, ref)
	}
	return p, nil
}

func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
