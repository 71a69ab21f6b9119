package arbor

import (
	"fmt"

	"github.com/jward/arbor/internal/cpg"
	"github.com/jward/arbor/internal/store"
)

// Traversal bounds shared by the store-backed graph queries.
const (
	DefaultMaxNodes     = 500
	DefaultPerNodeLimit = 200
	DefaultGraphDepth   = 2
)

// DefaultEdgeKinds is the slice and BFS allow-list when the caller does not
// narrow it.
func DefaultEdgeKinds() []string {
	return []string{cpg.EdgeDDG, cpg.EdgeCFG, cpg.EdgeCFGBranch, cpg.EdgeCall, cpg.EdgeIPCall, cpg.EdgeIPRet}
}

// CallgraphEdgeKinds is the call-graph traversal allow-list.
func CallgraphEdgeKinds() []string {
	return []string{cpg.EdgeCall, cpg.EdgeIPCall, cpg.EdgeIPRet}
}

// CFGEdgeKinds is the control-flow-region traversal allow-list.
func CFGEdgeKinds() []string {
	return []string{cpg.EdgeCFG, cpg.EdgeCFGBranch}
}

// GraphOptions bounds a store-backed traversal. Zero values take defaults.
type GraphOptions struct {
	EdgeKinds    []string
	MaxNodes     int
	PerNodeLimit int
}

func (o GraphOptions) withDefaults(kinds []string) GraphOptions {
	if len(o.EdgeKinds) == 0 {
		o.EdgeKinds = kinds
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.PerNodeLimit <= 0 {
		o.PerNodeLimit = DefaultPerNodeLimit
	}
	return o
}

// NodeRef is one visited node with its location when known.
type NodeRef struct {
	NodeID   string    `json:"node_id"`
	Location *Location `json:"location,omitempty"`
}

// EdgeRef is one traversed edge.
type EdgeRef struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Kind string `json:"kind"`
}

// GraphData is the payload shared by cpg_query_forward/backward, cpg_slice,
// cpg_callgraph, and cpg_cfg_region: the visited nodes in discovery order
// and the edges traversed to reach them.
type GraphData struct {
	Rev       string    `json:"rev"`
	Direction string    `json:"direction"`
	Nodes     []NodeRef `json:"nodes"`
	Edges     []EdgeRef `json:"edges"`
	Truncated bool      `json:"truncated"`
}

// ReachabilityData is the cpg_reachability payload. Path is the shortest
// path by edge count from source to target, empty when unreachable.
type ReachabilityData struct {
	Rev       string    `json:"rev"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Reachable bool      `json:"reachable"`
	Path      []NodeRef `json:"path"`
	PathEdges []EdgeRef `json:"path_edges"`
}

// bfsState is one store-backed BFS run. Parent pointers are kept so callers
// can reconstruct a shortest path by edge count.
type bfsState struct {
	order      []string
	seen       map[string]bool
	parent     map[string]string
	parentEdge map[string]EdgeRef
	edges      []EdgeRef
	truncated  bool
}

// bfs explores from start following edges in direction, bounded by opt.
// maxDepth < 0 means unbounded (the node cap still applies). stopAt, when
// non-empty, ends the search as soon as any member is discovered and returns
// its id.
func (q *QueryBuilder) bfs(rev string, start []string, direction string, opt GraphOptions, maxDepth int, stopAt map[string]bool) (*bfsState, string, error) {
	st := &bfsState{
		seen:       make(map[string]bool),
		parent:     make(map[string]string),
		parentEdge: make(map[string]EdgeRef),
	}
	type frontierNode struct {
		id    string
		depth int
	}
	var frontier []frontierNode
	for _, id := range start {
		if st.seen[id] {
			continue
		}
		st.seen[id] = true
		st.order = append(st.order, id)
		if stopAt[id] {
			return st, id, nil
		}
		frontier = append(frontier, frontierNode{id: id})
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if maxDepth >= 0 && cur.depth >= maxDepth {
			continue
		}
		edges, err := q.store.NeighborsRev(rev, []string{cur.id}, direction, opt.EdgeKinds, opt.PerNodeLimit)
		if err != nil {
			return nil, "", err
		}
		for _, e := range edges {
			next := e.Dst
			if direction == store.DirIn {
				next = e.Src
			}
			st.edges = append(st.edges, EdgeRef{Src: e.Src, Dst: e.Dst, Kind: e.Kind})
			if st.seen[next] {
				continue
			}
			if len(st.order) >= opt.MaxNodes {
				st.truncated = true
				return st, "", nil
			}
			st.seen[next] = true
			st.order = append(st.order, next)
			st.parent[next] = cur.id
			st.parentEdge[next] = EdgeRef{Src: e.Src, Dst: e.Dst, Kind: e.Kind}
			if stopAt[next] {
				return st, next, nil
			}
			frontier = append(frontier, frontierNode{id: next, depth: cur.depth + 1})
		}
	}
	return st, "", nil
}

// graphData decorates a finished BFS with node locations.
func (q *QueryBuilder) graphData(rev, direction string, st *bfsState) (*GraphData, error) {
	locs, err := q.store.NodeLocations(st.order)
	if err != nil {
		return nil, err
	}
	data := &GraphData{Rev: rev, Direction: direction, Nodes: []NodeRef{}, Edges: st.edges, Truncated: st.truncated}
	if data.Edges == nil {
		data.Edges = []EdgeRef{}
	}
	for _, id := range st.order {
		ref := NodeRef{NodeID: id}
		if loc, ok := locs[id]; ok {
			ref.Location = &loc
		}
		data.Nodes = append(data.Nodes, ref)
	}
	return data, nil
}

// QueryForward runs a bounded BFS along outgoing edges from the given nodes.
func (q *QueryBuilder) QueryForward(rev string, nodeIDs []string, opt GraphOptions) (*GraphData, error) {
	return q.query(rev, nodeIDs, store.DirOut, opt)
}

// QueryBackward runs a bounded BFS along incoming edges from the given nodes.
func (q *QueryBuilder) QueryBackward(rev string, nodeIDs []string, opt GraphOptions) (*GraphData, error) {
	return q.query(rev, nodeIDs, store.DirIn, opt)
}

func (q *QueryBuilder) query(rev string, nodeIDs []string, direction string, opt GraphOptions) (*GraphData, error) {
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("graph query: at least one node id is required")
	}
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	st, _, err := q.bfs(rev, nodeIDs, direction, opt.withDefaults(DefaultEdgeKinds()), -1, nil)
	if err != nil {
		return nil, err
	}
	return q.graphData(rev, direction, st)
}

// Slice computes a store-backed program slice: the nodes reachable from the
// criteria along the configured edge kinds, forward or backward.
func (q *QueryBuilder) Slice(rev string, criteria []string, direction string, opt GraphOptions) (*GraphData, error) {
	dir, err := parseDirection(direction)
	if err != nil {
		return nil, err
	}
	return q.query(rev, criteria, dir, opt)
}

// Reachability reports whether target is reachable from source and, when it
// is, the shortest path by edge count.
func (q *QueryBuilder) Reachability(rev, source, target string, opt GraphOptions) (*ReachabilityData, error) {
	if source == "" || target == "" {
		return nil, fmt.Errorf("reachability: source and target are required")
	}
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	st, found, err := q.bfs(rev, []string{source}, store.DirOut, opt.withDefaults(DefaultEdgeKinds()), -1, map[string]bool{target: true})
	if err != nil {
		return nil, err
	}
	data := &ReachabilityData{Rev: rev, Source: source, Target: target, Path: []NodeRef{}, PathEdges: []EdgeRef{}}
	if found == "" {
		return data, nil
	}
	data.Reachable = true

	var ids []string
	for id := found; ; {
		ids = append(ids, id)
		p, ok := st.parent[id]
		if !ok {
			break
		}
		data.PathEdges = append(data.PathEdges, st.parentEdge[id])
		id = p
	}
	// Parent pointers run target-to-source; present the path forward.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	for i, j := 0, len(data.PathEdges)-1; i < j; i, j = i+1, j-1 {
		data.PathEdges[i], data.PathEdges[j] = data.PathEdges[j], data.PathEdges[i]
	}
	locs, err := q.store.NodeLocations(ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		ref := NodeRef{NodeID: id}
		if loc, ok := locs[id]; ok {
			ref.Location = &loc
		}
		data.Path = append(data.Path, ref)
	}
	return data, nil
}

// Callgraph explores call-shaped edges from a node or symbol id up to depth
// hops. Direction out follows callees, in follows callers.
func (q *QueryBuilder) Callgraph(rev, id, direction string, depth int, opt GraphOptions) (*GraphData, error) {
	return q.depthQuery(rev, id, direction, depth, opt, CallgraphEdgeKinds())
}

// CFGRegion explores the control-flow neighborhood of a node up to depth
// hops along CFG and CFG_BRANCH edges.
func (q *QueryBuilder) CFGRegion(rev, id, direction string, depth int, opt GraphOptions) (*GraphData, error) {
	return q.depthQuery(rev, id, direction, depth, opt, CFGEdgeKinds())
}

func (q *QueryBuilder) depthQuery(rev, id, direction string, depth int, opt GraphOptions, kinds []string) (*GraphData, error) {
	if id == "" {
		return nil, fmt.Errorf("graph query: node or symbol id is required")
	}
	dir, err := parseDirection(direction)
	if err != nil {
		return nil, err
	}
	rev, err = q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = DefaultGraphDepth
	}
	st, _, err := q.bfs(rev, []string{id}, dir, opt.withDefaults(kinds), depth, nil)
	if err != nil {
		return nil, err
	}
	return q.graphData(rev, dir, st)
}

func parseDirection(direction string) (string, error) {
	switch direction {
	case "", "out", "forward":
		return store.DirOut, nil
	case "in", "backward":
		return store.DirIn, nil
	default:
		return "", fmt.Errorf("graph query: direction must be \"out\" or \"in\", got %q", direction)
	}
}
