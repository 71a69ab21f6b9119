package cpg

// DefaultEdgePolicy lists the edge kinds a slice follows unless the caller
// narrows them.
func DefaultEdgePolicy() []string {
	return []string{EdgeDDG, EdgeCFG, EdgeCFGBranch, EdgeIPCall, EdgeIPRet, EdgeCall}
}

// SliceOptions bounds a slice traversal.
type SliceOptions struct {
	EdgeKinds    []string // nil means DefaultEdgePolicy
	MaxNodes     int      // total visited cap, default 500
	PerNodeLimit int      // neighbors expanded per node, default 200
}

func (o SliceOptions) withDefaults() SliceOptions {
	if o.EdgeKinds == nil {
		o.EdgeKinds = DefaultEdgePolicy()
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = 500
	}
	if o.PerNodeLimit <= 0 {
		o.PerNodeLimit = 200
	}
	return o
}

// ForwardSlice returns node ids reachable from the criteria along outgoing
// edges of the allowed kinds, in BFS discovery order, bounded by MaxNodes.
func ForwardSlice(g *Graph, criteria []string, opt SliceOptions) []string {
	return slice(g, criteria, opt, false)
}

// BackwardSlice is ForwardSlice over incoming edges.
func BackwardSlice(g *Graph, criteria []string, opt SliceOptions) []string {
	return slice(g, criteria, opt, true)
}

func slice(g *Graph, criteria []string, opt SliceOptions, reverse bool) []string {
	opt = opt.withDefaults()
	kinds := make(map[string]bool, len(opt.EdgeKinds))
	for _, k := range opt.EdgeKinds {
		kinds[k] = true
	}
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if !kinds[e.Kind] {
			continue
		}
		if reverse {
			adj[e.Dst] = append(adj[e.Dst], e.Src)
		} else {
			adj[e.Src] = append(adj[e.Src], e.Dst)
		}
	}

	seen := make(map[string]bool)
	var order []string
	queue := make([]string, 0, len(criteria))
	for _, id := range criteria {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 && len(order) < opt.MaxNodes {
		id := queue[0]
		queue = queue[1:]
		expanded := 0
		for _, next := range adj[id] {
			if expanded >= opt.PerNodeLimit || len(order) >= opt.MaxNodes {
				break
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			order = append(order, next)
			queue = append(queue, next)
			expanded++
		}
	}
	if len(order) > opt.MaxNodes {
		order = order[:opt.MaxNodes]
	}
	return order
}
