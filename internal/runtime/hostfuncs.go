package runtime

import (
	"context"

	"github.com/risor-io/risor/object"

	"github.com/jward/arbor/internal/store"
)

// Host functions wrap Store read methods. Risor scripts pass primitives and
// get back plain maps and lists, so results print and iterate naturally.

// makeLatestRevFn creates "latest_rev" -> string.
func makeLatestRevFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("latest_rev", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("latest_rev", 0, len(args))
		}
		rev, err := s.LatestRevision()
		if err != nil {
			return object.Errorf("latest_rev: %v", err)
		}
		return object.NewString(rev)
	})
}

// makeRevisionsFn creates "revisions" -> list of maps.
func makeRevisionsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("revisions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("revisions", 0, len(args))
		}
		revs, err := s.Revisions()
		if err != nil {
			return object.Errorf("revisions: %v", err)
		}
		out := make([]object.Object, 0, len(revs))
		for _, r := range revs {
			out = append(out, object.NewMap(map[string]object.Object{
				"rev":        object.NewString(r.Rev),
				"base_rev":   object.NewString(r.BaseRev),
				"created_at": object.NewString(r.CreatedAt),
			}))
		}
		return object.NewList(out)
	})
}

// makeSymbolSearchFn creates "symbol_search".
//
// symbol_search(rev, name) or symbol_search(rev, name, lang, limit)
// -> list of symbol maps. Falls back to substring match when no exact hit.
func makeSymbolSearchFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbol_search", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 && len(args) != 4 {
			return object.NewArgsError("symbol_search", 2, len(args))
		}
		rev, errObj := argString("symbol_search", "rev", args[0])
		if errObj != nil {
			return errObj
		}
		name, errObj := argString("symbol_search", "name", args[1])
		if errObj != nil {
			return errObj
		}
		var langFilter string
		var limit int64
		if len(args) == 4 {
			if langFilter, errObj = argString("symbol_search", "lang", args[2]); errObj != nil {
				return errObj
			}
			if limit, errObj = argInt("symbol_search", "limit", args[3]); errObj != nil {
				return errObj
			}
		}

		rev, err := s.RequireRevision(rev)
		if err != nil {
			return object.Errorf("symbol_search: %v", err)
		}
		hits, err := s.SymbolsByName(rev, name, langFilter, int(limit))
		if err != nil {
			return object.Errorf("symbol_search: %v", err)
		}
		if len(hits) == 0 {
			hits, err = s.SymbolsLike(rev, "%"+name+"%", langFilter, int(limit))
			if err != nil {
				return object.Errorf("symbol_search: %v", err)
			}
		}
		out := make([]object.Object, 0, len(hits))
		for _, h := range hits {
			out = append(out, object.NewMap(map[string]object.Object{
				"symbol_id":  object.NewString(h.SymbolID),
				"name":       object.NewString(h.Name),
				"kind":       object.NewString(h.Kind),
				"lang":       object.NewString(h.Lang),
				"path":       object.NewString(h.Path),
				"start_line": object.NewInt(int64(h.StartLine)),
				"start_col":  object.NewInt(int64(h.StartCol)),
				"end_line":   object.NewInt(int64(h.EndLine)),
				"end_col":    object.NewInt(int64(h.EndCol)),
			}))
		}
		return object.NewList(out)
	})
}

// makeNeighborsFn creates "neighbors".
//
// neighbors(rev, ids, direction, kinds, limit) -> list of edge maps.
// An empty kinds list means all edge kinds.
func makeNeighborsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("neighbors", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 5 {
			return object.NewArgsError("neighbors", 5, len(args))
		}
		rev, errObj := argString("neighbors", "rev", args[0])
		if errObj != nil {
			return errObj
		}
		ids, errObj := argStringList("neighbors", "ids", args[1])
		if errObj != nil {
			return errObj
		}
		direction, errObj := argString("neighbors", "direction", args[2])
		if errObj != nil {
			return errObj
		}
		kinds, errObj := argStringList("neighbors", "kinds", args[3])
		if errObj != nil {
			return errObj
		}
		limit, errObj := argInt("neighbors", "limit", args[4])
		if errObj != nil {
			return errObj
		}

		rev, err := s.RequireRevision(rev)
		if err != nil {
			return object.Errorf("neighbors: %v", err)
		}
		edges, err := s.NeighborsRev(rev, ids, direction, kinds, int(limit))
		if err != nil {
			return object.Errorf("neighbors: %v", err)
		}
		out := make([]object.Object, 0, len(edges))
		for _, e := range edges {
			out = append(out, object.NewMap(map[string]object.Object{
				"src":   object.NewString(e.Src),
				"dst":   object.NewString(e.Dst),
				"kind":  object.NewString(e.Kind),
				"attrs": object.NewString(e.Attrs),
			}))
		}
		return object.NewList(out)
	})
}

// makeCallSitesFn creates "callsites".
//
// callsites(rev, names, lang) -> list of call-site maps.
func makeCallSitesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("callsites", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("callsites", 3, len(args))
		}
		rev, errObj := argString("callsites", "rev", args[0])
		if errObj != nil {
			return errObj
		}
		names, errObj := argStringList("callsites", "names", args[1])
		if errObj != nil {
			return errObj
		}
		langFilter, errObj := argString("callsites", "lang", args[2])
		if errObj != nil {
			return errObj
		}

		rev, err := s.RequireRevision(rev)
		if err != nil {
			return object.Errorf("callsites: %v", err)
		}
		sites, err := s.CallSitesByNames(rev, names, langFilter)
		if err != nil {
			return object.Errorf("callsites: %v", err)
		}
		out := make([]object.Object, 0, len(sites))
		for _, cs := range sites {
			out = append(out, object.NewMap(map[string]object.Object{
				"src_node":   object.NewString(cs.SrcNode),
				"dst_name":   object.NewString(cs.DstName),
				"dst_symbol": object.NewString(cs.DstSym),
				"resolved":   object.NewBool(cs.Resolved),
				"path":       object.NewString(cs.Path),
				"lang":       object.NewString(cs.Lang),
			}))
		}
		return object.NewList(out)
	})
}

// makeNodeLocationsFn creates "node_locations".
//
// node_locations(ids) -> map of id -> location map.
func makeNodeLocationsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("node_locations", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_locations", 1, len(args))
		}
		ids, errObj := argStringList("node_locations", "ids", args[0])
		if errObj != nil {
			return errObj
		}
		locs, err := s.NodeLocations(ids)
		if err != nil {
			return object.Errorf("node_locations: %v", err)
		}
		out := make(map[string]object.Object, len(locs))
		for id, loc := range locs {
			out[id] = locationMap(loc)
		}
		return object.NewMap(out)
	})
}

// makeSearchCodeFn creates "search_code".
//
// search_code(query, lang, limit) -> list of hit maps.
func makeSearchCodeFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("search_code", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("search_code", 3, len(args))
		}
		query, errObj := argString("search_code", "query", args[0])
		if errObj != nil {
			return errObj
		}
		langFilter, errObj := argString("search_code", "lang", args[1])
		if errObj != nil {
			return errObj
		}
		limit, errObj := argInt("search_code", "limit", args[2])
		if errObj != nil {
			return errObj
		}
		hits, err := s.SearchCode(query, langFilter, int(limit))
		if err != nil {
			return object.Errorf("search_code: %v", err)
		}
		out := make([]object.Object, 0, len(hits))
		for _, h := range hits {
			out = append(out, object.NewMap(map[string]object.Object{
				"path":    object.NewString(h.Path),
				"lang":    object.NewString(h.Lang),
				"snippet": object.NewString(h.Snippet),
			}))
		}
		return object.NewList(out)
	})
}

// makeBlobContentFn creates "blob_content".
//
// blob_content(hash) -> string.
func makeBlobContentFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("blob_content", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("blob_content", 1, len(args))
		}
		hash, errObj := argString("blob_content", "hash", args[0])
		if errObj != nil {
			return errObj
		}
		content, err := s.BlobContent(hash)
		if err != nil {
			return object.Errorf("blob_content: %v", err)
		}
		return object.NewString(string(content))
	})
}

// makeStatsFn creates "stats" -> map of table row counts.
func makeStatsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("stats", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("stats", 0, len(args))
		}
		st, err := s.Stats()
		if err != nil {
			return object.Errorf("stats: %v", err)
		}
		return object.NewMap(map[string]object.Object{
			"files":         object.NewInt(st.Files),
			"file_versions": object.NewInt(st.FileVersions),
			"blobs":         object.NewInt(st.Blobs),
			"nodes":         object.NewInt(st.Nodes),
			"edges":         object.NewInt(st.Edges),
			"symbols":       object.NewInt(st.Symbols),
			"calls":         object.NewInt(st.Calls),
		})
	})
}

func locationMap(loc store.Location) *object.Map {
	return object.NewMap(map[string]object.Object{
		"file_path":  object.NewString(loc.FilePath),
		"start_line": object.NewInt(int64(loc.StartLine)),
		"start_col":  object.NewInt(int64(loc.StartCol)),
		"end_line":   object.NewInt(int64(loc.EndLine)),
		"end_col":    object.NewInt(int64(loc.EndCol)),
	})
}

func argString(fn, param string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, param, arg.Type())
	}
	return s.Value(), nil
}

func argInt(fn, param string, arg object.Object) (int64, *object.Error) {
	n, ok := arg.(*object.Int)
	if !ok {
		return 0, object.Errorf("%s: %s must be an int, got %s", fn, param, arg.Type())
	}
	return n.Value(), nil
}

func argStringList(fn, param string, arg object.Object) ([]string, *object.Error) {
	list, ok := arg.(*object.List)
	if !ok {
		return nil, object.Errorf("%s: %s must be a list, got %s", fn, param, arg.Type())
	}
	items := list.Value()
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(*object.String)
		if !ok {
			return nil, object.Errorf("%s: %s must contain strings, got %s", fn, param, item.Type())
		}
		out = append(out, s.Value())
	}
	return out, nil
}
