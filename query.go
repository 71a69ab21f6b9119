package arbor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/sourcesink"
	"github.com/jward/arbor/internal/store"
)

// QueryBuilder serves the read-only tool API over the Store. All methods
// take a revision selector: the empty string means the latest revision, an
// unknown named revision is an error.
type QueryBuilder struct {
	store   *store.Store
	parsers *lang.ParserFactory
	taint   *sourcesink.Tables
}

// SymbolInfo is one symbol hit with its declaration location.
type SymbolInfo struct {
	SymbolID string   `json:"symbol_id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Lang     string   `json:"lang"`
	Location Location `json:"location"`
}

// CallSiteInfo is one call site whose callee name matched a search.
type CallSiteInfo struct {
	SrcNode  string    `json:"src_node"`
	DstName  string    `json:"dst_name"`
	DstSym   string    `json:"dst_symbol,omitempty"`
	Resolved bool      `json:"resolved"`
	Location *Location `json:"location,omitempty"`
}

// SymbolSearchData is the symbol_search payload.
type SymbolSearchData struct {
	Rev       string         `json:"rev"`
	Query     string         `json:"query"`
	Symbols   []SymbolInfo   `json:"symbols"`
	CallSites []CallSiteInfo `json:"callsites"`
}

// SymbolSearch finds declared symbols by name at rev, exact match first and
// a substring match when nothing matches exactly, along with the call sites
// whose callee name equals a matched symbol name.
func (q *QueryBuilder) SymbolSearch(rev, query, langFilter string, limit int) (*SymbolSearchData, error) {
	if query == "" {
		return nil, fmt.Errorf("symbol_search: query is required")
	}
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}

	hits, err := q.store.SymbolsByName(rev, query, langFilter, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		hits, err = q.store.SymbolsLike(rev, "%"+query+"%", langFilter, limit)
		if err != nil {
			return nil, err
		}
	}

	data := &SymbolSearchData{Rev: rev, Query: query, Symbols: []SymbolInfo{}, CallSites: []CallSiteInfo{}}
	nameSet := make(map[string]bool)
	for _, h := range hits {
		data.Symbols = append(data.Symbols, symbolInfo(h))
		nameSet[h.Name] = true
	}
	if len(nameSet) == 0 {
		return data, nil
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sites, err := q.store.CallSitesByNames(rev, names, langFilter)
	if err != nil {
		return nil, err
	}
	srcIDs := make([]string, 0, len(sites))
	for _, cs := range sites {
		srcIDs = append(srcIDs, cs.SrcNode)
	}
	locs, err := q.store.NodeLocations(srcIDs)
	if err != nil {
		return nil, err
	}
	for _, cs := range sites {
		info := CallSiteInfo{SrcNode: cs.SrcNode, DstName: cs.DstName, DstSym: cs.DstSym, Resolved: cs.Resolved}
		if loc, ok := locs[cs.SrcNode]; ok {
			info.Location = &loc
		}
		data.CallSites = append(data.CallSites, info)
	}
	return data, nil
}

// Search runs content search over stored blobs, or a path substring match
// when full-text search is unavailable. The fallback is reduced recall, not
// an error.
func (q *QueryBuilder) Search(query, langFilter string, limit int) ([]SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("search: query is required")
	}
	return q.store.SearchCode(query, langFilter, limit)
}

// SignatureData is the get_signature payload.
type SignatureData struct {
	Rev       string   `json:"rev"`
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Signature string   `json:"signature"`
	Location  Location `json:"location"`
}

// Signature returns the first source line of a node or symbol. IDs carrying
// the "<blob>:<start>-<end>" shape are node ids; anything else is looked up
// as a symbol id.
func (q *QueryBuilder) Signature(rev, id string) (*SignatureData, error) {
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	region, err := q.regionFor(rev, id)
	if err != nil {
		return nil, err
	}
	return &SignatureData{
		Rev: rev, ID: id, Name: region.name, Kind: region.kind,
		Signature: firstLine(region.text),
		Location:  region.loc,
	}, nil
}

var (
	returnRe = regexp.MustCompile(`\breturn\b`)
	throwRe  = regexp.MustCompile(`\b(raise|throw|panic)\b`)
	effectRe = regexp.MustCompile(`\b(print\w*|write\w*|send\w*|exec\w*|system|popen|open|save|delete|update|insert|log\w*)\s*\(|\bglobal\b`)
)

// SummaryData is the cpg_summary payload. The behavior flags are regex
// heuristics over the region's source text, not semantic analysis.
type SummaryData struct {
	Rev            string   `json:"rev"`
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	Signature      string   `json:"signature"`
	HasReturn      bool     `json:"has_return"`
	MayThrow       bool     `json:"may_throw"`
	HasSideEffects bool     `json:"has_side_effects"`
	Location       Location `json:"location"`
}

// Summary builds a cheap behavioral summary of a node or symbol region.
func (q *QueryBuilder) Summary(rev, id string) (*SummaryData, error) {
	rev, err := q.store.RequireRevision(rev)
	if err != nil {
		return nil, err
	}
	region, err := q.regionFor(rev, id)
	if err != nil {
		return nil, err
	}
	return &SummaryData{
		Rev: rev, ID: id, Name: region.name, Kind: region.kind,
		Signature:      firstLine(region.text),
		HasReturn:      returnRe.MatchString(region.text),
		MayThrow:       throwRe.MatchString(region.text),
		HasSideEffects: effectRe.MatchString(region.text),
		Location:       region.loc,
	}, nil
}

// region is a resolved node or symbol: its source text and location.
type region struct {
	name string
	kind string
	text string
	loc  Location
}

func (q *QueryBuilder) regionFor(rev, id string) (*region, error) {
	if isNodeID(id) {
		return q.nodeRegion(id)
	}
	return q.symbolRegion(rev, id)
}

func (q *QueryBuilder) nodeRegion(id string) (*region, error) {
	n, err := q.store.NodeByID(id)
	if err != nil {
		return nil, err
	}
	content, err := q.store.BlobContent(n.BlobHash)
	if err != nil {
		return nil, err
	}
	start, end := n.StartByte, n.EndByte
	if start < 0 || end > int64(len(content)) || start > end {
		return nil, fmt.Errorf("node %s: byte range outside stored blob", id)
	}
	locs, err := q.store.NodeLocations([]string{id})
	if err != nil {
		return nil, err
	}
	loc := locs[id]
	return &region{kind: n.Kind, text: string(content[start:end]), loc: loc}, nil
}

func (q *QueryBuilder) symbolRegion(rev, id string) (*region, error) {
	sym, err := q.store.SymbolAt(rev, id)
	if err != nil {
		return nil, err
	}
	content, err := q.store.BlobContent(sym.BlobHash)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	startIdx, endIdx := sym.StartLine-1, sym.EndLine
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(lines) {
		endIdx = len(lines)
	}
	if startIdx >= endIdx {
		startIdx, endIdx = 0, 0
	}
	return &region{
		name: sym.Name,
		kind: sym.Kind,
		text: strings.Join(lines[startIdx:endIdx], "\n"),
		loc: Location{
			FilePath:  sym.Path,
			StartLine: sym.StartLine, StartCol: sym.StartCol,
			EndLine: sym.EndLine, EndCol: sym.EndCol,
		},
	}, nil
}

func isNodeID(id string) bool {
	colon := strings.Index(id, ":")
	return colon > 0 && strings.Contains(id[colon:], "-")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func symbolInfo(h store.SymbolHit) SymbolInfo {
	return SymbolInfo{
		SymbolID: h.SymbolID,
		Name:     h.Name,
		Kind:     h.Kind,
		Lang:     h.Lang,
		Location: Location{
			FilePath:  h.Path,
			StartLine: h.StartLine, StartCol: h.StartCol,
			EndLine: h.EndLine, EndCol: h.EndCol,
		},
	}
}
