package arbor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jward/arbor/internal/cpg"
	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/scan"
	"github.com/jward/arbor/internal/store"
)

// fileWork holds everything a parse worker needs for one file.
type fileWork struct {
	path     string // slash-separated, relative to the repo root
	lang     lang.Lang
	content  []byte
	blobHash string
	fileID   int64
}

// builtFile is one worker's output, ready for the serial commit phase.
type builtFile struct {
	work fileWork
	arts store.Artifacts
}

// IndexRepository indexes one repository snapshot as revision rev using a
// three-phase pipeline:
//
//	Phase A (serial):   scan, read, hash, upsert file and version rows.
//	Phase B (parallel): parse and build per-file graphs in a worker pool.
//	Phase C (serial):   persist artifacts, then resolve calls once globally.
//
// Files whose content blob already has artifacts are skipped entirely, which
// makes re-indexing unchanged content a no-op. A file that fails to parse is
// logged and skipped; a failure to persist artifacts aborts the revision.
// The whole run executes inside one transaction, so a failure partway leaves
// no half-indexed revision behind. Concurrent runs against the same database
// are serialized by an advisory file lock.
func (e *Engine) IndexRepository(ctx context.Context, repoRoot, rev, baseRev string) (Stats, error) {
	if rev == "" {
		return Stats{}, fmt.Errorf("arbor: rev is required")
	}
	if err := e.store.Lock(); err != nil {
		return Stats{}, fmt.Errorf("arbor: acquire index lock: %w", err)
	}
	defer e.store.Unlock()

	groups, err := scan.Scan(repoRoot, e.scanConfig())
	if err != nil {
		return Stats{}, fmt.Errorf("arbor: scan %s: %w", repoRoot, err)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("arbor: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := e.store.BeginRevision(tx, rev, baseRev); err != nil {
		return Stats{}, fmt.Errorf("arbor: record revision: %w", err)
	}

	// ---- Phase A: serial file preparation ----
	langs := make([]lang.Lang, 0, len(groups))
	for l := range groups {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	fingerprint := make(map[string]string)
	seenBlobs := make(map[string]bool)
	var work []fileWork
	for _, l := range langs {
		for _, p := range groups[l] {
			abs := filepath.Join(repoRoot, filepath.FromSlash(p))
			content, err := os.ReadFile(abs)
			if err != nil {
				slog.Warn("skipping unreadable file", "path", p, "error", err)
				continue
			}
			blobHash := store.ContentHash(content)
			fingerprint[p] = blobHash

			fileID, err := e.store.UpsertFile(tx, p, string(l))
			if err != nil {
				return Stats{}, fmt.Errorf("arbor: upsert file %s: %w", p, err)
			}
			var mtime int64
			if fi, err := os.Stat(abs); err == nil {
				mtime = fi.ModTime().Unix()
			}
			if err := e.store.UpsertFileVersion(tx, rev, fileID, blobHash, int64(len(content)), mtime); err != nil {
				return Stats{}, fmt.Errorf("arbor: upsert version %s: %w", p, err)
			}
			if e.storeBlobs {
				if err := e.store.UpsertBlob(tx, blobHash, content); err != nil {
					return Stats{}, fmt.Errorf("arbor: upsert blob %s: %w", p, err)
				}
			}

			done, err := e.store.HasBlobArtifacts(tx, blobHash)
			if err != nil {
				return Stats{}, fmt.Errorf("arbor: check artifacts %s: %w", p, err)
			}
			if done || seenBlobs[blobHash] {
				continue
			}
			seenBlobs[blobHash] = true
			work = append(work, fileWork{path: p, lang: l, content: content, blobHash: blobHash, fileID: fileID})
		}
	}

	// ---- Phase B: parallel parse and build ----
	built := make([]*builtFile, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, w := range work {
		g.Go(func() error {
			tree, err := e.parsers.Parse(gctx, w.lang, w.content)
			if err != nil {
				slog.Warn("parse failed, skipping file", "path", w.path, "lang", w.lang, "error", err)
				return nil
			}
			defer tree.Close()

			pf := cpg.ParsedFile{Path: w.path, Lang: w.lang, BlobHash: w.blobHash, Source: w.content, Tree: tree}
			graph := cpg.NewBuilder(e.taint).Build([]cpg.ParsedFile{pf}, false)
			cpg.BuildDefUse(graph, pf)
			built[i] = &builtFile{work: w, arts: toArtifacts(w, graph)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	// ---- Phase C: serial commit ----
	for _, b := range built {
		if b == nil {
			continue
		}
		if err := e.store.PutFileArtifacts(tx, b.work.blobHash, b.work.fileID, b.arts); err != nil {
			return Stats{}, fmt.Errorf("arbor: persist artifacts for %s: %w", b.work.path, err)
		}
	}

	if err := e.store.ResolveCalls(tx, ""); err != nil {
		return Stats{}, fmt.Errorf("arbor: resolve calls: %w", err)
	}
	if err := e.store.SetMeta(tx, "fingerprint:"+rev, store.RepoFingerprint(fingerprint)); err != nil {
		return Stats{}, fmt.Errorf("arbor: record fingerprint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("arbor: commit revision %s: %w", rev, err)
	}
	committed = true

	stats, err := e.store.Stats()
	if err != nil {
		return Stats{}, fmt.Errorf("arbor: stats: %w", err)
	}
	return stats, nil
}

// toArtifacts converts one file's in-memory graph into store rows.
func toArtifacts(w fileWork, g *cpg.Graph) store.Artifacts {
	arts := store.Artifacts{Path: w.path, Lang: string(w.lang), Content: w.content}

	nodeIDs := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	for _, id := range nodeIDs {
		n := g.Nodes[id]
		startByte, endByte := nodeByteRange(id)
		arts.Nodes = append(arts.Nodes, store.Node{
			NodeID: id, BlobHash: w.blobHash, FileID: w.fileID,
			Lang: string(n.Lang), Kind: n.Kind,
			StartByte: startByte, EndByte: endByte,
			StartLine: n.Span.StartLine, StartCol: n.Span.StartCol,
			EndLine: n.Span.EndLine, EndCol: n.Span.EndCol,
			Attrs: attrsJSON(n.Attrs),
		})
	}

	for _, ed := range g.Edges {
		arts.Edges = append(arts.Edges, store.Edge{
			BlobHash: w.blobHash, FileID: w.fileID,
			Src: ed.Src, Dst: ed.Dst, Kind: ed.Kind, Attrs: attrsJSON(ed.Attrs),
		})
	}

	symIDs := make([]string, 0, len(g.Symbols))
	for id := range g.Symbols {
		symIDs = append(symIDs, id)
	}
	sort.Strings(symIDs)
	for _, id := range symIDs {
		s := g.Symbols[id]
		arts.Symbols = append(arts.Symbols, store.Symbol{
			SymbolID: id, BlobHash: w.blobHash, FileID: w.fileID,
			Lang: string(s.Lang), Name: s.Name, Kind: s.Kind,
			StartLine: s.Span.StartLine, StartCol: s.Span.StartCol,
			EndLine: s.Span.EndLine, EndCol: s.Span.EndCol,
			Attrs: "{}",
		})
	}

	for _, c := range g.Calls {
		sc := store.Call{
			BlobHash: w.blobHash, FileID: w.fileID,
			SrcNode: c.Src, DstName: c.DstName,
			Resolved: c.Resolved, Attrs: attrsJSON(c.Attrs),
		}
		if c.Resolved && c.DstSym != "" {
			dst := c.DstSym
			sc.DstSymbol = &dst
		}
		arts.Calls = append(arts.Calls, sc)
	}
	return arts
}

// nodeByteRange reads the byte offsets back out of a "<blob>:<start>-<end>"
// node id.
func nodeByteRange(id string) (int64, int64) {
	_, span, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0
	}
	s, e, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0
	}
	start, _ := strconv.ParseInt(s, 10, 64)
	end, _ := strconv.ParseInt(e, 10, 64)
	return start, end
}

func attrsJSON(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}
