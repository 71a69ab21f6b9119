package arbor

import (
	"github.com/jward/arbor/internal/resolve"
	"github.com/jward/arbor/internal/store"
)

// Public type aliases for internal types surfaced through the query API.
// These are Go type aliases (=), identical to the internal types at compile
// time, so external consumers never convert.

type Store = store.Store
type Stats = store.Stats
type Location = store.Location
type Revision = store.Revision
type SymbolHit = store.SymbolHit
type SearchHit = store.SearchHit
type CallSite = store.CallSite
type StoreEdge = store.Edge

type ResolveRequest = resolve.Request
type Proof = resolve.Proof
type Match = resolve.Match
