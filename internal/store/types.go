package store

// Revision is a named snapshot of the repository. BaseRev is informational
// lineage, not an enforced reference.
type Revision struct {
	Rev       string
	BaseRev   string
	CreatedAt string
}

// File is a stable path row; artifacts hang off (blob_hash, file_id).
type File struct {
	FileID int64
	Path   string
	Lang   string
}

// FileVersion maps one revision of one file to its content blob.
type FileVersion struct {
	Rev      string
	FileID   int64
	BlobHash string
	Size     int64
	MTime    int64
}

// Node is one persisted syntax node. Attrs is a JSON object string.
type Node struct {
	NodeID    string
	BlobHash  string
	FileID    int64
	Lang      string
	Kind      string
	StartByte int64
	EndByte   int64
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Attrs     string
}

// Edge is one persisted directed edge. Dst holds a symbol or node id for
// resolved relations and a bare callee name for unresolved CALL edges.
type Edge struct {
	BlobHash string
	FileID   int64
	Src      string
	Dst      string
	Kind     string
	Attrs    string
}

// Symbol is one persisted declaration.
type Symbol struct {
	SymbolID  string
	BlobHash  string
	FileID    int64
	Lang      string
	Name      string
	Kind      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Attrs     string
}

// Call is one persisted call site. DstSymbol is NULL until ResolveCalls
// matches DstName against the symbol table.
type Call struct {
	BlobHash  string
	FileID    int64
	SrcNode   string
	DstName   string
	DstSymbol *string
	Resolved  bool
	Attrs     string
}

// Location is the 1-indexed position payload attached to query results.
type Location struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CallSite is a call row joined with its file for language scoping.
type CallSite struct {
	SrcNode  string
	DstName  string
	DstSym   string
	Resolved bool
	Path     string
	Lang     string
}

// SearchHit is one content (or path fallback) search result.
type SearchHit struct {
	Path    string `json:"path"`
	Lang    string `json:"lang"`
	Snippet string `json:"snippet,omitempty"`
}

// Stats reports per-table row counts after an indexing run.
type Stats struct {
	Files        int64 `json:"files"`
	FileVersions int64 `json:"file_versions"`
	Blobs        int64 `json:"blobs"`
	Nodes        int64 `json:"nodes"`
	Edges        int64 `json:"edges"`
	Symbols      int64 `json:"symbols"`
	Calls        int64 `json:"calls"`
}
