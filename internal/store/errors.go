package store

import "errors"

// ErrNoRevisions means the database holds no revision rows yet.
var ErrNoRevisions = errors.New("no revisions indexed")

// ErrUnknownRevision means an explicitly named revision does not exist. It is
// a hard failure; queries never silently substitute another revision.
var ErrUnknownRevision = errors.New("unknown revision")

// ErrNotFound covers missing artifacts: a file absent at a revision, a blob
// without stored content, a node or symbol id with no row.
var ErrNotFound = errors.New("not found")
