package arbor

import (
	"errors"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/resolve"
	"github.com/jward/arbor/internal/store"
)

// Result is the stable envelope every tool-facing operation returns. OK true
// carries Data; OK false carries Error. The split lets callers distinguish
// "no results" (OK with empty data) from "could not compute".
type Result struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the failure payload. Details carries machine-readable
// diagnostics, always including a "kind" drawn from the error taxonomy.
type ErrorInfo struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Result {
	return Result{OK: true, Data: data}
}

// Fail converts err into a failure envelope, classifying known sentinels
// into stable kind strings.
func Fail(err error) Result {
	return Result{OK: false, Error: &ErrorInfo{
		Message: err.Error(),
		Details: map[string]string{"kind": errorKind(err)},
	}}
}

// Envelope folds a typical (data, err) return into a Result.
func Envelope(data any, err error) Result {
	if err != nil {
		return Fail(err)
	}
	return OK(data)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, store.ErrUnknownRevision):
		return "unknown_revision"
	case errors.Is(err, store.ErrNoRevisions):
		return "no_revisions"
	case errors.Is(err, store.ErrNotFound):
		return "missing_artifact"
	case errors.Is(err, resolve.ErrModuleNotFound):
		return "module_not_found"
	case errors.Is(err, resolve.ErrNameNotExported):
		return "name_not_exported"
	case errors.Is(err, resolve.ErrMissingHint):
		return "missing_hint"
	case errors.Is(err, resolve.ErrUnsupportedSpecifier):
		return "unsupported_specifier"
	case errors.Is(err, resolve.ErrContentUnavailable):
		return "content_unavailable"
	case errors.Is(err, lang.ErrUnsupportedLanguage):
		return "unsupported_language"
	case errors.Is(err, lang.ErrParserUnavailable):
		return "parser_unavailable"
	default:
		return "internal"
	}
}
