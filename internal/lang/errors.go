package lang

import "errors"

// ErrUnsupportedLanguage is returned by Normalize for identifiers outside the
// supported set. Callers must treat it as a hard failure, never substitute a
// default language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrParserUnavailable is returned when no grammar can be resolved for a
// supported language. The wrapped message lists every strategy attempted.
var ErrParserUnavailable = errors.New("parser unavailable")
