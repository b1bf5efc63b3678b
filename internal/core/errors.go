package core

import "errors"

// Sentinel errors returned by the import pipeline. Callers match them with
// errors.Is; MapError turns them into coded user messages.
var (
	// Service-level errors. When StartImport returns one, no job row exists.
	ErrInvalidMode         = errors.New("invalid import mode")
	ErrDepartmentsRequired = errors.New("departments mode requires at least one department")
	ErrInvalidDepartment   = errors.New("invalid department code")
	ErrSourceUnreadable    = errors.New("source file unreadable")
	ErrSourceNotAllowed    = errors.New("source path outside allowed directories")
	ErrImportConflict      = errors.New("import conflicts with a running import")
	ErrTooManyImports      = errors.New("too many imports in progress")
	ErrUnsupportedEncoding = errors.New("unsupported source encoding")
	ErrServiceShuttingDown = errors.New("import service shutting down")
	ErrImportNotFound      = errors.New("import not found")
	ErrImportNotActive     = errors.New("import is not running in this process")
	ErrJobNotRunning       = errors.New("import job is no longer running")
	ErrImportCancelled     = errors.New("import cancelled")
	ErrMissingHeader       = errors.New("source file has no header row")
	ErrSourceRead          = errors.New("source read failed")

	// ErrInvalidCriteria rejects a prospecting request before any query runs.
	ErrInvalidCriteria = errors.New("invalid prospecting criteria")

	// Row-level errors. These are counted, never fatal.
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrMissingSIRET      = errors.New("missing siret")
	ErrLineTooLong       = errors.New("line exceeds maximum length")

	// ErrMissingKeyColumn is reported, not returned, when a header has no
	// SIRET column: the run completes with every row counted as an error.
	ErrMissingKeyColumn = errors.New("header has no siret column")
)
