package core

// error_messages.go maps import errors to coded messages for operators.
//
// # Error Codes Reference
//
// Import errors (IMP001-IMP099):
//
//	IMP001 - Import cancelled
//	IMP002 - Too many imports running
//	IMP003 - Import not found
//	IMP004 - Conflicting import running (full imports need sole access)
//	IMP005 - Service shutting down
//	IMP006 - Import not running on this instance
//	IMP007 - Import already finished or abandoned
//
// Source file errors (FILE001-FILE099):
//
//	FILE001 - File missing or unreadable
//	FILE002 - Path outside the allowed import directories
//	FILE003 - No header row
//	FILE005 - Unsupported encoding
//	FILE006 - Read failure mid-stream
//
// Request validation (VAL001-VAL099):
//
//	VAL001 - Unknown import mode
//	VAL002 - Departments mode without departments
//	VAL003 - Malformed department code
//	VAL004 - Invalid prospecting criteria
//
// Database errors (DB001-DB099) are matched on the driver message:
//
//	DB001 - Unique violation
//	DB002 - Connection refused
//	DB003 - Connection reset
//	DB004 - Timeout
//	DB005 - Deadlock
//	DB006 - Database locked (SQLite)
//	DB007 - Too many connections
//
// Request errors (REQ001-REQ002) cover context cancellation and deadlines.
// ERR000 is the fallback; check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// sentinelMessages is checked first, with errors.Is, in order.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrImportCancelled, UserMessage{"Import was cancelled", "Start a new import when ready", "IMP001"}},
	{ErrTooManyImports, UserMessage{"Too many imports are running", "Wait for a running import to finish and try again", "IMP002"}},
	{ErrImportNotFound, UserMessage{"Import not found", "Check the import id", "IMP003"}},
	{ErrImportConflict, UserMessage{"Another import is using the registry", "Wait for it to finish; full imports need sole access", "IMP004"}},
	{ErrServiceShuttingDown, UserMessage{"The import service is shutting down", "Restart the import once the service is back", "IMP005"}},
	{ErrImportNotActive, UserMessage{"Import is not running on this instance", "Cancel it from the instance that started it", "IMP006"}},
	{ErrJobNotRunning, UserMessage{"Import is no longer running", "Check its final status", "IMP007"}},

	{ErrSourceUnreadable, UserMessage{"Source file is missing or unreadable", "Check the path and file permissions on the importer host", "FILE001"}},
	{ErrSourceNotAllowed, UserMessage{"Source path is outside the allowed directories", "Move the file under IMPORT_ALLOWED_DIRS", "FILE002"}},
	{ErrMissingHeader, UserMessage{"Source file has no header row", "Provide a registry extract with its header line", "FILE003"}},
	{ErrUnsupportedEncoding, UserMessage{"Unsupported source encoding", "Use utf-8, latin1 or windows-1252", "FILE005"}},
	{ErrSourceRead, UserMessage{"Reading the source file failed", "Check the file and the disk, then retry", "FILE006"}},

	{ErrInvalidMode, UserMessage{"Unknown import mode", "Use full, update or departments", "VAL001"}},
	{ErrDepartmentsRequired, UserMessage{"No department given", "Pass at least one department code, e.g. 59", "VAL002"}},
	{ErrInvalidDepartment, UserMessage{"Malformed department code", "Department codes have two characters, e.g. 59 or 2A", "VAL003"}},
	{ErrInvalidCriteria, UserMessage{"Invalid prospecting criteria", "Check the postal codes, activity codes and limit", "VAL004"}},
}

// errorPattern matches a driver message, case-insensitively.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted when no sentinel matches. First match wins, so
// specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this SIRET already exists", "Use update mode to replace existing records", "DB001"}},
	{"unique constraint", UserMessage{"A record with this SIRET already exists", "Use update mode to replace existing records", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Raise IMPORT_JOB_TIMEOUT or retry later", "REQ002"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"database is locked", UserMessage{"Database file is locked", "Wait for other writers to finish and retry", "DB006"}},
	{"too many connections", UserMessage{"Database has no free connections", "Lower DB_MAX_CONNS or retry later", "DB007"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server logs",
	Code:    "ERR000",
}

// MapError converts an error into a coded message. Sentinels are matched
// through the wrap chain; otherwise the message is searched for a known
// driver pattern. Unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
