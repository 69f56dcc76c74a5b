package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # Typed errors
//
// Errors from the discovery engine carry a type, and the type decides the
// code before any text matching happens:
//
//	WH001   - *source.ConnectionError: the warehouse could not be reached
//	WH002   - warehouse.ErrUnknownDialect: the dialect is not supported
//	SRC001  - *source.NotFoundError: file, table or profile not found
//	SRC002  - ErrInvalidSource: source kind and payload do not agree
//	FILE006 - *source.UnsupportedFormatError: no parser for the format
//	FILE007 - *source.ParseError: bytes do not decode (more specific FILE
//	          codes below win when their pattern matches)
//	IMP001  - *source.ImportError: bulk load stopped part way
//
// # Pattern table
//
// Untyped errors are matched case-insensitively with strings.Contains
// against the table below. The first matching pattern wins, so specific
// patterns come before general ones.
//
//	WH003 - "authentication failed", "login failed"
//	WH004 - "connection refused"
//	WH005 - "connection reset"
//	WH006 - "timeout"
//	SQL001 - "syntax error"
//	SQL002 - "no such table", "does not exist", "doesn't exist"
//	SQL003 - "no such column", "has no column", "invalid column name"
//	FILE001 - "file too large", "request body too large"
//	FILE003 - "encoding error", "unknown encoding"
//	FILE004 - "no file provided"
//	FILE005 - "empty file"
//	FILE008 - "delimiter"
//	UPL002 - "too many concurrent uploads"
//	UPL004 - "context canceled"
//	UPL005 - "context deadline exceeded"
//	PAGE001 - "invalid page window"
//	RATE001 - "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// original technical error when a user reports ERR000.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// typedError matches an error by type or identity.
type typedError struct {
	match func(error) bool
	msg   UserMessage
}

func asType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func isErr(sentinel error) func(error) bool {
	return func(err error) bool { return errors.Is(err, sentinel) }
}

var parseMessage = UserMessage{
	Message: "The file could not be parsed",
	Action:  "Check the delimiter, header setting, encoding and quoting",
	Code:    "FILE007",
}

var typedErrors = []typedError{
	{
		match: asType[*source.ConnectionError],
		msg: UserMessage{
			Message: "Unable to connect to the warehouse",
			Action:  "Check host, port, credentials and token, then try again",
			Code:    "WH001",
		},
	},
	{
		match: isErr(warehouse.ErrUnknownDialect),
		msg: UserMessage{
			Message: "This warehouse type is not supported",
			Action:  "Use one of: " + strings.Join(warehouse.Dialects(), ", "),
			Code:    "WH002",
		},
	},
	{
		match: asType[*source.NotFoundError],
		msg: UserMessage{
			Message: "The requested file or table was not found",
			Action:  "Upload the file again or check the name",
			Code:    "SRC001",
		},
	},
	{
		match: isErr(ErrInvalidSource),
		msg: UserMessage{
			Message: "The source configuration is invalid",
			Action:  "Set kind to file or warehouse and provide the matching settings",
			Code:    "SRC002",
		},
	},
	{
		match: asType[*source.UnsupportedFormatError],
		msg: UserMessage{
			Message: "This file format is not supported",
			Action:  "Upload a .csv, .tsv, .txt or .json file",
			Code:    "FILE006",
		},
	},
	{
		match: asType[*source.ImportError],
		msg: UserMessage{
			Message: "The import stopped before all rows were loaded",
			Action:  "Rows already committed stay in the table. Fix the reported row and import the rest",
			Code:    "IMP001",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. The first matching pattern wins. Keep the reference at the top
// of this file in sync when adding one.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Warehouse Connection Errors (WH003-WH006)
	// =========================================================================
	{
		pattern: "authentication failed",
		msg: UserMessage{
			Message: "The warehouse rejected the credentials",
			Action:  "Check the username, password or token",
			Code:    "WH003",
		},
	},
	{
		pattern: "login failed",
		msg: UserMessage{
			Message: "The warehouse rejected the credentials",
			Action:  "Check the username, password or token",
			Code:    "WH003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the warehouse",
			Action:  "Please try again in a few moments",
			Code:    "WH004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The warehouse connection was interrupted",
			Action:  "Please try again",
			Code:    "WH005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Narrow the query or try again later",
			Code:    "WH006",
		},
	},

	// =========================================================================
	// SQL Errors (SQL001-SQL003)
	// =========================================================================
	{
		pattern: "syntax error",
		msg: UserMessage{
			Message: "The query has a syntax error",
			Action:  "Check the SQL against the warehouse dialect",
			Code:    "SQL001",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "The table does not exist",
			Action:  "List the tables and pick an existing one",
			Code:    "SQL002",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "The table does not exist",
			Action:  "List the tables and pick an existing one",
			Code:    "SQL002",
		},
	},
	{
		pattern: "doesn't exist",
		msg: UserMessage{
			Message: "The table does not exist",
			Action:  "List the tables and pick an existing one",
			Code:    "SQL002",
		},
	},
	{
		pattern: "no such column",
		msg: UserMessage{
			Message: "A column does not exist in the table",
			Action:  "Check the column names against the table schema",
			Code:    "SQL003",
		},
	},
	{
		pattern: "has no column",
		msg: UserMessage{
			Message: "A column does not exist in the table",
			Action:  "Check the column names against the table schema",
			Code:    "SQL003",
		},
	},
	{
		pattern: "invalid column name",
		msg: UserMessage{
			Message: "A column does not exist in the table",
			Action:  "Check the column names against the table schema",
			Code:    "SQL003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE008)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8 or declare its encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "The declared encoding is not recognized",
			Action:  "Use a standard label such as utf-8, windows-1252 or utf-16le",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header or data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "delimiter",
		msg: UserMessage{
			Message: "The delimiter is not valid",
			Action:  "Use a single character such as , ; | or tab",
			Code:    "FILE008",
		},
	},

	// =========================================================================
	// Upload and Request Errors (UPL002-UPL005)
	// =========================================================================
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
	{
		pattern: "invalid page window",
		msg: UserMessage{
			Message: "The requested page is not valid",
			Action:  "Use a page of 0 or more and a positive size",
			Code:    "PAGE001",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// MapError converts a technical error to a user-friendly message.
//
// Typed engine errors are classified first. A parse error defers to a
// matching FILE pattern (empty file, encoding, delimiter) so the message
// names the actual problem. Everything else goes through the pattern table
// and falls back to ERR000.
//
// Example:
//
//	msg := MapError(&source.UnsupportedFormatError{Kind: "xlsx"})
//	// msg.Code == "FILE006"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if asType[*source.ParseError](err) {
		if msg, ok := matchPattern(err); ok && strings.HasPrefix(msg.Code, "FILE") {
			return msg
		}
		return parseMessage
	}

	for _, te := range typedErrors {
		if te.match(err) {
			return te.msg
		}
	}

	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
// Error returns the user message; Unwrap returns the technical error.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
