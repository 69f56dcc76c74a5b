package source

import (
	"errors"
	"fmt"
)

// ConnectionError reports that the warehouse could not be reached or
// refused the credentials.
type ConnectionError struct {
	Dialect string
	Addr    string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("warehouse connection failed (%s %s): %v", e.Dialect, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotFoundError reports a referenced file or table that does not exist.
type NotFoundError struct {
	Kind string // "file" or "table"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// UnsupportedFormatError reports a file kind or extension that no parser
// handles.
type UnsupportedFormatError struct {
	Kind string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Kind == "" {
		return "unsupported file format: missing file extension"
	}
	return fmt.Sprintf("unsupported file format: %s", e.Kind)
}

// ParseError reports bytes that cannot be decoded under the declared
// delimiter or encoding. Line is 1-based; zero when unknown.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ImportError reports a failed bulk load. Batches committed before the
// failure stay committed; Committed says how many rows that was.
type ImportError struct {
	Table     string
	Row       int // 1-based input row that triggered the failure; 0 for commit failures
	Committed int
	Err       error
}

func (e *ImportError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("import into %s failed at row %d (%d rows committed): %v", e.Table, e.Row, e.Committed, e.Err)
	}
	return fmt.Sprintf("import into %s failed (%d rows committed): %v", e.Table, e.Committed, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
