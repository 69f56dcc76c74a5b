package source

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FileKind identifies how a file's bytes are decoded.
type FileKind string

const (
	KindDelimited FileKind = "delimited"
	KindJSON      FileKind = "json"
)

// DefaultDelimiter is used when a FileConfig leaves Delimiter empty.
const DefaultDelimiter = ","

// FileConfig holds the parse options for a file source.
type FileConfig struct {
	// Delimiter is a single character; empty means ",". The escapes "\t"
	// and "tab" are accepted for tab-separated files.
	Delimiter string `json:"delimiter"`

	// HasHeader reports whether the first record (after SkipRows) names the
	// columns. When false, names are synthesized as column_1..column_n.
	HasHeader bool `json:"hasHeader"`

	// SkipRows is the number of leading records discarded before the header.
	SkipRows int `json:"skipRows"`

	// Kind selects the decoder. Empty means "derive from the file extension".
	Kind FileKind `json:"fileType,omitempty"`

	// Encoding is a WHATWG encoding label (e.g. "windows-1252", "utf-16le").
	// Empty means UTF-8.
	Encoding string `json:"encoding,omitempty"`

	// LazyQuotes relaxes quote handling for delimited files.
	LazyQuotes bool `json:"lazyQuotes,omitempty"`
}

// DefaultFileConfig returns the options used when the caller supplies none.
func DefaultFileConfig() FileConfig {
	return FileConfig{Delimiter: DefaultDelimiter, HasHeader: true}
}

// Comma returns the delimiter as a rune.
func (c FileConfig) Comma() (rune, error) {
	d := c.Delimiter
	switch strings.ToLower(d) {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(d)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	if r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", d)
	}
	return r[0], nil
}

// DefaultDialect is the warehouse dialect used when WarehouseConfig.Dialect
// is empty.
const DefaultDialect = "clickhouse"

// WarehouseConfig holds the connection parameters for a remote store.
// The bearer token is deliberately not part of it.
type WarehouseConfig struct {
	Dialect  string `json:"dialect,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`

	// Secure enables TLS on the transport where the dialect supports it.
	Secure bool `json:"secure,omitempty"`
}

// DialectName returns the configured dialect, defaulting to clickhouse.
func (c WarehouseConfig) DialectName() string {
	if c.Dialect == "" {
		return DefaultDialect
	}
	return strings.ToLower(c.Dialect)
}

// Addr returns host:port.
func (c WarehouseConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String masks the password.
func (c WarehouseConfig) String() string {
	return fmt.Sprintf("%s://%s@%s/%s", c.DialectName(), c.Username, c.Addr(), c.Database)
}

// UnmarshalText accepts the legacy "CSV"/"JSON" spellings. Unknown values are
// kept (lowercased) so the parser can reject them as unsupported.
func (k *FileKind) UnmarshalText(b []byte) error {
	*k = NormalizeKind(string(b))
	return nil
}

// NormalizeKind maps user-facing spellings onto a FileKind.
func NormalizeKind(s string) FileKind {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "csv", "tsv", "delimited":
		return KindDelimited
	case "json":
		return KindJSON
	default:
		return FileKind(v)
	}
}
