package warehouse

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// ErrUnknownDialect is returned when a config names a dialect nobody
// registered.
var ErrUnknownDialect = errors.New("unknown warehouse dialect")

// OpenOptions carries the transport bounds a dialect applies to its driver.
type OpenOptions struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Catalog holds the metadata queries of a dialect.
//
// Each query is run with Scope as its leading arguments. Exists and Columns
// take the table name as the final argument. Tables returns one name column;
// Exists returns a count; Columns returns (name, native type) in ordinal
// order.
type Catalog struct {
	Scope   []any
	Tables  string
	Exists  string
	Columns string
}

// Dialect adapts one warehouse engine to the connector.
type Dialect interface {
	// Name is the registry key, e.g. "clickhouse".
	Name() string

	// Open returns an unconnected handle. The token is forwarded as the
	// engine allows; it is never parsed.
	Open(cfg source.WarehouseConfig, token string, opts OpenOptions) (*sql.DB, error)

	Catalog(cfg source.WarehouseConfig) Catalog

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder(n int) string

	// SelectPage returns a query over every column of table limited to
	// [offset, offset+limit).
	SelectPage(table string, limit, offset int) string
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{}
)

// Register makes a dialect available by name. It is called from init in
// the file that implements the dialect.
//
// Registering an empty name, a nil dialect, or a name twice panics.
func Register(d Dialect) {
	if d == nil {
		panic("warehouse: Register dialect is nil")
	}
	name := d.Name()
	if name == "" {
		panic("warehouse: Register dialect with empty name")
	}

	dialectsMu.Lock()
	defer dialectsMu.Unlock()

	if _, dup := dialects[name]; dup {
		panic("warehouse: Register called twice for dialect " + name)
	}
	dialects[name] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
	return d, nil
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
