// Package warehouse reads metadata and rows from remote SQL stores and
// bulk-loads rows into them.
//
// Every operation opens its own single-connection handle, pings it, does
// its work, and closes the handle before returning, on success or failure.
// Nothing is pooled across calls. Engine specifics (driver, catalog
// queries, quoting, paging) live behind the Dialect registry; clickhouse,
// postgres, mssql and sqlite are built in.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// SampleLimit bounds the preview rows returned by GetTableSchema.
const SampleLimit = 10

// Default transport bounds.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultReadTimeout = 30 * time.Second
)

// ErrInvalidWindow is returned by ReadPage for a negative page or a
// non-positive size.
var ErrInvalidWindow = errors.New("invalid page window: page must be >= 0 and size > 0")

// Connector performs one-shot warehouse operations. The zero value is
// usable and applies the default timeouts.
type Connector struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

func (c *Connector) options() OpenOptions {
	opts := OpenOptions{DialTimeout: DefaultDialTimeout, ReadTimeout: DefaultReadTimeout}
	if c != nil && c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c != nil && c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	return opts
}

// withConn opens a scoped handle for cfg, verifies it with a ping, and runs
// fn. The handle is closed on every exit path.
func (c *Connector) withConn(ctx context.Context, cfg source.WarehouseConfig, token string, fn func(*sql.DB, Dialect) error) error {
	d, err := Lookup(cfg.DialectName())
	if err != nil {
		return err
	}

	opts := c.options()
	db, err := d.Open(cfg, token, opts)
	if err != nil {
		return &source.ConnectionError{Dialect: d.Name(), Addr: cfg.Addr(), Err: err}
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return &source.ConnectionError{Dialect: d.Name(), Addr: cfg.Addr(), Err: err}
	}

	return fn(db, d)
}

// TestConnection reports whether cfg reaches a warehouse that answers
// SELECT 1. It never returns an error; failures are logged and reported
// as false.
func (c *Connector) TestConnection(ctx context.Context, cfg source.WarehouseConfig, token string) bool {
	err := c.withConn(ctx, cfg, token, func(db *sql.DB, _ Dialect) error {
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
	if err != nil {
		slog.Warn("warehouse connection test failed", "warehouse", cfg.String(), "error", err)
		return false
	}
	return true
}

// ListTables returns the table names of the configured database in catalog
// order.
func (c *Connector) ListTables(ctx context.Context, cfg source.WarehouseConfig, token string) ([]string, error) {
	tables := []string{}
	err := c.withConn(ctx, cfg, token, func(db *sql.DB, d Dialect) error {
		cat := d.Catalog(cfg)
		rows, err := db.QueryContext(ctx, cat.Tables, cat.Scope...)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan table name: %w", err)
			}
			tables = append(tables, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// GetTableSchema returns the columns of table with their native type names
// plus up to SampleLimit preview rows.
//
// A table that does not exist yields an empty schema and no error. Callers
// that need to tell "missing" from "empty" should consult ListTables.
func (c *Connector) GetTableSchema(ctx context.Context, cfg source.WarehouseConfig, table, token string) (source.TableSchema, error) {
	schema := source.EmptySchema()
	err := c.withConn(ctx, cfg, token, func(db *sql.DB, d Dialect) error {
		cat := d.Catalog(cfg)

		var n int64
		if err := db.QueryRowContext(ctx, cat.Exists, withArg(cat.Scope, table)...).Scan(&n); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if n == 0 {
			return nil
		}

		cols, err := readColumns(ctx, db, cat, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}
		schema.Columns = cols

		sample, err := queryRows(ctx, db, d.SelectPage(table, SampleLimit, 0))
		if err != nil {
			return fmt.Errorf("sample %s: %w", table, err)
		}
		schema.Preview = sample
		return nil
	})
	if err != nil {
		return source.TableSchema{}, err
	}
	return schema, nil
}

func readColumns(ctx context.Context, db *sql.DB, cat Catalog, table string) ([]source.Column, error) {
	rows, err := db.QueryContext(ctx, cat.Columns, withArg(cat.Scope, table)...)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []source.Column
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, source.NewColumn(name, source.Type(typ)))
	}
	return cols, rows.Err()
}

// RunQuery executes query verbatim and returns every result row keyed by
// the result-set column names.
func (c *Connector) RunQuery(ctx context.Context, cfg source.WarehouseConfig, query, token string) ([]source.Row, error) {
	var out []source.Row
	err := c.withConn(ctx, cfg, token, func(db *sql.DB, _ Dialect) error {
		var err error
		out, err = queryRows(ctx, db, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Execute runs statement verbatim and discards any result.
func (c *Connector) Execute(ctx context.Context, cfg source.WarehouseConfig, statement, token string) error {
	return c.withConn(ctx, cfg, token, func(db *sql.DB, _ Dialect) error {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
		return nil
	})
}

// ReadPage returns rows [page*size, page*size+size) of table. Row order is
// whatever the engine returns for an unordered scan.
func (c *Connector) ReadPage(ctx context.Context, cfg source.WarehouseConfig, table string, page, size int, token string) ([]source.Row, error) {
	if page < 0 || size <= 0 {
		return nil, ErrInvalidWindow
	}
	if page > (math.MaxInt-size)/size {
		return []source.Row{}, nil
	}
	var out []source.Row
	err := c.withConn(ctx, cfg, token, func(db *sql.DB, d Dialect) error {
		var err error
		out, err = queryRows(ctx, db, d.SelectPage(table, size, page*size))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// queryRows scans every row of query into maps keyed by column name.
// Byte slices are returned as strings.
func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]source.Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	out := []source.Row{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(source.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func withArg(scope []any, arg any) []any {
	args := make([]any, 0, len(scope)+1)
	args = append(args, scope...)
	return append(args, arg)
}
