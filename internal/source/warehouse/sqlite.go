package warehouse

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

func init() { Register(sqliteDialect{}) }

// sqliteDialect treats a local SQLite file as a warehouse. Database is the
// file path; host, port, credentials and the token are ignored.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Open(cfg source.WarehouseConfig, _ string, opts OpenOptions) (*sql.DB, error) {
	if cfg.Database == "" {
		return nil, errors.New("sqlite: database path is empty")
	}
	dsn := cfg.Database
	if opts.ReadTimeout > 0 {
		dsn = "file:" + cfg.Database + "?_pragma=busy_timeout(" + strconv.FormatInt(opts.ReadTimeout.Milliseconds(), 10) + ")"
	}
	return sql.Open("sqlite", dsn)
}

func (sqliteDialect) Catalog(source.WarehouseConfig) Catalog {
	return Catalog{
		Tables:  "SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name",
		Exists:  "SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?",
		Columns: "SELECT name, type FROM pragma_table_info(?) ORDER BY cid",
	}
}

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (d sqliteDialect) SelectPage(table string, limit, offset int) string {
	return "SELECT * FROM " + d.QuoteIdent(table) + limitOffset(limit, offset)
}
