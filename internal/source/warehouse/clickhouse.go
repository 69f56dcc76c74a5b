package warehouse

import (
	"crypto/tls"
	"database/sql"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

func init() { Register(clickhouseDialect{}) }

// clickhouseDialect talks to ClickHouse over its HTTP interface. A bearer
// token rides along as an Authorization header; the username and password
// are then sent as X-ClickHouse-User and X-ClickHouse-Key.
type clickhouseDialect struct{}

func (clickhouseDialect) Name() string { return "clickhouse" }

func (clickhouseDialect) Open(cfg source.WarehouseConfig, token string, opts OpenOptions) (*sql.DB, error) {
	o := &clickhouse.Options{
		Protocol: clickhouse.HTTP,
		Addr:     []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: opts.DialTimeout,
		ReadTimeout: opts.ReadTimeout,
	}
	if cfg.Secure {
		o.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if token != "" {
		// The bearer header takes the Authorization slot the driver uses for
		// basic auth, so the credentials move to ClickHouse's own headers.
		o.HttpHeaders = map[string]string{"Authorization": "Bearer " + token}
		if cfg.Username != "" {
			o.HttpHeaders["X-ClickHouse-User"] = cfg.Username
			o.HttpHeaders["X-ClickHouse-Key"] = cfg.Password
		}
	}
	return clickhouse.OpenDB(o), nil
}

func (clickhouseDialect) Catalog(cfg source.WarehouseConfig) Catalog {
	return Catalog{
		Scope:   []any{cfg.Database},
		Tables:  "SELECT name FROM system.tables WHERE database = ? ORDER BY name",
		Exists:  "SELECT count() FROM system.tables WHERE database = ? AND name = ?",
		Columns: "SELECT name, type FROM system.columns WHERE database = ? AND table = ? ORDER BY position",
	}
}

func (clickhouseDialect) QuoteIdent(name string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return "`" + r.Replace(name) + "`"
}

func (clickhouseDialect) Placeholder(int) string { return "?" }

func (d clickhouseDialect) SelectPage(table string, limit, offset int) string {
	return "SELECT * FROM " + d.QuoteIdent(table) + limitOffset(limit, offset)
}

// limitOffset renders the LIMIT/OFFSET tail shared by the engines that
// support it.
func limitOffset(limit, offset int) string {
	s := " LIMIT " + strconv.Itoa(limit)
	if offset > 0 {
		s += " OFFSET " + strconv.Itoa(offset)
	}
	return s
}
