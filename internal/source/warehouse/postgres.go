package warehouse

import (
	"database/sql"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

func init() { Register(postgresDialect{}) }

// postgresDialect reads the current schema of a PostgreSQL database through
// pgx. The wire protocol has a single secret slot, so a token is sent as
// the password when no password is configured.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Open(cfg source.WarehouseConfig, token string, opts OpenOptions) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(postgresDSN(cfg, token, opts))
	if err != nil {
		return nil, err
	}
	if opts.ReadTimeout > 0 {
		connCfg.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.ReadTimeout.Milliseconds(), 10)
	}
	return stdlib.OpenDB(*connCfg), nil
}

func postgresDSN(cfg source.WarehouseConfig, token string, opts OpenOptions) string {
	password := cfg.Password
	if password == "" {
		password = token
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   cfg.Addr(),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" || password != "" {
		u.User = url.UserPassword(cfg.Username, password)
	}

	q := url.Values{}
	if cfg.Secure {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	if opts.DialTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(opts.DialTimeout.Seconds()))))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (postgresDialect) Catalog(source.WarehouseConfig) Catalog {
	return Catalog{
		Tables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type IN ('BASE TABLE', 'VIEW')
			ORDER BY table_name`,
		Exists: `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1`,
		Columns: `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1
			ORDER BY ordinal_position`,
	}
}

// QuoteIdent quotes a Postgres identifier. Names are case-sensitive once
// quoted.
func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d postgresDialect) SelectPage(table string, limit, offset int) string {
	return "SELECT * FROM " + d.QuoteIdent(table) + limitOffset(limit, offset)
}
