package warehouse

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 1000

// maxLineBytes bounds a single input line.
const maxLineBytes = 4 << 20

// ImportResult describes a completed import.
type ImportResult struct {
	Rows    int   `json:"rows"`
	Batches []int `json:"batches"` // rows per committed transaction, in order
}

// Loader bulk-inserts delimited lines into a warehouse table.
type Loader struct {
	Connector *Connector
	BatchSize int
	Separator string
	Metrics   metrics.Backend
}

func (l *Loader) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return DefaultBatchSize
}

func (l *Loader) separator() string {
	if l.Separator != "" {
		return l.Separator
	}
	return ","
}

// pendingBatch holds the rows of the open transaction and the input line
// each came from.
type pendingBatch struct {
	args  [][]any
	lines []int
}

func (b *pendingBatch) reset() {
	b.args = b.args[:0]
	b.lines = b.lines[:0]
}

// ImportRows inserts each non-blank line of rows into table. A line is
// split on the separator and must yield exactly len(columns) fields.
//
// Rows are committed in transactions of BatchSize rows plus one final
// transaction for the remainder. On failure the open transaction is rolled
// back and an *source.ImportError is returned; batches committed before the
// failure stay committed and are counted in ImportError.Committed.
// Concurrent imports into the same table are not coordinated.
func (l *Loader) ImportRows(ctx context.Context, cfg source.WarehouseConfig, table string, columns []string, rows io.Reader, token string) (ImportResult, error) {
	result := ImportResult{Batches: []int{}}
	if table == "" {
		return result, errors.New("import: table is empty")
	}
	if len(columns) == 0 {
		return result, errors.New("import: columns is empty")
	}

	size := l.batchSize()
	sep := l.separator()
	labels := metrics.Labels{"dialect": cfg.DialectName()}
	m := metrics.OrNop(l.Metrics)

	err := l.Connector.withConn(ctx, cfg, token, func(db *sql.DB, d Dialect) error {
		insert := buildInsertSQL(d, table, columns)
		batch := &pendingBatch{
			args:  make([][]any, 0, size),
			lines: make([]int, 0, size),
		}

		flush := func() error {
			if len(batch.args) == 0 {
				return nil
			}
			failed, err := commitBatch(ctx, db, insert, batch.args)
			if err != nil {
				row := 0
				if failed >= 0 {
					row = batch.lines[failed]
				}
				return &source.ImportError{Table: table, Row: row, Committed: result.Rows, Err: err}
			}

			n := len(batch.args)
			result.Rows += n
			result.Batches = append(result.Batches, n)
			m.IncCounter(metrics.ImportRows, float64(n), labels)
			m.IncCounter(metrics.ImportBatches, 1, labels)
			slog.Debug("import batch committed", "table", table, "rows", n, "total", result.Rows)

			batch.reset()
			return nil
		}

		sc := bufio.NewScanner(rows)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimSuffix(sc.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}

			fields := strings.Split(text, sep)
			if len(fields) != len(columns) {
				return &source.ImportError{
					Table:     table,
					Row:       line,
					Committed: result.Rows,
					Err:       fmt.Errorf("malformed row: expected %d fields, got %d", len(columns), len(fields)),
				}
			}

			args := make([]any, len(fields))
			for i, f := range fields {
				args[i] = f
			}
			batch.args = append(batch.args, args)
			batch.lines = append(batch.lines, line)

			if len(batch.args) == size {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := sc.Err(); err != nil {
			return &source.ImportError{Table: table, Row: line + 1, Committed: result.Rows, Err: fmt.Errorf("read input: %w", err)}
		}
		return flush()
	})
	if err != nil {
		return result, err
	}

	slog.Info("import complete", "table", table, "rows", result.Rows, "batches", len(result.Batches))
	return result, nil
}

// commitBatch inserts rows in one transaction. On an exec failure it
// returns the index of the failing row; on begin, prepare or commit
// failures the index is -1.
func commitBatch(ctx context.Context, db *sql.DB, insert string, rows [][]any) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return -1, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return i, fmt.Errorf("insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit: %w", err)
	}
	return -1, nil
}

// buildInsertSQL renders a single-row parameterized INSERT for columns.
func buildInsertSQL(d Dialect, table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteString(")")
	return b.String()
}
