package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

var errEmptyFile = errors.New("empty file")

// delimitedReader is a forward-only record reader that knows the column
// names of the file it reads.
type delimitedReader struct {
	csv       *csv.Reader
	header    []string
	hasHeader bool
}

// newDelimitedReader positions the reader on the first data record:
// SkipRows records are discarded and, if configured, the header is consumed.
func newDelimitedReader(r io.Reader, cfg source.FileConfig) (*delimitedReader, error) {
	comma, err := cfg.Comma()
	if err != nil {
		return nil, &source.ParseError{Err: err}
	}
	if cfg.SkipRows < 0 {
		return nil, &source.ParseError{Err: fmt.Errorf("skipRows must be non-negative, got %d", cfg.SkipRows)}
	}

	text, err := textReader(r, cfg.Encoding)
	if err != nil {
		return nil, &source.ParseError{Err: err}
	}

	cr := csv.NewReader(text)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = cfg.LazyQuotes

	d := &delimitedReader{csv: cr, hasHeader: cfg.HasHeader}

	for i := 0; i < cfg.SkipRows; i++ {
		if _, err := d.read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errEmptyFile
			}
			return nil, err
		}
	}

	if cfg.HasHeader {
		rec, err := d.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errEmptyFile
			}
			return nil, err
		}
		d.header = headerNames(rec)
	}

	return d, nil
}

// next returns the next data record, or io.EOF.
func (d *delimitedReader) next() ([]string, error) {
	return d.read()
}

func (d *delimitedReader) read() ([]string, error) {
	rec, err := d.csv.Read()
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return nil, &source.ParseError{Line: pe.Line, Err: pe.Err}
	}
	return nil, &source.ParseError{Err: err}
}

// columns returns the column names for a record of the given width.
// Headerless files get synthesized names sized to the record.
func (d *delimitedReader) columns(width int) []string {
	if d.hasHeader {
		return d.header
	}
	names := make([]string, width)
	for i := range names {
		names[i] = syntheticName(i)
	}
	return names
}

// row maps a record onto column names. Fields beyond the known columns are
// dropped; missing trailing fields are absent from the row.
func (d *delimitedReader) row(rec []string) source.Row {
	names := d.columns(len(rec))
	row := make(source.Row, len(names))
	for i, name := range names {
		if i >= len(rec) {
			break
		}
		row[name] = rec[i]
	}
	return row
}

func syntheticName(i int) string {
	return "column_" + strconv.Itoa(i+1)
}

// headerNames cleans header cells and makes them unique. Blank cells get a
// synthesized name; repeats get a numeric suffix.
func headerNames(rec []string) []string {
	names := make([]string, len(rec))
	taken := make(map[string]bool, len(rec))
	for i, h := range rec {
		name := strings.TrimSpace(h)
		if name == "" {
			name = syntheticName(i)
		}
		base := name
		for k := 2; taken[name]; k++ {
			name = base + "_" + strconv.Itoa(k)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func parseDelimitedSchema(r io.Reader, cfg source.FileConfig) (source.TableSchema, error) {
	d, err := newDelimitedReader(r, cfg)
	if err != nil {
		if errors.Is(err, errEmptyFile) {
			return source.TableSchema{}, &source.ParseError{Err: err}
		}
		return source.TableSchema{}, err
	}

	first, err := d.next()
	if errors.Is(err, io.EOF) {
		if !cfg.HasHeader {
			return source.TableSchema{}, &source.ParseError{Err: errEmptyFile}
		}
		schema := source.EmptySchema()
		for _, name := range d.header {
			schema.Columns = append(schema.Columns, source.NewColumn(name, source.TypeString))
		}
		return schema, nil
	}
	if err != nil {
		return source.TableSchema{}, err
	}

	names := d.columns(len(first))
	schema := source.TableSchema{
		Columns: make([]source.Column, 0, len(names)),
		Preview: []source.Row{d.row(first)},
	}
	for i, name := range names {
		var v any
		if i < len(first) {
			v = first[i]
		}
		schema.Columns = append(schema.Columns, source.NewColumn(name, source.InferType(v)))
	}
	return schema, nil
}

func readDelimitedRows(r io.Reader, cfg source.FileConfig, start, size int) ([]source.Row, error) {
	rows := make([]source.Row, 0, min(size, 1024))

	d, err := newDelimitedReader(r, cfg)
	if err != nil {
		if errors.Is(err, errEmptyFile) {
			return rows, nil
		}
		return nil, err
	}

	for idx := 0; idx < start+size; idx++ {
		rec, err := d.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if idx < start {
			continue
		}
		rows = append(rows, d.row(rec))
	}
	return rows, nil
}
