package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/file"
)

// fakeWarehouse serves canned tables and records which table was described.
type fakeWarehouse struct {
	tables    []string
	schemas   map[string]source.TableSchema
	rows      map[string][]source.Row
	listErr   error
	described []string
}

func (f *fakeWarehouse) ListTables(context.Context, source.WarehouseConfig, string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tables, nil
}

func (f *fakeWarehouse) GetTableSchema(_ context.Context, _ source.WarehouseConfig, table, _ string) (source.TableSchema, error) {
	f.described = append(f.described, table)
	s, ok := f.schemas[table]
	if !ok {
		return source.EmptySchema(), nil
	}
	return s, nil
}

func (f *fakeWarehouse) ReadPage(_ context.Context, _ source.WarehouseConfig, table string, page, size int, _ string) ([]source.Row, error) {
	all := f.rows[table]
	start := page * size
	if start >= len(all) {
		return []source.Row{}, nil
	}
	return all[start:min(start+size, len(all))], nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SourceConfig
		wantErr bool
	}{
		{"file with path", SourceConfig{Kind: KindFile, File: &FileSource{Path: "a.csv"}}, false},
		{"file with id", SourceConfig{Kind: KindFile, File: &FileSource{FileID: "x.csv"}}, false},
		{"file without location", SourceConfig{Kind: KindFile, File: &FileSource{}}, true},
		{"file kind missing payload", SourceConfig{Kind: KindFile}, true},
		{"file kind with both payloads", SourceConfig{Kind: KindFile, File: &FileSource{Path: "a"}, Warehouse: &WarehouseSource{}}, true},
		{"warehouse", SourceConfig{Kind: KindWarehouse, Warehouse: &WarehouseSource{}}, false},
		{"warehouse kind missing payload", SourceConfig{Kind: KindWarehouse}, true},
		{"unknown kind", SourceConfig{Kind: "s3"}, true},
		{"empty kind", SourceConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSource) {
				t.Errorf("error %v does not wrap ErrInvalidSource", err)
			}
		})
	}
}

func TestSchemaBuilder_DiscoverFile(t *testing.T) {
	path := writeTempFile(t, "people.csv", "id,name,active\n1,ada,true\n2,bob,false\n")
	rec := metrics.NewRecorder()
	b := &SchemaBuilder{Metrics: rec}

	schema, err := b.Discover(context.Background(), SourceConfig{
		Kind: KindFile,
		File: &FileSource{Path: path, FileConfig: source.FileConfig{HasHeader: true}},
	}, "")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	wantCols := []source.Column{
		source.NewColumn("id", source.TypeInteger),
		source.NewColumn("name", source.TypeString),
		source.NewColumn("active", source.TypeBoolean),
	}
	if !reflect.DeepEqual(schema.Columns, wantCols) {
		t.Errorf("Columns = %+v, want %+v", schema.Columns, wantCols)
	}
	if len(schema.Preview) != 1 || schema.Preview[0]["name"] != "ada" {
		t.Errorf("Preview = %v, want the first data row", schema.Preview)
	}
	if got := rec.Counter(metrics.DiscoverTotal); got != 1 {
		t.Errorf("discover counter = %v, want 1", got)
	}
	if got := len(rec.Samples(metrics.DiscoverDuration)); got != 1 {
		t.Errorf("duration samples = %d, want 1", got)
	}
}

func TestSchemaBuilder_DiscoverErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   SourceConfig
		check func(error) bool
	}{
		{
			name:  "invalid config",
			cfg:   SourceConfig{Kind: "ftp"},
			check: func(err error) bool { return errors.Is(err, ErrInvalidSource) },
		},
		{
			name:  "unresolved file id",
			cfg:   SourceConfig{Kind: KindFile, File: &FileSource{FileID: "abc.csv"}},
			check: func(err error) bool { return errors.Is(err, ErrInvalidSource) },
		},
		{
			name: "missing file",
			cfg:  SourceConfig{Kind: KindFile, File: &FileSource{Path: filepath.Join(t.TempDir(), "gone.csv")}},
			check: func(err error) bool {
				var nf *source.NotFoundError
				return errors.As(err, &nf)
			},
		},
		{
			name: "unsupported extension",
			cfg:  SourceConfig{Kind: KindFile, File: &FileSource{Path: "report.xlsx"}},
			check: func(err error) bool {
				var uf *source.UnsupportedFormatError
				return errors.As(err, &uf)
			},
		},
		{
			name:  "warehouse without connector",
			cfg:   SourceConfig{Kind: KindWarehouse, Warehouse: &WarehouseSource{}},
			check: func(err error) bool { return errors.Is(err, ErrInvalidSource) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := metrics.NewRecorder()
			b := &SchemaBuilder{Metrics: rec}
			_, err := b.Discover(context.Background(), tt.cfg, "")
			if err == nil || !tt.check(err) {
				t.Fatalf("Discover() error = %v", err)
			}
			if got := rec.Counter(metrics.DiscoverTotal); got != 1 {
				t.Errorf("failed discovery should still be counted, got %v", got)
			}
		})
	}
}

func TestSchemaBuilder_DiscoverWarehouse(t *testing.T) {
	orders := source.TableSchema{
		Columns: []source.Column{source.NewColumn("id", "Int64")},
		Preview: []source.Row{{"id": int64(1)}},
	}

	tests := []struct {
		name          string
		wh            *fakeWarehouse
		table         string
		wantDescribed []string
		wantCols      int
	}{
		{
			name:          "pinned table skips listing",
			wh:            &fakeWarehouse{listErr: errors.New("should not list"), schemas: map[string]source.TableSchema{"orders": orders}},
			table:         "orders",
			wantDescribed: []string{"orders"},
			wantCols:      1,
		},
		{
			name:          "first listed table",
			wh:            &fakeWarehouse{tables: []string{"orders", "users"}, schemas: map[string]source.TableSchema{"orders": orders}},
			wantDescribed: []string{"orders"},
			wantCols:      1,
		},
		{
			name:     "no tables",
			wh:       &fakeWarehouse{tables: []string{}},
			wantCols: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &SchemaBuilder{Warehouse: tt.wh}
			schema, err := b.Discover(context.Background(), SourceConfig{
				Kind:      KindWarehouse,
				Warehouse: &WarehouseSource{Table: tt.table},
			}, "token")
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if len(schema.Columns) != tt.wantCols {
				t.Errorf("len(Columns) = %d, want %d", len(schema.Columns), tt.wantCols)
			}
			if schema.Columns == nil || schema.Preview == nil {
				t.Error("schema slices should never be nil")
			}
			if !reflect.DeepEqual(tt.wh.described, tt.wantDescribed) {
				t.Errorf("described = %v, want %v", tt.wh.described, tt.wantDescribed)
			}
		})
	}

	t.Run("list failure", func(t *testing.T) {
		listErr := &source.ConnectionError{Dialect: "clickhouse", Addr: "db:8123", Err: errors.New("refused")}
		b := &SchemaBuilder{Warehouse: &fakeWarehouse{listErr: listErr}}
		_, err := b.Discover(context.Background(), SourceConfig{Kind: KindWarehouse, Warehouse: &WarehouseSource{}}, "")
		if !errors.Is(err, listErr) {
			t.Errorf("Discover() error = %v, want %v", err, listErr)
		}
	})
}

func TestSource_Page(t *testing.T) {
	path := writeTempFile(t, "n.csv", "n\n0\n1\n2\n3\n4\n")
	wh := &fakeWarehouse{
		tables: []string{"events"},
		rows:   map[string][]source.Row{"events": {{"n": 0}, {"n": 1}, {"n": 2}}},
	}
	b := &SchemaBuilder{Warehouse: wh}

	fileSrc, err := b.Open(SourceConfig{Kind: KindFile, File: &FileSource{Path: path, FileConfig: source.FileConfig{HasHeader: true}}}, "")
	if err != nil {
		t.Fatalf("Open(file) error = %v", err)
	}
	whSrc, err := b.Open(SourceConfig{Kind: KindWarehouse, Warehouse: &WarehouseSource{}}, "")
	if err != nil {
		t.Fatalf("Open(warehouse) error = %v", err)
	}

	tests := []struct {
		name    string
		src     Source
		page    int
		size    int
		wantLen int
		wantErr error
	}{
		{"file first page", fileSrc, 0, 2, 2, nil},
		{"file last partial page", fileSrc, 2, 2, 1, nil},
		{"file past end", fileSrc, 9, 2, 0, nil},
		{"file bad window", fileSrc, -1, 2, 0, file.ErrInvalidWindow},
		{"warehouse second page", whSrc, 1, 2, 1, nil},
		{"warehouse past end", whSrc, 5, 2, 0, nil},
		{"warehouse bad window", whSrc, 0, 0, 0, file.ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := tt.src.Page(context.Background(), tt.page, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Page() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Page() error = %v", err)
			}
			if rows == nil {
				t.Error("Page() returned nil slice")
			}
			if len(rows) != tt.wantLen {
				t.Errorf("len(rows) = %d, want %d", len(rows), tt.wantLen)
			}
		})
	}
}
