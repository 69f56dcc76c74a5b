package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/file"
)

// ErrInvalidSource is returned when a SourceConfig's kind is unknown or does
// not match the payload it carries.
var ErrInvalidSource = errors.New("invalid source config")

// SourceKind tags which variant of SourceConfig is set.
type SourceKind string

const (
	KindFile      SourceKind = "file"
	KindWarehouse SourceKind = "warehouse"
)

// FileSource locates a file and carries its parse options. Path is used as
// is; FileID names a file in the upload store and is resolved by Service.
type FileSource struct {
	Path   string `json:"path,omitempty"`
	FileID string `json:"fileId,omitempty"`
	source.FileConfig
}

// WarehouseSource is a warehouse connection plus the table to describe. An
// empty Table means the first table the warehouse lists.
type WarehouseSource struct {
	source.WarehouseConfig
	Table string `json:"table,omitempty"`
}

// SourceConfig is the tagged union handed to SchemaBuilder. Exactly the
// member named by Kind is set.
type SourceConfig struct {
	Kind      SourceKind       `json:"kind"`
	File      *FileSource      `json:"file,omitempty"`
	Warehouse *WarehouseSource `json:"warehouse,omitempty"`
}

// Validate checks that the tag and payload agree.
func (c SourceConfig) Validate() error {
	switch c.Kind {
	case KindFile:
		if c.File == nil || c.Warehouse != nil {
			return fmt.Errorf("%w: kind %q needs exactly the file settings", ErrInvalidSource, c.Kind)
		}
		if c.File.Path == "" && c.File.FileID == "" {
			return fmt.Errorf("%w: file path is empty", ErrInvalidSource)
		}
	case KindWarehouse:
		if c.Warehouse == nil || c.File != nil {
			return fmt.Errorf("%w: kind %q needs exactly the warehouse settings", ErrInvalidSource, c.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, c.Kind)
	}
	return nil
}

// WarehouseReader is the read side of the warehouse connector.
type WarehouseReader interface {
	ListTables(ctx context.Context, cfg source.WarehouseConfig, token string) ([]string, error)
	GetTableSchema(ctx context.Context, cfg source.WarehouseConfig, table, token string) (source.TableSchema, error)
	ReadPage(ctx context.Context, cfg source.WarehouseConfig, table string, page, size int, token string) ([]source.Row, error)
}

// Source is what a configured source can do once opened.
type Source interface {
	// Schema returns the columns and a bounded preview.
	Schema(ctx context.Context) (source.TableSchema, error)

	// Page returns rows [page*size, page*size+size). Past the end is an
	// empty slice.
	Page(ctx context.Context, page, size int) ([]source.Row, error)
}

// SchemaBuilder turns a SourceConfig into a TableSchema, dispatching on the
// config's kind.
type SchemaBuilder struct {
	Warehouse WarehouseReader
	Metrics   metrics.Backend
}

// Discover returns the schema and preview of the configured source.
//
// For a warehouse the pinned table is described, or else the first listed
// table; a warehouse with no tables yields an empty schema.
func (b *SchemaBuilder) Discover(ctx context.Context, cfg SourceConfig, token string) (source.TableSchema, error) {
	start := time.Now()

	src, err := b.Open(cfg, token)
	var schema source.TableSchema
	if err == nil {
		schema, err = src.Schema(ctx)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := metrics.Labels{"kind": string(cfg.Kind), "status": status}
	m := metrics.OrNop(b.Metrics)
	m.IncCounter(metrics.DiscoverTotal, 1, labels)
	metrics.ObserveSince(m, metrics.DiscoverDuration, start, labels)

	if err != nil {
		slog.Warn("discovery failed", "kind", cfg.Kind, "error", err)
		return source.TableSchema{}, err
	}
	slog.Debug("discovery complete",
		"kind", cfg.Kind,
		"columns", len(schema.Columns),
		"preview_rows", len(schema.Preview),
		"duration", time.Since(start),
	)
	return schema, nil
}

// Open validates cfg and returns the matching Source. Nothing is read or
// dialed until a Source method is called.
func (b *SchemaBuilder) Open(cfg SourceConfig, token string) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindFile:
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("%w: file %q is not resolved to a path", ErrInvalidSource, cfg.File.FileID)
		}
		return &fileSource{path: cfg.File.Path, cfg: cfg.File.FileConfig}, nil
	case KindWarehouse:
		if b.Warehouse == nil {
			return nil, fmt.Errorf("%w: no warehouse connector configured", ErrInvalidSource)
		}
		return &warehouseSource{
			reader: b.Warehouse,
			cfg:    cfg.Warehouse.WarehouseConfig,
			table:  cfg.Warehouse.Table,
			token:  token,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, cfg.Kind)
}

type fileSource struct {
	path string
	cfg  source.FileConfig
}

func (s *fileSource) Schema(context.Context) (source.TableSchema, error) {
	return file.ParseSchemaFile(s.path, s.cfg)
}

func (s *fileSource) Page(_ context.Context, page, size int) ([]source.Row, error) {
	return file.ReadRows(s.path, s.cfg, page, size)
}

type warehouseSource struct {
	reader WarehouseReader
	cfg    source.WarehouseConfig
	table  string
	token  string
}

// resolveTable returns the pinned table or the first listed one. An empty
// result means the warehouse has no tables.
func (s *warehouseSource) resolveTable(ctx context.Context) (string, error) {
	if s.table != "" {
		return s.table, nil
	}
	tables, err := s.reader.ListTables(ctx, s.cfg, s.token)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", nil
	}
	return tables[0], nil
}

func (s *warehouseSource) Schema(ctx context.Context) (source.TableSchema, error) {
	table, err := s.resolveTable(ctx)
	if err != nil {
		return source.TableSchema{}, err
	}
	if table == "" {
		return source.EmptySchema(), nil
	}
	return s.reader.GetTableSchema(ctx, s.cfg, table, s.token)
}

func (s *warehouseSource) Page(ctx context.Context, page, size int) ([]source.Row, error) {
	if page < 0 || size <= 0 {
		return nil, file.ErrInvalidWindow
	}
	table, err := s.resolveTable(ctx)
	if err != nil {
		return nil, err
	}
	if table == "" {
		return []source.Row{}, nil
	}
	return s.reader.ReadPage(ctx, s.cfg, table, page, size, s.token)
}
