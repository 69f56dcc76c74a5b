package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/file"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
)

// Default preview window bounds.
const (
	DefaultPageSize = 10
	DefaultMaxPage  = 1000
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	UploadDir     string
	MaxFileSize   int64
	MaxConcurrent int
	MaxWait       time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	BatchSize   int
	Separator   string

	DefaultPageSize int
	MaxPageSize     int

	Metrics metrics.Backend
}

// Service wires the discovery engine to an upload store and a concurrency
// limiter. It is the entry point for the HTTP handlers and the CLI.
type Service struct {
	builder   *SchemaBuilder
	connector *warehouse.Connector
	loader    *warehouse.Loader
	store     *UploadStore
	limiter   *UploadLimiter
	metrics   metrics.Backend

	defaultPage int
	maxPage     int
}

// NewService creates a new Service instance.
func NewService(opts Options) (*Service, error) {
	dir := opts.UploadDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = filepath.Join(wd, "uploads")
	}
	store, err := NewUploadStore(dir, opts.MaxFileSize)
	if err != nil {
		return nil, err
	}

	m := metrics.OrNop(opts.Metrics)
	connector := &warehouse.Connector{DialTimeout: opts.DialTimeout, ReadTimeout: opts.ReadTimeout}

	s := &Service{
		builder:   &SchemaBuilder{Warehouse: connector, Metrics: m},
		connector: connector,
		loader: &warehouse.Loader{
			Connector: connector,
			BatchSize: opts.BatchSize,
			Separator: opts.Separator,
			Metrics:   m,
		},
		store:       store,
		limiter:     NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
		metrics:     m,
		defaultPage: opts.DefaultPageSize,
		maxPage:     opts.MaxPageSize,
	}
	if s.defaultPage <= 0 {
		s.defaultPage = DefaultPageSize
	}
	if s.maxPage <= 0 {
		s.maxPage = DefaultMaxPage
	}
	if s.defaultPage > s.maxPage {
		s.defaultPage = s.maxPage
	}
	return s, nil
}

// Limiter returns the upload limiter, for shutdown draining and status.
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// Store returns the upload store.
func (s *Service) Store() *UploadStore { return s.store }

// PageSize applies the configured default and ceiling to a requested size.
func (s *Service) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.defaultPage
	case requested > s.maxPage:
		return s.maxPage
	default:
		return requested
	}
}

// resolve turns an upload-store file ID into a path.
func (s *Service) resolve(cfg SourceConfig) (SourceConfig, error) {
	if cfg.Kind != KindFile || cfg.File == nil || cfg.File.FileID == "" {
		return cfg, nil
	}
	path, err := s.store.Path(cfg.File.FileID)
	if err != nil {
		return cfg, err
	}
	resolved := *cfg.File
	resolved.Path = path
	cfg.File = &resolved
	return cfg, nil
}

// Discover returns the schema of any source. File sources may name an
// uploaded file by ID.
func (s *Service) Discover(ctx context.Context, cfg SourceConfig, token string) (source.TableSchema, error) {
	if err := cfg.Validate(); err != nil {
		return source.TableSchema{}, err
	}
	cfg, err := s.resolve(cfg)
	if err != nil {
		return source.TableSchema{}, err
	}
	return s.builder.Discover(ctx, cfg, token)
}

// Preview returns one page of rows from any source.
func (s *Service) Preview(ctx context.Context, cfg SourceConfig, page, size int, token string) ([]source.Row, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg, err := s.resolve(cfg)
	if err != nil {
		return nil, err
	}
	src, err := s.builder.Open(cfg, token)
	if err != nil {
		return nil, err
	}
	return src.Page(ctx, page, s.PageSize(size))
}

// SaveUpload stores an uploaded file. It waits for an upload slot first.
func (s *Service) SaveUpload(ctx context.Context, name string, r io.Reader) (StoredFile, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return StoredFile{}, err
	}
	defer s.limiter.Release()

	stored, err := s.store.Save(name, r)
	if err != nil {
		return StoredFile{}, err
	}
	s.metrics.ObserveHistogram(metrics.UploadBytes, float64(stored.Size), metrics.Labels{"ext": filepath.Ext(stored.ID)})
	slog.Info("upload stored", "id", stored.ID, "name", stored.Name, "size", stored.Size)
	return stored, nil
}

// OpenUpload opens a stored file for download.
func (s *Service) OpenUpload(id string) (*os.File, StoredFile, error) {
	return s.store.Open(id)
}

// UploadSchema discovers the schema of a stored file.
func (s *Service) UploadSchema(ctx context.Context, id string, cfg source.FileConfig) (source.TableSchema, error) {
	return s.Discover(ctx, SourceConfig{Kind: KindFile, File: &FileSource{FileID: id, FileConfig: cfg}}, "")
}

// StreamSchema discovers the schema of a stream that is not stored. name
// supplies the extension when cfg.Kind is empty.
func (s *Service) StreamSchema(name string, r io.Reader, cfg source.FileConfig) (source.TableSchema, error) {
	kind := cfg.Kind
	if kind == "" {
		var err error
		if kind, err = file.KindFromPath(name); err != nil {
			return source.TableSchema{}, err
		}
	}
	return file.ParseSchema(kind, r, cfg)
}

// PreviewUpload returns one page of a stored file.
func (s *Service) PreviewUpload(ctx context.Context, id string, cfg source.FileConfig, page, size int) ([]source.Row, error) {
	return s.Preview(ctx, SourceConfig{Kind: KindFile, File: &FileSource{FileID: id, FileConfig: cfg}}, page, size, "")
}

// TestConnection reports whether the warehouse answers. It never errors.
func (s *Service) TestConnection(ctx context.Context, cfg source.WarehouseConfig, token string) bool {
	return s.connector.TestConnection(ctx, cfg, token)
}

// ListTables lists the tables of a warehouse.
func (s *Service) ListTables(ctx context.Context, cfg source.WarehouseConfig, token string) ([]string, error) {
	return s.connector.ListTables(ctx, cfg, token)
}

// TableSchema describes one warehouse table; an empty table name selects
// the first listed table.
func (s *Service) TableSchema(ctx context.Context, cfg source.WarehouseConfig, table, token string) (source.TableSchema, error) {
	return s.Discover(ctx, SourceConfig{
		Kind:      KindWarehouse,
		Warehouse: &WarehouseSource{WarehouseConfig: cfg, Table: table},
	}, token)
}

// PreviewTable returns one page of a warehouse table.
func (s *Service) PreviewTable(ctx context.Context, cfg source.WarehouseConfig, table string, page, size int, token string) ([]source.Row, error) {
	return s.Preview(ctx, SourceConfig{
		Kind:      KindWarehouse,
		Warehouse: &WarehouseSource{WarehouseConfig: cfg, Table: table},
	}, page, size, token)
}

// RunQuery runs a read query verbatim.
func (s *Service) RunQuery(ctx context.Context, cfg source.WarehouseConfig, query, token string) ([]source.Row, error) {
	return s.connector.RunQuery(ctx, cfg, query, token)
}

// Execute runs a statement verbatim.
func (s *Service) Execute(ctx context.Context, cfg source.WarehouseConfig, statement, token string) error {
	return s.connector.Execute(ctx, cfg, statement, token)
}

// Import bulk-loads delimited lines into a warehouse table. It shares the
// upload slots with SaveUpload.
func (s *Service) Import(ctx context.Context, cfg source.WarehouseConfig, table string, columns []string, rows io.Reader, token string) (warehouse.ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return warehouse.ImportResult{Batches: []int{}}, err
	}
	defer s.limiter.Release()

	return s.loader.ImportRows(ctx, cfg, table, columns, rows, token)
}
