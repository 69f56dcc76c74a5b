// Package file reads schema, preview, and row windows out of local
// delimited and JSON files.
//
// Schema discovery looks at exactly one row: the header (or synthesized
// names) fixes the columns and the first data row supplies both the
// inferred types and the single preview row. Full reads go through
// ReadRows, which pages forward through the file and stops as soon as the
// requested window is filled.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// ErrInvalidWindow is returned for a negative page or a non-positive size.
var ErrInvalidWindow = errors.New("invalid page window: page must be >= 0 and size > 0")

// KindFromPath derives the file kind from the extension.
func KindFromPath(path string) (source.FileKind, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "csv", "tsv", "txt":
		return source.KindDelimited, nil
	case "json":
		return source.KindJSON, nil
	default:
		return "", &source.UnsupportedFormatError{Kind: ext}
	}
}

// resolveKind prefers an explicit kind over the extension.
func resolveKind(path string, cfg source.FileConfig) (source.FileKind, error) {
	if cfg.Kind == "" {
		return KindFromPath(path)
	}
	switch cfg.Kind {
	case source.KindDelimited, source.KindJSON:
		return cfg.Kind, nil
	default:
		return "", &source.UnsupportedFormatError{Kind: string(cfg.Kind)}
	}
}

// ParseSchema reads columns and a one-row preview from r.
//
// Unsupported kinds fail with *source.UnsupportedFormatError before r is
// read. Malformed content fails with *source.ParseError.
func ParseSchema(kind source.FileKind, r io.Reader, cfg source.FileConfig) (source.TableSchema, error) {
	switch kind {
	case source.KindDelimited:
		return parseDelimitedSchema(r, cfg)
	case source.KindJSON:
		return parseJSONSchema(r, cfg)
	default:
		return source.TableSchema{}, &source.UnsupportedFormatError{Kind: string(kind)}
	}
}

// ParseSchemaFile is ParseSchema over a file on disk. The kind comes from
// cfg.Kind, or from the extension when cfg.Kind is empty.
func ParseSchemaFile(path string, cfg source.FileConfig) (source.TableSchema, error) {
	kind, err := resolveKind(path, cfg)
	if err != nil {
		return source.TableSchema{}, err
	}

	f, err := openFile(path)
	if err != nil {
		return source.TableSchema{}, err
	}
	defer f.Close()

	return ParseSchema(kind, f, cfg)
}

// ReadRows returns the rows with zero-based indices [page*size, page*size+size).
// A window past the end yields an empty slice, not an error.
func ReadRows(path string, cfg source.FileConfig, page, size int) ([]source.Row, error) {
	if page < 0 || size <= 0 {
		return nil, ErrInvalidWindow
	}
	kind, err := resolveKind(path, cfg)
	if err != nil {
		return nil, err
	}

	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadRowsFrom(kind, f, cfg, page, size)
}

// ReadRowsFrom is ReadRows over an already open stream.
func ReadRowsFrom(kind source.FileKind, r io.Reader, cfg source.FileConfig, page, size int) ([]source.Row, error) {
	if page < 0 || size <= 0 {
		return nil, ErrInvalidWindow
	}
	if page > (math.MaxInt-size)/size {
		return []source.Row{}, nil
	}
	start := page * size

	switch kind {
	case source.KindDelimited:
		return readDelimitedRows(r, cfg, start, size)
	case source.KindJSON:
		return readJSONRows(r, cfg, start, size)
	default:
		return nil, &source.UnsupportedFormatError{Kind: string(kind)}
	}
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &source.NotFoundError{Kind: "file", Name: filepath.Base(path)}
		}
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	return f, nil
}
