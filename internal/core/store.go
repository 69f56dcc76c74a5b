package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// ErrFileTooLarge is returned by UploadStore.Save when the stream exceeds
// the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// StoredFile describes a file held by the upload store.
type StoredFile struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// UploadStore keeps uploaded files in one directory under generated names.
// The original extension is kept so the parser can derive the file kind.
type UploadStore struct {
	dir     string
	maxSize int64
}

// NewUploadStore creates dir if needed. A maxSize <= 0 disables the limit.
func NewUploadStore(dir string, maxSize int64) (*UploadStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &UploadStore{dir: abs, maxSize: maxSize}, nil
}

// Dir returns the absolute upload directory.
func (s *UploadStore) Dir() string { return s.dir }

// Save copies r into a new file and returns its ID. name only contributes
// its extension. A partial file is removed on failure.
func (s *UploadStore) Save(name string, r io.Reader) (StoredFile, error) {
	id := uuid.New().String() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	path := filepath.Join(s.dir, id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxSize)
	}
	if err != nil {
		os.Remove(path)
		return StoredFile{}, fmt.Errorf("save upload: %w", err)
	}

	return StoredFile{ID: id, Name: filepath.Base(name), Path: path, Size: n}, nil
}

// Path resolves an ID to its file path. IDs containing path elements are
// rejected as not found.
func (s *UploadStore) Path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", &source.NotFoundError{Kind: "file", Name: id}
	}
	path := filepath.Join(s.dir, id)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &source.NotFoundError{Kind: "file", Name: id}
		}
		return "", fmt.Errorf("stat upload %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return "", &source.NotFoundError{Kind: "file", Name: id}
	}
	return path, nil
}

// Open returns the stored file for reading. The caller closes it.
func (s *UploadStore) Open(id string) (*os.File, StoredFile, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, StoredFile{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, StoredFile{}, fmt.Errorf("open upload %s: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, StoredFile{}, fmt.Errorf("stat upload %s: %w", id, err)
	}
	return f, StoredFile{ID: id, Path: path, Size: info.Size()}, nil
}
