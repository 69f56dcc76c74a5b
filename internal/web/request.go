package web

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// maxJSONBody caps JSON request bodies. Uploads use the configured file limit.
const maxJSONBody = 1 << 20

// bearerToken returns the token from "Authorization: Bearer <token>", or "".
// It is handed to the warehouse as a value and never stored.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return badRequest("request body is empty")
		}
		return badRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, badRequest(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return i, nil
}

// formFile parses a multipart form bounded by maxSize and opens its "file"
// part. The caller closes the returned file.
func formFile(w http.ResponseWriter, r *http.Request, maxSize int64) (multipart.File, *multipart.FileHeader, error) {
	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, err
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return f, header, nil
}

// fileConfigFromValues reads parse options from form or query values.
// Missing values fall back to a comma delimiter with a header row.
func fileConfigFromValues(get func(string) string) (source.FileConfig, error) {
	cfg := source.DefaultFileConfig()
	if v := get("delimiter"); v != "" {
		cfg.Delimiter = v
	}
	if v := get("hasHeader"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, badRequest("hasHeader must be true or false")
		}
		cfg.HasHeader = b
	}
	if v := get("skipRows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, badRequest("skipRows must be a non-negative integer")
		}
		cfg.SkipRows = n
	}
	if v := get("fileType"); v != "" {
		cfg.Kind = source.NormalizeKind(v)
	}
	cfg.Encoding = get("encoding")
	if v := get("lazyQuotes"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, badRequest("lazyQuotes must be true or false")
		}
		cfg.LazyQuotes = b
	}
	return cfg, nil
}

// withDefaultDialect fills an empty dialect from server config.
func (s *Server) withDefaultDialect(cfg source.WarehouseConfig) source.WarehouseConfig {
	if cfg.Dialect == "" {
		cfg.Dialect = s.cfg.Warehouse.Dialect
	}
	return cfg
}
