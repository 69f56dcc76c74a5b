package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/schemaprobe/internal/core"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
	"github.com/JonMunkholm/schemaprobe/internal/web/templates"
)

// warehouseRequest is the body of the /api/source/warehouse endpoints.
// Which of Table, Query, Page and Size matter depends on the endpoint.
type warehouseRequest struct {
	Config source.WarehouseConfig `json:"config"`
	Table  string                 `json:"table,omitempty"`
	Query  string                 `json:"query,omitempty"`
	Page   int                    `json:"page,omitempty"`
	Size   int                    `json:"size,omitempty"`
}

func (s *Server) decodeWarehouseRequest(w http.ResponseWriter, r *http.Request) (warehouseRequest, error) {
	var req warehouseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	req.Config = s.withDefaultDialect(req.Config)
	return req, nil
}

// handleDiscover returns the schema of any source described by a
// SourceConfig body.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var cfg core.SourceConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	if cfg.Warehouse != nil {
		cfg.Warehouse.WarehouseConfig = s.withDefaultDialect(cfg.Warehouse.WarehouseConfig)
	}
	if cfg.File != nil && cfg.File.Path != "" {
		// Only uploaded files are reachable over HTTP.
		s.respondError(w, r, badRequest("file sources must reference an uploaded fileId"))
		return
	}

	schema, err := s.service.Discover(r.Context(), cfg, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

// handleClickHouseTest takes a bare connection config and reports whether
// ClickHouse answers.
func (s *Server) handleClickHouseTest(w http.ResponseWriter, r *http.Request) {
	var cfg source.WarehouseConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg.Dialect = "clickhouse"
	writeJSON(w, s.service.TestConnection(r.Context(), cfg, bearerToken(r)))
}

// handleClickHouseTables describes the first table of a ClickHouse database.
func (s *Server) handleClickHouseTables(w http.ResponseWriter, r *http.Request) {
	var cfg source.WarehouseConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg.Dialect = "clickhouse"

	schema, err := s.service.TableSchema(r.Context(), cfg, "", bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

func (s *Server) handleWarehouseTest(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWarehouseRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, s.service.TestConnection(r.Context(), req.Config, bearerToken(r)))
}

func (s *Server) handleWarehouseTables(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWarehouseRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	tables, err := s.service.ListTables(r.Context(), req.Config, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		s.renderHTML(w, r, templates.TableList(tables))
		return
	}
	writeJSON(w, tables)
}

func (s *Server) handleWarehouseSchema(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWarehouseRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	schema, err := s.service.TableSchema(r.Context(), req.Config, req.Table, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

func (s *Server) handleWarehouseQuery(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWarehouseRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, r, badRequest("query is empty"))
		return
	}
	rows, err := s.service.RunQuery(r.Context(), req.Config, req.Query, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleWarehousePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeWarehouseRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rows, err := s.service.PreviewTable(r.Context(), req.Config, req.Table, req.Page, req.Size, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// handleWarehouseImport bulk-loads the lines of a multipart "file" into a
// table. "config" is the JSON connection config and "columns" a
// comma-separated column list in line order.
func (s *Server) handleWarehouseImport(w http.ResponseWriter, r *http.Request) {
	f, _, err := formFile(w, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	var cfg source.WarehouseConfig
	if err := decodeJSONString(r.FormValue("config"), &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg = s.withDefaultDialect(cfg)

	table := strings.TrimSpace(r.FormValue("table"))
	columns := splitColumns(r.FormValue("columns"))
	if table == "" || len(columns) == 0 {
		s.respondError(w, r, badRequest("table and columns are required"))
		return
	}

	result, err := s.service.Import(r.Context(), cfg, table, columns, f, bearerToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleStatus reports the upload slots in use and the dialects available.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Uploads  core.UploadLimiterStatus `json:"uploads"`
		Dialects []string                 `json:"dialects"`
	}{s.service.Limiter().Status(), warehouse.Dialects()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// renderHTML renders c to a buffer first so a failed render still gets a
// clean error response.
func (s *Server) renderHTML(w http.ResponseWriter, r *http.Request, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func decodeJSONString(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return badRequest("config is required")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Sprintf("invalid config: %v", err))
	}
	return nil
}

func splitColumns(raw string) []string {
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
