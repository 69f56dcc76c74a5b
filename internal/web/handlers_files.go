package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/web/templates"
)

// handleFileUpload stores a multipart "file" and returns its ID.
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	f, header, err := formFile(w, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	stored, err := s.service.SaveUpload(r.Context(), header.Filename, f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, stored)
}

// handleFileDownload streams a stored file back.
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.respondError(w, r, badRequest("missing id"))
		return
	}

	f, stored, err := s.service.OpenUpload(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+stored.ID+`"`)
	http.ServeContent(w, r, stored.ID, time.Time{}, f)
}

// handleFileSchema discovers the schema of an uploaded file without
// storing it.
func (s *Server) handleFileSchema(w http.ResponseWriter, r *http.Request) {
	f, header, err := formFile(w, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	cfg, err := fileConfigFromValues(r.FormValue)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	schema, err := s.service.StreamSchema(header.Filename, f, cfg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

// handleFilePreview returns one page of rows of a stored file.
func (s *Server) handleFilePreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	if id == "" {
		s.respondError(w, r, badRequest("missing id"))
		return
	}

	cfg, err := fileConfigFromValues(query.Get)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rows, err := s.service.PreviewUpload(r.Context(), id, cfg, page, size)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// handleSourceFileUpload stores a file and returns its ID together with
// the schema discovered under the "config" form field.
func (s *Server) handleSourceFileUpload(w http.ResponseWriter, r *http.Request) {
	f, header, err := formFile(w, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	cfg := source.DefaultFileConfig()
	if raw := r.FormValue("config"); raw != "" {
		if err := decodeJSONString(raw, &cfg); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	stored, err := s.service.SaveUpload(r.Context(), header.Filename, f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	schema, err := s.service.UploadSchema(r.Context(), stored.ID, cfg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, struct {
		ID     string             `json:"id"`
		Schema source.TableSchema `json:"schema"`
	}{stored.ID, schema})
}

// handleSourceFilePreview returns the schema of a stored file.
func (s *Server) handleSourceFilePreview(w http.ResponseWriter, r *http.Request) {
	schema, err := s.uploadSchema(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

// handlePreviewPage renders a stored file's schema as HTML.
func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	schema, err := s.uploadSchema(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.renderHTML(w, r, templates.PreviewPage(chi.URLParam(r, "fileId"), schema))
}

func (s *Server) uploadSchema(r *http.Request) (source.TableSchema, error) {
	cfg, err := fileConfigFromValues(r.URL.Query().Get)
	if err != nil {
		return source.TableSchema{}, err
	}
	return s.service.UploadSchema(r.Context(), chi.URLParam(r, "fileId"), cfg)
}

func pageParams(r *http.Request) (page, size int, err error) {
	if page, err = parseIntParam(r, "page", 0); err != nil {
		return 0, 0, err
	}
	if size, err = parseIntParam(r, "size", 0); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}
