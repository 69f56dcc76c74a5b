package web

// errors.go turns engine errors into HTTP responses.
//
// Every failure is logged with its technical detail and request ID, then
// mapped through core.MapError so the client sees a stable code and a
// readable message. API routes get JSON; page routes get an HTML alert.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/schemaprobe/internal/core"
	"github.com/JonMunkholm/schemaprobe/internal/logging"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/file"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
	"github.com/JonMunkholm/schemaprobe/internal/web/templates"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
)

// badRequestError marks a malformed request: bad JSON, a missing field.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Row and Committed are set for import failures.
	Row       int  `json:"row,omitempty"`
	Committed *int `json:"committed,omitempty"`
}

// statusFor picks the HTTP status for an engine error.
func statusFor(err error) int {
	var (
		connErr   *source.ConnectionError
		notFound  *source.NotFoundError
		format    *source.UnsupportedFormatError
		parseErr  *source.ParseError
		importErr *source.ImportError
		badReq    *badRequestError
	)
	switch {
	case errors.As(err, &badReq),
		errors.Is(err, errNoFile),
		errors.Is(err, core.ErrInvalidSource),
		errors.Is(err, warehouse.ErrUnknownDialect),
		errors.Is(err, warehouse.ErrInvalidWindow),
		errors.Is(err, file.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &format):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &parseErr), errors.As(err, &importErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	var br *badRequestError
	if errors.As(err, &br) {
		userMsg = core.UserMessage{Message: br.msg, Action: "Check the request and try again", Code: "REQ001"}
	}

	logging.FromContext(r.Context()).Log(r.Context(), levelFor(status), "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", userMsg.Code,
		"error", err.Error(),
	)

	if strings.HasPrefix(r.URL.Path, "/api/") {
		resp := errorResponse(userMsg)
		var ie *source.ImportError
		if errors.As(err, &ie) {
			resp.Row = ie.Row
			committed := ie.Committed
			resp.Committed = &committed
		}
		writeErrorJSON(w, resp, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error alert", "error", err)
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func errorResponse(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
}

// respondErrorJSON writes msg as a JSON error body. Used by middleware
// that runs before a handler and has no engine error to map.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	writeErrorJSON(w, errorResponse(msg), status)
}

func writeErrorJSON(w http.ResponseWriter, resp ErrorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
