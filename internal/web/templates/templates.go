// Package templates renders the HTML fragments served by the web layer.
package templates

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// ErrorAlert renders a user-facing error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p class="alert-message">`+
			templ.EscapeString(message)+`</p>`); err != nil {
			return err
		}
		if action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(action)+`</p>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `<span class="alert-code">`+templ.EscapeString(code)+`</span></div>`)
		return err
	})
}

// SchemaTable renders the discovered columns as a header row, with the
// preview rows beneath it. Preview cells missing from a row render empty.
func SchemaTable(title string, schema source.TableSchema) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		b := &errWriter{w: w}
		b.printf(`<section class="schema"><h2>%s</h2>`, templ.EscapeString(title))
		if len(schema.Columns) == 0 {
			b.printf(`<p class="schema-empty">No columns found.</p></section>`)
			return b.err
		}

		b.printf(`<table class="schema-table"><thead><tr>`)
		for _, c := range schema.Columns {
			b.printf(`<th data-type="%s">%s<small>%s</small></th>`,
				templ.EscapeString(string(c.Type)), templ.EscapeString(c.Name), templ.EscapeString(string(c.Type)))
		}
		b.printf(`</tr></thead><tbody>`)
		for _, row := range schema.Preview {
			b.printf(`<tr>`)
			for _, c := range schema.Columns {
				b.printf(`<td>%s</td>`, templ.EscapeString(cell(row, c.Name)))
			}
			b.printf(`</tr>`)
		}
		b.printf(`</tbody></table></section>`)
		return b.err
	})
}

// PreviewPage wraps SchemaTable in a standalone document.
func PreviewPage(fileID string, schema source.TableSchema) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`+
			templ.EscapeString(fileID)+`</title></head><body>`); err != nil {
			return err
		}
		if err := SchemaTable(fileID, schema).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// TableList renders warehouse table names as a list.
func TableList(tables []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		sorted := append([]string(nil), tables...)
		sort.Strings(sorted)
		b := &errWriter{w: w}
		b.printf(`<ul class="tables">`)
		for _, t := range sorted {
			b.printf(`<li>%s</li>`, templ.EscapeString(t))
		}
		b.printf(`</ul>`)
		return b.err
	})
}

func cell(row source.Row, name string) string {
	v, ok := row[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
