package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

func newJSONDecoder(r io.Reader, cfg source.FileConfig) (*json.Decoder, error) {
	text, err := textReader(r, cfg.Encoding)
	if err != nil {
		return nil, &source.ParseError{Err: err}
	}
	dec := json.NewDecoder(text)
	dec.UseNumber() // keeps 1 and 1.0 distinguishable for inference
	return dec, nil
}

// parseJSONSchema reads a single JSON object. Its keys, in document order,
// become the columns and the object itself is the only preview row.
func parseJSONSchema(r io.Reader, cfg source.FileConfig) (source.TableSchema, error) {
	dec, err := newJSONDecoder(r, cfg)
	if err != nil {
		return source.TableSchema{}, err
	}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return source.TableSchema{}, &source.ParseError{Err: errEmptyFile}
		}
		return source.TableSchema{}, &source.ParseError{Err: err}
	}
	if tok != json.Delim('{') {
		return source.TableSchema{}, &source.ParseError{Err: fmt.Errorf("expected a JSON object, got %v", tok)}
	}

	keys, row, err := readObjectBody(dec)
	if err != nil {
		return source.TableSchema{}, err
	}
	if err := expectEOF(dec); err != nil {
		return source.TableSchema{}, err
	}

	schema := source.TableSchema{
		Columns: make([]source.Column, 0, len(keys)),
		Preview: []source.Row{row},
	}
	for _, k := range keys {
		schema.Columns = append(schema.Columns, source.NewColumn(k, source.InferType(row[k])))
	}
	return schema, nil
}

// readObjectBody decodes the members of an object whose opening brace has
// already been consumed, keeping key order. A repeated key keeps its first
// position and its last value.
func readObjectBody(dec *json.Decoder) ([]string, source.Row, error) {
	var keys []string
	row := make(source.Row)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, &source.ParseError{Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, &source.ParseError{Err: fmt.Errorf("expected object key, got %v", tok)}
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, &source.ParseError{Err: fmt.Errorf("decode %q: %w", key, err)}
		}
		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = v
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, &source.ParseError{Err: fmt.Errorf("read object end: %w", err)}
	}
	return keys, row, nil
}

// expectEOF fails when anything but whitespace follows a single-object
// document.
func expectEOF(dec *json.Decoder) error {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return &source.ParseError{Err: fmt.Errorf("after JSON object: %w", err)}
	}
	return &source.ParseError{Err: fmt.Errorf("unexpected %v after JSON object", tok)}
}

// readJSONRows returns the [start, start+size) window of a JSON array of
// objects. Elements are decoded one at a time and decoding stops once the
// window is full. A single-object document is a one-row dataset.
func readJSONRows(r io.Reader, cfg source.FileConfig, start, size int) ([]source.Row, error) {
	rows := make([]source.Row, 0, min(size, 1024))

	dec, err := newJSONDecoder(r, cfg)
	if err != nil {
		return nil, err
	}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		return nil, &source.ParseError{Err: err}
	}

	switch tok {
	case json.Delim('['):
		for idx := 0; idx < start+size && dec.More(); idx++ {
			var elem any
			if err := dec.Decode(&elem); err != nil {
				return nil, &source.ParseError{Err: fmt.Errorf("decode element %d: %w", idx, err)}
			}
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, &source.ParseError{Err: fmt.Errorf("element %d is not an object", idx)}
			}
			if idx >= start {
				rows = append(rows, source.Row(obj))
			}
		}
		return rows, nil

	case json.Delim('{'):
		_, row, err := readObjectBody(dec)
		if err != nil {
			return nil, err
		}
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		if start == 0 {
			rows = append(rows, row)
		}
		return rows, nil

	default:
		return nil, &source.ParseError{Err: fmt.Errorf("expected a JSON array or object, got %v", tok)}
	}
}
