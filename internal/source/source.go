// Package source defines the normalized schema model shared by every data
// source: columns, table schemas, preview rows, and the per-kind
// configuration values callers hand to the discovery engine.
//
// The package is a leaf. File and warehouse implementations live in the
// file and warehouse subpackages and depend on it, never the other way.
package source

import "encoding/json"

// Type is a column type tag. For file sources it is one of the canonical
// types below; for warehouse sources it is the catalog's native type name,
// passed through unmodified.
type Type string

// Canonical types produced by InferType.
const (
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeBoolean Type = "boolean"
	TypeString  Type = "string"
)

// Column describes one source column and its mapping onto a target.
type Column struct {
	Name       string `json:"name"`
	Type       Type   `json:"type"`
	Selected   bool   `json:"selected"`
	TargetName string `json:"targetName"`
	TargetType Type   `json:"targetType"`
}

// NewColumn returns a selected column whose target mirrors the source.
func NewColumn(name string, typ Type) Column {
	return Column{
		Name:       name,
		Type:       typ,
		Selected:   true,
		TargetName: name,
		TargetType: typ,
	}
}

// Row maps source column names to values. Keys are never target names.
type Row map[string]any

// TableSchema is the ordered column list of a source plus a bounded preview.
//
// Every key in a preview row names a column of the same schema. A column may
// have no value in the preview.
type TableSchema struct {
	Columns []Column `json:"columns"`
	Preview []Row    `json:"preview"`
}

// EmptySchema returns a schema with no columns and no preview rows.
func EmptySchema() TableSchema {
	return TableSchema{Columns: []Column{}, Preview: []Row{}}
}

// ColumnNames returns the column names in schema order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// MarshalJSON encodes nil slices as empty arrays so the wire shape is
// always {"columns": [...], "preview": [...]}.
func (s TableSchema) MarshalJSON() ([]byte, error) {
	type wire TableSchema
	w := wire(s)
	if w.Columns == nil {
		w.Columns = []Column{}
	}
	if w.Preview == nil {
		w.Preview = []Row{}
	}
	return json.Marshal(w)
}
