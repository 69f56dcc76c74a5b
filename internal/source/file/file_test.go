package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func columnPairs(s source.TableSchema) [][2]string {
	out := make([][2]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = [2]string{c.Name, string(c.Type)}
	}
	return out
}

func TestParseSchema_Delimited(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		cfg         source.FileConfig
		wantColumns [][2]string
		wantPreview []source.Row
	}{
		{
			name:  "header and first row",
			input: "id,amount,active\n1,2.50,true\n2,3.75,false\n",
			cfg:   source.FileConfig{Delimiter: ",", HasHeader: true},
			wantColumns: [][2]string{
				{"id", "integer"}, {"amount", "float"}, {"active", "boolean"},
			},
			wantPreview: []source.Row{{"id": "1", "amount": "2.50", "active": "true"}},
		},
		{
			name:        "inference uses only the first row",
			input:       "code\n42\nabc\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"code", "integer"}},
			wantPreview: []source.Row{{"code": "42"}},
		},
		{
			name:        "empty first cell types as string",
			input:       "code,name\n,alpha\n7,beta\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"code", "string"}, {"name", "string"}},
			wantPreview: []source.Row{{"code": "", "name": "alpha"}},
		},
		{
			name:        "synthesized names without header",
			input:       "5,x\n6,y\n",
			cfg:         source.FileConfig{HasHeader: false},
			wantColumns: [][2]string{{"column_1", "integer"}, {"column_2", "string"}},
			wantPreview: []source.Row{{"column_1": "5", "column_2": "x"}},
		},
		{
			name:        "skip rows before header",
			input:       "exported by tool\nreport v2\nid,name\n1,a\n",
			cfg:         source.FileConfig{HasHeader: true, SkipRows: 2},
			wantColumns: [][2]string{{"id", "integer"}, {"name", "string"}},
			wantPreview: []source.Row{{"id": "1", "name": "a"}},
		},
		{
			name:        "semicolon delimiter",
			input:       "a;b\n1.5;no\n",
			cfg:         source.FileConfig{Delimiter: ";", HasHeader: true},
			wantColumns: [][2]string{{"a", "float"}, {"b", "string"}},
			wantPreview: []source.Row{{"a": "1.5", "b": "no"}},
		},
		{
			name:        "tab delimiter escape",
			input:       "a\tb\n1\t2\n",
			cfg:         source.FileConfig{Delimiter: `\t`, HasHeader: true},
			wantColumns: [][2]string{{"a", "integer"}, {"b", "integer"}},
			wantPreview: []source.Row{{"a": "1", "b": "2"}},
		},
		{
			name:        "duplicate and blank headers",
			input:       "id,id,\n1,2,3\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"id", "integer"}, {"id_2", "integer"}, {"column_3", "integer"}},
			wantPreview: []source.Row{{"id": "1", "id_2": "2", "column_3": "3"}},
		},
		{
			name:        "short first row",
			input:       "a,b,c\n1\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"a", "integer"}, {"b", "string"}, {"c", "string"}},
			wantPreview: []source.Row{{"a": "1"}},
		},
		{
			name:        "header only",
			input:       "a,b\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"a", "string"}, {"b", "string"}},
			wantPreview: []source.Row{},
		},
		{
			name:        "utf-8 BOM is skipped",
			input:       "\xEF\xBB\xBFid\n9\n",
			cfg:         source.FileConfig{HasHeader: true},
			wantColumns: [][2]string{{"id", "integer"}},
			wantPreview: []source.Row{{"id": "9"}},
		},
		{
			name:        "declared windows-1252 encoding",
			input:       "name\ncaf\xe9\n",
			cfg:         source.FileConfig{HasHeader: true, Encoding: "windows-1252"},
			wantColumns: [][2]string{{"name", "string"}},
			wantPreview: []source.Row{{"name": "café"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchema(source.KindDelimited, strings.NewReader(tt.input), tt.cfg)
			if err != nil {
				t.Fatalf("ParseSchema() error = %v", err)
			}
			if cols := columnPairs(got); !reflect.DeepEqual(cols, tt.wantColumns) {
				t.Errorf("columns = %v, want %v", cols, tt.wantColumns)
			}
			if !reflect.DeepEqual(got.Preview, tt.wantPreview) {
				t.Errorf("preview = %v, want %v", got.Preview, tt.wantPreview)
			}
			for _, c := range got.Columns {
				if !c.Selected || c.TargetName != c.Name || c.TargetType != c.Type {
					t.Errorf("column %q target defaults not applied: %+v", c.Name, c)
				}
			}
		})
	}
}

func TestParseSchema_ParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		kind  source.FileKind
		input string
		cfg   source.FileConfig
	}{
		{"empty delimited file", source.KindDelimited, "", source.FileConfig{HasHeader: true}},
		{"bare quote", source.KindDelimited, "a,b\n1,\"x\"y\n", source.FileConfig{HasHeader: true}},
		{"multi-character delimiter", source.KindDelimited, "a::b\n", source.FileConfig{Delimiter: "::", HasHeader: true}},
		{"invalid utf-8", source.KindDelimited, "a\n\x80\n", source.FileConfig{HasHeader: true}},
		{"unknown encoding", source.KindDelimited, "a\n1\n", source.FileConfig{HasHeader: true, Encoding: "klingon"}},
		{"skip past end", source.KindDelimited, "a\n1\n", source.FileConfig{HasHeader: true, SkipRows: 5}},
		{"empty json", source.KindJSON, "", source.FileConfig{}},
		{"json array root", source.KindJSON, `[{"a":1}]`, source.FileConfig{}},
		{"truncated json", source.KindJSON, `{"a":1,`, source.FileConfig{}},
		{"json trailing garbage", source.KindJSON, `{"a":1} garbage`, source.FileConfig{}},
		{"json trailing bracket", source.KindJSON, `{"a":1}]`, source.FileConfig{}},
		{"json second object", source.KindJSON, `{"a":1} {"a":2}`, source.FileConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema(tt.kind, strings.NewReader(tt.input), tt.cfg)
			var pe *source.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseSchema() error = %v, want *source.ParseError", err)
			}
		})
	}
}

func TestParseSchema_ReadsOnlyFirstRow(t *testing.T) {
	// The malformed second data row is never reached.
	_, err := ParseSchema(source.KindDelimited, strings.NewReader("a,b\n1,2\n3,\"x\"y\n"), source.FileConfig{HasHeader: true})
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
}

func TestParseSchema_ParseErrorLine(t *testing.T) {
	_, err := ParseSchema(source.KindDelimited, strings.NewReader("a,b\n1,\"x\"y\n"), source.FileConfig{HasHeader: true})
	var pe *source.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", pe.Line)
	}
}

func TestParseSchema_JSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantColumns [][2]string
		wantPreview source.Row
	}{
		{
			name:        "object",
			input:       `{"a":1,"b":"x"}`,
			wantColumns: [][2]string{{"a", "integer"}, {"b", "string"}},
			wantPreview: source.Row{"a": json.Number("1"), "b": "x"},
		},
		{
			name:        "key order follows the document",
			input:       `{"zeta": true, "alpha": 1.25, "mid": null}`,
			wantColumns: [][2]string{{"zeta", "boolean"}, {"alpha", "float"}, {"mid", "string"}},
			wantPreview: source.Row{"zeta": true, "alpha": json.Number("1.25"), "mid": nil},
		},
		{
			name:        "nested values are strings",
			input:       `{"tags":["a","b"],"meta":{"k":"v"}}`,
			wantColumns: [][2]string{{"tags", "string"}, {"meta", "string"}},
			wantPreview: source.Row{"tags": []any{"a", "b"}, "meta": map[string]any{"k": "v"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchema(source.KindJSON, strings.NewReader(tt.input), source.FileConfig{})
			if err != nil {
				t.Fatalf("ParseSchema() error = %v", err)
			}
			if cols := columnPairs(got); !reflect.DeepEqual(cols, tt.wantColumns) {
				t.Errorf("columns = %v, want %v", cols, tt.wantColumns)
			}
			if len(got.Preview) != 1 {
				t.Fatalf("preview rows = %d, want 1", len(got.Preview))
			}
			if !reflect.DeepEqual(got.Preview[0], tt.wantPreview) {
				t.Errorf("preview = %#v, want %#v", got.Preview[0], tt.wantPreview)
			}
		})
	}
}

func TestParseSchema_Unsupported(t *testing.T) {
	_, err := ParseSchema(source.FileKind("xml"), strings.NewReader("<a/>"), source.FileConfig{})
	var ue *source.UnsupportedFormatError
	if !errors.As(err, &ue) {
		t.Fatalf("ParseSchema(xml) error = %v, want UnsupportedFormatError", err)
	}

	path := writeFile(t, "book.xlsx", "PK\x03\x04")
	schema, err := ParseSchemaFile(path, source.DefaultFileConfig())
	if !errors.As(err, &ue) {
		t.Fatalf("ParseSchemaFile(.xlsx) error = %v, want UnsupportedFormatError", err)
	}
	if len(schema.Columns) != 0 || len(schema.Preview) != 0 {
		t.Errorf("unsupported format returned partial schema: %+v", schema)
	}
}

func TestParseSchemaFile(t *testing.T) {
	path := writeFile(t, "orders.csv", "id,total\n1,9.99\n")
	got, err := ParseSchemaFile(path, source.DefaultFileConfig())
	if err != nil {
		t.Fatalf("ParseSchemaFile() error = %v", err)
	}
	want := [][2]string{{"id", "integer"}, {"total", "float"}}
	if cols := columnPairs(got); !reflect.DeepEqual(cols, want) {
		t.Errorf("columns = %v, want %v", cols, want)
	}

	_, err = ParseSchemaFile(filepath.Join(t.TempDir(), "missing.csv"), source.DefaultFileConfig())
	if !source.IsNotFound(err) {
		t.Errorf("missing file error = %v, want NotFoundError", err)
	}

	// An explicit kind wins over the extension.
	jsonPath := writeFile(t, "payload.txt", `{"n":2}`)
	got, err = ParseSchemaFile(jsonPath, source.FileConfig{Kind: source.KindJSON})
	if err != nil {
		t.Fatalf("ParseSchemaFile(kind=json) error = %v", err)
	}
	if len(got.Columns) != 1 || got.Columns[0].Type != source.TypeInteger {
		t.Errorf("columns = %+v", got.Columns)
	}
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    source.FileKind
		wantErr bool
	}{
		{"data.csv", source.KindDelimited, false},
		{"DATA.CSV", source.KindDelimited, false},
		{"data.tsv", source.KindDelimited, false},
		{"data.txt", source.KindDelimited, false},
		{"data.json", source.KindJSON, false},
		{"data.xlsx", "", true},
		{"data.parquet", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		got, err := KindFromPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("KindFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("KindFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func csvWithRows(n int) string {
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,row%d\n", i, i)
	}
	return b.String()
}

func jsonWithRows(n int) string {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id":%d,"name":"row%d"}`, i, i)
	}
	b.WriteString("]")
	return b.String()
}

func TestReadRows_Windows(t *testing.T) {
	csvPath := writeFile(t, "rows.csv", csvWithRows(25))
	jsonPath := writeFile(t, "rows.json", jsonWithRows(25))

	tests := []struct {
		name    string
		page    int
		size    int
		wantIDs []int
	}{
		{"first page", 0, 10, seq(0, 10)},
		{"second page", 1, 10, seq(10, 20)},
		{"partial last page", 2, 10, seq(20, 25)},
		{"past the end", 3, 10, nil},
		{"far past the end", 1 << 40, 10, nil},
		{"single row pages", 7, 1, []int{7}},
	}

	for _, tt := range tests {
		t.Run("csv/"+tt.name, func(t *testing.T) {
			rows, err := ReadRows(csvPath, source.DefaultFileConfig(), tt.page, tt.size)
			if err != nil {
				t.Fatalf("ReadRows() error = %v", err)
			}
			assertIDs(t, rows, tt.wantIDs, func(v any) string { return v.(string) })
		})
		t.Run("json/"+tt.name, func(t *testing.T) {
			rows, err := ReadRows(jsonPath, source.DefaultFileConfig(), tt.page, tt.size)
			if err != nil {
				t.Fatalf("ReadRows() error = %v", err)
			}
			assertIDs(t, rows, tt.wantIDs, func(v any) string { return string(v.(json.Number)) })
		})
	}
}

func TestReadRows_StopsAtWindow(t *testing.T) {
	// Content past the window is malformed; a forward scan that stops early
	// never reaches it.
	csvPath := writeFile(t, "tail.csv", csvWithRows(12)+"99,\"broken\"tail\n")
	rows, err := ReadRows(csvPath, source.DefaultFileConfig(), 0, 10)
	if err != nil {
		t.Fatalf("ReadRows(page 0) error = %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("rows = %d, want 10", len(rows))
	}

	_, err = ReadRows(csvPath, source.DefaultFileConfig(), 1, 10)
	var pe *source.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("ReadRows(page 1) error = %v, want ParseError", err)
	}

	jsonPath := writeFile(t, "tail.json", strings.TrimSuffix(jsonWithRows(12), "]")+",oops]")
	rows, err = ReadRows(jsonPath, source.DefaultFileConfig(), 0, 10)
	if err != nil {
		t.Fatalf("ReadRows(json page 0) error = %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("json rows = %d, want 10", len(rows))
	}
}

func TestReadRows_Shapes(t *testing.T) {
	t.Run("headerless csv", func(t *testing.T) {
		path := writeFile(t, "plain.csv", "a,1\nb,2\n")
		rows, err := ReadRows(path, source.FileConfig{HasHeader: false}, 0, 10)
		if err != nil {
			t.Fatalf("ReadRows() error = %v", err)
		}
		want := []source.Row{{"column_1": "a", "column_2": "1"}, {"column_1": "b", "column_2": "2"}}
		if !reflect.DeepEqual(rows, want) {
			t.Errorf("rows = %v, want %v", rows, want)
		}
	})

	t.Run("single json object", func(t *testing.T) {
		path := writeFile(t, "one.json", `{"a":"x"}`)
		rows, err := ReadRows(path, source.DefaultFileConfig(), 0, 5)
		if err != nil {
			t.Fatalf("ReadRows() error = %v", err)
		}
		if len(rows) != 1 || rows[0]["a"] != "x" {
			t.Errorf("rows = %v", rows)
		}
		rows, err = ReadRows(path, source.DefaultFileConfig(), 1, 5)
		if err != nil || len(rows) != 0 {
			t.Errorf("page 1 = %v, %v; want empty", rows, err)
		}
	})

	t.Run("single json object with trailing data", func(t *testing.T) {
		path := writeFile(t, "trailing.json", `{"a":"x"} {"a":"y"}`)
		_, err := ReadRows(path, source.DefaultFileConfig(), 0, 5)
		var pe *source.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("error = %v, want ParseError", err)
		}
	})

	t.Run("json array of scalars", func(t *testing.T) {
		path := writeFile(t, "scalars.json", `[1,2,3]`)
		_, err := ReadRows(path, source.DefaultFileConfig(), 0, 5)
		var pe *source.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("error = %v, want ParseError", err)
		}
	})

	t.Run("empty csv", func(t *testing.T) {
		path := writeFile(t, "empty.csv", "")
		rows, err := ReadRows(path, source.DefaultFileConfig(), 0, 5)
		if err != nil || rows == nil || len(rows) != 0 {
			t.Errorf("rows = %v, err = %v; want empty non-nil", rows, err)
		}
	})
}

func TestReadRows_Errors(t *testing.T) {
	path := writeFile(t, "ok.csv", csvWithRows(3))

	if _, err := ReadRows(path, source.DefaultFileConfig(), -1, 10); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("negative page error = %v", err)
	}
	if _, err := ReadRows(path, source.DefaultFileConfig(), 0, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("zero size error = %v", err)
	}
	if _, err := ReadRows(filepath.Join(t.TempDir(), "gone.csv"), source.DefaultFileConfig(), 0, 10); !source.IsNotFound(err) {
		t.Errorf("missing file error = %v", err)
	}
	var ue *source.UnsupportedFormatError
	if _, err := ReadRows(writeFile(t, "x.xlsx", "PK"), source.DefaultFileConfig(), 0, 10); !errors.As(err, &ue) {
		t.Errorf("xlsx error = %v", err)
	}
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func assertIDs(t *testing.T, rows []source.Row, want []int, id func(any) string) {
	t.Helper()
	if rows == nil {
		t.Fatal("rows is nil, want empty slice")
	}
	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if got := id(row["id"]); got != fmt.Sprint(want[i]) {
			t.Errorf("rows[%d].id = %s, want %d", i, got, want[i])
		}
	}
}
