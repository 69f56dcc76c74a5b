package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/schemaprobe/internal/profile"
	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// sqliteProfiles writes a profiles file with one sqlite warehouse holding
// an empty "events" table.
func sqliteProfiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "wh.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE events (id INTEGER, name TEXT)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	path := filepath.Join(dir, "profiles.hcl")
	hcl := fmt.Sprintf("batch_size = 2\n\nwarehouse \"local\" {\n  dialect  = \"sqlite\"\n  database = %q\n  table    = \"events\"\n}\n", dbPath)
	if err := os.WriteFile(path, []byte(hcl), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runProbe(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_FileCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte("id;amount\n1;2.5\n2;3\n3;4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runProbe(t, "discover", "-file", path, "-delimiter", ";")
	if err != nil {
		t.Fatalf("discover error = %v", err)
	}
	var schema source.TableSchema
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("discover output %q: %v", out, err)
	}
	if len(schema.Columns) != 2 || schema.Columns[1].Type != source.TypeFloat {
		t.Errorf("columns = %+v", schema.Columns)
	}

	out, err = runProbe(t, "preview", "-file", path, "-delimiter", ";", "-page", "1", "-size", "2")
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] != "3" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRun_WarehouseCommands(t *testing.T) {
	profiles := sqliteProfiles(t)
	input := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(input, []byte("1|a\n2|b\n3|c\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"test", []string{"test"}, "true"},
		{"tables", []string{"tables"}, `"events"`},
		{"import", []string{"import", "-columns", "id,name", "-separator", "|", "-input", input}, `"batches": [`},
		{"query", []string{"query", "-sql", "SELECT COUNT(*) AS n FROM events"}, `"n": 3`},
		{"schema", []string{"schema"}, `"name": "name"`},
		{"preview", []string{"preview", "-size", "1", "-page", "2"}, `"c"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runProbe(t, append(tt.args, "-profiles", profiles)...)
			if err != nil {
				t.Fatalf("run(%v) error = %v", tt.args, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	profiles := sqliteProfiles(t)

	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{"no args", nil, func(err error) bool { return errors.Is(err, flag.ErrHelp) }},
		{"unknown command", []string{"explode"}, func(err error) bool { return err != nil }},
		{"unknown profile", []string{"tables", "-profiles", profiles, "-profile", "prod"}, source.IsNotFound},
		{"query without sql", []string{"query", "-profiles", profiles}, func(err error) bool { return err != nil }},
		{"missing profiles file", []string{"tables", "-profiles", filepath.Join(t.TempDir(), "none.hcl")}, func(err error) bool { return err != nil }},
		{"unsupported file", []string{"discover", "-file", "book.xlsx"}, func(err error) bool {
			var uf *source.UnsupportedFormatError
			return errors.As(err, &uf)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runProbe(t, tt.args...)
			if !tt.check(err) {
				t.Errorf("run(%v) error = %v", tt.args, err)
			}
		})
	}
}

func TestRun_ProfileInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.hcl")

	if _, err := runProbe(t, "profile-init", "-profiles", path); err != nil {
		t.Fatalf("profile-init error = %v", err)
	}
	f, err := profile.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if w, err := f.Get(""); err != nil || w.Name != "local" {
		t.Errorf("Get() = %+v, %v", w, err)
	}

	if _, err := runProbe(t, "profile-init", "-profiles", path); err == nil {
		t.Error("profile-init should refuse to overwrite")
	}
}
