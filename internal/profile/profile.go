// Package profile loads named warehouse connection profiles from an HCL
// file, so the CLI does not need every connection parameter on the command
// line:
//
//	batch_size = 1000
//
//	warehouse "analytics" {
//	  dialect  = "clickhouse"
//	  host     = "ch.internal"
//	  port     = 8123
//	  database = "events"
//	  username = "reader"
//	  password = env("CH_PASSWORD")
//	  table    = "page_views"
//	}
//
// The env function reads a process environment variable at load time.
package profile

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/JonMunkholm/schemaprobe/internal/source"
)

// DefaultBatchSize matches the loader's default.
const DefaultBatchSize = 1000

// File is a decoded profiles file.
type File struct {
	BatchSize  int         `hcl:"batch_size,optional"`
	Warehouses []Warehouse `hcl:"warehouse,block"`
}

// Warehouse is one named connection profile.
type Warehouse struct {
	Name     string `hcl:"name,label"`
	Dialect  string `hcl:"dialect,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	Database string `hcl:"database,optional"`
	Username string `hcl:"username,optional"`
	Password string `hcl:"password,optional"`
	Secure   bool   `hcl:"secure,optional"`

	// Table pins the table used by discovery; empty means the first table
	// the warehouse lists.
	Table string `hcl:"table,optional"`
}

// Config returns the connection parameters of the profile.
func (w Warehouse) Config() source.WarehouseConfig {
	return source.WarehouseConfig{
		Dialect:  w.Dialect,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.Username,
		Password: w.Password,
		Secure:   w.Secure,
	}
}

// Default returns an empty profiles file with the default batch size.
func Default() *File {
	return &File{BatchSize: DefaultBatchSize}
}

// Example returns the starter file written by the CLI's profile-init.
func Example() *File {
	f := Default()
	f.Warehouses = []Warehouse{{
		Name:     "local",
		Dialect:  source.DefaultDialect,
		Host:     "localhost",
		Port:     8123,
		Database: "default",
		Username: "default",
	}}
	return f
}

var evalContext = &hcl.EvalContext{
	Functions: map[string]function.Function{
		"env": function.New(&function.Spec{
			Params: []function.Parameter{{Name: "name", Type: cty.String}},
			Type:   function.StaticReturnType(cty.String),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.StringVal(os.Getenv(args[0].AsString())), nil
			},
		}),
	},
}

// Load reads and validates the profiles file at path.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse profiles file: %s", diags.Error())
	}

	f := Default()
	diags = gohcl.DecodeBody(file.Body, evalContext, f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode profiles: %s", diags.Error())
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate rejects duplicate names, bad ports and a non-positive batch size.
func (f *File) Validate() error {
	if f.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", f.BatchSize)
	}
	seen := make(map[string]bool, len(f.Warehouses))
	for _, w := range f.Warehouses {
		if seen[w.Name] {
			return fmt.Errorf("warehouse %q defined more than once", w.Name)
		}
		seen[w.Name] = true
		if w.Port < 0 || w.Port > 65535 {
			return fmt.Errorf("warehouse %q: port %d out of range", w.Name, w.Port)
		}
	}
	return nil
}

// Get returns the named profile. An empty name selects the only profile
// when exactly one is defined.
func (f *File) Get(name string) (Warehouse, error) {
	if name == "" && len(f.Warehouses) == 1 {
		return f.Warehouses[0], nil
	}
	for _, w := range f.Warehouses {
		if w.Name == name {
			return w, nil
		}
	}
	if name == "" {
		return Warehouse{}, fmt.Errorf("profile name required: %d profiles defined", len(f.Warehouses))
	}
	return Warehouse{}, &source.NotFoundError{Kind: "profile", Name: name}
}

// Export writes f to path in HCL format. The file holds credentials, so it
// is created owner-readable only.
func Export(path string, f *File) error {
	out := hclwrite.NewEmptyFile()
	root := out.Body()

	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(f.BatchSize)))

	for _, w := range f.Warehouses {
		root.AppendNewline()
		body := root.AppendNewBlock("warehouse", []string{w.Name}).Body()
		setString(body, "dialect", w.Dialect)
		setString(body, "host", w.Host)
		if w.Port != 0 {
			body.SetAttributeValue("port", cty.NumberIntVal(int64(w.Port)))
		}
		setString(body, "database", w.Database)
		setString(body, "username", w.Username)
		setString(body, "password", w.Password)
		if w.Secure {
			body.SetAttributeValue("secure", cty.True)
		}
		setString(body, "table", w.Table)
	}

	if err := os.WriteFile(path, out.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

func setString(body *hclwrite.Body, name, v string) {
	if v != "" {
		body.SetAttributeValue(name, cty.StringVal(v))
	}
}
