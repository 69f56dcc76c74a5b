// Command probe discovers schemas and previews data from files and
// warehouses, and bulk-loads delimited rows into a warehouse table.
//
//	probe profile-init -profiles profiles.hcl
//	probe tables   -profile analytics
//	probe schema   -profile analytics -table page_views
//	probe discover -file orders.csv -delimiter ';'
//	probe preview  -file orders.csv -page 2 -size 20
//	probe query    -profile analytics -sql 'SELECT count() FROM page_views'
//	probe import   -profile analytics -table page_views -columns id,url -input rows.csv
//
// Results are printed to stdout as JSON; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/schemaprobe/internal/core"
	"github.com/JonMunkholm/schemaprobe/internal/logging"
	"github.com/JonMunkholm/schemaprobe/internal/metrics"
	"github.com/JonMunkholm/schemaprobe/internal/profile"
	"github.com/JonMunkholm/schemaprobe/internal/source"
	"github.com/JonMunkholm/schemaprobe/internal/source/warehouse"
)

const usage = `usage: probe <command> [flags]

commands:
  test          check that a warehouse answers
  tables        list warehouse tables
  schema        describe a warehouse table
  discover      describe a file or warehouse source
  preview       page through a file or warehouse table
  query         run a read query
  import        bulk-load delimited lines into a table
  profile-init  write an example profiles file

run "probe <command> -h" for the flags of a command`

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
		case core.IsUserFacing(err):
			fmt.Fprintln(os.Stderr, "probe:", core.FormatUserError(err))
			fmt.Fprintln(os.Stderr, "  detail:", err)
		default:
			fmt.Fprintln(os.Stderr, "probe:", err)
		}
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	profiles string
	profile  string
	token    string
	verbose  bool

	file      string
	fileCfg   source.FileConfig
	fileType  string
	table     string
	page      int
	size      int
	sql       string
	columns   string
	input     string
	separator string
}

func newFlagSet(name string, stderr io.Writer, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	profiles := os.Getenv("PROBE_PROFILES")
	if profiles == "" {
		profiles = "profiles.hcl"
	}
	fs.StringVar(&o.profiles, "profiles", profiles, "warehouse profiles file (HCL)")
	fs.StringVar(&o.profile, "profile", "", "profile name; may be empty when the file holds one profile")
	fs.StringVar(&o.token, "token", os.Getenv("WAREHOUSE_TOKEN"), "bearer token passed to the warehouse")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")

	fs.StringVar(&o.file, "file", "", "local file source (.csv, .tsv, .txt, .json)")
	fs.StringVar(&o.fileCfg.Delimiter, "delimiter", ",", "field delimiter")
	fs.BoolVar(&o.fileCfg.HasHeader, "header", true, "first record names the columns")
	fs.IntVar(&o.fileCfg.SkipRows, "skip", 0, "records to skip before the header")
	fs.StringVar(&o.fileCfg.Encoding, "encoding", "", "text encoding label, e.g. windows-1252")
	fs.BoolVar(&o.fileCfg.LazyQuotes, "lazy-quotes", false, "tolerate stray quotes")
	fs.StringVar(&o.fileType, "type", "", "file type (csv or json); default from extension")

	fs.StringVar(&o.table, "table", "", "warehouse table; default from profile, then the first table")
	fs.IntVar(&o.page, "page", 0, "zero-based page")
	fs.IntVar(&o.size, "size", 10, "rows per page")
	fs.StringVar(&o.sql, "sql", "", "query text")
	fs.StringVar(&o.columns, "columns", "", "comma-separated target columns, in line order")
	fs.StringVar(&o.input, "input", "-", "import input file, - for stdin")
	fs.StringVar(&o.separator, "separator", ",", "import field separator")
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprintln(stderr, usage)
		return flag.ErrHelp
	}
	cmd, rest := args[0], args[1:]

	var o options
	fs := newFlagSet(cmd, stderr, &o)
	if err := fs.Parse(rest); err != nil {
		return err
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(stderr, level, "text"))

	if o.fileType != "" {
		o.fileCfg.Kind = source.NormalizeKind(o.fileType)
	}

	p := &prober{opts: o, stdout: stdout, rec: metrics.NewRecorder()}
	p.connector = &warehouse.Connector{}
	p.builder = &core.SchemaBuilder{Warehouse: p.connector, Metrics: p.rec}

	switch cmd {
	case "test":
		return p.test(ctx)
	case "tables":
		return p.tables(ctx)
	case "schema", "discover":
		return p.discover(ctx)
	case "preview":
		return p.preview(ctx)
	case "query":
		return p.query(ctx)
	case "import":
		return p.importRows(ctx)
	case "profile-init":
		return p.profileInit()
	default:
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type prober struct {
	opts      options
	stdout    io.Writer
	rec       *metrics.Recorder
	connector *warehouse.Connector
	builder   *core.SchemaBuilder
}

func (p *prober) print(v any) error {
	enc := json.NewEncoder(p.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// warehouseProfile loads the selected profile and applies the batch size
// from the profiles file.
func (p *prober) warehouseProfile() (profile.Warehouse, *profile.File, error) {
	f, err := profile.Load(p.opts.profiles)
	if err != nil {
		return profile.Warehouse{}, nil, err
	}
	w, err := f.Get(p.opts.profile)
	if err != nil {
		return profile.Warehouse{}, nil, err
	}
	slog.Debug("using profile", "name", w.Name, "warehouse", w.Config().String())
	return w, f, nil
}

// sourceConfig builds a file source when -file is set, otherwise a
// warehouse source from the selected profile.
func (p *prober) sourceConfig() (core.SourceConfig, error) {
	if p.opts.file != "" {
		return core.SourceConfig{
			Kind: core.KindFile,
			File: &core.FileSource{Path: p.opts.file, FileConfig: p.opts.fileCfg},
		}, nil
	}
	w, _, err := p.warehouseProfile()
	if err != nil {
		return core.SourceConfig{}, err
	}
	table := p.opts.table
	if table == "" {
		table = w.Table
	}
	return core.SourceConfig{
		Kind:      core.KindWarehouse,
		Warehouse: &core.WarehouseSource{WarehouseConfig: w.Config(), Table: table},
	}, nil
}

func (p *prober) test(ctx context.Context) error {
	w, _, err := p.warehouseProfile()
	if err != nil {
		return err
	}
	return p.print(p.connector.TestConnection(ctx, w.Config(), p.opts.token))
}

func (p *prober) tables(ctx context.Context) error {
	w, _, err := p.warehouseProfile()
	if err != nil {
		return err
	}
	tables, err := p.connector.ListTables(ctx, w.Config(), p.opts.token)
	if err != nil {
		return err
	}
	return p.print(tables)
}

func (p *prober) discover(ctx context.Context) error {
	cfg, err := p.sourceConfig()
	if err != nil {
		return err
	}
	schema, err := p.builder.Discover(ctx, cfg, p.opts.token)
	if err != nil {
		return err
	}
	return p.print(schema)
}

func (p *prober) preview(ctx context.Context) error {
	cfg, err := p.sourceConfig()
	if err != nil {
		return err
	}
	src, err := p.builder.Open(cfg, p.opts.token)
	if err != nil {
		return err
	}
	rows, err := src.Page(ctx, p.opts.page, p.opts.size)
	if err != nil {
		return err
	}
	return p.print(rows)
}

func (p *prober) query(ctx context.Context) error {
	if strings.TrimSpace(p.opts.sql) == "" {
		return errors.New("-sql is required")
	}
	w, _, err := p.warehouseProfile()
	if err != nil {
		return err
	}
	rows, err := p.connector.RunQuery(ctx, w.Config(), p.opts.sql, p.opts.token)
	if err != nil {
		return err
	}
	return p.print(rows)
}

func (p *prober) importRows(ctx context.Context) error {
	w, f, err := p.warehouseProfile()
	if err != nil {
		return err
	}
	table := p.opts.table
	if table == "" {
		table = w.Table
	}
	var columns []string
	for _, c := range strings.Split(p.opts.columns, ",") {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}

	in := io.Reader(os.Stdin)
	if p.opts.input != "-" {
		file, err := os.Open(p.opts.input)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	loader := &warehouse.Loader{
		Connector: p.connector,
		BatchSize: f.BatchSize,
		Separator: p.opts.separator,
		Metrics:   p.rec,
	}
	result, err := loader.ImportRows(ctx, w.Config(), table, columns, in, p.opts.token)
	if err != nil {
		return err
	}
	slog.Info("import finished",
		"rows", p.rec.Counter(metrics.ImportRows),
		"batches", p.rec.Counter(metrics.ImportBatches),
	)
	return p.print(result)
}

func (p *prober) profileInit() error {
	if _, err := os.Stat(p.opts.profiles); err == nil {
		return fmt.Errorf("%s already exists", p.opts.profiles)
	}
	if err := profile.Export(p.opts.profiles, profile.Example()); err != nil {
		return err
	}
	fmt.Fprintf(p.stdout, "wrote %s\n", p.opts.profiles)
	return nil
}
