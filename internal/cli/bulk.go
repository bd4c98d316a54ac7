package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/export"
)

func newAllCmd(a *app) *cobra.Command {
	var (
		limit int
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Print every record",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, _ []string) error {
			opts := a.cfg.CallOptions()
			opts.Limit, opts.Raw = limit, raw
			records, err := c.All(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printRecords(records)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 = all)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print stored text without decoding")
	return cmd
}

func newRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print the whole database as one JSON object",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, _ []string) error {
			m, err := c.Raw(cmd.Context(), a.cfg.CallOptions())
			if err != nil {
				return err
			}
			return a.printJSON(m)
		}),
	}
}

func newStartsWithCmd(a *app) *cobra.Command {
	var (
		limit int
		sort  string
	)
	cmd := &cobra.Command{
		Use:   "starts-with <prefix>",
		Short: "Print records whose key starts with prefix",
		Long: `Print records whose key starts with prefix. With --sort the records are
ordered descending by the value at a dotted path (e.g. ".stats.score");
records without that value come last.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			opts := a.cfg.CallOptions()
			opts.Limit, opts.SortPath = limit, sort
			records, err := c.StartsWith(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.printRecords(records)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 = all)")
	cmd.Flags().StringVar(&sort, "sort", "", "dotted path to sort by, descending")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireYes(yes, "clear the database"); err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			n, err := c.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleared %d keys: %w", n, err)
			}
			return a.printValue(fmt.Sprintf("deleted %d keys", n))
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: `Write records from a JSON array of {"id", "data"} objects ("-" reads stdin)`,
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			res, err := c.ImportJSON(cmd.Context(), r, a.cfg.CallOptions())
			if err != nil {
				return err
			}
			if err := a.printImport(res); err != nil {
				return err
			}
			if failed := len(res.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d records failed: %w", failed, len(res.Results), res.Err())
			}
			return nil
		}),
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		indent bool
	)
	cmd := &cobra.Command{
		Use:   "export <file|dir>",
		Short: "Copy every record into a JSON file or a LevelDB directory",
		Long: `Copy every record into a local sink. The format is json for "-" and *.json
paths and leveldb otherwise, unless --format says so.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			dst := args[0]
			if format == "" {
				format = "leveldb"
				if dst == "-" || strings.EqualFold(filepath.Ext(dst), ".json") {
					format = "json"
				}
			}

			var (
				n   int
				err error
			)
			switch format {
			case "json":
				n, err = exportJSON(cmd, c, dst, indent)
			case "leveldb":
				n, err = exportLevelDB(cmd, c, dst)
			default:
				return fmt.Errorf("unsupported export format %q (want json or leveldb)", format)
			}
			if err != nil {
				return fmt.Errorf("exported %d records: %w", n, err)
			}
			if dst == "-" {
				return nil
			}
			return a.printValue(fmt.Sprintf("exported %d records to %s", n, dst))
		}),
	}
	cmd.Flags().StringVar(&format, "format", "", "sink format: json|leveldb")
	cmd.Flags().BoolVar(&indent, "indent", false, "indent JSON output")
	return cmd
}

// createFile opens JSON export destinations.
var createFile = func(name string) (io.WriteCloser, error) { return os.Create(name) }

func exportJSON(cmd *cobra.Command, c *kvdb.Client, dst string, indent bool) (int, error) {
	if dst == "-" {
		return writeJSON(cmd, c, cmd.OutOrStdout(), indent)
	}
	f, err := createFile(dst)
	if err != nil {
		return 0, err
	}
	n, err := writeJSON(cmd, c, f, indent)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", dst, cerr)
	}
	return n, err
}

func writeJSON(cmd *cobra.Command, c *kvdb.Client, w io.Writer, indent bool) (int, error) {
	sink := export.NewJSONWriter(w, indent)
	n, err := c.ExportTo(cmd.Context(), sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func exportLevelDB(cmd *cobra.Command, c *kvdb.Client, dir string) (int, error) {
	db, err := export.OpenLevelDB(dir)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return c.ExportTo(cmd.Context(), db)
}
