package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"northwind-go/config"
	"northwind-go/dataset"
	"northwind-go/logger"
	"northwind-go/operators"
	"northwind-go/operators/project"
	"northwind-go/queries"
	"northwind-go/sink"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envPath string
	rootCmd := &cobra.Command{
		Use:   "northwind",
		Short: "Query exercises over the northwind dataset",
		Long: `northwind runs a fixed set of query exercises (filtering, joining,
grouping, aggregation, sorting, bucketing) over a small dataset of
customers, orders, products and suppliers and prints the results.

Examples:
  northwind list
  northwind run price-buckets
  northwind run --all --format json
  northwind export city-statistics city.parquet
  northwind inspect city.parquet --columns city,average_sum`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(configPath, envPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file with NORTHWIND_* overrides (skipped when missing)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(datasetCmd())
	rootCmd.AddCommand(inspectCmd())
	return rootCmd
}

// setup applies the config file, then the environment, then builds the logger.
func setup(configPath, envPath string) error {
	if configPath != "" {
		if err := config.Decode(configPath); err != nil {
			return err
		}
	}
	if err := config.LoadEnv(envPath); err != nil {
		return err
	}
	cfg := config.GetConfig()
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return nil
}

func loadTables() (*dataset.Tables, error) {
	dir := config.GetConfig().Dataset.CSVDir
	if dir == "" {
		return dataset.Default(), nil
	}
	logger.Get().Info("loading dataset", "dir", dir)
	return dataset.LoadCSV(dir)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tTITLE")
			for _, q := range queries.Registry() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", q.ID, q.Category, q.Title)
			}
			return tw.Flush()
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [query-id...]",
		Short: "Run one or more queries and print their results",
		Long: `Run queries by id and print each result.

Example:
  northwind run turnover-above wrong-clients
  northwind run --all --format json
  northwind run turnover-descending --limit 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			format, _ := cmd.Flags().GetString("format")
			limit, _ := cmd.Flags().GetUint64("limit")

			selected, err := selectQueries(args, all)
			if err != nil {
				return err
			}
			if format == "" {
				format = config.GetConfig().Output.Format
			}
			tables, err := loadTables()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, q := range selected {
				if format == "table" {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "# %s: %s\n", q.ID, q.Title)
				}
				if err := runQuery(q, tables, format, limit, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Run every query in registry order")
	cmd.Flags().StringP("format", "f", "", "Output format: table or json (default from config)")
	cmd.Flags().Uint64("limit", 0, "Print at most this many rows per query (0 prints all)")
	return cmd
}

func selectQueries(ids []string, all bool) ([]queries.Query, error) {
	if all {
		if len(ids) > 0 {
			return nil, fmt.Errorf("--all takes no query ids")
		}
		return queries.Registry(), nil
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("name at least one query id or pass --all (see: northwind list)")
	}
	selected := make([]queries.Query, 0, len(ids))
	for _, id := range ids {
		q, err := queries.Lookup(id)
		if err != nil {
			return nil, err
		}
		selected = append(selected, q)
	}
	return selected, nil
}

func runQuery(q queries.Query, tables *dataset.Tables, format string, limit uint64, out io.Writer) error {
	op, err := q.Build(tables)
	if err != nil {
		return fmt.Errorf("%s: %w", q.ID, err)
	}
	if limit > 0 {
		lim, err := queries.Limit(op, limit)
		if err != nil {
			op.Close()
			return err
		}
		op = lim
	}
	defer op.Close()
	s, err := sink.New(format, out, op.Schema())
	if err != nil {
		return err
	}
	rows, err := sink.Drain(op, s, batchSize())
	if err != nil {
		return fmt.Errorf("%s: %w", q.ID, err)
	}
	logger.Component("cli").Debug("query printed", "query", q.ID, "rows", rows)
	return nil
}

func batchSize() uint16 {
	return uint16(config.GetConfig().Batch.Size)
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <query-id> <file.parquet>",
		Short: "Write a query result to a Parquet file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queries.Lookup(args[0])
			if err != nil {
				return err
			}
			if !strings.HasSuffix(args[1], ".parquet") {
				return fmt.Errorf("output file must end in .parquet")
			}
			tables, err := loadTables()
			if err != nil {
				return err
			}
			op, err := q.Build(tables)
			if err != nil {
				return fmt.Errorf("%s: %w", q.ID, err)
			}
			defer op.Close()
			return writeParquet(op, args[1], cmd.OutOrStdout())
		},
	}
}

func writeParquet(op operators.Operator, path string, out io.Writer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	// flushing the parquet writer closes f; this covers the error paths
	defer f.Close()
	ps, err := sink.NewParquetSink(f, op.Schema(), config.GetConfig().Output.ParquetCompression)
	if err != nil {
		return err
	}
	rows, err := sink.Drain(op, ps, batchSize())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d rows to %s\n", rows, path)
	return nil
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.parquet>",
		Short: "Print the rows of a Parquet file",
		Long: `Read a Parquet file, such as one written by export, and print it.
With --columns only the named columns are decoded.

Example:
  northwind inspect city.parquet
  northwind inspect city.parquet --columns city,average_sum --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, _ := cmd.Flags().GetStringSlice("columns")
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = config.GetConfig().Output.Format
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			var src *project.ParquetSource
			if len(columns) > 0 {
				src, err = project.NewParquetSourcePushDown(f, columns)
			} else {
				src, err = project.NewParquetSource(f)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			defer src.Close()
			s, err := sink.New(format, cmd.OutOrStdout(), src.Schema())
			if err != nil {
				return err
			}
			rows, err := sink.Drain(src, s, batchSize())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			logger.Component("cli").Debug("parquet printed", "file", args[0], "rows", rows)
			return nil
		},
	}
	cmd.Flags().StringSlice("columns", nil, "Only read these columns")
	cmd.Flags().StringP("format", "f", "", "Output format: table or json (default from config)")
	return cmd
}

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect or dump the dataset",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump <dir>",
		Short: "Write the dataset as CSV files that dataset.csv_dir can load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables()
			if err != nil {
				return err
			}
			if err := dataset.WriteCSV(args[0], tables); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s, %s, %s, %s to %s\n",
				dataset.CustomersFile, dataset.OrdersFile, dataset.ProductsFile, dataset.SuppliersFile, args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <customers|orders|products|suppliers>",
		Short: "Print one dataset table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables()
			if err != nil {
				return err
			}
			var op operators.Operator
			switch args[0] {
			case "customers":
				op, err = tables.Customers()
			case "orders":
				op, err = tables.Orders()
			case "products":
				op, err = tables.Products()
			case "suppliers":
				op, err = tables.Suppliers()
			default:
				return fmt.Errorf("unknown table %q", args[0])
			}
			if err != nil {
				return err
			}
			defer op.Close()
			s, err := sink.New(config.GetConfig().Output.Format, cmd.OutOrStdout(), op.Schema())
			if err != nil {
				return err
			}
			_, err = sink.Drain(op, s, batchSize())
			return err
		},
	})
	return cmd
}
