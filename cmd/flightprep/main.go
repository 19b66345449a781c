package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/internal/pipeline"
	"github.com/ajitpratap0/flightprep/pkg/config"
	"github.com/ajitpratap0/flightprep/pkg/json"
	"github.com/ajitpratap0/flightprep/pkg/logger"
	"github.com/ajitpratap0/flightprep/pkg/metrics"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile  string
	envFiles    []string
	datasetsDir string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "flightprep",
		Short: "flightprep - flight delay dataset preparation",
		Long: `flightprep downloads the airline on-time performance dataset, converts every
raw partition into a compact columnar artifact and loads selected years back as
one merged table.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML configuration file (default ./"+config.DefaultFileName+" if present)")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "Dotenv files to load before reading the configuration (default .env)")
	pf.StringVarP(&flags.datasetsDir, "datasets-dir", "d", "", "Override the datasets directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "flightprep v%s\n", version)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
		newPrepareCommand(&flags),
		newLoadCommand(&flags),
		newInspectCommand(&flags),
		newReferenceCommand(&flags),
	)
	return root
}

func newPrepareCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Download, extract and convert every pending partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				report, err := a.loader.Prepare(ctx)
				if report != nil {
					fmt.Fprintln(cmd.OutOrStdout(), report.String())
					for _, r := range report.Failed() {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", r.Partition, r.Err)
					}
				}
				return err
			})
		},
	}
}

func newLoadCommand(flags *globalFlags) *cobra.Command {
	var (
		years   []string
		columns []string
		limit   int
		lines   bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Merge the selected years and print the rows as JSON",
		Long: `Load prepares the datasets directory if needed, merges the selected yearly
partitions and writes the rows to stdout. Null cells are omitted from each row.

Example:
  flightprep load --years 1987,1988 --columns UniqueCarrier,Departure,ArrDelay --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel := pipeline.AllYears()
			if cmd.Flags().Changed("years") {
				sel = pipeline.Years(years...)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				t, err := a.loader.Load(ctx, sel, columns)
				if err != nil {
					return err
				}
				a.logger.Info("loaded table",
					zap.Int("rows", t.NumRows()),
					zap.Strings("columns", t.Names()),
					zap.Int64("memory_bytes", t.MemoryUsage()))
				return writeRows(cmd, t, limit, !lines)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&years, "years", "y", nil, "Years to load (default all)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to keep, in order (default all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most this many rows; 0 prints all")
	cmd.Flags().BoolVar(&lines, "jsonl", false, "Write JSON lines instead of a JSON array")
	return cmd
}

func newInspectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <partition>",
		Short: "Print the stored layout of one artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(_ context.Context, a *app) error {
				footer, err := a.cache.Describe(args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(footer, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			})
		},
	}
}

func newReferenceCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "reference <airports|carriers|plane-data|airport-details>",
		Short:     "Print one of the reference tables as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{pipeline.AirportsPartition, pipeline.CarriersPartition, pipeline.PlaneDataPartition, "airport-details"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				t, err := a.reference(ctx, args[0])
				if err != nil {
					return err
				}
				return writeRows(cmd, t, limit, true)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most this many rows; 0 prints all")
	return cmd
}

// withApp loads configuration, wires the application and runs fn under a
// context cancelled by SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *app) error) error {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.datasetsDir != "" {
		cfg.DatasetsDir = flags.datasetsDir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger()); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(zap.String("component", "flightprep-cli"), zap.String("command", cmd.Name()))
	log.Debug("configuration loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, log); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				log.Warn("could not write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
			}
		}()
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}
