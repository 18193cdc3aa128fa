package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"CatalogTx/internal/config"
	"CatalogTx/internal/logger"
	"CatalogTx/internal/transaction"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once the config is loaded.
type app struct {
	fs    afero.Fs
	cfg   config.Config
	log   *logger.Logger
	store *transaction.Store
}

func newApp(fs afero.Fs, cfg config.Config, log *logger.Logger) *app {
	return &app{
		fs:    fs,
		cfg:   cfg,
		log:   log,
		store: transaction.NewStore(fs, cfg.Path(cfg.BackupDir), transaction.WithLogger(log)),
	}
}

var (
	configPath  string
	metrics     bool
	forceConfig bool
	current     *app

	// stopMetrics flushes the metrics exporter once the command is done.
	stopMetrics func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "catalogtx",
		Short: "Export scraped catalog products to SQL files, one transaction per product",
		Long: `catalogtx appends scraped products to the catalog's SQL and registry
files. Every product is written in one file transaction: either all of its
files change or none do.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadApp,
	}

	importCmd = &cobra.Command{
		Use:   "import <feed>",
		Short: "Export every product of a YAML or JSON feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(current, args[0], cmd.OutOrStdout())
		},
	}

	orphansCmd = &cobra.Command{
		Use:   "orphans",
		Short: "List backups left behind by interrupted transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrphans(current, cmd.OutOrStdout())
		},
	}

	replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Drive transactions by hand from a line prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(current, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration to the --config path",
		Args:  cobra.NoArgs,
		// The config does not need to exist or be valid yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitConfig(afero.NewOsFs(), configPath, forceConfig, cmd.OutOrStdout())
		},
	}

	tuiCmd = &cobra.Command{
		Use:   "tui",
		Short: "Drive transactions by hand from a full screen console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(current)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&metrics, "metrics", false, "export transaction metrics to "+MetricsFile+" in the log directory")
	initConfigCmd.Flags().BoolVarP(&forceConfig, "force", "f", false, "overwrite an existing config file")
	rootCmd.AddCommand(importCmd, orphansCmd, replCmd, tuiCmd, initConfigCmd)
}

func loadApp(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log, err := logger.New("catalogtx", cfg.LogDir, level)
	if err != nil {
		return fmt.Errorf("failed to set up logging in %s: %w", cfg.LogDir, err)
	}
	log.WithField("command", cmd.Name()).WithField("config", configPath).Info("starting")

	transaction.SetMetricsEnabled(metrics)
	if metrics {
		f, err := fs.OpenFile(filepath.Join(cfg.LogDir, MetricsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open metrics file: %w", err)
		}
		shutdown, err := startMetrics(f)
		if err != nil {
			f.Close()
			return err
		}
		stopMetrics = func(ctx context.Context) error {
			defer f.Close()
			return shutdown(ctx)
		}
	}

	current = newApp(fs, cfg, log)
	return nil
}

func main() {
	err := rootCmd.Execute()
	if stopMetrics != nil {
		if mErr := stopMetrics(context.Background()); mErr != nil {
			fmt.Fprintln(os.Stderr, "Error: failed to flush metrics:", mErr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
