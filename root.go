package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rowkeeper/dbsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// newRootCmd builds the fully-assembled root command with all subcommands
// registered. Grounded on the teacher's root.go command tree (one command
// per verb, persistent flags for config path and verbosity), trimmed to
// this engine's two entrypoints: run and status.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dbsync",
		Short:         "Two-way sync engine between a remote document store and a local content store",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: platform config dir)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadAppConfig resolves the config path (flag, then platform default) and
// loads it, building a logger sized by the verbosity flags.
func loadAppConfig() (*config.Config, *slog.Logger, error) {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	logger := buildLogger(nil)

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, buildLogger(cfg), nil
}

// buildLogger builds an slog.Logger whose level is driven by the config
// file's logging.log_level, overridden by the mutually-exclusive CLI
// verbosity flags (CLI always wins). Pass nil for a pre-config bootstrap
// logger.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	format := "auto"
	if cfg != nil && cfg.Logging.LogFormat != "" {
		format = cfg.Logging.LogFormat
	}

	if format == "auto" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
