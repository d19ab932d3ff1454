package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vidhi"
)

var version = "0.1.0"

// Set by the root command before any subcommand runs.
var (
	cfg    vidhi.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vidhi",
		Short: "Structure Nepali and English legal Acts",
		Long: `vidhi turns the pages of a legal Act into a validated hierarchy of
Parts, Chapters, Sections and Clauses.

For every Act it produces:
  - retrieval chunks keyed by citation path (Act/Part 2/Dapha 14/Khanda (ग))
  - a health report marking the Act clean or in need of review
  - provenance and confidence for every page and chunk`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(structureCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(refsCmd())

	// Cancel in-flight OCR on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vidhi:", err)
		stop()
		os.Exit(1)
	}
}

// setup loads .env, installs the logger and reads the config.
func setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	format, _ := cmd.Flags().GetString("log-format")
	level, _ := cmd.Flags().GetString("log-level")
	l, err := newLogger(format, level)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(logger)

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("VIDHI_CONFIG")
	}
	cfg, err = vidhi.LoadConfig(path)
	return err
}

// newLogger builds the process logger. Logs go to stderr so command
// output on stdout stays machine-readable.
func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("--log-format %q: want text or json", format)
	}
}

// openEngine creates an engine from the loaded config after applying
// per-command changes.
func openEngine(mutate func(*vidhi.Config)) (vidhi.Engine, error) {
	c := cfg
	if mutate != nil {
		mutate(&c)
	}
	return vidhi.New(c, vidhi.WithLogger(logger))
}
