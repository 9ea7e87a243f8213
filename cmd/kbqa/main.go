// Package main provides the kbqa binary entry point.
// kbqa scrapes a knowledge-base portal, builds a property-graph index of its
// articles and answers batches of questions against it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/kbqa/llm/providers"

	"github.com/c360studio/kbqa/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kbqa"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Knowledge-base question answering over a property graph",
		Long: `kbqa scrapes articles from a knowledge-base portal, chunks them, builds a
property-graph index with a local language model and an embedding model,
and answers a batch of questions against the graph.

Configuration is read from ~/.config/kbqa/config.yaml, then kbqa.yaml in the
current or a parent directory, then the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		askCmd(&flags),
		ingestCmd(&flags),
		scrapeCmd(&flags),
		configCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// newLogger builds the stderr text logger and installs it as default.
func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// setup loads the layered config and creates the logger for a command.
func setup(cmd *cobra.Command, flags *globalFlags) (*config.Config, *slog.Logger, error) {
	logger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	cfg, err := config.NewLoader(logger).Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}
