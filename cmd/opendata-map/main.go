// Command opendata-map serves NYC open-data layers to the map client and runs
// the same pipeline from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/logger"
)

// Stamped at link time alongside metrics.Version.
var (
	revision  = ""
	buildDate = ""
)

type globalFlags struct {
	configFile string
	logLevel   string
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	a := &app{}

	root := &cobra.Command{
		Use:   "opendata-map",
		Short: "NYC open-data map layers",
		Long: `opendata-map pulls NYC open datasets (power outages, rat sightings,
renewable energy projects, EV charging stations) from Socrata, validates them,
and serves them as GeoJSON map layers. It can also ask an LLM for
recommendations on a renewable energy project.

Configuration comes from OPENDATA_* environment variables and an optional
YAML file (--config or OPENDATA_CONFIG).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if flags.configFile != "" {
				if err := os.Setenv("OPENDATA_CONFIG", flags.configFile); err != nil {
					return fmt.Errorf("set config path: %w", err)
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				cfg.LogLevel = flags.logLevel
			}
			a.cfg = cfg
			a.logger = buildLogger(cfg, cmd.Name(), logOutput(cmd))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(a),
		newDatasetsCmd(a),
		newFetchCmd(a),
		newYearsCmd(a),
		newRecommendCmd(a),
		newPublishCmd(a),
	)
	return root
}

// logOutput keeps stdout free for command output; only the server logs there.
func logOutput(cmd *cobra.Command) io.Writer {
	if cmd.Name() == "serve" {
		return cmd.OutOrStdout()
	}
	return cmd.ErrOrStderr()
}

func buildLogger(cfg *config.Config, component string, out io.Writer) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: component,
	}, out)
	return logger.NewSlog(&zl)
}
