// Command maxclient runs a messaging session from a configuration file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lightforgemedia/go-maxclient/internal/config"
	"github.com/lightforgemedia/go-maxclient/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "maxclient",
		Short:         "Messaging session client over WebSocket or TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "maxclient.yaml", "configuration file (.yaml, .yml or .toml)")

	rootCmd.AddCommand(
		runCmd(&configPath),
		inspectCmd(&configPath),
		versionCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds its logger.
func setup(configPath string, stderr io.Writer) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger, err := logging.New(stderr, logging.Options{
		Level:     level,
		Format:    cfg.Log.Format,
		File:      cfg.Log.File,
		AddSource: level <= slog.LevelDebug,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
