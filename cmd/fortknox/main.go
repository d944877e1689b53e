// fortknox is the CLI for the compile pipeline: serve the HTTP API,
// run one-off compiles, inspect policies and masking.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DanielWarg/fortknox/core/config"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

var (
	configPath string
	cfg        config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fortknox",
	Short:         "Deterministic privacy-preserving compile pipeline",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		cmd.SilenceUsage = true
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
