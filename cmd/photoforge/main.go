package main

import (
	"fmt"
	"os"
	"time"

	"photoforge/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "photoforge",
	Short: "PhotoForge - photogrammetry capture and reconstruction pipeline",
	Long: `PhotoForge turns folders of overlapping photos into packaged 3D scene
assets. It manages the capture session lifecycle, drives reconstruction jobs
with live progress, and keeps a catalog of completed assets.

A session collects photos until it is finished, then a reconstruction job
consumes the frozen photo set and streams progress until it completes, fails,
or is cancelled.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("Category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(reconstructCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
