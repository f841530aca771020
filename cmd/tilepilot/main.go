package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tilepilot/internal/config"
	"tilepilot/internal/engine"
	"tilepilot/internal/logging"
	"tilepilot/internal/registry"
)

var (
	// Global flags
	verbose      bool
	workspace    string
	manifestPath string
	ortLib       string
	calibrated   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tilepilot",
	Short: "tilepilot - automated tile-challenge detection and solving",
	Long: `tilepilot attaches to a browser page, finds image-selection challenge
widgets, and solves them with on-device ONNX models.

Detection runs three paths depending on the challenge: a YOLO detector
for object categories it knows, per-tile CLIP classification for 3x3
grids, and CLIPSeg segmentation for everything else. No challenge data
ever leaves the machine.`,
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
		if err := logging.Initialize(workspace, verbose); err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory for settings, logs, and debug output")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "Model manifest path (embedded default when empty or unreadable)")
	rootCmd.PersistentFlags().StringVar(&ortLib, "ort-lib", "", "Path to the ONNX Runtime shared library")
	rootCmd.PersistentFlags().BoolVar(&calibrated, "calibrated", false, "Apply per-category calibrated thresholds")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(testModelsCmd)
}

// openStore opens the workspace settings store.
func openStore() (*config.Store, error) {
	return config.Open(config.DefaultPath(workspace))
}

// buildEngine assembles the detection engine from the manifest and the
// ONNX runtime.
func buildEngine() (*engine.Engine, *registry.Registry, error) {
	var (
		reg *registry.Registry
		err error
	)
	if manifestPath == "" {
		reg, err = registry.LoadEmbedded()
	} else {
		reg, err = registry.Load(manifestPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load manifest: %w", err)
	}

	var opts []engine.Option
	if calibrated {
		opts = append(opts, engine.WithCalibratedThresholds())
	}
	if verbose {
		opts = append(opts, engine.WithDebugDir(filepath.Join(workspace, ".tilepilot", "debug")))
	}
	return engine.New(reg, engine.NewORTRuntime(ortLib), opts...), reg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
