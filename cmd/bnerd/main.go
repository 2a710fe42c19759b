// Package main provides the BrowserNERD CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"browsernerd/internal/access"
	"browsernerd/internal/config"
	"browsernerd/internal/download"
	"browsernerd/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	stateDir   string
	headless   bool

	// Logger for non-interactive subcommands; the shell has its own UI and
	// category file logs.
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bnerd",
	Short: "BrowserNERD - multi-tab browsing shell on embedded Chrome",
	Long: `BrowserNERD is a terminal shell around an embedded Chrome engine.

It hosts several concurrent tabs, mediates navigation and download
decisions for each, and persists tabs, history, bookmarks and custom
commands across restarts. Access is gated behind a time-limited
activation code.

Run without arguments to start the interactive shell.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "bnerd" && cmd.CalledAs() == "bnerd" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell()
	},
}

// activateCmd validates an activation code without entering the shell.
var activateCmd = &cobra.Command{
	Use:   "activate [code]",
	Short: "Validate an activation code and persist the access grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := store.Open(filepath.Join(cfg.StateDir, "state.db"))
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer s.Close()

		gate := access.NewGate(access.Options{
			Dispatch:  func(job func()) { job() },
			Validator: access.PlaintextValidator{Credential: cfg.Access.Credential},
			Store:     s,
			Duration:  cfg.Access.GrantDuration,
		})
		if !gate.Validate(args[0]) {
			logger.Warn("activation rejected")
			return access.ErrActivationRejected
		}
		logger.Info("activated",
			zap.Duration("remaining", gate.TimeRemaining()))
		fmt.Printf("Activated. Access expires in %s.\n",
			gate.TimeRemaining().Round(time.Minute))
		return nil
	},
}

// classifyCmd shows how an address would be handled, without loading it.
var classifyCmd = &cobra.Command{
	Use:   "classify [url]",
	Short: "Report whether a URL would be treated as a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if download.Classify(args[0]) {
			fmt.Printf("download: %s\n", download.Filename(args[0]))
		} else {
			fmt.Println("navigation")
		}
		return nil
	},
}

// configCmd prints the effective configuration file location.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective config file path, writing defaults if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := config.Path(cfg.StateDir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.Save(path, cfg); err != nil {
				return err
			}
		}
		fmt.Println(path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Println("BrowserNERD (unknown version)")
			return
		}
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

// loadConfig resolves the config file from --config, --state-dir, or the
// default state directory, and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		dir := stateDir
		if dir == "" {
			dir = config.DefaultConfig().StateDir
		}
		path = config.Path(dir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if headless {
		cfg.Browser.Headless = true
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <state-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory (default ~/.bnerd)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "run Chrome headless")

	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !strings.Contains(err.Error(), "unknown command") {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
