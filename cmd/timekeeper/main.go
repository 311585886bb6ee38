// ABOUTME: Entry point for the timekeeper bot and its admin CLI
// ABOUTME: Cobra command tree over the tracker service

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-timekeeper/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _   _               _                              
| |_(_)_ __ ___   ___| | _____  ___ _ __   ___ _ __ 
| __| | '_ ' _ \ / _ \ |/ / _ \/ _ \ '_ \ / _ \ '__|
| |_| | | | | | |  __/   <  __/  __/ |_) |  __/ |   
 \__|_|_| |_| |_|\___|_|\_\___|\___| .__/ \___|_|   
                                   |_|              
`

var configPath string

// getConfigPath returns the default config path.
// Priority: TIMEKEEPER_CONFIG env var > XDG_CONFIG_HOME/timekeeper/config.yaml > ~/.config/timekeeper/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TIMEKEEPER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "timekeeper.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "timekeeper", "config.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timekeeper",
		Short:         "Time tracking bot that keeps its records in chat channels",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "config file (.yaml or .toml)")

	root.AddCommand(
		newInitCmd(),
		newSetupCmd(),
		newTaskCmd(),
		newGoalCmd(),
		newRecordCmd(),
		newTodayCmd(),
		newProgressCmd(),
		newReportCmd(),
		newRunCmd(),
	)
	return root
}

// withApp loads config, wires the app, and runs fn with it.
func withApp(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, logCloser := setupLogger(cfg.Logging)
		defer logCloser.Close()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

func startupLine(label, value string) {
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("%-10s %s\n", label+":", value)
}
