// Package cli wires configuration, storage and services into the
// auction-house command line.
package cli

import (
	"fmt"
	"os"

	"auction-house/internal/config"
	"auction-house/utils"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	storeOverride string
	logLevel      string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "auction-house",
	Short: "Online auction house API",
	Long: `auction-house runs an online auction API: sellers list items for a
fixed time window, bidders place strictly increasing bids, and a background
sweeper closes auctions and notifies winners and sellers.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeOverride, "store", "", "Storage backend: memory, postgres, mysql or mongo (overrides STORE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, seedCmd)
}

// loadConfig applies flag overrides on top of the environment
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if storeOverride != "" {
		cfg.Store = storeOverride
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := config.ValidateStore(cfg.Store); err != nil {
		return config.Config{}, err
	}
	utils.SetLevel(cfg.LogLevel)
	return cfg, nil
}
