// Package main implements fretectl, the operator CLI for the self-hosted
// WhatsApp instance, monitored groups and the extraction oracle.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/pkg/logging"
)

var (
	// envFile is loaded before any command runs.
	envFile string
	// timeout bounds every remote call.
	timeout time.Duration

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fretectl",
	Short: "Operate the fretebot messaging core",
	Long: `fretectl manages the self-hosted WhatsApp instance, syncs and configures
monitored groups, and runs the extraction oracle against sample input.

Settings come from the same environment variables as the API server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load (missing files are ignored)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for remote calls")
}

func loadConfig() *appconfig.Config {
	return appconfig.Load()
}

func cliLogger(cfg *appconfig.Config) *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: "text", Output: os.Stderr})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
