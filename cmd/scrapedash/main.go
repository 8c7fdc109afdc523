package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teranos/scrapedash/cmd/scrapedash/commands"
	"github.com/teranos/scrapedash/logger"
)

var rootCmd = &cobra.Command{
	Use:   "scrapedash",
	Short: "scrapedash - live dashboard for a URL scraping backend",
	Long: `scrapedash - live dashboard for a URL scraping backend.

Loads the backend's job list, follows its push channel, and lets you submit
and cancel jobs from the terminal.

Available commands:
  watch        - Interactive dashboard with live updates
  ls           - Print one page of jobs
  submit       - Submit URLs for processing
  cancel       - Cancel a job
  mock-backend - Run an in-memory backend for local use
  config       - Show or initialise configuration
  version      - Show version information

Examples:
  scrapedash mock-backend &         # Local backend on 127.0.0.1:8000
  scrapedash watch                  # Live dashboard
  scrapedash submit https://go.dev  # Submit one URL now
  scrapedash ls --page 2            # Second page of jobs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")

		cfg, err := commands.LoadConfig()
		if err != nil {
			// config subcommands must still run to repair a broken file
			if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return logger.Initialize(false, verbosity)
			}
			return err
		}

		if err := logger.Initialize(cfg.Log.JSON, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Config file (default: merged system, user and project config)")

	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.CancelCmd)
	rootCmd.AddCommand(commands.MockBackendCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
