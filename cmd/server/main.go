// Package main is the NexusCRM metadata kernel server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexuscrm-kernel",
		Short: "NexusCRM metadata kernel",
		Long: `nexuscrm-kernel runs the metadata-driven CRM kernel: the schema registry,
the permission engine, the formula engine, flows, approvals and the record
pipeline, exposed over a thin HTTP adapter.

Configuration is read from an optional .env file and then the environment.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
