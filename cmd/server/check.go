package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/kernel/internal/bootstrap"
)

func newCheckCmd() *cobra.Command {
	var (
		strict     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the consistency assertions once",
		Long: `Load the registry from the database and run the consistency assertions
without creating or seeding anything. Exits non-zero when --strict is set
(or SCHEMA_STRICT_MODE=true) and any assertion violation is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if !cmd.Flags().Changed("strict") {
				strict = cfg.SchemaStrictMode
			}

			k, err := openKernel(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer k.Close()

			if err := k.svc.RefreshMetadataCache(cmd.Context()); err != nil {
				return err
			}
			result, runErr := bootstrap.RunAssertions(cmd.Context(), k.svc, strict, logger.Named("assertions"))
			if result != nil && jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("encoding result: %w", err)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on any violation (defaults to SCHEMA_STRICT_MODE)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the violations as JSON")
	return cmd
}
