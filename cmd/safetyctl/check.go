package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/safetyline/internal"
)

var serveCheckCmd = &cobra.Command{
	Use:   "serve-check",
	Short: "Validate the server configuration without starting it",
	Long: `Load the server configuration from the environment (and .env) and report
the first problem found. Secrets are never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := internal.NewConfig()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "configuration ok")
		for _, row := range [][2]string{
			{"env", cfg.Env},
			{"port", fmt.Sprint(cfg.Port)},
			{"document store", cfg.DocumentStore},
			{"blob storage", cfg.StorageProvider},
			{"mail provider", cfg.MailProvider},
			{"mail gateway", cfg.MailGatewayURL},
			{"worker", fmt.Sprintf("enabled=%t concurrency=%d", cfg.WorkerEnabled, cfg.WorkerConcurrency)},
			{"draft ttl", cfg.DraftTTL.String()},
			{"admins", fmt.Sprint(len(cfg.AdminEmails))},
		} {
			fmt.Fprintf(out, "  %-15s %s\n", row[0], row[1])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCheckCmd)
}
