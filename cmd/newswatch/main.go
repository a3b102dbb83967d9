// newswatch watches a game operator's publication surfaces, archives every
// announcement, and notifies Telegram channels.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/version"
)

func main() {
	root := &cobra.Command{
		Use:           "newswatch",
		Short:         "Publication monitor: archive announcements and notify Telegram",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath, envPath string
	root.PersistentFlags().StringVar(&configPath, "config",
		getEnv("NEWSWATCH_CONFIG", "config.yaml"), "path to the configuration file")
	root.PersistentFlags().StringVar(&envPath, "env", ".env",
		"path to an optional .env file loaded before the configuration")

	root.AddCommand(
		newServeCmd(&configPath, &envPath),
		newSchemaCmd(),
		newEventsCmd(&configPath, &envPath),
	)

	if err := root.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration file JSON schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}
