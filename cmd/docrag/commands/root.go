// Package commands defines all Cobra CLI commands for the docrag binary.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/audit"
	"github.com/54b3r/docrag-go/internal/config"
	"github.com/54b3r/docrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docrag",
		Short: "docrag answers questions about your PDFs",
		Long: `docrag extracts text from PDF files, embeds it and stores it in a vector
database, then answers natural-language questions using the most similar
documents as context.

Settings come from environment variables, a .env file, or a YAML config file
(~/.docrag/config.yaml). Environment variables always win.
See 'docrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env fills gaps in the environment; it never overrides. A missing
			// default .env is fine, a missing explicit one is not.
			if err := godotenv.Load(envFile); err != nil {
				if cmd.Flags().Changed("env-file") || !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load env file %s: %w", envFile, err)
				}
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			if cmd.Annotations[annotationNeedsSecrets] == "true" {
				if err := config.CheckRequired(); err != nil {
					log.Error("startup: configuration incomplete", slog.Any("error", err))
					return err
				}
			}

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docrag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the config file")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewClearCmd(),
		NewMigrateCmd(),
		NewVersionCmd(),
	)

	return root
}

// annotationNeedsSecrets marks commands that must fail fast when a required
// credential is missing.
const annotationNeedsSecrets = "docrag/needs-secrets"

// needsSecrets is the annotation set for commands that talk to the store and
// model providers.
func needsSecrets() map[string]string {
	return map[string]string{annotationNeedsSecrets: "true"}
}
