package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/store"
)

// migrator is implemented by stores whose schema is installed on demand.
type migrator interface {
	Migrate(ctx context.Context) error
}

// NewMigrateCmd constructs the `docrag migrate` command, which installs the
// documents table and the match_documents ranking function.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Install the documents schema and ranking function",
		Long: `Install the pgvector extension, the documents table and the
match_documents ranking function. Only STORE_BACKEND=postgres runs this;
qdrant and sqlite create their schema on open. For a Supabase project, run it
once with STORE_BACKEND=postgres and DATABASE_URL set to the project's
connection string.

The vector column is sized from EMBEDDING_PROVIDER / EMBEDDING_DIMENSIONS.

Examples:
  STORE_BACKEND=postgres DATABASE_URL=postgres://localhost/docrag docrag migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			backend := getEnvOrDefault("STORE_BACKEND", store.BackendSupabase)
			dims := embedder.DefaultDimensions(getEnvOrDefault("EMBEDDING_PROVIDER", "gemini"))

			st, err := store.NewFromEnv(ctx, dims)
			if err != nil {
				return fail("migrate", err)
			}
			defer st.Close() //nolint:errcheck // best-effort on exit

			m, ok := st.(migrator)
			if !ok {
				return fail("migrate", fmt.Errorf("backend %q manages its own schema", backend))
			}
			if err := m.Migrate(ctx); err != nil {
				return fail("migrate", err)
			}

			log.Info("migration complete", slog.String("backend", backend), slog.Int("dimensions", dims))
			return nil
		},
	}
}
