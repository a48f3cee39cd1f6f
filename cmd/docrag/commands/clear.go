package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/store"
)

// NewClearCmd constructs the `docrag clear` command, which deletes every
// stored document.
func NewClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored document",
		Long: `Delete every stored document. This is the CLI form of POST /clear and
cannot be undone, so --yes is required.

Examples:
  docrag clear --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fail("clear", errors.New("refusing to delete documents without --yes"))
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			c, err := buildComponents(ctx, log, nil, false)
			if err != nil {
				return fail("clear", err)
			}
			defer c.Close(log)

			n, err := store.Clear(ctx, c.Store)
			if err != nil {
				return fail("clear", err)
			}

			out := cmd.OutOrStdout()
			if n == 0 {
				fmt.Fprintln(out, "Database is already empty.")
				return nil
			}
			fmt.Fprintf(out, "Database cleared successfully. %d documents removed.\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
