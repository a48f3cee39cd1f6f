package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/logging"
)

// NewAskCmd constructs the `docrag ask` command, which answers one question
// from the stored documents and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var sources int

	cmd := &cobra.Command{
		Use:         "ask <question>",
		Short:       "Answer a question from the stored documents",
		Annotations: needsSecrets(),
		Long: `Answer a natural-language question using the most similar stored documents
as context. This is the CLI form of POST /query.

Examples:
  docrag ask "what is the refund policy?"
  docrag ask --sources 3 "who signed the contract?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			c, err := buildComponents(ctx, log, nil, true)
			if err != nil {
				return fail("ask", err)
			}
			defer c.Close(log)

			question := strings.Join(args, " ")
			answer, err := c.Engine.Answer(ctx, question)
			if err != nil {
				return fail("ask", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer)

			if sources > 0 {
				results, err := c.Engine.Retrieve(ctx, question, sources)
				if err != nil {
					return fail("ask", err)
				}
				fmt.Fprintln(out)
				for _, r := range results {
					fmt.Fprintf(out, "[%d] %s (similarity %.3f)\n", r.ID, r.Filename, r.Similarity)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&sources, "sources", "s", 0, "Also list the N most similar documents")

	return cmd
}
