package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/logging"
)

// NewIngestCmd constructs the `docrag ingest` command, which runs local PDF
// files through the same pipeline as POST /upload.
func NewIngestCmd() *cobra.Command {
	var failFast bool

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Extract, embed and store local PDF files",
		Long: `Extract text from each PDF, embed it and insert it as one document.

Each file is processed independently: a failure is reported and the rest
continue, unless --fail-fast is set. The command exits non-zero if any file
failed.

Examples:
  docrag ingest report.pdf
  docrag ingest --fail-fast docs/*.pdf
  STORE_BACKEND=sqlite EMBEDDING_PROVIDER=ollama docrag ingest notes.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			// The flag feeds the same setting buildComponents reads.
			if cmd.Flags().Changed("fail-fast") {
				if err := os.Setenv("INGEST_FAIL_FAST", strconv.FormatBool(failFast)); err != nil {
					return fail("ingest", err)
				}
			}

			c, err := buildComponents(ctx, log, nil, false)
			if err != nil {
				return fail("ingest", err)
			}
			defer c.Close(log)

			uploads := make([]ingestion.Upload, 0, len(args))
			for _, path := range args {
				uploads = append(uploads, ingestion.Upload{
					Filename: filepath.Base(path),
					Open:     func() (io.ReadCloser, error) { return os.Open(path) },
				})
			}

			results := c.Pipeline.IngestBatch(ctx, uploads)

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.OK() {
					fmt.Fprintf(out, "ok     %s\n", r.Filename)
					continue
				}
				failed++
				fmt.Fprintf(out, "error  %s: %s\n", r.Filename, r.Error)
			}

			log.Info("ingestion complete",
				slog.Int("files", len(results)),
				slog.Int("failed", failed),
			)
			if failed > 0 {
				return fail("ingest", fmt.Errorf("%d of %d files failed", failed, len(results)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failed file (env: INGEST_FAIL_FAST)")

	return cmd
}
