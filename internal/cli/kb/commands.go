// Package kb holds the knowledge base commands of the campaignkb CLI.
package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cloo-solutions/campaignkb/internal/cli"
	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/service"
	"github.com/spf13/cobra"
)

const featureSetting = "CAMPAIGNKB_ENABLE_PDF_QA"

// Commands returns every knowledge base command.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		cli.Requires(IngestCmd(), featureSetting),
		cli.Requires(SyncCmd(), featureSetting),
		cli.Requires(AskCmd(), featureSetting),
		cli.Requires(EnemiesCmd(), featureSetting),
		cli.Requires(ManifestCmd(), featureSetting),
		cli.Requires(UploadCmd(), "CAMPAIGNKB_S3_ENDPOINT", "CAMPAIGNKB_S3_ACCESS_KEY_ID", "CAMPAIGNKB_S3_SECRET_ACCESS_KEY"),
	}
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <pdf>...",
		Short: "Ingest PDF session logs",
		Long:  "Extracts, chunks and indexes each PDF. Unreadable documents are reported and skipped.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.LoadApp(cmd.Context(), cli.Options{Migrate: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireFeature(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				n, err := app.KB.Ingest(cmd.Context(), path)
				if err != nil {
					if !errors.Is(err, domain.ErrExtraction) {
						return err
					}
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", filepath.Base(path), err)
					continue
				}
				fmt.Fprintf(out, "Ingested %s into %d chunks.\n", filepath.Base(path), n)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
}

// SyncCmd creates the sync command.
func SyncCmd() *cobra.Command {
	var pull bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest every PDF in the drive directory",
		Long:  "Ingests every *.pdf in the drive_raw directory. With --pull, PDFs are first copied from the configured bucket.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.LoadApp(cmd.Context(), cli.Options{Migrate: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireFeature(); err != nil {
				return err
			}

			if pull {
				s3, err := app.RequireStorage()
				if err != nil {
					return err
				}
				pulled, err := s3.PullPDFs(cmd.Context(), app.Config.DriveRawDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pulled %d PDFs (%d unchanged).\n", len(pulled.Downloaded), pulled.Unchanged)
			}

			result, err := app.KB.SyncDirectory(cmd.Context(), app.Config.DriveRawDir)
			if err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), syncOutput(result))
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message())
			for _, f := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", f.SourceFile, f.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pull, "pull", false, "Copy new PDFs from the bucket before ingesting")
	return cmd
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		k        int
		maxChars int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Show the excerpts most relevant to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if k < 0 || maxChars < 0 {
				return errors.New("-k and --max-chars must not be negative")
			}

			app, err := cli.LoadApp(cmd.Context(), cli.Options{})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireFeature(); err != nil {
				return err
			}

			answer, err := app.KB.Ask(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			return printAnswer(cmd, service.TruncateAnswer(answer, maxChars))
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", service.DefaultAskK, "Number of excerpts")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, fmt.Sprintf("Truncate the answer (chat clients use %d); 0 keeps it whole", service.ChatAnswerLimit))
	return cmd
}

// EnemiesCmd creates the enemies command.
func EnemiesCmd() *cobra.Command {
	var maxChars int

	cmd := &cobra.Command{
		Use:   "enemies <session>",
		Short: "Estimate the enemies encountered in a session",
		Long:  "Scans the excerpts most related to combat in a session for counted enemies. The tally is approximate.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := strconv.Atoi(args[0])
			if err != nil {
				return domain.ErrInvalidSession
			}
			if maxChars < 0 {
				return errors.New("--max-chars must not be negative")
			}

			app, err := cli.LoadApp(cmd.Context(), cli.Options{})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireFeature(); err != nil {
				return err
			}

			answer, err := app.KB.SessionEnemies(cmd.Context(), session)
			if err != nil {
				return err
			}
			return printAnswer(cmd, service.TruncateAnswer(answer, maxChars))
		},
	}

	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Truncate the answer; 0 keeps it whole")
	return cmd
}

// ManifestCmd creates the manifest command.
func ManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <document>",
		Short: "List the chunks recorded for a document",
		Long:  "Prints the chunk manifest of a document. The argument is a file name or its stem.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.LoadApp(cmd.Context(), cli.Options{})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireFeature(); err != nil {
				return err
			}

			records, err := app.Manifests.ReadManifest(domain.DocumentStem(args[0]))
			if err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tOFFSET\tLEN\tSHA256\tID")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", r.Page, r.Offset, r.Len, r.SHA256, r.ID)
			}
			return tw.Flush()
		},
	}
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <pdf>...",
		Short: "Upload PDFs to the document bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if !strings.EqualFold(filepath.Ext(path), ".pdf") {
					return fmt.Errorf("%s: %w", path, domain.ErrNotPDF)
				}
			}

			app, err := cli.LoadApp(cmd.Context(), cli.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			s3, err := app.RequireStorage()
			if err != nil {
				return err
			}
			if err := s3.EnsureBucket(cmd.Context()); err != nil {
				return err
			}

			for _, path := range args {
				key, err := s3.Upload(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", filepath.Base(path), key)
			}
			return nil
		},
	}
}

type syncFailure struct {
	SourceFile string `json:"source_file"`
	Error      string `json:"error"`
}

type syncSummary struct {
	Message   string        `json:"message"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Failed    []syncFailure `json:"failed"`
}

func syncOutput(r *service.SyncResult) syncSummary {
	s := syncSummary{
		Message:   r.Message(),
		Documents: r.Documents,
		Chunks:    r.Chunks,
		Failed:    make([]syncFailure, 0, len(r.Failed)),
	}
	for _, f := range r.Failed {
		s.Failed = append(s.Failed, syncFailure{SourceFile: f.SourceFile, Error: failureMessage(f.Err)})
	}
	return s
}

func failureMessage(err error) string {
	if msg := domain.MessageOf(err); msg != "" {
		return msg
	}
	return "document could not be ingested"
}

func printAnswer(cmd *cobra.Command, answer string) error {
	if outputJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), map[string]string{"answer": answer})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), answer)
	return err
}

func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
