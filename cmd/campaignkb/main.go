package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/campaignkb/internal/cli"
	"github.com/cloo-solutions/campaignkb/internal/cli/admin"
	"github.com/cloo-solutions/campaignkb/internal/cli/kb"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaignkb",
		Short: "Campaign session log knowledge base",
		Long: `campaignkb ingests session-log PDFs and answers questions from the most relevant excerpts.

Configuration is read from CAMPAIGNKB_* environment variables and an optional .env file.
The knowledge base commands require CAMPAIGNKB_ENABLE_PDF_QA=true.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(kb.Commands()...)

	cli.CheckHelpJSON(rootCmd, os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
