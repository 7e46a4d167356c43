package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for SiteAudit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteaudit",
		Short: "Crawl a website and audit every page with Lighthouse",
		Long: `SiteAudit crawls a website, audits every discovered page with Lighthouse
and grades each failing audit as critical, medium or low using a rules file.

Findings are enriched with a root cause and a recommendation, first from
built-in templates and optionally from an OpenAI-compatible model (--llm).
Results are written as CSV files, one per page, plus a summary.

Run 'siteaudit init' to create a starter rules file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
