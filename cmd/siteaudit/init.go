package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
)

//go:embed templates/rules.yaml templates/siteaudit.yaml
var templates embed.FS

// Embedded template paths.
const (
	rulesTemplate      = "templates/rules.yaml"
	siteConfigTemplate = "templates/siteaudit.yaml"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter severity rules file",
		Long: `Init writes a starter rules.yaml to the current directory.

The rules file decides which failing audits are critical, medium or low.
'siteaudit scan' refuses to start without one.

The generated file includes:
- LCP and CLS thresholds
- Accessibility and SEO rules graded critical or medium
- Documentation for both policy forms

With --site-config, a commented .siteaudit per-site configuration file is
written instead (cookies, headers, URL patterns, page caps).

Examples:
  # Create rules.yaml in current directory
  siteaudit init

  # Create the rules file at a specific path
  siteaudit init -o config/rules.yaml

  # Create .siteaudit
  siteaudit init --site-config

  # Force overwrite existing file
  siteaudit init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Output file path (default: rules.yaml, or .siteaudit with --site-config)")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing file")
	cmd.Flags().Bool("site-config", false,
		"Write a per-site configuration file instead of the rules file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	siteConfig, err := cmd.Flags().GetBool("site-config")
	if err != nil {
		return err
	}

	templatePath := rulesTemplate
	defaultPath := config.DefaultRulesFile
	if siteConfig {
		templatePath = siteConfigTemplate
		defaultPath = config.DefaultConfigFile
	}
	if outputPath == "" {
		outputPath = defaultPath
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := templates.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", outputPath)
	if siteConfig {
		fmt.Fprintln(out, "\nEdit this file to configure per-site settings such as:")
		fmt.Fprintln(out, "  - Cookies and headers for protected pages")
		fmt.Fprintln(out, "  - Page caps per site")
		fmt.Fprintln(out, "  - URL patterns to ignore or follow")
		return nil
	}
	fmt.Fprintln(out, "\nAdjust the thresholds, then run:")
	fmt.Fprintf(out, "  siteaudit scan --rules %s https://example.com\n", outputPath)
	return nil
}
