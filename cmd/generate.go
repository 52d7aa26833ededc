package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/presentation"
)

var (
	genDryRun     bool
	genJSON       bool
	genSkipEditor bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate the compose manifest from the registry",
	Long: `Regenerate the compose manifest and editor descriptors for every enabled project.

All projects are validated before anything is written. If any project fails,
every error is reported, the previous manifest is left in place and the
command exits non-zero.

Examples:
  # Write docker-compose.yml and each project's .cursor/mcp.json
  kgfleet generate

  # Show what would change without writing anything
  kgfleet generate --dry-run

  # Machine-readable report
  kgfleet generate --json | jq '.projects[].services[].port'`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVarP(&genDryRun, "dry-run", "n", false, "print a diff against the current manifest and write nothing")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print the report as JSON")
	generateCmd.Flags().BoolVar(&genSkipEditor, "skip-editor", false, "do not update project editor descriptors")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	opts := generateOptions(cfg, root)
	opts.DryRun = genDryRun
	opts.SkipEditor = genSkipEditor
	opts.Tracer = provider.Tracer()

	res, runErr := generate.Run(cmd.Context(), opts)

	formatter := presentation.NewFormatter(cmd.OutOrStdout())
	if genJSON {
		if err := formatter.JSON(presentation.FromResult(res)); err != nil {
			return err
		}
	} else {
		if genDryRun && runErr == nil {
			if err := formatter.Diff(res.Diff()); err != nil {
				return err
			}
		}
		if err := formatter.Result(res); err != nil {
			return err
		}
	}

	if runErr != nil {
		return errFailed
	}
	return nil
}
