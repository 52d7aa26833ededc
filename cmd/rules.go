package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/presentation"
	"github.com/zjrosen/kgfleet/internal/rules"
)

var (
	rulesSelector    string
	rulesIncludeRoot bool
	rulesSharedRoot  string
	rulesStrict      bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect domain-rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <entities-dir>",
	Short: "Load rule files the way a running service would",
	Long: `Load the rule files under a project's entities directory using the same
selector and include-root contract a generated service receives.

A missing selected subdirectory or an unreadable file is reported but does
not stop the rest from loading. With --strict any failed file makes the
command exit non-zero.

Examples:
  kgfleet rules check ai/graph/entities
  kgfleet rules check ai/graph --selector arch,ops
  kgfleet rules check ai/graph/entities --include-root --shared-root ~/graphiti/entities`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rulesCheckCmd.Flags().StringVarP(&rulesSelector, "selector", "s", "", "comma-separated subdirectories to load (default: all)")
	rulesCheckCmd.Flags().BoolVar(&rulesIncludeRoot, "include-root", false, "load the shared default rules first")
	rulesCheckCmd.Flags().StringVar(&rulesSharedRoot, "shared-root", "", "shared default rule directory (default: entities.shared_root)")
	rulesCheckCmd.Flags().BoolVar(&rulesStrict, "strict", false, "exit non-zero if any file fails to load")
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	sharedRoot := rulesSharedRoot
	if sharedRoot == "" {
		sharedRoot = cfg.Entities.SharedRoot
	}
	catalog, report := rules.LoadService(rules.ServiceOptions{
		SharedRoot:  sharedRoot,
		Mount:       args[0],
		Selector:    entities.FormatSelector(entities.ParseSelector(rulesSelector)),
		IncludeRoot: rulesIncludeRoot,
		UseCustom:   true,
	})

	if err := presentation.NewFormatter(cmd.OutOrStdout()).Rules(catalog, report); err != nil {
		return err
	}
	if failed := report.Failed(); rulesStrict && len(failed) > 0 {
		return fmt.Errorf("%d rule file(s) failed to load", len(failed))
	}
	return nil
}
