package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/config"
	"github.com/zjrosen/kgfleet/internal/paths"
)

var (
	initForce    bool
	initRepoRoot string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long: `Write a commented default config to .kgfleet/config.yaml, or to the path
given with --config.

Examples:
  kgfleet init
  kgfleet init --repo-root ~/graphiti
  kgfleet init -c ~/.config/kgfleet/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
	initCmd.Flags().StringVar(&initRepoRoot, "repo-root", "", "record the repository root in the new config")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = localConfigPath
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	if initRepoRoot != "" {
		root, err := paths.Absolute(initRepoRoot)
		if err != nil {
			return fmt.Errorf("repo root: %w", err)
		}
		if err := config.SaveScalar(path, "repo_root", root); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
