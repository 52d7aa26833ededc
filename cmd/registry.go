package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/paths"
	"github.com/zjrosen/kgfleet/internal/presentation"
	"github.com/zjrosen/kgfleet/internal/registry"
)

var (
	regAddName     string
	regAddConfig   string
	regAddDisabled bool
	regListJSON    bool
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the project registry without touching the manifest",
	Long: `Manage the project registry file (mcp-projects.yaml).

Registry commands only rewrite the registry. Run 'kgfleet generate' afterwards
to regenerate the manifest.`,
}

var registryAddCmd = &cobra.Command{
	Use:   "add <project-root>",
	Short: "Register a project or update its paths",
	Long: `Register a project or update an existing one.

Relative paths are resolved against the current directory before saving.
The project name defaults to the root directory's base name and the config
file defaults to <root>/<entities.domain_root>/mcp-config.yaml.

Examples:
  kgfleet registry add ~/src/alpha
  kgfleet registry add ../beta --name beta-api --config-file ../beta/graph.yaml
  kgfleet registry add ./gamma --disabled`,
	Args: cobra.ExactArgs(1),
	RunE: runRegistryAdd,
}

var registryEnableCmd = &cobra.Command{
	Use:   "enable <project>...",
	Short: "Enable projects for generation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args, true)
	},
}

var registryDisableCmd = &cobra.Command{
	Use:   "disable <project>...",
	Short: "Disable projects without removing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args, false)
	},
}

var registryRemoveCmd = &cobra.Command{
	Use:   "remove <project>",
	Short: "Remove a project and its recorded ports",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryRemove,
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Long: `List registered projects in name order.

Examples:
  kgfleet registry list
  kgfleet registry list --json | jq '.[] | select(.enabled) | .name'`,
	Args: cobra.NoArgs,
	RunE: runRegistryList,
}

func init() {
	registryAddCmd.Flags().StringVar(&regAddName, "name", "", "project name (default: base name of the root)")
	registryAddCmd.Flags().StringVar(&regAddConfig, "config-file", "", "project mcp-config.yaml path")
	registryAddCmd.Flags().BoolVar(&regAddDisabled, "disabled", false, "register without enabling")
	registryListCmd.Flags().BoolVar(&regListJSON, "json", false, "print entries as JSON")

	registryCmd.AddCommand(registryAddCmd, registryEnableCmd, registryDisableCmd, registryRemoveCmd, registryListCmd)
	rootCmd.AddCommand(registryCmd)
}

func registryStore() (*registry.Store, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	return registry.NewStore(cfg.RegistryPath(root)), nil
}

// newEntry builds a registry entry with every path made absolute.
func newEntry(rootArg, name, configFile, domainRoot string, enabled bool) (registry.Entry, error) {
	rootDir, err := paths.Absolute(rootArg)
	if err != nil {
		return registry.Entry{}, fmt.Errorf("project root: %w", err)
	}
	info, err := os.Stat(rootDir)
	if err != nil {
		return registry.Entry{}, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return registry.Entry{}, fmt.Errorf("project root %s is not a directory", rootDir)
	}

	if name == "" {
		name = filepath.Base(rootDir)
	}

	configPath := filepath.Join(rootDir, domainRoot, projectConfigFile)
	if configFile != "" {
		configPath, err = paths.Absolute(configFile)
		if err != nil {
			return registry.Entry{}, fmt.Errorf("config file: %w", err)
		}
	}

	return registry.Entry{Name: name, RootDir: rootDir, ConfigPath: configPath, Enabled: enabled}, nil
}

func runRegistryAdd(cmd *cobra.Command, args []string) error {
	entry, err := newEntry(args[0], regAddName, regAddConfig, cfg.Entities.DomainRoot, !regAddDisabled)
	if err != nil {
		return err
	}
	store, err := registryStore()
	if err != nil {
		return err
	}
	reg, err := store.Load()
	if err != nil {
		return err
	}
	_, existed := reg.Get(entry.Name)
	if err := reg.Put(entry); err != nil {
		return err
	}
	if err := store.Save(reg); err != nil {
		return err
	}

	verb := "registered"
	if existed {
		verb = "updated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, entry.Name, entry.ConfigPath)
	if _, err := os.Stat(entry.ConfigPath); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: config file %s does not exist yet\n", entry.ConfigPath)
	}
	return nil
}

func setEnabled(cmd *cobra.Command, names []string, enabled bool) error {
	store, err := registryStore()
	if err != nil {
		return err
	}
	reg, err := store.Load()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := reg.SetEnabled(name, enabled); err != nil {
			return err
		}
	}
	if err := store.Save(reg); err != nil {
		return err
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, name)
	}
	return nil
}

func runRegistryRemove(cmd *cobra.Command, args []string) error {
	store, err := registryStore()
	if err != nil {
		return err
	}
	reg, err := store.Load()
	if err != nil {
		return err
	}
	if !reg.Remove(args[0]) {
		return fmt.Errorf("project %q is not registered", args[0])
	}
	if err := store.Save(reg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}

func runRegistryList(cmd *cobra.Command, _ []string) error {
	store, err := registryStore()
	if err != nil {
		return err
	}
	reg, err := store.Load()
	if err != nil {
		return err
	}
	formatter := presentation.NewFormatter(cmd.OutOrStdout())
	if regListJSON {
		return formatter.JSON(presentation.FromEntries(reg.Entries()))
	}
	return formatter.Registry(reg.Entries())
}
