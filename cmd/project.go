package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/atomicfile"
	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/paths"
	"github.com/zjrosen/kgfleet/internal/project"
)

const gitKeep = ".gitkeep"

var projectInitForce bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Scaffold project-side files",
}

var projectInitCmd = &cobra.Command{
	Use:   "init <name> [dir]",
	Short: "Create a project's config and entities directory and register it",
	Long: `Create <dir>/<entities.domain_root>/mcp-config.yaml with one service, an
empty entities directory, and register the project as enabled.

dir defaults to the current directory. An existing mcp-config.yaml is kept
unless --force is given.

Examples:
  kgfleet project init alpha ~/src/alpha
  kgfleet project init beta --force`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runProjectInit,
}

var projectEntityCmd = &cobra.Command{
	Use:   "entity <name> [dir]",
	Short: "Scaffold a rule file in a project's entities directory",
	Long: `Write <Name>.yaml into the entities directory of the project's first service
in id order. A filtered service receives the file in its first selected
subdirectory. dir is the project root and defaults to the current directory.

Examples:
  kgfleet project entity widget
  kgfleet project entity service-area ~/src/alpha`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runProjectEntity,
}

func init() {
	projectInitCmd.Flags().BoolVarP(&projectInitForce, "force", "f", false, "overwrite an existing mcp-config.yaml")
	projectCmd.AddCommand(projectInitCmd, projectEntityCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectDir(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return "."
}

func projectConfigTemplate(name string) string {
	id := name + "-main"
	return fmt.Sprintf(`# Configuration for project: %[1]s
services:
  - id: %[2]s
    # container_name: "%[3]s%[2]s"
    # port_default: 8001
    group_id: "%[1]s"
    entities_dir: "%[4]s"
    environment:
      GRAPHITI_LOG_LEVEL: "info"
    sync_editor_config: true
`, name, id, project.DefaultServicePrefix, entities.DefaultEntitiesDir)
}

func runProjectInit(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !project.ValidID(name) {
		return fmt.Errorf("invalid project name %q: use only letters, numbers, underscores and hyphens", name)
	}
	rootDir, err := paths.Absolute(projectDir(args))
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}

	graphDir := filepath.Join(rootDir, filepath.FromSlash(cfg.Entities.DomainRoot))
	configPath := filepath.Join(graphDir, projectConfigFile)
	if _, err := os.Stat(configPath); err == nil && !projectInitForce {
		fmt.Fprintf(cmd.ErrOrStderr(), "keeping existing %s (use --force to overwrite)\n", configPath)
	} else {
		if err := atomicfile.WriteFile(configPath, []byte(projectConfigTemplate(name)), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", configPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	}

	keep := filepath.Join(graphDir, entities.DefaultEntitiesDir, gitKeep)
	if err := os.MkdirAll(filepath.Dir(keep), 0o755); err != nil {
		return fmt.Errorf("creating entities directory: %w", err)
	}
	f, err := os.OpenFile(keep, os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path built from the project root
	if err != nil {
		return fmt.Errorf("creating %s: %w", keep, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("creating %s: %w", keep, err)
	}

	entry, err := newEntry(rootDir, name, configPath, cfg.Entities.DomainRoot, true)
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
	if prev, ok := reg.Get(name); ok {
		entry.Ports = prev.Ports
	}
	if err := reg.Put(entry); err != nil {
		return err
	}
	if err := store.Save(reg); err != nil {
		return err
	}
	log.Info(log.CatRegistry, "project initialized", "project", name, "root", rootDir)
	fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", name, configPath)
	return nil
}

// entityTypeName converts a snake or kebab case name to PascalCase.
func entityTypeName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func ruleTemplate(name, typeName string) string {
	return fmt.Sprintf(`name: %[1]s
description: A %[1]s mentioned in the source material.
fields:
  - name: %[2]s_name
    type: string
    description: The name of the %[2]s.
`, typeName, strings.ReplaceAll(name, "-", "_"))
}

// entityDir returns the directory new rule files go in: the mount of a
// load-all service, or the first selected subdirectory of a filtered one.
func entityDir(rootDir string, svc project.ServiceDefinition) (string, error) {
	if svc.EntitiesDir.List && len(svc.EntitiesDir.Paths) > 0 {
		svc.EntitiesDir = project.Single(svc.EntitiesDir.Paths[0])
	}
	res, err := entities.NewResolver(cfg.Entities.DomainRoot).Resolve(rootDir, svc)
	if err != nil {
		return "", err
	}
	return res.Spec.MountHostPath, nil
}

func runProjectEntity(cmd *cobra.Command, args []string) error {
	name := args[0]
	typeName := entityTypeName(name)
	if !project.ValidID(name) || typeName == "" {
		return fmt.Errorf("invalid entity name %q: use only letters, numbers, underscores and hyphens", name)
	}
	rootDir, err := paths.Absolute(projectDir(args))
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}

	configPath := filepath.Join(rootDir, filepath.FromSlash(cfg.Entities.DomainRoot), projectConfigFile)
	services, err := project.NewLoader(cfg.ServicePrefix).Load(configPath, filepath.Base(rootDir))
	var missing *project.MissingError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w (run 'kgfleet project init' first)", err)
	}
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return fmt.Errorf("%s declares no services", configPath)
	}

	dir, err := entityDir(rootDir, services[0])
	if err != nil {
		return err
	}
	path := filepath.Join(dir, typeName+".yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("rule file %s already exists", path)
	}
	if err := atomicfile.WriteFile(path, []byte(ruleTemplate(name, typeName)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Info(log.CatRules, "rule file scaffolded", "entity", typeName, "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
