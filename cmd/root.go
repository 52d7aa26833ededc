package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/kgfleet/internal/config"
	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/paths"
	"github.com/zjrosen/kgfleet/internal/tracing"
)

const (
	envPrefix         = "KGFLEET"
	localConfigPath   = ".kgfleet/config.yaml"
	defaultLogFile    = "kgfleet-debug.log"
	shutdownTimeout   = 5 * time.Second
	projectConfigFile = "mcp-config.yaml"
)

var (
	version = "dev"
	cfgFile string
	logFile string
	cfg     config.Config

	logCleanup func()
	provider   = tracing.Noop()
)

var rootCmd = &cobra.Command{
	Use:   "kgfleet",
	Short: "Generate knowledge-graph service manifests for registered projects",
	Long: `kgfleet keeps one MCP knowledge-graph service per registered project service.

It reads the project registry, each project's mcp-config.yaml and the base
compose template, assigns stable host ports and writes a single compose
manifest plus each project's editor descriptor.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .kgfleet/config.yaml, then ~/.config/kgfleet/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "write debug logs")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"debug log path, \"-\" for stderr (default: kgfleet-debug.log in the repository root)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// setDefaults registers every config key so env overrides and Unmarshal see it.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("repo_root", d.RepoRoot)
	v.SetDefault("registry_file", d.RegistryFile)
	v.SetDefault("base_compose_file", d.BaseComposeFile)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("port_floor", d.PortFloor)
	v.SetDefault("service_prefix", d.ServicePrefix)
	v.SetDefault("shared_base_key", d.SharedBaseKey)
	v.SetDefault("entities.domain_root", d.Entities.DomainRoot)
	v.SetDefault("entities.default_dir", d.Entities.DefaultDir)
	v.SetDefault("entities.container_path", d.Entities.ContainerPath)
	v.SetDefault("entities.shared_root", d.Entities.SharedRoot)
	v.SetDefault("editor.dir", d.Editor.Dir)
	v.SetDefault("editor.file", d.Editor.File)
	v.SetDefault("editor.transport", d.Editor.Transport)
	v.SetDefault("editor.key_prefix", d.Editor.KeyPrefix)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("debug", d.Debug)
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .kgfleet/config.yaml (current directory)
		// 2. ~/.config/kgfleet/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "kgfleet"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// A missing config file is fine; defaults apply.
	_ = viper.ReadInConfig()

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

func setup(cmd *cobra.Command, _ []string) error {
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "file" && cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = config.DefaultTracesFilePath()
	}
	cfg.Tracing.FilePath = paths.ExpandHome(cfg.Tracing.FilePath)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Debug {
		if err := initLogging(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: debug logging disabled: %v\n", err)
		}
	}

	p, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: tracing disabled: %v\n", err)
		p = tracing.Noop()
	}
	provider = p
	return nil
}

func teardown(*cobra.Command, []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := provider.Shutdown(ctx)
	provider = tracing.Noop()
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return err
}

func initLogging() error {
	path := logFile
	if path == "-" {
		log.InitWriter(os.Stderr)
		return nil
	}
	if path == "" {
		dir := "."
		if root, err := repoRoot(); err == nil {
			dir = root
		}
		path = filepath.Join(dir, defaultLogFile)
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return err
	}
	logCleanup = cleanup
	log.Info(log.CatConfig, "configuration loaded", "config", viper.ConfigFileUsed(), "version", version)
	return nil
}

// repoRoot locates the repository holding the registry and base template.
func repoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	marker := cfg.BaseComposeFile
	if marker == "" || filepath.IsAbs(marker) {
		marker = config.DefaultBaseComposeFile
	}
	return paths.ResolveRoot(os.Getenv, cfg.RepoRoot, cwd, marker)
}

// generateOptions maps the configuration onto one pipeline run rooted at root.
func generateOptions(c config.Config, root string) generate.Options {
	return generate.Options{
		RegistryPath:  c.RegistryPath(root),
		BasePath:      c.BaseComposePath(root),
		OutputPath:    c.OutputPath(root),
		SharedKey:     c.SharedBaseKey,
		ServicePrefix: c.ServicePrefix,
		PortFloor:     c.PortFloor,
		DomainRoot:    c.Entities.DomainRoot,
		DefaultDir:    c.Entities.DefaultDir,
		ContainerPath: c.Entities.ContainerPath,
		Editor:        c.Editor.Options(),
	}
}

// errFailed signals a failure already reported to the user.
var errFailed = errors.New("generation failed")

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
