package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/presentation"
	"github.com/zjrosen/kgfleet/internal/registry"
	"github.com/zjrosen/kgfleet/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate whenever the registry, base template or a project config changes",
	Long: `Run generate once, then again after every change to the registry, the
base compose template or an enabled project's mcp-config.yaml.

A failing run is reported and the last good manifest stays in place.
Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchFiles lists the files whose changes trigger regeneration.
func watchFiles(opts generate.Options) []string {
	files := []string{opts.RegistryPath, opts.BasePath}
	reg, err := registry.NewStore(opts.RegistryPath).Load()
	if err != nil {
		return files
	}
	for _, e := range reg.Enabled() {
		files = append(files, e.ConfigPath)
	}
	return files
}

func runWatch(cmd *cobra.Command, _ []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	opts := generateOptions(cfg, root)
	opts.Tracer = provider.Tracer()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(watcher.Config{
		Files:       watchFiles(opts),
		DebounceDur: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return err
	}

	formatter := presentation.NewFormatter(cmd.OutOrStdout())
	regenerate := func() {
		runOnce(ctx, formatter, opts)
		if err := w.SetFiles(watchFiles(opts)); err != nil {
			log.ErrorErr(log.CatWatcher, "updating watched files failed", err)
		}
	}

	regenerate()
	fmt.Fprintln(cmd.OutOrStdout(), "watching for changes, press Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			fmt.Fprintf(cmd.OutOrStdout(), "\nchange detected at %s\n", time.Now().Format(time.TimeOnly))
			regenerate()
		}
	}
}

func runOnce(ctx context.Context, formatter *presentation.Formatter, opts generate.Options) {
	res, err := generate.Run(ctx, opts)
	if ferr := formatter.Result(res); ferr != nil {
		log.ErrorErr(log.CatWatcher, "printing report failed", ferr)
	}
	if err != nil {
		log.ErrorErr(log.CatWatcher, "regeneration failed, keeping last good manifest", err, "run_id", res.RunID)
	}
}
