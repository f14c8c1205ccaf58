package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/htmlc/internal/config"
	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/server"
	"github.com/conneroisu/htmlc/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch [source] [destination]",
	Aliases: []string{"w"},
	Short:   "Rebuild whenever the source tree changes",
	Long: `Build once, then watch the source directory and run a full rebuild after
every burst of changes. With --serve the destination is also served with
live reload: browsers refresh after each rebuild.

Examples:
  htmlc watch                     # src -> dist
  htmlc watch --serve --port 3000 # preview on http://localhost:3000
  htmlc watch --debounce 1s       # wait longer for editors to settle`,
	Args: cobra.MaximumNArgs(2),
	RunE: runWatch,
}

var watchFlagKeys = map[string]string{
	"debounce": "watch.debounce",
	"host":     "server.host",
	"port":     "server.port",
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addBuildFlags(watchCmd)
	addServerFlags(watchCmd)

	watchCmd.Flags().Bool("serve", false, "serve the destination with live reload")
	watchCmd.Flags().Duration("debounce", config.DefaultDebounce, "quiet period before rebuilding")
}

func runWatch(cmd *cobra.Command, args []string) error {
	keys := make(map[string]string, len(buildFlagKeys)+len(watchFlagKeys))
	for k, v := range buildFlagKeys {
		keys[k] = v
	}
	for k, v := range watchFlagKeys {
		keys[k] = v
	}
	cfg, err := loadConfig(cmd, args, keys)
	if err != nil {
		return err
	}
	serve, _ := cmd.Flags().GetBool("serve")

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg, cmd.ErrOrStderr())
	reg := prometheus.NewRegistry()
	b, err := newBuilder(cfg, logger, reg)
	if err != nil {
		return err
	}

	var preview *server.PreviewServer
	serverErr := make(chan error, 1)
	if serve {
		preview = server.New(server.Config{
			Host:     cfg.Server.Host,
			Port:     cfg.Server.Port,
			Root:     cfg.Destination,
			Gatherer: reg,
			Logger:   logger,
		})
	}

	rebuild := func(ctx context.Context) error {
		report, err := b.Build(ctx, cfg.Source, cfg.Destination)
		printReport(cmd.OutOrStdout(), report)
		if preview != nil {
			preview.NotifyBuild(report)
		}
		return err
	}

	// The first build must at least be able to create the destination.
	if err := rebuild(ctx); err != nil && errors.IsConfigError(err) {
		return err
	}

	fw, err := newSourceWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, e := range events {
			logger.Debug(ctx, "Source changed", "path", e.Path, "type", e.Type.String())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d change(s), rebuilding...\n", len(events))
		// Failures are already printed and logged.
		_ = rebuild(ctx)
		return nil
	})
	if err := fw.Start(ctx); err != nil {
		return err
	}

	if preview != nil {
		go func() { serverErr <- preview.Start(ctx) }()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", cfg.Source)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}

// newSourceWatcher watches cfg.Source recursively, skipping ignored paths,
// editor temp files and the destination.
func newSourceWatcher(cfg *config.Config, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	fw.AddFilter(watcher.IgnoreFilter(cfg.Watch.Ignore))
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(watcher.ExcludeDirFilter(cfg.Destination))

	if err := fw.AddRecursive(cfg.Source); err != nil {
		fw.Stop()
		return nil, errors.NewIOError(errors.OpReadDir, cfg.Source, err)
	}

	return fw, nil
}
