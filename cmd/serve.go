package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/htmlc/internal/config"
	"github.com/conneroisu/htmlc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve [directory]",
	Aliases: []string{"s"},
	Short:   "Serve a built destination tree",
	Long: `Serve the destination directory (or the given directory) over HTTP.
HTML pages get a live-reload script; use 'htmlc watch --serve' to rebuild
and reload on change.

Reserved routes:
  /_htmlc/ws       live-reload websocket
  /_htmlc/health   health check
  /_htmlc/report   latest build report (watch --serve only)
  /metrics         Prometheus metrics

Examples:
  htmlc serve                     # serve dist on localhost:8080
  htmlc serve public --port 3000  # serve ./public`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var serveFlagKeys = map[string]string{
	"host": "server.host",
	"port": "server.port",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", config.DefaultHost, "address to listen on")
	cmd.Flags().IntP("port", "p", config.DefaultPort, "port to listen on (0 picks a free port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil, serveFlagKeys)
	if err != nil {
		return err
	}
	root := cfg.Destination
	if len(args) > 0 {
		root = args[0]
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	preview := server.New(server.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		Root:   root,
		Logger: newLogger(cfg, cmd.ErrOrStderr()),
	})

	return preview.Start(ctx)
}
