package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/server"
)

var serveFlags struct {
	addr  string
	watch bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transform API over HTTP",
	Long: `Serve POST /v1/transform, GET and PUT /v1/engine, GET /v1/stats and
GET /healthz. With --watch, engine settings are reloaded when the config
file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "listen address (default from config, :8080)")
	f.BoolVar(&serveFlags.watch, "watch", false, "reload engine settings when the config file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.Server.Addr = serveFlags.addr
	}

	logger := newLogger(cmd, cfg)
	proc, cleanup, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	proc.Start()
	defer proc.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveFlags.watch && configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, proc.Engine(), logger); err != nil {
				logger.Error("config.watch.failed", "error", err)
			}
		}()
	}

	h := server.New(proc, logger, cfg.MaxImageBytes)
	return server.Serve(ctx, cfg.Server, h.Routes(), logger)
}
