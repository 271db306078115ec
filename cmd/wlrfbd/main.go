// Command wlrfbd bridges a wlroots Wayland compositor's screen-capture
// protocols to an RFB/VNC server with bidirectional input: build a Config,
// construct the top-level Bridge, run it to completion under a cancellable
// context.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wlrfb/wlrfb/pkg/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "wlrfbd",
		Short: "Serve a wlroots desktop session as an RFB/VNC server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var (
		listenAddr string
		rateHz     float64
		layout     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture/render/input bridge and serve RFB clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("rate-limit-hz") {
				cfg.RateLimitHz = rateHz
			}
			if cmd.Flags().Changed("layout") {
				cfg.Layout = layout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			b, err := NewBridge(log, cfg)
			if err != nil {
				return fmt.Errorf("wlrfbd: %w", err)
			}
			defer b.Close()

			return b.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "RFB TCP listen address (overrides config)")
	cmd.Flags().Float64Var(&rateHz, "rate-limit-hz", 0, "capture rate limit in Hz (overrides config)")
	cmd.Flags().StringVar(&layout, "layout", "", "xkb keyboard layout (overrides config)")

	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
