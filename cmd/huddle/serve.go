package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/huddle/internal/a2a"
	"github.com/anatolykoptev/huddle/internal/bus"
	"github.com/anatolykoptev/huddle/internal/config"
	"github.com/anatolykoptev/huddle/internal/httpapi"
	"github.com/anatolykoptev/huddle/internal/telegram"
	"github.com/anatolykoptev/huddle/internal/tools"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		noTelegram bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with MCP, A2A and the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			router := httpapi.NewRouter(httpapi.Options{Engine: a.engine, Version: cfg.Version, LogWriter: os.Stdout})
			if cfg.HTTP.MCPEnabled {
				mcpHandler := tools.HTTPHandler(tools.NewServer("huddle", cfg.Version, a.registry))
				router.Handle("/mcp", mcpHandler)
				router.Handle("/mcp/*", mcpHandler)
			}
			if cfg.A2A.Enabled {
				a2a.Register(router, a.engine, a.registry, cfg.A2A.BaseURL, cfg.Version, cfg.A2A.Secret)
			}

			if cfg.Telegram.Token != "" && !noTelegram {
				startTelegram(ctx, a, cfg)
			}

			return startHTTPServer(ctx, &http.Server{
				Addr:         cfg.HTTP.Addr,
				Handler:      router,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}, "huddle")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HUDDLE_HTTP_ADDR)")
	cmd.Flags().BoolVar(&noTelegram, "no-telegram", false, "do not start the Telegram bot even when a token is set")
	return cmd
}

// startTelegram wires the bot to the engine through the bus. A bot that
// cannot start is logged and skipped.
func startTelegram(ctx context.Context, a *app, cfg config.Config) {
	msgBus := bus.New(0)
	tg, err := telegram.New(telegram.Options{
		Token:      cfg.Telegram.Token,
		Allowed:    cfg.Telegram.Allowed,
		MaxRetries: cfg.Telegram.MaxRetries,
	}, msgBus)
	if err != nil {
		slog.Error("telegram init failed", slog.Any("error", err))
		msgBus.Close()
		return
	}
	tg.Start(ctx)
	go func() {
		defer msgBus.Close()
		newGateway(a.engine, msgBus).run(ctx)
	}()
	slog.Info("telegram channel active")
}
